package speech

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/newsreel/newsreel/internal/ai"
	"github.com/newsreel/newsreel/internal/narrate"
	"github.com/newsreel/newsreel/internal/retry"
)

// fallbackDuration stands in when ffprobe cannot measure a segment. Slightly
// wrong timing beats a dead run.
const fallbackDuration = 3.0

// Runner executes external commands. The default shells out; tests substitute
// a recorder so no ffmpeg binary is needed.
type Runner interface {
	Run(ctx context.Context, name string, args ...string) error
	Output(ctx context.Context, name string, args ...string) ([]byte, error)
}

type execRunner struct{}

func (execRunner) Run(ctx context.Context, name string, args ...string) error {
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	return cmd.Run()
}

func (execRunner) Output(ctx context.Context, name string, args ...string) ([]byte, error) {
	return exec.CommandContext(ctx, name, args...).Output()
}

// Track is the synthesized audio for one video: the concatenated file, the
// per-segment files in order, and the measured total length.
type Track struct {
	Path     string
	Segments []narrate.Segment
	Total    float64
}

// Synthesizer turns a narration script into per-segment MP3 files and one
// concatenated track, measuring each segment's real spoken duration.
type Synthesizer struct {
	tts      ai.Speech
	runner   Runner
	voice    string
	retryCfg retry.Config
}

// NewSynthesizer creates a Synthesizer speaking with the given voice. A nil
// runner uses the local ffmpeg and ffprobe binaries.
func NewSynthesizer(tts ai.Speech, voice string, runner Runner) *Synthesizer {
	if runner == nil {
		runner = execRunner{}
	}
	return &Synthesizer{
		tts:      tts,
		voice:    voice,
		runner:   runner,
		retryCfg: retry.Config{MaxAttempts: 3, Delay: 2 * time.Second, Backoff: true},
	}
}

// Synthesize speaks every segment into dir, fills in the measured durations,
// and concatenates the pieces into one track. Synthesis failures are retried
// three times and then fatal for the run; probe failures fall back to a fixed
// duration estimate.
func (s *Synthesizer) Synthesize(ctx context.Context, segments []narrate.Segment, dir, prefix string) (*Track, error) {
	if len(segments) == 0 {
		return nil, fmt.Errorf("no narration segments to synthesize")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("creating audio dir: %w", err)
	}

	paths := make([]string, len(segments))
	var total float64

	for i := range segments {
		path := filepath.Join(dir, fmt.Sprintf("%s_seg_%02d.mp3", prefix, i))
		text := segments[i].Text

		err := retry.WithRetry(ctx, s.retryCfg, func() error {
			return s.tts.Synthesize(ctx, text, s.voice, path)
		})
		if err != nil {
			return nil, fmt.Errorf("synthesizing segment %d: %w", i, err)
		}

		duration, err := s.probeDuration(ctx, path)
		if err != nil {
			log.Printf("Could not measure segment %d, assuming %.1fs: %v", i, fallbackDuration, err)
			duration = fallbackDuration
		}
		segments[i].Duration = duration
		paths[i] = path
		total += duration
		log.Printf("Synthesized segment %d/%d (%s): %.2fs", i+1, len(segments), segments[i].Type, duration)
	}

	finalPath := filepath.Join(dir, prefix+"_audio.mp3")
	if err := s.concat(ctx, paths, dir, prefix, finalPath); err != nil {
		return nil, fmt.Errorf("concatenating audio: %w", err)
	}

	log.Printf("Audio track ready: %s (%.1fs)", finalPath, total)
	return &Track{Path: finalPath, Segments: segments, Total: total}, nil
}

func (s *Synthesizer) probeDuration(ctx context.Context, path string) (float64, error) {
	out, err := s.runner.Output(ctx, "ffprobe",
		"-v", "error",
		"-show_entries", "format=duration",
		"-of", "default=noprint_wrappers=1:nokey=1",
		path,
	)
	if err != nil {
		return 0, err
	}
	text := strings.TrimSpace(string(out))
	if text == "" {
		return 0, fmt.Errorf("empty ffprobe output")
	}
	return strconv.ParseFloat(text, 64)
}

func (s *Synthesizer) concat(ctx context.Context, paths []string, dir, prefix, outPath string) error {
	var lines []string
	for _, p := range paths {
		lines = append(lines, fmt.Sprintf("file '%s'", p))
	}
	listPath := filepath.Join(dir, prefix+"_concat.txt")
	if err := os.WriteFile(listPath, []byte(strings.Join(lines, "\n")+"\n"), 0o644); err != nil {
		return err
	}

	return s.runner.Run(ctx, "ffmpeg", "-y",
		"-f", "concat",
		"-safe", "0",
		"-i", listPath,
		"-c", "copy",
		outPath,
	)
}
