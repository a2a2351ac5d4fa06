package render

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/newsreel/newsreel/internal/assemble"
	"github.com/newsreel/newsreel/internal/imagegen"
)

// Runner executes external commands. The default shells out; tests substitute
// a recorder so no ffmpeg binary is needed.
type Runner interface {
	Run(ctx context.Context, name string, args ...string) error
}

type execRunner struct{}

func (execRunner) Run(ctx context.Context, name string, args ...string) error {
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	return cmd.Run()
}

// Renderer drives ffmpeg to turn an edit script into a finished video.
type Renderer struct {
	runner Runner
}

// NewRenderer creates a Renderer. A nil runner uses the local ffmpeg binary.
func NewRenderer(runner Runner) *Renderer {
	if runner == nil {
		runner = execRunner{}
	}
	return &Renderer{runner: runner}
}

// Resolution returns the output pixel size for the orientation.
func Resolution(o imagegen.Orientation) (width, height int) {
	if o == imagegen.Horizontal {
		return 1920, 1080
	}
	return 1080, 1920
}

// Render encodes the edit script and its audio track into outPath in one
// pass. The output is hard-trimmed to the script's computed total, so the
// visual length can never drift past the audio.
func (r *Renderer) Render(ctx context.Context, script *assemble.EditScript, o imagegen.Orientation, outPath string) error {
	if len(script.Entries) == 0 {
		return fmt.Errorf("edit script has no entries")
	}

	listPath := strings.TrimSuffix(outPath, filepath.Ext(outPath)) + "_concat.txt"
	if err := writeConcatList(listPath, script.Entries); err != nil {
		return fmt.Errorf("writing concat list: %w", err)
	}
	defer os.Remove(listPath)

	w, h := Resolution(o)
	err := r.runner.Run(ctx, "ffmpeg", "-y",
		"-f", "concat",
		"-safe", "0",
		"-i", listPath,
		"-i", script.Audio,
		"-c:v", "libx264",
		"-vf", fmt.Sprintf("scale=%d:%d,setsar=1:1", w, h),
		"-c:a", "aac",
		"-b:a", "192k",
		"-t", fmt.Sprintf("%.3f", script.Total),
		"-pix_fmt", "yuv420p",
		"-r", "30",
		"-movflags", "+faststart",
		outPath,
	)
	if err != nil {
		return fmt.Errorf("ffmpeg render: %w", err)
	}

	log.Printf("Rendered %s (%.1fs, %d entries)", outPath, script.Total, len(script.Entries))
	return nil
}

// writeConcatList emits the concat-demuxer list: a file line and a duration
// line per entry, with the final file repeated so the demuxer honors the
// last duration.
func writeConcatList(path string, entries []assemble.Entry) error {
	var b strings.Builder
	for _, e := range entries {
		fmt.Fprintf(&b, "file '%s'\n", absPath(e.Image))
		fmt.Fprintf(&b, "duration %.6f\n", e.Duration)
	}
	fmt.Fprintf(&b, "file '%s'\n", absPath(entries[len(entries)-1].Image))
	return os.WriteFile(path, []byte(b.String()), 0o644)
}

func absPath(p string) string {
	abs, err := filepath.Abs(p)
	if err != nil {
		return p
	}
	return filepath.ToSlash(abs)
}

// BurnSubtitles re-encodes the video with the subtitle track burned in.
// Used for the vertical cut, where platform players hide sidecar tracks.
func (r *Renderer) BurnSubtitles(ctx context.Context, videoPath, srtPath, outPath string) error {
	style := "FontName=Arial," +
		"FontSize=14," +
		"PrimaryColour=&HFFFFFF," +
		"OutlineColour=&H000000," +
		"BorderStyle=3," +
		"Outline=2," +
		"Shadow=0," +
		"Alignment=2," +
		"Bold=1"
	filter := fmt.Sprintf("subtitles='%s':force_style='%s'", filepath.ToSlash(srtPath), style)

	err := r.runner.Run(ctx, "ffmpeg", "-y",
		"-i", videoPath,
		"-vf", filter,
		"-c:v", "libx264",
		"-c:a", "copy",
		"-movflags", "+faststart",
		outPath,
	)
	if err != nil {
		return fmt.Errorf("ffmpeg subtitle burn: %w", err)
	}
	return nil
}

// Thumbnail writes a JPEG thumbnail: the given frame scaled to the target
// resolution with the title drawn across the lower third.
func (r *Renderer) Thumbnail(ctx context.Context, imagePath, title string, o imagegen.Orientation, outPath string) error {
	w, h := Resolution(o)
	filter := fmt.Sprintf(
		"scale=%d:%d:force_original_aspect_ratio=increase,crop=%d:%d,"+
			"drawtext=text='%s':fontcolor=white:fontsize=%d:box=1:boxcolor=black@0.6:boxborderw=24:x=(w-text_w)/2:y=h-h/4",
		w, h, w, h,
		escapeDrawtext(title), h/16,
	)

	err := r.runner.Run(ctx, "ffmpeg", "-y",
		"-i", imagePath,
		"-vf", filter,
		"-frames:v", "1",
		"-q:v", "2",
		outPath,
	)
	if err != nil {
		return fmt.Errorf("ffmpeg thumbnail: %w", err)
	}
	return nil
}

// escapeDrawtext quotes the characters the drawtext filter treats specially.
func escapeDrawtext(s string) string {
	replacer := strings.NewReplacer(
		`\`, `\\`,
		`'`, `\'`,
		`:`, `\:`,
		`%`, `\%`,
	)
	return replacer.Replace(s)
}
