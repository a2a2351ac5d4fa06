// Package subtitle builds SRT subtitle files from narration segments and
// their measured audio durations. Long segments are split into sentence
// chunks whose screen time is allocated by character share, so cues track
// the spoken audio without per-word alignment.
package subtitle

import (
	"context"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/newsreel/newsreel/internal/ai"
	"github.com/newsreel/newsreel/internal/narrate"
)

var languageNames = map[string]string{
	"en": "English",
	"ko": "Korean",
	"ja": "Japanese",
	"zh": "Chinese",
	"es": "Spanish",
}

// Cue is a single subtitle entry with times in seconds from video start.
type Cue struct {
	Start float64
	End   float64
	Text  string
}

var sentenceBreak = regexp.MustCompile(`([.!?]+)\s+`)

// BuildCues converts narrated segments into timed cues. Each segment owns
// the window [offset, offset+duration) given by its measured duration;
// within that window every sentence gets time proportional to its rune
// count. Segments with no text or no duration advance the clock but emit
// no cue.
func BuildCues(segments []narrate.Segment) []Cue {
	var cues []Cue
	clock := 0.0
	for _, seg := range segments {
		start := clock
		end := clock + seg.Duration
		clock = end

		text := strings.TrimSpace(seg.Text)
		if text == "" || seg.Duration <= 0 {
			continue
		}

		chunks := splitSentences(text)
		total := 0
		for _, c := range chunks {
			total += utf8.RuneCountInString(c)
		}
		if total == 0 {
			continue
		}

		pos := start
		for i, c := range chunks {
			cueEnd := pos + seg.Duration*float64(utf8.RuneCountInString(c))/float64(total)
			if i == len(chunks)-1 {
				cueEnd = end
			}
			cues = append(cues, Cue{Start: pos, End: cueEnd, Text: c})
			pos = cueEnd
		}
	}
	return cues
}

// splitSentences cuts text at terminal punctuation followed by whitespace,
// keeping the punctuation with its sentence.
func splitSentences(text string) []string {
	var out []string
	prev := 0
	for _, m := range sentenceBreak.FindAllStringSubmatchIndex(text, -1) {
		chunk := strings.TrimSpace(text[prev:m[3]])
		if chunk != "" {
			out = append(out, chunk)
		}
		prev = m[1]
	}
	if rest := strings.TrimSpace(text[prev:]); rest != "" {
		out = append(out, rest)
	}
	if len(out) == 0 {
		out = append(out, strings.TrimSpace(text))
	}
	return out
}

// FormatSRT renders cues as SRT text: a 1-based index, a timing line and
// the cue text, each entry terminated by a blank line.
func FormatSRT(cues []Cue) string {
	var b strings.Builder
	for i, c := range cues {
		fmt.Fprintf(&b, "%d\n%s --> %s\n%s\n\n", i+1, formatTimestamp(c.Start), formatTimestamp(c.End), c.Text)
	}
	return b.String()
}

// formatTimestamp converts seconds to the SRT HH:MM:SS,mmm form.
func formatTimestamp(seconds float64) string {
	if seconds < 0 {
		seconds = 0
	}
	hours := int(seconds) / 3600
	minutes := (int(seconds) % 3600) / 60
	secs := int(seconds) % 60
	millis := int((seconds - float64(int(seconds))) * 1000)
	return fmt.Sprintf("%02d:%02d:%02d,%03d", hours, minutes, secs, millis)
}

const translatePrompt = `Translate to %s for video subtitles.
RULES:
- Translate each numbered line
- Keep the same numbering (1. 2. 3. ...)
- Output EXACTLY %d numbered lines
- Do NOT merge or skip any line
- Keep translations concise

%s`

var numberedLine = regexp.MustCompile(`^\d+\.\s*(.+)$`)

// Translator produces translated cue sets with identical timing.
type Translator struct {
	chat ai.Chat
}

func NewTranslator(chat ai.Chat) *Translator {
	return &Translator{chat: chat}
}

// Translate returns a copy of cues with texts translated into lang. The
// model sees one numbered line per cue and must answer with the same
// numbering; short answers are padded with the original English text and
// long answers truncated. Any request failure keeps the English cues.
func (t *Translator) Translate(ctx context.Context, cues []Cue, lang string) []Cue {
	out := make([]Cue, len(cues))
	copy(out, cues)
	if len(cues) == 0 || t.chat == nil {
		return out
	}

	name, ok := languageNames[lang]
	if !ok {
		name = lang
	}

	var numbered []string
	for i, c := range cues {
		numbered = append(numbered, fmt.Sprintf("%d. %s", i+1, c.Text))
	}
	prompt := fmt.Sprintf(translatePrompt, name, len(cues), strings.Join(numbered, "\n"))

	resp, err := t.chat.Generate(ctx, prompt, 2000)
	if err != nil {
		log.Printf("subtitle: %s translation failed, keeping English: %v", lang, err)
		return out
	}

	texts := parseNumberedLines(resp)
	if len(texts) > len(cues) {
		texts = texts[:len(cues)]
	}
	for i, text := range texts {
		out[i].Text = text
	}
	return out
}

// parseNumberedLines extracts the text of each non-blank response line,
// stripping a leading "N. " where present.
func parseNumberedLines(resp string) []string {
	var texts []string
	for _, line := range strings.Split(resp, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		if m := numberedLine.FindStringSubmatch(line); m != nil {
			texts = append(texts, m[1])
		} else {
			texts = append(texts, line)
		}
	}
	return texts
}

// Generator writes the full subtitle set for a rendered video.
type Generator struct {
	translator *Translator
}

func NewGenerator(chat ai.Chat) *Generator {
	return &Generator{translator: NewTranslator(chat)}
}

// Generate writes an English SRT plus one file per requested language and
// returns a language to path map. Translation falls back to English per
// language rather than failing the set; only cue building and file I/O
// can return an error.
func (g *Generator) Generate(ctx context.Context, segments []narrate.Segment, langs []string, dir, prefix string) (map[string]string, error) {
	cues := BuildCues(segments)
	if len(cues) == 0 {
		return nil, fmt.Errorf("no subtitle cues from %d segments", len(segments))
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("creating subtitle dir: %w", err)
	}

	files := make(map[string]string)
	write := func(lang string, set []Cue) error {
		path := filepath.Join(dir, fmt.Sprintf("%s_subtitles_%s.srt", prefix, lang))
		if err := os.WriteFile(path, []byte(FormatSRT(set)), 0o644); err != nil {
			return fmt.Errorf("writing %s subtitles: %w", lang, err)
		}
		files[lang] = path
		return nil
	}

	if err := write("en", cues); err != nil {
		return nil, err
	}
	for _, lang := range langs {
		if lang == "en" {
			continue
		}
		if err := write(lang, g.translator.Translate(ctx, cues, lang)); err != nil {
			return nil, err
		}
	}
	log.Printf("subtitle: wrote %d languages for %s", len(files), prefix)
	return files, nil
}
