package subtitle

import (
	"context"
	"errors"
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/newsreel/newsreel/internal/narrate"
)

type fakeChat struct {
	response string
	err      error
	prompts  []string
}

func (f *fakeChat) Generate(ctx context.Context, prompt string, maxTokens int) (string, error) {
	f.prompts = append(f.prompts, prompt)
	if f.err != nil {
		return "", f.err
	}
	return f.response, nil
}

func almostEqual(a, b float64) bool {
	return math.Abs(a-b) < 1e-6
}

func TestBuildCuesProportionalWithinSegment(t *testing.T) {
	segments := []narrate.Segment{
		{Text: "Alpha alpha. Beta beta beta beta.", Duration: 8.0},
		{Text: "Closing line", Duration: 4.0},
	}

	cues := BuildCues(segments)
	if len(cues) != 3 {
		t.Fatalf("got %d cues, want 3", len(cues))
	}

	// 12 runes vs 20 runes split the 8s window 3.0 / 5.0.
	want := []Cue{
		{Start: 0, End: 3.0, Text: "Alpha alpha."},
		{Start: 3.0, End: 8.0, Text: "Beta beta beta beta."},
		{Start: 8.0, End: 12.0, Text: "Closing line"},
	}
	for i, w := range want {
		if cues[i].Text != w.Text {
			t.Errorf("cue %d text = %q, want %q", i, cues[i].Text, w.Text)
		}
		if !almostEqual(cues[i].Start, w.Start) || !almostEqual(cues[i].End, w.End) {
			t.Errorf("cue %d window = [%v, %v], want [%v, %v]", i, cues[i].Start, cues[i].End, w.Start, w.End)
		}
	}
}

func TestBuildCuesEmptySegmentAdvancesClock(t *testing.T) {
	segments := []narrate.Segment{
		{Text: "Hello there.", Duration: 2.0},
		{Text: "", Duration: 3.0},
		{Text: "Goodbye now.", Duration: 1.0},
	}

	cues := BuildCues(segments)
	if len(cues) != 2 {
		t.Fatalf("got %d cues, want 2", len(cues))
	}
	if !almostEqual(cues[1].Start, 5.0) || !almostEqual(cues[1].End, 6.0) {
		t.Errorf("second cue window = [%v, %v], want [5, 6]", cues[1].Start, cues[1].End)
	}
}

func TestSplitSentences(t *testing.T) {
	tests := []struct {
		text string
		want []string
	}{
		{"One. Two! Three?", []string{"One.", "Two!", "Three?"}},
		{"No terminal punctuation", []string{"No terminal punctuation"}},
		{"Wait... it is done.", []string{"Wait...", "it is done."}},
	}
	for _, tt := range tests {
		got := splitSentences(tt.text)
		if len(got) != len(tt.want) {
			t.Errorf("splitSentences(%q) = %v, want %v", tt.text, got, tt.want)
			continue
		}
		for i := range got {
			if got[i] != tt.want[i] {
				t.Errorf("splitSentences(%q)[%d] = %q, want %q", tt.text, i, got[i], tt.want[i])
			}
		}
	}
}

func TestFormatTimestamp(t *testing.T) {
	tests := []struct {
		seconds float64
		want    string
	}{
		{0, "00:00:00,000"},
		{3661.5, "01:01:01,500"},
		{90.25, "00:01:30,250"},
		{-1, "00:00:00,000"},
	}
	for _, tt := range tests {
		if got := formatTimestamp(tt.seconds); got != tt.want {
			t.Errorf("formatTimestamp(%v) = %q, want %q", tt.seconds, got, tt.want)
		}
	}
}

func TestFormatSRT(t *testing.T) {
	cues := []Cue{
		{Start: 0, End: 2.5, Text: "First line."},
		{Start: 2.5, End: 4.0, Text: "Second."},
	}
	want := "1\n00:00:00,000 --> 00:00:02,500\nFirst line.\n\n" +
		"2\n00:00:02,500 --> 00:00:04,000\nSecond.\n\n"
	if got := FormatSRT(cues); got != want {
		t.Errorf("FormatSRT = %q, want %q", got, want)
	}
}

func TestTranslateReplacesTextsKeepsTiming(t *testing.T) {
	chat := &fakeChat{response: "1. 시장이 급등했다.\n2. 내일 계속됩니다."}
	tr := NewTranslator(chat)

	cues := []Cue{
		{Start: 0, End: 3, Text: "Markets surged today."},
		{Start: 3, End: 6, Text: "More tomorrow."},
	}
	out := tr.Translate(context.Background(), cues, "ko")

	if out[0].Text != "시장이 급등했다." || out[1].Text != "내일 계속됩니다." {
		t.Errorf("translated texts = %q, %q", out[0].Text, out[1].Text)
	}
	for i := range cues {
		if !almostEqual(out[i].Start, cues[i].Start) || !almostEqual(out[i].End, cues[i].End) {
			t.Errorf("cue %d timing changed: [%v, %v]", i, out[i].Start, out[i].End)
		}
	}

	if len(chat.prompts) != 1 {
		t.Fatalf("got %d prompts, want 1", len(chat.prompts))
	}
	prompt := chat.prompts[0]
	for _, frag := range []string{"Korean", "EXACTLY 2 numbered lines", "1. Markets surged today."} {
		if !strings.Contains(prompt, frag) {
			t.Errorf("prompt missing %q", frag)
		}
	}
}

func TestTranslatePadsShortResponse(t *testing.T) {
	chat := &fakeChat{response: "1. Solo una línea"}
	tr := NewTranslator(chat)

	cues := []Cue{
		{Start: 0, End: 2, Text: "First."},
		{Start: 2, End: 4, Text: "Second."},
	}
	out := tr.Translate(context.Background(), cues, "es")

	if out[0].Text != "Solo una línea" {
		t.Errorf("first text = %q", out[0].Text)
	}
	if out[1].Text != "Second." {
		t.Errorf("short response should keep English for cue 2, got %q", out[1].Text)
	}
}

func TestTranslateTruncatesLongResponse(t *testing.T) {
	chat := &fakeChat{response: "1. Uno\n2. Dos\n3. Tres"}
	tr := NewTranslator(chat)

	cues := []Cue{
		{Start: 0, End: 2, Text: "One."},
		{Start: 2, End: 4, Text: "Two."},
	}
	out := tr.Translate(context.Background(), cues, "es")

	if len(out) != 2 {
		t.Fatalf("got %d cues, want 2", len(out))
	}
	if out[1].Text != "Dos" {
		t.Errorf("second text = %q, want %q", out[1].Text, "Dos")
	}
}

func TestTranslateKeepsEnglishOnError(t *testing.T) {
	chat := &fakeChat{err: errors.New("rate limited")}
	tr := NewTranslator(chat)

	cues := []Cue{{Start: 0, End: 2, Text: "Unchanged."}}
	out := tr.Translate(context.Background(), cues, "ja")

	if out[0].Text != "Unchanged." {
		t.Errorf("text = %q, want English fallback", out[0].Text)
	}
}

func TestTranslateAcceptsUnnumberedLines(t *testing.T) {
	chat := &fakeChat{response: "Bonjour tout le monde\n2. Deuxième ligne"}
	tr := NewTranslator(chat)

	cues := []Cue{
		{Start: 0, End: 2, Text: "Hello everyone."},
		{Start: 2, End: 4, Text: "Second line."},
	}
	out := tr.Translate(context.Background(), cues, "es")

	if out[0].Text != "Bonjour tout le monde" {
		t.Errorf("first text = %q", out[0].Text)
	}
	if out[1].Text != "Deuxième ligne" {
		t.Errorf("second text = %q", out[1].Text)
	}
}

func TestGenerateWritesAllLanguages(t *testing.T) {
	chat := &fakeChat{response: "1. 첫 문장\n2. 둘째 문장"}
	gen := NewGenerator(chat)
	dir := t.TempDir()

	segments := []narrate.Segment{
		{Text: "Top story tonight.", Duration: 3.0},
		{Text: "That is all.", Duration: 2.0},
	}

	files, err := gen.Generate(context.Background(), segments, []string{"en", "ko"}, dir, "daily_20250315")
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if len(files) != 2 {
		t.Fatalf("got %d files, want 2: %v", len(files), files)
	}

	enPath := filepath.Join(dir, "daily_20250315_subtitles_en.srt")
	if files["en"] != enPath {
		t.Errorf("en path = %q, want %q", files["en"], enPath)
	}
	data, err := os.ReadFile(enPath)
	if err != nil {
		t.Fatalf("reading english srt: %v", err)
	}
	if !strings.HasPrefix(string(data), "1\n00:00:00,000 --> ") {
		t.Errorf("english srt starts with %q", string(data)[:30])
	}

	koData, err := os.ReadFile(files["ko"])
	if err != nil {
		t.Fatalf("reading korean srt: %v", err)
	}
	if !strings.Contains(string(koData), "첫 문장") {
		t.Errorf("korean srt missing translation: %q", string(koData))
	}
}

func TestGenerateNoCues(t *testing.T) {
	gen := NewGenerator(&fakeChat{})
	if _, err := gen.Generate(context.Background(), nil, []string{"ko"}, t.TempDir(), "x"); err == nil {
		t.Fatal("expected error for empty segments")
	}
}
