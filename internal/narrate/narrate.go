package narrate

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/newsreel/newsreel/internal/ai"
	"github.com/newsreel/newsreel/internal/feed"
)

// SegmentType tells the assembly planner how to source images for a segment.
type SegmentType string

const (
	SegmentIntro SegmentType = "intro"
	SegmentStory SegmentType = "story"
	SegmentOutro SegmentType = "outro"
)

// Style selects the narration register: terse for vertical shorts, fuller
// for the horizontal long-form cut.
type Style string

const (
	StyleShort Style = "short"
	StyleLong  Style = "long"
)

// Segment is one narrated span of the video. StoryIndex is -1 for intro and
// outro; Duration is filled in after speech synthesis.
type Segment struct {
	Text       string
	Type       SegmentType
	StoryIndex int
	Duration   float64
}

const scriptPrompt = `You are writing the narration script for an automated %s news video dated %s.

Stories:
%s

Write the full script as segments: one intro (a one-sentence greeting that mentions the date), one segment per story in the order given (%s, professional news-anchor tone, no opinions), and one outro (a one-sentence sign-off).

Respond with ONLY this JSON array, one object per segment:
[
    {"type": "intro", "story": -1, "text": "..."},
    {"type": "story", "story": 0, "text": "..."},
    {"type": "story", "story": 1, "text": "..."},
    {"type": "outro", "story": -1, "text": "..."}
]`

const breakingPrompt = `You are writing the narration script for an automated breaking-news video dated %s.

Story: %s
Summary: %s
Details:
%s

Write the full script as segments: one intro announcing breaking news, three story segments covering different aspects in order (what happened; key details and numbers; response and what comes next), each 35-50 spoken words, professional news-anchor tone, and one outro promising further updates.

Respond with ONLY this JSON array, one object per segment:
[
    {"type": "intro", "story": -1, "text": "..."},
    {"type": "story", "story": 0, "text": "..."},
    {"type": "story", "story": 0, "text": "..."},
    {"type": "story", "story": 0, "text": "..."},
    {"type": "outro", "story": -1, "text": "..."}
]`

// Narrator turns selected stories into a segmented narration script.
type Narrator struct {
	chat ai.Chat
}

// NewNarrator creates a Narrator backed by the given chat client.
func NewNarrator(chat ai.Chat) *Narrator {
	return &Narrator{chat: chat}
}

// Narrate produces the segment script for a set of stories. Model failures
// and malformed responses fall back to a deterministic template script, so
// a run never dies on narration formatting.
func (n *Narrator) Narrate(ctx context.Context, articles []feed.Article, style Style, now time.Time) []Segment {
	prompt := fmt.Sprintf(scriptPrompt,
		styleName(style),
		now.Format("January 2, 2006"),
		storyList(articles),
		wordTarget(style),
	)

	responseText, err := n.chat.Generate(ctx, prompt, 256+160*len(articles))
	if err != nil {
		log.Printf("Narration generation failed, using template script: %v", err)
		return templateScript(articles, style, now)
	}

	segments := scriptFromJSON(ai.ParseJSONArray(responseText), len(articles), false)
	if segments == nil {
		log.Println("Narration response malformed, using template script")
		return templateScript(articles, style, now)
	}
	return segments
}

// NarrateBreaking produces a deep-dive script for a single confirmed story:
// intro, three aspect segments all mapped to story 0, outro. detailText may
// be empty when the page fetch yielded nothing.
func (n *Narrator) NarrateBreaking(ctx context.Context, article feed.Article, detailText string, now time.Time) []Segment {
	prompt := fmt.Sprintf(breakingPrompt,
		now.Format("January 2, 2006"),
		article.Title,
		article.Description,
		clipRunes(detailText, 2000),
	)

	responseText, err := n.chat.Generate(ctx, prompt, 900)
	if err != nil {
		log.Printf("Breaking narration failed, using template script: %v", err)
		return breakingTemplate(article, detailText)
	}

	segments := scriptFromJSON(ai.ParseJSONArray(responseText), 3, true)
	if segments == nil {
		log.Println("Breaking narration malformed, using template script")
		return breakingTemplate(article, detailText)
	}
	return segments
}

// scriptFromJSON validates a parsed response into a segment list: intro
// first, outro last, exactly wantStories story segments. Story indexes must
// count up from zero, or all be zero for a single-story deep dive. Any
// violation rejects the whole response.
func scriptFromJSON(arr []any, wantStories int, singleStory bool) []Segment {
	if arr == nil {
		return nil
	}

	var segments []Segment
	stories := 0
	for _, el := range arr {
		obj, ok := el.(map[string]any)
		if !ok {
			return nil
		}
		text := strings.TrimSpace(ai.StringField(obj, "text", ""))
		if text == "" {
			return nil
		}

		switch ai.StringField(obj, "type", "") {
		case "intro":
			segments = append(segments, Segment{Text: text, Type: SegmentIntro, StoryIndex: -1})
		case "outro":
			segments = append(segments, Segment{Text: text, Type: SegmentOutro, StoryIndex: -1})
		case "story":
			want := stories
			if singleStory {
				want = 0
			}
			if intField(obj, "story", -1) != want {
				return nil
			}
			segments = append(segments, Segment{Text: text, Type: SegmentStory, StoryIndex: want})
			stories++
		default:
			return nil
		}
	}

	if stories != wantStories || len(segments) != wantStories+2 {
		return nil
	}
	if segments[0].Type != SegmentIntro || segments[len(segments)-1].Type != SegmentOutro {
		return nil
	}
	return segments
}

// templateScript is the deterministic fallback: fixed greetings and each
// story narrated from its own title and first description sentence.
func templateScript(articles []feed.Article, style Style, now time.Time) []Segment {
	intro := fmt.Sprintf("Here is today's top news for %s.", now.Format("January 2"))
	if style == StyleLong {
		intro = fmt.Sprintf("Welcome to this week's global news roundup for %s. Here are the top stories from around the world.", now.Format("January 2"))
	}

	segments := []Segment{{Text: intro, Type: SegmentIntro, StoryIndex: -1}}
	for i, a := range articles {
		segments = append(segments, Segment{
			Text:       storyLine(a),
			Type:       SegmentStory,
			StoryIndex: i,
		})
	}
	segments = append(segments, Segment{
		Text:       "Stay informed. See you next time.",
		Type:       SegmentOutro,
		StoryIndex: -1,
	})
	return segments
}

func breakingTemplate(article feed.Article, detailText string) []Segment {
	detail := firstSentence(detailText)
	if detail == "" {
		detail = "Details are still emerging."
	}
	return []Segment{
		{Text: "We begin with breaking news.", Type: SegmentIntro, StoryIndex: -1},
		{Text: storyLine(article), Type: SegmentStory, StoryIndex: 0},
		{Text: detail, Type: SegmentStory, StoryIndex: 0},
		{Text: "Multiple outlets are reporting on this developing story.", Type: SegmentStory, StoryIndex: 0},
		{Text: "Stay tuned for further updates.", Type: SegmentOutro, StoryIndex: -1},
	}
}

func storyLine(a feed.Article) string {
	sentence := firstSentence(a.Description)
	if sentence == "" {
		return a.Title + "."
	}
	return a.Title + ". " + sentence
}

func storyList(articles []feed.Article) string {
	var lines []string
	for i, a := range articles {
		lines = append(lines, fmt.Sprintf("%d. %s: %s", i, a.Title, clipRunes(a.Description, 150)))
	}
	return strings.Join(lines, "\n")
}

// firstSentence returns the first sentence of text, capped at 150 runes.
func firstSentence(text string) string {
	text = strings.TrimSpace(text)
	if text == "" {
		return ""
	}
	if idx := strings.Index(text, ". "); idx > 0 {
		text = text[:idx+1]
	}
	text = clipRunes(text, 150)
	if !strings.HasSuffix(text, ".") {
		text += "."
	}
	return text
}

func clipRunes(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n])
}

func styleName(style Style) string {
	if style == StyleLong {
		return "weekly long-form"
	}
	return "daily short-form"
}

func wordTarget(style Style) string {
	if style == StyleLong {
		return "45-60 spoken words each"
	}
	return "25-35 spoken words each"
}

func intField(m map[string]any, key string, fallback int) int {
	if v, ok := m[key]; ok {
		switch n := v.(type) {
		case float64:
			return int(n)
		case json.Number:
			if i, err := n.Int64(); err == nil {
				return int(i)
			}
		}
	}
	return fallback
}
