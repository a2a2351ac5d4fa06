// Package publish builds upload metadata for finished videos: titles,
// descriptions with story links, tags and the scheduled publish time.
// Times are computed in KST because the channel's audience peaks there.
package publish

import (
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/newsreel/newsreel/internal/feed"
)

// KST is UTC+9 with no daylight saving.
var KST = time.FixedZone("KST", 9*60*60)

const (
	maxTitleRunes       = 100
	maxDescriptionRunes = 5000
)

const hashtagLine = "#news #AI #globalNews #worldnews #breakingnews"

// Metadata is everything the upload step needs besides the video file.
// PublishAt is the scheduled go-live time; uploads stay private until then.
type Metadata struct {
	Title       string
	Description string
	Tags        []string
	PublishAt   time.Time
	Privacy     string
}

// Daily builds metadata for the daily shorts video.
func Daily(articles []feed.Article, now time.Time) Metadata {
	title := fmt.Sprintf("Today's Top News - %s #shorts", now.In(KST).Format("Jan 02"))
	return Metadata{
		Title:       clipRunes(title, maxTitleRunes),
		Description: buildDescription("Today's Stories:", articles, ""),
		Tags:        []string{"news", "shorts", "daily news", "world news", "AI news"},
		PublishAt:   DailyPublishTime(now),
		Privacy:     "private",
	}
}

// Weekly builds metadata for the long-form weekly roundup.
func Weekly(articles []feed.Article, now time.Time) Metadata {
	title := fmt.Sprintf("Global News Today %s | AI News Roundup", now.In(KST).Format("20060102"))
	return Metadata{
		Title:       clipRunes(title, maxTitleRunes),
		Description: buildDescription("This Week's Stories:", articles, ""),
		Tags:        []string{"news", "weekly news", "news roundup", "world news", "AI news"},
		PublishAt:   WeeklyPublishTime(now),
		Privacy:     "private",
	}
}

// Breaking builds metadata for a confirmed breaking story. sources are the
// distinct outlets that corroborated it, shown in the description.
func Breaking(article feed.Article, sources []string, now time.Time) Metadata {
	title := fmt.Sprintf("BREAKING: %s #shorts", article.Title)
	extra := ""
	if len(sources) > 0 {
		extra = fmt.Sprintf("Corroborated by %d sources: %s", len(sources), strings.Join(sources, ", "))
	}
	return Metadata{
		Title:       clipRunes(title, maxTitleRunes),
		Description: buildDescription("Developing story:", []feed.Article{article}, extra),
		Tags:        []string{"breaking news", "news", "alert", "world news"},
		PublishAt:   BreakingPublishTime(now),
		Privacy:     "private",
	}
}

// buildDescription numbers each story with its link, appends an optional
// extra line before the footer and clips the whole thing to the platform
// limit.
func buildDescription(heading string, articles []feed.Article, extra string) string {
	var stories []string
	for i, a := range articles {
		if a.Link != "" {
			stories = append(stories, fmt.Sprintf("%d. %s\n%s", i+1, a.Title, a.Link))
		} else {
			stories = append(stories, fmt.Sprintf("%d. %s", i+1, a.Title))
		}
	}

	var b strings.Builder
	b.WriteString("Global News Today | AI Generated\n\n")
	b.WriteString(heading + "\n\n")
	b.WriteString(strings.Join(stories, "\n\n"))
	b.WriteString("\n\n")
	if extra != "" {
		b.WriteString(extra + "\n\n")
	}
	b.WriteString("---\nGenerated with AI (DALL-E + OpenAI TTS)\n\n")
	b.WriteString(hashtagLine + "\n")
	return clipRunes(b.String(), maxDescriptionRunes)
}

// DailyPublishTime returns today 22:00 KST, or tomorrow when that has
// already passed.
func DailyPublishTime(now time.Time) time.Time {
	now = now.In(KST)
	at := time.Date(now.Year(), now.Month(), now.Day(), 22, 0, 0, 0, KST)
	if now.Hour() >= 22 {
		at = at.AddDate(0, 0, 1)
	}
	return at
}

// WeeklyPublishTime returns the next Sunday 12:00 KST. A Sunday morning run
// publishes the same day.
func WeeklyPublishTime(now time.Time) time.Time {
	now = now.In(KST)
	days := (int(time.Sunday) - int(now.Weekday()) + 7) % 7
	at := time.Date(now.Year(), now.Month(), now.Day(), 12, 0, 0, 0, KST).AddDate(0, 0, days)
	if !at.After(now) {
		at = at.AddDate(0, 0, 7)
	}
	return at
}

// BreakingPublishTime schedules five minutes out so the upload finishes
// processing before going live.
func BreakingPublishTime(now time.Time) time.Time {
	return now.In(KST).Add(5 * time.Minute)
}

// RotateVoice picks the narration voice for the ISO week of now, cycling
// through voices week by week. An empty list returns "".
func RotateVoice(voices []string, now time.Time) string {
	if len(voices) == 0 {
		return ""
	}
	_, week := now.ISOWeek()
	return voices[week%len(voices)]
}

func clipRunes(s string, max int) string {
	if utf8.RuneCountInString(s) <= max {
		return s
	}
	runes := []rune(s)
	return string(runes[:max])
}
