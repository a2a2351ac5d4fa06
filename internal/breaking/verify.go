package breaking

import (
	"context"
	"fmt"
	"log"
	"strings"

	"github.com/newsreel/newsreel/internal/ai"
	"github.com/newsreel/newsreel/internal/feed"
)

const verifyPrompt = `You are verifying a breaking-news detection for an automated news channel.

Multiple outlets published similar headlines. Decide whether they describe ONE real, current breaking-news event, or whether the grouping is a coincidence (shared keywords, recurring coverage of an old story, opinion pieces, promotional content).

Lead headline: %s
Description: %s
Corroborating outlets: %d

All grouped headlines:
%s

Respond with ONLY this JSON:
{
    "verdict": "confirm" or "reject",
    "reason": "One sentence explaining your verdict"
}`

const maxVerifyHeadlines = 8

// AIVerifier asks the chat model whether a corroborated group is one
// coherent breaking story.
type AIVerifier struct {
	chat ai.Chat
}

// NewAIVerifier creates a verifier backed by the given chat client.
func NewAIVerifier(chat ai.Chat) *AIVerifier {
	return &AIVerifier{chat: chat}
}

// Verify returns true when the model confirms the grouping. An unparseable
// response counts as confirmation, since corroboration already passed.
func (v *AIVerifier) Verify(ctx context.Context, c *Candidate) (bool, error) {
	prompt := fmt.Sprintf(verifyPrompt,
		c.Article.Title,
		clipText(c.Article.Description, 300),
		len(c.Sources),
		headlineList(c.Members),
	)

	responseText, err := v.chat.Generate(ctx, prompt, 256)
	if err != nil {
		return false, err
	}

	parsed := ai.ParseJSONResponse(responseText)
	if parsed == nil {
		log.Println("Verifier response could not be parsed, confirming on corroboration")
		return true, nil
	}

	verdict := strings.ToLower(ai.StringField(parsed, "verdict", "confirm"))
	if verdict == "reject" {
		if reason := ai.StringField(parsed, "reason", ""); reason != "" {
			log.Printf("Verifier rejected: %s", reason)
		}
		return false, nil
	}
	return true, nil
}

func headlineList(members []feed.Article) string {
	var lines []string
	for i, m := range members {
		if i >= maxVerifyHeadlines {
			lines = append(lines, fmt.Sprintf("... and %d more", len(members)-maxVerifyHeadlines))
			break
		}
		lines = append(lines, fmt.Sprintf("- [%s] %s", m.Source, m.Title))
	}
	return strings.Join(lines, "\n")
}

func clipText(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n]) + "..."
}
