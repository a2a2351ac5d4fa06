package imagegen

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"

	"github.com/newsreel/newsreel/internal/ai"
	"github.com/newsreel/newsreel/internal/feed"
)

// Orientation selects the target aspect ratio and how many images each
// story receives.
type Orientation string

const (
	Vertical   Orientation = "vertical"
	Horizontal Orientation = "horizontal"
)

// Size returns the image-generation size for the orientation.
func (o Orientation) Size() string {
	if o == Horizontal {
		return "1792x1024"
	}
	return "1024x1792"
}

// PerStory returns the default image count per story. The vertical cut is
// paced faster, so it carries fewer frames per story.
func (o Orientation) PerStory() int {
	if o == Horizontal {
		return 3
	}
	return 2
}

// Pool maps story index to that story's ordered image paths.
type Pool struct {
	byStory map[int][]string
}

// NewPool creates an empty image pool.
func NewPool() *Pool {
	return &Pool{byStory: make(map[int][]string)}
}

// Add appends an image to a story's list.
func (p *Pool) Add(story int, path string) {
	p.byStory[story] = append(p.byStory[story], path)
}

// Images returns a story's image paths in generation order.
func (p *Pool) Images(story int) []string {
	return p.byStory[story]
}

// Has reports whether the story has at least one image.
func (p *Pool) Has(story int) bool {
	return len(p.byStory[story]) > 0
}

// MaxStory returns the highest story index present, or -1 for an empty pool.
func (p *Pool) MaxStory() int {
	max := -1
	for k := range p.byStory {
		if k > max {
			max = k
		}
	}
	return max
}

// Size returns the total number of images across all stories.
func (p *Pool) Size() int {
	n := 0
	for _, imgs := range p.byStory {
		n += len(imgs)
	}
	return n
}

const promptRequest = `Create %d image-generation prompts for news photos illustrating this story.
Format: %s

MANDATORY STYLE:
- Professional news photography, shot with a DSLR camera
- Real-world scene, NOT illustration, NOT digital art, NOT 3D render
- Natural lighting, shallow depth of field, photojournalism style
- Show real objects, locations, or scenes (no abstract concepts)

RULES:
- No human faces or identifiable people
- No text, logos, or watermarks
- Under 80 words each
- Start each prompt with "Professional news photograph of..."

Story: %s
%s

Output one prompt per line, no numbering.`

// neutralPrompt replaces a prompt the image provider refused. It stays
// content-free so it cannot itself be refused for the same reason.
const neutralPrompt = "Professional news photograph of a broadcast newsroom with world-map screens and empty anchor desks, %s, natural lighting, photojournalism style, no people, no text"

// Generator produces per-story image pools, walking a candidate list so
// stories whose images cannot be generated are replaced by backups.
type Generator struct {
	chat   ai.Chat
	images ai.Images
}

// NewGenerator creates a Generator. chat may be nil; prompt generation then
// always uses the deterministic fallback.
func NewGenerator(chat ai.Chat, images ai.Images) *Generator {
	return &Generator{chat: chat, images: images}
}

// GeneratePools walks candidates in order until want stories have images,
// skipping stories whose generation failed outright. Kept stories are
// re-indexed 0..n-1 in the returned article list, so the pool, narration,
// and assembly all agree on story numbering. Dropped articles are returned
// for accounting; they are already consumed from the used set.
func (g *Generator) GeneratePools(ctx context.Context, candidates []feed.Article, want int, o Orientation, dir, prefix string) (*Pool, []feed.Article, []feed.Article) {
	pool := NewPool()
	var kept, dropped []feed.Article

	if err := os.MkdirAll(dir, 0o755); err != nil {
		log.Printf("Creating image dir: %v", err)
		return pool, kept, candidates
	}

	for _, article := range candidates {
		if len(kept) >= want {
			break
		}
		story := len(kept)

		paths, err := g.generateStory(ctx, article, story, o, dir, prefix)
		if err != nil {
			log.Printf("Dropping story %q: %v", article.Title, err)
			dropped = append(dropped, article)
			continue
		}
		for _, p := range paths {
			pool.Add(story, p)
		}
		kept = append(kept, article)
	}

	if len(kept) < want {
		log.Printf("Only %d of %d stories have images (%d dropped)", len(kept), want, len(dropped))
	}
	return pool, kept, dropped
}

// ErrStoryDropped reports that a story produced no usable image at all.
var ErrStoryDropped = errors.New("no image could be generated for story")

// generateStory renders the story's images. A refused prompt gets one
// neutral replacement; a refused replacement abandons the story. Other
// per-image failures are logged, and the story survives on a partial set.
func (g *Generator) generateStory(ctx context.Context, article feed.Article, story int, o Orientation, dir, prefix string) ([]string, error) {
	prompts := g.generatePrompts(ctx, article, o.PerStory(), o)

	var paths []string
	for j, prompt := range prompts {
		outPath := filepath.Join(dir, fmt.Sprintf("%s_story_%d_%d.png", prefix, story+1, j+1))

		err := g.images.Render(ctx, prompt, o.Size(), outPath)
		if errors.Is(err, ai.ErrPolicyViolation) {
			log.Printf("Prompt refused for story %d image %d, using neutral replacement", story, j+1)
			err = g.images.Render(ctx, fmt.Sprintf(neutralPrompt, orientDesc(o)), o.Size(), outPath)
			if errors.Is(err, ai.ErrPolicyViolation) {
				return nil, fmt.Errorf("%w: replacement prompt also refused", ErrStoryDropped)
			}
		}
		if err != nil {
			log.Printf("Image %d for story %d failed: %v", j+1, story, err)
			continue
		}
		paths = append(paths, outPath)
	}

	if len(paths) == 0 {
		return nil, ErrStoryDropped
	}
	return paths, nil
}

// generatePrompts asks the chat model for one prompt per image, padding or
// falling back to a deterministic prompt when the model cannot deliver.
func (g *Generator) generatePrompts(ctx context.Context, article feed.Article, count int, o Orientation) []string {
	fallback := fmt.Sprintf("Professional news photograph, %s, photojournalism style: %s",
		orientDesc(o), clipRunes(article.Title, 50))

	if g.chat == nil {
		return repeat(fallback, count)
	}

	request := fmt.Sprintf(promptRequest, count, orientDesc(o), article.Title, clipRunes(article.Description, 200))
	responseText, err := g.chat.Generate(ctx, request, 500)
	if err != nil {
		log.Printf("Prompt generation failed, using fallback prompts: %v", err)
		return repeat(fallback, count)
	}

	var prompts []string
	for _, line := range strings.Split(responseText, "\n") {
		line = strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(line), "- "))
		if line == "" {
			continue
		}
		prompts = append(prompts, line)
		if len(prompts) == count {
			break
		}
	}
	for len(prompts) < count {
		prompts = append(prompts, fallback)
	}
	return prompts
}

func orientDesc(o Orientation) string {
	if o == Horizontal {
		return "horizontal landscape 16:9"
	}
	return "vertical portrait 9:16"
}

func repeat(s string, n int) []string {
	out := make([]string, n)
	for i := range out {
		out[i] = s
	}
	return out
}

func clipRunes(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n])
}
