package ai

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	openai "github.com/sashabaranov/go-openai"
)

// ErrPolicyViolation marks a generation request the provider refused on
// content-policy grounds. Callers are expected to fall back to a softer
// prompt or drop the story, not to retry the same request.
var ErrPolicyViolation = errors.New("content policy violation")

// Chat generates text for a prompt.
type Chat interface {
	Generate(ctx context.Context, prompt string, maxTokens int) (string, error)
}

// Speech synthesizes spoken audio for a text and writes it to outPath.
type Speech interface {
	Synthesize(ctx context.Context, text, voice, outPath string) error
}

// Images renders one image for a prompt at the given size ("WxH") and
// writes it to outPath.
type Images interface {
	Render(ctx context.Context, prompt, size, outPath string) error
}

// Models selects which provider models back each capability.
type Models struct {
	Chat  string
	TTS   string
	Image string
}

// Client implements Chat, Speech, and Images against the OpenAI API.
type Client struct {
	api        *openai.Client
	models     Models
	configured bool
}

// NewClient creates a Client. An empty API key yields a client whose
// IsConfigured reports false; calls against it fail.
func NewClient(apiKey string, models Models) *Client {
	if models.Chat == "" {
		models.Chat = openai.GPT4oMini
	}
	if models.TTS == "" {
		models.TTS = "gpt-4o-mini-tts"
	}
	if models.Image == "" {
		models.Image = openai.CreateImageModelDallE3
	}
	return &Client{
		api:        openai.NewClient(apiKey),
		models:     models,
		configured: apiKey != "",
	}
}

// IsConfigured reports whether an API key was provided.
func (c *Client) IsConfigured() bool {
	return c.configured
}

// Generate sends a prompt and returns the completion text.
func (c *Client) Generate(ctx context.Context, prompt string, maxTokens int) (string, error) {
	resp, err := c.api.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:       c.models.Chat,
		MaxTokens:   maxTokens,
		Temperature: 0.7,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleUser, Content: prompt},
		},
	})
	if err != nil {
		return "", fmt.Errorf("chat completion: %w", classifyErr(err))
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("no choices in completion response")
	}
	return resp.Choices[0].Message.Content, nil
}

// Synthesize renders text to spoken MP3 audio at outPath.
func (c *Client) Synthesize(ctx context.Context, text, voice, outPath string) error {
	resp, err := c.api.CreateSpeech(ctx, openai.CreateSpeechRequest{
		Model:          openai.SpeechModel(c.models.TTS),
		Input:          text,
		Voice:          openai.SpeechVoice(voice),
		ResponseFormat: openai.SpeechResponseFormatMp3,
	})
	if err != nil {
		return fmt.Errorf("speech synthesis: %w", classifyErr(err))
	}
	defer resp.Close()

	f, err := os.Create(outPath)
	if err != nil {
		return fmt.Errorf("creating audio file: %w", err)
	}
	defer f.Close()

	if _, err := io.Copy(f, resp); err != nil {
		return fmt.Errorf("writing audio file: %w", err)
	}
	return nil
}

// Render renders one image and writes it to outPath. A provider refusal
// surfaces as ErrPolicyViolation.
func (c *Client) Render(ctx context.Context, prompt, size, outPath string) error {
	resp, err := c.api.CreateImage(ctx, openai.ImageRequest{
		Model:          c.models.Image,
		Prompt:         prompt,
		N:              1,
		Size:           size,
		ResponseFormat: openai.CreateImageResponseFormatB64JSON,
	})
	if err != nil {
		return fmt.Errorf("image generation: %w", classifyErr(err))
	}
	if len(resp.Data) == 0 {
		return fmt.Errorf("no image data in response")
	}

	raw, err := base64.StdEncoding.DecodeString(resp.Data[0].B64JSON)
	if err != nil {
		return fmt.Errorf("decoding image data: %w", err)
	}
	if err := os.WriteFile(outPath, raw, 0o644); err != nil {
		return fmt.Errorf("writing image file: %w", err)
	}
	return nil
}

func classifyErr(err error) error {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		if code, ok := apiErr.Code.(string); ok && code == "content_policy_violation" {
			return fmt.Errorf("%w: %s", ErrPolicyViolation, apiErr.Message)
		}
		if strings.Contains(strings.ToLower(apiErr.Message), "content policy") {
			return fmt.Errorf("%w: %s", ErrPolicyViolation, apiErr.Message)
		}
	}
	return err
}
