// Package gemini invokes Gemini models for the text and vision paths.
package gemini

import (
	"context"
	"fmt"
	"strings"

	"google.golang.org/genai"

	"github.com/hpungsan/tars/internal/errors"
	"github.com/hpungsan/tars/internal/history"
)

// Capturer takes a screenshot and returns PNG bytes.
type Capturer interface {
	Capture(ctx context.Context) ([]byte, error)
}

// Client generates replies through the Gemini API.
type Client struct {
	client   *genai.Client
	capturer Capturer
}

// New creates a Client. capturer may be nil, in which case the vision path
// sends the prompt without an image.
func New(ctx context.Context, apiKey string, capturer Capturer) (*Client, error) {
	if apiKey == "" {
		return nil, errors.NewNotConfigured("api key")
	}
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create GenAI client: %w", err)
	}
	return &Client{client: client, capturer: capturer}, nil
}

// GenerateText sends the system instruction and the full turn sequence.
func (c *Client) GenerateText(ctx context.Context, model, system string, turns []history.WireTurn) (string, error) {
	contents := toContents(turns)
	if len(contents) == 0 {
		return "", errors.NewInvalidRequest("no turns to send")
	}

	config := &genai.GenerateContentConfig{}
	if system != "" {
		config.SystemInstruction = genai.NewContentFromText(system, genai.RoleUser)
	}

	resp, err := c.client.Models.GenerateContent(ctx, model, contents, config)
	if err != nil {
		return "", fmt.Errorf("GenAI generate failed: %w", err)
	}
	return replyText(resp)
}

// GenerateVision captures the screen and sends it with prompt as a single
// user message.
func (c *Client) GenerateVision(ctx context.Context, model, prompt string) (string, error) {
	var png []byte
	if c.capturer != nil {
		var err error
		png, err = c.capturer.Capture(ctx)
		if err != nil {
			return "", errors.NewCapture(err)
		}
	}

	resp, err := c.client.Models.GenerateContent(ctx, model, visionContents(prompt, png), nil)
	if err != nil {
		return "", fmt.Errorf("GenAI vision generate failed: %w", err)
	}
	return replyText(resp)
}

// toContents maps rendered turns to GenAI contents. The wire roles are
// already "user" and "model".
func toContents(turns []history.WireTurn) []*genai.Content {
	contents := make([]*genai.Content, 0, len(turns))
	for _, t := range turns {
		var role genai.Role = genai.RoleUser
		if t.Role == "model" {
			role = genai.RoleModel
		}
		contents = append(contents, genai.NewContentFromText(t.Content, role))
	}
	return contents
}

func visionContents(prompt string, png []byte) []*genai.Content {
	parts := []*genai.Part{genai.NewPartFromText(prompt)}
	if len(png) > 0 {
		parts = append(parts, genai.NewPartFromBytes(png, "image/png"))
	}
	return []*genai.Content{genai.NewContentFromParts(parts, genai.RoleUser)}
}

func replyText(resp *genai.GenerateContentResponse) (string, error) {
	if resp == nil {
		return "", fmt.Errorf("empty response")
	}
	text := strings.TrimSpace(resp.Text())
	if text == "" {
		return "", fmt.Errorf("response contained no text")
	}
	return text, nil
}
