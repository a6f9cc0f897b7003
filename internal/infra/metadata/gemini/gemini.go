// Package gemini implements the metadata provider on Google Gemini.
package gemini

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/option"

	"github.com/querl369/adobe-stock-uploader-sub000/internal/core/domain"
)

const prompt = `You are a stock photography metadata assistant. Look at the
image and respond with exactly one JSON object, no prose, in the form:
{"title": "...", "keywords": ["...", "..."], "category": "..."}
The title is a short descriptive sentence suitable for a stock marketplace,
keywords are 20-40 relevant single words ordered by importance, and category
is the single best-fitting stock category name.`

// Config holds Gemini settings.
type Config struct {
	APIKey      string
	Model       string
	Temperature float64
}

// Client calls Gemini to generate image metadata.
type Client struct {
	client *genai.Client
	cfg    Config
}

// New creates a Gemini-backed provider.
func New(ctx context.Context, cfg Config) (*Client, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("gemini API key is not set")
	}
	if cfg.Model == "" {
		cfg.Model = "gemini-2.0-flash"
	}

	client, err := genai.NewClient(ctx, option.WithAPIKey(cfg.APIKey))
	if err != nil {
		return nil, fmt.Errorf("failed to create gemini client: %w", err)
	}
	return &Client{client: client, cfg: cfg}, nil
}

// Close releases the underlying client.
func (c *Client) Close() error {
	return c.client.Close()
}

// Generate sends the image to Gemini and parses the JSON reply. Transport
// and API errors are returned raw so the caller can classify them.
func (c *Client) Generate(ctx context.Context, item *domain.WorkItem) (*domain.Metadata, error) {
	data, err := item.Payload.Bytes()
	if err != nil {
		return nil, fmt.Errorf("load payload for %s: %w", item.Name, err)
	}

	model := c.client.GenerativeModel(c.cfg.Model)
	model.SetTemperature(float32(c.cfg.Temperature))

	resp, err := model.GenerateContent(ctx,
		genai.ImageData(imageFormat(item.MIME), data),
		genai.Text(prompt),
	)
	if err != nil {
		return nil, err
	}

	text, err := responseText(resp)
	if err != nil {
		return nil, err
	}
	return parseMetadata(text)
}

func responseText(resp *genai.GenerateContentResponse) (string, error) {
	if len(resp.Candidates) == 0 {
		return "", fmt.Errorf("%w: no candidates returned", domain.ErrMalformedUpstream)
	}
	candidate := resp.Candidates[0]
	if candidate.Content == nil || len(candidate.Content.Parts) == 0 {
		return "", fmt.Errorf("%w: empty content", domain.ErrMalformedUpstream)
	}
	if txt, ok := candidate.Content.Parts[0].(genai.Text); ok {
		return string(txt), nil
	}
	return "", fmt.Errorf("%w: unexpected part type", domain.ErrMalformedUpstream)
}

// parseMetadata decodes the model reply, tolerating markdown code fences.
func parseMetadata(text string) (*domain.Metadata, error) {
	cleaned := strings.TrimSpace(text)
	cleaned = strings.TrimPrefix(cleaned, "```json")
	cleaned = strings.TrimPrefix(cleaned, "```")
	cleaned = strings.TrimSuffix(cleaned, "```")
	cleaned = strings.TrimSpace(cleaned)

	var meta domain.Metadata
	if err := json.Unmarshal([]byte(cleaned), &meta); err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrMalformedUpstream, err)
	}
	if meta.Title == "" {
		return nil, fmt.Errorf("%w: missing title", domain.ErrMalformedUpstream)
	}
	return &meta, nil
}

// imageFormat maps a MIME type to the genai image format token.
func imageFormat(mime string) string {
	switch mime {
	case "image/png":
		return "png"
	case "image/gif":
		return "gif"
	case "image/webp":
		return "webp"
	default:
		return "jpeg"
	}
}
