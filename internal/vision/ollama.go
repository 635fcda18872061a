// Package vision implements the external model providers consumed by the
// intake pipeline: zero-shot label scoring and face localization through
// a local Ollama vision model, and background segmentation through a
// rembg HTTP server. Each provider has a single method and a single
// failure mode; the pipeline owns all thresholding.
package vision

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"image"
	_ "image/jpeg"
	_ "image/png"
	"net/http"
	"net/url"
	"regexp"
	"strings"
	"time"

	"github.com/ollama/ollama/api"

	"github.com/Saisurya114/wardrobe-backend/internal/classify"
)

// inferenceTimeout bounds a single model call when the caller's context
// carries no deadline. Vision models on CPU can be slow.
const inferenceTimeout = 120 * time.Second

// OllamaClient talks to a local Ollama server running a vision model.
// It implements classify.Scorer and preprocess.FaceLocator.
type OllamaClient struct {
	client *api.Client
	model  string
}

// NewOllamaClient creates a client for the given Ollama base URL and model.
func NewOllamaClient(rawURL, model string) (*OllamaClient, error) {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("invalid ollama URL: %w", err)
	}
	base := &url.URL{Scheme: parsed.Scheme, Host: parsed.Host}
	return &OllamaClient{
		client: api.NewClient(base, http.DefaultClient),
		model:  model,
	}, nil
}

const scorePromptFmt = `You are a zero-shot image classifier. Score how well the image matches
each of these labels. Respond with only a JSON object mapping every label
to a probability, with all probabilities summing to 1. Labels:
%s`

// ScoreLabels asks the model to score the image against each label and
// returns one candidate per label. Scores are normalized to sum to 1.
func (c *OllamaClient) ScoreLabels(ctx context.Context, imagePNG []byte, labels []string) ([]classify.Candidate, error) {
	prompt := fmt.Sprintf(scorePromptFmt, strings.Join(labels, "\n"))

	raw, err := c.chat(ctx, prompt, imagePNG)
	if err != nil {
		return nil, err
	}

	var scores map[string]float64
	if err := json.Unmarshal([]byte(sanitizeModelJSON(raw)), &scores); err != nil {
		return nil, fmt.Errorf("parsing label scores: %w", err)
	}

	var total float64
	candidates := make([]classify.Candidate, 0, len(labels))
	for _, label := range labels {
		score := scores[label]
		if score < 0 {
			score = 0
		}
		total += score
		candidates = append(candidates, classify.Candidate{Label: label, Score: score})
	}
	if total <= 0 {
		return nil, fmt.Errorf("model returned no usable scores")
	}
	for i := range candidates {
		candidates[i].Score /= total
	}
	return candidates, nil
}

const facePrompt = `Locate the most prominent human face in the image. Respond with only a
JSON object: {"found": bool, "x": float, "y": float, "w": float, "h": float}
where x, y, w, h are the face bounding box as fractions of image width
and height. Use found=false if no face is visible.`

// faceResponse is the model's face box in fractional coordinates.
type faceResponse struct {
	Found bool    `json:"found"`
	X     float64 `json:"x"`
	Y     float64 `json:"y"`
	W     float64 `json:"w"`
	H     float64 `json:"h"`
}

// LocateFace asks the model for a face bounding box. The returned
// rectangle is in pixel coordinates of the supplied image.
func (c *OllamaClient) LocateFace(ctx context.Context, img []byte) (image.Rectangle, bool, error) {
	cfg, _, err := image.DecodeConfig(bytes.NewReader(img))
	if err != nil {
		return image.Rectangle{}, false, fmt.Errorf("reading image dimensions: %w", err)
	}

	raw, err := c.chat(ctx, facePrompt, img)
	if err != nil {
		return image.Rectangle{}, false, err
	}

	var resp faceResponse
	if err := json.Unmarshal([]byte(sanitizeModelJSON(raw)), &resp); err != nil {
		return image.Rectangle{}, false, fmt.Errorf("parsing face response: %w", err)
	}
	if !resp.Found {
		return image.Rectangle{}, false, nil
	}

	box := image.Rect(
		int(resp.X*float64(cfg.Width)),
		int(resp.Y*float64(cfg.Height)),
		int((resp.X+resp.W)*float64(cfg.Width)),
		int((resp.Y+resp.H)*float64(cfg.Height)),
	).Intersect(image.Rect(0, 0, cfg.Width, cfg.Height))

	return box, !box.Empty(), nil
}

// chat sends one image-plus-prompt request and returns the raw response text.
func (c *OllamaClient) chat(ctx context.Context, prompt string, img []byte) (string, error) {
	if _, hasDeadline := ctx.Deadline(); !hasDeadline {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, inferenceTimeout)
		defer cancel()
	}

	stream := false
	req := &api.ChatRequest{
		Model: c.model,
		Messages: []api.Message{
			{
				Role:    "user",
				Content: prompt,
				Images:  []api.ImageData{api.ImageData(img)},
			},
		},
		Stream: &stream,
	}

	var content string
	err := c.client.Chat(ctx, req, func(resp api.ChatResponse) error {
		content = resp.Message.Content
		return nil
	})
	if err != nil {
		return "", fmt.Errorf("ollama chat: %w", err)
	}
	if content == "" {
		return "", fmt.Errorf("empty response from ollama")
	}
	return content, nil
}

var (
	reBlockComment  = regexp.MustCompile(`(?s)/\*.*?\*/`)
	reLineComment   = regexp.MustCompile(`(?m)^\s*//.*$`)
	reTrailingComma = regexp.MustCompile(`,(\s*[}\]])`)
)

// sanitizeModelJSON strips code fences, comments, and trailing commas
// from a model response and keeps only the outermost JSON object.
func sanitizeModelJSON(raw string) string {
	raw = strings.TrimSpace(raw)

	if strings.HasPrefix(raw, "```") {
		if i := strings.Index(raw, "\n"); i >= 0 {
			raw = raw[i+1:]
		}
		if j := strings.LastIndex(raw, "```"); j >= 0 {
			raw = raw[:j]
		}
	}
	raw = strings.Trim(strings.TrimSpace(raw), "`")

	raw = reBlockComment.ReplaceAllString(raw, "")
	raw = reLineComment.ReplaceAllString(raw, "")
	raw = reTrailingComma.ReplaceAllString(raw, "$1")

	if start := strings.Index(raw, "{"); start >= 0 {
		if end := strings.LastIndex(raw, "}"); end > start {
			raw = raw[start : end+1]
		}
	}
	return strings.TrimSpace(raw)
}
