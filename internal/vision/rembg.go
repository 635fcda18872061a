package vision

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strings"
	"time"
)

// RembgClient removes image backgrounds through a rembg HTTP server
// (U²-Net behind POST /api/remove). It implements preprocess.Segmenter.
type RembgClient struct {
	baseURL string
	client  *http.Client
}

// NewRembgClient creates a client for the given rembg server base URL.
func NewRembgClient(baseURL string) *RembgClient {
	return &RembgClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  &http.Client{Timeout: inferenceTimeout},
	}
}

// RemoveBackground uploads the image and returns the segmented PNG with
// a transparent background.
func (c *RembgClient) RemoveBackground(ctx context.Context, img []byte) ([]byte, error) {
	var body bytes.Buffer
	writer := multipart.NewWriter(&body)
	part, err := writer.CreateFormFile("file", "image.png")
	if err != nil {
		return nil, fmt.Errorf("building upload: %w", err)
	}
	if _, err := part.Write(img); err != nil {
		return nil, fmt.Errorf("building upload: %w", err)
	}
	if err := writer.Close(); err != nil {
		return nil, fmt.Errorf("building upload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/remove", &body)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())

	start := time.Now()
	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("calling rembg: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("rembg returned %d: %s", resp.StatusCode, strings.TrimSpace(string(msg)))
	}

	out, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("reading rembg response after %s: %w", time.Since(start).Round(time.Millisecond), err)
	}
	return out, nil
}
