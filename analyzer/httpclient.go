package analyzer

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// HTTPClient talks to the model-inference sidecar over JSON/HTTP.
// No retries: a failed call is surfaced to the caller as-is.
type HTTPClient struct {
	Endpoint   string
	Timeout    time.Duration
	HTTPClient *http.Client
}

func NewHTTPClient(endpoint string, timeout time.Duration) *HTTPClient {
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return &HTTPClient{
		Endpoint: strings.TrimRight(strings.TrimSpace(endpoint), "/"),
		Timeout:  timeout,
		HTTPClient: &http.Client{
			Timeout: timeout,
		},
	}
}

type textRequest struct {
	Text string `json:"text"`
}

type imageRequest struct {
	Filename string `json:"filename"`
	Data     []byte `json:"data"` // base64 via encoding/json
}

func (c *HTTPClient) AnalyzeText(ctx context.Context, text string) (TextAnalysis, error) {
	if strings.TrimSpace(text) == "" {
		return TextAnalysis{}, fmt.Errorf("empty text")
	}
	var out TextAnalysis
	if err := c.post(ctx, "/analyze/text", textRequest{Text: text}, &out); err != nil {
		return TextAnalysis{}, fmt.Errorf("analyze text: %w", err)
	}
	if len(out.Embedding) == 0 {
		return TextAnalysis{}, fmt.Errorf("analyze text: service returned no embedding")
	}
	return out, nil
}

func (c *HTTPClient) AnalyzeImage(ctx context.Context, imagePath string) (ImageAnalysis, error) {
	data, err := os.ReadFile(imagePath)
	if err != nil {
		return ImageAnalysis{}, fmt.Errorf("read image: %w", err)
	}
	var out ImageAnalysis
	req := imageRequest{Filename: filepath.Base(imagePath), Data: data}
	if err := c.post(ctx, "/analyze/image", req, &out); err != nil {
		return ImageAnalysis{}, fmt.Errorf("analyze image: %w", err)
	}
	if len(out.Embedding) == 0 {
		return ImageAnalysis{}, fmt.Errorf("analyze image: service returned no embedding")
	}
	return out, nil
}

func (c *HTTPClient) post(ctx context.Context, path string, in any, out any) error {
	if c == nil || strings.TrimSpace(c.Endpoint) == "" {
		return fmt.Errorf("analyzer endpoint not configured")
	}

	body, err := json.Marshal(in)
	if err != nil {
		return fmt.Errorf("encode request: %w", err)
	}

	reqCtx, cancel := context.WithTimeout(ctx, c.Timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(reqCtx, http.MethodPost, c.Endpoint+path, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	client := c.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: c.Timeout}
	}

	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 16<<20))
	if err != nil {
		return err
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("inference service %s: status %d: %s", path, resp.StatusCode, snippet(raw))
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

func snippet(b []byte) string {
	s := strings.TrimSpace(string(b))
	if len(s) > 200 {
		s = s[:200] + "..."
	}
	return s
}
