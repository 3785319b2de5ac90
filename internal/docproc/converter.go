package docproc

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strings"
	"time"
)

// HTTPConverter talks to a docling-serve instance to turn PDFs into
// Markdown.
type HTTPConverter struct {
	baseURL string
	client  *http.Client
}

func NewHTTPConverter(baseURL string, timeout time.Duration) *HTTPConverter {
	if timeout <= 0 {
		timeout = 2 * time.Minute
	}
	return &HTTPConverter{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  &http.Client{Timeout: timeout},
	}
}

type convertResponse struct {
	Document struct {
		MdContent string `json:"md_content"`
	} `json:"document"`
}

// Convert uploads the file and returns the converted Markdown.
func (c *HTTPConverter) Convert(ctx context.Context, filename string, data []byte) (string, error) {
	var body bytes.Buffer
	writer := multipart.NewWriter(&body)
	part, err := writer.CreateFormFile("files", filename)
	if err != nil {
		return "", fmt.Errorf("failed to build convert request: %w", err)
	}
	if _, err := part.Write(data); err != nil {
		return "", fmt.Errorf("failed to build convert request: %w", err)
	}
	if err := writer.Close(); err != nil {
		return "", fmt.Errorf("failed to build convert request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/convert/file", &body)
	if err != nil {
		return "", fmt.Errorf("failed to build convert request: %w", err)
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())

	resp, err := c.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("failed to reach converter: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("failed to read converter response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("converter returned status %d: %s", resp.StatusCode, truncateBody(raw))
	}

	var converted convertResponse
	if err := json.Unmarshal(raw, &converted); err != nil {
		return "", fmt.Errorf("failed to decode converter response: %w", err)
	}
	return converted.Document.MdContent, nil
}

func truncateBody(raw []byte) string {
	const limit = 256
	body := strings.TrimSpace(string(raw))
	if len(body) > limit {
		return body[:limit]
	}
	return body
}
