// Package textextract extracts text from document assets (PDF, Office, HTML)
// using an Apache Tika server. Screenshot images go through the ocr package
// instead; this covers imported documents such as chat or mail exports.
package textextract

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/pkg/errors"
)

// SupportedMimeTypes are the document MIME types handled by Tika.
var SupportedMimeTypes = []string{
	"application/pdf",
	"application/msword",
	"application/vnd.openxmlformats-officedocument.wordprocessingml.document",
	"application/vnd.ms-excel",
	"application/vnd.openxmlformats-officedocument.spreadsheetml.sheet",
	"application/rtf",
	"text/html",
	"text/rtf",
}

// Config holds the text extraction configuration.
type Config struct {
	// TikaServerURL is the URL of the Tika server (e.g., http://localhost:9998)
	TikaServerURL string
	// Timeout is the HTTP timeout for Tika server requests
	Timeout time.Duration
}

// DefaultConfig returns the default text extraction configuration.
func DefaultConfig() *Config {
	return &Config{
		TikaServerURL: "http://localhost:9998",
		Timeout:       30 * time.Second,
	}
}

// Client provides text extraction functionality.
type Client struct {
	config     *Config
	httpClient *http.Client
}

// NewClient creates a new text extraction client.
func NewClient(config *Config) *Client {
	if config == nil {
		config = DefaultConfig()
	}
	if config.Timeout <= 0 {
		config.Timeout = 30 * time.Second
	}
	return &Client{
		config: config,
		httpClient: &http.Client{
			Timeout: config.Timeout,
		},
	}
}

// IsSupported reports whether the MIME type can be extracted.
func (c *Client) IsSupported(mimeType string) bool {
	for _, supported := range SupportedMimeTypes {
		if strings.EqualFold(mimeType, supported) {
			return true
		}
	}
	return false
}

// ExtractText extracts plain text from a document via the Tika server.
func (c *Client) ExtractText(ctx context.Context, data []byte, contentType string) (string, error) {
	if !c.IsSupported(contentType) {
		return "", errors.Errorf("unsupported content type: %s", contentType)
	}
	if c.config.TikaServerURL == "" {
		return "", errors.New("no Tika server configured")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPut,
		c.config.TikaServerURL+"/tika", bytes.NewReader(data))
	if err != nil {
		return "", errors.Wrap(err, "failed to create request")
	}
	req.Header.Set("Content-Type", contentType)
	req.Header.Set("Accept", "text/plain")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", errors.Wrap(err, "tika server request failed")
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return "", errors.Errorf("tika server returned status %d: %s", resp.StatusCode, string(body))
	}

	text, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", errors.Wrap(err, "failed to read response")
	}
	return strings.TrimSpace(string(text)), nil
}
