// Package ocr extracts text from screenshots using Tesseract.
// The extracted text is what makes a captured frame searchable.
package ocr

import (
	"bytes"
	"context"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/pkg/errors"
)

// SupportedMimeTypes are the image MIME types Tesseract can process.
var SupportedMimeTypes = []string{
	"image/png",
	"image/jpeg",
	"image/jpg",
	"image/gif",
	"image/bmp",
	"image/webp",
}

// Config holds the OCR configuration.
type Config struct {
	// TesseractPath is the path to the tesseract executable
	TesseractPath string
	// DataPath is the path to the tessdata directory (optional)
	DataPath string
	// Languages are the languages to use for OCR (e.g., "eng")
	Languages string
}

// DefaultConfig returns the default OCR configuration.
func DefaultConfig() *Config {
	return &Config{
		TesseractPath: "tesseract",
		DataPath:      "",
		Languages:     "eng",
	}
}

// Client provides OCR functionality.
type Client struct {
	config *Config
}

// NewClient creates a new OCR client.
func NewClient(config *Config) *Client {
	if config == nil {
		config = DefaultConfig()
	}
	return &Client{config: config}
}

// IsSupported reports whether the MIME type can be OCRed.
func (c *Client) IsSupported(mimeType string) bool {
	for _, supported := range SupportedMimeTypes {
		if strings.EqualFold(mimeType, supported) {
			return true
		}
	}
	return false
}

// ExtractText runs Tesseract over an image and returns the recognized text.
// An image without any recognizable text yields "" and no error.
func (c *Client) ExtractText(ctx context.Context, image []byte, mimeType string) (string, error) {
	if !c.IsSupported(mimeType) {
		return "", errors.Errorf("unsupported MIME type: %s", mimeType)
	}

	tmpFile, err := os.CreateTemp("", "ocr_*.png")
	if err != nil {
		return "", errors.Wrap(err, "failed to create temp file")
	}
	tmpPath := tmpFile.Name()
	defer os.Remove(tmpPath)
	tmpFile.Close()

	if err := os.WriteFile(tmpPath, image, 0644); err != nil {
		return "", errors.Wrap(err, "failed to write temp file")
	}

	// Tesseract appends .txt to the output base path.
	outPath := strings.TrimSuffix(tmpPath, filepath.Ext(tmpPath))

	args := []string{tmpPath, outPath}
	if c.config.Languages != "" {
		args = append(args, "-l", c.config.Languages)
	}
	if c.config.DataPath != "" {
		args = append(args, "--tessdata-dir", c.config.DataPath)
	}

	cmd := exec.CommandContext(ctx, c.config.TesseractPath, args...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		slog.Warn("tesseract command failed", "error", err, "stderr", stderr.String())
		return "", errors.Wrap(err, "tesseract command failed")
	}

	txtPath := outPath + ".txt"
	defer os.Remove(txtPath)

	text, err := os.ReadFile(txtPath)
	if err != nil {
		return "", errors.Wrap(err, "failed to read OCR output")
	}

	return strings.TrimSpace(string(text)), nil
}

// IsAvailable checks if Tesseract is available.
func (c *Client) IsAvailable(ctx context.Context) bool {
	cmd := exec.CommandContext(ctx, c.config.TesseractPath, "--version")
	return cmd.Run() == nil
}

// GetVersion returns the Tesseract version.
func (c *Client) GetVersion(ctx context.Context) (string, error) {
	cmd := exec.CommandContext(ctx, c.config.TesseractPath, "--version")
	var stdout bytes.Buffer
	cmd.Stdout = &stdout
	if err := cmd.Run(); err != nil {
		return "", errors.Wrap(err, "failed to get tesseract version")
	}
	return strings.TrimSpace(stdout.String()), nil
}
