package ocr

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIsSupported(t *testing.T) {
	client := NewClient(nil)

	assert.True(t, client.IsSupported("image/png"))
	assert.True(t, client.IsSupported("IMAGE/PNG"))
	assert.True(t, client.IsSupported("image/jpeg"))
	assert.False(t, client.IsSupported("application/pdf"))
	assert.False(t, client.IsSupported("text/plain"))
	assert.False(t, client.IsSupported(""))
}

func TestExtractTextRejectsUnsupportedMime(t *testing.T) {
	client := NewClient(nil)

	_, err := client.ExtractText(context.Background(), []byte("not an image"), "application/zip")
	assert.Error(t, err)
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	assert.Equal(t, "tesseract", cfg.TesseractPath)
	assert.Equal(t, "eng", cfg.Languages)
}
