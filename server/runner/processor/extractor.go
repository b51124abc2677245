package processor

import (
	"context"
	"log/slog"
	"strings"

	"github.com/glimpse-dev/glimpse/plugin/ocr"
	"github.com/glimpse-dev/glimpse/plugin/textextract"
)

// Extractor turns a raw asset into text. Implementations must be safe for
// concurrent use; one instance is shared by all workers.
type Extractor interface {
	Extract(ctx context.Context, data []byte, mimeType string) (string, error)
}

// ExtractorFunc adapts a function to the Extractor interface.
type ExtractorFunc func(ctx context.Context, data []byte, mimeType string) (string, error)

func (f ExtractorFunc) Extract(ctx context.Context, data []byte, mimeType string) (string, error) {
	return f(ctx, data, mimeType)
}

// dispatchExtractor routes assets by MIME type: images to OCR, plain text
// straight through, documents to Tika when configured. Types nothing can
// handle yield empty text, which the pipeline treats as a no-text skip.
type dispatchExtractor struct {
	ocr  *ocr.Client
	tika *textextract.Client
}

// NewExtractor builds the production extractor. tika may be nil when no Tika
// server is configured.
func NewExtractor(ocrClient *ocr.Client, tikaClient *textextract.Client) Extractor {
	return &dispatchExtractor{
		ocr:  ocrClient,
		tika: tikaClient,
	}
}

func (d *dispatchExtractor) Extract(ctx context.Context, data []byte, mimeType string) (string, error) {
	switch {
	case strings.HasPrefix(mimeType, "text/") && !strings.EqualFold(mimeType, "text/html"):
		return string(data), nil
	case d.ocr != nil && d.ocr.IsSupported(mimeType):
		return d.ocr.ExtractText(ctx, data, mimeType)
	case d.tika != nil && d.tika.IsSupported(mimeType):
		return d.tika.ExtractText(ctx, data, mimeType)
	default:
		slog.Debug("no extractor for mime type", "mime_type", mimeType)
		return "", nil
	}
}
