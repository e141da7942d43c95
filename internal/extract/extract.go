package extract

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// ErrUnsupportedType is returned when no extractor handles the declared
// content type.
var ErrUnsupportedType = errors.New("unsupported content type")

// Result contains the plain text extracted from a document and, when
// known, its page count. A PageCount of 0 means unknown.
type Result struct {
	Text      string
	PageCount int
}

// Extractor extracts plain text from raw document bytes
type Extractor interface {
	Extract(ctx context.Context, data []byte, contentType string) (*Result, error)
}

// Default dispatches to a concrete extractor based on the declared
// content type.
type Default struct {
	fitz *FitzExtractor
}

// NewDefault creates an extractor covering PDF, EPUB and plain text
func NewDefault() *Default {
	return &Default{fitz: NewFitzExtractor()}
}

// Extract extracts text from the given bytes
func (d *Default) Extract(ctx context.Context, data []byte, contentType string) (*Result, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("document is empty")
	}

	switch normalizeContentType(contentType) {
	case "application/pdf", "application/epub+zip":
		return d.fitz.Extract(ctx, data, contentType)
	case "text/plain", "text/markdown":
		return &Result{Text: string(data)}, nil
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedType, contentType)
	}
}

// normalizeContentType strips parameters like "; charset=utf-8"
func normalizeContentType(contentType string) string {
	if idx := strings.IndexByte(contentType, ';'); idx >= 0 {
		contentType = contentType[:idx]
	}
	return strings.ToLower(strings.TrimSpace(contentType))
}
