package extract

import (
	"context"
	"fmt"
	"strings"

	"github.com/gen2brain/go-fitz"
)

// FitzExtractor extracts text from PDF and EPUB files using go-fitz
type FitzExtractor struct{}

// NewFitzExtractor creates a new go-fitz backed extractor
func NewFitzExtractor() *FitzExtractor {
	return &FitzExtractor{}
}

// Extract extracts text from each page of the document
func (e *FitzExtractor) Extract(ctx context.Context, data []byte, contentType string) (*Result, error) {
	doc, err := fitz.NewFromMemory(data)
	if err != nil {
		return nil, fmt.Errorf("failed to open document: %w", err)
	}
	defer doc.Close()

	var textParts []string
	pageCount := doc.NumPage()

	for i := 0; i < pageCount; i++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		text, err := doc.Text(i)
		if err == nil && strings.TrimSpace(text) != "" {
			textParts = append(textParts, text)
		}
	}

	return &Result{
		Text:      strings.Join(textParts, "\n\n"),
		PageCount: pageCount,
	}, nil
}
