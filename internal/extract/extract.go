// Package extract turns uploaded files into plain text for ingestion.
//
// Plain text, Markdown and PDF are supported. Markdown passes through as-is
// since its markup survives chunking and embedding well enough that
// stripping it is not worth the fidelity loss; PDF goes through the text
// layer (pdf.go).
package extract

import (
	"bytes"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"unicode/utf8"
)

var (
	// ErrUnsupportedFormat means the file type has no extractor.
	ErrUnsupportedFormat = errors.New("unsupported document format")

	// ErrExtractionFailed means a supported file could not be decoded.
	ErrExtractionFailed = errors.New("document extraction failed")

	// ErrEmptyDocument means extraction succeeded but yielded no text.
	ErrEmptyDocument = errors.New("document contains no extractable text")
)

var textExtensions = map[string]bool{
	".txt":      true,
	".text":     true,
	".md":       true,
	".markdown": true,
}

// Text extracts plain text from raw file bytes. The filename's extension
// selects the extractor.
func Text(filename string, data []byte) (string, error) {
	ext := strings.ToLower(filepath.Ext(filename))

	switch {
	case textExtensions[ext]:
		return plainText(filename, data)
	case ext == ".pdf":
		return pdfText(filename, data)
	default:
		return "", fmt.Errorf("%s: %w", filename, ErrUnsupportedFormat)
	}
}

func plainText(filename string, data []byte) (string, error) {
	// A leading NUL is a strong signal of a binary file renamed .txt.
	if bytes.ContainsRune(data, 0) {
		return "", fmt.Errorf("%s: binary content in text file: %w", filename, ErrExtractionFailed)
	}
	if !utf8.Valid(data) {
		return "", fmt.Errorf("%s: invalid UTF-8: %w", filename, ErrExtractionFailed)
	}

	text := strings.TrimSpace(string(data))
	if text == "" {
		return "", fmt.Errorf("%s: %w", filename, ErrEmptyDocument)
	}
	return text, nil
}
