package extract

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/ledongthuc/pdf"
)

// pdfText extracts the text layer of a PDF. Scanned PDFs without a text
// layer yield ErrEmptyDocument.
func pdfText(filename string, data []byte) (text string, err error) {
	// The parser panics on some malformed files instead of returning an
	// error.
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%s: malformed PDF: %w", filename, ErrExtractionFailed)
		}
	}()

	reader, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return "", fmt.Errorf("%s: %v: %w", filename, err, ErrExtractionFailed)
	}

	var sb strings.Builder
	for i := 1; i <= reader.NumPage(); i++ {
		page := reader.Page(i)
		if page.V.IsNull() {
			continue
		}
		content, err := page.GetPlainText(nil)
		if err != nil {
			return "", fmt.Errorf("%s: page %d: %v: %w", filename, i, err, ErrExtractionFailed)
		}
		sb.WriteString(content)
		sb.WriteString("\n")
	}

	text = strings.TrimSpace(sb.String())
	if text == "" {
		return "", fmt.Errorf("%s: %w", filename, ErrEmptyDocument)
	}
	return text, nil
}
