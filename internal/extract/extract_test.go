package extract

import (
	"errors"
	"strings"
	"testing"
)

func TestText(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		filename string
		data     []byte
		want     string
		wantErr  error
	}{
		{
			name:     "plain text",
			filename: "notes.txt",
			data:     []byte("hello world\n"),
			want:     "hello world",
		},
		{
			name:     "markdown passes through",
			filename: "README.md",
			data:     []byte("# Title\n\nSome *content*."),
			want:     "# Title\n\nSome *content*.",
		},
		{
			name:     "uppercase extension",
			filename: "NOTES.TXT",
			data:     []byte("shouting"),
			want:     "shouting",
		},
		{
			name:     "truncated pdf",
			filename: "report.pdf",
			data:     []byte("%PDF-1.7"),
			wantErr:  ErrExtractionFailed,
		},
		{
			name:     "garbage pdf",
			filename: "broken.pdf",
			data:     []byte("not a pdf at all"),
			wantErr:  ErrExtractionFailed,
		},
		{
			name:     "unknown extension",
			filename: "image.png",
			data:     []byte{0x89, 0x50, 0x4e, 0x47},
			wantErr:  ErrUnsupportedFormat,
		},
		{
			name:     "binary disguised as text",
			filename: "blob.txt",
			data:     []byte{0x00, 0x01, 0x02},
			wantErr:  ErrExtractionFailed,
		},
		{
			name:     "invalid utf8",
			filename: "latin1.txt",
			data:     []byte{0xff, 0xfe, 0x41},
			wantErr:  ErrExtractionFailed,
		},
		{
			name:     "whitespace only",
			filename: "blank.txt",
			data:     []byte("  \n\t  "),
			wantErr:  ErrEmptyDocument,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			got, err := Text(tt.filename, tt.data)
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("Text(%q) error = %v, want %v", tt.filename, err, tt.wantErr)
				}
				if !strings.Contains(err.Error(), tt.filename) {
					t.Fatalf("error %q should name the file", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("Text(%q) error: %v", tt.filename, err)
			}
			if got != tt.want {
				t.Fatalf("Text(%q) = %q, want %q", tt.filename, got, tt.want)
			}
		})
	}
}
