package ingest

import "unicode"

// Chunking defaults. Windows overlap so sentences straddling a boundary
// still appear whole in at least one chunk.
const (
	DefaultChunkSize    = 800
	DefaultChunkOverlap = 100
)

// Chunk splits text into overlapping windows of at most size runes, with
// roughly overlap runes shared between consecutive chunks. Boundaries
// prefer the last whitespace inside the overlap region so words are not
// split mid-token. The final chunk may be shorter than size.
//
// size must be larger than overlap; callers validate configuration before
// reaching this point.
func Chunk(text string, size, overlap int) []string {
	runes := []rune(text)
	if len(runes) == 0 {
		return nil
	}
	if len(runes) <= size {
		return []string{text}
	}

	var chunks []string
	start := 0
	for {
		end := start + size
		if end >= len(runes) {
			chunks = append(chunks, string(runes[start:]))
			return chunks
		}

		// Walk back through the overlap region looking for whitespace.
		cut := end
		for i := end; i > end-overlap && i > start; i-- {
			if unicode.IsSpace(runes[i-1]) {
				cut = i
				break
			}
		}

		chunks = append(chunks, string(runes[start:cut]))

		// A whitespace cut near the window start could otherwise move the
		// next start at or before the current one when overlap exceeds half
		// the window.
		start = max(cut-overlap, start+1)
	}
}
