package chat

import (
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/calypso-ai/calypso/internal/store"
)

// Assembly defaults.
const (
	DefaultRecencyWindow = 6
	DefaultTokenBudget   = 8000
)

const preamble = `You are Calypso, a helpful assistant with access to the ` +
	`conversation summary, recent messages, and reference material below. ` +
	`Answer the user's question. When you rely on reference material, ` +
	`mention its source tag.`

// Assemble builds the model prompt from three ordered blocks: the session's
// rolling summary, the recent raw messages, and the retrieved chunks, each
// tagged with its source. The token budget trims chunks first, then the
// oldest recent messages. The summary is never truncated: it is the only
// compressed record of distant history.
//
// The returned IDs name the chunks that made it into the prompt; chunks
// dropped by the budget are not provenance.
//
// Assemble is a pure function of its arguments.
func Assemble(summary string, recent []store.Message, chunks []store.ChunkMatch, query string, budget int) (string, []uuid.UUID) {
	if budget <= 0 {
		budget = DefaultTokenBudget
	}

	queryBlock := "## User question\n" + query
	spent := EstimateTokens(preamble) + EstimateTokens(queryBlock)

	var summaryBlock string
	if summary != "" {
		summaryBlock = "## Conversation summary\n" + summary
		spent += EstimateTokens(summaryBlock)
	}

	messageLines := make([]string, len(recent))
	msgTokens := 0
	for i, m := range recent {
		messageLines[i] = fmt.Sprintf("%s: %s", m.Role, m.Content)
		msgTokens += EstimateTokens(messageLines[i])
	}

	// Drop oldest messages until the summary, messages, and query fit on
	// their own. Chunks only get whatever budget is left after that.
	for len(messageLines) > 0 && spent+msgTokens > budget {
		msgTokens -= EstimateTokens(messageLines[0])
		messageLines = messageLines[1:]
	}
	spent += msgTokens

	var chunkBlocks []string
	var admitted []uuid.UUID
	for _, c := range chunks {
		block := fmt.Sprintf("[Source: %s#%d]\n%s", c.SourceName, c.Index, c.Content)
		cost := EstimateTokens(block)
		if spent+cost > budget {
			break
		}
		chunkBlocks = append(chunkBlocks, block)
		admitted = append(admitted, c.ID)
		spent += cost
	}

	var b strings.Builder
	b.WriteString(preamble)
	if summaryBlock != "" {
		b.WriteString("\n\n")
		b.WriteString(summaryBlock)
	}
	if len(messageLines) > 0 {
		b.WriteString("\n\n## Recent messages\n")
		b.WriteString(strings.Join(messageLines, "\n"))
	}
	if len(chunkBlocks) > 0 {
		b.WriteString("\n\n## Reference material\n")
		b.WriteString(strings.Join(chunkBlocks, "\n\n"))
	}
	b.WriteString("\n\n")
	b.WriteString(queryBlock)
	return b.String(), admitted
}
