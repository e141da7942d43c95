package rag

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/rag-engine/server/internal/vectorstore"
)

// noContextPlaceholder stands in for the context block when retrieval
// returned nothing.
const noContextPlaceholder = "No relevant context found in the uploaded documents."

// buildContext renders retrieved chunks as numbered, labeled blocks in
// retrieval order. The store already returns them by descending
// similarity; nothing is re-sorted here.
func buildContext(results []vectorstore.Result) string {
	if len(results) == 0 {
		return noContextPlaceholder
	}

	var b strings.Builder
	b.WriteString("=== RELEVANT DOCUMENT CONTEXT ===\n\n")

	for i, res := range results {
		fmt.Fprintf(&b, "[Source %d - %s, Chunk %d]\n", i+1, res.DocumentName, res.ChunkIndex)
		b.WriteString(res.Text)
		b.WriteString("\n\n---\n\n")
	}

	return b.String()
}

// buildAugmentedPrompt combines the instructional template, the
// assembled context and the literal question. This prompt is sent to
// the generator but never persisted; the conversation keeps the raw
// question so later turns don't re-inject stale context.
func buildAugmentedPrompt(question, context string) string {
	return fmt.Sprintf(`Based on the following context from the uploaded documents, please answer my question.
If the context doesn't contain enough information, clearly state that.
Always reference which source(s) you're using in your answer.

%s

=== QUESTION ===
%s
`, context, question)
}

// truncate shortens text to maxLength characters, appending an ellipsis
// when anything was cut. Counts runes, not bytes, so multi-byte text is
// never split mid-character.
func truncate(text string, maxLength int) string {
	if utf8.RuneCountInString(text) <= maxLength {
		return text
	}
	return string([]rune(text)[:maxLength]) + "..."
}
