package chunker

import (
	"regexp"
	"strings"
	"unicode"
)

var whitespaceRE = regexp.MustCompile(`\s+`)

// Chunker splits extracted text into overlapping chunks using
// sentence-aware boundaries. Identical input and parameters always
// produce an identical chunk sequence.
type Chunker struct {
	chunkSize    int
	chunkOverlap int
	minChunkSize int
}

// New creates a new chunker
func New(chunkSize, chunkOverlap, minChunkSize int) *Chunker {
	if chunkSize <= 0 {
		chunkSize = 800
	}
	if chunkOverlap < 0 {
		chunkOverlap = 200
	}
	if minChunkSize <= 0 {
		minChunkSize = 100
	}
	return &Chunker{
		chunkSize:    chunkSize,
		chunkOverlap: chunkOverlap,
		minChunkSize: minChunkSize,
	}
}

// Split splits text into overlapping chunks. Empty or whitespace-only
// input yields no chunks.
func (c *Chunker) Split(text string) []string {
	text = strings.TrimSpace(whitespaceRE.ReplaceAllString(text, " "))
	if text == "" {
		return nil
	}

	sentences := splitSentences(text)

	// No usable sentence boundaries in an oversized text: fall back to
	// fixed-size windows.
	if len(sentences) <= 1 && len(text) > c.chunkSize {
		return c.splitFixed(text)
	}

	return c.group(sentences)
}

// splitSentences splits normalized text on sentence boundaries: a
// terminator (. ! ?) followed by whitespace and an upper-case letter.
// Requiring the upper-case letter avoids splitting on abbreviations and
// decimals.
func splitSentences(text string) []string {
	var sentences []string
	runes := []rune(text)
	start := 0

	for i := 0; i < len(runes); i++ {
		r := runes[i]
		if r != '.' && r != '!' && r != '?' {
			continue
		}
		j := i + 1
		for j < len(runes) && unicode.IsSpace(runes[j]) {
			j++
		}
		if j == i+1 || j >= len(runes) || !unicode.IsUpper(runes[j]) {
			continue
		}
		sentence := strings.TrimSpace(string(runes[start : i+1]))
		if sentence != "" {
			sentences = append(sentences, sentence)
		}
		start = j
		i = j - 1
	}

	if tail := strings.TrimSpace(string(runes[start:])); tail != "" {
		sentences = append(sentences, tail)
	}
	return sentences
}

// group greedily accumulates sentences into chunks of approximately
// chunkSize characters, seeding each new chunk with enough trailing
// sentences from the previous one to cover chunkOverlap. The window
// start advances to the first overlapped sentence so overlap is
// computed against real chunk boundaries rather than the whole text.
func (c *Chunker) group(sentences []string) []string {
	var chunks []string
	if len(sentences) == 0 {
		return chunks
	}

	var current strings.Builder
	sentenceStart := 0

	for i := 0; i < len(sentences); i++ {
		sentence := sentences[i]

		if current.Len() > 0 && current.Len()+len(sentence) > c.chunkSize {
			chunk := strings.TrimSpace(current.String())
			if len(chunk) >= c.minChunkSize {
				chunks = append(chunks, chunk)
			}

			// Walk backward through the current window until the
			// accumulated sentence lengths cover the overlap.
			current.Reset()
			overlapLen := 0
			overlapStart := i
			for j := i - 1; j >= sentenceStart; j-- {
				overlapLen += len(sentences[j]) + 1
				overlapStart = j
				if overlapLen >= c.chunkOverlap {
					break
				}
			}
			for j := overlapStart; j < i; j++ {
				current.WriteString(sentences[j])
				current.WriteByte(' ')
			}
			sentenceStart = overlapStart
		}

		current.WriteString(sentence)
		current.WriteByte(' ')
	}

	if last := strings.TrimSpace(current.String()); len(last) >= c.minChunkSize {
		chunks = append(chunks, last)
	}
	return chunks
}

// splitFixed splits text into fixed-size windows when no sentence
// boundaries were found, preferring to cut at the last space before the
// window end. Windows below minChunkSize are dropped, including a short
// final remainder.
func (c *Chunker) splitFixed(text string) []string {
	var chunks []string
	start := 0

	for start < len(text) {
		end := start + c.chunkSize
		if end > len(text) {
			end = len(text)
		}

		if end < len(text) {
			if idx := strings.LastIndexByte(text[:end+1], ' '); idx > start {
				end = idx
			}
		}

		chunk := strings.TrimSpace(text[start:end])
		if len(chunk) >= c.minChunkSize {
			chunks = append(chunks, chunk)
		}

		if end >= len(text) {
			break
		}

		// Advance with overlap, but always move forward so an overlap
		// at or above the chunk size cannot stall the loop.
		next := end - c.chunkOverlap
		if next <= start {
			step := c.chunkSize / 2
			if step < 1 {
				step = 1
			}
			next = start + step
		}
		start = next
	}
	return chunks
}

// EstimateTokens estimates the token count for a piece of text at
// roughly four characters per token. Advisory only.
func EstimateTokens(text string) int {
	if strings.TrimSpace(text) == "" {
		return 0
	}
	return (len(text) + 3) / 4
}
