package rag

import (
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
)

func TestTruncate_ShortTextIsUntouched(t *testing.T) {
	assert.Equal(t, "hello", truncate("hello", 10))
	assert.Equal(t, "hello", truncate("hello", 5))
}

func TestTruncate_CountsRunesNotBytes(t *testing.T) {
	// 150 characters but 300 bytes; under the limit, must pass through.
	text := strings.Repeat("é", 150)
	assert.Equal(t, text, truncate(text, 200))
}

func TestTruncate_NeverSplitsARune(t *testing.T) {
	text := strings.Repeat("a", 199) + strings.Repeat("é", 10)

	got := truncate(text, 200)
	assert.True(t, utf8.ValidString(got))
	assert.Equal(t, strings.Repeat("a", 199)+"é...", got)
}

func TestTruncate_AppendsEllipsisWhenCut(t *testing.T) {
	got := truncate(strings.Repeat("x", 250), 200)
	assert.Len(t, got, 203)
	assert.True(t, strings.HasSuffix(got, "..."))
}
