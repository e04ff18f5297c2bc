package tokenizer_test

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/ajitpratap0/cortex-graph/pkg/tokenizer"
)

func TestEstimateTokens(t *testing.T) {
	assert.Zero(t, tokenizer.EstimateTokens(""))
	assert.Positive(t, tokenizer.EstimateTokens("hello world"))
	assert.Greater(t, tokenizer.EstimateTokens(strings.Repeat("word ", 100)), tokenizer.EstimateTokens("word"))
}

func TestTruncate(t *testing.T) {
	short := "Ada Lovelace wrote notes."
	got, cut := tokenizer.Truncate(short, 100)
	assert.Equal(t, short, got)
	assert.False(t, cut)

	long := strings.Repeat("observation ", 200)
	got, cut = tokenizer.Truncate(long, 10)
	assert.True(t, cut)
	assert.LessOrEqual(t, len([]rune(got)), 40)
	assert.False(t, strings.HasSuffix(got, "observatio"), "cuts at a word boundary")

	got, cut = tokenizer.Truncate("anything", 0)
	assert.Empty(t, got)
	assert.True(t, cut)
}

func TestTruncate_MultibyteSafe(t *testing.T) {
	got, cut := tokenizer.Truncate(strings.Repeat("日本語", 100), 5)
	assert.True(t, cut)
	assert.True(t, strings.HasPrefix(strings.Repeat("日本語", 100), got))
}
