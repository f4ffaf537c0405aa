package messages

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSplitKeepsURLIntact(t *testing.T) {
	chunks := Split("Visit http://a.com now. Thanks.")

	require.Len(t, chunks, 2)
	assert.Equal(t, "Visit http://a.com now.", chunks[0])
	assert.Equal(t, "Thanks.", chunks[1])
}

func TestSplitKeepsEmailIntact(t *testing.T) {
	chunks := Split("Write to suporte@zapgpt.com.br for help. We answer fast.")

	require.Len(t, chunks, 2)
	assert.Contains(t, chunks[0], "suporte@zapgpt.com.br")
	assert.Equal(t, "We answer fast.", chunks[1])
}

func TestSplitKeepsQuotedSpanIntact(t *testing.T) {
	chunks := Split(`He said "Stop. Now." and left. Then it was quiet.`)

	require.Len(t, chunks, 2)
	assert.Contains(t, chunks[0], `"Stop. Now."`)
	assert.Equal(t, "Then it was quiet.", chunks[1])
}

func TestSplitKeepsOrdinalsAndAbbreviations(t *testing.T) {
	chunks := Split("1. Buy bread. 2. Visit node.js docs.")

	require.Len(t, chunks, 2)
	assert.Equal(t, "1. Buy bread.", chunks[0])
	assert.Equal(t, "2. Visit node.js docs.", chunks[1])
}

func TestSplitPlainSentences(t *testing.T) {
	chunks := Split("Hello! How are you? I am fine.")

	assert.Equal(t, []string{"Hello!", "How are you?", "I am fine."}, chunks)
}

func TestSplitEmptyInput(t *testing.T) {
	assert.Empty(t, Split(""))
}

func TestSplitTextWithoutTerminator(t *testing.T) {
	chunks := Split("just a fragment with no punctuation")

	require.Len(t, chunks, 1)
	assert.Equal(t, "just a fragment with no punctuation", chunks[0])
}

func TestSplitReproducesProtectedTokens(t *testing.T) {
	text := `Check https://docs.example.com/guide first. Then mail ops@corp.io. Finally say "done. all good." to me.`

	rejoined := strings.Join(Split(text), " ")

	for _, token := range []string{"https://docs.example.com/guide", "ops@corp.io", `"done. all good."`} {
		assert.Contains(t, rejoined, token)
	}
}

func TestSplitManyProtectedTokens(t *testing.T) {
	// More than ten tokens exercises placeholder restoration order.
	var b strings.Builder
	for i := 0; i < 12; i++ {
		b.WriteString("See http://example.com/page now. ")
	}

	chunks := Split(b.String())

	require.Len(t, chunks, 12)
	for _, chunk := range chunks {
		assert.Contains(t, chunk, "http://example.com/page")
		assert.NotContains(t, chunk, "PLACEHOLDER_")
	}
}
