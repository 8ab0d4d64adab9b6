package rag

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/duc-ai/duc/internal/index"
	"github.com/duc-ai/duc/internal/session"
)

func TestFormatSection(t *testing.T) {
	s := formatSection(match("a.pdf", intPtr(2), "chunk text", 0.9))
	assert.Equal(t, "[Source: a.pdf, Page: 2]\nchunk text", s)

	s = formatSection(match("b.txt", nil, "pageless", 0.9))
	assert.Equal(t, "[Source: b.txt, Page: ?]\npageless", s)
}

func TestBuildContext_JoinsWithSeparator(t *testing.T) {
	ctx := buildContext([]index.Match{
		match("a.pdf", intPtr(0), "first", 0.9),
		match("b.txt", nil, "second", 0.8),
	})
	parts := strings.Split(ctx, "\n\n---\n\n")
	require.Len(t, parts, 2)
	assert.Contains(t, parts[0], "first")
	assert.Contains(t, parts[1], "second")
}

func TestFormatHistory(t *testing.T) {
	h := formatHistory([]session.Turn{
		{Question: "q1", Answer: "a1"},
		{Question: "q2", Answer: "a2"},
	})
	assert.Equal(t, "USER: q1\nASSISTANT: a1\nUSER: q2\nASSISTANT: a2\n", h)
}

func TestPromptBuilder_FitKeepsWithinBudget(t *testing.T) {
	// No encoder: counting falls back to the four-chars-per-token estimate.
	b := &promptBuilder{tokenBudget: 30}

	matches := []index.Match{
		match("a.pdf", intPtr(0), strings.Repeat("a", 80), 0.9), // ~26 tokens with label
		match("b.txt", nil, strings.Repeat("b", 80), 0.8),
		match("c.txt", nil, strings.Repeat("c", 80), 0.7),
	}

	kept := b.fit(matches)
	require.Len(t, kept, 1)
	assert.Equal(t, "a.pdf", kept[0].Entry.Filename)
}

func TestPromptBuilder_FitAlwaysKeepsBestMatch(t *testing.T) {
	b := &promptBuilder{tokenBudget: 1}
	matches := []index.Match{match("a.pdf", intPtr(0), strings.Repeat("a", 500), 0.9)}
	assert.Len(t, b.fit(matches), 1)
}

func TestPromptBuilder_NoBudgetKeepsAll(t *testing.T) {
	b := newPromptBuilder(0)
	matches := []index.Match{
		match("a.pdf", intPtr(0), "one", 0.9),
		match("b.txt", nil, "two", 0.8),
	}
	assert.Len(t, b.fit(matches), 2)
}
