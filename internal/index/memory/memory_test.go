package memory

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/duc-ai/duc/internal/index"
)

func entry(filename string, chunkIndex int, vec []float32) index.Entry {
	return index.Entry{
		Filename:   filename,
		ChunkIndex: chunkIndex,
		Text:       fmt.Sprintf("%s chunk %d", filename, chunkIndex),
		Vector:     vec,
		FileType:   "txt",
		FileSize:   100,
		UploadID:   "1_abcd1234",
		UploadedAt: time.Now(),
	}
}

func TestUpsertAndSearch(t *testing.T) {
	ctx := context.Background()
	s := NewStore()

	require.NoError(t, s.Upsert(ctx, []index.Entry{
		entry("a.txt", 0, []float32{1, 0}),
		entry("a.txt", 1, []float32{0, 1}),
	}))

	matches, err := s.Search(ctx, []float32{1, 0}, 2, nil)
	require.NoError(t, err)
	require.Len(t, matches, 2)
	assert.Equal(t, 0, matches[0].Entry.ChunkIndex)
	assert.Greater(t, matches[0].Score, matches[1].Score)
}

func TestSearch_FilenameFilter(t *testing.T) {
	ctx := context.Background()
	s := NewStore()

	require.NoError(t, s.Upsert(ctx, []index.Entry{
		entry("a.pdf", 0, []float32{1, 0}),
		entry("b.txt", 0, []float32{1, 0}),
		entry("c.txt", 0, []float32{1, 0}),
	}))

	matches, err := s.Search(ctx, []float32{1, 0}, 10, []string{"a.pdf"})
	require.NoError(t, err)
	require.Len(t, matches, 1)
	assert.Equal(t, "a.pdf", matches[0].Entry.Filename)

	// A filter naming an unknown file matches nothing.
	matches, err = s.Search(ctx, []float32{1, 0}, 10, []string{"missing.pdf"})
	require.NoError(t, err)
	assert.Empty(t, matches)
}

func TestSearch_TiesKeepInsertionOrder(t *testing.T) {
	ctx := context.Background()
	s := NewStore()

	// Identical vectors, identical scores: insertion order decides.
	for i := 0; i < 5; i++ {
		require.NoError(t, s.Upsert(ctx, []index.Entry{entry(fmt.Sprintf("f%d.txt", i), 0, []float32{1, 1})}))
	}

	for run := 0; run < 3; run++ {
		matches, err := s.Search(ctx, []float32{1, 1}, 5, nil)
		require.NoError(t, err)
		require.Len(t, matches, 5)
		for i, m := range matches {
			assert.Equal(t, fmt.Sprintf("f%d.txt", i), m.Entry.Filename)
		}
	}
}

func TestUpsert_SameIDReplaces(t *testing.T) {
	ctx := context.Background()
	s := NewStore()

	e := entry("a.txt", 0, []float32{1, 0})
	require.NoError(t, s.Upsert(ctx, []index.Entry{e}))

	e.Text = "replaced"
	require.NoError(t, s.Upsert(ctx, []index.Entry{e}))

	matches, err := s.Search(ctx, []float32{1, 0}, 10, nil)
	require.NoError(t, err)
	require.Len(t, matches, 1)
	assert.Equal(t, "replaced", matches[0].Entry.Text)
}

func TestUpsert_RejectsMissingFilename(t *testing.T) {
	ctx := context.Background()
	s := NewStore()

	err := s.Upsert(ctx, []index.Entry{{Vector: []float32{1}}})
	require.Error(t, err)
	var idxErr *index.IndexError
	assert.ErrorAs(t, err, &idxErr)
}

func TestDeleteByFilename(t *testing.T) {
	ctx := context.Background()
	s := NewStore()

	require.NoError(t, s.Upsert(ctx, []index.Entry{
		entry("a.pdf", 0, []float32{1, 0}),
		entry("a.pdf", 1, []float32{0, 1}),
		entry("b.txt", 0, []float32{1, 1}),
	}))

	removed, err := s.DeleteByFilename(ctx, "a.pdf")
	require.NoError(t, err)
	assert.Equal(t, 2, removed)

	matches, err := s.Search(ctx, []float32{1, 0}, 10, nil)
	require.NoError(t, err)
	for _, m := range matches {
		assert.NotEqual(t, "a.pdf", m.Entry.Filename)
	}

	// Deleting again is a benign no-op.
	removed, err = s.DeleteByFilename(ctx, "a.pdf")
	require.NoError(t, err)
	assert.Zero(t, removed)
}

func TestDeleteAll(t *testing.T) {
	ctx := context.Background()
	s := NewStore()

	require.NoError(t, s.Upsert(ctx, []index.Entry{
		entry("a.pdf", 0, []float32{1, 0}),
		entry("b.txt", 0, []float32{0, 1}),
	}))

	removed, err := s.DeleteAll(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, removed)

	docs, err := s.ListDocuments(ctx)
	require.NoError(t, err)
	assert.Empty(t, docs)
}

func TestListDocuments_Aggregates(t *testing.T) {
	ctx := context.Background()
	s := NewStore()

	require.NoError(t, s.Upsert(ctx, []index.Entry{
		entry("a.pdf", 0, []float32{1, 0}),
		entry("a.pdf", 1, []float32{0, 1}),
		entry("a.pdf", 2, []float32{1, 1}),
		entry("b.txt", 0, []float32{1, 0}),
	}))

	docs, err := s.ListDocuments(ctx)
	require.NoError(t, err)
	require.Len(t, docs, 2)

	byName := map[string]index.DocumentInfo{}
	for _, d := range docs {
		byName[d.Filename] = d
	}
	assert.Equal(t, 3, byName["a.pdf"].ChunkCount)
	assert.Equal(t, 1, byName["b.txt"].ChunkCount)
	assert.Equal(t, "txt", byName["b.txt"].FileType)
}

func TestChunkID_Deterministic(t *testing.T) {
	a := index.ChunkID("a.pdf", 3)
	b := index.ChunkID("a.pdf", 3)
	c := index.ChunkID("a.pdf", 4)
	d := index.ChunkID("b.pdf", 3)

	assert.Equal(t, a, b)
	assert.NotEqual(t, a, c)
	assert.NotEqual(t, a, d)
}
