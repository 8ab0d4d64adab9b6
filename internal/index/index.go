// Package index defines the vector index contract: persistent storage of
// chunk vectors plus metadata, cosine-similarity search with optional
// filename filtering, and deletion by filename.
package index

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// ErrNotFound reports a filename with no indexed chunks. It is benign:
// callers hitting it on delete treat the operation as a no-op.
var ErrNotFound = errors.New("document not found")

// IndexError reports a storage-layer failure.
type IndexError struct {
	Op  string
	Err error
}

func (e *IndexError) Error() string {
	return fmt.Sprintf("index %s: %v", e.Op, e.Err)
}

func (e *IndexError) Unwrap() error { return e.Err }

// Entry is one stored chunk: its vector plus the metadata needed to cite and
// delete it later.
type Entry struct {
	Filename   string
	Page       *int // zero-based, nil for pageless formats
	ChunkIndex int
	Text       string
	Vector     []float32

	FileType   string
	FileSize   int64
	UploadID   string
	UploadedAt time.Time
}

// ID returns the entry's synthesized unique id.
func (e Entry) ID() uuid.UUID {
	return ChunkID(e.Filename, e.ChunkIndex)
}

// Match is a search hit. Score is cosine similarity, higher is better.
type Match struct {
	Entry Entry
	Score float64
}

// DocumentInfo is the per-filename aggregate over stored entries.
type DocumentInfo struct {
	Filename   string
	FileType   string
	FileSize   int64
	UploadID   string
	UploadedAt time.Time
	ChunkCount int
}

// Index stores chunk vectors and metadata. Both implementations use cosine
// similarity, so rankings are comparable across backends.
type Index interface {
	// Upsert stores entries, replacing any entry with the same id. All
	// entries of one call become visible atomically: a concurrent Search
	// sees either all of them or none.
	Upsert(ctx context.Context, entries []Entry) error

	// Search returns the k most similar entries, best first. When
	// filenames is non-empty only entries of those files are considered.
	// Equal scores keep insertion order so results are deterministic.
	Search(ctx context.Context, vector []float32, k int, filenames []string) ([]Match, error)

	// DeleteByFilename removes all entries of a file, returning how many
	// were removed. An unknown filename removes zero and is not an error.
	DeleteByFilename(ctx context.Context, filename string) (int, error)

	// DeleteAll clears the index and returns the number of removed entries.
	DeleteAll(ctx context.Context) (int, error)

	// ListDocuments returns the per-filename aggregates.
	ListDocuments(ctx context.Context) ([]DocumentInfo, error)
}

// chunkNamespace scopes synthesized chunk ids to this application.
var chunkNamespace = uuid.MustParse("a9f3b2c4-7d6e-4f1a-9c8b-2e5d4a3f1b0c")

// ChunkID synthesizes the unique id of a chunk from its filename and chunk
// index. The id is deterministic, so re-ingesting a file produces the same
// ids and cleanly replaces prior entries, and delete-by-filename plus
// reinsert can never leave strays behind.
func ChunkID(filename string, chunkIndex int) uuid.UUID {
	return uuid.NewSHA1(chunkNamespace, []byte(fmt.Sprintf("%s#%d", filename, chunkIndex)))
}
