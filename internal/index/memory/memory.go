// Package memory provides an in-memory Index using brute-force cosine
// similarity. It backs tests and single-process development runs; the
// postgres store is the durable production backend.
package memory

import (
	"context"
	"fmt"
	"math"
	"sort"
	"sync"

	"github.com/google/uuid"
	"github.com/duc-ai/duc/internal/index"
)

type record struct {
	entry index.Entry
	seq   int // insertion order, used to keep equal scores stable
}

// Store is a mutex-guarded in-memory vector index.
type Store struct {
	mu      sync.RWMutex
	records map[uuid.UUID]*record
	nextSeq int
}

// NewStore creates an empty in-memory index.
func NewStore() *Store {
	return &Store{records: make(map[uuid.UUID]*record)}
}

// Upsert stores entries under their synthesized ids, replacing existing ones.
// The whole batch lands under one lock hold, so concurrent searches see it
// all or not at all.
func (s *Store) Upsert(ctx context.Context, entries []index.Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, e := range entries {
		if e.Filename == "" {
			return &index.IndexError{Op: "upsert", Err: fmt.Errorf("entry without filename")}
		}
		id := e.ID()
		if existing, ok := s.records[id]; ok {
			existing.entry = e
			continue
		}
		s.records[id] = &record{entry: e, seq: s.nextSeq}
		s.nextSeq++
	}
	return nil
}

// Search returns the k best matches by cosine similarity, best first, with
// insertion order breaking ties.
func (s *Store) Search(ctx context.Context, vector []float32, k int, filenames []string) ([]index.Match, error) {
	if k <= 0 {
		return nil, nil
	}

	var allow map[string]bool
	if len(filenames) > 0 {
		allow = make(map[string]bool, len(filenames))
		for _, f := range filenames {
			allow[f] = true
		}
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	type scored struct {
		rec   *record
		score float64
	}
	var candidates []scored
	for _, rec := range s.records {
		if allow != nil && !allow[rec.entry.Filename] {
			continue
		}
		candidates = append(candidates, scored{rec: rec, score: cosine(rec.entry.Vector, vector)})
	}

	sort.Slice(candidates, func(i, j int) bool {
		if candidates[i].score != candidates[j].score {
			return candidates[i].score > candidates[j].score
		}
		return candidates[i].rec.seq < candidates[j].rec.seq
	})

	if k > len(candidates) {
		k = len(candidates)
	}
	matches := make([]index.Match, 0, k)
	for _, c := range candidates[:k] {
		matches = append(matches, index.Match{Entry: c.rec.entry, Score: c.score})
	}
	return matches, nil
}

// DeleteByFilename removes every entry of the file and returns the count.
func (s *Store) DeleteByFilename(ctx context.Context, filename string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	removed := 0
	for id, rec := range s.records {
		if rec.entry.Filename == filename {
			delete(s.records, id)
			removed++
		}
	}
	return removed, nil
}

// DeleteAll clears the store and returns the number of removed entries.
func (s *Store) DeleteAll(ctx context.Context) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	removed := len(s.records)
	s.records = make(map[uuid.UUID]*record)
	return removed, nil
}

// ListDocuments aggregates stored entries per filename, most recent upload
// first.
func (s *Store) ListDocuments(ctx context.Context) ([]index.DocumentInfo, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	byName := make(map[string]*index.DocumentInfo)
	for _, rec := range s.records {
		e := rec.entry
		info, ok := byName[e.Filename]
		if !ok {
			info = &index.DocumentInfo{
				Filename:   e.Filename,
				FileType:   e.FileType,
				FileSize:   e.FileSize,
				UploadID:   e.UploadID,
				UploadedAt: e.UploadedAt,
			}
			byName[e.Filename] = info
		}
		info.ChunkCount++
	}

	docs := make([]index.DocumentInfo, 0, len(byName))
	for _, info := range byName {
		docs = append(docs, *info)
	}
	sort.Slice(docs, func(i, j int) bool {
		if !docs[i].UploadedAt.Equal(docs[j].UploadedAt) {
			return docs[i].UploadedAt.After(docs[j].UploadedAt)
		}
		return docs[i].Filename < docs[j].Filename
	})
	return docs, nil
}

// cosine computes cosine similarity between two vectors.
func cosine(a, b []float32) float64 {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	var dot, normA, normB float64
	for i := 0; i < n; i++ {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}

var _ index.Index = (*Store)(nil)
