package chunker

import (
	"fmt"

	"github.com/duc-ai/duc/internal/documents"
)

// Chunk is a contiguous span of a document's extracted text.
type Chunk struct {
	// Index is the zero-based sequential position within the document.
	Index int
	// Page is the zero-based page the chunk starts on, nil for pageless
	// formats. A chunk spanning a page boundary keeps the earliest page.
	Page *int
	Text string
}

// Chunker splits extracted text into overlapping fixed-size chunks. Sizes are
// rune counts. Each chunk after the first re-includes the trailing overlap of
// the previous chunk so content at a boundary is not lost to either side.
type Chunker struct {
	chunkSize int
	overlap   int
}

// New validates the configuration and creates a Chunker. Overlap must be
// smaller than the chunk size.
func New(chunkSize, overlap int) (*Chunker, error) {
	if chunkSize <= 0 {
		return nil, fmt.Errorf("chunk size must be positive, got %d", chunkSize)
	}
	if overlap < 0 {
		return nil, fmt.Errorf("overlap must not be negative, got %d", overlap)
	}
	if overlap >= chunkSize {
		return nil, fmt.Errorf("overlap (%d) must be smaller than chunk size (%d)", overlap, chunkSize)
	}
	return &Chunker{chunkSize: chunkSize, overlap: overlap}, nil
}

// Split chunks the ordered text units of one document. The units' texts are
// concatenated without separators, so joining the chunks back together
// (dropping each chunk's leading overlap) reconstructs the extracted text.
func (c *Chunker) Split(units []documents.Unit) []Chunk {
	type boundary struct {
		start int // rune offset of the unit's first character
		page  *int
	}

	var full []rune
	var boundaries []boundary
	for _, u := range units {
		boundaries = append(boundaries, boundary{start: len(full), page: u.Page})
		full = append(full, []rune(u.Text)...)
	}
	if len(full) == 0 {
		return nil
	}

	pageAt := func(offset int) *int {
		page := boundaries[0].page
		for _, b := range boundaries {
			if b.start > offset {
				break
			}
			page = b.page
		}
		return page
	}

	var chunks []Chunk
	pos := 0
	for {
		end := pos + c.chunkSize
		if end > len(full) {
			end = len(full)
		}
		chunks = append(chunks, Chunk{
			Index: len(chunks),
			Page:  pageAt(pos),
			Text:  string(full[pos:end]),
		})
		if end == len(full) {
			break
		}
		pos = end - c.overlap
	}
	return chunks
}
