// Package rag coordinates the ingestion and question-answering pipelines:
// load, chunk, embed and index on upload; embed, search, assemble and
// generate on a question.
package rag

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/duc-ai/duc/internal/chunker"
	"github.com/duc-ai/duc/internal/documents"
	"github.com/duc-ai/duc/internal/embeddings"
	"github.com/duc-ai/duc/internal/index"
	"github.com/duc-ai/duc/internal/llm"
	"github.com/duc-ai/duc/internal/session"
)

// Answer is the result of one question: generated text plus the citations
// for the passages that backed it. Citations are empty when retrieval found
// nothing; the answer then comes from conversation alone.
type Answer struct {
	Text      string     `json:"answer"`
	Citations []Citation `json:"citations"`
}

// ServiceConfig wires the orchestrator's collaborators and knobs.
type ServiceConfig struct {
	Loaders   *documents.Registry
	Chunker   *chunker.Chunker
	Embedder  embeddings.Embedder
	Index     index.Index
	Sessions  session.Store
	Generator llm.Generator

	// TopK is the default retrieval depth when a request does not name one.
	TopK int
	// ContextTokenBudget bounds the retrieved context in the prompt.
	ContextTokenBudget int
	// SnippetLength bounds citation previews, in runes.
	SnippetLength int

	Logger *slog.Logger
}

// Service is the RAG orchestrator.
type Service struct {
	loaders   *documents.Registry
	chunker   *chunker.Chunker
	embedder  embeddings.Embedder
	index     index.Index
	sessions  session.Store
	generator llm.Generator

	topK       int
	snippetLen int
	prompts    *promptBuilder
	log        *slog.Logger

	// fileLocks serializes ingestion per filename so concurrent re-uploads
	// of the same file cannot interleave their delete-then-upsert.
	mu        sync.Mutex
	fileLocks map[string]*sync.Mutex
}

// NewService creates the orchestrator.
func NewService(cfg ServiceConfig) *Service {
	log := cfg.Logger
	if log == nil {
		log = slog.Default()
	}
	topK := cfg.TopK
	if topK <= 0 {
		topK = 6
	}
	snippetLen := cfg.SnippetLength
	if snippetLen <= 0 {
		snippetLen = 240
	}
	return &Service{
		loaders:    cfg.Loaders,
		chunker:    cfg.Chunker,
		embedder:   cfg.Embedder,
		index:      cfg.Index,
		sessions:   cfg.Sessions,
		generator:  cfg.Generator,
		topK:       topK,
		snippetLen: snippetLen,
		prompts:    newPromptBuilder(cfg.ContextTokenBudget),
		log:        log.With("component", "rag"),
	}
}

// fileLock returns the ingestion mutex for a filename, creating it lazily.
func (s *Service) fileLock(filename string) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.fileLocks == nil {
		s.fileLocks = make(map[string]*sync.Mutex)
	}
	l, ok := s.fileLocks[filename]
	if !ok {
		l = &sync.Mutex{}
		s.fileLocks[filename] = l
	}
	return l
}

// Ingest loads, chunks, embeds and indexes one uploaded file, returning the
// number of indexed chunks. Re-uploading a filename replaces its previous
// chunks. The replacement is atomic from a searcher's point of view: the old
// version stays searchable until load, chunking and embedding have all
// succeeded, and the new chunks land in a single index upsert.
func (s *Service) Ingest(ctx context.Context, filename string, data []byte) (int, error) {
	lock := s.fileLock(filename)
	lock.Lock()
	defer lock.Unlock()

	start := time.Now()

	units, err := s.loaders.Load(filename, data)
	if err != nil {
		s.log.Warn("ingest failed", "operation", "load", "filename", filename, "error", err)
		return 0, err
	}

	chunks := s.chunker.Split(units)
	if len(chunks) == 0 {
		return 0, &documents.LoadError{Filename: filename, Err: fmt.Errorf("no text content extracted")}
	}

	texts := make([]string, len(chunks))
	for i, c := range chunks {
		texts[i] = c.Text
	}
	vectors, err := s.embedder.Embed(ctx, texts)
	if err != nil {
		s.log.Warn("ingest failed", "operation", "embed", "filename", filename, "error", err)
		return 0, err
	}
	if len(vectors) != len(chunks) {
		return 0, &embeddings.EmbedError{Provider: "embedder", Err: fmt.Errorf("expected %d vectors, got %d", len(chunks), len(vectors))}
	}

	uploadID := fmt.Sprintf("%d_%s", start.Unix(), uuid.NewString()[:8])
	fileType := strings.TrimPrefix(strings.ToLower(filepath.Ext(filename)), ".")
	entries := make([]index.Entry, len(chunks))
	for i, c := range chunks {
		entries[i] = index.Entry{
			Filename:   filename,
			Page:       c.Page,
			ChunkIndex: c.Index,
			Text:       c.Text,
			Vector:     vectors[i],
			FileType:   fileType,
			FileSize:   int64(len(data)),
			UploadID:   uploadID,
			UploadedAt: start,
		}
	}

	// The prior version is only removed once the new one is fully built,
	// so a failed re-upload keeps the old chunks searchable.
	removed, err := s.index.DeleteByFilename(ctx, filename)
	if err != nil {
		return 0, err
	}
	if err := s.index.Upsert(ctx, entries); err != nil {
		s.log.Error("ingest failed", "operation", "upsert", "filename", filename, "error", err)
		return 0, err
	}

	s.log.Info("document ingested",
		"filename", filename,
		"chunks", len(entries),
		"replaced_chunks", removed,
		"upload_id", uploadID,
		"duration", time.Since(start),
	)
	return len(entries), nil
}

// Answer runs the question path: embed the question, retrieve the k best
// chunks (honoring the filename filter), assemble the prompt with bounded
// session history, generate once, record the turn and return the answer with
// citations for the passages that were actually in the prompt. With zero
// retrieved chunks the answer is generated from conversation alone and
// citations are empty.
func (s *Service) Answer(ctx context.Context, question, sessionID string, k int, filenames []string) (Answer, error) {
	if strings.TrimSpace(question) == "" {
		return Answer{}, fmt.Errorf("question cannot be empty")
	}
	if k <= 0 {
		k = s.topK
	}

	vectors, err := s.embedder.Embed(ctx, []string{question})
	if err != nil {
		s.log.Warn("answer failed", "operation", "embed", "session_id", sessionID, "error", err)
		return Answer{}, err
	}

	matches, err := s.index.Search(ctx, vectors[0], k, filenames)
	if err != nil {
		s.log.Warn("answer failed", "operation", "search", "session_id", sessionID, "error", err)
		return Answer{}, err
	}

	kept := s.prompts.fit(matches)
	history := s.sessions.History(sessionID)

	prompt := llm.Prompt{
		System:   systemPrompt,
		Context:  buildContext(kept),
		History:  formatHistory(history),
		Question: question,
	}
	text, err := s.generator.Generate(ctx, prompt)
	if err != nil {
		s.log.Warn("answer failed", "operation", "generate", "session_id", sessionID, "error", err)
		return Answer{}, err
	}

	s.sessions.Append(sessionID, question, text)

	citations := buildCitations(kept, s.snippetLen)
	if citations == nil {
		citations = []Citation{}
	}

	s.log.Info("question answered",
		"session_id", sessionID,
		"retrieved", len(matches),
		"in_prompt", len(kept),
		"citations", len(citations),
	)
	return Answer{Text: text, Citations: citations}, nil
}

// DeleteDocument removes all chunks of a file from the index. A filename
// with no indexed chunks reports index.ErrNotFound with a zero count.
func (s *Service) DeleteDocument(ctx context.Context, filename string) (int, error) {
	lock := s.fileLock(filename)
	lock.Lock()
	defer lock.Unlock()

	removed, err := s.index.DeleteByFilename(ctx, filename)
	if err != nil {
		return 0, err
	}
	if removed == 0 {
		return 0, fmt.Errorf("%s: %w", filename, index.ErrNotFound)
	}
	s.log.Info("document deleted", "filename", filename, "chunks", removed)
	return removed, nil
}

// DeleteAll clears the whole corpus and returns the number of removed chunks.
func (s *Service) DeleteAll(ctx context.Context) (int, error) {
	removed, err := s.index.DeleteAll(ctx)
	if err != nil {
		return 0, err
	}
	s.log.Info("all documents deleted", "chunks", removed)
	return removed, nil
}

// ListDocuments returns the per-filename aggregates from the index.
func (s *Service) ListDocuments(ctx context.Context) ([]index.DocumentInfo, error) {
	return s.index.ListDocuments(ctx)
}
