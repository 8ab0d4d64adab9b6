package rag

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/duc-ai/duc/internal/chunker"
	"github.com/duc-ai/duc/internal/documents"
	"github.com/duc-ai/duc/internal/embeddings"
	"github.com/duc-ai/duc/internal/index"
	"github.com/duc-ai/duc/internal/index/memory"
	"github.com/duc-ai/duc/internal/llm"
	"github.com/duc-ai/duc/internal/session"
)

// fakeEmbedder maps text to keyword-occurrence vectors so similarity in
// tests is predictable: a query mentioning "gamma" lands on chunks that
// contain "gamma".
type fakeEmbedder struct {
	mu   sync.Mutex
	fail bool
}

var keywords = []string{"alpha", "beta", "gamma"}

func (f *fakeEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	f.mu.Lock()
	fail := f.fail
	f.mu.Unlock()
	if fail {
		return nil, &embeddings.EmbedError{Provider: "fake", Err: errors.New("forced failure")}
	}
	vectors := make([][]float32, len(texts))
	for i, text := range texts {
		vec := make([]float32, len(keywords)+1)
		for j, kw := range keywords {
			vec[j] = float32(strings.Count(strings.ToLower(text), kw))
		}
		vec[len(keywords)] = 1
		vectors[i] = vec
	}
	return vectors, nil
}

func (f *fakeEmbedder) Dimension() int { return len(keywords) + 1 }

func (f *fakeEmbedder) setFail(fail bool) {
	f.mu.Lock()
	f.fail = fail
	f.mu.Unlock()
}

// fakeGenerator records the last prompt and returns a canned answer.
type fakeGenerator struct {
	mu   sync.Mutex
	last llm.Prompt
}

func (f *fakeGenerator) Generate(ctx context.Context, p llm.Prompt) (string, error) {
	f.mu.Lock()
	f.last = p
	f.mu.Unlock()
	return "generated answer", nil
}

func (f *fakeGenerator) lastPrompt() llm.Prompt {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.last
}

// pagedLoader serves preset units regardless of input bytes, standing in for
// a paged format without needing real PDF fixtures.
type pagedLoader struct {
	units []documents.Unit
}

func (l *pagedLoader) Load(filename string, data []byte) ([]documents.Unit, error) {
	return l.units, nil
}

func newTestService(t *testing.T) (*Service, *fakeEmbedder, *fakeGenerator, *memory.Store, *documents.Registry) {
	t.Helper()

	chk, err := chunker.New(1500, 200)
	require.NoError(t, err)

	reg := documents.NewRegistry()
	emb := &fakeEmbedder{}
	gen := &fakeGenerator{}
	idx := memory.NewStore()

	svc := NewService(ServiceConfig{
		Loaders:   reg,
		Chunker:   chk,
		Embedder:  emb,
		Index:     idx,
		Sessions:  session.NewMemoryStore(3),
		Generator: gen,
		TopK:      6,
	})
	return svc, emb, gen, idx, reg
}

// threePageDoc builds three 1500-char pages; "gamma" appears only near the
// end of page 2.
func threePageDoc() []documents.Unit {
	page0 := strings.Repeat("alpha topic sentence. ", 75)[:1500]
	page1 := strings.Repeat("beta topic sentence. ", 75)[:1500]
	page2 := strings.Repeat("filler sentence here. ", 70)[:1250] + strings.Repeat("gamma detail text. ", 14)[:250]
	pages := []string{page0, page1, page2}

	units := make([]documents.Unit, 3)
	for i := range pages {
		p := i
		units[i] = documents.Unit{Text: pages[i], Page: &p}
	}
	return units
}

func TestIngest_ChunksAndLists(t *testing.T) {
	svc, _, _, _, reg := newTestService(t)
	reg.Register(".fake", &pagedLoader{units: threePageDoc()})

	count, err := svc.Ingest(context.Background(), "report.fake", []byte("ignored"))
	require.NoError(t, err)
	assert.GreaterOrEqual(t, count, 3)

	docs, err := svc.ListDocuments(context.Background())
	require.NoError(t, err)
	require.Len(t, docs, 1)
	assert.Equal(t, "report.fake", docs[0].Filename)
	assert.Equal(t, count, docs[0].ChunkCount)
	assert.Equal(t, "fake", docs[0].FileType)
	assert.NotEmpty(t, docs[0].UploadID)
}

func TestIngest_ReingestReplaces(t *testing.T) {
	svc, _, _, _, reg := newTestService(t)
	loader := &pagedLoader{units: threePageDoc()}
	reg.Register(".fake", loader)

	ctx := context.Background()
	first, err := svc.Ingest(ctx, "report.fake", nil)
	require.NoError(t, err)

	// Re-upload a much shorter version of the same file.
	loader.units = []documents.Unit{{Text: "a single short page about alpha"}}
	second, err := svc.Ingest(ctx, "report.fake", nil)
	require.NoError(t, err)
	require.Less(t, second, first)

	docs, err := svc.ListDocuments(ctx)
	require.NoError(t, err)
	require.Len(t, docs, 1)
	assert.Equal(t, second, docs[0].ChunkCount)
}

func TestIngest_LoadFailure(t *testing.T) {
	svc, _, _, _, _ := newTestService(t)

	_, err := svc.Ingest(context.Background(), "slides.pptx", []byte("data"))
	var loadErr *documents.LoadError
	require.ErrorAs(t, err, &loadErr)

	docs, err := svc.ListDocuments(context.Background())
	require.NoError(t, err)
	assert.Empty(t, docs)
}

func TestIngest_EmbedFailureKeepsPriorVersion(t *testing.T) {
	svc, emb, _, _, reg := newTestService(t)
	loader := &pagedLoader{units: threePageDoc()}
	reg.Register(".fake", loader)

	ctx := context.Background()
	first, err := svc.Ingest(ctx, "report.fake", nil)
	require.NoError(t, err)

	emb.setFail(true)
	_, err = svc.Ingest(ctx, "report.fake", nil)
	var embErr *embeddings.EmbedError
	require.ErrorAs(t, err, &embErr)

	// The previous version stayed searchable.
	docs, err := svc.ListDocuments(ctx)
	require.NoError(t, err)
	require.Len(t, docs, 1)
	assert.Equal(t, first, docs[0].ChunkCount)
}

func TestAnswer_CitesPageOfRetrievedChunk(t *testing.T) {
	svc, _, _, _, reg := newTestService(t)
	reg.Register(".fake", &pagedLoader{units: threePageDoc()})

	ctx := context.Background()
	count, err := svc.Ingest(ctx, "report.fake", nil)
	require.NoError(t, err)
	require.GreaterOrEqual(t, count, 3)

	answer, err := svc.Answer(ctx, "what does it say about gamma?", "s1", 1, nil)
	require.NoError(t, err)
	assert.Equal(t, "generated answer", answer.Text)
	require.Len(t, answer.Citations, 1)
	assert.Equal(t, "report.fake", answer.Citations[0].Source)
	assert.Equal(t, []int{2}, answer.Citations[0].Pages)
}

func TestAnswer_FilterNeverLeaksOtherFiles(t *testing.T) {
	svc, _, _, _, reg := newTestService(t)
	reg.Register(".fka", &pagedLoader{units: []documents.Unit{{Text: "alpha content in file a"}}})
	reg.Register(".fkb", &pagedLoader{units: []documents.Unit{{Text: "alpha content in file b"}}})

	ctx := context.Background()
	_, err := svc.Ingest(ctx, "a.fka", nil)
	require.NoError(t, err)
	_, err = svc.Ingest(ctx, "b.fkb", nil)
	require.NoError(t, err)

	answer, err := svc.Answer(ctx, "tell me about alpha", "s1", 10, []string{"a.fka"})
	require.NoError(t, err)
	require.NotEmpty(t, answer.Citations)
	for _, c := range answer.Citations {
		assert.Equal(t, "a.fka", c.Source)
	}
}

func TestAnswer_NoRetrievalStillAnswers(t *testing.T) {
	svc, _, gen, _, _ := newTestService(t)

	// Filter names a document that was never uploaded.
	answer, err := svc.Answer(context.Background(), "anything about alpha?", "s1", 5, []string{"ghost.pdf"})
	require.NoError(t, err)
	assert.Equal(t, "generated answer", answer.Text)
	assert.Empty(t, answer.Citations)
	assert.NotNil(t, answer.Citations)
	assert.Empty(t, gen.lastPrompt().Context)
}

func TestAnswer_EmptyQuestionRejected(t *testing.T) {
	svc, _, _, _, _ := newTestService(t)
	_, err := svc.Answer(context.Background(), "   ", "s1", 5, nil)
	assert.Error(t, err)
}

func TestAnswer_HistoryFlowsIntoPrompt(t *testing.T) {
	svc, _, gen, _, _ := newTestService(t)
	ctx := context.Background()

	_, err := svc.Answer(ctx, "first question about alpha", "s1", 5, nil)
	require.NoError(t, err)
	assert.Empty(t, gen.lastPrompt().History)

	_, err = svc.Answer(ctx, "follow-up question", "s1", 5, nil)
	require.NoError(t, err)
	history := gen.lastPrompt().History
	assert.Contains(t, history, "USER: first question about alpha")
	assert.Contains(t, history, "ASSISTANT: generated answer")

	// A different session starts clean.
	_, err = svc.Answer(ctx, "unrelated question", "s2", 5, nil)
	require.NoError(t, err)
	assert.Empty(t, gen.lastPrompt().History)
}

func TestDeleteDocument_Idempotent(t *testing.T) {
	svc, _, _, idx, reg := newTestService(t)
	reg.Register(".fake", &pagedLoader{units: threePageDoc()})

	ctx := context.Background()
	count, err := svc.Ingest(ctx, "report.fake", nil)
	require.NoError(t, err)

	removed, err := svc.DeleteDocument(ctx, "report.fake")
	require.NoError(t, err)
	assert.Equal(t, count, removed)

	matches, err := idx.Search(ctx, []float32{0, 0, 0, 1}, 10, nil)
	require.NoError(t, err)
	assert.Empty(t, matches)

	// Second delete reports zero chunks removed as a benign not-found.
	removed, err = svc.DeleteDocument(ctx, "report.fake")
	assert.Zero(t, removed)
	assert.ErrorIs(t, err, index.ErrNotFound)
}

func TestDeleteAll(t *testing.T) {
	svc, _, _, _, reg := newTestService(t)
	reg.Register(".fake", &pagedLoader{units: threePageDoc()})

	ctx := context.Background()
	count, err := svc.Ingest(ctx, "report.fake", nil)
	require.NoError(t, err)

	removed, err := svc.DeleteAll(ctx)
	require.NoError(t, err)
	assert.Equal(t, count, removed)

	docs, err := svc.ListDocuments(ctx)
	require.NoError(t, err)
	assert.Empty(t, docs)
}

func TestConcurrentReuploadsOfSameFilename(t *testing.T) {
	svc, _, _, _, _ := newTestService(t)
	ctx := context.Background()

	// Two versions of the same file with different chunk counts: the long
	// one splits into several chunks, the short one into exactly one.
	long := []byte(strings.Repeat("alpha beta gamma text. ", 200)) // 4600 chars
	short := []byte("just one small chunk of text")

	longCount, err := svc.Ingest(ctx, "probe.txt", long)
	require.NoError(t, err)
	shortCount, err := svc.Ingest(ctx, "probe.txt", short)
	require.NoError(t, err)
	require.NotEqual(t, longCount, shortCount)

	for i := 0; i < 10; i++ {
		var wg sync.WaitGroup
		wg.Add(2)
		go func() {
			defer wg.Done()
			_, err := svc.Ingest(ctx, "probe.txt", long)
			assert.NoError(t, err)
		}()
		go func() {
			defer wg.Done()
			_, err := svc.Ingest(ctx, "probe.txt", short)
			assert.NoError(t, err)
		}()
		wg.Wait()

		docs, err := svc.ListDocuments(ctx)
		require.NoError(t, err)
		require.Len(t, docs, 1)
		// The surviving version is exactly one of the two uploads, never
		// a mix of both.
		assert.Contains(t, []int{longCount, shortCount}, docs[0].ChunkCount,
			fmt.Sprintf("iteration %d left %d chunks", i, docs[0].ChunkCount))
	}
}
