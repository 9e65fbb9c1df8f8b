package retrieval

import (
	"bytes"
	"context"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nhdandz/ThuTucHanhChinh/internal/analyse"
	therrors "github.com/nhdandz/ThuTucHanhChinh/internal/errors"
	"github.com/nhdandz/ThuTucHanhChinh/internal/search"
	"github.com/nhdandz/ThuTucHanhChinh/internal/store"
)

// =============================================================================
// Fakes
// =============================================================================

// fakeAnalyser returns a canned plan.
type fakeAnalyser struct {
	plan analyse.QueryPlan
	err  error
}

func (f *fakeAnalyser) Analyse(ctx context.Context, question string) (analyse.QueryPlan, error) {
	if f.err != nil {
		return analyse.QueryPlan{}, f.err
	}
	plan := f.plan
	plan.RawQuestion = question
	if len(plan.Expansions) == 0 {
		plan.Expansions = []string{question}
	}
	if plan.ContextConfig.Chunks == 0 {
		plan.ContextConfig = analyse.ContextConfigFor(plan.Intent)
	}
	return plan, nil
}

// fakeEmbedder produces a fixed query vector.
type fakeEmbedder struct {
	err error
}

func (f *fakeEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	if f.err != nil {
		return nil, f.err
	}
	return []float32{1, 0, 0}, nil
}

func (f *fakeEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if f.err != nil {
		return nil, f.err
	}
	out := make([][]float32, len(texts))
	for i := range out {
		out[i] = []float32{1, 0, 0}
	}
	return out, nil
}

func (f *fakeEmbedder) Dimensions() int   { return 3 }
func (f *fakeEmbedder) ModelName() string { return "fake" }
func (f *fakeEmbedder) Close() error      { return nil }

// fakeVectorStore serves canned parent and child results.
type fakeVectorStore struct {
	parents []*store.VectorResult
	childs  []*store.VectorResult
	err     error
}

func (f *fakeVectorStore) Add(ctx context.Context, chunks []*store.Chunk, vectors [][]float32) error {
	return nil
}

func (f *fakeVectorStore) Search(ctx context.Context, query []float32, k int, filter *store.Filter) ([]*store.VectorResult, error) {
	if f.err != nil {
		return nil, f.err
	}
	if filter != nil && filter.Tier == store.TierParent {
		return f.parents, nil
	}
	return f.childs, nil
}

func (f *fakeVectorStore) Count() int   { return len(f.parents) + len(f.childs) }
func (f *fakeVectorStore) Close() error { return nil }

// fakeLexical serves canned BM25 hits.
type fakeLexical struct {
	results []store.BM25Result
	err     error
}

func (f *fakeLexical) Search(query string, k int) ([]store.BM25Result, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.results, nil
}

// failingReranker always errors, forcing the fused-order fallback.
type failingReranker struct{}

func (failingReranker) Rerank(ctx context.Context, query string, candidates []search.RerankInput) ([]search.RerankResult, error) {
	return nil, therrors.New(therrors.CodeRerankerFailed, "reranker down", nil)
}

// =============================================================================
// Fixtures
// =============================================================================

// pipelineFixture builds a 3-procedure corpus and a fully working pipeline.
func pipelineFixture(t *testing.T) (*Pipeline, *fakeVectorStore, *fakeLexical) {
	t.Helper()
	corpus := buildCorpus(t, 3, store.ChunkTypeDocuments, store.ChunkTypeFeesTiming)

	vectors := &fakeVectorStore{
		parents: []*store.VectorResult{
			{ChunkID: "proc-0-overview", Score: 0.95},
			{ChunkID: "proc-1-overview", Score: 0.90},
		},
		childs: []*store.VectorResult{
			{ChunkID: "proc-0-documents", Score: 0.92},
			{ChunkID: "proc-1-documents", Score: 0.85},
			{ChunkID: "proc-2-documents", Score: 0.80},
		},
	}
	lexical := &fakeLexical{
		results: []store.BM25Result{
			{ChunkID: "proc-0-documents", Score: 7.5},
			{ChunkID: "proc-2-documents", Score: 3.1},
		},
	}

	p := NewPipeline(Options{
		Analyser: &fakeAnalyser{plan: analyse.QueryPlan{Intent: analyse.IntentDocuments, IntentConfidence: 0.9}},
		Embedder: &fakeEmbedder{},
		Chunks:   corpus,
		Vectors:  vectors,
		Lexical:  lexical,
		Reranker: search.NewEnsembleReranker(search.DefaultEnsembleConfig(), nil, nil),
		Config:   DefaultConfig(),
	})
	return p, vectors, lexical
}

// =============================================================================
// Pipeline behavior
// =============================================================================

func TestPipeline_HybridRetrieval(t *testing.T) {
	p, _, _ := pipelineFixture(t)

	result, err := p.Retrieve(context.Background(), "s1", "Hồ sơ đăng ký khai sinh gồm những gì?")
	require.NoError(t, err)
	require.NotNil(t, result)

	assert.Equal(t, analyse.IntentDocuments, result.Intent)
	assert.False(t, result.Degraded)
	assert.NotEmpty(t, result.Chunks)
	assert.NotEmpty(t, result.ContextText)
	assert.Greater(t, result.Confidence, 0.0)
	assert.LessOrEqual(t, result.Confidence, 1.0)

	// proc-0-documents leads both channels, so it must come out on top.
	assert.Equal(t, "proc-0-documents", result.Chunks[0].Chunk.ID)
}

func TestPipeline_CacheHit(t *testing.T) {
	p, vectors, _ := pipelineFixture(t)

	first, err := p.Retrieve(context.Background(), "s1", "Hồ sơ khai sinh?")
	require.NoError(t, err)

	// Break both channels: a second retrieval can only succeed via cache.
	vectors.err = therrors.New(therrors.CodeVectorStoreFailed, "down", nil)

	second, err := p.Retrieve(context.Background(), "s1", "Hồ sơ khai sinh?")
	require.NoError(t, err)
	assert.Same(t, first, second)
	assert.Equal(t, uint64(1), p.Cache().Stats().Hits)
}

func TestPipeline_SemanticCacheHit(t *testing.T) {
	p, _, _ := pipelineFixture(t)

	first, err := p.Retrieve(context.Background(), "s1", "Hồ sơ khai sinh?")
	require.NoError(t, err)

	// A differently phrased question embeds to the same vector here, so
	// the semantic probe must find the earlier answer.
	second, err := p.Retrieve(context.Background(), "s1", "Giấy tờ cần cho khai sinh?")
	require.NoError(t, err)
	assert.Same(t, first, second)
}

func TestPipeline_ExactCodeFastPath(t *testing.T) {
	corpus := buildCorpus(t, 1, store.ChunkTypeDocuments, store.ChunkTypeFeesTiming)

	p := NewPipeline(Options{
		Analyser: &fakeAnalyser{plan: analyse.QueryPlan{
			Intent:        analyse.IntentOverview,
			ProcedureCode: "proc-0",
		}},
		Embedder: &fakeEmbedder{},
		Chunks:   corpus,
		Vectors:  &fakeVectorStore{err: therrors.New(therrors.CodeVectorStoreFailed, "unused", nil)},
		Lexical:  &fakeLexical{err: therrors.New(therrors.CodeInternal, "unused", nil)},
		Config:   DefaultConfig(),
	})

	result, err := p.Retrieve(context.Background(), "s1", "Thủ tục proc-0 là gì?")
	require.NoError(t, err)

	// The whole procedure comes back at full confidence, budget ignored.
	assert.InDelta(t, 1.0, result.Confidence, 1e-9)
	assert.Len(t, result.Chunks, 3)
	assert.Equal(t, "proc-0", result.Metadata["exact_code"])
	assert.Contains(t, result.ContextText, "[OVERVIEW]")
}

func TestPipeline_UnknownCodeFallsThrough(t *testing.T) {
	p, _, _ := pipelineFixture(t)
	pa := p.analyser.(*fakeAnalyser)
	pa.plan.ProcedureCode = "9.999999"
	pa.plan.Intent = analyse.IntentDocuments

	result, err := p.Retrieve(context.Background(), "s1", "Mã 9.999999 cần gì?")
	require.NoError(t, err)
	// Unknown code: hybrid retrieval runs instead of the fast path.
	assert.Empty(t, result.Metadata["exact_code"])
	assert.NotEmpty(t, result.Chunks)
}

func TestPipeline_DenseFailureDegrades(t *testing.T) {
	p, vectors, _ := pipelineFixture(t)
	vectors.err = therrors.New(therrors.CodeVectorStoreFailed, "hnsw down", nil)

	result, err := p.Retrieve(context.Background(), "s1", "Hồ sơ khai sinh?")
	require.NoError(t, err)

	assert.True(t, result.Degraded)
	assert.Equal(t, "true", result.Metadata["degraded"])
	assert.NotEmpty(t, result.Chunks, "lexical channel alone must still produce results")
	// Degraded confidence carries the 0.9 factor.
	assert.Less(t, result.Confidence, 1.0)
}

func TestPipeline_LexicalFailureDegrades(t *testing.T) {
	p, _, lexical := pipelineFixture(t)
	lexical.err = therrors.New(therrors.CodeInternal, "index broken", nil)

	result, err := p.Retrieve(context.Background(), "s1", "Hồ sơ khai sinh?")
	require.NoError(t, err)

	assert.True(t, result.Degraded)
	assert.NotEmpty(t, result.Chunks)
}

func TestPipeline_NoChannels(t *testing.T) {
	p, vectors, lexical := pipelineFixture(t)
	vectors.err = therrors.New(therrors.CodeVectorStoreFailed, "down", nil)
	lexical.err = therrors.New(therrors.CodeInternal, "down", nil)

	result, err := p.Retrieve(context.Background(), "s1", "Hồ sơ khai sinh?")
	require.Error(t, err)
	assert.Equal(t, therrors.CodeNoChannels, therrors.GetCode(err))

	// The result still renders: empty, zero confidence, tagged metadata.
	require.NotNil(t, result)
	assert.Empty(t, result.Chunks)
	assert.Zero(t, result.Confidence)
	assert.Equal(t, "no-retrieval-channels", result.Metadata["error"])

	// Failures are never cached.
	assert.Zero(t, p.Cache().Len())
}

func TestPipeline_RerankerFailureFallsBackToFusedOrder(t *testing.T) {
	p, _, _ := pipelineFixture(t)
	p.reranker = failingReranker{}

	result, err := p.Retrieve(context.Background(), "s1", "Hồ sơ khai sinh?")
	require.NoError(t, err)

	assert.True(t, result.Degraded, "reranker failure degrades the result")
	assert.NotEmpty(t, result.Chunks)
	// Fused order: proc-0-documents appears in both channels and leads.
	assert.Equal(t, "proc-0-documents", result.Chunks[0].Chunk.ID)
}

func TestPipeline_EmbedderFailureStillServesLexical(t *testing.T) {
	p, _, _ := pipelineFixture(t)
	p.embedder = &fakeEmbedder{err: therrors.New(therrors.CodeEmbedderUnavailable, "ollama down", nil)}

	result, err := p.Retrieve(context.Background(), "s1", "Hồ sơ khai sinh?")
	require.NoError(t, err)
	assert.True(t, result.Degraded)
	assert.NotEmpty(t, result.Chunks)
}

func TestPipeline_AnalyserFailureFallsBackToOverview(t *testing.T) {
	p, _, _ := pipelineFixture(t)
	p.analyser = &fakeAnalyser{err: therrors.New(therrors.CodeLLMFailed, "llm broken", nil)}

	result, err := p.Retrieve(context.Background(), "s1", "Hồ sơ khai sinh?")
	require.NoError(t, err)
	assert.Equal(t, analyse.IntentOverview, result.Intent)
	assert.NotEmpty(t, result.Chunks)
}

func TestPipeline_SwapCorpus(t *testing.T) {
	p, vectors, _ := pipelineFixture(t)

	// Replacement corpus renames the procedures.
	var all []*store.Chunk
	all = append(all, buildChunk("new-overview", "new", store.TierParent, store.ChunkTypeOverview, "mới"))
	all = append(all, buildChunk("new-documents", "new", store.TierChild, store.ChunkTypeDocuments, "hồ sơ mới"))
	replacement, err := store.NewChunkStore(all)
	require.NoError(t, err)

	vectors.parents = []*store.VectorResult{{ChunkID: "new-overview", Score: 0.9}}
	vectors.childs = []*store.VectorResult{{ChunkID: "new-documents", Score: 0.9}}
	p.SwapCorpus(replacement, &fakeLexical{results: []store.BM25Result{{ChunkID: "new-documents", Score: 2.0}}})

	result, err := p.Retrieve(context.Background(), "s1", "tài liệu thủ tục mới")
	require.NoError(t, err)
	require.NotEmpty(t, result.Chunks)
	assert.Equal(t, "new-documents", result.Chunks[0].Chunk.ID)
}

func TestPipeline_SessionIDInLogs(t *testing.T) {
	p, _, _ := pipelineFixture(t)
	var buf bytes.Buffer
	p.logger = slog.New(slog.NewTextHandler(&buf, nil))

	_, err := p.Retrieve(context.Background(), "sess-42", "Hồ sơ khai sinh?")
	require.NoError(t, err)

	logs := buf.String()
	assert.Contains(t, logs, "session_id=sess-42")
	assert.Contains(t, logs, "request_id=")
}

func TestPipeline_EmptySessionIDGetsGenerated(t *testing.T) {
	p, _, _ := pipelineFixture(t)
	var buf bytes.Buffer
	p.logger = slog.New(slog.NewTextHandler(&buf, nil))

	_, err := p.Retrieve(context.Background(), "", "Hồ sơ khai sinh?")
	require.NoError(t, err)
	assert.Contains(t, buf.String(), "session_id=")

	a, b := NewSessionID(), NewSessionID()
	assert.Len(t, a, 16)
	assert.NotEqual(t, a, b)
}

func TestPipeline_CancelledContext(t *testing.T) {
	p, _, _ := pipelineFixture(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := p.Retrieve(ctx, "s1", "Hồ sơ khai sinh?")
	require.Error(t, err)
	assert.Equal(t, therrors.CodeCancelled, therrors.GetCode(err))
	assert.Zero(t, p.Cache().Len())
}

// =============================================================================
// Dense channel internals
// =============================================================================

func TestDenseChannel_CrossTierPenalty(t *testing.T) {
	p, _, _ := pipelineFixture(t)

	plan := analyse.QueryPlan{
		RawQuestion: "q",
		Intent:      analyse.IntentDocuments,
		Expansions:  []string{"q"},
	}

	lists, err := p.denseChannel(context.Background(), plan)
	require.NoError(t, err)
	require.Len(t, lists, 2, "one parent list and one child list per expansion")

	childList := lists[1]
	byID := map[string]search.Candidate{}
	for _, c := range childList.Candidates {
		byID[c.ChunkID] = c
	}

	// Parents surfaced proc-0 and proc-1; proc-2's child carries the
	// soft penalty and the cross-tier mark.
	assert.False(t, byID["proc-0-documents"].CrossTier)
	assert.InDelta(t, 0.92, byID["proc-0-documents"].Score, 1e-6)
	assert.True(t, byID["proc-2-documents"].CrossTier)
	assert.InDelta(t, 0.80*0.8, byID["proc-2-documents"].Score, 1e-6)
}

func TestDenseChannel_NoParentsMeansNoPenalty(t *testing.T) {
	p, vectors, _ := pipelineFixture(t)
	vectors.parents = nil

	plan := analyse.QueryPlan{
		RawQuestion: "q",
		Intent:      analyse.IntentDocuments,
		Expansions:  []string{"q"},
	}

	lists, err := p.denseChannel(context.Background(), plan)
	require.NoError(t, err)

	for _, c := range lists[1].Candidates {
		assert.False(t, c.CrossTier, "empty parent set must disable the penalty")
	}
}
