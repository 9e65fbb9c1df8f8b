package retrieval

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"log/slog"
	"sort"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/nhdandz/ThuTucHanhChinh/internal/analyse"
	"github.com/nhdandz/ThuTucHanhChinh/internal/cache"
	"github.com/nhdandz/ThuTucHanhChinh/internal/embed"
	therrors "github.com/nhdandz/ThuTucHanhChinh/internal/errors"
	"github.com/nhdandz/ThuTucHanhChinh/internal/search"
	"github.com/nhdandz/ThuTucHanhChinh/internal/store"
	"github.com/nhdandz/ThuTucHanhChinh/internal/telemetry"
)

// QueryAnalyser builds the query plan for a question.
type QueryAnalyser interface {
	Analyse(ctx context.Context, question string) (analyse.QueryPlan, error)
}

// LexicalIndex is the BM25 channel.
type LexicalIndex interface {
	Search(query string, k int) ([]store.BM25Result, error)
}

// bm25Adapter lifts the in-memory index to the LexicalIndex interface.
type bm25Adapter struct {
	idx *store.BM25Index
}

func (a bm25Adapter) Search(query string, k int) ([]store.BM25Result, error) {
	return a.idx.Search(query, k), nil
}

// NewLexicalAdapter wraps a BM25 index as a LexicalIndex.
func NewLexicalAdapter(idx *store.BM25Index) LexicalIndex {
	return bm25Adapter{idx: idx}
}

// Timeouts are the per-collaborator deadlines inside one retrieval.
type Timeouts struct {
	Embedder    time.Duration
	VectorStore time.Duration
	LLM         time.Duration
	Reranker    time.Duration
	Overall     time.Duration
}

// DefaultTimeouts returns the documented stage budgets.
func DefaultTimeouts() Timeouts {
	return Timeouts{
		Embedder:    10 * time.Second,
		VectorStore: 5 * time.Second,
		LLM:         60 * time.Second,
		Reranker:    15 * time.Second,
		Overall:     180 * time.Second,
	}
}

// Config holds the pipeline tuning knobs.
type Config struct {
	TopKParent       int
	TopKChild        int
	CrossTierPenalty float64
	Fusion           search.FusionConfig
	MaxChunkTokens   int
	Timeouts         Timeouts
}

// DefaultConfig returns the documented pipeline defaults.
func DefaultConfig() Config {
	return Config{
		TopKParent:       5,
		TopKChild:        100,
		CrossTierPenalty: 0.8,
		Fusion:           search.DefaultFusionConfig(),
		MaxChunkTokens:   DefaultMaxChunkTokens,
		Timeouts:         DefaultTimeouts(),
	}
}

// rerankPoolSize caps how many fused candidates reach the reranker.
const rerankPoolSize = 50

// rerankTopKCap caps how many reranked candidates reach assembly.
const rerankTopKCap = 20

// Options wires the pipeline's collaborators.
type Options struct {
	Analyser  QueryAnalyser
	Embedder  embed.Embedder
	Chunks    *store.ChunkStore
	Vectors   store.VectorStore
	Lexical   LexicalIndex
	Reranker  search.Reranker
	Cache     *cache.SemanticCache[*RetrievalResult]
	Telemetry *telemetry.Collector
	Config    Config
	Logger    *slog.Logger
}

// Pipeline runs the staged retrieval for one question at a time per call;
// calls are safe to issue concurrently.
type Pipeline struct {
	analyser  QueryAnalyser
	embedder  embed.Embedder
	vectors   store.VectorStore
	reranker  search.Reranker
	cache     *cache.SemanticCache[*RetrievalResult]
	telemetry *telemetry.Collector
	cfg       Config
	logger    *slog.Logger

	corpus corpusHandle
}

// NewPipeline assembles a pipeline from its collaborators.
func NewPipeline(opts Options) *Pipeline {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Config.TopKParent <= 0 {
		opts.Config = DefaultConfig()
	}
	if opts.Cache == nil {
		opts.Cache = cache.New[*RetrievalResult](cache.DefaultConfig())
	}
	p := &Pipeline{
		analyser:  opts.Analyser,
		embedder:  opts.Embedder,
		vectors:   opts.Vectors,
		reranker:  opts.Reranker,
		cache:     opts.Cache,
		telemetry: opts.Telemetry,
		cfg:       opts.Config,
		logger:    opts.Logger,
	}
	p.corpus.swap(opts.Chunks, opts.Lexical, NewAssembler(opts.Chunks, opts.Config.MaxChunkTokens))
	return p
}

// SwapCorpus atomically replaces the chunk store and lexical index, e.g.
// after the corpus file changed on disk.
func (p *Pipeline) SwapCorpus(chunks *store.ChunkStore, lexical LexicalIndex) {
	p.corpus.swap(chunks, lexical, NewAssembler(chunks, p.cfg.MaxChunkTokens))
}

// Cache exposes the semantic cache for stats and maintenance commands.
func (p *Pipeline) Cache() *cache.SemanticCache[*RetrievalResult] {
	return p.cache
}

// Retrieve answers one question for the given session. An empty sessionID
// gets a generated one so every log line carries both identifiers. The
// returned result is always non-nil for a nil error; on NoChannels both an
// empty result and the error come back so callers can still render the
// metadata.
func (p *Pipeline) Retrieve(ctx context.Context, sessionID, question string) (*RetrievalResult, error) {
	start := time.Now()
	if sessionID == "" {
		sessionID = NewSessionID()
	}
	requestID := newRequestID()
	logger := p.logger.With(
		slog.String("session_id", sessionID),
		slog.String("request_id", requestID))

	ctx, cancel := context.WithTimeout(ctx, p.cfg.Timeouts.Overall)
	defer cancel()

	chunks, lexical, assembler := p.corpus.get()

	// Stage 0: embed the question and probe the cache. An embedding
	// failure only disables the semantic path and dense retrieval.
	qvec := p.embedQuery(ctx, logger, question)
	if cached, ok := p.cache.Get(question, qvec); ok {
		logger.Info("cache hit", slog.Duration("latency", time.Since(start)))
		p.recordEvent(question, cached, true, start)
		return cached, nil
	}
	if err := therrors.FromContext(ctx); err != nil {
		return nil, err
	}

	// Stage 1: analysis. The analyser degrades internally; a hard error
	// still yields a usable overview plan.
	llmCtx, llmCancel := context.WithTimeout(ctx, p.cfg.Timeouts.LLM)
	plan, err := p.analyser.Analyse(llmCtx, question)
	llmCancel()
	if err != nil {
		logger.Warn("query analysis failed, using overview fallback",
			slog.String("error", err.Error()))
		plan = analyse.QueryPlan{
			RawQuestion:   question,
			Intent:        analyse.IntentOverview,
			Expansions:    []string{question},
			ContextConfig: analyse.ContextConfigFor(analyse.IntentOverview),
		}
	}
	if len(plan.Expansions) == 0 {
		plan.Expansions = []string{question}
	}

	// Stage 2: exact procedure code fast path.
	if plan.ProcedureCode != "" && chunks.HasProcedure(plan.ProcedureCode) {
		result := p.exactCodeResult(chunks, assembler, plan)
		logger.Info("exact code fast path",
			slog.String("procedure_id", plan.ProcedureCode),
			slog.Int("chunks", len(result.Chunks)))
		p.storeAndRecord(ctx, question, qvec, result, start)
		return result, nil
	}

	// Stages 3-5: dense and lexical channels in parallel. Channel errors
	// degrade the result instead of failing it.
	var (
		denseLists []search.RankedList
		denseErr   error
		lexList    *search.RankedList
		lexErr     error
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		denseLists, denseErr = p.denseChannel(gctx, plan)
		return nil
	})
	g.Go(func() error {
		lexList, lexErr = p.lexicalChannel(lexical, plan.RawQuestion)
		return nil
	})
	_ = g.Wait()

	if err := therrors.FromContext(ctx); err != nil {
		return nil, err
	}

	if denseErr != nil && lexErr != nil {
		logger.Error("all retrieval channels failed",
			slog.String("dense_error", denseErr.Error()),
			slog.String("lexical_error", lexErr.Error()))
		result := &RetrievalResult{
			Intent:     plan.Intent,
			Plan:       plan,
			Confidence: 0,
		}
		result.withMeta("error", "no-retrieval-channels")
		p.recordEvent(question, result, false, start)
		return result, therrors.NoChannels(denseErr)
	}

	degraded := denseErr != nil || lexErr != nil
	if denseErr != nil {
		logger.Warn("dense channel failed, continuing with lexical only",
			slog.String("error", denseErr.Error()))
	}
	if lexErr != nil {
		logger.Warn("lexical channel failed, continuing with dense only",
			slog.String("error", lexErr.Error()))
	}

	lists := denseLists
	if lexList != nil {
		lists = append(lists, *lexList)
	}

	// Stage 6: reciprocal rank fusion with near-duplicate removal.
	fused := search.Fuse(lists, p.cfg.Fusion, func(chunkID string) map[string]struct{} {
		c, err := chunks.Get(chunkID)
		if err != nil {
			return nil
		}
		return store.WordSet(c.Content)
	})

	if len(fused) == 0 {
		result := &RetrievalResult{
			Intent:     plan.Intent,
			Plan:       plan,
			Confidence: 0,
			Degraded:   degraded,
		}
		if degraded {
			result.withMeta("degraded", "true")
		}
		logger.Info("no candidates found", slog.String("intent", string(plan.Intent)))
		p.recordEvent(question, result, false, start)
		return result, nil
	}

	// Stage 7: reranking. Failure falls back to the fused order.
	reranked, rerankFailed := p.rerank(ctx, logger, chunks, plan, fused)
	degraded = degraded || rerankFailed

	topK := plan.ContextConfig.Chunks * (1 + plan.ContextConfig.MaxDescendants)
	if topK > rerankTopKCap {
		topK = rerankTopKCap
	}
	if topK > len(reranked) {
		topK = len(reranked)
	}
	reranked = reranked[:topK]

	// Stage 8: context assembly under the intent budget.
	scored := make([]scoredChunk, 0, len(reranked))
	for _, rr := range reranked {
		c, err := chunks.Get(rr.ChunkID)
		if err != nil {
			continue
		}
		scored = append(scored, scoredChunk{chunk: c, score: rr.Score})
	}
	contextText, selected, confidence := assembler.Assemble(plan.ContextConfig, scored, degraded)

	result := &RetrievalResult{
		Chunks:      selected,
		ContextText: contextText,
		Confidence:  confidence,
		Intent:      plan.Intent,
		Plan:        plan,
		Degraded:    degraded,
	}
	if degraded {
		result.withMeta("degraded", "true")
	}

	logger.Info("retrieval complete",
		slog.String("intent", string(plan.Intent)),
		slog.Int("chunks", len(selected)),
		slog.Float64("confidence", confidence),
		slog.Bool("degraded", degraded),
		slog.Duration("latency", time.Since(start)))

	// Stage 9: cache store, skipped when the request was cancelled.
	p.storeAndRecord(ctx, question, qvec, result, start)
	return result, nil
}

// embedQuery returns the query embedding or nil when the embedder failed.
func (p *Pipeline) embedQuery(ctx context.Context, logger *slog.Logger, question string) []float32 {
	if p.embedder == nil {
		return nil
	}
	embedCtx, cancel := context.WithTimeout(ctx, p.cfg.Timeouts.Embedder)
	defer cancel()

	vec, err := p.embedder.Embed(embedCtx, question)
	if err != nil {
		logger.Warn("query embedding failed",
			slog.String("error", err.Error()))
		return nil
	}
	return vec
}

// exactCodeResult returns every chunk of the named procedure with full
// confidence. The intent budget does not apply; the caller asked for one
// specific procedure.
func (p *Pipeline) exactCodeResult(chunks *store.ChunkStore, assembler *Assembler, plan analyse.QueryPlan) *RetrievalResult {
	procChunks, err := chunks.ByProcedure(plan.ProcedureCode)
	if err != nil {
		return &RetrievalResult{Intent: plan.Intent, Plan: plan}
	}

	selected := make([]RetrievedChunk, 0, len(procChunks))
	scored := make([]scoredChunk, 0, len(procChunks))
	for _, c := range procChunks {
		selected = append(selected, RetrievedChunk{Chunk: c, Score: 1.0, Source: search.SourceFused})
		scored = append(scored, scoredChunk{chunk: c, score: 1.0})
	}
	contextText := assembler.AssembleProcedure(procChunks)

	result := &RetrievalResult{
		Chunks:      selected,
		ContextText: contextText,
		Confidence:  1.0,
		Intent:      plan.Intent,
		Plan:        plan,
	}
	result.withMeta("exact_code", plan.ProcedureCode)
	return result
}

// denseChannel runs Stage 3 (parent retrieval) and Stage 4 (child retrieval
// with the soft cross-tier penalty) for every expansion.
func (p *Pipeline) denseChannel(ctx context.Context, plan analyse.QueryPlan) ([]search.RankedList, error) {
	if p.embedder == nil || p.vectors == nil {
		return nil, therrors.New(therrors.CodeVectorStoreFailed, "dense channel not configured", nil)
	}

	// Embed every expansion in one round trip. The raw question's vector
	// is usually cached from Stage 0.
	embedCtx, embedCancel := context.WithTimeout(ctx, p.cfg.Timeouts.Embedder)
	vecs, err := p.embedder.EmbedBatch(embedCtx, plan.Expansions)
	embedCancel()
	if err != nil {
		return nil, err
	}

	// Stage 3: parent retrieval per expansion, collecting the set P.
	parentFilter := &store.Filter{Tier: store.TierParent}
	parentSet := make(map[string]struct{})
	var lists []search.RankedList

	for _, vec := range vecs {
		searchCtx, cancel := context.WithTimeout(ctx, p.cfg.Timeouts.VectorStore)
		results, err := p.vectors.Search(searchCtx, vec, p.cfg.TopKParent, parentFilter)
		cancel()
		if err != nil {
			return nil, err
		}

		chunks, _, _ := p.corpus.get()
		candidates := make([]search.Candidate, 0, len(results))
		for _, r := range results {
			candidates = append(candidates, search.Candidate{ChunkID: r.ChunkID, Score: float64(r.Score)})
			if c, err := chunks.Get(r.ChunkID); err == nil {
				parentSet[c.ProcedureID] = struct{}{}
			}
		}
		lists = append(lists, search.RankedList{Source: search.SourceDense, Candidates: candidates})
	}

	// Stage 4: child retrieval with the intent's chunk-type filter and a
	// soft penalty for procedures outside P.
	childFilter := &store.Filter{
		Tier:  store.TierChild,
		Types: analyse.ChunkTypesFor(plan.Intent),
	}
	chunks, _, _ := p.corpus.get()

	for _, vec := range vecs {
		searchCtx, cancel := context.WithTimeout(ctx, p.cfg.Timeouts.VectorStore)
		results, err := p.vectors.Search(searchCtx, vec, p.cfg.TopKChild, childFilter)
		cancel()
		if err != nil {
			return nil, err
		}

		candidates := make([]search.Candidate, 0, len(results))
		for _, r := range results {
			score := float64(r.Score)
			crossTier := false
			if c, err := chunks.Get(r.ChunkID); err == nil {
				if _, in := parentSet[c.ProcedureID]; !in && len(parentSet) > 0 {
					score *= p.cfg.CrossTierPenalty
					crossTier = true
				}
			}
			candidates = append(candidates, search.Candidate{ChunkID: r.ChunkID, Score: score, CrossTier: crossTier})
		}
		// Penalties can reorder the list, so re-rank by score.
		sortCandidates(candidates)
		lists = append(lists, search.RankedList{Source: search.SourceDense, Candidates: candidates})
	}

	return lists, nil
}

// lexicalChannel runs Stage 5 on the raw question.
func (p *Pipeline) lexicalChannel(lexical LexicalIndex, question string) (*search.RankedList, error) {
	if lexical == nil {
		return nil, therrors.New(therrors.CodeNoChannels, "lexical channel not configured", nil)
	}
	results, err := lexical.Search(question, p.cfg.TopKChild)
	if err != nil {
		return nil, err
	}
	candidates := make([]search.Candidate, 0, len(results))
	for _, r := range results {
		candidates = append(candidates, search.Candidate{ChunkID: r.ChunkID, Score: r.Score})
	}
	return &search.RankedList{Source: search.SourceLexical, Candidates: candidates}, nil
}

// rerank runs Stage 7. On failure the fused order survives, with RRF
// scores normalized into [0,1] so confidence stays meaningful.
func (p *Pipeline) rerank(ctx context.Context, logger *slog.Logger, chunks *store.ChunkStore, plan analyse.QueryPlan, fused []search.FusedCandidate) ([]search.RerankResult, bool) {
	pool := fused
	if len(pool) > rerankPoolSize {
		pool = pool[:rerankPoolSize]
	}

	fallback := func() []search.RerankResult {
		maxRRF := pool[0].RRFScore
		out := make([]search.RerankResult, len(pool))
		for i, fc := range pool {
			score := 0.0
			if maxRRF > 0 {
				score = fc.RRFScore / maxRRF
			}
			out[i] = search.RerankResult{ChunkID: fc.ChunkID, Score: score}
		}
		return out
	}

	if p.reranker == nil {
		return fallback(), false
	}

	inputs := make([]search.RerankInput, 0, len(pool))
	for _, fc := range pool {
		c, err := chunks.Get(fc.ChunkID)
		if err != nil {
			continue
		}
		inputs = append(inputs, search.RerankInput{
			ChunkID:      fc.ChunkID,
			Text:         c.Content,
			DenseScore:   fc.DenseScore,
			LexicalScore: fc.LexicalScore,
		})
	}

	rerankCtx, cancel := context.WithTimeout(ctx, p.cfg.Timeouts.Reranker)
	defer cancel()

	results, err := p.reranker.Rerank(rerankCtx, plan.RawQuestion, inputs)
	if err != nil {
		logger.Warn("reranking failed, falling back to fused order",
			slog.String("error", err.Error()))
		return fallback(), true
	}
	return results, false
}

// storeAndRecord writes the cache entry and telemetry. A cancelled request
// never creates a cache entry.
func (p *Pipeline) storeAndRecord(ctx context.Context, question string, qvec []float32, result *RetrievalResult, start time.Time) {
	if therrors.FromContext(ctx) == nil {
		p.cache.Put(question, qvec, result)
	}
	p.recordEvent(question, result, false, start)
}

func (p *Pipeline) recordEvent(question string, result *RetrievalResult, cacheHit bool, start time.Time) {
	p.telemetry.Record(telemetry.QueryEvent{
		Question:    question,
		Intent:      string(result.Intent),
		CacheHit:    cacheHit,
		Degraded:    result.Degraded,
		ResultCount: len(result.Chunks),
		Latency:     time.Since(start),
		Timestamp:   time.Now(),
	})
}

func sortCandidates(candidates []search.Candidate) {
	sort.SliceStable(candidates, func(i, j int) bool {
		return candidates[i].Score > candidates[j].Score
	})
}

func newRequestID() string {
	var b [4]byte
	if _, err := rand.Read(b[:]); err != nil {
		return "00000000"
	}
	return hex.EncodeToString(b[:])
}

// NewSessionID returns a random identifier for one caller session. Callers
// that hold a session (the serve loop) pass the same id across questions;
// one-shot callers may pass "" and let Retrieve generate a fresh one.
func NewSessionID() string {
	var b [8]byte
	if _, err := rand.Read(b[:]); err != nil {
		return "0000000000000000"
	}
	return hex.EncodeToString(b[:])
}
