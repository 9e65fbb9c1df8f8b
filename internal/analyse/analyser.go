package analyse

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	lru "github.com/hashicorp/golang-lru/v2"
)

// Confidence levels per classification path.
const (
	confidenceKeyword  = 0.9
	confidenceLLM      = 0.7
	confidenceFallback = 0.0
)

// DefaultPlanCacheSize bounds the per-process plan cache.
const DefaultPlanCacheSize = 256

// Analyser converts raw questions into query plans. It classifies intent by
// keyword scoring first and falls back to the LLM; every LLM failure is
// recoverable and degrades to the overview intent.
type Analyser struct {
	llm    LLM
	logger *slog.Logger
	cache  *lru.Cache[string, QueryPlan]
}

// NewAnalyser creates an analyser. llm may be nil, in which case only the
// keyword path runs and unmatched questions classify as overview.
func NewAnalyser(llm LLM, logger *slog.Logger) *Analyser {
	if logger == nil {
		logger = slog.Default()
	}
	cache, _ := lru.New[string, QueryPlan](DefaultPlanCacheSize)
	return &Analyser{llm: llm, logger: logger, cache: cache}
}

// Analyse builds the query plan for a question.
func (a *Analyser) Analyse(ctx context.Context, question string) (QueryPlan, error) {
	if cached, ok := a.cache.Get(question); ok {
		return cached, nil
	}

	plan := QueryPlan{
		RawQuestion:   question,
		ProcedureCode: ExtractProcedureCode(question),
	}

	plan.Intent, plan.IntentConfidence = a.classify(ctx, question)
	plan.ContextConfig = ContextConfigFor(plan.Intent)
	plan.Expansions = a.expand(ctx, question, plan.Intent)

	if err := ctx.Err(); err != nil {
		// Never cache a plan assembled under a dying context.
		return plan, nil
	}

	a.cache.Add(question, plan)
	return plan, nil
}

// classify picks the intent: keyword scoring, then the LLM, then overview.
func (a *Analyser) classify(ctx context.Context, question string) (Intent, float64) {
	if intent, ok := keywordIntent(question); ok {
		return intent, confidenceKeyword
	}

	if a.llm == nil {
		return IntentOverview, confidenceFallback
	}

	answer, err := a.llm.Generate(ctx, classifyPrompt(question))
	if err != nil {
		a.logger.Warn("intent classification failed, defaulting to overview",
			slog.String("error", err.Error()))
		return IntentOverview, confidenceFallback
	}

	if intent, ok := ParseIntent(strings.ToLower(strings.TrimSpace(answer))); ok {
		return intent, confidenceLLM
	}
	a.logger.Warn("intent classification returned unknown label",
		slog.String("label", answer))
	return IntentOverview, confidenceFallback
}

// expand builds the bounded expansion list: the rewritten question first,
// then LLM paraphrases, then synonym variants. Case-insensitive dedupe,
// capped at MaxExpansions.
func (a *Analyser) expand(ctx context.Context, question string, intent Intent) []string {
	seen := make(map[string]struct{})
	var expansions []string
	add := func(q string) {
		q = strings.TrimSpace(q)
		if q == "" || len(expansions) >= MaxExpansions {
			return
		}
		key := strings.ToLower(q)
		if _, dup := seen[key]; dup {
			return
		}
		seen[key] = struct{}{}
		expansions = append(expansions, q)
	}

	add(Rewrite(question))
	add(question)

	for _, p := range a.paraphrase(ctx, question, intent) {
		add(p)
	}
	for _, v := range SynonymVariants(question, 2) {
		add(v)
	}

	return expansions
}

// paraphrase asks the LLM for up to three restatements of the question.
// Any failure returns nil; the plan still carries the raw question.
func (a *Analyser) paraphrase(ctx context.Context, question string, intent Intent) []string {
	if a.llm == nil {
		return nil
	}

	answer, err := a.llm.Generate(ctx, paraphrasePrompt(question, intent))
	if err != nil {
		a.logger.Warn("paraphrase generation failed",
			slog.String("error", err.Error()))
		return nil
	}

	start := strings.Index(answer, "[")
	end := strings.LastIndex(answer, "]")
	if start == -1 || end <= start {
		return nil
	}

	var variations []string
	if err := json.Unmarshal([]byte(answer[start:end+1]), &variations); err != nil {
		a.logger.Warn("paraphrase response was not a JSON array",
			slog.String("error", err.Error()))
		return nil
	}
	if len(variations) > 3 {
		variations = variations[:3]
	}
	return variations
}

func classifyPrompt(question string) string {
	return fmt.Sprintf(`Câu hỏi của người dùng: %q

Xác định intent (mục đích) của câu hỏi. Chọn MỘT trong các intent sau:
- documents: Hỏi về giấy tờ, hồ sơ cần nộp
- requirements: Hỏi về điều kiện, yêu cầu, đối tượng được làm
- process: Hỏi về quy trình, trình tự, các bước thực hiện
- legal: Hỏi về căn cứ pháp lý
- timeline: Hỏi về thời gian, thời hạn
- fees: Hỏi về phí, lệ phí
- location: Hỏi về địa chỉ, địa điểm
- overview: Hỏi tổng quan về thủ tục

Chỉ trả về TÊN INTENT, không giải thích.
Intent:`, question)
}

func paraphrasePrompt(question string, intent Intent) string {
	return fmt.Sprintf(`Câu hỏi gốc: %q
Intent: %s

Hãy tạo 3 variations (cách diễn đạt khác) của câu hỏi này để tìm kiếm hiệu quả hơn.

Yêu cầu:
1. Giữ nguyên ý nghĩa của câu hỏi gốc
2. Sử dụng từ đồng nghĩa
3. Thay đổi cấu trúc câu
4. Tập trung vào intent %q

Trả về JSON array:
["variation 1", "variation 2", "variation 3"]

Chỉ trả về JSON array, không giải thích.`, question, intent, intent)
}
