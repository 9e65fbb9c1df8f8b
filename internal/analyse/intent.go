// Package analyse turns a raw Vietnamese question into a query plan: an
// intent, a detected procedure code if any, and a bounded set of query
// expansions for dense retrieval.
package analyse

import "github.com/nhdandz/ThuTucHanhChinh/internal/store"

// Intent is the closed set of question purposes. It drives both the child
// chunk-type filter and the context budget; no string matching happens on
// the hot path.
type Intent string

const (
	IntentDocuments    Intent = "documents"
	IntentRequirements Intent = "requirements"
	IntentProcess      Intent = "process"
	IntentLegal        Intent = "legal"
	IntentTimeline     Intent = "timeline"
	IntentFees         Intent = "fees"
	IntentLocation     Intent = "location"
	IntentOverview     Intent = "overview"
)

// AllIntents lists every intent in a stable order.
var AllIntents = []Intent{
	IntentDocuments,
	IntentRequirements,
	IntentProcess,
	IntentLegal,
	IntentTimeline,
	IntentFees,
	IntentLocation,
	IntentOverview,
}

// ParseIntent validates a string against the accepted intents.
func ParseIntent(s string) (Intent, bool) {
	switch Intent(s) {
	case IntentDocuments, IntentRequirements, IntentProcess, IntentLegal,
		IntentTimeline, IntentFees, IntentLocation, IntentOverview:
		return Intent(s), true
	}
	return "", false
}

// chunkTypeFilter maps each intent to the child chunk types worth searching.
// A nil entry means no filter (overview questions touch everything).
var chunkTypeFilter = map[Intent][]store.ChunkType{
	IntentDocuments:    {store.ChunkTypeDocuments},
	IntentRequirements: {store.ChunkTypeRequirements},
	IntentProcess:      {store.ChunkTypeProcess},
	IntentLegal:        {store.ChunkTypeLegal},
	IntentTimeline:     {store.ChunkTypeFeesTiming},
	IntentFees:         {store.ChunkTypeFeesTiming},
	IntentLocation:     {store.ChunkTypeAgencies},
	IntentOverview:     nil,
}

// ChunkTypesFor returns the child chunk-type filter for an intent, nil when
// no filter applies.
func ChunkTypesFor(intent Intent) []store.ChunkType {
	return chunkTypeFilter[intent]
}

// ContextConfig is the per-intent context assembly budget.
type ContextConfig struct {
	// Chunks is the maximum number of procedures in the final context.
	Chunks int `json:"chunks"`
	// MaxDescendants bounds the child chunks kept per procedure.
	MaxDescendants int `json:"max_descendants"`
	// MaxSiblings bounds carryover chunks from procedures outside the
	// top selection.
	MaxSiblings int `json:"max_siblings"`
	// IncludeParents prepends each procedure's overview chunk.
	IncludeParents bool `json:"include_parents"`
	// EnableStructuredOutput tells the downstream generator it may emit
	// structured answers for this intent.
	EnableStructuredOutput bool `json:"enable_structured_output"`
}

var contextBudget = map[Intent]ContextConfig{
	IntentDocuments:    {Chunks: 2, MaxDescendants: 5, MaxSiblings: 2, IncludeParents: true, EnableStructuredOutput: true},
	IntentFees:         {Chunks: 2, MaxDescendants: 3, MaxSiblings: 1, IncludeParents: true, EnableStructuredOutput: true},
	IntentProcess:      {Chunks: 2, MaxDescendants: 40, MaxSiblings: 5, IncludeParents: true, EnableStructuredOutput: true},
	IntentLegal:        {Chunks: 3, MaxDescendants: 4, MaxSiblings: 3, IncludeParents: true, EnableStructuredOutput: true},
	IntentTimeline:     {Chunks: 3, MaxDescendants: 4, MaxSiblings: 3, IncludeParents: true, EnableStructuredOutput: true},
	IntentRequirements: {Chunks: 2, MaxDescendants: 2, MaxSiblings: 3, IncludeParents: true, EnableStructuredOutput: true},
	IntentLocation:     {Chunks: 2, MaxDescendants: 3, MaxSiblings: 1, IncludeParents: true, EnableStructuredOutput: true},
	IntentOverview:     {Chunks: 3, MaxDescendants: 5, MaxSiblings: 2, IncludeParents: true, EnableStructuredOutput: false},
}

// ContextConfigFor returns the context budget for an intent.
func ContextConfigFor(intent Intent) ContextConfig {
	cfg, ok := contextBudget[intent]
	if !ok {
		return contextBudget[IntentOverview]
	}
	return cfg
}
