package retrieval

import (
	"fmt"
	"sort"
	"strings"

	"github.com/nhdandz/ThuTucHanhChinh/internal/analyse"
	"github.com/nhdandz/ThuTucHanhChinh/internal/search"
	"github.com/nhdandz/ThuTucHanhChinh/internal/store"
)

// DefaultMaxChunkTokens is the per-chunk token ceiling at assembly time.
const DefaultMaxChunkTokens = 1200

// truncationMarker separates the head and tail of an over-long chunk.
const truncationMarker = "[... Nội dung quá dài, đã rút gọn ...]"

// degradedConfidenceFactor scales confidence when a channel failed.
const degradedConfidenceFactor = 0.9

// scoredChunk pairs a chunk with its final relevance score.
type scoredChunk struct {
	chunk *store.Chunk
	score float64
}

// Assembler builds the final context text under the intent's budget.
type Assembler struct {
	chunks         *store.ChunkStore
	maxChunkTokens int
}

// NewAssembler creates an assembler over the chunk store.
func NewAssembler(chunks *store.ChunkStore, maxChunkTokens int) *Assembler {
	if maxChunkTokens <= 0 {
		maxChunkTokens = DefaultMaxChunkTokens
	}
	return &Assembler{chunks: chunks, maxChunkTokens: maxChunkTokens}
}

// Assemble groups scored chunks by procedure, keeps the budgeted top
// procedures and descendants, carries over bounded sibling chunks, and
// renders the context text. Confidence is the mean of the selected scores
// clamped to [0,1], scaled down when the retrieval was degraded.
func (a *Assembler) Assemble(cfg analyse.ContextConfig, scored []scoredChunk, degraded bool) (string, []RetrievedChunk, float64) {
	if len(scored) == 0 {
		return "", nil, 0
	}

	byProcedure := make(map[string][]scoredChunk)
	var procedureOrder []string
	for _, sc := range scored {
		proc := sc.chunk.ProcedureID
		if _, seen := byProcedure[proc]; !seen {
			procedureOrder = append(procedureOrder, proc)
		}
		byProcedure[proc] = append(byProcedure[proc], sc)
	}

	// Procedures ranked by their best chunk score.
	sort.SliceStable(procedureOrder, func(i, j int) bool {
		return bestScore(byProcedure[procedureOrder[i]]) > bestScore(byProcedure[procedureOrder[j]])
	})

	topCount := cfg.Chunks
	if topCount > len(procedureOrder) {
		topCount = len(procedureOrder)
	}
	topProcedures := procedureOrder[:topCount]

	var blocks []string
	var selected []RetrievedChunk
	var scoreSum float64
	chunkNo := 0

	for _, proc := range topProcedures {
		procChunks := byProcedure[proc]
		sort.SliceStable(procChunks, func(i, j int) bool {
			return procChunks[i].score > procChunks[j].score
		})
		if len(procChunks) > cfg.MaxDescendants {
			procChunks = procChunks[:cfg.MaxDescendants]
		}

		var parent *store.Chunk
		if cfg.IncludeParents {
			if p, err := a.chunks.Parent(proc); err == nil {
				parent = p
			}
		}

		for i, sc := range procChunks {
			chunkNo++
			selected = append(selected, RetrievedChunk{
				Chunk:     sc.chunk,
				Score:     sc.score,
				Source:    search.SourceReranked,
				CrossTier: false,
			})
			scoreSum += sc.score

			var b strings.Builder
			writeBlockHeader(&b, fmt.Sprintf("CHUNK %d", chunkNo), sc.chunk, sc.score)
			if parent != nil && i == 0 && parent.ID != sc.chunk.ID {
				b.WriteString("[OVERVIEW]\n")
				b.WriteString(a.truncate(parent.Content))
				b.WriteString("\n\n")
			}
			b.WriteString("[DETAILED INFO]\n")
			b.WriteString(a.truncate(sc.chunk.Content))
			b.WriteString("\n")
			blocks = append(blocks, b.String())
		}
	}

	// Sibling carryover: the best chunk of each remaining procedure.
	if cfg.MaxSiblings > 0 {
		added := 0
		for _, proc := range procedureOrder[topCount:] {
			if added >= cfg.MaxSiblings {
				break
			}
			procChunks := byProcedure[proc]
			best := procChunks[0]
			for _, sc := range procChunks[1:] {
				if sc.score > best.score {
					best = sc
				}
			}

			chunkNo++
			added++
			selected = append(selected, RetrievedChunk{
				Chunk:  best.chunk,
				Score:  best.score,
				Source: search.SourceReranked,
			})
			scoreSum += best.score

			var b strings.Builder
			writeBlockHeader(&b, fmt.Sprintf("RELATED CHUNK %d", chunkNo), best.chunk, best.score)
			b.WriteString("[RELATED INFO]\n")
			b.WriteString(a.truncate(best.chunk.Content))
			b.WriteString("\n")
			blocks = append(blocks, b.String())
		}
	}

	var confidence float64
	if len(selected) > 0 {
		confidence = scoreSum / float64(len(selected))
	}
	if confidence < 0 {
		confidence = 0
	}
	if confidence > 1 {
		confidence = 1
	}
	if degraded {
		confidence *= degradedConfidenceFactor
	}

	return strings.Join(blocks, "\n"), selected, confidence
}

// AssembleProcedure renders every chunk of one procedure, parent first.
// Used by the exact-code fast path, where the intent budget does not apply.
func (a *Assembler) AssembleProcedure(procChunks []*store.Chunk) string {
	var blocks []string
	for i, c := range procChunks {
		var b strings.Builder
		label := fmt.Sprintf("CHUNK %d", i+1)
		if c.Tier == store.TierParent {
			label = "OVERVIEW"
		}
		writeBlockHeader(&b, label, c, 1.0)
		b.WriteString(a.truncate(c.Content))
		b.WriteString("\n")
		blocks = append(blocks, b.String())
	}
	return strings.Join(blocks, "\n")
}

func bestScore(chunks []scoredChunk) float64 {
	best := chunks[0].score
	for _, sc := range chunks[1:] {
		if sc.score > best {
			best = sc.score
		}
	}
	return best
}

func writeBlockHeader(b *strings.Builder, label string, c *store.Chunk, score float64) {
	rule := strings.Repeat("=", 80)
	b.WriteString(rule)
	b.WriteString("\n")
	fmt.Fprintf(b, "[%s] THỦ TỤC: %s\n", label, orNA(c.ProcedureName()))
	fmt.Fprintf(b, "Mã: %s\n", orNA(c.ProcedureID))
	fmt.Fprintf(b, "Lĩnh vực: %s\n", orNA(c.Domain()))
	fmt.Fprintf(b, "Chunk type: %s\n", c.Type)
	fmt.Fprintf(b, "Relevance score: %.4f\n", score)
	b.WriteString(rule)
	b.WriteString("\n\n")
}

func orNA(s string) string {
	if s == "" {
		return "N/A"
	}
	return s
}

// truncate keeps the head and tail of an over-long chunk, joined by the
// truncation marker. The word count stands in for tokens.
func (a *Assembler) truncate(content string) string {
	words := strings.Fields(content)
	if len(words) <= a.maxChunkTokens {
		return content
	}
	half := a.maxChunkTokens / 2
	return strings.Join(words[:half], " ") +
		"\n\n" + truncationMarker + "\n\n" +
		strings.Join(words[len(words)-half:], " ")
}
