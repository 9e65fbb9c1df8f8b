package retrieval

import (
	"sync"

	"github.com/nhdandz/ThuTucHanhChinh/internal/store"
)

// corpusHandle guards the reloadable trio: chunk store, lexical index and
// the assembler built over them. Swaps are rare (file watcher reloads);
// reads happen on every request.
type corpusHandle struct {
	mu        sync.RWMutex
	chunks    *store.ChunkStore
	lexical   LexicalIndex
	assembler *Assembler
}

func (h *corpusHandle) get() (*store.ChunkStore, LexicalIndex, *Assembler) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.chunks, h.lexical, h.assembler
}

func (h *corpusHandle) swap(chunks *store.ChunkStore, lexical LexicalIndex, assembler *Assembler) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.chunks = chunks
	h.lexical = lexical
	h.assembler = assembler
}
