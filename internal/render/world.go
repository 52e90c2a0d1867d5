package render

import (
	"iter"

	"github.com/annel0/tile-engine/internal/tiling"
	"github.com/annel0/tile-engine/internal/vec"
)

// RenderEntry — одна запись мира презентации: ресурс и координата чанка,
// из которого он порождён.
type RenderEntry struct {
	Resource *ChunkResource
	Coord    vec.Vec3
}

// RenderWorld — набор ресурсов презентации текущего цикла, ключом служит
// хэндл чанка. В немедленном режиме хост пересобирает его с нуля каждый
// цикл; в удерживающем — мир живёт между циклами.
type RenderWorld struct {
	entries map[tiling.Handle]RenderEntry
}

// NewRenderWorld создаёт пустой мир презентации.
func NewRenderWorld() *RenderWorld {
	return &RenderWorld{
		entries: make(map[tiling.Handle]RenderEntry),
	}
}

// Insert кладёт ресурс по хэндлу, замещая прежнюю запись.
func (w *RenderWorld) Insert(h tiling.Handle, res *ChunkResource, coord vec.Vec3) {
	w.entries[h] = RenderEntry{Resource: res, Coord: coord}
}

// Get возвращает запись по хэндлу.
func (w *RenderWorld) Get(h tiling.Handle) (RenderEntry, bool) {
	e, ok := w.entries[h]
	return e, ok
}

// Remove удаляет запись по хэндлу. Возвращает false, если записи не было.
func (w *RenderWorld) Remove(h tiling.Handle) bool {
	if _, ok := w.entries[h]; !ok {
		return false
	}
	delete(w.entries, h)
	return true
}

// Len возвращает число ресурсов в мире.
func (w *RenderWorld) Len() int {
	return len(w.entries)
}

// Entries перечисляет записи мира в произвольном порядке.
func (w *RenderWorld) Entries() iter.Seq2[tiling.Handle, RenderEntry] {
	return func(yield func(tiling.Handle, RenderEntry) bool) {
		for h, e := range w.entries {
			if !yield(h, e) {
				return
			}
		}
	}
}

// Clear опустошает мир целиком.
func (w *RenderWorld) Clear() {
	clear(w.entries)
}
