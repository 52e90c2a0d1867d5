package tiling

import (
	"iter"
	"sort"

	"github.com/annel0/tile-engine/internal/vec"
)

// UpdateTracker накапливает изменения тайлов за цикл: для каждого
// затронутого чанка — множество изменённых слотов. Чанк, помеченный
// целиком, присутствует в трекере с пустым множеством слотов: сам факт
// наличия ключа означает "чанк грязный".
//
// Трекер очищается движком ровно один раз за цикл, в самом конце.
// Пометки, сделанные между циклами, доживают до следующего цикла.
type UpdateTracker struct {
	chunks map[vec.Vec3]map[uint8]struct{}
}

// NewUpdateTracker создаёт пустой трекер изменений.
func NewUpdateTracker() *UpdateTracker {
	return &UpdateTracker{
		chunks: make(map[vec.Vec3]map[uint8]struct{}),
	}
}

// Mark помечает один слот изменённым, лениво создавая множество слотов
// для чанка.
func (t *UpdateTracker) Mark(coord TileCoord) {
	slots, ok := t.chunks[coord.Chunk]
	if !ok {
		slots = make(map[uint8]struct{})
		t.chunks[coord.Chunk] = slots
	}
	slots[coord.Slot] = struct{}{}
}

// MarkChunk помечает чанк изменённым целиком. Идемпотентна: повторная
// пометка ничего не меняет и не стирает уже накопленные слоты.
func (t *UpdateTracker) MarkChunk(coord vec.Vec3) {
	if _, ok := t.chunks[coord]; ok {
		return
	}
	t.chunks[coord] = make(map[uint8]struct{})
}

// IsDirty сообщает, помечен ли чанк изменённым в текущем цикле.
func (t *UpdateTracker) IsDirty(coord vec.Vec3) bool {
	_, ok := t.chunks[coord]
	return ok
}

// DirtySlots возвращает отсортированный список изменённых слотов чанка.
// Пустой список у грязного чанка означает пометку целиком.
func (t *UpdateTracker) DirtySlots(coord vec.Vec3) []uint8 {
	slots, ok := t.chunks[coord]
	if !ok {
		return nil
	}
	out := make([]uint8, 0, len(slots))
	for s := range slots {
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// DirtyCoords лениво перечисляет координаты грязных чанков в произвольном
// порядке. Последовательность одноразовая: прерванный обход не
// возобновляется с того же места.
func (t *UpdateTracker) DirtyCoords() iter.Seq[vec.Vec3] {
	return func(yield func(vec.Vec3) bool) {
		for coord := range t.chunks {
			if !yield(coord) {
				return
			}
		}
	}
}

// Len возвращает число грязных чанков.
func (t *UpdateTracker) Len() int {
	return len(t.chunks)
}

// Clear сбрасывает все накопленные изменения.
func (t *UpdateTracker) Clear() {
	clear(t.chunks)
}
