package tiling

import (
	"errors"
	"fmt"
	"iter"

	"github.com/annel0/tile-engine/internal/vec"
)

// Reader — читающий фасад над картой чанков и трекером изменений.
// Возвращает копии тайлов; полученные чанки мутировать нельзя.
type Reader struct {
	tiles   *TileMap
	updates *UpdateTracker
}

// NewReader создаёт читающий фасад.
func NewReader(tiles *TileMap, updates *UpdateTracker) *Reader {
	return &Reader{tiles: tiles, updates: updates}
}

// GetTile возвращает копию тайла. Второе значение false, если чанка нет
// или слот пуст: отсутствие — не ошибка.
func (r *Reader) GetTile(coord TileCoord) (Tile, bool) {
	return r.tiles.GetTile(coord)
}

// GetChunk возвращает чанк для чтения или nil. Запись через результат —
// нарушение контракта читателя.
func (r *Reader) GetChunk(coord vec.Vec3) *Chunk {
	return r.tiles.GetChunk(coord)
}

// IsChunkDirty сообщает, менялся ли чанк в текущем цикле.
func (r *Reader) IsChunkDirty(coord vec.Vec3) bool {
	return r.updates.IsDirty(coord)
}

// DirtyCoords лениво перечисляет координаты грязных чанков.
func (r *Reader) DirtyCoords() iter.Seq[vec.Vec3] {
	return r.updates.DirtyCoords()
}

// DirtySlots возвращает изменённые слоты чанка (пустой список у грязного
// чанка означает пометку целиком).
func (r *Reader) DirtySlots(coord vec.Vec3) []uint8 {
	return r.updates.DirtySlots(coord)
}

// ChunkCount возвращает число загруженных чанков.
func (r *Reader) ChunkCount() int {
	return r.tiles.ChunkCount()
}

// ChunkCoords лениво перечисляет координаты всех чанков карты.
func (r *Reader) ChunkCoords() iter.Seq[vec.Vec3] {
	return r.tiles.ChunkCoords()
}

// Writer — пишущий фасад. Каждая запись через SetTile попадает в трекер
// изменений с дебаунсом; обходные пути помечены явно.
type Writer struct {
	Reader
}

// NewWriter создаёт пишущий фасад.
func NewWriter(tiles *TileMap, updates *UpdateTracker) *Writer {
	return &Writer{Reader{tiles: tiles, updates: updates}}
}

// SetTile записывает тайл (nil очищает слот) и возвращает копию прежнего
// значения. Слот помечается изменённым только если значение действительно
// поменялось: повторная запись того же тайла не порождает пометку.
func (w *Writer) SetTile(coord TileCoord, t *Tile) *Tile {
	prev := w.tiles.SetTile(coord, t)
	if !sameTile(prev, t) {
		w.updates.Mark(coord)
	}
	return prev
}

// SetTileSilent записывает тайл без пометки в трекере. Для массового
// заполнения, когда перегенерация ресурсов запускается отдельно.
func (w *Writer) SetTileSilent(coord TileCoord, t *Tile) *Tile {
	return w.tiles.SetTile(coord, t)
}

// MarkChunkDirty принудительно помечает чанк изменённым целиком.
// Идемпотентна и не стирает накопленные послотовые пометки.
func (w *Writer) MarkChunkDirty(coord vec.Vec3) {
	w.updates.MarkChunk(coord)
}

// RemoveChunk выгружает чанк из карты. Пометок не оставляет: устаревшее
// состояние презентации вычищается фазой сверки по факту отсутствия.
func (w *Writer) RemoveChunk(coord vec.Vec3) bool {
	return w.tiles.RemoveChunk(coord)
}

// GetTileMut возвращает указатель на тайл в обход трекера или nil, если
// слот пуст. Контракт вызывающего: после записей через указатель пометить
// затронутый чанк через MarkChunkDirty.
func (w *Writer) GetTileMut(coord TileCoord) *Tile {
	c := w.tiles.GetChunk(coord.Chunk)
	if c == nil {
		return nil
	}
	return c.GetMut(coord.Slot)
}

// GetChunkMut возвращает чанк для прямой записи в обход трекера или nil.
// Контракт тот же, что у GetTileMut.
func (w *Writer) GetChunkMut(coord vec.Vec3) *Chunk {
	return w.tiles.GetChunk(coord)
}

// CreateChunk возвращает чанк по координате, создавая его при
// необходимости. Создание само по себе пометок не оставляет.
func (w *Writer) CreateChunk(coord vec.Vec3) *Chunk {
	return w.tiles.CreateChunk(coord)
}

// TileEdit — одна правка пакета: адрес слота и новое значение (nil очищает).
type TileEdit struct {
	Coord TileCoord
	Tile  *Tile
}

// ErrAliasedEdit возвращается ApplyDisjoint, когда пакет правок адресует
// один и тот же слот дважды.
var ErrAliasedEdit = errors.New("пакет правок адресует слот дважды")

// ApplyDisjoint применяет пакет правок к непересекающимся слотам. Если два
// элемента пакета адресуют один слот, возвращается ошибка и ни одна правка
// не применяется. Пометки изменений ставятся с обычным дебаунсом.
func (w *Writer) ApplyDisjoint(edits []TileEdit) error {
	seen := make(map[TileCoord]struct{}, len(edits))
	for _, e := range edits {
		if _, dup := seen[e.Coord]; dup {
			return fmt.Errorf("слот %d чанка (%d,%d,%d): %w",
				e.Coord.Slot, e.Coord.Chunk.X, e.Coord.Chunk.Y, e.Coord.Chunk.Z, ErrAliasedEdit)
		}
		seen[e.Coord] = struct{}{}
	}
	for _, e := range edits {
		w.SetTile(e.Coord, e.Tile)
	}
	return nil
}

func sameTile(a, b *Tile) bool {
	if a == nil && b == nil {
		return true
	}
	if a == nil || b == nil {
		return false
	}
	return *a == *b
}
