package tiling

import (
	"iter"

	"github.com/annel0/tile-engine/internal/vec"
)

// TileMap — разреженная карта чанков мира. Чанк существует только если в
// него когда-либо записали тайл или он был создан явно; чтение и удаление
// по отсутствующей координате никогда не создают чанк.
type TileMap struct {
	chunks map[vec.Vec3]*Chunk
}

// NewTileMap создаёт пустую карту чанков.
func NewTileMap() *TileMap {
	return &TileMap{
		chunks: make(map[vec.Vec3]*Chunk),
	}
}

// GetChunk возвращает чанк по координате или nil, если чанка нет.
func (m *TileMap) GetChunk(coord vec.Vec3) *Chunk {
	return m.chunks[coord]
}

// CreateChunk возвращает чанк по координате, создавая пустой при
// отсутствии. Повторный вызов возвращает существующий чанк.
func (m *TileMap) CreateChunk(coord vec.Vec3) *Chunk {
	if c, ok := m.chunks[coord]; ok {
		return c
	}
	c := &Chunk{}
	m.chunks[coord] = c
	return c
}

// RemoveChunk выгружает чанк. Возвращает true, если чанк существовал.
func (m *TileMap) RemoveChunk(coord vec.Vec3) bool {
	if _, ok := m.chunks[coord]; !ok {
		return false
	}
	delete(m.chunks, coord)
	return true
}

// SetTile записывает тайл по координате, nil очищает слот. Возвращает
// копию прежнего тайла, если слот был занят.
//
// Асимметрия ленивого создания: запись тайла в отсутствующий чанк сначала
// создаёт пустой чанк, а очистка слота в отсутствующем чанке не создаёт
// ничего и сразу возвращает nil.
func (m *TileMap) SetTile(coord TileCoord, t *Tile) *Tile {
	c, ok := m.chunks[coord.Chunk]
	if !ok {
		if t == nil {
			return nil
		}
		c = m.CreateChunk(coord.Chunk)
	}
	return c.Set(coord.Slot, t)
}

// GetTile возвращает копию тайла по координате. Второе значение false,
// если чанка нет или слот пуст.
func (m *TileMap) GetTile(coord TileCoord) (Tile, bool) {
	c, ok := m.chunks[coord.Chunk]
	if !ok {
		return Tile{}, false
	}
	return c.Get(coord.Slot)
}

// ChunkCount возвращает число загруженных чанков.
func (m *TileMap) ChunkCount() int {
	return len(m.chunks)
}

// ChunkCoords перечисляет координаты загруженных чанков в произвольном
// порядке.
func (m *TileMap) ChunkCoords() iter.Seq[vec.Vec3] {
	return func(yield func(vec.Vec3) bool) {
		for coord := range m.chunks {
			if !yield(coord) {
				return
			}
		}
	}
}
