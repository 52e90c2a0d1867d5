package tiling

import (
	"testing"

	"github.com/annel0/tile-engine/internal/vec"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTileMapLazyGrowth(t *testing.T) {
	m := NewTileMap()
	coord := TileCoord{Chunk: vec.Vec3{X: 5, Y: -3, Z: 0}, Slot: 42}

	// Очистка слота в несуществующем чанке не создаёт чанк
	prev := m.SetTile(coord, nil)
	assert.Nil(t, prev)
	assert.Equal(t, 0, m.ChunkCount(), "Очистка не должна создавать чанк")

	// Запись тайла создаёт чанк и кладёт тайл в свежий чанк
	tile := Tile{Sheet: 1, Index: 2}
	prev = m.SetTile(coord, &tile)
	assert.Nil(t, prev)
	require.Equal(t, 1, m.ChunkCount(), "Запись должна создать ровно один чанк")

	got, ok := m.GetTile(coord)
	require.True(t, ok, "Тайл должен лежать в свежесозданном чанке")
	assert.Equal(t, tile, got)
}

func TestTileMapRoundTrip(t *testing.T) {
	m := NewTileMap()
	coords := []TileCoord{
		{Chunk: vec.Vec3{X: 0, Y: 0, Z: 0}, Slot: 0},
		{Chunk: vec.Vec3{X: -1, Y: 2, Z: 1}, Slot: 255},
		{Chunk: vec.Vec3{X: 100, Y: -100, Z: -5}, Slot: 17},
	}

	for i, coord := range coords {
		tile := Tile{Sheet: uint16(i), Index: uint16(i * 10)}
		m.SetTile(coord, &tile)
	}

	for i, coord := range coords {
		got, ok := m.GetTile(coord)
		require.True(t, ok, "Тайл %d должен найтись", i)
		assert.Equal(t, Tile{Sheet: uint16(i), Index: uint16(i * 10)}, got)
	}
}

func TestTileMapCreateChunk(t *testing.T) {
	m := NewTileMap()
	coord := vec.Vec3{X: 1, Y: 1, Z: 0}

	c1 := m.CreateChunk(coord)
	require.NotNil(t, c1)
	c2 := m.CreateChunk(coord)
	assert.Same(t, c1, c2, "Повторное создание должно вернуть тот же чанк")
	assert.Equal(t, 1, m.ChunkCount())
}

func TestTileMapRemoveChunk(t *testing.T) {
	m := NewTileMap()
	coord := vec.Vec3{X: 2, Y: 0, Z: 0}

	assert.False(t, m.RemoveChunk(coord), "Удаление несуществующего чанка возвращает false")

	m.CreateChunk(coord)
	assert.True(t, m.RemoveChunk(coord))
	assert.Nil(t, m.GetChunk(coord), "Чанк должен исчезнуть после удаления")
	assert.Equal(t, 0, m.ChunkCount())
}

func TestTileMapChunkCoords(t *testing.T) {
	m := NewTileMap()
	want := map[vec.Vec3]bool{
		{X: 0, Y: 0, Z: 0}: true,
		{X: 1, Y: 0, Z: 0}: true,
		{X: 0, Y: 1, Z: 2}: true,
	}
	for coord := range want {
		m.CreateChunk(coord)
	}

	seen := make(map[vec.Vec3]bool)
	for coord := range m.ChunkCoords() {
		seen[coord] = true
	}
	assert.Equal(t, want, seen, "Перечисление должно вернуть все координаты чанков")
}

func BenchmarkTileMapSetTile(b *testing.B) {
	m := NewTileMap()
	tile := Tile{Sheet: 1, Index: 2}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		coord := TileCoord{
			Chunk: vec.Vec3{X: i % 64, Y: (i / 64) % 64, Z: 0},
			Slot:  uint8(i),
		}
		m.SetTile(coord, &tile)
	}
}
