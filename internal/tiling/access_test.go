package tiling

import (
	"testing"

	"github.com/annel0/tile-engine/internal/vec"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestWriter() *Writer {
	return NewWriter(NewTileMap(), NewUpdateTracker())
}

func TestWriterDebounce(t *testing.T) {
	w := newTestWriter()
	coord := TileCoord{Chunk: vec.Vec3{X: 0, Y: 0, Z: 0}, Slot: 7}
	tile := Tile{Sheet: 1, Index: 4}

	// Первая запись меняет значение и помечает чанк
	w.SetTile(coord, &tile)
	require.True(t, w.IsChunkDirty(coord.Chunk), "Первая запись должна пометить чанк")

	w.updates.Clear()

	// Запись того же значения пометки не порождает
	w.SetTile(coord, &tile)
	assert.False(t, w.IsChunkDirty(coord.Chunk), "Повторная запись того же тайла не должна помечать чанк")

	// Запись другого значения — порождает
	other := Tile{Sheet: 1, Index: 5}
	w.SetTile(coord, &other)
	assert.True(t, w.IsChunkDirty(coord.Chunk))
}

func TestWriterDebounceClear(t *testing.T) {
	w := newTestWriter()
	coord := TileCoord{Chunk: vec.Vec3{X: 0, Y: 0, Z: 0}, Slot: 1}

	// Очистка и так пустого слота не помечает чанк
	w.SetTile(coord, nil)
	assert.False(t, w.IsChunkDirty(coord.Chunk), "Очистка пустого слота не должна помечать чанк")
	assert.Equal(t, 0, w.ChunkCount(), "И не должна создавать чанк")

	// Очистка занятого слота помечает и возвращает прежний тайл
	tile := Tile{Sheet: 2, Index: 2}
	w.SetTile(coord, &tile)
	w.updates.Clear()

	prev := w.SetTile(coord, nil)
	require.NotNil(t, prev)
	assert.Equal(t, tile, *prev)
	assert.True(t, w.IsChunkDirty(coord.Chunk), "Очистка занятого слота должна пометить чанк")
}

func TestWriterSetTileSilent(t *testing.T) {
	w := newTestWriter()
	coord := TileCoord{Chunk: vec.Vec3{X: 1, Y: 1, Z: 0}, Slot: 0}

	w.SetTileSilent(coord, &Tile{Sheet: 9, Index: 9})
	assert.False(t, w.IsChunkDirty(coord.Chunk), "Тихая запись не должна помечать чанк")

	got, ok := w.GetTile(coord)
	require.True(t, ok)
	assert.Equal(t, Tile{Sheet: 9, Index: 9}, got, "Тихая запись всё равно записывает тайл")
}

func TestWriterMarkChunkDirty(t *testing.T) {
	w := newTestWriter()
	coord := vec.Vec3{X: 5, Y: 5, Z: 0}

	w.MarkChunkDirty(coord)
	w.MarkChunkDirty(coord)
	assert.True(t, w.IsChunkDirty(coord))
	assert.Equal(t, 1, w.updates.Len(), "Повторная пометка идемпотентна")

	w.updates.Clear()
	assert.False(t, w.IsChunkDirty(coord), "Пометка должна исчезнуть после очистки цикла")
}

func TestWriterGetTileMut(t *testing.T) {
	w := newTestWriter()
	coord := TileCoord{Chunk: vec.Vec3{X: 0, Y: 0, Z: 0}, Slot: 33}

	assert.Nil(t, w.GetTileMut(coord), "Обходной доступ к пустому слоту возвращает nil")

	w.SetTileSilent(coord, &Tile{Sheet: 1, Index: 1})
	p := w.GetTileMut(coord)
	require.NotNil(t, p)

	p.Index = 2
	assert.False(t, w.IsChunkDirty(coord.Chunk), "Запись через указатель не отслеживается")

	got, _ := w.GetTile(coord)
	assert.Equal(t, uint16(2), got.Index)
}

func TestWriterApplyDisjoint(t *testing.T) {
	w := newTestWriter()
	base := vec.Vec3{X: 0, Y: 0, Z: 0}

	edits := []TileEdit{
		{Coord: TileCoord{Chunk: base, Slot: 0}, Tile: &Tile{Index: 1}},
		{Coord: TileCoord{Chunk: base, Slot: 1}, Tile: &Tile{Index: 2}},
		{Coord: TileCoord{Chunk: vec.Vec3{X: 1, Y: 0, Z: 0}, Slot: 0}, Tile: &Tile{Index: 3}},
	}
	require.NoError(t, w.ApplyDisjoint(edits))

	got, ok := w.GetTile(edits[1].Coord)
	require.True(t, ok)
	assert.Equal(t, uint16(2), got.Index)
	assert.Equal(t, []uint8{0, 1}, w.DirtySlots(base), "Пакет должен пометить оба слота")
}

func TestWriterApplyDisjointAliased(t *testing.T) {
	w := newTestWriter()
	coord := TileCoord{Chunk: vec.Vec3{X: 0, Y: 0, Z: 0}, Slot: 5}

	edits := []TileEdit{
		{Coord: coord, Tile: &Tile{Index: 1}},
		{Coord: coord, Tile: &Tile{Index: 2}},
	}
	err := w.ApplyDisjoint(edits)
	require.ErrorIs(t, err, ErrAliasedEdit, "Два адреса одного слота должны дать ошибку")

	// Ни одна правка не применена
	_, ok := w.GetTile(coord)
	assert.False(t, ok, "При ошибке пакет не должен применяться")
	assert.Equal(t, 0, w.updates.Len())
}

func TestWriterApplyDisjointDebounce(t *testing.T) {
	w := newTestWriter()
	coord := TileCoord{Chunk: vec.Vec3{X: 0, Y: 0, Z: 0}, Slot: 5}
	tile := Tile{Sheet: 4, Index: 4}

	w.SetTile(coord, &tile)
	w.updates.Clear()

	// Пакет, записывающий то же значение, пометок не оставляет
	require.NoError(t, w.ApplyDisjoint([]TileEdit{{Coord: coord, Tile: &tile}}))
	assert.False(t, w.IsChunkDirty(coord.Chunk), "Дебаунс действует и внутри пакета")
}

func TestReaderGetChunk(t *testing.T) {
	tiles := NewTileMap()
	updates := NewUpdateTracker()
	r := NewReader(tiles, updates)
	coord := vec.Vec3{X: 2, Y: 2, Z: 0}

	assert.Nil(t, r.GetChunk(coord), "Отсутствующий чанк читается как nil")

	tiles.CreateChunk(coord)
	assert.NotNil(t, r.GetChunk(coord))
}

func BenchmarkWriterSetTile(b *testing.B) {
	w := newTestWriter()
	tile := Tile{Sheet: 1, Index: 2}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		coord := TileCoord{Chunk: vec.Vec3{X: i % 16, Y: 0, Z: 0}, Slot: uint8(i)}
		w.SetTile(coord, &tile)
	}
}

func BenchmarkWriterSetTileSameValue(b *testing.B) {
	w := newTestWriter()
	coord := TileCoord{Chunk: vec.Vec3{X: 0, Y: 0, Z: 0}, Slot: 0}
	tile := Tile{Sheet: 1, Index: 2}
	w.SetTile(coord, &tile)

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		w.SetTile(coord, &tile)
	}
}
