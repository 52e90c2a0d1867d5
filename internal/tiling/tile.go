// Package tiling реализует ядро тайлового мира: чанки фиксированного
// размера, разреженную карту чанков и трекер изменений с дебаунсом.
package tiling

import (
	"github.com/annel0/tile-engine/internal/vec"
)

// Tile — ссылка на тайл в атласе текстур: номер листа и индекс внутри листа.
// Значимый тип, 4 байта, сравним напрямую.
type Tile struct {
	Sheet uint16
	Index uint16
}

// TileCoord адресует один слот в мире: координаты чанка плюс слот 0..255.
// Слоты нумеруются построчно: slot = y*16 + x внутри сетки 16x16.
type TileCoord struct {
	Chunk vec.Vec3
	Slot  uint8
}

// TileCoordAt строит TileCoord из мировых координат тайла и номера слоя.
func TileCoordAt(world vec.Vec2, layer int) TileCoord {
	local := world.LocalInChunk()
	return TileCoord{
		Chunk: vec.FromVec2(world.ToChunkCoords(), layer),
		Slot:  SlotAt(local),
	}
}

// SlotAt кодирует локальные координаты 0..15 в номер слота.
func SlotAt(local vec.Vec2) uint8 {
	return uint8(local.Y<<4 | local.X)
}

// Local возвращает локальные координаты слота внутри чанка.
func (tc TileCoord) Local() vec.Vec2 {
	return vec.Vec2{X: int(tc.Slot & 0xF), Y: int(tc.Slot >> 4)}
}

// World возвращает мировые координаты тайла (без учёта слоя).
func (tc TileCoord) World() vec.Vec2 {
	local := tc.Local()
	return vec.Vec2{
		X: tc.Chunk.X<<4 | local.X,
		Y: tc.Chunk.Y<<4 | local.Y,
	}
}

// Offset возвращает координату соседнего тайла на том же слое.
// Переход через границу чанка обрабатывается автоматически.
func (tc TileCoord) Offset(dx, dy int) TileCoord {
	world := tc.World().Add(vec.Vec2{X: dx, Y: dy})
	return TileCoordAt(world, tc.Chunk.Z)
}
