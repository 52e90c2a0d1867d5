// Package worldgen детерминированно генерирует ландшафт из шума Перлина
// и раскладывает его по чанкам карты тайлов.
package worldgen

import (
	"math/rand"

	"github.com/annel0/tile-engine/internal/tiling"
	"github.com/annel0/tile-engine/internal/util"
	"github.com/annel0/tile-engine/internal/vec"
)

// Слои мира: пол и растительность поверх него.
const (
	LayerGround = 0
	LayerFlora  = 1
)

// Листы тайлов по умолчанию.
const (
	SheetGround uint16 = 1
	SheetFlora  uint16 = 2
)

// Индексы тайлов листа SheetGround.
const (
	TileDeepWater uint16 = iota
	TileWater
	TileSand
	TileDirt
	TileGrass
	TileStone
)

// Индексы тайлов листа SheetFlora.
const (
	TileTree uint16 = iota
	TileCactus
)

// Biome — тип биома.
type Biome int

const (
	BiomePlains Biome = iota
	BiomeDesert
	BiomeForest
	BiomeMountains
	BiomeWater
	BiomeDeepWater
)

// Пороги высот для генерации.
const (
	deepWaterMax    = 0.20 // ниже — глубинная вода
	shallowWaterMax = 0.30 // ниже — мелководье
	mountainStart   = 0.80 // выше — горы
)

// Generator генерирует ландшафт мира. Один и тот же сид всегда даёт
// одинаковый мир независимо от порядка генерации чанков.
type Generator struct {
	seed   int64
	height *util.Noise
	biomes *util.Noise

	NoiseScale    float64 // масштаб шума высот
	BiomeScale    float64 // масштаб шума биомов
	ForestDensity float64 // шанс дерева на равнине
}

// NewGenerator создаёт генератор мира с указанным сидом.
func NewGenerator(seed int64) *Generator {
	return &Generator{
		seed:          seed,
		height:        util.NewNoise(seed),
		biomes:        util.NewNoise(seed + 42),
		NoiseScale:    0.05,
		BiomeScale:    0.02,
		ForestDensity: 0.05,
	}
}

// PopulateChunk заполняет чанк пола по координате чанка и, если ландшафт
// этого требует, чанк растительности над ним. Тайлы пишутся тихо, после
// чего чанк помечается грязным целиком: для свежего чанка подробный
// дебаунс по слотам не нужен. Чанк растительности не создаётся вовсе,
// если в нём нечего размещать.
func (g *Generator) PopulateChunk(w *tiling.Writer, chunkPos vec.Vec2) {
	groundCoord := vec.Vec3{X: chunkPos.X, Y: chunkPos.Y, Z: LayerGround}
	floraCoord := vec.Vec3{X: chunkPos.X, Y: chunkPos.Y, Z: LayerFlora}

	// Уникальный сид чанка даёт детерминированность при любом порядке обхода.
	chunkSeed := g.seed + int64(chunkPos.X)*31 + int64(chunkPos.Y)*17
	rng := rand.New(rand.NewSource(chunkSeed))

	floraWritten := false
	for y := 0; y < 16; y++ {
		for x := 0; x < 16; x++ {
			worldX := chunkPos.X<<4 + x
			worldY := chunkPos.Y<<4 + y

			height := g.height.At(float64(worldX)*g.NoiseScale, float64(worldY)*g.NoiseScale)
			biomeValue := g.biomes.At(float64(worldX)*g.BiomeScale, float64(worldY)*g.BiomeScale)
			biome := g.biomeAt(height, biomeValue)

			slot := tiling.SlotAt(vec.Vec2{X: x, Y: y})
			ground := g.groundTile(height, biome)
			w.SetTileSilent(tiling.TileCoord{Chunk: groundCoord, Slot: slot}, &ground)

			if flora, ok := g.floraTile(height, biome, rng); ok {
				w.SetTileSilent(tiling.TileCoord{Chunk: floraCoord, Slot: slot}, &flora)
				floraWritten = true
			}
		}
	}

	w.MarkChunkDirty(groundCoord)
	if floraWritten {
		w.MarkChunkDirty(floraCoord)
	}
}

// PopulateRegion заполняет прямоугольник чанков, границы включительно.
// Возвращает число сгенерированных позиций.
func (g *Generator) PopulateRegion(w *tiling.Writer, from, to vec.Vec2) int {
	count := 0
	for y := from.Y; y <= to.Y; y++ {
		for x := from.X; x <= to.X; x++ {
			g.PopulateChunk(w, vec.Vec2{X: x, Y: y})
			count++
		}
	}
	return count
}

// biomeAt определяет биом по высоте и значению шума биомов.
func (g *Generator) biomeAt(height, biomeValue float64) Biome {
	if height < deepWaterMax {
		return BiomeDeepWater
	}
	if height < shallowWaterMax {
		return BiomeWater
	}
	if height >= mountainStart {
		return BiomeMountains
	}

	if biomeValue < 0.35 {
		return BiomeDesert
	}
	if biomeValue > 0.65 {
		return BiomeForest
	}
	return BiomePlains
}

// groundTile возвращает тайл пола для высоты и биома.
func (g *Generator) groundTile(height float64, biome Biome) tiling.Tile {
	switch {
	case height < deepWaterMax:
		return tiling.Tile{Sheet: SheetGround, Index: TileDeepWater}
	case height < shallowWaterMax:
		return tiling.Tile{Sheet: SheetGround, Index: TileWater}
	case height >= mountainStart:
		return tiling.Tile{Sheet: SheetGround, Index: TileStone}
	default:
		switch biome {
		case BiomeDesert:
			return tiling.Tile{Sheet: SheetGround, Index: TileSand}
		case BiomeForest:
			return tiling.Tile{Sheet: SheetGround, Index: TileGrass}
		default:
			return tiling.Tile{Sheet: SheetGround, Index: TileDirt}
		}
	}
}

// floraTile решает, разместить ли растительность над сушей.
func (g *Generator) floraTile(height float64, biome Biome, rng *rand.Rand) (tiling.Tile, bool) {
	if height < shallowWaterMax || height >= mountainStart {
		return tiling.Tile{}, false
	}

	switch {
	case biome == BiomeForest && rng.Float64() < 0.15:
		return tiling.Tile{Sheet: SheetFlora, Index: TileTree}, true
	case biome == BiomePlains && rng.Float64() < g.ForestDensity:
		return tiling.Tile{Sheet: SheetFlora, Index: TileTree}, true
	case biome == BiomeDesert && rng.Float64() < 0.02:
		return tiling.Tile{Sheet: SheetFlora, Index: TileCactus}, true
	}
	return tiling.Tile{}, false
}
