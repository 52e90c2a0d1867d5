// Package autotile пересчитывает варианты тайлов по четырём соседям.
// Каждому автотайлу в атласе отведён блок из шестнадцати вариантов,
// индекс внутри блока равен битовой маске соседей той же породы.
package autotile

import (
	"github.com/annel0/tile-engine/internal/engine"
	"github.com/annel0/tile-engine/internal/tiling"
)

// Биты маски соседей. Ось Y направлена вниз.
const (
	maskNorth = 1 << 0
	maskEast  = 1 << 1
	maskSouth = 1 << 2
	maskWest  = 1 << 3
)

// VariantCount — число вариантов одного автотайла в атласе.
const VariantCount = 16

var neighbourOffsets = [4]struct {
	dx, dy int
	bit    uint16
}{
	{0, -1, maskNorth},
	{1, 0, maskEast},
	{0, 1, maskSouth},
	{-1, 0, maskWest},
}

// Rule описывает один автотайл: лист атласа и индекс нулевого варианта.
// Тайл принадлежит правилу, когда его индекс лежит в блоке
// [Base, Base+VariantCount).
type Rule struct {
	Sheet uint16 `yaml:"sheet"`
	Base  uint16 `yaml:"base"`
}

func (r Rule) matches(t tiling.Tile) bool {
	return t.Sheet == r.Sheet && t.Index >= r.Base && t.Index < r.Base+VariantCount
}

// Autotiler хранит набор правил и пересчитывает варианты вокруг
// изменённых слотов.
type Autotiler struct {
	rules []Rule
}

// New создаёт Autotiler с заданными правилами.
func New(rules ...Rule) *Autotiler {
	return &Autotiler{rules: rules}
}

// System возвращает Retile в виде системы движка.
func (a *Autotiler) System() engine.System {
	return a.Retile
}

// Retile пересчитывает варианты тайлов, затронутых правками текущего
// цикла: сами изменённые слоты плюс их соседи, в том числе за границей
// чанка. Правка меняет только индекс внутри блока правила, поэтому
// принадлежность тайлов правилам не зависит от порядка применения и
// одного прохода достаточно.
func (a *Autotiler) Retile(w *tiling.Writer) error {
	if len(a.rules) == 0 {
		return nil
	}

	candidates := make(map[tiling.TileCoord]struct{})
	for coord := range w.DirtyCoords() {
		slots := w.DirtySlots(coord)
		if len(slots) == 0 {
			// Чанк помечен целиком, кандидаты все его слоты
			for slot := 0; slot < tiling.ChunkSlots; slot++ {
				a.collect(candidates, tiling.TileCoord{Chunk: coord, Slot: uint8(slot)})
			}
			continue
		}
		for _, slot := range slots {
			a.collect(candidates, tiling.TileCoord{Chunk: coord, Slot: slot})
		}
	}

	var edits []tiling.TileEdit
	for coord := range candidates {
		tile, ok := w.GetTile(coord)
		if !ok {
			continue
		}
		rule, ok := a.ruleFor(tile)
		if !ok {
			continue
		}
		want := rule.Base + a.neighbourMask(&w.Reader, coord, rule)
		if tile.Index == want {
			continue
		}
		edits = append(edits, tiling.TileEdit{
			Coord: coord,
			Tile:  &tiling.Tile{Sheet: tile.Sheet, Index: want},
		})
	}

	if len(edits) == 0 {
		return nil
	}

	// Кандидаты собраны через множество, слоты не повторяются
	return w.ApplyDisjoint(edits)
}

// collect добавляет слот и его четырёх соседей в множество кандидатов.
func (a *Autotiler) collect(candidates map[tiling.TileCoord]struct{}, coord tiling.TileCoord) {
	candidates[coord] = struct{}{}
	for _, n := range neighbourOffsets {
		candidates[coord.Offset(n.dx, n.dy)] = struct{}{}
	}
}

// ruleFor находит правило, которому принадлежит тайл.
func (a *Autotiler) ruleFor(t tiling.Tile) (Rule, bool) {
	for _, r := range a.rules {
		if r.matches(t) {
			return r, true
		}
	}
	return Rule{}, false
}

// neighbourMask строит битовую маску соседей той же породы.
func (a *Autotiler) neighbourMask(r *tiling.Reader, coord tiling.TileCoord, rule Rule) uint16 {
	var mask uint16
	for _, n := range neighbourOffsets {
		t, ok := r.GetTile(coord.Offset(n.dx, n.dy))
		if ok && rule.matches(t) {
			mask |= n.bit
		}
	}
	return mask
}
