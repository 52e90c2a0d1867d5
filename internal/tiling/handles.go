package tiling

import (
	"fmt"
	"iter"

	"github.com/annel0/tile-engine/internal/vec"
)

// Handle — непрозрачный идентификатор сущности презентации, привязанной к
// чанку. Сам движок хэндлы не интерпретирует.
type Handle uint64

// Pairing — одна связка координаты чанка и хэндла.
type Pairing struct {
	Coord  vec.Vec3
	Handle Handle
}

// ChunkHandleMap — биекция координата чанка <-> хэндл. Обе стороны
// обновляются в одном вызове: промежуточное состояние с расхождением
// сторон наружу не выходит. Рассинхронизация сторон — логическая ошибка,
// которую Validate обнаруживает, а не маскирует.
type ChunkHandleMap struct {
	byCoord  map[vec.Vec3]Handle
	byHandle map[Handle]vec.Vec3
}

// NewChunkHandleMap создаёт пустую биекцию.
func NewChunkHandleMap() *ChunkHandleMap {
	return &ChunkHandleMap{
		byCoord:  make(map[vec.Vec3]Handle),
		byHandle: make(map[Handle]vec.Vec3),
	}
}

// Bind связывает координату с хэндлом. Любая прежняя связка, пересекающаяся
// с новой по любой из сторон, вытесняется целиком (обе стороны) и
// возвращается: ноль, одна или две вытесненные связки. Повторная привязка
// той же пары возвращает эту пару.
func (m *ChunkHandleMap) Bind(coord vec.Vec3, h Handle) []Pairing {
	var evicted []Pairing
	if oldH, ok := m.byCoord[coord]; ok {
		evicted = append(evicted, Pairing{Coord: coord, Handle: oldH})
		delete(m.byCoord, coord)
		delete(m.byHandle, oldH)
	}
	if oldC, ok := m.byHandle[h]; ok {
		evicted = append(evicted, Pairing{Coord: oldC, Handle: h})
		delete(m.byHandle, h)
		delete(m.byCoord, oldC)
	}
	m.byCoord[coord] = h
	m.byHandle[h] = coord
	return evicted
}

// UnbindCoord разрывает связку по координате, возвращая хэндл.
func (m *ChunkHandleMap) UnbindCoord(coord vec.Vec3) (Handle, bool) {
	h, ok := m.byCoord[coord]
	if !ok {
		return 0, false
	}
	delete(m.byCoord, coord)
	delete(m.byHandle, h)
	return h, true
}

// UnbindHandle разрывает связку по хэндлу, возвращая координату.
func (m *ChunkHandleMap) UnbindHandle(h Handle) (vec.Vec3, bool) {
	coord, ok := m.byHandle[h]
	if !ok {
		return vec.Vec3{}, false
	}
	delete(m.byHandle, h)
	delete(m.byCoord, coord)
	return coord, true
}

// HandleFor возвращает хэндл чанка, если связка существует.
func (m *ChunkHandleMap) HandleFor(coord vec.Vec3) (Handle, bool) {
	h, ok := m.byCoord[coord]
	return h, ok
}

// CoordFor возвращает координату чанка по хэндлу, если связка существует.
func (m *ChunkHandleMap) CoordFor(h Handle) (vec.Vec3, bool) {
	coord, ok := m.byHandle[h]
	return coord, ok
}

// Len возвращает число связок.
func (m *ChunkHandleMap) Len() int {
	return len(m.byCoord)
}

// Pairings перечисляет связки в произвольном порядке.
func (m *ChunkHandleMap) Pairings() iter.Seq[Pairing] {
	return func(yield func(Pairing) bool) {
		for coord, h := range m.byCoord {
			if !yield(Pairing{Coord: coord, Handle: h}) {
				return
			}
		}
	}
}

// Validate проверяет согласованность обеих сторон биекции. Ошибка здесь
// означает логический дефект в коде, работающем с картой.
func (m *ChunkHandleMap) Validate() error {
	if len(m.byCoord) != len(m.byHandle) {
		return fmt.Errorf("нарушена биекция: %d координат против %d хэндлов",
			len(m.byCoord), len(m.byHandle))
	}
	for coord, h := range m.byCoord {
		back, ok := m.byHandle[h]
		if !ok || back != coord {
			return fmt.Errorf("нарушена биекция: хэндл %d не указывает обратно на (%d,%d,%d)",
				h, coord.X, coord.Y, coord.Z)
		}
	}
	return nil
}
