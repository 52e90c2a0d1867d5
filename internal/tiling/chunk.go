package tiling

import (
	"fmt"
	"unsafe"
)

const (
	// ChunkSlots — число слотов в чанке (сетка 16x16).
	ChunkSlots = 256

	tileBytes  = 4
	tilesBytes = ChunkSlots * tileBytes

	// ChunkBytes — длина байтового представления чанка: массив тайлов
	// и сразу за ним массив флагов занятости, без зазоров.
	ChunkBytes = tilesBytes + ChunkSlots
)

// Chunk хранит 256 слотов тайлов и флаги занятости слотов. Оба массива
// фиксированного размера: смещение любого слота известно на этапе
// компиляции, что позволяет отдавать чанк целиком как один байтовый буфер
// без сериализации.
//
// Chunk не синхронизирован: дисциплину "один писатель или много
// читателей" в пределах цикла обеспечивает движок.
type Chunk struct {
	Tiles [ChunkSlots]Tile
	Valid [ChunkSlots]bool
}

func init() {
	// Байтовое представление валидно только при плотной укладке полей.
	// Проверяем при старте, а не предполагаем.
	var c Chunk
	switch {
	case unsafe.Sizeof(Tile{}) != tileBytes:
		panic("tiling: размер Tile не равен 4 байтам")
	case unsafe.Offsetof(c.Valid) != tilesBytes:
		panic("tiling: обнаружено выравнивание между Tiles и Valid")
	case unsafe.Sizeof(c) != ChunkBytes:
		panic("tiling: размер Chunk не совпадает с байтовым представлением")
	}
}

// Get возвращает копию тайла в слоте. Второе значение false, если слот пуст.
func (c *Chunk) Get(slot uint8) (Tile, bool) {
	if !c.Valid[slot] {
		return Tile{}, false
	}
	return c.Tiles[slot], true
}

// GetMut возвращает указатель на тайл в слоте или nil, если слот пуст.
// Запись через указатель не отслеживается трекером изменений.
func (c *Chunk) GetMut(slot uint8) *Tile {
	if !c.Valid[slot] {
		return nil
	}
	return &c.Tiles[slot]
}

// Set записывает тайл в слот. nil очищает слот, не трогая байты тайла.
// Возвращает копию прежнего тайла, если слот был занят, иначе nil.
func (c *Chunk) Set(slot uint8, t *Tile) *Tile {
	var prev *Tile
	if c.Valid[slot] {
		old := c.Tiles[slot]
		prev = &old
	}
	if t == nil {
		c.Valid[slot] = false
		return prev
	}
	c.Tiles[slot] = *t
	c.Valid[slot] = true
	return prev
}

// Count возвращает число занятых слотов.
func (c *Chunk) Count() int {
	n := 0
	for _, v := range c.Valid {
		if v {
			n++
		}
	}
	return n
}

// Bytes возвращает байтовое представление чанка без копирования.
// Срез остаётся валидным, пока жив сам чанк; записи в него видны чанку.
func (c *Chunk) Bytes() []byte {
	return unsafe.Slice((*byte)(unsafe.Pointer(c)), ChunkBytes)
}

// ChunkFromBytes восстанавливает чанк из байтового представления.
func ChunkFromBytes(b []byte) (*Chunk, error) {
	if len(b) != ChunkBytes {
		return nil, fmt.Errorf("неверная длина данных чанка: %d вместо %d", len(b), ChunkBytes)
	}
	c := &Chunk{}
	copy(c.Bytes()[:tilesBytes], b[:tilesBytes])
	for i := 0; i < ChunkSlots; i++ {
		c.Valid[i] = b[tilesBytes+i] != 0
	}
	return c, nil
}
