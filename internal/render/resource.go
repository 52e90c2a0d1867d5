// Package render реализует презентационную сторону тайлового мира:
// ресурсы чанков, мир презентации и протокол синхронизации с кешем,
// переживающим пересборку мира между циклами.
package render

import (
	"github.com/annel0/tile-engine/internal/vec"
)

// ResourceState описывает стадию готовности ресурса презентации.
type ResourceState uint8

const (
	// StateUnloaded — местозаполнитель: данные чанка ещё не загружены.
	StateUnloaded ResourceState = iota
	// StateLoaded — байты чанка загружены в буфер передачи.
	StateLoaded
	// StateMeshed — по буферу построена геометрия, готовая к показу.
	StateMeshed
)

// String возвращает имя состояния для логов.
func (s ResourceState) String() string {
	switch s {
	case StateUnloaded:
		return "unloaded"
	case StateLoaded:
		return "loaded"
	case StateMeshed:
		return "meshed"
	default:
		return "unknown"
	}
}

// ChunkResource — непрозрачный артефакт презентации, порождённый из
// байтового представления чанка. Принадлежит слою синхронизации, а не
// симуляции: его можно в любой момент перегенерировать заново.
type ChunkResource struct {
	State ResourceState
	Data  []byte
}

// ResourceFactory создаёт ресурс презентации из байтов чанка. Реализация
// отвечает за фактическую загрузку (например, в видеопамять); протоколу
// синхронизации достаточно непрозрачного результата.
type ResourceFactory interface {
	CreateResource(coord vec.Vec3, data []byte) (*ChunkResource, error)
}

// BufferFactory — фабрика по умолчанию: копирует байты чанка в буфер в
// памяти. Пригодна для тестов, инструментов и безэкранных запусков.
type BufferFactory struct{}

// CreateResource копирует данные чанка в новый загруженный ресурс.
func (BufferFactory) CreateResource(_ vec.Vec3, data []byte) (*ChunkResource, error) {
	buf := make([]byte, len(data))
	copy(buf, data)
	return &ChunkResource{State: StateLoaded, Data: buf}, nil
}
