// Package scene реализует минимальный мир сущностей: непрозрачные
// идентификаторы с произвольными компонентами ключ-значение. Движку от
// мира симуляции нужно ровно столько, чтобы привязывать чанки к сущностям.
package scene

import (
	"iter"
)

// EntityID — уникальный идентификатор сущности в пределах сцены.
// Идентификаторы монотонны и не переиспользуются за время работы.
type EntityID uint64

// Entity представляет сущность сцены с произвольными компонентами.
type Entity struct {
	ID         EntityID
	Components map[string]interface{}
}

// Scene хранит сущности мира симуляции.
type Scene struct {
	entities map[EntityID]*Entity
	nextID   uint64
}

// NewScene создаёт пустую сцену.
func NewScene() *Scene {
	return &Scene{
		entities: make(map[EntityID]*Entity),
	}
}

// Spawn создаёт сущность с начальными компонентами (может быть nil) и
// возвращает её идентификатор.
func (s *Scene) Spawn(components map[string]interface{}) EntityID {
	s.nextID++
	id := EntityID(s.nextID)
	e := &Entity{
		ID:         id,
		Components: make(map[string]interface{}),
	}
	for k, v := range components {
		e.Components[k] = v
	}
	s.entities[id] = e
	return id
}

// Despawn удаляет сущность. Возвращает false, если её не было.
func (s *Scene) Despawn(id EntityID) bool {
	if _, ok := s.entities[id]; !ok {
		return false
	}
	delete(s.entities, id)
	return true
}

// Get возвращает сущность по идентификатору.
func (s *Scene) Get(id EntityID) (*Entity, bool) {
	e, ok := s.entities[id]
	return e, ok
}

// SetComponent записывает компонент сущности. Возвращает false, если
// сущности нет.
func (s *Scene) SetComponent(id EntityID, key string, value interface{}) bool {
	e, ok := s.entities[id]
	if !ok {
		return false
	}
	e.Components[key] = value
	return true
}

// Component возвращает компонент сущности по ключу.
func (s *Scene) Component(id EntityID, key string) (interface{}, bool) {
	e, ok := s.entities[id]
	if !ok {
		return nil, false
	}
	v, ok := e.Components[key]
	return v, ok
}

// Len возвращает число сущностей в сцене.
func (s *Scene) Len() int {
	return len(s.entities)
}

// Entities перечисляет сущности сцены в произвольном порядке.
func (s *Scene) Entities() iter.Seq2[EntityID, *Entity] {
	return func(yield func(EntityID, *Entity) bool) {
		for id, e := range s.entities {
			if !yield(id, e) {
				return
			}
		}
	}
}
