package render

import (
	"github.com/annel0/tile-engine/internal/tiling"
	"github.com/annel0/tile-engine/internal/vec"
)

// CacheEntry — снимок одного ресурса презентации между циклами.
type CacheEntry struct {
	Handle   tiling.Handle
	Resource *ChunkResource
	Coord    vec.Vec3
}

// SyncCache переживает пересборку мира презентации на границе цикла.
// Благодаря кешу правило "перегенерировать только изменившееся" уживается
// с картиной "мир презентации каждый цикл строится заново": живые ресурсы
// снимаются в кеш до пересборки и восстанавливаются из него после.
type SyncCache struct {
	entries []CacheEntry
}

// NewSyncCache создаёт пустой кеш синхронизации.
func NewSyncCache() *SyncCache {
	return &SyncCache{}
}

// Snapshot снимает все живые записи мира презентации в кеш и опустошает
// мир. Прежнее содержимое кеша замещается: фаза кеширования выполняется
// один раз за цикл.
func (c *SyncCache) Snapshot(world *RenderWorld) {
	c.entries = c.entries[:0]
	for h, e := range world.Entries() {
		c.entries = append(c.entries, CacheEntry{
			Handle:   h,
			Resource: e.Resource,
			Coord:    e.Coord,
		})
	}
	world.Clear()
}

// Entries возвращает снятые записи. Срез принадлежит кешу и валиден до
// следующего Snapshot.
func (c *SyncCache) Entries() []CacheEntry {
	return c.entries
}

// Len возвращает число записей в кеше.
func (c *SyncCache) Len() int {
	return len(c.entries)
}

// Clear опустошает кеш.
func (c *SyncCache) Clear() {
	c.entries = c.entries[:0]
}
