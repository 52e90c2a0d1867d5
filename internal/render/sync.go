package render

import (
	"fmt"

	"github.com/annel0/tile-engine/internal/logging"
	"github.com/annel0/tile-engine/internal/tiling"
)

// SyncStats — итог фазы сверки за один цикл.
type SyncStats struct {
	Replayed      int // записей восстановлено из кеша
	Dropped       int // записей отброшено: чанк исчез из карты
	ForcedDirty   int // незагруженных ресурсов принудительно помечено грязными
	Regenerated   int // ресурсов перегенерировано из байтов чанков
	MissingHandle int // грязных чанков без хэндла (логическая ошибка вызывающего)
}

// SyncStrategy определяет, как мир презентации переживает границу цикла.
// Всё состояние передаётся явно: стратегия не держит скрытых глобалов.
type SyncStrategy interface {
	// Name возвращает имя стратегии для конфигурации и логов.
	Name() string

	// Rebuild выполняется на границе цикла и моделирует пересборку мира
	// презентации хостом.
	Rebuild(world *RenderWorld, cache *SyncCache)

	// Reconcile приводит мир презентации в соответствие симуляции:
	// восстанавливает выжившие записи, принудительно помечает
	// незагруженные, перегенерирует ресурсы всех грязных чанков.
	// Выполняется строго после всех писателей цикла и после Rebuild.
	Reconcile(w *tiling.Writer, handles *tiling.ChunkHandleMap, world *RenderWorld,
		cache *SyncCache, factory ResourceFactory) (SyncStats, error)
}

// ImmediateSync — немедленный режим: мир презентации пересобирается с нуля
// каждый цикл, живые ресурсы переживают пересборку через кеш.
type ImmediateSync struct{}

// Name возвращает имя стратегии.
func (ImmediateSync) Name() string { return "immediate" }

// Rebuild снимает живые ресурсы в кеш и опустошает мир презентации.
func (ImmediateSync) Rebuild(world *RenderWorld, cache *SyncCache) {
	cache.Snapshot(world)
}

// Reconcile проигрывает кеш обратно в мир и перегенерирует грязные чанки.
func (ImmediateSync) Reconcile(w *tiling.Writer, handles *tiling.ChunkHandleMap,
	world *RenderWorld, cache *SyncCache, factory ResourceFactory) (SyncStats, error) {

	var stats SyncStats

	// Проигрывание кеша: исчезнувшие чанки отбрасываются по факту
	// отсутствия, остальные записи возвращаются в мир как есть.
	for _, e := range cache.Entries() {
		if w.GetChunk(e.Coord) == nil {
			stats.Dropped++
			continue
		}
		if !w.IsChunkDirty(e.Coord) && e.Resource.State == StateUnloaded {
			// Местозаполнитель надо разрешить при первой возможности,
			// даже если ни один тайл чанка не менялся.
			w.MarkChunkDirty(e.Coord)
			stats.ForcedDirty++
		}
		world.Insert(e.Handle, e.Resource, e.Coord)
		stats.Replayed++
	}

	if err := regenerateDirty(w, handles, world, factory, &stats); err != nil {
		return stats, err
	}
	return stats, nil
}

// RetainedSync — удерживающий режим: мир презентации живёт между циклами,
// сверка чистит устаревшие записи на месте, кеш не используется.
type RetainedSync struct{}

// Name возвращает имя стратегии.
func (RetainedSync) Name() string { return "retained" }

// Rebuild в удерживающем режиме ничего не делает: мир не пересобирается.
func (RetainedSync) Rebuild(world *RenderWorld, cache *SyncCache) {}

// Reconcile удаляет записи исчезнувших чанков и перегенерирует грязные.
func (RetainedSync) Reconcile(w *tiling.Writer, handles *tiling.ChunkHandleMap,
	world *RenderWorld, cache *SyncCache, factory ResourceFactory) (SyncStats, error) {

	var stats SyncStats

	var stale []tiling.Handle
	for h, e := range world.Entries() {
		if w.GetChunk(e.Coord) == nil {
			stale = append(stale, h)
			continue
		}
		if !w.IsChunkDirty(e.Coord) && e.Resource.State == StateUnloaded {
			w.MarkChunkDirty(e.Coord)
			stats.ForcedDirty++
		}
	}
	for _, h := range stale {
		world.Remove(h)
		stats.Dropped++
	}

	if err := regenerateDirty(w, handles, world, factory, &stats); err != nil {
		return stats, err
	}
	return stats, nil
}

// regenerateDirty перегенерирует ресурсы всех грязных чанков из их текущих
// байтовых представлений и кладёт их в мир, замещая проигранные записи.
func regenerateDirty(w *tiling.Writer, handles *tiling.ChunkHandleMap,
	world *RenderWorld, factory ResourceFactory, stats *SyncStats) error {

	for coord := range w.DirtyCoords() {
		chunk := w.GetChunk(coord)
		if chunk == nil {
			// Чанк помечен и тут же выгружен в одном цикле: ресурса нет
			// и создавать нечего.
			continue
		}
		h, ok := handles.HandleFor(coord)
		if !ok {
			// Логическая ошибка вызывающего: грязный чанк обязан иметь
			// хэндл к моменту сверки. Не валимся и ничего не портим.
			logging.Error("Сверка: грязный чанк (%d,%d,%d) без хэндла, пропущен",
				coord.X, coord.Y, coord.Z)
			stats.MissingHandle++
			continue
		}
		res, err := factory.CreateResource(coord, chunk.Bytes())
		if err != nil {
			return fmt.Errorf("не удалось создать ресурс чанка (%d,%d,%d): %w",
				coord.X, coord.Y, coord.Z, err)
		}
		world.Insert(h, res, coord)
		stats.Regenerated++
	}
	return nil
}

// StrategyByName возвращает стратегию по имени из конфигурации.
func StrategyByName(name string) (SyncStrategy, error) {
	switch name {
	case "", "immediate":
		return ImmediateSync{}, nil
	case "retained":
		return RetainedSync{}, nil
	default:
		return nil, fmt.Errorf("неизвестная стратегия синхронизации: %q", name)
	}
}
