// Package engine связывает карту тайлов, трекер обновлений, сцену и мир
// презентации в единый цикл симуляции с фиксированным порядком фаз.
package engine

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/annel0/tile-engine/internal/eventbus"
	"github.com/annel0/tile-engine/internal/logging"
	"github.com/annel0/tile-engine/internal/render"
	"github.com/annel0/tile-engine/internal/scene"
	"github.com/annel0/tile-engine/internal/tiling"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
)

// ComponentChunk — ключ компонента сущности сцены с координатой её чанка.
const ComponentChunk = "chunk"

// System — функция симуляции. Выполняется каждый цикл с монопольным
// доступом на запись; ошибка прерывает цикл.
type System func(w *tiling.Writer) error

// Options настраивают движок. Нулевые поля получают значения по умолчанию:
// стратегия immediate, фабрика BufferFactory, 60 циклов в секунду.
type Options struct {
	Strategy render.SyncStrategy
	Factory  render.ResourceFactory
	TPS      int
	Bus      eventbus.EventBus // шина событий цикла, опционально
	Metrics  *Metrics          // метрики Prometheus, опционально
}

// Engine ведёт полный цикл симуляции: системы, привязка хэндлов,
// пересборка мира презентации, сверка. Mutate и View можно вызывать из
// любых горутин; внутри цикла доступ монопольный.
type Engine struct {
	mu sync.RWMutex

	tiles   *tiling.TileMap
	updates *tiling.UpdateTracker
	reader  *tiling.Reader
	writer  *tiling.Writer
	handles *tiling.ChunkHandleMap

	sim   *scene.Scene
	world *render.RenderWorld
	cache *render.SyncCache

	strategy render.SyncStrategy
	factory  render.ResourceFactory
	systems  []System

	bus     eventbus.EventBus
	metrics *Metrics
	tracer  trace.Tracer

	tps   int
	cycle uint64
}

// New создаёт движок с пустой картой и миром презентации.
func New(opts Options) *Engine {
	if opts.Strategy == nil {
		opts.Strategy = render.ImmediateSync{}
	}
	if opts.Factory == nil {
		opts.Factory = render.BufferFactory{}
	}
	if opts.TPS <= 0 {
		opts.TPS = 60
	}

	tiles := tiling.NewTileMap()
	updates := tiling.NewUpdateTracker()

	return &Engine{
		tiles:    tiles,
		updates:  updates,
		reader:   tiling.NewReader(tiles, updates),
		writer:   tiling.NewWriter(tiles, updates),
		handles:  tiling.NewChunkHandleMap(),
		sim:      scene.NewScene(),
		world:    render.NewRenderWorld(),
		cache:    render.NewSyncCache(),
		strategy: opts.Strategy,
		factory:  opts.Factory,
		bus:      opts.Bus,
		metrics:  opts.Metrics,
		tracer:   otel.Tracer("tile-engine"),
		tps:      opts.TPS,
	}
}

// AddSystem регистрирует систему. Системы выполняются в порядке регистрации.
func (e *Engine) AddSystem(s System) {
	e.mu.Lock()
	e.systems = append(e.systems, s)
	e.mu.Unlock()
}

// Mutate даёт монопольный доступ на запись между циклами. Пометки,
// сделанные через Mutate, попадают в следующий цикл.
func (e *Engine) Mutate(fn func(w *tiling.Writer) error) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return fn(e.writer)
}

// View даёт разделяемый доступ на чтение карты и трекера.
func (e *Engine) View(fn func(r *tiling.Reader)) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	fn(e.reader)
}

// ViewWorld даёт разделяемый доступ к миру презентации и карте хэндлов.
func (e *Engine) ViewWorld(fn func(world *render.RenderWorld, handles *tiling.ChunkHandleMap)) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	fn(e.world, e.handles)
}

// Cycle возвращает номер последнего завершённого цикла.
func (e *Engine) Cycle() uint64 {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.cycle
}

// Tick выполняет один цикл. Порядок фаз фиксирован: системы, привязка
// хэндлов и чистка устаревших, пересборка мира презентации, сверка,
// публикация итогов. Трекер очищается в самом конце: это граница цикла,
// предшествующая всем записям следующего.
func (e *Engine) Tick(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	started := time.Now()
	e.cycle++
	ctx, span := e.tracer.Start(ctx, "engine.cycle")
	defer span.End()

	for _, sys := range e.systems {
		if err := sys(e.writer); err != nil {
			return fmt.Errorf("система симуляции на цикле %d: %w", e.cycle, err)
		}
	}

	e.bindDirtyChunks()
	e.sweepStaleBindings()

	e.strategy.Rebuild(e.world, e.cache)
	stats, err := e.strategy.Reconcile(e.writer, e.handles, e.world, e.cache, e.factory)
	if err != nil {
		return fmt.Errorf("сверка на цикле %d: %w", e.cycle, err)
	}

	dirty := e.collectDirty()
	elapsed := time.Since(started)

	if e.metrics != nil {
		e.metrics.ObserveCycle(elapsed, len(dirty), e.tiles.ChunkCount(), stats)
	}
	e.publishCycleEvents(ctx, dirty, stats, elapsed)

	e.updates.Clear()
	return nil
}

// Run крутит цикл с заданной частотой до отмены контекста.
func (e *Engine) Run(ctx context.Context) error {
	ticker := time.NewTicker(time.Second / time.Duration(e.tps))
	defer ticker.Stop()

	logging.Info("🔄 Движок запущен: %d циклов/с, стратегия %s", e.tps, e.strategy.Name())
	for {
		select {
		case <-ctx.Done():
			logging.Info("👋 Движок остановлен на цикле %d", e.Cycle())
			return nil
		case <-ticker.C:
			if err := e.Tick(ctx); err != nil {
				logging.Error("❌ Цикл завершился ошибкой: %v", err)
				return err
			}
		}
	}
}

// bindDirtyChunks заводит сущность сцены для каждого грязного чанка без
// хэндла. Хэндлом служит идентификатор сущности; вытеснений при этом не
// бывает, идентификаторы монотонны и не переиспользуются.
func (e *Engine) bindDirtyChunks() {
	for coord := range e.updates.DirtyCoords() {
		if _, ok := e.handles.HandleFor(coord); ok {
			continue
		}
		if e.tiles.GetChunk(coord) == nil {
			// Чанк пометили и удалили в одном цикле: привязывать нечего.
			continue
		}
		id := e.sim.Spawn(map[string]interface{}{ComponentChunk: coord})
		e.handles.Bind(coord, tiling.Handle(id))
	}
}

// sweepStaleBindings снимает привязки чанков, исчезнувших из карты, и
// гасит их сущности сцены.
func (e *Engine) sweepStaleBindings() {
	var stale []tiling.Pairing
	for p := range e.handles.Pairings() {
		if e.tiles.GetChunk(p.Coord) == nil {
			stale = append(stale, p)
		}
	}
	for _, p := range stale {
		e.handles.UnbindCoord(p.Coord)
		e.sim.Despawn(scene.EntityID(p.Handle))
	}
}

func (e *Engine) collectDirty() [][3]int {
	var coords [][3]int
	for coord := range e.updates.DirtyCoords() {
		coords = append(coords, [3]int{coord.X, coord.Y, coord.Z})
	}
	return coords
}

func (e *Engine) publishCycleEvents(ctx context.Context, dirty [][3]int, stats render.SyncStats, elapsed time.Duration) {
	if e.bus == nil {
		return
	}

	if len(dirty) > 0 {
		ev, err := eventbus.NewEnvelope("engine", eventbus.EventChunkDirty, 3, eventbus.ChunkDirtyPayload{
			Cycle:  e.cycle,
			Coords: dirty,
		})
		if err != nil {
			logging.Error("Событие tiles.chunk_dirty не собрано: %v", err)
		} else if err := e.bus.Publish(ctx, ev); err != nil {
			logging.Warn("Событие tiles.chunk_dirty не опубликовано: %v", err)
		}
	}

	ev, err := eventbus.NewEnvelope("engine", eventbus.EventCycle, 5, eventbus.CyclePayload{
		Cycle:         e.cycle,
		DirtyChunks:   len(dirty),
		Replayed:      stats.Replayed,
		Regenerated:   stats.Regenerated,
		Dropped:       stats.Dropped,
		ForcedDirty:   stats.ForcedDirty,
		MissingHandle: stats.MissingHandle,
		DurationMs:    elapsed.Milliseconds(),
	})
	if err != nil {
		logging.Error("Событие tiles.cycle не собрано: %v", err)
		return
	}
	if err := e.bus.Publish(ctx, ev); err != nil {
		logging.Warn("Событие tiles.cycle не опубликовано: %v", err)
	}
}

// Snapshot — сводка состояния движка для статусных логов.
type Snapshot struct {
	Cycle       uint64
	Chunks      int
	DirtyChunks int
	Bindings    int
	Resources   int
	Entities    int
}

// Stats возвращает сводку текущего состояния движка.
func (e *Engine) Stats() Snapshot {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return Snapshot{
		Cycle:       e.cycle,
		Chunks:      e.tiles.ChunkCount(),
		DirtyChunks: e.updates.Len(),
		Bindings:    e.handles.Len(),
		Resources:   e.world.Len(),
		Entities:    e.sim.Len(),
	}
}
