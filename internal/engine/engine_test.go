package engine

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/annel0/tile-engine/internal/eventbus"
	"github.com/annel0/tile-engine/internal/render"
	"github.com/annel0/tile-engine/internal/scene"
	"github.com/annel0/tile-engine/internal/tiling"
	"github.com/annel0/tile-engine/internal/vec"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEngineLifecycle(t *testing.T) {
	e := New(Options{})
	ctx := context.Background()

	// Цикл 1: по одному тайлу в четырёх чанках.
	err := e.Mutate(func(w *tiling.Writer) error {
		for i := 0; i < 4; i++ {
			coord := tiling.TileCoord{Chunk: vec.Vec3{X: i}, Slot: 0}
			w.SetTile(coord, &tiling.Tile{Sheet: 1, Index: uint16(i)})
		}
		return nil
	})
	require.NoError(t, err)
	require.NoError(t, e.Tick(ctx))

	resources := make(map[vec.Vec3]*render.ChunkResource)
	e.ViewWorld(func(world *render.RenderWorld, handles *tiling.ChunkHandleMap) {
		require.Equal(t, 4, world.Len(), "После первого цикла должно быть четыре ресурса")
		require.Equal(t, 4, handles.Len())
		for i := 0; i < 4; i++ {
			coord := vec.Vec3{X: i}
			h, ok := handles.HandleFor(coord)
			require.True(t, ok, "Чанк (%d,0,0) должен получить хэндл", i)
			entry, ok := world.Get(h)
			require.True(t, ok)
			assert.Equal(t, coord, entry.Coord)
			assert.Equal(t, render.StateLoaded, entry.Resource.State)
			resources[coord] = entry.Resource
		}
	})

	st := e.Stats()
	assert.Equal(t, uint64(1), st.Cycle)
	assert.Equal(t, 4, st.Chunks)
	assert.Equal(t, 4, st.Entities)

	// Цикл 2: без записей ресурсы переживают пересборку через кеш.
	require.NoError(t, e.Tick(ctx))
	e.ViewWorld(func(world *render.RenderWorld, handles *tiling.ChunkHandleMap) {
		require.Equal(t, 4, world.Len())
		for coord, res := range resources {
			h, ok := handles.HandleFor(coord)
			require.True(t, ok)
			entry, ok := world.Get(h)
			require.True(t, ok)
			assert.Same(t, res, entry.Resource,
				"Ресурс (%d,0,0) должен быть проигран из кеша, а не перегенерирован", coord.X)
		}
	})

	// Цикл 3: удалённый чанк теряет ресурс, хэндл и сущность.
	require.NoError(t, e.Mutate(func(w *tiling.Writer) error {
		w.RemoveChunk(vec.Vec3{X: 1})
		return nil
	}))
	require.NoError(t, e.Tick(ctx))
	e.ViewWorld(func(world *render.RenderWorld, handles *tiling.ChunkHandleMap) {
		assert.Equal(t, 3, world.Len(), "Ресурс удалённого чанка должен быть отброшен")
		_, ok := handles.HandleFor(vec.Vec3{X: 1})
		assert.False(t, ok, "Привязка удалённого чанка должна быть снята")
	})
	assert.Equal(t, 3, e.Stats().Entities, "Сущность удалённого чанка должна быть погашена")
}

func TestEngineBindsSceneEntities(t *testing.T) {
	e := New(Options{})
	coord := vec.Vec3{X: 2, Y: 3}

	require.NoError(t, e.Mutate(func(w *tiling.Writer) error {
		w.SetTile(tiling.TileCoord{Chunk: coord, Slot: 9}, &tiling.Tile{Sheet: 1, Index: 1})
		return nil
	}))
	require.NoError(t, e.Tick(context.Background()))

	h, ok := e.handles.HandleFor(coord)
	require.True(t, ok)
	got, ok := e.sim.Component(scene.EntityID(h), ComponentChunk)
	require.True(t, ok, "Сущность чанка должна нести компонент с координатой")
	assert.Equal(t, coord, got)
}

func TestEngineSystemsRunInOrder(t *testing.T) {
	e := New(Options{})
	var order []int
	e.AddSystem(func(w *tiling.Writer) error {
		order = append(order, 1)
		w.SetTile(tiling.TileCoord{Chunk: vec.Vec3{}, Slot: 0}, &tiling.Tile{Sheet: 1, Index: 1})
		return nil
	})
	e.AddSystem(func(w *tiling.Writer) error {
		order = append(order, 2)
		return nil
	})

	require.NoError(t, e.Tick(context.Background()))
	assert.Equal(t, []int{1, 2}, order)
	assert.Equal(t, 1, e.world.Len())
}

func TestEngineSystemError(t *testing.T) {
	e := New(Options{})
	boom := errors.New("ошибка системы")
	e.AddSystem(func(w *tiling.Writer) error { return boom })

	require.ErrorIs(t, e.Tick(context.Background()), boom)
}

func TestEngineTrackerClearedAtCycleEnd(t *testing.T) {
	e := New(Options{})
	require.NoError(t, e.Mutate(func(w *tiling.Writer) error {
		w.SetTile(tiling.TileCoord{Chunk: vec.Vec3{}, Slot: 0}, &tiling.Tile{Sheet: 1, Index: 1})
		return nil
	}))
	require.Equal(t, 1, e.updates.Len())

	require.NoError(t, e.Tick(context.Background()))
	assert.Equal(t, 0, e.updates.Len(), "Трекер должен быть пуст после завершения цикла")
	assert.Equal(t, 1, e.world.Len(), "Пометка, сделанная до цикла, обслуживается этим циклом")
}

func TestEngineCycleEvents(t *testing.T) {
	bus := eventbus.NewMemoryBus(16)
	defer bus.Close()

	cycleCh := make(chan *eventbus.Envelope, 1)
	dirtyCh := make(chan *eventbus.Envelope, 1)
	_, err := bus.Subscribe(context.Background(), eventbus.Filter{Types: []string{eventbus.EventCycle}},
		func(ctx context.Context, ev *eventbus.Envelope) { cycleCh <- ev })
	require.NoError(t, err)
	_, err = bus.Subscribe(context.Background(), eventbus.Filter{Types: []string{eventbus.EventChunkDirty}},
		func(ctx context.Context, ev *eventbus.Envelope) { dirtyCh <- ev })
	require.NoError(t, err)

	e := New(Options{Bus: bus})
	require.NoError(t, e.Mutate(func(w *tiling.Writer) error {
		w.SetTile(tiling.TileCoord{Chunk: vec.Vec3{X: 5}, Slot: 0}, &tiling.Tile{Sheet: 1, Index: 1})
		return nil
	}))
	require.NoError(t, e.Tick(context.Background()))

	select {
	case ev := <-cycleCh:
		var payload eventbus.CyclePayload
		require.NoError(t, ev.DecodePayload(&payload))
		assert.Equal(t, uint64(1), payload.Cycle)
		assert.Equal(t, 1, payload.DirtyChunks)
		assert.Equal(t, 1, payload.Regenerated)
	case <-time.After(2 * time.Second):
		t.Fatal("Событие tiles.cycle не получено")
	}

	select {
	case ev := <-dirtyCh:
		var payload eventbus.ChunkDirtyPayload
		require.NoError(t, ev.DecodePayload(&payload))
		assert.Equal(t, [][3]int{{5, 0, 0}}, payload.Coords)
	case <-time.After(2 * time.Second):
		t.Fatal("Событие tiles.chunk_dirty не получено")
	}
}

func TestEngineRetainedStrategy(t *testing.T) {
	e := New(Options{Strategy: render.RetainedSync{}})
	ctx := context.Background()

	require.NoError(t, e.Mutate(func(w *tiling.Writer) error {
		w.SetTile(tiling.TileCoord{Chunk: vec.Vec3{}, Slot: 0}, &tiling.Tile{Sheet: 2, Index: 7})
		return nil
	}))
	require.NoError(t, e.Tick(ctx))

	var res *render.ChunkResource
	e.ViewWorld(func(world *render.RenderWorld, handles *tiling.ChunkHandleMap) {
		require.Equal(t, 1, world.Len())
		h, _ := handles.HandleFor(vec.Vec3{})
		entry, _ := world.Get(h)
		res = entry.Resource
	})

	// Без записей мир не трогается вовсе.
	require.NoError(t, e.Tick(ctx))
	e.ViewWorld(func(world *render.RenderWorld, handles *tiling.ChunkHandleMap) {
		require.Equal(t, 1, world.Len())
		h, _ := handles.HandleFor(vec.Vec3{})
		entry, _ := world.Get(h)
		assert.Same(t, res, entry.Resource)
	})

	require.NoError(t, e.Mutate(func(w *tiling.Writer) error {
		w.RemoveChunk(vec.Vec3{})
		return nil
	}))
	require.NoError(t, e.Tick(ctx))
	e.ViewWorld(func(world *render.RenderWorld, handles *tiling.ChunkHandleMap) {
		assert.Equal(t, 0, world.Len())
	})
}

func TestEngineRun(t *testing.T) {
	e := New(Options{TPS: 200})
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan error, 1)
	go func() { done <- e.Run(ctx) }()

	require.NoError(t, e.Mutate(func(w *tiling.Writer) error {
		w.SetTile(tiling.TileCoord{Chunk: vec.Vec3{}, Slot: 3}, &tiling.Tile{Sheet: 1, Index: 1})
		return nil
	}))

	time.Sleep(100 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("Run не завершился после отмены контекста")
	}

	assert.Greater(t, e.Cycle(), uint64(0), "Движок должен выполнить хотя бы один цикл")
	assert.Equal(t, 1, e.Stats().Resources)
}

func BenchmarkEngineTickSteadyState(b *testing.B) {
	e := New(Options{})
	ctx := context.Background()
	_ = e.Mutate(func(w *tiling.Writer) error {
		for i := 0; i < 64; i++ {
			coord := tiling.TileCoord{Chunk: vec.Vec3{X: i % 8, Y: i / 8}, Slot: 0}
			w.SetTile(coord, &tiling.Tile{Sheet: 1, Index: uint16(i)})
		}
		return nil
	})
	_ = e.Tick(ctx)

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_ = e.Tick(ctx)
	}
}
