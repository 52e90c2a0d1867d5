package tests

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/annel0/tile-engine/internal/cache"
	"github.com/annel0/tile-engine/internal/engine"
	"github.com/annel0/tile-engine/internal/eventbus"
	"github.com/annel0/tile-engine/internal/storage"
	"github.com/annel0/tile-engine/internal/tiling"
	"github.com/annel0/tile-engine/internal/vec"
	"github.com/annel0/tile-engine/internal/worldgen"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestEngineStorageRoundTrip прогоняет полный круг: генерация мира, цикл
// движка, сохранение в BadgerDB, рестарт на пустом движке и восстановление.
func TestEngineStorageRoundTrip(t *testing.T) {
	ctx := context.Background()

	store, err := storage.NewChunkStore(t.TempDir())
	require.NoError(t, err)
	defer store.Close()

	// Первый запуск: генерация и сохранение
	eng := engine.New(engine.Options{})
	gen := worldgen.NewGenerator(1337)

	var positions int
	require.NoError(t, eng.Mutate(func(w *tiling.Writer) error {
		positions = gen.PopulateRegion(w, vec.Vec2{X: -1, Y: -1}, vec.Vec2{X: 1, Y: 1})
		return nil
	}))
	require.Equal(t, 9, positions)

	require.NoError(t, eng.Tick(ctx))

	// Позиция даёт чанк пола и иногда чанк растительности
	first := eng.Stats()
	require.GreaterOrEqual(t, first.Chunks, positions)
	assert.Equal(t, first.Chunks, first.Resources, "Каждый чанк получает ресурс презентации")
	assert.Equal(t, first.Chunks, first.Bindings)

	var saved int
	eng.View(func(r *tiling.Reader) {
		saved, err = store.SaveAll(r)
	})
	require.NoError(t, err)
	assert.Equal(t, first.Chunks, saved)

	// Второй запуск: чистый движок, восстановление из хранилища
	restarted := engine.New(engine.Options{})
	var loaded int
	require.NoError(t, restarted.Mutate(func(w *tiling.Writer) error {
		loaded, err = store.LoadAll(w)
		return err
	}))
	assert.Equal(t, saved, loaded)

	require.NoError(t, restarted.Tick(ctx))

	second := restarted.Stats()
	assert.Equal(t, first.Chunks, second.Chunks, "Число чанков должно совпасть после рестарта")
	assert.Equal(t, first.Resources, second.Resources, "Загруженные чанки собирают ресурсы на первом цикле")
	assert.Equal(t, first.Entities, second.Entities)

	// Выборочно сверяем содержимое тайлов
	eng.View(func(orig *tiling.Reader) {
		restarted.View(func(rest *tiling.Reader) {
			for _, world := range []vec.Vec2{{X: 0, Y: 0}, {X: -10, Y: 5}, {X: 20, Y: -20}} {
				coord := tiling.TileCoordAt(world, worldgen.LayerGround)
				want, wantOK := orig.GetTile(coord)
				got, gotOK := rest.GetTile(coord)
				assert.Equal(t, wantOK, gotOK, "Наличие тайла %v должно совпасть", world)
				assert.Equal(t, want, got, "Тайл %v должен пережить рестарт", world)
			}
		})
	})
}

// TestEngineDirtyEventsDriveSaves воспроизводит петлю сохранения сервера:
// событие tiles.chunk_dirty приводит к точечному сохранению чанка.
func TestEngineDirtyEventsDriveSaves(t *testing.T) {
	ctx := context.Background()

	store, err := storage.NewChunkStore(t.TempDir())
	require.NoError(t, err)
	defer store.Close()

	bus := eventbus.NewMemoryBus(64)
	defer bus.Close()

	eng := engine.New(engine.Options{Bus: bus})

	var mu sync.Mutex
	pending := make(map[vec.Vec3]struct{})

	sub, err := bus.Subscribe(ctx, eventbus.Filter{Types: []string{eventbus.EventChunkDirty}},
		func(_ context.Context, ev *eventbus.Envelope) {
			var p eventbus.ChunkDirtyPayload
			if ev.DecodePayload(&p) != nil {
				return
			}
			mu.Lock()
			for _, c := range p.Coords {
				pending[vec.Vec3{X: c[0], Y: c[1], Z: c[2]}] = struct{}{}
			}
			mu.Unlock()
		})
	require.NoError(t, err)
	defer sub.Unsubscribe()

	// Правка одного тайла помечает ровно один чанк
	target := tiling.TileCoordAt(vec.Vec2{X: 3, Y: 3}, 0)
	require.NoError(t, eng.Mutate(func(w *tiling.Writer) error {
		tile := tiling.Tile{Sheet: 1, Index: 5}
		w.SetTile(target, &tile)
		return nil
	}))
	require.NoError(t, eng.Tick(ctx))

	// Подождём доставку.
	time.Sleep(200 * time.Millisecond)

	mu.Lock()
	coords := make([]vec.Vec3, 0, len(pending))
	for coord := range pending {
		coords = append(coords, coord)
	}
	mu.Unlock()

	require.Len(t, coords, 1, "Одна правка помечает один чанк")
	assert.Equal(t, target.Chunk, coords[0])

	// Сохраняем по списку из события, как это делает сервер
	var savedCount int
	eng.View(func(r *tiling.Reader) {
		savedCount, err = store.SaveCoords(r, coords)
	})
	require.NoError(t, err)
	assert.Equal(t, 1, savedCount)

	chunk, err := store.LoadChunk(target.Chunk)
	require.NoError(t, err)
	require.NotNil(t, chunk, "Чанк из события должен попасть в хранилище")

	got, ok := chunk.Get(target.Slot)
	require.True(t, ok)
	assert.Equal(t, tiling.Tile{Sheet: 1, Index: 5}, got)
}

// TestRedisCacheOverChunkStore связывает горячий кеш с настоящим BadgerDB
// хранилищем: Read-Through поднимает чанк с диска и прогревает Redis.
func TestRedisCacheOverChunkStore(t *testing.T) {
	store, err := storage.NewChunkStore(t.TempDir())
	require.NoError(t, err)
	defer store.Close()

	coord := vec.Vec3{X: 5, Y: 6, Z: 0}
	chunk := testChunk(21)
	require.NoError(t, store.SaveChunk(coord, chunk))

	config := &cache.Config{
		RedisAddr:  "localhost:6379",
		DefaultTTL: 10 * time.Second,
	}

	hot, err := cache.NewRedisCache(config, store, nil)
	if err != nil {
		t.Skipf("Redis not available, skipping test: %v", err)
		return
	}
	defer hot.Close()

	ctx := context.Background()

	// Промах в Redis проваливается в BadgerDB
	got, err := hot.Get(ctx, coord)
	require.NoError(t, err)
	assert.Equal(t, *chunk, *got)

	// Прогрев асинхронный
	time.Sleep(100 * time.Millisecond)

	exists, err := hot.Exists(ctx, coord)
	require.NoError(t, err)
	assert.True(t, exists, "После Read-Through чанк лежит в Redis")

	// Координаты без чанка дают промах кеша
	_, err = hot.Get(ctx, vec.Vec3{X: -5, Y: -6, Z: 1})
	assert.True(t, cache.IsCacheMiss(err))
}
