package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/annel0/tile-engine/internal/autotile"
	"github.com/annel0/tile-engine/internal/cache"
	"github.com/annel0/tile-engine/internal/config"
	"github.com/annel0/tile-engine/internal/engine"
	"github.com/annel0/tile-engine/internal/eventbus"
	"github.com/annel0/tile-engine/internal/logging"
	"github.com/annel0/tile-engine/internal/observability"
	"github.com/annel0/tile-engine/internal/render"
	"github.com/annel0/tile-engine/internal/storage"
	"github.com/annel0/tile-engine/internal/tiling"
	"github.com/annel0/tile-engine/internal/vec"
	"github.com/annel0/tile-engine/internal/worldgen"
)

func main() {
	configPath := flag.String("config", "", "путь к YAML конфигурации")
	flag.Parse()

	// Инициализируем систему логирования
	if err := logging.InitDefaultLogger("server"); err != nil {
		log.Fatalf("❌ Ошибка инициализации логирования: %v", err)
	}
	defer logging.CloseDefaultLogger()

	logging.Info("🎮 Запуск сервера тайлового движка...")

	// === КОНФИГУРАЦИЯ ===
	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("❌ Ошибка чтения конфигурации: %v", err)
	}
	if cfg == nil {
		cfg = &config.Config{}
		logging.Info("Конфигурация не задана, используются значения по умолчанию")
	}

	tps := cfg.Engine.GetTPS()
	logging.Info("📡 Конфигурация: TPS=%d, стратегия=%q, хранилище=%s",
		tps, cfg.Engine.GetStrategy(), cfg.Storage.GetPath())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// === ТЕЛЕМЕТРИЯ ===
	if cfg.Telemetry.Enabled {
		shutdownTelemetry, err := observability.InitTelemetry(ctx, cfg.Telemetry.GetService(), cfg.Telemetry.Endpoint)
		if err != nil {
			logging.Error("❌ Ошибка инициализации телеметрии: %v", err)
		} else {
			defer func() {
				if err := shutdownTelemetry(context.Background()); err != nil {
					logging.Error("Ошибка остановки телеметрии: %v", err)
				}
			}()
		}
	}

	// === ХРАНИЛИЩЕ ===
	logging.Debug("Открытие хранилища чанков...")
	store, err := storage.NewChunkStore(cfg.Storage.GetPath())
	if err != nil {
		log.Fatalf("❌ Ошибка открытия хранилища: %v", err)
	}
	defer store.Close()

	// === ШИНА СОБЫТИЙ ===
	var bus eventbus.EventBus
	if cfg.EventBus.URL != "" {
		jsBus, err := eventbus.NewJetStreamBus(cfg.EventBus.URL, cfg.EventBus.Stream,
			time.Duration(cfg.EventBus.Retention)*time.Hour)
		if err != nil {
			logging.Warn("JetStream недоступен (%v), события идут через память", err)
			bus = eventbus.NewMemoryBus(1024)
		} else {
			logging.Info("✅ Шина событий подключена к JetStream: %s", cfg.EventBus.URL)
			bus = jsBus
		}
	} else {
		bus = eventbus.NewMemoryBus(1024)
	}
	defer bus.Close()

	logSub, err := eventbus.StartLoggingListener(bus)
	if err != nil {
		logging.Warn("Слушатель событий не запустился: %v", err)
	} else {
		defer logSub.Unsubscribe()
	}

	// === ДВИЖОК ===
	strategy, err := render.StrategyByName(cfg.Engine.GetStrategy())
	if err != nil {
		log.Fatalf("❌ %v", err)
	}

	eng := engine.New(engine.Options{
		Strategy: strategy,
		TPS:      tps,
		Bus:      bus,
		Metrics:  engine.NewMetrics(),
	})

	if rules := cfg.Autotile.Rules; len(rules) > 0 {
		eng.AddSystem(autotile.New(rules...).System())
		logging.Info("Автотайлинг активен: правил=%d", len(rules))
	}

	// === ЗАГРУЗКА МИРА ===
	var loadedCount int
	err = eng.Mutate(func(w *tiling.Writer) error {
		loaded, err := store.LoadAll(w)
		loadedCount = loaded
		return err
	})
	if err != nil {
		log.Fatalf("❌ Ошибка загрузки мира: %v", err)
	}

	if loadedCount > 0 {
		logging.Info("📦 Загружено %d чанков из хранилища", loadedCount)
	} else {
		seed := cfg.Generator.GetSeed()
		radius := cfg.Generator.GetRadius()
		gen := worldgen.NewGenerator(seed)
		_ = eng.Mutate(func(w *tiling.Writer) error {
			n := gen.PopulateRegion(w,
				vec.Vec2{X: -radius, Y: -radius},
				vec.Vec2{X: radius, Y: radius})
			logging.Info("🌍 Сгенерирована стартовая область: %d чанков (сид %d)", n, seed)
			return nil
		})
	}

	// === ГОРЯЧИЙ КЕШ ===
	var hot cache.ChunkCache
	if cfg.Cache.Enabled {
		var invalidator cache.Invalidator
		if cfg.Cache.Invalidator.NATSURL != "" {
			inv, err := cache.NewNATSInvalidator(&cfg.Cache.Invalidator, cfg.Cache.NodeID)
			if err != nil {
				logging.Warn("NATS invalidator недоступен: %v", err)
			} else {
				invalidator = inv
				defer inv.Close()
			}
		}

		redisCache, err := cache.NewRedisCache(&cfg.Cache.Redis, store, invalidator)
		if err != nil {
			logging.Warn("Redis недоступен (%v), горячий кеш отключён", err)
		} else {
			hot = redisCache
			defer redisCache.Close()

			if invalidator != nil {
				err := invalidator.SubscribeInvalidations(ctx, func(coord vec.Vec3) error {
					delCtx, delCancel := context.WithTimeout(context.Background(), 2*time.Second)
					defer delCancel()
					return hot.Delete(delCtx, coord)
				})
				if err != nil {
					logging.Warn("Подписка на инвалидации не запустилась: %v", err)
				}
			}
			logging.Info("✅ Горячий кеш чанков активен: %s", cfg.Cache.Redis.RedisAddr)
		}
	}

	// === МЕТРИКИ ===
	exporter := eventbus.NewMetricsExporter(bus)
	exporter.StartHTTP(fmt.Sprintf(":%d", cfg.Metrics.GetPort()))
	defer exporter.Stop()

	// === ЦИКЛ СОХРАНЕНИЯ ===
	saveInterval := time.Duration(cfg.Storage.GetSaveInterval()) * time.Second
	stopSaver, err := startSaveLoop(ctx, bus, eng, store, hot, saveInterval)
	if err != nil {
		log.Fatalf("❌ Ошибка запуска цикла сохранения: %v", err)
	}

	// === ЗАПУСК ===
	engErr := make(chan error, 1)
	go func() {
		engErr <- eng.Run(ctx)
	}()

	go statusLoop(ctx, eng)

	logging.Info("✅ Все сервисы запущены")
	logging.Info("   🔄 Движок: %d циклов/с, стратегия %s", tps, strategy.Name())
	logging.Info("   📈 Prometheus: http://localhost:%d/metrics", cfg.Metrics.GetPort())
	logging.Info("   📦 Сохранение каждые %v", saveInterval)

	// Канал для получения сигналов ОС
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		logging.Info("📡 Получен сигнал %v, завершение работы...", sig)
		cancel()
		if err := <-engErr; err != nil {
			logging.Error("❌ Движок завершился ошибкой: %v", err)
		}
	case err := <-engErr:
		if err != nil {
			logging.Error("❌ Движок завершился ошибкой: %v", err)
		}
		cancel()
	}

	// === GRACEFUL SHUTDOWN ===
	stopSaver()

	// Финальный снимок мира целиком, независимо от пометок
	eng.View(func(r *tiling.Reader) {
		if n, err := store.SaveAll(r); err != nil {
			logging.Error("❌ Ошибка финального сохранения: %v", err)
		} else {
			logging.Info("💾 Финальное сохранение: %d чанков", n)
		}
	})

	logging.Info("👋 Сервер успешно остановлен")
}

// startSaveLoop подписывается на события о грязных чанках и периодически
// сбрасывает накопленные координаты в хранилище. Возвращает функцию
// остановки, выполняющую финальный сброс.
func startSaveLoop(ctx context.Context, bus eventbus.EventBus, eng *engine.Engine,
	store *storage.ChunkStore, hot cache.ChunkCache, interval time.Duration) (func(), error) {

	var mu sync.Mutex
	pending := make(map[vec.Vec3]struct{})

	sub, err := bus.Subscribe(ctx, eventbus.Filter{Types: []string{eventbus.EventChunkDirty}},
		func(_ context.Context, ev *eventbus.Envelope) {
			var payload eventbus.ChunkDirtyPayload
			if err := ev.DecodePayload(&payload); err != nil {
				logging.Warn("Повреждённое событие %s: %v", ev.EventType, err)
				return
			}
			mu.Lock()
			for _, c := range payload.Coords {
				pending[vec.Vec3{X: c[0], Y: c[1], Z: c[2]}] = struct{}{}
			}
			mu.Unlock()
		})
	if err != nil {
		return nil, err
	}

	flush := func() {
		mu.Lock()
		if len(pending) == 0 {
			mu.Unlock()
			return
		}
		coords := make([]vec.Vec3, 0, len(pending))
		for c := range pending {
			coords = append(coords, c)
		}
		clear(pending)
		mu.Unlock()

		start := time.Now()
		var saved int
		var saveErr error
		snapshots := make(map[vec.Vec3]*tiling.Chunk)

		eng.View(func(r *tiling.Reader) {
			saved, saveErr = store.SaveCoords(r, coords)
			if hot == nil {
				return
			}
			for _, coord := range coords {
				if chunk := r.GetChunk(coord); chunk != nil {
					cp := *chunk
					snapshots[coord] = &cp
				}
			}
		})
		if saveErr != nil {
			logging.Error("❌ Ошибка сохранения чанков: %v", saveErr)
			return
		}

		if hot != nil {
			cacheCtx, cacheCancel := context.WithTimeout(context.Background(), 5*time.Second)
			if err := hot.SetMany(cacheCtx, snapshots, 0); err != nil {
				logging.Warn("Обновление горячего кеша не удалось: %v", err)
			}
			for _, coord := range coords {
				if _, alive := snapshots[coord]; !alive {
					if err := hot.Invalidate(cacheCtx, coord); err != nil {
						logging.Warn("Инвалидация чанка %v не удалась: %v", coord, err)
					}
				}
			}
			cacheCancel()
		}

		ev, err := eventbus.NewEnvelope("storage", eventbus.EventSnapshotSaved, 5,
			eventbus.SnapshotSavedPayload{Chunks: saved, DurationMs: time.Since(start).Milliseconds()})
		if err == nil {
			pubCtx, pubCancel := context.WithTimeout(context.Background(), 2*time.Second)
			if err := bus.Publish(pubCtx, ev); err != nil {
				logging.Warn("Событие о сохранении не опубликовано: %v", err)
			}
			pubCancel()
		}

		logging.Info("📦 Сохранено %d чанков за %v", saved, time.Since(start))
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				flush()
			}
		}
	}()

	stop := func() {
		sub.Unsubscribe()
		<-done
		flush()
	}
	return stop, nil
}

// statusLoop раз в полминуты пишет строку состояния процесса и движка.
func statusLoop(ctx context.Context, eng *engine.Engine) {
	stats := observability.NewSysStats()
	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			snap := eng.Stats()
			cpu, err := stats.CPUPercent()
			if err != nil {
				cpu = 0
			}
			logging.Info("📈 Цикл %d | чанков %d | ресурсов %d | сущностей %d | CPU %.1f%% | память %.1f MB | горутин %d | аптайм %s",
				snap.Cycle, snap.Chunks, snap.Resources, snap.Entities,
				cpu, stats.MemoryMB(), stats.Goroutines(), stats.Uptime())
		}
	}
}
