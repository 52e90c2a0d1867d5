package cache

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/go-redis/redis/v8"

	"github.com/annel0/tile-engine/internal/logging"
	"github.com/annel0/tile-engine/internal/tiling"
	"github.com/annel0/tile-engine/internal/vec"
)

// RedisCache реализует ChunkCache используя Redis как Hot Cache.
// Поддерживает Write-Behind паттерн для асинхронной записи в Cold Storage.
//
// Особенности:
// - Автоматические метрики (hit ratio, latency)
// - Write-Behind с настраиваемым интервалом
// - Batch операции для производительности
// - Graceful shutdown
type RedisCache struct {
	client      *redis.Client
	config      *Config
	coldStorage ColdStorage
	invalidator Invalidator

	// Write-Behind
	writeBehindQueue chan *writeItem
	writeBehindStop  chan struct{}
	writeBehindWg    sync.WaitGroup

	// Метрики
	metrics      *Metrics
	metricsMutex sync.RWMutex

	// Статистика latency
	latencySum   int64 // в наносекундах
	latencyCount int64
	maxLatency   int64
}

// writeItem представляет элемент в очереди Write-Behind.
// Чанк хранится копией: источник может мутировать после Set.
type writeItem struct {
	Coord vec.Vec3
	Chunk *tiling.Chunk
}

// NewRedisCache создаёт новый Redis кеш чанков с опциональным Cold Storage.
//
// Параметры:
//
//	config - конфигурация Redis и Write-Behind
//	coldStorage - опциональное постоянное хранилище (может быть nil)
//	invalidator - опциональный invalidator для Pub/Sub (может быть nil)
//
// Возвращает:
//
//	*RedisCache - готовый к использованию кеш
//	error - ошибка подключения или конфигурации
func NewRedisCache(config *Config, coldStorage ColdStorage, invalidator Invalidator) (*RedisCache, error) {
	// Настройки по умолчанию
	if config.RedisAddr == "" {
		config.RedisAddr = "localhost:6379"
	}
	if config.DefaultTTL == 0 {
		config.DefaultTTL = 30 * time.Second
	}
	if config.MaxTTL == 0 {
		config.MaxTTL = 1 * time.Hour
	}
	if config.WriteBehindInterval == 0 {
		config.WriteBehindInterval = 5 * time.Second
	}
	if config.WriteBehindBatchSize == 0 {
		config.WriteBehindBatchSize = 100
	}
	if config.MaxConnections == 0 {
		config.MaxConnections = 10
	}
	if config.PoolTimeout == 0 {
		config.PoolTimeout = 30 * time.Second
	}

	// Создаём Redis клиент
	rdb := redis.NewClient(&redis.Options{
		Addr:         config.RedisAddr,
		Password:     config.RedisPassword,
		DB:           config.RedisDB,
		PoolSize:     config.MaxConnections,
		PoolTimeout:  config.PoolTimeout,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 5 * time.Second,
	})

	// Проверяем соединение
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := rdb.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	cache := &RedisCache{
		client:      rdb,
		config:      config,
		coldStorage: coldStorage,
		invalidator: invalidator,
		metrics: &Metrics{
			LastUpdate: time.Now(),
		},
	}

	// Запускаем Write-Behind если включён
	if config.WriteBehindEnabled && coldStorage != nil {
		cache.writeBehindQueue = make(chan *writeItem, config.WriteBehindBatchSize*2)
		cache.writeBehindStop = make(chan struct{})
		cache.startWriteBehind()
	}

	logging.Info("Redis chunk cache initialized: %s (Write-Behind: %v)", config.RedisAddr, config.WriteBehindEnabled)
	return cache, nil
}

// Get получает чанк из Redis кеша.
// При промахе пытается загрузить из Cold Storage (Read-Through).
func (r *RedisCache) Get(ctx context.Context, coord vec.Vec3) (*tiling.Chunk, error) {
	start := time.Now()
	defer r.recordLatency(start)

	atomic.AddInt64(&r.metrics.TotalRequests, 1)

	// Попытка получить из Redis
	val, err := r.client.Get(ctx, ChunkKey(coord)).Bytes()
	if err == nil {
		atomic.AddInt64(&r.metrics.Hits, 1)
		r.updateHitRatio()
		return tiling.ChunkFromBytes(val)
	}

	// Промах в Redis
	atomic.AddInt64(&r.metrics.Misses, 1)

	if err != redis.Nil {
		logging.Error("Redis Get error for chunk %v: %v", coord, err)
		r.updateHitRatio()
		return nil, fmt.Errorf("redis get error: %w", err)
	}

	// Read-Through: пытаемся загрузить из Cold Storage
	if r.coldStorage != nil {
		chunk, loadErr := r.coldStorage.LoadChunk(coord)
		if loadErr == nil && chunk != nil {
			// Загружаем в кеш для следующих запросов
			go func() {
				warmCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				_ = r.Set(warmCtx, coord, chunk, r.config.DefaultTTL)
			}()
			r.updateHitRatio()
			return chunk, nil
		}
		if loadErr != nil {
			logging.Debug("Cold storage miss for chunk %v: %v", coord, loadErr)
		}
	}

	r.updateHitRatio()
	return nil, ErrCacheMiss
}

// Set сохраняет снимок чанка в Redis кеше.
// Если включён Write-Behind, также ставит в очередь для записи в Cold Storage.
func (r *RedisCache) Set(ctx context.Context, coord vec.Vec3, chunk *tiling.Chunk, ttl time.Duration) error {
	start := time.Now()
	defer r.recordLatency(start)

	// Валидация TTL
	if ttl <= 0 {
		ttl = r.config.DefaultTTL
	}
	if ttl > r.config.MaxTTL {
		ttl = r.config.MaxTTL
	}

	// Bytes() алиасит память чанка, в Redis уходит копия
	data := append([]byte(nil), chunk.Bytes()...)
	if err := r.client.Set(ctx, ChunkKey(coord), data, ttl).Err(); err != nil {
		logging.Error("Redis Set error for chunk %v: %v", coord, err)
		return fmt.Errorf("redis set error: %w", err)
	}

	// Write-Behind: ставим в очередь для записи в Cold Storage
	if r.config.WriteBehindEnabled && r.coldStorage != nil {
		snapshot := *chunk
		select {
		case r.writeBehindQueue <- &writeItem{Coord: coord, Chunk: &snapshot}:
		default:
			// Очередь полна, пишем синхронно
			logging.Warn("Write-behind queue full, writing synchronously: %v", coord)
			go func() {
				if err := r.coldStorage.SaveChunk(coord, &snapshot); err != nil {
					logging.Error("Failed to write chunk %v to cold storage: %v", coord, err)
				}
			}()
		}
	}

	return nil
}

// Delete удаляет чанк из кеша и отправляет уведомление об инвалидации.
func (r *RedisCache) Delete(ctx context.Context, coord vec.Vec3) error {
	start := time.Now()
	defer r.recordLatency(start)

	if err := r.client.Del(ctx, ChunkKey(coord)).Err(); err != nil {
		logging.Error("Redis Delete error for chunk %v: %v", coord, err)
		return fmt.Errorf("redis delete error: %w", err)
	}

	// Отправляем уведомление об инвалидации
	if r.invalidator != nil {
		go func() {
			pubCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := r.invalidator.PublishInvalidation(pubCtx, coord); err != nil {
				logging.Error("Failed to publish invalidation for chunk %v: %v", coord, err)
			}
		}()
	}

	return nil
}

// Exists проверяет существование чанка в кеше.
func (r *RedisCache) Exists(ctx context.Context, coord vec.Vec3) (bool, error) {
	start := time.Now()
	defer r.recordLatency(start)

	count, err := r.client.Exists(ctx, ChunkKey(coord)).Result()
	if err != nil {
		return false, fmt.Errorf("redis exists error: %w", err)
	}

	return count > 0, nil
}

// Invalidate удаляет чанк и уведомляет другие узлы.
func (r *RedisCache) Invalidate(ctx context.Context, coord vec.Vec3) error {
	return r.Delete(ctx, coord)
}

// GetMany получает несколько чанков за один запрос.
func (r *RedisCache) GetMany(ctx context.Context, coords []vec.Vec3) (map[vec.Vec3]*tiling.Chunk, error) {
	start := time.Now()
	defer r.recordLatency(start)

	result := make(map[vec.Vec3]*tiling.Chunk, len(coords))
	if len(coords) == 0 {
		return result, nil
	}

	atomic.AddInt64(&r.metrics.TotalRequests, int64(len(coords)))

	pipe := r.client.Pipeline()
	cmds := make(map[vec.Vec3]*redis.StringCmd, len(coords))

	for _, coord := range coords {
		cmds[coord] = pipe.Get(ctx, ChunkKey(coord))
	}

	if _, err := pipe.Exec(ctx); err != nil && err != redis.Nil {
		logging.Error("Redis GetMany pipeline error: %v", err)
		return nil, fmt.Errorf("redis batch get error: %w", err)
	}

	var hits, misses int64
	for coord, cmd := range cmds {
		val, err := cmd.Bytes()
		if err == redis.Nil {
			misses++
			continue
		}
		if err != nil {
			logging.Error("Redis GetMany error for chunk %v: %v", coord, err)
			misses++
			continue
		}
		chunk, parseErr := tiling.ChunkFromBytes(val)
		if parseErr != nil {
			logging.Error("Corrupt chunk in cache %v: %v", coord, parseErr)
			misses++
			continue
		}
		result[coord] = chunk
		hits++
	}

	atomic.AddInt64(&r.metrics.Hits, hits)
	atomic.AddInt64(&r.metrics.Misses, misses)
	r.updateHitRatio()

	return result, nil
}

// SetMany сохраняет несколько чанков за один запрос.
func (r *RedisCache) SetMany(ctx context.Context, chunks map[vec.Vec3]*tiling.Chunk, ttl time.Duration) error {
	start := time.Now()
	defer r.recordLatency(start)

	if len(chunks) == 0 {
		return nil
	}

	// Валидация TTL
	if ttl <= 0 {
		ttl = r.config.DefaultTTL
	}
	if ttl > r.config.MaxTTL {
		ttl = r.config.MaxTTL
	}

	pipe := r.client.Pipeline()
	for coord, chunk := range chunks {
		data := append([]byte(nil), chunk.Bytes()...)
		pipe.Set(ctx, ChunkKey(coord), data, ttl)
	}

	if _, err := pipe.Exec(ctx); err != nil {
		logging.Error("Redis SetMany pipeline error: %v", err)
		return fmt.Errorf("redis batch set error: %w", err)
	}

	// Write-Behind для всех чанков
	if r.config.WriteBehindEnabled && r.coldStorage != nil {
		for coord, chunk := range chunks {
			snapshot := *chunk
			select {
			case r.writeBehindQueue <- &writeItem{Coord: coord, Chunk: &snapshot}:
			default:
				// Очередь полна, пропускаем
				logging.Warn("Write-behind queue full, skipping chunk: %v", coord)
			}
		}
	}

	return nil
}

// Close закрывает соединение с Redis и останавливает Write-Behind.
func (r *RedisCache) Close() error {
	// Останавливаем Write-Behind
	if r.writeBehindStop != nil {
		close(r.writeBehindStop)
		r.writeBehindWg.Wait()
	}

	// Закрываем Redis соединение
	if err := r.client.Close(); err != nil {
		logging.Error("Error closing Redis connection: %v", err)
		return err
	}

	logging.Info("Redis chunk cache closed")
	return nil
}

// GetMetrics возвращает текущие метрики кеша.
func (r *RedisCache) GetMetrics() *Metrics {
	r.metricsMutex.RLock()
	metrics := *r.metrics
	r.metricsMutex.RUnlock()

	// Счётчики читаем атомарно, копия структуры их не синхронизирует
	metrics.TotalRequests = atomic.LoadInt64(&r.metrics.TotalRequests)
	metrics.Hits = atomic.LoadInt64(&r.metrics.Hits)
	metrics.Misses = atomic.LoadInt64(&r.metrics.Misses)
	metrics.LastUpdate = time.Now()

	if r.writeBehindQueue != nil {
		metrics.PendingWrites = int64(len(r.writeBehindQueue))
	}

	return &metrics
}

// startWriteBehind запускает горутину для асинхронной записи в Cold Storage.
func (r *RedisCache) startWriteBehind() {
	r.writeBehindWg.Add(1)
	go func() {
		defer r.writeBehindWg.Done()

		ticker := time.NewTicker(r.config.WriteBehindInterval)
		defer ticker.Stop()

		batch := make(map[vec.Vec3]*tiling.Chunk)

		for {
			select {
			case item := <-r.writeBehindQueue:
				// Повторная запись той же координаты побеждает
				batch[item.Coord] = item.Chunk

				// Если batch заполнен, записываем
				if len(batch) >= r.config.WriteBehindBatchSize {
					r.flushWriteBehindBatch(batch)
					batch = make(map[vec.Vec3]*tiling.Chunk)
				}

			case <-ticker.C:
				// Периодически записываем накопленные данные
				if len(batch) > 0 {
					r.flushWriteBehindBatch(batch)
					batch = make(map[vec.Vec3]*tiling.Chunk)
				}

			case <-r.writeBehindStop:
				// Дочитываем очередь и записываем остаток перед выходом
				for {
					select {
					case item := <-r.writeBehindQueue:
						batch[item.Coord] = item.Chunk
					default:
						if len(batch) > 0 {
							r.flushWriteBehindBatch(batch)
						}
						return
					}
				}
			}
		}
	}()

	logging.Info("Write-Behind started (interval: %v, batch size: %d)",
		r.config.WriteBehindInterval, r.config.WriteBehindBatchSize)
}

// flushWriteBehindBatch записывает batch в Cold Storage.
func (r *RedisCache) flushWriteBehindBatch(batch map[vec.Vec3]*tiling.Chunk) {
	if len(batch) == 0 {
		return
	}

	start := time.Now()
	if err := r.coldStorage.SaveChunks(batch); err != nil {
		logging.Error("Write-Behind batch store failed (%d chunks): %v", len(batch), err)
	} else {
		logging.Debug("Write-Behind batch stored: %d chunks in %v", len(batch), time.Since(start))
	}
}

// recordLatency записывает latency метрику.
func (r *RedisCache) recordLatency(start time.Time) {
	latency := time.Since(start).Nanoseconds()

	atomic.AddInt64(&r.latencySum, latency)
	atomic.AddInt64(&r.latencyCount, 1)

	// Обновляем максимальную latency
	for {
		current := atomic.LoadInt64(&r.maxLatency)
		if latency <= current || atomic.CompareAndSwapInt64(&r.maxLatency, current, latency) {
			break
		}
	}

	// Периодически обновляем среднюю latency в метриках
	if atomic.LoadInt64(&r.latencyCount)%100 == 0 {
		r.updateLatencyMetrics()
	}
}

// updateLatencyMetrics обновляет метрики latency.
func (r *RedisCache) updateLatencyMetrics() {
	count := atomic.LoadInt64(&r.latencyCount)
	if count == 0 {
		return
	}

	sum := atomic.LoadInt64(&r.latencySum)
	max := atomic.LoadInt64(&r.maxLatency)

	r.metricsMutex.Lock()
	r.metrics.AvgLatencyMs = float64(sum) / float64(count) / 1e6 // нс в мс
	r.metrics.MaxLatencyMs = float64(max) / 1e6
	r.metricsMutex.Unlock()
}

// updateHitRatio обновляет hit ratio в метриках.
func (r *RedisCache) updateHitRatio() {
	hits := atomic.LoadInt64(&r.metrics.Hits)
	misses := atomic.LoadInt64(&r.metrics.Misses)
	total := hits + misses

	if total > 0 {
		r.metricsMutex.Lock()
		r.metrics.HitRatio = float64(hits) / float64(total)
		r.metricsMutex.Unlock()
	}
}
