// Package cache реализует горячий кеш байтовых снимков чанков поверх Redis.
// Поддерживает двухуровневую архитектуру: Hot Cache (Redis) + Cold Storage
// (BadgerDB), сквозное чтение при промахе, отложенную запись Write-Behind и
// распределённую инвалидацию через NATS Pub/Sub.
//
// Использование:
//
//	hot, err := cache.NewRedisCache(config, coldStore, invalidator)
//	chunk, err := hot.Get(ctx, coord)
//	err = hot.Set(ctx, coord, chunk, 30*time.Second)
//	err = hot.Invalidate(ctx, coord)
package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/annel0/tile-engine/internal/tiling"
	"github.com/annel0/tile-engine/internal/vec"
)

// ChunkCache определяет интерфейс горячего кеша чанков.
type ChunkCache interface {
	// Get возвращает чанк из кеша. При промахе пытается поднять его из
	// холодного хранилища; если чанка нет нигде, возвращает ErrCacheMiss.
	Get(ctx context.Context, coord vec.Vec3) (*tiling.Chunk, error)

	// Set кладёт снимок чанка в кеш с указанным TTL. Неположительный TTL
	// заменяется на DefaultTTL, превышающий MaxTTL урезается до него.
	Set(ctx context.Context, coord vec.Vec3, chunk *tiling.Chunk, ttl time.Duration) error

	// Delete удаляет чанк из кеша.
	Delete(ctx context.Context, coord vec.Vec3) error

	// Exists проверяет наличие чанка в кеше.
	Exists(ctx context.Context, coord vec.Vec3) (bool, error)

	// Invalidate удаляет чанк и рассылает уведомление другим узлам.
	Invalidate(ctx context.Context, coord vec.Vec3) error

	// GetMany получает несколько чанков одним конвейером.
	GetMany(ctx context.Context, coords []vec.Vec3) (map[vec.Vec3]*tiling.Chunk, error)

	// SetMany кладёт несколько чанков одним конвейером. Правила TTL те же,
	// что у Set.
	SetMany(ctx context.Context, chunks map[vec.Vec3]*tiling.Chunk, ttl time.Duration) error

	// Close закрывает соединение с кешем.
	Close() error

	// GetMetrics возвращает метрики кеша.
	GetMetrics() *Metrics
}

// ColdStorage — постоянное хранилище чанков, подложка горячего кеша.
// Используется при промахе и для отложенной записи.
type ColdStorage interface {
	SaveChunk(coord vec.Vec3, chunk *tiling.Chunk) error
	SaveChunks(chunks map[vec.Vec3]*tiling.Chunk) error
	LoadChunk(coord vec.Vec3) (*tiling.Chunk, error)
}

// Invalidator рассылает уведомления об инвалидации чанков между узлами.
type Invalidator interface {
	// PublishInvalidation отправляет уведомление об инвалидации чанка.
	PublishInvalidation(ctx context.Context, coord vec.Vec3) error

	// SubscribeInvalidations подписывается на уведомления об инвалидации.
	SubscribeInvalidations(ctx context.Context, handler InvalidationHandler) error

	// Close закрывает соединение.
	Close() error
}

// InvalidationHandler обрабатывает уведомление об инвалидации чанка.
type InvalidationHandler func(coord vec.Vec3) error

// Metrics содержит метрики производительности кеша.
type Metrics struct {
	TotalRequests int64   `json:"total_requests"`
	Hits          int64   `json:"hits"`
	Misses        int64   `json:"misses"`
	HitRatio      float64 `json:"hit_ratio"`

	AvgLatencyMs float64 `json:"avg_latency_ms"`
	MaxLatencyMs float64 `json:"max_latency_ms"`

	PendingWrites int64     `json:"pending_writes"`
	LastUpdate    time.Time `json:"last_update"`
}

// Config содержит конфигурацию кеша.
type Config struct {
	// Redis подключение
	RedisAddr     string `yaml:"redis_addr"`
	RedisPassword string `yaml:"redis_password"`
	RedisDB       int    `yaml:"redis_db"`

	// TTL настройки
	DefaultTTL time.Duration `yaml:"default_ttl"`
	MaxTTL     time.Duration `yaml:"max_ttl"`

	// Write-Behind конфигурация
	WriteBehindEnabled   bool          `yaml:"write_behind_enabled"`
	WriteBehindInterval  time.Duration `yaml:"write_behind_interval"`
	WriteBehindBatchSize int           `yaml:"write_behind_batch_size"`

	// Производительность
	MaxConnections int           `yaml:"max_connections"`
	PoolTimeout    time.Duration `yaml:"pool_timeout"`
}

// ErrCacheMiss возвращается, когда чанка нет ни в кеше, ни в холодном
// хранилище.
var ErrCacheMiss = errors.New("cache miss")

// IsCacheMiss сообщает, является ли ошибка промахом кеша.
func IsCacheMiss(err error) bool {
	return errors.Is(err, ErrCacheMiss)
}

// ChunkKey возвращает ключ чанка в кеше.
func ChunkKey(coord vec.Vec3) string {
	return fmt.Sprintf("chunk:%d:%d:%d", coord.X, coord.Y, coord.Z)
}
