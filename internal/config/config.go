// Package config читает YAML конфигурацию сервера тайлового движка.
package config

import (
	"os"
	"strconv"

	"gopkg.in/yaml.v3"

	"github.com/annel0/tile-engine/internal/autotile"
	"github.com/annel0/tile-engine/internal/cache"
)

// Config корневая структура конфигурации приложения.
type Config struct {
	Engine    EngineConfig    `yaml:"engine"`
	Generator GeneratorConfig `yaml:"generator"`
	Storage   StorageConfig   `yaml:"storage"`
	Cache     CacheConfig     `yaml:"cache"`
	EventBus  EventBusConfig  `yaml:"eventbus"`
	Metrics   MetricsConfig   `yaml:"metrics"`
	Telemetry TelemetryConfig `yaml:"telemetry"`
	Autotile  AutotileConfig  `yaml:"autotile"`
}

type EngineConfig struct {
	TPS      int    `yaml:"tps"`
	Strategy string `yaml:"strategy"` // immediate | retained
}

type GeneratorConfig struct {
	Seed   int64 `yaml:"seed"`
	Radius int   `yaml:"radius"` // радиус стартовой области в чанках
}

type StorageConfig struct {
	Path         string `yaml:"path"`
	SaveInterval int    `yaml:"save_interval_seconds"`
}

type CacheConfig struct {
	Enabled     bool                    `yaml:"enabled"`
	NodeID      string                  `yaml:"node_id"`
	Redis       cache.Config            `yaml:"redis"`
	Invalidator cache.InvalidatorConfig `yaml:"invalidator"`
}

type EventBusConfig struct {
	URL       string `yaml:"url"`
	Stream    string `yaml:"stream"`
	Retention int    `yaml:"retention_hours"`
}

type MetricsConfig struct {
	Port int `yaml:"port"`
}

type TelemetryConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Endpoint string `yaml:"endpoint"`
	Service  string `yaml:"service"`
}

type AutotileConfig struct {
	Rules []autotile.Rule `yaml:"rules"`
}

// GetTPS возвращает частоту циклов с поддержкой fallback значений
func (e *EngineConfig) GetTPS() int {
	return getIntWithEnvFallback(e.TPS, "TILE_TPS", 60)
}

// GetStrategy возвращает имя стратегии сверки, пустая строка допустима
func (e *EngineConfig) GetStrategy() string {
	if e.Strategy != "" {
		return e.Strategy
	}
	return os.Getenv("TILE_STRATEGY")
}

// GetSeed возвращает сид генератора мира с поддержкой fallback значений
func (g *GeneratorConfig) GetSeed() int64 {
	if g.Seed != 0 {
		return g.Seed
	}
	if envVal := os.Getenv("TILE_SEED"); envVal != "" {
		if seed, err := strconv.ParseInt(envVal, 10, 64); err == nil {
			return seed
		}
	}
	return 1337
}

// GetRadius возвращает радиус стартовой области в чанках
func (g *GeneratorConfig) GetRadius() int {
	return getIntWithEnvFallback(g.Radius, "TILE_RADIUS", 2)
}

// GetPath возвращает каталог хранилища с поддержкой fallback значений
func (s *StorageConfig) GetPath() string {
	if s.Path != "" {
		return s.Path
	}
	if envVal := os.Getenv("TILE_DATA_PATH"); envVal != "" {
		return envVal
	}
	return "./data"
}

// GetSaveInterval возвращает период сохранения грязных чанков в секундах
func (s *StorageConfig) GetSaveInterval() int {
	return getIntWithEnvFallback(s.SaveInterval, "TILE_SAVE_INTERVAL", 10)
}

// GetPort возвращает порт Prometheus метрик с поддержкой fallback значений
func (m *MetricsConfig) GetPort() int {
	return getIntWithEnvFallback(m.Port, "TILE_METRICS_PORT", 2112)
}

// GetService возвращает имя сервиса для телеметрии
func (t *TelemetryConfig) GetService() string {
	if t.Service != "" {
		return t.Service
	}
	return "tile-engine"
}

// getIntWithEnvFallback возвращает значение с приоритетом: config -> env -> default
func getIntWithEnvFallback(configVal int, envVar string, defaultVal int) int {
	if configVal > 0 {
		return configVal
	}

	if envVal := os.Getenv(envVar); envVal != "" {
		if v, err := strconv.Atoi(envVal); err == nil && v > 0 {
			return v
		}
	}

	return defaultVal
}

// Load читает YAML файл конфигурации.
// Если path == "", пытается прочитать из ENV TILE_CONFIG или возвращает nil, nil.
func Load(path string) (*Config, error) {
	if path == "" {
		path = os.Getenv("TILE_CONFIG")
		if path == "" {
			return nil, nil // конфиг не задан, использовать дефолты
		}
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}
