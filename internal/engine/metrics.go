package engine

import (
	"time"

	"github.com/annel0/tile-engine/internal/render"
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics — счётчики Prometheus движка. Регистрируются в глобальном
// реестре, поэтому создавать Metrics можно один раз на процесс.
type Metrics struct {
	cycles        prometheus.Counter
	cycleDuration prometheus.Histogram
	dirtyChunks   prometheus.Gauge
	loadedChunks  prometheus.Gauge
	replayed      prometheus.Counter
	regenerated   prometheus.Counter
	dropped       prometheus.Counter
	forcedDirty   prometheus.Counter
	missingHandle prometheus.Counter
}

// NewMetrics создаёт и регистрирует метрики движка.
func NewMetrics() *Metrics {
	m := &Metrics{
		cycles: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "tiling",
			Subsystem: "engine",
			Name:      "cycles_total",
			Help:      "Количество завершённых циклов симуляции",
		}),
		cycleDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "tiling",
			Subsystem: "engine",
			Name:      "cycle_duration_seconds",
			Help:      "Длительность полного цикла симуляции",
			Buckets:   prometheus.ExponentialBuckets(0.0001, 2, 12),
		}),
		dirtyChunks: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "tiling",
			Subsystem: "engine",
			Name:      "dirty_chunks",
			Help:      "Чанков, изменившихся за последний цикл",
		}),
		loadedChunks: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "tiling",
			Subsystem: "engine",
			Name:      "loaded_chunks",
			Help:      "Чанков в карте тайлов",
		}),
		replayed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "tiling",
			Subsystem: "engine",
			Name:      "resources_replayed_total",
			Help:      "Ресурсов, восстановленных из кеша сверки",
		}),
		regenerated: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "tiling",
			Subsystem: "engine",
			Name:      "resources_regenerated_total",
			Help:      "Ресурсов, перегенерированных из байтов чанков",
		}),
		dropped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "tiling",
			Subsystem: "engine",
			Name:      "resources_dropped_total",
			Help:      "Ресурсов, отброшенных из-за удаления чанка",
		}),
		forcedDirty: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "tiling",
			Subsystem: "engine",
			Name:      "resources_forced_dirty_total",
			Help:      "Незагруженных ресурсов, принудительно помеченных грязными",
		}),
		missingHandle: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "tiling",
			Subsystem: "engine",
			Name:      "missing_handle_total",
			Help:      "Грязных чанков без хэндла на момент сверки",
		}),
	}

	prometheus.MustRegister(m.cycles, m.cycleDuration, m.dirtyChunks, m.loadedChunks,
		m.replayed, m.regenerated, m.dropped, m.forcedDirty, m.missingHandle)
	return m
}

// ObserveCycle фиксирует итоги одного цикла.
func (m *Metrics) ObserveCycle(elapsed time.Duration, dirty, loaded int, stats render.SyncStats) {
	m.cycles.Inc()
	m.cycleDuration.Observe(elapsed.Seconds())
	m.dirtyChunks.Set(float64(dirty))
	m.loadedChunks.Set(float64(loaded))
	m.replayed.Add(float64(stats.Replayed))
	m.regenerated.Add(float64(stats.Regenerated))
	m.dropped.Add(float64(stats.Dropped))
	m.forcedDirty.Add(float64(stats.ForcedDirty))
	m.missingHandle.Add(float64(stats.MissingHandle))
}
