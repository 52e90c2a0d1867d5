package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"

	"github.com/annel0/tile-engine/internal/logging"
	"github.com/annel0/tile-engine/internal/vec"
)

// NATSInvalidator реализует Invalidator используя NATS Pub/Sub.
// Обеспечивает распределённую инвалидацию кеша чанков между узлами.
//
// Особенности:
// - Автоматическое переподключение при сбоях
// - Дедупликация сообщений по координате
// - Graceful shutdown
// - Метрики публикации/подписки
type NATSInvalidator struct {
	conn    *nats.Conn
	config  *InvalidatorConfig
	subject string
	nodeID  string

	// Подписки
	subscription *nats.Subscription
	handler      InvalidationHandler

	// Graceful shutdown
	stopCh chan struct{}
	wg     sync.WaitGroup

	// Дедупликация
	recentCoords map[vec.Vec3]time.Time
	coordsMutex  sync.RWMutex

	// Метрики (используем atomic для thread safety)
	publishedCount int64
	receivedCount  int64
	errorsCount    int64
}

// InvalidatorConfig содержит конфигурацию для NATS invalidator.
type InvalidatorConfig struct {
	// NATS подключение
	NATSURL string `yaml:"nats_url"`
	Subject string `yaml:"subject"`

	// Retry настройки
	MaxReconnects int           `yaml:"max_reconnects"`
	ReconnectWait time.Duration `yaml:"reconnect_wait"`

	// Дедупликация
	DedupeWindow time.Duration `yaml:"dedupe_window"`
}

// InvalidationMessage представляет сообщение об инвалидации чанка.
type InvalidationMessage struct {
	Coord     vec.Vec3  `json:"coord"`
	Timestamp time.Time `json:"timestamp"`
	NodeID    string    `json:"node_id"`
	Reason    string    `json:"reason,omitempty"`
}

// NewNATSInvalidator создаёт новый NATS invalidator.
//
// Параметры:
//
//	config - конфигурация NATS соединения
//	nodeID - уникальный идентификатор узла (пустая строка = сгенерировать)
//
// Возвращает:
//
//	*NATSInvalidator - готовый к использованию invalidator
//	error - ошибка подключения
func NewNATSInvalidator(config *InvalidatorConfig, nodeID string) (*NATSInvalidator, error) {
	// Настройки по умолчанию
	if config.Subject == "" {
		config.Subject = "cache.chunks"
	}
	if config.MaxReconnects == 0 {
		config.MaxReconnects = 10
	}
	if config.ReconnectWait == 0 {
		config.ReconnectWait = 2 * time.Second
	}
	if config.DedupeWindow == 0 {
		config.DedupeWindow = 5 * time.Second
	}
	if nodeID == "" {
		nodeID = uuid.New().String()
	}

	// Настройки NATS соединения
	opts := []nats.Option{
		nats.MaxReconnects(config.MaxReconnects),
		nats.ReconnectWait(config.ReconnectWait),
		nats.DisconnectErrHandler(func(nc *nats.Conn, err error) {
			logging.Warn("NATS disconnected: %v", err)
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			logging.Info("NATS reconnected to %s", nc.ConnectedUrl())
		}),
		nats.ClosedHandler(func(nc *nats.Conn) {
			logging.Info("NATS connection closed")
		}),
	}

	// Подключаемся к NATS
	conn, err := nats.Connect(config.NATSURL, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}

	invalidator := &NATSInvalidator{
		conn:         conn,
		config:       config,
		subject:      config.Subject,
		nodeID:       nodeID,
		stopCh:       make(chan struct{}),
		recentCoords: make(map[vec.Vec3]time.Time),
	}

	// Запускаем очистку дедупликации
	invalidator.startDedupeCleanup()

	logging.Info("NATS invalidator initialized: %s (subject: %s, node: %s)",
		config.NATSURL, config.Subject, nodeID)
	return invalidator, nil
}

// PublishInvalidation отправляет уведомление об инвалидации чанка.
func (n *NATSInvalidator) PublishInvalidation(ctx context.Context, coord vec.Vec3) error {
	// Проверяем дедупликацию
	if n.isDuplicate(coord) {
		logging.Debug("Skipping duplicate invalidation for chunk %v", coord)
		return nil
	}

	msg := &InvalidationMessage{
		Coord:     coord,
		Timestamp: time.Now(),
		NodeID:    n.nodeID,
		Reason:    "chunk_invalidation",
	}

	data, err := json.Marshal(msg)
	if err != nil {
		atomic.AddInt64(&n.errorsCount, 1)
		return fmt.Errorf("failed to marshal invalidation message: %w", err)
	}

	if err := n.conn.Publish(n.subject, data); err != nil {
		atomic.AddInt64(&n.errorsCount, 1)
		logging.Error("Failed to publish invalidation for chunk %v: %v", coord, err)
		return fmt.Errorf("failed to publish invalidation: %w", err)
	}

	// Записываем в дедупликацию
	n.recordCoord(coord)
	atomic.AddInt64(&n.publishedCount, 1)

	logging.Debug("Published invalidation for chunk %v", coord)
	return nil
}

// SubscribeInvalidations подписывается на уведомления об инвалидации.
func (n *NATSInvalidator) SubscribeInvalidations(ctx context.Context, handler InvalidationHandler) error {
	if n.subscription != nil {
		return fmt.Errorf("already subscribed to invalidations")
	}

	n.handler = handler

	// Создаём подписку
	sub, err := n.conn.Subscribe(n.subject, n.handleInvalidationMessage)
	if err != nil {
		return fmt.Errorf("failed to subscribe to invalidations: %w", err)
	}

	n.subscription = sub

	// Запускаем мониторинг контекста для graceful shutdown
	n.wg.Add(1)
	go func() {
		defer n.wg.Done()
		select {
		case <-ctx.Done():
			n.unsubscribe()
		case <-n.stopCh:
			n.unsubscribe()
		}
	}()

	logging.Info("Subscribed to chunk invalidations on subject: %s", n.subject)
	return nil
}

// Close закрывает соединение с NATS.
func (n *NATSInvalidator) Close() error {
	close(n.stopCh)
	n.wg.Wait()

	if n.subscription != nil {
		n.subscription.Unsubscribe()
	}

	n.conn.Close()
	logging.Info("NATS invalidator closed")
	return nil
}

// GetMetrics возвращает метрики invalidator.
func (n *NATSInvalidator) GetMetrics() map[string]interface{} {
	return map[string]interface{}{
		"published_count": atomic.LoadInt64(&n.publishedCount),
		"received_count":  atomic.LoadInt64(&n.receivedCount),
		"errors_count":    atomic.LoadInt64(&n.errorsCount),
		"connected":       n.conn.IsConnected(),
		"status":          n.conn.Status(),
	}
}

// handleInvalidationMessage обрабатывает входящие сообщения об инвалидации.
func (n *NATSInvalidator) handleInvalidationMessage(msg *nats.Msg) {
	atomic.AddInt64(&n.receivedCount, 1)

	var invalidationMsg InvalidationMessage
	if err := json.Unmarshal(msg.Data, &invalidationMsg); err != nil {
		atomic.AddInt64(&n.errorsCount, 1)
		logging.Error("Failed to unmarshal invalidation message: %v", err)
		return
	}

	// Проверяем что это не наше собственное сообщение
	if invalidationMsg.NodeID == n.nodeID {
		logging.Debug("Ignoring own invalidation message for chunk %v", invalidationMsg.Coord)
		return
	}

	// Проверяем дедупликацию
	if n.isDuplicate(invalidationMsg.Coord) {
		logging.Debug("Ignoring duplicate invalidation for chunk %v", invalidationMsg.Coord)
		return
	}

	// Записываем в дедупликацию
	n.recordCoord(invalidationMsg.Coord)

	// Вызываем обработчик
	if n.handler != nil {
		if err := n.handler(invalidationMsg.Coord); err != nil {
			atomic.AddInt64(&n.errorsCount, 1)
			logging.Error("Invalidation handler failed for chunk %v: %v", invalidationMsg.Coord, err)
		} else {
			logging.Debug("Processed invalidation for chunk %v", invalidationMsg.Coord)
		}
	}
}

// unsubscribe отписывается от уведомлений.
func (n *NATSInvalidator) unsubscribe() {
	if n.subscription != nil {
		if err := n.subscription.Unsubscribe(); err != nil {
			logging.Error("Failed to unsubscribe from invalidations: %v", err)
		} else {
			logging.Info("Unsubscribed from chunk invalidations")
		}
		n.subscription = nil
	}
}

// isDuplicate проверяет, видели ли мы эту координату в окне дедупликации.
func (n *NATSInvalidator) isDuplicate(coord vec.Vec3) bool {
	n.coordsMutex.RLock()
	defer n.coordsMutex.RUnlock()

	lastSeen, exists := n.recentCoords[coord]
	if !exists {
		return false
	}

	return time.Since(lastSeen) < n.config.DedupeWindow
}

// recordCoord записывает координату в дедупликацию.
func (n *NATSInvalidator) recordCoord(coord vec.Vec3) {
	n.coordsMutex.Lock()
	defer n.coordsMutex.Unlock()

	n.recentCoords[coord] = time.Now()
}

// startDedupeCleanup запускает периодическую очистку дедупликации.
func (n *NATSInvalidator) startDedupeCleanup() {
	n.wg.Add(1)
	go func() {
		defer n.wg.Done()

		ticker := time.NewTicker(n.config.DedupeWindow)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				n.cleanupDedupe()
			case <-n.stopCh:
				return
			}
		}
	}()
}

// cleanupDedupe удаляет устаревшие записи из дедупликации.
func (n *NATSInvalidator) cleanupDedupe() {
	n.coordsMutex.Lock()
	defer n.coordsMutex.Unlock()

	now := time.Now()
	for coord, timestamp := range n.recentCoords {
		if now.Sub(timestamp) > n.config.DedupeWindow {
			delete(n.recentCoords, coord)
		}
	}

	logging.Debug("Dedupe cleanup completed, %d coords remaining", len(n.recentCoords))
}
