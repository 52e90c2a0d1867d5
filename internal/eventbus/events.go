package eventbus

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Типы событий движка. Строка типа одновременно служит subject-ом в NATS.
const (
	// EventCycle — итог одного цикла движка.
	EventCycle = "tiles.cycle"
	// EventChunkDirty — список чанков, изменившихся за цикл.
	EventChunkDirty = "tiles.chunk_dirty"
	// EventSnapshotSaved — завершено сохранение чанков в хранилище.
	EventSnapshotSaved = "tiles.snapshot_saved"
)

// payloadVersion — текущая схема полезной нагрузки событий.
const payloadVersion = 1

// CyclePayload — полезная нагрузка события EventCycle.
type CyclePayload struct {
	Cycle         uint64 `json:"cycle"`
	DirtyChunks   int    `json:"dirty_chunks"`
	Replayed      int    `json:"replayed"`
	Regenerated   int    `json:"regenerated"`
	Dropped       int    `json:"dropped"`
	ForcedDirty   int    `json:"forced_dirty"`
	MissingHandle int    `json:"missing_handle"`
	DurationMs    int64  `json:"duration_ms"`
}

// ChunkDirtyPayload — полезная нагрузка события EventChunkDirty.
// Координаты кодируются тройками [x, y, слой].
type ChunkDirtyPayload struct {
	Cycle  uint64   `json:"cycle"`
	Coords [][3]int `json:"coords"`
}

// SnapshotSavedPayload — полезная нагрузка события EventSnapshotSaved.
type SnapshotSavedPayload struct {
	Chunks     int   `json:"chunks"`
	DurationMs int64 `json:"duration_ms"`
}

// NewEnvelope собирает конверт события: UUID, метка времени и
// JSON-сериализованная полезная нагрузка.
func NewEnvelope(source, eventType string, priority int, payload interface{}) (*Envelope, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("сериализация события %s: %w", eventType, err)
	}
	return &Envelope{
		ID:        uuid.NewString(),
		Timestamp: time.Now().UTC(),
		Source:    source,
		EventType: eventType,
		Version:   payloadVersion,
		Priority:  priority,
		Payload:   data,
		Metadata:  make(map[string]string),
	}, nil
}

// DecodePayload распаковывает полезную нагрузку конверта в v.
func (ev *Envelope) DecodePayload(v interface{}) error {
	return json.Unmarshal(ev.Payload, v)
}
