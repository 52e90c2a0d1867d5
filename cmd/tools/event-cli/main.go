package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/annel0/tile-engine/internal/eventbus"
)

const defaultNATSURL = "nats://localhost:4222"

func main() {
	var (
		natsURL    = flag.String("url", defaultNATSURL, "адрес NATS кластера")
		stream     = flag.String("stream", "TILES", "имя JetStream стрима")
		eventTypes = flag.String("types", "", "фильтр по типам событий через запятую")
		duration   = flag.Duration("duration", 0, "сколько слушать (0 = до Ctrl+C)")
	)
	flag.Parse()

	bus, err := eventbus.NewJetStreamBus(*natsURL, *stream, 24*time.Hour)
	if err != nil {
		log.Fatalf("❌ Не удалось подключиться к NATS: %v", err)
	}
	defer bus.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	filter := eventbus.Filter{Types: parseStringList(*eventTypes)}
	fmt.Printf("🎬 Слушаем события (stream=%s, types=%v)\n", *stream, filter.Types)

	count := 0
	sub, err := bus.Subscribe(ctx, filter, func(_ context.Context, ev *eventbus.Envelope) {
		printEvent(ev)
		count++
	})
	if err != nil {
		log.Fatalf("❌ Подписка не удалась: %v", err)
	}
	defer sub.Unsubscribe()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	if *duration > 0 {
		select {
		case <-sigCh:
		case <-time.After(*duration):
		}
	} else {
		<-sigCh
	}

	fmt.Printf("\n📊 Всего событий: %d\n", count)
}

// printEvent выводит событие в читаемом формате.
func printEvent(ev *eventbus.Envelope) {
	timestamp := ev.Timestamp.Local().Format("15:04:05")
	fmt.Printf("[%s] %s [%s] prio=%d %s\n",
		timestamp, ev.Source, ev.EventType, ev.Priority, ev.ID)

	switch ev.EventType {
	case eventbus.EventCycle:
		var p eventbus.CyclePayload
		if ev.DecodePayload(&p) == nil {
			fmt.Printf("  Цикл %d: грязных=%d, проиграно=%d, перегенерировано=%d, снято=%d, %d мс\n",
				p.Cycle, p.DirtyChunks, p.Replayed, p.Regenerated, p.Dropped, p.DurationMs)
		}
	case eventbus.EventChunkDirty:
		var p eventbus.ChunkDirtyPayload
		if ev.DecodePayload(&p) == nil {
			fmt.Printf("  Цикл %d: %d чанков %s\n", p.Cycle, len(p.Coords), formatCoords(p.Coords))
		}
	case eventbus.EventSnapshotSaved:
		var p eventbus.SnapshotSavedPayload
		if ev.DecodePayload(&p) == nil {
			fmt.Printf("  Сохранено %d чанков за %d мс\n", p.Chunks, p.DurationMs)
		}
	default:
		fmt.Printf("  %s\n", string(ev.Payload))
	}
}

// formatCoords печатает координаты, обрезая длинные списки.
func formatCoords(coords [][3]int) string {
	const maxShown = 8

	var b strings.Builder
	for i, c := range coords {
		if i >= maxShown {
			fmt.Fprintf(&b, " и ещё %d", len(coords)-maxShown)
			break
		}
		if i > 0 {
			b.WriteByte(' ')
		}
		fmt.Fprintf(&b, "(%d,%d,%d)", c[0], c[1], c[2])
	}
	return b.String()
}

// parseStringList парсит строку с разделителями-запятыми.
func parseStringList(s string) []string {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	result := make([]string, 0, len(parts))
	for _, part := range parts {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			result = append(result, trimmed)
		}
	}
	return result
}
