// Package storage отвечает за долговременное хранение чанков в BadgerDB.
// Значения сжимаются zstd: байтовое представление чанка фиксированной
// длины сжимается в разы на разреженных мирах.
package storage

import (
	"errors"
	"fmt"
	"path/filepath"
	"sync"

	"github.com/annel0/tile-engine/internal/logging"
	"github.com/annel0/tile-engine/internal/tiling"
	"github.com/annel0/tile-engine/internal/vec"
	"github.com/dgraph-io/badger/v3"
	"github.com/klauspost/compress/zstd"
)

const chunkPrefix = "chunk:"

// ErrStoreClosed возвращается при обращении к закрытому хранилищу.
var ErrStoreClosed = errors.New("хранилище закрыто")

// ChunkStore — долговременное хранилище чанков поверх BadgerDB.
type ChunkStore struct {
	db    *badger.DB
	path  string
	mu    sync.RWMutex
	ready bool

	enc *zstd.Encoder
	dec *zstd.Decoder
}

// NewChunkStore открывает хранилище в каталоге dataPath.
func NewChunkStore(dataPath string) (*ChunkStore, error) {
	dbPath := filepath.Join(dataPath, "chunks")
	opts := badger.DefaultOptions(dbPath)
	opts.Logger = nil // отключаем собственное логирование BadgerDB

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("не удалось открыть BadgerDB: %w", err)
	}

	enc, err := zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("не удалось создать компрессор: %w", err)
	}
	dec, err := zstd.NewReader(nil)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("не удалось создать декомпрессор: %w", err)
	}

	return &ChunkStore{
		db:    db,
		path:  dbPath,
		ready: true,
		enc:   enc,
		dec:   dec,
	}, nil
}

// Close закрывает хранилище. Повторный вызов безопасен.
func (s *ChunkStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.ready {
		return nil
	}
	s.ready = false
	s.enc.Close()
	s.dec.Close()
	return s.db.Close()
}

func chunkKey(coord vec.Vec3) []byte {
	return []byte(fmt.Sprintf("%s%d:%d:%d", chunkPrefix, coord.X, coord.Y, coord.Z))
}

// SaveChunk сохраняет байтовое представление чанка под его координатой.
func (s *ChunkStore) SaveChunk(coord vec.Vec3, chunk *tiling.Chunk) error {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if !s.ready {
		return ErrStoreClosed
	}

	compressed := s.enc.EncodeAll(chunk.Bytes(), nil)
	err := s.db.Update(func(txn *badger.Txn) error {
		return txn.Set(chunkKey(coord), compressed)
	})
	if err != nil {
		return fmt.Errorf("сохранение чанка (%d,%d,%d): %w", coord.X, coord.Y, coord.Z, err)
	}
	return nil
}

// SaveChunks сохраняет пачку чанков одной транзакцией.
func (s *ChunkStore) SaveChunks(chunks map[vec.Vec3]*tiling.Chunk) error {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if !s.ready {
		return ErrStoreClosed
	}

	err := s.db.Update(func(txn *badger.Txn) error {
		for coord, chunk := range chunks {
			compressed := s.enc.EncodeAll(chunk.Bytes(), nil)
			if err := txn.Set(chunkKey(coord), compressed); err != nil {
				return fmt.Errorf("чанк (%d,%d,%d): %w", coord.X, coord.Y, coord.Z, err)
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("сохранение пачки из %d чанков: %w", len(chunks), err)
	}
	return nil
}

// LoadChunk загружает чанк по координате. Отсутствие чанка не ошибка:
// возвращается nil.
func (s *ChunkStore) LoadChunk(coord vec.Vec3) (*tiling.Chunk, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if !s.ready {
		return nil, ErrStoreClosed
	}

	var raw []byte
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(chunkKey(coord))
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			raw = append([]byte{}, val...)
			return nil
		})
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("чтение чанка (%d,%d,%d): %w", coord.X, coord.Y, coord.Z, err)
	}

	plain, err := s.dec.DecodeAll(raw, nil)
	if err != nil {
		return nil, fmt.Errorf("распаковка чанка (%d,%d,%d): %w", coord.X, coord.Y, coord.Z, err)
	}
	chunk, err := tiling.ChunkFromBytes(plain)
	if err != nil {
		return nil, fmt.Errorf("разбор чанка (%d,%d,%d): %w", coord.X, coord.Y, coord.Z, err)
	}
	return chunk, nil
}

// DeleteChunk удаляет чанк из хранилища. Удаление отсутствующего ключа
// не ошибка.
func (s *ChunkStore) DeleteChunk(coord vec.Vec3) error {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if !s.ready {
		return ErrStoreClosed
	}

	err := s.db.Update(func(txn *badger.Txn) error {
		return txn.Delete(chunkKey(coord))
	})
	if err != nil {
		return fmt.Errorf("удаление чанка (%d,%d,%d): %w", coord.X, coord.Y, coord.Z, err)
	}
	return nil
}

// SaveDirty сохраняет все грязные чанки текущего цикла. Возвращает число
// сохранённых чанков.
func (s *ChunkStore) SaveDirty(r *tiling.Reader) (int, error) {
	saved := 0
	for coord := range r.DirtyCoords() {
		chunk := r.GetChunk(coord)
		if chunk == nil {
			continue
		}
		if err := s.SaveChunk(coord, chunk); err != nil {
			return saved, err
		}
		saved++
	}
	return saved, nil
}

// SaveCoords сохраняет чанки по списку координат. Чанк, исчезнувший из
// карты, удаляется и из хранилища.
func (s *ChunkStore) SaveCoords(r *tiling.Reader, coords []vec.Vec3) (int, error) {
	saved := 0
	for _, coord := range coords {
		chunk := r.GetChunk(coord)
		if chunk == nil {
			if err := s.DeleteChunk(coord); err != nil {
				return saved, err
			}
			continue
		}
		if err := s.SaveChunk(coord, chunk); err != nil {
			return saved, err
		}
		saved++
	}
	return saved, nil
}

// SaveAll сохраняет все чанки карты, независимо от пометок.
func (s *ChunkStore) SaveAll(r *tiling.Reader) (int, error) {
	saved := 0
	for coord := range r.ChunkCoords() {
		chunk := r.GetChunk(coord)
		if chunk == nil {
			continue
		}
		if err := s.SaveChunk(coord, chunk); err != nil {
			return saved, err
		}
		saved++
	}
	return saved, nil
}

// LoadAll загружает все сохранённые чанки в карту и помечает каждый
// целиком: для рантайма загруженный чанк новый. Возвращает число
// загруженных чанков.
func (s *ChunkStore) LoadAll(w *tiling.Writer) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if !s.ready {
		return 0, ErrStoreClosed
	}

	loaded := 0
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = []byte(chunkPrefix)
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Rewind(); it.Valid(); it.Next() {
			item := it.Item()
			key := string(item.Key())

			var x, y, z int
			if _, err := fmt.Sscanf(key, "chunk:%d:%d:%d", &x, &y, &z); err != nil {
				logging.Warn("Ключ с неожиданным форматом пропущен: %s", key)
				continue
			}

			var raw []byte
			if err := item.Value(func(val []byte) error {
				raw = append([]byte{}, val...)
				return nil
			}); err != nil {
				return err
			}

			plain, err := s.dec.DecodeAll(raw, nil)
			if err != nil {
				return fmt.Errorf("распаковка чанка %s: %w", key, err)
			}
			chunk, err := tiling.ChunkFromBytes(plain)
			if err != nil {
				return fmt.Errorf("разбор чанка %s: %w", key, err)
			}

			coord := vec.Vec3{X: x, Y: y, Z: z}
			*w.CreateChunk(coord) = *chunk
			w.MarkChunkDirty(coord)
			loaded++
		}
		return nil
	})
	return loaded, err
}

// Count возвращает число чанков в хранилище без чтения значений.
func (s *ChunkStore) Count() (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if !s.ready {
		return 0, ErrStoreClosed
	}

	count := 0
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = []byte(chunkPrefix)
		opts.PrefetchValues = false
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Rewind(); it.Valid(); it.Next() {
			count++
		}
		return nil
	})
	return count, err
}
