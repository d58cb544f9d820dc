package localstore

import (
	"context"
	"fmt"
	"sync"

	"github.com/beautystore/beautypos/domain"
)

// MemoryStore is an in-memory implementation of Store, Queue, MovementLog
// and Settings. It mirrors the durability contract's visibility rules
// (read-your-writes, linearized mutations) without touching disk, which
// makes it the store of choice for tests and throwaway terminals.
type MemoryStore struct {
	mu        sync.RWMutex
	records   map[domain.Collection][]Record
	queue     []domain.PendingOperation
	nextSeq   int64
	movements []domain.StockMovement
	settings  map[string]string
	closed    bool
}

var (
	_ Store       = (*MemoryStore)(nil)
	_ Queue       = (*MemoryStore)(nil)
	_ MovementLog = (*MemoryStore)(nil)
	_ Settings    = (*MemoryStore)(nil)
)

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		records:  make(map[domain.Collection][]Record),
		nextSeq:  1,
		settings: make(map[string]string),
	}
}

var errStoreClosed = fmt.Errorf("store is closed")

func (s *MemoryStore) Get(ctx context.Context, collection domain.Collection) ([]Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, errStoreClosed
	}

	records := make([]Record, len(s.records[collection]))
	copy(records, s.records[collection])
	return records, nil
}

func (s *MemoryStore) Put(ctx context.Context, record Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return errStoreClosed
	}

	s.put(record)
	return nil
}

func (s *MemoryStore) PutBatch(ctx context.Context, records []Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return errStoreClosed
	}

	for _, record := range records {
		s.put(record)
	}
	return nil
}

func (s *MemoryStore) put(record Record) {
	list := s.records[record.Collection]
	for i := range list {
		if list[i].ID == record.ID {
			list[i] = record
			return
		}
	}
	s.records[record.Collection] = append(list, record)
}

func (s *MemoryStore) Remove(ctx context.Context, collection domain.Collection, id string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return false, errStoreClosed
	}

	list := s.records[collection]
	for i := range list {
		if list[i].ID == id {
			s.records[collection] = append(list[:i:i], list[i+1:]...)
			return true, nil
		}
	}
	return false, nil
}

func (s *MemoryStore) SetSyncState(ctx context.Context, collection domain.Collection, id string, state domain.SyncState) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return errStoreClosed
	}

	list := s.records[collection]
	for i := range list {
		if list[i].ID == id {
			list[i].SyncState = state
			return nil
		}
	}
	return fmt.Errorf("record %s/%s not found", collection, id)
}

func (s *MemoryStore) Enqueue(ctx context.Context, op *domain.PendingOperation) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return errStoreClosed
	}

	op.Seq = s.nextSeq
	s.nextSeq++
	s.queue = append(s.queue, *op)
	return nil
}

func (s *MemoryStore) PeekAll(ctx context.Context) ([]domain.PendingOperation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, errStoreClosed
	}

	ops := make([]domain.PendingOperation, len(s.queue))
	copy(ops, s.queue)
	return ops, nil
}

func (s *MemoryStore) Dequeue(ctx context.Context, seq int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return errStoreClosed
	}

	for i := range s.queue {
		if s.queue[i].Seq == seq {
			s.queue = append(s.queue[:i:i], s.queue[i+1:]...)
			return nil
		}
	}
	return fmt.Errorf("pending operation %d not found", seq)
}

func (s *MemoryStore) IncrementAttempt(ctx context.Context, seq int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return errStoreClosed
	}

	for i := range s.queue {
		if s.queue[i].Seq == seq {
			s.queue[i].AttemptCount++
			return nil
		}
	}
	return fmt.Errorf("pending operation %d not found", seq)
}

func (s *MemoryStore) Count(ctx context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return 0, errStoreClosed
	}
	return len(s.queue), nil
}

func (s *MemoryStore) AppendMovement(ctx context.Context, movement domain.StockMovement) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return errStoreClosed
	}

	s.movements = append(s.movements, movement)
	return nil
}

func (s *MemoryStore) RecentMovements(ctx context.Context, limit int) ([]domain.StockMovement, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, errStoreClosed
	}

	if limit <= 0 || limit > len(s.movements) {
		limit = len(s.movements)
	}

	movements := make([]domain.StockMovement, 0, limit)
	for i := len(s.movements) - 1; i >= 0 && len(movements) < limit; i-- {
		movements = append(movements, s.movements[i])
	}
	return movements, nil
}

func (s *MemoryStore) GetSetting(ctx context.Context, key string) (string, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return "", false, errStoreClosed
	}

	value, ok := s.settings[key]
	return value, ok, nil
}

func (s *MemoryStore) PutSetting(ctx context.Context, key, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return errStoreClosed
	}

	s.settings[key] = value
	return nil
}

func (s *MemoryStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}
