package resume

import (
	"fmt"
	"sync"
	"time"
)

// MemoryStore хранит записи в памяти процесса
type MemoryStore struct {
	mu      sync.Mutex
	records map[string]Record
}

// NewMemoryStore создает пустое хранилище
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{records: make(map[string]Record)}
}

func (s *MemoryStore) Load(uploadID string) (*Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	record, ok := s.records[uploadID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, uploadID)
	}
	record.Confirmed = append([]int(nil), record.Confirmed...)
	return &record, nil
}

func (s *MemoryStore) Save(record Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	record.Confirmed = normalize(record.Confirmed)
	record.UpdatedAt = time.Now()
	s.records[record.UploadID] = record
	return nil
}

func (s *MemoryStore) Confirm(uploadID string, index int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	record, ok := s.records[uploadID]
	if !ok {
		return fmt.Errorf("%w: %s", ErrNotFound, uploadID)
	}
	record.Confirmed = append([]int(nil), record.Confirmed...)
	record.confirm(index)
	record.UpdatedAt = time.Now()
	s.records[uploadID] = record
	return nil
}

func (s *MemoryStore) Delete(uploadID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.records, uploadID)
	return nil
}

func (s *MemoryStore) Close() error {
	return nil
}
