package blobstore

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"sync"
)

type memoryKey struct {
	totalChunks int
	index       int
}

// MemoryStore хранит чанки в памяти процесса
type MemoryStore struct {
	mu      sync.RWMutex
	uploads map[string]map[memoryKey][]byte
}

// NewMemoryStore создает пустое хранилище в памяти
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{uploads: make(map[string]map[memoryKey][]byte)}
}

// Put сохраняет копию чанка
func (s *MemoryStore) Put(_ context.Context, uploadID string, totalChunks, index int, data io.Reader) error {
	if err := ValidateKey(uploadID); err != nil {
		return err
	}

	b, err := io.ReadAll(data)
	if err != nil {
		return fmt.Errorf("read chunk %d: %w", index, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	chunks, ok := s.uploads[uploadID]
	if !ok {
		chunks = make(map[memoryKey][]byte)
		s.uploads[uploadID] = chunks
	}
	chunks[memoryKey{totalChunks: totalChunks, index: index}] = b

	return nil
}

// Open возвращает reader поверх сохраненной копии
func (s *MemoryStore) Open(_ context.Context, uploadID string, totalChunks, index int) (io.ReadCloser, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	b, ok := s.uploads[uploadID][memoryKey{totalChunks: totalChunks, index: index}]
	if !ok {
		return nil, fmt.Errorf("%w: %s/%d", ErrNotFound, uploadID, index)
	}
	return io.NopCloser(bytes.NewReader(b)), nil
}

// Delete удаляет все чанки загрузки
func (s *MemoryStore) Delete(_ context.Context, uploadID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.uploads, uploadID)
	return nil
}
