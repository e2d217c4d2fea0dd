// Package tracker хранит состояние загрузок на сервере: какие чанки каждой загрузки уже получены.
package tracker

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/Gammanik/resumable-upload/internal/utils"
)

// DefaultShards количество шардов реестра по умолчанию
const DefaultShards = 32

var (
	// ErrNotFound загрузка с таким идентификатором неизвестна
	ErrNotFound = errors.New("upload not found")
	// ErrConflict клиент объявил другое количество чанков, чем у существующей загрузки
	ErrConflict = errors.New("total chunks mismatch")
	// ErrNotReady загрузка еще не завершена
	ErrNotReady = errors.New("upload is not complete")
	// ErrInvalidChunk некорректный идентификатор, индекс или количество чанков
	ErrInvalidChunk = errors.New("invalid chunk")
)

// Digester вычисляет контентный адрес полностью собранного файла
type Digester interface {
	Digest(ctx context.Context, uploadID string, totalChunks int) (string, error)
}

// Progress результат записи чанка
type Progress struct {
	UploadID    string
	Received    int
	TotalChunks int
	Complete    bool
}

// Metadata снимок состояния загрузки
type Metadata struct {
	UploadID       string
	UploadedChunks []int
	TotalChunks    int
	Complete       bool
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

type session struct {
	mu          sync.Mutex
	totalChunks int
	received    map[int]struct{}
	checksum    string
	deleted     bool
	createdAt   time.Time
	updatedAt   time.Time
}

func (s *session) complete() bool {
	return len(s.received) == s.totalChunks
}

type shard struct {
	mu       sync.RWMutex
	sessions map[string]*session
}

// Tracker потокобезопасный реестр загрузок.
// Реестр разбит на шарды по хешу идентификатора, у каждой загрузки свой мьютекс,
// поэтому записи в разные загрузки не блокируют друг друга.
type Tracker struct {
	shards   []*shard
	digester Digester
	now      func() time.Time
}

// Option настраивает Tracker
type Option func(*Tracker)

// WithShards задает количество шардов реестра
func WithShards(n int) Option {
	return func(t *Tracker) {
		if n > 0 {
			t.shards = newShards(n)
		}
	}
}

// WithClock подменяет источник времени
func WithClock(now func() time.Time) Option {
	return func(t *Tracker) {
		t.now = now
	}
}

// New создает пустой реестр загрузок
func New(digester Digester, opts ...Option) *Tracker {
	t := &Tracker{
		shards:   newShards(DefaultShards),
		digester: digester,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

func newShards(n int) []*shard {
	shards := make([]*shard, n)
	for i := range shards {
		shards[i] = &shard{sessions: make(map[string]*session)}
	}
	return shards
}

func (t *Tracker) shardFor(uploadID string) *shard {
	return t.shards[utils.ShardFor(uploadID, len(t.shards))]
}

func (t *Tracker) lookup(uploadID string) *session {
	sh := t.shardFor(uploadID)
	sh.mu.RLock()
	defer sh.mu.RUnlock()
	return sh.sessions[uploadID]
}

func (t *Tracker) getOrCreate(uploadID string, totalChunks int) *session {
	sh := t.shardFor(uploadID)

	sh.mu.Lock()
	defer sh.mu.Unlock()

	if s, ok := sh.sessions[uploadID]; ok {
		return s
	}

	now := t.now()
	s := &session{
		totalChunks: totalChunks,
		received:    make(map[int]struct{}, totalChunks),
		createdAt:   now,
		updatedAt:   now,
	}
	sh.sessions[uploadID] = s
	return s
}

func validate(uploadID string, chunkIndex, totalChunks int) error {
	if uploadID == "" {
		return fmt.Errorf("%w: empty upload id", ErrInvalidChunk)
	}
	if totalChunks < 1 {
		return fmt.Errorf("%w: total chunks must be at least 1, got %d", ErrInvalidChunk, totalChunks)
	}
	if chunkIndex < 0 || chunkIndex >= totalChunks {
		return fmt.Errorf("%w: chunk index %d out of range [0, %d)", ErrInvalidChunk, chunkIndex, totalChunks)
	}
	return nil
}

// Expect проверяет, что новый чанк не конфликтует с существующей загрузкой.
// Состояние не меняется.
func (t *Tracker) Expect(uploadID string, totalChunks int) error {
	if err := validate(uploadID, 0, totalChunks); err != nil {
		return err
	}

	s := t.lookup(uploadID)
	if s == nil {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.deleted && s.totalChunks != totalChunks {
		return fmt.Errorf("%w: upload %s expects %d chunks, got %d", ErrConflict, uploadID, s.totalChunks, totalChunks)
	}
	return nil
}

// Received сообщает, получен ли уже чанк, и возвращает текущий прогресс загрузки.
// Состояние не меняется.
func (t *Tracker) Received(uploadID string, chunkIndex, totalChunks int) (Progress, bool) {
	s := t.lookup(uploadID)
	if s == nil {
		return Progress{}, false
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.deleted || s.totalChunks != totalChunks {
		return Progress{}, false
	}
	if _, ok := s.received[chunkIndex]; !ok {
		return Progress{}, false
	}

	return Progress{
		UploadID:    uploadID,
		Received:    len(s.received),
		TotalChunks: s.totalChunks,
		Complete:    s.complete(),
	}, true
}

// RecordChunk отмечает чанк как полученный.
// Неизвестная загрузка создается, повторный чанк ничего не меняет.
func (t *Tracker) RecordChunk(uploadID string, chunkIndex, totalChunks int) (Progress, error) {
	if err := validate(uploadID, chunkIndex, totalChunks); err != nil {
		return Progress{}, err
	}

	for {
		s := t.getOrCreate(uploadID, totalChunks)

		s.mu.Lock()
		if s.deleted {
			// загрузку удалили между поиском и блокировкой, создаем заново
			s.mu.Unlock()
			continue
		}

		if s.totalChunks != totalChunks {
			expected := s.totalChunks
			s.mu.Unlock()
			return Progress{}, fmt.Errorf("%w: upload %s expects %d chunks, got %d", ErrConflict, uploadID, expected, totalChunks)
		}

		s.received[chunkIndex] = struct{}{}
		s.updatedAt = t.now()

		p := Progress{
			UploadID:    uploadID,
			Received:    len(s.received),
			TotalChunks: s.totalChunks,
			Complete:    s.complete(),
		}
		s.mu.Unlock()

		return p, nil
	}
}

// Metadata возвращает состояние загрузки
func (t *Tracker) Metadata(uploadID string) (Metadata, error) {
	s := t.lookup(uploadID)
	if s == nil {
		return Metadata{}, fmt.Errorf("%w: %s", ErrNotFound, uploadID)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.deleted {
		return Metadata{}, fmt.Errorf("%w: %s", ErrNotFound, uploadID)
	}

	chunks := make([]int, 0, len(s.received))
	for idx := range s.received {
		chunks = append(chunks, idx)
	}
	sort.Ints(chunks)

	return Metadata{
		UploadID:       uploadID,
		UploadedChunks: chunks,
		TotalChunks:    s.totalChunks,
		Complete:       s.complete(),
		CreatedAt:      s.createdAt,
		UpdatedAt:      s.updatedAt,
	}, nil
}

// Checksum возвращает контентный адрес завершенной загрузки.
// Для незавершенной загрузки возвращается ErrNotReady.
func (t *Tracker) Checksum(ctx context.Context, uploadID string) (string, error) {
	s := t.lookup(uploadID)
	if s == nil {
		return "", fmt.Errorf("%w: %s", ErrNotFound, uploadID)
	}

	s.mu.Lock()
	if s.deleted {
		s.mu.Unlock()
		return "", fmt.Errorf("%w: %s", ErrNotFound, uploadID)
	}
	if !s.complete() {
		received, total := len(s.received), s.totalChunks
		s.mu.Unlock()
		return "", fmt.Errorf("%w: %s has %d of %d chunks", ErrNotReady, uploadID, received, total)
	}
	if s.checksum != "" {
		checksum := s.checksum
		s.mu.Unlock()
		return checksum, nil
	}
	total := s.totalChunks
	s.mu.Unlock()

	checksum, err := t.digester.Digest(ctx, uploadID, total)
	if err != nil {
		return "", fmt.Errorf("digest upload %s: %w", uploadID, err)
	}

	s.mu.Lock()
	if !s.deleted {
		s.checksum = checksum
	}
	s.mu.Unlock()

	return checksum, nil
}

// Delete удаляет загрузку. Повторное удаление не является ошибкой.
func (t *Tracker) Delete(uploadID string) {
	sh := t.shardFor(uploadID)

	sh.mu.Lock()
	s, ok := sh.sessions[uploadID]
	delete(sh.sessions, uploadID)
	sh.mu.Unlock()

	if !ok {
		return
	}

	s.mu.Lock()
	s.deleted = true
	s.mu.Unlock()
}

// Sweep удаляет загрузки, которые не обновлялись дольше maxIdle, и возвращает их идентификаторы
func (t *Tracker) Sweep(maxIdle time.Duration) []string {
	cutoff := t.now().Add(-maxIdle)

	var removed []string
	for _, sh := range t.shards {
		sh.mu.Lock()
		for id, s := range sh.sessions {
			s.mu.Lock()
			if s.updatedAt.Before(cutoff) {
				s.deleted = true
				delete(sh.sessions, id)
				removed = append(removed, id)
			}
			s.mu.Unlock()
		}
		sh.mu.Unlock()
	}

	sort.Strings(removed)
	return removed
}

// Len возвращает количество активных загрузок
func (t *Tracker) Len() int {
	n := 0
	for _, sh := range t.shards {
		sh.mu.RLock()
		n += len(sh.sessions)
		sh.mu.RUnlock()
	}
	return n
}
