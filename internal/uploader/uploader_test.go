package uploader

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/Gammanik/resumable-upload/internal/chunker"
	"github.com/Gammanik/resumable-upload/internal/resume"
	"github.com/Gammanik/resumable-upload/internal/transport"
	"github.com/bitrise-io/go-utils/v2/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var errNetwork = fmt.Errorf("%w: connection reset", transport.ErrTransient)

// fakeServer реализация transport.Client в памяти
type fakeServer struct {
	mu        sync.Mutex
	attempts  map[int]int
	received  map[int][]byte
	total     int
	failures  map[int]int     // сколько первых попыток чанка завершаются ошибкой
	failWith  map[int]error   // ошибка для чанка вместо errNetwork
	onAttempt func(index int) // вызывается перед обработкой попытки
	metadata  func() *transport.Metadata
}

func newFakeServer() *fakeServer {
	return &fakeServer{
		attempts: map[int]int{},
		received: map[int][]byte{},
		failures: map[int]int{},
		failWith: map[int]error{},
	}
}

func (s *fakeServer) UploadChunk(ctx context.Context, chunk transport.ChunkRequest) (*transport.ChunkAck, error) {
	if s.onAttempt != nil {
		s.onAttempt(chunk.Index)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.attempts[chunk.Index]++
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("%w: %w", transport.ErrTransient, err)
	}
	if s.attempts[chunk.Index] <= s.failures[chunk.Index] {
		if err, ok := s.failWith[chunk.Index]; ok {
			return nil, err
		}
		return nil, errNetwork
	}

	s.total = chunk.TotalChunks
	s.received[chunk.Index] = append([]byte(nil), chunk.Data...)
	return &transport.ChunkAck{UploadedChunks: len(s.received), TotalChunks: chunk.TotalChunks}, nil
}

func (s *fakeServer) Metadata(_ context.Context, uploadID string) (*transport.Metadata, error) {
	if s.metadata != nil {
		return s.metadata(), nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	chunks := make([]int, 0, len(s.received))
	for idx := range s.received {
		chunks = append(chunks, idx)
	}
	sort.Ints(chunks)
	return &transport.Metadata{
		UploadID:       uploadID,
		UploadedChunks: chunks,
		TotalChunks:    s.total,
		Complete:       len(chunks) == s.total,
	}, nil
}

func (s *fakeServer) Checksum(context.Context, string) (string, error) {
	return "sha256:fake", nil
}

func (s *fakeServer) Delete(context.Context, string) error {
	return nil
}

func (s *fakeServer) attemptsFor(index int) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.attempts[index]
}

func (s *fakeServer) attempted() []int {
	s.mu.Lock()
	defer s.mu.Unlock()

	var indices []int
	for idx := range s.attempts {
		indices = append(indices, idx)
	}
	sort.Ints(indices)
	return indices
}

func testConfig(chunkSize int64) Config {
	cfg := DefaultConfig()
	cfg.ChunkSize = chunkSize
	cfg.RetryDelay = time.Millisecond
	cfg.AttemptTimeout = time.Second
	return cfg
}

func newUploader(server transport.Client, store resume.Store, cfg Config) *Uploader {
	return &Uploader{
		Transport: server,
		Resume:    store,
		Logger:    log.NewLogger(),
		Config:    cfg,
	}
}

func testFile(id string, size int) File {
	data := bytes.Repeat([]byte("0123456789"), size/10+1)[:size]
	return File{UploadID: id, Name: "file.bin", Size: int64(size), Source: bytes.NewReader(data)}
}

func TestUpload_AllChunks(t *testing.T) {
	server := newFakeServer()
	store := resume.NewMemoryStore()
	f := testFile("up-1", 12_000)

	result, err := newUploader(server, store, testConfig(5_000)).Upload(context.Background(), f)
	require.NoError(t, err)

	assert.Equal(t, 3, result.TotalChunks)
	assert.Equal(t, 3, result.Sent)
	assert.Equal(t, 0, result.Skipped)
	assert.Equal(t, []int{0, 1, 2}, result.UploadedChunks)
	assert.Equal(t, "sha256:fake", result.Checksum)

	assert.Len(t, server.received[0], 5_000)
	assert.Len(t, server.received[1], 5_000)
	assert.Len(t, server.received[2], 2_000)

	// завершенная загрузка не требует продолжения
	_, err = store.Load("up-1")
	assert.ErrorIs(t, err, resume.ErrNotFound)
}

func TestUpload_ResumesFromRecord(t *testing.T) {
	server := newFakeServer()
	for i := 0; i < 3; i++ {
		server.received[i] = []byte("prev")
	}

	store := resume.NewMemoryStore()
	require.NoError(t, store.Save(resume.Record{
		UploadID:    "up-2",
		FileSize:    5_000,
		ChunkSize:   1_000,
		TotalChunks: 5,
		Confirmed:   []int{0, 1, 2},
	}))

	result, err := newUploader(server, store, testConfig(1_000)).Upload(context.Background(), testFile("up-2", 5_000))
	require.NoError(t, err)

	assert.Equal(t, []int{3, 4}, server.attempted())
	assert.Equal(t, 3, result.Skipped)
	assert.Equal(t, 2, result.Sent)
}

func TestUpload_StaleRecordStartsOver(t *testing.T) {
	server := newFakeServer()
	store := resume.NewMemoryStore()
	require.NoError(t, store.Save(resume.Record{
		UploadID:    "up-3",
		FileSize:    9_999,
		ChunkSize:   1_000,
		TotalChunks: 10,
		Confirmed:   []int{0, 1},
	}))

	_, err := newUploader(server, store, testConfig(1_000)).Upload(context.Background(), testFile("up-3", 3_000))
	require.NoError(t, err)
	assert.Equal(t, []int{0, 1, 2}, server.attempted())
}

func TestUpload_RetriesTransientFailures(t *testing.T) {
	server := newFakeServer()
	server.failures[1] = 2

	var outcomes []Outcome
	u := newUploader(server, resume.NewMemoryStore(), testConfig(1_000))
	u.OnOutcome = func(o Outcome) { outcomes = append(outcomes, o) }

	_, err := u.Upload(context.Background(), testFile("up-4", 2_000))
	require.NoError(t, err)

	assert.Equal(t, 3, server.attemptsFor(1))
	assert.Equal(t, 1, server.attemptsFor(0))

	require.Len(t, outcomes, 2)
	for _, o := range outcomes {
		assert.True(t, o.Acknowledged)
		if o.Index == 1 {
			assert.Equal(t, 3, o.Attempts)
		}
	}
}

func TestUpload_RetryBudgetExhausted(t *testing.T) {
	server := newFakeServer()
	server.failures[2] = 3

	cfg := testConfig(1_000)
	cfg.Concurrency = 1
	store := resume.NewMemoryStore()

	_, err := newUploader(server, store, cfg).Upload(context.Background(), testFile("up-5", 5_000))
	require.Error(t, err)

	var failed *ChunkUploadFailedError
	require.True(t, errors.As(err, &failed))
	assert.Equal(t, 2, failed.Index)
	assert.Equal(t, 3, failed.Attempts)
	assert.ErrorIs(t, err, transport.ErrTransient)
	assert.Equal(t, 3, server.attemptsFor(2))

	// после сбоя новые чанки не отправляются
	assert.Equal(t, 0, server.attemptsFor(3))
	assert.Equal(t, 0, server.attemptsFor(4))

	// подтвержденные чанки остаются в записи
	record, err := store.Load("up-5")
	require.NoError(t, err)
	assert.Equal(t, []int{0, 1}, record.Confirmed)
}

func TestUpload_ConflictIsNotRetried(t *testing.T) {
	server := newFakeServer()
	server.failures[0] = 1
	server.failWith[0] = &transport.StatusError{StatusCode: 409, Code: "conflict", Kind: transport.ErrConflict}

	_, err := newUploader(server, resume.NewMemoryStore(), testConfig(1_000)).Upload(context.Background(), testFile("up-6", 1_000))
	require.Error(t, err)

	assert.ErrorIs(t, err, transport.ErrConflict)
	var failed *ChunkUploadFailedError
	require.True(t, errors.As(err, &failed))
	assert.Equal(t, 1, failed.Attempts)
	assert.Equal(t, 1, server.attemptsFor(0))
}

func TestUpload_UnauthorizedIsNotRetried(t *testing.T) {
	server := newFakeServer()
	server.failures[0] = 5
	server.failWith[0] = &transport.StatusError{StatusCode: 403, Kind: transport.ErrUnauthorized}

	_, err := newUploader(server, resume.NewMemoryStore(), testConfig(1_000)).Upload(context.Background(), testFile("up-7", 1_000))
	assert.ErrorIs(t, err, transport.ErrUnauthorized)
	assert.Equal(t, 1, server.attemptsFor(0))
}

func TestUpload_Cancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	server := newFakeServer()
	server.onAttempt = func(index int) {
		if index == 1 {
			cancel()
		}
	}

	cfg := testConfig(1_000)
	cfg.Concurrency = 1
	store := resume.NewMemoryStore()

	_, err := newUploader(server, store, cfg).Upload(ctx, testFile("up-8", 4_000))
	assert.ErrorIs(t, err, context.Canceled)

	assert.Equal(t, 0, server.attemptsFor(2))
	assert.Equal(t, 0, server.attemptsFor(3))

	record, err := store.Load("up-8")
	require.NoError(t, err)
	assert.Equal(t, []int{0}, record.Confirmed)
}

func TestUpload_ServerLostChunks(t *testing.T) {
	server := newFakeServer()
	server.metadata = func() *transport.Metadata {
		return &transport.Metadata{UploadID: "up-9", UploadedChunks: []int{0}, TotalChunks: 2}
	}
	store := resume.NewMemoryStore()

	_, err := newUploader(server, store, testConfig(1_000)).Upload(context.Background(), testFile("up-9", 2_000))
	assert.ErrorIs(t, err, ErrIncomplete)

	record, err := store.Load("up-9")
	require.NoError(t, err)
	assert.Equal(t, []int{0}, record.Confirmed)
}

func TestUpload_EmptyFile(t *testing.T) {
	server := newFakeServer()

	result, err := newUploader(server, resume.NewMemoryStore(), testConfig(1_000)).Upload(context.Background(), testFile("empty", 0))
	require.NoError(t, err)
	assert.Equal(t, 1, result.TotalChunks)
	assert.Equal(t, []int{0}, server.attempted())
	assert.Empty(t, server.received[0])
}

func TestUpload_InvalidConfig(t *testing.T) {
	cfg := testConfig(0)

	_, err := newUploader(newFakeServer(), resume.NewMemoryStore(), cfg).Upload(context.Background(), testFile("x", 10))
	assert.ErrorIs(t, err, chunker.ErrInvalidConfiguration)
}

func TestConfig_Validate(t *testing.T) {
	assert.NoError(t, DefaultConfig().Validate())

	for name, mutate := range map[string]func(*Config){
		"attempts":    func(c *Config) { c.MaxAttempts = 0 },
		"concurrency": func(c *Config) { c.Concurrency = 0 },
		"delay":       func(c *Config) { c.RetryDelay = -time.Second },
		"timeout":     func(c *Config) { c.AttemptTimeout = 0 },
	} {
		cfg := DefaultConfig()
		mutate(&cfg)
		assert.ErrorIs(t, cfg.Validate(), chunker.ErrInvalidConfiguration, name)
	}
}

// failingConfirmStore теряет подтверждения чанков
type failingConfirmStore struct {
	*resume.MemoryStore
}

func (failingConfirmStore) Confirm(string, int) error {
	return errors.New("disk full")
}

func TestUpload_ConfirmFailureReported(t *testing.T) {
	server := newFakeServer()

	var outcomes []Outcome
	u := newUploader(server, failingConfirmStore{resume.NewMemoryStore()}, testConfig(1_000))
	u.OnOutcome = func(o Outcome) { outcomes = append(outcomes, o) }

	_, err := u.Upload(context.Background(), testFile("up-10", 1_000))
	require.NoError(t, err)

	require.Len(t, outcomes, 1)
	assert.True(t, outcomes[0].Acknowledged)
	assert.ErrorContains(t, outcomes[0].Err, "disk full")
}

func TestUpload_PolicyRejectsOversizeFile(t *testing.T) {
	server := newFakeServer()
	cfg := testConfig(1_000)
	cfg.Policy = Policy{MaxFileSize: 2_000}

	_, err := newUploader(server, resume.NewMemoryStore(), cfg).Upload(context.Background(), testFile("big", 2_001))
	assert.ErrorIs(t, err, ErrFileRejected)
	assert.Empty(t, server.attempted())
}

func TestUpload_PolicyRejectsType(t *testing.T) {
	server := newFakeServer()
	cfg := testConfig(1_000)
	cfg.Policy = DefaultPolicy()

	_, err := newUploader(server, resume.NewMemoryStore(), cfg).Upload(context.Background(), testFile("text", 3_000))
	assert.ErrorIs(t, err, ErrFileRejected)
	assert.Empty(t, server.attempted())
}

func TestUpload_PolicyAcceptsPNG(t *testing.T) {
	server := newFakeServer()
	cfg := testConfig(1_000)
	cfg.Policy = DefaultPolicy()

	data := append([]byte("\x89PNG\x0D\x0A\x1A\x0A"), bytes.Repeat([]byte{0}, 1_500)...)
	f := File{UploadID: "png", Name: "image.png", Size: int64(len(data)), Source: bytes.NewReader(data)}

	_, err := newUploader(server, resume.NewMemoryStore(), cfg).Upload(context.Background(), f)
	require.NoError(t, err)
	assert.Equal(t, []int{0, 1}, server.attempted())
}

func TestDetectType(t *testing.T) {
	tests := []struct {
		name string
		data string
		want string
	}{
		{name: "pdf", data: "%PDF-1.7\n...", want: "application/pdf"},
		{name: "png", data: "\x89PNG\x0D\x0A\x1A\x0A", want: "image/png"},
		{name: "text", data: "hello", want: "text/plain"},
		{name: "empty", data: "", want: "text/plain"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := DetectType(strings.NewReader(tt.data), int64(len(tt.data)))
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}
