package uploader

import (
	"fmt"
	"time"

	"github.com/Gammanik/resumable-upload/internal/chunker"
)

const (
	DefaultChunkSize      int64 = 5_000_000
	DefaultMaxAttempts          = 3
	DefaultRetryDelay           = time.Second
	DefaultConcurrency          = 4
	DefaultAttemptTimeout       = 60 * time.Second
)

// Config параметры загрузки
type Config struct {
	ChunkSize      int64         // Размер чанка в байтах
	MaxAttempts    int           // Количество попыток отправки одного чанка
	RetryDelay     time.Duration // Пауза между попытками
	Concurrency    int           // Сколько чанков отправляется одновременно
	AttemptTimeout time.Duration // Ограничение времени одной попытки
	Policy         Policy        // Ограничения на загружаемый файл
}

// Policy ограничения на файл, проверяемые до обращения к серверу.
// Нулевые значения ничего не ограничивают.
type Policy struct {
	MaxFileSize  int64    // Максимальный размер файла в байтах
	AllowedTypes []string // Допустимые MIME типы, определяемые по содержимому
}

// DefaultPolicy допускает PDF и PNG размером до 100MB
func DefaultPolicy() Policy {
	return Policy{
		MaxFileSize:  100_000_000,
		AllowedTypes: []string{"application/pdf", "image/png"},
	}
}

// DefaultConfig возвращает конфигурацию по умолчанию
func DefaultConfig() Config {
	return Config{
		ChunkSize:      DefaultChunkSize,
		MaxAttempts:    DefaultMaxAttempts,
		RetryDelay:     DefaultRetryDelay,
		Concurrency:    DefaultConcurrency,
		AttemptTimeout: DefaultAttemptTimeout,
	}
}

// Validate проверяет конфигурацию
func (c Config) Validate() error {
	switch {
	case c.ChunkSize <= 0:
		return fmt.Errorf("%w: chunk size must be positive, got %d", chunker.ErrInvalidConfiguration, c.ChunkSize)
	case c.MaxAttempts < 1:
		return fmt.Errorf("%w: max attempts must be at least 1, got %d", chunker.ErrInvalidConfiguration, c.MaxAttempts)
	case c.RetryDelay < 0:
		return fmt.Errorf("%w: retry delay must not be negative, got %s", chunker.ErrInvalidConfiguration, c.RetryDelay)
	case c.Concurrency < 1:
		return fmt.Errorf("%w: concurrency must be at least 1, got %d", chunker.ErrInvalidConfiguration, c.Concurrency)
	case c.AttemptTimeout <= 0:
		return fmt.Errorf("%w: attempt timeout must be positive, got %s", chunker.ErrInvalidConfiguration, c.AttemptTimeout)
	case c.Policy.MaxFileSize < 0:
		return fmt.Errorf("%w: max file size must not be negative, got %d", chunker.ErrInvalidConfiguration, c.Policy.MaxFileSize)
	}
	return nil
}
