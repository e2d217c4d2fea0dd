package uploader

import (
	"errors"
	"fmt"
)

// ErrIncomplete все чанки отправлены, но сервер не считает загрузку завершенной
var ErrIncomplete = errors.New("upload incomplete on server")

// ErrFileRejected файл не проходит ограничения Policy, сервер не вызывается
var ErrFileRejected = errors.New("file rejected by policy")

// ChunkUploadFailedError чанк не удалось отправить, загрузка прервана
type ChunkUploadFailedError struct {
	Index    int
	Attempts int
	Cause    error
}

func (e *ChunkUploadFailedError) Error() string {
	return fmt.Sprintf("chunk %d failed after %d attempt(s): %s", e.Index, e.Attempts, e.Cause)
}

func (e *ChunkUploadFailedError) Unwrap() error {
	return e.Cause
}
