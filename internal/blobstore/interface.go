// Package blobstore хранит байты полученных чанков и вычисляет контентный адрес собранного файла.
package blobstore

import (
	"context"
	"errors"
	"fmt"
	"io"
	"regexp"
)

var (
	// ErrNotFound чанк не найден в хранилище
	ErrNotFound = errors.New("chunk not found")
	// ErrInvalidKey идентификатор загрузки нельзя использовать как ключ хранилища
	ErrInvalidKey = errors.New("invalid upload id")
)

var keyPattern = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9._-]{0,127}$`)

// Store интерфейс хранилища чанков.
// Чанк адресуется тройкой (uploadID, totalChunks, index), поэтому загрузки
// с разным объявленным количеством чанков не перезаписывают друг друга.
type Store interface {
	// Put сохраняет чанк, повторная запись заменяет предыдущую
	Put(ctx context.Context, uploadID string, totalChunks, index int, data io.Reader) error

	// Open открывает чанк для чтения
	Open(ctx context.Context, uploadID string, totalChunks, index int) (io.ReadCloser, error)

	// Delete удаляет все чанки загрузки, отсутствие загрузки не является ошибкой
	Delete(ctx context.Context, uploadID string) error
}

// ValidateKey проверяет, что идентификатор загрузки безопасен как ключ хранилища
func ValidateKey(uploadID string) error {
	if !keyPattern.MatchString(uploadID) {
		return fmt.Errorf("%w: %q", ErrInvalidKey, uploadID)
	}
	return nil
}
