package blobstore

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
)

// DiskStore хранит чанки в локальной директории: <root>/<uploadID>/<totalChunks>/<index>.chunk
type DiskStore struct {
	root string
}

// NewDiskStore создает хранилище чанков на диске
func NewDiskStore(root string) (*DiskStore, error) {
	if err := os.MkdirAll(root, 0755); err != nil {
		return nil, fmt.Errorf("create storage directory: %w", err)
	}
	return &DiskStore{root: root}, nil
}

func (s *DiskStore) chunkPath(uploadID string, totalChunks, index int) string {
	return filepath.Join(s.root, uploadID, strconv.Itoa(totalChunks), strconv.Itoa(index)+".chunk")
}

// Put сохраняет чанк через временный файл и переименование,
// поэтому читатель никогда не видит частично записанный чанк
func (s *DiskStore) Put(_ context.Context, uploadID string, totalChunks, index int, data io.Reader) error {
	if err := ValidateKey(uploadID); err != nil {
		return err
	}

	chunkPath := s.chunkPath(uploadID, totalChunks, index)
	if err := os.MkdirAll(filepath.Dir(chunkPath), 0755); err != nil {
		return fmt.Errorf("create upload directory: %w", err)
	}

	// Создаем временный файл
	file, err := os.CreateTemp(filepath.Dir(chunkPath), filepath.Base(chunkPath)+".*.tmp")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpPath := file.Name()

	if _, err := io.Copy(file, data); err != nil {
		file.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("write chunk %d: %w", index, err)
	}
	if err := file.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("close chunk %d: %w", index, err)
	}

	// Переименовываем временный файл
	if err := os.Rename(tmpPath, chunkPath); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("rename chunk %d: %w", index, err)
	}

	return nil
}

// Open открывает чанк для чтения
func (s *DiskStore) Open(_ context.Context, uploadID string, totalChunks, index int) (io.ReadCloser, error) {
	if err := ValidateKey(uploadID); err != nil {
		return nil, err
	}

	file, err := os.Open(s.chunkPath(uploadID, totalChunks, index))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("%w: %s/%d", ErrNotFound, uploadID, index)
	}
	if err != nil {
		return nil, err
	}
	return file, nil
}

// Delete удаляет директорию загрузки
func (s *DiskStore) Delete(_ context.Context, uploadID string) error {
	if err := ValidateKey(uploadID); err != nil {
		return err
	}
	return os.RemoveAll(filepath.Join(s.root, uploadID))
}
