// Package chunker разбивает файл на упорядоченные чанки фиксированного размера.
package chunker

import (
	"errors"
	"fmt"
	"io"
)

// ErrInvalidConfiguration возвращается при недопустимом размере чанка или файла
var ErrInvalidConfiguration = errors.New("invalid configuration")

// Descriptor описывает один чанк файла
type Descriptor struct {
	Index  int   // Порядковый номер чанка, начиная с 0
	Offset int64 // Смещение первого байта чанка в файле
	Length int64 // Длина чанка в байтах
}

// End возвращает смещение сразу за последним байтом чанка
func (d Descriptor) End() int64 {
	return d.Offset + d.Length
}

// Count возвращает количество чанков для файла указанного размера.
// Пустой файл всегда состоит из одного пустого чанка.
func Count(fileSize, chunkSize int64) (int, error) {
	if chunkSize <= 0 {
		return 0, fmt.Errorf("%w: chunk size must be positive, got %d", ErrInvalidConfiguration, chunkSize)
	}
	if fileSize < 0 {
		return 0, fmt.Errorf("%w: file size must not be negative, got %d", ErrInvalidConfiguration, fileSize)
	}
	if fileSize == 0 {
		return 1, nil
	}
	return int((fileSize + chunkSize - 1) / chunkSize), nil
}

// Plan строит упорядоченный план чанков для файла
func Plan(fileSize, chunkSize int64) ([]Descriptor, error) {
	count, err := Count(fileSize, chunkSize)
	if err != nil {
		return nil, err
	}

	plan := make([]Descriptor, 0, count)
	for i := 0; i < count; i++ {
		offset := int64(i) * chunkSize
		length := chunkSize
		if offset+length > fileSize {
			length = fileSize - offset
		}
		plan = append(plan, Descriptor{Index: i, Offset: offset, Length: length})
	}

	return plan, nil
}

// Slice читает байты чанка из источника.
// Чтение идет через ReadAt, поэтому повторные и параллельные вызовы не влияют друг на друга.
func Slice(src io.ReaderAt, d Descriptor) ([]byte, error) {
	if d.Length < 0 || d.Offset < 0 {
		return nil, fmt.Errorf("%w: bad descriptor %+v", ErrInvalidConfiguration, d)
	}

	buf := make([]byte, d.Length)
	if d.Length == 0 {
		return buf, nil
	}

	n, err := src.ReadAt(buf, d.Offset)
	if n == len(buf) {
		// io.ReaderAt может вернуть io.EOF вместе с последними байтами
		return buf, nil
	}
	if err == nil || errors.Is(err, io.EOF) {
		err = io.ErrUnexpectedEOF
	}

	return nil, fmt.Errorf("read chunk %d at offset %d: %w", d.Index, d.Offset, err)
}
