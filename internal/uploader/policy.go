package uploader

import (
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/docker/go-units"
)

// sniffLen столько байт читает http.DetectContentType
const sniffLen = 512

// Check проверяет размер и тип файла
func (p Policy) Check(f File) error {
	if p.MaxFileSize > 0 && f.Size > p.MaxFileSize {
		return fmt.Errorf("%w: %s is %s, limit is %s", ErrFileRejected, f.Name,
			units.HumanSize(float64(f.Size)), units.HumanSize(float64(p.MaxFileSize)))
	}
	if len(p.AllowedTypes) == 0 {
		return nil
	}

	contentType, err := DetectType(f.Source, f.Size)
	if err != nil {
		return err
	}
	for _, allowed := range p.AllowedTypes {
		if strings.EqualFold(strings.TrimSpace(allowed), contentType) {
			return nil
		}
	}
	return fmt.Errorf("%w: %s has type %s, allowed: %s", ErrFileRejected, f.Name,
		contentType, strings.Join(p.AllowedTypes, ", "))
}

// DetectType определяет MIME тип по первым байтам содержимого, без параметров
func DetectType(src io.ReaderAt, size int64) (string, error) {
	head := make([]byte, min(size, sniffLen))
	n, err := src.ReadAt(head, 0)
	if err != nil && err != io.EOF {
		return "", fmt.Errorf("read file header: %w", err)
	}

	mediaType, _, _ := strings.Cut(http.DetectContentType(head[:n]), ";")
	return strings.TrimSpace(mediaType), nil
}
