package blobstore

import (
	"context"
	"fmt"
	"io"

	"github.com/Gammanik/resumable-upload/internal/utils"
)

// ChunkDigester вычисляет SHA-256 собранного файла, читая чанки по порядку.
// Файл целиком в память не загружается.
type ChunkDigester struct {
	Store Store
}

// Digest возвращает контентный адрес "sha256:<hex>" конкатенации чанков 0..totalChunks-1
func (d ChunkDigester) Digest(ctx context.Context, uploadID string, totalChunks int) (string, error) {
	r := &sequentialReader{ctx: ctx, store: d.Store, uploadID: uploadID, total: totalChunks}
	defer r.Close()

	digest, err := utils.ContentDigest(r)
	if err != nil {
		return "", err
	}
	return digest, nil
}

// sequentialReader лениво открывает чанки один за другим
type sequentialReader struct {
	ctx      context.Context
	store    Store
	uploadID string
	total    int

	next    int
	current io.ReadCloser
}

func (r *sequentialReader) Read(p []byte) (int, error) {
	for {
		if r.current == nil {
			if r.next >= r.total {
				return 0, io.EOF
			}
			if err := r.ctx.Err(); err != nil {
				return 0, err
			}

			rc, err := r.store.Open(r.ctx, r.uploadID, r.total, r.next)
			if err != nil {
				return 0, fmt.Errorf("open chunk %d: %w", r.next, err)
			}
			r.current = rc
			r.next++
		}

		n, err := r.current.Read(p)
		if err == io.EOF {
			r.current.Close()
			r.current = nil
			if n > 0 {
				return n, nil
			}
			continue
		}
		return n, err
	}
}

func (r *sequentialReader) Close() error {
	if r.current != nil {
		err := r.current.Close()
		r.current = nil
		return err
	}
	return nil
}
