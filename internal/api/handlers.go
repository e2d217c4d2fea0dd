package api

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/Gammanik/resumable-upload/internal/blobstore"
	"github.com/Gammanik/resumable-upload/internal/tracker"
	"github.com/Gammanik/resumable-upload/internal/utils"
	"github.com/bitrise-io/go-utils/v2/log"
	"github.com/docker/go-units"
	"github.com/gorilla/mux"
)

// DefaultMaxChunkSize максимальный размер чанка по умолчанию
const DefaultMaxChunkSize int64 = 64 << 20

// Запас на поля формы и заголовки multipart сверх размера чанка
const multipartOverhead int64 = 1 << 20

// Tracker интерфейс реестра загрузок, который использует API
type Tracker interface {
	Expect(uploadID string, totalChunks int) error
	Received(uploadID string, chunkIndex, totalChunks int) (tracker.Progress, bool)
	RecordChunk(uploadID string, chunkIndex, totalChunks int) (tracker.Progress, error)
	Metadata(uploadID string) (tracker.Metadata, error)
	Checksum(ctx context.Context, uploadID string) (string, error)
	Delete(uploadID string)
	Sweep(maxIdle time.Duration) []string
}

// FileHandler обрабатывает запросы загрузки чанков
type FileHandler struct {
	Tracker      Tracker
	Chunks       blobstore.Store
	Logger       log.Logger
	MaxChunkSize int64
}

// UploadChunk принимает один чанк загрузки
func (h *FileHandler) UploadChunk(w http.ResponseWriter, r *http.Request) {
	maxChunk := h.maxChunkSize()
	r.Body = http.MaxBytesReader(w, r.Body, maxChunk+multipartOverhead)

	if err := r.ParseMultipartForm(maxChunk); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, http.StatusRequestEntityTooLarge, "chunk_too_large", "request body is too large")
			return
		}
		writeError(w, http.StatusBadRequest, "invalid_form", "expected multipart form data")
		return
	}
	defer r.MultipartForm.RemoveAll()

	// Проверяем обязательные поля
	fileID := r.FormValue("fileId")
	rawIndex := r.FormValue("chunkIndex")
	rawTotal := r.FormValue("totalChunks")
	file, header, err := r.FormFile("file")
	if fileID == "" || rawIndex == "" || rawTotal == "" || err != nil {
		writeError(w, http.StatusBadRequest, "missing_fields", "Missing required fields")
		return
	}
	defer file.Close()

	chunkIndex, err := strconv.Atoi(rawIndex)
	if err != nil || chunkIndex < 0 {
		writeError(w, http.StatusBadRequest, "invalid_chunk", "chunkIndex must be a non-negative integer")
		return
	}
	totalChunks, err := strconv.Atoi(rawTotal)
	if err != nil || totalChunks < 1 {
		writeError(w, http.StatusBadRequest, "invalid_chunk", "totalChunks must be a positive integer")
		return
	}
	if chunkIndex >= totalChunks {
		writeError(w, http.StatusBadRequest, "invalid_chunk",
			fmt.Sprintf("chunkIndex %d out of range [0, %d)", chunkIndex, totalChunks))
		return
	}
	if err := blobstore.ValidateKey(fileID); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_file_id", err.Error())
		return
	}
	if header.Size > maxChunk {
		writeError(w, http.StatusRequestEntityTooLarge, "chunk_too_large",
			fmt.Sprintf("chunk exceeds %s", units.HumanSize(float64(maxChunk))))
		return
	}

	// Отклоняем чанк до записи байтов, если форма загрузки не совпадает
	if err := h.Tracker.Expect(fileID, totalChunks); err != nil {
		h.writeDomainError(w, err)
		return
	}

	// Повторный чанк не перезаписывает сохраненные байты,
	// иначе они разойдутся с уже вычисленной контрольной суммой
	if progress, ok := h.Tracker.Received(fileID, chunkIndex, totalChunks); ok {
		h.Logger.Debugf("Chunk %d/%d of %s already received", chunkIndex, totalChunks, fileID)
		writeJSON(w, http.StatusOK, chunkResponse{
			Message:        "Chunk already uploaded",
			UploadedChunks: progress.Received,
			TotalChunks:    progress.TotalChunks,
		})
		return
	}

	data, err := io.ReadAll(file)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_form", "failed to read chunk payload")
		return
	}

	// Проверяем целостность данных, если клиент прислал хеш чанка
	if expected := strings.ToLower(r.FormValue("chunkHash")); expected != "" {
		if actual := utils.ChunkSHA256(data); actual != expected {
			h.Logger.Warnf("Chunk hash mismatch for %s/%d. Expected: %s, Got: %s", fileID, chunkIndex, expected, actual)
			writeError(w, http.StatusBadRequest, "hash_mismatch", "chunk hash mismatch")
			return
		}
	}

	if err := h.Chunks.Put(r.Context(), fileID, totalChunks, chunkIndex, bytes.NewReader(data)); err != nil {
		h.Logger.Errorf("Failed to store chunk %d of %s: %s", chunkIndex, fileID, err)
		writeError(w, http.StatusInternalServerError, "storage_error", "failed to store chunk")
		return
	}

	progress, err := h.Tracker.RecordChunk(fileID, chunkIndex, totalChunks)
	if err != nil {
		h.writeDomainError(w, err)
		return
	}

	h.Logger.Debugf("Chunk %d/%d received for file %s (%s)", chunkIndex, totalChunks, fileID,
		units.HumanSize(float64(len(data))))

	writeJSON(w, http.StatusOK, chunkResponse{
		Message:        "Chunk uploaded successfully",
		UploadedChunks: progress.Received,
		TotalChunks:    progress.TotalChunks,
	})
}

// GetMetadata возвращает прогресс загрузки
func (h *FileHandler) GetMetadata(w http.ResponseWriter, r *http.Request) {
	fileID := mux.Vars(r)["id"]

	meta, err := h.Tracker.Metadata(fileID)
	if err != nil {
		h.writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, metadataResponse{
		FileID:         meta.UploadID,
		UploadedChunks: meta.UploadedChunks,
		TotalChunks:    meta.TotalChunks,
		Complete:       meta.Complete,
	})
}

// GetChecksum возвращает контентный адрес завершенной загрузки
func (h *FileHandler) GetChecksum(w http.ResponseWriter, r *http.Request) {
	fileID := mux.Vars(r)["id"]

	checksum, err := h.Tracker.Checksum(r.Context(), fileID)
	if err != nil {
		h.writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, checksumResponse{Checksum: checksum})
}

// DeleteFile удаляет загрузку и ее чанки
func (h *FileHandler) DeleteFile(w http.ResponseWriter, r *http.Request) {
	fileID := mux.Vars(r)["id"]

	h.Tracker.Delete(fileID)

	if blobstore.ValidateKey(fileID) == nil {
		if err := h.Chunks.Delete(r.Context(), fileID); err != nil {
			h.Logger.Errorf("Failed to delete chunks of %s: %s", fileID, err)
			writeError(w, http.StatusInternalServerError, "storage_error", "failed to delete chunks")
			return
		}
	}

	writeJSON(w, http.StatusOK, messageResponse{Message: "File deleted successfully"})
}

// Health отвечает на проверку живости
func (h *FileHandler) Health(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *FileHandler) maxChunkSize() int64 {
	if h.MaxChunkSize > 0 {
		return h.MaxChunkSize
	}
	return DefaultMaxChunkSize
}

// writeDomainError отображает ошибки реестра в HTTP статусы
func (h *FileHandler) writeDomainError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, tracker.ErrInvalidChunk):
		writeError(w, http.StatusBadRequest, "invalid_chunk", err.Error())
	case errors.Is(err, tracker.ErrConflict):
		writeError(w, http.StatusConflict, "conflict", err.Error())
	case errors.Is(err, tracker.ErrNotFound):
		writeError(w, http.StatusNotFound, "not_found", "File not found")
	case errors.Is(err, tracker.ErrNotReady):
		writeError(w, http.StatusTooEarly, "not_ready", err.Error())
	default:
		h.Logger.Errorf("Unexpected error: %s", err)
		writeError(w, http.StatusInternalServerError, "internal_error", "internal server error")
	}
}
