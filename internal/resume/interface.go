package resume

import (
	"errors"
	"sort"
	"time"
)

// ErrNotFound запись о загрузке отсутствует
var ErrNotFound = errors.New("resume record not found")

// Record локальная запись о загрузке, по которой клиент продолжает прерванную загрузку
type Record struct {
	UploadID    string    `json:"uploadId"`    // Идентификатор загрузки на сервере
	FileName    string    `json:"fileName"`    // Имя исходного файла
	FileSize    int64     `json:"fileSize"`    // Размер файла в байтах
	ChunkSize   int64     `json:"chunkSize"`   // Размер чанка, с которым начиналась загрузка
	TotalChunks int       `json:"totalChunks"` // Общее количество чанков
	Confirmed   []int     `json:"confirmed"`   // Индексы чанков, подтвержденных сервером
	UpdatedAt   time.Time `json:"updatedAt"`
}

// IsConfirmed проверяет, подтвержден ли чанк
func (r *Record) IsConfirmed(index int) bool {
	i := sort.SearchInts(r.Confirmed, index)
	return i < len(r.Confirmed) && r.Confirmed[i] == index
}

func (r *Record) confirm(index int) {
	i := sort.SearchInts(r.Confirmed, index)
	if i < len(r.Confirmed) && r.Confirmed[i] == index {
		return
	}
	r.Confirmed = append(r.Confirmed, 0)
	copy(r.Confirmed[i+1:], r.Confirmed[i:])
	r.Confirmed[i] = index
}

func normalize(indices []int) []int {
	out := make([]int, 0, len(indices))
	seen := make(map[int]struct{}, len(indices))
	for _, idx := range indices {
		if _, ok := seen[idx]; ok {
			continue
		}
		seen[idx] = struct{}{}
		out = append(out, idx)
	}
	sort.Ints(out)
	return out
}

// Store интерфейс для хранения состояния загрузок на стороне клиента
type Store interface {
	// Load возвращает запись о загрузке или ErrNotFound
	Load(uploadID string) (*Record, error)

	// Save создает или полностью заменяет запись
	Save(record Record) error

	// Confirm отмечает чанк подтвержденным
	Confirm(uploadID string, index int) error

	// Delete удаляет запись, отсутствие записи не является ошибкой
	Delete(uploadID string) error

	// Close закрывает хранилище
	Close() error
}
