package resume

import (
	"encoding/json"
	"fmt"
	"time"

	bolt "go.etcd.io/bbolt"
)

var uploadsBucket = []byte("uploads")

// BoltStore реализация Store на основе BoltDB
type BoltStore struct {
	db  *bolt.DB
	now func() time.Time
}

// NewBoltStore открывает файл состояния загрузок
func NewBoltStore(path string) (*BoltStore, error) {
	db, err := bolt.Open(path, 0600, &bolt.Options{
		Timeout: 1 * time.Second,
	})
	if err != nil {
		return nil, fmt.Errorf("open resume db %s: %w", path, err)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(uploadsBucket)
		return err
	})
	if err != nil {
		db.Close()
		return nil, err
	}

	return &BoltStore{db: db, now: time.Now}, nil
}

// Load возвращает запись о загрузке
func (bs *BoltStore) Load(uploadID string) (*Record, error) {
	var record Record

	err := bs.db.View(func(tx *bolt.Tx) error {
		data := tx.Bucket(uploadsBucket).Get([]byte(uploadID))
		if data == nil {
			return fmt.Errorf("%w: %s", ErrNotFound, uploadID)
		}
		return json.Unmarshal(data, &record)
	})
	if err != nil {
		return nil, err
	}

	return &record, nil
}

// Save записывает запись целиком
func (bs *BoltStore) Save(record Record) error {
	record.Confirmed = normalize(record.Confirmed)
	record.UpdatedAt = bs.now()

	return bs.db.Update(func(tx *bolt.Tx) error {
		return put(tx.Bucket(uploadsBucket), record)
	})
}

// Confirm добавляет индекс чанка в запись
func (bs *BoltStore) Confirm(uploadID string, index int) error {
	return bs.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(uploadsBucket)

		data := b.Get([]byte(uploadID))
		if data == nil {
			return fmt.Errorf("%w: %s", ErrNotFound, uploadID)
		}

		var record Record
		if err := json.Unmarshal(data, &record); err != nil {
			return err
		}

		record.confirm(index)
		record.UpdatedAt = bs.now()

		return put(b, record)
	})
}

// Delete удаляет запись о загрузке
func (bs *BoltStore) Delete(uploadID string) error {
	return bs.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(uploadsBucket).Delete([]byte(uploadID))
	})
}

// Close закрывает хранилище
func (bs *BoltStore) Close() error {
	return bs.db.Close()
}

func put(b *bolt.Bucket, record Record) error {
	encoded, err := json.Marshal(record)
	if err != nil {
		return err
	}
	return b.Put([]byte(record.UploadID), encoded)
}
