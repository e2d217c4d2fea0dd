package utils

import (
	"crypto/sha256"
	"encoding/hex"
	"io"
)

// DigestPrefix префикс контентного адреса
const DigestPrefix = "sha256:"

// ChunkSHA256 вычисляет SHA-256 хеш чанка в hex
func ChunkSHA256(data []byte) string {
	hash := sha256.Sum256(data)
	return hex.EncodeToString(hash[:])
}

// ContentDigest вычисляет контентный адрес потока в виде "sha256:<hex>"
func ContentDigest(reader io.Reader) (string, error) {
	h := sha256.New()
	if _, err := io.Copy(h, reader); err != nil {
		return "", err
	}
	return DigestPrefix + hex.EncodeToString(h.Sum(nil)), nil
}
