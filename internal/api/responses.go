package api

import (
	"encoding/json"
	"net/http"
)

type chunkResponse struct {
	Message        string `json:"message"`
	UploadedChunks int    `json:"uploadedChunks"`
	TotalChunks    int    `json:"totalChunks"`
}

type metadataResponse struct {
	FileID         string `json:"fileId"`
	UploadedChunks []int  `json:"uploadedChunks"`
	TotalChunks    int    `json:"totalChunks"`
	Complete       bool   `json:"complete"`
}

type checksumResponse struct {
	Checksum string `json:"checksum"`
}

type messageResponse struct {
	Message string `json:"message"`
}

type errorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, errorResponse{Error: code, Message: message})
}
