package config

import (
	"errors"
	"strings"
	"time"

	"github.com/Gammanik/resumable-upload/internal/uploader"
)

// Client конфигурация клиента загрузки
type Client struct {
	ServerURL  string
	Token      string
	File       string
	UploadID   string
	ResumeDB   string
	Debug      bool
	Upload     uploader.Config
	DeleteOnly bool
}

// LoadClient читает конфигурацию клиента из аргументов командной строки
func LoadClient(args []string, getenv Getenv) (*Client, error) {
	fs := newFlagSet("uploader")

	cfg := &Client{}
	fs.StringVar(&cfg.ServerURL, "server", envOr(getenv, "UPLOAD_SERVER", "http://localhost:5000/api"), "Base URL of the upload API")
	fs.StringVar(&cfg.Token, "token", getenv("UPLOAD_TOKEN"), "Bearer token (env UPLOAD_TOKEN)")
	fs.StringVar(&cfg.File, "file", "", "File to upload")
	fs.StringVar(&cfg.UploadID, "upload-id", "", "Upload id to resume (default: new uuid)")
	fs.StringVar(&cfg.ResumeDB, "resume-db", envOr(getenv, "RESUME_DB", defaultResumeDB()), "Local database of confirmed chunks")
	fs.BoolVar(&cfg.Debug, "debug", envBool(getenv, "DEBUG"), "Enable debug logging")
	fs.BoolVar(&cfg.DeleteOnly, "delete", false, "Delete the upload given by -upload-id instead of uploading")
	chunkSize := fs.String("chunk-size", envOr(getenv, "CHUNK_SIZE", "5MB"), "Chunk size")
	maxFileSize := fs.String("max-file-size", envOr(getenv, "MAX_FILE_SIZE", "100MB"), "Largest file accepted for upload, 0 for no limit")
	allowedTypes := fs.String("allowed-types", envOr(getenv, "ALLOWED_TYPES", strings.Join(uploader.DefaultPolicy().AllowedTypes, ",")),
		"Comma-separated MIME types accepted for upload, empty for any")
	fs.IntVar(&cfg.Upload.MaxAttempts, "attempts", envInt(getenv, "UPLOAD_ATTEMPTS", uploader.DefaultMaxAttempts), "Attempts per chunk")
	fs.DurationVar(&cfg.Upload.RetryDelay, "retry-delay", uploader.DefaultRetryDelay, "Delay between attempts")
	fs.IntVar(&cfg.Upload.Concurrency, "concurrency", envInt(getenv, "UPLOAD_CONCURRENCY", uploader.DefaultConcurrency), "Chunks sent in parallel")
	fs.DurationVar(&cfg.Upload.AttemptTimeout, "timeout", uploader.DefaultAttemptTimeout, "Timeout of a single chunk attempt")

	if err := fs.Parse(args); err != nil {
		return nil, err
	}

	var err error
	if cfg.Upload.ChunkSize, err = parseSize("chunk-size", *chunkSize); err != nil {
		return nil, err
	}

	if cfg.Upload.Policy.MaxFileSize, err = parseLimit("max-file-size", *maxFileSize); err != nil {
		return nil, err
	}
	cfg.Upload.Policy.AllowedTypes = splitList(*allowedTypes)

	if cfg.DeleteOnly {
		if cfg.UploadID == "" {
			return nil, errors.New("-upload-id is required with -delete")
		}
	} else if cfg.File == "" {
		return nil, errors.New("-file is required")
	}

	if err := cfg.Upload.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// AttemptTimeout ограничение времени одного HTTP запроса
func (c *Client) AttemptTimeout() time.Duration {
	return c.Upload.AttemptTimeout
}
