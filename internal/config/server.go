package config

import (
	"errors"
	"fmt"
	"time"
)

// Хранилища чанков на сервере
const (
	StoreDisk   = "disk"
	StoreMemory = "memory"
	StoreS3     = "s3"
)

// Server конфигурация сервера загрузок
type Server struct {
	Addr          string
	Token         string
	Store         string
	DataDir       string
	S3Bucket      string
	S3Region      string
	S3Prefix      string
	MaxChunkSize  int64
	Retention     time.Duration
	SweepInterval time.Duration
	Debug         bool
}

// LoadServer читает конфигурацию из аргументов командной строки.
// Значения по умолчанию берутся из переменных окружения.
func LoadServer(args []string, getenv Getenv) (*Server, error) {
	fs := newFlagSet("upload-server")

	cfg := &Server{}
	fs.StringVar(&cfg.Addr, "addr", envOr(getenv, "ADDR", ":5000"), "HTTP address to listen on")
	fs.StringVar(&cfg.Token, "token", getenv("UPLOAD_TOKEN"), "Bearer token required for chunk upload and delete (env UPLOAD_TOKEN)")
	fs.StringVar(&cfg.Store, "store", envOr(getenv, "CHUNK_STORE", StoreDisk), "Chunk store: disk, memory or s3")
	fs.StringVar(&cfg.DataDir, "data-dir", envOr(getenv, "DATA_DIR", "./data"), "Directory for the disk chunk store")
	fs.StringVar(&cfg.S3Bucket, "s3-bucket", getenv("S3_BUCKET"), "Bucket for the s3 chunk store")
	fs.StringVar(&cfg.S3Region, "s3-region", envOr(getenv, "AWS_REGION", "us-east-1"), "Region of the s3 bucket")
	fs.StringVar(&cfg.S3Prefix, "s3-prefix", getenv("S3_PREFIX"), "Key prefix inside the s3 bucket")
	maxChunk := fs.String("max-chunk", envOr(getenv, "MAX_CHUNK", "64MB"), "Largest accepted chunk")
	fs.DurationVar(&cfg.Retention, "retention", envDuration(getenv, "RETENTION", 24*time.Hour), "Remove uploads idle for longer than this")
	fs.DurationVar(&cfg.SweepInterval, "sweep-interval", envDuration(getenv, "SWEEP_INTERVAL", 5*time.Minute), "How often idle uploads are removed")
	fs.BoolVar(&cfg.Debug, "debug", envBool(getenv, "DEBUG"), "Enable debug logging")

	if err := fs.Parse(args); err != nil {
		return nil, err
	}

	var err error
	if cfg.MaxChunkSize, err = parseSize("max-chunk", *maxChunk); err != nil {
		return nil, err
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Server) validate() error {
	if c.Token == "" {
		return errors.New("token is required. Set UPLOAD_TOKEN environment variable or use -token flag")
	}
	switch c.Store {
	case StoreDisk:
		if c.DataDir == "" {
			return errors.New("-data-dir is required for the disk store")
		}
	case StoreMemory:
	case StoreS3:
		if c.S3Bucket == "" {
			return errors.New("-s3-bucket is required for the s3 store")
		}
	default:
		return fmt.Errorf("unknown store %q", c.Store)
	}
	if c.Retention <= 0 || c.SweepInterval <= 0 {
		return errors.New("-retention and -sweep-interval must be positive")
	}
	return nil
}
