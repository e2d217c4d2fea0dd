package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/Gammanik/resumable-upload/internal/config"
	"github.com/Gammanik/resumable-upload/internal/resume"
	"github.com/Gammanik/resumable-upload/internal/transport"
	"github.com/Gammanik/resumable-upload/internal/uploader"
	"github.com/bitrise-io/go-utils/v2/log"
	"github.com/google/uuid"
)

func main() {
	logger := log.NewLogger()

	cfg, err := config.LoadClient(os.Args[1:], os.Getenv)
	if err != nil {
		logger.Errorf("Invalid configuration: %s", err)
		os.Exit(2)
	}
	logger.EnableDebugLog(cfg.Debug)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Errorf("%s", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Client, logger log.Logger) error {
	client := transport.New(cfg.ServerURL, cfg.Token, cfg.AttemptTimeout(), logger)

	store, err := resume.NewBoltStore(cfg.ResumeDB)
	if err != nil {
		return err
	}
	defer store.Close()

	if cfg.DeleteOnly {
		if err := client.Delete(ctx, cfg.UploadID); err != nil {
			return err
		}
		if err := store.Delete(cfg.UploadID); err != nil {
			return err
		}
		logger.Donef("Upload %s deleted", cfg.UploadID)
		return nil
	}

	file, err := os.Open(cfg.File)
	if err != nil {
		return fmt.Errorf("open file: %w", err)
	}
	defer file.Close()

	info, err := file.Stat()
	if err != nil {
		return fmt.Errorf("stat file: %w", err)
	}

	uploadID := cfg.UploadID
	if uploadID == "" {
		uploadID = uuid.NewString()
	}
	logger.Infof("Upload id: %s (pass -upload-id %s to resume)", uploadID, uploadID)

	u := &uploader.Uploader{
		Transport: client,
		Resume:    store,
		Logger:    logger,
		Config:    cfg.Upload,
		OnOutcome: func(o uploader.Outcome) {
			if o.Acknowledged {
				logger.Printf("chunk %d uploaded", o.Index)
			}
		},
	}

	result, err := u.Upload(ctx, uploader.File{
		UploadID: uploadID,
		Name:     filepath.Base(cfg.File),
		Size:     info.Size(),
		Source:   file,
	})
	if err != nil {
		var failed *uploader.ChunkUploadFailedError
		if errors.As(err, &failed) || errors.Is(err, context.Canceled) || errors.Is(err, uploader.ErrIncomplete) {
			logger.Warnf("Upload interrupted, rerun with -upload-id %s to resume", uploadID)
		}
		return err
	}

	logger.Printf("%d chunks (%d sent, %d resumed)", result.TotalChunks, result.Sent, result.Skipped)
	logger.Printf("checksum: %s", result.Checksum)
	return nil
}
