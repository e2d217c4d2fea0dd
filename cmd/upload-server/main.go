package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Gammanik/resumable-upload/internal/api"
	"github.com/Gammanik/resumable-upload/internal/auth"
	"github.com/Gammanik/resumable-upload/internal/blobstore"
	"github.com/Gammanik/resumable-upload/internal/config"
	"github.com/Gammanik/resumable-upload/internal/tracker"
	"github.com/bitrise-io/go-utils/v2/log"
	"github.com/docker/go-units"
)

func main() {
	logger := log.NewLogger()

	cfg, err := config.LoadServer(os.Args[1:], os.Getenv)
	if err != nil {
		logger.Errorf("Invalid configuration: %s", err)
		os.Exit(2)
	}
	logger.EnableDebugLog(cfg.Debug)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Инициализируем хранилище чанков
	chunks, err := openStore(ctx, cfg)
	if err != nil {
		logger.Errorf("Failed to open chunk store: %s", err)
		os.Exit(1)
	}

	uploads := tracker.New(blobstore.ChunkDigester{Store: chunks})

	// Создаем обработчик файлов
	fileHandler := &api.FileHandler{
		Tracker:      uploads,
		Chunks:       chunks,
		Logger:       logger,
		MaxChunkSize: cfg.MaxChunkSize,
	}

	// Запускаем очистку брошенных загрузок
	janitor, err := api.StartRetention(&api.RetentionJob{
		Tracker: uploads,
		Chunks:  chunks,
		Logger:  logger,
		MaxIdle: cfg.Retention,
	}, cfg.SweepInterval)
	if err != nil {
		logger.Errorf("Failed to start retention: %s", err)
		os.Exit(1)
	}
	defer janitor.Stop()

	// Настраиваем и запускаем HTTP сервер
	server := &http.Server{
		Addr:              cfg.Addr,
		Handler:           api.NewRouter(fileHandler, auth.StaticToken{Token: cfg.Token}),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       300 * time.Second,
		WriteTimeout:      300 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.Warnf("Shutdown: %s", err)
		}
	}()

	logger.Infof("Upload server starting on %s", cfg.Addr)
	logger.Infof("Chunk store: %s, max chunk %s, retention %s", cfg.Store, units.HumanSize(float64(cfg.MaxChunkSize)), cfg.Retention)

	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Errorf("Server failed: %s", err)
		os.Exit(1)
	}
	logger.Donef("Server stopped")
}

func openStore(ctx context.Context, cfg *config.Server) (blobstore.Store, error) {
	switch cfg.Store {
	case config.StoreMemory:
		return blobstore.NewMemoryStore(), nil
	case config.StoreS3:
		return blobstore.NewS3Store(ctx, cfg.S3Bucket, cfg.S3Region, cfg.S3Prefix)
	default:
		return blobstore.NewDiskStore(cfg.DataDir)
	}
}
