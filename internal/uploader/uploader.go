package uploader

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"

	"github.com/Gammanik/resumable-upload/internal/chunker"
	"github.com/Gammanik/resumable-upload/internal/resume"
	"github.com/Gammanik/resumable-upload/internal/transport"
	"github.com/bitrise-io/go-utils/retry"
	"github.com/bitrise-io/go-utils/v2/log"
	"github.com/docker/go-units"
	"golang.org/x/sync/errgroup"
)

// File загружаемый файл
type File struct {
	UploadID string
	Name     string
	Size     int64
	Source   io.ReaderAt
}

// Outcome итог отправки одного чанка.
// Err у подтвержденного чанка означает, что подтверждение не удалось сохранить локально.
type Outcome struct {
	Index        int
	Acknowledged bool
	Attempts     int
	Err          error
}

// Result итог загрузки файла
type Result struct {
	UploadID       string
	TotalChunks    int
	Skipped        int   // Чанки, подтвержденные в предыдущих запусках
	Sent           int   // Чанки, подтвержденные в этом запуске
	UploadedChunks []int // Чанки, которые сервер считает полученными
	Checksum       string
}

// Uploader загружает файлы по чанкам с повторами и продолжением прерванных загрузок
type Uploader struct {
	Transport transport.Client
	Resume    resume.Store
	Logger    log.Logger
	Config    Config

	// OnOutcome вызывается после каждого чанка, вызовы не пересекаются
	OnOutcome func(Outcome)

	outcomeMu sync.Mutex
}

// Upload отправляет чанки, которые еще не подтверждены, и проверяет итог на сервере
func (u *Uploader) Upload(ctx context.Context, f File) (*Result, error) {
	if err := u.Config.Validate(); err != nil {
		return nil, err
	}

	if err := u.Config.Policy.Check(f); err != nil {
		return nil, err
	}

	plan, err := chunker.Plan(f.Size, u.Config.ChunkSize)
	if err != nil {
		return nil, err
	}

	record, err := u.loadRecord(f, len(plan))
	if err != nil {
		return nil, err
	}

	remaining := make([]chunker.Descriptor, 0, len(plan))
	for _, d := range plan {
		if !record.IsConfirmed(d.Index) {
			remaining = append(remaining, d)
		}
	}

	result := &Result{
		UploadID:    f.UploadID,
		TotalChunks: len(plan),
		Skipped:     len(plan) - len(remaining),
	}
	u.Logger.Infof("Uploading %s (%s) as %d chunks, %d already confirmed",
		f.Name, units.HumanSize(float64(f.Size)), len(plan), result.Skipped)

	sent, err := u.sendChunks(ctx, f, len(plan), remaining)
	result.Sent = sent
	if err != nil {
		return result, err
	}

	return u.verify(ctx, f.UploadID, len(plan), result)
}

// loadRecord возвращает запись о загрузке, созданную заново, если ее нет или форма файла изменилась
func (u *Uploader) loadRecord(f File, totalChunks int) (*resume.Record, error) {
	record, err := u.Resume.Load(f.UploadID)
	switch {
	case err == nil && record.FileSize == f.Size && record.ChunkSize == u.Config.ChunkSize && record.TotalChunks == totalChunks:
		return record, nil
	case err == nil:
		u.Logger.Warnf("Resume record for %s does not match the file, starting over", f.UploadID)
	case !errors.Is(err, resume.ErrNotFound):
		return nil, fmt.Errorf("load resume record: %w", err)
	}

	fresh := resume.Record{
		UploadID:    f.UploadID,
		FileName:    f.Name,
		FileSize:    f.Size,
		ChunkSize:   u.Config.ChunkSize,
		TotalChunks: totalChunks,
	}
	if err := u.Resume.Save(fresh); err != nil {
		return nil, fmt.Errorf("save resume record: %w", err)
	}
	return &fresh, nil
}

func (u *Uploader) sendChunks(ctx context.Context, f File, totalChunks int, remaining []chunker.Descriptor) (int, error) {
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(u.Config.Concurrency)

	var (
		mu   sync.Mutex
		sent int
	)

	for _, d := range remaining {
		if gctx.Err() != nil {
			break
		}

		d := d
		g.Go(func() error {
			if err := u.sendChunk(gctx, f, totalChunks, d); err != nil {
				return err
			}
			mu.Lock()
			sent++
			mu.Unlock()
			return nil
		})
	}

	err := g.Wait()
	if err == nil && ctx.Err() != nil {
		err = ctx.Err()
	}
	return sent, err
}

// sendChunk отправляет один чанк с повторами и записывает подтверждение
func (u *Uploader) sendChunk(ctx context.Context, f File, totalChunks int, d chunker.Descriptor) error {
	attempts := 0

	err := retry.Times(uint(u.Config.MaxAttempts-1)).Wait(u.Config.RetryDelay).TryWithAbort(func(attempt uint) (error, bool) {
		if err := ctx.Err(); err != nil {
			return err, true
		}
		attempts = int(attempt) + 1

		data, err := chunker.Slice(f.Source, d)
		if err != nil {
			return fmt.Errorf("read chunk: %w", err), true
		}

		attemptCtx, cancel := context.WithTimeout(ctx, u.Config.AttemptTimeout)
		defer cancel()

		_, err = u.Transport.UploadChunk(attemptCtx, transport.ChunkRequest{
			UploadID:    f.UploadID,
			Index:       d.Index,
			TotalChunks: totalChunks,
			FileName:    f.Name,
			Data:        data,
		})
		if err == nil {
			return nil, true
		}
		if ctx.Err() != nil {
			return ctx.Err(), true
		}
		if !transport.IsTransient(err) {
			return err, true
		}

		u.Logger.Warnf("Chunk %d attempt %d/%d failed: %s", d.Index, attempts, u.Config.MaxAttempts, err)
		return err, false
	})

	if err != nil {
		if ctx.Err() != nil && errors.Is(err, ctx.Err()) {
			return err
		}
		u.report(Outcome{Index: d.Index, Attempts: attempts, Err: err})
		u.Logger.Errorf("Chunk %d failed after %d attempt(s): %s", d.Index, attempts, err)
		return &ChunkUploadFailedError{Index: d.Index, Attempts: attempts, Cause: err}
	}

	// Подтверждение записывается только после ответа сервера.
	// Потерянное подтверждение стоит одной повторной отправки чанка при продолжении.
	outcome := Outcome{Index: d.Index, Acknowledged: true, Attempts: attempts}
	if err := u.Resume.Confirm(f.UploadID, d.Index); err != nil {
		u.Logger.Warnf("Failed to persist confirmation of chunk %d: %s", d.Index, err)
		outcome.Err = fmt.Errorf("persist confirmation: %w", err)
	}

	u.report(outcome)
	u.Logger.Debugf("Chunk %d/%d acknowledged (%s)", d.Index+1, totalChunks, units.HumanSize(float64(d.Length)))
	return nil
}

// verify сверяет итог с сервером и запрашивает контрольную сумму
func (u *Uploader) verify(ctx context.Context, uploadID string, totalChunks int, result *Result) (*Result, error) {
	meta, err := u.Transport.Metadata(ctx, uploadID)
	if errors.Is(err, transport.ErrNotFound) {
		if err := u.Resume.Delete(uploadID); err != nil {
			u.Logger.Warnf("Failed to clear resume record of %s: %s", uploadID, err)
		}
		return result, fmt.Errorf("%w: server has no record of %s", ErrIncomplete, uploadID)
	}
	if err != nil {
		return result, err
	}
	result.UploadedChunks = meta.UploadedChunks

	if len(meta.UploadedChunks) != totalChunks || meta.TotalChunks != totalChunks {
		record, loadErr := u.Resume.Load(uploadID)
		if loadErr == nil {
			record.Confirmed = meta.UploadedChunks
			if err := u.Resume.Save(*record); err != nil {
				u.Logger.Warnf("Failed to update resume record of %s: %s", uploadID, err)
			}
		}
		return result, fmt.Errorf("%w: server has %d of %d chunks", ErrIncomplete, len(meta.UploadedChunks), totalChunks)
	}

	checksum, err := u.Transport.Checksum(ctx, uploadID)
	if err != nil {
		return result, err
	}
	result.Checksum = checksum

	if err := u.Resume.Delete(uploadID); err != nil {
		u.Logger.Warnf("Failed to clear resume record of %s: %s", uploadID, err)
	}

	u.Logger.Donef("Upload %s complete: %s", uploadID, checksum)
	return result, nil
}

func (u *Uploader) report(o Outcome) {
	if u.OnOutcome == nil {
		return
	}
	u.outcomeMu.Lock()
	defer u.outcomeMu.Unlock()
	u.OnOutcome(o)
}
