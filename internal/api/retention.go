package api

import (
	"context"
	"fmt"
	"time"

	"github.com/Gammanik/resumable-upload/internal/blobstore"
	"github.com/bitrise-io/go-utils/v2/log"
	"github.com/robfig/cron/v3"
)

// RetentionJob удаляет загрузки, которые давно не получали чанков
type RetentionJob struct {
	Tracker Tracker
	Chunks  blobstore.Store
	Logger  log.Logger
	MaxIdle time.Duration
}

// Run выполняет одну очистку и возвращает количество удаленных загрузок
func (j *RetentionJob) Run(ctx context.Context) int {
	removed := j.Tracker.Sweep(j.MaxIdle)
	for _, id := range removed {
		if err := j.Chunks.Delete(ctx, id); err != nil {
			j.Logger.Warnf("Failed to delete chunks of expired upload %s: %s", id, err)
		}
	}
	if len(removed) > 0 {
		j.Logger.Infof("Removed %d uploads idle for more than %s", len(removed), j.MaxIdle)
	}
	return len(removed)
}

// StartRetention запускает очистку по расписанию
func StartRetention(job *RetentionJob, every time.Duration) (*cron.Cron, error) {
	c := cron.New()
	_, err := c.AddFunc(fmt.Sprintf("@every %s", every), func() {
		job.Run(context.Background())
	})
	if err != nil {
		return nil, fmt.Errorf("schedule retention: %w", err)
	}
	c.Start()
	return c, nil
}
