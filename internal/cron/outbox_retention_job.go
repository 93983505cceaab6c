package cron

import (
	"context"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/angelmondragon/maskball-tickets/pkg/logger"
)

const (
	defaultPublishedRetentionDays  = 30
	defaultDeadLetterRetentionDays = 90
)

type publishedPruner interface {
	DeletePublishedBefore(tx *gorm.DB, cutoff time.Time) (int64, error)
}

type deadLetterPruner interface {
	DeleteFailedBefore(tx *gorm.DB, cutoff time.Time) (int64, error)
}

// OutboxRetentionJobParams configure the outbox cleanup. DeadLetters is optional; without
// it dead letters are kept forever.
type OutboxRetentionJobParams struct {
	Logger         *logger.Logger
	DB             txRunner
	Published      publishedPruner
	DeadLetters    deadLetterPruner
	PublishedDays  int
	DeadLetterDays int
}

// outboxRetentionJob prunes delivered notifications, and dead letters nobody requeued.
type outboxRetentionJob struct {
	logg           *logger.Logger
	db             txRunner
	published      publishedPruner
	deadLetters    deadLetterPruner
	publishedDays  int
	deadLetterDays int
	now            func() time.Time
}

func NewOutboxRetentionJob(params OutboxRetentionJobParams) (Job, error) {
	switch {
	case params.Logger == nil:
		return nil, fmt.Errorf("logger required")
	case params.DB == nil:
		return nil, fmt.Errorf("db runner required")
	case params.Published == nil:
		return nil, fmt.Errorf("outbox repository required")
	}
	job := &outboxRetentionJob{
		logg:           params.Logger,
		db:             params.DB,
		published:      params.Published,
		deadLetters:    params.DeadLetters,
		publishedDays:  params.PublishedDays,
		deadLetterDays: params.DeadLetterDays,
		now:            time.Now,
	}
	if job.publishedDays <= 0 {
		job.publishedDays = defaultPublishedRetentionDays
	}
	if job.deadLetterDays <= 0 {
		job.deadLetterDays = defaultDeadLetterRetentionDays
	}
	return job, nil
}

func (j *outboxRetentionJob) Name() string { return "outbox-retention" }

func (j *outboxRetentionJob) Run(ctx context.Context) error {
	now := j.now().UTC()
	publishedCutoff := now.AddDate(0, 0, -j.publishedDays)
	deadLetterCutoff := now.AddDate(0, 0, -j.deadLetterDays)

	var published, deadLetters int64
	err := j.db.WithTx(ctx, func(tx *gorm.DB) error {
		var err error
		if published, err = j.published.DeletePublishedBefore(tx, publishedCutoff); err != nil {
			return fmt.Errorf("published rows: %w", err)
		}
		if j.deadLetters == nil {
			return nil
		}
		if deadLetters, err = j.deadLetters.DeleteFailedBefore(tx, deadLetterCutoff); err != nil {
			return fmt.Errorf("dead letters: %w", err)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("outbox retention: %w", err)
	}
	j.logg.Info(j.logg.WithFields(ctx, map[string]any{
		"published_cutoff":     publishedCutoff,
		"published_deleted":    published,
		"dead_letter_cutoff":   deadLetterCutoff,
		"dead_letters_deleted": deadLetters,
	}), "outbox retention cleanup complete")
	return nil
}
