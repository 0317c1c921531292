package services

import (
	"context"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/screener-back/pkg/models"
)

// exampleRows is how many of the oldest rows a dry run shows
const exampleRows = 5

// RetentionStore removes expired snapshots
type RetentionStore interface {
	CountSnapshotsBefore(ctx context.Context, cutoff time.Time) (int64, error)
	OldestSnapshotsBefore(ctx context.Context, cutoff time.Time, limit int) ([]*models.Snapshot, error)
	DeleteSnapshotsBefore(ctx context.Context, cutoff time.Time, batchSize int) (int64, error)
}

// RetentionReport describes one cleanup run
type RetentionReport struct {
	Cutoff   time.Time          `json:"cutoff"`
	Matched  int64              `json:"matched"`
	Deleted  int64              `json:"deleted"`
	DryRun   bool               `json:"dry_run"`
	Examples []*models.Snapshot `json:"examples,omitempty"`
}

// RetentionService deletes snapshots older than a retention window
type RetentionService struct {
	store     RetentionStore
	batchSize int
	now       func() time.Time
	logger    *logrus.Entry
}

// NewRetentionService creates a retention service
func NewRetentionService(store RetentionStore, batchSize int, logger *logrus.Logger) *RetentionService {
	return &RetentionService{
		store:     store,
		batchSize: batchSize,
		now:       time.Now,
		logger:    logger.WithField("component", "retention"),
	}
}

// Cleanup removes snapshots older than hours. A dry run only counts them and
// collects the oldest few as examples.
func (s *RetentionService) Cleanup(ctx context.Context, hours int, dryRun bool) (*RetentionReport, error) {
	if hours < 1 {
		return nil, fmt.Errorf("retention hours must be at least 1, got %d", hours)
	}

	report := &RetentionReport{
		Cutoff: s.now().UTC().Add(-time.Duration(hours) * time.Hour),
		DryRun: dryRun,
	}

	matched, err := s.store.CountSnapshotsBefore(ctx, report.Cutoff)
	if err != nil {
		return nil, err
	}
	report.Matched = matched

	if dryRun {
		if matched > 0 {
			report.Examples, err = s.store.OldestSnapshotsBefore(ctx, report.Cutoff, exampleRows)
			if err != nil {
				return nil, err
			}
		}
		return report, nil
	}

	if matched == 0 {
		return report, nil
	}

	report.Deleted, err = s.store.DeleteSnapshotsBefore(ctx, report.Cutoff, s.batchSize)
	if err != nil {
		return report, err
	}

	s.logger.WithFields(logrus.Fields{
		"cutoff":  report.Cutoff,
		"deleted": report.Deleted,
	}).Info("Old snapshots deleted")

	return report, nil
}
