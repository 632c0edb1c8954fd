package store

import (
	"context"
	"time"

	"github.com/JakeFAU/camp-harvester/internal/camp"
	"github.com/JakeFAU/camp-harvester/internal/storage"
)

// Retention windows.
const (
	ChangeLogRetention   = 90 * 24 * time.Hour
	PipelineLogRetention = 30 * 24 * time.Hour
)

// ChangeLog is an append-only list of change sets pruned to a window.
type ChangeLog struct {
	blobs     storage.BlobStore
	path      string
	retention time.Duration
}

// NewChangeLog returns a change log at path. A zero retention uses
// ChangeLogRetention.
func NewChangeLog(blobs storage.BlobStore, path string, retention time.Duration) *ChangeLog {
	if path == "" {
		path = DefaultChangeLogPath
	}
	if retention <= 0 {
		retention = ChangeLogRetention
	}
	return &ChangeLog{blobs: blobs, path: path, retention: retention}
}

// Entries returns the persisted change sets, oldest first.
func (l *ChangeLog) Entries(ctx context.Context) ([]camp.ChangeSet, error) {
	var entries []camp.ChangeSet
	if _, err := readJSON(ctx, l.blobs, l.path, &entries); err != nil {
		return nil, err
	}
	return entries, nil
}

// Append adds the sets that carry changes and drops entries detected before
// now minus the retention window. It returns how many sets were added.
func (l *ChangeLog) Append(ctx context.Context, sets []camp.ChangeSet, now time.Time) (int, error) {
	entries, err := l.Entries(ctx)
	if err != nil {
		return 0, err
	}
	added := 0
	for _, cs := range sets {
		if !cs.HasChanges {
			continue
		}
		entries = append(entries, cs)
		added++
	}
	cutoff := now.Add(-l.retention)
	kept := entries[:0]
	for _, e := range entries {
		if !e.DetectedAt.Before(cutoff) {
			kept = append(kept, e)
		}
	}
	if kept == nil {
		kept = []camp.ChangeSet{}
	}
	if _, err := writeJSON(ctx, l.blobs, l.path, kept); err != nil {
		return 0, err
	}
	return added, nil
}

// PipelineLog is the list of run summaries pruned to a window.
type PipelineLog struct {
	blobs     storage.BlobStore
	path      string
	retention time.Duration
}

// NewPipelineLog returns a pipeline log at path. A zero retention uses
// PipelineLogRetention.
func NewPipelineLog(blobs storage.BlobStore, path string, retention time.Duration) *PipelineLog {
	if path == "" {
		path = DefaultPipelineLogPath
	}
	if retention <= 0 {
		retention = PipelineLogRetention
	}
	return &PipelineLog{blobs: blobs, path: path, retention: retention}
}

// Entries returns the persisted runs, oldest first.
func (l *PipelineLog) Entries(ctx context.Context) ([]camp.PipelineRun, error) {
	var runs []camp.PipelineRun
	if _, err := readJSON(ctx, l.blobs, l.path, &runs); err != nil {
		return nil, err
	}
	return runs, nil
}

// Append adds run and prunes entries started before now minus the window.
func (l *PipelineLog) Append(ctx context.Context, run camp.PipelineRun, now time.Time) error {
	runs, err := l.Entries(ctx)
	if err != nil {
		return err
	}
	runs = append(runs, run)
	cutoff := now.Add(-l.retention)
	kept := make([]camp.PipelineRun, 0, len(runs))
	for _, r := range runs {
		if !r.StartedAt.Before(cutoff) {
			kept = append(kept, r)
		}
	}
	_, err = writeJSON(ctx, l.blobs, l.path, kept)
	return err
}
