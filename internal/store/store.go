// Package store persists the run's JSON documents: the camp snapshot, the
// change and pipeline logs, and dated weekly reports. Every write replaces
// the whole object so readers never see a partial document.
package store

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/JakeFAU/camp-harvester/internal/camp"
	"github.com/JakeFAU/camp-harvester/internal/storage"
)

// Default object names.
const (
	DefaultSnapshotPath    = "camps.json"
	DefaultChangeLogPath   = "change-log.json"
	DefaultPipelineLogPath = "pipeline-log.json"
	DefaultReportDir       = "reports"
)

const jsonContentType = "application/json"

// readJSON decodes path into v. It reports false when the object is absent.
func readJSON(ctx context.Context, blobs storage.BlobStore, path string, v any) (bool, error) {
	data, err := blobs.GetObject(ctx, path)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return false, nil
		}
		return false, fmt.Errorf("read %s: %w: %w", path, camp.ErrPersistence, err)
	}
	if len(bytes.TrimSpace(data)) == 0 {
		return false, nil
	}
	if err := json.Unmarshal(data, v); err != nil {
		return false, fmt.Errorf("decode %s: %w: %w", path, camp.ErrParse, err)
	}
	return true, nil
}

func writeJSON(ctx context.Context, blobs storage.BlobStore, path string, v any) (string, error) {
	data, err := camp.MarshalIndent(v)
	if err != nil {
		return "", err
	}
	uri, err := blobs.PutObject(ctx, path, jsonContentType, bytes.NewReader(data))
	if err != nil {
		return "", fmt.Errorf("write %s: %w: %w", path, camp.ErrPersistence, err)
	}
	return uri, nil
}
