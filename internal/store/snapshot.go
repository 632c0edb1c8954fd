package store

import (
	"context"

	"github.com/JakeFAU/camp-harvester/internal/camp"
	"github.com/JakeFAU/camp-harvester/internal/storage"
)

// SnapshotStore holds the array of tracked camps.
type SnapshotStore struct {
	blobs storage.BlobStore
	path  string
}

// NewSnapshotStore returns a store for path inside blobs.
func NewSnapshotStore(blobs storage.BlobStore, path string) *SnapshotStore {
	if path == "" {
		path = DefaultSnapshotPath
	}
	return &SnapshotStore{blobs: blobs, path: path}
}

// Path is the object name.
func (s *SnapshotStore) Path() string { return s.path }

// Load returns the persisted records; a missing snapshot is empty.
func (s *SnapshotStore) Load(ctx context.Context) ([]camp.Record, error) {
	var records []camp.Record
	if _, err := readJSON(ctx, s.blobs, s.path, &records); err != nil {
		return nil, err
	}
	return records, nil
}

// Save replaces the snapshot.
func (s *SnapshotStore) Save(ctx context.Context, records []camp.Record) error {
	if records == nil {
		records = []camp.Record{}
	}
	_, err := writeJSON(ctx, s.blobs, s.path, records)
	return err
}
