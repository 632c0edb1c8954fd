package store

import (
	"context"
	"fmt"
	"path"
	"regexp"
	"time"

	"github.com/JakeFAU/camp-harvester/internal/camp"
	"github.com/JakeFAU/camp-harvester/internal/storage"
)

// ReportWriter writes one report document per run date.
type ReportWriter struct {
	blobs storage.BlobStore
	dir   string
}

// NewReportWriter returns a writer placing reports under dir.
func NewReportWriter(blobs storage.BlobStore, dir string) *ReportWriter {
	if dir == "" {
		dir = DefaultReportDir
	}
	return &ReportWriter{blobs: blobs, dir: dir}
}

// ReportName is the object name for a report generated on day.
func ReportName(day time.Time) string {
	return fmt.Sprintf("report-%s.json", day.UTC().Format(time.DateOnly))
}

// Path returns the object path for day.
func (w *ReportWriter) Path(day time.Time) string {
	return path.Join(w.dir, ReportName(day))
}

// Write overwrites the report for the report's generation date and returns
// the stored URI.
func (w *ReportWriter) Write(ctx context.Context, report camp.WeeklyReport) (string, error) {
	if report.GeneratedAt.IsZero() {
		return "", fmt.Errorf("report without generation time: %w", camp.ErrInvariant)
	}
	return writeJSON(ctx, w.blobs, w.Path(report.GeneratedAt), report)
}

// Read loads the report written on day.
func (w *ReportWriter) Read(ctx context.Context, day time.Time) (camp.WeeklyReport, bool, error) {
	var report camp.WeeklyReport
	ok, err := readJSON(ctx, w.blobs, w.Path(day), &report)
	return report, ok, err
}

var artifactNameRe = regexp.MustCompile(`^[A-Za-z0-9._-]+_[0-9a-f]{8,64}\.png$`)

// IsArtifactName reports whether name looks like "<entityId>_<hash>.png".
func IsArtifactName(name string) bool {
	return artifactNameRe.MatchString(name)
}

// Pruner deletes aged files. storage/local.BlobStore implements it.
type Pruner interface {
	PruneMatching(dir string, cutoff time.Time, match func(name string) bool) (int, error)
}

// DefaultArtifactMaxAge is how long screenshots are kept.
const DefaultArtifactMaxAge = 7 * 24 * time.Hour

// CleanupArtifacts removes screenshots in dir older than maxAge. An empty
// dir is the pruner's root.
func CleanupArtifacts(p Pruner, dir string, now time.Time, maxAge time.Duration) (int, error) {
	if maxAge <= 0 {
		maxAge = DefaultArtifactMaxAge
	}
	n, err := p.PruneMatching(dir, now.Add(-maxAge), IsArtifactName)
	if err != nil {
		return n, fmt.Errorf("cleanup artifacts: %w: %w", camp.ErrPersistence, err)
	}
	return n, nil
}
