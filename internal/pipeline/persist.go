package pipeline

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/camp-harvester/internal/camp"
	"github.com/JakeFAU/camp-harvester/internal/report"
	"github.com/JakeFAU/camp-harvester/internal/store"
)

// ReportWindow is how far back the change log is read when a report is
// regenerated from the snapshot.
const ReportWindow = 7 * 24 * time.Hour

// persist writes run artifacts in order. The snapshot goes first so a
// failure leaves the previous one in place; any store failure stops the
// sequence. Publication, the run mirror and screenshot cleanup are best
// effort.
func (o *Orchestrator) persist(ctx context.Context, sum *Summary, logger *zap.Logger) error {
	now := sum.Run.FinishedAt

	if err := o.deps.Snapshots.Save(ctx, sum.Records); err != nil {
		logger.Error("failed to write snapshot", zap.Error(err))
		return err
	}

	changes := make([]camp.ChangeSet, 0)
	for _, res := range sum.Results {
		if res.Changes.HasChanges {
			changes = append(changes, res.Changes)
		}
	}
	if _, err := o.deps.ChangeLog.Append(ctx, changes, now); err != nil {
		logger.Error("failed to write change log", zap.Error(err))
		return err
	}
	sum.Published = o.publish(ctx, changes, logger)

	if err := o.deps.PipelineLog.Append(ctx, sum.Run, now); err != nil {
		logger.Error("failed to write pipeline log", zap.Error(err))
		return err
	}
	if o.deps.Runs != nil {
		if err := o.deps.Runs.RecordRun(ctx, sum.Run, sum.Results); err != nil {
			logger.Warn("failed to mirror run summary", zap.Error(err))
		}
	}

	uri, err := o.deps.Reports.Write(ctx, sum.Report)
	if err != nil {
		logger.Error("failed to write report", zap.Error(err))
		return err
	}
	sum.ReportURI = uri

	if err := o.deps.Review.Save(ctx); err != nil {
		logger.Error("failed to write review queue", zap.Error(err))
		return err
	}
	if o.deps.Cache != nil {
		if err := o.deps.Cache.Save(ctx); err != nil {
			logger.Error("failed to write cache", zap.Error(err))
			return err
		}
	}
	if err := o.deps.Log.Save(ctx); err != nil {
		logger.Error("failed to write extraction log", zap.Error(err))
		return err
	}

	if o.deps.Artifacts != nil {
		n, err := store.CleanupArtifacts(o.deps.Artifacts, o.cfg.ArtifactDir, now, o.cfg.ArtifactMaxAge)
		if err != nil {
			logger.Warn("screenshot cleanup failed", zap.Error(err))
		}
		sum.Pruned = n
		if n > 0 {
			logger.Info("removed old screenshots", zap.Int("count", n))
		}
	}
	return nil
}

func (o *Orchestrator) publish(ctx context.Context, changes []camp.ChangeSet, logger *zap.Logger) int {
	if o.deps.Publisher == nil {
		return 0
	}
	published := 0
	for _, cs := range changes {
		id, err := o.deps.Publisher.Publish(ctx, o.cfg.ChangeTopic, cs)
		if err != nil {
			logger.Warn("failed to publish change set", zap.String("camp_id", cs.EntityID), zap.Error(err))
			continue
		}
		published++
		logger.Debug("published change set", zap.String("camp_id", cs.EntityID), zap.String("message_id", id))
	}
	return published
}

// Regenerate rebuilds the report from the current snapshot and extraction
// log without harvesting. Changes come from the change log entries of the
// past week. The report is written unless in dry-run mode.
func (o *Orchestrator) Regenerate(ctx context.Context) (camp.WeeklyReport, string, error) {
	records, err := o.deps.Snapshots.Load(ctx)
	if err != nil {
		return camp.WeeklyReport{}, "", err
	}
	if err := o.deps.Log.Load(ctx); err != nil {
		return camp.WeeklyReport{}, "", err
	}
	entries, err := o.deps.ChangeLog.Entries(ctx)
	if err != nil {
		return camp.WeeklyReport{}, "", err
	}
	now := o.deps.Clock.Now()
	cutoff := now.Add(-ReportWindow)
	recent := make([]camp.ChangeSet, 0, len(entries))
	for _, cs := range entries {
		if !cs.DetectedAt.Before(cutoff) {
			recent = append(recent, cs)
		}
	}
	weekly := report.Build(report.Input{
		GeneratedAt:   now,
		Entities:      report.FromRecords(records),
		Changes:       recent,
		Effectiveness: o.deps.Log.Effectiveness(),
	})
	if o.cfg.DryRun {
		return weekly, "", nil
	}
	uri, err := o.deps.Reports.Write(ctx, weekly)
	if err != nil {
		return weekly, "", err
	}
	o.logger.Info("report regenerated", zap.String("uri", uri), zap.Int("camps", len(records)))
	return weekly, uri, nil
}
