package cmd

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/JakeFAU/camp-harvester/internal/pipeline"
	"github.com/JakeFAU/camp-harvester/internal/report"
)

// runHarvestCommand either harvests the selected camps or, with --report,
// rebuilds the report from the stored snapshot. Either way the summary
// tables go to stdout.
func runHarvestCommand(cmd *cobra.Command, f *flags) error {
	appInstance, err := resolveApp(cmd.Context())
	if err != nil {
		return err
	}
	logger := appInstance.GetLogger()
	out := cmd.OutOrStdout()

	if f.report {
		weekly, uri, err := appInstance.Harvester().Regenerate(cmd.Context())
		if err != nil {
			return fmt.Errorf("regenerate report: %w", err)
		}
		if uri != "" {
			logger.Info("Report written", zap.String("uri", uri))
		}
		report.Render(out, weekly)
		return nil
	}

	records, err := appInstance.LoadBaseline()
	if err != nil {
		return fmt.Errorf("load baseline: %w", err)
	}

	sum, err := appInstance.Harvester().Run(cmd.Context(), pipeline.Input{
		Imported:   records,
		NameFilter: f.camp,
		Limit:      f.limit,
	})
	if err != nil {
		if errors.Is(err, context.Canceled) {
			return fmt.Errorf("harvest canceled: %w", err)
		}
		return fmt.Errorf("run harvest: %w", err)
	}
	report.Render(out, sum.Report)
	if sum.Run.Deadline {
		logger.Warn("Deadline reached; some camps were not harvested")
	}
	logger.Info("Harvest command finished.",
		zap.String("run_id", sum.Run.RunID),
		zap.String("report", sum.ReportURI),
		zap.Int("published", sum.Published),
		zap.Int("screenshots_pruned", sum.Pruned))
	return nil
}

func resolveApp(ctx context.Context) (App, error) {
	appInstance, ok := ctx.Value(appKey).(App)
	if !ok || appInstance == nil {
		return nil, errors.New("application services not initialized")
	}
	return appInstance, nil
}

func parseDeadline(raw string) (time.Duration, error) {
	d, err := time.ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("--deadline: %w", err)
	}
	if d <= 0 {
		return 0, fmt.Errorf("--deadline must be positive")
	}
	return d, nil
}
