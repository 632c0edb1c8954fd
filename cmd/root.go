// Package cmd defines and implements the CLI for the campharvest executable.
package cmd

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/JakeFAU/camp-harvester/internal/app"
	"github.com/JakeFAU/camp-harvester/internal/camp"
	internalconfig "github.com/JakeFAU/camp-harvester/internal/config"
	"github.com/JakeFAU/camp-harvester/internal/logging"
	"github.com/JakeFAU/camp-harvester/internal/pipeline"
	"github.com/JakeFAU/camp-harvester/pkg/config"
)

// appKeyType is the key for storing the App in the context.
type appKeyType string

const appKey appKeyType = "app"

// Harvester runs or regenerates a harvest. *pipeline.Orchestrator
// implements it.
type Harvester interface {
	Run(ctx context.Context, in pipeline.Input) (pipeline.Summary, error)
	Regenerate(ctx context.Context) (camp.WeeklyReport, string, error)
}

// App defines the application interface that commands will use.
// This allows us to inject a mock app during tests.
type App interface {
	Close(ctx context.Context)
	GetLogger() *zap.Logger
	LoadBaseline() ([]camp.Record, error)
	Harvester() Harvester
	StatusHandler() (http.Handler, error)
}

type appAdapter struct {
	*app.App
}

func (a appAdapter) Harvester() Harvester {
	return a.GetOrchestrator()
}

// newApp is the application factory. It's a variable so we can
// replace it with a mock factory in our tests.
var newApp = func(ctx context.Context, cfg internalconfig.Config, opts app.Options, logger *zap.Logger) (App, error) {
	a, err := app.New(ctx, cfg, opts, logger)
	if err != nil {
		return nil, err
	}
	return appAdapter{a}, nil
}

// flags holds the root command's flag values.
type flags struct {
	camp        string
	limit       int
	strategy    string
	report      bool
	dryRun      bool
	verbose     bool
	force       bool
	concurrency int
	deadline    string
}

// newRootCmd creates and configures the root command.
func newRootCmd() *cobra.Command {
	f := &flags{}
	cmd := &cobra.Command{
		Use:   "campharvest",
		Short: "Harvests summer camp details from camp websites.",
		Long: `campharvest visits every tracked camp's website, extracts pricing,
sessions, hours, ages and registration details with several acquisition
strategies, merges and scores what it finds and records what changed since
the last run. Each run writes a snapshot, a change log, a pipeline log, a
dated report and a review queue of camps that need a human look.`,
		SilenceUsage: true,
		Args:         cobra.NoArgs,

		// This hook runs AFTER config is loaded but BEFORE RunE.
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			if f.verbose {
				if err := logging.SetVerbose(); err != nil {
					return err
				}
			}
			cfg, err := internalconfig.Load(viper.GetViper())
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			if cfg.Logging.Development && !f.verbose {
				if logger, err := logging.New(true); err == nil {
					logging.L = logger
				}
			}
			opts, err := f.options(cmd)
			if err != nil {
				return err
			}

			appInstance, err := newApp(cmd.Context(), cfg, opts, logging.L)
			if err != nil {
				return fmt.Errorf("failed to initialize application services: %w", err)
			}

			// Store the app instance in the context for RunE to use.
			ctx := context.WithValue(cmd.Context(), appKey, appInstance)
			cmd.SetContext(ctx)
			return nil
		},

		// Services are closed even when the harvest fails so progress is
		// flushed and metrics are pushed.
		RunE: func(cmd *cobra.Command, _ []string) error {
			defer closeApp(cmd)
			return runHarvestCommand(cmd, f)
		},
	}

	// Initialize Viper configuration.
	cobra.OnInitialize(config.InitConfig)

	fl := cmd.Flags()
	cmd.PersistentFlags().StringVar(&config.ConfigFile, "config", "", "config file (default is ./config.yaml, /etc/campharvest/ or $HOME/.campharvest)")
	cmd.PersistentFlags().BoolVarP(&f.verbose, "verbose", "v", false, "debug logging")
	fl.StringVar(&f.camp, "camp", "", "only harvest camps whose name contains this text")
	fl.IntVar(&f.limit, "limit", 0, "harvest at most this many camps")
	fl.StringVar(&f.strategy, "strategy", "", "strategy to run: static-fetch, rendered, accessibility, screenshot, llm or all (default from config)")
	fl.BoolVar(&f.report, "report", false, "regenerate the report from the current snapshot without harvesting")
	fl.BoolVar(&f.dryRun, "dry-run", false, "harvest but write nothing")
	fl.BoolVar(&f.force, "force", false, "ignore the content cache")
	fl.IntVar(&f.concurrency, "concurrency", 0, "camps harvested in parallel (default from config)")
	fl.StringVar(&f.deadline, "deadline", "", "stop starting new camps after this long, e.g. 45m")

	cmd.AddCommand(newServeCmd())
	return cmd
}

func (f *flags) options(cmd *cobra.Command) (app.Options, error) {
	opts := app.Options{
		DryRun:      f.dryRun,
		Force:       f.force,
		Concurrency: f.concurrency,
		Progress:    cmd.ErrOrStderr(),
		StatusOnly:  cmd.Name() == serveCmdName,
	}
	if f.limit < 0 {
		return opts, fmt.Errorf("--limit must be >= 0")
	}
	if f.concurrency < 0 {
		return opts, fmt.Errorf("--concurrency must be >= 0")
	}
	if f.strategy != "" {
		strategies, err := internalconfig.ParseStrategies([]string{f.strategy})
		if err != nil {
			return opts, fmt.Errorf("--strategy: %w", err)
		}
		opts.Strategies = strategies
	}
	if f.deadline != "" {
		d, err := parseDeadline(f.deadline)
		if err != nil {
			return opts, err
		}
		opts.Deadline = d
	}
	return opts, nil
}

func closeApp(cmd *cobra.Command) {
	if appInstance, ok := cmd.Context().Value(appKey).(App); ok && appInstance != nil {
		appInstance.Close(context.WithoutCancel(cmd.Context()))
	}
}

// Execute is the main entry point. It exits with status 1 when the command
// fails.
func Execute() {
	// Initialize the logger once at the very start.
	logging.InitLogger()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := newRootCmd().ExecuteContext(ctx)
	stop()
	if err != nil {
		logging.L.Fatal("Command execution failed", zap.Error(err))
	}
}
