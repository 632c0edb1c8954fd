package sinks

import (
	"context"

	"go.uber.org/zap"

	"github.com/JakeFAU/camp-harvester/internal/progress"
)

// LogSink emits structured logs for progress streams. Strategy events are
// logged at debug level; everything else at info.
type LogSink struct {
	logger *zap.Logger
}

// NewLogSink wires a Zap logger to the sink interface.
func NewLogSink(logger *zap.Logger) *LogSink {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LogSink{logger: logger}
}

// Consume logs each event in the batch using structured fields.
func (s *LogSink) Consume(_ context.Context, batch []progress.Event) error {
	for _, evt := range batch {
		fields := []zap.Field{
			zap.String("run_id", evt.RunUUID().String()),
			zap.String("stage", string(evt.Stage)),
			zap.Duration("dur", evt.Dur),
		}
		if evt.EntityID != "" {
			fields = append(fields, zap.String("camp_id", evt.EntityID))
		}
		if evt.Strategy != "" {
			fields = append(fields, zap.String("strategy", evt.Strategy), zap.Bool("success", evt.Success))
		}
		switch evt.Stage {
		case progress.StageStrategyDone, progress.StageEntityDone:
			fields = append(fields, zap.Int("quality", evt.Quality))
		case progress.StageRunStart, progress.StageRunDone:
			fields = append(fields, zap.Int("entities", evt.Count))
		}
		if evt.FromCache {
			fields = append(fields, zap.Bool("from_cache", true))
		}
		if evt.Note != "" {
			fields = append(fields, zap.String("note", evt.Note))
		}
		switch evt.Stage {
		case progress.StageStrategyDone, progress.StageEntityStart:
			s.logger.Debug("progress event", fields...)
		case progress.StageEntityError:
			s.logger.Warn("progress event", fields...)
		default:
			s.logger.Info("progress event", fields...)
		}
	}
	return nil
}

// Close implements the Sink interface; it performs no action.
func (s *LogSink) Close(context.Context) error {
	return nil
}
