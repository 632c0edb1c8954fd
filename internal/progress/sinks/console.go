package sinks

import (
	"context"
	"fmt"
	"io"
	"sync"

	"github.com/JakeFAU/camp-harvester/internal/progress"
)

// ConsoleSink prints one line per finished entity, with its best strategy
// and final quality, to a terminal or log file.
type ConsoleSink struct {
	mu    sync.Mutex
	out   io.Writer
	done  int
	total int
}

// NewConsoleSink writes progress lines to out.
func NewConsoleSink(out io.Writer) *ConsoleSink {
	return &ConsoleSink{out: out}
}

// Consume prints entity completions and run boundaries.
func (s *ConsoleSink) Consume(_ context.Context, batch []progress.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, evt := range batch {
		var line string
		switch evt.Stage {
		case progress.StageRunStart:
			s.total, s.done = evt.Count, 0
			line = fmt.Sprintf("harvesting %d camps", evt.Count)
		case progress.StageEntityDone:
			s.done++
			best := evt.Strategy
			if best == "" {
				best = "none"
			}
			suffix := ""
			if evt.FromCache {
				suffix = " (cached)"
			}
			line = fmt.Sprintf("[%d/%d] %-32s quality=%3d best=%s%s", s.done, s.total, label(evt), evt.Quality, best, suffix)
		case progress.StageEntityError:
			s.done++
			line = fmt.Sprintf("[%d/%d] %-32s error: %s", s.done, s.total, label(evt), evt.Note)
		case progress.StageRunDone:
			line = fmt.Sprintf("finished %d camps in %s", evt.Count, evt.Dur.Round(1e9))
		default:
			continue
		}
		if _, err := fmt.Fprintln(s.out, line); err != nil {
			return fmt.Errorf("write progress line: %w", err)
		}
	}
	return nil
}

func label(evt progress.Event) string {
	if evt.Name != "" {
		return evt.Name
	}
	return evt.EntityID
}

// Close implements the Sink interface; it performs no action.
func (s *ConsoleSink) Close(context.Context) error {
	return nil
}
