// Package progress defines the event structures emitted during a harvest run.
package progress

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Stage denotes the type of milestone represented by an Event.
type Stage string

// Supported progress stages.
const (
	StageRunStart     Stage = "RUN_START"
	StageEntityStart  Stage = "ENTITY_START"
	StageStrategyDone Stage = "STRATEGY_DONE"
	StageEntityDone   Stage = "ENTITY_DONE"
	StageEntityError  Stage = "ENTITY_ERROR"
	StageRunDone      Stage = "RUN_DONE"
)

// RunLevel reports whether s marks a run boundary.
func (s Stage) RunLevel() bool {
	return s == StageRunStart || s == StageRunDone
}

// Event captures a single milestone of a harvest run.
type Event struct {
	// RunID identifies the pipeline run using the 16-byte UUID form.
	RunID [16]byte
	// TS is the UTC timestamp recorded by the emitter.
	TS time.Time
	// Stage denotes which milestone occurred.
	Stage Stage
	// EntityID scopes entity and strategy events to one camp.
	EntityID string
	// Name is the camp's display name.
	Name string
	// Strategy is set on STRATEGY_DONE, and on ENTITY_DONE names the best one.
	Strategy string
	// Quality is the strategy or merged quality score.
	Quality int
	// Success reports the strategy outcome.
	Success bool
	// FromCache marks entity results served from the content cache.
	FromCache bool
	// Count carries the entity total on run events.
	Count int
	// Dur captures latency for strategies, entities and runs.
	Dur time.Duration
	// Note lets emitters attach low-volume context (e.g. error text).
	Note string
}

// Validate performs coarse validation on Event payloads.
func (e Event) Validate() error {
	if e.RunID == [16]byte{} {
		return errors.New("run id is required")
	}
	if e.TS.IsZero() {
		return errors.New("timestamp is required")
	}
	switch {
	case e.Stage.RunLevel():
	case e.Stage == StageEntityStart || e.Stage == StageEntityDone || e.Stage == StageEntityError:
		if e.EntityID == "" {
			return fmt.Errorf("%s requires entity id", e.Stage)
		}
	case e.Stage == StageStrategyDone:
		if e.EntityID == "" || e.Strategy == "" {
			return errors.New("strategy done requires entity id and strategy")
		}
	default:
		return fmt.Errorf("unknown stage %q", e.Stage)
	}
	if e.Quality < 0 || e.Quality > 100 {
		return errors.New("quality must be within 0..100")
	}
	if e.Dur < 0 {
		return errors.New("duration must be >= 0")
	}
	return nil
}

// RunUUID converts the binary run ID to uuid.UUID.
func (e Event) RunUUID() uuid.UUID {
	return uuid.UUID(e.RunID)
}

// UUIDToBytes encodes a uuid.UUID into the Event form.
func UUIDToBytes(id uuid.UUID) [16]byte {
	var dest [16]byte
	copy(dest[:], id[:])
	return dest
}

// ParseRunID converts a textual run ID into the Event form.
func ParseRunID(s string) ([16]byte, error) {
	id, err := uuid.Parse(s)
	if err != nil {
		return [16]byte{}, fmt.Errorf("parse run id: %w", err)
	}
	return UUIDToBytes(id), nil
}
