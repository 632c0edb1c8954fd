// Package progress carries per-camp milestones from the orchestrator to
// observers. The orchestrator emits through Emitter without ever blocking;
// Hub batches events on one goroutine and fans each batch out to its sinks.
package progress
