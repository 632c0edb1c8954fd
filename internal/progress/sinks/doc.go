// Package sinks holds the progress consumers wired by the app: zap logs, a
// terminal printer for interactive runs and Prometheus collectors.
package sinks
