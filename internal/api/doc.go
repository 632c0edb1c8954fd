// Package api hosts the read-only status server started by
// `campharvest serve`. Routes:
//   - GET /healthz and /readyz for probes.
//   - GET /metrics for Prometheus scraping.
//   - GET /v1/camps, /v1/camps/{camp_id} and /v1/camps/{camp_id}/changes.
//   - GET /v1/runs for the pipeline log, newest first.
//   - GET /v1/reports/{date} where date is YYYY-MM-DD or "latest".
//   - GET /v1/review for the manual review queue.
package api
