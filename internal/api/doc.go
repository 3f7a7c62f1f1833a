// Package api hosts the admin HTTP server started by the schedule command.
// Routes:
//   - GET /healthz and /readyz for probes; readyz reports 503 after a failed run.
//   - GET /metrics for Prometheus scraping.
//   - GET /v1/runs/last for the scheduler status and last report.
//   - POST /v1/runs to start a run immediately (X-API-Key when configured).
package api
