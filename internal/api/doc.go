// Package api hosts the HTTP server, middleware, and REST handlers for the
// image search pipeline. Notable routes:
//   - GET /healthz for liveness probes.
//   - GET /metrics for Prometheus scraping.
//   - POST /v1/searches to run a search; GET /v1/searches/{id} to read it back
//     from the cache.
//   - GET /v1/searches/{id}/images/{index} streams the image at a 1-based
//     position as JPEG; POST .../save persists it.
//   - GET /v1/history lists recent searches when a history store is configured.
package api
