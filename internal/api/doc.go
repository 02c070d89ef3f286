// Package api implements the HTTP REST API and WebSocket streams for
// SWNCREW Core.
//
// This package provides:
//   - REST endpoints to submit missions, inspect the queue and toggle the
//     scheduler's active flag
//   - Classification ingress and completed-mission history
//   - Read access to the valve and flowmeter catalogue
//   - WebSocket streams of completed and classified missions
//   - Prometheus metrics and a health endpoint
//   - Middleware stack (request ID, logging, recovery, CORS, body limit)
//
// # Validation
//
// Mission and classification bodies are first checked against embedded
// JSON schemas (400 bad_request on failure), then against the mission
// model's rules (422 validation_error with the offending field).
//
// # Streams
//
// Each WebSocket connection is one subscriber of a notification topic.
// The classified stream replays the most recent result on connect; the
// completed stream only carries missions that finish after connecting.
package api
