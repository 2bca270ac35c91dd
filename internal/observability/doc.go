// Package observability provides structured logging and metrics for the
// LLM invocation pipeline.
//
// This package implements:
//   - Structured logging (zap-based)
//   - Prometheus metrics for requests, latency, token usage, cache
//     effectiveness and circuit breaker state
//
// Every pipeline stage logs through the shared zap logger; metrics are
// recorded at the client boundary so the resilience layers stay free of
// collector dependencies.
package observability
