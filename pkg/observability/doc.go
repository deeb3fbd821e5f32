// Package observability provides structured logging, Prometheus metrics and
// optional OpenTelemetry tracing for the identity bridge.
//
// The logger emits JSON via stdlib slog and supports request-scoped fields
// carried through context. Metrics cover authentication operations, validator
// outcomes and signing-key fetches.
package observability
