// Package observability provides the logging, metrics and tracing used by
// the bridge.
//
// Logging is slog with secret redaction. Metrics are Prometheus collectors
// registered against a caller supplied registerer so tests can use a private
// registry. Tracing is OpenTelemetry exported over OTLP/gRPC; with no
// endpoint configured the global no-op provider is used and spans cost
// nothing.
package observability
