// Package telemetry wires the OpenTelemetry SDK: a TracerProvider and
// MeterProvider exporting over OTLP gRPC, registered as the process globals.
// When telemetry is disabled nothing is exported and the globals stay noop.
package telemetry
