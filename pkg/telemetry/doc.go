// Package telemetry wires OpenTelemetry tracing and metrics plus the
// Prometheus registry for the hook governance gate.
//
// It centralises trace provider setup, records governance operation outcomes
// and finalization decisions on spans and meters, and exposes HTTP request
// metrics for scraping.
package telemetry
