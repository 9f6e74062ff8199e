// Package telemetry installs the OpenTelemetry SDK providers used by the
// server. Metrics are collected on demand through a manual reader and
// rendered as JSON points; ended spans are written to the structured log.
package telemetry
