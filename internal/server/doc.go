// Package server wires the HTTP surface: the EventSub callback endpoint,
// health and readiness probes, Prometheus metrics, and a small inspection
// API over stored notifications.
package server
