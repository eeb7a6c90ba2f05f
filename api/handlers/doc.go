// Package handlers implements the HTTP surface: job submission and lookup,
// prompt reads, response submission, event streaming, and health probes. The
// handlers are thin; all semantics live in the manager, hitl, and events
// packages.
package handlers
