// Package events provides per-job progress streaming: an unbounded queue of
// typed events per job id, managed by a registry. Queues are strictly
// isolated; an event pushed for one job is never visible from another job's
// queue. Consumers read until the terminal done event.
package events
