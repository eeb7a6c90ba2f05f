// Package job defines the shared data model for long-running jobs:
// the job record, its status state machine, partial-merge patches, and
// the typed human-in-the-loop payloads attached to a paused job.
package job
