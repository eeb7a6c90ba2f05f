// Package runner executes multi-phase workflows against the job core. Each
// phase reports its transitions through the job manager, streams progress to
// the job's event queue, and may suspend for human input through the hitl
// checkpoint protocol. The phase bodies themselves are supplied by the
// caller; the runner owns only the lifecycle plumbing around them.
package runner
