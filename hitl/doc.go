// Package hitl implements the human-in-the-loop suspend/resume protocol:
// checkpoints captured by the workflow runner, the per-job wait primitive the
// runner blocks on, prompt reads with lazy self-healing, and response
// submission with explicit accepted/ignored/forbidden/not-found outcomes.
package hitl
