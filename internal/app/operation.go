package app

import (
	"time"

	"safekeep/internal/sk"
)

// invocationIDLayout formats the invocation ID that tags every log line.
const invocationIDLayout = "20060102T150405Z"

// Invocation describes one CLI command run: who runs it, what it is, and
// how it ended. It supplies the request context recorded in audit entries.
type Invocation struct {
	ID      string
	Command string // e.g. "backup create"
	Actor   string // username; empty runs anonymously
	Status  string // "success" or "error"

	mutated bool
}

// NewInvocation creates an invocation of command on behalf of actor.
func NewInvocation(command, actor string, now time.Time) *Invocation {
	return &Invocation{
		ID:      now.UTC().Format(invocationIDLayout),
		Command: command,
		Actor:   actor,
		Status:  "success",
	}
}

// RequestContext returns the audit request context for this invocation.
// The CLI runs locally, so only the user agent carries information.
func (inv *Invocation) RequestContext() *sk.RequestContext {
	return &sk.RequestContext{UserAgent: "sk/" + inv.Command}
}

// Fail marks the invocation as failed.
func (inv *Invocation) Fail() {
	inv.Status = "error"
}

// MarkMutated records that the invocation changed the metadata store.
func (inv *Invocation) MarkMutated() {
	inv.mutated = true
}

// Mutated reports whether the invocation changed the metadata store.
func (inv *Invocation) Mutated() bool {
	return inv.mutated
}
