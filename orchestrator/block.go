// Package orchestrator implements the System Orchestrator (spec.md §4.4,
// component C7): the top-level tick loop wiring the Worker State Machine,
// Key Lifecycle Subsystem, and Gatekeeper Engine together, dispatching
// drained router messages by topic and running end-of-block hooks.
package orchestrator

import (
	"github.com/ccworker/pruntime-core/blockctx"
	"github.com/ccworker/pruntime-core/mq"
)

// Egress is the outbound signed-message sink a background sender drains
// (spec.md §5 "egress"). The orchestrator only ever produces messages
// here; it never blocks waiting for them to actually leave the process.
type Egress interface {
	Push(origin mq.Origin, ev interface{})
}

// Block is the richer per-tick context the orchestrator works with,
// embedding the minimal blockctx.Context the state machines take plus the
// collaborators only orchestration code needs.
type Block struct {
	blockctx.Context
	Router *mq.Router
	Egress Egress
}
