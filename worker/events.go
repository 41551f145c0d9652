package worker

import "github.com/ccworker/pruntime-core/identity"

// Events on the SystemEvent topic (spec.md §4.1) that the worker state
// machine dispatches on. Only events whose PubKey matches a given State
// are acted on by State.ProcessEvent.

type Registered struct {
	PubKey          identity.PubKey
	ConfidenceLevel int
}

type BenchStart struct {
	PubKey         identity.PubKey
	DurationBlocks uint64
}

type BenchScore struct {
	PubKey identity.PubKey
	Score  uint64
}

type MiningStart struct {
	PubKey    identity.PubKey
	SessionID uint64
	InitV     [16]byte // raw 128-bit fixed-point bit pattern
}

type MiningStop struct {
	PubKey identity.PubKey
}

type MiningEnterUnresponsive struct {
	PubKey identity.PubKey
}

type MiningExitUnresponsive struct {
	PubKey identity.PubKey
}

type HeartbeatChallenge struct {
	PubKey       identity.PubKey
	Seed         [32]byte
	OnlineTarget [32]byte
}

// Heartbeat is the MiningReportEvent a worker emits when a heartbeat
// challenge hits (spec.md §6); the gatekeeper consumes it on the same
// topic name.
type Heartbeat struct {
	PubKey         identity.PubKey
	SessionID      uint64
	ChallengeBlock uint64
	ChallengeTime  uint64
	Iterations     uint64
}
