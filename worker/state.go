// Package worker implements the Worker State Machine (spec.md §4.1,
// component C4): per-worker registration/benchmark/mining lifecycle driven
// by on-chain events and heartbeat challenges.
//
// The structuring follows the teacher's work/worker.go idiom: a small
// struct holding mutable lifecycle state, atomic-style guarded transitions,
// and a capability interface (Collaborator) the state machine calls out to
// rather than mutating global state directly (spec.md §9 design note).
package worker

import (
	"github.com/ccworker/pruntime-core/blockctx"
	"github.com/ccworker/pruntime-core/identity"
	"github.com/ccworker/pruntime-core/log"
)

var logger = log.NewModuleLogger("worker")

// MiningPhase is Active or Paused (spec.md §3).
type MiningPhase int

const (
	Active MiningPhase = iota
	Paused
)

// BenchState is the optional benchmarking window (spec.md §3).
type BenchState struct {
	StartBlock     uint64
	StartTimeMs    uint64
	StartIter      uint64
	DurationBlocks uint64
}

// MiningState is the optional mining session (spec.md §3).
type MiningState struct {
	SessionID   uint64
	Phase       MiningPhase
	StartTimeMs uint64
	StartIter   uint64
}

// State is the per-worker lifecycle record (spec.md §3 "Worker state").
// Both the worker's own local copy and every one of the gatekeeper's
// per-peer replicas are this same type, replayed identically (spec.md
// §4.2: "replays WSM for every worker").
type State struct {
	PubKey     identity.PubKey
	HashedID   identity.HashedID
	Registered bool
	Bench      *BenchState
	Mining     *MiningState
}

// New builds a fresh, Unregistered worker state record.
func New(pk identity.PubKey) *State {
	return &State{PubKey: pk, HashedID: identity.Hash(pk)}
}

// Collaborator is the capability interface the state machine calls into
// (spec.md §4.1, §9). The gatekeeper supplies a recorder that only
// captures Heartbeat's challenge block into waiting_heartbeats; the
// worker's own delegate mutates its local benchmark counter and pushes
// signed reports.
type Collaborator interface {
	BenchIterations() uint64
	BenchResume()
	BenchPause()
	BenchReport(startTimeMs uint64, iterations uint64)
	Heartbeat(sessionID uint64, challengeBlock uint64, nowMs uint64, iterations uint64)
}

// NeedPause reports whether neither bench nor mining state is present
// (spec.md §4.1 "need_pause").
func (s *State) NeedPause() bool {
	return s.Bench == nil && s.Mining == nil
}

// ProcessEvent dispatches ev by kind (spec.md §4.1 "process_event"). Only
// events whose PubKey matches this worker are acted on; callers are
// expected to have already filtered (or to pass logEnabled=false and rely
// on the PubKey check below, as the gatekeeper does when replaying every
// worker against one event).
func (s *State) ProcessEvent(block blockctx.Context, ev interface{}, cb Collaborator, logEnabled bool) {
	switch e := ev.(type) {
	case Registered:
		if e.PubKey != s.PubKey {
			return
		}
		s.Registered = true

	case BenchStart:
		if e.PubKey != s.PubKey {
			return
		}
		s.Bench = &BenchState{
			StartBlock:     block.BlockNumber,
			StartTimeMs:    block.NowMs,
			StartIter:      cb.BenchIterations(),
			DurationBlocks: e.DurationBlocks,
		}
		cb.BenchResume()

	case BenchScore:
		if e.PubKey != s.PubKey {
			return
		}
		if logEnabled {
			logger.Info("bench score observed", "pubkey", e.PubKey, "score", e.Score)
		}

	case MiningStart:
		if e.PubKey != s.PubKey {
			return
		}
		s.Mining = &MiningState{
			SessionID:   e.SessionID,
			Phase:       Active,
			StartTimeMs: block.NowMs,
			StartIter:   cb.BenchIterations(),
		}
		cb.BenchResume()

	case MiningStop:
		if e.PubKey != s.PubKey {
			return
		}
		if s.Mining == nil {
			return // no session to stop: a benign no-op
		}
		s.Mining = nil
		if s.NeedPause() {
			cb.BenchPause()
		}

	case MiningEnterUnresponsive:
		if e.PubKey != s.PubKey {
			return
		}
		if s.Mining != nil && s.Mining.Phase == Active {
			s.Mining.Phase = Paused
		} else if logEnabled {
			logger.Warn("unexpected MiningEnterUnresponsive", "pubkey", e.PubKey)
		}

	case MiningExitUnresponsive:
		if e.PubKey != s.PubKey {
			return
		}
		if s.Mining != nil && s.Mining.Phase == Paused {
			s.Mining.Phase = Active
		} else if logEnabled {
			logger.Warn("unexpected MiningExitUnresponsive", "pubkey", e.PubKey)
		}

	case HeartbeatChallenge:
		if e.PubKey != s.PubKey {
			return
		}
		if !s.Registered || s.Mining == nil || s.Mining.Phase != Active {
			return
		}
		if identity.ChallengeHit(s.HashedID, e.Seed, e.OnlineTarget) {
			cb.Heartbeat(s.Mining.SessionID, block.BlockNumber, block.NowMs, cb.BenchIterations()-s.Mining.StartIter)
		}

	default:
		if logEnabled {
			logger.Debug("unhandled event type in worker state machine", "type", e)
		}
	}
}

// OnBlockEnd fires benchmark completion (spec.md §4.1 "on_block_end").
func (s *State) OnBlockEnd(block blockctx.Context, cb Collaborator) {
	if s.Bench == nil {
		return
	}
	if block.BlockNumber-s.Bench.StartBlock >= s.Bench.DurationBlocks {
		startTime := s.Bench.StartTimeMs
		startIter := s.Bench.StartIter
		s.Bench = nil
		cb.BenchReport(startTime, cb.BenchIterations()-startIter)
		if s.NeedPause() {
			cb.BenchPause()
		}
	}
}
