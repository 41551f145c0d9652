package orchestrator

import (
	"sync/atomic"

	"github.com/ccworker/pruntime-core/identity"
	"github.com/ccworker/pruntime-core/mq"
	"github.com/ccworker/pruntime-core/worker"
)

// BenchCompletedReport is what a worker pushes to the pallet when its own
// benchmark window ends (spec.md §4.1 "on_block_end"); the pallet is the
// one that subsequently broadcasts the canonical SystemEvent::BenchScore
// back out to every replica.
type BenchCompletedReport struct {
	PubKey      identity.PubKey
	StartTimeMs uint64
	Iterations  uint64
}

// localDriver is this worker's own worker.Collaborator: it tracks a real
// (monotonic, sidevm-reported in a full deployment) iteration counter and
// turns WSM callbacks into signed egress messages, rather than just
// recording state the way the gatekeeper's replica collaborators do.
type localDriver struct {
	self       *identity.Identity
	egress     Egress
	iterations uint64 // atomic
	running    int32  // atomic bool
}

func newLocalDriver(self *identity.Identity, egress Egress) *localDriver {
	return &localDriver{self: self, egress: egress}
}

func (d *localDriver) BenchIterations() uint64 { return atomic.LoadUint64(&d.iterations) }

func (d *localDriver) BenchResume() { atomic.StoreInt32(&d.running, 1) }

func (d *localDriver) BenchPause() { atomic.StoreInt32(&d.running, 0) }

// AddIterations lets the (out-of-scope) benchmark sidevm report progress;
// it is a no-op while paused.
func (d *localDriver) AddIterations(n uint64) {
	if atomic.LoadInt32(&d.running) == 0 {
		return
	}
	atomic.AddUint64(&d.iterations, n)
}

func (d *localDriver) BenchReport(startTimeMs uint64, iterations uint64) {
	d.egress.Push(mq.FromWorker(d.self.PubKey()), BenchCompletedReport{
		PubKey:      d.self.PubKey(),
		StartTimeMs: startTimeMs,
		Iterations:  iterations,
	})
}

func (d *localDriver) Heartbeat(sessionID, challengeBlock, nowMs, iterations uint64) {
	ev := worker.Heartbeat{
		PubKey:         d.self.PubKey(),
		SessionID:      sessionID,
		ChallengeBlock: challengeBlock,
		ChallengeTime:  nowMs,
		Iterations:     iterations,
	}
	d.egress.Push(mq.FromWorker(d.self.PubKey()), ev)
}
