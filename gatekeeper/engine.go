package gatekeeper

import (
	"math/big"

	"github.com/ccworker/pruntime-core/blockctx"
	"github.com/ccworker/pruntime-core/common/fixedpoint"
	"github.com/ccworker/pruntime-core/errs"
	"github.com/ccworker/pruntime-core/identity"
	"github.com/ccworker/pruntime-core/log"
	"github.com/ccworker/pruntime-core/metrics"
	"github.com/ccworker/pruntime-core/mq"
	"github.com/ccworker/pruntime-core/worker"
)

var logger = log.NewModuleLogger("gatekeeper")

// HeartbeatToleranceWindow is the number of blocks a registered heartbeat
// challenge may go unanswered before a worker is declared offline
// (spec.md §4.2 "HEARTBEAT_TOLERANCE_WINDOW").
const HeartbeatToleranceWindow = 10

// record is the gatekeeper's per-worker replica (spec.md §4.2 "per-worker
// record"): a replayed WSM plus the FIFO of outstanding heartbeat
// challenges and the worker's tokenomic ledger.
type record struct {
	state             *worker.State
	waitingHeartbeats []uint64
	unresponsive      bool
	tokenomic         TokenomicInfo
	heartbeatFlag     bool
}

// Engine is the Gatekeeper Engine (spec.md §4.2, component C6): a
// replicated observer that replays every worker's state machine, tracks
// heartbeat windows, and runs the tokenomic updates.
type Engine struct {
	workers    map[identity.PubKey]*record
	order      []identity.PubKey
	params     Params
	registered bool
}

// NewEngine builds an empty engine over the given tokenomic parameters.
func NewEngine(params Params) *Engine {
	return &Engine{workers: make(map[identity.PubKey]*record), params: params}
}

// RegisterOnChain idempotently marks this gatekeeper as registered
// on-chain (spec.md §4.3 "first gatekeeper bootstrap"). Safe to call more
// than once; only the first call has any effect.
func (e *Engine) RegisterOnChain() {
	if e.registered {
		return
	}
	e.registered = true
	logger.Info("gatekeeper registered on chain")
}

// Registered reports whether RegisterOnChain has run, for gatekeeper_status
// (spec.md §4.6 "external interfaces").
func (e *Engine) Registered() bool { return e.registered }

// Workers returns the tracked public keys, in the order their records were
// created, for diagnostics and tests.
func (e *Engine) Workers() []identity.PubKey { return append([]identity.PubKey{}, e.order...) }

// heartbeatRecorder captures only the Heartbeat callback, appending the
// challenge's block number to the worker's waiting_heartbeats FIFO
// (spec.md §4.2: "a recorder that only captures heartbeat's challenge_block
// into waiting_heartbeats"). Every other Collaborator method is a no-op:
// the gatekeeper's replica does not run a real benchmark.
type heartbeatRecorder struct{ rec *record }

func (h heartbeatRecorder) BenchIterations() uint64    { return 0 }
func (h heartbeatRecorder) BenchResume()               {}
func (h heartbeatRecorder) BenchPause()                {}
func (h heartbeatRecorder) BenchReport(uint64, uint64) {}
func (h heartbeatRecorder) Heartbeat(sessionID, challengeBlock, nowMs, iterations uint64) {
	h.rec.waitingHeartbeats = append(h.rec.waitingHeartbeats, challengeBlock)
}

// noopCollaborator captures nothing; used for end-of-block bench-completion
// replay, which the gatekeeper's replica runs only to keep bench_state
// consistent, not because bench payouts are its concern (spec.md §4.2
// "post-block bookkeeping, step 1").
type noopCollaborator struct{}

func (noopCollaborator) BenchIterations() uint64                 { return 0 }
func (noopCollaborator) BenchResume()                             {}
func (noopCollaborator) BenchPause()                              {}
func (noopCollaborator) BenchReport(uint64, uint64)               {}
func (noopCollaborator) Heartbeat(uint64, uint64, uint64, uint64) {}

// ProcessMessages drains and dispatches one tick's worth of messages,
// advances the tokenomic ledgers, and returns the accumulated report
// (spec.md §4.2 "process_messages"). ok is false when the report carries
// nothing worth emitting.
func (e *Engine) ProcessMessages(block blockctx.Context, msgs []mq.Message) (report *Report, ok bool) {
	report = &Report{BlockNumber: block.BlockNumber, TimestampMs: block.NowMs}

	sumShare := fixedpoint.Zero()
	for _, pk := range e.order {
		sumShare = sumShare.Add(e.workers[pk].tokenomic.Share())
	}
	for _, rec := range e.workers {
		rec.heartbeatFlag = false
	}

	for _, m := range msgs {
		switch mq.TopicOf(m.Event) {
		case mq.TopicMiningReportEvent:
			if hb, isHeartbeat := m.Event.(worker.Heartbeat); isHeartbeat {
				e.processHeartbeat(m.Origin, hb, block, sumShare, report)
			}
		case mq.TopicSystemEvent:
			e.processSystemEvent(m.Origin, m.Event, block, report)
		default:
			// Not ours: KeyDistribution, ClusterOperation, etc. are
			// consumed by other subsystems subscribed to the same router.
		}
	}

	e.runPostBlockBookkeeping(block, report)

	return report, !report.IsEmpty()
}

// processHeartbeat handles one MiningReportEvent::Heartbeat (spec.md §4.2
// "heartbeat handling").
func (e *Engine) processHeartbeat(origin mq.Origin, ev worker.Heartbeat, block blockctx.Context, sumShare fixedpoint.Fixed, report *Report) {
	if !origin.IsWorker() {
		logger.Warn("heartbeat from non-worker origin ignored", "pubkey", ev.PubKey)
		return
	}
	rec, ok := e.workers[origin.Worker]
	if !ok {
		logger.Warn("heartbeat from unknown worker ignored", "pubkey", origin.Worker)
		return
	}
	if len(rec.waitingHeartbeats) == 0 || rec.waitingHeartbeats[0] != ev.ChallengeBlock {
		metrics.HeartbeatsObserved.WithLabelValues("mismatch").Inc()
		errs.Fatal("gatekeeper: heartbeat for block %d does not match front of waiting_heartbeats for worker %x", ev.ChallengeBlock, origin.Worker)
		return
	}
	metrics.HeartbeatsObserved.WithLabelValues("matched").Inc()
	rec.waitingHeartbeats = rec.waitingHeartbeats[1:]

	if rec.state.Mining == nil || rec.state.Mining.SessionID != ev.SessionID {
		return
	}
	rec.heartbeatFlag = true
	rec.tokenomic.UpdatePInstant(block.NowMs, ev.Iterations)
	rec.tokenomic.IterationLast = ev.Iterations
	rec.tokenomic.ChallengeTimeLastMs = ev.ChallengeTime

	if rec.unresponsive {
		return
	}
	payout := rec.tokenomic.UpdateVHeartbeat(sumShare, block.NowMs, e.params)
	metrics.VDistribution.Observe(rec.tokenomic.V.Float64())
	report.Settle = append(report.Settle, SettleInfo{PubKey: origin.Worker, V: rec.tokenomic.V, Payout: payout})
}

// processSystemEvent replays a SystemEvent against every tracked worker's
// WSM, lazily inserting a new record on Registered (spec.md §4.2 "system
// event handling").
func (e *Engine) processSystemEvent(origin mq.Origin, ev interface{}, block blockctx.Context, report *Report) {
	if !origin.IsPallet() {
		logger.Warn("system event from non-pallet origin ignored")
		return
	}

	if reg, isRegistered := ev.(worker.Registered); isRegistered {
		if _, exists := e.workers[reg.PubKey]; !exists {
			rec := &record{state: worker.New(reg.PubKey)}
			e.workers[reg.PubKey] = rec
			e.order = append(e.order, reg.PubKey)
		}
	}

	for _, pk := range e.order {
		rec := e.workers[pk]
		rec.state.ProcessEvent(block, ev, heartbeatRecorder{rec: rec}, false)
	}

	e.applySystemEventSideEffects(ev, report)
}

// applySystemEventSideEffects folds the tokenomic side effects of a system
// event into the target worker's ledger (spec.md §4.2.1). These run after
// the WSM replay above so s.Mining/s.Registered already reflect the event.
func (e *Engine) applySystemEventSideEffects(ev interface{}, report *Report) {
	switch ev := ev.(type) {
	case worker.Registered:
		if rec, ok := e.workers[ev.PubKey]; ok {
			rec.tokenomic.ConfidenceLevel = ev.ConfidenceLevel
		}
	case worker.BenchScore:
		if rec, ok := e.workers[ev.PubKey]; ok {
			rec.tokenomic.PBench = fixedpoint.FromInt(int64(ev.Score))
		}
	case worker.MiningStart:
		if rec, ok := e.workers[ev.PubKey]; ok {
			rec.tokenomic.V = fixedpoint.FromRawBits(new(big.Int).SetBytes(ev.InitV[:]))
			rec.tokenomic.VLast = rec.tokenomic.V
			rec.tokenomic.VUpdateAtMs = 0
			rec.tokenomic.IterationLast = 0
			rec.tokenomic.ChallengeTimeLastMs = 0
		}
	case worker.MiningStop:
		if rec, ok := e.workers[ev.PubKey]; ok {
			report.Settle = append(report.Settle, SettleInfo{PubKey: ev.PubKey, V: rec.tokenomic.V, Payout: fixedpoint.Zero()})
		}
	}
}

// runPostBlockBookkeeping runs the end-of-block pass over every worker:
// bench-completion replay, offline/recovery detection, and the five-case
// economic update (spec.md §4.2 "post-block bookkeeping").
func (e *Engine) runPostBlockBookkeeping(block blockctx.Context, report *Report) {
	defer e.reportUnresponsiveGauge()

	for _, pk := range e.order {
		rec := e.workers[pk]
		rec.state.OnBlockEnd(block, noopCollaborator{})

		if rec.state.Mining == nil {
			continue
		}

		wasUnresponsive := rec.unresponsive
		justTurnedUnresponsive := false

		if !rec.unresponsive && len(rec.waitingHeartbeats) > 0 &&
			block.BlockNumber-rec.waitingHeartbeats[0] > HeartbeatToleranceWindow {
			report.Offline = append(report.Offline, pk)
			rec.unresponsive = true
			justTurnedUnresponsive = true
		}

		if rec.unresponsive && rec.heartbeatFlag {
			rec.unresponsive = false
			report.RecoveredToOnline = append(report.RecoveredToOnline, pk)
		}

		switch {
		case !wasUnresponsive && !justTurnedUnresponsive && !rec.heartbeatFlag:
			rec.tokenomic.UpdateVIdle(e.params) // case 1: idle
		case !wasUnresponsive && rec.heartbeatFlag:
			// case 2: already settled during heartbeat handling above
		case justTurnedUnresponsive:
			rec.tokenomic.UpdateVSlash(e.params) // case 3: just went offline
		case wasUnresponsive && !rec.heartbeatFlag:
			rec.tokenomic.UpdateVSlash(e.params) // case 4: still offline
		case wasUnresponsive && rec.heartbeatFlag:
			// case 5: just recovered, no slash or payout this block
		}
	}
}

// reportUnresponsiveGauge publishes the current unresponsive-worker count.
func (e *Engine) reportUnresponsiveGauge() {
	count := 0
	for _, pk := range e.order {
		if e.workers[pk].unresponsive {
			count++
		}
	}
	metrics.WorkersUnresponsive.Set(float64(count))
}
