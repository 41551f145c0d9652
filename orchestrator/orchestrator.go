package orchestrator

import (
	"encoding/hex"

	"github.com/ccworker/pruntime-core/blockctx"
	"github.com/ccworker/pruntime-core/chainstore"
	"github.com/ccworker/pruntime-core/errs"
	"github.com/ccworker/pruntime-core/gatekeeper"
	"github.com/ccworker/pruntime-core/identity"
	"github.com/ccworker/pruntime-core/keylifecycle"
	"github.com/ccworker/pruntime-core/log"
	"github.com/ccworker/pruntime-core/metrics"
	"github.com/ccworker/pruntime-core/mq"
	"github.com/ccworker/pruntime-core/worker"
)

var logger = log.NewModuleLogger("orchestrator")

// Orchestrator is the System Orchestrator (spec.md §4.4, component C7):
// it wires WSM, KLS and the gatekeeper engine together and drives one
// tick per block.
type Orchestrator struct {
	self    *identity.Identity
	version Version

	local  *worker.State
	driver *localDriver

	kls *keylifecycle.KLS

	// gk is nil until this worker is elected/bootstrapped as a gatekeeper
	// (spec.md §4.3 "first gatekeeper bootstrap"); ProcessMessages only
	// runs when non-nil.
	gk *gatekeeper.Engine

	router *mq.Router
	egress Egress

	// lastBlock is the most recent tick's block context, exposed to the
	// external interfaces (spec.md §4.6) so the worker-key challenge can
	// be stamped with the worker's own notion of "now" rather than
	// requiring a caller-supplied block/time.
	lastBlock blockctx.Context

	// chain is an optional local snapshot of on-chain facts (gatekeeper
	// list, cluster configs) kept for faster restarts; nil is fine, every
	// write through it is best-effort.
	chain *chainstore.Store

	retireConditions []mq.RetireCondition
	onRetire         func(mq.RetireCondition)

	contracts     map[string]*contractEntry
	contractOrder []string
}

// New builds an Orchestrator for self, with its own WSM seeded
// Unregistered and no gatekeeper role yet.
func New(self *identity.Identity, version Version, kls *keylifecycle.KLS, router *mq.Router, egress Egress) *Orchestrator {
	o := &Orchestrator{
		self:      self,
		version:   version,
		local:     worker.New(self.PubKey()),
		kls:       kls,
		router:    router,
		egress:    egress,
		contracts: make(map[string]*contractEntry),
	}
	o.driver = newLocalDriver(self, egress)
	o.onRetire = func(c mq.RetireCondition) {
		errs.Fatal("orchestrator: pruntime version %+v matches retirement condition %+v", o.version, c)
	}
	return o
}

// SetChainStore attaches an optional local snapshot of on-chain facts.
// Not calling this is fine; writes through a nil store are skipped.
func (o *Orchestrator) SetChainStore(s *chainstore.Store) { o.chain = s }

// BecomeGatekeeper installs a gatekeeper engine on this orchestrator, used
// once RegisterOnChain succeeds for this worker (spec.md §4.3 bootstrap,
// or an on-chain GatekeeperChange election in a full deployment).
func (o *Orchestrator) BecomeGatekeeper(gk *gatekeeper.Engine) { o.gk = gk }

// Gatekeeper returns this orchestrator's gatekeeper engine, or nil.
func (o *Orchestrator) Gatekeeper() *gatekeeper.Engine { return o.gk }

// LocalState returns this worker's own WSM replica.
func (o *Orchestrator) LocalState() *worker.State { return o.local }

// CurrentBlock returns the block context of the most recently processed
// tick, for collaborators (e.g. rpcext.Server) that need "now" without
// driving the tick loop themselves.
func (o *Orchestrator) CurrentBlock() blockctx.Context { return o.lastBlock }

// Tick drains the router and runs one full block's worth of processing
// (spec.md §4.4 "tick loop"): dispatch by topic, end-of-block hooks, the
// gatekeeper pass, and the out-of-scope contract iteration.
func (o *Orchestrator) Tick(blockNumber, nowMs uint64) {
	block := blockctx.Context{BlockNumber: blockNumber, NowMs: nowMs}
	o.lastBlock = block
	msgs := o.router.Drain()
	metrics.RouterQueueDepth.Set(float64(len(msgs)))

	for _, m := range msgs {
		o.dispatch(block, m)
	}

	o.local.OnBlockEnd(block, o.driver)

	if o.gk != nil {
		if report, ok := o.gk.ProcessMessages(block, msgs); ok {
			o.emitReport(report)
		}
	}

	o.drainContracts()
}

func (o *Orchestrator) dispatch(block blockctx.Context, m mq.Message) {
	switch mq.TopicOf(m.Event) {
	case mq.TopicSystemEvent:
		o.local.ProcessEvent(block, m.Event, o.driver, true)

	case mq.TopicPRuntimeManagementEvent:
		if ev, ok := m.Event.(mq.RetirePRuntime); ok {
			o.handleRetirePRuntime(ev)
		}

	case mq.TopicGatekeeperLaunch:
		switch ev := m.Event.(type) {
		case mq.FirstGatekeeper:
			o.handleFirstGatekeeper(ev, block.BlockNumber)
		case mq.RotateMasterKey:
			o.handleRotateMasterKey()
		}

	case mq.TopicGatekeeperChange:
		if ev, ok := m.Event.(mq.GatekeeperRegisteredEvent); ok {
			dist, shouldSend, err := o.kls.HandleGatekeeperRegistered(ev)
			if err != nil {
				logger.Error("new-peer master key onboarding failed", "err", err)
			} else if shouldSend {
				o.egress.Push(mq.FromGatekeeper(), dist)
			}
			if o.chain != nil {
				if err := o.chain.PutGatekeeper(hex.EncodeToString(ev.PubKey[:])); err != nil {
					logger.Error("chainstore: failed to record gatekeeper", "err", err)
				}
			}
		}

	case mq.TopicKeyDistribution:
		switch ev := m.Event.(type) {
		case mq.MasterKeyDistribution:
			if _, err := o.kls.HandleMasterKeyDistribution(ev, block.BlockNumber); err != nil {
				logger.Error("master key distribution failed", "err", err)
			}
		case mq.MasterKeyRotation:
			if _, err := o.kls.HandleMasterKeyRotation(ev, block.BlockNumber); err != nil {
				logger.Error("master key rotation failed", "err", err)
			}
		case mq.WorkerKeyHandover:
			if _, err := o.kls.UpdateWorkerKey(ev); err != nil {
				logger.Error("worker key handover failed", "err", err)
			}
		}

	case mq.TopicClusterOperation:
		if ev, ok := m.Event.(mq.BatchDispatchClusterKeyEvent); ok {
			onboarded, err := o.kls.HandleClusterDispatch(ev)
			if err != nil {
				logger.Error("cluster dispatch failed", "err", err)
				return
			}
			if onboarded && o.chain != nil {
				o.snapshotCluster(ev.ClusterID)
			}
		}

	case mq.TopicContractOperation:
		if ev, ok := m.Event.(mq.ContractOperation); ok {
			o.dispatchContractOperation(ev)
		}
	}
}

func (o *Orchestrator) handleFirstGatekeeper(ev mq.FirstGatekeeper, block uint64) {
	addressed, justSealed, err := o.kls.Bootstrap(ev, block)
	if err != nil {
		logger.Error("first-gatekeeper bootstrap failed", "err", err)
		return
	}
	if !addressed {
		return
	}
	if o.gk == nil {
		o.gk = gatekeeper.NewEngine(gatekeeper.DefaultParams())
	}
	o.gk.RegisterOnChain()

	if justSealed {
		if masterPub, has := o.kls.MasterPubKey(); has {
			o.egress.Push(mq.FromGatekeeper(), mq.MasterPubkeyEvent{MasterPubKey: masterPub})
		}
	}
}

func (o *Orchestrator) handleRotateMasterKey() {
	if o.gk == nil || !o.gk.Registered() {
		return
	}
	ev, err := o.kls.RotateMasterKey()
	if err != nil {
		logger.Error("master key rotation generation failed", "err", err)
		return
	}
	o.egress.Push(mq.FromGatekeeper(), ev)
}

func (o *Orchestrator) emitReport(report *gatekeeper.Report) {
	o.egress.Push(mq.FromGatekeeper(), *report)
}

func (o *Orchestrator) snapshotCluster(clusterID string) {
	c, ok := o.kls.Cluster(clusterID)
	if !ok {
		return
	}
	members := make([]string, len(c.Members))
	for i, m := range c.Members {
		members[i] = hex.EncodeToString(m[:])
	}
	rec := chainstore.ClusterRecord{ID: c.ID, Config: c.Config, Members: members}
	if err := o.chain.PutCluster(rec); err != nil {
		logger.Error("chainstore: failed to snapshot cluster", "err", err)
	}
}
