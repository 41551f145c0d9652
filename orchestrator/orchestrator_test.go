package orchestrator

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ccworker/pruntime-core/identity"
	"github.com/ccworker/pruntime-core/keylifecycle"
	"github.com/ccworker/pruntime-core/mq"
	"github.com/ccworker/pruntime-core/worker"
)

type fakeEgress struct {
	pushed []mq.Origin
	events []interface{}
}

func (f *fakeEgress) Push(origin mq.Origin, ev interface{}) {
	f.pushed = append(f.pushed, origin)
	f.events = append(f.events, ev)
}

func newTestOrchestrator(t *testing.T) (*Orchestrator, *mq.Router, *fakeEgress) {
	t.Helper()
	seed, err := identity.GenerateSeed()
	require.NoError(t, err)
	self := identity.FromSeed(seed)

	dir := t.TempDir()
	var sealKey [32]byte
	copy(sealKey[:], []byte("orchestrator-test-seal-key-3210"))
	store := keylifecycle.NewSealStore(dir+"/history.sealed", sealKey)
	kls, err := keylifecycle.NewKLS(self, store)
	require.NoError(t, err)

	router := mq.NewRouter()
	eg := &fakeEgress{}
	o := New(self, Version{0, 1, 0}, kls, router, eg)
	return o, router, eg
}

func TestTickDispatchesSystemEventToLocalState(t *testing.T) {
	o, router, _ := newTestOrchestrator(t)
	router.Push(mq.FromPallet("system"), worker.Registered{PubKey: o.self.PubKey(), ConfidenceLevel: 2})

	o.Tick(1, 6000)

	assert.True(t, o.LocalState().Registered)
}

func TestTickBootstrapsFirstGatekeeper(t *testing.T) {
	o, router, eg := newTestOrchestrator(t)
	router.Push(mq.FromPallet("system"), mq.FirstGatekeeper{PubKey: o.self.PubKey()})

	o.Tick(1, 6000)

	require.NotNil(t, o.Gatekeeper())
	assert.True(t, o.Gatekeeper().Registered())

	masterPub, has := o.kls.MasterPubKey()
	require.True(t, has)
	require.Len(t, eg.events, 1)
	pubEv, ok := eg.events[0].(mq.MasterPubkeyEvent)
	require.True(t, ok)
	assert.Equal(t, masterPub, pubEv.MasterPubKey)
}

func TestTickBootstrapReplayDoesNotReemitMasterPubkey(t *testing.T) {
	o, router, eg := newTestOrchestrator(t)
	router.Push(mq.FromPallet("system"), mq.FirstGatekeeper{PubKey: o.self.PubKey()})
	o.Tick(1, 6000)
	require.Len(t, eg.events, 1)

	router.Push(mq.FromPallet("system"), mq.FirstGatekeeper{PubKey: o.self.PubKey()})
	o.Tick(2, 12000)
	assert.Len(t, eg.events, 1, "a bootstrap replay must not re-publish the master pubkey")
}

func TestTickIgnoresFirstGatekeeperForAnotherWorker(t *testing.T) {
	o, router, _ := newTestOrchestrator(t)
	other := testPubKey(0x42)
	router.Push(mq.FromPallet("system"), mq.FirstGatekeeper{PubKey: other})

	o.Tick(1, 6000)

	assert.Nil(t, o.Gatekeeper())
}

func TestRetirementAbortsOnVersionMatch(t *testing.T) {
	o, router, _ := newTestOrchestrator(t)
	aborted := false
	o.onRetire = func(mq.RetireCondition) { aborted = true }

	router.Push(mq.FromPallet("system"), mq.RetirePRuntime{
		Condition: mq.RetireCondition{Kind: mq.VersionIs, Major: 0, Minor: 1, Patch: 0},
	})
	o.Tick(1, 6000)

	assert.True(t, aborted)
	assert.Len(t, o.retireConditions, 1)
}

func TestRetirementIgnoresNonMatchingVersion(t *testing.T) {
	o, router, _ := newTestOrchestrator(t)
	aborted := false
	o.onRetire = func(mq.RetireCondition) { aborted = true }

	router.Push(mq.FromPallet("system"), mq.RetirePRuntime{
		Condition: mq.RetireCondition{Kind: mq.VersionIs, Major: 9, Minor: 9, Patch: 9},
	})
	o.Tick(1, 6000)

	assert.False(t, aborted)
	assert.Len(t, o.retireConditions, 1, "condition still accumulates even when it doesn't match")
}

func TestContractOperationsQueuedThenDrainedOnTick(t *testing.T) {
	o, router, _ := newTestOrchestrator(t)
	router.Push(mq.FromContract("c1"), mq.ContractOperation{ContractID: "c1", Payload: []byte("a")})
	router.Push(mq.FromContract("c2"), mq.ContractOperation{ContractID: "c2", Payload: []byte("b")})

	o.Tick(1, 6000)

	assert.ElementsMatch(t, []string{"c1", "c2"}, o.contractOrder)
	assert.Empty(t, o.contracts["c1"].pending, "drainContracts clears pending on tick")
}

func testPubKey(b byte) identity.PubKey {
	var pk identity.PubKey
	for i := range pk {
		pk[i] = b
	}
	return pk
}
