package worker

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/ccworker/pruntime-core/blockctx"
	"github.com/ccworker/pruntime-core/identity"
)

type fakeCollaborator struct {
	iters       uint64
	resumed     int
	paused      int
	reports     []uint64
	heartbeats  []uint64
}

func (f *fakeCollaborator) BenchIterations() uint64 { return f.iters }
func (f *fakeCollaborator) BenchResume()            { f.resumed++ }
func (f *fakeCollaborator) BenchPause()              { f.paused++ }
func (f *fakeCollaborator) BenchReport(startTimeMs uint64, iterations uint64) {
	f.reports = append(f.reports, iterations)
}
func (f *fakeCollaborator) Heartbeat(sessionID, challengeBlock, nowMs, iterations uint64) {
	f.heartbeats = append(f.heartbeats, challengeBlock)
}

func testPubKey(b byte) identity.PubKey {
	var pk identity.PubKey
	pk[0] = b
	return pk
}

func TestRegisteredIsMonotone(t *testing.T) {
	pk := testPubKey(1)
	s := New(pk)
	cb := &fakeCollaborator{}
	blk := blockctx.Context{BlockNumber: 1}

	s.ProcessEvent(blk, Registered{PubKey: pk, ConfidenceLevel: 2}, cb, false)
	assert.True(t, s.Registered)

	// A later unrelated event must not clear registration.
	s.ProcessEvent(blk, MiningStop{PubKey: pk}, cb, false)
	assert.True(t, s.Registered)
}

func TestMiningStopIsNoopWithoutMiningState(t *testing.T) {
	pk := testPubKey(2)
	s := New(pk)
	cb := &fakeCollaborator{}
	blk := blockctx.Context{BlockNumber: 1}

	s.ProcessEvent(blk, MiningStop{PubKey: pk}, cb, false)
	assert.Nil(t, s.Mining)
	assert.Equal(t, 0, cb.paused)
}

func TestHeartbeatChallengeRequiresRegisteredAndActiveMining(t *testing.T) {
	pk := testPubKey(3)
	s := New(pk)
	cb := &fakeCollaborator{}
	blk := blockctx.Context{BlockNumber: 2}

	var maxTarget [32]byte
	for i := range maxTarget {
		maxTarget[i] = 0xff
	}

	// Not registered, not mining: no heartbeat.
	s.ProcessEvent(blk, HeartbeatChallenge{PubKey: pk, OnlineTarget: maxTarget}, cb, false)
	assert.Empty(t, cb.heartbeats)

	s.ProcessEvent(blk, Registered{PubKey: pk}, cb, false)
	s.ProcessEvent(blk, MiningStart{PubKey: pk, SessionID: 1}, cb, false)
	s.ProcessEvent(blk, HeartbeatChallenge{PubKey: pk, OnlineTarget: maxTarget}, cb, false)
	assert.Len(t, cb.heartbeats, 1)
	assert.Equal(t, uint64(2), cb.heartbeats[0])
}

func TestHeartbeatChallengeMissWhenAboveTarget(t *testing.T) {
	pk := testPubKey(4)
	s := New(pk)
	cb := &fakeCollaborator{}
	blk := blockctx.Context{BlockNumber: 2}

	s.ProcessEvent(blk, Registered{PubKey: pk}, cb, false)
	s.ProcessEvent(blk, MiningStart{PubKey: pk, SessionID: 1}, cb, false)

	var zeroTarget [32]byte
	if s.HashedID != (identity.HashedID{}) {
		s.ProcessEvent(blk, HeartbeatChallenge{PubKey: pk, OnlineTarget: zeroTarget}, cb, false)
		assert.Empty(t, cb.heartbeats)
	}
}

func TestEnterExitUnresponsiveOnlyWhileMiningActive(t *testing.T) {
	pk := testPubKey(5)
	s := New(pk)
	cb := &fakeCollaborator{}
	blk := blockctx.Context{BlockNumber: 1}

	// No mining state: logged as unexpected, no transition, no panic.
	s.ProcessEvent(blk, MiningEnterUnresponsive{PubKey: pk}, cb, true)
	assert.Nil(t, s.Mining)

	s.ProcessEvent(blk, MiningStart{PubKey: pk, SessionID: 7}, cb, false)
	s.ProcessEvent(blk, MiningEnterUnresponsive{PubKey: pk}, cb, false)
	assert.Equal(t, Paused, s.Mining.Phase)

	s.ProcessEvent(blk, MiningExitUnresponsive{PubKey: pk}, cb, false)
	assert.Equal(t, Active, s.Mining.Phase)
}

func TestBenchCompletionOnBlockEnd(t *testing.T) {
	pk := testPubKey(6)
	s := New(pk)
	cb := &fakeCollaborator{iters: 100}
	blk := blockctx.Context{BlockNumber: 1}

	s.ProcessEvent(blk, BenchStart{PubKey: pk, DurationBlocks: 5}, cb, false)
	assert.NotNil(t, s.Bench)

	cb.iters = 150
	s.OnBlockEnd(blockctx.Context{BlockNumber: 3}, cb)
	assert.NotNil(t, s.Bench) // duration not reached yet

	s.OnBlockEnd(blockctx.Context{BlockNumber: 6}, cb)
	assert.Nil(t, s.Bench)
	assert.Equal(t, []uint64{50}, cb.reports)
	assert.Equal(t, 1, cb.paused) // need_pause: no mining state either
}

func TestNeedPauseOnMiningStopOnlyWhenNoBench(t *testing.T) {
	pk := testPubKey(7)
	s := New(pk)
	cb := &fakeCollaborator{}
	blk := blockctx.Context{BlockNumber: 1}

	s.ProcessEvent(blk, BenchStart{PubKey: pk, DurationBlocks: 10}, cb, false)
	s.ProcessEvent(blk, MiningStart{PubKey: pk, SessionID: 1}, cb, false)
	s.ProcessEvent(blk, MiningStop{PubKey: pk}, cb, false)
	assert.Equal(t, 0, cb.paused) // bench still running, no pause
}
