package rpcext

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ccworker/pruntime-core/blockctx"
	"github.com/ccworker/pruntime-core/gatekeeper"
	"github.com/ccworker/pruntime-core/identity"
	"github.com/ccworker/pruntime-core/keylifecycle"
)

type fakeBlockSource blockctx.Context

func (f fakeBlockSource) CurrentBlock() blockctx.Context { return blockctx.Context(f) }

func newTestServer(t *testing.T) (*Server, *identity.Identity) {
	t.Helper()
	seed, err := identity.GenerateSeed()
	require.NoError(t, err)
	self := identity.FromSeed(seed)

	dir := t.TempDir()
	var sealKey [32]byte
	copy(sealKey[:], []byte("rpcext-test-seal-key-0123456789"))
	store := keylifecycle.NewSealStore(dir+"/history.sealed", sealKey)
	kls, err := keylifecycle.NewKLS(self, store)
	require.NoError(t, err)

	return NewServer(kls, nil, fakeBlockSource{BlockNumber: 42, NowMs: 1000}), self
}

func TestGatekeeperStatusNoneWhenNotAGatekeeper(t *testing.T) {
	s, _ := newTestServer(t)
	rr := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/v1/gatekeeper_status", nil)
	s.Mux().ServeHTTP(rr, req)

	var body map[string]string
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
	assert.Equal(t, string(RoleNone), body["role"])
}

func TestGatekeeperStatusActiveWhenRegistered(t *testing.T) {
	s, _ := newTestServer(t)
	s.gk = gatekeeper.NewEngine(gatekeeper.DefaultParams())
	s.gk.RegisterOnChain()

	rr := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/v1/gatekeeper_status", nil)
	s.Mux().ServeHTTP(rr, req)

	var body map[string]string
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
	assert.Equal(t, string(RoleActive), body["role"])
}

// The verify endpoint never accepts a caller-supplied pubkey: it round-trips
// exactly what worker_key_challenge returned and checks it against this
// worker's own current identity.
func TestChallengeGetThenVerifyRoundTrip(t *testing.T) {
	s, _ := newTestServer(t)

	rr := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/v1/worker_key_challenge", nil)
	s.Mux().ServeHTTP(rr, req)

	var wire challengeWire
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &wire))
	assert.Equal(t, uint64(42), wire.BlockNumber)
	assert.Equal(t, uint64(1000), wire.NowMs)

	reqBody, err := json.Marshal(wire)
	require.NoError(t, err)

	rr2 := httptest.NewRecorder()
	req2 := httptest.NewRequest(http.MethodPost, "/v1/worker_key_verify", bytes.NewReader(reqBody))
	s.Mux().ServeHTTP(rr2, req2)

	var verifyBody map[string]bool
	require.NoError(t, json.Unmarshal(rr2.Body.Bytes(), &verifyBody))
	assert.True(t, verifyBody["verified"])

	// The slot is now empty: replaying the same body must not verify again.
	rr3 := httptest.NewRecorder()
	req3 := httptest.NewRequest(http.MethodPost, "/v1/worker_key_verify", bytes.NewReader(reqBody))
	s.Mux().ServeHTTP(rr3, req3)
	var replayBody map[string]bool
	require.NoError(t, json.Unmarshal(rr3.Body.Bytes(), &replayBody))
	assert.False(t, replayBody["verified"])
}

func TestChallengeVerifyFailsAfterIdentityRotation(t *testing.T) {
	s, self := newTestServer(t)

	rr := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/v1/worker_key_challenge", nil)
	s.Mux().ServeHTTP(rr, req)

	var wire challengeWire
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &wire))

	newSeed, err := identity.GenerateSeed()
	require.NoError(t, err)
	self.ReplaceKeys(newSeed)

	reqBody, err := json.Marshal(wire)
	require.NoError(t, err)

	rr2 := httptest.NewRecorder()
	req2 := httptest.NewRequest(http.MethodPost, "/v1/worker_key_verify", bytes.NewReader(reqBody))
	s.Mux().ServeHTTP(rr2, req2)

	var verifyBody map[string]bool
	require.NoError(t, json.Unmarshal(rr2.Body.Bytes(), &verifyBody))
	assert.False(t, verifyBody["verified"])
}

func TestIsRegisteredFalseWithoutMasterKey(t *testing.T) {
	s, _ := newTestServer(t)
	rr := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/v1/is_registered", nil)
	s.Mux().ServeHTTP(rr, req)

	var body map[string]bool
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
	assert.False(t, body["registered"])
}
