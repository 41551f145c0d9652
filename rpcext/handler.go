// Package rpcext exposes the worker's external interfaces (spec.md §4.6,
// component C8): the worker-key challenge/verify pair, gatekeeper status,
// and registration status. The teacher's own networks/rpc package only
// partially survived retrieval (no server/framework code, just a test),
// and this repo already rejected golang.org/x/grpc and httprouter as
// fabricated-codegen risks for the Message Router's wire format — so
// these handlers are plain net/http plus encoding/json, justified in
// DESIGN.md rather than grounded on a retrieved framework.
package rpcext

import (
	"encoding/hex"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/ccworker/pruntime-core/blockctx"
	"github.com/ccworker/pruntime-core/gatekeeper"
	"github.com/ccworker/pruntime-core/keylifecycle"
	"github.com/ccworker/pruntime-core/log"
)

var logger = log.NewModuleLogger("rpcext")

var (
	errMalformedNonce = errors.New("malformed nonce")
	errMalformedSig   = errors.New("malformed signature")
)

// Role is this worker's gatekeeper role (spec.md §4.6 "gatekeeper_status").
type Role string

const (
	RoleNone   Role = "None"
	RoleDummy  Role = "Dummy"
	RoleActive Role = "Active"
)

// BlockSource supplies the worker's own notion of "now" to the challenge
// handler, so get_worker_key_challenge never needs a caller-supplied
// block number or timestamp (spec.md §4.6).
type BlockSource interface {
	CurrentBlock() blockctx.Context
}

// Server wires the KLS and gatekeeper engine into HTTP handlers.
type Server struct {
	kls   *keylifecycle.KLS
	gk    *gatekeeper.Engine
	block BlockSource
}

// NewServer builds a Server. gk may be nil if this worker has never
// become a gatekeeper.
func NewServer(kls *keylifecycle.KLS, gk *gatekeeper.Engine, block BlockSource) *Server {
	return &Server{kls: kls, gk: gk, block: block}
}

// Mux returns an http.Handler exposing all four external interfaces under
// /v1/.
func (s *Server) Mux() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/v1/worker_key_challenge", s.handleGetChallenge)
	mux.HandleFunc("/v1/worker_key_verify", s.handleVerifyChallenge)
	mux.HandleFunc("/v1/gatekeeper_status", s.handleGatekeeperStatus)
	mux.HandleFunc("/v1/is_registered", s.handleIsRegistered)
	return mux
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.Error("failed to encode rpc response", "err", err)
	}
}

// challengeWire is the wire shape of a keylifecycle.WorkerKeyChallenge:
// both the challenge and verify endpoints speak this, so a caller can
// round-trip get_worker_key_challenge's response straight into
// worker_key_verify's request body unchanged (spec.md §4.6). It is
// signed by the worker's own identity at issuance; the verify endpoint
// never accepts or needs a pubkey, since it always checks against this
// worker's *current* identity.
type challengeWire struct {
	BlockNumber uint64 `json:"block_number"`
	NowMs       uint64 `json:"now_ms"`
	Nonce       string `json:"nonce"`
	Sig         string `json:"sig"`
}

func toWire(c keylifecycle.WorkerKeyChallenge) challengeWire {
	return challengeWire{
		BlockNumber: c.BlockNumber,
		NowMs:       c.NowMs,
		Nonce:       hex.EncodeToString(c.Nonce[:]),
		Sig:         hex.EncodeToString(c.Sig),
	}
}

func fromWire(w challengeWire) (keylifecycle.WorkerKeyChallenge, error) {
	var c keylifecycle.WorkerKeyChallenge
	nonce, err := hex.DecodeString(w.Nonce)
	if err != nil || len(nonce) != len(c.Nonce) {
		return c, errMalformedNonce
	}
	sig, err := hex.DecodeString(w.Sig)
	if err != nil {
		return c, errMalformedSig
	}
	c.BlockNumber = w.BlockNumber
	c.NowMs = w.NowMs
	copy(c.Nonce[:], nonce)
	c.Sig = sig
	return c, nil
}

func (s *Server) handleGetChallenge(w http.ResponseWriter, r *http.Request) {
	block := s.block.CurrentBlock()
	c, err := s.kls.GetWorkerKeyChallenge(block.BlockNumber, block.NowMs)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, toWire(c))
}

func (s *Server) handleVerifyChallenge(w http.ResponseWriter, r *http.Request) {
	var wire challengeWire
	if err := json.NewDecoder(r.Body).Decode(&wire); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "malformed request"})
		return
	}
	c, err := fromWire(wire)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}

	ok := s.kls.VerifyWorkerKeyChallenge(c)
	writeJSON(w, http.StatusOK, map[string]bool{"verified": ok})
}

func (s *Server) handleGatekeeperStatus(w http.ResponseWriter, r *http.Request) {
	role := RoleNone
	if s.gk != nil {
		if s.gk.Registered() {
			role = RoleActive
		} else {
			role = RoleDummy
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"role": string(role)})
}

func (s *Server) handleIsRegistered(w http.ResponseWriter, r *http.Request) {
	_, hasMasterKey := s.kls.Latest()
	writeJSON(w, http.StatusOK, map[string]bool{"registered": hasMasterKey})
}
