package keylifecycle

import (
	"crypto/rand"
	"encoding/binary"
	"io"

	"github.com/ccworker/pruntime-core/identity"
)

// WorkerKeyChallenge is a one-shot challenge signed by the worker's
// identity at issuance time (spec.md §4.3 "worker-key challenge",
// original_source/phactory/src/system/gk.rs challenge_time handling). The
// whole mechanism exists to detect an identity rotation between issue and
// verify: VerifyWorkerKeyChallenge only ever checks the signature against
// the KLS's *current* self identity, never a caller-supplied key, so a
// worker-key handover between the two calls makes every outstanding
// challenge unverifiable.
type WorkerKeyChallenge struct {
	BlockNumber uint64
	NowMs       uint64
	Nonce       [32]byte
	Sig         []byte
}

// DataToSign is the payload signed at issuance and re-verified at
// verification time.
func (c WorkerKeyChallenge) DataToSign() []byte {
	buf := make([]byte, 16, 16+len(c.Nonce))
	binary.BigEndian.PutUint64(buf[0:8], c.BlockNumber)
	binary.BigEndian.PutUint64(buf[8:16], c.NowMs)
	return append(buf, c.Nonce[:]...)
}

// GetWorkerKeyChallenge draws a fresh random nonce, stamps it with the
// current block and time, signs it under this worker's current identity,
// and makes it the sole outstanding challenge, discarding whatever was
// previously outstanding (spec.md §4.6 "external interfaces").
func (k *KLS) GetWorkerKeyChallenge(blockNumber, nowMs uint64) (WorkerKeyChallenge, error) {
	var nonce [32]byte
	if _, err := io.ReadFull(rand.Reader, nonce[:]); err != nil {
		return WorkerKeyChallenge{}, err
	}
	c := WorkerKeyChallenge{BlockNumber: blockNumber, NowMs: nowMs, Nonce: nonce}
	c.Sig = k.self.Sign(c.DataToSign())
	k.challenge = c
	return c, nil
}

// VerifyWorkerKeyChallenge reports whether c matches the single
// outstanding challenge and carries a valid signature under this worker's
// own *current* identity, clearing the slot only on a match. A mismatch
// (including one caused by an identity rotation since issuance) leaves
// the slot untouched, so a legitimate retry after a dropped response can
// still succeed.
func (k *KLS) VerifyWorkerKeyChallenge(c WorkerKeyChallenge) bool {
	if !k.challenge.issued() {
		return false
	}
	if c.BlockNumber != k.challenge.BlockNumber || c.NowMs != k.challenge.NowMs || c.Nonce != k.challenge.Nonce {
		return false
	}
	if !identity.Verify(k.self.PubKey(), c.DataToSign(), c.Sig) {
		return false
	}
	k.challenge = WorkerKeyChallenge{}
	return true
}

// issued reports whether this challenge was ever populated by
// GetWorkerKeyChallenge (a signature is always non-empty once issued).
func (c WorkerKeyChallenge) issued() bool { return len(c.Sig) > 0 }
