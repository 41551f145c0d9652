// Package identity holds the worker's signing and ECDH keypairs (spec.md
// §3 "Worker identity", §4.1 component C1): sign/verify payloads, derive
// the ECDH keypair deterministically from the signing seed, and compute
// the BLAKE2 hashed_id used for heartbeat challenge matching.
//
// spec.md calls for Schnorrkel sr25519 signing and an X25519-style ECDH.
// No sr25519 implementation shipped in the retrieved pack; this builds on
// crypto/ed25519 (stdlib) for signing and the teacher's own
// golang.org/x/crypto/curve25519 for agreement — the signing-library
// substitution is justified in DESIGN.md.
package identity

import (
	"crypto/ed25519"
	"crypto/rand"
	"io"

	"golang.org/x/crypto/blake2b"
	"golang.org/x/crypto/curve25519"

	"github.com/ccworker/pruntime-core/log"
)

var logger = log.NewModuleLogger("identity")

// PubKey is a worker's immutable signing-key identifier (spec.md §3).
type PubKey [ed25519.PublicKeySize]byte

// HashedID is the 256-bit BLAKE2 hash of a PubKey, used for challenge
// matching (spec.md §3).
type HashedID [32]byte

// Identity is a worker's keypair tuple: signing keypair plus a
// deterministically derived ECDH keypair (spec.md §3).
type Identity struct {
	seed       [ed25519.SeedSize]byte
	signingKey ed25519.PrivateKey
	ecdhPriv   [32]byte
	ecdhPub    [32]byte
}

// GenerateSeed draws a fresh 32-byte seed from a CSPRNG (spec.md §4.3,
// first-gatekeeper bootstrap: "generate a fresh 32-byte seed").
func GenerateSeed() ([32]byte, error) {
	var seed [32]byte
	if _, err := io.ReadFull(rand.Reader, seed[:]); err != nil {
		return seed, err
	}
	return seed, nil
}

// FromSeed constructs an Identity from a 32-byte seed, deriving the signing
// keypair and the ECDH keypair deterministically from it.
func FromSeed(seed [32]byte) *Identity {
	signingKey := ed25519.NewKeyFromSeed(seed[:])

	// The ECDH scalar is derived from the signing seed under a distinct
	// domain-separated hash, keeping the two keypairs cryptographically
	// independent while remaining a deterministic function of one seed
	// (spec.md §3: "The ECDH key is deterministically derived from the
	// signing key").
	h, _ := blake2b.New256([]byte("ecdh_key"))
	h.Write(seed[:])
	var ecdhPriv [32]byte
	copy(ecdhPriv[:], h.Sum(nil))
	ecdhPriv[0] &= 248
	ecdhPriv[31] &= 127
	ecdhPriv[31] |= 64

	var ecdhPub [32]byte
	curve25519.ScalarBaseMult(&ecdhPub, &ecdhPriv)

	id := &Identity{signingKey: signingKey, ecdhPriv: ecdhPriv, ecdhPub: ecdhPub}
	copy(id.seed[:], seed[:])
	return id
}

// ReplaceKeys rotates this identity's signing and ECDH keypairs in place,
// deriving both deterministically from a new seed, the same way FromSeed
// does for a fresh Identity (spec.md §4.3 "worker-key handover": "replace
// both the signing keypair and the ECDH keypair of the worker's own
// identity").
func (id *Identity) ReplaceKeys(seed [32]byte) {
	replaced := FromSeed(seed)
	id.seed = replaced.seed
	id.signingKey = replaced.signingKey
	id.ecdhPriv = replaced.ecdhPriv
	id.ecdhPub = replaced.ecdhPub
}

// PubKey returns the worker's signing public key.
func (id *Identity) PubKey() PubKey {
	var pk PubKey
	copy(pk[:], id.signingKey.Public().(ed25519.PublicKey))
	return pk
}

// ECDHPubKey returns the worker's derived ECDH public key.
func (id *Identity) ECDHPubKey() [32]byte { return id.ecdhPub }

// Seed returns the 32-byte seed the identity was constructed from (needed
// to append this identity's signing keypair into the master-key history,
// spec.md §3).
func (id *Identity) Seed() [32]byte { return id.seed }

// Sign signs an arbitrary payload under the signing key.
func (id *Identity) Sign(payload []byte) []byte {
	return ed25519.Sign(id.signingKey, payload)
}

// Verify checks a signature against a given public key.
func Verify(pk PubKey, payload, sig []byte) bool {
	return ed25519.Verify(ed25519.PublicKey(pk[:]), payload, sig)
}

// ECDHAgree computes the shared secret between this identity's ECDH
// private key and a peer's ECDH public key (spec.md §4.3, §6).
func (id *Identity) ECDHAgree(peerECDHPub [32]byte) ([32]byte, error) {
	var shared [32]byte
	out, err := curve25519.X25519(id.ecdhPriv[:], peerECDHPub[:])
	if err != nil {
		return shared, err
	}
	copy(shared[:], out)
	return shared, nil
}

// Hash computes the hashed_id for a PubKey (spec.md §3).
func Hash(pk PubKey) HashedID {
	return blake2b.Sum256(pk[:])
}

// ChallengeHit reports whether hashed_id XOR seed <= online_target under
// big-endian U256 comparison (spec.md §4.1, glossary "Challenge hit").
func ChallengeHit(hashedID HashedID, seed [32]byte, onlineTarget [32]byte) bool {
	var x [32]byte
	for i := range x {
		x[i] = hashedID[i] ^ seed[i]
	}
	for i := 0; i < 32; i++ {
		if x[i] != onlineTarget[i] {
			return x[i] < onlineTarget[i]
		}
	}
	return true
}
