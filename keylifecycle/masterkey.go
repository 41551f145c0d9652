package keylifecycle

import (
	uuid "github.com/satori/go.uuid"

	"github.com/ccworker/pruntime-core/errs"
	"github.com/ccworker/pruntime-core/identity"
	"github.com/ccworker/pruntime-core/mq"
)

// KLS is the Key Lifecycle Subsystem (spec.md §4.3, components C2+C5):
// master-key bootstrap/distribution/rotation, cluster key dispatch and
// contract key derivation, and the worker-key challenge/verify pair.
type KLS struct {
	self    *identity.Identity
	store   *SealStore
	history []MasterKeyRecord

	gatekeepers map[identity.PubKey][32]byte // pubkey -> ecdh pubkey, GatekeeperChange replica
	gkOrder     []identity.PubKey

	clusters     map[string]*Cluster
	clusterOrder []string

	challenge WorkerKeyChallenge
}

// NewKLS constructs a KLS over an identity and its sealed-history store,
// loading any previously persisted master-key history.
func NewKLS(self *identity.Identity, store *SealStore) (*KLS, error) {
	history, err := store.Load()
	if err != nil {
		return nil, err
	}
	return &KLS{
		self:        self,
		store:       store,
		history:     history,
		gatekeepers: make(map[identity.PubKey][32]byte),
		clusters:    make(map[string]*Cluster),
	}, nil
}

// Latest returns the most recent master-key record, or ok=false if no
// master key has been generated or received yet.
func (k *KLS) Latest() (MasterKeyRecord, bool) {
	if len(k.history) == 0 {
		return MasterKeyRecord{}, false
	}
	return k.history[len(k.history)-1], true
}

func (k *KLS) append(rec MasterKeyRecord) error {
	k.history = append(k.history, rec)
	return k.store.Save(k.history)
}

// Bootstrap handles a GatekeeperLaunch::FirstGatekeeper event (spec.md
// §4.3 "first gatekeeper bootstrap"). If ev names this worker and no
// master key is held yet, it generates a fresh one and seals it; the
// caller is responsible for then calling the gatekeeper engine's
// RegisterOnChain and, on justSealed, publishing the resulting master
// public key. If the first gatekeeper reboots and replays this same
// event, it already possesses the master key and must not regenerate it
// (original_source/standalone/pruntime/enclave/src/system/gk.rs), so a
// replay reports addressed=true, justSealed=false. addressed reports
// whether this worker was the one named.
func (k *KLS) Bootstrap(ev mq.FirstGatekeeper, block uint64) (addressed bool, justSealed bool, err error) {
	if ev.PubKey != k.self.PubKey() {
		return false, false, nil
	}
	if _, hasKey := k.Latest(); hasKey {
		logger.Info("first-gatekeeper bootstrap replayed, master key already sealed")
		return true, false, nil
	}
	seed, err := identity.GenerateSeed()
	if err != nil {
		return true, false, errs.Wrap(errs.UnknownError, err, "keylifecycle: generate master key seed")
	}
	if err := k.append(MasterKeyRecord{Seed: seed, CreatedAtBlock: block}); err != nil {
		return true, false, err
	}
	logger.Info("bootstrapped as first gatekeeper, master key sealed")
	return true, true, nil
}

// MasterPubKey returns the public key of the current master key, or
// ok=false if none has been sealed or received yet (spec.md §4.3, egress
// "RegistryEvent::MasterPubkey").
func (k *KLS) MasterPubKey() (pk identity.PubKey, ok bool) {
	rec, hasKey := k.Latest()
	if !hasKey {
		return pk, false
	}
	return identity.FromSeed(rec.Seed).PubKey(), true
}

// HandleGatekeeperRegistered records a new gatekeeper's identity and ECDH
// public key (spec.md §4.3, GatekeeperChange topic). If this KLS already
// holds a master key, it also encrypts a share addressed to the newly
// registered peer for the caller to push as a MasterKeyDistribution
// (spec.md §4.3 "new-peer onboarding"), reusing the same per-peer
// ECDH-encrypt pattern as RotateMasterKey. shouldSend is false when no
// distribution is needed (no master key held yet, or the event names this
// worker itself).
func (k *KLS) HandleGatekeeperRegistered(ev mq.GatekeeperRegisteredEvent) (dist mq.MasterKeyDistribution, shouldSend bool, err error) {
	if _, exists := k.gatekeepers[ev.PubKey]; !exists {
		k.gkOrder = append(k.gkOrder, ev.PubKey)
	}
	k.gatekeepers[ev.PubKey] = ev.ECDHPubKey

	rec, hasKey := k.Latest()
	if !hasKey || ev.PubKey == k.self.PubKey() {
		return mq.MasterKeyDistribution{}, false, nil
	}
	shared, err := k.self.ECDHAgree(ev.ECDHPubKey)
	if err != nil {
		return mq.MasterKeyDistribution{}, false, errs.Wrap(errs.UnknownError, err, "keylifecycle: ecdh agree for new-peer onboarding")
	}
	iv, err := identity.NewIV()
	if err != nil {
		return mq.MasterKeyDistribution{}, false, errs.Wrap(errs.UnknownError, err, "keylifecycle: draw onboarding iv")
	}
	ciphertext, err := identity.Seal(shared, iv, rec.Seed[:])
	if err != nil {
		return mq.MasterKeyDistribution{}, false, errs.Wrap(errs.UnknownError, err, "keylifecycle: seal onboarding share")
	}
	dist = mq.MasterKeyDistribution{
		Dest:               ev.PubKey,
		ECDHPubKey:         k.self.ECDHPubKey(),
		EncryptedMasterKey: ciphertext,
		IV:                 iv,
	}
	return dist, true, nil
}

// HandleMasterKeyDistribution decrypts and appends an inbound master key
// share addressed to this worker (spec.md §4.3 "master key distribution").
// ok is false when ev is not addressed to this worker.
func (k *KLS) HandleMasterKeyDistribution(ev mq.MasterKeyDistribution, block uint64) (ok bool, err error) {
	if ev.Dest != k.self.PubKey() {
		return false, nil
	}
	shared, err := k.self.ECDHAgree(ev.ECDHPubKey)
	if err != nil {
		return true, errs.Wrap(errs.UnknownError, err, "keylifecycle: ecdh agree for master key distribution")
	}
	plain, err := identity.Open(shared, ev.IV, ev.EncryptedMasterKey)
	if err != nil {
		return true, errs.Wrap(errs.BadSenderSignature, err, "keylifecycle: open master key distribution")
	}
	var seed [32]byte
	copy(seed[:], plain)
	if err := k.append(MasterKeyRecord{Seed: seed, CreatedAtBlock: block}); err != nil {
		return true, err
	}
	return true, nil
}

// RotateMasterKey generates a fresh master key and encrypts it to every
// known gatekeeper's ECDH public key, producing a MasterKeyRotation event
// for this (gatekeeper) identity to sign and broadcast (spec.md §4.3
// "rotation").
func (k *KLS) RotateMasterKey() (mq.MasterKeyRotation, error) {
	seed, err := identity.GenerateSeed()
	if err != nil {
		return mq.MasterKeyRotation{}, errs.Wrap(errs.UnknownError, err, "keylifecycle: generate rotation seed")
	}

	secretKeys := make(map[identity.PubKey]mq.EncryptedKey, len(k.gkOrder))
	for _, pk := range k.gkOrder {
		ecdhPub := k.gatekeepers[pk]
		shared, err := k.self.ECDHAgree(ecdhPub)
		if err != nil {
			return mq.MasterKeyRotation{}, errs.Wrap(errs.UnknownError, err, "keylifecycle: ecdh agree for rotation dispatch")
		}
		iv, err := identity.NewIV()
		if err != nil {
			return mq.MasterKeyRotation{}, errs.Wrap(errs.UnknownError, err, "keylifecycle: draw rotation iv")
		}
		ciphertext, err := identity.Seal(shared, iv, seed[:])
		if err != nil {
			return mq.MasterKeyRotation{}, errs.Wrap(errs.UnknownError, err, "keylifecycle: seal rotation share")
		}
		secretKeys[pk] = mq.EncryptedKey{ECDHPubKey: k.self.ECDHPubKey(), Ciphertext: ciphertext, IV: iv}
	}

	ev := mq.MasterKeyRotation{
		Sender:     k.self.PubKey(),
		RotationID: uuid.NewV4().String(),
		SecretKeys: secretKeys,
	}
	ev.Sig = k.self.Sign(ev.DataToSign())
	return ev, nil
}

// HandleMasterKeyRotation verifies and applies an inbound
// MasterKeyRotation (spec.md §4.3 "rotation", §7 error taxonomy).
func (k *KLS) HandleMasterKeyRotation(ev mq.MasterKeyRotation, block uint64) (ok bool, err error) {
	if !identity.Verify(ev.Sender, ev.DataToSign(), ev.Sig) {
		return false, errs.New(errs.BadSenderSignature, "keylifecycle: rotation signature invalid")
	}
	if _, isGatekeeper := k.gatekeepers[ev.Sender]; !isGatekeeper {
		return false, errs.New(errs.MasterKeyLeakage, "keylifecycle: rotation sender is not a known gatekeeper")
	}

	share, addressed := ev.SecretKeys[k.self.PubKey()]
	if !addressed {
		return false, nil
	}
	shared, err := k.self.ECDHAgree(share.ECDHPubKey)
	if err != nil {
		return true, errs.Wrap(errs.UnknownError, err, "keylifecycle: ecdh agree for rotation receipt")
	}
	plain, err := identity.Open(shared, share.IV, share.Ciphertext)
	if err != nil {
		return true, errs.Wrap(errs.BadSenderSignature, err, "keylifecycle: open rotation share")
	}
	var seed [32]byte
	copy(seed[:], plain)
	if err := k.append(MasterKeyRecord{Seed: seed, CreatedAtBlock: block}); err != nil {
		return true, err
	}
	return true, nil
}
