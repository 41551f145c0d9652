package keylifecycle

import (
	"github.com/ccworker/pruntime-core/errs"
	"github.com/ccworker/pruntime-core/identity"
	"github.com/ccworker/pruntime-core/mq"
)

// UpdateWorkerKey decrypts an inbound WorkerKeyHandover addressed to this
// worker and rotates its own signing and ECDH identity in place (spec.md
// §4.3 "worker-key handover: rotate my identity",
// original_source/phactory/src/system/mod.rs update_worker_key). ok is
// false when ev is not addressed to this worker, in which case no key
// material is touched.
func (k *KLS) UpdateWorkerKey(ev mq.WorkerKeyHandover) (ok bool, err error) {
	if ev.Dest != k.self.PubKey() {
		return false, nil
	}
	shared, err := k.self.ECDHAgree(ev.Key.ECDHPubKey)
	if err != nil {
		return true, errs.Wrap(errs.UnknownError, err, "keylifecycle: ecdh agree for worker key handover")
	}
	plain, err := identity.Open(shared, ev.Key.IV, ev.Key.Ciphertext)
	if err != nil {
		return true, errs.Wrap(errs.BadSenderSignature, err, "keylifecycle: open worker key handover")
	}
	var seed [32]byte
	copy(seed[:], plain)
	k.self.ReplaceKeys(seed)
	logger.Info("worker key handover applied, identity rotated")
	return true, nil
}
