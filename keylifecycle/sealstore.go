// Package keylifecycle implements the Key Lifecycle Subsystem (spec.md
// §4.3, components C2+C5): master-key generation/sealing/dispatch/
// rotation/history, cluster and contract key derivation, worker-key
// handover, and the one-shot challenge/verify pair.
package keylifecycle

import (
	"bytes"
	"encoding/gob"
	"io/ioutil"
	"os"
	"path/filepath"

	"github.com/ccworker/pruntime-core/errs"
	"github.com/ccworker/pruntime-core/identity"
	"github.com/ccworker/pruntime-core/log"
)

var logger = log.NewModuleLogger("keylifecycle")

// MasterKeyRecord is one entry of the append-only master-key history
// (spec.md §4.3 "master key history").
type MasterKeyRecord struct {
	Seed           [32]byte
	CreatedAtBlock uint64
}

// sealedHistory is the on-disk payload: the serialized history, sealed
// under the local sealing key.
type sealedHistory struct {
	IV         [16]byte
	Ciphertext []byte
}

// SealStore persists the master-key history as a single sealed file,
// written via the teacher's seal-then-swap idiom (write to a temp file in
// the same directory, fsync, then atomically rename over the target) so a
// crash mid-write never leaves a corrupt or partial history on disk
// (grounded on storage/database/badger_database.go's directory handling —
// this repo trims badger itself to a plain sealed file since the history
// is small and append-only, never queried by key).
//
// Serialization uses encoding/gob rather than the teacher's RLP codec:
// RLP here (ser/rlp) is klaytn-internal, not a separately fetchable
// third-party module, and porting its codegen machinery for one small
// append-only struct is not worth the surface it would add; gob is the
// standard-library choice for this, justified in DESIGN.md.
type SealStore struct {
	path    string
	sealKey [32]byte
}

// NewSealStore opens a sealed history file at path, sealed under sealKey
// (a locally held symmetric key; real confidential-compute deployments
// derive this from hardware sealing, out of scope here).
func NewSealStore(path string, sealKey [32]byte) *SealStore {
	return &SealStore{path: path, sealKey: sealKey}
}

// Load reads and unseals the history, returning an empty history if the
// file does not yet exist.
func (s *SealStore) Load() ([]MasterKeyRecord, error) {
	raw, err := ioutil.ReadFile(s.path)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, errs.Wrap(errs.UnknownError, err, "keylifecycle: read seal file")
	}

	var sealed sealedHistory
	if err := gob.NewDecoder(bytes.NewReader(raw)).Decode(&sealed); err != nil {
		return nil, errs.Wrap(errs.UnknownError, err, "keylifecycle: decode seal envelope")
	}
	plain, err := identity.Open(s.sealKey, sealed.IV, sealed.Ciphertext)
	if err != nil {
		return nil, errs.Wrap(errs.UnknownError, err, "keylifecycle: unseal history")
	}

	var history []MasterKeyRecord
	if err := gob.NewDecoder(bytes.NewReader(plain)).Decode(&history); err != nil {
		return nil, errs.Wrap(errs.UnknownError, err, "keylifecycle: decode history")
	}
	return history, nil
}

// Save atomically seals and persists history (spec.md §4.3 "append-only
// master-key history" — every rotation calls Save with the new, longer
// history; Save never mutates a previous on-disk revision in place).
func (s *SealStore) Save(history []MasterKeyRecord) error {
	var plainBuf bytes.Buffer
	if err := gob.NewEncoder(&plainBuf).Encode(history); err != nil {
		return errs.Wrap(errs.UnknownError, err, "keylifecycle: encode history")
	}

	iv, err := identity.NewIV()
	if err != nil {
		return errs.Wrap(errs.UnknownError, err, "keylifecycle: draw seal iv")
	}
	ciphertext, err := identity.Seal(s.sealKey, iv, plainBuf.Bytes())
	if err != nil {
		return errs.Wrap(errs.UnknownError, err, "keylifecycle: seal history")
	}

	var envBuf bytes.Buffer
	if err := gob.NewEncoder(&envBuf).Encode(sealedHistory{IV: iv, Ciphertext: ciphertext}); err != nil {
		return errs.Wrap(errs.UnknownError, err, "keylifecycle: encode seal envelope")
	}

	dir := filepath.Dir(s.path)
	tmp, err := ioutil.TempFile(dir, ".sealed-history-*")
	if err != nil {
		return errs.Wrap(errs.UnknownError, err, "keylifecycle: create temp seal file")
	}
	tmpPath := tmp.Name()
	if _, err := tmp.Write(envBuf.Bytes()); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return errs.Wrap(errs.UnknownError, err, "keylifecycle: write temp seal file")
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return errs.Wrap(errs.UnknownError, err, "keylifecycle: sync temp seal file")
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return errs.Wrap(errs.UnknownError, err, "keylifecycle: close temp seal file")
	}
	if err := os.Rename(tmpPath, s.path); err != nil {
		os.Remove(tmpPath)
		return errs.Wrap(errs.UnknownError, err, "keylifecycle: swap seal file")
	}
	logger.Debug("sealed history persisted", "entries", len(history))
	return nil
}
