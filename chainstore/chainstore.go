// Package chainstore is a read-only on-disk cache of on-chain facts this
// worker needs across restarts: the registered gatekeeper list and cluster
// configurations observed off the Message Router (spec.md §4.4, §4.5
// "cluster dispatch"). It is not the system of record — the chain is —
// only a local snapshot so a restarted worker does not need to replay
// every historical event before it can answer is_registered/cluster
// lookups.
//
// Grounded on the teacher's storage/database/badger_database.go: same
// dgraph-io/badger v1 API (txn.Get/.Value(), txn.Set, NewTransaction),
// generalized from a generic key/value Database interface to this
// worker's two fact tables.
package chainstore

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/dgraph-io/badger"

	"github.com/ccworker/pruntime-core/log"
)

var logger = log.NewModuleLogger("chainstore")

var (
	gatekeeperPrefix = []byte("gk/")
	clusterPrefix    = []byte("cluster/")
)

// Store is a badger-backed snapshot of on-chain facts.
type Store struct {
	db *badger.DB
}

// Open opens (creating if necessary) a Store rooted at dir.
func Open(dir string) (*Store, error) {
	if fi, err := os.Stat(dir); err == nil {
		if !fi.IsDir() {
			return nil, fmt.Errorf("chainstore: %s is not a directory", dir)
		}
	} else if os.IsNotExist(err) {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("chainstore: mkdir %s: %w", dir, err)
		}
	} else {
		return nil, fmt.Errorf("chainstore: stat %s: %w", dir, err)
	}

	opts := badger.DefaultOptions
	opts.Dir = dir
	opts.ValueDir = dir
	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("chainstore: open %s: %w", dir, err)
	}
	return &Store{db: db}, nil
}

// Close releases the underlying database.
func (s *Store) Close() {
	if err := s.db.Close(); err != nil {
		logger.Error("failed to close chainstore", "err", err)
	}
}

// PutGatekeeper records that pubkeyHex is a registered gatekeeper.
func (s *Store) PutGatekeeper(pubkeyHex string) error {
	return s.put(append(append([]byte{}, gatekeeperPrefix...), pubkeyHex...), []byte{1})
}

// IsGatekeeper reports whether pubkeyHex was previously recorded as a
// gatekeeper.
func (s *Store) IsGatekeeper(pubkeyHex string) (bool, error) {
	_, err := s.get(append(append([]byte{}, gatekeeperPrefix...), pubkeyHex...))
	if err == badger.ErrKeyNotFound {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// ClusterRecord is the persisted snapshot of a cluster configuration.
type ClusterRecord struct {
	ID      string   `json:"id"`
	Config  []byte   `json:"config"`
	Members []string `json:"members"`
}

// PutCluster persists a cluster's configuration snapshot.
func (s *Store) PutCluster(rec ClusterRecord) error {
	payload, err := json.Marshal(rec)
	if err != nil {
		return err
	}
	return s.put(append(append([]byte{}, clusterPrefix...), rec.ID...), payload)
}

// GetCluster loads a previously persisted cluster snapshot.
func (s *Store) GetCluster(id string) (ClusterRecord, bool, error) {
	raw, err := s.get(append(append([]byte{}, clusterPrefix...), id...))
	if err == badger.ErrKeyNotFound {
		return ClusterRecord{}, false, nil
	}
	if err != nil {
		return ClusterRecord{}, false, err
	}
	var rec ClusterRecord
	if err := json.Unmarshal(raw, &rec); err != nil {
		return ClusterRecord{}, false, err
	}
	return rec, true, nil
}

func (s *Store) put(key, value []byte) error {
	txn := s.db.NewTransaction(true)
	defer txn.Discard()
	if err := txn.Set(key, value); err != nil {
		return err
	}
	return txn.Commit(nil)
}

func (s *Store) get(key []byte) ([]byte, error) {
	txn := s.db.NewTransaction(false)
	defer txn.Discard()
	item, err := txn.Get(key)
	if err != nil {
		return nil, err
	}
	return item.Value()
}
