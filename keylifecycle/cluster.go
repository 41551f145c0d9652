package keylifecycle

import (
	"crypto/sha256"
	"io"

	"golang.org/x/crypto/hkdf"

	"github.com/ccworker/pruntime-core/errs"
	"github.com/ccworker/pruntime-core/identity"
	"github.com/ccworker/pruntime-core/mq"
)

// Cluster is a confidential-compute cluster's key material and membership
// (spec.md §4.3 "cluster key"). Members starts as the dispatch recipients
// in map iteration order, which is not deterministic; AddClusterMember
// then appends in insertion order.
type Cluster struct {
	ID      string
	Key     [32]byte
	Config  []byte
	Members []identity.PubKey
}

// HandleClusterDispatch onboards a new cluster from a
// BatchDispatchClusterKeyEvent (spec.md §4.3 "cluster key dispatch").
// Returns DuplicatedClusterDeploy if the cluster id is already known,
// whether or not this worker is addressed. ok is false when this worker is not among
// the event's addressed recipients.
func (k *KLS) HandleClusterDispatch(ev mq.BatchDispatchClusterKeyEvent) (ok bool, err error) {
	if _, exists := k.clusters[ev.ClusterID]; exists {
		return false, errs.New(errs.DuplicatedClusterDeploy, "keylifecycle: cluster "+ev.ClusterID+" already deployed")
	}

	share, addressed := ev.SecretKeys[k.self.PubKey()]
	if !addressed {
		return false, nil
	}
	shared, err := k.self.ECDHAgree(share.ECDHPubKey)
	if err != nil {
		return true, errs.Wrap(errs.UnknownError, err, "keylifecycle: ecdh agree for cluster dispatch")
	}
	plain, err := identity.Open(shared, share.IV, share.Ciphertext)
	if err != nil {
		return true, errs.Wrap(errs.BadSenderSignature, err, "keylifecycle: open cluster key share")
	}
	var key [32]byte
	copy(key[:], plain)

	members := make([]identity.PubKey, 0, len(ev.SecretKeys))
	for pk := range ev.SecretKeys {
		members = append(members, pk)
	}
	k.clusters[ev.ClusterID] = &Cluster{ID: ev.ClusterID, Key: key, Config: ev.Config, Members: members}
	k.clusterOrder = append(k.clusterOrder, ev.ClusterID)
	return true, nil
}

// Cluster looks up a known cluster by id.
func (k *KLS) Cluster(clusterID string) (*Cluster, bool) {
	c, ok := k.clusters[clusterID]
	return c, ok
}

// AddClusterMember adds a worker to a cluster's membership list. Because
// contract keys are soft-derived from the cluster key rather than
// individually minted, this is pure bookkeeping: the joining worker
// already holds the cluster key from its own HandleClusterDispatch
// receipt and can derive every contract key itself. This is distinct from
// UpdateWorkerKey (spec.md §4.3 "worker-key handover"), which rotates a
// worker's own signing/ECDH identity.
func (k *KLS) AddClusterMember(clusterID string, worker identity.PubKey) error {
	c, ok := k.clusters[clusterID]
	if !ok {
		return errs.New(errs.BadContractId, "keylifecycle: unknown cluster "+clusterID)
	}
	for _, m := range c.Members {
		if m == worker {
			return nil
		}
	}
	c.Members = append(c.Members, worker)
	return nil
}

// DeriveContractKey soft-derives a contract's symmetric key from its
// cluster key via HKDF-SHA256, domain-separated by contract id (spec.md
// §4.3 "contract key derivation"). This is the teacher's go.mod
// golang.org/x/crypto/hkdf in its most idiomatic use: hkdf.New runs
// Extract over the cluster key, then Expand with "contract_key:" plus the
// contract id as info.
func (k *KLS) DeriveContractKey(clusterID, contractID string) ([32]byte, error) {
	var key [32]byte
	c, ok := k.clusters[clusterID]
	if !ok {
		return key, errs.New(errs.BadContractId, "keylifecycle: unknown cluster "+clusterID)
	}
	r := hkdf.New(sha256.New, c.Key[:], nil, []byte("contract_key:"+contractID))
	if _, err := io.ReadFull(r, key[:]); err != nil {
		return key, errs.Wrap(errs.UnknownError, err, "keylifecycle: derive contract key")
	}
	return key, nil
}
