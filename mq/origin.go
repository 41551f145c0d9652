// Package mq implements the Message Router (spec.md §4.4, component C3):
// a typed, multi-topic ordered queue that every tick drains in global
// sender-sequence order, plus the MessageOrigin tagged variant every
// handler authorizes against first (spec.md §3).
package mq

import "github.com/ccworker/pruntime-core/identity"

// OriginKind tags the sender of a message (spec.md §3 "Message origin").
type OriginKind int

const (
	OriginPallet OriginKind = iota
	OriginWorker
	OriginGatekeeper
	OriginCluster
	OriginContract
	OriginUser
)

// Origin is the tagged sender-identity variant. Exactly one of the fields
// besides Kind is meaningful, selected by Kind.
type Origin struct {
	Kind       OriginKind
	PalletName string
	Worker     identity.PubKey
	ClusterID  string
	ContractID string
	Account    string
}

func FromPallet(name string) Origin             { return Origin{Kind: OriginPallet, PalletName: name} }
func FromWorker(pk identity.PubKey) Origin      { return Origin{Kind: OriginWorker, Worker: pk} }
func FromGatekeeper() Origin                    { return Origin{Kind: OriginGatekeeper} }
func FromCluster(clusterID string) Origin       { return Origin{Kind: OriginCluster, ClusterID: clusterID} }
func FromContract(contractID string) Origin     { return Origin{Kind: OriginContract, ContractID: contractID} }
func FromUser(account string) Origin            { return Origin{Kind: OriginUser, Account: account} }

// IsPallet, IsWorker, IsGatekeeper are the authorization checks every
// handler performs first (spec.md §4.5 "Origin mismatch").
func (o Origin) IsPallet() bool     { return o.Kind == OriginPallet }
func (o Origin) IsWorker() bool     { return o.Kind == OriginWorker }
func (o Origin) IsGatekeeper() bool { return o.Kind == OriginGatekeeper }
