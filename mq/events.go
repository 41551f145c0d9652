package mq

import (
	"github.com/ccworker/pruntime-core/identity"
	"github.com/ccworker/pruntime-core/worker"
)

// Event is any payload routed through the message router. The worker
// lifecycle events (Registered, BenchStart, ...) are defined in package
// worker, since the worker state machine is their canonical consumer; mq
// only needs to classify them by topic for dispatch.
type Event = interface{}

// Topic identifies one of the ingress message topics of spec.md §6.
type Topic string

const (
	TopicSystemEvent             Topic = "SystemEvent"
	TopicMiningReportEvent       Topic = "MiningReportEvent"
	TopicPRuntimeManagementEvent Topic = "PRuntimeManagementEvent"
	TopicGatekeeperLaunch        Topic = "GatekeeperLaunch"
	TopicGatekeeperChange        Topic = "GatekeeperChange"
	TopicKeyDistribution         Topic = "KeyDistribution"
	TopicClusterOperation        Topic = "ClusterOperation"
	TopicContractOperation       Topic = "ContractOperation"
	TopicRegistryEvent           Topic = "RegistryEvent"
)

// TopicOf classifies an event by its concrete Go type (spec.md §4.4,
// "branch on topic").
func TopicOf(ev Event) Topic {
	switch ev.(type) {
	case worker.Registered, worker.BenchStart, worker.BenchScore,
		worker.MiningStart, worker.MiningStop,
		worker.MiningEnterUnresponsive, worker.MiningExitUnresponsive,
		worker.HeartbeatChallenge:
		return TopicSystemEvent
	case worker.Heartbeat:
		return TopicMiningReportEvent
	case RetirePRuntime:
		return TopicPRuntimeManagementEvent
	case FirstGatekeeper, RotateMasterKey:
		return TopicGatekeeperLaunch
	case GatekeeperRegisteredEvent:
		return TopicGatekeeperChange
	case MasterKeyDistribution, MasterKeyRotation, WorkerKeyHandover:
		return TopicKeyDistribution
	case BatchDispatchClusterKeyEvent:
		return TopicClusterOperation
	case ContractOperation:
		return TopicContractOperation
	case MasterPubkeyEvent:
		return TopicRegistryEvent
	default:
		return ""
	}
}

// --- PRuntimeManagementEvent ---

type RetireConditionKind int

const (
	VersionIs RetireConditionKind = iota
	VersionLessThan
)

type RetireCondition struct {
	Kind  RetireConditionKind
	Major uint32
	Minor uint32
	Patch uint32
}

type RetirePRuntime struct {
	Condition RetireCondition
}

// --- GatekeeperLaunch ---

type FirstGatekeeper struct {
	PubKey identity.PubKey
}

type RotateMasterKey struct{}

// --- GatekeeperChange ---

type GatekeeperRegisteredEvent struct {
	PubKey     identity.PubKey
	ECDHPubKey [32]byte
}

// --- KeyDistribution ---

type MasterKeyDistribution struct {
	Dest               identity.PubKey
	ECDHPubKey         [32]byte
	EncryptedMasterKey []byte
	IV                 [16]byte
}

type EncryptedKey struct {
	ECDHPubKey [32]byte
	Ciphertext []byte
	IV         [16]byte
}

// WorkerKeyHandover carries a new signing/ECDH seed to a single named
// worker, encrypted under ECDH(sender, dest) the same way a
// MasterKeyDistribution share is (spec.md §4.3 "worker-key handover:
// rotate my identity").
type WorkerKeyHandover struct {
	Dest identity.PubKey
	Key  EncryptedKey
}

type MasterKeyRotation struct {
	Sender     identity.PubKey
	Sig        []byte
	RotationID string
	SecretKeys map[identity.PubKey]EncryptedKey
}

// DataToSign is the payload a MasterKeyRotation sender must sign
// (spec.md §4.3: "sig is a valid signature by sender over
// event.data_be_signed()"). The payload is Sender followed by RotationID;
// neither SecretKeys nor Sig is part of it.
func (e MasterKeyRotation) DataToSign() []byte {
	buf := append([]byte{}, e.Sender[:]...)
	buf = append(buf, []byte(e.RotationID)...)
	return buf
}

// --- ClusterOperation ---

type BatchDispatchClusterKeyEvent struct {
	ClusterID  string
	Config     []byte
	SecretKeys map[identity.PubKey]EncryptedKey
}

// --- ContractOperation ---

// ContractOperation is an opaque passthrough: contract execution is out of
// scope for this repository (spec.md §1); the orchestrator only has to
// forward it to the contract-command queue (spec.md §4.4).
type ContractOperation struct {
	ContractID string
	Payload    []byte
}

// --- RegistryEvent ---

// MasterPubkeyEvent announces the master public key sealed by a freshly
// bootstrapped first gatekeeper (spec.md §4.3 "first gatekeeper
// bootstrap": "publish RegistryEvent::MasterPubkey{master_pubkey}").
type MasterPubkeyEvent struct {
	MasterPubKey identity.PubKey
}
