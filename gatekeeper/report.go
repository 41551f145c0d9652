package gatekeeper

import (
	"github.com/ccworker/pruntime-core/common/fixedpoint"
	"github.com/ccworker/pruntime-core/identity"
)

// SettleInfo is a per-worker settlement record reported to the pallet for
// on-chain accounting (spec.md §6, glossary "Settle").
type SettleInfo struct {
	PubKey identity.PubKey
	V      fixedpoint.Fixed
	Payout fixedpoint.Fixed
}

// Report is the MiningInfoUpdateEvent accumulated across one tick (spec.md
// §6). Vector fields preserve the order events/workers were observed in
// (spec.md §5 "Ordering").
type Report struct {
	BlockNumber       uint64
	TimestampMs       uint64
	Offline           []identity.PubKey
	RecoveredToOnline []identity.PubKey
	Settle            []SettleInfo
}

// IsEmpty reports whether the report carries nothing worth emitting
// (spec.md §4.2 step 5).
func (r *Report) IsEmpty() bool {
	return len(r.Offline) == 0 && len(r.RecoveredToOnline) == 0 && len(r.Settle) == 0
}
