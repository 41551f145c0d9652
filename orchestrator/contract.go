package orchestrator

import "github.com/ccworker/pruntime-core/mq"

// contractEntry is the orchestrator's minimal record of a deployed
// contract: execution itself is out of scope (spec.md §1 Non-goals), so
// this only has to exist well enough to receive and queue
// ContractOperation messages for the (out-of-scope) execution engine.
type contractEntry struct {
	id      string
	pending []mq.ContractOperation
}

// dispatchContractOperation enqueues ev against its contract, creating the
// contract's bookkeeping entry on first sight. Iteration elsewhere over
// o.contracts always uses the snapshot-then-relookup pattern: callers that
// walk all contracts take a snapshot of the id list first, then re-fetch
// each entry by id inside the loop body, so a handler that deletes or adds
// a contract mid-iteration (e.g. a ClusterOperation processed earlier in
// the same tick) can never invalidate the iteration itself (spec.md §4.4
// "iterate contracts").
func (o *Orchestrator) dispatchContractOperation(ev mq.ContractOperation) {
	c, ok := o.contracts[ev.ContractID]
	if !ok {
		c = &contractEntry{id: ev.ContractID}
		o.contracts[ev.ContractID] = c
		o.contractOrder = append(o.contractOrder, ev.ContractID)
	}
	c.pending = append(c.pending, ev)
}

// drainContracts walks every known contract via snapshot-then-relookup and
// clears its pending queue, returning how many operations were drained in
// total. A real execution engine would replace the discard here with
// actual dispatch; that engine is out of scope for this repository.
func (o *Orchestrator) drainContracts() int {
	ids := append([]string{}, o.contractOrder...)
	total := 0
	for _, id := range ids {
		c, ok := o.contracts[id]
		if !ok {
			continue // deleted by an earlier step this same tick
		}
		total += len(c.pending)
		c.pending = nil
	}
	return total
}
