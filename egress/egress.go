// Package egress implements the orchestrator.Egress sink (spec.md §5
// "egress"): outbound signed messages queued for a background sender to
// drain. The in-memory Queue is the default; RedisSink adapts the same
// interface onto go-redis for deployments that run the sender as a
// separate process sharing a Redis instance with the worker.
package egress

import (
	"encoding/json"
	"sync"

	goredis "github.com/go-redis/redis/v7"

	"github.com/ccworker/pruntime-core/log"
	"github.com/ccworker/pruntime-core/mq"
)

var logger = log.NewModuleLogger("egress")

// Envelope is one outbound message, tagged with its origin for the
// receiving pallet to re-derive authorization.
type Envelope struct {
	Origin mq.Origin
	Event  interface{}
}

// Queue is a simple in-process FIFO egress sink; a background goroutine
// drains it and hands messages to the transport layer.
type Queue struct {
	mu      sync.Mutex
	pending []Envelope
}

// NewQueue builds an empty in-memory egress queue.
func NewQueue() *Queue { return &Queue{} }

// Push enqueues a message (implements orchestrator.Egress).
func (q *Queue) Push(origin mq.Origin, ev interface{}) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.pending = append(q.pending, Envelope{Origin: origin, Event: ev})
}

// Drain returns and clears everything queued so far, for the background
// sender to transmit.
func (q *Queue) Drain() []Envelope {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := q.pending
	q.pending = nil
	return out
}

// RedisSink pushes envelopes onto a Redis list (RPUSH), letting a
// separately-deployed sender process (potentially on another host) BLPOP
// them off — the teacher's client/ package uses go-redis the same way for
// cross-process queuing.
type RedisSink struct {
	client *goredis.Client
	key    string
}

// NewRedisSink builds a RedisSink over an existing client, publishing onto
// listKey.
func NewRedisSink(client *goredis.Client, listKey string) *RedisSink {
	return &RedisSink{client: client, key: listKey}
}

// Push JSON-encodes the envelope and RPUSHes it. Encoding failures and
// Redis errors are logged, not returned: egress is best-effort by design
// (spec.md §5 "a background sender may drain it"), never a blocking path
// for the tick loop.
func (r *RedisSink) Push(origin mq.Origin, ev interface{}) {
	payload, err := json.Marshal(Envelope{Origin: origin, Event: ev})
	if err != nil {
		logger.Error("failed to encode egress envelope", "err", err)
		return
	}
	if err := r.client.RPush(r.key, payload).Err(); err != nil {
		logger.Error("failed to push egress envelope to redis", "err", err)
	}
}
