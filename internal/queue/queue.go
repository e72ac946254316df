// Package queue is the durable handoff between submitters and workers,
// backed by Redis. Entries are keyed by job id; an entry moves from the
// pending list to the processing list when a worker takes it, together
// with a lease deadline in a sorted set. Entries whose lease expires
// without an ack or fail are requeued by the reaper, which is the sole
// crash-recovery mechanism: the transcode and upload steps must therefore
// be safe to redo.
package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"vidconv/internal/domain"
)

const (
	keyPending    = "convert:pending"
	keyProcessing = "convert:processing"
	keyLeases     = "convert:leases"
	keyFailed     = "convert:failed"
	keyLive       = "convert:live"
	keyEntry      = "convert:entry:"
)

// Queue is a Redis-backed work queue with lease semantics.
type Queue struct {
	rdb      *redis.Client
	depthCap int64
	lease    time.Duration
}

// New constructs a Queue. depthCap bounds the number of pending entries;
// lease is how long a dequeued entry stays invisible before the reaper
// hands it to another worker.
func New(rdb *redis.Client, depthCap int, lease time.Duration) *Queue {
	return &Queue{rdb: rdb, depthCap: int64(depthCap), lease: lease}
}

// Entry is a dequeued unit of work. Its ID is the job id.
type Entry struct {
	ID      string
	Payload domain.QueuePayload
}

// Enqueue adds a pending entry for id. It fails with domain.ErrOverloaded
// when the pending depth cap is reached and with domain.ErrDuplicateJob
// when a live entry for id already exists.
func (q *Queue) Enqueue(ctx context.Context, id string, payload domain.QueuePayload) error {
	if q.depthCap > 0 {
		depth, err := q.rdb.LLen(ctx, keyPending).Result()
		if err != nil {
			return fmt.Errorf("queue: depth check: %w", err)
		}
		if depth >= q.depthCap {
			return domain.ErrOverloaded
		}
	}

	ok, err := q.rdb.SAdd(ctx, keyLive, id).Result()
	if err != nil {
		return fmt.Errorf("queue: reserve %s: %w", id, err)
	}
	if ok == 0 {
		return domain.ErrDuplicateJob
	}

	raw, err := json.Marshal(payload)
	if err != nil {
		q.rdb.SRem(ctx, keyLive, id)
		return fmt.Errorf("queue: encode %s: %w", id, err)
	}
	fields := map[string]any{
		"payload":     string(raw),
		"enqueued_at": time.Now().UTC().Format(time.RFC3339Nano),
	}
	if err := q.rdb.HSet(ctx, keyEntry+id, fields).Err(); err != nil {
		q.rdb.SRem(ctx, keyLive, id)
		return fmt.Errorf("queue: store entry %s: %w", id, err)
	}
	if err := q.rdb.RPush(ctx, keyPending, id).Err(); err != nil {
		q.rdb.Del(ctx, keyEntry+id)
		q.rdb.SRem(ctx, keyLive, id)
		return fmt.Errorf("queue: push %s: %w", id, err)
	}
	return nil
}

// Dequeue blocks up to timeout for a pending entry, moves it to the
// processing list and takes a lease on it. It returns nil when the wait
// timed out with nothing to do.
func (q *Queue) Dequeue(ctx context.Context, timeout time.Duration) (*Entry, error) {
	id, err := q.rdb.BLMove(ctx, keyPending, keyProcessing, "LEFT", "RIGHT", timeout).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, fmt.Errorf("queue: pop: %w", err)
	}

	deadline := float64(time.Now().Add(q.lease).UnixMilli())
	if err := q.rdb.ZAdd(ctx, keyLeases, redis.Z{Score: deadline, Member: id}).Err(); err != nil {
		// The entry sits in processing without a lease; the reaper treats
		// that the same as an expired lease and requeues it.
		return nil, fmt.Errorf("queue: lease %s: %w", id, err)
	}

	raw, err := q.rdb.HGet(ctx, keyEntry+id, "payload").Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			// Entry hash vanished (manual intervention or flush). Drop the
			// orphaned id entirely rather than spin on it.
			q.discard(ctx, id)
			return nil, nil
		}
		return nil, fmt.Errorf("queue: load entry %s: %w", id, err)
	}

	var payload domain.QueuePayload
	if err := json.Unmarshal([]byte(raw), &payload); err != nil {
		q.discard(ctx, id)
		return nil, fmt.Errorf("queue: decode entry %s: %w", id, err)
	}
	return &Entry{ID: id, Payload: payload}, nil
}

// Ack removes a successfully processed entry.
func (q *Queue) Ack(ctx context.Context, id string) error {
	pipe := q.rdb.TxPipeline()
	pipe.LRem(ctx, keyProcessing, 1, id)
	pipe.ZRem(ctx, keyLeases, id)
	pipe.Del(ctx, keyEntry+id)
	pipe.SRem(ctx, keyLive, id)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("queue: ack %s: %w", id, err)
	}
	return nil
}

// Fail retires an entry to the failed list instead of requeueing it.
// Transcode failures are usually deterministic for the same input, so
// there is no automatic retry; the entry and its payload are retained
// indefinitely for operator inspection. The reason is recorded on the
// entry hash.
func (q *Queue) Fail(ctx context.Context, id, reason string) error {
	pipe := q.rdb.TxPipeline()
	pipe.LRem(ctx, keyProcessing, 1, id)
	pipe.ZRem(ctx, keyLeases, id)
	pipe.HSet(ctx, keyEntry+id, "failed_reason", reason,
		"failed_at", time.Now().UTC().Format(time.RFC3339Nano))
	pipe.RPush(ctx, keyFailed, id)
	pipe.SRem(ctx, keyLive, id)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("queue: fail %s: %w", id, err)
	}
	return nil
}

// RequeueExpired returns processing entries whose lease deadline has
// passed to the front of the pending list and reports how many it moved.
// Entries in processing with no lease at all (a worker died between the
// move and the lease write) are requeued too.
func (q *Queue) RequeueExpired(ctx context.Context) (int, error) {
	ids, err := q.rdb.LRange(ctx, keyProcessing, 0, -1).Result()
	if err != nil {
		return 0, fmt.Errorf("queue: scan processing: %w", err)
	}

	now := float64(time.Now().UnixMilli())
	moved := 0
	for _, id := range ids {
		score, err := q.rdb.ZScore(ctx, keyLeases, id).Result()
		if err != nil && !errors.Is(err, redis.Nil) {
			return moved, fmt.Errorf("queue: lease lookup %s: %w", id, err)
		}
		if err == nil && score > now {
			continue
		}
		pipe := q.rdb.TxPipeline()
		pipe.LRem(ctx, keyProcessing, 1, id)
		pipe.ZRem(ctx, keyLeases, id)
		pipe.LPush(ctx, keyPending, id)
		if _, err := pipe.Exec(ctx); err != nil {
			return moved, fmt.Errorf("queue: requeue %s: %w", id, err)
		}
		moved++
	}
	return moved, nil
}

// Depth reports the number of pending entries, the system's sole buffer
// between submission rate and worker throughput.
func (q *Queue) Depth(ctx context.Context) (int64, error) {
	depth, err := q.rdb.LLen(ctx, keyPending).Result()
	if err != nil {
		return 0, fmt.Errorf("queue: depth: %w", err)
	}
	return depth, nil
}

func (q *Queue) discard(ctx context.Context, id string) {
	pipe := q.rdb.TxPipeline()
	pipe.LRem(ctx, keyProcessing, 1, id)
	pipe.ZRem(ctx, keyLeases, id)
	pipe.Del(ctx, keyEntry+id)
	pipe.SRem(ctx, keyLive, id)
	_, _ = pipe.Exec(ctx)
}
