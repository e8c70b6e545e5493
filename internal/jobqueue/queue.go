// Package jobqueue is a durable, Pebble-backed priority queue for fanout
// jobs. Dequeued jobs are leased, not removed: a worker that crashes loses
// its lease and the sweeper returns the job to availability, giving
// at-least-once delivery.
package jobqueue

import (
	"context"
	"encoding/binary"
	"errors"
	"sync"
	"time"

	"github.com/cockroachdb/pebble"

	pebblestore "github.com/imcyee/superstream-sub000/internal/storage/pebble"
	"github.com/imcyee/superstream-sub000/pkg/log"
)

const (
	defaultLease      = 30 * time.Second
	defaultRetryDelay = 5 * time.Second
	sweepInterval     = 500 * time.Millisecond
	sweepMaxPerTick   = 1024
)

// Queue is a single named durable queue. Safe for concurrent use.
type Queue struct {
	db     *pebblestore.DB
	name   string
	logger log.Logger

	mu      sync.Mutex
	lastSeq uint64

	sweepStop chan struct{}
}

// Leased is a dequeued job under a lease.
type Leased struct {
	Seq      uint64
	Payload  []byte
	Attempts int
	Expiry   time.Time
}

// Open restores the queue's sequence counter from its metadata key.
func Open(db *pebblestore.DB, name string, logger log.Logger) (*Queue, error) {
	if logger == nil {
		logger = log.NewNopLogger()
	}
	q := &Queue{db: db, name: name, logger: logger.With(log.Component("jobqueue"), log.F("queue", name))}
	meta, err := db.Get(keyMeta(name))
	if err != nil && !errors.Is(err, pebblestore.ErrNotFound) {
		return nil, err
	}
	if len(meta) >= 8 {
		q.lastSeq = binary.BigEndian.Uint64(meta[:8])
	}
	return q, nil
}

// Enqueue appends a job. Lower priority values dequeue first; a positive
// delay parks the job until it fires.
func (q *Queue) Enqueue(ctx context.Context, payload []byte, priority uint32, delay time.Duration) (uint64, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	b := q.db.NewBatch()
	defer b.Close()

	q.lastSeq++
	seq := q.lastSeq

	val := make([]byte, 4+len(payload))
	binary.BigEndian.PutUint32(val[:4], priority)
	copy(val[4:], payload)
	if err := b.Set(keyMsg(q.name, seq), val, nil); err != nil {
		return 0, err
	}
	if delay > 0 {
		fire := time.Now().Add(delay).UnixMilli()
		if err := b.Set(keyDelay(q.name, fire, seq), nil, nil); err != nil {
			return 0, err
		}
	} else {
		if err := b.Set(keyPrio(q.name, priority, seq), nil, nil); err != nil {
			return 0, err
		}
	}

	var meta [8]byte
	binary.BigEndian.PutUint64(meta[:], q.lastSeq)
	if err := b.Set(keyMeta(q.name), meta[:], nil); err != nil {
		return 0, err
	}
	if err := q.db.CommitBatch(ctx, b); err != nil {
		return 0, err
	}
	return seq, nil
}

// promoteDue moves fired delay entries into the priority index.
func (q *Queue) promoteDue(ctx context.Context, now time.Time) error {
	iter, err := q.db.NewPrefixIter(keyDelayPrefix(q.name))
	if err != nil {
		return err
	}
	defer iter.Close()

	prefixLen := len(keyDelayPrefix(q.name))
	b := q.db.NewBatch()
	defer b.Close()
	promoted := 0
	for ok := iter.First(); ok; ok = iter.Next() {
		key := iter.Key()
		if len(key) != prefixLen+16 {
			continue
		}
		fire := int64(binary.BigEndian.Uint64(key[prefixLen : prefixLen+8]))
		if fire > now.UnixMilli() {
			break
		}
		seq := seqFromKeyTail(key)
		prio, ok := q.msgPriority(seq)
		if !ok {
			// orphan delay entry, the message is gone
			_ = b.Delete(key, nil)
			continue
		}
		if err := b.Delete(key, nil); err != nil {
			return err
		}
		if err := b.Set(keyPrio(q.name, prio, seq), nil, nil); err != nil {
			return err
		}
		promoted++
	}
	if promoted == 0 {
		return nil
	}
	return q.db.CommitBatch(ctx, b)
}

func (q *Queue) msgPriority(seq uint64) (uint32, bool) {
	val, err := q.db.Get(keyMsg(q.name, seq))
	if err != nil || len(val) < 4 {
		return 0, false
	}
	return binary.BigEndian.Uint32(val[:4]), true
}

// Dequeue leases up to count jobs in priority order. A zero lease uses the
// default.
func (q *Queue) Dequeue(ctx context.Context, count int, lease time.Duration) ([]Leased, error) {
	if count <= 0 {
		count = 1
	}
	if lease <= 0 {
		lease = defaultLease
	}
	now := time.Now()
	if err := q.promoteDue(ctx, now); err != nil {
		return nil, err
	}

	q.mu.Lock()
	defer q.mu.Unlock()

	iter, err := q.db.NewPrefixIter(keyPrioPrefix(q.name))
	if err != nil {
		return nil, err
	}
	defer iter.Close()

	b := q.db.NewBatch()
	defer b.Close()
	exp := now.Add(lease)
	out := make([]Leased, 0, count)
	for ok := iter.First(); ok && len(out) < count; ok = iter.Next() {
		seq := seqFromKeyTail(iter.Key())
		val, err := q.db.Get(keyMsg(q.name, seq))
		if errors.Is(err, pebblestore.ErrNotFound) || len(val) < 4 {
			_ = b.Delete(iter.Key(), nil)
			continue
		}
		if err != nil {
			return nil, err
		}

		attempts := q.leaseAttempts(seq)
		var lbuf [12]byte
		binary.BigEndian.PutUint64(lbuf[:8], uint64(exp.UnixMilli()))
		binary.BigEndian.PutUint32(lbuf[8:], uint32(attempts))
		if err := b.Set(keyLease(q.name, seq), lbuf[:], nil); err != nil {
			return nil, err
		}
		if err := b.Set(keyLeaseIdx(q.name, exp.UnixMilli(), seq), nil, nil); err != nil {
			return nil, err
		}
		if err := b.Delete(iter.Key(), nil); err != nil {
			return nil, err
		}
		out = append(out, Leased{Seq: seq, Payload: val[4:], Attempts: attempts, Expiry: exp})
	}
	if len(out) == 0 {
		return nil, nil
	}
	if err := q.db.CommitBatch(ctx, b); err != nil {
		return nil, err
	}
	return out, nil
}

func (q *Queue) leaseAttempts(seq uint64) int {
	val, err := q.db.Get(keyLease(q.name, seq))
	if err != nil || len(val) < 12 {
		return 0
	}
	return int(binary.BigEndian.Uint32(val[8:12]))
}

// Complete acknowledges jobs, deleting message and lease state.
func (q *Queue) Complete(ctx context.Context, seqs []uint64) error {
	if len(seqs) == 0 {
		return nil
	}
	b := q.db.NewBatch()
	defer b.Close()
	for _, seq := range seqs {
		if err := q.dropLease(b, seq); err != nil {
			return err
		}
		if err := b.Delete(keyMsg(q.name, seq), nil); err != nil {
			return err
		}
	}
	return q.db.CommitBatch(ctx, b)
}

// Fail releases jobs back through the delay index after retryAfter,
// incrementing the attempt count. A zero retryAfter uses the default.
func (q *Queue) Fail(ctx context.Context, seqs []uint64, retryAfter time.Duration) error {
	if len(seqs) == 0 {
		return nil
	}
	if retryAfter <= 0 {
		retryAfter = defaultRetryDelay
	}
	fire := time.Now().Add(retryAfter).UnixMilli()

	b := q.db.NewBatch()
	defer b.Close()
	for _, seq := range seqs {
		attempts := q.leaseAttempts(seq) + 1
		if err := q.dropLease(b, seq); err != nil {
			return err
		}
		// keep the attempt count alive across the retry
		var lbuf [12]byte
		binary.BigEndian.PutUint64(lbuf[:8], uint64(fire))
		binary.BigEndian.PutUint32(lbuf[8:], uint32(attempts))
		if err := b.Set(keyLease(q.name, seq), lbuf[:], nil); err != nil {
			return err
		}
		if err := b.Set(keyDelay(q.name, fire, seq), nil, nil); err != nil {
			return err
		}
	}
	return q.db.CommitBatch(ctx, b)
}

func (q *Queue) dropLease(b *pebble.Batch, seq uint64) error {
	val, err := q.db.Get(keyLease(q.name, seq))
	if err == nil && len(val) >= 8 {
		exp := int64(binary.BigEndian.Uint64(val[:8]))
		if err := b.Delete(keyLeaseIdx(q.name, exp, seq), nil); err != nil {
			return err
		}
	}
	return b.Delete(keyLease(q.name, seq), nil)
}

// ReclaimExpired returns jobs whose lease expired to availability.
func (q *Queue) ReclaimExpired(ctx context.Context, max int) (int, error) {
	now := time.Now().UnixMilli()
	iter, err := q.db.NewPrefixIter(keyLeaseIdxPrefix(q.name))
	if err != nil {
		return 0, err
	}
	defer iter.Close()

	prefixLen := len(keyLeaseIdxPrefix(q.name))
	b := q.db.NewBatch()
	defer b.Close()
	reclaimed := 0
	for ok := iter.First(); ok; ok = iter.Next() {
		key := iter.Key()
		if len(key) != prefixLen+16 {
			continue
		}
		exp := int64(binary.BigEndian.Uint64(key[prefixLen : prefixLen+8]))
		if exp > now {
			break
		}
		seq := seqFromKeyTail(key)
		prio, found := q.msgPriority(seq)
		if err := b.Delete(key, nil); err != nil {
			return reclaimed, err
		}
		if !found {
			_ = b.Delete(keyLease(q.name, seq), nil)
			continue
		}
		if err := b.Set(keyPrio(q.name, prio, seq), nil, nil); err != nil {
			return reclaimed, err
		}
		reclaimed++
		if max > 0 && reclaimed >= max {
			break
		}
	}
	if reclaimed == 0 {
		return 0, nil
	}
	if err := q.db.CommitBatch(ctx, b); err != nil {
		return reclaimed, err
	}
	q.logger.Debug("reclaimed expired leases", log.F("count", reclaimed))
	return reclaimed, nil
}

// StartSweeper runs the lease reclaim loop until StopSweeper.
func (q *Queue) StartSweeper() {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.sweepStop != nil {
		return
	}
	stop := make(chan struct{})
	q.sweepStop = stop
	go func() {
		ticker := time.NewTicker(sweepInterval)
		defer ticker.Stop()
		for {
			select {
			case <-stop:
				return
			case <-ticker.C:
				if _, err := q.ReclaimExpired(context.Background(), sweepMaxPerTick); err != nil {
					q.logger.Warn("lease sweep failed", log.Err(err))
				}
			}
		}
	}()
}

// StopSweeper stops the reclaim loop.
func (q *Queue) StopSweeper() {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.sweepStop != nil {
		close(q.sweepStop)
		q.sweepStop = nil
	}
}
