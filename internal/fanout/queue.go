package fanout

import (
	"context"
	"time"

	"github.com/imcyee/superstream-sub000/internal/jobqueue"
	"github.com/imcyee/superstream-sub000/pkg/log"
)

// Queue priorities for the local durable queue; lower dequeues first.
const (
	localPrioHigh uint32 = 0
	localPrioLow  uint32 = 10
)

// LocalQueue publishes jobs into the durable Pebble-backed queue and runs
// the worker-side consume loop against it.
type LocalQueue struct {
	queue  *jobqueue.Queue
	logger log.Logger

	// worker loop tuning
	batchSize  int
	lease      time.Duration
	idleSleep  time.Duration
	retryAfter time.Duration
}

// NewLocalQueue wraps a durable queue as a fanout transport.
func NewLocalQueue(queue *jobqueue.Queue, logger log.Logger) *LocalQueue {
	if logger == nil {
		logger = log.NewNopLogger()
	}
	return &LocalQueue{
		queue:      queue,
		logger:     logger.With(log.Component("fanout-queue")),
		batchSize:  16,
		lease:      30 * time.Second,
		idleSleep:  200 * time.Millisecond,
		retryAfter: 5 * time.Second,
	}
}

// Publish enqueues one job under its priority class.
func (q *LocalQueue) Publish(ctx context.Context, job *Job) error {
	payload, err := job.Encode()
	if err != nil {
		return err
	}
	prio := localPrioLow
	if job.Priority == PriorityHigh {
		prio = localPrioHigh
	}
	_, err = q.queue.Enqueue(ctx, payload, prio, 0)
	return err
}

// Run consumes jobs until the context ends, completing applied jobs and
// failing the rest back for delayed retry. The lease sweeper returns jobs
// lost to a crashed worker.
func (q *LocalQueue) Run(ctx context.Context, executor *Executor) error {
	q.queue.StartSweeper()
	defer q.queue.StopSweeper()

	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		jobs, err := q.queue.Dequeue(ctx, q.batchSize, q.lease)
		if err != nil {
			return err
		}
		if len(jobs) == 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(q.idleSleep):
			}
			continue
		}
		var done, failed []uint64
		for _, leased := range jobs {
			if err := executor.Execute(ctx, leased.Payload); err != nil {
				q.logger.Warn("job failed, scheduling retry",
					log.F("seq", leased.Seq), log.F("attempts", leased.Attempts), log.Err(err))
				failed = append(failed, leased.Seq)
				continue
			}
			done = append(done, leased.Seq)
		}
		if err := q.queue.Complete(ctx, done); err != nil {
			return err
		}
		if err := q.queue.Fail(ctx, failed, q.retryAfter); err != nil {
			return err
		}
	}
}

// Drain applies every currently available job once, without retry
// scheduling for the empty-queue case. Used by tests and batch tools.
func (q *LocalQueue) Drain(ctx context.Context, executor *Executor) error {
	for {
		jobs, err := q.queue.Dequeue(ctx, q.batchSize, q.lease)
		if err != nil {
			return err
		}
		if len(jobs) == 0 {
			return nil
		}
		var done, failed []uint64
		for _, leased := range jobs {
			if err := executor.Execute(ctx, leased.Payload); err != nil {
				failed = append(failed, leased.Seq)
				continue
			}
			done = append(done, leased.Seq)
		}
		if err := q.queue.Complete(ctx, done); err != nil {
			return err
		}
		if err := q.queue.Fail(ctx, failed, q.retryAfter); err != nil {
			return err
		}
		if len(done) == 0 {
			return nil
		}
	}
}
