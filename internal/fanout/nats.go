package fanout

import (
	"context"
	"strings"

	"github.com/nats-io/nats.go"

	"github.com/imcyee/superstream-sub000/pkg/log"
)

// NATS transport: jobs publish to {prefix}.{priority} subjects and workers
// join one queue group per subject so each job lands on a single worker.
// Delivery is at-most-once per publish; deployments that need redelivery
// should use the local durable queue or front NATS with JetStream.
const natsQueueGroup = "superstream-fanout"

// NATSQueue publishes fanout jobs over a NATS connection.
type NATSQueue struct {
	conn          *nats.Conn
	subjectPrefix string
	logger        log.Logger
}

// NewNATSQueue returns a transport over the given connection. An empty
// prefix defaults to "superstream.fanout".
func NewNATSQueue(conn *nats.Conn, subjectPrefix string, logger log.Logger) *NATSQueue {
	if subjectPrefix == "" {
		subjectPrefix = "superstream.fanout"
	}
	if logger == nil {
		logger = log.NewNopLogger()
	}
	return &NATSQueue{
		conn:          conn,
		subjectPrefix: subjectPrefix,
		logger:        logger.With(log.Component("fanout-nats")),
	}
}

func (q *NATSQueue) subject(priority Priority) string {
	return q.subjectPrefix + "." + strings.ToLower(string(priority))
}

// Publish sends one job to its priority subject.
func (q *NATSQueue) Publish(_ context.Context, job *Job) error {
	payload, err := job.Encode()
	if err != nil {
		return err
	}
	return q.conn.Publish(q.subject(job.Priority), payload)
}

// Subscribe joins the worker queue group on both priority subjects and
// feeds received jobs to the executor. Returned subscriptions stay active
// until drained or the connection closes.
func (q *NATSQueue) Subscribe(ctx context.Context, executor *Executor) ([]*nats.Subscription, error) {
	handler := func(msg *nats.Msg) {
		if err := executor.Execute(ctx, msg.Data); err != nil {
			q.logger.Warn("dropping failed job", log.F("subject", msg.Subject), log.Err(err))
		}
	}
	subs := make([]*nats.Subscription, 0, 2)
	for _, priority := range []Priority{PriorityHigh, PriorityLow} {
		sub, err := q.conn.QueueSubscribe(q.subject(priority), natsQueueGroup, handler)
		if err != nil {
			for _, s := range subs {
				_ = s.Unsubscribe()
			}
			return nil, err
		}
		subs = append(subs, sub)
	}
	return subs, nil
}
