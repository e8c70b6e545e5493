package fanout

import (
	"context"

	"github.com/imcyee/superstream-sub000/pkg/log"
)

// Executor turns transported job payloads back into feed writes via the
// registry.
type Executor struct {
	registry *Registry
	logger   log.Logger
}

// NewExecutor returns an executor over the given registry.
func NewExecutor(registry *Registry, logger log.Logger) *Executor {
	if logger == nil {
		logger = log.NewNopLogger()
	}
	return &Executor{registry: registry, logger: logger.With(log.Component("fanout-executor"))}
}

// Execute decodes one job payload, resolves its manager, and applies it.
// An unknown identity or any follower-feed failure fails the whole job.
func (e *Executor) Execute(ctx context.Context, payload []byte) error {
	job, err := DecodeJob(payload)
	if err != nil {
		return err
	}
	m, err := e.registry.Get(job.FeedManagerIdentity)
	if err != nil {
		return err
	}
	if err := m.ExecuteJob(ctx, job); err != nil {
		e.logger.Warn("fanout job failed",
			log.F("manager", job.FeedManagerIdentity),
			log.F("operation", string(job.Operation)),
			log.F("followers", len(job.FollowerIDs)),
			log.Err(err))
		return err
	}
	e.logger.Debug("fanout job applied",
		log.F("manager", job.FeedManagerIdentity),
		log.F("operation", string(job.Operation)),
		log.F("followers", len(job.FollowerIDs)))
	return nil
}
