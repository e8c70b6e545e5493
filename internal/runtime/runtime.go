// Package runtime wires configuration, storage backends, the job queue,
// and the fanout registry into a single-node instance.
package runtime

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/redis/go-redis/v9"

	cfgpkg "github.com/imcyee/superstream-sub000/internal/config"
	"github.com/imcyee/superstream-sub000/internal/fanout"
	"github.com/imcyee/superstream-sub000/internal/feed"
	"github.com/imcyee/superstream-sub000/internal/jobqueue"
	"github.com/imcyee/superstream-sub000/internal/serialize"
	"github.com/imcyee/superstream-sub000/internal/storage"
	"github.com/imcyee/superstream-sub000/internal/storage/memory"
	pebblestore "github.com/imcyee/superstream-sub000/internal/storage/pebble"
	redisstore "github.com/imcyee/superstream-sub000/internal/storage/redis"
	"github.com/imcyee/superstream-sub000/pkg/log"
)

// Options for building the Runtime.
type Options struct {
	Config cfgpkg.Config
	Logger log.Logger
}

// Runtime holds the wired instance. Feed managers register against its
// Registry at startup; the worker loop consumes its queue.
type Runtime struct {
	config cfgpkg.Config
	logger log.Logger

	db    *pebblestore.DB
	redis *redis.Client
	nats  *nats.Conn

	activities storage.ActivityStorage
	timelines  storage.TimelineStorage
	lists      storage.ListsStorage

	registry *fanout.Registry
	queue    fanout.JobQueue
	local    *fanout.LocalQueue
	natsQ    *fanout.NATSQueue
}

// Open validates the config and wires the configured backends.
func Open(opts Options) (*Runtime, error) {
	cfg := opts.Config
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	logger := opts.Logger
	if logger == nil {
		logger = log.NewNopLogger()
	}

	rt := &Runtime{config: cfg, logger: logger, registry: fanout.NewRegistry()}
	if err := rt.openStorage(); err != nil {
		return nil, err
	}
	if err := rt.openQueue(); err != nil {
		_ = rt.Close()
		return nil, err
	}
	return rt, nil
}

func fsyncMode(name string) pebblestore.FsyncMode {
	switch name {
	case "always":
		return pebblestore.FsyncModeAlways
	case "never":
		return pebblestore.FsyncModeNever
	default:
		return pebblestore.FsyncModeInterval
	}
}

func (r *Runtime) openStorage() error {
	switch r.config.Storage {
	case "memory":
		r.activities = memory.NewActivityStore()
		r.timelines = memory.NewTimelineStore(serialize.Activity{})
		r.lists = memory.NewListsStore(0)
	case "redis":
		client := redis.NewClient(&redis.Options{Addr: r.config.Redis.Addr, DB: r.config.Redis.DB})
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := client.Ping(ctx).Err(); err != nil {
			return fmt.Errorf("runtime: redis ping: %w", err)
		}
		r.redis = client
		r.activities = redisstore.NewActivityStore(client)
		r.timelines = redisstore.NewTimelineStore(client, serialize.Activity{})
		r.lists = redisstore.NewListsStore(client, 0)
	default: // pebble
		db, err := pebblestore.Open(pebblestore.Options{
			DataDir: r.config.DataDir,
			Fsync:   fsyncMode(r.config.Fsync),
		})
		if err != nil {
			return err
		}
		r.db = db
		r.activities = pebblestore.NewActivityStore(db)
		r.timelines = pebblestore.NewTimelineStore(db, serialize.Activity{})
		r.lists = pebblestore.NewListsStore(db, 0)
	}
	return nil
}

func (r *Runtime) openQueue() error {
	switch r.config.Queue.Transport {
	case "nats":
		conn, err := nats.Connect(r.config.Queue.NATSURL)
		if err != nil {
			return fmt.Errorf("runtime: nats connect: %w", err)
		}
		r.nats = conn
		r.natsQ = fanout.NewNATSQueue(conn, r.config.Queue.SubjectPrefix, r.logger)
		r.queue = r.natsQ
	default: // local durable queue needs a pebble db even with other storage
		db := r.db
		if db == nil {
			opened, err := pebblestore.Open(pebblestore.Options{
				DataDir: r.config.DataDir,
				Fsync:   fsyncMode(r.config.Fsync),
			})
			if err != nil {
				return err
			}
			r.db = opened
			db = opened
		}
		q, err := jobqueue.Open(db, "fanout", r.logger)
		if err != nil {
			return err
		}
		r.local = fanout.NewLocalQueue(q, r.logger)
		r.queue = r.local
	}
	return nil
}

// Close releases every open resource.
func (r *Runtime) Close() error {
	var errs []error
	if r.nats != nil {
		r.nats.Close()
	}
	if r.redis != nil {
		errs = append(errs, r.redis.Close())
	}
	if r.db != nil {
		errs = append(errs, r.db.Close())
	}
	return errors.Join(errs...)
}

// CheckHealth verifies the wired backends answer.
func (r *Runtime) CheckHealth(ctx context.Context) error {
	if r.db != nil {
		it, err := r.db.NewIter(nil)
		if err != nil {
			return err
		}
		it.Close()
	}
	if r.redis != nil {
		if err := r.redis.Ping(ctx).Err(); err != nil {
			return err
		}
	}
	return nil
}

// NewManager builds a fanout manager over the runtime's backends with the
// configured feed limits and registers it.
func (r *Runtime) NewManager(identity string, followers fanout.FollowerResolver, fanoutFeeds []fanout.TargetFactory) (*fanout.Manager, error) {
	userFeed := func(userID string) *feed.Feed {
		return feed.New("user:"+userID, r.activities, r.timelines,
			feed.WithMaxLength(r.config.Feed.MaxLength),
			feed.WithTrimChance(r.config.Feed.TrimChance),
			feed.WithLogger(r.logger))
	}
	m, err := fanout.NewManager(fanout.Config{
		Identity:    identity,
		Activities:  r.activities,
		UserFeed:    userFeed,
		FanoutFeeds: fanoutFeeds,
		Followers:   followers,
		Queue:       r.queue,
		Logger:      r.logger,
	})
	if err != nil {
		return nil, err
	}
	if err := r.registry.Register(m); err != nil {
		return nil, err
	}
	return m, nil
}

// RunWorker consumes fanout jobs until the context ends.
func (r *Runtime) RunWorker(ctx context.Context) error {
	executor := fanout.NewExecutor(r.registry, r.logger)
	if r.local != nil {
		return r.local.Run(ctx, executor)
	}
	subs, err := r.natsQ.Subscribe(ctx, executor)
	if err != nil {
		return err
	}
	<-ctx.Done()
	for _, sub := range subs {
		_ = sub.Drain()
	}
	return ctx.Err()
}

// Registry exposes the process-wide manager registry.
func (r *Runtime) Registry() *fanout.Registry { return r.registry }

// ActivityStorage exposes the wired global activity store.
func (r *Runtime) ActivityStorage() storage.ActivityStorage { return r.activities }

// TimelineStorage exposes the wired timeline store.
func (r *Runtime) TimelineStorage() storage.TimelineStorage { return r.timelines }

// ListsStorage exposes the wired marker-list store.
func (r *Runtime) ListsStorage() storage.ListsStorage { return r.lists }

// Config returns the runtime configuration.
func (r *Runtime) Config() cfgpkg.Config { return r.config }
