package fanout

import (
	"context"
	"errors"
	"strings"

	"github.com/imcyee/superstream-sub000/internal/activity"
	"github.com/imcyee/superstream-sub000/internal/feed"
	"github.com/imcyee/superstream-sub000/internal/storage"
	"github.com/imcyee/superstream-sub000/pkg/id"
	"github.com/imcyee/superstream-sub000/pkg/log"
)

const (
	// FollowActivityLimit caps how many existing entries a follow copies.
	FollowActivityLimit = 5000
	// BatchImportChunkSize bounds one import chunk's writes.
	BatchImportChunkSize = 500
)

// FollowerResolver supplies a user's follower ids bucketed by priority.
// Implemented by the surrounding application.
type FollowerResolver func(ctx context.Context, userID string) (map[Priority][]string, error)

// JobQueue transports fanout jobs to workers.
type JobQueue interface {
	Publish(ctx context.Context, job *Job) error
}

// Config assembles a Manager. Identity, Activities, UserFeed, Followers,
// and Queue are required; FanoutFeeds defaults to the user feed class.
type Config struct {
	Identity    string
	Activities  storage.ActivityStorage
	UserFeed    func(userID string) *feed.Feed
	FanoutFeeds []TargetFactory
	Followers   FollowerResolver
	Queue       JobQueue
	Logger      log.Logger
}

// Manager orchestrates fanout: synchronous up through the producer's own
// feed write and the job enqueue, asynchronous beyond.
type Manager struct {
	identity    string
	activities  storage.ActivityStorage
	userFeed    func(userID string) *feed.Feed
	fanoutFeeds []TargetFactory
	followers   FollowerResolver
	queue       JobQueue
	logger      log.Logger
}

// NewManager validates the config and returns a manager.
func NewManager(cfg Config) (*Manager, error) {
	switch {
	case cfg.Identity == "":
		return nil, errors.New("fanout: Config.Identity is required")
	case cfg.Activities == nil:
		return nil, errors.New("fanout: Config.Activities is required")
	case cfg.UserFeed == nil:
		return nil, errors.New("fanout: Config.UserFeed is required")
	case cfg.Followers == nil:
		return nil, errors.New("fanout: Config.Followers is required")
	case cfg.Queue == nil:
		return nil, errors.New("fanout: Config.Queue is required")
	}
	if len(cfg.FanoutFeeds) == 0 {
		userFeed := cfg.UserFeed
		cfg.FanoutFeeds = []TargetFactory{func(userID string) Target {
			return FlatTarget(userFeed(userID))
		}}
	}
	if cfg.Logger == nil {
		cfg.Logger = log.NewNopLogger()
	}
	return &Manager{
		identity:    cfg.Identity,
		activities:  cfg.Activities,
		userFeed:    cfg.UserFeed,
		fanoutFeeds: cfg.FanoutFeeds,
		followers:   cfg.Followers,
		queue:       cfg.Queue,
		logger:      cfg.Logger.With(log.Component("fanout"), log.F("manager", cfg.Identity)),
	}, nil
}

// Identity returns the registry identity jobs reference.
func (m *Manager) Identity() string { return m.identity }

// GetUserFeed returns the user's own feed.
func (m *Manager) GetUserFeed(userID string) *feed.Feed { return m.userFeed(userID) }

// AddUserActivity writes an activity to the global store and the user's
// own feed, then enqueues one fanout job per non-empty priority class.
// Fail-fast: if the own-feed write fails, nothing is enqueued.
func (m *Manager) AddUserActivity(ctx context.Context, userID string, a *activity.Activity) error {
	if _, err := feed.InsertActivities(ctx, m.activities, []*activity.Activity{a}); err != nil {
		return err
	}
	if err := m.userFeed(userID).Add(ctx, a); err != nil {
		return err
	}
	return m.enqueueFanout(ctx, userID, OpAdd, []*activity.Activity{a}, true)
}

// RemoveUserActivity mirrors AddUserActivity for removal. Removals never
// need trimming.
func (m *Manager) RemoveUserActivity(ctx context.Context, userID string, a *activity.Activity) error {
	if err := m.userFeed(userID).Remove(ctx, a.ID); err != nil {
		return err
	}
	if err := m.enqueueFanout(ctx, userID, OpRemove, []*activity.Activity{a}, false); err != nil {
		return err
	}
	return m.activities.RemoveMany(ctx, []id.ID{a.ID})
}

func (m *Manager) enqueueFanout(ctx context.Context, userID string, op Operation, activities []*activity.Activity, trim bool) error {
	byPriority, err := m.followers(ctx, userID)
	if err != nil {
		return err
	}
	for _, priority := range []Priority{PriorityHigh, PriorityLow} {
		ids := byPriority[priority]
		if len(ids) == 0 {
			continue
		}
		job, err := NewJob(m.identity, ids, op, activities, trim, priority)
		if err != nil {
			return err
		}
		if err := m.queue.Publish(ctx, job); err != nil {
			return err
		}
		m.logger.Debug("enqueued fanout job",
			log.F("operation", string(op)), log.F("priority", string(priority)),
			log.F("followers", len(ids)), log.F("activities", len(activities)))
	}
	return nil
}

// ExecuteJob applies a fanout job: followers in fixed-size chunks, each
// follower's configured feed classes in turn. Any failure fails the job as
// a whole; retried operations are idempotent.
func (m *Manager) ExecuteJob(ctx context.Context, job *Job) error {
	activities, err := job.DecodeActivities()
	if err != nil {
		return err
	}
	for start := 0; start < len(job.FollowerIDs); start += FanoutChunkSize {
		end := start + FanoutChunkSize
		if end > len(job.FollowerIDs) {
			end = len(job.FollowerIDs)
		}
		for _, followerID := range job.FollowerIDs[start:end] {
			for _, factory := range m.fanoutFeeds {
				if err := factory(followerID).Apply(ctx, job.Operation, activities, job.Trim); err != nil {
					return err
				}
			}
		}
	}
	return nil
}

// FollowUser copies the newest entries of the target's feed into the
// follower's feed, bounded by FollowActivityLimit.
func (m *Manager) FollowUser(ctx context.Context, followerID, targetID string) error {
	entries, err := m.userFeed(targetID).GetItem(ctx, 0, FollowActivityLimit)
	if err != nil {
		return err
	}
	if len(entries) == 0 {
		return nil
	}
	return m.userFeed(followerID).AddMany(ctx, entries)
}

// FollowManyUsers runs FollowUser for every target.
func (m *Manager) FollowManyUsers(ctx context.Context, followerID string, targetIDs []string) error {
	for _, targetID := range targetIDs {
		if err := m.FollowUser(ctx, followerID, targetID); err != nil {
			return err
		}
	}
	return nil
}

// UnfollowUser removes every entry of the follower's feed whose actor or
// target identity resolves to one of the unfollowed users. Composite ids
// compare by their trailing namespace segment.
func (m *Manager) UnfollowUser(ctx context.Context, followerID string, targetIDs ...string) error {
	targets := make(map[string]struct{}, len(targetIDs))
	for _, t := range targetIDs {
		targets[stripNamespace(t)] = struct{}{}
	}

	f := m.userFeed(followerID)
	if err := f.Trim(ctx); err != nil {
		return err
	}
	entries, err := f.GetItem(ctx, 0, f.MaxLength())
	if err != nil {
		return err
	}
	var stale []id.ID
	for _, e := range entries {
		a, ok := e.(*activity.Activity)
		if !ok {
			continue
		}
		if _, hit := targets[stripNamespace(a.ActorID)]; hit {
			stale = append(stale, a.ID)
			continue
		}
		if a.TargetID != "" {
			if _, hit := targets[stripNamespace(a.TargetID)]; hit {
				stale = append(stale, a.ID)
			}
		}
	}
	return f.RemoveMany(ctx, stale)
}

// UnfollowManyUsers is UnfollowUser over several targets in one scan.
func (m *Manager) UnfollowManyUsers(ctx context.Context, followerID string, targetIDs []string) error {
	return m.UnfollowUser(ctx, followerID, targetIDs...)
}

// FollowUserAsync routes the follow copy through the job queue as a LOW
// priority add against the follower's feed.
func (m *Manager) FollowUserAsync(ctx context.Context, followerID, targetID string) error {
	entries, err := m.userFeed(targetID).GetItem(ctx, 0, FollowActivityLimit)
	if err != nil {
		return err
	}
	activities := make([]*activity.Activity, 0, len(entries))
	for _, e := range entries {
		if a, ok := e.(*activity.Activity); ok {
			activities = append(activities, a)
		}
	}
	if len(activities) == 0 {
		return nil
	}
	job, err := NewJob(m.identity, []string{followerID}, OpAdd, activities, false, PriorityLow)
	if err != nil {
		return err
	}
	return m.queue.Publish(ctx, job)
}

// UnfollowUserAsync computes the entries to purge synchronously and routes
// the removal through the job queue as a LOW priority job.
func (m *Manager) UnfollowUserAsync(ctx context.Context, followerID string, targetIDs ...string) error {
	targets := make(map[string]struct{}, len(targetIDs))
	for _, t := range targetIDs {
		targets[stripNamespace(t)] = struct{}{}
	}
	f := m.userFeed(followerID)
	entries, err := f.GetItem(ctx, 0, f.MaxLength())
	if err != nil {
		return err
	}
	var stale []*activity.Activity
	for _, e := range entries {
		a, ok := e.(*activity.Activity)
		if !ok {
			continue
		}
		_, actorHit := targets[stripNamespace(a.ActorID)]
		_, targetHit := targets[stripNamespace(a.TargetID)]
		if actorHit || (a.TargetID != "" && targetHit) {
			stale = append(stale, a)
		}
	}
	if len(stale) == 0 {
		return nil
	}
	job, err := NewJob(m.identity, []string{followerID}, OpRemove, stale, false, PriorityLow)
	if err != nil {
		return err
	}
	return m.queue.Publish(ctx, job)
}

// BatchImport backfills a user's history in chunks of chunkSize (0 means
// BatchImportChunkSize), optionally fanning each chunk out along the
// normal priority path. Meant for cold-start population, not the live
// write path.
func (m *Manager) BatchImport(ctx context.Context, userID string, activities []*activity.Activity, chunkSize int, fanout bool) error {
	if chunkSize <= 0 {
		chunkSize = BatchImportChunkSize
	}
	for start := 0; start < len(activities); start += chunkSize {
		end := start + chunkSize
		if end > len(activities) {
			end = len(activities)
		}
		chunk := activities[start:end]
		if _, err := feed.InsertActivities(ctx, m.activities, chunk); err != nil {
			return err
		}
		entries := make([]activity.Entry, len(chunk))
		for i, a := range chunk {
			entries[i] = a
		}
		if err := m.userFeed(userID).AddMany(ctx, entries); err != nil {
			return err
		}
		if fanout {
			if err := m.enqueueFanout(ctx, userID, OpAdd, chunk, true); err != nil {
				return err
			}
		}
	}
	return nil
}

// stripNamespace reduces a composite id like "user:123" to its trailing
// segment for identity comparison.
func stripNamespace(s string) string {
	if i := strings.LastIndex(s, ":"); i >= 0 {
		return s[i+1:]
	}
	return s
}
