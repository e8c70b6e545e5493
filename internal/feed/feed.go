// Package feed composes the storage contracts into user-facing feeds: the
// flat feed, the aggregated feed, and the notification feed.
package feed

import (
	"context"
	"math/rand"

	"github.com/imcyee/superstream-sub000/internal/activity"
	"github.com/imcyee/superstream-sub000/internal/storage"
	"github.com/imcyee/superstream-sub000/pkg/id"
	"github.com/imcyee/superstream-sub000/pkg/log"
)

const (
	// DefaultMaxLength bounds a feed timeline; Trim evicts beyond it.
	DefaultMaxLength = 300
	// DefaultTrimChance is the probability a write triggers a trim, so
	// eviction cost amortizes across writes instead of blocking each one.
	DefaultTrimChance = 0.01
)

// Feed is a flat per-user timeline over an activity store and a timeline
// store. The zero value is not usable; construct with New.
type Feed struct {
	key        string
	activities storage.ActivityStorage
	timeline   storage.TimelineStorage

	maxLength  int
	trimChance float64
	randFloat  func() float64
	logger     log.Logger
}

// Option customizes a feed.
type Option func(*Feed)

// WithMaxLength overrides the trim bound.
func WithMaxLength(n int) Option {
	return func(f *Feed) { f.maxLength = n }
}

// WithTrimChance overrides the probabilistic trim rate. 0 disables
// write-triggered trims, 1 trims on every write.
func WithTrimChance(p float64) Option {
	return func(f *Feed) { f.trimChance = p }
}

// WithRand injects the trim dice, used by tests for determinism.
func WithRand(fn func() float64) Option {
	return func(f *Feed) { f.randFloat = fn }
}

// WithLogger attaches a logger.
func WithLogger(logger log.Logger) Option {
	return func(f *Feed) { f.logger = logger }
}

// New returns a feed over the given key and stores.
func New(key string, activities storage.ActivityStorage, timeline storage.TimelineStorage, opts ...Option) *Feed {
	f := &Feed{
		key:        key,
		activities: activities,
		timeline:   timeline,
		maxLength:  DefaultMaxLength,
		trimChance: DefaultTrimChance,
		randFloat:  rand.Float64,
		logger:     log.NewNopLogger(),
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// Key returns the timeline key the feed writes under.
func (f *Feed) Key() string { return f.key }

// MaxLength returns the trim bound.
func (f *Feed) MaxLength() int { return f.maxLength }

// InsertActivities writes activities into a global activity store. It is
// feed-independent: the manager calls it once per batch before fanning the
// references out to follower timelines.
func InsertActivities(ctx context.Context, store storage.ActivityStorage, activities []*activity.Activity) (int, error) {
	for _, a := range activities {
		if err := a.Validate(); err != nil {
			return 0, err
		}
	}
	return store.AddMany(ctx, activities)
}

// Add writes one entry; see AddMany.
func (f *Feed) Add(ctx context.Context, entry activity.Entry) error {
	return f.AddMany(ctx, []activity.Entry{entry})
}

// AddMany writes entries to the timeline and rolls the trim dice. Re-adding
// an existing id overwrites.
func (f *Feed) AddMany(ctx context.Context, entries []activity.Entry) error {
	if len(entries) == 0 {
		return nil
	}
	if err := f.timeline.AddMany(ctx, f.key, entries); err != nil {
		return err
	}
	f.maybeTrim(ctx)
	return nil
}

// Remove deletes one entry by id; see RemoveMany.
func (f *Feed) Remove(ctx context.Context, aid id.ID) error {
	return f.RemoveMany(ctx, []id.ID{aid})
}

// RemoveMany deletes entries by id. Absent ids are a no-op.
func (f *Feed) RemoveMany(ctx context.Context, ids []id.ID) error {
	if len(ids) == 0 {
		return nil
	}
	return f.timeline.RemoveMany(ctx, f.key, ids)
}

// GetItem returns the hydrated half-open [start, stop) page, newest first.
func (f *Feed) GetItem(ctx context.Context, start, stop int) ([]activity.Entry, error) {
	return f.GetSlice(ctx, start, stop, nil, storage.OrderDesc)
}

// GetSlice returns a hydrated page with an optional filter and ordering.
// The filter runs on stored entries before pagination, so dehydrated
// timelines can only filter on the id unless hydration happens in storage.
func (f *Feed) GetSlice(ctx context.Context, start, stop int, filter storage.Filter, ordering storage.Ordering) ([]activity.Entry, error) {
	entries, err := f.timeline.GetSlice(ctx, f.key, start, stop, filter, ordering)
	if err != nil {
		return nil, err
	}
	return f.hydrate(ctx, entries)
}

// hydrate resolves dehydrated entries against the activity store with one
// batch read, preserving order. Entries whose payload is gone are dropped.
func (f *Feed) hydrate(ctx context.Context, entries []activity.Entry) ([]activity.Entry, error) {
	var wanted []id.ID
	for _, e := range entries {
		switch v := e.(type) {
		case *activity.DehydratedActivity:
			wanted = append(wanted, v.ID)
		case *activity.AggregatedActivity:
			if v.Dehydrated {
				wanted = append(wanted, v.ActivityIDs...)
			}
		}
	}
	if len(wanted) == 0 {
		return entries, nil
	}

	resolved, err := f.activities.GetMany(ctx, wanted)
	if err != nil {
		return nil, err
	}
	byID := make(map[id.ID]*activity.Activity, len(resolved))
	for _, a := range resolved {
		byID[a.ID] = a
	}

	out := make([]activity.Entry, 0, len(entries))
	for _, e := range entries {
		switch v := e.(type) {
		case *activity.DehydratedActivity:
			a, ok := byID[v.ID]
			if !ok {
				f.logger.Warn("dropping timeline entry with missing payload",
					log.F("feed_key", f.key), log.F("activity_id", v.ID.String()))
				continue
			}
			out = append(out, a)
		case *activity.AggregatedActivity:
			if !v.Dehydrated {
				out = append(out, v)
				continue
			}
			group := v.Copy()
			group.Activities = make([]*activity.Activity, 0, len(group.ActivityIDs))
			for _, aid := range group.ActivityIDs {
				a, ok := byID[aid]
				if !ok {
					f.logger.Warn("dropping aggregated member with missing payload",
						log.F("feed_key", f.key), log.F("activity_id", aid.String()))
					continue
				}
				group.Activities = append(group.Activities, a)
			}
			group.ActivityIDs = nil
			group.Dehydrated = false
			out = append(out, group)
		default:
			out = append(out, e)
		}
	}
	return out, nil
}

// IndexOf returns the descending-order position of an id, or -1.
func (f *Feed) IndexOf(ctx context.Context, aid id.ID) (int, error) {
	return f.timeline.IndexOf(ctx, f.key, aid)
}

// Count returns the timeline length.
func (f *Feed) Count(ctx context.Context) (int, error) {
	return f.timeline.Count(ctx, f.key)
}

// Trim evicts everything beyond the feed's bound, keeping the newest.
func (f *Feed) Trim(ctx context.Context) error {
	return f.timeline.Trim(ctx, f.key, f.maxLength)
}

// Delete removes the whole timeline.
func (f *Feed) Delete(ctx context.Context) error {
	return f.timeline.Delete(ctx, f.key)
}

func (f *Feed) maybeTrim(ctx context.Context) {
	if f.trimChance <= 0 || f.randFloat() >= f.trimChance {
		return
	}
	if err := f.Trim(ctx); err != nil {
		f.logger.Warn("probabilistic trim failed", log.F("feed_key", f.key), log.Err(err))
	}
}
