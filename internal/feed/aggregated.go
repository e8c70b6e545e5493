package feed

import (
	"context"

	"github.com/imcyee/superstream-sub000/internal/activity"
	"github.com/imcyee/superstream-sub000/internal/aggregate"
	"github.com/imcyee/superstream-sub000/internal/storage"
	"github.com/imcyee/superstream-sub000/pkg/id"
)

// mergeMaxLength is how many recent groups a merge reconciles against.
// Older groups are past the merge horizon; activities landing there start a
// fresh group instead.
const mergeMaxLength = 20

// AggregatedFeed folds incoming activities into aggregated groups. Writes
// reconcile against the most recent groups and reposition every group whose
// membership changed, since the group id embeds the update time.
type AggregatedFeed struct {
	*Feed
	aggregator *aggregate.Aggregator
}

// NewAggregated returns an aggregated feed over the given stores. A nil
// aggregator falls back to the default group-by-verb-and-day strategy.
func NewAggregated(key string, activities storage.ActivityStorage, timeline storage.TimelineStorage, aggregator *aggregate.Aggregator, opts ...Option) *AggregatedFeed {
	if aggregator == nil {
		aggregator = aggregate.New(nil, nil)
	}
	return &AggregatedFeed{
		Feed:       New(key, activities, timeline, opts...),
		aggregator: aggregator,
	}
}

// AddMany merges activities into the feed's groups: changed groups are
// removed at their previous position and re-inserted at the new one, new
// groups are inserted, and everything is re-ranked by the group id.
func (f *AggregatedFeed) AddMany(ctx context.Context, activities []*activity.Activity) (*aggregate.MergeResult, error) {
	if len(activities) == 0 {
		return &aggregate.MergeResult{}, nil
	}
	current, err := f.currentGroups(ctx, 0, mergeMaxLength)
	if err != nil {
		return nil, err
	}
	res, err := f.aggregator.Merge(current, activities)
	if err != nil {
		return nil, err
	}
	if err := f.apply(ctx, res); err != nil {
		return nil, err
	}
	return res, nil
}

// RemoveMany removes activities from their groups across the whole feed.
// A group losing its last member is deleted; a shrunk group keeps its
// position because removal does not advance the update time.
func (f *AggregatedFeed) RemoveMany(ctx context.Context, activities []*activity.Activity) (*aggregate.MergeResult, error) {
	if len(activities) == 0 {
		return &aggregate.MergeResult{}, nil
	}
	current, err := f.currentGroups(ctx, 0, f.maxLength)
	if err != nil {
		return nil, err
	}
	res, err := f.aggregator.RemoveMany(current, activities)
	if err != nil {
		return nil, err
	}
	if err := f.apply(ctx, res); err != nil {
		return nil, err
	}
	return res, nil
}

// Contains reports whether an activity with the same content is a live
// member of any group, compared by field.
func (f *AggregatedFeed) Contains(ctx context.Context, a *activity.Activity) (bool, error) {
	groups, err := f.currentGroups(ctx, 0, f.maxLength)
	if err != nil {
		return false, err
	}
	for _, g := range groups {
		if g.Contains(a) {
			return true, nil
		}
	}
	return false, nil
}

// GetGroups returns the hydrated [start, stop) page as aggregated groups.
func (f *AggregatedFeed) GetGroups(ctx context.Context, start, stop int) ([]*activity.AggregatedActivity, error) {
	return f.currentGroups(ctx, start, stop)
}

func (f *AggregatedFeed) currentGroups(ctx context.Context, start, stop int) ([]*activity.AggregatedActivity, error) {
	entries, err := f.GetSlice(ctx, start, stop, nil, storage.OrderDesc)
	if err != nil {
		return nil, err
	}
	out := make([]*activity.AggregatedActivity, 0, len(entries))
	for _, e := range entries {
		if g, ok := e.(*activity.AggregatedActivity); ok {
			out = append(out, g)
		}
	}
	return out, nil
}

// apply writes a merge result: stale positions out first, then the new and
// updated groups in.
func (f *AggregatedFeed) apply(ctx context.Context, res *aggregate.MergeResult) error {
	var stale []id.ID
	for _, pair := range res.Changed {
		stale = append(stale, pair.Previous.SerializationID())
	}
	for _, g := range res.Deleted {
		stale = append(stale, g.SerializationID())
	}
	if err := f.Feed.RemoveMany(ctx, stale); err != nil {
		return err
	}

	var fresh []activity.Entry
	for _, g := range res.New {
		fresh = append(fresh, g)
	}
	for _, pair := range res.Changed {
		fresh = append(fresh, pair.Updated)
	}
	return f.Feed.AddMany(ctx, fresh)
}
