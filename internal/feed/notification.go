package feed

import (
	"context"

	"github.com/imcyee/superstream-sub000/internal/activity"
	"github.com/imcyee/superstream-sub000/internal/aggregate"
	"github.com/imcyee/superstream-sub000/internal/storage"
	"github.com/imcyee/superstream-sub000/pkg/id"
)

// Marker list names the notification feed maintains per user.
const (
	listUnseen = "unseen"
	listUnread = "unread"
)

// NotificationFeed is an aggregated feed that additionally tracks which
// groups the user has seen and read, via two marker lists keyed by group id.
type NotificationFeed struct {
	*AggregatedFeed
	lists storage.ListsStorage
}

// NewNotification returns a notification feed over the given stores.
func NewNotification(key string, activities storage.ActivityStorage, timeline storage.TimelineStorage, lists storage.ListsStorage, aggregator *aggregate.Aggregator, opts ...Option) *NotificationFeed {
	return &NotificationFeed{
		AggregatedFeed: NewAggregated(key, activities, timeline, aggregator, opts...),
		lists:          lists,
	}
}

// AddMany merges activities and marks every touched group unseen and
// unread, dropping the stale marker entries of repositioned groups.
func (f *NotificationFeed) AddMany(ctx context.Context, activities []*activity.Activity) (*aggregate.MergeResult, error) {
	res, err := f.AggregatedFeed.AddMany(ctx, activities)
	if err != nil {
		return nil, err
	}

	var stale []id.ID
	for _, pair := range res.Changed {
		stale = append(stale, pair.Previous.SerializationID())
	}
	if len(stale) > 0 {
		if err := f.lists.Remove(ctx, f.key, map[string][]id.ID{listUnseen: stale, listUnread: stale}); err != nil {
			return nil, err
		}
	}

	var touched []id.ID
	for _, g := range res.New {
		touched = append(touched, g.SerializationID())
	}
	for _, pair := range res.Changed {
		touched = append(touched, pair.Updated.SerializationID())
	}
	if len(touched) > 0 {
		if err := f.lists.Add(ctx, f.key, map[string][]id.ID{listUnseen: touched, listUnread: touched}); err != nil {
			return nil, err
		}
	}
	return res, nil
}

// RemoveMany removes activities and drops markers for groups that vanished.
func (f *NotificationFeed) RemoveMany(ctx context.Context, activities []*activity.Activity) (*aggregate.MergeResult, error) {
	res, err := f.AggregatedFeed.RemoveMany(ctx, activities)
	if err != nil {
		return nil, err
	}
	var gone []id.ID
	for _, g := range res.Deleted {
		gone = append(gone, g.SerializationID())
	}
	if len(gone) > 0 {
		if err := f.lists.Remove(ctx, f.key, map[string][]id.ID{listUnseen: gone, listUnread: gone}); err != nil {
			return nil, err
		}
	}
	return res, nil
}

// GetGroups returns the hydrated page with seen/read state annotated from
// the marker lists: a group absent from a list counts as seen or read as of
// its last update.
func (f *NotificationFeed) GetGroups(ctx context.Context, start, stop int) ([]*activity.AggregatedActivity, error) {
	groups, err := f.AggregatedFeed.GetGroups(ctx, start, stop)
	if err != nil {
		return nil, err
	}
	markers, err := f.lists.Get(ctx, f.key, listUnseen, listUnread)
	if err != nil {
		return nil, err
	}
	unseen := idSet(markers[listUnseen])
	unread := idSet(markers[listUnread])
	for _, g := range groups {
		gid := g.SerializationID()
		if _, ok := unseen[gid]; !ok {
			g.SeenAt = g.UpdatedAt
		}
		if _, ok := unread[gid]; !ok {
			g.ReadAt = g.UpdatedAt
		}
	}
	return groups, nil
}

// CountUnseen returns how many groups the user has not seen.
func (f *NotificationFeed) CountUnseen(ctx context.Context) (int, error) {
	return f.lists.Count(ctx, f.key, listUnseen)
}

// CountUnread returns how many groups the user has not read.
func (f *NotificationFeed) CountUnread(ctx context.Context) (int, error) {
	return f.lists.Count(ctx, f.key, listUnread)
}

// MarkActivity clears one group's seen and/or read markers.
func (f *NotificationFeed) MarkActivity(ctx context.Context, groupID id.ID, seen, read bool) error {
	return f.MarkActivities(ctx, []id.ID{groupID}, seen, read)
}

// MarkActivities clears the given group ids from the seen and/or read
// marker lists.
func (f *NotificationFeed) MarkActivities(ctx context.Context, groupIDs []id.ID, seen, read bool) error {
	if len(groupIDs) == 0 || (!seen && !read) {
		return nil
	}
	removals := make(map[string][]id.ID, 2)
	if seen {
		removals[listUnseen] = groupIDs
	}
	if read {
		removals[listUnread] = groupIDs
	}
	return f.lists.Remove(ctx, f.key, removals)
}

// MarkAll clears the seen and/or read marker lists entirely.
func (f *NotificationFeed) MarkAll(ctx context.Context, seen, read bool) error {
	var lists []string
	if seen {
		lists = append(lists, listUnseen)
	}
	if read {
		lists = append(lists, listUnread)
	}
	if len(lists) == 0 {
		return nil
	}
	return f.lists.Flush(ctx, f.key, lists...)
}

func idSet(ids []id.ID) map[id.ID]struct{} {
	out := make(map[id.ID]struct{}, len(ids))
	for _, aid := range ids {
		out[aid] = struct{}{}
	}
	return out
}
