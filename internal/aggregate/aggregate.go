// Package aggregate folds individual activities into aggregated groups and
// reconciles new groups against the ones already stored on a feed.
package aggregate

import (
	"fmt"
	"sort"

	"github.com/imcyee/superstream-sub000/internal/activity"
)

// GroupFunc derives the group key an activity aggregates under.
type GroupFunc func(*activity.Activity) string

// RankFunc orders aggregated groups for timeline placement. It reports
// whether a ranks before b.
type RankFunc func(a, b *activity.AggregatedActivity) bool

// GroupByVerbAndDay buckets activities by verb per UTC day, the default
// strategy ("X and 12 others loved your photo today").
func GroupByVerbAndDay(a *activity.Activity) string {
	return fmt.Sprintf("verb:%d-date:%s", a.VerbID, a.Time.UTC().Format("2006-01-02"))
}

// GroupByVerbObjectAndDay additionally splits groups per object, for
// notification-style aggregation scoped to one target entity.
func GroupByVerbObjectAndDay(a *activity.Activity) string {
	return fmt.Sprintf("verb:%d-object:%s-date:%s", a.VerbID, a.ObjectID, a.Time.UTC().Format("2006-01-02"))
}

// RankByUpdatedAt places the most recently updated group first.
func RankByUpdatedAt(a, b *activity.AggregatedActivity) bool {
	return a.UpdatedAt.After(b.UpdatedAt)
}

// Aggregator groups, ranks, and merges activities. The zero value is not
// usable; construct with New.
type Aggregator struct {
	group GroupFunc
	rank  RankFunc
}

// New returns an aggregator using the given strategies; nil arguments fall
// back to GroupByVerbAndDay and RankByUpdatedAt.
func New(group GroupFunc, rank RankFunc) *Aggregator {
	if group == nil {
		group = GroupByVerbAndDay
	}
	if rank == nil {
		rank = RankByUpdatedAt
	}
	return &Aggregator{group: group, rank: rank}
}

// GroupActivities buckets activities by group key. Within each bucket the
// members are appended in ascending id order so every bucket's CreatedAt
// and UpdatedAt reflect the real first and last member.
func (g *Aggregator) GroupActivities(activities []*activity.Activity) (map[string][]*activity.Activity, error) {
	ordered := make([]*activity.Activity, len(activities))
	copy(ordered, activities)
	sort.Slice(ordered, func(i, j int) bool {
		return ordered[i].ID.Compare(ordered[j].ID) < 0
	})

	out := make(map[string][]*activity.Activity)
	for _, a := range ordered {
		if err := a.Validate(); err != nil {
			return nil, err
		}
		key := g.group(a)
		out[key] = append(out[key], a)
	}
	return out, nil
}

// Aggregate folds activities into ranked aggregated groups.
func (g *Aggregator) Aggregate(activities []*activity.Activity) ([]*activity.AggregatedActivity, error) {
	buckets, err := g.GroupActivities(activities)
	if err != nil {
		return nil, err
	}
	out := make([]*activity.AggregatedActivity, 0, len(buckets))
	for key, members := range buckets {
		agg := activity.NewAggregated(key)
		for _, a := range members {
			if err := agg.Append(a); err != nil {
				return nil, err
			}
		}
		out = append(out, agg)
	}
	g.Rank(out)
	return out, nil
}

// Rank sorts groups in place by the configured ranking.
func (g *Aggregator) Rank(groups []*activity.AggregatedActivity) {
	sort.SliceStable(groups, func(i, j int) bool {
		return g.rank(groups[i], groups[j])
	})
}

// MergeResult is the reconciliation of new activities against the groups a
// feed already holds. Every Changed pair must be applied as remove-previous
// then insert-updated so the group's timeline position follows its new
// UpdatedAt.
type MergeResult struct {
	// New holds groups that did not exist before.
	New []*activity.AggregatedActivity
	// Changed pairs each pre-existing group with its updated form.
	Changed []ChangedGroup
	// Deleted holds pre-existing groups whose last member was removed.
	Deleted []*activity.AggregatedActivity
}

// ChangedGroup is one before/after pair from a merge.
type ChangedGroup struct {
	Previous *activity.AggregatedActivity
	Updated  *activity.AggregatedActivity
}

// Merge reconciles activities against existing groups. Existing groups are
// never mutated; updated forms are deep copies. Activities already present
// in their group are skipped, so merging the same batch again yields an
// empty diff and fanout jobs stay safe to redeliver.
func (g *Aggregator) Merge(existing []*activity.AggregatedActivity, activities []*activity.Activity) (*MergeResult, error) {
	buckets, err := g.GroupActivities(activities)
	if err != nil {
		return nil, err
	}

	byKey := make(map[string]*activity.AggregatedActivity, len(existing))
	for _, agg := range existing {
		byKey[agg.Group] = agg
	}

	result := &MergeResult{}
	for key, members := range buckets {
		prev, ok := byKey[key]
		if !ok {
			agg := activity.NewAggregated(key)
			for _, a := range members {
				if err := agg.Append(a); err != nil {
					return nil, err
				}
			}
			result.New = append(result.New, agg)
			continue
		}
		updated := prev.Copy()
		grew := false
		for _, a := range members {
			if updated.ContainsID(a.ID) {
				continue
			}
			if err := updated.Append(a); err != nil {
				return nil, err
			}
			grew = true
		}
		if grew {
			result.Changed = append(result.Changed, ChangedGroup{Previous: prev, Updated: updated})
		}
	}
	g.Rank(result.New)
	return result, nil
}

// RemoveMany reconciles activity removals against existing groups: groups
// losing their last member land in Deleted, shrunk groups in Changed.
func (g *Aggregator) RemoveMany(existing []*activity.AggregatedActivity, activities []*activity.Activity) (*MergeResult, error) {
	result := &MergeResult{}
	for _, prev := range existing {
		var hits []*activity.Activity
		for _, a := range activities {
			if prev.ContainsID(a.ID) {
				hits = append(hits, a)
			}
		}
		if len(hits) == 0 {
			continue
		}
		live := prev.ActivityCount() - prev.MinimizedActivities
		if len(hits) >= live {
			result.Deleted = append(result.Deleted, prev)
			continue
		}
		updated := prev.Copy()
		for _, a := range hits {
			if err := updated.Remove(a.ID); err != nil {
				return nil, err
			}
		}
		result.Changed = append(result.Changed, ChangedGroup{Previous: prev, Updated: updated})
	}
	return result, nil
}
