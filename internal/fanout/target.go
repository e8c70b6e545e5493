package fanout

import (
	"context"
	"fmt"

	"github.com/imcyee/superstream-sub000/internal/activity"
	"github.com/imcyee/superstream-sub000/internal/feed"
	"github.com/imcyee/superstream-sub000/pkg/id"
)

// Target is a follower feed a fanout job writes into. Adapters below wrap
// the concrete feed types so one manager can fan into flat, aggregated,
// and notification feeds uniformly.
type Target interface {
	Apply(ctx context.Context, op Operation, activities []*activity.Activity, trim bool) error
}

// TargetFactory instantiates the target feed of one follower.
type TargetFactory func(userID string) Target

type flatTarget struct{ f *feed.Feed }

// FlatTarget adapts a flat feed.
func FlatTarget(f *feed.Feed) Target { return flatTarget{f: f} }

func (t flatTarget) Apply(ctx context.Context, op Operation, activities []*activity.Activity, trim bool) error {
	switch op {
	case OpAdd:
		entries := make([]activity.Entry, len(activities))
		for i, a := range activities {
			entries[i] = a
		}
		if err := t.f.AddMany(ctx, entries); err != nil {
			return err
		}
		if trim {
			return t.f.Trim(ctx)
		}
		return nil
	case OpRemove:
		ids := make([]id.ID, len(activities))
		for i, a := range activities {
			ids[i] = a.ID
		}
		return t.f.RemoveMany(ctx, ids)
	default:
		return fmt.Errorf("fanout: unknown operation %q", op)
	}
}

type aggregatedTarget struct{ f *feed.AggregatedFeed }

// AggregatedTarget adapts an aggregated feed.
func AggregatedTarget(f *feed.AggregatedFeed) Target { return aggregatedTarget{f: f} }

func (t aggregatedTarget) Apply(ctx context.Context, op Operation, activities []*activity.Activity, trim bool) error {
	switch op {
	case OpAdd:
		if _, err := t.f.AddMany(ctx, activities); err != nil {
			return err
		}
		if trim {
			return t.f.Trim(ctx)
		}
		return nil
	case OpRemove:
		_, err := t.f.RemoveMany(ctx, activities)
		return err
	default:
		return fmt.Errorf("fanout: unknown operation %q", op)
	}
}

type notificationTarget struct{ f *feed.NotificationFeed }

// NotificationTarget adapts a notification feed.
func NotificationTarget(f *feed.NotificationFeed) Target { return notificationTarget{f: f} }

func (t notificationTarget) Apply(ctx context.Context, op Operation, activities []*activity.Activity, trim bool) error {
	switch op {
	case OpAdd:
		if _, err := t.f.AddMany(ctx, activities); err != nil {
			return err
		}
		if trim {
			return t.f.Trim(ctx)
		}
		return nil
	case OpRemove:
		_, err := t.f.RemoveMany(ctx, activities)
		return err
	default:
		return fmt.Errorf("fanout: unknown operation %q", op)
	}
}
