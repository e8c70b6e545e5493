package feed

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/imcyee/superstream-sub000/internal/activity"
	"github.com/imcyee/superstream-sub000/internal/serialize"
	"github.com/imcyee/superstream-sub000/internal/storage"
	"github.com/imcyee/superstream-sub000/internal/storage/memory"
	"github.com/imcyee/superstream-sub000/pkg/id"
)

func mkActivity(t *testing.T, actor string, verb int, object string, at time.Time) *activity.Activity {
	t.Helper()
	a, err := activity.New(actor, verb, object, activity.WithTime(at))
	if err != nil {
		t.Fatalf("new activity: %v", err)
	}
	return a
}

func TestFeedAddAndGetItem(t *testing.T) {
	ctx := context.Background()
	acts := memory.NewActivityStore()
	f := New("feed:u1", acts, memory.NewTimelineStore(serialize.Activity{}))
	base := time.Date(2024, 4, 1, 0, 0, 0, 0, time.UTC)

	var added []*activity.Activity
	for i := 0; i < 3; i++ {
		a := mkActivity(t, "user:1", activity.VerbAdd.ID, fmt.Sprintf("post:%d", i), base.Add(time.Duration(i)*time.Minute))
		added = append(added, a)
		if err := f.Add(ctx, a); err != nil {
			t.Fatalf("add: %v", err)
		}
	}

	page, err := f.GetItem(ctx, 0, 10)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if len(page) != 3 {
		t.Fatalf("page size = %d, want 3", len(page))
	}
	if page[0].SerializationID() != added[2].ID {
		t.Fatalf("newest must come first")
	}

	if err := f.Remove(ctx, added[1].ID); err != nil {
		t.Fatalf("remove: %v", err)
	}
	n, _ := f.Count(ctx)
	if n != 2 {
		t.Fatalf("count after remove = %d", n)
	}
}

func TestFeedHydratesDehydratedEntries(t *testing.T) {
	ctx := context.Background()
	acts := memory.NewActivityStore()
	f := New("feed:u1", acts, memory.NewTimelineStore(serialize.Reference{}))
	base := time.Date(2024, 4, 1, 0, 0, 0, 0, time.UTC)

	a := mkActivity(t, "user:1", activity.VerbLove.ID, "post:1", base)
	orphan := mkActivity(t, "user:2", activity.VerbLove.ID, "post:2", base.Add(time.Minute))

	if _, err := InsertActivities(ctx, acts, []*activity.Activity{a}); err != nil {
		t.Fatalf("insert: %v", err)
	}
	if err := f.AddMany(ctx, []activity.Entry{a, orphan}); err != nil {
		t.Fatalf("add: %v", err)
	}

	page, err := f.GetItem(ctx, 0, 10)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	// orphan has no stored payload, so only a survives hydration
	if len(page) != 1 {
		t.Fatalf("page size = %d, want 1", len(page))
	}
	got, ok := page[0].(*activity.Activity)
	if !ok || got.ID != a.ID || !got.SameContent(a) {
		t.Fatalf("hydration returned %+v", page[0])
	}
}

func TestFeedProbabilisticTrim(t *testing.T) {
	ctx := context.Background()
	f := New("feed:u1", memory.NewActivityStore(), memory.NewTimelineStore(serialize.Activity{}),
		WithMaxLength(2), WithRand(func() float64 { return 0 }), WithTrimChance(1))
	base := time.Date(2024, 4, 1, 0, 0, 0, 0, time.UTC)

	for i := 0; i < 5; i++ {
		a := mkActivity(t, "user:1", activity.VerbAdd.ID, fmt.Sprintf("post:%d", i), base.Add(time.Duration(i)*time.Second))
		if err := f.Add(ctx, a); err != nil {
			t.Fatalf("add: %v", err)
		}
	}
	n, _ := f.Count(ctx)
	if n != 2 {
		t.Fatalf("count = %d, want trim bound 2", n)
	}
}

func TestFeedSliceWithCELFilter(t *testing.T) {
	ctx := context.Background()
	f := New("feed:u1", memory.NewActivityStore(), memory.NewTimelineStore(serialize.Activity{}))
	base := time.Date(2024, 4, 1, 0, 0, 0, 0, time.UTC)

	love := mkActivity(t, "user:1", activity.VerbLove.ID, "post:1", base)
	add := mkActivity(t, "user:1", activity.VerbAdd.ID, "post:2", base.Add(time.Second))
	if err := f.AddMany(ctx, []activity.Entry{love, add}); err != nil {
		t.Fatalf("add: %v", err)
	}

	filter, err := CompileFilter(fmt.Sprintf("verb == %d", activity.VerbLove.ID))
	if err != nil {
		t.Fatalf("compile: %v", err)
	}
	page, err := f.GetSlice(ctx, 0, 10, filter, storage.OrderDesc)
	if err != nil {
		t.Fatalf("slice: %v", err)
	}
	if len(page) != 1 || page[0].SerializationID() != love.ID {
		t.Fatalf("filtered page = %+v", page)
	}
}

func TestCompileFilterRejectsBadExpr(t *testing.T) {
	if _, err := CompileFilter("verb =="); err == nil {
		t.Fatalf("expected compile error")
	}
	filter, err := CompileFilter("  ")
	if err != nil || filter != nil {
		t.Fatalf("blank expression must compile to nil filter")
	}
}

func TestAggregatedFeedMergePath(t *testing.T) {
	ctx := context.Background()
	f := NewAggregated("agg:u1", memory.NewActivityStore(), memory.NewTimelineStore(serialize.Aggregated{}), nil)
	base := time.Date(2024, 4, 1, 0, 0, 0, 0, time.UTC)

	first := mkActivity(t, "user:1", activity.VerbLove.ID, "post:1", base)
	res, err := f.AddMany(ctx, []*activity.Activity{first})
	if err != nil {
		t.Fatalf("add: %v", err)
	}
	if len(res.New) != 1 {
		t.Fatalf("first add must create a group")
	}

	second := mkActivity(t, "user:2", activity.VerbLove.ID, "post:2", base.Add(time.Minute))
	res, err = f.AddMany(ctx, []*activity.Activity{second})
	if err != nil {
		t.Fatalf("merge: %v", err)
	}
	if len(res.Changed) != 1 || len(res.New) != 0 {
		t.Fatalf("same-group add must change, not create: %+v", res)
	}

	groups, err := f.GetGroups(ctx, 0, 10)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if len(groups) != 1 {
		t.Fatalf("group count = %d, want 1 (stale position must be gone)", len(groups))
	}
	if groups[0].ActivityCount() != 2 || groups[0].ActorCount() != 2 {
		t.Fatalf("group members=%d actors=%d", groups[0].ActivityCount(), groups[0].ActorCount())
	}

	ok, err := f.Contains(ctx, first)
	if err != nil || !ok {
		t.Fatalf("contains: ok=%v err=%v", ok, err)
	}
}

func TestAggregatedFeedAddManyIsIdempotent(t *testing.T) {
	ctx := context.Background()
	f := NewAggregated("agg:u1", memory.NewActivityStore(), memory.NewTimelineStore(serialize.Aggregated{}), nil)
	base := time.Date(2024, 4, 1, 0, 0, 0, 0, time.UTC)
	batch := []*activity.Activity{
		mkActivity(t, "user:1", activity.VerbLove.ID, "post:1", base),
		mkActivity(t, "user:2", activity.VerbLove.ID, "post:2", base.Add(time.Minute)),
	}

	if _, err := f.AddMany(ctx, batch); err != nil {
		t.Fatalf("add: %v", err)
	}
	// redelivered batches must not fail or move the group
	res, err := f.AddMany(ctx, batch)
	if err != nil {
		t.Fatalf("replayed add: %v", err)
	}
	if len(res.New) != 0 || len(res.Changed) != 0 {
		t.Fatalf("replayed add must be a no-op: %+v", res)
	}
	groups, err := f.GetGroups(ctx, 0, 10)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if len(groups) != 1 || groups[0].ActivityCount() != 2 {
		t.Fatalf("replay must leave one two-member group, got %d groups", len(groups))
	}
}

func TestAggregatedFeedRemoveDeletesEmptiedGroup(t *testing.T) {
	ctx := context.Background()
	f := NewAggregated("agg:u1", memory.NewActivityStore(), memory.NewTimelineStore(serialize.Aggregated{}), nil)
	a := mkActivity(t, "user:1", activity.VerbLove.ID, "post:1", time.Now())

	if _, err := f.AddMany(ctx, []*activity.Activity{a}); err != nil {
		t.Fatalf("add: %v", err)
	}
	res, err := f.RemoveMany(ctx, []*activity.Activity{a})
	if err != nil {
		t.Fatalf("remove: %v", err)
	}
	if len(res.Deleted) != 1 {
		t.Fatalf("expected group deletion")
	}
	n, _ := f.Count(ctx)
	if n != 0 {
		t.Fatalf("count = %d, want 0", n)
	}
}

func TestNotificationFeedMarkers(t *testing.T) {
	ctx := context.Background()
	f := NewNotification("not:u1", memory.NewActivityStore(), memory.NewTimelineStore(serialize.Aggregated{}), memory.NewListsStore(100), nil)
	base := time.Date(2024, 4, 1, 0, 0, 0, 0, time.UTC)

	if _, err := f.AddMany(ctx, []*activity.Activity{
		mkActivity(t, "user:1", activity.VerbLove.ID, "post:1", base),
		mkActivity(t, "user:2", activity.VerbComment.ID, "post:1", base.Add(time.Minute)),
	}); err != nil {
		t.Fatalf("add: %v", err)
	}

	unseen, _ := f.CountUnseen(ctx)
	unread, _ := f.CountUnread(ctx)
	if unseen != 2 || unread != 2 {
		t.Fatalf("unseen=%d unread=%d, want 2/2", unseen, unread)
	}

	groups, err := f.GetGroups(ctx, 0, 10)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	for _, g := range groups {
		if g.IsSeen() || g.IsRead() {
			t.Fatalf("fresh group must be unseen and unread")
		}
	}

	if err := f.MarkActivities(ctx, []id.ID{groups[0].SerializationID()}, true, false); err != nil {
		t.Fatalf("mark: %v", err)
	}
	unseen, _ = f.CountUnseen(ctx)
	unread, _ = f.CountUnread(ctx)
	if unseen != 1 || unread != 2 {
		t.Fatalf("after mark: unseen=%d unread=%d", unseen, unread)
	}

	if err := f.MarkAll(ctx, true, true); err != nil {
		t.Fatalf("mark all: %v", err)
	}
	unseen, _ = f.CountUnseen(ctx)
	unread, _ = f.CountUnread(ctx)
	if unseen != 0 || unread != 0 {
		t.Fatalf("after mark all: unseen=%d unread=%d", unseen, unread)
	}

	groups, _ = f.GetGroups(ctx, 0, 10)
	for _, g := range groups {
		if !g.IsSeen() || !g.IsRead() {
			t.Fatalf("marked group must read as seen and read")
		}
	}
}

func TestNotificationFeedUpdateResetsMarkers(t *testing.T) {
	ctx := context.Background()
	f := NewNotification("not:u1", memory.NewActivityStore(), memory.NewTimelineStore(serialize.Aggregated{}), memory.NewListsStore(100), nil)
	base := time.Date(2024, 4, 1, 0, 0, 0, 0, time.UTC)

	if _, err := f.AddMany(ctx, []*activity.Activity{
		mkActivity(t, "user:1", activity.VerbLove.ID, "post:1", base),
	}); err != nil {
		t.Fatalf("add: %v", err)
	}
	if err := f.MarkAll(ctx, true, true); err != nil {
		t.Fatalf("mark all: %v", err)
	}

	if _, err := f.AddMany(ctx, []*activity.Activity{
		mkActivity(t, "user:2", activity.VerbLove.ID, "post:2", base.Add(time.Minute)),
	}); err != nil {
		t.Fatalf("second add: %v", err)
	}
	unseen, _ := f.CountUnseen(ctx)
	if unseen != 1 {
		t.Fatalf("updated group must become unseen again, count=%d", unseen)
	}
}
