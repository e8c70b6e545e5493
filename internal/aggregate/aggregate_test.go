package aggregate

import (
	"fmt"
	"testing"
	"time"

	"github.com/imcyee/superstream-sub000/internal/activity"
)

func mkActivity(t *testing.T, actor string, verb int, object string, at time.Time) *activity.Activity {
	t.Helper()
	a, err := activity.New(actor, verb, object, activity.WithTime(at))
	if err != nil {
		t.Fatalf("new activity: %v", err)
	}
	return a
}

func TestGroupByVerbAndDay(t *testing.T) {
	day1 := time.Date(2024, 4, 1, 10, 0, 0, 0, time.UTC)
	day2 := day1.Add(24 * time.Hour)

	acts := []*activity.Activity{
		mkActivity(t, "user:1", activity.VerbLove.ID, "post:1", day1),
		mkActivity(t, "user:2", activity.VerbLove.ID, "post:2", day1.Add(time.Hour)),
		mkActivity(t, "user:3", activity.VerbLove.ID, "post:3", day2),
		mkActivity(t, "user:4", activity.VerbComment.ID, "post:1", day1),
	}

	buckets, err := New(nil, nil).GroupActivities(acts)
	if err != nil {
		t.Fatalf("group: %v", err)
	}
	if len(buckets) != 3 {
		t.Fatalf("bucket count = %d, want 3", len(buckets))
	}
	same := GroupByVerbAndDay(acts[0])
	if len(buckets[same]) != 2 {
		t.Fatalf("same verb+day bucket size = %d, want 2", len(buckets[same]))
	}
}

func TestAggregateRanksByUpdatedAt(t *testing.T) {
	base := time.Date(2024, 4, 1, 0, 0, 0, 0, time.UTC)
	acts := []*activity.Activity{
		mkActivity(t, "user:1", activity.VerbLove.ID, "post:1", base),
		mkActivity(t, "user:2", activity.VerbComment.ID, "post:1", base.Add(time.Hour)),
	}

	groups, err := New(nil, nil).Aggregate(acts)
	if err != nil {
		t.Fatalf("aggregate: %v", err)
	}
	if len(groups) != 2 {
		t.Fatalf("group count = %d, want 2", len(groups))
	}
	if !groups[0].UpdatedAt.After(groups[1].UpdatedAt) {
		t.Fatalf("most recently updated group must rank first")
	}
}

func TestMergeSplitsNewAndChanged(t *testing.T) {
	agg := New(nil, nil)
	base := time.Date(2024, 4, 1, 0, 0, 0, 0, time.UTC)

	existing, err := agg.Aggregate([]*activity.Activity{
		mkActivity(t, "user:1", activity.VerbLove.ID, "post:1", base),
	})
	if err != nil {
		t.Fatalf("seed: %v", err)
	}

	res, err := agg.Merge(existing, []*activity.Activity{
		mkActivity(t, "user:2", activity.VerbLove.ID, "post:2", base.Add(time.Minute)),
		mkActivity(t, "user:3", activity.VerbComment.ID, "post:1", base.Add(time.Minute)),
	})
	if err != nil {
		t.Fatalf("merge: %v", err)
	}
	if len(res.New) != 1 || len(res.Changed) != 1 || len(res.Deleted) != 0 {
		t.Fatalf("new=%d changed=%d deleted=%d", len(res.New), len(res.Changed), len(res.Deleted))
	}

	pair := res.Changed[0]
	if pair.Previous.ActivityCount() != 1 || pair.Updated.ActivityCount() != 2 {
		t.Fatalf("changed pair counts: prev=%d updated=%d", pair.Previous.ActivityCount(), pair.Updated.ActivityCount())
	}
	if pair.Previous == pair.Updated {
		t.Fatalf("merge must clone, not mutate the existing group")
	}
	if !pair.Updated.UpdatedAt.After(pair.Previous.UpdatedAt) {
		t.Fatalf("updated group must move forward in time")
	}
	if pair.Updated.SerializationID() == pair.Previous.SerializationID() {
		t.Fatalf("updated group must get a new timeline position")
	}
}

func TestMergeSameBatchYieldsEmptyDiff(t *testing.T) {
	agg := New(nil, nil)
	base := time.Date(2024, 4, 1, 0, 0, 0, 0, time.UTC)
	acts := []*activity.Activity{
		mkActivity(t, "user:1", activity.VerbLove.ID, "post:1", base),
		mkActivity(t, "user:2", activity.VerbLove.ID, "post:2", base.Add(time.Minute)),
		mkActivity(t, "user:3", activity.VerbComment.ID, "post:1", base),
	}

	existing, err := agg.Aggregate(acts)
	if err != nil {
		t.Fatalf("seed: %v", err)
	}
	res, err := agg.Merge(existing, acts)
	if err != nil {
		t.Fatalf("merge: %v", err)
	}
	if len(res.New) != 0 || len(res.Changed) != 0 || len(res.Deleted) != 0 {
		t.Fatalf("re-merging the same batch must be a no-op: new=%d changed=%d deleted=%d",
			len(res.New), len(res.Changed), len(res.Deleted))
	}
}

func TestMergePartialOverlapOnlyDiffsGrowth(t *testing.T) {
	agg := New(nil, nil)
	base := time.Date(2024, 4, 1, 0, 0, 0, 0, time.UTC)
	old := mkActivity(t, "user:1", activity.VerbLove.ID, "post:1", base)
	fresh := mkActivity(t, "user:2", activity.VerbLove.ID, "post:2", base.Add(time.Minute))

	existing, err := agg.Aggregate([]*activity.Activity{old})
	if err != nil {
		t.Fatalf("seed: %v", err)
	}
	res, err := agg.Merge(existing, []*activity.Activity{old, fresh})
	if err != nil {
		t.Fatalf("merge: %v", err)
	}
	if len(res.Changed) != 1 {
		t.Fatalf("changed count = %d, want 1", len(res.Changed))
	}
	updated := res.Changed[0].Updated
	if updated.ActivityCount() != 2 || !updated.ContainsID(fresh.ID) {
		t.Fatalf("overlap merge must add only the new member: %+v", updated)
	}
}

func TestRemoveManyShrinksAndDeletes(t *testing.T) {
	agg := New(nil, nil)
	base := time.Date(2024, 4, 1, 0, 0, 0, 0, time.UTC)

	lone := mkActivity(t, "user:1", activity.VerbComment.ID, "post:1", base)
	pairA := mkActivity(t, "user:2", activity.VerbLove.ID, "post:1", base)
	pairB := mkActivity(t, "user:3", activity.VerbLove.ID, "post:2", base.Add(time.Minute))

	existing, err := agg.Aggregate([]*activity.Activity{lone, pairA, pairB})
	if err != nil {
		t.Fatalf("seed: %v", err)
	}

	res, err := agg.RemoveMany(existing, []*activity.Activity{lone, pairA})
	if err != nil {
		t.Fatalf("remove: %v", err)
	}
	if len(res.Deleted) != 1 || res.Deleted[0].Group != GroupByVerbAndDay(lone) {
		t.Fatalf("single-member group must be deleted: %+v", res.Deleted)
	}
	if len(res.Changed) != 1 {
		t.Fatalf("changed count = %d, want 1", len(res.Changed))
	}
	updated := res.Changed[0].Updated
	if updated.ActivityCount() != 1 || updated.ContainsID(pairA.ID) {
		t.Fatalf("removed member still present")
	}
}

func TestCustomGroupStrategy(t *testing.T) {
	base := time.Date(2024, 4, 1, 0, 0, 0, 0, time.UTC)
	var acts []*activity.Activity
	for i := 0; i < 4; i++ {
		acts = append(acts, mkActivity(t, fmt.Sprintf("user:%d", i), activity.VerbLove.ID, "post:1", base.Add(time.Duration(i)*time.Second)))
	}
	acts = append(acts, mkActivity(t, "user:9", activity.VerbLove.ID, "post:2", base))

	groups, err := New(GroupByVerbObjectAndDay, nil).Aggregate(acts)
	if err != nil {
		t.Fatalf("aggregate: %v", err)
	}
	if len(groups) != 2 {
		t.Fatalf("group count = %d, want 2", len(groups))
	}
	for _, g := range groups {
		if g.Group == GroupByVerbObjectAndDay(acts[0]) && g.ActorCount() != 4 {
			t.Fatalf("actor count = %d, want 4", g.ActorCount())
		}
	}
}
