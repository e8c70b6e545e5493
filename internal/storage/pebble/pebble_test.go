package pebblestore

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/imcyee/superstream-sub000/internal/activity"
	"github.com/imcyee/superstream-sub000/internal/serialize"
	"github.com/imcyee/superstream-sub000/internal/storage"
	"github.com/imcyee/superstream-sub000/pkg/id"
)

func openDB(t *testing.T) *DB {
	t.Helper()
	db, err := Open(Options{DataDir: t.TempDir(), Fsync: FsyncModeAlways})
	if err != nil {
		t.Fatalf("open pebble: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func mkActivity(t *testing.T, n int, at time.Time) *activity.Activity {
	t.Helper()
	a, err := activity.New(fmt.Sprintf("user:%d", n), activity.VerbAdd.ID, fmt.Sprintf("post:%d", n), activity.WithTime(at))
	if err != nil {
		t.Fatalf("new activity: %v", err)
	}
	return a
}

func TestActivityStoreRoundTrip(t *testing.T) {
	ctx := context.Background()
	s := NewActivityStore(openDB(t))
	a := mkActivity(t, 1, time.Now())

	created, err := s.AddMany(ctx, []*activity.Activity{a})
	if err != nil || created != 1 {
		t.Fatalf("add created=%d err=%v", created, err)
	}
	created, err = s.AddMany(ctx, []*activity.Activity{a})
	if err != nil || created != 0 {
		t.Fatalf("overwrite created=%d err=%v", created, err)
	}

	got, err := s.GetMany(ctx, []id.ID{a.ID, id.Compose(1, 1)})
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if len(got) != 1 || got[0].ID != a.ID || !got[0].SameContent(a) {
		t.Fatalf("unexpected result: %+v", got)
	}

	if err := s.RemoveMany(ctx, []id.ID{a.ID}); err != nil {
		t.Fatalf("remove: %v", err)
	}
	got, _ = s.GetMany(ctx, []id.ID{a.ID})
	if len(got) != 0 {
		t.Fatalf("expected removed")
	}
}

func TestTimelineOrderedSlice(t *testing.T) {
	ctx := context.Background()
	ts := NewTimelineStore(openDB(t), serialize.Reference{})
	base := time.Date(2024, 4, 1, 0, 0, 0, 0, time.UTC)

	var acts []*activity.Activity
	for i := 0; i < 5; i++ {
		a := mkActivity(t, i, base.Add(time.Duration(i)*time.Minute))
		acts = append(acts, a)
		if err := ts.AddMany(ctx, "feed:u1", []activity.Entry{a}); err != nil {
			t.Fatalf("add: %v", err)
		}
	}

	page, err := ts.GetSlice(ctx, "feed:u1", 1, 3, nil, storage.OrderDesc)
	if err != nil {
		t.Fatalf("slice: %v", err)
	}
	if len(page) != 2 {
		t.Fatalf("page size = %d, want 2", len(page))
	}
	if page[0].SerializationID() != acts[3].ID || page[1].SerializationID() != acts[2].ID {
		t.Fatalf("descending page out of order")
	}

	if _, err := ts.GetSlice(ctx, "feed:u1", -1, 3, nil, storage.OrderDesc); !errors.Is(err, storage.ErrIndexRange) {
		t.Fatalf("negative bounds should fail, got %v", err)
	}
}

func TestTimelineIdempotentOverwrite(t *testing.T) {
	ctx := context.Background()
	ts := NewTimelineStore(openDB(t), serialize.Reference{})
	a := mkActivity(t, 1, time.Now())
	for i := 0; i < 3; i++ {
		if err := ts.AddMany(ctx, "k", []activity.Entry{a}); err != nil {
			t.Fatalf("add: %v", err)
		}
	}
	n, err := ts.Count(ctx, "k")
	if err != nil || n != 1 {
		t.Fatalf("count=%d err=%v, want 1", n, err)
	}
}

func TestTimelineTrimKeepsNewest(t *testing.T) {
	ctx := context.Background()
	ts := NewTimelineStore(openDB(t), serialize.Reference{})
	base := time.Date(2024, 4, 1, 0, 0, 0, 0, time.UTC)
	var acts []*activity.Activity
	for i := 0; i < 6; i++ {
		a := mkActivity(t, i, base.Add(time.Duration(i)*time.Second))
		acts = append(acts, a)
		if err := ts.AddMany(ctx, "k", []activity.Entry{a}); err != nil {
			t.Fatalf("add: %v", err)
		}
	}
	if err := ts.Trim(ctx, "k", 2); err != nil {
		t.Fatalf("trim: %v", err)
	}
	n, _ := ts.Count(ctx, "k")
	if n != 2 {
		t.Fatalf("count after trim = %d", n)
	}
	idx, _ := ts.IndexOf(ctx, "k", acts[5].ID)
	if idx != 0 {
		t.Fatalf("newest must survive trim at index 0, got %d", idx)
	}
	idx, _ = ts.IndexOf(ctx, "k", acts[0].ID)
	if idx != -1 {
		t.Fatalf("oldest must be evicted")
	}
}

func TestTimelineDelete(t *testing.T) {
	ctx := context.Background()
	ts := NewTimelineStore(openDB(t), serialize.Reference{})
	a := mkActivity(t, 1, time.Now())
	_ = ts.AddMany(ctx, "k", []activity.Entry{a})
	if err := ts.Delete(ctx, "k"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	n, _ := ts.Count(ctx, "k")
	if n != 0 {
		t.Fatalf("count after delete = %d", n)
	}
}

func TestListsStoreBoundedAtomicOps(t *testing.T) {
	ctx := context.Background()
	ls := NewListsStore(openDB(t), 3)
	ids := make([]id.ID, 5)
	for i := range ids {
		ids[i] = id.Compose(int64(1000+i), uint64(i))
	}

	if err := ls.Add(ctx, "feed:u1", map[string][]id.ID{
		"unseen": ids[:5],
		"unread": ids[:1],
	}); err != nil {
		t.Fatalf("add: %v", err)
	}
	n, _ := ls.Count(ctx, "feed:u1", "unseen")
	if n != 3 {
		t.Fatalf("unseen capped at 3, got %d", n)
	}
	got, err := ls.Get(ctx, "feed:u1", "unseen", "unread")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got["unseen"][0] != ids[2] {
		t.Fatalf("oldest-first eviction violated")
	}
	if len(got["unread"]) != 1 {
		t.Fatalf("unread length = %d", len(got["unread"]))
	}

	if err := ls.Remove(ctx, "feed:u1", map[string][]id.ID{"unseen": {ids[2]}}); err != nil {
		t.Fatalf("remove: %v", err)
	}
	n, _ = ls.Count(ctx, "feed:u1", "unseen")
	if n != 2 {
		t.Fatalf("count after remove = %d", n)
	}

	if err := ls.Flush(ctx, "feed:u1", "unseen", "unread"); err != nil {
		t.Fatalf("flush: %v", err)
	}
	n, _ = ls.Count(ctx, "feed:u1", "unseen")
	if n != 0 {
		t.Fatalf("flush should empty the list")
	}
}
