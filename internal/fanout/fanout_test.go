package fanout

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/imcyee/superstream-sub000/internal/activity"
	"github.com/imcyee/superstream-sub000/internal/feed"
	"github.com/imcyee/superstream-sub000/internal/jobqueue"
	"github.com/imcyee/superstream-sub000/internal/serialize"
	"github.com/imcyee/superstream-sub000/internal/storage/memory"
	pebblestore "github.com/imcyee/superstream-sub000/internal/storage/pebble"
)

// captureQueue records published jobs for synchronous test execution.
type captureQueue struct {
	jobs []*Job
}

func (q *captureQueue) Publish(_ context.Context, job *Job) error {
	q.jobs = append(q.jobs, job)
	return nil
}

type fixture struct {
	manager  *Manager
	registry *Registry
	executor *Executor
	queue    *captureQueue
	userFeed func(userID string) *feed.Feed
}

func newFixture(t *testing.T, followers map[Priority][]string) *fixture {
	t.Helper()
	acts := memory.NewActivityStore()
	timelines := memory.NewTimelineStore(serialize.Activity{})
	userFeed := func(userID string) *feed.Feed {
		return feed.New("user:"+userID, acts, timelines, feed.WithTrimChance(0))
	}
	queue := &captureQueue{}
	m, err := NewManager(Config{
		Identity:   "user-feed",
		Activities: acts,
		UserFeed:   userFeed,
		Followers: func(_ context.Context, _ string) (map[Priority][]string, error) {
			return followers, nil
		},
		Queue: queue,
	})
	if err != nil {
		t.Fatalf("new manager: %v", err)
	}
	registry := NewRegistry()
	if err := registry.Register(m); err != nil {
		t.Fatalf("register: %v", err)
	}
	return &fixture{
		manager:  m,
		registry: registry,
		executor: NewExecutor(registry, nil),
		queue:    queue,
		userFeed: userFeed,
	}
}

// runJobs executes captured jobs the way a worker would and resets the
// capture buffer.
func (f *fixture) runJobs(t *testing.T) {
	t.Helper()
	ctx := context.Background()
	for _, job := range f.queue.jobs {
		payload, err := job.Encode()
		if err != nil {
			t.Fatalf("encode job: %v", err)
		}
		if err := f.executor.Execute(ctx, payload); err != nil {
			t.Fatalf("execute job: %v", err)
		}
	}
	f.queue.jobs = nil
}

func mkActivity(t *testing.T, actor string, object string, at time.Time) *activity.Activity {
	t.Helper()
	a, err := activity.New(actor, activity.VerbAdd.ID, object, activity.WithTime(at))
	if err != nil {
		t.Fatalf("new activity: %v", err)
	}
	return a
}

func TestJobCodecRoundTrip(t *testing.T) {
	a := mkActivity(t, "user:1", "post:1", time.Now())
	job, err := NewJob("user-feed", []string{"f1", "f2"}, OpAdd, []*activity.Activity{a}, true, PriorityHigh)
	if err != nil {
		t.Fatalf("new job: %v", err)
	}
	payload, err := job.Encode()
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	got, err := DecodeJob(payload)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got.FeedManagerIdentity != "user-feed" || got.Operation != OpAdd || got.Priority != PriorityHigh || !got.Trim {
		t.Fatalf("job fields lost: %+v", got)
	}
	acts, err := got.DecodeActivities()
	if err != nil {
		t.Fatalf("decode activities: %v", err)
	}
	if len(acts) != 1 || acts[0].ID != a.ID || !acts[0].SameContent(a) {
		t.Fatalf("activity lost in transit: %+v", acts)
	}
}

func TestDecodeJobRejectsBadPayloads(t *testing.T) {
	cases := []string{
		`not json`,
		`{"feedManagerIdentity":"m","operation":"replace","priority":"HIGH"}`,
		`{"feedManagerIdentity":"m","operation":"add","priority":"URGENT"}`,
		`{"operation":"add","priority":"HIGH"}`,
	}
	for _, raw := range cases {
		if _, err := DecodeJob([]byte(raw)); err == nil {
			t.Fatalf("payload %q must fail decoding", raw)
		}
	}
}

func TestRegistryUnknownIdentity(t *testing.T) {
	r := NewRegistry()
	if _, err := r.Get("nope"); err == nil {
		t.Fatalf("unknown identity must fail")
	}
}

func TestFanOutAndBack(t *testing.T) {
	ctx := context.Background()
	fx := newFixture(t, map[Priority][]string{
		PriorityHigh: {"f1"},
		PriorityLow:  {"f2"},
	})
	a := mkActivity(t, "user:u", "post:1", time.Now())

	if err := fx.manager.AddUserActivity(ctx, "u", a); err != nil {
		t.Fatalf("add: %v", err)
	}
	if len(fx.queue.jobs) != 2 {
		t.Fatalf("job count = %d, want one per non-empty priority", len(fx.queue.jobs))
	}
	if fx.queue.jobs[0].Priority != PriorityHigh || fx.queue.jobs[1].Priority != PriorityLow {
		t.Fatalf("priority routing broken: %+v", fx.queue.jobs)
	}
	fx.runJobs(t)

	for _, follower := range []string{"f1", "f2"} {
		page, err := fx.userFeed(follower).GetItem(ctx, 0, 5)
		if err != nil {
			t.Fatalf("get %s: %v", follower, err)
		}
		if len(page) != 1 || page[0].SerializationID() != a.ID {
			t.Fatalf("follower %s feed = %+v", follower, page)
		}
	}

	if err := fx.manager.RemoveUserActivity(ctx, "u", a); err != nil {
		t.Fatalf("remove: %v", err)
	}
	for _, job := range fx.queue.jobs {
		if job.Trim {
			t.Fatalf("removals never trim")
		}
	}
	fx.runJobs(t)

	for _, follower := range []string{"f1", "f2"} {
		n, _ := fx.userFeed(follower).Count(ctx)
		if n != 0 {
			t.Fatalf("follower %s feed not emptied", follower)
		}
	}
}

func TestEmptyPriorityEnqueuesNothing(t *testing.T) {
	ctx := context.Background()
	fx := newFixture(t, map[Priority][]string{PriorityHigh: {"f1"}})
	if err := fx.manager.AddUserActivity(ctx, "u", mkActivity(t, "user:u", "post:1", time.Now())); err != nil {
		t.Fatalf("add: %v", err)
	}
	if len(fx.queue.jobs) != 1 {
		t.Fatalf("job count = %d, want 1", len(fx.queue.jobs))
	}
}

func TestFollowThenUnfollow(t *testing.T) {
	ctx := context.Background()
	fx := newFixture(t, map[Priority][]string{})
	base := time.Date(2024, 4, 1, 0, 0, 0, 0, time.UTC)

	// y's history plus one unrelated entry authored by someone else but
	// targeting y, which unfollow must also purge
	for i := 0; i < 3; i++ {
		if err := fx.manager.AddUserActivity(ctx, "y", mkActivity(t, "user:y", fmt.Sprintf("post:%d", i), base.Add(time.Duration(i)*time.Minute))); err != nil {
			t.Fatalf("seed: %v", err)
		}
	}
	other, err := activity.New("user:z", activity.VerbComment.ID, "comment:1",
		activity.WithTarget("user:y"), activity.WithTime(base.Add(time.Hour)))
	if err != nil {
		t.Fatalf("new activity: %v", err)
	}
	if err := fx.manager.AddUserActivity(ctx, "y", other); err != nil {
		t.Fatalf("seed target: %v", err)
	}
	keeper := mkActivity(t, "user:k", "post:keep", base.Add(2*time.Hour))
	if err := fx.manager.AddUserActivity(ctx, "x", keeper); err != nil {
		t.Fatalf("seed keeper: %v", err)
	}

	if err := fx.manager.FollowUser(ctx, "x", "y"); err != nil {
		t.Fatalf("follow: %v", err)
	}
	n, _ := fx.userFeed("x").Count(ctx)
	if n != 5 {
		t.Fatalf("count after follow = %d, want 5", n)
	}

	if err := fx.manager.UnfollowUser(ctx, "x", "user:y"); err != nil {
		t.Fatalf("unfollow: %v", err)
	}
	page, err := fx.userFeed("x").GetItem(ctx, 0, 10)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if len(page) != 1 || page[0].SerializationID() != keeper.ID {
		t.Fatalf("unfollow must leave unrelated entries only, got %+v", page)
	}
}

func TestBatchImportChunksAndFansOut(t *testing.T) {
	ctx := context.Background()
	fx := newFixture(t, map[Priority][]string{PriorityHigh: {"f1"}})
	base := time.Date(2024, 4, 1, 0, 0, 0, 0, time.UTC)

	var acts []*activity.Activity
	for i := 0; i < BatchImportChunkSize+1; i++ {
		acts = append(acts, mkActivity(t, "user:u", fmt.Sprintf("post:%d", i), base.Add(time.Duration(i)*time.Second)))
	}
	if err := fx.manager.BatchImport(ctx, "u", acts, 0, true); err != nil {
		t.Fatalf("import: %v", err)
	}
	if len(fx.queue.jobs) != 2 {
		t.Fatalf("job count = %d, want one per chunk", len(fx.queue.jobs))
	}
	if len(fx.queue.jobs[0].Activities) != BatchImportChunkSize || len(fx.queue.jobs[1].Activities) != 1 {
		t.Fatalf("chunk sizes = %d, %d", len(fx.queue.jobs[0].Activities), len(fx.queue.jobs[1].Activities))
	}
	fx.runJobs(t)

	n, _ := fx.userFeed("f1").Count(ctx)
	if n != BatchImportChunkSize+1 {
		t.Fatalf("follower count = %d", n)
	}
}

func TestBatchImportCustomChunkSize(t *testing.T) {
	ctx := context.Background()
	fx := newFixture(t, map[Priority][]string{PriorityHigh: {"f1"}})
	base := time.Date(2024, 4, 1, 0, 0, 0, 0, time.UTC)

	var acts []*activity.Activity
	for i := 0; i < 5; i++ {
		acts = append(acts, mkActivity(t, "user:u", fmt.Sprintf("post:%d", i), base.Add(time.Duration(i)*time.Second)))
	}
	if err := fx.manager.BatchImport(ctx, "u", acts, 2, true); err != nil {
		t.Fatalf("import: %v", err)
	}
	if len(fx.queue.jobs) != 3 {
		t.Fatalf("job count = %d, want 3 chunks of 2", len(fx.queue.jobs))
	}
	if len(fx.queue.jobs[2].Activities) != 1 {
		t.Fatalf("tail chunk size = %d, want 1", len(fx.queue.jobs[2].Activities))
	}
}

func TestLocalQueueEndToEnd(t *testing.T) {
	ctx := context.Background()
	db, err := pebblestore.Open(pebblestore.Options{DataDir: t.TempDir(), Fsync: pebblestore.FsyncModeAlways})
	if err != nil {
		t.Fatalf("open pebble: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	q, err := jobqueue.Open(db, "fanout", nil)
	if err != nil {
		t.Fatalf("open queue: %v", err)
	}
	local := NewLocalQueue(q, nil)

	acts := memory.NewActivityStore()
	timelines := memory.NewTimelineStore(serialize.Activity{})
	userFeed := func(userID string) *feed.Feed {
		return feed.New("user:"+userID, acts, timelines, feed.WithTrimChance(0))
	}
	m, err := NewManager(Config{
		Identity:   "user-feed",
		Activities: acts,
		UserFeed:   userFeed,
		Followers: func(_ context.Context, _ string) (map[Priority][]string, error) {
			return map[Priority][]string{PriorityHigh: {"f1"}}, nil
		},
		Queue: local,
	})
	if err != nil {
		t.Fatalf("new manager: %v", err)
	}
	registry := NewRegistry()
	if err := registry.Register(m); err != nil {
		t.Fatalf("register: %v", err)
	}

	a := mkActivity(t, "user:u", "post:1", time.Now())
	if err := m.AddUserActivity(ctx, "u", a); err != nil {
		t.Fatalf("add: %v", err)
	}
	if err := local.Drain(ctx, NewExecutor(registry, nil)); err != nil {
		t.Fatalf("drain: %v", err)
	}
	page, err := userFeed("f1").GetItem(ctx, 0, 5)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if len(page) != 1 || page[0].SerializationID() != a.ID {
		t.Fatalf("follower feed = %+v", page)
	}
}
