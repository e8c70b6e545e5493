package activity

import (
	"hash/fnv"
	"sort"
	"time"

	"github.com/imcyee/superstream-sub000/pkg/id"
)

// MaxAggregatedActivitiesLength caps how many members a group retains in
// full. Appends beyond the cap evict the oldest member and count it in
// MinimizedActivities.
const MaxAggregatedActivitiesLength = 15

// AggregatedActivity is a named group of activities, created and mutated
// exclusively by the aggregator and the aggregated feed.
type AggregatedActivity struct {
	Group      string
	Activities []*Activity // ascending by serialization id
	CreatedAt  time.Time   // time of the first-ever appended member
	UpdatedAt  time.Time   // max member time
	SeenAt     time.Time   // zero when never seen
	ReadAt     time.Time   // zero when never read

	// MinimizedActivities counts members evicted to respect the cap.
	MinimizedActivities int

	// Dehydrated groups carry member ids only.
	Dehydrated  bool
	ActivityIDs []id.ID
}

// NewAggregated returns an empty group for the given key.
func NewAggregated(group string) *AggregatedActivity {
	return &AggregatedActivity{Group: group}
}

// SerializationID composes the group id from the update time and a stable
// group hash: a changed group gets a new timeline position while two
// groups updated in the same millisecond never collide.
func (g *AggregatedActivity) SerializationID() id.ID {
	h := fnv.New64a()
	_, _ = h.Write([]byte(g.Group))
	return id.Compose(g.UpdatedAt.UnixMilli(), h.Sum64())
}

// ActivityCount is the total member count including minimized members.
func (g *AggregatedActivity) ActivityCount() int {
	if g.Dehydrated {
		return g.MinimizedActivities + len(g.ActivityIDs)
	}
	return g.MinimizedActivities + len(g.Activities)
}

// ContainsID reports whether the given member id is live in the group.
func (g *AggregatedActivity) ContainsID(aid id.ID) bool {
	if g.Dehydrated {
		for _, existing := range g.ActivityIDs {
			if existing == aid {
				return true
			}
		}
		return false
	}
	for _, existing := range g.Activities {
		if existing.ID == aid {
			return true
		}
	}
	return false
}

// Contains reports whether an activity with the same content is a live
// member, compared by field rather than id.
func (g *AggregatedActivity) Contains(a *Activity) bool {
	for _, existing := range g.Activities {
		if existing.SameContent(a) {
			return true
		}
	}
	return false
}

// Append adds a member. Appending a duplicate serialization id is illegal.
// Beyond the cap the oldest member is evicted and counted as minimized.
func (g *AggregatedActivity) Append(a *Activity) error {
	if g.ContainsID(a.ID) {
		return ErrDuplicateMember
	}
	if g.CreatedAt.IsZero() {
		g.CreatedAt = a.Time
	}
	if a.Time.After(g.UpdatedAt) {
		g.UpdatedAt = a.Time
	}
	if g.Dehydrated {
		g.ActivityIDs = append(g.ActivityIDs, a.ID)
		sort.Slice(g.ActivityIDs, func(i, j int) bool {
			return g.ActivityIDs[i].Compare(g.ActivityIDs[j]) < 0
		})
		if len(g.ActivityIDs) > MaxAggregatedActivitiesLength {
			g.ActivityIDs = g.ActivityIDs[1:]
			g.MinimizedActivities++
		}
		return nil
	}
	g.Activities = append(g.Activities, a)
	sort.Slice(g.Activities, func(i, j int) bool {
		return g.Activities[i].ID.Compare(g.Activities[j].ID) < 0
	})
	if len(g.Activities) > MaxAggregatedActivitiesLength {
		g.Activities = g.Activities[1:]
		g.MinimizedActivities++
	}
	return nil
}

// Remove deletes the member with the given id. Removing an absent member
// or the last live member is illegal; minimized members cannot keep a
// group alive on their own.
func (g *AggregatedActivity) Remove(aid id.ID) error {
	if !g.ContainsID(aid) {
		return ErrMemberNotFound
	}
	if g.ActivityCount()-g.MinimizedActivities <= 1 {
		return ErrEmptyAggregation
	}
	if g.Dehydrated {
		out := g.ActivityIDs[:0]
		for _, existing := range g.ActivityIDs {
			if existing != aid {
				out = append(out, existing)
			}
		}
		g.ActivityIDs = out
		return nil
	}
	out := g.Activities[:0]
	for _, existing := range g.Activities {
		if existing.ID != aid {
			out = append(out, existing)
		}
	}
	g.Activities = out
	return nil
}

// ActorIDs returns the distinct actor ids of live members, newest first.
func (g *AggregatedActivity) ActorIDs() []string {
	seen := make(map[string]struct{}, len(g.Activities))
	out := make([]string, 0, len(g.Activities))
	for i := len(g.Activities) - 1; i >= 0; i-- {
		actor := g.Activities[i].ActorID
		if _, dup := seen[actor]; dup {
			continue
		}
		seen[actor] = struct{}{}
		out = append(out, actor)
	}
	return out
}

// ActorCount returns the number of distinct live actors.
func (g *AggregatedActivity) ActorCount() int { return len(g.ActorIDs()) }

// LastActivity returns the newest live member, or nil for a dehydrated or
// empty group.
func (g *AggregatedActivity) LastActivity() *Activity {
	if len(g.Activities) == 0 {
		return nil
	}
	return g.Activities[len(g.Activities)-1]
}

// IsSeen reports whether the group was seen since its last update.
func (g *AggregatedActivity) IsSeen() bool {
	return !g.SeenAt.IsZero() && !g.SeenAt.Before(g.UpdatedAt)
}

// IsRead reports whether the group was read since its last update.
func (g *AggregatedActivity) IsRead() bool {
	return !g.ReadAt.IsZero() && !g.ReadAt.Before(g.UpdatedAt)
}

// Copy returns a deep copy; merge diffs clone before mutating so storage
// always sees distinct before/after values.
func (g *AggregatedActivity) Copy() *AggregatedActivity {
	dup := *g
	dup.Activities = make([]*Activity, len(g.Activities))
	for i, a := range g.Activities {
		dup.Activities[i] = a.Copy()
	}
	dup.ActivityIDs = append([]id.ID(nil), g.ActivityIDs...)
	return &dup
}

// Dehydrate returns a copy holding member ids only.
func (g *AggregatedActivity) Dehydrate() *AggregatedActivity {
	dup := g.Copy()
	if dup.Dehydrated {
		return dup
	}
	dup.ActivityIDs = make([]id.ID, len(dup.Activities))
	for i, a := range dup.Activities {
		dup.ActivityIDs[i] = a.ID
	}
	dup.Activities = nil
	dup.Dehydrated = true
	return dup
}
