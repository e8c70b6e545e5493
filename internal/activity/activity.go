// Package activity defines the activity data model: atomic activities,
// dehydrated references, and aggregated activity groups.
package activity

import (
	"time"

	"github.com/imcyee/superstream-sub000/pkg/id"
)

// Entry is anything that can live on a timeline: a full activity, a
// dehydrated reference, or an aggregated group. Timelines order entries by
// the time value embedded in the serialization id.
type Entry interface {
	SerializationID() id.ID
}

// defaultGen assigns ids when the producing call site does not supply one.
var defaultGen = id.NewGenerator()

// Activity is an atomic event. Immutable once constructed; an update is a
// new Activity sharing the same serialization id, which storage treats as
// an overwrite.
type Activity struct {
	ID       id.ID
	ActorID  string
	VerbID   int
	ObjectID string
	TargetID string // optional
	Time     time.Time
	Context  map[string]interface{} // opaque, JSON-encodable
}

// Option customizes a new Activity.
type Option func(*Activity)

// WithTarget sets the optional target id.
func WithTarget(targetID string) Option {
	return func(a *Activity) { a.TargetID = targetID }
}

// WithTime sets the activity time. The generated id embeds this time so
// timeline order follows it.
func WithTime(t time.Time) Option {
	return func(a *Activity) { a.Time = t.UTC() }
}

// WithContext attaches opaque key/value context.
func WithContext(ctx map[string]interface{}) Option {
	return func(a *Activity) { a.Context = ctx }
}

// WithID supplies an externally generated serialization id. The id must be
// time-ordered; see pkg/id.
func WithID(aid id.ID) Option {
	return func(a *Activity) { a.ID = aid }
}

// New constructs a validated Activity. Verb, actor, and object are
// required; target is optional.
func New(actorID string, verbID int, objectID string, opts ...Option) (*Activity, error) {
	a := &Activity{ActorID: actorID, VerbID: verbID, ObjectID: objectID}
	for _, opt := range opts {
		opt(a)
	}
	if a.ID.IsZero() {
		if a.Time.IsZero() {
			a.ID = defaultGen.Next()
		} else {
			a.ID = defaultGen.At(a.Time)
		}
	}
	if a.Time.IsZero() {
		a.Time = a.ID.Time()
	}
	if err := a.Validate(); err != nil {
		return nil, err
	}
	return a, nil
}

// Validate checks the required-field invariant.
func (a *Activity) Validate() error {
	if a.ActorID == "" {
		return &ValidationError{Reason: "actor id is required"}
	}
	if a.VerbID == 0 {
		return &ValidationError{Reason: "verb id is required"}
	}
	if a.ObjectID == "" {
		return &ValidationError{Reason: "object id is required"}
	}
	return nil
}

// SerializationID implements Entry.
func (a *Activity) SerializationID() id.ID { return a.ID }

// SameContent reports whether two activities describe the same event by
// field comparison (verb, actor, object, target). Used where dehydrated
// storage does not retain ids comparable across feeds.
func (a *Activity) SameContent(other *Activity) bool {
	if other == nil {
		return false
	}
	return a.VerbID == other.VerbID &&
		a.ActorID == other.ActorID &&
		a.ObjectID == other.ObjectID &&
		a.TargetID == other.TargetID
}

// Copy returns a deep copy.
func (a *Activity) Copy() *Activity {
	dup := *a
	if a.Context != nil {
		dup.Context = make(map[string]interface{}, len(a.Context))
		for k, v := range a.Context {
			dup.Context[k] = v
		}
	}
	return &dup
}

// Dehydrate returns the reference form holding only the serialization id.
func (a *Activity) Dehydrate() *DehydratedActivity {
	return &DehydratedActivity{ID: a.ID}
}

// DehydratedActivity is a placeholder holding only the serialization id.
// It stays dehydrated until resolved against an activity store.
type DehydratedActivity struct {
	ID id.ID
}

// SerializationID implements Entry.
func (d *DehydratedActivity) SerializationID() id.ID { return d.ID }
