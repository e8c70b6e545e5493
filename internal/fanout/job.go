// Package fanout propagates one user's write into many follower feeds:
// the Manager produces fanout jobs, the Executor consumes them through a
// process-wide registry of manager configurations.
package fanout

import (
	"encoding/json"
	"fmt"

	"github.com/imcyee/superstream-sub000/internal/activity"
	"github.com/imcyee/superstream-sub000/internal/serialize"
)

// Priority is the fanout class a follower batch is routed under.
type Priority string

const (
	PriorityHigh Priority = "HIGH"
	PriorityLow  Priority = "LOW"
)

// Operation names what a job applies to each follower feed.
type Operation string

const (
	OpAdd    Operation = "add"
	OpRemove Operation = "remove"
)

// FanoutChunkSize bounds how many follower feeds one unit of work touches.
const FanoutChunkSize = 100

// Job is one enqueued fanout unit. Activities travel in their id-prefixed
// wire form so the ids survive the round trip.
type Job struct {
	FeedManagerIdentity string    `json:"feedManagerIdentity"`
	FollowerIDs         []string  `json:"followerIds"`
	Operation           Operation `json:"operation"`
	Activities          []string  `json:"activities"`
	Trim                bool      `json:"trim"`
	Priority            Priority  `json:"priority"`
}

// NewJob serializes activities into a job for the given manager identity.
func NewJob(identity string, followerIDs []string, op Operation, activities []*activity.Activity, trim bool, priority Priority) (*Job, error) {
	codec := serialize.Activity{}
	payloads := make([]string, len(activities))
	for i, a := range activities {
		raw, err := codec.DumpsWithID(a)
		if err != nil {
			return nil, err
		}
		payloads[i] = string(raw)
	}
	return &Job{
		FeedManagerIdentity: identity,
		FollowerIDs:         followerIDs,
		Operation:           op,
		Activities:          payloads,
		Trim:                trim,
		Priority:            priority,
	}, nil
}

// DecodeActivities rebuilds the job's activities from their wire form.
func (j *Job) DecodeActivities() ([]*activity.Activity, error) {
	codec := serialize.Activity{}
	out := make([]*activity.Activity, len(j.Activities))
	for i, raw := range j.Activities {
		a, err := codec.LoadsWithID([]byte(raw))
		if err != nil {
			return nil, err
		}
		out[i] = a
	}
	return out, nil
}

// Encode marshals the job for transport.
func (j *Job) Encode() ([]byte, error) {
	return json.Marshal(j)
}

// DecodeJob unmarshals and validates a transported job.
func DecodeJob(data []byte) (*Job, error) {
	var j Job
	if err := json.Unmarshal(data, &j); err != nil {
		return nil, fmt.Errorf("fanout: decode job: %w", err)
	}
	switch j.Operation {
	case OpAdd, OpRemove:
	default:
		return nil, fmt.Errorf("fanout: unknown job operation %q", j.Operation)
	}
	switch j.Priority {
	case PriorityHigh, PriorityLow:
	default:
		return nil, fmt.Errorf("fanout: unknown job priority %q", j.Priority)
	}
	if j.FeedManagerIdentity == "" {
		return nil, fmt.Errorf("fanout: job without manager identity")
	}
	return &j, nil
}
