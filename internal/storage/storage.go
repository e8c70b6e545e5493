// Package storage defines the contracts separating the global activity
// store from per-feed ordered timelines and notification marker lists.
// Concrete backends live in the memory, pebble, and redis subpackages.
package storage

import (
	"context"
	"errors"

	"github.com/imcyee/superstream-sub000/internal/activity"
	"github.com/imcyee/superstream-sub000/pkg/id"
)

var (
	// ErrUnsupportedOperation reports a contract hook a backend does not
	// implement.
	ErrUnsupportedOperation = errors.New("storage: operation not supported by backend")
	// ErrIndexRange reports negative slice bounds.
	ErrIndexRange = errors.New("storage: negative slice bounds")
)

// Ordering selects the scan direction of a timeline slice. Timelines order
// entries by the time value embedded in the serialization id; newest first
// is the default.
type Ordering int

const (
	// OrderDesc returns the most recent entries first.
	OrderDesc Ordering = iota
	// OrderAsc returns the oldest entries first.
	OrderAsc
)

// Filter decides whether a decoded timeline entry belongs to a slice.
// A nil Filter keeps everything.
type Filter func(activity.Entry) bool

// ActivityStorage is the global, idempotent id-to-payload map. It has no
// ordering semantics; timelines reference it for hydration.
type ActivityStorage interface {
	// AddMany upserts activities and returns how many ids were newly
	// created (the rest were overwrites).
	AddMany(ctx context.Context, activities []*activity.Activity) (created int, err error)
	// GetMany returns hydrated activities; missing ids are silently
	// omitted.
	GetMany(ctx context.Context, ids []id.ID) ([]*activity.Activity, error)
	// RemoveMany deletes payloads. Unknown ids are a no-op.
	RemoveMany(ctx context.Context, ids []id.ID) error
}

// TimelineStorage is an ordered, per-key structure. AddMany is idempotent:
// re-adding an existing id overwrites, never duplicates.
type TimelineStorage interface {
	AddMany(ctx context.Context, key string, entries []activity.Entry) error
	RemoveMany(ctx context.Context, key string, ids []id.ID) error
	// GetSlice returns the half-open [start, stop) page in the requested
	// ordering. Negative bounds are ErrIndexRange.
	GetSlice(ctx context.Context, key string, start, stop int, filter Filter, ordering Ordering) ([]activity.Entry, error)
	// IndexOf returns the position of an id in the default (descending)
	// ordering, or -1 when absent.
	IndexOf(ctx context.Context, key string, aid id.ID) (int, error)
	// Trim keeps the newest maxLength entries and evicts the rest.
	Trim(ctx context.Context, key string, maxLength int) error
	Count(ctx context.Context, key string) (int, error)
	Delete(ctx context.Context, key string) error
}

// ListsStorage tracks named id sets (e.g. "unseen", "unread") under one
// base key. Add and Remove apply to multiple named lists atomically per
// call; each list is bounded with oldest-first eviction.
type ListsStorage interface {
	Add(ctx context.Context, key string, additions map[string][]id.ID) error
	Remove(ctx context.Context, key string, removals map[string][]id.ID) error
	Count(ctx context.Context, key, list string) (int, error)
	Get(ctx context.Context, key string, lists ...string) (map[string][]id.ID, error)
	Flush(ctx context.Context, key string, lists ...string) error
}

// CheckSliceBounds validates GetSlice arguments the same way for every
// backend: negative indices are rejected, an inverted range is rejected,
// and start == stop short-circuits to an empty page.
func CheckSliceBounds(start, stop int) (empty bool, err error) {
	if start < 0 || stop < 0 {
		return false, ErrIndexRange
	}
	if stop < start {
		return false, ErrIndexRange
	}
	return start == stop, nil
}
