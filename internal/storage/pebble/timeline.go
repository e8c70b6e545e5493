package pebblestore

import (
	"context"

	"github.com/imcyee/superstream-sub000/internal/activity"
	"github.com/imcyee/superstream-sub000/internal/serialize"
	"github.com/imcyee/superstream-sub000/internal/storage"
	"github.com/imcyee/superstream-sub000/pkg/id"
)

// TimelineStore is the Pebble-backed ordered timeline. Entry keys embed
// the big-endian serialization id, so a prefix scan yields time order and
// a reverse scan yields the default newest-first ordering.
type TimelineStore struct {
	db         *DB
	serializer serialize.Serializer
}

// NewTimelineStore returns a timeline store encoding entries with the
// given serializer.
func NewTimelineStore(db *DB, serializer serialize.Serializer) *TimelineStore {
	return &TimelineStore{db: db, serializer: serializer}
}

// AddMany writes entries in one atomic batch. Re-adding an id overwrites
// the existing key, never duplicates.
func (s *TimelineStore) AddMany(ctx context.Context, key string, entries []activity.Entry) error {
	if len(entries) == 0 {
		return nil
	}
	b := s.db.NewBatch()
	defer b.Close()
	for _, e := range entries {
		payload, err := s.serializer.Dumps(e)
		if err != nil {
			return err
		}
		if err := b.Set(keyTimelineEntry(key, e.SerializationID()), payload, nil); err != nil {
			return err
		}
	}
	return s.db.CommitBatch(ctx, b)
}

// RemoveMany deletes entries in one atomic batch. Absent ids are a no-op.
func (s *TimelineStore) RemoveMany(ctx context.Context, key string, ids []id.ID) error {
	if len(ids) == 0 {
		return nil
	}
	b := s.db.NewBatch()
	defer b.Close()
	for _, aid := range ids {
		if err := b.Delete(keyTimelineEntry(key, aid), nil); err != nil {
			return err
		}
	}
	return s.db.CommitBatch(ctx, b)
}

// GetSlice returns the half-open [start, stop) page in the requested
// ordering, applying the filter before pagination.
func (s *TimelineStore) GetSlice(_ context.Context, key string, start, stop int, filter storage.Filter, ordering storage.Ordering) ([]activity.Entry, error) {
	empty, err := storage.CheckSliceBounds(start, stop)
	if err != nil {
		return nil, err
	}
	if empty {
		return nil, nil
	}

	iter, err := s.db.NewPrefixIter(keyTimelinePrefix(key))
	if err != nil {
		return nil, err
	}
	defer iter.Close()

	out := make([]activity.Entry, 0, stop-start)
	matched := 0
	visit := func() (done bool, err error) {
		aid, ok := idFromEntryKey(iter.Key())
		if !ok {
			return false, nil
		}
		entry, err := s.serializer.Loads(aid, append([]byte(nil), iter.Value()...))
		if err != nil {
			return false, err
		}
		if filter != nil && !filter(entry) {
			return false, nil
		}
		if matched >= start {
			out = append(out, entry)
		}
		matched++
		return matched >= stop, nil
	}

	if ordering == storage.OrderAsc {
		for ok := iter.First(); ok; ok = iter.Next() {
			done, err := visit()
			if err != nil {
				return nil, err
			}
			if done {
				break
			}
		}
	} else {
		for ok := iter.Last(); ok; ok = iter.Prev() {
			done, err := visit()
			if err != nil {
				return nil, err
			}
			if done {
				break
			}
		}
	}
	return out, nil
}

// IndexOf returns the position of an id in the default descending
// ordering, or -1 when absent.
func (s *TimelineStore) IndexOf(_ context.Context, key string, aid id.ID) (int, error) {
	iter, err := s.db.NewPrefixIter(keyTimelinePrefix(key))
	if err != nil {
		return -1, err
	}
	defer iter.Close()

	pos := 0
	for ok := iter.Last(); ok; ok = iter.Prev() {
		got, valid := idFromEntryKey(iter.Key())
		if !valid {
			continue
		}
		if got == aid {
			return pos, nil
		}
		pos++
	}
	return -1, nil
}

// Trim keeps the newest maxLength entries, deleting the oldest beyond it
// in one atomic batch.
func (s *TimelineStore) Trim(ctx context.Context, key string, maxLength int) error {
	if maxLength < 0 {
		return storage.ErrIndexRange
	}
	total, err := s.Count(ctx, key)
	if err != nil {
		return err
	}
	excess := total - maxLength
	if excess <= 0 {
		return nil
	}

	iter, err := s.db.NewPrefixIter(keyTimelinePrefix(key))
	if err != nil {
		return err
	}
	defer iter.Close()

	b := s.db.NewBatch()
	defer b.Close()
	deleted := 0
	for ok := iter.First(); ok && deleted < excess; ok = iter.Next() {
		if err := b.Delete(iter.Key(), nil); err != nil {
			return err
		}
		deleted++
	}
	return s.db.CommitBatch(ctx, b)
}

// Count returns the number of entries under the key.
func (s *TimelineStore) Count(_ context.Context, key string) (int, error) {
	iter, err := s.db.NewPrefixIter(keyTimelinePrefix(key))
	if err != nil {
		return 0, err
	}
	defer iter.Close()
	n := 0
	for ok := iter.First(); ok; ok = iter.Next() {
		n++
	}
	return n, nil
}

// Delete removes the whole timeline.
func (s *TimelineStore) Delete(ctx context.Context, key string) error {
	iter, err := s.db.NewPrefixIter(keyTimelinePrefix(key))
	if err != nil {
		return err
	}
	defer iter.Close()

	b := s.db.NewBatch()
	defer b.Close()
	for ok := iter.First(); ok; ok = iter.Next() {
		if err := b.Delete(iter.Key(), nil); err != nil {
			return err
		}
	}
	return s.db.CommitBatch(ctx, b)
}
