// Package memory provides process-local backends for all three storage
// contracts. Useful for tests and single-process deployments.
package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/imcyee/superstream-sub000/internal/activity"
	"github.com/imcyee/superstream-sub000/internal/serialize"
	"github.com/imcyee/superstream-sub000/internal/storage"
	"github.com/imcyee/superstream-sub000/pkg/id"
)

// ActivityStore is an in-memory ActivityStorage.
type ActivityStore struct {
	mu   sync.RWMutex
	byID map[id.ID]*activity.Activity
}

// NewActivityStore returns an empty store.
func NewActivityStore() *ActivityStore {
	return &ActivityStore{byID: make(map[id.ID]*activity.Activity)}
}

// AddMany implements storage.ActivityStorage.
func (s *ActivityStore) AddMany(_ context.Context, activities []*activity.Activity) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	created := 0
	for _, a := range activities {
		if _, exists := s.byID[a.ID]; !exists {
			created++
		}
		s.byID[a.ID] = a.Copy()
	}
	return created, nil
}

// GetMany implements storage.ActivityStorage; missing ids are omitted.
func (s *ActivityStore) GetMany(_ context.Context, ids []id.ID) ([]*activity.Activity, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*activity.Activity, 0, len(ids))
	for _, aid := range ids {
		if a, ok := s.byID[aid]; ok {
			out = append(out, a.Copy())
		}
	}
	return out, nil
}

// RemoveMany implements storage.ActivityStorage.
func (s *ActivityStore) RemoveMany(_ context.Context, ids []id.ID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, aid := range ids {
		delete(s.byID, aid)
	}
	return nil
}

type timelineRecord struct {
	id      id.ID
	payload []byte
}

// TimelineStore is an in-memory TimelineStorage. Entries round-trip
// through the configured serializer so the in-memory backend exercises the
// same wire formats as the durable ones.
type TimelineStore struct {
	serializer serialize.Serializer

	mu    sync.RWMutex
	byKey map[string][]timelineRecord // ascending by id
}

// NewTimelineStore returns an empty timeline store using the given
// serializer.
func NewTimelineStore(serializer serialize.Serializer) *TimelineStore {
	return &TimelineStore{serializer: serializer, byKey: make(map[string][]timelineRecord)}
}

// AddMany implements storage.TimelineStorage. Re-adding an id overwrites.
func (s *TimelineStore) AddMany(_ context.Context, key string, entries []activity.Entry) error {
	encoded := make([]timelineRecord, 0, len(entries))
	for _, e := range entries {
		payload, err := s.serializer.Dumps(e)
		if err != nil {
			return err
		}
		encoded = append(encoded, timelineRecord{id: e.SerializationID(), payload: payload})
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	records := s.byKey[key]
	for _, rec := range encoded {
		pos := sort.Search(len(records), func(i int) bool {
			return records[i].id.Compare(rec.id) >= 0
		})
		if pos < len(records) && records[pos].id == rec.id {
			records[pos] = rec
			continue
		}
		records = append(records, timelineRecord{})
		copy(records[pos+1:], records[pos:])
		records[pos] = rec
	}
	s.byKey[key] = records
	return nil
}

// RemoveMany implements storage.TimelineStorage. Absent ids are a no-op.
func (s *TimelineStore) RemoveMany(_ context.Context, key string, ids []id.ID) error {
	drop := make(map[id.ID]struct{}, len(ids))
	for _, aid := range ids {
		drop[aid] = struct{}{}
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	records := s.byKey[key]
	kept := records[:0]
	for _, rec := range records {
		if _, gone := drop[rec.id]; !gone {
			kept = append(kept, rec)
		}
	}
	if len(kept) == 0 {
		delete(s.byKey, key)
	} else {
		s.byKey[key] = kept
	}
	return nil
}

// GetSlice implements storage.TimelineStorage.
func (s *TimelineStore) GetSlice(_ context.Context, key string, start, stop int, filter storage.Filter, ordering storage.Ordering) ([]activity.Entry, error) {
	empty, err := storage.CheckSliceBounds(start, stop)
	if err != nil {
		return nil, err
	}
	if empty {
		return nil, nil
	}

	s.mu.RLock()
	records := append([]timelineRecord(nil), s.byKey[key]...)
	s.mu.RUnlock()

	out := make([]activity.Entry, 0, stop-start)
	matched := 0
	visit := func(rec timelineRecord) (done bool, err error) {
		entry, err := s.serializer.Loads(rec.id, rec.payload)
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
		for _, rec := range records {
			done, err := visit(rec)
			if err != nil {
				return nil, err
			}
			if done {
				break
			}
		}
	} else {
		for i := len(records) - 1; i >= 0; i-- {
			done, err := visit(records[i])
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

// IndexOf implements storage.TimelineStorage; -1 when absent.
func (s *TimelineStore) IndexOf(_ context.Context, key string, aid id.ID) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	records := s.byKey[key]
	for i := len(records) - 1; i >= 0; i-- {
		if records[i].id == aid {
			return len(records) - 1 - i, nil
		}
	}
	return -1, nil
}

// Trim implements storage.TimelineStorage: keep the newest maxLength.
func (s *TimelineStore) Trim(_ context.Context, key string, maxLength int) error {
	if maxLength < 0 {
		return storage.ErrIndexRange
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	records := s.byKey[key]
	if len(records) <= maxLength {
		return nil
	}
	s.byKey[key] = append([]timelineRecord(nil), records[len(records)-maxLength:]...)
	return nil
}

// Count implements storage.TimelineStorage.
func (s *TimelineStore) Count(_ context.Context, key string) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.byKey[key]), nil
}

// Delete implements storage.TimelineStorage.
func (s *TimelineStore) Delete(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.byKey, key)
	return nil
}

// ListsStore is an in-memory ListsStorage bounded per list.
type ListsStore struct {
	maxLength int

	mu    sync.Mutex
	byKey map[string]map[string][]id.ID
}

// NewListsStore returns a store bounding every list to maxLength ids with
// oldest-first eviction.
func NewListsStore(maxLength int) *ListsStore {
	if maxLength <= 0 {
		maxLength = 1000
	}
	return &ListsStore{maxLength: maxLength, byKey: make(map[string]map[string][]id.ID)}
}

// Add implements storage.ListsStorage.
func (s *ListsStore) Add(_ context.Context, key string, additions map[string][]id.ID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	lists := s.byKey[key]
	if lists == nil {
		lists = make(map[string][]id.ID)
		s.byKey[key] = lists
	}
	for name, ids := range additions {
		current := lists[name]
		for _, aid := range ids {
			if containsID(current, aid) {
				continue
			}
			current = append(current, aid)
		}
		if over := len(current) - s.maxLength; over > 0 {
			current = append([]id.ID(nil), current[over:]...)
		}
		lists[name] = current
	}
	return nil
}

// Remove implements storage.ListsStorage.
func (s *ListsStore) Remove(_ context.Context, key string, removals map[string][]id.ID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	lists := s.byKey[key]
	for name, ids := range removals {
		current := lists[name]
		kept := current[:0]
		for _, existing := range current {
			if !containsID(ids, existing) {
				kept = append(kept, existing)
			}
		}
		lists[name] = kept
	}
	return nil
}

// Count implements storage.ListsStorage.
func (s *ListsStore) Count(_ context.Context, key, list string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.byKey[key][list]), nil
}

// Get implements storage.ListsStorage.
func (s *ListsStore) Get(_ context.Context, key string, lists ...string) (map[string][]id.ID, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string][]id.ID, len(lists))
	for _, name := range lists {
		out[name] = append([]id.ID(nil), s.byKey[key][name]...)
	}
	return out, nil
}

// Flush implements storage.ListsStorage.
func (s *ListsStore) Flush(_ context.Context, key string, lists ...string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, name := range lists {
		delete(s.byKey[key], name)
	}
	return nil
}

func containsID(ids []id.ID, aid id.ID) bool {
	for _, existing := range ids {
		if existing == aid {
			return true
		}
	}
	return false
}
