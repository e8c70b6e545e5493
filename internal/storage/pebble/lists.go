package pebblestore

import (
	"context"
	"errors"

	"github.com/imcyee/superstream-sub000/pkg/id"
)

// ListsStore is the Pebble-backed marker-list storage. Each named list is
// one key holding concatenated 16-byte ids in insertion order, so a single
// batch commit keeps multi-list updates atomic per call.
type ListsStore struct {
	db        *DB
	maxLength int
}

// NewListsStore returns a store bounding every list to maxLength ids with
// oldest-first eviction.
func NewListsStore(db *DB, maxLength int) *ListsStore {
	if maxLength <= 0 {
		maxLength = 1000
	}
	return &ListsStore{db: db, maxLength: maxLength}
}

func (s *ListsStore) load(key, list string) ([]id.ID, error) {
	raw, err := s.db.Get(keyList(key, list))
	if errors.Is(err, ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	ids := make([]id.ID, 0, len(raw)/16)
	for off := 0; off+16 <= len(raw); off += 16 {
		aid, err := id.FromBytes(raw[off : off+16])
		if err != nil {
			return nil, err
		}
		ids = append(ids, aid)
	}
	return ids, nil
}

func encodeIDs(ids []id.ID) []byte {
	out := make([]byte, 0, len(ids)*16)
	for _, aid := range ids {
		out = append(out, aid[:]...)
	}
	return out
}

// Add implements the lists contract: append to every named list, dedupe,
// and evict oldest-first beyond the bound, committed as one batch.
func (s *ListsStore) Add(ctx context.Context, key string, additions map[string][]id.ID) error {
	if len(additions) == 0 {
		return nil
	}
	b := s.db.NewBatch()
	defer b.Close()
	for list, ids := range additions {
		current, err := s.load(key, list)
		if err != nil {
			return err
		}
		for _, aid := range ids {
			if containsID(current, aid) {
				continue
			}
			current = append(current, aid)
		}
		if over := len(current) - s.maxLength; over > 0 {
			current = current[over:]
		}
		if err := b.Set(keyList(key, list), encodeIDs(current), nil); err != nil {
			return err
		}
	}
	return s.db.CommitBatch(ctx, b)
}

// Remove deletes ids from every named list in one batch.
func (s *ListsStore) Remove(ctx context.Context, key string, removals map[string][]id.ID) error {
	if len(removals) == 0 {
		return nil
	}
	b := s.db.NewBatch()
	defer b.Close()
	for list, ids := range removals {
		current, err := s.load(key, list)
		if err != nil {
			return err
		}
		kept := current[:0]
		for _, existing := range current {
			if !containsID(ids, existing) {
				kept = append(kept, existing)
			}
		}
		if err := b.Set(keyList(key, list), encodeIDs(kept), nil); err != nil {
			return err
		}
	}
	return s.db.CommitBatch(ctx, b)
}

// Count returns the length of one named list.
func (s *ListsStore) Count(_ context.Context, key, list string) (int, error) {
	ids, err := s.load(key, list)
	if err != nil {
		return 0, err
	}
	return len(ids), nil
}

// Get returns the requested lists.
func (s *ListsStore) Get(_ context.Context, key string, lists ...string) (map[string][]id.ID, error) {
	out := make(map[string][]id.ID, len(lists))
	for _, list := range lists {
		ids, err := s.load(key, list)
		if err != nil {
			return nil, err
		}
		out[list] = ids
	}
	return out, nil
}

// Flush deletes the named lists in one batch.
func (s *ListsStore) Flush(ctx context.Context, key string, lists ...string) error {
	b := s.db.NewBatch()
	defer b.Close()
	for _, list := range lists {
		if err := b.Delete(keyList(key, list), nil); err != nil {
			return err
		}
	}
	return s.db.CommitBatch(ctx, b)
}

func containsID(ids []id.ID, aid id.ID) bool {
	for _, existing := range ids {
		if existing == aid {
			return true
		}
	}
	return false
}
