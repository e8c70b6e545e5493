package pebblestore

import (
	"context"
	"errors"

	"github.com/imcyee/superstream-sub000/internal/activity"
	"github.com/imcyee/superstream-sub000/internal/serialize"
	"github.com/imcyee/superstream-sub000/pkg/id"
)

// ActivityStore is the Pebble-backed global activity store: an idempotent
// id-to-payload map with no ordering semantics.
type ActivityStore struct {
	db         *DB
	serializer serialize.Activity
}

// NewActivityStore returns a store over the given DB.
func NewActivityStore(db *DB) *ActivityStore {
	return &ActivityStore{db: db}
}

// AddMany upserts activities in one atomic batch and reports how many ids
// were newly created.
func (s *ActivityStore) AddMany(ctx context.Context, activities []*activity.Activity) (int, error) {
	if len(activities) == 0 {
		return 0, nil
	}
	b := s.db.NewBatch()
	defer b.Close()

	created := 0
	for _, a := range activities {
		key := keyActivity(a.ID)
		if _, err := s.db.Get(key); errors.Is(err, ErrNotFound) {
			created++
		} else if err != nil {
			return 0, err
		}
		payload, err := s.serializer.Dumps(a)
		if err != nil {
			return 0, err
		}
		if err := b.Set(key, payload, nil); err != nil {
			return 0, err
		}
	}
	if err := s.db.CommitBatch(ctx, b); err != nil {
		return 0, err
	}
	return created, nil
}

// GetMany returns hydrated activities; missing ids are silently omitted.
func (s *ActivityStore) GetMany(_ context.Context, ids []id.ID) ([]*activity.Activity, error) {
	out := make([]*activity.Activity, 0, len(ids))
	for _, aid := range ids {
		payload, err := s.db.Get(keyActivity(aid))
		if errors.Is(err, ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}
		entry, err := s.serializer.Loads(aid, payload)
		if err != nil {
			return nil, err
		}
		out = append(out, entry.(*activity.Activity))
	}
	return out, nil
}

// RemoveMany deletes payloads in one atomic batch. Unknown ids are a no-op.
func (s *ActivityStore) RemoveMany(ctx context.Context, ids []id.ID) error {
	if len(ids) == 0 {
		return nil
	}
	b := s.db.NewBatch()
	defer b.Close()
	for _, aid := range ids {
		if err := b.Delete(keyActivity(aid), nil); err != nil {
			return err
		}
	}
	return s.db.CommitBatch(ctx, b)
}
