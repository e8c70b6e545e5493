// Package redisstore provides Redis-backed implementations of the storage
// contracts: sorted-set timelines scored by the id-embedded time, plain
// keys for the global activity store, and bounded lists for notification
// markers.
package redisstore

import (
	"context"

	"github.com/redis/go-redis/v9"

	"github.com/imcyee/superstream-sub000/internal/activity"
	"github.com/imcyee/superstream-sub000/internal/serialize"
	"github.com/imcyee/superstream-sub000/internal/storage"
	"github.com/imcyee/superstream-sub000/pkg/id"
)

// ActivityStore is the Redis-backed global activity store. Payloads live
// under one key per id so MGET hydrates a batch in a single round trip.
type ActivityStore struct {
	client     *redis.Client
	serializer serialize.Activity
}

// NewActivityStore returns a store over the given client.
func NewActivityStore(client *redis.Client) *ActivityStore {
	return &ActivityStore{client: client}
}

func activityKey(aid id.ID) string { return "act:" + aid.String() }

// AddMany upserts activities through one pipeline and reports how many
// ids were newly created.
func (s *ActivityStore) AddMany(ctx context.Context, activities []*activity.Activity) (int, error) {
	if len(activities) == 0 {
		return 0, nil
	}
	pipe := s.client.Pipeline()
	exists := make([]*redis.IntCmd, len(activities))
	for i, a := range activities {
		exists[i] = pipe.Exists(ctx, activityKey(a.ID))
	}
	for _, a := range activities {
		payload, err := s.serializer.Dumps(a)
		if err != nil {
			return 0, err
		}
		pipe.Set(ctx, activityKey(a.ID), payload, 0)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return 0, err
	}
	created := 0
	for _, cmd := range exists {
		if cmd.Val() == 0 {
			created++
		}
	}
	return created, nil
}

// GetMany hydrates a batch with one MGET; missing ids are omitted.
func (s *ActivityStore) GetMany(ctx context.Context, ids []id.ID) ([]*activity.Activity, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	keys := make([]string, len(ids))
	for i, aid := range ids {
		keys[i] = activityKey(aid)
	}
	values, err := s.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, err
	}
	out := make([]*activity.Activity, 0, len(ids))
	for i, v := range values {
		raw, ok := v.(string)
		if !ok {
			continue // missing id
		}
		entry, err := s.serializer.Loads(ids[i], []byte(raw))
		if err != nil {
			return nil, err
		}
		out = append(out, entry.(*activity.Activity))
	}
	return out, nil
}

// RemoveMany deletes payloads; unknown ids are a no-op.
func (s *ActivityStore) RemoveMany(ctx context.Context, ids []id.ID) error {
	if len(ids) == 0 {
		return nil
	}
	keys := make([]string, len(ids))
	for i, aid := range ids {
		keys[i] = activityKey(aid)
	}
	return s.client.Del(ctx, keys...).Err()
}

// TimelineStore is the Redis-backed ordered timeline: a ZSET of id hex
// members scored by the id-embedded millisecond timestamp, plus a
// companion hash holding the serialized payload per member. Same-score
// members fall back to member lex order, which equals id order.
type TimelineStore struct {
	client     *redis.Client
	serializer serialize.Serializer
}

// NewTimelineStore returns a timeline store encoding entries with the
// given serializer.
func NewTimelineStore(client *redis.Client, serializer serialize.Serializer) *TimelineStore {
	return &TimelineStore{client: client, serializer: serializer}
}

func timelineKey(key string) string { return "tl:" + key }
func payloadKey(key string) string  { return "tlp:" + key }

// AddMany writes entries through one pipeline; ZADD on an existing member
// updates in place, so re-adding is an overwrite.
func (s *TimelineStore) AddMany(ctx context.Context, key string, entries []activity.Entry) error {
	if len(entries) == 0 {
		return nil
	}
	pipe := s.client.Pipeline()
	for _, e := range entries {
		payload, err := s.serializer.Dumps(e)
		if err != nil {
			return err
		}
		aid := e.SerializationID()
		pipe.ZAdd(ctx, timelineKey(key), redis.Z{Score: float64(aid.Ms()), Member: aid.String()})
		pipe.HSet(ctx, payloadKey(key), aid.String(), payload)
	}
	_, err := pipe.Exec(ctx)
	return err
}

// RemoveMany deletes members and payloads in one pipeline.
func (s *TimelineStore) RemoveMany(ctx context.Context, key string, ids []id.ID) error {
	if len(ids) == 0 {
		return nil
	}
	members := make([]interface{}, len(ids))
	fields := make([]string, len(ids))
	for i, aid := range ids {
		members[i] = aid.String()
		fields[i] = aid.String()
	}
	pipe := s.client.Pipeline()
	pipe.ZRem(ctx, timelineKey(key), members...)
	pipe.HDel(ctx, payloadKey(key), fields...)
	_, err := pipe.Exec(ctx)
	return err
}

func (s *TimelineStore) loadMembers(ctx context.Context, key string, members []string) ([]activity.Entry, error) {
	if len(members) == 0 {
		return nil, nil
	}
	values, err := s.client.HMGet(ctx, payloadKey(key), members...).Result()
	if err != nil {
		return nil, err
	}
	out := make([]activity.Entry, 0, len(members))
	for i, v := range values {
		raw, ok := v.(string)
		if !ok {
			continue // payload lost; treat like a missing id
		}
		aid, err := id.Parse(members[i])
		if err != nil {
			return nil, err
		}
		entry, err := s.serializer.Loads(aid, []byte(raw))
		if err != nil {
			return nil, err
		}
		out = append(out, entry)
	}
	return out, nil
}

// GetSlice returns the half-open [start, stop) page. Without a filter the
// page maps directly onto a ZREVRANGE/ZRANGE; with one, members are
// scanned in order and filtered before pagination.
func (s *TimelineStore) GetSlice(ctx context.Context, key string, start, stop int, filter storage.Filter, ordering storage.Ordering) ([]activity.Entry, error) {
	empty, err := storage.CheckSliceBounds(start, stop)
	if err != nil {
		return nil, err
	}
	if empty {
		return nil, nil
	}

	rangeFor := func(lo, hi int64) ([]string, error) {
		if ordering == storage.OrderAsc {
			return s.client.ZRange(ctx, timelineKey(key), lo, hi).Result()
		}
		return s.client.ZRevRange(ctx, timelineKey(key), lo, hi).Result()
	}

	if filter == nil {
		members, err := rangeFor(int64(start), int64(stop-1))
		if err != nil {
			return nil, err
		}
		return s.loadMembers(ctx, key, members)
	}

	members, err := rangeFor(0, -1)
	if err != nil {
		return nil, err
	}
	entries, err := s.loadMembers(ctx, key, members)
	if err != nil {
		return nil, err
	}
	out := make([]activity.Entry, 0, stop-start)
	matched := 0
	for _, entry := range entries {
		if !filter(entry) {
			continue
		}
		if matched >= start {
			out = append(out, entry)
		}
		matched++
		if matched >= stop {
			break
		}
	}
	return out, nil
}

// IndexOf returns the descending-rank position of an id, or -1 when absent.
func (s *TimelineStore) IndexOf(ctx context.Context, key string, aid id.ID) (int, error) {
	rank, err := s.client.ZRevRank(ctx, timelineKey(key), aid.String()).Result()
	if err == redis.Nil {
		return -1, nil
	}
	if err != nil {
		return -1, err
	}
	return int(rank), nil
}

// Trim keeps the newest maxLength members and drops their payloads.
func (s *TimelineStore) Trim(ctx context.Context, key string, maxLength int) error {
	if maxLength < 0 {
		return storage.ErrIndexRange
	}
	total, err := s.client.ZCard(ctx, timelineKey(key)).Result()
	if err != nil {
		return err
	}
	excess := int(total) - maxLength
	if excess <= 0 {
		return nil
	}
	// oldest members sit at ascending ranks [0, excess)
	evicted, err := s.client.ZRange(ctx, timelineKey(key), 0, int64(excess-1)).Result()
	if err != nil {
		return err
	}
	if len(evicted) == 0 {
		return nil
	}
	members := make([]interface{}, len(evicted))
	for i, m := range evicted {
		members[i] = m
	}
	pipe := s.client.Pipeline()
	pipe.ZRem(ctx, timelineKey(key), members...)
	pipe.HDel(ctx, payloadKey(key), evicted...)
	_, err = pipe.Exec(ctx)
	return err
}

// Count returns the timeline cardinality.
func (s *TimelineStore) Count(ctx context.Context, key string) (int, error) {
	n, err := s.client.ZCard(ctx, timelineKey(key)).Result()
	return int(n), err
}

// Delete removes the whole timeline and its payloads.
func (s *TimelineStore) Delete(ctx context.Context, key string) error {
	return s.client.Del(ctx, timelineKey(key), payloadKey(key)).Err()
}

// ListsStore is the Redis-backed marker-list storage using one list key
// per (feed key, list name), bounded with LTRIM.
type ListsStore struct {
	client    *redis.Client
	maxLength int
}

// NewListsStore returns a store bounding every list to maxLength ids with
// oldest-first eviction.
func NewListsStore(client *redis.Client, maxLength int) *ListsStore {
	if maxLength <= 0 {
		maxLength = 1000
	}
	return &ListsStore{client: client, maxLength: maxLength}
}

func listKey(key, list string) string { return "lists:" + key + ":" + list }

// Add appends ids to every named list in one pipeline, deduplicating via
// LREM before RPUSH and trimming to the bound.
func (s *ListsStore) Add(ctx context.Context, key string, additions map[string][]id.ID) error {
	if len(additions) == 0 {
		return nil
	}
	pipe := s.client.Pipeline()
	for list, ids := range additions {
		k := listKey(key, list)
		for _, aid := range ids {
			pipe.LRem(ctx, k, 0, aid.String())
			pipe.RPush(ctx, k, aid.String())
		}
		pipe.LTrim(ctx, k, int64(-s.maxLength), -1)
	}
	_, err := pipe.Exec(ctx)
	return err
}

// Remove deletes ids from every named list in one pipeline.
func (s *ListsStore) Remove(ctx context.Context, key string, removals map[string][]id.ID) error {
	if len(removals) == 0 {
		return nil
	}
	pipe := s.client.Pipeline()
	for list, ids := range removals {
		for _, aid := range ids {
			pipe.LRem(ctx, listKey(key, list), 0, aid.String())
		}
	}
	_, err := pipe.Exec(ctx)
	return err
}

// Count returns the length of one named list.
func (s *ListsStore) Count(ctx context.Context, key, list string) (int, error) {
	n, err := s.client.LLen(ctx, listKey(key, list)).Result()
	return int(n), err
}

// Get returns the requested lists oldest-first.
func (s *ListsStore) Get(ctx context.Context, key string, lists ...string) (map[string][]id.ID, error) {
	out := make(map[string][]id.ID, len(lists))
	for _, list := range lists {
		members, err := s.client.LRange(ctx, listKey(key, list), 0, -1).Result()
		if err != nil {
			return nil, err
		}
		ids := make([]id.ID, 0, len(members))
		for _, m := range members {
			aid, err := id.Parse(m)
			if err != nil {
				return nil, err
			}
			ids = append(ids, aid)
		}
		out[list] = ids
	}
	return out, nil
}

// Flush deletes the named lists.
func (s *ListsStore) Flush(ctx context.Context, key string, lists ...string) error {
	keys := make([]string, len(lists))
	for i, list := range lists {
		keys[i] = listKey(key, list)
	}
	return s.client.Del(ctx, keys...).Err()
}
