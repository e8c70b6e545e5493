package pebblestore

import (
	"github.com/imcyee/superstream-sub000/pkg/id"
)

// Keyspace helpers for Pebble keys.
//
// Layout (byte-wise, lexicographically sortable):
// - act/{id16}                     global activity payload
// - tl/{feedKey}/e/{id16}          timeline entry payload
// - lists/{feedKey}/{list}         marker list (concatenated 16-byte ids)
//
// Timeline entry keys embed the big-endian serialization id, so iteration
// order is time order.
var (
	sep         = byte('/')
	actPrefix   = []byte("act/")
	tlPrefix    = []byte("tl/")
	entrySeg    = []byte("/e/")
	listsPrefix = []byte("lists/")
)

// keyActivity builds the global activity payload key.
func keyActivity(aid id.ID) []byte {
	k := make([]byte, 0, len(actPrefix)+16)
	k = append(k, actPrefix...)
	k = append(k, aid[:]...)
	return k
}

// keyTimelineEntry builds the entry key for a feed key and id.
func keyTimelineEntry(feedKey string, aid id.ID) []byte {
	k := keyTimelinePrefix(feedKey)
	k = append(k, aid[:]...)
	return k
}

// keyTimelinePrefix returns the range prefix covering all entries of a feed.
func keyTimelinePrefix(feedKey string) []byte {
	k := make([]byte, 0, len(tlPrefix)+len(feedKey)+len(entrySeg)+16)
	k = append(k, tlPrefix...)
	k = append(k, feedKey...)
	k = append(k, entrySeg...)
	return k
}

// keyList builds the marker-list key for a feed key and list name.
func keyList(feedKey, list string) []byte {
	k := make([]byte, 0, len(listsPrefix)+len(feedKey)+1+len(list))
	k = append(k, listsPrefix...)
	k = append(k, feedKey...)
	k = append(k, sep)
	k = append(k, list...)
	return k
}

// idFromEntryKey extracts the trailing 16-byte id from a timeline entry key.
func idFromEntryKey(key []byte) (id.ID, bool) {
	if len(key) < 16 {
		return id.Zero, false
	}
	aid, err := id.FromBytes(key[len(key)-16:])
	return aid, err == nil
}
