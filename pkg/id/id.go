// Package id provides time-ordered serialization identifiers.
//
// Timelines sort and trim purely by these ids, so the scheme guarantees
// that lexicographic byte order matches creation order.
package id

import (
	"encoding/binary"
	"errors"
	"math"
	"sync"
	"time"
)

// ID is a 128-bit, lexicographically sortable identifier encoded as 16 bytes
// big-endian: [8 bytes ms_timestamp][8 bytes sequence].
type ID [16]byte

// Zero is the empty ID.
var Zero ID

// ErrBadID reports a malformed textual id.
var ErrBadID = errors.New("id: malformed id")

// Bytes returns the raw 16-byte representation.
func (i ID) Bytes() []byte { b := make([]byte, 16); copy(b, i[:]); return b }

// String returns a 32-character hex string.
func (i ID) String() string { return fmtHex(i[:]) }

// Ms returns the embedded millisecond timestamp.
func (i ID) Ms() int64 { return int64(binary.BigEndian.Uint64(i[0:8])) }

// Time returns the embedded timestamp in UTC.
func (i ID) Time() time.Time { return time.UnixMilli(i.Ms()).UTC() }

// IsZero reports whether the id is unset.
func (i ID) IsZero() bool { return i == Zero }

// Compare returns -1, 0, 1 based on lexical comparison.
func (i ID) Compare(other ID) int {
	for idx := 0; idx < 16; idx++ {
		if i[idx] < other[idx] {
			return -1
		}
		if i[idx] > other[idx] {
			return 1
		}
	}
	return 0
}

// Compose builds an ID from a millisecond timestamp and a discriminator.
// Aggregated groups use this with a stable group hash so their id moves
// forward with every update while staying unique per group.
func Compose(ms int64, discriminator uint64) ID {
	return makeID(ms, discriminator)
}

// FromBytes decodes a raw 16-byte id.
func FromBytes(b []byte) (ID, error) {
	var id ID
	if len(b) != 16 {
		return id, ErrBadID
	}
	copy(id[:], b)
	return id, nil
}

// Parse decodes a 32-character hex string produced by String.
func Parse(s string) (ID, error) {
	var id ID
	if len(s) != 32 {
		return id, ErrBadID
	}
	for idx := 0; idx < 16; idx++ {
		hi, ok1 := unhex(s[idx*2])
		lo, ok2 := unhex(s[idx*2+1])
		if !ok1 || !ok2 {
			return ID{}, ErrBadID
		}
		id[idx] = hi<<4 | lo
	}
	return id, nil
}

// Generator produces monotonically increasing IDs per process.
type Generator struct {
	mu       sync.Mutex
	lastMs   int64
	sequence uint64
}

// NewGenerator creates a new Generator.
func NewGenerator() *Generator { return &Generator{} }

// NowMs returns current time in milliseconds since Unix epoch.
var NowMs = func() int64 { return time.Now().UnixMilli() }

// Next returns a new ID. If the clock goes backwards, it reuses lastMs and
// increments the sequence. If the sequence overflows within the same
// millisecond, it busy-waits for the next ms.
func (g *Generator) Next() ID {
	g.mu.Lock()
	defer g.mu.Unlock()

	ms := NowMs()
	if ms < g.lastMs {
		ms = g.lastMs
	}

	if ms == g.lastMs {
		if g.sequence == math.MaxUint64 {
			for {
				ms = NowMs()
				if ms > g.lastMs {
					break
				}
				time.Sleep(time.Millisecond / 8)
			}
			g.sequence = 0
		} else {
			g.sequence++
		}
	} else {
		g.sequence = 0
	}

	g.lastMs = ms
	return makeID(ms, g.sequence)
}

// At returns an ID carrying the given time with a fresh sequence value.
// Used when the producing call site supplies the activity time explicitly.
func (g *Generator) At(t time.Time) ID {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.sequence++
	return makeID(t.UnixMilli(), g.sequence)
}

func makeID(ms int64, seq uint64) ID {
	var id ID
	binary.BigEndian.PutUint64(id[0:8], uint64(ms))
	binary.BigEndian.PutUint64(id[8:16], seq)
	return id
}

// fmtHex is a small, allocation-lean hex encoder for fixed-size IDs.
func fmtHex(b []byte) string {
	const hexdigits = "0123456789abcdef"
	out := make([]byte, len(b)*2)
	for i, v := range b {
		out[i*2] = hexdigits[v>>4]
		out[i*2+1] = hexdigits[v&0x0f]
	}
	return string(out)
}

func unhex(c byte) (byte, bool) {
	switch {
	case c >= '0' && c <= '9':
		return c - '0', true
	case c >= 'a' && c <= 'f':
		return c - 'a' + 10, true
	case c >= 'A' && c <= 'F':
		return c - 'A' + 10, true
	}
	return 0, false
}
