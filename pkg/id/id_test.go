package id

import (
	"testing"
	"time"
)

func TestOrderingMonotonic(t *testing.T) {
	g := NewGenerator()
	NowMs = func() int64 { return 1000 }
	defer func() { NowMs = func() int64 { return time.Now().UnixMilli() } }()

	a := g.Next()
	b := g.Next()
	if a.Compare(b) >= 0 {
		t.Fatalf("expected a<b")
	}
}

func TestClockRegressionGuard(t *testing.T) {
	g := NewGenerator()
	seq := int64(1000)
	NowMs = func() int64 { return seq }
	defer func() { NowMs = func() int64 { return time.Now().UnixMilli() } }()

	a := g.Next() // uses 1000
	seq = 900     // clock went backwards
	b := g.Next() // should still be > a
	if a.Compare(b) >= 0 {
		t.Fatalf("expected b>a despite clock regression")
	}
}

func TestParseRoundTrip(t *testing.T) {
	g := NewGenerator()
	a := g.Next()
	parsed, err := Parse(a.String())
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if parsed != a {
		t.Fatalf("round trip mismatch: %v != %v", parsed, a)
	}
	if _, err := Parse("nope"); err == nil {
		t.Fatalf("expected error for short input")
	}
	if _, err := Parse("zz000000000000000000000000000000"); err == nil {
		t.Fatalf("expected error for non-hex input")
	}
}

func TestComposeEmbedsTime(t *testing.T) {
	ms := int64(1_700_000_000_000)
	a := Compose(ms, 42)
	if a.Ms() != ms {
		t.Fatalf("expected ms %d, got %d", ms, a.Ms())
	}
	b := Compose(ms+1, 42)
	if a.Compare(b) >= 0 {
		t.Fatalf("later compose should sort after")
	}
}

func TestAtEmbedsSuppliedTime(t *testing.T) {
	g := NewGenerator()
	at := time.UnixMilli(123456789)
	a := g.At(at)
	if a.Ms() != 123456789 {
		t.Fatalf("expected supplied ms, got %d", a.Ms())
	}
}
