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

func TestComponents(t *testing.T) {
	NowMs = func() int64 { return 4242 }
	defer func() { NowMs = func() int64 { return time.Now().UnixMilli() } }()

	g := NewGenerator()
	_ = g.Next()
	b := g.Next()
	if b.Millis() != 4242 {
		t.Fatalf("millis: got %d", b.Millis())
	}
	if b.Seq() != 1 {
		t.Fatalf("seq: got %d", b.Seq())
	}
	if len(b.String()) != 32 {
		t.Fatalf("hex length: got %d", len(b.String()))
	}
}
