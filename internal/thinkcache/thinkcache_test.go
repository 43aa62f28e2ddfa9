package thinkcache

import (
	"fmt"
	"testing"
	"time"
)

func TestPutAndGet(t *testing.T) {
	c := New()

	ok := c.Put("toolu_1", Block{Thinking: "reasoning text", Signature: "sig123"})
	if !ok {
		t.Fatal("Put returned false for a signed block")
	}

	got, found := c.Get("toolu_1")
	if !found {
		t.Fatal("Get missed a freshly inserted entry")
	}
	if got.Thinking != "reasoning text" || got.Signature != "sig123" {
		t.Errorf("got %+v", got)
	}
}

func TestPutRejectsUnsigned(t *testing.T) {
	c := New()

	if c.Put("toolu_1", Block{Thinking: "text", Signature: ""}) {
		t.Error("Put accepted a block without a signature")
	}
	if c.Put("", Block{Thinking: "text", Signature: "sig"}) {
		t.Error("Put accepted an empty tool_use id")
	}
	if c.Len() != 0 {
		t.Errorf("Len = %d, want 0", c.Len())
	}
}

func TestGetMiss(t *testing.T) {
	c := New()
	if _, found := c.Get("absent"); found {
		t.Error("Get reported a hit for an absent key")
	}
}

func TestTTLExpiry(t *testing.T) {
	c := NewWithLimits(16, 100*time.Millisecond)
	base := time.Now()
	c.now = func() time.Time { return base }

	c.Put("toolu_1", Block{Thinking: "t", Signature: "s"})

	c.now = func() time.Time { return base.Add(50 * time.Millisecond) }
	if _, found := c.Get("toolu_1"); !found {
		t.Fatal("entry expired before its TTL")
	}

	c.now = func() time.Time { return base.Add(200 * time.Millisecond) }
	if _, found := c.Get("toolu_1"); found {
		t.Fatal("entry survived past its TTL")
	}
	if c.Len() != 0 {
		t.Errorf("expired entry not deleted, Len = %d", c.Len())
	}
}

func TestEvictionOldestFirst(t *testing.T) {
	c := NewWithLimits(3, time.Hour)
	base := time.Now()
	tick := 0
	c.now = func() time.Time {
		tick++
		return base.Add(time.Duration(tick) * time.Second)
	}

	for i := 0; i < 4; i++ {
		c.Put(fmt.Sprintf("toolu_%d", i), Block{Thinking: "t", Signature: "s"})
	}

	if c.Len() != 3 {
		t.Fatalf("Len = %d, want 3", c.Len())
	}
	if _, found := c.Get("toolu_0"); found {
		t.Error("oldest entry survived eviction")
	}
	if _, found := c.Get("toolu_3"); !found {
		t.Error("newest entry was evicted")
	}
}

func TestRedactedBlockRoundTrip(t *testing.T) {
	c := New()
	c.Put("toolu_r", Block{Thinking: "opaque", Signature: "s", Redacted: true})
	got, found := c.Get("toolu_r")
	if !found || !got.Redacted {
		t.Errorf("got %+v found=%v", got, found)
	}
}
