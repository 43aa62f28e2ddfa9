package sse

import (
	"testing"
)

func TestFeedSingleFrame(t *testing.T) {
	p := New()
	events := p.Feed("event: message_start\ndata: {\"type\":\"message_start\"}\n\n")
	if len(events) != 1 {
		t.Fatalf("got %d events, want 1", len(events))
	}
	if events[0].Event != "message_start" {
		t.Errorf("event name = %q, want %q", events[0].Event, "message_start")
	}
	if events[0].Data != `{"type":"message_start"}` {
		t.Errorf("data = %q", events[0].Data)
	}
}

func TestFeedChunkBoundaries(t *testing.T) {
	full := "event: content_block_delta\ndata: {\"delta\":{\"text\":\"hi\"}}\n\n"

	// Split the frame at every possible byte offset; the result must not
	// depend on where chunks land.
	for cut := 1; cut < len(full); cut++ {
		p := New()
		var events []Event
		events = append(events, p.Feed(full[:cut])...)
		events = append(events, p.Feed(full[cut:])...)

		if len(events) != 1 {
			t.Fatalf("cut=%d: got %d events, want 1", cut, len(events))
		}
		if events[0].Event != "content_block_delta" {
			t.Errorf("cut=%d: event = %q", cut, events[0].Event)
		}
		if events[0].Data != `{"delta":{"text":"hi"}}` {
			t.Errorf("cut=%d: data = %q", cut, events[0].Data)
		}
	}
}

func TestFeedCRLF(t *testing.T) {
	p := New()
	events := p.Feed("event: ping\r\ndata: {}\r\n\r\n")
	if len(events) != 1 {
		t.Fatalf("got %d events, want 1", len(events))
	}
	if events[0].Event != "ping" || events[0].Data != "{}" {
		t.Errorf("got %+v", events[0])
	}
}

func TestFeedMultipleDataLines(t *testing.T) {
	p := New()
	events := p.Feed("data: line one\ndata: line two\n\n")
	if len(events) != 1 {
		t.Fatalf("got %d events, want 1", len(events))
	}
	if events[0].Data != "line one\nline two" {
		t.Errorf("data = %q", events[0].Data)
	}
}

func TestFeedIgnoresComments(t *testing.T) {
	p := New()
	events := p.Feed(": keepalive\n\ndata: real\n\n")
	if len(events) != 1 {
		t.Fatalf("got %d events, want 1", len(events))
	}
	if events[0].Data != "real" {
		t.Errorf("data = %q", events[0].Data)
	}
}

func TestFeedMultipleFrames(t *testing.T) {
	p := New()
	events := p.Feed("data: a\n\ndata: b\n\ndata: c\n\n")
	if len(events) != 3 {
		t.Fatalf("got %d events, want 3", len(events))
	}
	for i, want := range []string{"a", "b", "c"} {
		if events[i].Data != want {
			t.Errorf("events[%d].Data = %q, want %q", i, events[i].Data, want)
		}
	}
}

func TestFeedNoSpaceAfterColon(t *testing.T) {
	p := New()
	events := p.Feed("data:[DONE]\n\n")
	if len(events) != 1 {
		t.Fatalf("got %d events, want 1", len(events))
	}
	if events[0].Data != "[DONE]" {
		t.Errorf("data = %q", events[0].Data)
	}
}

func TestFlushEmitsPendingFrame(t *testing.T) {
	p := New()
	if events := p.Feed("data: trailing"); len(events) != 0 {
		t.Fatalf("premature events: %v", events)
	}
	events := p.Flush()
	if len(events) != 1 {
		t.Fatalf("got %d events from flush, want 1", len(events))
	}
	if events[0].Data != "trailing" {
		t.Errorf("data = %q", events[0].Data)
	}

	if events := p.Flush(); len(events) != 0 {
		t.Errorf("second flush returned %v, want none", events)
	}
}

func TestFlushEmpty(t *testing.T) {
	p := New()
	if events := p.Flush(); len(events) != 0 {
		t.Errorf("flush of empty parser returned %v", events)
	}
}
