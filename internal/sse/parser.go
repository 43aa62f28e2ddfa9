// Package sse implements an incremental Server-Sent-Events decoder. It
// tolerates CRLF line endings and arbitrary chunk boundaries, including ones
// that split a line or a UTF-8 sequence.
package sse

import (
	"strings"
)

// Event is one decoded SSE frame.
type Event struct {
	Event string
	Data  string
}

// Parser accumulates bytes via Feed and emits complete frames. A frame ends
// at a blank line. Partial lines are preserved across Feed calls; call Flush
// at end of stream to emit any trailing frame.
type Parser struct {
	buf       string
	eventName string
	dataLines []string
}

// New creates an empty parser.
func New() *Parser {
	return &Parser{}
}

// Feed consumes a chunk and returns all frames completed by it.
func (p *Parser) Feed(chunk string) []Event {
	p.buf += chunk

	var events []Event
	for {
		i := strings.IndexByte(p.buf, '\n')
		if i < 0 {
			break
		}
		line := p.buf[:i]
		p.buf = p.buf[i+1:]
		line = strings.TrimSuffix(line, "\r")

		if ev, ok := p.consumeLine(line); ok {
			events = append(events, ev)
		}
	}
	return events
}

// Flush terminates the stream, emitting a final frame if one is pending.
// Any partial line still buffered is processed as if newline-terminated.
func (p *Parser) Flush() []Event {
	var events []Event
	if p.buf != "" {
		line := strings.TrimSuffix(p.buf, "\r")
		p.buf = ""
		if ev, ok := p.consumeLine(line); ok {
			events = append(events, ev)
		}
	}
	if len(p.dataLines) > 0 || p.eventName != "" {
		events = append(events, p.emit())
	}
	return events
}

// consumeLine applies one line to the frame state. A blank line closes the
// frame; the completed event is returned with ok=true.
func (p *Parser) consumeLine(line string) (Event, bool) {
	switch {
	case line == "":
		if len(p.dataLines) == 0 && p.eventName == "" {
			return Event{}, false
		}
		return p.emit(), true
	case strings.HasPrefix(line, ":"):
		// Comment, ignored.
		return Event{}, false
	case strings.HasPrefix(line, "event:"):
		p.eventName = stripLeadingSpace(line[len("event:"):])
		return Event{}, false
	case strings.HasPrefix(line, "data:"):
		p.dataLines = append(p.dataLines, stripLeadingSpace(line[len("data:"):]))
		return Event{}, false
	default:
		// Malformed line: treat the whole line as data rather than drop it.
		p.dataLines = append(p.dataLines, line)
		return Event{}, false
	}
}

func (p *Parser) emit() Event {
	ev := Event{
		Event: p.eventName,
		Data:  strings.Join(p.dataLines, "\n"),
	}
	p.eventName = ""
	p.dataLines = nil
	return ev
}

// stripLeadingSpace removes at most one leading space, per the SSE spec.
func stripLeadingSpace(s string) string {
	if strings.HasPrefix(s, " ") {
		return s[1:]
	}
	return s
}
