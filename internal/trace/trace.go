// Package trace captures raw streaming traffic into request-scoped log
// files for troubleshooting. Tracing is best-effort: failures are logged
// and never interrupt a live stream.
package trace

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	. "github.com/roelfdiedericks/clawgate/internal/logging"
)

// Tracer writes one stream's frames to a single file. A nil *Tracer is
// valid and does nothing, so call sites need no enabled checks.
type Tracer struct {
	file      *os.File
	maxBytes  int64
	written   int64
	truncated bool
}

// New creates a tracer for one request, or nil when tracing is disabled.
// route appears in the file name so traces group by endpoint.
func New(enabled bool, requestID, route, dir string, maxBytes int64) *Tracer {
	if !enabled {
		return nil
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		L_warn("trace: cannot create trace directory", "dir", dir, "error", err)
		return nil
	}

	name := fmt.Sprintf("%s_%s_%s.log",
		time.Now().UTC().Format("20060102T150405Z"),
		strings.ReplaceAll(route, " ", "-"),
		requestID)
	f, err := os.Create(filepath.Join(dir, name))
	if err != nil {
		L_warn("trace: cannot create trace file", "file", name, "error", err)
		return nil
	}

	t := &Tracer{file: f, maxBytes: maxBytes}
	t.Note("stream tracer initialized")
	return t
}

// SourceChunk records a raw upstream SSE chunk.
func (t *Tracer) SourceChunk(chunk string) { t.write("UPSTREAM", chunk) }

// ConvertedChunk records the chunk returned to the client.
func (t *Tracer) ConvertedChunk(chunk string) { t.write("CLIENT", chunk) }

// Note records a free-form annotation.
func (t *Tracer) Note(format string, args ...interface{}) {
	if t == nil {
		return
	}
	t.write("NOTE", fmt.Sprintf(format, args...))
}

// Error records an error annotation.
func (t *Tracer) Error(format string, args ...interface{}) {
	if t == nil {
		return
	}
	t.write("ERROR", fmt.Sprintf(format, args...))
}

// Close flushes and closes the trace file.
func (t *Tracer) Close() {
	if t == nil || t.file == nil {
		return
	}
	t.write("NOTE", "stream tracer closed")
	t.file.Close()
	t.file = nil
}

func (t *Tracer) write(label, payload string) {
	if t == nil || t.file == nil {
		return
	}

	entry := fmt.Sprintf("[%s] [%s] len=%d\n%s\n",
		time.Now().UTC().Format("2006-01-02T15:04:05.000"), label, len(payload), payload)

	if t.maxBytes > 0 {
		remaining := t.maxBytes - t.written
		if remaining <= 0 {
			if !t.truncated {
				t.file.WriteString("[stream trace truncated]\n")
				t.truncated = true
			}
			return
		}
		if int64(len(entry)) > remaining {
			t.file.WriteString(entry[:remaining])
			t.file.WriteString("\n[stream trace truncated]\n")
			t.written = t.maxBytes
			t.truncated = true
			return
		}
	}

	if _, err := t.file.WriteString(entry); err != nil {
		L_debug("trace: write failed", "error", err)
		return
	}
	t.written += int64(len(entry))
}
