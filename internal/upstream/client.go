// Package upstream holds the three provider drivers: Anthropic messages,
// ChatGPT Responses and OpenAI-compatible custom providers. Drivers speak
// raw HTTP; request shaping happens before a body reaches them.
package upstream

import (
	"context"
	"io"
	"net"
	"net/http"
	"time"

	. "github.com/roelfdiedericks/clawgate/internal/logging"
	"github.com/roelfdiedericks/clawgate/internal/trace"
)

// newHTTPClient builds a client with a connect timeout and an overall
// deadline. Streaming clients pass the stream timeout as the deadline; the
// tighter between-chunk limit is enforced by relay.
func newHTTPClient(connect, total time.Duration) *http.Client {
	return &http.Client{
		Timeout: total,
		Transport: &http.Transport{
			DialContext: (&net.Dialer{
				Timeout:   connect,
				KeepAlive: 30 * time.Second,
			}).DialContext,
			TLSHandshakeTimeout:   connect,
			ResponseHeaderTimeout: 0,
			MaxIdleConns:          16,
			IdleConnTimeout:       90 * time.Second,
		},
	}
}

func nowUnix() int64 { return time.Now().Unix() }

type readResult struct {
	data []byte
	err  error
}

// relay copies a response body to out in chunks, enforcing readTimeout
// between reads. When the body stalls or breaks mid-stream, the frames from
// timeoutFrame or errorFrame are emitted instead of failing the transfer,
// so the client sees a well-formed SSE error rather than a dropped socket.
func relay(ctx context.Context, body io.Reader, readTimeout time.Duration, tr *trace.Tracer, out func(string) error, timeoutFrame string, errorFrame func(error) string) error {
	results := make(chan readResult, 1)
	done := make(chan struct{})
	defer close(done)

	// Sends select on done so the goroutine exits once relay has returned.
	go func() {
		buf := make([]byte, 4096)
		for {
			n, err := body.Read(buf)
			if n > 0 {
				data := make([]byte, n)
				copy(data, buf[:n])
				select {
				case results <- readResult{data: data}:
				case <-done:
					return
				}
			}
			if err != nil {
				select {
				case results <- readResult{err: err}:
				case <-done:
				}
				return
			}
		}
	}()

	timer := time.NewTimer(readTimeout)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-timer.C:
			tr.Error("stream read timeout, emitting synthetic error frame")
			return out(timeoutFrame)
		case r := <-results:
			if r.data != nil {
				if !timer.Stop() {
					<-timer.C
				}
				timer.Reset(readTimeout)
				tr.SourceChunk(string(r.data))
				if err := out(string(r.data)); err != nil {
					return err
				}
			}
			if r.err != nil {
				if r.err == io.EOF {
					return nil
				}
				L_warn("upstream: stream broke mid-transfer", "error", r.err)
				tr.Error("stream closed unexpectedly: %v", r.err)
				return out(errorFrame(r.err))
			}
		}
	}
}
