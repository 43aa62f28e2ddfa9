// Package counter estimates token counts for the count_tokens endpoint
// using tiktoken, with a chars/4 fallback when the encoding is unavailable.
package counter

import (
	"encoding/json"
	"sync"

	. "github.com/roelfdiedericks/clawgate/internal/logging"
	"github.com/pkoukk/tiktoken-go"
)

// DefaultEncoding is cl100k_base. It undercounts slightly for Claude models
// but stays within the accuracy clients expect from an estimate.
const DefaultEncoding = "cl100k_base"

// Estimator counts tokens in text.
type Estimator struct {
	encoding *tiktoken.Tiktoken
	mu       sync.RWMutex
}

var (
	globalEstimator     *Estimator
	globalEstimatorOnce sync.Once
)

// Get returns the process-wide estimator.
func Get() *Estimator {
	globalEstimatorOnce.Do(func() {
		var err error
		globalEstimator, err = New()
		if err != nil {
			L_warn("counter: failed to load encoding, using char fallback", "error", err)
			globalEstimator = &Estimator{}
		}
	})
	return globalEstimator
}

// New creates an estimator with the default encoding.
func New() (*Estimator, error) {
	enc, err := tiktoken.GetEncoding(DefaultEncoding)
	if err != nil {
		return nil, err
	}
	return &Estimator{encoding: enc}, nil
}

// Count returns the token count for a string, falling back to chars/4.
func (e *Estimator) Count(text string) int {
	if e == nil || e.encoding == nil {
		return len(text) / 4
	}
	e.mu.RLock()
	defer e.mu.RUnlock()
	return len(e.encoding.Encode(text, nil, nil))
}

// CountRequest estimates input tokens for an Anthropic messages request:
// message content, system blocks and tool definitions. Always at least 1.
func (e *Estimator) CountRequest(body map[string]interface{}) int {
	total := 0

	if msgs, ok := body["messages"].([]interface{}); ok {
		for _, m := range msgs {
			msg, ok := m.(map[string]interface{})
			if !ok {
				continue
			}
			total += e.countContent(msg["content"])
		}
	}
	if system, present := body["system"]; present {
		total += e.countContent(system)
	}
	if tools, ok := body["tools"].([]interface{}); ok && len(tools) > 0 {
		encoded, _ := json.Marshal(tools)
		total += e.Count(string(encoded))
	}

	if total < 1 {
		total = 1
	}
	return total
}

func (e *Estimator) countContent(content interface{}) int {
	switch v := content.(type) {
	case string:
		return e.Count(v)
	case []interface{}:
		encoded, _ := json.Marshal(v)
		return e.Count(string(encoded))
	}
	return 0
}
