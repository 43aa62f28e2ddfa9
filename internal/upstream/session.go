package upstream

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"strings"
	"sync"

	"github.com/google/uuid"
)

// sessionCacheMax bounds the fingerprint table. Eviction is oldest-first.
const sessionCacheMax = 10000

// SessionCache maps request-prefix fingerprints to stable session IDs so
// the Responses API can reuse its prompt cache across turns.
type SessionCache struct {
	mu    sync.Mutex
	byFP  map[string]string
	order []string
}

// NewSessionCache creates an empty cache.
func NewSessionCache() *SessionCache {
	return &SessionCache{byFP: make(map[string]string)}
}

// Ensure returns a session ID for the request. A non-empty client-supplied
// ID always wins; otherwise the ID is derived from the instructions and the
// first user message, stable across turns of the same conversation.
func (c *SessionCache) Ensure(clientSupplied, instructions string, inputItems []map[string]interface{}) string {
	if s := strings.TrimSpace(clientSupplied); s != "" {
		return s
	}

	fp := fingerprint(canonicalPrefix(instructions, inputItems))

	c.mu.Lock()
	defer c.mu.Unlock()
	if sid, ok := c.byFP[fp]; ok {
		return sid
	}
	sid := uuid.NewString()
	c.byFP[fp] = sid
	c.order = append(c.order, fp)
	if len(c.order) > sessionCacheMax {
		oldest := c.order[0]
		c.order = c.order[1:]
		delete(c.byFP, oldest)
	}
	return sid
}

// canonicalPrefix builds a deterministic JSON encoding of the stable
// request prefix: the instructions and the first user message.
func canonicalPrefix(instructions string, inputItems []map[string]interface{}) string {
	prefix := make(map[string]interface{})
	if s := strings.TrimSpace(instructions); s != "" {
		prefix["instructions"] = s
	}
	if first := firstUserMessage(inputItems); first != nil {
		prefix["first_user_message"] = first
	}
	encoded, _ := json.Marshal(prefix)
	return string(encoded)
}

func firstUserMessage(inputItems []map[string]interface{}) map[string]interface{} {
	for _, item := range inputItems {
		if item["type"] != "message" || item["role"] != "user" {
			continue
		}
		content, _ := item["content"].([]interface{})
		var norm []interface{}
		for _, p := range content {
			part, ok := p.(map[string]interface{})
			if !ok {
				continue
			}
			switch part["type"] {
			case "input_text":
				if text, _ := part["text"].(string); text != "" {
					norm = append(norm, map[string]interface{}{"type": "input_text", "text": text})
				}
			case "input_image":
				if url, _ := part["image_url"].(string); url != "" {
					norm = append(norm, map[string]interface{}{"type": "input_image", "image_url": url})
				}
			}
		}
		if len(norm) > 0 {
			return map[string]interface{}{"type": "message", "role": "user", "content": norm}
		}
	}
	return nil
}

func fingerprint(s string) string {
	sum := sha256.Sum256([]byte(s))
	return hex.EncodeToString(sum[:])
}
