// Package registry maps advertised model IDs to backend IDs and feature
// flags (reasoning budgets, vision, 1M context). The catalog is built once
// at startup and immutable afterwards.
package registry

import (
	"sort"
	"strings"

	. "github.com/roelfdiedericks/clawgate/internal/logging"
)

// Kind routes a model to its upstream driver family.
type Kind string

const (
	KindAnthropic Kind = "anthropic"
	KindChatGPT   Kind = "chatgpt"
	KindCustom    Kind = "custom"
)

// ReasoningBudgets maps reasoning effort levels to Anthropic thinking
// budgets in tokens.
var ReasoningBudgets = map[string]int{
	"low":    8000,
	"medium": 16000,
	"high":   32000,
}

// chatgptEfforts are the effort levels the Responses API accepts.
var chatgptEfforts = []string{"minimal", "low", "medium", "high"}

// Entry is one catalog row.
type Entry struct {
	AdvertisedID        string
	BackendID           string
	Kind                Kind
	Created             int64
	OwnedBy             string
	ContextLength       int
	MaxCompletionTokens int
	ReasoningLevel      string
	SupportsVision      bool
	Use1MContext        bool
	IncludeInListing    bool

	// Custom provider wiring (Kind == KindCustom).
	BaseURL string
	APIKey  string
}

// baseSpec seeds one Anthropic base model.
type baseSpec struct {
	id        string
	backendID string
	created   int64
	maxOut    int
}

var anthropicBases = []baseSpec{
	{"sonnet-4-5", "claude-sonnet-4-5-20250929", 1727654400, 65536},
	{"haiku-4-5", "claude-haiku-4-5-20251001", 1727827200, 65536},
	{"opus-4-1", "claude-opus-4-1-20250805", 1722816000, 32768},
	{"sonnet-4", "claude-sonnet-4-20250514", 1715644800, 65536},
}

// chatgptSpec seeds one ChatGPT-family model.
type chatgptSpec struct {
	id                string
	contextLength     int
	maxOut            int
	supportsReasoning bool
	supportsVision    bool
}

var chatgptBases = []chatgptSpec{
	{"openai-gpt-5", 400000, 128000, true, true},
	{"openai-gpt-5-codex", 400000, 128000, true, true},
	{"openai-codex-mini-latest", 128000, 16000, false, false},
}

// Registry is the immutable model catalog.
type Registry struct {
	entries map[string]*Entry
}

// New builds the catalog: Anthropic bases with reasoning variants and hidden
// backend-id aliases, ChatGPT models with effort variants, then the custom
// overlay from modelsFile (empty path skips the overlay).
func New(modelsFile string) *Registry {
	r := &Registry{entries: make(map[string]*Entry)}

	for _, base := range anthropicBases {
		r.add(&Entry{
			AdvertisedID:        base.id,
			BackendID:           base.backendID,
			Kind:                KindAnthropic,
			Created:             base.created,
			OwnedBy:             "anthropic",
			ContextLength:       200000,
			MaxCompletionTokens: base.maxOut,
			SupportsVision:      true,
			IncludeInListing:    true,
		})

		for level := range ReasoningBudgets {
			r.add(&Entry{
				AdvertisedID:        base.id + "-reasoning-" + level,
				BackendID:           base.backendID,
				Kind:                KindAnthropic,
				Created:             base.created,
				OwnedBy:             "anthropic",
				ContextLength:       200000,
				MaxCompletionTokens: base.maxOut,
				ReasoningLevel:      level,
				SupportsVision:      true,
				IncludeInListing:    true,
			})
		}

		// Hidden alias so the backend id itself resolves.
		r.add(&Entry{
			AdvertisedID:        base.backendID,
			BackendID:           base.backendID,
			Kind:                KindAnthropic,
			Created:             base.created,
			OwnedBy:             "anthropic",
			ContextLength:       200000,
			MaxCompletionTokens: base.maxOut,
			SupportsVision:      true,
			IncludeInListing:    false,
		})
	}

	for _, spec := range chatgptBases {
		backend := strings.TrimPrefix(spec.id, "openai-")
		r.add(&Entry{
			AdvertisedID:        spec.id,
			BackendID:           backend,
			Kind:                KindChatGPT,
			OwnedBy:             "openai-chatgpt",
			ContextLength:       spec.contextLength,
			MaxCompletionTokens: spec.maxOut,
			SupportsVision:      spec.supportsVision,
			IncludeInListing:    true,
		})
		// Unprefixed hidden alias: the actual backend model id.
		r.add(&Entry{
			AdvertisedID:        backend,
			BackendID:           backend,
			Kind:                KindChatGPT,
			OwnedBy:             "openai-chatgpt",
			ContextLength:       spec.contextLength,
			MaxCompletionTokens: spec.maxOut,
			SupportsVision:      spec.supportsVision,
			IncludeInListing:    false,
		})

		if !spec.supportsReasoning {
			continue
		}
		for _, effort := range chatgptEfforts {
			r.add(&Entry{
				AdvertisedID:        spec.id + "-" + effort,
				BackendID:           backend,
				Kind:                KindChatGPT,
				OwnedBy:             "openai-chatgpt",
				ContextLength:       spec.contextLength,
				MaxCompletionTokens: spec.maxOut,
				ReasoningLevel:      effort,
				SupportsVision:      spec.supportsVision,
				IncludeInListing:    true,
			})
			r.add(&Entry{
				AdvertisedID:        backend + "-" + effort,
				BackendID:           backend,
				Kind:                KindChatGPT,
				OwnedBy:             "openai-chatgpt",
				ContextLength:       spec.contextLength,
				MaxCompletionTokens: spec.maxOut,
				ReasoningLevel:      effort,
				SupportsVision:      spec.supportsVision,
				IncludeInListing:    false,
			})
		}
	}

	if modelsFile != "" {
		for _, e := range loadCustomModels(modelsFile) {
			r.add(e)
		}
	}

	L_debug("registry: built model catalog", "entries", len(r.entries))
	return r
}

func (r *Registry) add(e *Entry) {
	key := strings.ToLower(e.AdvertisedID)
	if prev, ok := r.entries[key]; ok && prev.IncludeInListing {
		// Listed entries win over hidden aliases.
		if !e.IncludeInListing {
			return
		}
	}
	r.entries[key] = e
}

// Lookup finds an entry by exact advertised id (case-insensitive).
func (r *Registry) Lookup(id string) *Entry {
	return r.entries[strings.ToLower(id)]
}

// ModelInfo is one row of the /v1/models listing.
type ModelInfo struct {
	ID                  string `json:"id"`
	Object              string `json:"object"`
	Type                string `json:"type"`
	Created             int64  `json:"created"`
	OwnedBy             string `json:"owned_by"`
	ContextLength       int    `json:"context_length"`
	MaxCompletionTokens int    `json:"max_completion_tokens"`
	ReasoningCapable    bool   `json:"reasoning_capable,omitempty"`
	ReasoningBudget     int    `json:"reasoning_budget,omitempty"`
	SupportsVision      bool   `json:"supports_vision,omitempty"`
}

// Listing returns the advertised catalog, sorted lexicographically by id.
func (r *Registry) Listing() []ModelInfo {
	out := make([]ModelInfo, 0, len(r.entries))
	for _, e := range r.entries {
		if !e.IncludeInListing {
			continue
		}
		info := ModelInfo{
			ID:                  e.AdvertisedID,
			Object:              "model",
			Type:                "model",
			Created:             e.Created,
			OwnedBy:             e.OwnedBy,
			ContextLength:       e.ContextLength,
			MaxCompletionTokens: e.MaxCompletionTokens,
			SupportsVision:      e.SupportsVision,
		}
		if e.ReasoningLevel != "" {
			info.ReasoningCapable = true
			info.ReasoningBudget = ReasoningBudgets[e.ReasoningLevel]
		}
		out = append(out, info)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}
