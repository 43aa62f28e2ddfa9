package registry

import (
	"encoding/json"
	"os"

	. "github.com/roelfdiedericks/clawgate/internal/logging"
)

// customModelFile is the on-disk catalog shape.
type customModelFile struct {
	CustomModels []customModelSpec `json:"custom_models"`
}

type customModelSpec struct {
	ID                  string `json:"id"`
	BaseURL             string `json:"base_url"`
	APIKey              string `json:"api_key"`
	OwnedBy             string `json:"owned_by"`
	ContextLength       int    `json:"context_length"`
	MaxCompletionTokens int    `json:"max_completion_tokens"`
	SupportsVision      bool   `json:"supports_vision"`
}

// loadCustomModels reads the user's models.json overlay. Invalid entries are
// skipped with a warning; a missing or broken file yields no entries.
func loadCustomModels(path string) []*Entry {
	data, err := os.ReadFile(path)
	if err != nil {
		if !os.IsNotExist(err) {
			L_warn("registry: failed to read custom models", "path", path, "error", err)
		}
		return nil
	}

	var file customModelFile
	if err := json.Unmarshal(data, &file); err != nil {
		L_error("registry: failed to parse custom models", "path", path, "error", err)
		return nil
	}

	var out []*Entry
	for i, m := range file.CustomModels {
		if m.ID == "" || m.BaseURL == "" || m.APIKey == "" {
			L_warn("registry: skipping custom model with missing required fields", "index", i)
			continue
		}
		if m.OwnedBy == "" {
			m.OwnedBy = "custom"
		}
		if m.ContextLength == 0 {
			m.ContextLength = 200000
		}
		if m.MaxCompletionTokens == 0 {
			m.MaxCompletionTokens = 4096
		}
		out = append(out, &Entry{
			AdvertisedID:        m.ID,
			BackendID:           m.ID,
			Kind:                KindCustom,
			OwnedBy:             m.OwnedBy,
			ContextLength:       m.ContextLength,
			MaxCompletionTokens: m.MaxCompletionTokens,
			SupportsVision:      m.SupportsVision,
			IncludeInListing:    true,
			BaseURL:             m.BaseURL,
			APIKey:              m.APIKey,
		})
	}
	if len(out) > 0 {
		L_info("registry: loaded custom models", "path", path, "count", len(out))
	}
	return out
}
