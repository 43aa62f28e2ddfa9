package registry

import (
	"strings"
)

// Resolution is the outcome of resolving an advertised model name.
type Resolution struct {
	BackendID      string
	Kind           Kind
	ReasoningLevel string
	Use1MContext   bool
	Entry          *Entry
}

// Resolve maps a model name to its backend id and feature flags. Resolution
// is total: unknown names come back unchanged with neutral metadata.
//
// Steps: strip a leading "provider/" handle, try an exact catalog lookup,
// then fall back to legacy suffix parsing (-1m, -reasoning-{level}).
func (r *Registry) Resolve(name string) Resolution {
	stripped := name
	if i := strings.Index(stripped, "/"); i >= 0 {
		stripped = stripped[i+1:]
	}

	if e := r.Lookup(stripped); e != nil {
		return Resolution{
			BackendID:      e.BackendID,
			Kind:           e.Kind,
			ReasoningLevel: e.ReasoningLevel,
			Use1MContext:   e.Use1MContext,
			Entry:          e,
		}
	}

	base, level, use1m := parseLegacyName(stripped)
	if e := r.Lookup(base); e != nil {
		res := Resolution{
			BackendID:      e.BackendID,
			Kind:           e.Kind,
			ReasoningLevel: e.ReasoningLevel,
			Use1MContext:   use1m,
			Entry:          e,
		}
		if level != "" {
			res.ReasoningLevel = level
		}
		return res
	}

	// Unknown model: pass through with neutral defaults.
	return Resolution{BackendID: base, Kind: KindAnthropic, ReasoningLevel: level, Use1MContext: use1m}
}

// parseLegacyName handles the -1m and -reasoning-{level} suffix rules on
// names not present in the catalog.
func parseLegacyName(name string) (base string, level string, use1m bool) {
	base = name
	if strings.Contains(base, "-1m") {
		use1m = true
		base = strings.Replace(base, "-1m", "", 1)
	}
	if i := strings.LastIndex(base, "-reasoning-"); i >= 0 {
		maybe := base[i+len("-reasoning-"):]
		if _, ok := ReasoningBudgets[maybe]; ok {
			level = maybe
			base = base[:i]
		}
	}
	return base, level, use1m
}

// IsChatGPT reports whether a name routes to the ChatGPT Responses driver.
// Accepts prefixed and unprefixed forms with or without an effort suffix.
func (r *Registry) IsChatGPT(name string) bool {
	res := r.Resolve(name)
	return res.Kind == KindChatGPT && res.Entry != nil
}

// IsCustom reports whether a name routes to a user-configured provider.
func (r *Registry) IsCustom(name string) bool {
	res := r.Resolve(name)
	return res.Kind == KindCustom && res.Entry != nil
}

// CustomConfig returns the custom provider wiring for a name, or nil.
func (r *Registry) CustomConfig(name string) *Entry {
	res := r.Resolve(name)
	if res.Kind == KindCustom && res.Entry != nil {
		return res.Entry
	}
	return nil
}
