package provider

// CacheControl is the ephemeral prompt-caching marker attached to the last
// system-prompt block and the last tool definition when the backend
// supports it. Providers that don't support caching ignore this silently.
type CacheControl struct {
	Type string `json:"type"` // "ephemeral"
}

// EphemeralCache is the sole cache-control marker spec.md requires.
var EphemeralCache = CacheControl{Type: "ephemeral"}

// CacheableSystem pairs a system prompt block with an optional cache marker.
type CacheableSystem struct {
	Text  string
	Cache *CacheControl
}

// AttachSystemCache wraps system text with an ephemeral cache marker when
// caching is supported, a no-op otherwise.
func AttachSystemCache(system string, supported bool) CacheableSystem {
	cs := CacheableSystem{Text: system}
	if supported && system != "" {
		cs.Cache = &EphemeralCache
	}
	return cs
}

// CacheableTool pairs a ToolDef with an optional cache marker.
type CacheableTool struct {
	ToolDef
	Cache *CacheControl
}

// AttachToolCache marks the last tool in tools as cacheable when supported,
// leaving every other tool's marker nil.
func AttachToolCache(tools []ToolDef, supported bool) []CacheableTool {
	out := make([]CacheableTool, len(tools))
	for i, t := range tools {
		out[i] = CacheableTool{ToolDef: t}
	}
	if supported && len(out) > 0 {
		out[len(out)-1].Cache = &EphemeralCache
	}
	return out
}
