package models

// UsageInfo carries token accounting reported by a provider for a single
// completion.
type UsageInfo struct {
	InputTokens              int `json:"input_tokens"`
	OutputTokens             int `json:"output_tokens"`
	CacheCreationInputTokens int `json:"cache_creation_input_tokens,omitempty"`
	CacheReadInputTokens     int `json:"cache_read_input_tokens,omitempty"`
}

// CurrentContextTokens is input + cache_creation + cache_read + output, the
// quantity the context manager checks against the context window.
func (u UsageInfo) CurrentContextTokens() int {
	return u.InputTokens + u.CacheCreationInputTokens + u.CacheReadInputTokens + u.OutputTokens
}

// Add accumulates another usage report into this one, returning the sum.
func (u UsageInfo) Add(other UsageInfo) UsageInfo {
	return UsageInfo{
		InputTokens:              u.InputTokens + other.InputTokens,
		OutputTokens:             u.OutputTokens + other.OutputTokens,
		CacheCreationInputTokens: u.CacheCreationInputTokens + other.CacheCreationInputTokens,
		CacheReadInputTokens:     u.CacheReadInputTokens + other.CacheReadInputTokens,
	}
}
