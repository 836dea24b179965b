// Package agentcore implements the Agent loop: the single entry point that
// ties a Provider, ToolRegistry, SkillRegistry, ContextManager, and
// SessionBackend together into stream_message's event sequence.
package agentcore

import "github.com/agentforge/agentcore/internal/provider"

// DefaultMaxIterations bounds the tool-use loop before a synthetic done is
// forced.
const DefaultMaxIterations = 25

// DefaultCompactThreshold is the fraction of the context window that
// triggers compaction.
const DefaultCompactThreshold = 0.8

// Config bundles the tunables AgentCoreConfig exposes at the external
// boundary, layered over provider.Config for the backend-specific knobs.
type Config struct {
	Provider provider.Config

	// SystemPrompt is the base_system_prompt skills and tool listings are
	// composed onto.
	SystemPrompt string

	// MaxIterations caps tool-use round trips per stream_message call.
	// Default 25.
	MaxIterations int

	// CompactThreshold is the usage_percent that triggers compaction.
	// Default 0.8.
	CompactThreshold float64

	// ContextWindow overrides the provider's model-lookup default when set.
	ContextWindow int

	// MaxTokens bounds each completion's output length. Default 4096.
	MaxTokens int
}

// DefaultMaxTokens bounds a single completion's output when Config.MaxTokens
// is left zero.
const DefaultMaxTokens = 4096

// WithDefaults fills zero-valued fields with package defaults.
func (c Config) WithDefaults() Config {
	c.Provider = c.Provider.WithDefaults()
	if c.MaxIterations <= 0 {
		c.MaxIterations = DefaultMaxIterations
	}
	if c.CompactThreshold <= 0 {
		c.CompactThreshold = DefaultCompactThreshold
	}
	if c.ContextWindow <= 0 {
		c.ContextWindow = provider.LookupModel(c.Provider.Model).ContextWindow
	}
	if c.MaxTokens <= 0 {
		c.MaxTokens = DefaultMaxTokens
	}
	return c
}
