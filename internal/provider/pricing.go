package provider

// ModelInfo describes a model's context window and per-token pricing, used
// for cost estimation and for the default context window.
type ModelInfo struct {
	ContextWindow       int
	InputPricePerMTok   float64
	OutputPricePerMTok  float64
}

// modelTable is a static registry of known models. Unknown models fall back
// to DefaultModelInfo.
var modelTable = map[string]ModelInfo{
	"claude-opus-4":      {ContextWindow: 200_000, InputPricePerMTok: 15.00, OutputPricePerMTok: 75.00},
	"claude-sonnet-4":    {ContextWindow: 200_000, InputPricePerMTok: 3.00, OutputPricePerMTok: 15.00},
	"claude-haiku-4":     {ContextWindow: 200_000, InputPricePerMTok: 0.80, OutputPricePerMTok: 4.00},
	"gpt-4o":             {ContextWindow: 128_000, InputPricePerMTok: 2.50, OutputPricePerMTok: 10.00},
	"gpt-4o-mini":        {ContextWindow: 128_000, InputPricePerMTok: 0.15, OutputPricePerMTok: 0.60},
	"o1":                 {ContextWindow: 200_000, InputPricePerMTok: 15.00, OutputPricePerMTok: 60.00},
}

// DefaultModelInfo is used when a model isn't in the table.
var DefaultModelInfo = ModelInfo{ContextWindow: 128_000, InputPricePerMTok: 0, OutputPricePerMTok: 0}

// LookupModel returns the known info for model, or DefaultModelInfo.
func LookupModel(model string) ModelInfo {
	if info, ok := modelTable[model]; ok {
		return info
	}
	return DefaultModelInfo
}

// EstimateCostUSD computes the dollar cost of a completion from usage.
func EstimateCostUSD(model string, inputTokens, outputTokens int) float64 {
	info := LookupModel(model)
	return float64(inputTokens)/1_000_000*info.InputPricePerMTok +
		float64(outputTokens)/1_000_000*info.OutputPricePerMTok
}
