package agent

import (
	providertypes "concierge/pkg/provider/types"
)

// UsageAttrs flattens provider usage accounting into slog attributes.
//
// Keeping this in one place avoids drift between the gateway and CLI when
// they report what a turn cost.
func UsageAttrs(result providertypes.PromptResult) []any {
	usage := result.Metadata.Usage
	if usage == nil {
		return nil
	}

	return []any{
		"usage_input_tokens", usage.InputTokens,
		"usage_output_tokens", usage.OutputTokens,
		"usage_total_tokens", usage.TotalTokens,
		"usage_reasoning_tokens", usage.ReasoningTokens,
		"usage_cache_creation_tokens", usage.CacheCreationTokens,
		"usage_cache_read_tokens", usage.CacheReadTokens,
	}
}
