package schemas

import "context"

// -- LLM Schemas --

// ModelTier abstracts the capability level of the underlying model, allowing
// callers to request reasoning power without naming a concrete model.
type ModelTier string

const (
	// TierFast is for quick, low-cost operations like summarization or
	// basic extraction.
	TierFast ModelTier = "fast"
	// TierPowerful is for complex reasoning over a full page snapshot.
	TierPowerful ModelTier = "powerful"
)

// GenerationOptions provides fine-grained control over the generation process.
type GenerationOptions struct {
	Temperature     float64 `json:"temperature,omitempty"`
	ForceJSONFormat bool    `json:"force_json_format,omitempty"`
	TopP            float64 `json:"top_p,omitempty"`
	TopK            int     `json:"top_k,omitempty"`
}

// GenerationRequest encapsulates a complete request to the LLM.
type GenerationRequest struct {
	SystemPrompt string
	UserPrompt   string
	Tier         ModelTier
	Options      GenerationOptions
}

// LLMClient defines a standard interface for interacting with a large
// language model provider.
type LLMClient interface {
	// Generate performs a single, non-streaming generation request.
	Generate(ctx context.Context, req GenerationRequest) (string, error)
	// Close cleans up any persistent connections held by the client.
	Close() error
}
