package types

// Model describes one LLM model a provider backend exposes.
type Model struct {
	ID                string       `json:"id"`
	Name              string       `json:"name"`
	ProviderID        string       `json:"providerId"`
	ContextLength     int          `json:"contextLength"`
	MaxOutputTokens   int          `json:"maxOutputTokens"`
	SupportsTools     bool         `json:"supportsTools"`
	SupportsVision    bool         `json:"supportsVision"`
	SupportsReasoning bool         `json:"supportsReasoning"`
	InputPrice        float64      `json:"inputPrice"`  // USD per million input tokens
	OutputPrice       float64      `json:"outputPrice"` // USD per million output tokens
	Options           ModelOptions `json:"options,omitempty"`
}

// ModelOptions carries provider-specific capability flags that don't
// apply uniformly across every model.
type ModelOptions struct {
	PromptCaching  bool `json:"promptCaching,omitempty"`
	ExtendedOutput bool `json:"extendedOutput,omitempty"`
}
