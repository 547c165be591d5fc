// Package provider provides the LLM provider abstraction layer.
//
// It implements a unified interface over the Eino framework for the three
// backends the Agent Loop can be configured against: Anthropic Claude
// (direct API or AWS Bedrock), OpenAI-compatible endpoints (native
// OpenAI, Azure OpenAI, or any self-hosted server speaking the same
// wire format), and Volcengine ARK.
//
// # Core Components
//
//   - Provider: the interface every backend implements
//   - Registry: resolves a "provider/model" config string to a Provider + Model
//   - CompletionRequest/CompletionStream: the streaming completion contract
//   - ConvertToEinoMessages/ConvertToEinoTools: translate the session's
//     message log and tool schemas into Eino's wire types
//
// # Anthropic (Claude)
//
//	provider, err := NewAnthropicProvider(ctx, &AnthropicConfig{
//	    ID:        "anthropic",
//	    APIKey:    "sk-ant-...",
//	    Model:     "claude-sonnet-4-20250514",
//	    MaxTokens: 8192,
//	})
//
// Setting UseBedrock routes the same model through AWS Bedrock using
// Region/Profile instead of APIKey.
//
// # OpenAI-compatible
//
//	provider, err := NewOpenAIProvider(ctx, &OpenAIConfig{
//	    ID:        "openai",
//	    APIKey:    "sk-...",
//	    Model:     "gpt-4o",
//	    MaxTokens: 4096,
//	})
//
// UseAzure switches the backend to Azure OpenAI's endpoint shape.
// BaseURL targets a local or self-hosted server; an API key (APIKey or
// OPENAI_API_KEY) is still required.
//
// # Volcengine ARK
//
//	provider, err := NewArkProvider(ctx, &ArkConfig{
//	    APIKey:    "...",
//	    Model:     "endpoint-id",
//	    MaxTokens: 4096,
//	})
//
// # Registry
//
//	registry, err := InitializeProviders(ctx, cfg)
//	model, err := registry.DefaultModel()       // resolves cfg.Model
//	provider, err := registry.Get(providerID)
//	models := registry.AllModels()              // every configured backend, ranked
//
// # Streaming
//
//	stream, err := provider.CreateCompletion(ctx, &CompletionRequest{
//	    Messages:  provider.ConvertToEinoMessages(session.Messages()),
//	    Tools:     provider.ConvertToEinoTools(toolInfos),
//	    MaxTokens: 4096,
//	})
//	for {
//	    msg, err := stream.Recv()
//	    if err != nil {
//	        break
//	    }
//	    // hand msg to the Stream Parser
//	}
//	stream.Close()
package provider
