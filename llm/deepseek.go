// DeepSeek Provider implementation.
//
// Information Hiding:
// - Uses the OpenAI-compatible API with a different base URL

package llm

const deepseekBaseURL = "https://api.deepseek.com/v1"

// DeepSeekProvider implements the Provider interface for DeepSeek.
type DeepSeekProvider struct {
	*OpenAIProvider
}

// NewDeepSeekProvider creates a new DeepSeek provider.
func NewDeepSeekProvider(apiKey, model string, maxTokens uint32, temperature float32) *DeepSeekProvider {
	return &DeepSeekProvider{
		OpenAIProvider: newOpenAICompatible("deepseek", apiKey, deepseekBaseURL, model, maxTokens, temperature),
	}
}

// Verify DeepSeekProvider implements Provider
var _ Provider = (*DeepSeekProvider)(nil)
