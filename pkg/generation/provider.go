package generation

import "strings"

const (
	ProviderOpenAI    = "openai"
	ProviderAnthropic = "anthropic"
	ProviderGoogle    = "google"
	ProviderDeepSeek  = "deepseek"
)

var providerPrefixes = []struct {
	prefix   string
	provider string
}{
	{"gpt-", ProviderOpenAI},
	{"o1", ProviderOpenAI},
	{"o3", ProviderOpenAI},
	{"o4", ProviderOpenAI},
	{"claude-", ProviderAnthropic},
	{"gemini-", ProviderGoogle},
	{"deepseek-", ProviderDeepSeek},
}

// ProviderPath returns the gateway path segment for a model id. The name
// prefix decides first, then the catalog entry, then OpenAI.
func ProviderPath(modelID string, catalog *Catalog) string {
	id := strings.ToLower(strings.TrimSpace(modelID))
	for _, p := range providerPrefixes {
		if strings.HasPrefix(id, p.prefix) {
			return p.provider
		}
	}

	if catalog != nil {
		if model, ok := catalog.Lookup(modelID); ok && model.Provider != "" {
			return model.Provider
		}
	}

	return ProviderOpenAI
}

// endpointBase joins the gateway base URL and provider path into the SDK base
// URL; the SDK appends "chat/completions".
func endpointBase(baseURL, providerPath string) string {
	return strings.TrimRight(baseURL, "/") + "/" + providerPath + "/v1/"
}
