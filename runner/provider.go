// Copyright 2025 AxonFlow
// SPDX-License-Identifier: BUSL-1.1

package runner

// ProviderName identifies one member of the fixed set of supported
// language model backends. The tag-to-identity mapping is total and
// bijective: unknown tags are rejected, never silently defaulted.
type ProviderName string

const (
	ProviderAnthropic   ProviderName = "anthropic"
	ProviderMistral     ProviderName = "mistral"
	ProviderOpenAI      ProviderName = "openai"
	ProviderOpenAIAzure ProviderName = "openai-azure"
	ProviderGemini      ProviderName = "gemini"
	ProviderGroq        ProviderName = "groq"
	ProviderBedrock     ProviderName = "bedrock"
)

// Environment variable names for provider credentials. Bedrock and Azure
// need extras beyond their primary key; everything else needs exactly one.
const (
	EnvAnthropicAPIKey = "ANTHROPIC_API_KEY"
	EnvMistralAPIKey   = "MISTRAL_API_KEY"
	EnvOpenAIAPIKey    = "OPENAI_API_KEY"
	EnvAzureAPIKey     = "AZURE_API_KEY"
	EnvGeminiAPIKey    = "GEMINI_API_KEY"
	EnvGroqAPIKey      = "GROQ_API_KEY"

	EnvAWSSecretAccessKey = "AWS_SECRET_ACCESS_KEY"
	EnvAWSRegion          = "AWS_REGION"
	EnvAWSAccessKeyID     = "AWS_ACCESS_KEY_ID"

	EnvAzureResourceID      = "OPENAI_AZURE_RESOURCE_ID"
	EnvAzureDeploymentName  = "OPENAI_AZURE_DEPLOYMENT_NAME"
)

// AllProviders returns the full provider set, in a stable order.
// The registry built at startup must cover every entry.
func AllProviders() []ProviderName {
	return []ProviderName{
		ProviderAnthropic,
		ProviderMistral,
		ProviderOpenAI,
		ProviderOpenAIAzure,
		ProviderGemini,
		ProviderGroq,
		ProviderBedrock,
	}
}

// ParseProviderName resolves a textual tag to a provider identity.
// Matching is exact and case-sensitive: no fuzzy matching, no default
// provider.
func ParseProviderName(tag string) (ProviderName, error) {
	switch tag {
	case "anthropic":
		return ProviderAnthropic, nil
	case "mistral":
		return ProviderMistral, nil
	case "openai":
		return ProviderOpenAI, nil
	case "openai-azure":
		return ProviderOpenAIAzure, nil
	case "gemini":
		return ProviderGemini, nil
	case "groq":
		return ProviderGroq, nil
	case "bedrock":
		return ProviderBedrock, nil
	default:
		return "", &UnknownProviderError{Tag: tag}
	}
}

// apiKeyName returns the env variable holding the provider's primary key
func (p ProviderName) apiKeyName() string {
	switch p {
	case ProviderAnthropic:
		return EnvAnthropicAPIKey
	case ProviderMistral:
		return EnvMistralAPIKey
	case ProviderOpenAI:
		return EnvOpenAIAPIKey
	case ProviderOpenAIAzure:
		return EnvAzureAPIKey
	case ProviderGemini:
		return EnvGeminiAPIKey
	case ProviderGroq:
		return EnvGroqAPIKey
	case ProviderBedrock:
		return EnvAWSSecretAccessKey
	default:
		return ""
	}
}

// APIKey looks up the provider's primary key in the given env snapshot.
// Fails closed: a missing variable is an error, never an empty key.
func (p ProviderName) APIKey(env map[string]string) (string, error) {
	name := p.apiKeyName()
	key, ok := env[name]
	if !ok {
		return "", &MissingCredentialError{Provider: p, Var: name}
	}
	return key, nil
}

// RequiredEnvVars returns every env variable the provider needs. Callers
// use this as a pre-flight check on an execution environment; it is not
// enforced inside the completion call itself.
func (p ProviderName) RequiredEnvVars() map[string]bool {
	envVars := map[string]bool{
		p.apiKeyName(): true,
	}

	switch p {
	case ProviderBedrock:
		envVars[EnvAWSRegion] = true
		envVars[EnvAWSAccessKeyID] = true
	case ProviderOpenAIAzure:
		envVars[EnvAzureResourceID] = true
		envVars[EnvAzureDeploymentName] = true
	}

	return envVars
}
