package llm

import "time"

const (
	ProviderArk    = "ark"
	ProviderGemini = "gemini"
	ProviderOpenAI = "openai"
)

type ArkConfig struct {
	APIKey  string `mapstructure:"api_key" yaml:"api_key"`
	ModelID string `mapstructure:"model_id" yaml:"model_id"`
	BaseURL string `mapstructure:"base_url" yaml:"base_url"`
}

type GeminiConfig struct {
	APIKey      string  `mapstructure:"api_key" yaml:"api_key"`
	BaseURL     string  `mapstructure:"base_url" yaml:"base_url"`
	Model       string  `mapstructure:"model" yaml:"model"`
	Temperature float32 `mapstructure:"temperature" yaml:"temperature"`
	MaxTokens   int     `mapstructure:"max_tokens" yaml:"max_tokens"`
}

type OpenAIConfig struct {
	APIKey      string  `mapstructure:"api_key" yaml:"api_key"`
	BaseURL     string  `mapstructure:"base_url" yaml:"base_url"`
	Model       string  `mapstructure:"model" yaml:"model"`
	Temperature float32 `mapstructure:"temperature" yaml:"temperature"`
	MaxTokens   int     `mapstructure:"max_tokens" yaml:"max_tokens"`
}

// Config 选择 LLM 供应商并配置其凭据与调用限速。
type Config struct {
	Provider string       `mapstructure:"provider" yaml:"provider" validate:"required,oneof=ark gemini openai"`
	Ark      ArkConfig    `mapstructure:"ark" yaml:"ark"`
	Gemini   GeminiConfig `mapstructure:"gemini" yaml:"gemini"`
	OpenAI   OpenAIConfig `mapstructure:"openai" yaml:"openai"`

	// RequestsPerSecond <= 0 表示不限速。
	RequestsPerSecond float64       `mapstructure:"requests_per_second" yaml:"requests_per_second" validate:"gte=0"`
	Burst             int           `mapstructure:"burst" yaml:"burst" validate:"gte=0"`
	Timeout           time.Duration `mapstructure:"timeout" yaml:"timeout"`
}

func DefaultConfig() Config {
	return Config{
		Provider: ProviderArk,
		Ark: ArkConfig{
			BaseURL: "https://ark.cn-beijing.volces.com/api/v3",
		},
		Gemini: GeminiConfig{
			Model:       "gemini-2.5-flash",
			Temperature: 0.2,
			MaxTokens:   2048,
		},
		OpenAI: OpenAIConfig{
			Model:       "gpt-4o-mini",
			Temperature: 0.2,
			MaxTokens:   2048,
		},
		RequestsPerSecond: 5,
		Burst:             5,
		Timeout:           30 * time.Second,
	}
}
