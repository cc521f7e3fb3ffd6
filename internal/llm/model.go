package llm

import (
	"context"
	"fmt"

	"github.com/cloudwego/eino-ext/components/model/ark"
	"github.com/cloudwego/eino-ext/components/model/gemini"
	"github.com/cloudwego/eino/components/model"
	"google.golang.org/genai"

	logx "github.com/wwwzy/MongoAgent/pkg/logger"
)

// NewChatModel 按 cfg.Provider 初始化 ChatModel，并套上限速与错误归类。
func NewChatModel(ctx context.Context, cfg Config) (model.BaseChatModel, error) {
	var (
		cm  model.BaseChatModel
		err error
	)
	switch cfg.Provider {
	case ProviderArk, "":
		cm, err = newArkModel(ctx, cfg.Ark)
	case ProviderGemini:
		cm, err = newGeminiModel(ctx, cfg.Gemini)
	case ProviderOpenAI:
		cm, err = NewOpenAIModel(cfg.OpenAI)
	default:
		return nil, fmt.Errorf("unknown llm provider %q", cfg.Provider)
	}
	if err != nil {
		return nil, err
	}

	logx.Info().Str("provider", cfg.Provider).Msg("chat model initialized")
	return Guard(cm, cfg.RequestsPerSecond, cfg.Burst), nil
}

func newArkModel(ctx context.Context, c ArkConfig) (model.BaseChatModel, error) {
	if c.APIKey == "" || c.ModelID == "" {
		return nil, fmt.Errorf("ARK_API_KEY, ARK_MODEL_ID must be set")
	}
	cm, err := ark.NewChatModel(ctx, &ark.ChatModelConfig{
		APIKey:  c.APIKey,
		Model:   c.ModelID,
		BaseURL: c.BaseURL,
	})
	if err != nil {
		return nil, fmt.Errorf("create ark model: %w", err)
	}
	return cm, nil
}

func newGeminiModel(ctx context.Context, c GeminiConfig) (model.BaseChatModel, error) {
	if c.APIKey == "" {
		return nil, fmt.Errorf("GEMINI_API_KEY must be set")
	}

	clientCfg := &genai.ClientConfig{
		APIKey:  c.APIKey,
		Backend: genai.BackendGeminiAPI,
	}
	if c.BaseURL != "" {
		clientCfg.HTTPOptions.BaseURL = c.BaseURL
	}
	client, err := genai.NewClient(ctx, clientCfg)
	if err != nil {
		logx.Error().Err(err).Msg("Error creating Gemini client")
		return nil, fmt.Errorf("error creating Gemini client: %w", err)
	}

	temperature := c.Temperature
	maxTokens := c.MaxTokens
	cm, err := gemini.NewChatModel(ctx, &gemini.Config{
		Client:      client,
		Model:       c.Model,
		Temperature: &temperature,
		MaxTokens:   &maxTokens,
	})
	if err != nil {
		return nil, fmt.Errorf("create gemini model: %w", err)
	}
	return cm, nil
}
