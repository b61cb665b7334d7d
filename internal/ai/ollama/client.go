package ollama

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/ollama"
	"go.uber.org/zap"

	"github.com/codeur-agent/codeur-responder/internal/ai"
	"github.com/codeur-agent/codeur-responder/internal/logger"
	"github.com/codeur-agent/codeur-responder/internal/utils"
)

const (
	defaultModel     = "llama3"
	defaultHost      = "http://localhost:11434"
	providerName     = "ollama"
	logTruncateLimit = 600
)

// Config configures the Ollama chat client.
type Config struct {
	Host  string `mapstructure:"host"`
	Model string `mapstructure:"model"`
}

// Client answers JSON-mode prompts through a local Ollama server.
type Client struct {
	llm    llms.Model
	model  string
	logger *zap.Logger
}

var _ ai.Completer = (*Client)(nil)

// New connects a client to the configured Ollama server.
func New(cfg Config, log *zap.Logger) (*Client, error) {
	model := strings.TrimSpace(cfg.Model)
	if model == "" {
		model = defaultModel
	}
	host := strings.TrimSpace(cfg.Host)
	if host == "" {
		host = defaultHost
	}

	llm, err := ollama.New(
		ollama.WithModel(model),
		ollama.WithServerURL(host),
		ollama.WithFormat("json"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize ollama client: %w", err)
	}

	return newClient(llm, model, log), nil
}

func newClient(llm llms.Model, model string, log *zap.Logger) *Client {
	if log == nil {
		log = zap.NewNop()
	}
	return &Client{
		llm:    llm,
		model:  model,
		logger: logger.WithCommonFields(log, providerName, model),
	}
}

// Model returns the configured model name.
func (c *Client) Model() string {
	if c == nil {
		return ""
	}
	return c.model
}

// CompleteJSON sends the system and user prompts and decodes the answer as a JSON object.
func (c *Client) CompleteJSON(ctx context.Context, req ai.Request) (map[string]any, error) {
	if c == nil || c.llm == nil {
		return nil, errors.New("ollama client is not initialized")
	}

	userPrompt := strings.TrimSpace(req.UserPrompt)
	if userPrompt == "" {
		return nil, errors.New("prompt must not be empty")
	}

	content := make([]llms.MessageContent, 0, 2)
	if system := strings.TrimSpace(req.SystemPrompt); system != "" {
		content = append(content, llms.TextParts(llms.ChatMessageTypeSystem, system))
	}
	content = append(content, llms.TextParts(llms.ChatMessageTypeHuman, userPrompt))

	options := []llms.CallOption{llms.WithJSONMode()}
	if model := strings.TrimSpace(req.Model); model != "" {
		options = append(options, llms.WithModel(model))
	}

	c.logger.Debug("sending prompt", zap.String("prompt", utils.TruncateForLog(userPrompt, logTruncateLimit)))

	resp, err := c.llm.GenerateContent(ctx, content, options...)
	if err != nil {
		return nil, fmt.Errorf("ollama chat: %w", err)
	}

	output := firstChoice(resp)
	c.logger.Debug("received response", zap.String("response", utils.TruncateForLog(output, logTruncateLimit)))

	data, err := ai.DecodeObject(output)
	if err != nil {
		return nil, fmt.Errorf("decode ollama response: %w", err)
	}

	return data, nil
}

func firstChoice(resp *llms.ContentResponse) string {
	if resp == nil {
		return ""
	}
	for _, choice := range resp.Choices {
		if choice != nil && strings.TrimSpace(choice.Content) != "" {
			return choice.Content
		}
	}
	return ""
}
