package gemini

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"regexp"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"
	"google.golang.org/genai"

	"github.com/codeur-agent/codeur-responder/internal/ai"
	"github.com/codeur-agent/codeur-responder/internal/logger"
	"github.com/codeur-agent/codeur-responder/internal/utils"
)

const (
	defaultModel      = "gemini-2.5-flash"
	defaultMaxRetries = 3
	maxQuotaDelay     = 20 * time.Second
	baseRetryDelay    = 2 * time.Second
	responseMIMEType  = "application/json"
	providerName      = "gemini"
	logTruncateLimit  = 600
)

var sleep = time.Sleep

var retryAfterPattern = regexp.MustCompile(`(?i)retry (?:after|in) (\d+(?:\.\d+)?)\s*s`)

type chatSession interface {
	SendMessage(ctx context.Context, parts ...genai.Part) (*genai.GenerateContentResponse, error)
}

type chatCreator interface {
	Create(ctx context.Context, model string, config *genai.GenerateContentConfig, history []*genai.Content) (chatSession, error)
}

type genaiChats struct {
	chats *genai.Chats
}

func (c genaiChats) Create(ctx context.Context, model string, config *genai.GenerateContentConfig, history []*genai.Content) (chatSession, error) {
	return c.chats.Create(ctx, model, config, history)
}

// Generator answers JSON-mode prompts through the Gemini API.
type Generator struct {
	chats      chatCreator
	model      string
	maxRetries int
	logger     *zap.Logger
}

var _ ai.Completer = (*Generator)(nil)

// NewGenerator creates a new Generator configured for the Gemini API backend.
func NewGenerator(ctx context.Context, apiKey, model string, maxRetries int, log *zap.Logger) (*Generator, error) {
	apiKey = strings.TrimSpace(apiKey)
	if apiKey == "" {
		return nil, errors.New("gemini api key is required")
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("create genai client: %w", err)
	}

	if model = strings.TrimSpace(model); model == "" {
		model = defaultModel
	}
	if maxRetries <= 0 {
		maxRetries = defaultMaxRetries
	}
	if log == nil {
		log = zap.NewNop()
	}

	return &Generator{
		chats:      genaiChats{chats: client.Chats},
		model:      model,
		maxRetries: maxRetries,
		logger:     logger.WithCommonFields(log, providerName, model),
	}, nil
}

// Model returns the configured model name.
func (g *Generator) Model() string {
	if g == nil {
		return ""
	}
	return g.model
}

// CompleteJSON sends the request and decodes the answer as a JSON object.
func (g *Generator) CompleteJSON(ctx context.Context, req ai.Request) (map[string]any, error) {
	if g == nil {
		return nil, errors.New("gemini generator is not initialized")
	}

	model := strings.TrimSpace(req.Model)
	if model == "" {
		model = g.model
	}

	output, err := g.generate(ctx, model, req.SystemPrompt, req.UserPrompt)
	if err != nil {
		return nil, err
	}

	data, err := ai.DecodeObject(output)
	if err != nil {
		g.logger.Debug("gemini response is not json", zap.String("response", utils.TruncateForLog(output, logTruncateLimit)))
		return nil, fmt.Errorf("decode gemini response: %w", err)
	}

	return data, nil
}

func (g *Generator) generate(ctx context.Context, model, systemPrompt, message string) (string, error) {
	if g.chats == nil {
		return "", errors.New("gemini generator is not initialized")
	}

	message = strings.TrimSpace(message)
	if message == "" {
		return "", errors.New("prompt must not be empty")
	}

	config := &genai.GenerateContentConfig{ResponseMIMEType: responseMIMEType}
	if systemPrompt = strings.TrimSpace(systemPrompt); systemPrompt != "" {
		config.SystemInstruction = genai.NewContentFromText(systemPrompt, genai.RoleUser)
	}

	g.logger.Debug("sending prompt", zap.String("prompt", utils.TruncateForLog(message, logTruncateLimit)))

	var lastErr error
	for attempt := 1; attempt <= g.maxRetries; attempt++ {
		output, err := g.send(ctx, model, config, message)
		if err == nil {
			g.logger.Debug("received response",
				zap.Int("attempt", attempt),
				zap.String("response", utils.TruncateForLog(output, logTruncateLimit)),
			)
			return output, nil
		}
		lastErr = err

		delay, retry := retryDelay(err, attempt)
		if !retry || attempt == g.maxRetries {
			break
		}
		if ctx.Err() != nil {
			return "", ctx.Err()
		}

		g.logger.Warn("gemini request failed, retrying",
			zap.Int("attempt", attempt),
			zap.Duration("delay", delay),
			zap.Error(err),
		)
		sleep(delay)
	}

	return "", lastErr
}

func (g *Generator) send(ctx context.Context, model string, config *genai.GenerateContentConfig, message string) (string, error) {
	chat, err := g.chats.Create(ctx, model, config, nil)
	if err != nil {
		return "", fmt.Errorf("create chat: %w", err)
	}

	resp, err := chat.SendMessage(ctx, genai.Part{Text: message})
	if err != nil {
		return "", fmt.Errorf("generate content: %w", err)
	}

	return responseText(resp)
}

func responseText(resp *genai.GenerateContentResponse) (string, error) {
	if resp == nil {
		return "", ai.ErrEmptyResponse
	}

	var builder strings.Builder
	for _, candidate := range resp.Candidates {
		if candidate == nil || candidate.Content == nil {
			continue
		}
		for _, part := range candidate.Content.Parts {
			if part == nil {
				continue
			}
			text := strings.TrimSpace(part.Text)
			if text == "" {
				continue
			}
			if builder.Len() > 0 {
				builder.WriteString("\n")
			}
			builder.WriteString(text)
		}
	}

	output := strings.TrimSpace(builder.String())
	if output == "" {
		return "", ai.ErrEmptyResponse
	}

	return output, nil
}

// retryDelay reports whether err is temporary and how long to wait before the next attempt.
func retryDelay(err error, attempt int) (time.Duration, bool) {
	var apiErr genai.APIError
	if !errors.As(err, &apiErr) {
		return 0, false
	}

	switch apiErr.Code {
	case http.StatusInternalServerError, http.StatusBadGateway, http.StatusServiceUnavailable, http.StatusGatewayTimeout:
		return baseRetryDelay * time.Duration(attempt), true
	case http.StatusTooManyRequests:
		delay := baseRetryDelay * time.Duration(attempt)
		if match := retryAfterPattern.FindStringSubmatch(apiErr.Message); len(match) == 2 {
			seconds, parseErr := strconv.ParseFloat(match[1], 64)
			if parseErr == nil {
				delay = time.Duration(seconds * float64(time.Second))
			}
		}
		if delay > maxQuotaDelay {
			return 0, false
		}
		return delay, true
	default:
		return 0, false
	}
}
