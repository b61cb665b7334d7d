package gemini

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"
	"google.golang.org/genai"

	"github.com/codeur-agent/codeur-responder/internal/ai"
)

type reply struct {
	text string
	err  error
}

// scriptedChats answers every created chat with the next scripted reply.
type scriptedChats struct {
	mu      sync.Mutex
	replies []reply
	models  []string
	configs []*genai.GenerateContentConfig
	sent    []string
}

func (s *scriptedChats) Create(_ context.Context, model string, config *genai.GenerateContentConfig, _ []*genai.Content) (chatSession, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.replies) == 0 {
		return nil, errors.New("no scripted reply left")
	}
	next := s.replies[0]
	s.replies = s.replies[1:]
	s.models = append(s.models, model)
	s.configs = append(s.configs, config)
	return &scriptedChat{owner: s, reply: next}, nil
}

type scriptedChat struct {
	owner *scriptedChats
	reply reply
}

func (c *scriptedChat) SendMessage(_ context.Context, parts ...genai.Part) (*genai.GenerateContentResponse, error) {
	c.owner.mu.Lock()
	for _, part := range parts {
		c.owner.sent = append(c.owner.sent, part.Text)
	}
	c.owner.mu.Unlock()

	if c.reply.err != nil {
		return nil, c.reply.err
	}
	return &genai.GenerateContentResponse{
		Candidates: []*genai.Candidate{{
			Content: &genai.Content{Parts: []*genai.Part{{Text: c.reply.text}}},
		}},
	}, nil
}

func newTestGenerator(maxRetries int, replies ...reply) (*Generator, *scriptedChats) {
	chats := &scriptedChats{replies: replies}
	return &Generator{
		chats:      chats,
		model:      defaultModel,
		maxRetries: maxRetries,
		logger:     zap.NewNop(),
	}, chats
}

func noSleep(t *testing.T) *[]time.Duration {
	t.Helper()
	var delays []time.Duration
	original := sleep
	sleep = func(d time.Duration) { delays = append(delays, d) }
	t.Cleanup(func() { sleep = original })
	return &delays
}

var (
	serverError = genai.APIError{Code: http.StatusInternalServerError, Status: "INTERNAL"}
	badRequest  = genai.APIError{Code: http.StatusBadRequest, Status: "INVALID_ARGUMENT"}
)

func TestCompleteJSON(t *testing.T) {
	g, chats := newTestGenerator(1, reply{text: "```json\n{\"match\": true, \"score\": 0.8}\n```"})

	data, err := g.CompleteJSON(context.Background(), ai.Request{
		SystemPrompt: "qualify",
		UserPrompt:   "Projet API Go",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if data["match"] != true || data["score"] != 0.8 {
		t.Fatalf("unexpected data: %v", data)
	}

	if chats.models[0] != defaultModel {
		t.Fatalf("expected default model, got %q", chats.models[0])
	}
	config := chats.configs[0]
	if config.ResponseMIMEType != "application/json" {
		t.Fatalf("expected json mime type, got %q", config.ResponseMIMEType)
	}
	if config.SystemInstruction == nil || config.SystemInstruction.Parts[0].Text != "qualify" {
		t.Fatalf("unexpected system instruction: %+v", config.SystemInstruction)
	}
	if len(chats.sent) != 1 || chats.sent[0] != "Projet API Go" {
		t.Fatalf("unexpected messages: %v", chats.sent)
	}
}

func TestCompleteJSONModelOverride(t *testing.T) {
	g, chats := newTestGenerator(1, reply{text: `{"offer_message": "Bonjour"}`})

	if _, err := g.CompleteJSON(context.Background(), ai.Request{UserPrompt: "Projet", Model: "gemini-2.5-pro"}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if chats.models[0] != "gemini-2.5-pro" {
		t.Fatalf("expected overridden model, got %q", chats.models[0])
	}
	if chats.configs[0].SystemInstruction != nil {
		t.Fatalf("expected no system instruction without a system prompt")
	}
}

func TestCompleteJSONRetries(t *testing.T) {
	tests := []struct {
		name       string
		maxRetries int
		replies    []reply
		wantErr    bool
		wantCalls  int
		wantDelays []time.Duration
	}{
		{
			name:       "recovers after a server error",
			maxRetries: 3,
			replies:    []reply{{err: serverError}, {text: `{"match": false}`}},
			wantCalls:  2,
			wantDelays: []time.Duration{baseRetryDelay},
		},
		{
			name:       "gives up when attempts are exhausted",
			maxRetries: 2,
			replies:    []reply{{err: serverError}, {err: serverError}},
			wantErr:    true,
			wantCalls:  2,
			wantDelays: []time.Duration{baseRetryDelay},
		},
		{
			name:       "does not retry a bad request",
			maxRetries: 3,
			replies:    []reply{{err: badRequest}},
			wantErr:    true,
			wantCalls:  1,
		},
		{
			name:       "honours a short retry-after",
			maxRetries: 2,
			replies: []reply{
				{err: genai.APIError{Code: http.StatusTooManyRequests, Message: "quota exceeded, retry in 1.5s"}},
				{text: `{"match": true}`},
			},
			wantCalls:  2,
			wantDelays: []time.Duration{1500 * time.Millisecond},
		},
		{
			name:       "does not wait for a long quota reset",
			maxRetries: 3,
			replies: []reply{
				{err: genai.APIError{Code: http.StatusTooManyRequests, Message: "quota exhausted, retry after 60 seconds"}},
			},
			wantErr:   true,
			wantCalls: 1,
		},
		{
			name:       "does not retry a non-api error",
			maxRetries: 3,
			replies:    []reply{{err: errors.New("connection reset")}},
			wantErr:    true,
			wantCalls:  1,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			delays := noSleep(t)
			g, chats := newTestGenerator(tt.maxRetries, tt.replies...)

			_, err := g.CompleteJSON(context.Background(), ai.Request{UserPrompt: "Projet"})
			if tt.wantErr != (err != nil) {
				t.Fatalf("expected error %v, got %v", tt.wantErr, err)
			}
			if len(chats.models) != tt.wantCalls {
				t.Fatalf("expected %d calls, got %d", tt.wantCalls, len(chats.models))
			}
			if len(*delays) != len(tt.wantDelays) {
				t.Fatalf("expected delays %v, got %v", tt.wantDelays, *delays)
			}
			for i, want := range tt.wantDelays {
				if (*delays)[i] != want {
					t.Fatalf("delay %d: expected %s, got %s", i, want, (*delays)[i])
				}
			}
		})
	}
}

func TestCompleteJSONStopsWhenContextIsDone(t *testing.T) {
	noSleep(t)
	g, chats := newTestGenerator(3, reply{err: serverError}, reply{text: `{"match": true}`})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := g.CompleteJSON(ctx, ai.Request{UserPrompt: "Projet"}); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if len(chats.models) != 1 {
		t.Fatalf("expected a single call, got %d", len(chats.models))
	}
}

func TestCompleteJSONRejects(t *testing.T) {
	tests := []struct {
		name   string
		prompt string
		reply  reply
	}{
		{name: "prose", prompt: "Projet", reply: reply{text: "Yes, this looks relevant."}},
		{name: "empty answer", prompt: "Projet", reply: reply{text: "   "}},
		{name: "empty prompt", prompt: "   "},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			g, _ := newTestGenerator(1, tt.reply)
			if _, err := g.CompleteJSON(context.Background(), ai.Request{UserPrompt: tt.prompt}); err == nil {
				t.Fatal("expected an error")
			}
		})
	}
}

func TestNewGeneratorRequiresKey(t *testing.T) {
	if _, err := NewGenerator(context.Background(), "  ", "", 0, nil); err == nil {
		t.Fatal("expected an error without api key")
	}
}
