package anthropic

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/crewd/crewd/pkg/ports"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

const defaultMaxTokens = 4096

// Transport implements ports.Transport on the Anthropic Messages API.
// A "server" here is an API-backed session host rather than a local
// process: each worker gets its own host carrying the worker's model,
// system prompt and sampling settings, and each session keeps its own
// in-memory message history.
type Transport struct {
	client    anthropic.Client
	logger    *zap.Logger
	maxTokens int64
}

// Config holds transport configuration.
type Config struct {
	APIKey    string
	MaxTokens int64
	Logger    *zap.Logger
}

// NewTransport creates an Anthropic-backed transport.
func NewTransport(cfg Config) (*Transport, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("anthropic api key is required")
	}
	maxTokens := cfg.MaxTokens
	if maxTokens <= 0 {
		maxTokens = defaultMaxTokens
	}
	return &Transport{
		client:    anthropic.NewClient(option.WithAPIKey(cfg.APIKey)),
		logger:    cfg.Logger,
		maxTokens: maxTokens,
	}, nil
}

// CreateServer starts a session host for one worker.
func (t *Transport) CreateServer(ctx context.Context, cfg ports.ServerConfig) (ports.SessionClient, ports.ServerHandle, error) {
	model, ok := strings.CutPrefix(cfg.Model, "anthropic/")
	if !ok {
		return nil, nil, fmt.Errorf("unsupported model %q: anthropic transport requires an anthropic/ model id", cfg.Model)
	}

	host := &sessionHost{
		transport:    t,
		model:        model,
		systemPrompt: cfg.SystemPrompt,
		temperature:  cfg.Temperature,
		toolConfig:   cfg.ToolConfig,
		sessions:     make(map[string][]anthropic.MessageParam),
		url:          fmt.Sprintf("anthropic://%s", model),
	}

	t.logger.Debug("session host created",
		zap.String("model", model),
		zap.String("url", host.url))

	return host, host, nil
}

// sessionHost is both the SessionClient and the ServerHandle for one
// worker: sessions share the host's model and settings.
type sessionHost struct {
	transport    *Transport
	model        string
	systemPrompt string
	temperature  float64
	toolConfig   ports.ToolConfig
	url          string

	mu       sync.Mutex
	closed   bool
	sessions map[string][]anthropic.MessageParam
}

// CreateSession opens a new conversation with empty history.
func (h *sessionHost) CreateSession(ctx context.Context) (string, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.closed {
		return "", fmt.Errorf("session host is closed")
	}
	id := uuid.New().String()
	h.sessions[id] = nil
	return id, nil
}

// Prompt appends the message to the session history, requests a
// completion, records the assistant reply, and returns its text.
func (h *sessionHost) Prompt(ctx context.Context, sessionID, message string, attachments []string) (string, error) {
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return "", fmt.Errorf("session host is closed")
	}
	history, ok := h.sessions[sessionID]
	if !ok {
		h.mu.Unlock()
		return "", fmt.Errorf("unknown session: %s", sessionID)
	}

	text := message
	if len(attachments) > 0 {
		text = fmt.Sprintf("%s\n\nAttachments:\n%s", message, strings.Join(attachments, "\n"))
	}
	messages := append(append([]anthropic.MessageParam(nil), history...),
		anthropic.NewUserMessage(anthropic.NewTextBlock(text)))
	h.mu.Unlock()

	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(h.model),
		MaxTokens: h.transport.maxTokens,
		Messages:  messages,
	}
	if h.systemPrompt != "" {
		params.System = []anthropic.TextBlockParam{{Text: h.systemPrompt}}
	}
	if h.temperature > 0 {
		params.Temperature = anthropic.Float(h.temperature)
	}

	msg, err := h.transport.client.Messages.New(ctx, params)
	if err != nil {
		return "", fmt.Errorf("messages api: %w", err)
	}

	var reply strings.Builder
	for _, block := range msg.Content {
		if block.Type == "text" {
			reply.WriteString(block.Text)
		}
	}

	h.mu.Lock()
	if _, ok := h.sessions[sessionID]; ok {
		h.sessions[sessionID] = append(messages,
			anthropic.NewAssistantMessage(anthropic.NewTextBlock(reply.String())))
	}
	h.mu.Unlock()

	return reply.String(), nil
}

// PromptNoReply seeds the session history with a user message without
// requesting a completion. Used for identity/context injection at spawn.
func (h *sessionHost) PromptNoReply(ctx context.Context, sessionID, message string) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.closed {
		return fmt.Errorf("session host is closed")
	}
	history, ok := h.sessions[sessionID]
	if !ok {
		return fmt.Errorf("unknown session: %s", sessionID)
	}
	h.sessions[sessionID] = append(history,
		anthropic.NewUserMessage(anthropic.NewTextBlock(message)))
	return nil
}

// URL returns the host's address.
func (h *sessionHost) URL() string {
	return h.url
}

// Close drops all sessions and rejects further calls.
func (h *sessionHost) Close() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.closed = true
	h.sessions = make(map[string][]anthropic.MessageParam)
	return nil
}
