// SPDX-FileCopyrightText: 2025 Mads R. Havmand <mads@v42.dk>
//
// SPDX-License-Identifier: AGPL-3.0-only

// Package providers adapts upstream AI provider SDKs to a single client interface.
package providers

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"sync"

	"codeberg.org/gai-org/gai"
)

const (
	PROVIDER_OPENAI     = "openai"
	PROVIDER_OPENROUTER = "openrouter"
	PROVIDER_ANTHROPIC  = "anthropic"
)

// OpenRouterBaseURL is the OpenAI-compatible endpoint of OpenRouter
const OpenRouterBaseURL = "https://openrouter.ai/api/v1/"

var (
	ErrUnsupportedProvider = errors.New("unsupported provider")
	ErrUnknownProvider     = errors.New("unknown provider")
	ErrMissingAPIKey       = errors.New("missing API key")
	ErrEmptyResponse       = errors.New("provider returned no output")
)

// LLMClient generates a response for a provider-neutral request
type LLMClient interface {
	Generate(ctx context.Context, req gai.GenerateRequest) (*gai.Response, error)
}

// Config describes one upstream provider
type Config struct {
	// Name identifies the provider in the fallback order
	Name string
	// Kind selects the SDK. Defaults to Name.
	Kind         string
	APIKey       string
	BaseURL      string
	DefaultModel string
}

type ClientOptions struct {
	Logger     *slog.Logger
	HTTPClient *http.Client
}

type ClientOption interface {
	Apply(*ClientOptions)
}

type clientOptionFunc func(*ClientOptions)

func (f clientOptionFunc) Apply(opts *ClientOptions) {
	f(opts)
}

func WithClientLogger(logger *slog.Logger) ClientOption {
	return clientOptionFunc(func(opts *ClientOptions) {
		opts.Logger = logger
	})
}

func WithHTTPClient(client *http.Client) ClientOption {
	return clientOptionFunc(func(opts *ClientOptions) {
		opts.HTTPClient = client
	})
}

func newClientOptions(options []ClientOption) *ClientOptions {
	opts := &ClientOptions{
		Logger: slog.Default(),
	}
	for _, option := range options {
		option.Apply(opts)
	}
	return opts
}

// NewClient builds the client for cfg
func NewClient(cfg Config, options ...ClientOption) (LLMClient, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("%w for provider %q", ErrMissingAPIKey, cfg.Name)
	}

	kind := cfg.Kind
	if kind == "" {
		kind = cfg.Name
	}

	switch strings.ToLower(kind) {
	case PROVIDER_OPENAI:
		return NewOpenAIClient(cfg.APIKey, cfg.BaseURL, options...), nil
	case PROVIDER_OPENROUTER:
		baseURL := cfg.BaseURL
		if baseURL == "" {
			baseURL = OpenRouterBaseURL
		}
		return NewOpenAIClient(cfg.APIKey, baseURL, options...), nil
	case PROVIDER_ANTHROPIC:
		return NewAnthropicClient(cfg.APIKey, cfg.BaseURL, options...), nil
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedProvider, kind)
	}
}

type registryEntry struct {
	client       LLMClient
	defaultModel string
}

// Registry maps provider names to clients, keeping registration order
type Registry struct {
	mu      sync.RWMutex
	entries map[string]registryEntry
	order   []string
}

func NewRegistry() *Registry {
	return &Registry{
		entries: make(map[string]registryEntry),
	}
}

// Register adds or replaces a provider. A replaced provider keeps its position.
func (r *Registry) Register(name string, client LLMClient, defaultModel string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.entries[name]; !ok {
		r.order = append(r.order, name)
	}
	r.entries[name] = registryEntry{client: client, defaultModel: defaultModel}
}

// Client returns the client registered under name and its default model
func (r *Registry) Client(name string) (LLMClient, string, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	entry, ok := r.entries[name]
	if !ok {
		return nil, "", fmt.Errorf("%w: %s", ErrUnknownProvider, name)
	}
	return entry.client, entry.defaultModel, nil
}

// Names returns the registered providers in registration order
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return append([]string(nil), r.order...)
}

// NewRegistryFromConfigs creates a client for every config, in order
func NewRegistryFromConfigs(configs []Config, options ...ClientOption) (*Registry, error) {
	registry := NewRegistry()
	for _, cfg := range configs {
		client, err := NewClient(cfg, options...)
		if err != nil {
			return nil, fmt.Errorf("failed to create client for provider %q: %w", cfg.Name, err)
		}
		registry.Register(cfg.Name, client, cfg.DefaultModel)
	}
	return registry, nil
}

// ResponseText concatenates the text outputs of resp
func ResponseText(resp *gai.Response) string {
	if resp == nil {
		return ""
	}
	var b strings.Builder
	for _, output := range resp.Output {
		if text, ok := output.(gai.TextOutput); ok {
			b.WriteString(text.Text)
		}
	}
	return b.String()
}

// requestMessage is a flattened text message of a gai request
type requestMessage struct {
	assistant bool
	text      string
}

func flattenInput(input gai.Input) []requestMessage {
	switch in := input.(type) {
	case gai.TextInput:
		return []requestMessage{{text: in.Text}}
	case gai.Conversation:
		messages := make([]requestMessage, 0, len(in.Messages))
		for _, msg := range in.Messages {
			text, ok := msg.Content.(gai.TextInput)
			if !ok {
				continue
			}
			messages = append(messages, requestMessage{
				assistant: msg.Role == gai.RoleAssistant,
				text:      text.Text,
			})
		}
		return messages
	default:
		return nil
	}
}
