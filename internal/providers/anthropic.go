// SPDX-FileCopyrightText: 2025 Mads R. Havmand <mads@v42.dk>
//
// SPDX-License-Identifier: AGPL-3.0-only

package providers

import (
	"context"
	"fmt"
	"strings"
	"time"

	"codeberg.org/gai-org/gai"
	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
)

// DefaultAnthropicMaxTokens is used when a request does not set an output limit
const DefaultAnthropicMaxTokens = 1024

// AnthropicClient talks to the Anthropic messages API
type AnthropicClient struct {
	options *ClientOptions
	client  anthropic.Client
}

func NewAnthropicClient(apiKey, baseURL string, options ...ClientOption) *AnthropicClient {
	opts := newClientOptions(options)

	requestOptions := []option.RequestOption{
		option.WithAPIKey(apiKey),
		option.WithMaxRetries(0),
	}
	if baseURL != "" {
		requestOptions = append(requestOptions, option.WithBaseURL(baseURL))
	}
	if opts.HTTPClient != nil {
		requestOptions = append(requestOptions, option.WithHTTPClient(opts.HTTPClient))
	}

	return &AnthropicClient{
		options: opts,
		client:  anthropic.NewClient(requestOptions...),
	}
}

func (c *AnthropicClient) Generate(ctx context.Context, req gai.GenerateRequest) (*gai.Response, error) {
	message, err := c.client.Messages.New(ctx, c.convertToMessageParams(req))
	if err != nil {
		return nil, fmt.Errorf("failed to create message: %w", err)
	}

	var text strings.Builder
	for _, block := range message.Content {
		if block.Type == "text" {
			text.WriteString(block.Text)
		}
	}
	if text.Len() == 0 {
		return nil, ErrEmptyResponse
	}

	c.options.Logger.Debug("Message received",
		"model", message.Model,
		"inputTokens", message.Usage.InputTokens,
		"outputTokens", message.Usage.OutputTokens)

	modelID := string(message.Model)
	if modelID == "" {
		modelID = req.ModelID
	}

	return &gai.Response{
		ID:      message.ID,
		ModelID: modelID,
		Status:  "completed",
		Output:  []gai.OutputItem{gai.TextOutput{Text: text.String()}},
		Usage: &gai.TokenUsage{
			PromptTokens:     int(message.Usage.InputTokens),
			CompletionTokens: int(message.Usage.OutputTokens),
			TotalTokens:      int(message.Usage.InputTokens + message.Usage.OutputTokens),
		},
		CreatedAt: time.Now(),
	}, nil
}

func (c *AnthropicClient) convertToMessageParams(req gai.GenerateRequest) anthropic.MessageNewParams {
	var messages []anthropic.MessageParam
	for _, msg := range flattenInput(req.Input) {
		if msg.assistant {
			messages = append(messages, anthropic.NewAssistantMessage(anthropic.NewTextBlock(msg.text)))
		} else {
			messages = append(messages, anthropic.NewUserMessage(anthropic.NewTextBlock(msg.text)))
		}
	}

	maxTokens := int64(DefaultAnthropicMaxTokens)
	if req.MaxOutputTokens > 0 {
		maxTokens = int64(req.MaxOutputTokens)
	}

	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(req.ModelID),
		MaxTokens: maxTokens,
		Messages:  messages,
	}
	if req.Instructions != "" {
		params.System = []anthropic.TextBlockParam{{Text: req.Instructions}}
	}
	if req.Temperature > 0 {
		params.Temperature = anthropic.Float(float64(req.Temperature))
	}
	if req.TopP > 0 {
		params.TopP = anthropic.Float(float64(req.TopP))
	}
	return params
}
