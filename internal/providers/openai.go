// SPDX-FileCopyrightText: 2025 Mads R. Havmand <mads@v42.dk>
//
// SPDX-License-Identifier: AGPL-3.0-only

package providers

import (
	"context"
	"fmt"
	"time"

	"codeberg.org/gai-org/gai"
	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
)

// OpenAIClient talks to the chat completions API of OpenAI or any
// OpenAI-compatible endpoint such as OpenRouter
type OpenAIClient struct {
	options *ClientOptions
	client  openai.Client
}

func NewOpenAIClient(apiKey, baseURL string, options ...ClientOption) *OpenAIClient {
	opts := newClientOptions(options)

	// Retries are left to the fallback executor
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

	return &OpenAIClient{
		options: opts,
		client:  openai.NewClient(requestOptions...),
	}
}

func (c *OpenAIClient) Generate(ctx context.Context, req gai.GenerateRequest) (*gai.Response, error) {
	params := c.convertToChatParams(req)

	completion, err := c.client.Chat.Completions.New(ctx, params)
	if err != nil {
		return nil, fmt.Errorf("failed to create chat completion: %w", err)
	}
	if len(completion.Choices) == 0 {
		return nil, ErrEmptyResponse
	}

	c.options.Logger.Debug("Chat completion received",
		"model", completion.Model,
		"promptTokens", completion.Usage.PromptTokens,
		"completionTokens", completion.Usage.CompletionTokens)

	modelID := completion.Model
	if modelID == "" {
		modelID = req.ModelID
	}

	createdAt := time.Now()
	if completion.Created > 0 {
		createdAt = time.Unix(completion.Created, 0)
	}

	return &gai.Response{
		ID:      completion.ID,
		ModelID: modelID,
		Status:  "completed",
		Output:  []gai.OutputItem{gai.TextOutput{Text: completion.Choices[0].Message.Content}},
		Usage: &gai.TokenUsage{
			PromptTokens:     int(completion.Usage.PromptTokens),
			CompletionTokens: int(completion.Usage.CompletionTokens),
			TotalTokens:      int(completion.Usage.TotalTokens),
		},
		CreatedAt: createdAt,
	}, nil
}

func (c *OpenAIClient) convertToChatParams(req gai.GenerateRequest) openai.ChatCompletionNewParams {
	var messages []openai.ChatCompletionMessageParamUnion
	if req.Instructions != "" {
		messages = append(messages, openai.SystemMessage(req.Instructions))
	}
	for _, msg := range flattenInput(req.Input) {
		if msg.assistant {
			messages = append(messages, openai.AssistantMessage(msg.text))
		} else {
			messages = append(messages, openai.UserMessage(msg.text))
		}
	}

	params := openai.ChatCompletionNewParams{
		Model:    openai.ChatModel(req.ModelID),
		Messages: messages,
	}
	if req.Temperature > 0 {
		params.Temperature = openai.Float(float64(req.Temperature))
	}
	if req.TopP > 0 {
		params.TopP = openai.Float(float64(req.TopP))
	}
	if req.MaxOutputTokens > 0 {
		params.MaxCompletionTokens = openai.Int(int64(req.MaxOutputTokens))
	}
	return params
}
