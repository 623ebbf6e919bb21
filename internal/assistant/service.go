// SPDX-FileCopyrightText: 2025 Mads R. Havmand <mads@v42.dk>
//
// SPDX-License-Identifier: AGPL-3.0-only

// Package assistant answers assistant requests through the provider fallback
// chain and bills the user's credits for the provider that served them.
package assistant

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"codeberg.org/gai-org/gai"
	"github.com/zenith-tasks/zenith"
	"github.com/zenith-tasks/zenith/internal/fallback"
	"github.com/zenith-tasks/zenith/internal/providers"
)

const (
	insufficientBalanceMessage = "You have run out of credits. Add credits or upgrade your plan to keep using the assistant."
	unavailableMessage         = "The assistant is temporarily unavailable. Please try again shortly."
	genericErrorMessage        = "Something went wrong while answering your request."
)

// Reply is a generated answer and what it cost
type Reply struct {
	Text         string
	ProviderUsed string
	Model        string
	Attempts     []fallback.Attempt
	Usage        gai.TokenUsage
	Cost         int64
	// Billing is the outcome of the debit. A failed debit does not withhold
	// the reply because the provider has already served it.
	Billing zenith.CreditResult
}

type Service struct {
	options *serviceOptions
}

type generation struct {
	response *gai.Response
	model    string
}

// Generate runs req for userID. When req.ModelID is empty each provider uses
// its registered default model.
func (s *Service) Generate(ctx context.Context, userID string, req gai.GenerateRequest) (*Reply, error) {
	balance, err := s.options.Ledger.GetBalance(ctx, userID)
	if err != nil {
		return nil, err
	}
	if balance < s.options.MinimumBalance {
		s.options.Logger.Info("Rejected assistant request for low balance",
			"userID", userID,
			"balance", balance)
		return nil, zenith.ErrInsufficientBalance
	}

	order := s.options.Executor.Providers()
	if len(order) == 0 {
		order = s.options.Registry.Names()
	}

	result, err := fallback.ExecuteWith(ctx, s.options.Executor, order, func(ctx context.Context, provider string) (*generation, error) {
		client, defaultModel, err := s.options.Registry.Client(provider)
		if err != nil {
			return nil, err
		}

		attemptReq := req
		if attemptReq.ModelID == "" {
			attemptReq.ModelID = defaultModel
		}

		resp, err := client.Generate(ctx, attemptReq)
		if err != nil {
			return nil, err
		}
		return &generation{response: resp, model: attemptReq.ModelID}, nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to generate reply: %w", err)
	}

	gen := result.Value
	reply := &Reply{
		Text:         providers.ResponseText(gen.response),
		ProviderUsed: result.ProviderUsed,
		Model:        gen.model,
		Attempts:     result.Attempts,
	}
	if gen.response.Usage != nil {
		reply.Usage = *gen.response.Usage
	} else {
		s.options.Logger.Warn("Provider reported no token usage",
			"provider", result.ProviderUsed,
			"model", gen.model)
	}

	pricingModel := PricingModelID(result.ProviderUsed, gen.model)
	reply.Cost = s.options.Ledger.CalculateUsageCost(pricingModel,
		int64(reply.Usage.PromptTokens), int64(reply.Usage.CompletionTokens))

	if reply.Cost == 0 {
		reply.Billing = zenith.CreditResult{Success: true, NewBalance: balance}
		return reply, nil
	}

	reply.Billing = s.options.Ledger.ConsumeCredits(ctx, userID, reply.Cost,
		fmt.Sprintf("Assistant request via %s", result.ProviderUsed),
		map[string]any{
			"provider":     result.ProviderUsed,
			"model":        gen.model,
			"inputTokens":  reply.Usage.PromptTokens,
			"outputTokens": reply.Usage.CompletionTokens,
			"attempts":     len(result.Attempts),
		})
	if !reply.Billing.Success {
		s.options.Logger.Warn("Failed to bill assistant request",
			"userID", userID,
			"cost", reply.Cost,
			"balance", reply.Billing.NewBalance,
			"error", reply.Billing.Err)
	}

	return reply, nil
}

// PricingModelID returns the cost table key for a model served by provider.
// Models that are already namespaced, as OpenRouter's are, are used as is.
func PricingModelID(provider, model string) string {
	if strings.Contains(model, "/") {
		return model
	}
	return provider + "/" + model
}

// UserMessage returns a message suitable for showing to the user for err
func UserMessage(err error) string {
	var exhausted *fallback.ExhaustedError
	switch {
	case err == nil:
		return ""
	case errors.Is(err, zenith.ErrInsufficientBalance):
		return insufficientBalanceMessage
	case errors.As(err, &exhausted), errors.Is(err, fallback.ErrNoProviders):
		return unavailableMessage
	default:
		return genericErrorMessage
	}
}
