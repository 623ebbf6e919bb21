// SPDX-FileCopyrightText: 2025 Mads R. Havmand <mads@v42.dk>
//
// SPDX-License-Identifier: AGPL-3.0-only

// Package pricing maps AI model usage onto credit units.
package pricing

import (
	"context"
	"fmt"
	"maps"
	"sync"

	"github.com/shopspring/decimal"
	"github.com/zenith-tasks/zenith"
)

// DefaultModelID is the key under which the fallback entry is reported
const DefaultModelID = "default"

// DefaultEntry is charged for models without an explicit entry
var DefaultEntry = Entry(DefaultModelID, 1, 2)

// BuiltinEntries is the cost table shipped with the binary. Repository
// pricing overrides these entries on refresh.
var BuiltinEntries = []zenith.ModelPricing{
	Entry("openai/gpt-4o", 5, 15),
	Entry("openai/gpt-4o-mini", 0.15, 0.6),
	Entry("openai/gpt-4.1", 2, 8),
	Entry("anthropic/claude-3.5-sonnet", 3, 15),
	Entry("anthropic/claude-3.5-haiku", 0.8, 4),
	Entry("anthropic/claude-3-5-haiku-latest", 0.8, 4),
	Entry("anthropic/claude-3-5-sonnet-latest", 3, 15),
	Entry("google/gemini-2.5-pro", 1.25, 10),
	Entry("google/gemini-2.5-flash", 0.3, 2.5),
	Entry("deepseek/deepseek-r1-0528-qwen3-8b:free", 0, 0),
	Entry("meta-llama/llama-4-maverick-17b-128e-instruct:free", 0, 0),
}

// Entry builds a cost table entry from per-1K token costs
func Entry(modelID string, inputCostPerK, outputCostPerK float64) zenith.ModelPricing {
	return zenith.ModelPricing{
		ModelID:        modelID,
		InputCostPerK:  decimal.NewFromFloat(inputCostPerK),
		OutputCostPerK: decimal.NewFromFloat(outputCostPerK),
	}
}

// Table is a model cost table with a default entry for unknown models.
// It is safe for concurrent use.
type Table struct {
	mu       sync.RWMutex
	base     map[string]zenith.ModelPricing
	entries  map[string]zenith.ModelPricing
	fallback zenith.ModelPricing
}

// NewTable creates a table from the given entries and fallback
func NewTable(entries []zenith.ModelPricing, fallback zenith.ModelPricing) *Table {
	base := make(map[string]zenith.ModelPricing, len(entries))
	for _, e := range entries {
		base[e.ModelID] = e
	}
	return &Table{
		base:     base,
		entries:  maps.Clone(base),
		fallback: fallback,
	}
}

// DefaultTable creates a table holding the built-in entries
func DefaultTable() *Table {
	return NewTable(BuiltinEntries, DefaultEntry)
}

// Lookup returns the entry for modelID, or the fallback entry and false
func (t *Table) Lookup(modelID string) (zenith.ModelPricing, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	if e, ok := t.entries[modelID]; ok {
		return e, true
	}
	return t.fallback, false
}

// Entries returns a copy of the current entries, fallback excluded
func (t *Table) Entries() map[string]zenith.ModelPricing {
	t.mu.RLock()
	defer t.mu.RUnlock()

	return maps.Clone(t.entries)
}

// CalculateUsageCost returns the credit cost of one call to modelID
func (t *Table) CalculateUsageCost(modelID string, inputTokens, outputTokens int64) int64 {
	entry, _ := t.Lookup(modelID)
	return Cost(entry, inputTokens, outputTokens)
}

// Refresh rebuilds the table from the built-in entries overlaid with the
// repository's entries. The previous entries are kept on error.
func (t *Table) Refresh(ctx context.Context, repo zenith.PricingRepository) error {
	stored, err := repo.ListModelPricing(ctx)
	if err != nil {
		return fmt.Errorf("failed to list model pricing: %w", err)
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	entries := maps.Clone(t.base)
	for _, p := range stored {
		if p == nil || p.ModelID == "" {
			continue
		}
		if p.ModelID == DefaultModelID {
			t.fallback = *p
			continue
		}
		entries[p.ModelID] = *p
	}
	t.entries = entries
	return nil
}

// Cost computes ceil(in/1000*inputCostPerK + out/1000*outputCostPerK).
// Nonzero usage always costs at least one unit; negative token counts and
// negative prices count as zero.
func Cost(entry zenith.ModelPricing, inputTokens, outputTokens int64) int64 {
	inputTokens = max(inputTokens, 0)
	outputTokens = max(outputTokens, 0)
	if inputTokens == 0 && outputTokens == 0 {
		return 0
	}

	in := decimal.NewFromInt(inputTokens).Mul(nonNegative(entry.InputCostPerK))
	out := decimal.NewFromInt(outputTokens).Mul(nonNegative(entry.OutputCostPerK))
	cost := in.Add(out).Shift(-3).Ceil().IntPart()

	return max(cost, 1)
}

func nonNegative(d decimal.Decimal) decimal.Decimal {
	if d.IsNegative() {
		return decimal.Zero
	}
	return d
}
