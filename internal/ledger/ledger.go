// SPDX-FileCopyrightText: 2025 Mads R. Havmand <mads@v42.dk>
//
// SPDX-License-Identifier: AGPL-3.0-only

// Package ledger keeps per-user credit balances and their transaction history.
//
// Every mutation of an account runs under that account's lock, so the balance
// check, the balance update and the transaction append are observed as one
// step. Accounts of different users never contend. Mutations are queued to
// the journal under the lock and written by its worker; alerts and metrics
// run after the lock is released.
package ledger

import (
	"context"
	"fmt"
	"maps"
	"sync"

	"github.com/google/uuid"
	"github.com/zenith-tasks/zenith"
	"github.com/zenith-tasks/zenith/internal/plans"
)

// Service is the ledger contract consumed by request handlers
type Service interface {
	GetBalance(ctx context.Context, userID string) (int64, error)
	CalculateUsageCost(modelID string, inputTokens, outputTokens int64) int64
	ConsumeCredits(ctx context.Context, userID string, amount int64, description string, metadata map[string]any) zenith.CreditResult
	AddCredits(ctx context.Context, userID string, amount int64, txType zenith.TransactionType, description string, metadata map[string]any) zenith.CreditResult
	GetTransactionHistory(ctx context.Context, userID string, limit int) []zenith.Transaction
	GetUsageStats(ctx context.Context, userID string) zenith.UsageStats
	UpdateSubscription(ctx context.Context, userID, planID string) error
}

var _ Service = (*Ledger)(nil)

// Ledger is an in-memory credit ledger. It is safe for concurrent use.
type Ledger struct {
	options *ledgerOptions

	mu       sync.RWMutex
	accounts map[string]*accountState
}

type accountState struct {
	mu           sync.RWMutex
	account      zenith.Account
	transactions []zenith.Transaction
}

// snapshot must be called with the account lock held
func (s *accountState) snapshot() zenith.Account {
	return cloneAccount(s.account)
}

// GetBalance returns the user's balance, creating the account with the
// initial grant if the user has not been seen before
func (l *Ledger) GetBalance(ctx context.Context, userID string) (int64, error) {
	if userID == "" {
		return 0, zenith.ErrInvalidUserID
	}

	state := l.getOrCreate(ctx, userID)

	state.mu.RLock()
	defer state.mu.RUnlock()
	return state.account.Balance, nil
}

// CalculateUsageCost returns the credit cost of a call to modelID
func (l *Ledger) CalculateUsageCost(modelID string, inputTokens, outputTokens int64) int64 {
	if l.options.Metrics != nil {
		l.options.Metrics.RecordCostCalculation(context.Background(), modelID)
	}
	return l.options.Pricing.CalculateUsageCost(modelID, inputTokens, outputTokens)
}

// ConsumeCredits debits amount from the user's balance if it covers it.
// An insufficient balance leaves the account untouched and is reported in
// the result.
func (l *Ledger) ConsumeCredits(ctx context.Context, userID string, amount int64, description string, metadata map[string]any) zenith.CreditResult {
	if userID == "" {
		return zenith.CreditResult{Err: zenith.ErrInvalidUserID}
	}
	if amount <= 0 {
		return zenith.CreditResult{NewBalance: l.peekBalance(userID), Err: zenith.ErrInvalidAmount}
	}

	state := l.getOrCreate(ctx, userID)

	state.mu.Lock()
	before := state.account.Balance
	if before < amount {
		state.mu.Unlock()

		l.options.Logger.Debug("Rejected debit for insufficient balance",
			"userID", userID,
			"balance", before,
			"amount", amount)
		if l.options.Metrics != nil {
			l.options.Metrics.RecordInsufficientBalance(ctx)
		}
		return zenith.CreditResult{NewBalance: before, Err: zenith.ErrInsufficientBalance}
	}

	now := l.options.Clock()
	state.account.Balance -= amount
	state.account.TotalUsed += amount
	state.account.UpdatedAt = now

	tx := zenith.Transaction{
		ID:           uuid.NewString(),
		UserID:       userID,
		Type:         zenith.TransactionTypeUsage,
		Amount:       -amount,
		Description:  description,
		Metadata:     maps.Clone(metadata),
		Timestamp:    now,
		BalanceAfter: state.account.Balance,
	}
	state.transactions = append(state.transactions, tx)
	account := state.snapshot()
	l.committed(ctx, account, &tx)
	state.mu.Unlock()

	if l.options.Metrics != nil {
		l.options.Metrics.RecordCreditsConsumed(ctx, amount, userID)
	}
	l.raiseAlerts(ctx, userID, before, account.Balance)

	return zenith.CreditResult{Success: true, NewBalance: account.Balance}
}

// AddCredits credits amount to the user's balance. txType must be purchase,
// bonus or refund.
func (l *Ledger) AddCredits(ctx context.Context, userID string, amount int64, txType zenith.TransactionType, description string, metadata map[string]any) zenith.CreditResult {
	if userID == "" {
		return zenith.CreditResult{Err: zenith.ErrInvalidUserID}
	}
	if amount <= 0 {
		return zenith.CreditResult{NewBalance: l.peekBalance(userID), Err: zenith.ErrInvalidAmount}
	}
	if !txType.IsCredit() {
		return zenith.CreditResult{
			NewBalance: l.peekBalance(userID),
			Err:        fmt.Errorf("%w: %q", zenith.ErrInvalidTransactionType, txType),
		}
	}

	state := l.getOrCreate(ctx, userID)

	state.mu.Lock()
	tx := l.applyCredit(state, amount, txType, description, metadata)
	account := state.snapshot()
	l.committed(ctx, account, &tx)
	state.mu.Unlock()

	if l.options.Metrics != nil {
		l.options.Metrics.RecordCreditsAdded(ctx, amount, string(txType))
	}

	return zenith.CreditResult{Success: true, NewBalance: account.Balance}
}

// applyCredit must be called with the account lock held
func (l *Ledger) applyCredit(state *accountState, amount int64, txType zenith.TransactionType, description string, metadata map[string]any) zenith.Transaction {
	now := l.options.Clock()
	state.account.Balance += amount
	switch txType {
	case zenith.TransactionTypeRefund:
		state.account.TotalRefunded += amount
	default:
		state.account.TotalPurchased += amount
	}
	state.account.UpdatedAt = now

	tx := zenith.Transaction{
		ID:           uuid.NewString(),
		UserID:       state.account.UserID,
		Type:         txType,
		Amount:       amount,
		Description:  description,
		Metadata:     maps.Clone(metadata),
		Timestamp:    now,
		BalanceAfter: state.account.Balance,
	}
	state.transactions = append(state.transactions, tx)
	return tx
}

// GetTransactionHistory returns up to limit transactions, most recent first.
// A limit of zero or less returns the full history.
func (l *Ledger) GetTransactionHistory(ctx context.Context, userID string, limit int) []zenith.Transaction {
	state := l.lookup(userID)
	if state == nil {
		return []zenith.Transaction{}
	}

	state.mu.RLock()
	defer state.mu.RUnlock()

	n := len(state.transactions)
	if limit > 0 && limit < n {
		n = limit
	}

	history := make([]zenith.Transaction, 0, n)
	for i := len(state.transactions) - 1; i >= 0 && len(history) < n; i-- {
		tx := state.transactions[i]
		tx.Metadata = maps.Clone(tx.Metadata)
		history = append(history, tx)
	}
	return history
}

// GetUsageStats summarizes the user's account. Unknown users are reported
// as a fresh account without creating one.
func (l *Ledger) GetUsageStats(ctx context.Context, userID string) zenith.UsageStats {
	state := l.lookup(userID)
	if state == nil {
		return zenith.UsageStats{CurrentBalance: l.options.InitialGrant}
	}

	state.mu.RLock()
	defer state.mu.RUnlock()

	account := state.snapshot()
	return zenith.UsageStats{
		CurrentBalance:   account.Balance,
		TotalUsed:        account.TotalUsed,
		TotalPurchased:   account.TotalPurchased,
		TotalRefunded:    account.TotalRefunded,
		TransactionCount: len(state.transactions),
		Subscription:     account.Subscription,
	}
}

// UpdateSubscription enrolls the user in planID. The balance is not changed;
// renewing plans grant their monthly credits through RenewSubscriptions.
func (l *Ledger) UpdateSubscription(ctx context.Context, userID, planID string) error {
	if userID == "" {
		return zenith.ErrInvalidUserID
	}
	plan, err := plans.Get(planID)
	if err != nil {
		return err
	}

	state := l.getOrCreate(ctx, userID)

	state.mu.Lock()
	now := l.options.Clock()
	sub := &zenith.Subscription{Plan: plan.ID, StartedAt: now}
	if plan.Renews() {
		renewsAt := plans.NextRenewal(now)
		sub.RenewsAt = &renewsAt
	}
	state.account.Subscription = sub
	state.account.UpdatedAt = now
	l.committed(ctx, state.snapshot(), nil)
	state.mu.Unlock()

	l.options.Logger.Info("Subscription updated", "userID", userID, "plan", plan.ID)
	return nil
}

// ClearData removes every account and transaction. Intended for tests.
func (l *Ledger) ClearData() {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.accounts = make(map[string]*accountState)
}

func (l *Ledger) lookup(userID string) *accountState {
	l.mu.RLock()
	defer l.mu.RUnlock()

	return l.accounts[userID]
}

func (l *Ledger) getOrCreate(ctx context.Context, userID string) *accountState {
	if state := l.lookup(userID); state != nil {
		return state
	}

	l.mu.Lock()
	if state, ok := l.accounts[userID]; ok {
		l.mu.Unlock()
		return state
	}

	now := l.options.Clock()
	state := &accountState{
		account: zenith.Account{
			UserID:       userID,
			Balance:      l.options.InitialGrant,
			InitialGrant: l.options.InitialGrant,
			CreatedAt:    now,
			UpdatedAt:    now,
		},
	}
	l.accounts[userID] = state
	l.committed(ctx, state.snapshot(), nil)
	l.mu.Unlock()

	l.options.Logger.Debug("Created credit account", "userID", userID, "balance", l.options.InitialGrant)
	return state
}

func (l *Ledger) peekBalance(userID string) int64 {
	state := l.lookup(userID)
	if state == nil {
		return l.options.InitialGrant
	}

	state.mu.RLock()
	defer state.mu.RUnlock()
	return state.account.Balance
}

// committed hands a mutation to the journal. Callers hold the lock that
// ordered the mutation so entries for one account are queued in commit
// order. Record never blocks.
func (l *Ledger) committed(ctx context.Context, account zenith.Account, tx *zenith.Transaction) {
	if l.options.Journal != nil {
		l.options.Journal.Record(ctx, account, tx)
	}
}

func (l *Ledger) raiseAlerts(ctx context.Context, userID string, before, after int64) {
	for _, threshold := range crossedThresholds(l.options.AlertThresholds, before, after) {
		l.options.Notifier.Notify(ctx, Alert{UserID: userID, Threshold: threshold, Balance: after})
		if l.options.Metrics != nil {
			l.options.Metrics.RecordBalanceAlert(ctx, threshold)
		}
	}
}

func cloneAccount(a zenith.Account) zenith.Account {
	if a.Subscription != nil {
		sub := *a.Subscription
		if sub.RenewsAt != nil {
			renewsAt := *sub.RenewsAt
			sub.RenewsAt = &renewsAt
		}
		a.Subscription = &sub
	}
	return a
}

func (l *Ledger) states() []*accountState {
	l.mu.RLock()
	defer l.mu.RUnlock()

	states := make([]*accountState, 0, len(l.accounts))
	for _, state := range l.accounts {
		states = append(states, state)
	}
	return states
}

