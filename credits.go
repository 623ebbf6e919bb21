// SPDX-FileCopyrightText: 2025 Mads R. Havmand <mads@v42.dk>
//
// SPDX-License-Identifier: AGPL-3.0-only

package zenith

import (
	"context"
	"time"
)

// TransactionType classifies a balance change
type TransactionType string

const (
	TransactionTypeUsage    TransactionType = "usage"
	TransactionTypePurchase TransactionType = "purchase"
	TransactionTypeBonus    TransactionType = "bonus"
	TransactionTypeRefund   TransactionType = "refund"
)

// IsCredit reports whether the type adds credits to an account
func (t TransactionType) IsCredit() bool {
	switch t {
	case TransactionTypePurchase, TransactionTypeBonus, TransactionTypeRefund:
		return true
	default:
		return false
	}
}

// Valid reports whether the type is one of the known transaction types
func (t TransactionType) Valid() bool {
	return t == TransactionTypeUsage || t.IsCredit()
}

// Subscription describes the plan an account is enrolled in
type Subscription struct {
	Plan      string     `json:"plan"`
	StartedAt time.Time  `json:"startedAt"`
	RenewsAt  *time.Time `json:"renewsAt,omitempty"`
}

// Account holds the spendable credit balance of a single user
type Account struct {
	UserID         string        `json:"userId"`
	Balance        int64         `json:"balance"`
	InitialGrant   int64         `json:"initialGrant"`
	TotalUsed      int64         `json:"totalUsed"`
	TotalPurchased int64         `json:"totalPurchased"`
	TotalRefunded  int64         `json:"totalRefunded"`
	Subscription   *Subscription `json:"subscription,omitempty"`
	CreatedAt      time.Time     `json:"createdAt"`
	UpdatedAt      time.Time     `json:"updatedAt"`
}

// Transaction is an immutable record of one balance change.
// Amount is negative for usage and positive for credits.
type Transaction struct {
	ID           string          `json:"id"`
	UserID       string          `json:"userId"`
	Type         TransactionType `json:"type"`
	Amount       int64           `json:"amount"`
	Description  string          `json:"description"`
	Metadata     map[string]any  `json:"metadata,omitempty"`
	Timestamp    time.Time       `json:"timestamp"`
	BalanceAfter int64           `json:"balanceAfter"`
}

// UsageStats is a read-only summary of an account
type UsageStats struct {
	CurrentBalance   int64         `json:"currentBalance"`
	TotalUsed        int64         `json:"totalUsed"`
	TotalPurchased   int64         `json:"totalPurchased"`
	TotalRefunded    int64         `json:"totalRefunded"`
	TransactionCount int           `json:"transactionCount"`
	Subscription     *Subscription `json:"subscription,omitempty"`
}

// CreditResult is the outcome of a debit or credit.
// Business failures such as an insufficient balance are carried in Err
// rather than returned as a Go error.
type CreditResult struct {
	Success    bool  `json:"success"`
	NewBalance int64 `json:"newBalance"`
	Err        error `json:"-"`
}

// AccountRepository defines persistence operations for credit accounts
type AccountRepository interface {
	// ListAccounts retrieves all accounts
	ListAccounts(ctx context.Context) ([]*Account, error)
}

// TransactionRepository defines persistence operations for ledger transactions
type TransactionRepository interface {
	// ListTransactions retrieves every transaction in insertion order
	ListTransactions(ctx context.Context) ([]*Transaction, error)
}

// LedgerRepository persists ledger mutations. Writes go through SaveMutation
// only, so an account and its transaction are never stored separately.
type LedgerRepository interface {
	AccountRepository
	TransactionRepository

	// SaveMutation upserts the account and, when tx is non-nil, appends the
	// transaction within a single database transaction
	SaveMutation(ctx context.Context, account *Account, tx *Transaction) error
}
