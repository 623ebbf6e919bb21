// SPDX-FileCopyrightText: 2025 Mads R. Havmand <mads@v42.dk>
//
// SPDX-License-Identifier: AGPL-3.0-only

package ledger

import (
	"cmp"
	"context"
	"fmt"
	"maps"
	"slices"
	"time"

	"github.com/zenith-tasks/zenith"
	"github.com/zenith-tasks/zenith/internal/plans"
)

// Discrepancy describes an account whose balance does not match its history
type Discrepancy struct {
	UserID   string
	Balance  int64
	Expected int64
	Reason   string
}

// RenewSubscriptions grants the monthly credits of every subscription due at
// or before now and moves its renewal date past now. A due subscription whose
// plan is unknown or grants no credits has its renewal date cleared. It
// returns the number of accounts renewed.
func (l *Ledger) RenewSubscriptions(ctx context.Context, now time.Time) (int, error) {
	renewed := 0
	for _, state := range l.states() {
		if err := ctx.Err(); err != nil {
			return renewed, err
		}

		state.mu.Lock()
		sub := state.account.Subscription
		if sub == nil || sub.RenewsAt == nil || sub.RenewsAt.After(now) {
			state.mu.Unlock()
			continue
		}

		plan, err := plans.Get(sub.Plan)
		if err != nil || !plan.Renews() {
			// Nothing to grant, stop scheduling renewals for it
			state.account.Subscription = &zenith.Subscription{
				Plan:      sub.Plan,
				StartedAt: sub.StartedAt,
			}
			state.account.UpdatedAt = l.options.Clock()
			account := state.snapshot()
			l.committed(ctx, account, nil)
			state.mu.Unlock()
			l.options.Logger.Warn("Cleared renewal of subscription without monthly credits",
				"userID", account.UserID,
				"plan", sub.Plan)
			continue
		}

		tx := l.applyCredit(state, plan.MonthlyCredits, zenith.TransactionTypeBonus,
			fmt.Sprintf("Monthly %s plan credits", plan.Name),
			map[string]any{"plan": plan.ID, "renewedAt": now.UTC().Format(time.RFC3339)})

		next := *sub.RenewsAt
		for !next.After(now) {
			next = plans.NextRenewal(next)
		}
		state.account.Subscription = &zenith.Subscription{
			Plan:      sub.Plan,
			StartedAt: sub.StartedAt,
			RenewsAt:  &next,
		}
		account := state.snapshot()
		l.committed(ctx, account, &tx)
		state.mu.Unlock()

		renewed++
		if l.options.Metrics != nil {
			l.options.Metrics.RecordSubscriptionRenewal(ctx, plan.ID)
			l.options.Metrics.RecordCreditsAdded(ctx, plan.MonthlyCredits, string(zenith.TransactionTypeBonus))
		}
		l.options.Logger.Info("Subscription renewed",
			"userID", account.UserID,
			"plan", plan.ID,
			"credits", plan.MonthlyCredits,
			"renewsAt", next)
	}

	return renewed, nil
}

// Reconcile checks every account against its counters and its transaction
// history. The result is sorted by user ID.
func (l *Ledger) Reconcile(ctx context.Context) []Discrepancy {
	var discrepancies []Discrepancy

	for _, state := range l.states() {
		state.mu.RLock()
		d, ok := audit(state.account, state.transactions)
		state.mu.RUnlock()
		if !ok {
			discrepancies = append(discrepancies, d)
		}
	}

	slices.SortFunc(discrepancies, func(a, b Discrepancy) int {
		return cmp.Compare(a.UserID, b.UserID)
	})

	for _, d := range discrepancies {
		l.options.Logger.Error("Ledger discrepancy",
			"userID", d.UserID,
			"balance", d.Balance,
			"expected", d.Expected,
			"reason", d.Reason)
	}
	if l.options.Metrics != nil {
		l.options.Metrics.UpdateReconcileDiscrepancies(ctx, int64(len(discrepancies)))
	}

	return discrepancies
}

// audit checks an account against its lifetime counters and its transaction
// history, in that order, and reports the first mismatch.
func audit(account zenith.Account, transactions []zenith.Transaction) (Discrepancy, bool) {
	replayed := account.InitialGrant
	for _, tx := range transactions {
		replayed += tx.Amount
	}
	counters := account.InitialGrant + account.TotalPurchased + account.TotalRefunded - account.TotalUsed

	d := Discrepancy{UserID: account.UserID, Balance: account.Balance}
	switch {
	case account.Balance < 0:
		d.Reason = "negative balance"
	case account.Balance != counters:
		d.Expected, d.Reason = counters, "balance does not match lifetime totals"
	case account.Balance != replayed:
		d.Expected, d.Reason = replayed, "balance does not match transaction history"
	case len(transactions) > 0 && transactions[len(transactions)-1].BalanceAfter != account.Balance:
		d.Expected, d.Reason = transactions[len(transactions)-1].BalanceAfter, "balance does not match last transaction"
	default:
		return Discrepancy{}, true
	}
	return d, false
}

// Restore replaces the in-memory state with previously persisted accounts and
// transactions. Transactions must be in insertion order. Transactions whose
// account is missing are skipped. Every restored account must agree with
// its counters and its history, otherwise nothing is replaced and the error
// wraps zenith.ErrInconsistentLedger. Restore does not write to the journal.
func (l *Ledger) Restore(ctx context.Context, accounts []*zenith.Account, transactions []*zenith.Transaction) error {
	restored := make(map[string]*accountState, len(accounts))
	for _, account := range accounts {
		if account == nil || account.UserID == "" {
			return fmt.Errorf("cannot restore account: %w", zenith.ErrInvalidUserID)
		}
		if account.Balance < 0 {
			return fmt.Errorf("cannot restore account %q with negative balance", account.UserID)
		}
		restored[account.UserID] = &accountState{account: cloneAccount(*account)}
	}

	skipped := 0
	for _, tx := range transactions {
		if tx == nil {
			continue
		}
		state, ok := restored[tx.UserID]
		if !ok {
			skipped++
			continue
		}
		if !tx.Type.Valid() {
			return fmt.Errorf("cannot restore transaction %q: %w", tx.ID, zenith.ErrInvalidTransactionType)
		}
		copied := *tx
		copied.Metadata = maps.Clone(tx.Metadata)
		state.transactions = append(state.transactions, copied)
	}

	for _, state := range restored {
		if d, ok := audit(state.account, state.transactions); !ok {
			return fmt.Errorf("cannot restore account %q: %s (balance %d, expected %d): %w",
				d.UserID, d.Reason, d.Balance, d.Expected, zenith.ErrInconsistentLedger)
		}
	}

	l.mu.Lock()
	l.accounts = restored
	l.mu.Unlock()

	l.options.Logger.InfoContext(ctx, "Ledger restored",
		"accounts", len(restored),
		"transactions", len(transactions)-skipped,
		"skipped", skipped)
	return nil
}

// Hydrate loads accounts and transactions from repo and restores them
func (l *Ledger) Hydrate(ctx context.Context, repo zenith.LedgerRepository) error {
	accounts, err := repo.ListAccounts(ctx)
	if err != nil {
		return fmt.Errorf("failed to list accounts: %w", err)
	}
	transactions, err := repo.ListTransactions(ctx)
	if err != nil {
		return fmt.Errorf("failed to list transactions: %w", err)
	}
	return l.Restore(ctx, accounts, transactions)
}
