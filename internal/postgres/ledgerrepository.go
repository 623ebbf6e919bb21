// SPDX-FileCopyrightText: 2025 Mads R. Havmand <mads@v42.dk>
//
// SPDX-License-Identifier: AGPL-3.0-only

package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/zenith-tasks/zenith"
)

const accountColumns = `user_id, balance, initial_grant, total_used, total_purchased, total_refunded,
			subscription_plan, subscription_started_at, subscription_renews_at,
			created_at, updated_at`

const transactionColumns = `id, user_id, type, amount, description, metadata, timestamp, balance_after`

const upsertAccountQuery = `
		INSERT INTO credit_accounts (` + accountColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		ON CONFLICT (user_id) DO UPDATE SET
			balance = EXCLUDED.balance,
			total_used = EXCLUDED.total_used,
			total_purchased = EXCLUDED.total_purchased,
			total_refunded = EXCLUDED.total_refunded,
			subscription_plan = EXCLUDED.subscription_plan,
			subscription_started_at = EXCLUDED.subscription_started_at,
			subscription_renews_at = EXCLUDED.subscription_renews_at,
			updated_at = EXCLUDED.updated_at`

const insertTransactionQuery = `
		INSERT INTO credit_transactions (` + transactionColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`

// ListAccounts retrieves all accounts ordered by user ID
func (r *LedgerRepository) ListAccounts(ctx context.Context) ([]*zenith.Account, error) {
	query := `SELECT ` + accountColumns + ` FROM credit_accounts ORDER BY user_id`

	rows, err := r.options.Db.Query(ctx, query)
	if err != nil {
		r.options.Logger.Error("Failed to list credit accounts", "error", err)
		return nil, err
	}
	defer rows.Close()

	var accounts []*zenith.Account
	for rows.Next() {
		account, err := scanAccount(rows)
		if err != nil {
			r.options.Logger.Error("Failed to scan credit account row", "error", err)
			return nil, err
		}
		accounts = append(accounts, account)
	}

	if err := rows.Err(); err != nil {
		r.options.Logger.Error("Error iterating credit account rows", "error", err)
		return nil, err
	}

	return accounts, nil
}

// ListTransactions retrieves every transaction in insertion order
func (r *LedgerRepository) ListTransactions(ctx context.Context) ([]*zenith.Transaction, error) {
	query := `SELECT ` + transactionColumns + ` FROM credit_transactions ORDER BY seq ASC`

	rows, err := r.options.Db.Query(ctx, query)
	if err != nil {
		r.options.Logger.Error("Failed to list credit transactions", "error", err)
		return nil, err
	}
	return r.collectTransactions(rows)
}

// SaveMutation upserts the account and, when tx is non-nil, appends the
// transaction within a single database transaction
func (r *LedgerRepository) SaveMutation(ctx context.Context, account *zenith.Account, tx *zenith.Transaction) error {
	dbTx, err := r.options.Db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}

	if err := upsertAccount(ctx, dbTx, account); err != nil {
		_ = dbTx.Rollback(ctx)
		return fmt.Errorf("failed to upsert account: %w", err)
	}

	if tx != nil {
		if err := insertTransaction(ctx, dbTx, tx); err != nil {
			_ = dbTx.Rollback(ctx)
			return fmt.Errorf("failed to insert transaction: %w", err)
		}
	}

	if err := dbTx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

func (r *LedgerRepository) collectTransactions(rows pgx.Rows) ([]*zenith.Transaction, error) {
	defer rows.Close()

	var transactions []*zenith.Transaction
	for rows.Next() {
		tx, err := scanTransaction(rows)
		if err != nil {
			r.options.Logger.Error("Failed to scan credit transaction row", "error", err)
			return nil, err
		}
		transactions = append(transactions, tx)
	}

	if err := rows.Err(); err != nil {
		r.options.Logger.Error("Error iterating credit transaction rows", "error", err)
		return nil, err
	}

	return transactions, nil
}

func upsertAccount(ctx context.Context, db execer, account *zenith.Account) error {
	var plan *string
	var startedAt, renewsAt *time.Time
	if sub := account.Subscription; sub != nil {
		plan = &sub.Plan
		startedAt = &sub.StartedAt
		renewsAt = sub.RenewsAt
	}

	_, err := db.Exec(ctx, upsertAccountQuery,
		account.UserID,
		account.Balance,
		account.InitialGrant,
		account.TotalUsed,
		account.TotalPurchased,
		account.TotalRefunded,
		plan,
		startedAt,
		renewsAt,
		account.CreatedAt,
		account.UpdatedAt,
	)
	return err
}

func insertTransaction(ctx context.Context, db execer, tx *zenith.Transaction) error {
	var metadata []byte
	if len(tx.Metadata) > 0 {
		var err error
		metadata, err = json.Marshal(tx.Metadata)
		if err != nil {
			return fmt.Errorf("failed to marshal transaction metadata: %w", err)
		}
	}

	_, err := db.Exec(ctx, insertTransactionQuery,
		tx.ID,
		tx.UserID,
		string(tx.Type),
		tx.Amount,
		tx.Description,
		metadata,
		tx.Timestamp,
		tx.BalanceAfter,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return zenith.ErrDuplicateEntry
		}
		return err
	}
	return nil
}

func scanAccount(row pgx.Row) (*zenith.Account, error) {
	var account zenith.Account
	var plan *string
	var startedAt, renewsAt *time.Time

	err := row.Scan(
		&account.UserID,
		&account.Balance,
		&account.InitialGrant,
		&account.TotalUsed,
		&account.TotalPurchased,
		&account.TotalRefunded,
		&plan,
		&startedAt,
		&renewsAt,
		&account.CreatedAt,
		&account.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	if plan != nil {
		sub := &zenith.Subscription{Plan: *plan, RenewsAt: renewsAt}
		if startedAt != nil {
			sub.StartedAt = *startedAt
		}
		account.Subscription = sub
	}
	return &account, nil
}

func scanTransaction(row pgx.Row) (*zenith.Transaction, error) {
	var tx zenith.Transaction
	var txType string
	var metadata []byte

	err := row.Scan(
		&tx.ID,
		&tx.UserID,
		&txType,
		&tx.Amount,
		&tx.Description,
		&metadata,
		&tx.Timestamp,
		&tx.BalanceAfter,
	)
	if err != nil {
		return nil, err
	}

	tx.Type = zenith.TransactionType(txType)
	if len(metadata) > 0 {
		if err := json.Unmarshal(metadata, &tx.Metadata); err != nil {
			return nil, fmt.Errorf("failed to unmarshal transaction metadata: %w", err)
		}
	}
	return &tx, nil
}
