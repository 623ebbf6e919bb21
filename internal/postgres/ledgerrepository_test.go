// SPDX-FileCopyrightText: 2025 Mads R. Havmand <mads@v42.dk>
//
// SPDX-License-Identifier: AGPL-3.0-only

package postgres

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/zenith-tasks/zenith"
)

var accountRowColumns = []string{
	"user_id", "balance", "initial_grant", "total_used", "total_purchased", "total_refunded",
	"subscription_plan", "subscription_started_at", "subscription_renews_at",
	"created_at", "updated_at",
}

var transactionRowColumns = []string{
	"id", "user_id", "type", "amount", "description", "metadata", "timestamp", "balance_after",
}

func testAccount(now time.Time) *zenith.Account {
	return &zenith.Account{
		UserID:         "user-123",
		Balance:        80,
		InitialGrant:   100,
		TotalUsed:      20,
		TotalPurchased: 0,
		TotalRefunded:  0,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
}

func TestLedgerRepository_ListAccounts(t *testing.T) {
	t.Run("success", func(t *testing.T) {
		mock, err := pgxmock.NewPool()
		require.NoError(t, err)
		defer mock.Close()

		now := time.Now()
		plan := "team"
		renewsAt := now.AddDate(0, 1, 0)
		rows := pgxmock.NewRows(accountRowColumns).
			AddRow("a", int64(10), int64(100), int64(90), int64(0), int64(0),
				(*string)(nil), (*time.Time)(nil), (*time.Time)(nil), now, now).
			AddRow("b", int64(150), int64(100), int64(0), int64(50), int64(0),
				&plan, &now, &renewsAt, now, now)
		mock.ExpectQuery(`SELECT (.+) FROM credit_accounts ORDER BY user_id`).
			WillReturnRows(rows)

		repo, err := NewLedgerRepository(WithLedgerRepositoryDb(mock))
		require.NoError(t, err)
		accounts, err := repo.ListAccounts(context.Background())
		require.NoError(t, err)
		require.Len(t, accounts, 2)

		assert.Equal(t, "a", accounts[0].UserID)
		assert.Nil(t, accounts[0].Subscription)

		assert.Equal(t, int64(50), accounts[1].TotalPurchased)
		require.NotNil(t, accounts[1].Subscription)
		assert.Equal(t, "team", accounts[1].Subscription.Plan)
		assert.Equal(t, now, accounts[1].Subscription.StartedAt)
		require.NotNil(t, accounts[1].Subscription.RenewsAt)
		assert.Equal(t, renewsAt, *accounts[1].Subscription.RenewsAt)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("database error", func(t *testing.T) {
		mock, err := pgxmock.NewPool()
		require.NoError(t, err)
		defer mock.Close()

		mock.ExpectQuery(`SELECT (.+) FROM credit_accounts`).
			WillReturnError(errors.New("database connection failed"))

		repo, err := NewLedgerRepository(WithLedgerRepositoryDb(mock))
		require.NoError(t, err)
		_, err = repo.ListAccounts(context.Background())
		assert.ErrorContains(t, err, "database connection failed")
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestLedgerRepository_ListTransactions(t *testing.T) {
	t.Run("success", func(t *testing.T) {
		mock, err := pgxmock.NewPool()
		require.NoError(t, err)
		defer mock.Close()

		now := time.Now()
		rows := pgxmock.NewRows(transactionRowColumns).
			AddRow("tx-1", "a", "purchase", int64(50), "top-up",
				[]byte(nil), now.Add(-time.Minute), int64(150)).
			AddRow("tx-2", "a", "usage", int64(-20), "chat",
				[]byte(`{"provider":"openrouter","attempts":2}`), now, int64(130))
		mock.ExpectQuery(`SELECT (.+) FROM credit_transactions ORDER BY seq ASC`).
			WillReturnRows(rows)

		repo, err := NewLedgerRepository(WithLedgerRepositoryDb(mock))
		require.NoError(t, err)
		txs, err := repo.ListTransactions(context.Background())
		require.NoError(t, err)
		require.Len(t, txs, 2)

		assert.Nil(t, txs[0].Metadata)
		assert.Equal(t, zenith.TransactionTypeUsage, txs[1].Type)
		assert.Equal(t, "openrouter", txs[1].Metadata["provider"])
		assert.Equal(t, float64(2), txs[1].Metadata["attempts"])
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("invalid metadata", func(t *testing.T) {
		mock, err := pgxmock.NewPool()
		require.NoError(t, err)
		defer mock.Close()

		rows := pgxmock.NewRows(transactionRowColumns).
			AddRow("tx-1", "a", "usage", int64(-1), "", []byte(`{not json`), time.Now(), int64(99))
		mock.ExpectQuery(`SELECT (.+) FROM credit_transactions`).
			WillReturnRows(rows)

		repo, err := NewLedgerRepository(WithLedgerRepositoryDb(mock))
		require.NoError(t, err)
		_, err = repo.ListTransactions(context.Background())
		assert.ErrorContains(t, err, "failed to unmarshal transaction metadata")
	})
}

func TestLedgerRepository_SaveMutation(t *testing.T) {
	now := time.Now()
	tx := &zenith.Transaction{
		ID:           "tx-1",
		UserID:       "user-123",
		Type:         zenith.TransactionTypeUsage,
		Amount:       -20,
		Description:  "chat",
		Metadata:     map[string]any{"provider": "openai"},
		Timestamp:    now,
		BalanceAfter: 80,
	}

	anyAccountArgs := []any{
		pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(),
		pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(),
		pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(),
	}
	anyTransactionArgs := []any{
		pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(),
		pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(),
	}

	t.Run("account and transaction", func(t *testing.T) {
		mock, err := pgxmock.NewPool()
		require.NoError(t, err)
		defer mock.Close()

		renewsAt := now.AddDate(0, 1, 0)
		account := testAccount(now)
		account.Subscription = &zenith.Subscription{Plan: "pro", StartedAt: now, RenewsAt: &renewsAt}

		mock.ExpectBegin()
		mock.ExpectExec(`INSERT INTO credit_accounts`).
			WithArgs(
				account.UserID,
				account.Balance,
				account.InitialGrant,
				account.TotalUsed,
				account.TotalPurchased,
				account.TotalRefunded,
				&account.Subscription.Plan,
				&account.Subscription.StartedAt,
				&renewsAt,
				account.CreatedAt,
				account.UpdatedAt,
			).
			WillReturnResult(pgxmock.NewResult("INSERT", 1))
		mock.ExpectExec(`INSERT INTO credit_transactions`).
			WithArgs("tx-1", "user-123", "usage", int64(-20), "chat",
				[]byte(`{"provider":"openai"}`), now, int64(80)).
			WillReturnResult(pgxmock.NewResult("INSERT", 1))
		mock.ExpectCommit()

		repo, err := NewLedgerRepository(WithLedgerRepositoryDb(mock))
		require.NoError(t, err)
		assert.NoError(t, repo.SaveMutation(context.Background(), account, tx))
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("account only", func(t *testing.T) {
		mock, err := pgxmock.NewPool()
		require.NoError(t, err)
		defer mock.Close()

		mock.ExpectBegin()
		mock.ExpectExec(`INSERT INTO credit_accounts`).WithArgs(anyAccountArgs...).
			WillReturnResult(pgxmock.NewResult("INSERT", 1))
		mock.ExpectCommit()

		repo, err := NewLedgerRepository(WithLedgerRepositoryDb(mock))
		require.NoError(t, err)
		assert.NoError(t, repo.SaveMutation(context.Background(), testAccount(now), nil))
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("duplicate transaction rolls back", func(t *testing.T) {
		mock, err := pgxmock.NewPool()
		require.NoError(t, err)
		defer mock.Close()

		mock.ExpectBegin()
		mock.ExpectExec(`INSERT INTO credit_accounts`).WithArgs(anyAccountArgs...).
			WillReturnResult(pgxmock.NewResult("INSERT", 1))
		mock.ExpectExec(`INSERT INTO credit_transactions`).WithArgs(anyTransactionArgs...).
			WillReturnError(&pgconn.PgError{Code: "23505"})
		mock.ExpectRollback()

		repo, err := NewLedgerRepository(WithLedgerRepositoryDb(mock))
		require.NoError(t, err)
		err = repo.SaveMutation(context.Background(), testAccount(now), tx)
		assert.ErrorIs(t, err, zenith.ErrDuplicateEntry)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("account upsert fails", func(t *testing.T) {
		mock, err := pgxmock.NewPool()
		require.NoError(t, err)
		defer mock.Close()

		mock.ExpectBegin()
		mock.ExpectExec(`INSERT INTO credit_accounts`).WithArgs(anyAccountArgs...).
			WillReturnError(errors.New("check constraint violated"))
		mock.ExpectRollback()

		repo, err := NewLedgerRepository(WithLedgerRepositoryDb(mock))
		require.NoError(t, err)
		err = repo.SaveMutation(context.Background(), testAccount(now), tx)
		assert.ErrorContains(t, err, "failed to upsert account")
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("begin fails", func(t *testing.T) {
		mock, err := pgxmock.NewPool()
		require.NoError(t, err)
		defer mock.Close()

		mock.ExpectBegin().WillReturnError(errors.New("pool exhausted"))

		repo, err := NewLedgerRepository(WithLedgerRepositoryDb(mock))
		require.NoError(t, err)
		err = repo.SaveMutation(context.Background(), testAccount(now), tx)
		assert.ErrorContains(t, err, "failed to begin transaction")
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}
