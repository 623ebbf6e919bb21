// SPDX-FileCopyrightText: 2025 Mads R. Havmand <mads@v42.dk>
//
// SPDX-License-Identifier: AGPL-3.0-only

package zenith

import "errors"

var (
	// ErrNotFound should be returned when a requested resource cannot be found
	ErrNotFound = errors.New("not found")

	// ErrDuplicateEntry should be returned when a resource would violate unique constraints
	ErrDuplicateEntry = errors.New("duplicate entry")

	// ErrInsufficientBalance is reported when an account cannot cover a debit
	ErrInsufficientBalance = errors.New("insufficient balance")

	// ErrInvalidAmount is reported for zero or negative credit amounts
	ErrInvalidAmount = errors.New("amount must be positive")

	// ErrInvalidUserID is reported when an operation is attempted without a user identifier
	ErrInvalidUserID = errors.New("user id must not be empty")

	// ErrInvalidTransactionType is reported when a credit is added with a type other than purchase, bonus or refund
	ErrInvalidTransactionType = errors.New("invalid transaction type")

	// ErrUnknownPlan is reported when a subscription references a plan that is not in the catalog
	ErrUnknownPlan = errors.New("unknown plan")

	// ErrInconsistentLedger is reported when persisted balances disagree with their transaction history
	ErrInconsistentLedger = errors.New("ledger is inconsistent")
)
