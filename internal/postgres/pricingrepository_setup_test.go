// SPDX-FileCopyrightText: 2025 Mads R. Havmand <mads@v42.dk>
//
// SPDX-License-Identifier: AGPL-3.0-only

package postgres

import (
	"io"
	"log/slog"
	"testing"

	"github.com/pashagolub/pgxmock/v4"
)

func TestNewPricingRepository(t *testing.T) {
	discardLogger := slog.New(slog.NewTextHandler(io.Discard, nil))
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("failed to create mock pool: %v", err)
	}
	defer mock.Close()

	tests := []struct {
		name       string
		options    []PricingRepositoryOption
		wantLogger *slog.Logger
		wantDb     PgxPoolInterface
	}{
		{
			name:       "Create with default logger",
			options:    []PricingRepositoryOption{},
			wantLogger: slog.Default(),
		},
		{
			name:       "Create with custom logger and db",
			options:    []PricingRepositoryOption{WithPricingRepositoryLogger(discardLogger), WithPricingRepositoryDb(mock)},
			wantLogger: discardLogger,
			wantDb:     mock,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := NewPricingRepository(tt.options...)
			if err != nil {
				t.Fatalf("NewPricingRepository() error = %v", err)
			}
			if got.options.Logger != tt.wantLogger {
				t.Errorf("NewPricingRepository() logger = %v, want %v", got.options.Logger, tt.wantLogger)
			}
			if got.options.Db != tt.wantDb {
				t.Errorf("NewPricingRepository() db = %v, want %v", got.options.Db, tt.wantDb)
			}
		})
	}
}

func TestNewPricingRepository_GlobalOptions(t *testing.T) {
	inputLogger := slog.New(slog.NewTextHandler(io.Discard, nil))

	GlobalPricingRepositoryOptions = []PricingRepositoryOption{
		WithPricingRepositoryLogger(inputLogger),
	}
	got1, _ := NewPricingRepository()
	got2, _ := NewPricingRepository()
	if got1.options.Logger != inputLogger || got2.options.Logger != inputLogger {
		t.Errorf("NewPricingRepository() did not apply global logger")
	}

	GlobalPricingRepositoryOptions = []PricingRepositoryOption{}
	got3, _ := NewPricingRepository()
	if got3.options.Logger == inputLogger {
		t.Errorf("NewPricingRepository() = %v, want %v", got3.options.Logger, slog.Default())
	}
}
