// SPDX-FileCopyrightText: 2025 Mads R. Havmand <mads@v42.dk>
//
// SPDX-License-Identifier: AGPL-3.0-only

package ledger

import (
	"context"
	"log/slog"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/zenith-tasks/zenith"
	"github.com/zenith-tasks/zenith/internal/monitoring"
)

const defaultJournalQueueSize = 1000

// journalEntry is one committed ledger mutation awaiting persistence
type journalEntry struct {
	account zenith.Account
	tx      *zenith.Transaction
}

// Journal persists committed ledger mutations in the background, in commit order.
//
// Each entry carries a full account snapshot, so losing an account-only entry
// is repaired by the next one. Losing a transaction is not: a later snapshot
// would persist a balance that the stored history cannot explain. Once a
// transaction of a user is dropped or fails to write, that user is diverged
// and none of its later mutations are persisted until the process restarts
// from the last consistent state.
type Journal struct {
	repo         zenith.LedgerRepository
	logger       *slog.Logger
	metrics      *monitoring.CreditMetrics
	writeTimeout time.Duration

	entriesCh chan journalEntry
	done      chan struct{}
	stopped   chan struct{}

	mu      sync.RWMutex
	closed  bool
	dropped atomic.Int64

	divergedMu sync.Mutex
	diverged   map[string]struct{}

	// failed is owned by the worker
	failed map[string]struct{}
}

// JournalOption configures Journal behavior
type JournalOption func(*Journal)

// WithJournalLogger sets the logger for the journal
func WithJournalLogger(logger *slog.Logger) JournalOption {
	return func(j *Journal) {
		j.logger = logger
	}
}

// WithJournalMetrics sets the metrics for the journal
func WithJournalMetrics(metrics *monitoring.CreditMetrics) JournalOption {
	return func(j *Journal) {
		j.metrics = metrics
	}
}

// WithJournalQueueSize sets how many entries may wait before new ones are
// dropped. Non-positive sizes keep the default.
func WithJournalQueueSize(size int) JournalOption {
	return func(j *Journal) {
		if size > 0 {
			j.entriesCh = make(chan journalEntry, size)
		}
	}
}

// WithJournalWriteTimeout sets the timeout for a single write
func WithJournalWriteTimeout(timeout time.Duration) JournalOption {
	return func(j *Journal) {
		j.writeTimeout = timeout
	}
}

// NewJournal creates a journal and starts its background writer
func NewJournal(repo zenith.LedgerRepository, options ...JournalOption) *Journal {
	j := &Journal{
		repo:         repo,
		logger:       slog.Default(),
		writeTimeout: 5 * time.Second,
		entriesCh:    make(chan journalEntry, defaultJournalQueueSize),
		done:         make(chan struct{}),
		stopped:      make(chan struct{}),
		diverged:     make(map[string]struct{}),
		failed:       make(map[string]struct{}),
	}

	for _, opt := range options {
		opt(j)
	}

	go j.processEntries()

	return j
}

// Record queues a mutation without blocking. tx may be nil for account-only changes.
func (j *Journal) Record(ctx context.Context, account zenith.Account, tx *zenith.Transaction) {
	j.mu.RLock()
	defer j.mu.RUnlock()

	if j.closed {
		j.logger.Warn("Journal closed, dropping ledger mutation", "userID", account.UserID)
		j.drop(ctx)
		return
	}

	if j.isDiverged(account.UserID) {
		j.logger.Debug("Skipping ledger mutation of diverged account", "userID", account.UserID)
		j.drop(ctx)
		return
	}

	select {
	case j.entriesCh <- journalEntry{account: account, tx: tx}:
		if j.metrics != nil {
			j.metrics.UpdateJournalQueueSize(ctx, int64(len(j.entriesCh)))
		}
	default:
		j.logger.Warn("Journal queue full, dropping ledger mutation", "userID", account.UserID)
		j.drop(ctx)
		if tx != nil {
			j.diverge(account.UserID, tx.ID)
		}
	}
}

// Dropped returns how many mutations were not persisted
func (j *Journal) Dropped() int64 {
	return j.dropped.Load()
}

// Diverged returns the users whose persisted history stopped at a lost transaction
func (j *Journal) Diverged() []string {
	j.divergedMu.Lock()
	defer j.divergedMu.Unlock()

	users := make([]string, 0, len(j.diverged))
	for userID := range j.diverged {
		users = append(users, userID)
	}
	slices.Sort(users)
	return users
}

func (j *Journal) drop(ctx context.Context) {
	j.dropped.Add(1)
	if j.metrics != nil {
		j.metrics.RecordJournalDropped(ctx)
	}
}

func (j *Journal) isDiverged(userID string) bool {
	j.divergedMu.Lock()
	defer j.divergedMu.Unlock()
	_, ok := j.diverged[userID]
	return ok
}

func (j *Journal) diverge(userID, transactionID string) {
	j.divergedMu.Lock()
	_, already := j.diverged[userID]
	j.diverged[userID] = struct{}{}
	j.divergedMu.Unlock()

	if !already {
		j.logger.Error("Ledger transaction lost, no longer persisting account",
			"userID", userID,
			"transactionID", transactionID)
	}
}

// processEntries runs in a background goroutine to persist mutations
func (j *Journal) processEntries() {
	defer close(j.stopped)

	for {
		select {
		case entry := <-j.entriesCh:
			j.write(entry)

		case <-j.done:
			j.logger.Info("Journal shutting down, flushing pending mutations", "pending", len(j.entriesCh))

			for {
				select {
				case entry := <-j.entriesCh:
					j.write(entry)
				default:
					return
				}
			}
		}
	}
}

func (j *Journal) write(entry journalEntry) {
	ctx, cancel := context.WithTimeout(context.Background(), j.writeTimeout)
	defer cancel()

	// Entries queued behind a failed transaction
	if _, ok := j.failed[entry.account.UserID]; ok {
		j.drop(ctx)
		return
	}

	if err := j.repo.SaveMutation(ctx, &entry.account, entry.tx); err != nil {
		j.logger.Error("Failed to persist ledger mutation",
			"error", err,
			"userID", entry.account.UserID)
		if j.metrics != nil {
			j.metrics.RecordJournalWriteError(ctx, "save_mutation")
		}
		if entry.tx != nil {
			j.failed[entry.account.UserID] = struct{}{}
			j.diverge(entry.account.UserID, entry.tx.ID)
		}
		return
	}

	if entry.tx != nil {
		j.logger.Debug("Ledger mutation persisted",
			"userID", entry.account.UserID,
			"transactionID", entry.tx.ID,
			"type", entry.tx.Type,
			"amount", entry.tx.Amount)
	}
}

// Close stops accepting mutations and waits for queued ones to be written
func (j *Journal) Close() {
	j.mu.Lock()
	if j.closed {
		j.mu.Unlock()
		<-j.stopped
		return
	}
	j.closed = true
	close(j.done)
	j.mu.Unlock()

	<-j.stopped
	j.logger.Info("Journal stopped")
}
