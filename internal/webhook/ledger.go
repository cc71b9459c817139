// AngelaMos | 2026
// ledger.go

package webhook

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/carterperez-dev/license-gate/internal/core"
)

// Ledger remembers which processor events have been fully applied. An event
// is marked processed only after its handler succeeds.
type Ledger interface {
	IsProcessed(ctx context.Context, eventID string) (bool, error)
	Record(ctx context.Context, eventID, eventType string, at time.Time) error
	MarkProcessed(ctx context.Context, eventID string, at time.Time) error
}

// Locker guards an event id against concurrent duplicate deliveries.
type Locker interface {
	Claim(ctx context.Context, key string, ttl time.Duration) (bool, error)
	Release(ctx context.Context, key string) error
}

type PostgresLedger struct {
	db core.DBTX
}

func NewPostgresLedger(db core.DBTX) *PostgresLedger {
	return &PostgresLedger{db: db}
}

func (l *PostgresLedger) IsProcessed(
	ctx context.Context,
	eventID string,
) (bool, error) {
	var processed bool
	err := l.db.GetContext(
		ctx,
		&processed,
		`SELECT processed_at IS NOT NULL FROM webhook_events WHERE id = $1`,
		eventID,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("ledger lookup: %w", err)
	}
	return processed, nil
}

func (l *PostgresLedger) Record(
	ctx context.Context,
	eventID, eventType string,
	at time.Time,
) error {
	_, err := l.db.ExecContext(ctx, `
		INSERT INTO webhook_events (id, type, received_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (id) DO NOTHING`,
		eventID, eventType, at,
	)
	if err != nil {
		return fmt.Errorf("ledger record: %w", err)
	}
	return nil
}

func (l *PostgresLedger) MarkProcessed(
	ctx context.Context,
	eventID string,
	at time.Time,
) error {
	_, err := l.db.ExecContext(ctx,
		`UPDATE webhook_events SET processed_at = $2 WHERE id = $1`,
		eventID, at,
	)
	if err != nil {
		return fmt.Errorf("ledger mark processed: %w", err)
	}
	return nil
}

type ledgerEntry struct {
	eventType   string
	receivedAt  time.Time
	processedAt *time.Time
}

type MemoryLedger struct {
	mu      sync.Mutex
	entries map[string]*ledgerEntry
}

func NewMemoryLedger() *MemoryLedger {
	return &MemoryLedger{entries: make(map[string]*ledgerEntry)}
}

func (l *MemoryLedger) IsProcessed(_ context.Context, eventID string) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	e, ok := l.entries[eventID]
	return ok && e.processedAt != nil, nil
}

func (l *MemoryLedger) Record(
	_ context.Context,
	eventID, eventType string,
	at time.Time,
) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if _, ok := l.entries[eventID]; !ok {
		l.entries[eventID] = &ledgerEntry{eventType: eventType, receivedAt: at}
	}
	return nil
}

func (l *MemoryLedger) MarkProcessed(
	_ context.Context,
	eventID string,
	at time.Time,
) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	e, ok := l.entries[eventID]
	if !ok {
		e = &ledgerEntry{receivedAt: at}
		l.entries[eventID] = e
	}
	e.processedAt = &at
	return nil
}

// memoryLocker is the single-process Locker used when Redis is not
// configured.
type memoryLocker struct {
	mu    sync.Mutex
	held  map[string]time.Time
	clock func() time.Time
}

func NewMemoryLocker() Locker {
	return &memoryLocker{held: make(map[string]time.Time), clock: time.Now}
}

func (l *memoryLocker) Claim(_ context.Context, key string, ttl time.Duration) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.clock()
	if exp, ok := l.held[key]; ok && now.Before(exp) {
		return false, nil
	}
	l.held[key] = now.Add(ttl)
	return true, nil
}

func (l *memoryLocker) Release(_ context.Context, key string) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	delete(l.held, key)
	return nil
}

var (
	_ Ledger = (*PostgresLedger)(nil)
	_ Ledger = (*MemoryLedger)(nil)
)
