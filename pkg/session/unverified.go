package session

import (
	"context"
	"database/sql"
	"fmt"
)

// Unverified is a raw transaction with no principal and no commit-time
// verification. It exists for internal read-only work that happens before
// a principal is known, chiefly resolving the principal itself. Handler
// business logic must use a verified Session instead.
type Unverified struct {
	tx     *sql.Tx
	closed bool
}

// BeginUnverified opens a raw session without a principal
func (m *Manager) BeginUnverified(ctx context.Context) (*Unverified, error) {
	tx, err := m.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	return &Unverified{tx: tx}, nil
}

// Tx exposes the transaction
func (u *Unverified) Tx() *sql.Tx { return u.tx }

// Commit commits without verification
func (u *Unverified) Commit() error {
	if u.closed {
		return ErrSessionClosed
	}
	u.closed = true
	if err := u.tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// Close rolls back the session if it is still open
func (u *Unverified) Close() {
	if u.closed {
		return
	}
	u.closed = true
	u.tx.Rollback()
}
