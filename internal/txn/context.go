// Package txn owns the one-transaction-per-request execution context.
//
// A Context is the single owner of a *sql.Tx. Everything downstream of the
// request entry point sees only a non-owning Handle, upgrades it around each
// use, and releases the borrow when done. Finalize commits or rolls back once,
// based on the overall request outcome; any borrow attempted afterwards is an
// ordering defect and fails loudly.
package txn

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"sync"

	apperrors "github.com/amachang/passgate/internal/platform/errors"
)

// Outcome describes how a request ended.
type Outcome int

const (
	// Success commits the transaction.
	Success Outcome = iota
	// Failure rolls the transaction back.
	Failure
)

var (
	// ErrFinalized indicates a handle upgrade after the context finalized.
	ErrFinalized = apperrors.New(apperrors.CodeInternal, "transaction borrowed after finalize")
	// ErrAlreadyFinalized indicates Finalize was called twice.
	ErrAlreadyFinalized = apperrors.New(apperrors.CodeInternal, "execution context finalized twice")
	// ErrOutstandingBorrows indicates a borrow outlived its scope.
	ErrOutstandingBorrows = apperrors.New(apperrors.CodeInternal, "execution context finalized with outstanding borrows")
	// ErrUnboundHandle indicates a zero-value handle was upgraded.
	ErrUnboundHandle = apperrors.New(apperrors.CodeInternal, "transaction handle is not bound to a context")
)

// Context is the per-request owner of one open database transaction.
type Context struct {
	mu        sync.Mutex
	tx        *sql.Tx
	borrows   int
	finalized bool
}

// Open begins a transaction and wraps it in a new execution context.
func Open(ctx context.Context, db *sql.DB) (*Context, error) {
	if db == nil {
		return nil, fmt.Errorf("database is required")
	}
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin transaction: %w", err)
	}
	return &Context{tx: tx}, nil
}

// Handle returns a non-owning reference to the context's transaction.
// Handles are cheap to copy and safe to hand to nested resolvers.
func (c *Context) Handle() Handle {
	return Handle{owner: c}
}

// Finalized reports whether the context has already committed or rolled back.
func (c *Context) Finalized() bool {
	if c == nil {
		return false
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.finalized
}

// Finalize commits on Success and rolls back on Failure.
//
// Exactly one call is allowed per context; a second call reports a defect.
// Outstanding borrows at finalize time mean some reference outlived its scope:
// the transaction is rolled back and the defect reported instead of silently
// committing under a live reference.
func (c *Context) Finalize(outcome Outcome) error {
	if c == nil {
		return ErrUnboundHandle
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.finalized {
		return ErrAlreadyFinalized
	}
	if c.borrows > 0 {
		c.finalized = true
		if err := c.tx.Rollback(); err != nil {
			log.Printf("rollback with outstanding borrows failed: %v", err)
		}
		return ErrOutstandingBorrows
	}

	c.finalized = true
	if outcome == Success {
		if err := c.tx.Commit(); err != nil {
			return apperrors.Wrap(apperrors.CodeInternal, "commit transaction", err)
		}
		return nil
	}

	// The request already failed; a rollback error adds nothing actionable.
	if err := c.tx.Rollback(); err != nil {
		log.Printf("rollback failed: %v", err)
	}
	return nil
}

// Handle is a non-owning reference to an execution context's transaction.
// The zero value is unbound and fails every upgrade.
type Handle struct {
	owner *Context
}

// Upgrade turns the handle into a live borrow of the transaction.
//
// Upgrade failure signals use-after-finalization, a programming defect; the
// caller must propagate it as an internal error, never swallow it.
func (h Handle) Upgrade() (*Borrow, error) {
	if h.owner == nil {
		return nil, ErrUnboundHandle
	}
	h.owner.mu.Lock()
	defer h.owner.mu.Unlock()

	if h.owner.finalized {
		return nil, ErrFinalized
	}
	h.owner.borrows++
	return &Borrow{owner: h.owner, tx: h.owner.tx}, nil
}

// Borrow is a live, time-limited reference to the owned transaction.
type Borrow struct {
	owner    *Context
	tx       *sql.Tx
	released bool
}

// Tx exposes the borrowed transaction as a query surface.
func (b *Borrow) Tx() *sql.Tx {
	return b.tx
}

// Release returns the borrow. Releasing twice is harmless.
func (b *Borrow) Release() {
	if b == nil {
		return
	}
	b.owner.mu.Lock()
	defer b.owner.mu.Unlock()
	if b.released {
		return
	}
	b.released = true
	b.owner.borrows--
}
