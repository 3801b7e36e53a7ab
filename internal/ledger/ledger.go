// Package ledger is the value-transfer capability the lifecycle engine calls
// into. The engine never moves balances itself: it asks an organization's
// escrow ledger to take deposits and to pay out.
package ledger

import (
	"context"
	"errors"
	"time"

	"github.com/joescharf/issuedao/internal/models"
)

// ErrInsufficientFunds is returned when an account cannot cover a transfer.
var ErrInsufficientFunds = errors.New("insufficient funds")

// Ledger is the escrow view of one organization account.
type Ledger interface {
	// Balance returns the spendable balance of p.
	Balance(ctx context.Context, p models.Principal) (models.Balance, error)
	// Held returns the balance held by the organization escrow.
	Held(ctx context.Context) (models.Balance, error)
	// Deposit moves amount from p into escrow.
	Deposit(ctx context.Context, from models.Principal, amount models.Balance) error
	// Pay moves amount from escrow to p.
	Pay(ctx context.Context, to models.Principal, amount models.Balance) error
}

// Provider opens the escrow ledger for an organization account.
type Provider interface {
	Escrow(account models.Principal) Ledger
}

// TransferKind labels why value moved.
type TransferKind string

const (
	KindMint    TransferKind = "mint"
	KindDeposit TransferKind = "deposit"
	KindPayout  TransferKind = "payout"
)

// Transfer is one recorded movement of value.
type Transfer struct {
	ID        int64            `json:"id"`
	From      models.Principal `json:"from"`
	To        models.Principal `json:"to"`
	Amount    models.Balance   `json:"amount"`
	Kind      TransferKind     `json:"kind"`
	CreatedAt time.Time        `json:"created_at"`
}
