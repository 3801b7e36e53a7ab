package ledger

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joescharf/issuedao/internal/models"
)

func newTestBook(t *testing.T) *Book {
	t.Helper()
	b, err := OpenBook(filepath.Join(t.TempDir(), "ledger", "ledger.db"))
	require.NoError(t, err)
	t.Cleanup(func() { b.Close() })
	require.NoError(t, b.Migrate(context.Background()))
	return b
}

func TestBook_MigrateIsIdempotent(t *testing.T) {
	ctx := context.Background()
	b := newTestBook(t)
	require.NoError(t, b.Mint(ctx, "alice.near", models.NewBalance(5)))

	require.NoError(t, b.Migrate(ctx))

	var applied int
	require.NoError(t, b.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM schema_migrations WHERE filename = '001_accounts.sql'").Scan(&applied))
	assert.Equal(t, 1, applied)

	bal, err := b.Balance(ctx, "alice.near")
	require.NoError(t, err)
	assert.Equal(t, "5", bal.String())
}

func TestBook_MintAndBalance(t *testing.T) {
	b := newTestBook(t)
	ctx := context.Background()

	bal, err := b.Balance(ctx, "alice.near")
	require.NoError(t, err)
	assert.True(t, bal.IsZero())

	require.NoError(t, b.Mint(ctx, "alice.near", models.NewBalance(100)))
	require.NoError(t, b.Mint(ctx, "alice.near", models.NewBalance(50)))

	bal, err = b.Balance(ctx, "alice.near")
	require.NoError(t, err)
	assert.Equal(t, "150", bal.String())
}

func TestBook_EscrowDepositAndPay(t *testing.T) {
	b := newTestBook(t)
	ctx := context.Background()
	require.NoError(t, b.Mint(ctx, "alice.near", models.NewBalance(100)))

	escrow := b.Escrow("org1.dao")
	require.NoError(t, escrow.Deposit(ctx, "alice.near", models.NewBalance(40)))

	held, err := escrow.Held(ctx)
	require.NoError(t, err)
	assert.Equal(t, "40", held.String())

	require.NoError(t, escrow.Pay(ctx, "bob.near", models.NewBalance(25)))

	bob, err := escrow.Balance(ctx, "bob.near")
	require.NoError(t, err)
	assert.Equal(t, "25", bob.String())

	held, err = escrow.Held(ctx)
	require.NoError(t, err)
	assert.Equal(t, "15", held.String())

	transfers, err := b.Transfers(ctx, "org1.dao", 10)
	require.NoError(t, err)
	require.Len(t, transfers, 2)
	assert.Equal(t, KindPayout, transfers[0].Kind)
	assert.Equal(t, KindDeposit, transfers[1].Kind)
}

func TestBook_InsufficientFunds(t *testing.T) {
	b := newTestBook(t)
	ctx := context.Background()
	require.NoError(t, b.Mint(ctx, "alice.near", models.NewBalance(10)))

	escrow := b.Escrow("org1.dao")
	err := escrow.Deposit(ctx, "alice.near", models.NewBalance(11))
	assert.True(t, errors.Is(err, ErrInsufficientFunds))

	// Failed transfers leave balances untouched.
	bal, err := b.Balance(ctx, "alice.near")
	require.NoError(t, err)
	assert.Equal(t, "10", bal.String())

	err = escrow.Pay(ctx, "bob.near", models.NewBalance(1))
	assert.True(t, errors.Is(err, ErrInsufficientFunds))
}

func TestFake_RecordsPayouts(t *testing.T) {
	f := NewFake()
	f.Mint("alice.near", 30)
	ctx := context.Background()

	escrow := f.Escrow("org1.dao")
	require.NoError(t, escrow.Deposit(ctx, "alice.near", models.NewBalance(30)))
	require.NoError(t, escrow.Pay(ctx, "bob.near", models.NewBalance(30)))

	payouts := f.Transfers(KindPayout)
	require.Len(t, payouts, 1)
	assert.Equal(t, models.Principal("bob.near"), payouts[0].To)
	assert.Equal(t, "30", payouts[0].Amount.String())

	err := escrow.Pay(ctx, "bob.near", models.NewBalance(1))
	assert.True(t, errors.Is(err, ErrInsufficientFunds))
}
