package ledger

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/joescharf/issuedao/internal/models"
)

// Fake is an in-memory Provider for tests. It records every transfer so
// tests can assert exactly which payouts were requested.
type Fake struct {
	mu        sync.Mutex
	balances  map[models.Principal]models.Balance
	transfers []Transfer

	// PayErr, when set, is returned by every Pay call without moving value.
	PayErr error
}

// NewFake returns an empty fake ledger.
func NewFake() *Fake {
	return &Fake{balances: make(map[models.Principal]models.Balance)}
}

// Mint credits p with amount.
func (f *Fake) Mint(p models.Principal, amount uint64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	v := models.NewBalance(amount)
	f.balances[p] = f.balances[p].Add(v)
	f.transfers = append(f.transfers, Transfer{ID: int64(len(f.transfers) + 1), To: p, Amount: v, Kind: KindMint})
}

// BalanceOf returns p's balance.
func (f *Fake) BalanceOf(p models.Principal) models.Balance {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.balances[p]
}

// Transfers returns recorded transfers of the given kind.
func (f *Fake) Transfers(kind TransferKind) []Transfer {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []Transfer
	for _, t := range f.transfers {
		if t.Kind == kind {
			out = append(out, t)
		}
	}
	return out
}

// Escrow implements Provider.
func (f *Fake) Escrow(account models.Principal) Ledger {
	return &fakeEscrow{fake: f, account: account}
}

func (f *Fake) move(from, to models.Principal, amount models.Balance, kind TransferKind) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	remaining, err := f.balances[from].Sub(amount)
	if err != nil {
		return fmt.Errorf("%s has %s, needs %s: %w", from, f.balances[from], amount, ErrInsufficientFunds)
	}
	f.balances[from] = remaining
	f.balances[to] = f.balances[to].Add(amount)
	f.transfers = append(f.transfers, Transfer{
		ID:        int64(len(f.transfers) + 1),
		From:      from,
		To:        to,
		Amount:    amount,
		Kind:      kind,
		CreatedAt: time.Now().UTC(),
	})
	return nil
}

type fakeEscrow struct {
	fake    *Fake
	account models.Principal
}

func (e *fakeEscrow) Balance(_ context.Context, p models.Principal) (models.Balance, error) {
	return e.fake.BalanceOf(p), nil
}

func (e *fakeEscrow) Held(_ context.Context) (models.Balance, error) {
	return e.fake.BalanceOf(e.account), nil
}

func (e *fakeEscrow) Deposit(_ context.Context, from models.Principal, amount models.Balance) error {
	return e.fake.move(from, e.account, amount, KindDeposit)
}

func (e *fakeEscrow) Pay(_ context.Context, to models.Principal, amount models.Balance) error {
	if e.fake.PayErr != nil {
		return e.fake.PayErr
	}
	return e.fake.move(e.account, to, amount, KindPayout)
}
