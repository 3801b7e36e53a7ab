package models

import (
	"fmt"
	"math/big"
)

// Balance is a non-negative transferable amount in the ledger's smallest unit.
// The zero value is zero. Balances are immutable; arithmetic returns new values.
type Balance struct {
	n *big.Int
}

// NewBalance returns a Balance holding v.
func NewBalance(v uint64) Balance {
	return Balance{n: new(big.Int).SetUint64(v)}
}

// ParseBalance parses a base-10 amount.
func ParseBalance(s string) (Balance, error) {
	n, ok := new(big.Int).SetString(s, 10)
	if !ok {
		return Balance{}, fmt.Errorf("invalid balance %q", s)
	}
	if n.Sign() < 0 {
		return Balance{}, fmt.Errorf("balance %q is negative", s)
	}
	return Balance{n: n}, nil
}

func (b Balance) int() *big.Int {
	if b.n == nil {
		return new(big.Int)
	}
	return b.n
}

// Add returns b + o.
func (b Balance) Add(o Balance) Balance {
	return Balance{n: new(big.Int).Add(b.int(), o.int())}
}

// Sub returns b - o. It fails when o exceeds b.
func (b Balance) Sub(o Balance) (Balance, error) {
	if b.Cmp(o) < 0 {
		return Balance{}, fmt.Errorf("cannot subtract %s from %s", o, b)
	}
	return Balance{n: new(big.Int).Sub(b.int(), o.int())}, nil
}

// Cmp compares b and o and returns -1, 0 or +1.
func (b Balance) Cmp(o Balance) int {
	return b.int().Cmp(o.int())
}

// IsZero reports whether b is zero.
func (b Balance) IsZero() bool {
	return b.int().Sign() == 0
}

func (b Balance) String() string {
	return b.int().String()
}

// MarshalText encodes the balance as a decimal string so JSON and CBOR never
// lose precision on large amounts.
func (b Balance) MarshalText() ([]byte, error) {
	return []byte(b.String()), nil
}

func (b *Balance) UnmarshalText(text []byte) error {
	parsed, err := ParseBalance(string(text))
	if err != nil {
		return err
	}
	*b = parsed
	return nil
}

// Sum adds up amounts.
func Sum(amounts ...Balance) Balance {
	total := new(big.Int)
	for _, a := range amounts {
		total.Add(total, a.int())
	}
	return Balance{n: total}
}
