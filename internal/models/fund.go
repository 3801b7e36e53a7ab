package models

import "time"

// Fund is one contribution to a fundable issue. Funds are never removed.
type Fund struct {
	Amount    Balance   `json:"amount"`
	Funder    Principal `json:"funder"`
	Timestamp time.Time `json:"timestamp"`
}

// TotalFunds sums the amounts of funds.
func TotalFunds(funds []*Fund) Balance {
	amounts := make([]Balance, 0, len(funds))
	for _, f := range funds {
		amounts = append(amounts, f.Amount)
	}
	return Sum(amounts...)
}
