package dao

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joescharf/issuedao/internal/ledger"
	"github.com/joescharf/issuedao/internal/models"
)

func TestIssueToBounty(t *testing.T) {
	f := newFixture(t)
	id := f.plannedIssue("Fix bug")
	f.ledger.Mint(founder, 100)

	issue, err := f.org.IssueToBounty(f.ctx, founder, id, models.ExperienceIntermediate, models.NewBalance(10))
	require.NoError(t, err)
	assert.True(t, issue.Fundable)
	assert.Equal(t, models.ExperienceIntermediate, issue.ExperienceLevel)

	funds, err := f.org.Funds(f.ctx, id)
	require.NoError(t, err)
	require.Len(t, funds, 1)
	assert.Equal(t, "10", funds[0].Amount.String())
	assert.Equal(t, founder, funds[0].Funder)

	assert.Equal(t, "90", f.ledger.BalanceOf(founder).String())
	assert.Equal(t, "10", f.held())

	logs, err := f.org.Logs(f.ctx, id)
	require.NoError(t, err)
	last := logs[len(logs)-1]
	assert.Equal(t, models.LogTypeFund, last.LogType)
	assert.Equal(t, "Convert to intermediate bounty with 10", last.Message)
}

func TestIssueToBounty_CanRaiseStakeAndLevel(t *testing.T) {
	f := newFixture(t)
	id := f.bounty("Fix bug", 10)
	f.ledger.Mint(founder, 5)

	issue, err := f.org.IssueToBounty(f.ctx, founder, id, models.ExperienceAdvanced, models.NewBalance(5))
	require.NoError(t, err)
	assert.Equal(t, models.ExperienceAdvanced, issue.ExperienceLevel)

	total, err := f.org.TotalFunds(f.ctx, id)
	require.NoError(t, err)
	assert.Equal(t, "15", total.String())
}

func TestIssueToBounty_ZeroDepositAllowed(t *testing.T) {
	f := newFixture(t)
	id := f.plannedIssue("Fix bug")

	issue, err := f.org.IssueToBounty(f.ctx, founder, id, models.ExperienceBeginner, models.Balance{})
	require.NoError(t, err)
	assert.True(t, issue.Fundable)
	assert.Empty(t, f.ledger.Transfers(ledger.KindDeposit))

	total, err := f.org.TotalFunds(f.ctx, id)
	require.NoError(t, err)
	assert.True(t, total.IsZero())
}

func TestIssueToBounty_Rejections(t *testing.T) {
	f := newFixture(t)
	open := f.createIssue("not yet planned")
	planned := f.plannedIssue("planned")
	f.ledger.Mint(founder, 5)

	_, err := f.org.IssueToBounty(f.ctx, founder, open, models.ExperienceBeginner, models.NewBalance(1))
	assertCode(t, err, CodeInvalidStateTransition)

	_, err = f.org.IssueToBounty(f.ctx, outsider, planned, models.ExperienceBeginner, models.NewBalance(1))
	assertCode(t, err, CodeUnauthorized)

	_, err = f.org.IssueToBounty(f.ctx, founder, planned, "expert", models.NewBalance(1))
	assertCode(t, err, CodeInvalidArgument)

	_, err = f.org.IssueToBounty(f.ctx, founder, planned, models.ExperienceBeginner, models.NewBalance(6))
	assertCode(t, err, CodeInsufficientFunds)
	assert.ErrorIs(t, err, ErrInsufficientFunds)

	issue, err := f.org.Issue(f.ctx, planned)
	require.NoError(t, err)
	assert.False(t, issue.Fundable)
	assert.Equal(t, "5", f.ledger.BalanceOf(founder).String())
	assert.Equal(t, "0", f.held())
}

func TestFundIssue(t *testing.T) {
	f := newFixture(t)
	id := f.bounty("Fix bug", 10)
	f.ledger.Mint(bob, 50)

	require.NoError(t, f.org.FundIssue(f.ctx, bob, id, models.NewBalance(20)))
	require.NoError(t, f.org.FundIssue(f.ctx, bob, id, models.NewBalance(7)))

	funds, err := f.org.Funds(f.ctx, id)
	require.NoError(t, err)
	require.Len(t, funds, 3)
	assert.Equal(t, bob, funds[1].Funder)

	total, err := f.org.TotalFunds(f.ctx, id)
	require.NoError(t, err)
	assert.Equal(t, "37", total.String())
	assert.Equal(t, "37", f.held())
	assert.Equal(t, "23", f.ledger.BalanceOf(bob).String())
}

func TestFundIssue_Rejections(t *testing.T) {
	f := newFixture(t)
	plain := f.plannedIssue("plain")
	id := f.bounty("bounty", 10)
	f.ledger.Mint(bob, 3)

	assertCode(t, f.org.FundIssue(f.ctx, bob, plain, models.NewBalance(1)), CodeInvalidStateTransition)
	assertCode(t, f.org.FundIssue(f.ctx, bob, id, models.Balance{}), CodeInvalidArgument)
	assertCode(t, f.org.FundIssue(f.ctx, bob, id, models.NewBalance(4)), CodeInsufficientFunds)
	assertCode(t, f.org.FundIssue(f.ctx, bob, 99, models.NewBalance(1)), CodeNotFound)

	funds, err := f.org.Funds(f.ctx, id)
	require.NoError(t, err)
	assert.Len(t, funds, 1)
	assert.Equal(t, "3", f.ledger.BalanceOf(bob).String())
}

func TestFundIssue_ConcurrentFundsCannotOutrunBalance(t *testing.T) {
	f := newFixture(t)
	id := f.bounty("Fix bug", 0)
	f.ledger.Mint(bob, 10)

	p := &hookedProvider{Provider: f.ledger}
	org := f.reopen(p)
	hook, second := interleave(func() error {
		return org.FundIssue(f.ctx, bob, id, models.NewBalance(10))
	})
	p.beforeDeposit = func() error { hook(); return nil }

	require.NoError(t, org.FundIssue(f.ctx, bob, id, models.NewBalance(10)))
	assertCode(t, <-second, CodeInsufficientFunds)

	total, err := f.org.TotalFunds(f.ctx, id)
	require.NoError(t, err)
	assert.Equal(t, "10", total.String())
	assert.Equal(t, "10", f.held())
	assert.Equal(t, "0", f.ledger.BalanceOf(bob).String())
}

func TestFundIssue_FailedDepositRollsBack(t *testing.T) {
	f := newFixture(t)
	id := f.bounty("Fix bug", 10)
	f.ledger.Mint(bob, 10)

	errOffline := errors.New("ledger offline")
	org := f.reopen(&hookedProvider{
		Provider:      f.ledger,
		beforeDeposit: func() error { return errOffline },
	})

	err := org.FundIssue(f.ctx, bob, id, models.NewBalance(5))
	require.ErrorIs(t, err, errOffline)

	funds, err := f.org.Funds(f.ctx, id)
	require.NoError(t, err)
	assert.Len(t, funds, 1)
	logs, err := f.org.Logs(f.ctx, id)
	require.NoError(t, err)
	for _, l := range logs {
		assert.NotContains(t, l.Message, "Fund 5")
	}
	assert.Equal(t, "10", f.ledger.BalanceOf(bob).String())
	assert.Equal(t, "10", f.held())
}
