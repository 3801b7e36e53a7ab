package dao

import (
	"context"
	"errors"
	"fmt"

	"github.com/joescharf/issuedao/internal/ledger"
	"github.com/joescharf/issuedao/internal/models"
	"github.com/joescharf/issuedao/internal/store"
)

// requireFunds rejects a deposit the caller's balance cannot cover.
func (o *Organization) requireFunds(ctx context.Context, op string, caller models.Principal, amount models.Balance) error {
	if amount.IsZero() {
		return nil
	}
	bal, err := o.ledger.Balance(ctx, caller)
	if err != nil {
		return fmt.Errorf("%s: read balance: %w", op, err)
	}
	if bal.Cmp(amount) < 0 {
		return newError(op, CodeInsufficientFunds, "%s has %s, needs %s", caller, bal, amount)
	}
	return nil
}

// deposit moves an accepted amount into escrow. It runs as the last step of
// the engine call so a failed transfer rolls the fund record back.
func (o *Organization) deposit(ctx context.Context, op string, caller models.Principal, amount models.Balance) error {
	if amount.IsZero() {
		return nil
	}
	err := o.ledger.Deposit(ctx, caller, amount)
	if errors.Is(err, ledger.ErrInsufficientFunds) {
		return &Error{Code: CodeInsufficientFunds, Op: op, Message: fmt.Sprintf("%s cannot cover %s", caller, amount), Err: err}
	}
	if err != nil {
		return fmt.Errorf("deposit: %w", err)
	}
	return nil
}

// refund returns a deposit whose engine call failed to commit.
func (o *Organization) refund(ctx context.Context, op string, caller models.Principal, id uint32, amount models.Balance) {
	if err := o.ledger.Pay(ctx, caller, amount); err != nil {
		o.logger.Error("refund failed", "op", op, "issue", id, "funder", caller, "amount", amount.String(), "error", err)
	}
}

// IssueToBounty turns a Planned or InProgress issue into a bounty at the
// given experience level. The attached deposit becomes the first fund
// record. Council only. It may be called again to raise the stake or change
// the level.
func (o *Organization) IssueToBounty(ctx context.Context, caller models.Principal, id uint32, level models.ExperienceLevel, deposit models.Balance) (*models.Issue, error) {
	const op = "issueToBounty"
	if !level.Valid() {
		return nil, newError(op, CodeInvalidArgument, "unknown experience level %q", level)
	}

	var (
		issue     *models.Issue
		deposited bool
	)
	err := o.mutate(ctx, op, caller, func(tx store.Store) error {
		var err error
		if issue, err = o.loadIssue(ctx, tx, op, id); err != nil {
			return err
		}
		if err := o.requireCouncil(ctx, tx, op, caller); err != nil {
			return err
		}
		if !bountyEligible(issue.Status) {
			return newError(op, CodeInvalidStateTransition, "issue %d is %s; only planned or in-progress issues can become bounties", id, issue.Status)
		}
		if err := o.requireFunds(ctx, op, caller, deposit); err != nil {
			return err
		}

		issue.Fundable = true
		issue.ExperienceLevel = level
		if err := tx.UpdateIssue(ctx, issue); err != nil {
			return err
		}
		fund := &models.Fund{Amount: deposit, Funder: caller, Timestamp: o.engine.clock.Now()}
		if err := store.AppendFund(ctx, tx, issue.Key(), fund); err != nil {
			return err
		}
		if err := o.appendLog(ctx, tx, issue, caller, models.LogTypeFund,
			fmt.Sprintf("Convert to %s bounty with %s", level, deposit)); err != nil {
			return err
		}
		if err := o.deposit(ctx, op, caller, deposit); err != nil {
			return err
		}
		deposited = !deposit.IsZero()
		return nil
	})
	if err != nil {
		if deposited {
			o.refund(ctx, op, caller, id, deposit)
		}
		return nil, err
	}

	o.logger.Info("issue converted to bounty", "issue", id, "level", level, "deposit", deposit.String(), "caller", caller)
	return issue, nil
}

// FundIssue adds a contribution to a bounty. Any principal may fund.
func (o *Organization) FundIssue(ctx context.Context, caller models.Principal, id uint32, amount models.Balance) error {
	const op = "fundIssue"
	if amount.IsZero() {
		return newError(op, CodeInvalidArgument, "funding amount must be positive")
	}

	var deposited bool
	err := o.mutate(ctx, op, caller, func(tx store.Store) error {
		issue, err := o.loadIssue(ctx, tx, op, id)
		if err != nil {
			return err
		}
		if !issue.Fundable {
			return newError(op, CodeInvalidStateTransition, "issue %d is not a bounty", id)
		}
		if err := o.requireFunds(ctx, op, caller, amount); err != nil {
			return err
		}

		fund := &models.Fund{Amount: amount, Funder: caller, Timestamp: o.engine.clock.Now()}
		if err := store.AppendFund(ctx, tx, issue.Key(), fund); err != nil {
			return err
		}
		if err := o.appendLog(ctx, tx, issue, caller, models.LogTypeFund, fmt.Sprintf("Fund %s", amount)); err != nil {
			return err
		}
		if err := o.deposit(ctx, op, caller, amount); err != nil {
			return err
		}
		deposited = true
		return nil
	})
	if err != nil {
		if deposited {
			o.refund(ctx, op, caller, id, amount)
		}
		return err
	}

	o.logger.Info("issue funded", "issue", id, "amount", amount.String(), "caller", caller)
	return nil
}

// TotalFunds sums every fund recorded on the issue.
func (o *Organization) TotalFunds(ctx context.Context, id uint32) (models.Balance, error) {
	funds, err := o.Funds(ctx, id)
	if err != nil {
		return models.Balance{}, err
	}
	return models.TotalFunds(funds), nil
}
