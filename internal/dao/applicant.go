package dao

import (
	"context"
	"fmt"

	"github.com/joescharf/issuedao/internal/models"
	"github.com/joescharf/issuedao/internal/store"
)

// findApplicant returns the first applicant record for p, or nil.
func (o *Organization) findApplicant(ctx context.Context, s store.Store, issue *models.Issue, p models.Principal) (*models.Applicant, error) {
	applicants, err := store.Applicants(ctx, s, issue.Key())
	if err != nil {
		return nil, err
	}
	for _, a := range applicants {
		if a.Applicant == p {
			return a, nil
		}
	}
	return nil, nil
}

// ApplyIssue registers caller as an applicant on a bounty that is not yet
// completed. Any principal may apply, more than once.
func (o *Organization) ApplyIssue(ctx context.Context, caller models.Principal, id uint32, message string) (*models.Applicant, error) {
	const op = "applyIssue"
	var applicant *models.Applicant
	err := o.mutate(ctx, op, caller, func(tx store.Store) error {
		issue, err := o.loadIssue(ctx, tx, op, id)
		if err != nil {
			return err
		}
		if !issue.Fundable {
			return newError(op, CodeInvalidStateTransition, "issue %d is not a bounty", id)
		}
		if issue.Status == models.IssueStatusCompleted {
			return newError(op, CodeInvalidStateTransition, "issue %d is already completed", id)
		}

		applicant = &models.Applicant{
			Applicant: caller,
			Message:   message,
			Timestamp: o.engine.clock.Now(),
		}
		if err := store.AppendApplicant(ctx, tx, issue.Key(), applicant); err != nil {
			return err
		}
		return o.appendLog(ctx, tx, issue, caller, models.LogTypeApply, "Apply for this bounty")
	})
	if err != nil {
		return nil, err
	}

	o.logger.Info("applicant registered", "issue", id, "applicant", caller)
	return applicant, nil
}

// ApproveApplicant approves the first record of applicant. Council only.
func (o *Organization) ApproveApplicant(ctx context.Context, caller models.Principal, id uint32, applicant models.Principal) error {
	const op = "approveApplicant"
	if err := validatePrincipal(op, "applicant", applicant); err != nil {
		return err
	}

	err := o.mutate(ctx, op, caller, func(tx store.Store) error {
		issue, err := o.loadIssue(ctx, tx, op, id)
		if err != nil {
			return err
		}
		if err := o.requireCouncil(ctx, tx, op, caller); err != nil {
			return err
		}
		a, err := o.findApplicant(ctx, tx, issue, applicant)
		if err != nil {
			return err
		}
		if a == nil {
			return newError(op, CodeNotFound, "%s has not applied to issue %d", applicant, id)
		}

		a.Approved = true
		if err := store.UpdateApplicant(ctx, tx, issue.Key(), a); err != nil {
			return err
		}
		return o.appendLog(ctx, tx, issue, caller, models.LogTypeApply, fmt.Sprintf("Approve applicant %s", applicant))
	})
	if err != nil {
		return err
	}

	o.logger.Info("applicant approved", "issue", id, "applicant", applicant, "caller", caller)
	return nil
}

// RevokeApplicant withdraws an approval. A planned or in-progress issue
// returns to Planned so another applicant can pick it up. Council only.
func (o *Organization) RevokeApplicant(ctx context.Context, caller models.Principal, id uint32, applicant models.Principal) (*models.Issue, error) {
	const op = "revokeApplicant"
	if err := validatePrincipal(op, "applicant", applicant); err != nil {
		return nil, err
	}

	var issue *models.Issue
	err := o.mutate(ctx, op, caller, func(tx store.Store) error {
		var err error
		if issue, err = o.loadIssue(ctx, tx, op, id); err != nil {
			return err
		}
		if err := o.requireCouncil(ctx, tx, op, caller); err != nil {
			return err
		}
		a, err := o.findApplicant(ctx, tx, issue, applicant)
		if err != nil {
			return err
		}
		if a == nil {
			return newError(op, CodeNotFound, "%s has not applied to issue %d", applicant, id)
		}
		if !a.Approved {
			return newError(op, CodeInvalidStateTransition, "%s is not approved on issue %d", applicant, id)
		}
		if IsTerminal(issue.Status) {
			return newError(op, CodeInvalidStateTransition, "issue %d is %s", id, issue.Status)
		}

		a.Approved = false
		if err := store.UpdateApplicant(ctx, tx, issue.Key(), a); err != nil {
			return err
		}
		if revocationResets[issue.Status] {
			issue.Status = models.IssueStatusPlanned
			if err := tx.UpdateIssue(ctx, issue); err != nil {
				return err
			}
		}
		return o.appendLog(ctx, tx, issue, caller, models.LogTypeStatus, fmt.Sprintf("Revoke applicant %s", applicant))
	})
	if err != nil {
		return nil, err
	}

	o.logger.Info("applicant revoked", "issue", id, "applicant", applicant, "status", issue.Status, "caller", caller)
	return issue, nil
}

// ClaimBounty pays the recorded total of a completed bounty to the calling
// approved applicant and marks the claim. The payout is requested after the
// claim commits and before any other call on the organization runs, so the
// escrow check always sees earlier payouts. A failed payout is logged and
// not retried.
func (o *Organization) ClaimBounty(ctx context.Context, caller models.Principal, id uint32) (models.Balance, error) {
	const op = "claimBounty"
	var total models.Balance
	pay := func() {
		o.logger.Info("bounty claimed", "issue", id, "applicant", caller, "amount", total.String())
		if total.IsZero() {
			return
		}
		if err := o.ledger.Pay(ctx, caller, total); err != nil {
			o.logger.Error("payout failed", "issue", id, "applicant", caller, "amount", total.String(), "error", err)
		}
	}
	err := o.mutateThen(ctx, op, caller, func(tx store.Store) error {
		issue, err := o.loadIssue(ctx, tx, op, id)
		if err != nil {
			return err
		}
		if !issue.Fundable {
			return newError(op, CodeInvalidStateTransition, "issue %d is not a bounty", id)
		}
		if issue.Status != models.IssueStatusCompleted {
			return newError(op, CodeInvalidStateTransition, "issue %d is %s, not completed", id, issue.Status)
		}

		applicants, err := store.Applicants(ctx, tx, issue.Key())
		if err != nil {
			return err
		}
		var a *models.Applicant
		for _, rec := range applicants {
			if a == nil && rec.Applicant == caller {
				a = rec
			}
			if o.engine.claimPolicy == ClaimSingle && rec.Claimed {
				return newError(op, CodeInvalidStateTransition, "bounty on issue %d was already claimed by %s", id, rec.Applicant)
			}
		}
		if a == nil || !a.Approved {
			return newError(op, CodeUnauthorized, "%s is not an approved applicant on issue %d", caller, id)
		}
		if a.Claimed {
			return newError(op, CodeInvalidStateTransition, "%s already claimed issue %d", caller, id)
		}

		funds, err := store.Funds(ctx, tx, issue.Key())
		if err != nil {
			return err
		}
		total = models.TotalFunds(funds)
		held, err := o.ledger.Held(ctx)
		if err != nil {
			return fmt.Errorf("read escrow: %w", err)
		}
		if held.Cmp(total) < 0 {
			return newError(op, CodeInsufficientFunds, "escrow holds %s, bounty needs %s", held, total)
		}

		a.Claimed = true
		if err := store.UpdateApplicant(ctx, tx, issue.Key(), a); err != nil {
			return err
		}
		return o.appendLog(ctx, tx, issue, caller, models.LogTypeFund, fmt.Sprintf("Claim bounty of %s", total))
	}, pay)
	if err != nil {
		return models.Balance{}, err
	}
	return total, nil
}
