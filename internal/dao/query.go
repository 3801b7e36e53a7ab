package dao

import (
	"context"
	"errors"

	"github.com/joescharf/issuedao/internal/audit"
	"github.com/joescharf/issuedao/internal/models"
	"github.com/joescharf/issuedao/internal/store"
)

// Read-only queries. They never mutate state and need no caller.

func (o *Organization) getIssue(ctx context.Context, op string, id uint32) (*models.Issue, error) {
	return o.loadIssue(ctx, o.engine.store, op, id)
}

// Issue returns one issue without its nested collections.
func (o *Organization) Issue(ctx context.Context, id uint32) (*models.Issue, error) {
	return o.getIssue(ctx, "getIssue", id)
}

// IssueInfo returns one issue with likes, applicants, funds and logs loaded.
func (o *Organization) IssueInfo(ctx context.Context, id uint32) (*models.IssueInfo, error) {
	issue, err := o.getIssue(ctx, "getIssueInfo", id)
	if err != nil {
		return nil, err
	}
	return o.expand(ctx, issue)
}

func (o *Organization) expand(ctx context.Context, issue *models.Issue) (*models.IssueInfo, error) {
	s := o.engine.store
	key := issue.Key()

	likes, err := store.Likes(ctx, s, key)
	if err != nil {
		return nil, err
	}
	applicants, err := store.Applicants(ctx, s, key)
	if err != nil {
		return nil, err
	}
	funds, err := store.Funds(ctx, s, key)
	if err != nil {
		return nil, err
	}
	logs, err := store.Logs(ctx, s, key)
	if err != nil {
		return nil, err
	}

	return &models.IssueInfo{
		Issue:      *issue,
		Likes:      likes,
		Applicants: applicants,
		Funds:      funds,
		Logs:       logs,
		TotalFunds: models.TotalFunds(funds),
	}, nil
}

// Issues lists issues matching filter in id order.
func (o *Organization) Issues(ctx context.Context, filter store.IssueListFilter) ([]*models.Issue, error) {
	if filter.Status != "" && !filter.Status.Valid() {
		return nil, newError("getIssues", CodeInvalidArgument, "unknown status %q", filter.Status)
	}
	return o.engine.store.ListIssues(ctx, o.rec.ID, filter)
}

// IssuesInfo lists issues matching filter with nested collections loaded.
func (o *Organization) IssuesInfo(ctx context.Context, filter store.IssueListFilter) ([]*models.IssueInfo, error) {
	issues, err := o.Issues(ctx, filter)
	if err != nil {
		return nil, err
	}
	out := make([]*models.IssueInfo, 0, len(issues))
	for _, issue := range issues {
		info, err := o.expand(ctx, issue)
		if err != nil {
			return nil, err
		}
		out = append(out, info)
	}
	return out, nil
}

// BountiesInfo lists fundable issues with nested collections loaded.
func (o *Organization) BountiesInfo(ctx context.Context) ([]*models.IssueInfo, error) {
	fundable := true
	return o.IssuesInfo(ctx, store.IssueListFilter{Fundable: &fundable})
}

// IssuesByCategory lists issues filed under category.
func (o *Organization) IssuesByCategory(ctx context.Context, category string) ([]*models.Issue, error) {
	return o.Issues(ctx, store.IssueListFilter{Category: category})
}

// IssuesByStatus lists issues currently in status.
func (o *Organization) IssuesByStatus(ctx context.Context, status models.IssueStatus) ([]*models.Issue, error) {
	if !status.Valid() {
		return nil, newError("getIssuesByStatus", CodeInvalidArgument, "unknown status %q", status)
	}
	return o.Issues(ctx, store.IssueListFilter{Status: status})
}

// Count returns the number of issues matching filter.
func (o *Organization) Count(ctx context.Context, filter store.IssueListFilter) (int, error) {
	if filter.Status != "" && !filter.Status.Valid() {
		return 0, newError("getIssueCount", CodeInvalidArgument, "unknown status %q", filter.Status)
	}
	return o.engine.store.CountIssues(ctx, o.rec.ID, filter)
}

// Likes lists principals that liked the issue.
func (o *Organization) Likes(ctx context.Context, id uint32) ([]models.Principal, error) {
	if _, err := o.getIssue(ctx, "getLikes", id); err != nil {
		return nil, err
	}
	return store.Likes(ctx, o.engine.store, o.key(id))
}

// Applicants lists applicant records in application order.
func (o *Organization) Applicants(ctx context.Context, id uint32) ([]*models.Applicant, error) {
	if _, err := o.getIssue(ctx, "getApplicants", id); err != nil {
		return nil, err
	}
	return store.Applicants(ctx, o.engine.store, o.key(id))
}

// Funds lists fund records in contribution order.
func (o *Organization) Funds(ctx context.Context, id uint32) ([]*models.Fund, error) {
	if _, err := o.getIssue(ctx, "getFunds", id); err != nil {
		return nil, err
	}
	return store.Funds(ctx, o.engine.store, o.key(id))
}

// Logs lists the issue's audit log oldest first.
func (o *Organization) Logs(ctx context.Context, id uint32) ([]*models.Log, error) {
	if _, err := o.getIssue(ctx, "getLogs", id); err != nil {
		return nil, err
	}
	return store.Logs(ctx, o.engine.store, o.key(id))
}

// VerifyLogs recomputes the issue's audit hash chain. A tampered chain
// yields an *audit.BrokenLinkError.
func (o *Organization) VerifyLogs(ctx context.Context, id uint32) error {
	logs, err := o.Logs(ctx, id)
	if err != nil {
		return err
	}
	return audit.Verify(logs)
}

// IsBrokenChain reports whether err came from a failed audit verification.
func IsBrokenChain(err error) bool {
	var b *audit.BrokenLinkError
	return errors.As(err, &b)
}
