package dao

import (
	"context"
	"strings"

	"github.com/joescharf/issuedao/internal/models"
	"github.com/joescharf/issuedao/internal/store"
)

// IssueParams holds the editable fields of an issue.
type IssueParams struct {
	Title       string
	Description string
	Category    string
	// Tags are recorded on create. On update a nil slice keeps the current tags.
	Tags []string
}

// CreateIssue files a new issue in status Open. Any principal may file.
func (o *Organization) CreateIssue(ctx context.Context, caller models.Principal, p IssueParams) (*models.Issue, error) {
	const op = "createIssue"
	if strings.TrimSpace(p.Title) == "" {
		return nil, newError(op, CodeInvalidArgument, "title is required")
	}

	issue := &models.Issue{
		OrgID:           o.rec.ID,
		Title:           p.Title,
		Description:     p.Description,
		Category:        p.Category,
		Tags:            p.Tags,
		CreatedAt:       o.engine.clock.Now(),
		CreatedBy:       caller,
		Status:          models.IssueStatusOpen,
		ExperienceLevel: models.ExperienceBeginner,
	}

	err := o.mutate(ctx, op, caller, func(tx store.Store) error {
		if err := tx.CreateIssue(ctx, issue); err != nil {
			return err
		}
		return o.appendLog(ctx, tx, issue, caller, models.LogTypeStatus, "Create this issue")
	})
	if err != nil {
		return nil, err
	}

	o.logger.Info("issue created", "issue", issue.ID, "caller", caller, "category", issue.Category)
	return issue, nil
}

// UpdateIssue replaces the title, description and category. Council only;
// closed issues cannot be edited.
func (o *Organization) UpdateIssue(ctx context.Context, caller models.Principal, id uint32, p IssueParams) (*models.Issue, error) {
	const op = "updateIssue"
	if strings.TrimSpace(p.Title) == "" {
		return nil, newError(op, CodeInvalidArgument, "title is required")
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
		if issue.Status == models.IssueStatusClosed {
			return newError(op, CodeInvalidStateTransition, "issue %d is closed", id)
		}

		issue.Title = p.Title
		issue.Description = p.Description
		issue.Category = p.Category
		if p.Tags != nil {
			issue.Tags = p.Tags
		}
		if err := tx.UpdateIssue(ctx, issue); err != nil {
			return err
		}
		return o.appendLog(ctx, tx, issue, caller, models.LogTypeEdit, "Edit this issue")
	})
	if err != nil {
		return nil, err
	}

	o.logger.Info("issue updated", "issue", id, "caller", caller)
	return issue, nil
}

// authorizer checks whether caller may perform a transition on issue.
type authorizer func(ctx context.Context, tx store.Store, issue *models.Issue) error

// transition moves an issue to status to, records a Status log and returns
// the updated issue.
func (o *Organization) transition(ctx context.Context, op string, caller models.Principal, id uint32, to models.IssueStatus, authorize authorizer, msg string) (*models.Issue, error) {
	var issue *models.Issue
	var from models.IssueStatus
	err := o.mutate(ctx, op, caller, func(tx store.Store) error {
		var err error
		if issue, err = o.loadIssue(ctx, tx, op, id); err != nil {
			return err
		}
		if err := authorize(ctx, tx, issue); err != nil {
			return err
		}
		from = issue.Status
		if !ValidTransition(from, to) {
			return newError(op, CodeInvalidStateTransition, "issue %d cannot move from %s to %s", id, from, to)
		}

		issue.Status = to
		if err := tx.UpdateIssue(ctx, issue); err != nil {
			return err
		}
		return o.appendLog(ctx, tx, issue, caller, models.LogTypeStatus, msg)
	})
	if err != nil {
		return nil, err
	}

	o.logger.Info("issue status changed", "issue", id, "from", from, "to", to, "caller", caller)
	return issue, nil
}

func (o *Organization) councilOnly(op string, caller models.Principal) authorizer {
	return func(ctx context.Context, tx store.Store, _ *models.Issue) error {
		return o.requireCouncil(ctx, tx, op, caller)
	}
}

// ApproveIssue schedules an Open issue (Open -> Planned). Council only.
func (o *Organization) ApproveIssue(ctx context.Context, caller models.Principal, id uint32) (*models.Issue, error) {
	const op = "approveIssue"
	return o.transition(ctx, op, caller, id, models.IssueStatusPlanned, o.councilOnly(op, caller), "Approve this issue")
}

// CloseIssue rejects an Open issue (Open -> Closed). Council only.
func (o *Organization) CloseIssue(ctx context.Context, caller models.Principal, id uint32) (*models.Issue, error) {
	const op = "closeIssue"
	return o.transition(ctx, op, caller, id, models.IssueStatusClosed, o.councilOnly(op, caller), "Close this issue")
}

// StartIssue begins work on a Planned issue (Planned -> InProgress). On a
// bounty only an approved applicant may start; otherwise the council.
func (o *Organization) StartIssue(ctx context.Context, caller models.Principal, id uint32) (*models.Issue, error) {
	const op = "startIssue"
	authorize := func(ctx context.Context, tx store.Store, issue *models.Issue) error {
		if !issue.Fundable {
			return o.requireCouncil(ctx, tx, op, caller)
		}
		a, err := o.findApplicant(ctx, tx, issue, caller)
		if err != nil {
			return err
		}
		if a == nil || !a.Approved {
			return newError(op, CodeUnauthorized, "%s is not an approved applicant on issue %d", caller, id)
		}
		return nil
	}
	return o.transition(ctx, op, caller, id, models.IssueStatusInProgress, authorize, "Start this issue")
}

// CompleteIssue finishes an InProgress issue (InProgress -> Completed).
// Council only.
func (o *Organization) CompleteIssue(ctx context.Context, caller models.Principal, id uint32) (*models.Issue, error) {
	const op = "completeIssue"
	return o.transition(ctx, op, caller, id, models.IssueStatusCompleted, o.councilOnly(op, caller), "Complete this issue")
}

// AddComment appends a Comment log. Any principal may comment.
func (o *Organization) AddComment(ctx context.Context, caller models.Principal, id uint32, text string) error {
	const op = "addComment"
	if strings.TrimSpace(text) == "" {
		return newError(op, CodeInvalidArgument, "comment text is required")
	}

	err := o.mutate(ctx, op, caller, func(tx store.Store) error {
		issue, err := o.loadIssue(ctx, tx, op, id)
		if err != nil {
			return err
		}
		return o.appendLog(ctx, tx, issue, caller, models.LogTypeComment, text)
	})
	if err != nil {
		return err
	}

	o.logger.Debug("comment added", "issue", id, "caller", caller)
	return nil
}

// LikeIssue records that caller likes the issue. Repeat likes are ignored;
// the result reports whether this call added a like.
func (o *Organization) LikeIssue(ctx context.Context, caller models.Principal, id uint32) (bool, error) {
	const op = "likeIssue"
	var added bool
	err := o.mutate(ctx, op, caller, func(tx store.Store) error {
		if _, err := o.loadIssue(ctx, tx, op, id); err != nil {
			return err
		}
		var err error
		added, err = store.AddLike(ctx, tx, o.key(id), caller)
		return err
	})
	if err != nil {
		return false, err
	}
	return added, nil
}
