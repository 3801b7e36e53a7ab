package dao

import "github.com/joescharf/issuedao/internal/models"

// transitions defines the issue lifecycle. Each key is a source status and
// the value is the set of statuses reachable from it by a lifecycle call.
var transitions = map[models.IssueStatus]map[models.IssueStatus]bool{
	models.IssueStatusOpen: {
		models.IssueStatusPlanned: true,
		models.IssueStatusClosed:  true,
	},
	models.IssueStatusPlanned: {
		models.IssueStatusInProgress: true,
	},
	models.IssueStatusInProgress: {
		models.IssueStatusCompleted: true,
	},
	models.IssueStatusCompleted: {},
	models.IssueStatusClosed:    {},
}

// revocationResets holds the statuses an issue returns to Planned from when
// an approved applicant is revoked.
var revocationResets = map[models.IssueStatus]bool{
	models.IssueStatusPlanned:    true,
	models.IssueStatusInProgress: true,
}

// ValidTransition returns true if the status change from -> to is allowed.
func ValidTransition(from, to models.IssueStatus) bool {
	targets, ok := transitions[from]
	if !ok {
		return false
	}
	return targets[to]
}

// IsTerminal reports whether no transition departs from s.
func IsTerminal(s models.IssueStatus) bool {
	return len(transitions[s]) == 0
}

// bountyEligible reports whether an issue in status s may be turned into a
// bounty: it must be scheduled and not yet finished.
func bountyEligible(s models.IssueStatus) bool {
	switch s {
	case models.IssueStatusPlanned, models.IssueStatusInProgress:
		return true
	case models.IssueStatusOpen, models.IssueStatusCompleted, models.IssueStatusClosed:
		return false
	}
	return false
}
