package dao

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/joescharf/issuedao/internal/models"
)

func TestValidTransition(t *testing.T) {
	allowed := map[[2]models.IssueStatus]bool{
		{models.IssueStatusOpen, models.IssueStatusPlanned}:         true,
		{models.IssueStatusOpen, models.IssueStatusClosed}:          true,
		{models.IssueStatusPlanned, models.IssueStatusInProgress}:   true,
		{models.IssueStatusInProgress, models.IssueStatusCompleted}: true,
	}

	for _, from := range models.IssueStatuses {
		for _, to := range models.IssueStatuses {
			want := allowed[[2]models.IssueStatus{from, to}]
			assert.Equal(t, want, ValidTransition(from, to), "%s -> %s", from, to)
		}
	}
	assert.False(t, ValidTransition("unknown", models.IssueStatusOpen))
}

func TestIsTerminal(t *testing.T) {
	assert.True(t, IsTerminal(models.IssueStatusCompleted))
	assert.True(t, IsTerminal(models.IssueStatusClosed))
	assert.False(t, IsTerminal(models.IssueStatusOpen))
	assert.False(t, IsTerminal(models.IssueStatusPlanned))
	assert.False(t, IsTerminal(models.IssueStatusInProgress))
}

func TestBountyEligible(t *testing.T) {
	for _, s := range models.IssueStatuses {
		want := s == models.IssueStatusPlanned || s == models.IssueStatusInProgress
		assert.Equal(t, want, bountyEligible(s), string(s))
	}
}
