package dao

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joescharf/issuedao/internal/models"
	"github.com/joescharf/issuedao/internal/store"
)

func TestQueries_Listing(t *testing.T) {
	f := newFixture(t)
	open := f.createIssue("open one")
	_, err := f.org.CreateIssue(f.ctx, bob, IssueParams{Title: "docs one", Category: "docs"})
	require.NoError(t, err)
	bounty := f.bounty("bounty one", 10)

	all, err := f.org.Issues(f.ctx, store.IssueListFilter{})
	require.NoError(t, err)
	assert.Len(t, all, 3)

	byCategory, err := f.org.IssuesByCategory(f.ctx, "docs")
	require.NoError(t, err)
	require.Len(t, byCategory, 1)
	assert.Equal(t, "docs one", byCategory[0].Title)

	byStatus, err := f.org.IssuesByStatus(f.ctx, models.IssueStatusOpen)
	require.NoError(t, err)
	require.Len(t, byStatus, 2)
	assert.Equal(t, open, byStatus[0].ID)

	_, err = f.org.IssuesByStatus(f.ctx, "archived")
	assertCode(t, err, CodeInvalidArgument)

	bounties, err := f.org.BountiesInfo(f.ctx)
	require.NoError(t, err)
	require.Len(t, bounties, 1)
	assert.Equal(t, bounty, bounties[0].ID)
	assert.Equal(t, "10", bounties[0].TotalFunds.String())

	infos, err := f.org.IssuesInfo(f.ctx, store.IssueListFilter{})
	require.NoError(t, err)
	require.Len(t, infos, 3)
	assert.Len(t, infos[0].Logs, 1)
}

func TestQueries_Counts(t *testing.T) {
	f := newFixture(t)
	f.createIssue("one")
	f.plannedIssue("two")
	f.bounty("three", 5)

	fundable := true
	tests := []struct {
		name   string
		filter store.IssueListFilter
		want   int
	}{
		{"all", store.IssueListFilter{}, 3},
		{"open", store.IssueListFilter{Status: models.IssueStatusOpen}, 1},
		{"planned", store.IssueListFilter{Status: models.IssueStatusPlanned}, 2},
		{"bounties", store.IssueListFilter{Fundable: &fundable}, 1},
		{"category", store.IssueListFilter{Category: "core"}, 3},
		{"empty category", store.IssueListFilter{Category: "ops"}, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			n, err := f.org.Count(f.ctx, tt.filter)
			require.NoError(t, err)
			assert.Equal(t, tt.want, n)
		})
	}
}

func TestIssueInfo_LoadsNestedCollections(t *testing.T) {
	f := newFixture(t)
	id := f.bounty("Fix bug", 10)
	_, err := f.org.LikeIssue(f.ctx, bob, id)
	require.NoError(t, err)
	_, err = f.org.ApplyIssue(f.ctx, alice, id, "please")
	require.NoError(t, err)
	require.NoError(t, f.org.AddComment(f.ctx, bob, id, "+1"))

	info, err := f.org.IssueInfo(f.ctx, id)
	require.NoError(t, err)
	assert.Equal(t, "Fix bug", info.Title)
	assert.Equal(t, []models.Principal{bob}, info.Likes)
	require.Len(t, info.Applicants, 1)
	assert.Equal(t, alice, info.Applicants[0].Applicant)
	assert.Len(t, info.Funds, 1)

	var types []models.LogType
	for _, l := range info.Logs {
		types = append(types, l.LogType)
	}
	assert.Equal(t, []models.LogType{
		models.LogTypeStatus,
		models.LogTypeStatus,
		models.LogTypeFund,
		models.LogTypeApply,
		models.LogTypeComment,
	}, types)
}

func TestVerifyLogs_DetectsTampering(t *testing.T) {
	f := newFixture(t)
	id := f.plannedIssue("Fix bug")
	require.NoError(t, f.org.AddComment(f.ctx, bob, id, "original"))
	require.NoError(t, f.org.VerifyLogs(f.ctx, id))

	logs, err := f.org.Logs(f.ctx, id)
	require.NoError(t, err)
	forged := *logs[2]
	forged.Message = "rewritten"
	key := store.IssueEntryKey(models.IssueKey{OrgID: f.org.ID(), IssueID: id}, store.CollectionLogs)
	require.NoError(t, f.store.ReplaceEntry(f.ctx, key, 2, &forged))

	err = f.org.VerifyLogs(f.ctx, id)
	require.Error(t, err)
	assert.True(t, IsBrokenChain(err))

	_, err = f.org.Logs(f.ctx, 40)
	assertCode(t, err, CodeNotFound)
}
