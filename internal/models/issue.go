package models

import "time"

// IssueStatus represents the lifecycle state of an issue.
type IssueStatus string

const (
	IssueStatusOpen       IssueStatus = "open"
	IssueStatusPlanned    IssueStatus = "planned"
	IssueStatusInProgress IssueStatus = "in_progress"
	IssueStatusCompleted  IssueStatus = "completed"
	IssueStatusClosed     IssueStatus = "closed"
)

// IssueStatuses lists every status in lifecycle order.
var IssueStatuses = []IssueStatus{
	IssueStatusOpen,
	IssueStatusPlanned,
	IssueStatusInProgress,
	IssueStatusCompleted,
	IssueStatusClosed,
}

// Valid reports whether s is a known status.
func (s IssueStatus) Valid() bool {
	for _, known := range IssueStatuses {
		if s == known {
			return true
		}
	}
	return false
}

// ExperienceLevel is the skill level a bounty asks of applicants.
type ExperienceLevel string

const (
	ExperienceBeginner     ExperienceLevel = "beginner"
	ExperienceIntermediate ExperienceLevel = "intermediate"
	ExperienceAdvanced     ExperienceLevel = "advanced"
)

// Valid reports whether l is a known experience level.
func (l ExperienceLevel) Valid() bool {
	switch l {
	case ExperienceBeginner, ExperienceIntermediate, ExperienceAdvanced:
		return true
	}
	return false
}

// IssueKey addresses one issue inside one organization.
type IssueKey struct {
	OrgID   string
	IssueID uint32
}

// Issue is a unit of proposed work tracked through its lifecycle.
// Nested collections (likes, applicants, funds, logs) are stored separately
// and loaded on demand into IssueInfo.
type Issue struct {
	OrgID           string          `json:"org_id"`
	ID              uint32          `json:"id"`
	Title           string          `json:"title"`
	Description     string          `json:"description"`
	Category        string          `json:"category"`
	Tags            []string        `json:"tags"`
	CreatedAt       time.Time       `json:"created_at"`
	CreatedBy       Principal       `json:"created_by"`
	Status          IssueStatus     `json:"status"`
	Fundable        bool            `json:"fundable"`
	ExperienceLevel ExperienceLevel `json:"experience_level"`
}

// Key returns the composite key of the issue.
func (i *Issue) Key() IssueKey {
	return IssueKey{OrgID: i.OrgID, IssueID: i.ID}
}

// IssueInfo is an issue with all nested collections loaded.
type IssueInfo struct {
	Issue
	Likes      []Principal  `json:"likes"`
	Applicants []*Applicant `json:"applicants"`
	Funds      []*Fund      `json:"funds"`
	Logs       []*Log       `json:"logs"`
	TotalFunds Balance      `json:"total_funds"`
}
