package store

import (
	"context"
	"errors"

	"github.com/joescharf/issuedao/internal/models"
)

// ErrNotFound is returned when a requested row does not exist.
var ErrNotFound = errors.New("not found")

// IssueListFilter specifies filters for listing issues.
type IssueListFilter struct {
	Status   models.IssueStatus
	Category string
	Fundable *bool
}

// Collection names a keyed collection.
type Collection string

const (
	CollectionInfo       Collection = "info"
	CollectionCouncil    Collection = "council"
	CollectionCategories Collection = "categories"
	CollectionLikes      Collection = "likes"
	CollectionApplicants Collection = "applicants"
	CollectionFunds      Collection = "funds"
	CollectionLogs       Collection = "logs"
)

// orgScope marks organization-level collections.
const orgScope int64 = -1

// EntryKey is the composite key of one keyed collection: organization,
// scope (an issue id, or organization level) and collection tag.
type EntryKey struct {
	OrgID      string
	Scope      int64
	Collection Collection
}

// OrgKey addresses an organization-level collection.
func OrgKey(orgID string, c Collection) EntryKey {
	return EntryKey{OrgID: orgID, Scope: orgScope, Collection: c}
}

// IssueEntryKey addresses a per-issue collection.
func IssueEntryKey(k models.IssueKey, c Collection) EntryKey {
	return EntryKey{OrgID: k.OrgID, Scope: int64(k.IssueID), Collection: c}
}

// Entry is one raw record in a keyed collection. Seq orders entries by
// insertion; Member is the optional lookup key of set-like collections.
type Entry struct {
	Seq    int
	Member string
	Value  []byte
}

// Store defines the persistence interface for organizations and issues.
type Store interface {
	// Organizations
	CreateOrganization(ctx context.Context, org *models.Organization) error
	GetOrganization(ctx context.Context, id string) (*models.Organization, error)

	// Issues
	CreateIssue(ctx context.Context, issue *models.Issue) error
	GetIssue(ctx context.Context, key models.IssueKey) (*models.Issue, error)
	ListIssues(ctx context.Context, orgID string, filter IssueListFilter) ([]*models.Issue, error)
	CountIssues(ctx context.Context, orgID string, filter IssueListFilter) (int, error)
	UpdateIssue(ctx context.Context, issue *models.Issue) error

	// Keyed entries
	PutEntry(ctx context.Context, key EntryKey, member string, value any) (created bool, err error)
	AppendEntry(ctx context.Context, key EntryKey, member string, value any) (seq int, err error)
	ReplaceEntry(ctx context.Context, key EntryKey, seq int, value any) error
	DeleteEntry(ctx context.Context, key EntryKey, member string) (bool, error)
	HasEntry(ctx context.Context, key EntryKey, member string) (bool, error)
	ListEntries(ctx context.Context, key EntryKey) ([]Entry, error)

	// WithTx runs fn inside a transaction. Any error from fn rolls back every
	// write fn made. Nested calls join the outer transaction.
	WithTx(ctx context.Context, fn func(tx Store) error) error

	// Lifecycle
	Migrate(ctx context.Context) error
	Close() error
}
