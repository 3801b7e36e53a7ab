package store

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"math/rand"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/joescharf/issuedao/internal/codec"
	"github.com/joescharf/issuedao/internal/models"

	_ "modernc.org/sqlite"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// querier is satisfied by both *sql.DB and *sql.Tx.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// SQLiteStore implements Store using modernc.org/sqlite (pure Go, no CGO).
type SQLiteStore struct {
	db   *sql.DB
	q    querier
	inTx bool
}

// NewSQLiteStore opens (or creates) a SQLite database at the given path.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	// Ensure parent directory exists
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	// SQLite only supports one concurrent writer. A single connection also
	// serializes every engine call, which is the execution model the
	// lifecycle engine assumes.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("enable WAL mode: %w", err)
	}

	if _, err := db.Exec("PRAGMA busy_timeout=5000"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("set busy timeout: %w", err)
	}

	if _, err := db.Exec("PRAGMA foreign_keys=ON"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("enable foreign keys: %w", err)
	}

	return &SQLiteStore{db: db, q: db}, nil
}

// boolToInt converts a bool to 0 or 1 for SQLite storage.
func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

// newULID generates a new ULID string.
func newULID() string {
	entropy := rand.New(rand.NewSource(time.Now().UnixNano()))
	return ulid.MustNew(ulid.Timestamp(time.Now()), ulid.Monotonic(entropy, 0)).String()
}

// Migrate runs all embedded SQL migration files in order.
func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.q.ExecContext(ctx, `CREATE TABLE IF NOT EXISTS schema_migrations (
		filename TEXT PRIMARY KEY,
		applied_at DATETIME NOT NULL DEFAULT (datetime('now'))
	)`)
	if err != nil {
		return fmt.Errorf("create migrations table: %w", err)
	}

	entries, err := migrationsFS.ReadDir("migrations")
	if err != nil {
		return fmt.Errorf("read migrations dir: %w", err)
	}

	sort.Slice(entries, func(i, j int) bool {
		return entries[i].Name() < entries[j].Name()
	})

	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}

		name := entry.Name()

		var count int
		err := s.q.QueryRowContext(ctx, "SELECT COUNT(*) FROM schema_migrations WHERE filename = ?", name).Scan(&count)
		if err != nil {
			return fmt.Errorf("check migration %s: %w", name, err)
		}
		if count > 0 {
			continue
		}

		data, err := migrationsFS.ReadFile("migrations/" + name)
		if err != nil {
			return fmt.Errorf("read migration %s: %w", name, err)
		}

		if _, err := s.q.ExecContext(ctx, string(data)); err != nil {
			return fmt.Errorf("apply migration %s: %w", name, err)
		}

		if _, err := s.q.ExecContext(ctx, "INSERT INTO schema_migrations (filename) VALUES (?)", name); err != nil {
			return fmt.Errorf("record migration %s: %w", name, err)
		}
	}

	return nil
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	if s.inTx {
		return nil
	}
	return s.db.Close()
}

// WithTx runs fn inside a transaction on a store bound to that transaction.
func (s *SQLiteStore) WithTx(ctx context.Context, fn func(tx Store) error) error {
	if s.inTx {
		return fn(s)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}

	if err := fn(&SQLiteStore{db: s.db, q: tx, inTx: true}); err != nil {
		_ = tx.Rollback()
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

// --- Organizations ---

func (s *SQLiteStore) CreateOrganization(ctx context.Context, org *models.Organization) error {
	if org.ID == "" {
		org.ID = newULID()
	}
	if org.CreatedAt.IsZero() {
		org.CreatedAt = time.Now().UTC()
	}

	_, err := s.q.ExecContext(ctx,
		`INSERT INTO organizations (id, account, created_by, created_at) VALUES (?, ?, ?, ?)`,
		org.ID, string(org.Account), string(org.CreatedBy), org.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("create organization: %w", err)
	}
	return nil
}

func (s *SQLiteStore) GetOrganization(ctx context.Context, id string) (*models.Organization, error) {
	org := &models.Organization{}
	var account, createdBy string
	err := s.q.QueryRowContext(ctx,
		`SELECT id, account, created_by, created_at FROM organizations WHERE id = ?`, id,
	).Scan(&org.ID, &account, &createdBy, &org.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("organization %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get organization: %w", err)
	}
	org.Account = models.Principal(account)
	org.CreatedBy = models.Principal(createdBy)
	return org, nil
}

// --- Issues ---

const issueColumns = `org_id, id, title, description, category, tags, created_at, created_by, status, fundable, experience_level`

// CreateIssue inserts issue with the next id, which is the organization's
// current issue count. Ids are never reused because issues are never deleted.
func (s *SQLiteStore) CreateIssue(ctx context.Context, issue *models.Issue) error {
	var count int
	if err := s.q.QueryRowContext(ctx, "SELECT COUNT(*) FROM issues WHERE org_id = ?", issue.OrgID).Scan(&count); err != nil {
		return fmt.Errorf("count issues: %w", err)
	}
	issue.ID = uint32(count)
	if issue.Tags == nil {
		issue.Tags = []string{}
	}

	tags, err := codec.Marshal(issue.Tags)
	if err != nil {
		return fmt.Errorf("encode tags: %w", err)
	}

	_, err = s.q.ExecContext(ctx,
		`INSERT INTO issues (`+issueColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		issue.OrgID, issue.ID, issue.Title, issue.Description, issue.Category, tags,
		issue.CreatedAt, string(issue.CreatedBy), string(issue.Status), boolToInt(issue.Fundable),
		string(issue.ExperienceLevel),
	)
	if err != nil {
		return fmt.Errorf("create issue: %w", err)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanIssue(row rowScanner) (*models.Issue, error) {
	issue := &models.Issue{}
	var tags []byte
	var createdBy, status, level string
	if err := row.Scan(&issue.OrgID, &issue.ID, &issue.Title, &issue.Description, &issue.Category, &tags,
		&issue.CreatedAt, &createdBy, &status, &issue.Fundable, &level); err != nil {
		return nil, err
	}
	issue.CreatedBy = models.Principal(createdBy)
	issue.Status = models.IssueStatus(status)
	issue.ExperienceLevel = models.ExperienceLevel(level)
	issue.Tags = []string{}
	if len(tags) > 0 {
		if err := codec.Unmarshal(tags, &issue.Tags); err != nil {
			return nil, fmt.Errorf("decode tags: %w", err)
		}
	}
	return issue, nil
}

func (s *SQLiteStore) GetIssue(ctx context.Context, key models.IssueKey) (*models.Issue, error) {
	row := s.q.QueryRowContext(ctx,
		`SELECT `+issueColumns+` FROM issues WHERE org_id = ? AND id = ?`, key.OrgID, key.IssueID)
	issue, err := scanIssue(row)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("issue %d: %w", key.IssueID, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get issue: %w", err)
	}
	return issue, nil
}

func issueWhere(orgID string, filter IssueListFilter) (string, []any) {
	conds := []string{"org_id = ?"}
	args := []any{orgID}
	if filter.Status != "" {
		conds = append(conds, "status = ?")
		args = append(args, string(filter.Status))
	}
	if filter.Category != "" {
		conds = append(conds, "category = ?")
		args = append(args, filter.Category)
	}
	if filter.Fundable != nil {
		conds = append(conds, "fundable = ?")
		args = append(args, boolToInt(*filter.Fundable))
	}
	return " WHERE " + strings.Join(conds, " AND "), args
}

func (s *SQLiteStore) ListIssues(ctx context.Context, orgID string, filter IssueListFilter) ([]*models.Issue, error) {
	where, args := issueWhere(orgID, filter)
	rows, err := s.q.QueryContext(ctx, `SELECT `+issueColumns+` FROM issues`+where+` ORDER BY id`, args...)
	if err != nil {
		return nil, fmt.Errorf("list issues: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var issues []*models.Issue
	for rows.Next() {
		issue, err := scanIssue(rows)
		if err != nil {
			return nil, fmt.Errorf("scan issue: %w", err)
		}
		issues = append(issues, issue)
	}
	return issues, rows.Err()
}

func (s *SQLiteStore) CountIssues(ctx context.Context, orgID string, filter IssueListFilter) (int, error) {
	where, args := issueWhere(orgID, filter)
	var n int
	if err := s.q.QueryRowContext(ctx, `SELECT COUNT(*) FROM issues`+where, args...).Scan(&n); err != nil {
		return 0, fmt.Errorf("count issues: %w", err)
	}
	return n, nil
}

func (s *SQLiteStore) UpdateIssue(ctx context.Context, issue *models.Issue) error {
	tags, err := codec.Marshal(issue.Tags)
	if err != nil {
		return fmt.Errorf("encode tags: %w", err)
	}
	result, err := s.q.ExecContext(ctx,
		`UPDATE issues SET title=?, description=?, category=?, tags=?, status=?, fundable=?, experience_level=?
		WHERE org_id=? AND id=?`,
		issue.Title, issue.Description, issue.Category, tags, string(issue.Status),
		boolToInt(issue.Fundable), string(issue.ExperienceLevel), issue.OrgID, issue.ID,
	)
	if err != nil {
		return fmt.Errorf("update issue: %w", err)
	}
	n, _ := result.RowsAffected()
	if n == 0 {
		return fmt.Errorf("issue %d: %w", issue.ID, ErrNotFound)
	}
	return nil
}

// --- Keyed entries ---

func (s *SQLiteStore) nextSeq(ctx context.Context, key EntryKey) (int, error) {
	var seq int
	err := s.q.QueryRowContext(ctx,
		`SELECT COALESCE(MAX(seq) + 1, 0) FROM entries WHERE org_id = ? AND scope = ? AND collection = ?`,
		key.OrgID, key.Scope, string(key.Collection),
	).Scan(&seq)
	if err != nil {
		return 0, fmt.Errorf("next %s seq: %w", key.Collection, err)
	}
	return seq, nil
}

// PutEntry stores value under member, replacing any existing value with the
// same member. It reports whether a new entry was created.
func (s *SQLiteStore) PutEntry(ctx context.Context, key EntryKey, member string, value any) (bool, error) {
	data, err := codec.Marshal(value)
	if err != nil {
		return false, fmt.Errorf("encode %s entry: %w", key.Collection, err)
	}

	result, err := s.q.ExecContext(ctx,
		`UPDATE entries SET value = ? WHERE org_id = ? AND scope = ? AND collection = ? AND member = ?`,
		data, key.OrgID, key.Scope, string(key.Collection), member)
	if err != nil {
		return false, fmt.Errorf("put %s entry: %w", key.Collection, err)
	}
	if n, _ := result.RowsAffected(); n > 0 {
		return false, nil
	}

	if _, err := s.insertEntry(ctx, key, member, data); err != nil {
		return false, err
	}
	return true, nil
}

// AppendEntry adds value at the end of the collection.
func (s *SQLiteStore) AppendEntry(ctx context.Context, key EntryKey, member string, value any) (int, error) {
	data, err := codec.Marshal(value)
	if err != nil {
		return 0, fmt.Errorf("encode %s entry: %w", key.Collection, err)
	}
	return s.insertEntry(ctx, key, member, data)
}

func (s *SQLiteStore) insertEntry(ctx context.Context, key EntryKey, member string, data []byte) (int, error) {
	seq, err := s.nextSeq(ctx, key)
	if err != nil {
		return 0, err
	}
	_, err = s.q.ExecContext(ctx,
		`INSERT INTO entries (org_id, scope, collection, seq, member, value) VALUES (?, ?, ?, ?, ?, ?)`,
		key.OrgID, key.Scope, string(key.Collection), seq, member, data)
	if err != nil {
		return 0, fmt.Errorf("append %s entry: %w", key.Collection, err)
	}
	return seq, nil
}

// ReplaceEntry overwrites the value at seq.
func (s *SQLiteStore) ReplaceEntry(ctx context.Context, key EntryKey, seq int, value any) error {
	data, err := codec.Marshal(value)
	if err != nil {
		return fmt.Errorf("encode %s entry: %w", key.Collection, err)
	}
	result, err := s.q.ExecContext(ctx,
		`UPDATE entries SET value = ? WHERE org_id = ? AND scope = ? AND collection = ? AND seq = ?`,
		data, key.OrgID, key.Scope, string(key.Collection), seq)
	if err != nil {
		return fmt.Errorf("replace %s entry: %w", key.Collection, err)
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return fmt.Errorf("%s entry %d: %w", key.Collection, seq, ErrNotFound)
	}
	return nil
}

// DeleteEntry removes every entry with member. It reports whether any existed.
func (s *SQLiteStore) DeleteEntry(ctx context.Context, key EntryKey, member string) (bool, error) {
	result, err := s.q.ExecContext(ctx,
		`DELETE FROM entries WHERE org_id = ? AND scope = ? AND collection = ? AND member = ?`,
		key.OrgID, key.Scope, string(key.Collection), member)
	if err != nil {
		return false, fmt.Errorf("delete %s entry: %w", key.Collection, err)
	}
	n, _ := result.RowsAffected()
	return n > 0, nil
}

func (s *SQLiteStore) HasEntry(ctx context.Context, key EntryKey, member string) (bool, error) {
	var n int
	err := s.q.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM entries WHERE org_id = ? AND scope = ? AND collection = ? AND member = ?`,
		key.OrgID, key.Scope, string(key.Collection), member).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("check %s entry: %w", key.Collection, err)
	}
	return n > 0, nil
}

// ListEntries returns the collection in insertion order.
func (s *SQLiteStore) ListEntries(ctx context.Context, key EntryKey) ([]Entry, error) {
	rows, err := s.q.QueryContext(ctx,
		`SELECT seq, member, value FROM entries WHERE org_id = ? AND scope = ? AND collection = ? ORDER BY seq`,
		key.OrgID, key.Scope, string(key.Collection))
	if err != nil {
		return nil, fmt.Errorf("list %s entries: %w", key.Collection, err)
	}
	defer func() { _ = rows.Close() }()

	var entries []Entry
	for rows.Next() {
		var e Entry
		if err := rows.Scan(&e.Seq, &e.Member, &e.Value); err != nil {
			return nil, fmt.Errorf("scan %s entry: %w", key.Collection, err)
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}
