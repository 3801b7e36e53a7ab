// Package dao is the issue lifecycle engine. An Engine hosts any number of
// organizations; each Organization owns a council, a category set, and a
// collection of issues that move through a fixed lifecycle, can be turned
// into funded bounties, and pay out to approved applicants.
//
// Every mutating call runs inside one store transaction. A rejected call
// returns an *Error and leaves no partial state behind.
package dao

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/oklog/ulid/v2"

	"github.com/joescharf/issuedao/internal/audit"
	"github.com/joescharf/issuedao/internal/clock"
	"github.com/joescharf/issuedao/internal/ledger"
	"github.com/joescharf/issuedao/internal/models"
	"github.com/joescharf/issuedao/internal/store"
)

const (
	// DefaultMaxDescriptionLength bounds an organization description, in characters.
	DefaultMaxDescriptionLength = 280

	// DefaultAccountSuffix is appended to an organization id to form its escrow account.
	DefaultAccountSuffix = "issuedao"
)

// ClaimPolicy decides how many approved applicants may claim a bounty.
type ClaimPolicy string

const (
	// ClaimPerApplicant lets every approved applicant claim once. Each claim
	// pays the full recorded total.
	ClaimPerApplicant ClaimPolicy = "per_applicant"

	// ClaimSingle pays out a bounty at most once.
	ClaimSingle ClaimPolicy = "single"
)

// ParseClaimPolicy converts a config value into a ClaimPolicy.
func ParseClaimPolicy(s string) (ClaimPolicy, error) {
	switch ClaimPolicy(s) {
	case ClaimPerApplicant, ClaimSingle:
		return ClaimPolicy(s), nil
	case "":
		return ClaimPerApplicant, nil
	}
	return "", fmt.Errorf("unknown claim policy %q (want %s or %s)", s, ClaimPerApplicant, ClaimSingle)
}

// Engine runs lifecycle calls against a store and a value ledger.
type Engine struct {
	store   store.Store
	ledgers ledger.Provider
	clock   clock.Clock
	logger  *slog.Logger

	maxDescriptionLength int
	claimPolicy          ClaimPolicy
	accountSuffix        string

	// locks holds one *sync.Mutex per organization id.
	locks sync.Map
}

// Option configures an Engine.
type Option func(*Engine)

// WithClock sets the time source used for timestamps.
func WithClock(c clock.Clock) Option {
	return func(e *Engine) { e.clock = c }
}

// WithLogger sets the structured logger.
func WithLogger(l *slog.Logger) Option {
	return func(e *Engine) { e.logger = l }
}

// WithMaxDescriptionLength sets the exclusive upper bound on organization
// description length.
func WithMaxDescriptionLength(n int) Option {
	return func(e *Engine) { e.maxDescriptionLength = n }
}

// WithClaimPolicy sets the bounty claim policy.
func WithClaimPolicy(p ClaimPolicy) Option {
	return func(e *Engine) { e.claimPolicy = p }
}

// WithAccountSuffix sets the suffix of organization escrow accounts.
func WithAccountSuffix(s string) Option {
	return func(e *Engine) { e.accountSuffix = s }
}

// New creates an Engine.
func New(s store.Store, ledgers ledger.Provider, opts ...Option) *Engine {
	e := &Engine{
		store:                s,
		ledgers:              ledgers,
		clock:                clock.Real(),
		logger:               slog.Default(),
		maxDescriptionLength: DefaultMaxDescriptionLength,
		claimPolicy:          ClaimPerApplicant,
		accountSuffix:        DefaultAccountSuffix,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// InitParams describes a new organization, or replacement metadata for an
// existing one.
type InitParams struct {
	ProjectURL  string
	LogoURL     string
	Description string
	// Categories replaces the category set. On update a nil slice keeps the
	// current set.
	Categories []string
}

func (e *Engine) validateInit(op string, p InitParams) error {
	if utf8.RuneCountInString(p.Description) >= e.maxDescriptionLength {
		return newError(op, CodeInvalidArgument, "description must be shorter than %d characters", e.maxDescriptionLength)
	}
	for _, c := range p.Categories {
		if strings.TrimSpace(c) == "" {
			return newError(op, CodeInvalidArgument, "category names must not be empty")
		}
	}
	return nil
}

// Init creates an organization. The caller becomes its first council member.
func (e *Engine) Init(ctx context.Context, caller models.Principal, p InitParams) (*Organization, error) {
	const op = "init"
	if err := validatePrincipal(op, "caller", caller); err != nil {
		return nil, err
	}
	if err := e.validateInit(op, p); err != nil {
		return nil, err
	}

	id := ulid.Make().String()
	rec := &models.Organization{
		ID:        id,
		Account:   models.Principal(strings.ToLower(id) + "." + e.accountSuffix),
		CreatedBy: caller,
		CreatedAt: e.clock.Now(),
	}
	if err := rec.Account.Validate(); err != nil {
		return nil, &Error{Code: CodeInvalidArgument, Op: op, Message: "escrow account", Err: err}
	}

	err := e.store.WithTx(ctx, func(tx store.Store) error {
		if err := tx.CreateOrganization(ctx, rec); err != nil {
			return err
		}
		fields := map[string]string{
			models.InfoProjectURL:  p.ProjectURL,
			models.InfoLogoURL:     p.LogoURL,
			models.InfoDescription: p.Description,
			models.InfoCreatedAt:   rec.CreatedAt.Format(time.RFC3339),
			models.InfoCreatedBy:   string(caller),
		}
		for k, v := range fields {
			if err := store.SetInfo(ctx, tx, rec.ID, k, v); err != nil {
				return err
			}
		}
		if err := store.SetCategories(ctx, tx, rec.ID, p.Categories); err != nil {
			return err
		}
		_, err := store.AddCouncilMember(ctx, tx, rec.ID, caller)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("init organization: %w", err)
	}

	e.logger.Info("organization created", "org", rec.ID, "account", rec.Account, "caller", caller)
	return e.handle(rec), nil
}

// Open returns a handle on an existing organization.
func (e *Engine) Open(ctx context.Context, orgID string) (*Organization, error) {
	rec, err := e.store.GetOrganization(ctx, orgID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, newError("open", CodeNotFound, "organization %s not found", orgID)
	}
	if err != nil {
		return nil, err
	}
	return e.handle(rec), nil
}

func (e *Engine) handle(rec *models.Organization) *Organization {
	return &Organization{
		engine: e,
		rec:    rec,
		ledger: e.ledgers.Escrow(rec.Account),
		logger: e.logger.With("org", rec.ID),
	}
}

// Organization is a handle on one organization's state.
type Organization struct {
	engine *Engine
	rec    *models.Organization
	ledger ledger.Ledger
	logger *slog.Logger
}

// ID returns the organization id.
func (o *Organization) ID() string { return o.rec.ID }

// Account returns the organization escrow account.
func (o *Organization) Account() models.Principal { return o.rec.Account }

// Record returns a copy of the stored organization row.
func (o *Organization) Record() models.Organization { return *o.rec }

func validatePrincipal(op, role string, p models.Principal) error {
	if err := p.Validate(); err != nil {
		return &Error{Code: CodeInvalidArgument, Op: op, Message: role + ": " + err.Error(), Err: err}
	}
	return nil
}

func (e *Engine) lock(orgID string) func() {
	mu, _ := e.locks.LoadOrStore(orgID, &sync.Mutex{})
	m := mu.(*sync.Mutex)
	m.Lock()
	return m.Unlock
}

// mutate runs fn as one atomic engine call on behalf of caller.
func (o *Organization) mutate(ctx context.Context, op string, caller models.Principal, fn func(tx store.Store) error) error {
	return o.mutateThen(ctx, op, caller, fn, nil)
}

// mutateThen is mutate with a follow-up step. Calls on one organization run
// one at a time; after runs once fn has committed, before the next call on
// the organization starts.
func (o *Organization) mutateThen(ctx context.Context, op string, caller models.Principal, fn func(tx store.Store) error, after func()) error {
	if err := validatePrincipal(op, "caller", caller); err != nil {
		return err
	}
	unlock := o.engine.lock(o.rec.ID)
	defer unlock()

	if err := o.engine.store.WithTx(ctx, fn); err != nil {
		if CodeOf(err) != "" {
			return err
		}
		return fmt.Errorf("%s: %w", op, err)
	}
	if after != nil {
		after()
	}
	return nil
}

func (o *Organization) requireCouncil(ctx context.Context, s store.Store, op string, caller models.Principal) error {
	ok, err := store.IsCouncilMember(ctx, s, o.rec.ID, caller)
	if err != nil {
		return err
	}
	if !ok {
		return newError(op, CodeUnauthorized, "%s is not a council member", caller)
	}
	return nil
}

func (o *Organization) key(id uint32) models.IssueKey {
	return models.IssueKey{OrgID: o.rec.ID, IssueID: id}
}

func (o *Organization) loadIssue(ctx context.Context, s store.Store, op string, id uint32) (*models.Issue, error) {
	issue, err := s.GetIssue(ctx, o.key(id))
	if errors.Is(err, store.ErrNotFound) {
		return nil, newError(op, CodeNotFound, "issue %d not found", id)
	}
	return issue, err
}

// appendLog seals a log entry onto the issue's audit chain. The entry
// snapshots the issue's current status.
func (o *Organization) appendLog(ctx context.Context, s store.Store, issue *models.Issue, caller models.Principal, t models.LogType, msg string) error {
	logs, err := store.Logs(ctx, s, issue.Key())
	if err != nil {
		return err
	}
	prev, err := audit.Head(logs)
	if err != nil {
		return fmt.Errorf("issue %d audit head: %w", issue.ID, err)
	}

	entry := &models.Log{
		LogType:   t,
		Message:   msg,
		Status:    issue.Status,
		Sender:    caller,
		Timestamp: o.engine.clock.Now(),
	}
	h, err := audit.Seal(prev, *entry)
	if err != nil {
		return err
	}
	entry.Hash = h.String()
	return store.AppendLog(ctx, s, issue.Key(), entry)
}
