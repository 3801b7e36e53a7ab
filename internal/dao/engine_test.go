package dao

import (
	"context"
	"io"
	"log/slog"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joescharf/issuedao/internal/clock"
	"github.com/joescharf/issuedao/internal/ledger"
	"github.com/joescharf/issuedao/internal/models"
	"github.com/joescharf/issuedao/internal/store"
)

const (
	founder  models.Principal = "founder.near"
	member   models.Principal = "member.near"
	alice    models.Principal = "alice.near"
	bob      models.Principal = "bob.near"
	outsider models.Principal = "outsider.near"
)

var epoch = time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)

type fixture struct {
	t      *testing.T
	ctx    context.Context
	store  *store.SQLiteStore
	ledger *ledger.Fake
	clock  *clock.FakeClock
	engine *Engine
	org    *Organization
}

func newFixture(t *testing.T, opts ...Option) *fixture {
	t.Helper()
	ctx := context.Background()

	s, err := store.NewSQLiteStore(filepath.Join(t.TempDir(), "dao.db"))
	require.NoError(t, err)
	require.NoError(t, s.Migrate(ctx))
	t.Cleanup(func() { _ = s.Close() })

	f := &fixture{
		t:      t,
		ctx:    ctx,
		store:  s,
		ledger: ledger.NewFake(),
		clock:  clock.Fake(epoch),
	}
	base := []Option{
		WithClock(f.clock),
		WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
	}
	f.engine = New(s, f.ledger, append(base, opts...)...)

	f.org, err = f.engine.Init(ctx, founder, InitParams{
		ProjectURL:  "https://example.org/project",
		LogoURL:     "https://example.org/logo.png",
		Description: "Community issue tracker",
		Categories:  []string{"core", "docs"},
	})
	require.NoError(t, err)
	return f
}

func (f *fixture) createIssue(title string) uint32 {
	f.t.Helper()
	issue, err := f.org.CreateIssue(f.ctx, alice, IssueParams{Title: title, Description: "desc", Category: "core"})
	require.NoError(f.t, err)
	return issue.ID
}

func (f *fixture) plannedIssue(title string) uint32 {
	f.t.Helper()
	id := f.createIssue(title)
	_, err := f.org.ApproveIssue(f.ctx, founder, id)
	require.NoError(f.t, err)
	return id
}

// bounty mints deposit to the founder and turns a planned issue into a bounty
// backed by it.
func (f *fixture) bounty(title string, deposit uint64) uint32 {
	f.t.Helper()
	id := f.plannedIssue(title)
	f.ledger.Mint(founder, deposit)
	_, err := f.org.IssueToBounty(f.ctx, founder, id, models.ExperienceIntermediate, models.NewBalance(deposit))
	require.NoError(f.t, err)
	return id
}

// approvedApplicant registers p on a bounty and approves them.
func (f *fixture) approvedApplicant(id uint32, p models.Principal) {
	f.t.Helper()
	_, err := f.org.ApplyIssue(f.ctx, p, id, "let me")
	require.NoError(f.t, err)
	require.NoError(f.t, f.org.ApproveApplicant(f.ctx, founder, id, p))
}

func (f *fixture) status(id uint32) models.IssueStatus {
	f.t.Helper()
	issue, err := f.org.Issue(f.ctx, id)
	require.NoError(f.t, err)
	return issue.Status
}

func (f *fixture) held() string {
	return f.ledger.BalanceOf(f.org.Account()).String()
}

func assertCode(t *testing.T, err error, code Code) {
	t.Helper()
	require.Error(t, err)
	assert.Equal(t, code, CodeOf(err), "error: %v", err)
}

// reopen returns a handle on the fixture organization from a fresh engine
// whose escrow ledgers come from p.
func (f *fixture) reopen(p ledger.Provider, opts ...Option) *Organization {
	f.t.Helper()
	base := []Option{
		WithClock(f.clock),
		WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
	}
	org, err := New(f.store, p, append(base, opts...)...).Open(f.ctx, f.org.ID())
	require.NoError(f.t, err)
	return org
}

// hookedProvider wraps a ledger provider and runs a hook before the first
// deposit or the first payout made through any escrow it opens.
type hookedProvider struct {
	ledger.Provider
	beforeDeposit func() error
	beforePay     func()

	depositOnce sync.Once
	payOnce     sync.Once
}

func (p *hookedProvider) Escrow(account models.Principal) ledger.Ledger {
	return hookedLedger{Ledger: p.Provider.Escrow(account), p: p}
}

type hookedLedger struct {
	ledger.Ledger
	p *hookedProvider
}

func (l hookedLedger) Deposit(ctx context.Context, from models.Principal, amount models.Balance) error {
	var err error
	if l.p.beforeDeposit != nil {
		l.p.depositOnce.Do(func() { err = l.p.beforeDeposit() })
	}
	if err != nil {
		return err
	}
	return l.Ledger.Deposit(ctx, from, amount)
}

func (l hookedLedger) Pay(ctx context.Context, to models.Principal, amount models.Balance) error {
	if l.p.beforePay != nil {
		l.p.payOnce.Do(l.p.beforePay)
	}
	return l.Ledger.Pay(ctx, to, amount)
}

// interleave returns a hook that starts call in the background and gives it
// time to race the caller. The call's result arrives on the channel.
func interleave(call func() error) (func(), <-chan error) {
	result := make(chan error, 1)
	return func() {
		go func() { result <- call() }()
		time.Sleep(100 * time.Millisecond)
	}, result
}

// --- Organization lifecycle ---

func TestInit_CallerJoinsCouncil(t *testing.T) {
	f := newFixture(t)

	council, err := f.org.Council(f.ctx)
	require.NoError(t, err)
	assert.Equal(t, []models.Principal{founder}, council)

	info, err := f.org.Info(f.ctx)
	require.NoError(t, err)
	assert.Equal(t, f.org.ID(), info.ID)
	assert.Equal(t, "https://example.org/project", info.ProjectURL)
	assert.Equal(t, "https://example.org/logo.png", info.LogoURL)
	assert.Equal(t, "Community issue tracker", info.Description)
	assert.Equal(t, "founder.near", info.CreatedBy)
	assert.Equal(t, epoch.Format(time.RFC3339), info.CreatedAt)
	assert.ElementsMatch(t, []string{"core", "docs"}, info.Categories)
	assert.True(t, strings.HasSuffix(string(info.Account), "."+DefaultAccountSuffix))
	assert.NoError(t, info.Account.Validate())
}

func TestInit_DescriptionLimit(t *testing.T) {
	f := newFixture(t)

	_, err := f.engine.Init(f.ctx, bob, InitParams{Description: strings.Repeat("x", 279)})
	assert.NoError(t, err)

	_, err = f.engine.Init(f.ctx, bob, InitParams{Description: strings.Repeat("x", 280)})
	assertCode(t, err, CodeInvalidArgument)
}

func TestInit_CustomDescriptionLimit(t *testing.T) {
	f := newFixture(t, WithMaxDescriptionLength(10))

	_, err := f.engine.Init(f.ctx, bob, InitParams{Description: "0123456789"})
	assertCode(t, err, CodeInvalidArgument)
}

func TestInit_RejectsMalformedCaller(t *testing.T) {
	f := newFixture(t)

	_, err := f.engine.Init(f.ctx, "Not An Account", InitParams{})
	assertCode(t, err, CodeInvalidArgument)
}

func TestInit_OrganizationsAreIsolated(t *testing.T) {
	f := newFixture(t)
	f.createIssue("first org issue")

	other, err := f.engine.Init(f.ctx, bob, InitParams{Description: "second"})
	require.NoError(t, err)
	assert.NotEqual(t, f.org.Account(), other.Account())

	issue, err := other.CreateIssue(f.ctx, bob, IssueParams{Title: "second org issue"})
	require.NoError(t, err)
	assert.Equal(t, uint32(0), issue.ID)

	ok, err := other.IsCouncilMember(f.ctx, founder)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestOpen(t *testing.T) {
	f := newFixture(t)

	org, err := f.engine.Open(f.ctx, f.org.ID())
	require.NoError(t, err)
	assert.Equal(t, f.org.Account(), org.Account())
	assert.Equal(t, founder, org.Record().CreatedBy)

	_, err = f.engine.Open(f.ctx, "missing")
	assertCode(t, err, CodeNotFound)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestUpdate(t *testing.T) {
	f := newFixture(t)

	err := f.org.Update(f.ctx, founder, InitParams{ProjectURL: "https://new.example", Description: "new"})
	require.NoError(t, err)

	info, err := f.org.Info(f.ctx)
	require.NoError(t, err)
	assert.Equal(t, "https://new.example", info.ProjectURL)
	assert.Equal(t, "", info.LogoURL)
	assert.Equal(t, "new", info.Description)
	assert.ElementsMatch(t, []string{"core", "docs"}, info.Categories, "nil categories keep the set")

	err = f.org.Update(f.ctx, founder, InitParams{Categories: []string{"ops"}})
	require.NoError(t, err)
	categories, err := f.org.Categories(f.ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"ops"}, categories)
}

func TestUpdate_Rejections(t *testing.T) {
	f := newFixture(t)

	assertCode(t, f.org.Update(f.ctx, outsider, InitParams{Description: "mine now"}), CodeUnauthorized)
	assertCode(t, f.org.Update(f.ctx, founder, InitParams{Description: strings.Repeat("y", 300)}), CodeInvalidArgument)
	assertCode(t, f.org.Update(f.ctx, founder, InitParams{Categories: []string{" "}}), CodeInvalidArgument)

	info, err := f.org.Info(f.ctx)
	require.NoError(t, err)
	assert.Equal(t, "Community issue tracker", info.Description)
}

func TestParseClaimPolicy(t *testing.T) {
	p, err := ParseClaimPolicy("")
	require.NoError(t, err)
	assert.Equal(t, ClaimPerApplicant, p)

	p, err = ParseClaimPolicy("single")
	require.NoError(t, err)
	assert.Equal(t, ClaimSingle, p)

	_, err = ParseClaimPolicy("everyone")
	assert.Error(t, err)
}

// --- Council ---

func TestCouncil_AddAndRemove(t *testing.T) {
	f := newFixture(t)

	require.NoError(t, f.org.AddCouncilMember(f.ctx, founder, member))
	council, err := f.org.Council(f.ctx)
	require.NoError(t, err)
	assert.Equal(t, []models.Principal{founder, member}, council)

	require.NoError(t, f.org.RemoveCouncilMember(f.ctx, member, founder))
	council, err = f.org.Council(f.ctx)
	require.NoError(t, err)
	assert.Equal(t, []models.Principal{member}, council)
}

func TestCouncil_Rejections(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.org.AddCouncilMember(f.ctx, founder, member))

	tests := []struct {
		name string
		call func() error
		code Code
	}{
		{"outsider adds", func() error { return f.org.AddCouncilMember(f.ctx, outsider, bob) }, CodeUnauthorized},
		{"outsider removes", func() error { return f.org.RemoveCouncilMember(f.ctx, outsider, member) }, CodeUnauthorized},
		{"duplicate member", func() error { return f.org.AddCouncilMember(f.ctx, founder, member) }, CodeAlreadyExists},
		{"self removal", func() error { return f.org.RemoveCouncilMember(f.ctx, founder, founder) }, CodeUnauthorized},
		{"unknown member", func() error { return f.org.RemoveCouncilMember(f.ctx, founder, bob) }, CodeNotFound},
		{"malformed member", func() error { return f.org.AddCouncilMember(f.ctx, founder, "BAD NAME") }, CodeInvalidArgument},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assertCode(t, tt.call(), tt.code)
		})
	}

	council, err := f.org.Council(f.ctx)
	require.NoError(t, err)
	assert.Equal(t, []models.Principal{founder, member}, council)
}
