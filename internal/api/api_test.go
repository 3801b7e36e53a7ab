package api

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"regexp"
	"testing"
	"time"

	"github.com/sebdah/goldie/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joescharf/issuedao/internal/clock"
	"github.com/joescharf/issuedao/internal/dao"
	"github.com/joescharf/issuedao/internal/ledger"
	"github.com/joescharf/issuedao/internal/models"
	"github.com/joescharf/issuedao/internal/store"
)

const (
	founder  = "founder.near"
	alice    = "alice.near"
	outsider = "outsider.near"
)

type testServer struct {
	t      *testing.T
	router http.Handler
	ledger *ledger.Fake
	orgID  string
}

func setupTestServer(t *testing.T) *testServer {
	t.Helper()
	dir := t.TempDir()
	dbPath := filepath.Join(dir, "test.db")

	s, err := store.NewSQLiteStore(dbPath)
	require.NoError(t, err)
	require.NoError(t, s.Migrate(context.Background()))
	t.Cleanup(func() { s.Close() })

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	fake := ledger.NewFake()
	engine := dao.New(s, fake,
		dao.WithClock(clock.Fake(time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC))),
		dao.WithLogger(logger),
	)
	srv := NewServer(engine, nil, logger)

	ts := &testServer{t: t, router: srv.Router(), ledger: fake}
	w := ts.do("POST", "/api/v1/orgs", founder, "", `{"description":"Community issue tracker","categories":["core","docs"]}`)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	var info models.OrgInfo
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &info))
	ts.orgID = info.ID
	return ts
}

func (ts *testServer) do(method, path, principal, deposit, body string) *httptest.ResponseRecorder {
	ts.t.Helper()
	var r io.Reader
	if body != "" {
		r = bytes.NewBufferString(body)
	}
	req := httptest.NewRequest(method, path, r)
	if principal != "" {
		req.Header.Set(PrincipalHeader, principal)
	}
	if deposit != "" {
		req.Header.Set(DepositHeader, deposit)
	}
	w := httptest.NewRecorder()
	ts.router.ServeHTTP(w, req)
	return w
}

func (ts *testServer) path(suffix string) string {
	return "/api/v1/orgs/" + ts.orgID + suffix
}

// mustDo performs a request and requires the given status.
func (ts *testServer) mustDo(status int, method, suffix, principal, deposit, body string) []byte {
	ts.t.Helper()
	w := ts.do(method, ts.path(suffix), principal, deposit, body)
	require.Equal(ts.t, status, w.Code, "%s %s: %s", method, suffix, w.Body.String())
	return w.Body.Bytes()
}

var hashPattern = regexp.MustCompile(`"hash": "[0-9a-f]{64}"`)

// normalize indents a JSON body and masks values that differ between runs.
func (ts *testServer) normalize(body []byte) []byte {
	ts.t.Helper()
	var out bytes.Buffer
	require.NoError(ts.t, json.Indent(&out, body, "", "  "))
	masked := bytes.ReplaceAll(out.Bytes(), []byte(ts.orgID), []byte("ORG"))
	return hashPattern.ReplaceAll(masked, []byte(`"hash": "HASH"`))
}

func TestInitAndGetOrg(t *testing.T) {
	ts := setupTestServer(t)

	body := ts.mustDo(http.StatusOK, "GET", "", "", "", "")
	var info models.OrgInfo
	require.NoError(t, json.Unmarshal(body, &info))
	assert.Equal(t, "Community issue tracker", info.Description)
	assert.Equal(t, []string{"core", "docs"}, info.Categories)
	assert.Equal(t, []models.Principal{founder}, info.Council)

	body = ts.mustDo(http.StatusOK, "PUT", "", founder, "", `{"description":"Renamed","categories":["ops"]}`)
	require.NoError(t, json.Unmarshal(body, &info))
	assert.Equal(t, "Renamed", info.Description)
	assert.Equal(t, []string{"ops"}, info.Categories)
}

func TestCouncil_API(t *testing.T) {
	ts := setupTestServer(t)

	body := ts.mustDo(http.StatusOK, "POST", "/council", founder, "", `{"member":"member.near"}`)
	var council []models.Principal
	require.NoError(t, json.Unmarshal(body, &council))
	assert.Equal(t, []models.Principal{founder, "member.near"}, council)

	ts.mustDo(http.StatusConflict, "POST", "/council", founder, "", `{"member":"member.near"}`)
	ts.mustDo(http.StatusForbidden, "DELETE", "/council/"+founder, founder, "", "")
	ts.mustDo(http.StatusNoContent, "DELETE", "/council/member.near", founder, "", "")
}

func TestBountyLifecycle_Golden(t *testing.T) {
	ts := setupTestServer(t)
	ts.ledger.Mint(founder, 25)

	ts.mustDo(http.StatusCreated, "POST", "/issues", alice, "", `{"title":"Fix bug","description":"desc","category":"core"}`)
	ts.mustDo(http.StatusOK, "POST", "/issues/0/approve", founder, "", "")
	ts.mustDo(http.StatusOK, "POST", "/issues/0/bounty", founder, "10", `{"experience_level":"intermediate"}`)
	ts.mustDo(http.StatusCreated, "POST", "/issues/0/applicants", alice, "", `{"message":"please"}`)
	ts.mustDo(http.StatusOK, "POST", "/issues/0/applicants/"+alice+"/approve", founder, "", "")
	ts.mustDo(http.StatusOK, "POST", "/issues/0/start", alice, "", "")
	ts.mustDo(http.StatusOK, "POST", "/issues/0/complete", founder, "", "")

	body := ts.mustDo(http.StatusOK, "POST", "/issues/0/claim", alice, "", "")
	assert.JSONEq(t, `{"paid":"10"}`, string(body))
	assert.Equal(t, "10", ts.ledger.BalanceOf(alice).String())

	body = ts.mustDo(http.StatusOK, "GET", "/issues/0/logs/verify", "", "", "")
	assert.JSONEq(t, `{"valid":true}`, string(body))

	body = ts.mustDo(http.StatusOK, "GET", "/issues/0", "", "", "")
	g := goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
	g.Assert(t, "bounty_lifecycle", ts.normalize(body))
}

func TestErrorMapping(t *testing.T) {
	ts := setupTestServer(t)
	ts.mustDo(http.StatusCreated, "POST", "/issues", alice, "", `{"title":"open issue"}`)
	ts.mustDo(http.StatusCreated, "POST", "/issues", alice, "", `{"title":"planned issue"}`)
	ts.mustDo(http.StatusOK, "POST", "/issues/1/approve", founder, "", "")

	tests := []struct {
		name      string
		method    string
		suffix    string
		principal string
		deposit   string
		body      string
		status    int
		code      dao.Code
	}{
		{"outsider approves", "POST", "/issues/0/approve", outsider, "", "", http.StatusForbidden, dao.CodeUnauthorized},
		{"close planned issue", "POST", "/issues/1/close", founder, "", "", http.StatusConflict, dao.CodeInvalidStateTransition},
		{"unknown issue", "GET", "/issues/9", "", "", "", http.StatusNotFound, dao.CodeNotFound},
		{"bounty without funds", "POST", "/issues/1/bounty", founder, "5", `{"experience_level":"beginner"}`, http.StatusPaymentRequired, dao.CodeInsufficientFunds},
		{"missing principal", "POST", "/issues", "", "", `{"title":"anon"}`, http.StatusBadRequest, dao.CodeInvalidArgument},
		{"unknown status filter", "GET", "/issues?status=archived", "", "", "", http.StatusBadRequest, dao.CodeInvalidArgument},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := ts.do(tt.method, ts.path(tt.suffix), tt.principal, tt.deposit, tt.body)
			assert.Equal(t, tt.status, w.Code, w.Body.String())

			var resp map[string]string
			require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
			assert.Equal(t, string(tt.code), resp["code"])
			assert.NotEmpty(t, resp["error"])
		})
	}
}

func TestRequestValidation(t *testing.T) {
	ts := setupTestServer(t)
	ts.mustDo(http.StatusCreated, "POST", "/issues", alice, "", `{"title":"Fix bug"}`)

	ts.mustDo(http.StatusBadRequest, "GET", "/issues/abc", "", "", "")
	ts.mustDo(http.StatusBadRequest, "POST", "/issues", alice, "", `{not json`)
	ts.mustDo(http.StatusBadRequest, "POST", "/issues/0/fund", alice, "-3", "")
	ts.mustDo(http.StatusBadRequest, "GET", "/issues?fundable=maybe", "", "", "")

	w := ts.do("GET", "/api/v1/orgs/missing", "", "", "")
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestListAndCount(t *testing.T) {
	ts := setupTestServer(t)
	ts.ledger.Mint(founder, 5)
	ts.mustDo(http.StatusCreated, "POST", "/issues", alice, "", `{"title":"one","category":"core"}`)
	ts.mustDo(http.StatusCreated, "POST", "/issues", alice, "", `{"title":"two","category":"docs"}`)
	ts.mustDo(http.StatusOK, "POST", "/issues/1/approve", founder, "", "")
	ts.mustDo(http.StatusOK, "POST", "/issues/1/bounty", founder, "5", `{"experience_level":"beginner"}`)

	var issues []models.Issue
	require.NoError(t, json.Unmarshal(ts.mustDo(http.StatusOK, "GET", "/issues?category=docs", "", "", ""), &issues))
	require.Len(t, issues, 1)
	assert.Equal(t, "two", issues[0].Title)

	assert.JSONEq(t, `{"count":2}`, string(ts.mustDo(http.StatusOK, "GET", "/issues/count", "", "", "")))
	assert.JSONEq(t, `{"count":1}`, string(ts.mustDo(http.StatusOK, "GET", "/issues/count?status=open", "", "", "")))
	assert.JSONEq(t, `{"count":1}`, string(ts.mustDo(http.StatusOK, "GET", "/issues/count?fundable=true", "", "", "")))

	var bounties []models.IssueInfo
	require.NoError(t, json.Unmarshal(ts.mustDo(http.StatusOK, "GET", "/bounties", "", "", ""), &bounties))
	require.Len(t, bounties, 1)
	assert.Equal(t, "5", bounties[0].TotalFunds.String())

	var expanded []models.IssueInfo
	require.NoError(t, json.Unmarshal(ts.mustDo(http.StatusOK, "GET", "/issues?expand=true", "", "", ""), &expanded))
	require.Len(t, expanded, 2)
	assert.Len(t, expanded[0].Logs, 1)
}

func TestSocialEndpoints(t *testing.T) {
	ts := setupTestServer(t)
	ts.mustDo(http.StatusCreated, "POST", "/issues", alice, "", `{"title":"Fix bug"}`)

	assert.JSONEq(t, `{"added":true}`, string(ts.mustDo(http.StatusOK, "POST", "/issues/0/likes", outsider, "", "")))
	assert.JSONEq(t, `{"added":false}`, string(ts.mustDo(http.StatusOK, "POST", "/issues/0/likes", outsider, "", "")))
	assert.JSONEq(t, `["outsider.near"]`, string(ts.mustDo(http.StatusOK, "GET", "/issues/0/likes", "", "", "")))

	var logs []models.Log
	require.NoError(t, json.Unmarshal(ts.mustDo(http.StatusOK, "POST", "/issues/0/comments", outsider, "", `{"text":"+1"}`), &logs))
	require.Len(t, logs, 2)
	assert.Equal(t, models.LogTypeComment, logs[1].LogType)
}

func TestSuggest_WithoutLLM(t *testing.T) {
	ts := setupTestServer(t)
	ts.mustDo(http.StatusServiceUnavailable, "POST", "/suggest", alice, "", `{"title":"Fix typo"}`)
}

func TestCORSPreflight(t *testing.T) {
	ts := setupTestServer(t)
	w := ts.do("OPTIONS", ts.path("/issues"), "", "", "")
	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Equal(t, "*", w.Header().Get("Access-Control-Allow-Origin"))
	assert.Contains(t, w.Header().Get("Access-Control-Allow-Headers"), PrincipalHeader)
}
