package api

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/joescharf/issuedao/internal/dao"
	"github.com/joescharf/issuedao/internal/llm"
	"github.com/joescharf/issuedao/internal/models"
	"github.com/joescharf/issuedao/internal/store"
)

const (
	// PrincipalHeader carries the calling principal.
	PrincipalHeader = "X-Principal"

	// DepositHeader carries the value attached to a funding call.
	DepositHeader = "X-Deposit"
)

// Server provides the REST API handlers.
type Server struct {
	engine *dao.Engine
	llm    *llm.Client
	logger *slog.Logger
}

// NewServer creates a new API server.
// The llmClient may be nil if no API key is configured.
func NewServer(e *dao.Engine, llmClient *llm.Client, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{engine: e, llm: llmClient, logger: logger}
}

// Router returns an http.Handler for the API routes.
func (s *Server) Router() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("POST /api/v1/orgs", s.initOrg)
	mux.HandleFunc("GET /api/v1/orgs/{org}", s.getOrg)
	mux.HandleFunc("PUT /api/v1/orgs/{org}", s.updateOrg)

	mux.HandleFunc("GET /api/v1/orgs/{org}/council", s.listCouncil)
	mux.HandleFunc("POST /api/v1/orgs/{org}/council", s.addCouncilMember)
	mux.HandleFunc("DELETE /api/v1/orgs/{org}/council/{member}", s.removeCouncilMember)

	mux.HandleFunc("GET /api/v1/orgs/{org}/issues", s.listIssues)
	mux.HandleFunc("POST /api/v1/orgs/{org}/issues", s.createIssue)
	mux.HandleFunc("GET /api/v1/orgs/{org}/issues/count", s.countIssues)
	mux.HandleFunc("GET /api/v1/orgs/{org}/bounties", s.listBounties)
	mux.HandleFunc("POST /api/v1/orgs/{org}/suggest", s.suggest)

	mux.HandleFunc("GET /api/v1/orgs/{org}/issues/{id}", s.getIssue)
	mux.HandleFunc("PUT /api/v1/orgs/{org}/issues/{id}", s.updateIssue)
	mux.HandleFunc("POST /api/v1/orgs/{org}/issues/{id}/approve", s.transition((*dao.Organization).ApproveIssue))
	mux.HandleFunc("POST /api/v1/orgs/{org}/issues/{id}/close", s.transition((*dao.Organization).CloseIssue))
	mux.HandleFunc("POST /api/v1/orgs/{org}/issues/{id}/start", s.transition((*dao.Organization).StartIssue))
	mux.HandleFunc("POST /api/v1/orgs/{org}/issues/{id}/complete", s.transition((*dao.Organization).CompleteIssue))

	mux.HandleFunc("POST /api/v1/orgs/{org}/issues/{id}/bounty", s.issueToBounty)
	mux.HandleFunc("POST /api/v1/orgs/{org}/issues/{id}/fund", s.fundIssue)
	mux.HandleFunc("GET /api/v1/orgs/{org}/issues/{id}/funds", s.listFunds)

	mux.HandleFunc("GET /api/v1/orgs/{org}/issues/{id}/applicants", s.listApplicants)
	mux.HandleFunc("POST /api/v1/orgs/{org}/issues/{id}/applicants", s.applyIssue)
	mux.HandleFunc("POST /api/v1/orgs/{org}/issues/{id}/applicants/{applicant}/approve", s.approveApplicant)
	mux.HandleFunc("POST /api/v1/orgs/{org}/issues/{id}/applicants/{applicant}/revoke", s.revokeApplicant)
	mux.HandleFunc("POST /api/v1/orgs/{org}/issues/{id}/claim", s.claimBounty)

	mux.HandleFunc("POST /api/v1/orgs/{org}/issues/{id}/comments", s.addComment)
	mux.HandleFunc("GET /api/v1/orgs/{org}/issues/{id}/likes", s.listLikes)
	mux.HandleFunc("POST /api/v1/orgs/{org}/issues/{id}/likes", s.likeIssue)
	mux.HandleFunc("GET /api/v1/orgs/{org}/issues/{id}/logs", s.listLogs)
	mux.HandleFunc("GET /api/v1/orgs/{org}/issues/{id}/logs/verify", s.verifyLogs)

	return corsMiddleware(mux)
}

func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, "+PrincipalHeader+", "+DepositHeader)
		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// errorStatus maps an engine rejection code to an HTTP status.
var errorStatus = map[dao.Code]int{
	dao.CodeNotFound:               http.StatusNotFound,
	dao.CodeUnauthorized:           http.StatusForbidden,
	dao.CodeInvalidStateTransition: http.StatusConflict,
	dao.CodeInsufficientFunds:      http.StatusPaymentRequired,
	dao.CodeAlreadyExists:          http.StatusConflict,
	dao.CodeInvalidArgument:        http.StatusBadRequest,
}

// writeEngineError reports a failed engine call. Rejections carry their
// code; anything else is an internal error.
func (s *Server) writeEngineError(w http.ResponseWriter, r *http.Request, err error) {
	code := dao.CodeOf(err)
	status, ok := errorStatus[code]
	if !ok {
		s.logger.Error("request failed", "method", r.Method, "path", r.URL.Path, "error", err)
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, status, map[string]string{"error": err.Error(), "code": string(code)})
}

func caller(r *http.Request) models.Principal {
	return models.Principal(r.Header.Get(PrincipalHeader))
}

// deposit parses the value attached to the request. A missing header is zero.
func deposit(r *http.Request) (models.Balance, error) {
	raw := r.Header.Get(DepositHeader)
	if raw == "" {
		return models.Balance{}, nil
	}
	return models.ParseBalance(raw)
}

func (s *Server) org(w http.ResponseWriter, r *http.Request) (*dao.Organization, bool) {
	o, err := s.engine.Open(r.Context(), r.PathValue("org"))
	if err != nil {
		s.writeEngineError(w, r, err)
		return nil, false
	}
	return o, true
}

func issueID(w http.ResponseWriter, r *http.Request) (uint32, bool) {
	id, err := strconv.ParseUint(r.PathValue("id"), 10, 32)
	if err != nil {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid issue id %q", r.PathValue("id")))
		return 0, false
	}
	return uint32(id), true
}

// orgIssue resolves the organization and issue id path values.
func (s *Server) orgIssue(w http.ResponseWriter, r *http.Request) (*dao.Organization, uint32, bool) {
	id, ok := issueID(w, r)
	if !ok {
		return nil, 0, false
	}
	o, ok := s.org(w, r)
	if !ok {
		return nil, 0, false
	}
	return o, id, true
}

func decode(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return false
	}
	return true
}

// --- Organizations ---

type orgRequest struct {
	ProjectURL  string   `json:"project_url"`
	LogoURL     string   `json:"logo_url"`
	Description string   `json:"description"`
	Categories  []string `json:"categories"`
}

func (req orgRequest) params() dao.InitParams {
	return dao.InitParams{
		ProjectURL:  req.ProjectURL,
		LogoURL:     req.LogoURL,
		Description: req.Description,
		Categories:  req.Categories,
	}
}

func (s *Server) initOrg(w http.ResponseWriter, r *http.Request) {
	var req orgRequest
	if !decode(w, r, &req) {
		return
	}
	o, err := s.engine.Init(r.Context(), caller(r), req.params())
	if err != nil {
		s.writeEngineError(w, r, err)
		return
	}
	info, err := o.Info(r.Context())
	if err != nil {
		s.writeEngineError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, info)
}

func (s *Server) getOrg(w http.ResponseWriter, r *http.Request) {
	o, ok := s.org(w, r)
	if !ok {
		return
	}
	info, err := o.Info(r.Context())
	if err != nil {
		s.writeEngineError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, info)
}

func (s *Server) updateOrg(w http.ResponseWriter, r *http.Request) {
	o, ok := s.org(w, r)
	if !ok {
		return
	}
	var req orgRequest
	if !decode(w, r, &req) {
		return
	}
	if err := o.Update(r.Context(), caller(r), req.params()); err != nil {
		s.writeEngineError(w, r, err)
		return
	}
	info, err := o.Info(r.Context())
	if err != nil {
		s.writeEngineError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, info)
}

// --- Council ---

func (s *Server) listCouncil(w http.ResponseWriter, r *http.Request) {
	o, ok := s.org(w, r)
	if !ok {
		return
	}
	council, err := o.Council(r.Context())
	if err != nil {
		s.writeEngineError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, council)
}

func (s *Server) addCouncilMember(w http.ResponseWriter, r *http.Request) {
	o, ok := s.org(w, r)
	if !ok {
		return
	}
	var req struct {
		Member models.Principal `json:"member"`
	}
	if !decode(w, r, &req) {
		return
	}
	if err := o.AddCouncilMember(r.Context(), caller(r), req.Member); err != nil {
		s.writeEngineError(w, r, err)
		return
	}
	s.listCouncil(w, r)
}

func (s *Server) removeCouncilMember(w http.ResponseWriter, r *http.Request) {
	o, ok := s.org(w, r)
	if !ok {
		return
	}
	member := models.Principal(r.PathValue("member"))
	if err := o.RemoveCouncilMember(r.Context(), caller(r), member); err != nil {
		s.writeEngineError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// --- Issues ---

func listFilter(r *http.Request) (store.IssueListFilter, error) {
	q := r.URL.Query()
	filter := store.IssueListFilter{
		Status:   models.IssueStatus(q.Get("status")),
		Category: q.Get("category"),
	}
	if v := q.Get("fundable"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return filter, fmt.Errorf("invalid fundable %q", v)
		}
		filter.Fundable = &b
	}
	return filter, nil
}

func (s *Server) listIssues(w http.ResponseWriter, r *http.Request) {
	o, ok := s.org(w, r)
	if !ok {
		return
	}
	filter, err := listFilter(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	var result any
	if r.URL.Query().Get("expand") == "true" {
		result, err = o.IssuesInfo(r.Context(), filter)
	} else {
		result, err = o.Issues(r.Context(), filter)
	}
	if err != nil {
		s.writeEngineError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (s *Server) countIssues(w http.ResponseWriter, r *http.Request) {
	o, ok := s.org(w, r)
	if !ok {
		return
	}
	filter, err := listFilter(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	n, err := o.Count(r.Context(), filter)
	if err != nil {
		s.writeEngineError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"count": n})
}

func (s *Server) listBounties(w http.ResponseWriter, r *http.Request) {
	o, ok := s.org(w, r)
	if !ok {
		return
	}
	bounties, err := o.BountiesInfo(r.Context())
	if err != nil {
		s.writeEngineError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, bounties)
}

type issueRequest struct {
	Title       string   `json:"title"`
	Description string   `json:"description"`
	Category    string   `json:"category"`
	Tags        []string `json:"tags"`
}

func (req issueRequest) params() dao.IssueParams {
	return dao.IssueParams{Title: req.Title, Description: req.Description, Category: req.Category, Tags: req.Tags}
}

func (s *Server) createIssue(w http.ResponseWriter, r *http.Request) {
	o, ok := s.org(w, r)
	if !ok {
		return
	}
	var req issueRequest
	if !decode(w, r, &req) {
		return
	}
	issue, err := o.CreateIssue(r.Context(), caller(r), req.params())
	if err != nil {
		s.writeEngineError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, issue)
}

func (s *Server) getIssue(w http.ResponseWriter, r *http.Request) {
	o, id, ok := s.orgIssue(w, r)
	if !ok {
		return
	}
	info, err := o.IssueInfo(r.Context(), id)
	if err != nil {
		s.writeEngineError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, info)
}

func (s *Server) updateIssue(w http.ResponseWriter, r *http.Request) {
	o, id, ok := s.orgIssue(w, r)
	if !ok {
		return
	}
	var req issueRequest
	if !decode(w, r, &req) {
		return
	}
	issue, err := o.UpdateIssue(r.Context(), caller(r), id, req.params())
	if err != nil {
		s.writeEngineError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, issue)
}

type transitionFunc func(o *dao.Organization, ctx context.Context, caller models.Principal, id uint32) (*models.Issue, error)

func (s *Server) transition(fn transitionFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		o, id, ok := s.orgIssue(w, r)
		if !ok {
			return
		}
		issue, err := fn(o, r.Context(), caller(r), id)
		if err != nil {
			s.writeEngineError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, issue)
	}
}

// --- Bounties ---

func (s *Server) issueToBounty(w http.ResponseWriter, r *http.Request) {
	o, id, ok := s.orgIssue(w, r)
	if !ok {
		return
	}
	amount, err := deposit(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	var req struct {
		ExperienceLevel models.ExperienceLevel `json:"experience_level"`
	}
	if !decode(w, r, &req) {
		return
	}
	issue, err := o.IssueToBounty(r.Context(), caller(r), id, req.ExperienceLevel, amount)
	if err != nil {
		s.writeEngineError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, issue)
}

func (s *Server) fundIssue(w http.ResponseWriter, r *http.Request) {
	o, id, ok := s.orgIssue(w, r)
	if !ok {
		return
	}
	amount, err := deposit(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := o.FundIssue(r.Context(), caller(r), id, amount); err != nil {
		s.writeEngineError(w, r, err)
		return
	}
	total, err := o.TotalFunds(r.Context(), id)
	if err != nil {
		s.writeEngineError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]models.Balance{"total_funds": total})
}

func (s *Server) listFunds(w http.ResponseWriter, r *http.Request) {
	o, id, ok := s.orgIssue(w, r)
	if !ok {
		return
	}
	funds, err := o.Funds(r.Context(), id)
	if err != nil {
		s.writeEngineError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, funds)
}

// --- Applicants ---

func (s *Server) listApplicants(w http.ResponseWriter, r *http.Request) {
	o, id, ok := s.orgIssue(w, r)
	if !ok {
		return
	}
	applicants, err := o.Applicants(r.Context(), id)
	if err != nil {
		s.writeEngineError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, applicants)
}

func (s *Server) applyIssue(w http.ResponseWriter, r *http.Request) {
	o, id, ok := s.orgIssue(w, r)
	if !ok {
		return
	}
	var req struct {
		Message string `json:"message"`
	}
	if !decode(w, r, &req) {
		return
	}
	applicant, err := o.ApplyIssue(r.Context(), caller(r), id, req.Message)
	if err != nil {
		s.writeEngineError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, applicant)
}

func (s *Server) approveApplicant(w http.ResponseWriter, r *http.Request) {
	o, id, ok := s.orgIssue(w, r)
	if !ok {
		return
	}
	applicant := models.Principal(r.PathValue("applicant"))
	if err := o.ApproveApplicant(r.Context(), caller(r), id, applicant); err != nil {
		s.writeEngineError(w, r, err)
		return
	}
	s.listApplicants(w, r)
}

func (s *Server) revokeApplicant(w http.ResponseWriter, r *http.Request) {
	o, id, ok := s.orgIssue(w, r)
	if !ok {
		return
	}
	applicant := models.Principal(r.PathValue("applicant"))
	issue, err := o.RevokeApplicant(r.Context(), caller(r), id, applicant)
	if err != nil {
		s.writeEngineError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, issue)
}

func (s *Server) claimBounty(w http.ResponseWriter, r *http.Request) {
	o, id, ok := s.orgIssue(w, r)
	if !ok {
		return
	}
	paid, err := o.ClaimBounty(r.Context(), caller(r), id)
	if err != nil {
		s.writeEngineError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]models.Balance{"paid": paid})
}

// --- Social ---

func (s *Server) addComment(w http.ResponseWriter, r *http.Request) {
	o, id, ok := s.orgIssue(w, r)
	if !ok {
		return
	}
	var req struct {
		Text string `json:"text"`
	}
	if !decode(w, r, &req) {
		return
	}
	if err := o.AddComment(r.Context(), caller(r), id, req.Text); err != nil {
		s.writeEngineError(w, r, err)
		return
	}
	s.listLogs(w, r)
}

func (s *Server) listLikes(w http.ResponseWriter, r *http.Request) {
	o, id, ok := s.orgIssue(w, r)
	if !ok {
		return
	}
	likes, err := o.Likes(r.Context(), id)
	if err != nil {
		s.writeEngineError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, likes)
}

func (s *Server) likeIssue(w http.ResponseWriter, r *http.Request) {
	o, id, ok := s.orgIssue(w, r)
	if !ok {
		return
	}
	added, err := o.LikeIssue(r.Context(), caller(r), id)
	if err != nil {
		s.writeEngineError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"added": added})
}

func (s *Server) listLogs(w http.ResponseWriter, r *http.Request) {
	o, id, ok := s.orgIssue(w, r)
	if !ok {
		return
	}
	logs, err := o.Logs(r.Context(), id)
	if err != nil {
		s.writeEngineError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, logs)
}

func (s *Server) verifyLogs(w http.ResponseWriter, r *http.Request) {
	o, id, ok := s.orgIssue(w, r)
	if !ok {
		return
	}
	err := o.VerifyLogs(r.Context(), id)
	switch {
	case err == nil:
		writeJSON(w, http.StatusOK, map[string]any{"valid": true})
	case dao.IsBrokenChain(err):
		writeJSON(w, http.StatusOK, map[string]any{"valid": false, "error": err.Error()})
	default:
		s.writeEngineError(w, r, err)
	}
}

// --- Triage ---

func (s *Server) suggest(w http.ResponseWriter, r *http.Request) {
	if s.llm == nil {
		writeError(w, http.StatusServiceUnavailable, "LLM not configured (set ANTHROPIC_API_KEY)")
		return
	}
	o, ok := s.org(w, r)
	if !ok {
		return
	}
	var req struct {
		Title       string `json:"title"`
		Description string `json:"description"`
	}
	if !decode(w, r, &req) {
		return
	}
	if req.Title == "" {
		writeError(w, http.StatusBadRequest, "title is required")
		return
	}
	categories, err := o.Categories(r.Context())
	if err != nil {
		s.writeEngineError(w, r, err)
		return
	}
	suggestion, err := s.llm.SuggestTriage(r.Context(), req.Title, req.Description, categories)
	if err != nil {
		writeError(w, http.StatusBadGateway, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, suggestion)
}
