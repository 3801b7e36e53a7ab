package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/joescharf/issuedao/internal/dao"
	"github.com/joescharf/issuedao/internal/models"
	"github.com/joescharf/issuedao/internal/store"
)

// Server exposes an organization's issues as MCP tools. Every mutating tool
// acts as the configured principal.
type Server struct {
	engine     *dao.Engine
	principal  models.Principal
	defaultOrg string
	version    string
}

// NewServer creates the MCP server wrapper. defaultOrg is used when a tool
// call names no organization.
func NewServer(e *dao.Engine, principal models.Principal, defaultOrg, version string) *Server {
	return &Server{
		engine:     e,
		principal:  principal,
		defaultOrg: defaultOrg,
		version:    version,
	}
}

// MCPServer returns a configured mcp-go server with all tools registered.
func (s *Server) MCPServer() *server.MCPServer {
	srv := server.NewMCPServer("issuedao", s.version, server.WithToolCapabilities(true))

	srv.AddTool(s.infoTool())
	srv.AddTool(s.listIssuesTool())
	srv.AddTool(s.getIssueTool())
	srv.AddTool(s.createIssueTool())
	srv.AddTool(s.commentTool())
	srv.AddTool(s.transitionTool())
	srv.AddTool(s.applyTool())
	srv.AddTool(s.likeTool())

	return srv
}

// ServeStdio starts the stdio transport, blocking until ctx is cancelled.
func (s *Server) ServeStdio(ctx context.Context) error {
	srv := s.MCPServer()
	stdioServer := server.NewStdioServer(srv)
	return stdioServer.Listen(ctx, os.Stdin, os.Stdout)
}

// ---------------------------------------------------------------------------
// Helpers
// ---------------------------------------------------------------------------

var orgParam = mcp.WithString("org", mcp.Description("Organization id (defaults to the configured organization)"))

func (s *Server) openOrg(ctx context.Context, request mcp.CallToolRequest) (*dao.Organization, *mcp.CallToolResult) {
	id := request.GetString("org", s.defaultOrg)
	if id == "" {
		return nil, mcp.NewToolResultError("no organization given and none configured")
	}
	o, err := s.engine.Open(ctx, id)
	if err != nil {
		return nil, mcp.NewToolResultError(fmt.Sprintf("organization not found: %s", id))
	}
	return o, nil
}

func requireIssueID(request mcp.CallToolRequest) (uint32, *mcp.CallToolResult) {
	raw, err := request.RequireString("id")
	if err != nil {
		return 0, mcp.NewToolResultError("missing required parameter: id")
	}
	id, err := strconv.ParseUint(strings.TrimPrefix(raw, "#"), 10, 32)
	if err != nil {
		return 0, mcp.NewToolResultError(fmt.Sprintf("invalid issue id: %s", raw))
	}
	return uint32(id), nil
}

func jsonResult(v any) (*mcp.CallToolResult, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to marshal result: %v", err)), nil
	}
	return mcp.NewToolResultText(string(data)), nil
}

func engineError(action string, err error) *mcp.CallToolResult {
	if code := dao.CodeOf(err); code != "" {
		return mcp.NewToolResultError(fmt.Sprintf("%s rejected (%s): %v", action, code, err))
	}
	return mcp.NewToolResultError(fmt.Sprintf("failed to %s: %v", action, err))
}

// ---------------------------------------------------------------------------
// Tool definitions and handlers
// ---------------------------------------------------------------------------

// dao_info
func (s *Server) infoTool() (mcp.Tool, server.ToolHandlerFunc) {
	tool := mcp.NewTool("dao_info",
		mcp.WithDescription("Describe an organization: project and logo URLs, description, categories and council members."),
		orgParam,
	)
	return tool, s.handleInfo
}

func (s *Server) handleInfo(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	o, errResult := s.openOrg(ctx, request)
	if errResult != nil {
		return errResult, nil
	}
	info, err := o.Info(ctx)
	if err != nil {
		return engineError("read organization", err), nil
	}
	return jsonResult(info)
}

// dao_list_issues
func (s *Server) listIssuesTool() (mcp.Tool, server.ToolHandlerFunc) {
	tool := mcp.NewTool("dao_list_issues",
		mcp.WithDescription("List issues, optionally filtered by status, category or bounty flag. Returns a JSON array of issues with id, title, category, status (open/planned/in_progress/completed/closed), fundable, experience_level and total_funds."),
		orgParam,
		mcp.WithString("status", mcp.Description("Status filter: open, planned, in_progress, completed, closed")),
		mcp.WithString("category", mcp.Description("Category filter")),
		mcp.WithString("bounties", mcp.Description("Set to 'true' to list only fundable issues")),
	)
	return tool, s.handleListIssues
}

type issueOut struct {
	ID              uint32 `json:"id"`
	Title           string `json:"title"`
	Category        string `json:"category"`
	Status          string `json:"status"`
	Fundable        bool   `json:"fundable"`
	ExperienceLevel string `json:"experience_level,omitempty"`
	TotalFunds      string `json:"total_funds"`
	Likes           int    `json:"likes"`
	Applicants      int    `json:"applicants"`
}

func (s *Server) handleListIssues(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	o, errResult := s.openOrg(ctx, request)
	if errResult != nil {
		return errResult, nil
	}

	filter := store.IssueListFilter{
		Status:   models.IssueStatus(request.GetString("status", "")),
		Category: request.GetString("category", ""),
	}
	if request.GetString("bounties", "") == "true" {
		fundable := true
		filter.Fundable = &fundable
	}

	infos, err := o.IssuesInfo(ctx, filter)
	if err != nil {
		return engineError("list issues", err), nil
	}

	out := make([]issueOut, len(infos))
	for i, info := range infos {
		out[i] = issueOut{
			ID:         info.ID,
			Title:      info.Title,
			Category:   info.Category,
			Status:     string(info.Status),
			Fundable:   info.Fundable,
			TotalFunds: info.TotalFunds.String(),
			Likes:      len(info.Likes),
			Applicants: len(info.Applicants),
		}
		if info.Fundable {
			out[i].ExperienceLevel = string(info.ExperienceLevel)
		}
	}
	return jsonResult(out)
}

// dao_get_issue
func (s *Server) getIssueTool() (mcp.Tool, server.ToolHandlerFunc) {
	tool := mcp.NewTool("dao_get_issue",
		mcp.WithDescription("Get one issue with its likes, applicants, funds and audit log."),
		orgParam,
		mcp.WithString("id", mcp.Required(), mcp.Description("Issue id")),
	)
	return tool, s.handleGetIssue
}

func (s *Server) handleGetIssue(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, errResult := requireIssueID(request)
	if errResult != nil {
		return errResult, nil
	}
	o, errResult := s.openOrg(ctx, request)
	if errResult != nil {
		return errResult, nil
	}
	info, err := o.IssueInfo(ctx, id)
	if err != nil {
		return engineError("get issue", err), nil
	}
	return jsonResult(info)
}

// dao_create_issue
func (s *Server) createIssueTool() (mcp.Tool, server.ToolHandlerFunc) {
	tool := mcp.NewTool("dao_create_issue",
		mcp.WithDescription("File a new issue. It starts in status open and needs council approval before work can begin. Returns the created issue as JSON."),
		orgParam,
		mcp.WithString("title", mcp.Required(), mcp.Description("Issue title")),
		mcp.WithString("description", mcp.Description("Issue description")),
		mcp.WithString("category", mcp.Description("Category, ideally one listed by dao_info")),
	)
	return tool, s.handleCreateIssue
}

func (s *Server) handleCreateIssue(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	title, err := request.RequireString("title")
	if err != nil {
		return mcp.NewToolResultError("missing required parameter: title"), nil
	}
	o, errResult := s.openOrg(ctx, request)
	if errResult != nil {
		return errResult, nil
	}

	issue, err := o.CreateIssue(ctx, s.principal, dao.IssueParams{
		Title:       title,
		Description: request.GetString("description", ""),
		Category:    request.GetString("category", ""),
	})
	if err != nil {
		return engineError("create issue", err), nil
	}
	return jsonResult(issue)
}

// dao_comment
func (s *Server) commentTool() (mcp.Tool, server.ToolHandlerFunc) {
	tool := mcp.NewTool("dao_comment",
		mcp.WithDescription("Add a comment to an issue's log."),
		orgParam,
		mcp.WithString("id", mcp.Required(), mcp.Description("Issue id")),
		mcp.WithString("text", mcp.Required(), mcp.Description("Comment text")),
	)
	return tool, s.handleComment
}

func (s *Server) handleComment(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, errResult := requireIssueID(request)
	if errResult != nil {
		return errResult, nil
	}
	text, err := request.RequireString("text")
	if err != nil {
		return mcp.NewToolResultError("missing required parameter: text"), nil
	}
	o, errResult := s.openOrg(ctx, request)
	if errResult != nil {
		return errResult, nil
	}
	if err := o.AddComment(ctx, s.principal, id, text); err != nil {
		return engineError("comment", err), nil
	}
	return mcp.NewToolResultText(fmt.Sprintf("Comment added to issue %d", id)), nil
}

// transitions maps dao_transition actions to lifecycle calls.
var transitions = map[string]func(*dao.Organization, context.Context, models.Principal, uint32) (*models.Issue, error){
	"approve":  (*dao.Organization).ApproveIssue,
	"close":    (*dao.Organization).CloseIssue,
	"start":    (*dao.Organization).StartIssue,
	"complete": (*dao.Organization).CompleteIssue,
}

// dao_transition
func (s *Server) transitionTool() (mcp.Tool, server.ToolHandlerFunc) {
	tool := mcp.NewTool("dao_transition",
		mcp.WithDescription("Move an issue through its lifecycle: approve (open -> planned), close (open -> closed), start (planned -> in_progress), complete (in_progress -> completed). Approve, close and complete need a council member; start on a bounty needs an approved applicant."),
		orgParam,
		mcp.WithString("id", mcp.Required(), mcp.Description("Issue id")),
		mcp.WithString("action", mcp.Required(), mcp.Description("One of: approve, close, start, complete")),
	)
	return tool, s.handleTransition
}

func (s *Server) handleTransition(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, errResult := requireIssueID(request)
	if errResult != nil {
		return errResult, nil
	}
	action, err := request.RequireString("action")
	if err != nil {
		return mcp.NewToolResultError("missing required parameter: action"), nil
	}
	fn, ok := transitions[action]
	if !ok {
		return mcp.NewToolResultError(fmt.Sprintf("unknown action %q (want approve, close, start or complete)", action)), nil
	}
	o, errResult := s.openOrg(ctx, request)
	if errResult != nil {
		return errResult, nil
	}

	issue, err := fn(o, ctx, s.principal, id)
	if err != nil {
		return engineError(action+" issue", err), nil
	}
	return jsonResult(map[string]any{
		"id":     issue.ID,
		"title":  issue.Title,
		"status": string(issue.Status),
	})
}

// dao_apply
func (s *Server) applyTool() (mcp.Tool, server.ToolHandlerFunc) {
	tool := mcp.NewTool("dao_apply",
		mcp.WithDescription("Apply to work on a bounty. The council must approve the application before work can start."),
		orgParam,
		mcp.WithString("id", mcp.Required(), mcp.Description("Issue id")),
		mcp.WithString("message", mcp.Description("Why you are a good fit")),
	)
	return tool, s.handleApply
}

func (s *Server) handleApply(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, errResult := requireIssueID(request)
	if errResult != nil {
		return errResult, nil
	}
	o, errResult := s.openOrg(ctx, request)
	if errResult != nil {
		return errResult, nil
	}
	a, err := o.ApplyIssue(ctx, s.principal, id, request.GetString("message", ""))
	if err != nil {
		return engineError("apply", err), nil
	}
	return jsonResult(a)
}

// dao_like
func (s *Server) likeTool() (mcp.Tool, server.ToolHandlerFunc) {
	tool := mcp.NewTool("dao_like",
		mcp.WithDescription("Like an issue. Liking twice has no further effect."),
		orgParam,
		mcp.WithString("id", mcp.Required(), mcp.Description("Issue id")),
	)
	return tool, s.handleLike
}

func (s *Server) handleLike(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, errResult := requireIssueID(request)
	if errResult != nil {
		return errResult, nil
	}
	o, errResult := s.openOrg(ctx, request)
	if errResult != nil {
		return errResult, nil
	}
	added, err := o.LikeIssue(ctx, s.principal, id)
	if err != nil {
		return engineError("like issue", err), nil
	}
	return jsonResult(map[string]bool{"added": added})
}
