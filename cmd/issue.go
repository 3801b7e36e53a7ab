package cmd

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/joescharf/issuedao/internal/dao"
	"github.com/joescharf/issuedao/internal/models"
	"github.com/joescharf/issuedao/internal/output"
	"github.com/joescharf/issuedao/internal/store"
)

var (
	issueTitle    string
	issueDesc     string
	issueCategory string
	issueTags     []string
	issueStatus   string
	issueBounties bool
	issueJSON     bool
	issueSuggest  bool
)

var issueCmd = &cobra.Command{
	Use:   "issue",
	Short: "File, discuss and move issues through their lifecycle",
	Long: `Track community issues for the selected organization.

Issues start open. The council approves (open -> planned) or closes them;
planned issues are started and completed. Bounties need an approved
applicant before work can start.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return issueListRun()
	},
}

var issueCreateCmd = &cobra.Command{
	Use:     "create",
	Aliases: []string{"add"},
	Short:   "File a new issue",
	RunE: func(cmd *cobra.Command, args []string) error {
		return issueCreateRun()
	},
}

var issueListCmd = &cobra.Command{
	Use:     "list",
	Aliases: []string{"ls"},
	Short:   "List issues",
	RunE: func(cmd *cobra.Command, args []string) error {
		return issueListRun()
	},
}

var issueShowCmd = &cobra.Command{
	Use:   "show <issue-id>",
	Short: "Show issue details with likes, applicants, funds and log",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return issueShowRun(args[0])
	},
}

var issueUpdateCmd = &cobra.Command{
	Use:   "update <issue-id>",
	Short: "Edit an issue (council only)",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return issueUpdateRun(cmd, args[0])
	},
}

var issueCommentCmd = &cobra.Command{
	Use:   "comment <issue-id> <text>",
	Short: "Comment on an issue",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		return issueCommentRun(args[0], args[1])
	},
}

var issueLikeCmd = &cobra.Command{
	Use:   "like <issue-id>",
	Short: "Like an issue",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return issueLikeRun(args[0])
	},
}

var issueLikesCmd = &cobra.Command{
	Use:   "likes <issue-id>",
	Short: "List who liked an issue",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return issueLikesRun(args[0])
	},
}

var issueLogsCmd = &cobra.Command{
	Use:   "logs <issue-id>",
	Short: "Show an issue's audit log",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return issueLogsRun(args[0])
	},
}

var issueVerifyCmd = &cobra.Command{
	Use:   "verify <issue-id>",
	Short: "Verify the hash chain of an issue's audit log",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return issueVerifyRun(args[0])
	},
}

var issueCountCmd = &cobra.Command{
	Use:   "count",
	Short: "Count issues, optionally by status, category or bounty flag",
	RunE: func(cmd *cobra.Command, args []string) error {
		return issueCountRun()
	},
}

// transitionCmd builds a lifecycle subcommand that applies fn to one issue.
func transitionCmd(use, short, verb string, fn func(*dao.Organization, context.Context, models.Principal, uint32) (*models.Issue, error)) *cobra.Command {
	return &cobra.Command{
		Use:   use + " <issue-id>",
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return issueTransitionRun(args[0], verb, fn)
		},
	}
}

func init() {
	issueCreateCmd.Flags().StringVar(&issueTitle, "title", "", "Issue title (required)")
	issueCreateCmd.Flags().StringVar(&issueDesc, "desc", "", "Issue description")
	issueCreateCmd.Flags().StringVar(&issueCategory, "category", "", "Issue category")
	issueCreateCmd.Flags().StringSliceVar(&issueTags, "tag", nil, "Tag (repeatable)")
	issueCreateCmd.Flags().BoolVar(&issueSuggest, "suggest", false, "Ask the LLM for a category when --category is not given")
	_ = issueCreateCmd.MarkFlagRequired("title")

	issueListCmd.Flags().StringVar(&issueStatus, "status", "", "Filter by status: open, planned, in_progress, completed, closed")
	issueListCmd.Flags().StringVar(&issueCategory, "category", "", "Filter by category")
	issueListCmd.Flags().BoolVar(&issueBounties, "bounties", false, "Only fundable issues")
	issueListCmd.Flags().BoolVar(&issueJSON, "json", false, "Print full issue info as JSON")

	issueShowCmd.Flags().BoolVar(&issueJSON, "json", false, "Print as JSON")

	issueUpdateCmd.Flags().StringVar(&issueTitle, "title", "", "New title")
	issueUpdateCmd.Flags().StringVar(&issueDesc, "desc", "", "New description")
	issueUpdateCmd.Flags().StringVar(&issueCategory, "category", "", "New category")
	issueUpdateCmd.Flags().StringSliceVar(&issueTags, "tag", nil, "Replace tags (repeatable)")

	issueCountCmd.Flags().StringVar(&issueStatus, "status", "", "Count only this status")
	issueCountCmd.Flags().StringVar(&issueCategory, "category", "", "Count only this category")
	issueCountCmd.Flags().BoolVar(&issueBounties, "bounties", false, "Count only fundable issues")

	issueCmd.AddCommand(issueCreateCmd)
	issueCmd.AddCommand(issueListCmd)
	issueCmd.AddCommand(issueShowCmd)
	issueCmd.AddCommand(issueUpdateCmd)
	issueCmd.AddCommand(transitionCmd("approve", "Approve an open issue (council only)", "Approved", (*dao.Organization).ApproveIssue))
	issueCmd.AddCommand(transitionCmd("close", "Close an open issue (council only)", "Closed", (*dao.Organization).CloseIssue))
	issueCmd.AddCommand(transitionCmd("start", "Start work on a planned issue", "Started", (*dao.Organization).StartIssue))
	issueCmd.AddCommand(transitionCmd("complete", "Complete an in-progress issue (council only)", "Completed", (*dao.Organization).CompleteIssue))
	issueCmd.AddCommand(issueCommentCmd)
	issueCmd.AddCommand(issueLikeCmd)
	issueCmd.AddCommand(issueLikesCmd)
	issueCmd.AddCommand(issueLogsCmd)
	issueCmd.AddCommand(issueVerifyCmd)
	issueCmd.AddCommand(issueCountCmd)
	rootCmd.AddCommand(issueCmd)
}

// callerAndIssue resolves the acting principal, the organization and an issue id.
func callerAndIssue(ctx context.Context, ref string) (models.Principal, *dao.Organization, uint32, error) {
	caller, err := currentPrincipal()
	if err != nil {
		return "", nil, 0, err
	}
	id, err := parseIssueID(ref)
	if err != nil {
		return "", nil, 0, err
	}
	o, err := openOrg(ctx)
	if err != nil {
		return "", nil, 0, err
	}
	return caller, o, id, nil
}

// orgAndIssue resolves the organization and an issue id for read-only commands.
func orgAndIssue(ctx context.Context, ref string) (*dao.Organization, uint32, error) {
	id, err := parseIssueID(ref)
	if err != nil {
		return nil, 0, err
	}
	o, err := openOrg(ctx)
	if err != nil {
		return nil, 0, err
	}
	return o, id, nil
}

func issueID(id uint32) string {
	return output.Cyan(fmt.Sprintf("#%d", id))
}

func issueCreateRun() error {
	caller, err := currentPrincipal()
	if err != nil {
		return err
	}
	ctx := context.Background()
	o, err := openOrg(ctx)
	if err != nil {
		return err
	}

	category := issueCategory
	if category == "" && issueSuggest {
		if s, err := suggestFor(ctx, o, issueTitle, issueDesc); err != nil {
			ui.Warning("Suggestion failed: %v", err)
		} else if s.Category != "" {
			category = s.Category
			ui.VerboseLog("Suggested category %s: %s", s.Category, s.Reason)
		}
	}

	if dryRun {
		ui.DryRunMsg("Would create issue: %s [%s]", issueTitle, category)
		return nil
	}

	issue, err := o.CreateIssue(ctx, caller, dao.IssueParams{
		Title:       issueTitle,
		Description: issueDesc,
		Category:    category,
		Tags:        issueTags,
	})
	if err != nil {
		return err
	}

	ui.Success("Created issue %s: %s", issueID(issue.ID), issue.Title)
	return nil
}

func listFilter() store.IssueListFilter {
	filter := store.IssueListFilter{
		Status:   models.IssueStatus(issueStatus),
		Category: issueCategory,
	}
	if issueBounties {
		fundable := true
		filter.Fundable = &fundable
	}
	return filter
}

func issueListRun() error {
	ctx := context.Background()
	o, err := openOrg(ctx)
	if err != nil {
		return err
	}

	infos, err := o.IssuesInfo(ctx, listFilter())
	if err != nil {
		return err
	}

	if issueJSON {
		return ui.JSON(infos)
	}

	if len(infos) == 0 {
		ui.Info("No issues found.")
		return nil
	}

	table := ui.Table([]string{"ID", "Title", "Category", "Status", "Bounty", "Funds", "Likes", "Applicants"})
	for _, info := range infos {
		bounty := ""
		if info.Fundable {
			bounty = output.LevelColor(string(info.ExperienceLevel))
		}
		_ = table.Append([]string{
			fmt.Sprintf("#%d", info.ID),
			info.Title,
			info.Category,
			output.StatusColor(string(info.Status)),
			bounty,
			info.TotalFunds.String(),
			fmt.Sprintf("%d", len(info.Likes)),
			fmt.Sprintf("%d", len(info.Applicants)),
		})
	}
	_ = table.Render()
	return nil
}

func issueShowRun(ref string) error {
	ctx := context.Background()
	o, id, err := orgAndIssue(ctx, ref)
	if err != nil {
		return err
	}
	info, err := o.IssueInfo(ctx, id)
	if err != nil {
		return err
	}

	if issueJSON {
		return ui.JSON(info)
	}

	fmt.Fprintf(ui.Out, "%s  %s\n", issueID(info.ID), info.Title)
	fmt.Fprintf(ui.Out, "  Status:     %s\n", output.StatusColor(string(info.Status)))
	if info.Category != "" {
		fmt.Fprintf(ui.Out, "  Category:   %s\n", info.Category)
	}
	if info.Description != "" {
		fmt.Fprintf(ui.Out, "  Desc:       %s\n", info.Description)
	}
	if len(info.Tags) > 0 {
		fmt.Fprintf(ui.Out, "  Tags:       %s\n", strings.Join(info.Tags, ", "))
	}
	if info.Fundable {
		fmt.Fprintf(ui.Out, "  Bounty:     %s, %s held\n", output.LevelColor(string(info.ExperienceLevel)), info.TotalFunds)
	}
	fmt.Fprintf(ui.Out, "  Likes:      %d\n", len(info.Likes))
	fmt.Fprintf(ui.Out, "  Created:    %s by %s\n", info.CreatedAt.Format(time.RFC3339), info.CreatedBy)

	if len(info.Applicants) > 0 {
		fmt.Fprintln(ui.Out)
		fmt.Fprintln(ui.Out, "  Applicants:")
		for _, a := range info.Applicants {
			fmt.Fprintf(ui.Out, "    %s  approved %s  claimed %s  %s\n", a.Applicant, output.Check(a.Approved), output.Check(a.Claimed), a.Message)
		}
	}

	if len(info.Logs) > 0 {
		fmt.Fprintln(ui.Out)
		fmt.Fprintln(ui.Out, "  Log:")
		for _, l := range info.Logs {
			fmt.Fprintf(ui.Out, "    %s  %-8s %-12s %s: %s\n", l.Timestamp.Format(time.RFC3339), l.LogType, l.Status, l.Sender, l.Message)
		}
	}
	return nil
}

func issueUpdateRun(cmd *cobra.Command, ref string) error {
	ctx := context.Background()
	caller, o, id, err := callerAndIssue(ctx, ref)
	if err != nil {
		return err
	}

	issue, err := o.Issue(ctx, id)
	if err != nil {
		return err
	}

	p := dao.IssueParams{
		Title:       issue.Title,
		Description: issue.Description,
		Category:    issue.Category,
	}
	changed := false
	if cmd.Flags().Changed("title") {
		p.Title = issueTitle
		changed = true
	}
	if cmd.Flags().Changed("desc") {
		p.Description = issueDesc
		changed = true
	}
	if cmd.Flags().Changed("category") {
		p.Category = issueCategory
		changed = true
	}
	if cmd.Flags().Changed("tag") {
		p.Tags = issueTags
		changed = true
	}
	if !changed {
		return fmt.Errorf("no updates specified (use --title, --desc, --category, or --tag)")
	}

	if dryRun {
		ui.DryRunMsg("Would update issue #%d", id)
		return nil
	}

	if _, err := o.UpdateIssue(ctx, caller, id, p); err != nil {
		return err
	}
	ui.Success("Updated issue %s", issueID(id))
	return nil
}

func issueTransitionRun(ref, verb string, fn func(*dao.Organization, context.Context, models.Principal, uint32) (*models.Issue, error)) error {
	ctx := context.Background()
	caller, o, id, err := callerAndIssue(ctx, ref)
	if err != nil {
		return err
	}

	if dryRun {
		ui.DryRunMsg("Would mark issue #%d %s", id, strings.ToLower(verb))
		return nil
	}

	issue, err := fn(o, ctx, caller, id)
	if err != nil {
		return err
	}
	ui.Success("%s issue %s: %s (%s)", verb, issueID(issue.ID), issue.Title, output.StatusColor(string(issue.Status)))
	return nil
}

func issueCommentRun(ref, text string) error {
	ctx := context.Background()
	caller, o, id, err := callerAndIssue(ctx, ref)
	if err != nil {
		return err
	}

	if dryRun {
		ui.DryRunMsg("Would comment on issue #%d", id)
		return nil
	}

	if err := o.AddComment(ctx, caller, id, text); err != nil {
		return err
	}
	ui.Success("Commented on issue %s", issueID(id))
	return nil
}

func issueLikeRun(ref string) error {
	ctx := context.Background()
	caller, o, id, err := callerAndIssue(ctx, ref)
	if err != nil {
		return err
	}

	if dryRun {
		ui.DryRunMsg("Would like issue #%d", id)
		return nil
	}

	added, err := o.LikeIssue(ctx, caller, id)
	if err != nil {
		return err
	}
	if !added {
		ui.Info("You already like issue %s", issueID(id))
		return nil
	}
	ui.Success("Liked issue %s", issueID(id))
	return nil
}

func issueLikesRun(ref string) error {
	ctx := context.Background()
	o, id, err := orgAndIssue(ctx, ref)
	if err != nil {
		return err
	}
	likes, err := o.Likes(ctx, id)
	if err != nil {
		return err
	}
	if len(likes) == 0 {
		ui.Info("No likes yet.")
		return nil
	}
	for _, p := range likes {
		fmt.Fprintln(ui.Out, p)
	}
	return nil
}

func issueLogsRun(ref string) error {
	ctx := context.Background()
	o, id, err := orgAndIssue(ctx, ref)
	if err != nil {
		return err
	}
	logs, err := o.Logs(ctx, id)
	if err != nil {
		return err
	}

	table := ui.Table([]string{"#", "Time", "Type", "Status", "Sender", "Message"})
	for i, l := range logs {
		_ = table.Append([]string{
			fmt.Sprintf("%d", i),
			l.Timestamp.Format(time.RFC3339),
			string(l.LogType),
			output.StatusColor(string(l.Status)),
			string(l.Sender),
			l.Message,
		})
	}
	_ = table.Render()
	return nil
}

func issueVerifyRun(ref string) error {
	ctx := context.Background()
	o, id, err := orgAndIssue(ctx, ref)
	if err != nil {
		return err
	}

	if err := o.VerifyLogs(ctx, id); err != nil {
		if dao.IsBrokenChain(err) {
			ui.Error("Issue %s: %v", issueID(id), err)
		}
		return err
	}
	ui.Success("Audit log of issue %s is intact", issueID(id))
	return nil
}

func issueCountRun() error {
	ctx := context.Background()
	o, err := openOrg(ctx)
	if err != nil {
		return err
	}
	n, err := o.Count(ctx, listFilter())
	if err != nil {
		return err
	}
	fmt.Fprintln(ui.Out, n)
	return nil
}
