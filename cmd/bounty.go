package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/joescharf/issuedao/internal/models"
	"github.com/joescharf/issuedao/internal/output"
)

var (
	bountyLevel   string
	bountyDeposit string
	applyMessage  string
)

var issueBountyCmd = &cobra.Command{
	Use:   "bounty <issue-id>",
	Short: "Convert a planned or in-progress issue into a funded bounty (council only)",
	Long: `Mark an issue fundable at an experience level. The optional --deposit is
moved from your account into the organization escrow and recorded as the
first fund. Running it again on a bounty updates the level and adds funds.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return issueBountyRun(args[0])
	},
}

var issueFundCmd = &cobra.Command{
	Use:   "fund <issue-id> <amount>",
	Short: "Add funds to a bounty",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		return issueFundRun(args[0], args[1])
	},
}

var issueFundsCmd = &cobra.Command{
	Use:   "funds <issue-id>",
	Short: "List contributions to a bounty",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return issueFundsRun(args[0])
	},
}

var issueApplyCmd = &cobra.Command{
	Use:   "apply <issue-id>",
	Short: "Apply to work on a bounty",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return issueApplyRun(args[0])
	},
}

var issueApplicantsCmd = &cobra.Command{
	Use:   "applicants <issue-id>",
	Short: "List applicants of a bounty",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return issueApplicantsRun(args[0])
	},
}

var issueApproveApplicantCmd = &cobra.Command{
	Use:   "approve-applicant <issue-id> <principal>",
	Short: "Approve an applicant (council only)",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		return issueApproveApplicantRun(args[0], models.Principal(args[1]))
	},
}

var issueRevokeApplicantCmd = &cobra.Command{
	Use:   "revoke-applicant <issue-id> <principal>",
	Short: "Revoke an approved applicant (council only)",
	Long: `Remove an approved applicant. A bounty that was planned or in progress
returns to planned so another applicant can be approved.`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		return issueRevokeApplicantRun(args[0], models.Principal(args[1]))
	},
}

var issueClaimCmd = &cobra.Command{
	Use:   "claim <issue-id>",
	Short: "Claim the funds of a completed bounty you were approved for",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return issueClaimRun(args[0])
	},
}

func init() {
	issueBountyCmd.Flags().StringVar(&bountyLevel, "level", string(models.ExperienceBeginner), "Experience level: beginner, intermediate, advanced")
	issueBountyCmd.Flags().StringVar(&bountyDeposit, "deposit", "", "Amount to deposit into escrow")

	issueApplyCmd.Flags().StringVarP(&applyMessage, "message", "m", "", "Why you are a good fit")

	issueCmd.AddCommand(issueBountyCmd)
	issueCmd.AddCommand(issueFundCmd)
	issueCmd.AddCommand(issueFundsCmd)
	issueCmd.AddCommand(issueApplyCmd)
	issueCmd.AddCommand(issueApplicantsCmd)
	issueCmd.AddCommand(issueApproveApplicantCmd)
	issueCmd.AddCommand(issueRevokeApplicantCmd)
	issueCmd.AddCommand(issueClaimCmd)
}

func issueBountyRun(ref string) error {
	deposit, err := parseAmount(bountyDeposit)
	if err != nil {
		return err
	}
	ctx := context.Background()
	caller, o, id, err := callerAndIssue(ctx, ref)
	if err != nil {
		return err
	}

	if dryRun {
		ui.DryRunMsg("Would convert issue #%d to a %s bounty with %s", id, bountyLevel, deposit)
		return nil
	}

	issue, err := o.IssueToBounty(ctx, caller, id, models.ExperienceLevel(bountyLevel), deposit)
	if err != nil {
		return err
	}
	ui.Success("Issue %s is now a %s bounty", issueID(issue.ID), output.LevelColor(string(issue.ExperienceLevel)))
	if !deposit.IsZero() {
		ui.Info("Deposited %s into %s", deposit, o.Account())
	}
	return nil
}

func issueFundRun(ref, amountStr string) error {
	amount, err := parseAmount(amountStr)
	if err != nil {
		return err
	}
	ctx := context.Background()
	caller, o, id, err := callerAndIssue(ctx, ref)
	if err != nil {
		return err
	}

	if dryRun {
		ui.DryRunMsg("Would fund issue #%d with %s", id, amount)
		return nil
	}

	if err := o.FundIssue(ctx, caller, id, amount); err != nil {
		return err
	}
	total, err := o.TotalFunds(ctx, id)
	if err != nil {
		return err
	}
	ui.Success("Funded issue %s with %s (total %s)", issueID(id), amount, total)
	return nil
}

func issueFundsRun(ref string) error {
	ctx := context.Background()
	o, id, err := orgAndIssue(ctx, ref)
	if err != nil {
		return err
	}
	funds, err := o.Funds(ctx, id)
	if err != nil {
		return err
	}

	table := ui.Table([]string{"Funder", "Amount", "Time"})
	for _, f := range funds {
		_ = table.Append([]string{string(f.Funder), f.Amount.String(), f.Timestamp.Format(time.RFC3339)})
	}
	_ = table.Render()
	fmt.Fprintf(ui.Out, "\nTotal: %s\n", models.TotalFunds(funds))
	return nil
}

func issueApplyRun(ref string) error {
	ctx := context.Background()
	caller, o, id, err := callerAndIssue(ctx, ref)
	if err != nil {
		return err
	}

	if dryRun {
		ui.DryRunMsg("Would apply for issue #%d", id)
		return nil
	}

	if _, err := o.ApplyIssue(ctx, caller, id, applyMessage); err != nil {
		return err
	}
	ui.Success("Applied for issue %s; waiting for council approval", issueID(id))
	return nil
}

func issueApplicantsRun(ref string) error {
	ctx := context.Background()
	o, id, err := orgAndIssue(ctx, ref)
	if err != nil {
		return err
	}
	applicants, err := o.Applicants(ctx, id)
	if err != nil {
		return err
	}

	if len(applicants) == 0 {
		ui.Info("No applicants yet.")
		return nil
	}

	table := ui.Table([]string{"Applicant", "Approved", "Claimed", "Applied", "Message"})
	for _, a := range applicants {
		_ = table.Append([]string{
			string(a.Applicant),
			output.Check(a.Approved),
			output.Check(a.Claimed),
			a.Timestamp.Format(time.RFC3339),
			a.Message,
		})
	}
	_ = table.Render()
	return nil
}

func issueApproveApplicantRun(ref string, applicant models.Principal) error {
	ctx := context.Background()
	caller, o, id, err := callerAndIssue(ctx, ref)
	if err != nil {
		return err
	}

	if dryRun {
		ui.DryRunMsg("Would approve %s on issue #%d", applicant, id)
		return nil
	}

	if err := o.ApproveApplicant(ctx, caller, id, applicant); err != nil {
		return err
	}
	ui.Success("Approved %s on issue %s", output.Cyan(string(applicant)), issueID(id))
	return nil
}

func issueRevokeApplicantRun(ref string, applicant models.Principal) error {
	ctx := context.Background()
	caller, o, id, err := callerAndIssue(ctx, ref)
	if err != nil {
		return err
	}

	if dryRun {
		ui.DryRunMsg("Would revoke %s on issue #%d", applicant, id)
		return nil
	}

	issue, err := o.RevokeApplicant(ctx, caller, id, applicant)
	if err != nil {
		return err
	}
	ui.Success("Revoked %s on issue %s (%s)", output.Cyan(string(applicant)), issueID(id), output.StatusColor(string(issue.Status)))
	return nil
}

func issueClaimRun(ref string) error {
	ctx := context.Background()
	caller, o, id, err := callerAndIssue(ctx, ref)
	if err != nil {
		return err
	}

	if dryRun {
		ui.DryRunMsg("Would claim bounty #%d as %s", id, caller)
		return nil
	}

	amount, err := o.ClaimBounty(ctx, caller, id)
	if err != nil {
		return err
	}
	ui.Success("Claimed %s from issue %s", amount, issueID(id))
	return nil
}
