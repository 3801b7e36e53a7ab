package cmd

import (
	"context"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/joescharf/issuedao/internal/models"
	"github.com/joescharf/issuedao/internal/output"
)

var councilCmd = &cobra.Command{
	Use:   "council",
	Short: "Manage council membership",
	RunE: func(cmd *cobra.Command, args []string) error {
		return councilListRun()
	},
}

var councilListCmd = &cobra.Command{
	Use:     "list",
	Aliases: []string{"ls"},
	Short:   "List council members",
	RunE: func(cmd *cobra.Command, args []string) error {
		return councilListRun()
	},
}

var councilAddCmd = &cobra.Command{
	Use:   "add <principal>",
	Short: "Add a council member (council only)",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return councilAddRun(models.Principal(args[0]))
	},
}

var councilRemoveCmd = &cobra.Command{
	Use:     "remove <principal>",
	Aliases: []string{"rm"},
	Short:   "Remove a council member (council only, not yourself)",
	Args:    cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return councilRemoveRun(models.Principal(args[0]))
	},
}

func init() {
	councilCmd.AddCommand(councilListCmd)
	councilCmd.AddCommand(councilAddCmd)
	councilCmd.AddCommand(councilRemoveCmd)
	rootCmd.AddCommand(councilCmd)
}

func councilListRun() error {
	ctx := context.Background()
	o, err := openOrg(ctx)
	if err != nil {
		return err
	}
	members, err := o.Council(ctx)
	if err != nil {
		return err
	}

	table := ui.Table([]string{"#", "Member"})
	for i, m := range members {
		_ = table.Append([]string{strconv.Itoa(i + 1), string(m)})
	}
	_ = table.Render()
	return nil
}

func councilAddRun(member models.Principal) error {
	caller, err := currentPrincipal()
	if err != nil {
		return err
	}
	ctx := context.Background()
	o, err := openOrg(ctx)
	if err != nil {
		return err
	}

	if dryRun {
		ui.DryRunMsg("Would add %s to the council", member)
		return nil
	}
	if err := o.AddCouncilMember(ctx, caller, member); err != nil {
		return err
	}
	ui.Success("Added %s to the council", output.Cyan(string(member)))
	return nil
}

func councilRemoveRun(member models.Principal) error {
	caller, err := currentPrincipal()
	if err != nil {
		return err
	}
	ctx := context.Background()
	o, err := openOrg(ctx)
	if err != nil {
		return err
	}

	if dryRun {
		ui.DryRunMsg("Would remove %s from the council", member)
		return nil
	}
	if err := o.RemoveCouncilMember(ctx, caller, member); err != nil {
		return err
	}
	ui.Success("Removed %s from the council", output.Cyan(string(member)))
	return nil
}
