package cmd

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/joescharf/issuedao/internal/dao"
	"github.com/joescharf/issuedao/internal/output"
)

var (
	orgProjectURL  string
	orgLogoURL     string
	orgDescription string
	orgCategories  []string
	orgJSON        bool
)

var orgCmd = &cobra.Command{
	Use:   "org",
	Short: "Create and inspect organizations",
	RunE: func(cmd *cobra.Command, args []string) error {
		return orgInfoRun()
	},
}

var orgInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Create a new organization with you as its only council member",
	RunE: func(cmd *cobra.Command, args []string) error {
		return orgInitRun()
	},
}

var orgInfoCmd = &cobra.Command{
	Use:   "info",
	Short: "Show organization metadata, categories and council",
	RunE: func(cmd *cobra.Command, args []string) error {
		return orgInfoRun()
	},
}

var orgUpdateCmd = &cobra.Command{
	Use:   "update",
	Short: "Replace organization metadata (council only)",
	Long: `Replace the organization's project URL, logo URL, description and
category set. Fields not given on the command line keep their current value.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return orgUpdateRun(cmd)
	},
}

func init() {
	for _, c := range []*cobra.Command{orgInitCmd, orgUpdateCmd} {
		c.Flags().StringVar(&orgProjectURL, "project-url", "", "Project homepage")
		c.Flags().StringVar(&orgLogoURL, "logo-url", "", "Logo image URL")
		c.Flags().StringVar(&orgDescription, "desc", "", "Short description")
		c.Flags().StringSliceVar(&orgCategories, "category", nil, "Issue category (repeatable or comma-separated)")
	}
	orgInfoCmd.Flags().BoolVar(&orgJSON, "json", false, "Print as JSON")

	orgCmd.AddCommand(orgInitCmd)
	orgCmd.AddCommand(orgInfoCmd)
	orgCmd.AddCommand(orgUpdateCmd)
	rootCmd.AddCommand(orgCmd)
}

func orgInitRun() error {
	caller, err := currentPrincipal()
	if err != nil {
		return err
	}

	if dryRun {
		ui.DryRunMsg("Would create organization %q with council [%s]", orgDescription, caller)
		return nil
	}

	e, err := newEngine(cliLogger())
	if err != nil {
		return err
	}
	o, err := e.Init(context.Background(), caller, dao.InitParams{
		ProjectURL:  orgProjectURL,
		LogoURL:     orgLogoURL,
		Description: orgDescription,
		Categories:  orgCategories,
	})
	if err != nil {
		return err
	}

	ui.Success("Created organization %s", output.Cyan(o.ID()))
	ui.Info("Escrow account: %s", o.Account())
	ui.Info("Select it with --org %s or 'org: %s' in config", o.ID(), o.ID())
	return nil
}

func orgInfoRun() error {
	ctx := context.Background()
	o, err := openOrg(ctx)
	if err != nil {
		return err
	}
	info, err := o.Info(ctx)
	if err != nil {
		return err
	}

	if orgJSON {
		return ui.JSON(info)
	}

	fmt.Fprintf(ui.Out, "%s\n", output.Cyan(info.ID))
	fmt.Fprintf(ui.Out, "  Description: %s\n", info.Description)
	if info.ProjectURL != "" {
		fmt.Fprintf(ui.Out, "  Project:     %s\n", info.ProjectURL)
	}
	if info.LogoURL != "" {
		fmt.Fprintf(ui.Out, "  Logo:        %s\n", info.LogoURL)
	}
	fmt.Fprintf(ui.Out, "  Escrow:      %s\n", info.Account)
	fmt.Fprintf(ui.Out, "  Categories:  %s\n", strings.Join(info.Categories, ", "))
	council := make([]string, len(info.Council))
	for i, m := range info.Council {
		council[i] = string(m)
	}
	fmt.Fprintf(ui.Out, "  Council:     %s\n", strings.Join(council, ", "))
	fmt.Fprintf(ui.Out, "  Created:     %s by %s\n", info.CreatedAt, info.CreatedBy)
	return nil
}

func orgUpdateRun(cmd *cobra.Command) error {
	caller, err := currentPrincipal()
	if err != nil {
		return err
	}
	ctx := context.Background()
	o, err := openOrg(ctx)
	if err != nil {
		return err
	}
	info, err := o.Info(ctx)
	if err != nil {
		return err
	}

	p := dao.InitParams{
		ProjectURL:  info.ProjectURL,
		LogoURL:     info.LogoURL,
		Description: info.Description,
		Categories:  info.Categories,
	}
	changed := false
	if cmd.Flags().Changed("project-url") {
		p.ProjectURL = orgProjectURL
		changed = true
	}
	if cmd.Flags().Changed("logo-url") {
		p.LogoURL = orgLogoURL
		changed = true
	}
	if cmd.Flags().Changed("desc") {
		p.Description = orgDescription
		changed = true
	}
	if cmd.Flags().Changed("category") {
		p.Categories = orgCategories
		changed = true
	}
	if !changed {
		return fmt.Errorf("no updates specified (use --project-url, --logo-url, --desc, or --category)")
	}

	if dryRun {
		ui.DryRunMsg("Would update organization %s", o.ID())
		return nil
	}

	if err := o.Update(ctx, caller, p); err != nil {
		return err
	}
	ui.Success("Updated organization %s", output.Cyan(o.ID()))
	return nil
}
