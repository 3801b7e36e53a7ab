package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/joescharf/issuedao/internal/models"
	"github.com/joescharf/issuedao/internal/output"
)

var transfersLimit int

var ledgerCmd = &cobra.Command{
	Use:   "ledger",
	Short: "Inspect and seed the local account book",
	Long: `The local account book holds principal balances and organization escrow.
Deposits and bounty payouts move value through it.`,
}

var ledgerMintCmd = &cobra.Command{
	Use:   "mint <principal> <amount>",
	Short: "Credit an account (local development)",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		return ledgerMintRun(models.Principal(args[0]), args[1])
	},
}

var ledgerBalanceCmd = &cobra.Command{
	Use:   "balance [principal]",
	Short: "Show an account balance (default: yourself)",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		var ref string
		if len(args) > 0 {
			ref = args[0]
		}
		return ledgerBalanceRun(ref)
	},
}

var ledgerTransfersCmd = &cobra.Command{
	Use:   "transfers [principal]",
	Short: "List recent transfers, optionally touching one account",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		var ref string
		if len(args) > 0 {
			ref = args[0]
		}
		return ledgerTransfersRun(models.Principal(ref))
	},
}

func init() {
	ledgerTransfersCmd.Flags().IntVar(&transfersLimit, "limit", 50, "Maximum transfers to show")

	ledgerCmd.AddCommand(ledgerMintCmd)
	ledgerCmd.AddCommand(ledgerBalanceCmd)
	ledgerCmd.AddCommand(ledgerTransfersCmd)
	rootCmd.AddCommand(ledgerCmd)
}

func ledgerMintRun(account models.Principal, amountStr string) error {
	if err := account.Validate(); err != nil {
		return err
	}
	amount, err := parseAmount(amountStr)
	if err != nil {
		return err
	}
	if amount.IsZero() {
		return fmt.Errorf("amount must be positive")
	}

	if dryRun {
		ui.DryRunMsg("Would mint %s to %s", amount, account)
		return nil
	}

	book, err := getLedger()
	if err != nil {
		return err
	}
	ctx := context.Background()
	if err := book.Mint(ctx, account, amount); err != nil {
		return err
	}
	balance, err := book.Balance(ctx, account)
	if err != nil {
		return err
	}
	ui.Success("Minted %s to %s (balance %s)", amount, output.Cyan(string(account)), balance)
	return nil
}

func ledgerBalanceRun(ref string) error {
	account := models.Principal(ref)
	if account == "" {
		p, err := currentPrincipal()
		if err != nil {
			return err
		}
		account = p
	}

	book, err := getLedger()
	if err != nil {
		return err
	}
	balance, err := book.Balance(context.Background(), account)
	if err != nil {
		return err
	}
	fmt.Fprintf(ui.Out, "%s  %s\n", output.Cyan(string(account)), balance)
	return nil
}

func ledgerTransfersRun(account models.Principal) error {
	book, err := getLedger()
	if err != nil {
		return err
	}
	transfers, err := book.Transfers(context.Background(), account, transfersLimit)
	if err != nil {
		return err
	}
	if len(transfers) == 0 {
		ui.Info("No transfers found.")
		return nil
	}

	table := ui.Table([]string{"ID", "Time", "Kind", "From", "To", "Amount"})
	for _, t := range transfers {
		_ = table.Append([]string{
			fmt.Sprintf("%d", t.ID),
			t.CreatedAt.Format(time.RFC3339),
			string(t.Kind),
			string(t.From),
			string(t.To),
			t.Amount.String(),
		})
	}
	_ = table.Render()
	return nil
}
