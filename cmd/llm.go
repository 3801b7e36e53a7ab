package cmd

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/joescharf/issuedao/internal/dao"
	"github.com/joescharf/issuedao/internal/llm"
	"github.com/joescharf/issuedao/internal/output"
)

// newLLMClient creates an LLM client from config/env, or returns nil if no API key is configured.
func newLLMClient() *llm.Client {
	apiKey := viper.GetString("anthropic.api_key")
	if apiKey == "" {
		apiKey = os.Getenv("ANTHROPIC_API_KEY")
	}
	if apiKey == "" {
		return nil
	}
	return llm.NewClient(apiKey, viper.GetString("anthropic.model"))
}

// suggestFor asks the model to triage an issue against the org's categories.
func suggestFor(ctx context.Context, o *dao.Organization, title, desc string) (*llm.Suggestion, error) {
	client := newLLMClient()
	if client == nil {
		return nil, fmt.Errorf("no Anthropic API key configured (set anthropic.api_key or ANTHROPIC_API_KEY)")
	}
	categories, err := o.Categories(ctx)
	if err != nil {
		return nil, err
	}
	return client.SuggestTriage(ctx, title, desc, categories)
}

var suggestDesc string

var issueSuggestCmd = &cobra.Command{
	Use:   "suggest <title>",
	Short: "Suggest a category and bounty experience level with an LLM",
	Long: `Ask Claude for a category from the organization's category set and an
experience level for a potential bounty. The suggestion is advisory only.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return issueSuggestRun(args[0])
	},
}

func init() {
	issueSuggestCmd.Flags().StringVar(&suggestDesc, "desc", "", "Issue description")
	issueCmd.AddCommand(issueSuggestCmd)
}

func issueSuggestRun(title string) error {
	ctx := context.Background()
	o, err := openOrg(ctx)
	if err != nil {
		return err
	}
	s, err := suggestFor(ctx, o, title, suggestDesc)
	if err != nil {
		return err
	}

	category := s.Category
	if category == "" {
		category = "(none fits)"
	}
	fmt.Fprintf(ui.Out, "  Category:   %s\n", category)
	fmt.Fprintf(ui.Out, "  Level:      %s\n", output.LevelColor(string(s.ExperienceLevel)))
	if s.Reason != "" {
		fmt.Fprintf(ui.Out, "  Reason:     %s\n", s.Reason)
	}
	return nil
}
