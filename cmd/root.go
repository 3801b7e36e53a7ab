package cmd

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/joescharf/issuedao/internal/dao"
	"github.com/joescharf/issuedao/internal/ledger"
	"github.com/joescharf/issuedao/internal/models"
	"github.com/joescharf/issuedao/internal/output"
	"github.com/joescharf/issuedao/internal/store"
)

// Package-level shared dependencies, initialized in cobra.OnInitialize.
var (
	ui         *output.UI
	dataStore  store.Store
	ledgerBook *ledger.Book

	verbose bool
	dryRun  bool
)

var rootCmd = &cobra.Command{
	Use:   "issuedao",
	Short: "IssueDAO - community issue tracking with council approval and bounties",
	Long: `issuedao runs community-governed issue trackers.

Anyone can file issues, comment and like them. A council of members moves
issues through their lifecycle, converts them to funded bounties and
approves applicants, who claim the escrowed funds once the work is done.`,
	SilenceUsage:      true,
	SilenceErrors:     true,
	DisableAutoGenTag: true,
}

// Execute is the main entry point called from main.go.
func Execute(version, commit, date string) {
	buildVersion = version
	buildCommit = commit
	buildDate = date

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig, initDeps)

	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Verbose output")
	rootCmd.PersistentFlags().BoolVarP(&dryRun, "dry-run", "n", false, "Show what would happen without making changes")
	rootCmd.PersistentFlags().String("config", "", "Config file (default ~/.config/issuedao/config.yaml)")
	rootCmd.PersistentFlags().String("as", "", "Act as this principal (overrides the principal config key)")
	rootCmd.PersistentFlags().String("org", "", "Organization id (overrides the org config key)")
	_ = viper.BindPFlag("principal", rootCmd.PersistentFlags().Lookup("as"))
	_ = viper.BindPFlag("org", rootCmd.PersistentFlags().Lookup("org"))
}

func initConfig() {
	// If --config is explicitly set, use that file
	if cfgFile, _ := rootCmd.PersistentFlags().GetString("config"); cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		home, err := os.UserHomeDir()
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: cannot find home directory: %v\n", err)
			os.Exit(1)
		}

		configDir := filepath.Join(home, ".config", "issuedao")
		viper.AddConfigPath(configDir)
		viper.SetConfigName("config")
		viper.SetConfigType("yaml")
	}

	viper.SetEnvPrefix("ISSUEDAO")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	home, _ := os.UserHomeDir()
	setDefaults(filepath.Join(home, ".config", "issuedao"))

	// Read config file if it exists (optional)
	_ = viper.ReadInConfig()
}

// setDefaults registers every config key's default relative to stateDir.
func setDefaults(stateDir string) {
	viper.SetDefault("state_dir", stateDir)
	viper.SetDefault("db_path", filepath.Join(stateDir, "issuedao.db"))
	viper.SetDefault("ledger.db_path", filepath.Join(stateDir, "ledger.db"))
	viper.SetDefault("ledger.account_suffix", dao.DefaultAccountSuffix)
	viper.SetDefault("principal", "")
	viper.SetDefault("org", "")
	viper.SetDefault("dao.max_description_length", dao.DefaultMaxDescriptionLength)
	viper.SetDefault("dao.claim_policy", string(dao.ClaimPerApplicant))
	viper.SetDefault("anthropic.api_key", "")
	viper.SetDefault("anthropic.model", "claude-haiku-4-5-20251001")
	viper.SetDefault("port", 8080)
	viper.SetDefault("log.level", "info")
	viper.SetDefault("log.format", "text")
}

func initDeps() {
	ui = output.New()
	ui.Verbose = verbose
	ui.DryRun = dryRun

	// Stores open lazily so config/version commands run without a db.
}

// getStore returns the shared store, initializing it on first call.
func getStore() (store.Store, error) {
	if dataStore != nil {
		return dataStore, nil
	}

	dbPath := viper.GetString("db_path")
	s, err := store.NewSQLiteStore(dbPath)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	if err := s.Migrate(context.Background()); err != nil {
		_ = s.Close()
		return nil, fmt.Errorf("migrate database: %w", err)
	}

	dataStore = s
	return dataStore, nil
}

// getLedger returns the shared local account book, opening it on first call.
func getLedger() (*ledger.Book, error) {
	if ledgerBook != nil {
		return ledgerBook, nil
	}

	b, err := ledger.OpenBook(viper.GetString("ledger.db_path"))
	if err != nil {
		return nil, err
	}
	if err := b.Migrate(context.Background()); err != nil {
		_ = b.Close()
		return nil, fmt.Errorf("migrate ledger: %w", err)
	}
	ledgerBook = b
	return ledgerBook, nil
}

// newLogger builds the slog logger selected by log.level and log.format.
func newLogger(w io.Writer) *slog.Logger {
	var level slog.Level
	if err := level.UnmarshalText([]byte(viper.GetString("log.level"))); err != nil {
		level = slog.LevelInfo
	}
	if verbose {
		level = slog.LevelDebug
	}
	opts := &slog.HandlerOptions{Level: level}

	if viper.GetString("log.format") == "json" {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}

// cliLogger keeps engine diagnostics off the terminal unless --verbose is set.
func cliLogger() *slog.Logger {
	if verbose {
		return newLogger(os.Stderr)
	}
	return newLogger(io.Discard)
}

// newEngine wires the store, ledger and dao.* settings into an engine.
func newEngine(logger *slog.Logger) (*dao.Engine, error) {
	s, err := getStore()
	if err != nil {
		return nil, err
	}
	book, err := getLedger()
	if err != nil {
		return nil, err
	}
	policy, err := dao.ParseClaimPolicy(viper.GetString("dao.claim_policy"))
	if err != nil {
		return nil, err
	}

	return dao.New(s, book,
		dao.WithLogger(logger),
		dao.WithMaxDescriptionLength(viper.GetInt("dao.max_description_length")),
		dao.WithClaimPolicy(policy),
		dao.WithAccountSuffix(viper.GetString("ledger.account_suffix")),
	), nil
}

// currentPrincipal returns the identity the CLI acts as.
func currentPrincipal() (models.Principal, error) {
	p := models.Principal(viper.GetString("principal"))
	if p == "" {
		return "", fmt.Errorf("no principal configured (use --as or set principal in config)")
	}
	if err := p.Validate(); err != nil {
		return "", err
	}
	return p, nil
}

// openOrg opens the organization named by --org or the org config key.
func openOrg(ctx context.Context) (*dao.Organization, error) {
	id := viper.GetString("org")
	if id == "" {
		return nil, fmt.Errorf("no organization selected (use --org or set org in config)")
	}
	e, err := newEngine(cliLogger())
	if err != nil {
		return nil, err
	}
	return e.Open(ctx, id)
}

// parseIssueID accepts "7" or "#7".
func parseIssueID(s string) (uint32, error) {
	id, err := strconv.ParseUint(strings.TrimPrefix(s, "#"), 10, 32)
	if err != nil {
		return 0, fmt.Errorf("invalid issue id: %s", s)
	}
	return uint32(id), nil
}

// parseAmount parses a non-negative base-10 amount.
func parseAmount(s string) (models.Balance, error) {
	if s == "" {
		return models.Balance{}, nil
	}
	return models.ParseBalance(s)
}
