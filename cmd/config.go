package cmd

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"text/template"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// configDirFunc locates the directory holding config.yaml. Tests replace it.
var configDirFunc = func() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".config", "issuedao"), nil
}

var configForce bool

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Show or write issuedao settings",
	Long: `Show the effective issuedao settings, or write a starter config.yaml.

With no subcommand this prints the same table as 'issuedao config show'.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return configShowRun()
	},
}

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Write config.yaml seeded with the current settings",
	RunE: func(cmd *cobra.Command, args []string) error {
		return configInitRun()
	},
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "List each setting with its value and where it came from",
	RunE: func(cmd *cobra.Command, args []string) error {
		return configShowRun()
	},
}

func init() {
	configInitCmd.Flags().BoolVar(&configForce, "force", false, "Replace an existing config.yaml")
	configCmd.AddCommand(configInitCmd, configShowCmd)
	rootCmd.AddCommand(configCmd)
}

// configKeys lists the settings shown by 'config show', in display order.
var configKeys = []string{
	"principal",
	"org",
	"state_dir",
	"db_path",
	"ledger.db_path",
	"ledger.account_suffix",
	"dao.max_description_length",
	"dao.claim_policy",
	"anthropic.model",
	"port",
	"log.level",
	"log.format",
}

// envVarFor returns the environment variable viper binds key to.
func envVarFor(key string) string {
	return "ISSUEDAO_" + strings.ToUpper(strings.ReplaceAll(key, ".", "_"))
}

// configTemplate is the template for generating config.yaml with comments.
const configTemplate = `# issuedao configuration
# See: issuedao config show (for effective values and sources)

# State/data directory (default: ~/.config/issuedao)
# state_dir: {{ .StateDir }}

# SQLite database path for organizations and issues
# db_path: {{ .DBPath }}

# Identity the CLI acts as (override per command with --as)
principal: "{{ .Principal }}"

# Default organization id (override per command with --org)
org: "{{ .Org }}"

# Local account book holding balances and escrow
ledger:
  # db_path: {{ .LedgerDBPath }}
  # Escrow accounts are named <org-id>.<account_suffix>
  account_suffix: "{{ .AccountSuffix }}"

# Organization rules
dao:
  # Descriptions must be shorter than this many characters
  max_description_length: {{ .MaxDescriptionLength }}

  # Who may claim a bounty: per_applicant (every approved applicant) or single
  claim_policy: "{{ .ClaimPolicy }}"

# Diagnostics
log:
  # debug, info, warn or error
  level: "{{ .LogLevel }}"
  # text or json
  format: "{{ .LogFormat }}"
`

func configFilePath() (string, error) {
	dir, err := configDirFunc()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "config.yaml"), nil
}

// renderConfig fills the config template from the effective settings.
func renderConfig() ([]byte, error) {
	tmpl, err := template.New("config.yaml").Parse(configTemplate)
	if err != nil {
		return nil, fmt.Errorf("parse config template: %w", err)
	}
	data := map[string]any{
		"StateDir":             viper.GetString("state_dir"),
		"DBPath":               viper.GetString("db_path"),
		"Principal":            viper.GetString("principal"),
		"Org":                  viper.GetString("org"),
		"LedgerDBPath":         viper.GetString("ledger.db_path"),
		"AccountSuffix":        viper.GetString("ledger.account_suffix"),
		"MaxDescriptionLength": viper.GetInt("dao.max_description_length"),
		"ClaimPolicy":          viper.GetString("dao.claim_policy"),
		"LogLevel":             viper.GetString("log.level"),
		"LogFormat":            viper.GetString("log.format"),
	}
	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		return nil, fmt.Errorf("render config template: %w", err)
	}
	return buf.Bytes(), nil
}

func configInitRun() error {
	cfgPath, err := configFilePath()
	if err != nil {
		return err
	}
	_, statErr := os.Stat(cfgPath)
	exists := statErr == nil
	if exists && !configForce {
		return fmt.Errorf("config file already exists: %s (use --force to overwrite)", cfgPath)
	}

	body, err := renderConfig()
	if err != nil {
		return err
	}

	if dryRun {
		ui.DryRunMsg("Would write %s", cfgPath)
		fmt.Fprintf(ui.Out, "\n%s", body)
		return nil
	}
	if exists {
		ui.Warning("Replacing %s", cfgPath)
	}
	if err := os.MkdirAll(filepath.Dir(cfgPath), 0755); err != nil {
		return fmt.Errorf("create config directory: %w", err)
	}
	if err := os.WriteFile(cfgPath, body, 0644); err != nil {
		return fmt.Errorf("write config file: %w", err)
	}

	ui.Success("Wrote %s", cfgPath)
	fmt.Fprintf(ui.Out, "\n%s", body)
	return nil
}

// fileConfig loads only the config file at path, so its keys can be told
// apart from defaults. A missing or unreadable file yields nil.
func fileConfig(path string) *viper.Viper {
	v := viper.New()
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return nil
	}
	return v
}

// settingSource reports whether key is set from the environment, the config
// file, or neither.
func settingSource(key string, file *viper.Viper) string {
	if env := envVarFor(key); os.Getenv(env) != "" {
		return "env " + env
	}
	if file != nil && file.InConfig(key) {
		return "file"
	}
	return "default"
}

func configShowRun() error {
	cfgPath, err := configFilePath()
	if err != nil {
		return err
	}
	file := fileConfig(cfgPath)
	if file != nil {
		ui.Info("Config file: %s", cfgPath)
	} else {
		ui.Info("Config file: none at %s", cfgPath)
	}

	table := ui.Table([]string{"Key", "Value", "Source"})
	for _, key := range configKeys {
		_ = table.Append([]string{key, fmt.Sprint(viper.Get(key)), settingSource(key, file)})
	}
	return table.Render()
}
