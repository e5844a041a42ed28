// =============================================================================
// DOCX Mail Merge - Root Command
// =============================================================================
//
// This file defines the root command for the Cobra CLI. The root command is
// the base command that all other commands are attached to.
//
// COBRA CLI STRUCTURE:
//   rootCmd (mailmerge)
//   ├── generateCmd    (mailmerge generate)
//   ├── previewCmd     (mailmerge preview)
//   ├── initConfigCmd  (mailmerge init-config)
//   └── versionCmd     (mailmerge version)
//
// CONFIGURATION:
//   The root command is responsible for:
//   1. Setting up global flags (--config, --verbose, --settings)
//   2. Loading the merge configuration
//   3. Setting up logging
//
// =============================================================================

package cmd

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/ginjaninja78/docx-mail-merge/internal/config"
	"github.com/ginjaninja78/docx-mail-merge/internal/logging"
	"github.com/ginjaninja78/docx-mail-merge/internal/settings"
)

// =============================================================================
// GLOBAL VARIABLES
// =============================================================================

// cfgFile holds the path to the merge configuration file.
// A missing file means the built-in defaults.
var cfgFile string

// verbose enables debug logging when set to true.
var verbose bool

// settingsFile overrides the location of the remembered-settings file.
var settingsFile string

// appConfig and logger are set up before any subcommand runs.
var (
	appConfig *config.Config
	logger    *slog.Logger
	closeLog  = func() error { return nil }
)

// =============================================================================
// ROOT COMMAND DEFINITION
// =============================================================================

// rootCmd represents the base command when called without any subcommands.
var rootCmd = &cobra.Command{
	Use:   "mailmerge",
	Short: "DOCX Mail Merge - Generate one Word document and PDF per spreadsheet row",
	Long: `DOCX Mail Merge fills a Word (.docx) template with the rows of a
spreadsheet and writes one document per row, plus a PDF copy converted with
LibreOffice.

Key Features:
  - {{Variable}} placeholders, even when Word splits them across runs
  - Configurable column-to-variable mapping with value transformations
  - Incomplete rows are skipped and reported, not fatal
  - Ctrl+C stops cleanly after the current row

Example Usage:
  mailmerge generate -t letter.docx -d companies.xlsx -s _Reminder
  mailmerge preview -t letter.docx -d companies.xlsx
  mailmerge init-config config.yaml`,

	SilenceUsage:  true,
	SilenceErrors: true,

	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		return setup()
	},

	Run: func(cmd *cobra.Command, args []string) {
		cmd.Help()
	},
}

// =============================================================================
// EXECUTE FUNCTION
// =============================================================================

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// run executes the root command and closes the log file afterwards, whether
// or not the command failed. cobra skips post-run hooks after an error.
func run() error {
	defer func() {
		closeLog()
		closeLog = func() error { return nil }
	}()
	return rootCmd.Execute()
}

// =============================================================================
// INITIALIZATION
// =============================================================================

func init() {
	// ==========================================================================
	// PERSISTENT FLAGS
	// ==========================================================================

	rootCmd.PersistentFlags().StringVar(
		&cfgFile,
		"config",
		"config.yaml",
		"Path to the merge configuration file; defaults apply when it does not exist",
	)

	rootCmd.PersistentFlags().BoolVarP(
		&verbose,
		"verbose",
		"v",
		false,
		"Enable verbose output for debugging",
	)

	rootCmd.PersistentFlags().StringVar(
		&settingsFile,
		"settings",
		"",
		"Path to the remembered-settings file (default $XDG_CONFIG_HOME/mailmerge/settings.yaml)",
	)
	rootCmd.PersistentFlags().MarkHidden("settings")
}

// setup loads the configuration and builds the logger.
func setup() error {
	cfg, err := config.LoadOrDefault(cfgFile)
	if err != nil {
		return err
	}

	level := cfg.LogLevel
	if verbose {
		level = "debug"
	}

	l, closer, err := logging.New(logging.Options{
		Level:  level,
		Format: cfg.LogFormat,
		File:   cfg.LogFile,
	})
	if err != nil {
		return err
	}

	appConfig, logger, closeLog = cfg, l, closer
	logger.Debug("Configuration loaded", logging.Path(cfgFile))
	return nil
}

// openSettings opens the remembered-settings store. Failures are logged and
// yield nil: remembering paths is a convenience, never a requirement.
func openSettings() *settings.Store {
	path := settingsFile
	if path == "" {
		p, err := settings.DefaultPath()
		if err != nil {
			logger.Warn("Settings unavailable", logging.Err(err))
			return nil
		}
		path = p
	}

	store, err := settings.Open(path)
	if err != nil {
		logger.Warn("Settings unavailable", logging.Err(err))
		return nil
	}
	return store
}
