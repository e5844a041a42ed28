// =============================================================================
// DOCX Mail Merge - Init Config Command
// =============================================================================
//
// COMMAND USAGE:
//   mailmerge init-config [path] [--force]
//
// Writes the default configuration (the five-column company letter layout)
// so it can be edited. The path defaults to the --config value.
//
// =============================================================================

package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/ginjaninja78/docx-mail-merge/internal/config"
	"github.com/ginjaninja78/docx-mail-merge/pkg/utils"
)

var initForce bool

var initConfigCmd = &cobra.Command{
	Use:   "init-config [path]",
	Short: "Write the default configuration file",
	Args:  cobra.MaximumNArgs(1),

	RunE: func(cmd *cobra.Command, args []string) error {
		path := cfgFile
		if len(args) == 1 {
			path = args[0]
		}

		if utils.FileExists(path) && !initForce {
			return fmt.Errorf("%s already exists (use --force to overwrite)", path)
		}
		if err := config.Save(path, config.Default()); err != nil {
			return err
		}

		printSuccess(cmd.OutOrStdout(), "Wrote "+path)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(initConfigCmd)
	initConfigCmd.Flags().BoolVar(&initForce, "force", false, "Overwrite an existing file")
}
