// =============================================================================
// DOCX Mail Merge - Preview Command
// =============================================================================
//
// This file defines the 'preview' command. It lists the template variables
// and datasheet headers side by side, without generating anything.
//
// COMMAND USAGE:
//   mailmerge preview [flags]
//
// FLAGS:
//   --template, -t   : The .docx template
//   --datasheet, -d  : The .xlsx or .csv datasheet
//
// Either input may be omitted. When neither flag is given, the paths
// remembered from the last generate run are used.
//
// =============================================================================

package cmd

import (
	"errors"

	"github.com/spf13/cobra"

	"github.com/ginjaninja78/docx-mail-merge/internal/preview"
)

var (
	previewTemplate  string
	previewDatasheet string
)

// previewCmd represents the 'preview' command.
var previewCmd = &cobra.Command{
	Use:   "preview",
	Short: "List template variables and datasheet headers",
	Long: `Preview reads the template and the first row of the datasheet and shows
which template variables have no mapped column and which mapped fields are
not used by the template. Nothing is written.`,

	RunE: func(cmd *cobra.Command, args []string) error {
		templatePath, datasheetPath := previewTemplate, previewDatasheet
		if store := openSettings(); store != nil {
			remembered := store.Load()
			if !cmd.Flags().Changed("template") && !cmd.Flags().Changed("datasheet") {
				templatePath = firstNonEmpty(templatePath, remembered.LastTemplate)
				datasheetPath = firstNonEmpty(datasheetPath, remembered.LastDatasheet)
			}
		}
		if templatePath == "" && datasheetPath == "" {
			return errors.New("nothing to preview: pass --template and/or --datasheet")
		}

		result, err := preview.Inspect(templatePath, datasheetPath, appConfig)
		if err != nil {
			return err
		}
		printPreview(cmd.OutOrStdout(), result)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(previewCmd)

	previewCmd.Flags().StringVarP(&previewTemplate, "template", "t", "", "Path to the .docx template")
	previewCmd.Flags().StringVarP(&previewDatasheet, "datasheet", "d", "", "Path to the .xlsx or .csv datasheet")
}
