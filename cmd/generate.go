// =============================================================================
// DOCX Mail Merge - Generate Command
// =============================================================================
//
// This file defines the 'generate' command, which runs one mail merge.
//
// COMMAND USAGE:
//   mailmerge generate [flags]
//
// FLAGS:
//   --template, -t     : The .docx template
//   --datasheet, -d    : The .xlsx or .csv datasheet
//   --suffix, -s       : Appended to every output file name
//   --output-dir, -o   : Overrides output_dir from the configuration
//   --no-pdf           : Skip the PDF conversion
//   --metrics-file     : Write Prometheus metrics to this file after the run
//   --summary          : Write a run summary text file into the output directory
//   --interactive, -i  : Ask for the paths instead of reading flags
//
// Paths left empty fall back to the ones remembered from the last run.
//
// =============================================================================

package cmd

import (
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/ginjaninja78/docx-mail-merge/internal/config"
	"github.com/ginjaninja78/docx-mail-merge/internal/generator"
	"github.com/ginjaninja78/docx-mail-merge/internal/logging"
	"github.com/ginjaninja78/docx-mail-merge/internal/metrics"
	"github.com/ginjaninja78/docx-mail-merge/internal/settings"
	"github.com/ginjaninja78/docx-mail-merge/internal/types"
	"github.com/ginjaninja78/docx-mail-merge/pkg/utils"
)

// =============================================================================
// COMMAND FLAGS
// =============================================================================

// generateFlags holds the flag values of the generate command.
type generateFlags struct {
	template    string
	datasheet   string
	suffix      string
	outputDir   string
	noPDF       bool
	metricsFile string
	summary     bool
	interactive bool
}

var genFlags generateFlags

// =============================================================================
// GENERATE COMMAND DEFINITION
// =============================================================================

var generateCmd = &cobra.Command{
	Use:   "generate",
	Short: "Generate one document per datasheet row",
	Long: `The generate command reads every row of the datasheet, fills the template
with the row's values and writes {primary}_{secondary}{suffix}.docx (and .pdf)
into the output directory.

Rows with an empty required field are skipped and reported. A row that fails
to render is counted as an error and the run continues. A malformed template
stops the run before any file is written.

Press Ctrl+C to stop after the current row.`,

	RunE: func(cmd *cobra.Command, args []string) error {
		return runGenerate(cmd, genFlags)
	},
}

func init() {
	rootCmd.AddCommand(generateCmd)

	f := generateCmd.Flags()
	f.StringVarP(&genFlags.template, "template", "t", "", "Path to the .docx template")
	f.StringVarP(&genFlags.datasheet, "datasheet", "d", "", "Path to the .xlsx or .csv datasheet")
	f.StringVarP(&genFlags.suffix, "suffix", "s", "", "Suffix appended to output file names, e.g. _Reminder")
	f.StringVarP(&genFlags.outputDir, "output-dir", "o", "", "Output directory (overrides output_dir)")
	f.BoolVar(&genFlags.noPDF, "no-pdf", false, "Skip the PDF conversion")
	f.StringVar(&genFlags.metricsFile, "metrics-file", "", "Write Prometheus metrics to this file after the run")
	f.BoolVar(&genFlags.summary, "summary", false, "Write a run summary file into the output directory")
	f.BoolVarP(&genFlags.interactive, "interactive", "i", false, "Prompt for the template, datasheet and suffix")
}

// =============================================================================
// MAIN PROCESSING FUNCTION
// =============================================================================

// runGenerate resolves the request, runs it and prints the outcome.
func runGenerate(cmd *cobra.Command, flags generateFlags) error {
	out := cmd.OutOrStdout()

	// =========================================================================
	// STEP 1: RESOLVE THE REQUEST
	// =========================================================================

	store := openSettings()
	var remembered settings.Settings
	if store != nil {
		remembered = store.Load()
	}

	req, err := resolveRequest(flags, remembered, appConfig.OutputSuffix, cmd.Flags().Changed("suffix"))
	if err != nil {
		return err
	}

	cfg := runConfig(appConfig, flags)

	// =========================================================================
	// STEP 2: BUILD THE GENERATOR
	// =========================================================================

	var recorder *metrics.PrometheusRecorder
	if flags.metricsFile != "" {
		recorder = metrics.NewPrometheusRecorder(nil)
	}

	bar := newProgressBar(out)
	opts := []generator.Option{
		generator.WithLogger(logger),
		generator.WithProgress(bar),
	}
	if recorder != nil {
		opts = append(opts, generator.WithRecorder(recorder))
	}

	gen, err := generator.New(cfg, opts...)
	if err != nil {
		return err
	}
	defer gen.Close()

	// =========================================================================
	// STEP 3: RUN
	// =========================================================================
	// The first Ctrl+C cancels at the next row boundary; the run then ends
	// normally with a Cancelled outcome.

	stop := cancelOnInterrupt(gen, out)
	defer stop()

	printInfo(out, fmt.Sprintf("Generating from %s and %s", filepath.Base(req.TemplatePath), filepath.Base(req.DatasheetPath)))
	start := time.Now()
	outcome, runErr := gen.Submit(cmd.Context(), req)
	bar.Finish()

	// =========================================================================
	// STEP 4: REPORT
	// =========================================================================

	var unreadable *types.UnreadableInputError
	if store != nil && !errors.As(runErr, &unreadable) {
		if err := store.Save(settings.Settings{
			LastTemplate:  req.TemplatePath,
			LastDatasheet: req.DatasheetPath,
			LastSuffix:    req.OutputSuffix,
		}); err != nil {
			logger.Warn("Failed to remember settings", logging.Err(err))
		}
	}

	if recorder != nil {
		if err := recorder.WriteTextfile(flags.metricsFile); err != nil {
			logger.Warn("Failed to write metrics", logging.Err(err))
		}
	}

	if flags.summary && runErr == nil {
		path, err := utils.WriteSummaryLog(utils.RunSummary{Request: req, Outcome: outcome, StartTime: start}, cfg.OutputDir)
		if err != nil {
			logger.Warn("Failed to write run summary", logging.Err(err))
		} else {
			printStep(out, "Summary written to "+path)
		}
	}

	printOutcome(out, outcome)

	var format *types.TemplateFormatError
	if errors.As(runErr, &format) {
		printError(out, format.Error())
		fmt.Fprintln(out, format.Hint())
	}
	return runErr
}

// resolveRequest combines flags, prompts and remembered settings.
//
// PRIORITY:
//   1. Flags
//   2. Interactive answers (the remembered values are the defaults)
//   3. Remembered settings
func resolveRequest(flags generateFlags, remembered settings.Settings, defaultSuffix string, suffixSet bool) (types.GenerationRequest, error) {
	req := types.GenerationRequest{
		TemplatePath:  firstNonEmpty(flags.template, remembered.LastTemplate),
		DatasheetPath: firstNonEmpty(flags.datasheet, remembered.LastDatasheet),
		OutputSuffix:  flags.suffix,
	}
	if !suffixSet {
		req.OutputSuffix = firstNonEmpty(remembered.LastSuffix, defaultSuffix)
	}

	if flags.interactive {
		var err error
		if req.TemplatePath, err = promptPath("Template (.docx):", req.TemplatePath, ".docx"); err != nil {
			return req, err
		}
		if req.DatasheetPath, err = promptPath("Datasheet (.xlsx, .csv):", req.DatasheetPath, ".xlsx", ".xlsm", ".csv"); err != nil {
			return req, err
		}
		if req.OutputSuffix, err = promptText("File name suffix:", req.OutputSuffix); err != nil {
			return req, err
		}
	}

	if req.TemplatePath == "" || req.DatasheetPath == "" {
		return req, errors.New("both --template and --datasheet are required (or use --interactive)")
	}
	return req, nil
}

// runConfig applies the command's overrides to a copy of the configuration.
func runConfig(base *config.Config, flags generateFlags) *config.Config {
	cfg := *base
	if flags.outputDir != "" {
		cfg.OutputDir = flags.outputDir
	}
	if flags.noPDF {
		disabled := false
		cfg.Conversion.Enabled = &disabled
	}
	return &cfg
}

// cancelOnInterrupt cancels gen on SIGINT/SIGTERM until stop is called.
func cancelOnInterrupt(gen *generator.Generator, out io.Writer) (stop func()) {
	signals := make(chan os.Signal, 1)
	signal.Notify(signals, os.Interrupt, syscall.SIGTERM)
	done := make(chan struct{})

	go func() {
		select {
		case <-signals:
			fmt.Fprintln(out)
			printWarn(out, "Stopping after the current row...")
			gen.Cancel()
		case <-done:
		}
	}()

	return func() {
		signal.Stop(signals)
		close(done)
	}
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
