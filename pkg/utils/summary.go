package utils

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/ginjaninja78/docx-mail-merge/internal/types"
)

// =============================================================================
// RUN SUMMARY
// =============================================================================

// RunSummary contains summary information about a generation run.
type RunSummary struct {
	Request   types.GenerationRequest
	Outcome   types.Outcome
	StartTime time.Time
}

// WriteSummaryLog writes a run summary to a text file in dir.
//
// PARAMETERS:
//   - summary: The run summary.
//   - dir: The directory to write the summary file.
//
// RETURNS:
//   - The path to the summary file.
//   - An error if writing fails.
func WriteSummaryLog(summary RunSummary, dir string) (string, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("failed to create directory %s: %w", dir, err)
	}

	timestamp := summary.StartTime.Format("20060102_150405")
	summaryPath := filepath.Join(dir, fmt.Sprintf("run_summary_%s.txt", timestamp))

	file, err := os.Create(summaryPath)
	if err != nil {
		return "", fmt.Errorf("failed to create summary file: %w", err)
	}
	defer file.Close()

	writer := bufio.NewWriter(file)
	o := summary.Outcome

	fmt.Fprintf(writer, "DOCX Mail Merge - Run Summary\n"+
		"================================================================================\n\n"+
		"Run Information:\n"+
		"  Run ID:         %s\n"+
		"  Template:       %s\n"+
		"  Datasheet:      %s\n"+
		"  Suffix:         %s\n"+
		"  Start Time:     %s\n"+
		"  Duration:       %s\n"+
		"  State:          %s\n\n"+
		"Statistics:\n"+
		"  Total Rows:          %d\n"+
		"  Processed:           %d\n"+
		"  Generated:           %d\n"+
		"  Errors:              %d\n"+
		"  Skipped:             %d\n"+
		"  Conversion Failures: %d\n\n",
		o.RunID,
		summary.Request.TemplatePath,
		summary.Request.DatasheetPath,
		summary.Request.OutputSuffix,
		summary.StartTime.Format("2006-01-02 15:04:05"),
		o.Duration.Round(time.Millisecond),
		o.State,
		o.Total, o.Processed, o.Success, o.Errors, o.Skipped, o.ConversionFailures)

	if len(o.Issues) > 0 {
		writer.WriteString("Row Issues:\n")
		writer.WriteString("--------------------------------------------------------------------------------\n")
		for _, issue := range o.Issues {
			fmt.Fprintf(writer, "  Row %-6d %-10s %-12s %s\n", issue.Row, issue.Kind, issue.Key, issue.Message)
		}
		writer.WriteString("\n")
	}

	if len(o.Outputs) > 0 {
		writer.WriteString("Generated Files:\n")
		writer.WriteString("--------------------------------------------------------------------------------\n")
		for _, out := range o.Outputs {
			fmt.Fprintf(writer, "  %s\n", out)
		}
		writer.WriteString("\n")
	}

	writer.WriteString("================================================================================\n" +
		"End of Summary\n")

	if err := writer.Flush(); err != nil {
		return "", fmt.Errorf("failed to flush summary file: %w", err)
	}

	return summaryPath, nil
}
