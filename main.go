// =============================================================================
// DOCX Mail Merge - Main Entry Point
// =============================================================================
//
// This is the main entry point for the DOCX Mail Merge CLI application.
// It delegates command execution to the cmd package.
//
// USAGE:
//   mailmerge generate      - Generate one document per datasheet row
//   mailmerge preview       - Compare template variables with the datasheet
//   mailmerge init-config   - Write the default configuration
//   mailmerge version       - Display the application version
//
// ARCHITECTURE:
//   - cmd/           : CLI command definitions (Cobra)
//   - internal/      : Merge engine, template binding, conversion
//   - pkg/           : Output file naming and writing
//
// =============================================================================

package main

import (
	"github.com/ginjaninja78/docx-mail-merge/cmd"
)

func main() {
	cmd.Execute()
}
