// =============================================================================
// DOETH Attestation Generator - Run Command
// =============================================================================
//
// This file defines the 'run' command, which executes the full pipeline:
// source reading, cleaning, aggregation, snapshot checkpoint, certificate
// generation and optional PDF conversion.
//
// COMMAND USAGE:
//   attestor run [flags]
//
// FLAGS:
//   --input            Source Excel file (default from configuration)
//   --sheet            Declaration sheet name
//   --output-dir       Directory receiving the certificates
//   --snapshot         Snapshot path (target, or source with --skip-processing)
//   --skip-processing  Start from an existing snapshot instead of the source
//   --format           Output format: docx, pdf or both
//   --dry-run          Process and checkpoint without writing documents
//
// =============================================================================

package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"sort"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/doethtools/attestor/internal/diag"
	"github.com/doethtools/attestor/internal/pipeline"
)

// =============================================================================
// COMMAND FLAGS
// =============================================================================

var (
	runInput          string
	runSheet          string
	runOutputDir      string
	runSnapshot       string
	runSkipProcessing bool
	runFormat         string
	runDryRun         bool
)

// =============================================================================
// RUN COMMAND DEFINITION
// =============================================================================

// runCmd represents the 'run' command.
var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Process the declaration sheet and generate attestations",
	Long: `Run executes the full batch: reads the declaration sheet, normalizes the
identifiers, aggregates duplicate beneficiaries, writes a CSV snapshot of the
cleaned data and generates one attestation per legal entity.

With --skip-processing the cleaning stages are bypassed and certificates are
generated directly from an existing (possibly hand-corrected) snapshot.`,
	RunE: runRun,
}

func init() {
	runCmd.Flags().StringVar(&runInput, "input", "", "Source Excel file (default: input_dir/input_filename from configuration)")
	runCmd.Flags().StringVar(&runSheet, "sheet", "", "Declaration sheet name (default from configuration)")
	runCmd.Flags().StringVar(&runOutputDir, "output-dir", "", "Directory receiving the generated documents (default from configuration)")
	runCmd.Flags().StringVar(&runSnapshot, "snapshot", "", "CSV snapshot path; with --skip-processing, the snapshot to start from")
	runCmd.Flags().BoolVar(&runSkipProcessing, "skip-processing", false, "Generate documents from an existing snapshot instead of the source sheet")
	runCmd.Flags().StringVar(&runFormat, "format", string(pipeline.FormatDocx), "Output format: docx, pdf or both")
	runCmd.Flags().BoolVar(&runDryRun, "dry-run", false, "Run processing and the snapshot checkpoint without writing documents")

	rootCmd.AddCommand(runCmd)
}

// =============================================================================
// COMMAND EXECUTION
// =============================================================================

func runRun(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	format, err := pipeline.ParseFormat(runFormat)
	if err != nil {
		return err
	}

	logger, cleanup, err := newLogger(cfg.Paths.LogsDir)
	if err != nil {
		return err
	}
	defer cleanup()

	// Ctrl-C cancels the run; the conversion batch releases its session
	// before the process exits.
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	params := pipeline.Params{
		SourcePath:     runInput,
		SheetName:      runSheet,
		OutputDir:      runOutputDir,
		SnapshotPath:   runSnapshot,
		SkipProcessing: runSkipProcessing,
		Format:         format,
		DryRun:         runDryRun,
	}
	if params.SourcePath == "" {
		params.SourcePath = filepath.Join(cfg.Paths.InputDir, cfg.Defaults.InputFilename)
	}
	if params.SheetName == "" {
		params.SheetName = cfg.Defaults.ExcelSheet
	}
	if params.OutputDir == "" {
		params.OutputDir = cfg.Paths.OutputDir
	}

	summary, runErr := pipeline.Run(ctx, cfg, params, &diag.ZapSink{Log: logger}, logger)
	printSummary(summary)
	if runErr != nil {
		return runErr
	}
	return nil
}

// printSummary writes the human-readable run report to stdout.
func printSummary(s pipeline.Summary) {
	fmt.Println()
	fmt.Println("=== Run Summary ===")
	fmt.Printf("Run ID:          %s\n", s.RunID)
	fmt.Printf("Rows read:       %d\n", s.RowsRead)
	if s.RowsDropped > 0 {
		fmt.Printf("Rows dropped:    %d\n", s.RowsDropped)
		reasons := make([]string, 0, len(s.DroppedByReason))
		for reason := range s.DroppedByReason {
			reasons = append(reasons, reason)
		}
		sort.Strings(reasons)
		for _, reason := range reasons {
			fmt.Printf("  - %s: %d\n", reason, s.DroppedByReason[reason])
		}
	}
	if s.Inconsistencies > 0 {
		fmt.Printf("Inconsistencies: %d (see log)\n", s.Inconsistencies)
	}
	fmt.Printf("Beneficiaries:   %d\n", s.Records)
	fmt.Printf("Entities:        %d\n", s.Groups)
	fmt.Printf("Total FTE units: %.2f\n", s.TotalFTE)
	fmt.Printf("Total hours:     %.2f\n", s.TotalHours)
	if s.SnapshotPath != "" {
		fmt.Printf("Snapshot:        %s\n", s.SnapshotPath)
	}
	if s.DryRun {
		fmt.Println("Dry run:         no documents written")
	} else {
		fmt.Printf("Documents built: %d\n", s.DocumentsBuilt)
		if s.BuildFailures > 0 {
			fmt.Printf("Build failures:  %d\n", s.BuildFailures)
		}
		if s.Converted > 0 || s.ConversionFailed > 0 || s.ConversionSkipped > 0 {
			fmt.Printf("PDF converted:   %d\n", s.Converted)
			if s.ConversionFailed > 0 {
				fmt.Printf("PDF failed:      %d\n", s.ConversionFailed)
			}
			if s.ConversionSkipped > 0 {
				fmt.Printf("PDF skipped:     %d\n", s.ConversionSkipped)
			}
		}
	}
	fmt.Printf("Duration:        %s\n", s.Duration.Round(time.Millisecond))
}
