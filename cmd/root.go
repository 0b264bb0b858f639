// =============================================================================
// DOETH Attestation Generator - Root Command
// =============================================================================
//
// This file defines the root command for the Cobra CLI. The root command is
// the base command that all other commands are attached to.
//
// COBRA CLI STRUCTURE:
//   rootCmd (attestor)
//   ├── runCmd (attestor run)
//   └── versionCmd (attestor version)
//
// CONFIGURATION:
//   The root command is responsible for:
//   1. Setting up global flags (--config, --verbose)
//   2. Resolving the effective configuration for subcommands
//   3. Building the session logger
//
// =============================================================================

package cmd

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/doethtools/attestor/internal/config"
	"github.com/doethtools/attestor/pkg/utils"
)

// =============================================================================
// GLOBAL VARIABLES
// =============================================================================

// cfgFile holds the path to the configuration file. Empty means the built-in
// defaults are used. Can be set with the --config flag.
var cfgFile string

// verbose enables debug logging when set to true.
var verbose bool

// =============================================================================
// ROOT COMMAND DEFINITION
// =============================================================================

// rootCmd represents the base command when called without any subcommands.
var rootCmd = &cobra.Command{
	Use:   "attestor",
	Short: "DOETH attestation generator - per-entity certificates from declaration sheets",
	Long: `Attestor ingests an Excel sheet of disability-employment declaration rows,
cleans and aggregates them per legal entity (SIRET), checkpoints the cleaned
data as a CSV snapshot and generates one attestation document per entity,
with optional batch conversion to PDF through a single LibreOffice session.

Key Features:
  - Identifier normalization (SIREN/NIC zero-padding and validation)
  - Per-beneficiary aggregation of FTE units and worked hours
  - Round-trippable CSV snapshots for audit and reruns
  - One DOCX attestation per legal entity, PDF conversion on demand

Example Usage:
  attestor run --input declarations.xlsx           # full pipeline, DOCX output
  attestor run --input declarations.xlsx --format both
  attestor run --skip-processing --snapshot processed_20260115_093000.csv`,
	Run: func(cmd *cobra.Command, args []string) {
		cmd.Help()
	},
}

// =============================================================================
// EXECUTE FUNCTION
// =============================================================================

// Execute adds all child commands to the root command and sets flags
// appropriately. Called by main.main().
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// =============================================================================
// INITIALIZATION
// =============================================================================

func init() {
	rootCmd.PersistentFlags().StringVar(
		&cfgFile,
		"config",
		"",
		"Path to the configuration file (built-in defaults when omitted)",
	)

	rootCmd.PersistentFlags().BoolVarP(
		&verbose,
		"verbose",
		"v",
		false,
		"Enable verbose output for debugging",
	)
}

// =============================================================================
// SHARED HELPERS
// =============================================================================

// loadConfig resolves the effective configuration for a subcommand.
func loadConfig() (config.Config, error) {
	if cfgFile == "" {
		return config.Default(), nil
	}
	return config.Load(cfgFile)
}

// newLogger builds the session logger: human-readable console output plus a
// timestamped JSON log file under the logs directory. The returned cleanup
// flushes and closes the file.
func newLogger(logsDir string) (*zap.Logger, func(), error) {
	if err := utils.EnsureDirectories(logsDir); err != nil {
		return nil, nil, err
	}

	level := zapcore.InfoLevel
	if verbose {
		level = zapcore.DebugLevel
	}

	encCfg := zap.NewProductionEncoderConfig()
	encCfg.EncodeTime = zapcore.ISO8601TimeEncoder

	logPath := filepath.Join(logsDir,
		fmt.Sprintf("attestor_%s.log", time.Now().Format("20060102_150405")))
	logFile, err := os.OpenFile(logPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open log file: %w", err)
	}

	core := zapcore.NewTee(
		zapcore.NewCore(zapcore.NewConsoleEncoder(encCfg), zapcore.Lock(os.Stderr), level),
		zapcore.NewCore(zapcore.NewJSONEncoder(encCfg), zapcore.AddSync(logFile), zapcore.DebugLevel),
	)
	logger := zap.New(core)

	cleanup := func() {
		_ = logger.Sync()
		_ = logFile.Close()
	}
	return logger, cleanup, nil
}
