// =============================================================================
// DOETH Attestation Generator - Main Entry Point
// =============================================================================
//
// Entry point for the attestation generator CLI. It initializes the Cobra
// framework and delegates command execution to the cmd package.
//
// USAGE:
//   attestor run             - Process the source sheet and generate attestations
//   attestor version         - Display the application version
//
// ARCHITECTURE:
//   - cmd/           : CLI command definitions (Cobra)
//   - internal/      : pipeline stages, certificate builder, conversion batch
//   - pkg/           : shared utilities
//
// =============================================================================

package main

import (
	"github.com/doethtools/attestor/cmd"
)

func main() {
	cmd.Execute()
}
