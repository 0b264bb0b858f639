// =============================================================================
// DOETH Attestation Generator - LibreOffice Session
// =============================================================================
//
// LibreOffice implementation of the rendering session. The expensive part of
// headless conversion is the user profile LibreOffice builds on first start;
// the session creates one dedicated profile when acquired and reuses it for
// every document of the batch, so per-document invocations start warm. Close
// removes the profile.
//
// =============================================================================

package pdfconvert

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"go.uber.org/zap"
)

// LibreOffice converts DOCX files to PDF through a headless soffice binary.
type LibreOffice struct {
	bin     string
	profile string
	timeout time.Duration
	log     *zap.Logger
	closed  bool
}

// NewLibreOfficeOpener returns an Opener producing LibreOffice sessions. The
// binary is resolved at acquisition time so a missing LibreOffice install
// fails the batch before any document is touched.
func NewLibreOfficeOpener(bin string, timeout time.Duration, log *zap.Logger) Opener {
	return func() (Session, error) {
		resolved, err := exec.LookPath(bin)
		if err != nil {
			return nil, &SessionError{Err: fmt.Errorf("libreoffice binary not found: %w", err)}
		}
		profile, err := os.MkdirTemp("", "attestor-soffice-*")
		if err != nil {
			return nil, &SessionError{Err: fmt.Errorf("failed to create conversion profile: %w", err)}
		}
		log.Debug("rendering session opened",
			zap.String("bin", resolved),
			zap.String("profile", profile))
		return &LibreOffice{
			bin:     resolved,
			profile: profile,
			timeout: timeout,
			log:     log,
		}, nil
	}
}

// Convert renders src to a PDF next to it (same base name).
func (s *LibreOffice) Convert(ctx context.Context, src string) (string, error) {
	if s.closed {
		return "", &SessionError{Err: errors.New("session already closed")}
	}

	abs, err := filepath.Abs(src)
	if err != nil {
		return "", &ConversionError{Document: src, Err: err}
	}
	outDir := filepath.Dir(abs)
	pdf := strings.TrimSuffix(abs, filepath.Ext(abs)) + ".pdf"

	cctx := ctx
	if s.timeout > 0 {
		var cancel context.CancelFunc
		cctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}

	cmd := exec.CommandContext(cctx, s.bin,
		"--headless", "--norestore", "--nolockcheck",
		"-env:UserInstallation=file://"+s.profile,
		"--convert-to", "pdf",
		"--outdir", outDir,
		abs,
	)
	var stderr strings.Builder
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if ctx.Err() != nil {
			// The whole batch was cancelled, not just this document.
			return "", &SessionError{Err: ctx.Err()}
		}
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) || errors.Is(cctx.Err(), context.DeadlineExceeded) {
			return "", &ConversionError{
				Document: src,
				Err:      fmt.Errorf("%w: %s", err, strings.TrimSpace(stderr.String())),
			}
		}
		// Failure to even start the process: the session is gone.
		return "", &SessionError{Err: err}
	}

	if _, err := os.Stat(pdf); err != nil {
		return "", &ConversionError{Document: src, Err: fmt.Errorf("no PDF produced: %w", err)}
	}
	return pdf, nil
}

// Close releases the conversion profile. Safe to call more than once.
func (s *LibreOffice) Close() error {
	if s.closed {
		return nil
	}
	s.closed = true
	if err := os.RemoveAll(s.profile); err != nil {
		return fmt.Errorf("failed to remove conversion profile: %w", err)
	}
	s.log.Debug("rendering session closed", zap.String("profile", s.profile))
	return nil
}
