package convert

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/paperdesk/be-doc-approvals/internal/platform/errors"
)

// Typed failures surfaced by the conversion subsystem. Renderer availability
// and timeouts are retryable resource errors; callers must be able to tell
// them apart from data errors.
var (
	ErrRendererUnavailable = errors.New(errors.ErrCodeUnavailable, "document renderer is unavailable")
	ErrConversionTimeout   = errors.New(errors.ErrCodeUnavailable, "document conversion timed out")
)

// Engine converts one office document at a time into PDF. Implementations are
// not reentrant: the pool guarantees a single in-flight job per engine.
type Engine interface {
	// Convert renders src (declared by its extension) to PDF bytes.
	Convert(ctx context.Context, src []byte, ext string) ([]byte, error)
	// Probe verifies the engine installation is usable.
	Probe(ctx context.Context) error
	// Restart resets engine state after a failed or timed-out job.
	Restart(ctx context.Context) error
}

// sofficeEngine drives a LibreOffice-compatible binary out of process. Each
// engine instance owns a private profile directory: concurrent invocations
// against a shared profile are known to corrupt or hang it.
type sofficeEngine struct {
	binary     string
	workDir    string
	profileDir string
}

// NewSofficeEngine creates an engine instance with its own profile directory
// under workDir. The instance index keeps profile dirs of pooled engines
// apart.
func NewSofficeEngine(binary, workDir string, instance int) (Engine, error) {
	profileDir := filepath.Join(workDir, fmt.Sprintf("renderer-profile-%d", instance))
	if err := os.MkdirAll(profileDir, 0o755); err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeInternal, "failed to create renderer profile directory")
	}
	return &sofficeEngine{
		binary:     binary,
		workDir:    workDir,
		profileDir: profileDir,
	}, nil
}

func (e *sofficeEngine) Convert(ctx context.Context, src []byte, ext string) ([]byte, error) {
	jobDir, err := os.MkdirTemp(e.workDir, "convert-job-")
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeInternal, "failed to create conversion scratch directory")
	}
	defer os.RemoveAll(jobDir)

	inputPath := filepath.Join(jobDir, "input."+strings.TrimPrefix(ext, "."))
	if err := os.WriteFile(inputPath, src, 0o600); err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeInternal, "failed to write conversion input")
	}

	cmd := exec.CommandContext(ctx, e.binary,
		"--headless",
		"--norestore",
		"--nolockcheck",
		fmt.Sprintf("-env:UserInstallation=file://%s", e.profileDir),
		"--convert-to", "pdf",
		"--outdir", jobDir,
		inputPath,
	)
	output, err := cmd.CombinedOutput()
	if ctx.Err() == context.DeadlineExceeded {
		return nil, ErrConversionTimeout
	}
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeUnavailable,
			fmt.Sprintf("renderer failed: %s", firstLine(output)))
	}

	outPath := filepath.Join(jobDir, "input.pdf")
	pdf, err := os.ReadFile(outPath)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeUnavailable, "renderer produced no output")
	}
	return pdf, nil
}

// Probe runs a --version no-op so a broken installation is detected at
// startup rather than on the first approver's action.
func (e *sofficeEngine) Probe(ctx context.Context) error {
	cmd := exec.CommandContext(ctx, e.binary, "--version")
	if err := cmd.Run(); err != nil {
		return ErrRendererUnavailable
	}
	return nil
}

// Restart wipes the profile directory and re-probes. A job that timed out may
// have left the profile locked or half-written.
func (e *sofficeEngine) Restart(ctx context.Context) error {
	if err := os.RemoveAll(e.profileDir); err != nil {
		return errors.Wrap(err, errors.ErrCodeInternal, "failed to reset renderer profile directory")
	}
	if err := os.MkdirAll(e.profileDir, 0o755); err != nil {
		return errors.Wrap(err, errors.ErrCodeInternal, "failed to recreate renderer profile directory")
	}
	return e.Probe(ctx)
}

func firstLine(output []byte) string {
	s := strings.TrimSpace(string(output))
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		s = s[:i]
	}
	if len(s) > 200 {
		s = s[:200]
	}
	return s
}
