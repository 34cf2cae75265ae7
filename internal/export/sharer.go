package export

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"syscall"

	"listingprep/internal/infra"
)

// ErrShareAbort means the user dismissed the share target. It is a normal
// outcome, never surfaced.
var ErrShareAbort = errors.New("share cancelled by user")

// ShareUnsupportedError is returned when the share target rejects the
// artifacts it was offered.
type ShareUnsupportedError struct {
	Count int
}

func (e *ShareUnsupportedError) Error() string {
	if e.Count > 1 {
		return fmt.Sprintf("sharing %d files is not supported", e.Count)
	}
	return "sharing this file is not supported"
}

// Sharer is the platform share capability. It is injected at startup and
// nil when the platform has none.
type Sharer interface {
	CanShare(artifacts []Artifact) bool
	Share(ctx context.Context, artifacts []Artifact) error
}

// CommandSharer hands artifacts to an external program as file arguments,
// e.g. a desktop "send to" helper.
type CommandSharer struct {
	name     string
	args     []string
	multiple bool
	tempDir  string
	logger   *infra.Logger
}

// CommandSharerOptions configures a CommandSharer.
type CommandSharerOptions struct {
	// Command is split on whitespace; file paths are appended to it.
	Command  string
	Multiple bool
	TempDir  string
	Logger   *infra.Logger
}

// NewCommandSharer returns nil when no command is configured.
func NewCommandSharer(opts CommandSharerOptions) *CommandSharer {
	fields := strings.Fields(opts.Command)
	if len(fields) == 0 {
		return nil
	}
	logger := opts.Logger
	if logger == nil {
		logger = infra.DiscardLogger()
	}
	return &CommandSharer{
		name:     fields[0],
		args:     fields[1:],
		multiple: opts.Multiple,
		tempDir:  opts.TempDir,
		logger:   logger,
	}
}

func (s *CommandSharer) CanShare(artifacts []Artifact) bool {
	switch {
	case len(artifacts) == 0:
		return false
	case len(artifacts) > 1:
		return s.multiple
	default:
		return true
	}
}

// Share writes artifacts to a scratch directory and runs the command over
// them. Exit status 130 or SIGINT counts as a user abort.
func (s *CommandSharer) Share(ctx context.Context, artifacts []Artifact) error {
	if !s.CanShare(artifacts) {
		return &ShareUnsupportedError{Count: len(artifacts)}
	}
	dir, err := os.MkdirTemp(s.tempDir, "listingprep-share-")
	if err != nil {
		return fmt.Errorf("share: create temp dir: %w", err)
	}
	defer func() {
		_ = os.RemoveAll(dir)
	}()

	args := append([]string{}, s.args...)
	for _, art := range artifacts {
		p := filepath.Join(dir, filepath.Base(art.Name))
		if err := os.WriteFile(p, art.Data, 0o600); err != nil {
			return fmt.Errorf("share: stage %s: %w", art.Name, err)
		}
		args = append(args, p)
	}

	cmd := exec.CommandContext(ctx, s.name, args...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	s.logger.Debug().Str("command", s.name).Int("files", len(artifacts)).Msg("share: running command")

	err = cmd.Run()
	if err == nil {
		return nil
	}
	if ctxErr := ctx.Err(); ctxErr != nil {
		return ctxErr
	}
	if isInterrupted(err) {
		return ErrShareAbort
	}
	msg := strings.TrimSpace(stderr.String())
	if msg == "" {
		return fmt.Errorf("share command %s: %w", s.name, err)
	}
	return fmt.Errorf("share command %s: %w: %s", s.name, err, msg)
}

func isInterrupted(err error) bool {
	var exitErr *exec.ExitError
	if !errors.As(err, &exitErr) {
		return false
	}
	if exitErr.ExitCode() == 130 {
		return true
	}
	if status, ok := exitErr.Sys().(syscall.WaitStatus); ok {
		return status.Signaled() && status.Signal() == syscall.SIGINT
	}
	return false
}
