// Package pull executes a deployment's resolved pull sequence: the ordered
// clone and dependency-install steps that prepare an execution environment
// before a flow run. Any step failure aborts the whole preparation; retry
// policy is owned by whoever schedules the preparation, not by the runner.
package pull

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/c3dc-labs/hubloader-go/internal/domain"
	"github.com/c3dc-labs/hubloader-go/internal/manifest"
)

type commandFunc func(ctx context.Context, dir string, name string, args ...string) ([]byte, error)

type Runner struct {
	gitBin  string
	pipBin  string
	baseDir string
	logger  *slog.Logger
	run     commandFunc
}

func NewRunner(logger *slog.Logger, baseDir, gitBin, pipBin string) (*Runner, error) {
	baseDir = strings.TrimSpace(baseDir)
	if baseDir == "" {
		return nil, errors.New("base directory is required")
	}
	gitBin = strings.TrimSpace(gitBin)
	if gitBin == "" {
		gitBin = "git"
	}
	pipBin = strings.TrimSpace(pipBin)
	if pipBin == "" {
		pipBin = "pip"
	}
	if _, err := exec.LookPath(gitBin); err != nil {
		return nil, fmt.Errorf("git binary not found: %w", err)
	}
	return &Runner{
		gitBin:  gitBin,
		pipBin:  pipBin,
		baseDir: baseDir,
		logger:  logger,
		run:     runCommand,
	}, nil
}

// Run executes a resolved pull sequence in declared order. Steps must have
// no template placeholders left.
func (r *Runner) Run(ctx context.Context, steps []domain.PullStep) error {
	if r == nil {
		return errors.New("runner not initialized")
	}
	for i, step := range steps {
		if err := step.ValidateShape(); err != nil {
			return fmt.Errorf("pull[%d]: %w", i, err)
		}
		var err error
		switch step.Kind() {
		case domain.StepKindGitClone:
			err = r.gitClone(ctx, *step.GitClone)
		case domain.StepKindPipInstall:
			err = r.pipInstall(ctx, *step.PipInstall)
		}
		if err != nil {
			return fmt.Errorf("pull[%d] %s: %w", i, step.Kind(), err)
		}
	}
	return nil
}

func (r *Runner) gitClone(ctx context.Context, step domain.GitCloneStep) error {
	repo := strings.TrimSpace(step.Repository)
	branch := strings.TrimSpace(step.Branch)
	if repo == "" {
		return errors.New("repository is required")
	}
	if branch == "" {
		return errors.New("branch is required")
	}
	if err := checkResolved(repo, branch); err != nil {
		return err
	}

	args := []string{"clone", "--branch", branch, "--single-branch"}
	if step.IncludeSubmodules {
		args = append(args, "--recurse-submodules")
	}
	args = append(args, repo, manifest.CloneDirectory(repo))

	out, err := r.run(ctx, r.baseDir, r.gitBin, args...)
	if err != nil {
		return fmt.Errorf("git clone failed: %w: %s", err, strings.TrimSpace(string(out)))
	}
	r.log("cloned repository", "repository", repo, "branch", branch)
	return nil
}

func (r *Runner) pipInstall(ctx context.Context, step domain.PipInstallStep) error {
	requirements := strings.TrimSpace(step.RequirementsFile)
	if requirements == "" {
		return errors.New("requirements file is required")
	}
	if err := checkResolved(requirements, step.Directory); err != nil {
		return err
	}

	dir := r.baseDir
	if trimmed := strings.TrimSpace(step.Directory); trimmed != "" {
		dir = filepath.Join(r.baseDir, trimmed)
	}

	out, err := r.run(ctx, dir, r.pipBin, "install", "-r", requirements)
	if err != nil {
		return fmt.Errorf("pip install failed: %w: %s", err, strings.TrimSpace(string(out)))
	}
	if step.StreamOutput {
		r.log("installed requirements", "requirements", requirements, "output", strings.TrimSpace(string(out)))
	} else {
		r.log("installed requirements", "requirements", requirements)
	}
	return nil
}

func (r *Runner) log(msg string, args ...any) {
	if r.logger == nil {
		return
	}
	r.logger.Info(msg, args...)
}

func checkResolved(values ...string) error {
	for _, v := range values {
		if strings.Contains(v, "{{") {
			return fmt.Errorf("unresolved template placeholder in %q", v)
		}
	}
	return nil
}

func runCommand(ctx context.Context, dir string, name string, args ...string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Dir = dir
	return cmd.CombinedOutput()
}
