package loader

import (
	"context"
	"fmt"
	"os/exec"
	"strings"
)

type tagFunc func(ctx context.Context, repoDir string) (string, error)

func gitExactTag(ctx context.Context, repoDir string) (string, error) {
	cmd := exec.CommandContext(ctx, "git", "describe", "--tags", "--exact-match")
	cmd.Dir = repoDir
	out, err := cmd.Output()
	if err != nil {
		return "", fmt.Errorf("git describe in %s: %w", repoDir, err)
	}
	return strings.TrimSpace(string(out)), nil
}

// VerifyModelTag checks that the checked-out model repository is at exactly
// the requested tag. A mismatch means the deployment pulled a different model
// than the run parameters ask for, which fails the run.
func VerifyModelTag(ctx context.Context, repoDir, wantTag string) error {
	return verifyModelTag(ctx, gitExactTag, repoDir, wantTag)
}

func verifyModelTag(ctx context.Context, tag tagFunc, repoDir, wantTag string) error {
	wantTag = strings.TrimSpace(wantTag)
	if wantTag == "" {
		return fmt.Errorf("model tag is required")
	}
	got, err := tag(ctx, repoDir)
	if err != nil {
		return fmt.Errorf("resolve model tag: %w", err)
	}
	if got != wantTag {
		return fmt.Errorf("model repo is at tag %q, run requires %q: redeploy with the desired model tag", got, wantTag)
	}
	return nil
}
