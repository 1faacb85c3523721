package loader

import (
	"context"
	"errors"
	"strings"
	"testing"
)

func TestVerifyModelTag_Match(t *testing.T) {
	tag := func(ctx context.Context, repoDir string) (string, error) {
		if repoDir != "/work/c3dc-model" {
			t.Fatalf("repoDir=%q", repoDir)
		}
		return "2.1.0", nil
	}
	if err := verifyModelTag(context.Background(), tag, "/work/c3dc-model", "2.1.0"); err != nil {
		t.Fatalf("verifyModelTag() err=%v", err)
	}
}

func TestVerifyModelTag_Mismatch(t *testing.T) {
	tag := func(ctx context.Context, repoDir string) (string, error) {
		return "2.0.0", nil
	}
	err := verifyModelTag(context.Background(), tag, "/work/c3dc-model", "2.1.0")
	if err == nil {
		t.Fatalf("tag mismatch expected error")
	}
	if !strings.Contains(err.Error(), `"2.0.0"`) || !strings.Contains(err.Error(), `"2.1.0"`) {
		t.Fatalf("err=%v, should name both tags", err)
	}
}

func TestVerifyModelTag_NotOnTag(t *testing.T) {
	tag := func(ctx context.Context, repoDir string) (string, error) {
		return "", errors.New("fatal: no tag exactly matches")
	}
	if err := verifyModelTag(context.Background(), tag, "/work/c3dc-model", "2.1.0"); err == nil {
		t.Fatalf("untagged checkout expected error")
	}
}

func TestVerifyModelTag_EmptyWanted(t *testing.T) {
	tag := func(ctx context.Context, repoDir string) (string, error) {
		return "2.1.0", nil
	}
	if err := verifyModelTag(context.Background(), tag, "/work/c3dc-model", " "); err == nil {
		t.Fatalf("empty wanted tag expected error")
	}
}
