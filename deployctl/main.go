package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"golang.org/x/oauth2"

	"github.com/c3dc-labs/hubloader-go/internal/manifest"
	"github.com/c3dc-labs/hubloader-go/internal/platform/auth"
)

// deployctl validates a manifest file and registers its deployments through
// the registry API.
func main() {
	var (
		manifestPath = flag.String("manifest", "hubloader.yaml", "path to the deployment manifest")
		registryURL  = flag.String("registry", "http://localhost:8080", "registry base URL")
		checkOnly    = flag.Bool("check", false, "validate the manifest without registering it")
		timeout      = flag.Duration("timeout", 30*time.Second, "request timeout")
	)
	flag.Parse()

	if err := run(*manifestPath, *registryURL, *checkOnly, *timeout); err != nil {
		fmt.Fprintln(os.Stderr, "deployctl:", err)
		var validationErr *manifest.ValidationError
		if errors.As(err, &validationErr) {
			for _, issue := range validationErr.Issues {
				fmt.Fprintln(os.Stderr, "  -", issue)
			}
		}
		os.Exit(1)
	}
}

func run(manifestPath, registryURL string, checkOnly bool, timeout time.Duration) error {
	raw, err := os.ReadFile(manifestPath)
	if err != nil {
		return err
	}

	if err := manifest.ValidateSchema(raw); err != nil {
		return err
	}
	m, err := manifest.Parse(raw)
	if err != nil {
		return err
	}
	if err := manifest.Validate(m); err != nil {
		return err
	}
	fmt.Printf("manifest %q: %d deployment(s) valid\n", m.Name, len(m.Deployments))

	if checkOnly {
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	client, err := newHTTPClient(ctx)
	if err != nil {
		return err
	}
	results, err := apply(ctx, client, registryURL, raw)
	if err != nil {
		return err
	}
	for _, result := range results {
		verb := "updated"
		if result.Created {
			verb = "created"
		}
		fmt.Printf("deployment %s/%s %s (%s)\n", result.Name, result.Version, verb, result.DeploymentID)
	}
	return nil
}

// newHTTPClient attaches a client-credentials token source when the OIDC
// client env vars are set, and falls back to plain HTTP otherwise.
func newHTTPClient(ctx context.Context) (*http.Client, error) {
	cfg := auth.ClientConfigFromEnv()
	if !cfg.Enabled() {
		return &http.Client{Timeout: 30 * time.Second}, nil
	}
	source, err := auth.ServiceTokenSource(ctx, cfg)
	if err != nil {
		return nil, err
	}
	return oauth2.NewClient(ctx, source), nil
}

type appliedDeployment struct {
	DeploymentID string `json:"deployment_id"`
	Name         string `json:"name"`
	Version      string `json:"version"`
	Created      bool   `json:"created"`
}

type applyResponse struct {
	Deployments []appliedDeployment `json:"deployments"`
}

func apply(ctx context.Context, client *http.Client, registryURL string, raw []byte) ([]appliedDeployment, error) {
	url := strings.TrimRight(strings.TrimSpace(registryURL), "/") + "/api/v1/manifests/apply"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(raw))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/x-yaml")
	req.Header.Set("Accept", "application/json")

	resp, err := client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("registry: status=%d body=%s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var parsed applyResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, fmt.Errorf("decode registry response: %w", err)
	}
	return parsed.Deployments, nil
}
