package secrets

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/c3dc-labs/hubloader-go/internal/platform/env"
)

// Bundle is the JSON secret payload a deployment references by secret name.
// It carries the load target and the staging bucket for one environment.
type Bundle struct {
	DatabaseURI      string `json:"database_uri"`
	DatabasePassword string `json:"database_password"`
	SubmissionBucket string `json:"submission_bucket"`
}

func (b Bundle) Validate() error {
	if strings.TrimSpace(b.DatabaseURI) == "" {
		return errors.New("database_uri is required")
	}
	if strings.TrimSpace(b.SubmissionBucket) == "" {
		return errors.New("submission_bucket is required")
	}
	return nil
}

// Resolver looks up secret bundles by name. File bundles live under Dir as
// <name>.json; an environment variable HUBLOADER_SECRET_<NAME> (name
// uppercased, dashes to underscores) takes precedence when set.
type Resolver struct {
	Dir string
}

func ResolverFromEnv() Resolver {
	return Resolver{Dir: env.String("HUBLOADER_SECRETS_DIR", "/etc/hubloader/secrets")}
}

func (r Resolver) Resolve(name string) (Bundle, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return Bundle{}, errors.New("secret name is required")
	}

	if raw, ok := os.LookupEnv(envKey(name)); ok {
		return decode(name, []byte(raw))
	}

	if strings.TrimSpace(r.Dir) == "" {
		return Bundle{}, fmt.Errorf("secret %q: no secrets directory configured", name)
	}
	raw, err := os.ReadFile(filepath.Join(r.Dir, name+".json"))
	if err != nil {
		return Bundle{}, fmt.Errorf("secret %q: %w", name, err)
	}
	return decode(name, raw)
}

func envKey(name string) string {
	key := strings.ToUpper(name)
	key = strings.ReplaceAll(key, "-", "_")
	key = strings.ReplaceAll(key, ".", "_")
	return "HUBLOADER_SECRET_" + key
}

func decode(name string, raw []byte) (Bundle, error) {
	var bundle Bundle
	if err := json.Unmarshal(raw, &bundle); err != nil {
		return Bundle{}, fmt.Errorf("secret %q: decode: %w", name, err)
	}
	if err := bundle.Validate(); err != nil {
		return Bundle{}, fmt.Errorf("secret %q: %w", name, err)
	}
	return bundle, nil
}
