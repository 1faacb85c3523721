package objectstore

import (
	"errors"
	"fmt"
	"strings"

	"github.com/c3dc-labs/hubloader-go/internal/platform/env"
)

type Config struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	Region    string
	UseSSL    bool

	// SubmissionBucket holds staged metadata folders and run logs.
	SubmissionBucket string
}

func ConfigFromEnv() (Config, error) {
	useSSL, err := env.Bool("HUBLOADER_S3_USE_SSL", false)
	if err != nil {
		return Config{}, err
	}
	cfg := Config{
		Endpoint:         env.String("HUBLOADER_S3_ENDPOINT", "localhost:9000"),
		AccessKey:        env.String("HUBLOADER_S3_ACCESS_KEY", "hubloader"),
		SecretKey:        env.String("HUBLOADER_S3_SECRET_KEY", "hubloaders3"),
		Region:           env.String("HUBLOADER_S3_REGION", "us-east-1"),
		UseSSL:           useSSL,
		SubmissionBucket: env.String("HUBLOADER_S3_SUBMISSION_BUCKET", "submission"),
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) Validate() error {
	if strings.TrimSpace(c.Endpoint) == "" {
		return errors.New("endpoint is required")
	}
	if strings.TrimSpace(c.AccessKey) == "" {
		return errors.New("access key is required")
	}
	if strings.TrimSpace(c.SecretKey) == "" {
		return errors.New("secret key is required")
	}
	if strings.TrimSpace(c.Region) == "" {
		return errors.New("region is required")
	}
	if strings.TrimSpace(c.SubmissionBucket) == "" {
		return errors.New("submission bucket is required")
	}
	if strings.Contains(c.Endpoint, "://") {
		return fmt.Errorf("endpoint must not include scheme: %q", c.Endpoint)
	}
	return nil
}
