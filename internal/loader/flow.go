package loader

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/minio/minio-go/v7"

	"github.com/c3dc-labs/hubloader-go/internal/domain"
	"github.com/c3dc-labs/hubloader-go/internal/secrets"
)

const (
	modelRepoDir  = "c3dc-model"
	modelYAMLPath = "model-desc/c3dc-model.yml"
	propsFileName = "props_file.yaml"
	logDirName    = "hubloader"
)

// stagingAPI is the slice of Staging the flow drives: the bucket round trips
// for metadata and logs.
type stagingAPI interface {
	Bucket() string
	FetchMetadata(ctx context.Context, folder, destDir string) ([]string, error)
	UploadLogs(ctx context.Context, localDir, prefix string) error
}

// Flow runs the hub data-loader end to end for one flow run: secret
// resolution, model-tag verification, props generation, metadata staging,
// the database load, and log upload.
type Flow struct {
	logger  *slog.Logger
	secrets secrets.Resolver

	// workDir is where the pull steps checked out the model repository.
	workDir string
	// scratchDir holds fetched metadata and run logs before upload.
	scratchDir string

	newStaging func(bundle secrets.Bundle) (stagingAPI, error)
	openDB     func(ctx context.Context, bundle secrets.Bundle) (*sql.DB, error)
	verifyTag  func(ctx context.Context, repoDir, wantTag string) error
	now        func() time.Time
}

func NewFlow(logger *slog.Logger, resolver secrets.Resolver, store *minio.Client, workDir, scratchDir string) (*Flow, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if strings.TrimSpace(workDir) == "" {
		return nil, fmt.Errorf("work dir is required")
	}
	if strings.TrimSpace(scratchDir) == "" {
		return nil, fmt.Errorf("scratch dir is required")
	}
	return &Flow{
		logger:     logger,
		secrets:    resolver,
		workDir:    workDir,
		scratchDir: scratchDir,
		newStaging: func(bundle secrets.Bundle) (stagingAPI, error) {
			return NewStaging(store, bundle.SubmissionBucket)
		},
		openDB:    openTargetDB,
		verifyTag: VerifyModelTag,
		now:       time.Now,
	}, nil
}

func openTargetDB(ctx context.Context, bundle secrets.Bundle) (*sql.DB, error) {
	db, err := sql.Open("pgx", bundle.DatabaseURI)
	if err != nil {
		return nil, fmt.Errorf("open target database: %w", err)
	}
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping target database: %w", err)
	}
	return db, nil
}

// Run executes the flow and returns the log location in the submission
// bucket. Any step failure fails the run.
func (f *Flow) Run(ctx context.Context, params domain.ParameterSet) (string, error) {
	if err := params.Validate(); err != nil {
		return "", err
	}
	if strings.TrimSpace(params.MetadataFolder) == "" {
		return "", fmt.Errorf("metadata_folder is required")
	}
	if strings.TrimSpace(params.Runner) == "" {
		return "", fmt.Errorf("runner is required")
	}

	f.logger.Info("resolving secret bundle", "secret_name", params.SecretName)
	bundle, err := f.secrets.Resolve(params.SecretName)
	if err != nil {
		return "", err
	}

	modelDir := filepath.Join(f.workDir, modelRepoDir)
	f.logger.Info("verifying model tag", "repo", modelDir, "model_tag", params.ModelTag)
	if err := f.verifyTag(ctx, modelDir, params.ModelTag); err != nil {
		return "", err
	}

	staging, err := f.newStaging(bundle)
	if err != nil {
		return "", err
	}

	folder := params.MetadataFolder
	if !strings.HasSuffix(folder, "/") {
		folder += "/"
	}
	runner := strings.TrimSuffix(params.Runner, "/")
	logPrefix := fmt.Sprintf("%s/%s_%s/logs", runner, logDirName, f.now().Format("20060102_T150405"))
	logLocation := fmt.Sprintf("s3://%s/%s", staging.Bucket(), logPrefix)

	props, err := BuildPropsFromFile(
		filepath.Join(modelDir, modelYAMLPath),
		filepath.Join(f.workDir, propsFileName),
		MetadataDelimiter,
		DomainValue,
	)
	if err != nil {
		return "", err
	}
	f.logger.Info("props file generated", "nodes", len(props.Properties.Plurals))

	metadataDir := filepath.Join(f.scratchDir, "metadata")
	files, err := staging.FetchMetadata(ctx, folder, metadataDir)
	if err != nil {
		return "", err
	}
	f.logger.Info("metadata staged", "bucket", staging.Bucket(), "folder", folder, "files", len(files))

	records := make([]Record, 0)
	for _, file := range files {
		parsed, err := ParseMetadataFile(file, props.Properties)
		if err != nil {
			return "", err
		}
		records = append(records, parsed...)
	}

	db, err := f.openDB(ctx, bundle)
	if err != nil {
		return "", err
	}
	defer db.Close()

	engine, err := NewEngine(db, f.logger)
	if err != nil {
		return "", err
	}
	stats, err := engine.Load(ctx, records, props.Properties, LoadOptions{
		Mode:             params.Mode,
		WipeDB:           params.WipeDB,
		DryRun:           params.DryRun,
		CheatMode:        params.CheatMode,
		SplitTransaction: params.SplitTransaction,
	})
	if err != nil {
		return "", err
	}

	localLogs := filepath.Join(f.scratchDir, "logs")
	if err := f.writeRunLog(localLogs, params, stats, len(files)); err != nil {
		return "", err
	}
	if err := staging.UploadLogs(ctx, localLogs, logPrefix); err != nil {
		return "", err
	}
	f.logger.Info("run logs uploaded", "location", logLocation)

	return logLocation, nil
}

func (f *Flow) writeRunLog(dir string, params domain.ParameterSet, stats Stats, files int) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create log dir: %w", err)
	}
	var b strings.Builder
	fmt.Fprintf(&b, "started: %s\n", f.now().UTC().Format(time.RFC3339))
	fmt.Fprintf(&b, "metadata_folder: %s\n", params.MetadataFolder)
	fmt.Fprintf(&b, "model_tag: %s\n", params.ModelTag)
	fmt.Fprintf(&b, "mode: %s\n", params.Mode)
	fmt.Fprintf(&b, "dry_run: %t\n", params.DryRun)
	fmt.Fprintf(&b, "files: %d\n", files)
	fmt.Fprintf(&b, "loaded: %d\n", stats.Loaded)
	fmt.Fprintf(&b, "deleted: %d\n", stats.Deleted)
	fmt.Fprintf(&b, "skipped: %d\n", stats.Skipped)
	if err := os.WriteFile(filepath.Join(dir, "load.log"), []byte(b.String()), 0o644); err != nil {
		return fmt.Errorf("write run log: %w", err)
	}
	return nil
}
