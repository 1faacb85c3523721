package loader

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/c3dc-labs/hubloader-go/internal/domain"
)

// Engine writes metadata records into the target database honoring the run's
// parameter surface.
type Engine struct {
	db     *sql.DB
	logger *slog.Logger
}

type LoadOptions struct {
	Mode             domain.LoadMode
	WipeDB           bool
	DryRun           bool
	CheatMode        bool
	SplitTransaction bool

	// MaxViolations caps collected validation issues before aborting early.
	MaxViolations int
	// ChunkSize is the per-transaction batch size when splitting.
	ChunkSize int
}

const (
	defaultMaxViolations = 1000000
	defaultChunkSize     = 1000
)

type Stats struct {
	Loaded  int
	Deleted int
	Skipped int
}

const (
	wipeQuery = `DELETE FROM graph_nodes`

	upsertNodeQuery = `INSERT INTO graph_nodes (node_type, node_id, props, loaded_at)
	 VALUES ($1, $2, $3, now())
	 ON CONFLICT (node_type, node_id) DO UPDATE SET props = EXCLUDED.props, loaded_at = now()`

	insertNodeQuery = `INSERT INTO graph_nodes (node_type, node_id, props, loaded_at)
	 VALUES ($1, $2, $3, now())
	 ON CONFLICT (node_type, node_id) DO NOTHING`

	deleteNodeQuery = `DELETE FROM graph_nodes WHERE node_type = $1 AND node_id = $2`
)

func NewEngine(db *sql.DB, logger *slog.Logger) (*Engine, error) {
	if db == nil {
		return nil, fmt.Errorf("database handle is required")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{db: db, logger: logger}, nil
}

// Load validates and writes the records. Validation failures abort before any
// write unless cheat mode is on. Dry runs execute every statement and roll
// back instead of committing.
func (e *Engine) Load(ctx context.Context, records []Record, props Props, opts LoadOptions) (Stats, error) {
	if opts.MaxViolations <= 0 {
		opts.MaxViolations = defaultMaxViolations
	}
	if opts.ChunkSize <= 0 {
		opts.ChunkSize = defaultChunkSize
	}
	if _, err := domain.ParseLoadMode(string(opts.Mode)); err != nil {
		return Stats{}, err
	}

	if opts.CheatMode {
		e.logger.Warn("cheat mode on, skipping validation")
	} else if err := validateRecords(records, props, opts.MaxViolations); err != nil {
		return Stats{}, err
	}

	var stats Stats
	var err error
	if opts.SplitTransaction {
		stats, err = e.loadChunked(ctx, records, opts)
	} else {
		stats, err = e.loadSingle(ctx, records, opts)
	}
	if err != nil {
		return Stats{}, err
	}

	e.logger.Info("load finished",
		"mode", string(opts.Mode),
		"dry_run", opts.DryRun,
		"records", len(records),
		"loaded", stats.Loaded,
		"deleted", stats.Deleted,
		"skipped", stats.Skipped,
	)
	return stats, nil
}

func validateRecords(records []Record, props Props, maxViolations int) error {
	violations := 0
	for i, record := range records {
		if _, ok := props.Plurals[record.NodeType]; !ok {
			violations++
		} else if record.ID == "" {
			violations++
		} else {
			continue
		}
		if violations >= maxViolations {
			return fmt.Errorf("validation aborted at record %d: %d violations reached the cap", i+1, violations)
		}
	}
	if violations > 0 {
		return fmt.Errorf("validation failed: %d of %d records invalid", violations, len(records))
	}
	return nil
}

func (e *Engine) loadSingle(ctx context.Context, records []Record, opts LoadOptions) (Stats, error) {
	return e.loadTx(ctx, records, opts)
}

func (e *Engine) loadChunked(ctx context.Context, records []Record, opts LoadOptions) (Stats, error) {
	var total Stats
	for start := 0; start < len(records); start += opts.ChunkSize {
		end := start + opts.ChunkSize
		if end > len(records) {
			end = len(records)
		}
		chunkOpts := opts
		chunkOpts.WipeDB = opts.WipeDB && start == 0
		stats, err := e.loadTx(ctx, records[start:end], chunkOpts)
		if err != nil {
			return Stats{}, fmt.Errorf("chunk starting at record %d: %w", start+1, err)
		}
		total.Loaded += stats.Loaded
		total.Deleted += stats.Deleted
		total.Skipped += stats.Skipped
	}
	if len(records) == 0 && opts.WipeDB {
		return e.loadTx(ctx, nil, opts)
	}
	return total, nil
}

func (e *Engine) loadTx(ctx context.Context, records []Record, opts LoadOptions) (Stats, error) {
	tx, err := e.db.BeginTx(ctx, nil)
	if err != nil {
		return Stats{}, fmt.Errorf("begin: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if opts.WipeDB {
		if _, err := tx.ExecContext(ctx, wipeQuery); err != nil {
			return Stats{}, fmt.Errorf("wipe: %w", err)
		}
		e.logger.Warn("wiped target tables before load")
	}

	var stats Stats
	for _, record := range records {
		affected, err := e.applyRecord(ctx, tx, record, opts.Mode)
		if err != nil {
			return Stats{}, err
		}
		switch {
		case !affected:
			stats.Skipped++
		case opts.Mode == domain.ModeDelete:
			stats.Deleted++
		default:
			stats.Loaded++
		}
	}

	if opts.DryRun {
		e.logger.Info("dry run, rolling back", "records", len(records))
		return stats, nil
	}
	if err := tx.Commit(); err != nil {
		return Stats{}, fmt.Errorf("commit: %w", err)
	}
	return stats, nil
}

func (e *Engine) applyRecord(ctx context.Context, tx *sql.Tx, record Record, mode domain.LoadMode) (bool, error) {
	if mode == domain.ModeDelete {
		result, err := tx.ExecContext(ctx, deleteNodeQuery, record.NodeType, record.ID)
		if err != nil {
			return false, fmt.Errorf("delete %s/%s: %w", record.NodeType, record.ID, err)
		}
		affected, err := result.RowsAffected()
		if err != nil {
			return false, fmt.Errorf("delete %s/%s: %w", record.NodeType, record.ID, err)
		}
		return affected > 0, nil
	}

	props, err := json.Marshal(record.Values)
	if err != nil {
		return false, fmt.Errorf("encode %s/%s: %w", record.NodeType, record.ID, err)
	}

	query := upsertNodeQuery
	if mode == domain.ModeNew {
		query = insertNodeQuery
	}
	result, err := tx.ExecContext(ctx, query, record.NodeType, record.ID, props)
	if err != nil {
		return false, fmt.Errorf("load %s/%s: %w", record.NodeType, record.ID, err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("load %s/%s: %w", record.NodeType, record.ID, err)
	}
	return affected > 0, nil
}
