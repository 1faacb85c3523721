package postgres

import (
	"context"
	"fmt"
	"strings"

	"github.com/c3dc-labs/hubloader-go/internal/repo"
)

// VariableStore holds the platform-level named variables that manifest
// templating resolves "variables.<name>" references against.
type VariableStore struct {
	db DB
}

const (
	upsertVariableQuery = `INSERT INTO platform_variables (name, value)
	 VALUES ($1, $2)
	 ON CONFLICT (name) DO UPDATE SET value = EXCLUDED.value, updated_at = now()`

	selectVariableQuery = `SELECT value FROM platform_variables WHERE name = $1`

	selectVariablesQuery = `SELECT name, value FROM platform_variables ORDER BY name ASC`

	deleteVariableQuery = `DELETE FROM platform_variables WHERE name = $1`
)

func NewVariableStore(db DB) *VariableStore {
	if db == nil {
		return nil
	}
	return &VariableStore{db: db}
}

func (s *VariableStore) Set(ctx context.Context, name, value string) error {
	if s == nil || s.db == nil {
		return fmt.Errorf("variable store not initialized")
	}
	name = strings.TrimSpace(name)
	if name == "" {
		return fmt.Errorf("variable name is required")
	}
	if _, err := s.db.ExecContext(ctx, upsertVariableQuery, name, value); err != nil {
		return fmt.Errorf("set variable: %w", err)
	}
	return nil
}

func (s *VariableStore) Get(ctx context.Context, name string) (string, error) {
	if s == nil || s.db == nil {
		return "", fmt.Errorf("variable store not initialized")
	}
	name = strings.TrimSpace(name)
	if name == "" {
		return "", fmt.Errorf("variable name is required")
	}
	var value string
	if err := s.db.QueryRowContext(ctx, selectVariableQuery, name).Scan(&value); err != nil {
		return "", handleNotFound(err)
	}
	return value, nil
}

func (s *VariableStore) All(ctx context.Context) (map[string]string, error) {
	if s == nil || s.db == nil {
		return nil, fmt.Errorf("variable store not initialized")
	}
	rows, err := s.db.QueryContext(ctx, selectVariablesQuery)
	if err != nil {
		return nil, fmt.Errorf("list variables: %w", err)
	}
	defer rows.Close()

	out := make(map[string]string)
	for rows.Next() {
		var name, value string
		if err := rows.Scan(&name, &value); err != nil {
			return nil, fmt.Errorf("scan variable: %w", err)
		}
		out[name] = value
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list variables: %w", err)
	}
	return out, nil
}

func (s *VariableStore) Delete(ctx context.Context, name string) error {
	if s == nil || s.db == nil {
		return fmt.Errorf("variable store not initialized")
	}
	name = strings.TrimSpace(name)
	if name == "" {
		return fmt.Errorf("variable name is required")
	}
	result, err := s.db.ExecContext(ctx, deleteVariableQuery, name)
	if err != nil {
		return fmt.Errorf("delete variable: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete variable: %w", err)
	}
	if affected == 0 {
		return repo.ErrNotFound
	}
	return nil
}
