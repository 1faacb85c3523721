package loader

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"testing"

	"github.com/c3dc-labs/hubloader-go/internal/domain"
)

// nodeStore is an in-memory stand-in for the target node table, reachable
// through database/sql so transaction boundaries are the real ones.
type nodeStore struct {
	mu        sync.Mutex
	rows      map[string]string
	wipes     int
	begins    int
	commits   int
	rollbacks int
}

func newNodeStore() *nodeStore {
	return &nodeStore{rows: make(map[string]string)}
}

func (s *nodeStore) open() *sql.DB {
	return sql.OpenDB(nodeConnector{store: s})
}

type nodeConnector struct{ store *nodeStore }

func (c nodeConnector) Connect(context.Context) (driver.Conn, error) {
	return &nodeConn{store: c.store}, nil
}

func (c nodeConnector) Driver() driver.Driver { return nodeMemDriver{} }

type nodeMemDriver struct{}

func (nodeMemDriver) Open(string) (driver.Conn, error) {
	return nil, errors.New("open through the connector")
}

type nodeConn struct {
	store *nodeStore
	tx    *nodeTx
}

func (c *nodeConn) Prepare(query string) (driver.Stmt, error) {
	return nil, errors.New("prepared statements not supported")
}

func (c *nodeConn) Close() error { return nil }

func (c *nodeConn) Begin() (driver.Tx, error) {
	return c.BeginTx(context.Background(), driver.TxOptions{})
}

func (c *nodeConn) BeginTx(ctx context.Context, opts driver.TxOptions) (driver.Tx, error) {
	c.store.mu.Lock()
	defer c.store.mu.Unlock()
	c.store.begins++
	rows := make(map[string]string, len(c.store.rows))
	for k, v := range c.store.rows {
		rows[k] = v
	}
	c.tx = &nodeTx{conn: c, rows: rows}
	return c.tx, nil
}

func (c *nodeConn) ExecContext(ctx context.Context, query string, args []driver.NamedValue) (driver.Result, error) {
	if c.tx == nil {
		return nil, errors.New("exec outside transaction")
	}
	return c.tx.exec(query, args)
}

type nodeTx struct {
	conn *nodeConn
	rows map[string]string
}

func nodeKey(args []driver.NamedValue) string {
	return fmt.Sprintf("%s/%s", args[0].Value, args[1].Value)
}

func (t *nodeTx) exec(query string, args []driver.NamedValue) (driver.Result, error) {
	switch query {
	case wipeQuery:
		t.conn.store.mu.Lock()
		t.conn.store.wipes++
		t.conn.store.mu.Unlock()
		n := len(t.rows)
		t.rows = make(map[string]string)
		return driver.RowsAffected(n), nil
	case upsertNodeQuery:
		t.rows[nodeKey(args)] = fmt.Sprintf("%s", args[2].Value)
		return driver.RowsAffected(1), nil
	case insertNodeQuery:
		key := nodeKey(args)
		if _, ok := t.rows[key]; ok {
			return driver.RowsAffected(0), nil
		}
		t.rows[key] = fmt.Sprintf("%s", args[2].Value)
		return driver.RowsAffected(1), nil
	case deleteNodeQuery:
		key := nodeKey(args)
		if _, ok := t.rows[key]; !ok {
			return driver.RowsAffected(0), nil
		}
		delete(t.rows, key)
		return driver.RowsAffected(1), nil
	}
	return nil, fmt.Errorf("unexpected query: %s", query)
}

func (t *nodeTx) Commit() error {
	t.conn.store.mu.Lock()
	defer t.conn.store.mu.Unlock()
	t.conn.store.commits++
	t.conn.store.rows = t.rows
	t.conn.tx = nil
	return nil
}

func (t *nodeTx) Rollback() error {
	t.conn.store.mu.Lock()
	defer t.conn.store.mu.Unlock()
	t.conn.store.rollbacks++
	t.conn.tx = nil
	return nil
}

func newTestEngine(t *testing.T, store *nodeStore) *Engine {
	t.Helper()
	db := store.open()
	t.Cleanup(func() { _ = db.Close() })
	engine, err := NewEngine(db, slog.Default())
	if err != nil {
		t.Fatalf("NewEngine() err=%v", err)
	}
	return engine
}

func participantRecord(id string) Record {
	return Record{
		NodeType: "participant",
		ID:       id,
		Values:   map[string]string{"id": id},
	}
}

func TestEngine_Load_DryRunRollsBack(t *testing.T) {
	store := newNodeStore()
	engine := newTestEngine(t, store)

	stats, err := engine.Load(context.Background(),
		[]Record{participantRecord("P-001"), participantRecord("P-002")},
		testProps(),
		LoadOptions{Mode: domain.ModeUpsert, DryRun: true},
	)
	if err != nil {
		t.Fatalf("Load() err=%v", err)
	}

	if stats.Loaded != 2 {
		t.Fatalf("Loaded=%d, want 2: a dry run still reports what it would write", stats.Loaded)
	}
	if store.commits != 0 {
		t.Fatalf("commits=%d, want 0", store.commits)
	}
	if store.rollbacks == 0 {
		t.Fatalf("rollbacks=0, dry run must roll back")
	}
	if len(store.rows) != 0 {
		t.Fatalf("rows=%v, dry run must leave the table untouched", store.rows)
	}
}

func TestEngine_Load_SplitTransactionChunks(t *testing.T) {
	store := newNodeStore()
	store.rows["participant/stale"] = "{}"
	engine := newTestEngine(t, store)

	records := make([]Record, 0, 5)
	for i := 1; i <= 5; i++ {
		records = append(records, participantRecord(fmt.Sprintf("P-%03d", i)))
	}

	stats, err := engine.Load(context.Background(), records, testProps(), LoadOptions{
		Mode:             domain.ModeUpsert,
		WipeDB:           true,
		SplitTransaction: true,
		ChunkSize:        2,
	})
	if err != nil {
		t.Fatalf("Load() err=%v", err)
	}

	if store.begins != 3 || store.commits != 3 {
		t.Fatalf("begins=%d commits=%d, want 3 transactions for 5 records in chunks of 2", store.begins, store.commits)
	}
	if store.wipes != 1 {
		t.Fatalf("wipes=%d, wipe must run only in the first chunk", store.wipes)
	}
	if stats.Loaded != 5 {
		t.Fatalf("Loaded=%d, want 5", stats.Loaded)
	}
	if len(store.rows) != 5 {
		t.Fatalf("rows=%d, want 5: the stale row must be wiped", len(store.rows))
	}
}

func TestEngine_Load_SingleTransaction(t *testing.T) {
	store := newNodeStore()
	engine := newTestEngine(t, store)

	records := make([]Record, 0, 5)
	for i := 1; i <= 5; i++ {
		records = append(records, participantRecord(fmt.Sprintf("P-%03d", i)))
	}

	if _, err := engine.Load(context.Background(), records, testProps(), LoadOptions{
		Mode:      domain.ModeUpsert,
		ChunkSize: 2,
	}); err != nil {
		t.Fatalf("Load() err=%v", err)
	}

	if store.begins != 1 || store.commits != 1 {
		t.Fatalf("begins=%d commits=%d, want one transaction without splitting", store.begins, store.commits)
	}
}

func TestEngine_Load_ModeNewSkipsExisting(t *testing.T) {
	store := newNodeStore()
	store.rows["participant/P-001"] = "{}"
	engine := newTestEngine(t, store)

	stats, err := engine.Load(context.Background(),
		[]Record{participantRecord("P-001"), participantRecord("P-002")},
		testProps(),
		LoadOptions{Mode: domain.ModeNew},
	)
	if err != nil {
		t.Fatalf("Load() err=%v", err)
	}

	if stats.Loaded != 1 || stats.Skipped != 1 {
		t.Fatalf("stats=%+v, want 1 loaded and 1 skipped", stats)
	}
	if len(store.rows) != 2 {
		t.Fatalf("rows=%d, want 2", len(store.rows))
	}
}

func TestEngine_Load_ModeDeleteCounts(t *testing.T) {
	store := newNodeStore()
	store.rows["participant/P-001"] = "{}"
	store.rows["participant/P-002"] = "{}"
	engine := newTestEngine(t, store)

	stats, err := engine.Load(context.Background(),
		[]Record{participantRecord("P-001"), participantRecord("P-404")},
		testProps(),
		LoadOptions{Mode: domain.ModeDelete},
	)
	if err != nil {
		t.Fatalf("Load() err=%v", err)
	}

	if stats.Deleted != 1 || stats.Skipped != 1 {
		t.Fatalf("stats=%+v, want 1 deleted and 1 skipped", stats)
	}
	if _, ok := store.rows["participant/P-002"]; !ok {
		t.Fatalf("rows=%v, untouched node must survive", store.rows)
	}
	if len(store.rows) != 1 {
		t.Fatalf("rows=%d, want 1", len(store.rows))
	}
}

func TestEngine_Load_ValidationAbortsBeforeWrite(t *testing.T) {
	store := newNodeStore()
	engine := newTestEngine(t, store)

	_, err := engine.Load(context.Background(),
		[]Record{{NodeType: "specimen", ID: "S-001"}},
		testProps(),
		LoadOptions{Mode: domain.ModeUpsert},
	)
	if err == nil || !strings.Contains(err.Error(), "records invalid") {
		t.Fatalf("err=%v", err)
	}
	if store.begins != 0 {
		t.Fatalf("begins=%d, validation failure must abort before any transaction", store.begins)
	}
}

func TestEngine_Load_CheatModeSkipsValidation(t *testing.T) {
	store := newNodeStore()
	engine := newTestEngine(t, store)

	stats, err := engine.Load(context.Background(),
		[]Record{{NodeType: "specimen", ID: "S-001", Values: map[string]string{"id": "S-001"}}},
		testProps(),
		LoadOptions{Mode: domain.ModeUpsert, CheatMode: true},
	)
	if err != nil {
		t.Fatalf("Load() err=%v", err)
	}
	if stats.Loaded != 1 {
		t.Fatalf("Loaded=%d, want 1: cheat mode writes unvalidated records", stats.Loaded)
	}
}
