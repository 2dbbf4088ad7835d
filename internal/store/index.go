package store

import (
	"database/sql"

	_ "modernc.org/sqlite"

	"github.com/cortexplane/control-plane/internal/cortexerr"
)

// Index is a rebuildable SQLite-backed secondary index over the JSONL
// source of truth. It exists purely to make by_task/by_actor/by_type and
// aggregate pattern-mining queries fast; losing it is recoverable by
// replaying the JSONL streams through Rebuild. It must never be consulted
// as the system of record.
type Index struct {
	db *sql.DB
}

const schema = `
CREATE TABLE IF NOT EXISTS lineage_events (
	lineage_id TEXT PRIMARY KEY,
	task_id TEXT NOT NULL,
	event_type TEXT NOT NULL,
	actor_id TEXT,
	actor_type TEXT,
	parent_lineage_id TEXT,
	correlation_id TEXT,
	span_id TEXT,
	recorded_at INTEGER NOT NULL,
	payload TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_lineage_task ON lineage_events(task_id);
CREATE INDEX IF NOT EXISTS idx_lineage_actor ON lineage_events(actor_id);
CREATE INDEX IF NOT EXISTS idx_lineage_type ON lineage_events(event_type);

CREATE TABLE IF NOT EXISTS failure_events (
	worker_id TEXT,
	worker_type TEXT,
	event_type TEXT NOT NULL,
	recorded_at INTEGER NOT NULL,
	payload TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_failure_bucket ON failure_events(event_type, worker_type);

CREATE TABLE IF NOT EXISTS remediation_executions (
	execution_id TEXT PRIMARY KEY,
	playbook_id TEXT NOT NULL,
	status TEXT NOT NULL,
	started_at INTEGER NOT NULL,
	completed_at INTEGER,
	payload TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_remediation_playbook ON remediation_executions(playbook_id, started_at);
`

// OpenIndex opens (creating if absent) the SQLite index file at path and
// applies the schema, matching the teacher's migrate-on-open convention.
func OpenIndex(path string) (*Index, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, cortexerr.Transient("store: open index "+path, err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, cortexerr.FatalInvariant("store: migrate index "+path, err)
	}
	return &Index{db: db}, nil
}

func (ix *Index) Close() error {
	if ix == nil || ix.db == nil {
		return nil
	}
	return ix.db.Close()
}

// IndexLineageEvent upserts one lineage event row.
func (ix *Index) IndexLineageEvent(lineageID, taskID, eventType, actorID, actorType, parentID, corrID, spanID string, recordedAt int64, payload string) error {
	_, err := ix.db.Exec(`
		INSERT INTO lineage_events(lineage_id, task_id, event_type, actor_id, actor_type, parent_lineage_id, correlation_id, span_id, recorded_at, payload)
		VALUES(?,?,?,?,?,?,?,?,?,?)
		ON CONFLICT(lineage_id) DO UPDATE SET payload=excluded.payload`,
		lineageID, taskID, eventType, actorID, actorType, parentID, corrID, spanID, recordedAt, payload)
	if err != nil {
		return cortexerr.Transient("store: index lineage event", err)
	}
	return nil
}

// ByTask returns raw JSON payloads for every lineage event of taskID, in
// recorded order.
func (ix *Index) ByTask(taskID string) ([]string, error) {
	return ix.queryPayloads(`SELECT payload FROM lineage_events WHERE task_id = ? ORDER BY recorded_at ASC, rowid ASC`, taskID)
}

// ByActor returns raw JSON payloads for every lineage event attributed to actorID.
func (ix *Index) ByActor(actorID string) ([]string, error) {
	return ix.queryPayloads(`SELECT payload FROM lineage_events WHERE actor_id = ? ORDER BY recorded_at ASC, rowid ASC`, actorID)
}

// ByType returns raw JSON payloads for every lineage event of the given type.
func (ix *Index) ByType(eventType string) ([]string, error) {
	return ix.queryPayloads(`SELECT payload FROM lineage_events WHERE event_type = ? ORDER BY recorded_at ASC, rowid ASC`, eventType)
}

func (ix *Index) queryPayloads(query string, arg string) ([]string, error) {
	rows, err := ix.db.Query(query, arg)
	if err != nil {
		return nil, cortexerr.Transient("store: query index", err)
	}
	defer rows.Close()
	var out []string
	for rows.Next() {
		var payload string
		if err := rows.Scan(&payload); err != nil {
			return nil, cortexerr.FatalInvariant("store: scan index row", err)
		}
		out = append(out, payload)
	}
	return out, rows.Err()
}

// IndexFailureEvent records one failure event for pattern-mining queries.
func (ix *Index) IndexFailureEvent(workerID, workerType, eventType string, recordedAt int64, payload string) error {
	_, err := ix.db.Exec(`INSERT INTO failure_events(worker_id, worker_type, event_type, recorded_at, payload) VALUES(?,?,?,?,?)`,
		workerID, workerType, eventType, recordedAt, payload)
	if err != nil {
		return cortexerr.Transient("store: index failure event", err)
	}
	return nil
}

// BucketCounts implements the Pattern Detector's frequency mining query:
// count of failure events per (event_type, worker_type) since sinceUnix.
type BucketCount struct {
	EventType  string
	WorkerType string
	Count      int
}

func (ix *Index) BucketCounts(sinceUnix int64) ([]BucketCount, error) {
	rows, err := ix.db.Query(`
		SELECT event_type, worker_type, COUNT(*) as cnt
		FROM failure_events
		WHERE recorded_at >= ?
		GROUP BY event_type, worker_type
		ORDER BY cnt DESC`, sinceUnix)
	if err != nil {
		return nil, cortexerr.Transient("store: bucket counts", err)
	}
	defer rows.Close()
	var out []BucketCount
	for rows.Next() {
		var bc BucketCount
		if err := rows.Scan(&bc.EventType, &bc.WorkerType, &bc.Count); err != nil {
			return nil, cortexerr.FatalInvariant("store: scan bucket row", err)
		}
		out = append(out, bc)
	}
	return out, rows.Err()
}

// IndexRemediationExecution upserts one remediation execution row, used by
// the Remediator's cooling-period gate ("previous run of the same playbook
// completed less than N minutes ago").
func (ix *Index) IndexRemediationExecution(executionID, playbookID, status string, startedAt int64, completedAt *int64, payload string) error {
	var completed any
	if completedAt != nil {
		completed = *completedAt
	}
	_, err := ix.db.Exec(`
		INSERT INTO remediation_executions(execution_id, playbook_id, status, started_at, completed_at, payload)
		VALUES(?,?,?,?,?,?)
		ON CONFLICT(execution_id) DO UPDATE SET status=excluded.status, completed_at=excluded.completed_at, payload=excluded.payload`,
		executionID, playbookID, status, startedAt, completed, payload)
	if err != nil {
		return cortexerr.Transient("store: index remediation execution", err)
	}
	return nil
}

// LastCompletedExecution returns the completed_at unix time of the most
// recent completed run of playbookID, or ok=false if none exists.
func (ix *Index) LastCompletedExecution(playbookID string) (completedAt int64, ok bool, err error) {
	row := ix.db.QueryRow(`
		SELECT completed_at FROM remediation_executions
		WHERE playbook_id = ? AND completed_at IS NOT NULL
		ORDER BY completed_at DESC LIMIT 1`, playbookID)
	var v sql.NullInt64
	if scanErr := row.Scan(&v); scanErr != nil {
		if scanErr == sql.ErrNoRows {
			return 0, false, nil
		}
		return 0, false, cortexerr.Transient("store: last completed execution", scanErr)
	}
	if !v.Valid {
		return 0, false, nil
	}
	return v.Int64, true, nil
}
