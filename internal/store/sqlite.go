package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"sort"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/lox/holdemd/internal/game"
)

// SQLiteStore persists event logs and snapshots in a single SQLite file.
type SQLiteStore struct {
	db *sql.DB
}

// OpenSQLite opens (creating if needed) the database at path. WAL mode
// keeps appends cheap while readers replay logs.
func OpenSQLite(path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_busy_timeout=5000&_fk=true")
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	if err := createTables(db); err != nil {
		db.Close()
		return nil, err
	}
	return &SQLiteStore{db: db}, nil
}

func createTables(db *sql.DB) error {
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS events (
			table_id TEXT NOT NULL,
			seq      INTEGER NOT NULL,
			hand     INTEGER NOT NULL,
			kind     TEXT NOT NULL,
			ts       INTEGER NOT NULL,
			data     BLOB NOT NULL,
			PRIMARY KEY (table_id, seq)
		)
	`)
	if err != nil {
		return err
	}
	_, err = db.Exec(`
		CREATE TABLE IF NOT EXISTS snapshots (
			table_id TEXT PRIMARY KEY,
			taken_at INTEGER NOT NULL,
			state    BLOB NOT NULL
		)
	`)
	return err
}

// AppendEvents writes the batch in one transaction so a crash never leaves
// a partial batch behind.
func (s *SQLiteStore) AppendEvents(ctx context.Context, tableID string, events []game.Event) error {
	if len(events) == 0 {
		return nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO events (table_id, seq, hand, kind, ts, data)
		VALUES (?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for _, e := range events {
		data, err := json.Marshal(e)
		if err != nil {
			return fmt.Errorf("encode event %d: %w", e.Seq, err)
		}
		if _, err := stmt.ExecContext(ctx, tableID, e.Seq, e.Hand, string(e.Type), e.Timestamp.UnixMilli(), data); err != nil {
			return fmt.Errorf("append event %d for table %s: %w", e.Seq, tableID, err)
		}
	}
	return tx.Commit()
}

// LoadEvents replays the log after sinceSeq in order.
func (s *SQLiteStore) LoadEvents(ctx context.Context, tableID string, sinceSeq int64) ([]game.Event, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT data FROM events
		WHERE table_id = ? AND seq > ?
		ORDER BY seq
	`, tableID, sinceSeq)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var events []game.Event
	for rows.Next() {
		var data []byte
		if err := rows.Scan(&data); err != nil {
			return nil, err
		}
		var e game.Event
		if err := json.Unmarshal(data, &e); err != nil {
			return nil, fmt.Errorf("decode event for table %s: %w", tableID, err)
		}
		events = append(events, e)
	}
	return events, rows.Err()
}

func (s *SQLiteStore) SaveSnapshot(ctx context.Context, snap *game.Snapshot) error {
	state, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("encode snapshot for table %s: %w", snap.TableID, err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO snapshots (table_id, taken_at, state)
		VALUES (?, ?, ?)
		ON CONFLICT(table_id) DO UPDATE SET taken_at = excluded.taken_at, state = excluded.state
	`, snap.TableID, time.Now().UnixMilli(), state)
	return err
}

func (s *SQLiteStore) LoadSnapshot(ctx context.Context, tableID string) (*game.Snapshot, error) {
	var state []byte
	err := s.db.QueryRowContext(ctx, `
		SELECT state FROM snapshots WHERE table_id = ?
	`, tableID).Scan(&state)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	var snap game.Snapshot
	if err := json.Unmarshal(state, &snap); err != nil {
		return nil, fmt.Errorf("decode snapshot for table %s: %w", tableID, err)
	}
	return &snap, nil
}

// TableIDs is the union of tables with events or a snapshot.
func (s *SQLiteStore) TableIDs(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT table_id FROM events
		UNION
		SELECT table_id FROM snapshots
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids, rows.Err()
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
