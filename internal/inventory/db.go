package inventory

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/metorial/bluefox"
	"github.com/metorial/bluefox/internal/models"
	_ "modernc.org/sqlite"
)

type DB struct {
	conn *sql.DB
}

func NewDB(path string) (*DB, error) {
	conn, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	if err := conn.Ping(); err != nil {
		return nil, fmt.Errorf("ping database: %w", err)
	}

	db := &DB{conn: conn}
	if err := db.migrate(); err != nil {
		return nil, fmt.Errorf("migrate database: %w", err)
	}

	return db, nil
}

func (db *DB) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS snapshots (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		identifier TEXT NOT NULL,
		uuid TEXT NOT NULL DEFAULT '',
		name TEXT NOT NULL DEFAULT '',
		node TEXT NOT NULL DEFAULT '',
		memory_mb INTEGER NOT NULL DEFAULT 0,
		disk_mb INTEGER NOT NULL DEFAULT 0,
		cpu_percent INTEGER NOT NULL DEFAULT 0,
		suspended BOOLEAN NOT NULL DEFAULT 0,
		installing BOOLEAN NOT NULL DEFAULT 0,
		transferring BOOLEAN NOT NULL DEFAULT 0,
		recorded_at TIMESTAMP NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_snapshots_identifier ON snapshots(identifier);
	CREATE INDEX IF NOT EXISTS idx_snapshots_recorded_at ON snapshots(recorded_at);
	`

	_, err := db.conn.Exec(schema)
	return err
}

func snapshotOf(s *bluefox.Server, at time.Time) models.Snapshot {
	snap := models.Snapshot{
		Identifier:   s.ID,
		Name:         s.Name,
		Node:         s.Node,
		Suspended:    s.Suspended,
		Installing:   s.Installing,
		Transferring: s.Transferring,
		RecordedAt:   at,
	}
	if s.UUID != nil {
		snap.UUID = s.UUID.String()
	}
	if s.Limits != nil {
		snap.MemoryMB = s.Limits.Memory
		snap.DiskMB = s.Limits.Disk
		snap.CPUPercent = s.Limits.CPU
	}
	return snap
}

// RecordServers stores one snapshot row per server, all stamped with at.
// Servers without an identifier are skipped.
func (db *DB) RecordServers(servers []*bluefox.Server, at time.Time) (int, error) {
	tx, err := db.conn.Begin()
	if err != nil {
		return 0, fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	query := `INSERT INTO snapshots (identifier, uuid, name, node, memory_mb, disk_mb, cpu_percent,
	          suspended, installing, transferring, recorded_at)
	          VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	recorded := 0
	for _, s := range servers {
		if s == nil || s.ID == "" {
			continue
		}
		snap := snapshotOf(s, at)
		_, err := tx.Exec(query, snap.Identifier, snap.UUID, snap.Name, snap.Node, snap.MemoryMB,
			snap.DiskMB, snap.CPUPercent, snap.Suspended, snap.Installing, snap.Transferring, snap.RecordedAt)
		if err != nil {
			return 0, fmt.Errorf("insert snapshot for %s: %w", s.ID, err)
		}
		recorded++
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit: %w", err)
	}
	return recorded, nil
}

func (db *DB) History(identifier string, limit int) ([]models.Snapshot, error) {
	query := `SELECT id, identifier, uuid, name, node, memory_mb, disk_mb, cpu_percent,
	          suspended, installing, transferring, recorded_at
	          FROM snapshots
	          WHERE identifier = ?
	          ORDER BY recorded_at DESC, id DESC
	          LIMIT ?`

	rows, err := db.conn.Query(query, identifier, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return scanSnapshots(rows)
}

// Latest returns the most recent snapshot of every known server.
func (db *DB) Latest() ([]models.Snapshot, error) {
	query := `SELECT s.id, s.identifier, s.uuid, s.name, s.node, s.memory_mb, s.disk_mb, s.cpu_percent,
	          s.suspended, s.installing, s.transferring, s.recorded_at
	          FROM snapshots s
	          WHERE s.id = (
	              SELECT s2.id FROM snapshots s2
	              WHERE s2.identifier = s.identifier
	              ORDER BY s2.recorded_at DESC, s2.id DESC
	              LIMIT 1
	          )
	          ORDER BY s.identifier`

	rows, err := db.conn.Query(query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return scanSnapshots(rows)
}

func (db *DB) Prune(retention time.Duration) (int64, error) {
	res, err := db.conn.Exec(`DELETE FROM snapshots WHERE recorded_at < ?`, time.Now().Add(-retention))
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func (db *DB) Close() error {
	return db.conn.Close()
}

func scanSnapshots(rows *sql.Rows) ([]models.Snapshot, error) {
	var snapshots []models.Snapshot
	for rows.Next() {
		var s models.Snapshot
		err := rows.Scan(&s.ID, &s.Identifier, &s.UUID, &s.Name, &s.Node, &s.MemoryMB, &s.DiskMB,
			&s.CPUPercent, &s.Suspended, &s.Installing, &s.Transferring, &s.RecordedAt)
		if err != nil {
			return nil, err
		}
		snapshots = append(snapshots, s)
	}
	return snapshots, rows.Err()
}
