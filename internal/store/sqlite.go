// Package store implements the SQLite-backed durable state shared by
// the routing table and the admission log: a single database handle,
// opened once at startup, holding a "routes" table and an
// "admissions" table.
package store

import (
	"database/sql"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/codingbear/mcrouter/internal/logging"
	"github.com/codingbear/mcrouter/internal/routing"
)

var log = logging.New("store")

// DB wraps the shared sqlite handle.
type DB struct {
	conn *sql.DB
}

// Open creates (if needed) and migrates the sqlite database at path.
func Open(path string) (*DB, error) {
	conn, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("store: open: %w", err)
	}
	conn.SetMaxOpenConns(1) // sqlite3 driver: serialise writers, avoid "database is locked"

	if _, err := conn.Exec(`CREATE TABLE IF NOT EXISTS routes (
		domain TEXT PRIMARY KEY,
		host   TEXT NOT NULL,
		port   INTEGER NOT NULL
	)`); err != nil {
		conn.Close()
		return nil, fmt.Errorf("store: migrate routes: %w", err)
	}
	if _, err := conn.Exec(`CREATE TABLE IF NOT EXISTS admissions (
		id          INTEGER PRIMARY KEY AUTOINCREMENT,
		accepted_at DATETIME NOT NULL,
		client_ip   TEXT NOT NULL,
		domain      TEXT NOT NULL,
		username    TEXT,
		uuid        TEXT,
		upstream    TEXT NOT NULL
	)`); err != nil {
		conn.Close()
		return nil, fmt.Errorf("store: migrate admissions: %w", err)
	}

	return &DB{conn: conn}, nil
}

// Close releases the underlying sqlite connection.
func (d *DB) Close() error {
	return d.conn.Close()
}

// LoadAll implements routing.Store.
func (d *DB) LoadAll() (map[string]routing.Upstream, error) {
	rows, err := d.conn.Query(`SELECT domain, host, port FROM routes`)
	if err != nil {
		return nil, fmt.Errorf("store: load routes: %w", err)
	}
	defer rows.Close()

	out := make(map[string]routing.Upstream)
	for rows.Next() {
		var domain, host string
		var port int
		if err := rows.Scan(&domain, &host, &port); err != nil {
			return nil, fmt.Errorf("store: scan route: %w", err)
		}
		out[domain] = routing.Upstream{Host: host, Port: port}
	}
	return out, rows.Err()
}

// SaveAll implements routing.Store: it rewrites the entire routes
// table inside one transaction so a concurrent reader never observes
// a torn write.
func (d *DB) SaveAll(routes map[string]routing.Upstream) error {
	tx, err := d.conn.Begin()
	if err != nil {
		return fmt.Errorf("store: begin: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec(`DELETE FROM routes`); err != nil {
		return fmt.Errorf("store: clear routes: %w", err)
	}
	stmt, err := tx.Prepare(`INSERT INTO routes (domain, host, port) VALUES (?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("store: prepare insert: %w", err)
	}
	defer stmt.Close()
	for domain, u := range routes {
		if _, err := stmt.Exec(domain, u.Host, u.Port); err != nil {
			return fmt.Errorf("store: insert route %q: %w", domain, err)
		}
	}
	return tx.Commit()
}

// RecordAdmission appends one row to the admission log. Failures are
// logged and also returned; the session-facing audit.Log swallows
// them, so a session never fails over them, while tests can assert on
// the returned error directly.
func (d *DB) RecordAdmission(acceptedAt time.Time, clientIP, domain, username, uuid, upstream string) error {
	_, err := d.conn.Exec(
		`INSERT INTO admissions (accepted_at, client_ip, domain, username, uuid, upstream) VALUES (?, ?, ?, ?, ?, ?)`,
		acceptedAt, clientIP, domain, nullable(username), nullable(uuid), upstream,
	)
	if err != nil {
		log.Error("record admission failed: %v", err)
	}
	return err
}

// Admission is one row of the admission log.
type Admission struct {
	ID         int64
	AcceptedAt time.Time
	ClientIP   string
	Domain     string
	Username   string
	UUID       string
	Upstream   string
}

// ListAdmissions returns the most recent admissions, optionally
// filtered by domain, newest first, bounded by limit.
func (d *DB) ListAdmissions(domain string, limit int) ([]Admission, error) {
	if limit <= 0 {
		limit = 100
	}
	query := `SELECT id, accepted_at, client_ip, domain, COALESCE(username,''), COALESCE(uuid,''), upstream
	           FROM admissions`
	args := []any{}
	if domain != "" {
		query += ` WHERE domain = ?`
		args = append(args, domain)
	}
	query += ` ORDER BY id DESC LIMIT ?`
	args = append(args, limit)

	rows, err := d.conn.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("store: list admissions: %w", err)
	}
	defer rows.Close()

	var out []Admission
	for rows.Next() {
		var a Admission
		if err := rows.Scan(&a.ID, &a.AcceptedAt, &a.ClientIP, &a.Domain, &a.Username, &a.UUID, &a.Upstream); err != nil {
			return nil, fmt.Errorf("store: scan admission: %w", err)
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

func nullable(s string) any {
	if s == "" {
		return nil
	}
	return s
}
