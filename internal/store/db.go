// Package store provides the single transactional relational backend shared
// by every component: schema initialization, the legacy-message migration,
// and a WithTx helper for multi-row atomic writes.
package store

import (
	"database/sql"
	_ "embed"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"
)

//go:embed schema.sql
var schemaSQL string

const schemaVersion = 1

// Store wraps the shared *sql.DB connection.
type Store struct {
	DB *sql.DB
}

// Open creates (if needed) and opens the SQLite-backed store at path,
// initializing the schema and running the one-shot legacy-message migration.
func Open(path string) (*Store, error) {
	dir := filepath.Dir(path)
	if dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("create db directory: %w", err)
		}
	}

	dsn := path + "?_journal_mode=WAL&_busy_timeout=10000&_foreign_keys=on"
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)

	s := &Store{DB: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	if err := s.migrateLegacyMessages(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate legacy messages: %w", err)
	}
	return s, nil
}

func (s *Store) migrate() error {
	if _, err := s.DB.Exec(schemaSQL); err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}

	var version int
	err := s.DB.QueryRow("SELECT version FROM schema_version ORDER BY version DESC LIMIT 1").Scan(&version)
	if err != nil && err != sql.ErrNoRows {
		return fmt.Errorf("check schema version: %w", err)
	}
	if version < schemaVersion {
		if _, err := s.DB.Exec("INSERT INTO schema_version (version) VALUES (?)", schemaVersion); err != nil {
			return fmt.Errorf("record schema version: %w", err)
		}
		log.Printf("[STORE] initialized schema v%d", schemaVersion)
	}
	return nil
}

// migrateLegacyMessages synthesizes DM conversations for any message rows
// that predate the conversation_id column, matching the original reconciler
// one-for-one: group legacy (from,to) pairs, reuse an existing DM if the
// pair already has one, otherwise create it, then backfill conversation_id.
func (s *Store) migrateLegacyMessages() error {
	rows, err := s.DB.Query(
		"SELECT DISTINCT from_agent, to_agent FROM messages WHERE conversation_id IS NULL AND to_agent IS NOT NULL")
	if err != nil {
		return fmt.Errorf("find orphan messages: %w", err)
	}
	type pair struct{ a, b string }
	var pairs []pair
	for rows.Next() {
		var from, to string
		if err := rows.Scan(&from, &to); err != nil {
			rows.Close()
			return err
		}
		pairs = append(pairs, pair{from, to})
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return err
	}

	for _, p := range pairs {
		a, b := p.a, p.b
		if a > b {
			a, b = b, a
		}

		var cid string
		err := s.DB.QueryRow(`
			SELECT c.id FROM conversations c
			JOIN conversation_members m1 ON c.id = m1.conversation_id AND m1.agent_id = ?
			JOIN conversation_members m2 ON c.id = m2.conversation_id AND m2.agent_id = ?
			WHERE c.type = 'dm'`, a, b).Scan(&cid)
		if err == sql.ErrNoRows {
			now := Now()
			cid = uuid.New().String()
			if _, err := s.DB.Exec("INSERT INTO conversations (id, name, type, created_at) VALUES (?, ?, 'dm', ?)",
				cid, a+" ↔ "+b, now); err != nil {
				return fmt.Errorf("create legacy dm: %w", err)
			}
			for _, agent := range []string{a, b} {
				if _, err := s.DB.Exec(
					"INSERT OR IGNORE INTO conversation_members (conversation_id, agent_id, joined_at) VALUES (?, ?, ?)",
					cid, agent, now); err != nil {
					return fmt.Errorf("add legacy dm member: %w", err)
				}
			}
		} else if err != nil {
			return fmt.Errorf("find existing legacy dm: %w", err)
		}

		if _, err := s.DB.Exec(`
			UPDATE messages SET conversation_id = ?
			WHERE conversation_id IS NULL
			AND ((from_agent = ? AND to_agent = ?) OR (from_agent = ? AND to_agent = ?))`,
			cid, p.a, p.b, p.b, p.a); err != nil {
			return fmt.Errorf("backfill legacy messages: %w", err)
		}
	}
	if len(pairs) > 0 {
		log.Printf("[STORE] migrated %d legacy conversation pair(s)", len(pairs))
	}
	return nil
}

// WithTx runs fn inside a transaction, rolling back on error or panic and
// committing otherwise. Every multi-row write in the server goes through this.
func (s *Store) WithTx(fn func(*sql.Tx) error) error {
	tx, err := s.DB.Begin()
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}

	defer func() {
		if p := recover(); p != nil {
			tx.Rollback()
			panic(p)
		}
	}()

	if err := fn(tx); err != nil {
		tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	return s.DB.Close()
}

// Now returns the current time as the float64-seconds-since-epoch timestamp
// format used throughout the schema.
func Now() float64 {
	return float64(time.Now().UnixNano()) / 1e9
}
