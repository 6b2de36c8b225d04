// Package store keeps per-mug data that has to survive restarts of the bridge, currently the
// target temperature to restore when temperature control is turned back on.
package store

import (
  "context"
  "database/sql"
  "errors"
  "fmt"
  "net"
  "strings"
  "time"

  _ "github.com/mattn/go-sqlite3"
  "github.com/rs/zerolog/log"
)

const busyTimeout = 5 * time.Second

type Store struct {
  db *sql.DB
  path string
}

// Open (and create if needed) the SQLite database at path. ":memory:" is accepted for tests.
func Open(path string) (*Store, error) {
  db, err := sql.Open("sqlite3", path)

  if err != nil {
    return nil, fmt.Errorf("failed to open database: %w", err)
  }

  // ":memory:" databases exist once per connection.
  db.SetMaxOpenConns(1)

  pragmas := fmt.Sprintf(`
    PRAGMA journal_mode = WAL;
    PRAGMA busy_timeout = %d;
  `, busyTimeout.Milliseconds())

  if _, err := db.Exec(pragmas); err != nil {
    db.Close()
    return nil, fmt.Errorf("failed to configure database: %w", err)
  }

  s := &Store{db: db, path: path}

  if err := s.migrate(); err != nil {
    db.Close()
    return nil, fmt.Errorf("failed to migrate database: %w", err)
  }

  log.Debug().Str("Path", path).Msg("Opened persistent store")

  return s, nil
}

func (s *Store) migrate() error {
  _, err := s.db.Exec(`
    CREATE TABLE IF NOT EXISTS persistent_data (
      address TEXT PRIMARY KEY,
      target_temp_bkp REAL NULL,
      updated_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
    );
  `)

  return err
}

func (s *Store) Close() error {
  return s.db.Close()
}

func key(addr net.HardwareAddr) string {
  return strings.ToLower(addr.String())
}

// Stored target temperature (Celsius) for the mug, nil if none was saved.
func (s *Store) TargetTempBackup(ctx context.Context, addr net.HardwareAddr) (*float64, error) {
  var temp sql.NullFloat64

  err := s.db.QueryRowContext(ctx,
    `SELECT target_temp_bkp FROM persistent_data WHERE address = ?`,
    key(addr),
  ).Scan(&temp)

  if errors.Is(err, sql.ErrNoRows) {
    return nil, nil
  }

  if err != nil {
    return nil, fmt.Errorf("failed to load target temperature backup for %v: %w", addr, err)
  }

  if !temp.Valid {
    return nil, nil
  }

  return &temp.Float64, nil
}

// Save the target temperature backup. A nil temp clears it.
func (s *Store) SetTargetTempBackup(ctx context.Context, addr net.HardwareAddr, temp *float64) error {
  var v sql.NullFloat64

  if temp != nil {
    v = sql.NullFloat64{Float64: *temp, Valid: true}
  }

  _, err := s.db.ExecContext(ctx, `
    INSERT INTO persistent_data (address, target_temp_bkp, updated_at)
    VALUES (?, ?, ?)
    ON CONFLICT(address) DO UPDATE SET
      target_temp_bkp = excluded.target_temp_bkp,
      updated_at = excluded.updated_at
  `, key(addr), v, time.Now().UTC())

  if err != nil {
    return fmt.Errorf("failed to save target temperature backup for %v: %w", addr, err)
  }

  log.Trace().Str("Address", key(addr)).Interface("TargetTemp", temp).Msg("Saved target temperature backup")

  return nil
}
