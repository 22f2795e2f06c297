package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"go.uber.org/zap"
	_ "modernc.org/sqlite"

	"github.com/yuvalro/ivan/domain"
	"github.com/yuvalro/ivan/utils/log"
)

// sessionsKey is the fixed key the full session list is stored under.
const sessionsKey = "ivan_sessions"

// SQLiteArchive persists the session list as a single JSON blob in a
// key-value table. Last-write-wins; a malformed blob reads back as empty
// history rather than an error.
type SQLiteArchive struct {
	db       *sql.DB
	hasher   domain.Hasher
	lastHash string
}

// NewSQLiteArchive opens (or creates) the database at path and ensures the
// kv schema exists.
func NewSQLiteArchive(path string, hasher domain.Hasher) (*SQLiteArchive, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening sqlite database: %w", err)
	}

	_, err = db.Exec(`CREATE TABLE IF NOT EXISTS kv (
		key   TEXT PRIMARY KEY,
		value BLOB NOT NULL
	)`)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("creating kv table: %w", err)
	}

	return &SQLiteArchive{db: db, hasher: hasher}, nil
}

// Load reads the persisted session list. A missing key or a blob that no
// longer decodes is treated as empty history.
func (a *SQLiteArchive) Load(ctx context.Context) ([]domain.Session, error) {
	var blob []byte
	err := a.db.QueryRowContext(ctx, `SELECT value FROM kv WHERE key = ?`, sessionsKey).Scan(&blob)
	if err == sql.ErrNoRows {
		return []domain.Session{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading sessions blob: %w", err)
	}

	var sessions []domain.Session
	if err := json.Unmarshal(blob, &sessions); err != nil {
		log.WithCtx(ctx).Warn("Discarding malformed sessions blob", zap.Error(err))
		return []domain.Session{}, nil
	}

	a.lastHash = a.hasher.Hash(blob)
	return sessions, nil
}

// Save overwrites the stored blob with the full session list. Writes are
// skipped when the encoded blob has not changed since the last write.
func (a *SQLiteArchive) Save(ctx context.Context, sessions []domain.Session) error {
	blob, err := json.Marshal(sessions)
	if err != nil {
		return fmt.Errorf("encoding sessions: %w", err)
	}

	sum := a.hasher.Hash(blob)
	if sum == a.lastHash {
		return nil
	}

	_, err = a.db.ExecContext(ctx,
		`INSERT OR REPLACE INTO kv (key, value) VALUES (?, ?)`, sessionsKey, blob)
	if err != nil {
		return fmt.Errorf("writing sessions blob: %w", err)
	}

	a.lastHash = sum
	return nil
}

// Close releases the underlying database handle.
func (a *SQLiteArchive) Close() error {
	return a.db.Close()
}
