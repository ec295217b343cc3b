// Package store provides the persistent coordination records for automation
// sessions: the session registry, the challenge-state record polled by the
// solving loop, and the inline-keyboard action cache.
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite" // Pure Go SQLite driver

	"github.com/zS1L3NT/go-telegram-dramaload/internal/models"
)

// ErrNotFound is returned when a requested record does not exist.
var ErrNotFound = errors.New("record not found")

// Store is a SQLite-backed record store.
type Store struct {
	db       *sql.DB
	logger   *slog.Logger
	isMemory bool
}

// Open creates a SQLite-backed store at dbPath. ":memory:" gives an
// in-memory store for tests.
func Open(dbPath string, logger *slog.Logger) (*Store, error) {
	var connStr string
	isMemory := dbPath == ":memory:"

	if isMemory {
		connStr = "file::memory:?cache=shared&_timeout=5000&_busy_timeout=5000"
	} else {
		dir := filepath.Dir(dbPath)
		if dir != "" && dir != "." {
			if err := os.MkdirAll(dir, 0755); err != nil {
				return nil, fmt.Errorf("failed to create directory: %w", err)
			}
		}
		connStr = dbPath + "?_journal=WAL&_timeout=5000&_busy_timeout=5000"
	}

	db, err := sql.Open("sqlite", connStr)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// SQLite is single-writer
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	s := &Store{db: db, logger: logger, isMemory: isMemory}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	logger.Info("store initialized", "path", dbPath, "in_memory", isMemory)
	return s, nil
}

func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS sessions (
		chat_id INTEGER NOT NULL,
		message_id INTEGER NOT NULL,
		created_at TEXT NOT NULL,
		PRIMARY KEY (chat_id, message_id)
	);
	CREATE TABLE IF NOT EXISTS challenge_states (
		chat_id INTEGER NOT NULL,
		message_id INTEGER NOT NULL,
		queued_json TEXT NOT NULL DEFAULT '[]',
		completed INTEGER NOT NULL DEFAULT 0,
		created_at TEXT NOT NULL,
		PRIMARY KEY (chat_id, message_id)
	);
	CREATE TABLE IF NOT EXISTS action_caches (
		chat_id INTEGER NOT NULL,
		message_id INTEGER NOT NULL,
		actions_json TEXT NOT NULL DEFAULT '[]',
		created_at TEXT NOT NULL,
		PRIMARY KEY (chat_id, message_id)
	);
	CREATE INDEX IF NOT EXISTS idx_action_caches_created_at ON action_caches(created_at);
	`
	_, err := s.db.Exec(schema)
	return err
}

// PutSession registers a session. Presence of the record is the sole
// authority for "this session should keep running".
func (s *Store) PutSession(ctx context.Context, key models.SessionKey) error {
	_, err := s.db.ExecContext(ctx, `
	INSERT INTO sessions (chat_id, message_id, created_at)
	VALUES (?, ?, ?)
	ON CONFLICT(chat_id, message_id) DO NOTHING
	`, key.ChatID, key.MessageID, time.Now().UTC().Format(time.RFC3339))
	if err != nil {
		return fmt.Errorf("failed to put session: %w", err)
	}
	s.logger.Debug("session registered", "key", key.String())
	return nil
}

// SessionExists reports whether the session record is still present.
func (s *Store) SessionExists(ctx context.Context, key models.SessionKey) (bool, error) {
	var one int
	err := s.db.QueryRowContext(ctx,
		"SELECT 1 FROM sessions WHERE chat_id = ? AND message_id = ?",
		key.ChatID, key.MessageID,
	).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to check session: %w", err)
	}
	return true, nil
}

// DeleteSession removes the session record. This is the cancellation signal:
// the automation loop notices the absence at its next checkpoint.
func (s *Store) DeleteSession(ctx context.Context, key models.SessionKey) error {
	_, err := s.db.ExecContext(ctx,
		"DELETE FROM sessions WHERE chat_id = ? AND message_id = ?",
		key.ChatID, key.MessageID,
	)
	if err != nil {
		return fmt.Errorf("failed to delete session: %w", err)
	}
	s.logger.Debug("session deleted", "key", key.String())
	return nil
}

// ListSessions returns the keys of every registered session.
func (s *Store) ListSessions(ctx context.Context) ([]models.SessionKey, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT chat_id, message_id FROM sessions ORDER BY created_at")
	if err != nil {
		return nil, fmt.Errorf("failed to list sessions: %w", err)
	}
	defer rows.Close()

	var keys []models.SessionKey
	for rows.Next() {
		var k models.SessionKey
		if err := rows.Scan(&k.ChatID, &k.MessageID); err != nil {
			return nil, fmt.Errorf("failed to scan session: %w", err)
		}
		keys = append(keys, k)
	}
	return keys, rows.Err()
}

// CountSessions returns the number of registered sessions.
func (s *Store) CountSessions(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM sessions").Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count sessions: %w", err)
	}
	return n, nil
}

// PutChallenge creates or replaces the challenge-state record for a session.
func (s *Store) PutChallenge(ctx context.Context, st models.ChallengeState) error {
	queuedJSON, err := json.Marshal(st.Queued)
	if err != nil {
		return fmt.Errorf("failed to marshal queued indices: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `
	INSERT INTO challenge_states (chat_id, message_id, queued_json, completed, created_at)
	VALUES (?, ?, ?, ?, ?)
	ON CONFLICT(chat_id, message_id) DO UPDATE SET
		queued_json = excluded.queued_json,
		completed = excluded.completed,
		created_at = excluded.created_at
	`, st.Key.ChatID, st.Key.MessageID, string(queuedJSON), boolToInt(st.Completed),
		st.CreatedAt.UTC().Format(time.RFC3339Nano))
	if err != nil {
		return fmt.Errorf("failed to put challenge state: %w", err)
	}
	s.logger.Debug("challenge state stored", "key", st.Key.String())
	return nil
}

// GetChallenge loads the challenge-state record for a session.
func (s *Store) GetChallenge(ctx context.Context, key models.SessionKey) (*models.ChallengeState, error) {
	var (
		st         models.ChallengeState
		queuedJSON string
		completed  int
		createdAt  string
	)
	err := s.db.QueryRowContext(ctx, `
	SELECT queued_json, completed, created_at
	FROM challenge_states
	WHERE chat_id = ? AND message_id = ?
	`, key.ChatID, key.MessageID).Scan(&queuedJSON, &completed, &createdAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load challenge state: %w", err)
	}

	st.Key = key
	st.Completed = completed != 0
	st.CreatedAt, err = time.Parse(time.RFC3339Nano, createdAt)
	if err != nil {
		return nil, fmt.Errorf("failed to parse challenge created_at: %w", err)
	}
	if err := json.Unmarshal([]byte(queuedJSON), &st.Queued); err != nil {
		return nil, fmt.Errorf("failed to unmarshal queued indices: %w", err)
	}
	return &st, nil
}

// AppendSquare appends one queued index to the challenge record. Appends are
// the only mutation the operator path performs, so the consuming loop can
// resume from its cursor after any suspension.
func (s *Store) AppendSquare(ctx context.Context, key models.SessionKey, value int) error {
	res, err := s.db.ExecContext(ctx, `
	UPDATE challenge_states
	SET queued_json = json_insert(queued_json, '$[#]', ?)
	WHERE chat_id = ? AND message_id = ?
	`, value, key.ChatID, key.MessageID)
	if err != nil {
		return fmt.Errorf("failed to append square: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	s.logger.Debug("square queued", "key", key.String(), "value", value)
	return nil
}

// CompleteChallenge marks the challenge as accepted.
func (s *Store) CompleteChallenge(ctx context.Context, key models.SessionKey) error {
	res, err := s.db.ExecContext(ctx, `
	UPDATE challenge_states SET completed = 1 WHERE chat_id = ? AND message_id = ?
	`, key.ChatID, key.MessageID)
	if err != nil {
		return fmt.Errorf("failed to complete challenge: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// DeleteChallenge removes the challenge-state record once consumed.
func (s *Store) DeleteChallenge(ctx context.Context, key models.SessionKey) error {
	_, err := s.db.ExecContext(ctx,
		"DELETE FROM challenge_states WHERE chat_id = ? AND message_id = ?",
		key.ChatID, key.MessageID,
	)
	if err != nil {
		return fmt.Errorf("failed to delete challenge state: %w", err)
	}
	return nil
}

// PutActions stores the action list backing one inline keyboard. Re-putting
// the same key replaces the list (a results message is repurposed as the
// flow advances).
func (s *Store) PutActions(ctx context.Context, key models.SessionKey, actions []models.Action) error {
	actionsJSON, err := json.Marshal(actions)
	if err != nil {
		return fmt.Errorf("failed to marshal actions: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `
	INSERT INTO action_caches (chat_id, message_id, actions_json, created_at)
	VALUES (?, ?, ?, ?)
	ON CONFLICT(chat_id, message_id) DO UPDATE SET
		actions_json = excluded.actions_json,
		created_at = excluded.created_at
	`, key.ChatID, key.MessageID, string(actionsJSON), time.Now().UTC().Format(time.RFC3339))
	if err != nil {
		return fmt.Errorf("failed to put actions: %w", err)
	}
	return nil
}

// GetAction returns the indexed action from a cached list.
func (s *Store) GetAction(ctx context.Context, key models.SessionKey, index int) (*models.Action, error) {
	var actionsJSON string
	err := s.db.QueryRowContext(ctx, `
	SELECT actions_json FROM action_caches WHERE chat_id = ? AND message_id = ?
	`, key.ChatID, key.MessageID).Scan(&actionsJSON)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load actions: %w", err)
	}

	var actions []models.Action
	if err := json.Unmarshal([]byte(actionsJSON), &actions); err != nil {
		return nil, fmt.Errorf("failed to unmarshal actions: %w", err)
	}
	if index < 0 || index >= len(actions) {
		return nil, ErrNotFound
	}
	a := actions[index]
	if err := a.Validate(); err != nil {
		return nil, err
	}
	return &a, nil
}

// CleanupActionsOlderThan removes stale action caches.
func (s *Store) CleanupActionsOlderThan(ctx context.Context, threshold time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		"DELETE FROM action_caches WHERE created_at < ?",
		threshold.UTC().Format(time.RFC3339),
	)
	if err != nil {
		return 0, fmt.Errorf("failed to cleanup action caches: %w", err)
	}
	count, _ := res.RowsAffected()
	if count > 0 {
		s.logger.Info("cleaned up stale action caches", "count", count)
	}
	return count, nil
}

// ClearSessions removes every session record. Called on startup so sessions
// from a previous process, which no longer have a driver, cannot linger.
func (s *Store) ClearSessions(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, "DELETE FROM sessions"); err != nil {
		return fmt.Errorf("failed to clear sessions: %w", err)
	}
	if _, err := s.db.ExecContext(ctx, "DELETE FROM challenge_states"); err != nil {
		return fmt.Errorf("failed to clear challenge states: %w", err)
	}
	return nil
}

// Close flushes and closes the database.
func (s *Store) Close() error {
	if !s.isMemory {
		if _, err := s.db.Exec("PRAGMA wal_checkpoint(TRUNCATE)"); err != nil {
			s.logger.Warn("failed to checkpoint WAL before close", "error", err)
		}
	}
	return s.db.Close()
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
