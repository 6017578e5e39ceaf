package memory

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/rs/zerolog"
)

// SQLiteConfig holds sqlite store configuration
type SQLiteConfig struct {
	DBPath   string
	MaxTurns int
	Logger   zerolog.Logger
}

// SQLiteStore implements ShortTermMemory and ProfileStore on a sqlite file
type SQLiteStore struct {
	db       *sql.DB
	maxTurns int
	logger   zerolog.Logger
}

// NewSQLiteStore opens (or creates) the database and its schema
func NewSQLiteStore(cfg SQLiteConfig) (*SQLiteStore, error) {
	if cfg.DBPath == "" {
		return nil, errors.New("database path is required")
	}
	if cfg.MaxTurns <= 0 {
		cfg.MaxTurns = DefaultMaxTurns
	}

	db, err := sql.Open("sqlite3", cfg.DBPath+"?_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
	}

	s := &SQLiteStore{db: db, maxTurns: cfg.MaxTurns, logger: cfg.Logger}
	if err := s.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return s, nil
}

func (s *SQLiteStore) initSchema() error {
	schema := `
		CREATE TABLE IF NOT EXISTS turns (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			conversation_id TEXT NOT NULL,
			at INTEGER NOT NULL,
			user_input TEXT NOT NULL,
			assistant_output TEXT NOT NULL,
			goal TEXT NOT NULL,
			steps TEXT NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_turns_conversation ON turns(conversation_id, id);

		CREATE TABLE IF NOT EXISTS profiles (
			conversation_id TEXT NOT NULL,
			key TEXT NOT NULL,
			value TEXT NOT NULL,
			updated_at INTEGER NOT NULL,
			PRIMARY KEY (conversation_id, key)
		);
	`
	_, err := s.db.Exec(schema)
	return err
}

// Append stores a turn and trims the conversation to MaxTurns
func (s *SQLiteStore) Append(ctx context.Context, conversationID string, turn TurnRecord) error {
	steps, err := json.Marshal(turn.Steps)
	if err != nil {
		return fmt.Errorf("failed to encode steps: %w", err)
	}
	if turn.At.IsZero() {
		turn.At = time.Now().UTC()
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx,
		`INSERT INTO turns (conversation_id, at, user_input, assistant_output, goal, steps) VALUES (?, ?, ?, ?, ?, ?)`,
		conversationID, turn.At.UnixMilli(), turn.UserInput, turn.AssistantOutput, turn.Goal, string(steps),
	)
	if err != nil {
		return fmt.Errorf("failed to insert turn: %w", err)
	}

	_, err = tx.ExecContext(ctx,
		`DELETE FROM turns WHERE conversation_id = ? AND id NOT IN (
			SELECT id FROM turns WHERE conversation_id = ? ORDER BY id DESC LIMIT ?
		)`,
		conversationID, conversationID, s.maxTurns,
	)
	if err != nil {
		return fmt.Errorf("failed to trim turns: %w", err)
	}

	return tx.Commit()
}

// Recent returns up to take turns, newest first
func (s *SQLiteStore) Recent(ctx context.Context, conversationID string, take int) ([]TurnRecord, error) {
	if take <= 0 {
		return []TurnRecord{}, nil
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT at, user_input, assistant_output, goal, steps FROM turns
		 WHERE conversation_id = ? ORDER BY id DESC LIMIT ?`,
		conversationID, take,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query turns: %w", err)
	}
	defer rows.Close()

	out := []TurnRecord{}
	for rows.Next() {
		var (
			at    int64
			steps string
			turn  TurnRecord
		)
		if err := rows.Scan(&at, &turn.UserInput, &turn.AssistantOutput, &turn.Goal, &steps); err != nil {
			return nil, fmt.Errorf("failed to scan turn: %w", err)
		}
		turn.At = time.UnixMilli(at).UTC()
		if err := json.Unmarshal([]byte(steps), &turn.Steps); err != nil {
			s.logger.Warn().Err(err).Str("conversation_id", conversationID).Msg("Dropping undecodable step records")
			turn.Steps = nil
		}
		out = append(out, turn)
	}
	return out, rows.Err()
}

// Clear deletes every turn of a conversation
func (s *SQLiteStore) Clear(ctx context.Context, conversationID string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM turns WHERE conversation_id = ?`, conversationID)
	return err
}

// Get returns a copy of the profile
func (s *SQLiteStore) Get(ctx context.Context, conversationID string) (map[string]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT key, value FROM profiles WHERE conversation_id = ?`, conversationID)
	if err != nil {
		return nil, fmt.Errorf("failed to query profile: %w", err)
	}
	defer rows.Close()

	out := map[string]string{}
	for rows.Next() {
		var k, v string
		if err := rows.Scan(&k, &v); err != nil {
			return nil, fmt.Errorf("failed to scan profile: %w", err)
		}
		out[k] = v
	}
	return out, rows.Err()
}

// Upsert merges patch into the stored profile
func (s *SQLiteStore) Upsert(ctx context.Context, conversationID string, patch map[string]string) error {
	if len(patch) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	now := time.Now().UnixMilli()
	for k, v := range patch {
		_, err := tx.ExecContext(ctx,
			`INSERT INTO profiles (conversation_id, key, value, updated_at) VALUES (?, ?, ?, ?)
			 ON CONFLICT(conversation_id, key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`,
			conversationID, strings.ToLower(k), v, now,
		)
		if err != nil {
			return fmt.Errorf("failed to upsert profile key %s: %w", k, err)
		}
	}

	return tx.Commit()
}

// Prune deletes turns recorded before cutoff and returns the number removed
func (s *SQLiteStore) Prune(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM turns WHERE at < ?`, cutoff.UnixMilli())
	if err != nil {
		return 0, fmt.Errorf("failed to prune turns: %w", err)
	}
	return res.RowsAffected()
}

// Close closes the database
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
