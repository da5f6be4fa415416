package db

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

// Setting keys
const (
	KeyCredential = "github_token"
	KeySelection  = "selected_repository"
	KeyCacheTTL   = "cache_ttl_minutes"
	KeyItemLimit  = "item_limit"
)

// DB represents the database connection
type DB struct {
	*sql.DB
	now func() time.Time
}

// New creates a new database connection
func New(dbPath string) (*DB, error) {
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &DB{DB: db, now: time.Now}, nil
}

// Initialize creates the database schema if it doesn't exist
func (db *DB) Initialize() error {
	schema := `
	CREATE TABLE IF NOT EXISTS settings (
		key TEXT PRIMARY KEY,
		value TEXT NOT NULL,
		updated_at TIMESTAMP NOT NULL
	);

	CREATE TABLE IF NOT EXISTS snapshots (
		owner TEXT NOT NULL,
		repo TEXT NOT NULL,
		kind TEXT NOT NULL,
		payload TEXT NOT NULL,
		stored_at TIMESTAMP NOT NULL,
		ttl_seconds INTEGER NOT NULL,
		PRIMARY KEY (owner, repo, kind)
	);
	`

	_, err := db.Exec(schema)
	if err != nil {
		return fmt.Errorf("failed to create schema: %w", err)
	}

	return nil
}

// GetSetting returns a setting value; ok is false when it was never set
func (db *DB) GetSetting(key string) (value string, ok bool, err error) {
	err = db.QueryRow("SELECT value FROM settings WHERE key = ?", key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("failed to get setting %s: %w", key, err)
	}
	return value, true, nil
}

// SetSetting saves a setting value
func (db *DB) SetSetting(key, value string) error {
	query := `
	INSERT INTO settings (key, value, updated_at)
	VALUES (?, ?, ?)
	ON CONFLICT(key) DO UPDATE SET
		value = excluded.value,
		updated_at = excluded.updated_at
	`

	_, err := db.Exec(query, key, value, db.now())
	if err != nil {
		return fmt.Errorf("failed to save setting %s: %w", key, err)
	}

	return nil
}

// DeleteSetting removes a setting
func (db *DB) DeleteSetting(key string) error {
	_, err := db.Exec("DELETE FROM settings WHERE key = ?", key)
	if err != nil {
		return fmt.Errorf("failed to delete setting %s: %w", key, err)
	}
	return nil
}

// SaveCredential stores the API token
func (db *DB) SaveCredential(token string) error {
	return db.SetSetting(KeyCredential, token)
}

// LoadCredential returns the stored API token, or "" when none is stored
func (db *DB) LoadCredential() (string, error) {
	token, _, err := db.GetSetting(KeyCredential)
	return token, err
}

// DeleteCredential forgets the stored API token
func (db *DB) DeleteCredential() error {
	return db.DeleteSetting(KeyCredential)
}

// SaveSelection stores the selected repository
func (db *DB) SaveSelection(owner, name string) error {
	return db.SetSetting(KeySelection, owner+"/"+name)
}

// LoadSelection returns the selected repository; ok is false when none is stored
func (db *DB) LoadSelection() (owner, name string, ok bool, err error) {
	value, found, err := db.GetSetting(KeySelection)
	if err != nil || !found {
		return "", "", false, err
	}

	owner, name, ok = strings.Cut(value, "/")
	if !ok || owner == "" || name == "" {
		return "", "", false, nil
	}
	return owner, name, true, nil
}

// ClearSelection forgets the selected repository
func (db *DB) ClearSelection() error {
	return db.DeleteSetting(KeySelection)
}

// SaveCacheTTLMinutes stores the cache lifetime
func (db *DB) SaveCacheTTLMinutes(minutes int) error {
	return db.SetSetting(KeyCacheTTL, strconv.Itoa(minutes))
}

// LoadCacheTTLMinutes returns the stored cache lifetime; ok is false when none is stored
func (db *DB) LoadCacheTTLMinutes() (minutes int, ok bool, err error) {
	value, found, err := db.GetSetting(KeyCacheTTL)
	if err != nil || !found {
		return 0, false, err
	}

	minutes, err = strconv.Atoi(value)
	if err != nil {
		return 0, false, fmt.Errorf("failed to parse %s %q: %w", KeyCacheTTL, value, err)
	}
	return minutes, true, nil
}

// SaveItemLimit stores the item limit. nil means unbounded and removes the setting.
func (db *DB) SaveItemLimit(limit *int) error {
	if limit == nil {
		return db.DeleteSetting(KeyItemLimit)
	}
	return db.SetSetting(KeyItemLimit, strconv.Itoa(*limit))
}

// LoadItemLimit returns the stored item limit, nil when unbounded
func (db *DB) LoadItemLimit() (*int, error) {
	value, found, err := db.GetSetting(KeyItemLimit)
	if err != nil || !found {
		return nil, err
	}

	limit, err := strconv.Atoi(value)
	if err != nil {
		return nil, fmt.Errorf("failed to parse %s %q: %w", KeyItemLimit, value, err)
	}
	return &limit, nil
}

// SaveSnapshot stores v as the JSON snapshot of one kind of repository data,
// valid for ttl
func (db *DB) SaveSnapshot(owner, repo, kind string, v any, ttl time.Duration) error {
	payload, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to encode %s snapshot: %w", kind, err)
	}

	query := `
	INSERT INTO snapshots (owner, repo, kind, payload, stored_at, ttl_seconds)
	VALUES (?, ?, ?, ?, ?, ?)
	ON CONFLICT(owner, repo, kind) DO UPDATE SET
		payload = excluded.payload,
		stored_at = excluded.stored_at,
		ttl_seconds = excluded.ttl_seconds
	`

	_, err = db.Exec(query, owner, repo, kind, string(payload), db.now().UTC(), int64(ttl/time.Second))
	if err != nil {
		return fmt.Errorf("failed to save %s snapshot: %w", kind, err)
	}

	return nil
}

// LoadSnapshot decodes a stored snapshot into v. found is false when there
// is no snapshot or it has expired; expired snapshots are deleted.
func (db *DB) LoadSnapshot(owner, repo, kind string, v any) (found bool, err error) {
	var (
		payload    string
		storedAt   time.Time
		ttlSeconds int64
	)

	query := `
	SELECT payload, stored_at, ttl_seconds
	FROM snapshots
	WHERE owner = ? AND repo = ? AND kind = ?
	`

	err = db.QueryRow(query, owner, repo, kind).Scan(&payload, &storedAt, &ttlSeconds)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to load %s snapshot: %w", kind, err)
	}

	expiresAt := storedAt.Add(time.Duration(ttlSeconds) * time.Second)
	if db.now().After(expiresAt) {
		_, err := db.Exec("DELETE FROM snapshots WHERE owner = ? AND repo = ? AND kind = ?", owner, repo, kind)
		if err != nil {
			return false, fmt.Errorf("failed to delete expired %s snapshot: %w", kind, err)
		}
		return false, nil
	}

	if err := json.Unmarshal([]byte(payload), v); err != nil {
		return false, fmt.Errorf("failed to decode %s snapshot: %w", kind, err)
	}
	return true, nil
}

// DeleteSnapshots removes every snapshot of a repository
func (db *DB) DeleteSnapshots(owner, repo string) error {
	_, err := db.Exec("DELETE FROM snapshots WHERE owner = ? AND repo = ?", owner, repo)
	if err != nil {
		return fmt.Errorf("failed to delete snapshots of %s/%s: %w", owner, repo, err)
	}
	return nil
}
