package main

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/disgoorg/snowflake/v2"
	"github.com/joho/godotenv"
	"github.com/mattn/go-sqlite3"
)

// ============================================================================
// Database Constants
// ============================================================================

const (
	MsgConfigInvalidGuildID = "invalid GUILD_ID: must be a valid Snowflake"
	MsgDatabaseInitSuccess  = "Database initialized successfully"
	MsgDatabaseTableError   = "Failed to create table: %w"
	MsgDatabasePragmaError  = "Failed to set pragma %s: %w"
	MsgDBParseEmojiIDFail   = "failed to parse emoji ID '%s': %w"
	MsgDBParseOwnerIDFail   = "failed to parse owner ID '%s' for emoji %s: %w"
	MsgDBParseUserIDFail    = "failed to parse user ID '%s' in usage rows: %w"
	MsgDBUpsertUsageFail    = "failed to upsert usage for emoji %s: %w"

	// Environment Variables
	EnvDiscordToken = "DISCORD_TOKEN"
	EnvSilent       = "SILENT"
	EnvOwnerIDs     = "OWNER_IDS"
	EnvGuildID      = "GUILD_ID"
	EnvDatabasePath = "DATABASE_PATH"
)

// --- Phase 1: Configuration & Environment ---

type Config struct {
	Token        string
	GuildID      string
	DatabasePath string
	OwnerIDs     []string
	Silent       bool
}

var GlobalConfig *Config

// LoadConfig initializes the configuration from environment variables.
func LoadConfig() (*Config, error) {
	_ = godotenv.Load()

	token := os.Getenv(EnvDiscordToken)
	dbPath := os.Getenv(EnvDatabasePath)
	if dbPath == "" {
		dbPath = filepath.Join(".", GetProjectName()+".db")
	}

	silent, _ := strconv.ParseBool(os.Getenv(EnvSilent))

	ownerIDsStr := os.Getenv(EnvOwnerIDs)
	var ownerIDs []string
	if ownerIDsStr != "" {
		ownerIDs = strings.Split(ownerIDsStr, ",")
		for i := range ownerIDs {
			ownerIDs[i] = strings.TrimSpace(ownerIDs[i])
		}
	}

	cfg := &Config{
		Token:        token,
		GuildID:      os.Getenv(EnvGuildID),
		DatabasePath: dbPath,
		OwnerIDs:     ownerIDs,
		Silent:       silent,
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	if cfg.Silent {
		SetSilentMode(true)
	}

	GlobalConfig = cfg
	return cfg, nil
}

func (c *Config) Validate() error {
	if c.Token == "" {
		return fmt.Errorf(MsgConfigMissingToken)
	}
	if c.GuildID != "" && (len(c.GuildID) < 17 || len(c.GuildID) > 20) {
		return fmt.Errorf(MsgConfigInvalidGuildID)
	}
	return nil
}

// IsBotOwner reports whether the user is listed in OWNER_IDS.
func (c *Config) IsBotOwner(userID snowflake.ID) bool {
	for _, id := range c.OwnerIDs {
		if id == userID.String() {
			return true
		}
	}
	return false
}

func GetProjectName() string {
	exePath, err := os.Executable()
	projectName := "bot"
	if err == nil {
		projectName = filepath.Base(exePath)
		projectName = strings.TrimSuffix(projectName, ".exe")

		if projectName == "main" || strings.HasPrefix(projectName, "go_build_") {
			if modData, err := os.ReadFile("go.mod"); err == nil {
				lines := strings.Split(string(modData), "\n")
				if len(lines) > 0 && strings.HasPrefix(lines[0], "module ") {
					parts := strings.Split(lines[0], "/")
					projectName = strings.TrimSpace(parts[len(parts)-1])
				}
			}
		}
	}
	return projectName
}

// --- Phase 2: Database Connection & Lifecycle ---

var DB *sql.DB

func InitDatabase(ctx context.Context, dataSourceName string) error {
	_ = sqlite3.SQLiteDriver{}

	var err error
	DB, err = sql.Open("sqlite3", dataSourceName)
	if err != nil {
		return err
	}

	DB.SetMaxOpenConns(5)

	pragmas := []string{
		"PRAGMA journal_mode=WAL;",
		"PRAGMA synchronous=NORMAL;",
		"PRAGMA busy_timeout=5000;",
		"PRAGMA cache_size=-2000;",
		"PRAGMA foreign_keys=ON;",
	}

	initCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	for _, p := range pragmas {
		if _, err := DB.ExecContext(initCtx, p); err != nil {
			return fmt.Errorf(MsgDatabasePragmaError, p, err)
		}
	}

	tx, err := DB.BeginTx(initCtx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	tableQueries := []string{
		`CREATE TABLE IF NOT EXISTS discord_user (
			id TEXT PRIMARY KEY,
			started_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE TABLE IF NOT EXISTS emoji (
			id TEXT PRIMARY KEY,
			fullname TEXT NOT NULL,
			added_by TEXT NOT NULL,
			hash TEXT NOT NULL DEFAULT '',
			added_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE TABLE IF NOT EXISTS emoji_used (
			emoji_id TEXT NOT NULL,
			user_id TEXT NOT NULL,
			amount INTEGER NOT NULL DEFAULT 0,
			first_used DATETIME DEFAULT CURRENT_TIMESTAMP,
			PRIMARY KEY (emoji_id, user_id)
		)`,
		`CREATE TABLE IF NOT EXISTS emoji_favourite (
			emoji_id TEXT NOT NULL,
			user_id TEXT NOT NULL,
			made_at DATETIME DEFAULT CURRENT_TIMESTAMP,
			PRIMARY KEY (emoji_id, user_id)
		)`,
		`CREATE TABLE IF NOT EXISTS bot_config (
			key TEXT PRIMARY KEY,
			value TEXT NOT NULL,
			updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE INDEX IF NOT EXISTS idx_emoji_used_user_id ON emoji_used(user_id)`,
		`CREATE INDEX IF NOT EXISTS idx_emoji_favourite_user_id ON emoji_favourite(user_id)`,
	}

	for _, q := range tableQueries {
		if _, err := tx.ExecContext(initCtx, q); err != nil {
			return fmt.Errorf(MsgDatabaseTableError, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return err
	}

	LogDatabase(MsgDatabaseInitSuccess)
	return nil
}

func CloseDatabase() {
	if DB != nil {
		DB.Close()
	}
}

// --- Phase 3: Infrastructure & Bot Persistence ---

// BotConfig helpers are used by the loader for mode tracking and state.
func GetBotConfig(ctx context.Context, key string) (string, error) {
	var value string
	err := DB.QueryRowContext(ctx, "SELECT value FROM bot_config WHERE key = ?", key).Scan(&value)
	if err == sql.ErrNoRows {
		return "", nil
	}
	return value, err
}

func SetBotConfig(ctx context.Context, key, value string) error {
	_, err := DB.ExecContext(ctx, `
		INSERT INTO bot_config (key, value) VALUES (?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = CURRENT_TIMESTAMP
	`, key, value)
	return err
}

// --- Phase 4: Emoji Store ---

type EmojiRow struct {
	ID      snowflake.ID
	Name    string
	AddedBy snowflake.ID
	Hash    string
}

type UsageRow struct {
	EmojiID snowflake.ID
	UserID  snowflake.ID
	Amount  int
}

// EmojiDB is the durable store backing the registry and the usage accumulator.
type EmojiDB struct {
	db *sql.DB

	userMu        sync.Mutex
	insertedUsers map[snowflake.ID]struct{}
}

func NewEmojiDB(db *sql.DB) *EmojiDB {
	return &EmojiDB{
		db:            db,
		insertedUsers: make(map[snowflake.ID]struct{}),
	}
}

func (s *EmojiDB) FetchEmojis(ctx context.Context) ([]EmojiRow, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT id, fullname, added_by, hash FROM emoji")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var emojis []EmojiRow
	for rows.Next() {
		var id, name, addedBy, hash string
		if err := rows.Scan(&id, &name, &addedBy, &hash); err != nil {
			return nil, err
		}
		row := EmojiRow{Name: name, Hash: hash}
		row.ID, err = snowflake.Parse(id)
		if err != nil {
			return nil, fmt.Errorf(MsgDBParseEmojiIDFail, id, err)
		}
		row.AddedBy, err = snowflake.Parse(addedBy)
		if err != nil {
			return nil, fmt.Errorf(MsgDBParseOwnerIDFail, addedBy, id, err)
		}
		emojis = append(emojis, row)
	}
	return emojis, rows.Err()
}

func (s *EmojiDB) FetchEmoji(ctx context.Context, emojiID snowflake.ID) (*EmojiRow, error) {
	var id, name, addedBy, hash string
	err := s.db.QueryRowContext(ctx,
		"SELECT id, fullname, added_by, hash FROM emoji WHERE id = ?",
		emojiID.String()).Scan(&id, &name, &addedBy, &hash)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	row := &EmojiRow{Name: name, Hash: hash}
	row.ID, err = snowflake.Parse(id)
	if err != nil {
		return nil, fmt.Errorf(MsgDBParseEmojiIDFail, id, err)
	}
	row.AddedBy, err = snowflake.Parse(addedBy)
	if err != nil {
		return nil, fmt.Errorf(MsgDBParseOwnerIDFail, addedBy, id, err)
	}
	return row, nil
}

func (s *EmojiDB) CreateEmoji(ctx context.Context, emojiID snowflake.ID, name string, ownerID snowflake.ID, hash string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO emoji (id, fullname, added_by, hash) VALUES (?, ?, ?, ?)
		ON CONFLICT(id) DO NOTHING
	`, emojiID.String(), name, ownerID.String(), hash)
	return err
}

func (s *EmojiDB) UpdateEmojiName(ctx context.Context, emojiID snowflake.ID, name string) error {
	_, err := s.db.ExecContext(ctx, "UPDATE emoji SET fullname = ? WHERE id = ?", name, emojiID.String())
	return err
}

func (s *EmojiDB) UpdateEmojiHash(ctx context.Context, emojiID snowflake.ID, hash string) error {
	_, err := s.db.ExecContext(ctx, "UPDATE emoji SET hash = ? WHERE id = ?", hash, emojiID.String())
	return err
}

// RemoveEmojis deletes the emoji rows and cascades their usage and favourite rows.
func (s *EmojiDB) RemoveEmojis(ctx context.Context, emojiIDs []snowflake.ID) error {
	if len(emojiIDs) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	for _, id := range emojiIDs {
		idStr := id.String()
		if _, err := tx.ExecContext(ctx, "DELETE FROM emoji_used WHERE emoji_id = ?", idStr); err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, "DELETE FROM emoji_favourite WHERE emoji_id = ?", idStr); err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, "DELETE FROM emoji WHERE id = ?", idStr); err != nil {
			return err
		}
	}

	return tx.Commit()
}

// PruneOrphanUsage removes usage and favourite rows whose emoji row no
// longer exists.
func (s *EmojiDB) PruneOrphanUsage(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx,
		"DELETE FROM emoji_used WHERE emoji_id NOT IN (SELECT id FROM emoji)"); err != nil {
		return err
	}
	_, err := s.db.ExecContext(ctx,
		"DELETE FROM emoji_favourite WHERE emoji_id NOT IN (SELECT id FROM emoji)")
	return err
}

// UpsertUsage adds delta to the durable counter and returns the authoritative total.
func (s *EmojiDB) UpsertUsage(ctx context.Context, emojiID, userID snowflake.ID, delta int) (int, error) {
	var amount int
	err := s.db.QueryRowContext(ctx, `
		INSERT INTO emoji_used (emoji_id, user_id, amount) VALUES (?, ?, ?)
		ON CONFLICT(emoji_id, user_id) DO UPDATE SET amount = amount + excluded.amount
		RETURNING amount
	`, emojiID.String(), userID.String(), delta).Scan(&amount)
	if err != nil {
		return 0, fmt.Errorf(MsgDBUpsertUsageFail, emojiID, err)
	}
	return amount, nil
}

func (s *EmojiDB) FetchUserUsages(ctx context.Context, userID snowflake.ID) ([]UsageRow, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT emoji_id, user_id, amount FROM emoji_used WHERE user_id = ?", userID.String())
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var usages []UsageRow
	for rows.Next() {
		var eid, uid string
		var amount int
		if err := rows.Scan(&eid, &uid, &amount); err != nil {
			return nil, err
		}
		row := UsageRow{Amount: amount}
		row.EmojiID, err = snowflake.Parse(eid)
		if err != nil {
			return nil, fmt.Errorf(MsgDBParseEmojiIDFail, eid, err)
		}
		row.UserID, err = snowflake.Parse(uid)
		if err != nil {
			return nil, fmt.Errorf(MsgDBParseUserIDFail, uid, err)
		}
		usages = append(usages, row)
	}
	return usages, rows.Err()
}

func (s *EmojiDB) AddFavourite(ctx context.Context, emojiID, userID snowflake.ID) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO emoji_favourite (emoji_id, user_id) VALUES (?, ?)
		ON CONFLICT(emoji_id, user_id) DO NOTHING
	`, emojiID.String(), userID.String())
	return err
}

func (s *EmojiDB) RemoveFavourite(ctx context.Context, emojiID, userID snowflake.ID) error {
	_, err := s.db.ExecContext(ctx,
		"DELETE FROM emoji_favourite WHERE emoji_id = ? AND user_id = ?",
		emojiID.String(), userID.String())
	return err
}

func (s *EmojiDB) ListFavourites(ctx context.Context, userID snowflake.ID) ([]snowflake.ID, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT emoji_id FROM emoji_favourite WHERE user_id = ?", userID.String())
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []snowflake.ID
	for rows.Next() {
		var eid string
		if err := rows.Scan(&eid); err != nil {
			return nil, err
		}
		id, err := snowflake.Parse(eid)
		if err != nil {
			return nil, fmt.Errorf(MsgDBParseEmojiIDFail, eid, err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// EnsureUser inserts the user row once per process lifetime.
func (s *EmojiDB) EnsureUser(ctx context.Context, userID snowflake.ID) error {
	s.userMu.Lock()
	if _, ok := s.insertedUsers[userID]; ok {
		s.userMu.Unlock()
		return nil
	}
	s.userMu.Unlock()

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO discord_user (id) VALUES (?)
		ON CONFLICT(id) DO NOTHING
	`, userID.String())
	if err != nil {
		return err
	}

	s.userMu.Lock()
	s.insertedUsers[userID] = struct{}{}
	s.userMu.Unlock()
	return nil
}
