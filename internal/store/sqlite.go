// ABOUTME: SQLite implementation of the Store interface using modernc.org/sqlite
// ABOUTME: Provides workspace entity persistence with automatic schema creation

package store

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"
)

// SQLiteStore implements the Store interface using SQLite
type SQLiteStore struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewSQLiteStore creates a new SQLite store at the given path.
// The schema is automatically created if it doesn't exist.
// Parent directories are created if needed.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	logger := slog.Default().With("component", "store")

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("creating database directory: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	// Enable WAL mode for better concurrent performance
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enabling WAL mode: %w", err)
	}

	if _, err := db.Exec("PRAGMA foreign_keys=ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enabling foreign keys: %w", err)
	}

	s := &SQLiteStore{
		db:     db,
		logger: logger,
	}

	if err := s.createSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating schema: %w", err)
	}

	logger.Info("SQLite store initialized", "path", path)
	return s, nil
}

// createSchema creates the database tables if they don't exist
func (s *SQLiteStore) createSchema() error {
	schema := `
		CREATE TABLE IF NOT EXISTS realms (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			name TEXT NOT NULL,
			host TEXT NOT NULL,
			created_at DATETIME NOT NULL
		);

		CREATE TABLE IF NOT EXISTS users (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			realm_id INTEGER NOT NULL,
			email TEXT NOT NULL,
			full_name TEXT NOT NULL,
			role TEXT NOT NULL DEFAULT 'member',
			api_key TEXT NOT NULL,
			is_bot INTEGER NOT NULL DEFAULT 0,
			is_active INTEGER NOT NULL DEFAULT 1,
			bot_owner_id INTEGER,
			created_at DATETIME NOT NULL,
			FOREIGN KEY (realm_id) REFERENCES realms(id)
		);

		CREATE UNIQUE INDEX IF NOT EXISTS idx_users_realm_email
			ON users(realm_id, email);

		CREATE TABLE IF NOT EXISTS groups (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			realm_id INTEGER NOT NULL,
			name TEXT NOT NULL,
			deactivated INTEGER NOT NULL DEFAULT 0,
			FOREIGN KEY (realm_id) REFERENCES realms(id)
		);

		CREATE UNIQUE INDEX IF NOT EXISTS idx_groups_realm_name
			ON groups(realm_id, name);

		CREATE TABLE IF NOT EXISTS group_members (
			group_id INTEGER NOT NULL,
			user_id INTEGER NOT NULL,
			PRIMARY KEY (group_id, user_id),
			FOREIGN KEY (group_id) REFERENCES groups(id),
			FOREIGN KEY (user_id) REFERENCES users(id)
		);

		CREATE TABLE IF NOT EXISTS streams (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			realm_id INTEGER NOT NULL,
			name TEXT NOT NULL,
			description TEXT NOT NULL DEFAULT '',
			deactivated INTEGER NOT NULL DEFAULT 0,
			FOREIGN KEY (realm_id) REFERENCES realms(id)
		);

		CREATE UNIQUE INDEX IF NOT EXISTS idx_streams_realm_name
			ON streams(realm_id, name);

		CREATE TABLE IF NOT EXISTS subscriptions (
			user_id INTEGER NOT NULL,
			stream_id INTEGER NOT NULL,
			active INTEGER NOT NULL DEFAULT 1,
			PRIMARY KEY (user_id, stream_id),
			FOREIGN KEY (user_id) REFERENCES users(id),
			FOREIGN KEY (stream_id) REFERENCES streams(id)
		);

		CREATE TABLE IF NOT EXISTS messages (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			realm_id INTEGER NOT NULL,
			sender_id INTEGER NOT NULL,
			stream_id INTEGER NOT NULL,
			topic TEXT NOT NULL,
			content TEXT NOT NULL,
			rendered_content TEXT NOT NULL DEFAULT '',
			sent_at DATETIME NOT NULL,
			FOREIGN KEY (realm_id) REFERENCES realms(id),
			FOREIGN KEY (sender_id) REFERENCES users(id),
			FOREIGN KEY (stream_id) REFERENCES streams(id)
		);

		CREATE INDEX IF NOT EXISTS idx_messages_realm_sent
			ON messages(realm_id, sent_at);

		CREATE TABLE IF NOT EXISTS branding_overrides (
			realm_id INTEGER PRIMARY KEY,
			name TEXT,
			support_email TEXT,
			homepage_url TEXT,
			help_url TEXT,
			status_url TEXT,
			blog_url TEXT,
			github_url TEXT,
			updated_at DATETIME NOT NULL,
			FOREIGN KEY (realm_id) REFERENCES realms(id)
		);
	`

	if _, err := s.db.Exec(schema); err != nil {
		return fmt.Errorf("executing schema: %w", err)
	}
	return nil
}

// Ping verifies the database connection is alive.
func (s *SQLiteStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close closes the underlying database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// CreateRealm inserts a new realm and populates its generated ID.
func (s *SQLiteStore) CreateRealm(ctx context.Context, realm *Realm) error {
	if realm.CreatedAt.IsZero() {
		realm.CreatedAt = time.Now().UTC()
	}

	result, err := s.db.ExecContext(ctx,
		`INSERT INTO realms (name, host, created_at) VALUES (?, ?, ?)`,
		realm.Name, realm.Host, realm.CreatedAt.Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("inserting realm: %w", err)
	}

	realm.ID, err = result.LastInsertId()
	if err != nil {
		return fmt.Errorf("getting realm id: %w", err)
	}

	s.logger.Debug("created realm", "id", realm.ID, "name", realm.Name)
	return nil
}

// GetRealm retrieves a realm by ID.
// Returns ErrNotFound if the realm doesn't exist.
func (s *SQLiteStore) GetRealm(ctx context.Context, id int64) (*Realm, error) {
	var realm Realm
	var createdAt string

	err := s.db.QueryRowContext(ctx,
		`SELECT id, name, host, created_at FROM realms WHERE id = ?`, id,
	).Scan(&realm.ID, &realm.Name, &realm.Host, &createdAt)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("querying realm: %w", err)
	}

	realm.CreatedAt = parseTime(createdAt, "realm created_at", realm.ID)
	return &realm, nil
}

// CreateUser inserts a new user and populates its generated ID.
// Returns an error if the email is already taken within the realm.
func (s *SQLiteStore) CreateUser(ctx context.Context, user *User) error {
	if user.CreatedAt.IsZero() {
		user.CreatedAt = time.Now().UTC()
	}
	if user.Role == "" {
		user.Role = RoleMember
	}

	result, err := s.db.ExecContext(ctx, `
		INSERT INTO users (realm_id, email, full_name, role, api_key, is_bot, is_active, bot_owner_id, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		user.RealmID, user.Email, user.FullName, user.Role, user.APIKey,
		boolToInt(user.IsBot), boolToInt(user.IsActive), user.BotOwnerID,
		user.CreatedAt.Format(time.RFC3339),
	)
	if err != nil {
		if isConstraintViolation(err) {
			return fmt.Errorf("user with email %q already exists in realm %d", user.Email, user.RealmID)
		}
		return fmt.Errorf("inserting user: %w", err)
	}

	user.ID, err = result.LastInsertId()
	if err != nil {
		return fmt.Errorf("getting user id: %w", err)
	}

	s.logger.Debug("created user", "id", user.ID, "realm_id", user.RealmID, "email", user.Email, "is_bot", user.IsBot)
	return nil
}

const userColumns = `id, realm_id, email, full_name, role, api_key, is_bot, is_active, bot_owner_id, created_at`

// GetUser retrieves a user by ID within a realm.
// Returns ErrNotFound if the user doesn't exist in that realm.
func (s *SQLiteStore) GetUser(ctx context.Context, realmID, userID int64) (*User, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+userColumns+` FROM users WHERE realm_id = ? AND id = ?`, realmID, userID)
	return scanUser(row)
}

// GetUserByEmail retrieves a user by email within a realm.
// Returns ErrNotFound if no such user exists.
func (s *SQLiteStore) GetUserByEmail(ctx context.Context, realmID int64, email string) (*User, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+userColumns+` FROM users WHERE realm_id = ? AND email = ?`, realmID, email)
	return scanUser(row)
}

// scanUser scans a single user row.
func scanUser(row *sql.Row) (*User, error) {
	var user User
	var isBot, isActive int
	var botOwnerID sql.NullInt64
	var createdAt string

	err := row.Scan(
		&user.ID, &user.RealmID, &user.Email, &user.FullName, &user.Role,
		&user.APIKey, &isBot, &isActive, &botOwnerID, &createdAt,
	)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("querying user: %w", err)
	}

	user.IsBot = isBot != 0
	user.IsActive = isActive != 0
	if botOwnerID.Valid {
		user.BotOwnerID = &botOwnerID.Int64
	}
	user.CreatedAt = parseTime(createdAt, "user created_at", user.ID)
	return &user, nil
}

// SetUserActive activates or deactivates a user.
// Returns ErrNotFound if the user doesn't exist in the realm.
func (s *SQLiteStore) SetUserActive(ctx context.Context, realmID, userID int64, active bool) error {
	result, err := s.db.ExecContext(ctx,
		`UPDATE users SET is_active = ? WHERE realm_id = ? AND id = ?`,
		boolToInt(active), realmID, userID,
	)
	if err != nil {
		return fmt.Errorf("updating user active flag: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("getting rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return ErrNotFound
	}

	s.logger.Debug("set user active", "realm_id", realmID, "user_id", userID, "active", active)
	return nil
}

// CreateGroup inserts a new group and populates its generated ID.
func (s *SQLiteStore) CreateGroup(ctx context.Context, group *Group) error {
	result, err := s.db.ExecContext(ctx,
		`INSERT INTO groups (realm_id, name, deactivated) VALUES (?, ?, ?)`,
		group.RealmID, group.Name, boolToInt(group.Deactivated),
	)
	if err != nil {
		if isConstraintViolation(err) {
			return fmt.Errorf("group %q already exists in realm %d", group.Name, group.RealmID)
		}
		return fmt.Errorf("inserting group: %w", err)
	}

	group.ID, err = result.LastInsertId()
	if err != nil {
		return fmt.Errorf("getting group id: %w", err)
	}
	return nil
}

// GetGroupByName retrieves a group by name within a realm.
// Returns ErrNotFound if no such group exists.
func (s *SQLiteStore) GetGroupByName(ctx context.Context, realmID int64, name string) (*Group, error) {
	var group Group
	var deactivated int

	err := s.db.QueryRowContext(ctx,
		`SELECT id, realm_id, name, deactivated FROM groups WHERE realm_id = ? AND name = ?`,
		realmID, name,
	).Scan(&group.ID, &group.RealmID, &group.Name, &deactivated)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("querying group: %w", err)
	}

	group.Deactivated = deactivated != 0
	return &group, nil
}

// AddGroupMember adds a user to a group. Adding an existing member is a no-op.
func (s *SQLiteStore) AddGroupMember(ctx context.Context, groupID, userID int64) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT OR IGNORE INTO group_members (group_id, user_id) VALUES (?, ?)`,
		groupID, userID,
	)
	if err != nil {
		return fmt.Errorf("inserting group member: %w", err)
	}
	return nil
}

// IsGroupMember reports whether a user belongs to a group.
func (s *SQLiteStore) IsGroupMember(ctx context.Context, groupID, userID int64) (bool, error) {
	var n int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM group_members WHERE group_id = ? AND user_id = ?`,
		groupID, userID,
	).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("querying group membership: %w", err)
	}
	return n > 0, nil
}

// CreateStream inserts a new stream and populates its generated ID.
func (s *SQLiteStore) CreateStream(ctx context.Context, stream *Stream) error {
	result, err := s.db.ExecContext(ctx,
		`INSERT INTO streams (realm_id, name, description, deactivated) VALUES (?, ?, ?, ?)`,
		stream.RealmID, stream.Name, stream.Description, boolToInt(stream.Deactivated),
	)
	if err != nil {
		if isConstraintViolation(err) {
			return fmt.Errorf("stream %q already exists in realm %d", stream.Name, stream.RealmID)
		}
		return fmt.Errorf("inserting stream: %w", err)
	}

	stream.ID, err = result.LastInsertId()
	if err != nil {
		return fmt.Errorf("getting stream id: %w", err)
	}

	s.logger.Debug("created stream", "id", stream.ID, "realm_id", stream.RealmID, "name", stream.Name)
	return nil
}

// GetStreamByName retrieves a stream by name within a realm.
// Returns ErrNotFound if no such stream exists.
func (s *SQLiteStore) GetStreamByName(ctx context.Context, realmID int64, name string) (*Stream, error) {
	var stream Stream
	var deactivated int

	err := s.db.QueryRowContext(ctx,
		`SELECT id, realm_id, name, description, deactivated FROM streams WHERE realm_id = ? AND name = ?`,
		realmID, name,
	).Scan(&stream.ID, &stream.RealmID, &stream.Name, &stream.Description, &deactivated)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("querying stream: %w", err)
	}

	stream.Deactivated = deactivated != 0
	return &stream, nil
}

// Subscribe subscribes a user to a stream. Re-subscribing is a no-op.
func (s *SQLiteStore) Subscribe(ctx context.Context, streamID, userID int64) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO subscriptions (user_id, stream_id, active) VALUES (?, ?, 1)
		 ON CONFLICT(user_id, stream_id) DO UPDATE SET active = 1`,
		userID, streamID,
	)
	if err != nil {
		return fmt.Errorf("inserting subscription: %w", err)
	}
	return nil
}

// IsSubscribed reports whether a user has an active subscription to a stream.
func (s *SQLiteStore) IsSubscribed(ctx context.Context, streamID, userID int64) (bool, error) {
	var n int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM subscriptions WHERE user_id = ? AND stream_id = ? AND active = 1`,
		userID, streamID,
	).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("querying subscription: %w", err)
	}
	return n > 0, nil
}

// SaveMessage inserts a message and populates its generated ID.
func (s *SQLiteStore) SaveMessage(ctx context.Context, msg *Message) error {
	if msg.SentAt.IsZero() {
		msg.SentAt = time.Now().UTC()
	}

	result, err := s.db.ExecContext(ctx, `
		INSERT INTO messages (realm_id, sender_id, stream_id, topic, content, rendered_content, sent_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		msg.RealmID, msg.SenderID, msg.StreamID, msg.Topic, msg.Content,
		msg.RenderedContent, msg.SentAt.Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("inserting message: %w", err)
	}

	msg.ID, err = result.LastInsertId()
	if err != nil {
		return fmt.Errorf("getting message id: %w", err)
	}
	return nil
}

// GetMessage retrieves a message by ID within a realm.
// Returns ErrNotFound if the message doesn't exist in that realm.
func (s *SQLiteStore) GetMessage(ctx context.Context, realmID, messageID int64) (*Message, error) {
	var msg Message
	var sentAt string

	err := s.db.QueryRowContext(ctx, `
		SELECT id, realm_id, sender_id, stream_id, topic, content, rendered_content, sent_at
		FROM messages WHERE realm_id = ? AND id = ?`,
		realmID, messageID,
	).Scan(&msg.ID, &msg.RealmID, &msg.SenderID, &msg.StreamID, &msg.Topic,
		&msg.Content, &msg.RenderedContent, &sentAt)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("querying message: %w", err)
	}

	msg.SentAt = parseTime(sentAt, "message sent_at", msg.ID)
	return &msg, nil
}

// parseTime parses an RFC3339 timestamp column, logging on failure.
func parseTime(value, field string, id int64) time.Time {
	parsed, err := time.Parse(time.RFC3339, value)
	if err != nil {
		slog.Warn("failed to parse timestamp column", "field", field, "id", id, "error", err)
		return time.Time{}
	}
	return parsed
}

// boolToInt converts a bool to the 0/1 integer SQLite stores.
func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

// isConstraintViolation checks if an error is a SQLite constraint violation.
func isConstraintViolation(err error) bool {
	if err == nil {
		return false
	}
	errStr := err.Error()
	return strings.Contains(errStr, "UNIQUE constraint failed") ||
		strings.Contains(errStr, "constraint failed")
}

// Ensure SQLiteStore implements Store.
var _ Store = (*SQLiteStore)(nil)
