// ABOUTME: Store interface and domain types for warden's workspace entities
// ABOUTME: Defines realms, users, groups, streams, messages, and branding rows

package store

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned when a requested entity does not exist.
var ErrNotFound = errors.New("not found")

// User roles within a realm.
const (
	RoleAdmin  = "admin"
	RoleMember = "member"
)

// Realm is a single tenant of the workspace service.
type Realm struct {
	ID        int64
	Name      string
	Host      string
	CreatedAt time.Time
}

// User is a workspace account scoped to a realm. Bots carry IsBot and an
// optional BotOwnerID; API keys authenticate outbound plane registration.
type User struct {
	ID         int64
	RealmID    int64
	Email      string
	FullName   string
	Role       string
	APIKey     string
	IsBot      bool
	IsActive   bool
	BotOwnerID *int64
	CreatedAt  time.Time
}

// IsAdmin reports whether the user holds the realm administrator role.
func (u *User) IsAdmin() bool {
	return u.Role == RoleAdmin
}

// Group is a named user group within a realm.
type Group struct {
	ID          int64
	RealmID     int64
	Name        string
	Deactivated bool
}

// Stream is a named channel within a realm.
type Stream struct {
	ID          int64
	RealmID     int64
	Name        string
	Description string
	Deactivated bool
}

// Message is a stream message within a realm. RenderedContent holds the
// HTML rendering of Content.
type Message struct {
	ID              int64
	RealmID         int64
	SenderID        int64
	StreamID        int64
	Topic           string
	Content         string
	RenderedContent string
	SentAt          time.Time
}

// BrandingOverride is a realm's branding row. All fields are optional; a
// row where every field is nil is deleted rather than stored.
type BrandingOverride struct {
	RealmID      int64
	Name         *string
	SupportEmail *string
	HomepageURL  *string
	HelpURL      *string
	StatusURL    *string
	BlogURL      *string
	GitHubURL    *string
	UpdatedAt    time.Time
}

// IsEmpty reports whether every override field is nil.
func (b *BrandingOverride) IsEmpty() bool {
	return b.Name == nil && b.SupportEmail == nil && b.HomepageURL == nil &&
		b.HelpURL == nil && b.StatusURL == nil && b.BlogURL == nil && b.GitHubURL == nil
}

// Store defines persistence operations for workspace entities.
type Store interface {
	// Realms
	CreateRealm(ctx context.Context, realm *Realm) error
	GetRealm(ctx context.Context, id int64) (*Realm, error)

	// Users
	CreateUser(ctx context.Context, user *User) error
	GetUser(ctx context.Context, realmID, userID int64) (*User, error)
	GetUserByEmail(ctx context.Context, realmID int64, email string) (*User, error)
	SetUserActive(ctx context.Context, realmID, userID int64, active bool) error

	// Groups
	CreateGroup(ctx context.Context, group *Group) error
	GetGroupByName(ctx context.Context, realmID int64, name string) (*Group, error)
	AddGroupMember(ctx context.Context, groupID, userID int64) error
	IsGroupMember(ctx context.Context, groupID, userID int64) (bool, error)

	// Streams and subscriptions
	CreateStream(ctx context.Context, stream *Stream) error
	GetStreamByName(ctx context.Context, realmID int64, name string) (*Stream, error)
	Subscribe(ctx context.Context, streamID, userID int64) error
	IsSubscribed(ctx context.Context, streamID, userID int64) (bool, error)

	// Messages
	SaveMessage(ctx context.Context, msg *Message) error
	GetMessage(ctx context.Context, realmID, messageID int64) (*Message, error)

	// Branding
	GetBrandingOverride(ctx context.Context, realmID int64) (*BrandingOverride, error)
	UpsertBrandingOverride(ctx context.Context, row *BrandingOverride) error
	DeleteBrandingOverride(ctx context.Context, realmID int64) error

	// Ping verifies the underlying database connection.
	Ping(ctx context.Context) error
	Close() error
}
