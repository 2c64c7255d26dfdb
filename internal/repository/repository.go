// Package repository defines the storage interfaces consumed by the service
// layer. Each entity gets its own interface so services can declare exactly
// the capability they need and tests can swap in-memory fakes without a
// database.
//
// Method names carry the entity (CreateContent, CreateTag, ...) because one
// store type implements several of these interfaces at once.
package repository

import (
	"context"

	"github.com/sakif/brainbox/internal/model"
)

type ListOptions struct {
	Limit  int
	Offset int
}

type ContentRepository interface {
	CreateContent(ctx context.Context, content *model.Content) error
	GetContentByID(ctx context.Context, userID, id string) (*model.Content, error)
	ListContent(ctx context.Context, userID string, opts ListOptions) ([]model.Content, error)
	// UpdateContent replaces the stored row and its tag references with
	// the given content's fields.
	UpdateContent(ctx context.Context, content *model.Content) error
	DeleteContent(ctx context.Context, userID, id string) error
	// CountContentByTag is the array-containment query: how many of the
	// user's content items reference the given tag id.
	CountContentByTag(ctx context.Context, userID, tagID string) (int, error)
}

type TagRepository interface {
	CreateTag(ctx context.Context, tag *model.Tag) error
	GetTagByID(ctx context.Context, userID, id string) (*model.Tag, error)
	ListTags(ctx context.Context, userID string) ([]model.Tag, error)
	UpdateTag(ctx context.Context, tag *model.Tag) error
	// DeleteTag removes the tag and every content reference to it.
	DeleteTag(ctx context.Context, userID, id string) error
	// SetContentCount overwrites the denormalized counter. Returns
	// apperror.ErrNotFound if the tag does not exist.
	SetContentCount(ctx context.Context, userID, id string, count int) error
}

type UserRepository interface {
	CreateUser(ctx context.Context, user *model.User) error
	GetUserByID(ctx context.Context, id string) (*model.User, error)
	GetUserByEmail(ctx context.Context, email string) (*model.User, error)
	// UpsertGitHubUser creates or refreshes a user keyed by GitHub ID.
	UpsertGitHubUser(ctx context.Context, user *model.User) error
}

type StatsRepository interface {
	// InitStats creates a zeroed aggregate row for the user if none exists.
	InitStats(ctx context.Context, userID string) error
	GetStats(ctx context.Context, userID string) (*model.UserStats, error)
	// AdjustContentCount applies a signed delta to totalContent, clamped
	// at 0. Silently no-ops when the aggregate row does not exist.
	AdjustContentCount(ctx context.Context, userID string, delta int) error
	// AdjustTagCount applies a signed delta to totalTags, clamped at 0.
	AdjustTagCount(ctx context.Context, userID string, delta int) error
}

// StatsDelta carries increment-only stat updates for one connection.
type StatsDelta struct {
	ContentSaved int
	APICalls     int
}

type ConnectionRepository interface {
	// CreateConnection inserts the connection and increments the user's
	// active/historical connection counters in one transaction, creating
	// the extension-details row lazily if absent.
	CreateConnection(ctx context.Context, conn *model.ExtensionConnection) error
	GetConnectionByID(ctx context.Context, userID, id string) (*model.ExtensionConnection, error)
	ListConnectionsByUser(ctx context.Context, userID string) ([]model.ExtensionConnection, error)
	ListActiveConnectionsByUser(ctx context.Context, userID string) ([]model.ExtensionConnection, error)
	// ListActiveConnections returns every active connection across all
	// users; used by the O(active) API-key scan.
	ListActiveConnections(ctx context.Context) ([]model.ExtensionConnection, error)
	// DisconnectConnection soft-deletes the connection and decrements the
	// user's active counter (floored at 0), transactionally.
	DisconnectConnection(ctx context.Context, userID, id, reason string) error
	// ExpireConnection is the timeout-driven terminal transition. Same
	// transactional shape as disconnect with status set to expired.
	ExpireConnection(ctx context.Context, userID, id string) error
	// TouchConnection refreshes lastActivity/lastHeartbeat and sets the
	// given status.
	TouchConnection(ctx context.Context, userID, id string, status model.ConnectionStatus) error
	// IncrementConnectionStats applies atomic increments to the
	// connection's and the user aggregate's counters.
	IncrementConnectionStats(ctx context.Context, userID, id string, delta StatsDelta) error
	GetExtensionDetails(ctx context.Context, userID string) (*model.UserExtensionDetails, error)
	// EnsureExtensionDetails returns the user's extension details,
	// creating them with defaults if absent.
	EnsureExtensionDetails(ctx context.Context, userID string) (*model.UserExtensionDetails, error)
}
