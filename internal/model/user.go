// Package model defines the data structures used throughout the application.
package model

import "time"

// User represents a registered account.
//
// Two sign-in paths exist: email/password (PasswordHash set, GitHubID zero)
// and GitHub OAuth (GitHubID set, PasswordHash empty). We generate our own
// internal string ID (xid) either way, to avoid tying primary keys to a
// third party's numbering scheme.
//
// PasswordHash is tagged `json:"-"` so it can never leak through an API
// response, no matter how carelessly a handler serializes the struct.
type User struct {
	ID           string    `json:"id"        db:"id"`
	GitHubID     int64     `json:"-"         db:"github_id"` // 0 for password accounts
	Login        string    `json:"login"     db:"login"`
	Email        string    `json:"email"     db:"email"`
	PasswordHash string    `json:"-"         db:"password_hash"`
	AvatarURL    string    `json:"avatarUrl" db:"avatar_url"`
	CreatedAt    time.Time `json:"createdAt" db:"created_at"`
	UpdatedAt    time.Time `json:"updatedAt" db:"updated_at"`
}

// UserStats is the per-user aggregate of coarse totals shown on the
// dashboard. Both counters are advisory, eventually consistent
// approximations of the true collection sizes — they are clamped at zero on
// decrement and never used for access control.
type UserStats struct {
	UserID       string    `json:"userId"       db:"user_id"`
	TotalContent int       `json:"totalContent" db:"total_content"`
	TotalTags    int       `json:"totalTags"    db:"total_tags"`
	CreatedAt    time.Time `json:"createdAt"    db:"created_at"`
	UpdatedAt    time.Time `json:"updatedAt"    db:"updated_at"`
}
