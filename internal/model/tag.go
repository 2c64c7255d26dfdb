package model

import "time"

// Tag represents one user-defined label.
//
// The ID is derived deterministically from the tag name (lowercased,
// slugified), so the same name always yields the same id for a given user.
// This makes tag creation idempotent — saving "Machine Learning" twice
// resolves to the same tag document.
//
// ContentCount is denormalized: it should equal the number of content items
// referencing this tag, but it is recomputed on demand rather than
// maintained incrementally, so it can transiently drift until the next
// reconciliation pass touches it.
type Tag struct {
	ID           string    `json:"id"           db:"id"`
	UserID       string    `json:"userId"       db:"user_id"`
	TagName      string    `json:"tagName"      db:"tag_name"`
	ColorCode    string    `json:"colorCode"    db:"color_code"` // hex, e.g. "#3B82F6"
	Description  string    `json:"description"  db:"description"`
	ContentCount int       `json:"contentCount" db:"content_count"`
	CreatedAt    time.Time `json:"createdAt"    db:"created_at"`
	UpdatedAt    time.Time `json:"updatedAt"    db:"updated_at"`
}
