// Package model defines the data structures used throughout the application.
// In Go, we use structs to represent our data — similar to classes in other languages,
// but without inheritance. Go favours composition over inheritance.
package model

import "time"

// ContentType classifies a saved content item.
type ContentType string

const (
	ContentTypeLink     ContentType = "link"
	ContentTypeArticle  ContentType = "article"
	ContentTypeVideo    ContentType = "video"
	ContentTypeNote     ContentType = "note"
	ContentTypeDocument ContentType = "document"
)

// Valid reports whether ct is one of the known content types.
func (ct ContentType) Valid() bool {
	switch ct {
	case ContentTypeLink, ContentTypeArticle, ContentTypeVideo,
		ContentTypeNote, ContentTypeDocument:
		return true
	}
	return false
}

// Content represents one saved piece of content belonging to a user.
//
// TagIDs holds references into the user's tag collection. Order is
// irrelevant; the set is stored in a join table, not as a serialized array,
// so tag counts can be recomputed with a single COUNT query.
//
// ThumbnailURL uses the empty string as "no thumbnail" rather than a
// nullable pointer — simpler to work with and safe to display.
type Content struct {
	ID            string      `json:"id"            db:"id"`
	UserID        string      `json:"userId"        db:"user_id"`
	Title         string      `json:"title"         db:"title"`
	Description   string      `json:"description"   db:"description"`
	Link          string      `json:"link"          db:"link"`
	ContentType   ContentType `json:"contentType"   db:"content_type"`
	PersonalNotes string      `json:"personalNotes" db:"personal_notes"`
	ThumbnailURL  string      `json:"thumbnailUrl"  db:"thumbnail_url"`
	TagIDs        []string    `json:"tagsId"`
	CreatedAt     time.Time   `json:"createdAt"     db:"created_at"`
	UpdatedAt     time.Time   `json:"updatedAt"     db:"updated_at"`
}
