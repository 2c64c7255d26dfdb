package sqlite

import (
	"context"
	"testing"

	"github.com/sakif/brainbox/internal/model"
)

// newTestDB opens an in-memory database: fast, isolated, destroyed when
// the connection closes.
func newTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := New(":memory:")
	if err != nil {
		t.Fatalf("failed to create test db: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

// createTestUser satisfies the foreign keys on content, tags, and
// connections. Most tests need one.
func createTestUser(t *testing.T, db *DB, email string) *model.User {
	t.Helper()
	user := &model.User{
		Login:        "tester",
		Email:        email,
		PasswordHash: "$2a$04$fakehash",
	}
	if err := db.CreateUser(context.Background(), user); err != nil {
		t.Fatalf("failed to create test user: %v", err)
	}
	return user
}

func createTestContent(t *testing.T, db *DB, userID, title string, tagIDs ...string) *model.Content {
	t.Helper()
	content := &model.Content{
		UserID:      userID,
		Title:       title,
		ContentType: model.ContentTypeLink,
		Link:        "https://example.com",
		TagIDs:      tagIDs,
	}
	if err := db.CreateContent(context.Background(), content); err != nil {
		t.Fatalf("failed to create test content: %v", err)
	}
	return content
}

func createTestTag(t *testing.T, db *DB, userID, id, name string) *model.Tag {
	t.Helper()
	tag := &model.Tag{
		ID:        id,
		UserID:    userID,
		TagName:   name,
		ColorCode: "#3B82F6",
	}
	if err := db.CreateTag(context.Background(), tag); err != nil {
		t.Fatalf("failed to create test tag: %v", err)
	}
	return tag
}
