package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/rs/xid"
	"github.com/sakif/brainbox/internal/apperror"
	"github.com/sakif/brainbox/internal/model"
	"github.com/sakif/brainbox/internal/repository"
)

// Compile-time interface check.
var _ repository.ContentRepository = (*DB)(nil)

// CreateContent inserts a new content item and its tag references in one
// transaction. The caller's struct gets the generated ID and timestamps.
func (db *DB) CreateContent(ctx context.Context, content *model.Content) error {
	content.ID = xid.New().String()

	now := time.Now()
	content.CreatedAt = now
	content.UpdatedAt = now

	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("sqlite: beginning transaction: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx,
		`INSERT INTO content (id, user_id, title, description, link, content_type,
		                      personal_notes, thumbnail_url, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		content.ID,
		content.UserID,
		content.Title,
		content.Description,
		content.Link,
		content.ContentType,
		content.PersonalNotes,
		content.ThumbnailURL,
		content.CreatedAt,
		content.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("sqlite: creating content: %w", err)
	}

	if err := insertTagRefs(ctx, tx, content); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("sqlite: committing content create: %w", err)
	}
	return nil
}

// GetContentByID retrieves a single content item with its tag references.
// The userID scope means one user can never read another's content.
func (db *DB) GetContentByID(ctx context.Context, userID, id string) (*model.Content, error) {
	var c model.Content
	err := db.conn.QueryRowContext(ctx,
		`SELECT id, user_id, title, description, link, content_type,
		        personal_notes, thumbnail_url, created_at, updated_at
		 FROM content
		 WHERE id = ? AND user_id = ?`,
		id, userID,
	).Scan(
		&c.ID, &c.UserID, &c.Title, &c.Description, &c.Link, &c.ContentType,
		&c.PersonalNotes, &c.ThumbnailURL, &c.CreatedAt, &c.UpdatedAt,
	)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, apperror.NotFound("content", id)
		}
		return nil, fmt.Errorf("sqlite: getting content %s: %w", id, err)
	}

	tagIDs, err := db.tagRefsFor(ctx, []string{c.ID})
	if err != nil {
		return nil, err
	}
	c.TagIDs = tagIDs[c.ID]
	if c.TagIDs == nil {
		c.TagIDs = []string{}
	}

	return &c, nil
}

// ListContent retrieves the user's content items, newest first, with pagination.
func (db *DB) ListContent(ctx context.Context, userID string, opts repository.ListOptions) ([]model.Content, error) {
	limit := opts.Limit
	if limit <= 0 {
		limit = 20
	}
	if limit > 100 {
		limit = 100
	}
	offset := opts.Offset
	if offset < 0 {
		offset = 0
	}

	rows, err := db.conn.QueryContext(ctx,
		`SELECT id, user_id, title, description, link, content_type,
		        personal_notes, thumbnail_url, created_at, updated_at
		 FROM content
		 WHERE user_id = ?
		 ORDER BY created_at DESC
		 LIMIT ? OFFSET ?`,
		userID, limit, offset,
	)
	if err != nil {
		return nil, fmt.Errorf("sqlite: listing content: %w", err)
	}
	defer rows.Close()

	items := make([]model.Content, 0, limit)
	ids := make([]string, 0, limit)
	for rows.Next() {
		var c model.Content
		if err := rows.Scan(
			&c.ID, &c.UserID, &c.Title, &c.Description, &c.Link, &c.ContentType,
			&c.PersonalNotes, &c.ThumbnailURL, &c.CreatedAt, &c.UpdatedAt,
		); err != nil {
			return nil, fmt.Errorf("sqlite: scanning content row: %w", err)
		}
		c.TagIDs = []string{}
		items = append(items, c)
		ids = append(ids, c.ID)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlite: iterating content: %w", err)
	}

	// One batched query for all tag references instead of one per item.
	refs, err := db.tagRefsFor(ctx, ids)
	if err != nil {
		return nil, err
	}
	for i := range items {
		if tagIDs, ok := refs[items[i].ID]; ok {
			items[i].TagIDs = tagIDs
		}
	}

	return items, nil
}

// UpdateContent replaces the content row and rewrites its tag references in one
// transaction. Delete-and-reinsert of the join rows is simpler than diffing
// and the reference sets are tiny.
func (db *DB) UpdateContent(ctx context.Context, content *model.Content) error {
	content.UpdatedAt = time.Now()

	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("sqlite: beginning transaction: %w", err)
	}
	defer tx.Rollback()

	result, err := tx.ExecContext(ctx,
		`UPDATE content
		 SET title = ?, description = ?, link = ?, content_type = ?,
		     personal_notes = ?, thumbnail_url = ?, updated_at = ?
		 WHERE id = ? AND user_id = ?`,
		content.Title,
		content.Description,
		content.Link,
		content.ContentType,
		content.PersonalNotes,
		content.ThumbnailURL,
		content.UpdatedAt,
		content.ID,
		content.UserID,
	)
	if err != nil {
		return fmt.Errorf("sqlite: updating content %s: %w", content.ID, err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("sqlite: checking rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return apperror.NotFound("content", content.ID)
	}

	if _, err := tx.ExecContext(ctx,
		`DELETE FROM content_tags WHERE content_id = ?`, content.ID,
	); err != nil {
		return fmt.Errorf("sqlite: clearing tag references: %w", err)
	}
	if err := insertTagRefs(ctx, tx, content); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("sqlite: committing content update: %w", err)
	}
	return nil
}

// DeleteContent removes a content item; its join rows cascade.
func (db *DB) DeleteContent(ctx context.Context, userID, id string) error {
	result, err := db.conn.ExecContext(ctx,
		`DELETE FROM content WHERE id = ? AND user_id = ?`,
		id, userID,
	)
	if err != nil {
		return fmt.Errorf("sqlite: deleting content %s: %w", id, err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("sqlite: checking rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return apperror.NotFound("content", id)
	}
	return nil
}

// CountContentByTag counts the user's content items referencing the given tag —
// the authoritative source the tag-count reconciler recomputes from.
func (db *DB) CountContentByTag(ctx context.Context, userID, tagID string) (int, error) {
	var count int
	err := db.conn.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM content_tags WHERE user_id = ? AND tag_id = ?`,
		userID, tagID,
	).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("sqlite: counting content for tag %s: %w", tagID, err)
	}
	return count, nil
}

// insertTagRefs writes one join row per referenced tag. INSERT OR IGNORE
// tolerates duplicate ids in the input set.
func insertTagRefs(ctx context.Context, tx *sql.Tx, content *model.Content) error {
	for _, tagID := range content.TagIDs {
		if strings.TrimSpace(tagID) == "" {
			continue
		}
		if _, err := tx.ExecContext(ctx,
			`INSERT OR IGNORE INTO content_tags (user_id, content_id, tag_id)
			 VALUES (?, ?, ?)`,
			content.UserID, content.ID, tagID,
		); err != nil {
			return fmt.Errorf("sqlite: inserting tag reference %s: %w", tagID, err)
		}
	}
	return nil
}

// tagRefsFor loads tag references for the given content ids in one query,
// returning a contentID → tagIDs map.
func (db *DB) tagRefsFor(ctx context.Context, contentIDs []string) (map[string][]string, error) {
	refs := make(map[string][]string, len(contentIDs))
	if len(contentIDs) == 0 {
		return refs, nil
	}

	placeholders := strings.Repeat("?,", len(contentIDs))
	placeholders = placeholders[:len(placeholders)-1]
	args := make([]any, len(contentIDs))
	for i, id := range contentIDs {
		args[i] = id
	}

	rows, err := db.conn.QueryContext(ctx,
		`SELECT content_id, tag_id FROM content_tags
		 WHERE content_id IN (`+placeholders+`)
		 ORDER BY tag_id`,
		args...,
	)
	if err != nil {
		return nil, fmt.Errorf("sqlite: loading tag references: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var contentID, tagID string
		if err := rows.Scan(&contentID, &tagID); err != nil {
			return nil, fmt.Errorf("sqlite: scanning tag reference: %w", err)
		}
		refs[contentID] = append(refs[contentID], tagID)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlite: iterating tag references: %w", err)
	}

	return refs, nil
}
