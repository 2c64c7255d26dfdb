package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/sakif/brainbox/internal/apperror"
	"github.com/sakif/brainbox/internal/model"
	"github.com/sakif/brainbox/internal/repository"
)

var _ repository.TagRepository = (*DB)(nil)

// CreateTag inserts a new tag. The ID must already be set by the service
// (it is derived from the tag name, not generated here). A second create
// with the same name/id for the same user is a conflict.
func (db *DB) CreateTag(ctx context.Context, tag *model.Tag) error {
	now := time.Now()
	tag.CreatedAt = now
	tag.UpdatedAt = now

	_, err := db.conn.ExecContext(ctx,
		`INSERT INTO tags (id, user_id, tag_name, color_code, description,
		                   content_count, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		tag.ID,
		tag.UserID,
		tag.TagName,
		tag.ColorCode,
		tag.Description,
		tag.ContentCount,
		tag.CreatedAt,
		tag.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return apperror.Conflict("tag", fmt.Sprintf("tag %q already exists", tag.TagName))
		}
		return fmt.Errorf("sqlite: creating tag: %w", err)
	}
	return nil
}

func (db *DB) GetTagByID(ctx context.Context, userID, id string) (*model.Tag, error) {
	var t model.Tag
	err := db.conn.QueryRowContext(ctx,
		`SELECT id, user_id, tag_name, color_code, description,
		        content_count, created_at, updated_at
		 FROM tags
		 WHERE user_id = ? AND id = ?`,
		userID, id,
	).Scan(
		&t.ID, &t.UserID, &t.TagName, &t.ColorCode, &t.Description,
		&t.ContentCount, &t.CreatedAt, &t.UpdatedAt,
	)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, apperror.NotFound("tag", id)
		}
		return nil, fmt.Errorf("sqlite: getting tag %s: %w", id, err)
	}
	return &t, nil
}

func (db *DB) ListTags(ctx context.Context, userID string) ([]model.Tag, error) {
	rows, err := db.conn.QueryContext(ctx,
		`SELECT id, user_id, tag_name, color_code, description,
		        content_count, created_at, updated_at
		 FROM tags
		 WHERE user_id = ?
		 ORDER BY tag_name`,
		userID,
	)
	if err != nil {
		return nil, fmt.Errorf("sqlite: listing tags: %w", err)
	}
	defer rows.Close()

	tags := make([]model.Tag, 0, 16)
	for rows.Next() {
		var t model.Tag
		if err := rows.Scan(
			&t.ID, &t.UserID, &t.TagName, &t.ColorCode, &t.Description,
			&t.ContentCount, &t.CreatedAt, &t.UpdatedAt,
		); err != nil {
			return nil, fmt.Errorf("sqlite: scanning tag row: %w", err)
		}
		tags = append(tags, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlite: iterating tags: %w", err)
	}
	return tags, nil
}

// UpdateTag rewrites the mutable fields (color, description). The tag name
// and id are immutable — renaming would change the derived id.
func (db *DB) UpdateTag(ctx context.Context, tag *model.Tag) error {
	tag.UpdatedAt = time.Now()

	result, err := db.conn.ExecContext(ctx,
		`UPDATE tags
		 SET color_code = ?, description = ?, updated_at = ?
		 WHERE user_id = ? AND id = ?`,
		tag.ColorCode,
		tag.Description,
		tag.UpdatedAt,
		tag.UserID,
		tag.ID,
	)
	if err != nil {
		return fmt.Errorf("sqlite: updating tag %s: %w", tag.ID, err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("sqlite: checking rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return apperror.NotFound("tag", tag.ID)
	}
	return nil
}

// DeleteTag removes the tag and every content reference to it, in one
// transaction so no content is left pointing at a tag that is gone.
func (db *DB) DeleteTag(ctx context.Context, userID, id string) error {
	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("sqlite: beginning transaction: %w", err)
	}
	defer tx.Rollback()

	result, err := tx.ExecContext(ctx,
		`DELETE FROM tags WHERE user_id = ? AND id = ?`,
		userID, id,
	)
	if err != nil {
		return fmt.Errorf("sqlite: deleting tag %s: %w", id, err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("sqlite: checking rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return apperror.NotFound("tag", id)
	}

	if _, err := tx.ExecContext(ctx,
		`DELETE FROM content_tags WHERE user_id = ? AND tag_id = ?`,
		userID, id,
	); err != nil {
		return fmt.Errorf("sqlite: removing tag references %s: %w", id, err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("sqlite: committing tag delete: %w", err)
	}
	return nil
}

// SetContentCount overwrites the denormalized counter with a freshly
// recomputed value. RowsAffected distinguishes "tag gone" from success so
// the reconciler can treat the former as a silent no-op.
func (db *DB) SetContentCount(ctx context.Context, userID, id string, count int) error {
	result, err := db.conn.ExecContext(ctx,
		`UPDATE tags SET content_count = ?, updated_at = ?
		 WHERE user_id = ? AND id = ?`,
		count, time.Now(), userID, id,
	)
	if err != nil {
		return fmt.Errorf("sqlite: setting content count for tag %s: %w", id, err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("sqlite: checking rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return apperror.NotFound("tag", id)
	}
	return nil
}
