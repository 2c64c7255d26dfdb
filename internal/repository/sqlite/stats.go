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

var _ repository.StatsRepository = (*DB)(nil)

// InitStats creates the zeroed aggregate row. INSERT OR IGNORE makes it
// safe to call from every signup path.
func (db *DB) InitStats(ctx context.Context, userID string) error {
	now := time.Now()
	_, err := db.conn.ExecContext(ctx,
		`INSERT OR IGNORE INTO user_stats (user_id, total_content, total_tags, created_at, updated_at)
		 VALUES (?, 0, 0, ?, ?)`,
		userID, now, now,
	)
	if err != nil {
		return fmt.Errorf("sqlite: initializing user stats: %w", err)
	}
	return nil
}

func (db *DB) GetStats(ctx context.Context, userID string) (*model.UserStats, error) {
	var s model.UserStats
	err := db.conn.QueryRowContext(ctx,
		`SELECT user_id, total_content, total_tags, created_at, updated_at
		 FROM user_stats WHERE user_id = ?`,
		userID,
	).Scan(&s.UserID, &s.TotalContent, &s.TotalTags, &s.CreatedAt, &s.UpdatedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, apperror.NotFound("user stats", userID)
		}
		return nil, fmt.Errorf("sqlite: getting user stats: %w", err)
	}
	return &s, nil
}

// AdjustContentCount applies a signed delta, clamped at zero. The clamp
// lives in the UPDATE itself (MAX(0, ...)) so concurrent adjustments cannot
// drive the counter negative between a read and a write. A missing
// aggregate row is a silent no-op — the signup flow owns initialization.
func (db *DB) AdjustContentCount(ctx context.Context, userID string, delta int) error {
	return db.adjustStat(ctx, "total_content", userID, delta)
}

// AdjustTagCount is AdjustContentCount for the totalTags counter.
func (db *DB) AdjustTagCount(ctx context.Context, userID string, delta int) error {
	return db.adjustStat(ctx, "total_tags", userID, delta)
}

func (db *DB) adjustStat(ctx context.Context, column, userID string, delta int) error {
	// column is one of two compile-time constants, never user input.
	_, err := db.conn.ExecContext(ctx,
		`UPDATE user_stats SET `+column+` = MAX(0, `+column+` + ?), updated_at = ?
		 WHERE user_id = ?`,
		delta, time.Now(), userID,
	)
	if err != nil {
		return fmt.Errorf("sqlite: adjusting %s: %w", column, err)
	}
	return nil
}
