package service

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/sakif/brainbox/internal/apperror"
	"github.com/sakif/brainbox/internal/model"
	"github.com/sakif/brainbox/internal/repository"
)

// StatsService maintains the per-user aggregate totals (totalContent,
// totalTags) shown on the dashboard.
//
// These counters are advisory, display-only values: adjustments are clamped
// at zero, last-write-wins under concurrency, and a missing aggregate row
// is a no-op (the signup flow owns initialization). Nothing here may ever
// be used for access control or quota enforcement.
type StatsService struct {
	stats  repository.StatsRepository
	logger *slog.Logger
}

func NewStatsService(stats repository.StatsRepository, logger *slog.Logger) *StatsService {
	return &StatsService{stats: stats, logger: logger}
}

// Init creates the zeroed aggregate row for a new user.
func (s *StatsService) Init(ctx context.Context, userID string) error {
	if err := s.stats.InitStats(ctx, userID); err != nil {
		return fmt.Errorf("initializing stats: %w", err)
	}
	return nil
}

// Get returns the user's aggregate totals. A user whose row was never
// initialized gets zeroed counters rather than a not-found error.
func (s *StatsService) Get(ctx context.Context, userID string) (*model.UserStats, error) {
	stats, err := s.stats.GetStats(ctx, userID)
	if isNotFound(err) {
		return &model.UserStats{UserID: userID}, nil
	}
	if err != nil {
		return nil, err
	}
	return stats, nil
}

// UpdateContentCount applies a signed delta to totalContent: +1 on create,
// -1 on delete, or a larger magnitude for bulk operations. The stored value
// never goes below zero regardless of the delta.
func (s *StatsService) UpdateContentCount(ctx context.Context, userID string, delta int) error {
	if userID == "" {
		return apperror.ValidationFailed("userId", "user ID is required")
	}
	if err := s.stats.AdjustContentCount(ctx, userID, delta); err != nil {
		return fmt.Errorf("adjusting content count: %w", err)
	}
	return nil
}

// UpdateTagsCount is UpdateContentCount for the totalTags counter.
func (s *StatsService) UpdateTagsCount(ctx context.Context, userID string, delta int) error {
	if userID == "" {
		return apperror.ValidationFailed("userId", "user ID is required")
	}
	if err := s.stats.AdjustTagCount(ctx, userID, delta); err != nil {
		return fmt.Errorf("adjusting tag count: %w", err)
	}
	return nil
}
