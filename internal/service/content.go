package service

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/sakif/brainbox/internal/apperror"
	"github.com/sakif/brainbox/internal/model"
	"github.com/sakif/brainbox/internal/repository"
)

const (
	MaxTitleLength = 200
	MaxNotesLength = 10000
)

// CreateContentInput carries the fields for a new content item.
type CreateContentInput struct {
	Title         string
	Description   string
	Link          string
	ContentType   model.ContentType
	PersonalNotes string
	ThumbnailURL  string
	TagIDs        []string
}

// UpdateContentInput carries a content edit. Nil TagIDs means "leave the
// tag references unchanged"; an empty non-nil slice clears them.
type UpdateContentInput struct {
	Title         string
	Description   string
	Link          string
	PersonalNotes string
	ThumbnailURL  string
	TagIDs        []string
}

// ContentService handles business logic for saved content items.
//
// Every mutation follows the same shape: the primary content write happens
// first and must succeed; tag-count reconciliation and the user aggregate
// adjustment run afterwards as best-effort bookkeeping that never fails the
// request.
type ContentService struct {
	content   repository.ContentRepository
	tagCounts *TagCountService
	stats     *StatsService
	logger    *slog.Logger
}

func NewContentService(
	content repository.ContentRepository,
	tagCounts *TagCountService,
	stats *StatsService,
	logger *slog.Logger,
) *ContentService {
	return &ContentService{
		content:   content,
		tagCounts: tagCounts,
		stats:     stats,
		logger:    logger,
	}
}

// Create validates and saves a new content item, then runs the follow-up
// bookkeeping: bump the user's content total and reconcile every referenced
// tag.
func (s *ContentService) Create(ctx context.Context, userID string, in CreateContentInput) (*model.Content, error) {
	title := strings.TrimSpace(in.Title)
	if title == "" {
		return nil, apperror.ValidationFailed("title", "title is required")
	}
	if len(title) > MaxTitleLength {
		return nil, apperror.ValidationFailed("title",
			fmt.Sprintf("title must be %d characters or less", MaxTitleLength))
	}
	if !in.ContentType.Valid() {
		return nil, apperror.ValidationFailed("contentType", "unknown content type")
	}
	if len(in.PersonalNotes) > MaxNotesLength {
		return nil, apperror.ValidationFailed("personalNotes",
			fmt.Sprintf("notes must be %d characters or less", MaxNotesLength))
	}

	content := &model.Content{
		UserID:        userID,
		Title:         title,
		Description:   strings.TrimSpace(in.Description),
		Link:          strings.TrimSpace(in.Link),
		ContentType:   in.ContentType,
		PersonalNotes: in.PersonalNotes,
		ThumbnailURL:  strings.TrimSpace(in.ThumbnailURL),
		TagIDs:        dedupeIDs(in.TagIDs),
	}

	if err := s.content.CreateContent(ctx, content); err != nil {
		s.logger.Error("failed to create content",
			slog.String("userId", userID),
			slog.String("error", err.Error()),
		)
		return nil, fmt.Errorf("creating content: %w", err)
	}

	s.bookkeepContentChange(ctx, userID, 1, nil, content.TagIDs)

	s.logger.Info("content created",
		slog.String("userId", userID),
		slog.String("contentId", content.ID),
		slog.Int("tags", len(content.TagIDs)),
	)
	return content, nil
}

// Get retrieves one content item scoped to the user.
func (s *ContentService) Get(ctx context.Context, userID, id string) (*model.Content, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return nil, apperror.ValidationFailed("id", "content ID is required")
	}
	return s.content.GetContentByID(ctx, userID, id)
}

// List retrieves the user's content with pagination.
func (s *ContentService) List(ctx context.Context, userID string, limit, offset int) ([]model.Content, error) {
	if limit <= 0 {
		limit = 20
	}
	if limit > 100 {
		limit = 100
	}
	if offset < 0 {
		offset = 0
	}

	items, err := s.content.ListContent(ctx, userID, repository.ListOptions{Limit: limit, Offset: offset})
	if err != nil {
		s.logger.Error("failed to list content", slog.String("error", err.Error()))
		return nil, fmt.Errorf("listing content: %w", err)
	}
	return items, nil
}

// Update applies an edit. If the tag references changed, every tag in the
// union of the old and new sets gets recounted — any tag whose association
// with this item was added, removed, or kept must converge to the true
// count.
func (s *ContentService) Update(ctx context.Context, userID, id string, in UpdateContentInput) (*model.Content, error) {
	content, err := s.Get(ctx, userID, id)
	if err != nil {
		return nil, err
	}
	oldTagIDs := content.TagIDs

	if title := strings.TrimSpace(in.Title); title != "" {
		if len(title) > MaxTitleLength {
			return nil, apperror.ValidationFailed("title",
				fmt.Sprintf("title must be %d characters or less", MaxTitleLength))
		}
		content.Title = title
	}
	if in.Description != "" {
		content.Description = strings.TrimSpace(in.Description)
	}
	if in.Link != "" {
		content.Link = strings.TrimSpace(in.Link)
	}
	if in.PersonalNotes != "" {
		if len(in.PersonalNotes) > MaxNotesLength {
			return nil, apperror.ValidationFailed("personalNotes",
				fmt.Sprintf("notes must be %d characters or less", MaxNotesLength))
		}
		content.PersonalNotes = in.PersonalNotes
	}
	if in.ThumbnailURL != "" {
		content.ThumbnailURL = strings.TrimSpace(in.ThumbnailURL)
	}
	if in.TagIDs != nil {
		content.TagIDs = dedupeIDs(in.TagIDs)
	}

	if err := s.content.UpdateContent(ctx, content); err != nil {
		s.logger.Error("failed to update content",
			slog.String("contentId", id),
			slog.String("error", err.Error()),
		)
		return nil, fmt.Errorf("updating content: %w", err)
	}

	if in.TagIDs != nil {
		s.bookkeepContentChange(ctx, userID, 0, oldTagIDs, content.TagIDs)
	}

	s.logger.Info("content updated",
		slog.String("userId", userID),
		slog.String("contentId", id),
	)
	return content, nil
}

// Delete removes a content item, decrements the user's content total, and
// recounts every tag the item referenced.
func (s *ContentService) Delete(ctx context.Context, userID, id string) error {
	// Fetch first: we need the tag references for reconciliation, and the
	// consistent not-found error comes from Get.
	content, err := s.Get(ctx, userID, id)
	if err != nil {
		return err
	}

	if err := s.content.DeleteContent(ctx, userID, id); err != nil {
		return err
	}

	s.bookkeepContentChange(ctx, userID, -1, content.TagIDs, nil)

	s.logger.Info("content deleted",
		slog.String("userId", userID),
		slog.String("contentId", id),
	)
	return nil
}

// bookkeepContentChange runs the best-effort follow-up steps after a
// content mutation. Failures are logged (and counted inside the
// reconciler); the primary write is never rolled back.
func (s *ContentService) bookkeepContentChange(ctx context.Context, userID string, delta int, oldTagIDs, newTagIDs []string) {
	if delta != 0 {
		if err := s.stats.UpdateContentCount(ctx, userID, delta); err != nil {
			s.logger.Error("failed to adjust content aggregate",
				slog.String("userId", userID),
				slog.Int("delta", delta),
				slog.String("error", err.Error()),
			)
		}
	}

	if failed := s.tagCounts.UpdateTagCountsOnArrayChange(ctx, userID, oldTagIDs, newTagIDs); failed > 0 {
		s.logger.Warn("some tag counts were left stale",
			slog.String("userId", userID),
			slog.Int("failed", failed),
		)
	}
}
