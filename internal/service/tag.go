package service

import (
	"context"
	"fmt"
	"hash/fnv"
	"log/slog"
	"regexp"
	"strings"

	"github.com/sakif/brainbox/internal/apperror"
	"github.com/sakif/brainbox/internal/model"
	"github.com/sakif/brainbox/internal/repository"
)

const MaxTagNameLength = 50

// defaultTagColors is the palette a new tag's color is picked from when the
// caller doesn't choose one. The pick is a hash of the slug, so the same
// tag name always lands on the same color.
var defaultTagColors = []string{
	"#3B82F6", "#10B981", "#F59E0B", "#EF4444",
	"#8B5CF6", "#EC4899", "#14B8A6", "#F97316",
}

var hexColorPattern = regexp.MustCompile(`^#[0-9a-fA-F]{6}$`)

// TagService handles business logic for user-defined tags.
type TagService struct {
	tags      repository.TagRepository
	tagCounts *TagCountService
	stats     *StatsService
	logger    *slog.Logger
}

func NewTagService(
	tags repository.TagRepository,
	tagCounts *TagCountService,
	stats *StatsService,
	logger *slog.Logger,
) *TagService {
	return &TagService{
		tags:      tags,
		tagCounts: tagCounts,
		stats:     stats,
		logger:    logger,
	}
}

// SlugifyTagName derives a tag's id from its name: lowercased, with runs of
// anything that isn't a letter or digit collapsed to single hyphens.
// "Machine Learning!" → "machine-learning". Deterministic, so the same name
// always resolves to the same tag for a given user.
func SlugifyTagName(name string) string {
	var b strings.Builder
	b.Grow(len(name))

	lastHyphen := true // suppress a leading hyphen
	for _, r := range strings.ToLower(strings.TrimSpace(name)) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			b.WriteRune(r)
			lastHyphen = false
		default:
			if !lastHyphen {
				b.WriteByte('-')
				lastHyphen = true
			}
		}
	}

	return strings.TrimSuffix(b.String(), "-")
}

// Create makes a new tag. The id is derived from the name, so creating the
// same name twice is a conflict surfaced by the store's uniqueness
// constraint, not a second tag.
func (s *TagService) Create(ctx context.Context, userID, name, colorCode, description string) (*model.Tag, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, apperror.ValidationFailed("tagName", "tag name is required")
	}
	if len(name) > MaxTagNameLength {
		return nil, apperror.ValidationFailed("tagName",
			fmt.Sprintf("tag name must be %d characters or less", MaxTagNameLength))
	}

	id := SlugifyTagName(name)
	if id == "" {
		return nil, apperror.ValidationFailed("tagName", "tag name must contain letters or digits")
	}

	if colorCode == "" {
		colorCode = colorForSlug(id)
	} else if !hexColorPattern.MatchString(colorCode) {
		return nil, apperror.ValidationFailed("colorCode", "color must be a hex code like #3B82F6")
	}

	tag := &model.Tag{
		ID:          id,
		UserID:      userID,
		TagName:     name,
		ColorCode:   colorCode,
		Description: strings.TrimSpace(description),
	}
	if err := s.tags.CreateTag(ctx, tag); err != nil {
		return nil, err
	}

	// Best-effort aggregate bump; the tag itself is already committed.
	if err := s.stats.UpdateTagsCount(ctx, userID, 1); err != nil {
		s.logger.Error("failed to bump tag aggregate",
			slog.String("userId", userID),
			slog.String("error", err.Error()),
		)
	}

	// Content can reference this slug before the tag exists (saves carry
	// arbitrary tag ids). Recompute the counter from source so the new tag
	// picks up any such references instead of starting out stale forever.
	if err := s.tagCounts.UpdateTagCount(ctx, userID, tag.ID); err != nil {
		s.logger.Error("failed to reconcile new tag count",
			slog.String("userId", userID),
			slog.String("tagId", tag.ID),
			slog.String("error", err.Error()),
		)
	} else if fresh, err := s.tags.GetTagByID(ctx, userID, tag.ID); err == nil {
		tag.ContentCount = fresh.ContentCount
	}

	s.logger.Info("tag created",
		slog.String("userId", userID),
		slog.String("tagId", tag.ID),
	)
	return tag, nil
}

// Ensure returns the tag for the given name, creating it if absent. Used by
// the extension save flow, which sends tag names rather than ids.
func (s *TagService) Ensure(ctx context.Context, userID, name string) (*model.Tag, error) {
	id := SlugifyTagName(name)
	if id == "" {
		return nil, apperror.ValidationFailed("tagName", "tag name must contain letters or digits")
	}

	tag, err := s.tags.GetTagByID(ctx, userID, id)
	if err == nil {
		return tag, nil
	}
	if !isNotFound(err) {
		return nil, err
	}

	return s.Create(ctx, userID, name, "", "")
}

func (s *TagService) Get(ctx context.Context, userID, id string) (*model.Tag, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return nil, apperror.ValidationFailed("id", "tag ID is required")
	}
	return s.tags.GetTagByID(ctx, userID, id)
}

func (s *TagService) List(ctx context.Context, userID string) ([]model.Tag, error) {
	tags, err := s.tags.ListTags(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("listing tags: %w", err)
	}
	return tags, nil
}

// Update changes a tag's color and/or description. The name (and therefore
// the id) is immutable — renaming would break the deterministic id mapping.
// Empty inputs mean "don't change".
func (s *TagService) Update(ctx context.Context, userID, id, colorCode, description string) (*model.Tag, error) {
	tag, err := s.Get(ctx, userID, id)
	if err != nil {
		return nil, err
	}

	if colorCode != "" {
		if !hexColorPattern.MatchString(colorCode) {
			return nil, apperror.ValidationFailed("colorCode", "color must be a hex code like #3B82F6")
		}
		tag.ColorCode = colorCode
	}
	if description != "" {
		tag.Description = strings.TrimSpace(description)
	}

	if err := s.tags.UpdateTag(ctx, tag); err != nil {
		return nil, err
	}
	return tag, nil
}

// Delete removes a tag and every content reference to it, then decrements
// the user's tag aggregate. No reconciliation is needed — the tag's counter
// disappears with the tag, and other tags' counts are unaffected.
func (s *TagService) Delete(ctx context.Context, userID, id string) error {
	id = strings.TrimSpace(id)
	if id == "" {
		return apperror.ValidationFailed("id", "tag ID is required")
	}

	if err := s.tags.DeleteTag(ctx, userID, id); err != nil {
		return err
	}

	if err := s.stats.UpdateTagsCount(ctx, userID, -1); err != nil {
		s.logger.Error("failed to decrement tag aggregate",
			slog.String("userId", userID),
			slog.String("error", err.Error()),
		)
	}

	s.logger.Info("tag deleted",
		slog.String("userId", userID),
		slog.String("tagId", id),
	)
	return nil
}

func colorForSlug(slug string) string {
	h := fnv.New32a()
	h.Write([]byte(slug))
	return defaultTagColors[h.Sum32()%uint32(len(defaultTagColors))]
}
