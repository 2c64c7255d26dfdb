// Package service contains the business logic layer of the application.
//
// The layering follows the usual three-tier shape:
//
//	Handler (HTTP)     → parses requests, writes responses
//	Service (business) → validates, enforces rules, orchestrates
//	Repository (data)  → reads/writes the store
//
// Services receive repository interfaces, never concrete store types, so
// tests inject in-memory fakes and the SQLite backend stays swappable.
//
// A recurring pattern in this package: content and tag mutations do their
// primary write first and run counter bookkeeping afterwards as a
// best-effort follow-up. Bookkeeping failures are logged and counted on a
// metric but never roll back the primary write — the denormalized counters
// are advisory and self-heal on the next successful reconciliation.
package service

import (
	"context"
	"log/slog"
	"strings"
	"sync"

	"github.com/sakif/brainbox/internal/metrics"
	"github.com/sakif/brainbox/internal/repository"
)

// TagCountService keeps each tag's denormalized contentCount consistent
// with the content items that reference it.
//
// The central operation is a recompute-from-source, not an increment: count
// the references, overwrite the counter. That makes it idempotent and
// tolerant of arbitrary prior drift — it always converges to the true count
// as of the read, and it is safe to retry any number of times.
type TagCountService struct {
	content repository.ContentRepository
	tags    repository.TagRepository
	metrics *metrics.Metrics
	logger  *slog.Logger
}

func NewTagCountService(
	content repository.ContentRepository,
	tags repository.TagRepository,
	m *metrics.Metrics,
	logger *slog.Logger,
) *TagCountService {
	return &TagCountService{
		content: content,
		tags:    tags,
		metrics: m,
		logger:  logger,
	}
}

// UpdateTagCount recomputes one tag's contentCount from the content
// collection and overwrites the stored value.
//
// Blank tag ids and missing tags are silent no-ops: callers routinely pass
// ids of tags that were deleted concurrently, and a counter for a tag that
// no longer exists needs no maintenance. Storage errors are returned so the
// caller can decide whether to suppress them (see UpdateMultipleTagCounts).
func (s *TagCountService) UpdateTagCount(ctx context.Context, userID, tagID string) error {
	tagID = strings.TrimSpace(tagID)
	if tagID == "" {
		return nil
	}

	count, err := s.content.CountContentByTag(ctx, userID, tagID)
	if err != nil {
		return err
	}

	if err := s.tags.SetContentCount(ctx, userID, tagID, count); err != nil {
		if isNotFound(err) {
			return nil // tag vanished between mutation and reconcile
		}
		return err
	}
	return nil
}

// UpdateMultipleTagCounts reconciles each id in the list concurrently,
// deduplicated and with blanks dropped. Failures are logged, counted on the
// reconcile-failures metric, and suppressed; the return value is the number
// of tags whose counters may still be stale.
//
// One goroutine per tag is fine here: the set is the tags attached to a
// single content item, a handful at most.
func (s *TagCountService) UpdateMultipleTagCounts(ctx context.Context, userID string, tagIDs []string) int {
	unique := dedupeIDs(tagIDs)
	if len(unique) == 0 {
		return 0
	}

	var (
		wg     sync.WaitGroup
		mu     sync.Mutex
		failed int
	)
	for _, tagID := range unique {
		wg.Add(1)
		go func(tagID string) {
			defer wg.Done()
			if err := s.UpdateTagCount(ctx, userID, tagID); err != nil {
				s.metrics.ReconcileFailures.Inc()
				s.logger.Error("tag count reconciliation failed",
					slog.String("userId", userID),
					slog.String("tagId", tagID),
					slog.String("error", err.Error()),
				)
				mu.Lock()
				failed++
				mu.Unlock()
			}
		}(tagID)
	}
	wg.Wait()

	return failed
}

// UpdateTagCountsOnArrayChange reconciles every tag whose association with
// one content item may have changed: the union of the before and after
// reference sets. Union rather than symmetric difference keeps the logic
// simple at the cost of occasionally recounting an unaffected tag, which is
// free to do because the recompute is idempotent.
func (s *TagCountService) UpdateTagCountsOnArrayChange(ctx context.Context, userID string, oldIDs, newIDs []string) int {
	union := make([]string, 0, len(oldIDs)+len(newIDs))
	union = append(union, oldIDs...)
	union = append(union, newIDs...)
	return s.UpdateMultipleTagCounts(ctx, userID, union)
}

// dedupeIDs returns the unique non-blank ids, preserving first-seen order.
func dedupeIDs(ids []string) []string {
	seen := make(map[string]struct{}, len(ids))
	unique := make([]string, 0, len(ids))
	for _, id := range ids {
		id = strings.TrimSpace(id)
		if id == "" {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		unique = append(unique, id)
	}
	return unique
}
