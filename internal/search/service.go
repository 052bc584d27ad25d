package search

import (
	"context"
	"log"
)

// Service is the facade that tries Meilisearch first and falls back to PG FTS.
type Service struct {
	meili *Meili
	pgfts *PgFTS
}

// NewService creates a search service. meili may be nil if Meilisearch is not configured.
func NewService(meili *Meili, pgfts *PgFTS) *Service {
	return &Service{meili: meili, pgfts: pgfts}
}

// Search tries Meilisearch if healthy, otherwise falls back to PG FTS.
func (s *Service) Search(ctx context.Context, q Query) Response {
	if s.meili != nil && s.meili.Healthy() {
		results, total, err := s.meili.Search(q)
		if err == nil {
			return Response{Results: openOnly(nonNil(results)), Total: total, Query: q.Text}
		}
		log.Printf("search: meilisearch error, falling back to pgfts: %v", err)
	}

	if s.pgfts == nil {
		return Response{Results: []Result{}, Query: q.Text}
	}
	results, total, err := s.pgfts.Search(ctx, q)
	if err != nil {
		log.Printf("search: pgfts error: %v", err)
		return Response{Results: []Result{}, Total: 0, Query: q.Text}
	}
	return Response{Results: openOnly(nonNil(results)), Total: total, Query: q.Text}
}

// IndexBrief indexes a custom sync request. Briefs that are no longer open
// are removed instead, so producers only find briefs they can submit to.
func (s *Service) IndexBrief(b BriefRecord) {
	if s.meili == nil || !s.meili.Healthy() {
		return
	}
	go func() {
		var err error
		if b.Status == briefOpen {
			err = s.meili.IndexBriefs([]BriefRecord{b})
		} else {
			err = s.meili.DeleteBrief(b.ID)
		}
		if err != nil {
			log.Printf("search: index brief %s: %v", b.ID, err)
		}
	}()
}

// ReindexAllFromPG reindexes all searchable entities from PostgreSQL into Meilisearch.
func (s *Service) ReindexAllFromPG(ctx context.Context) {
	if s.meili == nil || !s.meili.Healthy() || s.pgfts == nil {
		return
	}
	tracks, briefs, err := s.pgfts.LoadAllRecords(ctx)
	if err != nil {
		log.Printf("search: reindex load failed: %v", err)
		return
	}
	if err := s.meili.IndexTracks(tracks); err != nil {
		log.Printf("search: reindex tracks: %v", err)
	}
	if err := s.meili.IndexBriefs(briefs); err != nil {
		log.Printf("search: reindex briefs: %v", err)
	}
}

// Close stops the Meilisearch health loop.
func (s *Service) Close() {
	if s.meili != nil {
		s.meili.Close()
	}
}

func nonNil(r []Result) []Result {
	if r == nil {
		return []Result{}
	}
	return r
}

func openOnly(results []Result) []Result {
	filtered := make([]Result, 0, len(results))
	for _, result := range results {
		if result.Type == ResultCustomSync && result.Status != briefOpen {
			continue
		}
		filtered = append(filtered, result)
	}
	return filtered
}
