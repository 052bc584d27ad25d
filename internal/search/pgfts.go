package search

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5/pgtype"
)

// PgFTS implements Searcher using PostgreSQL full-text search as a fallback.
type PgFTS struct {
	db    *sql.DB
	types *pgtype.Map
}

// NewPgFTS creates a PostgreSQL FTS searcher.
func NewPgFTS(db *sql.DB) *PgFTS {
	return &PgFTS{db: db, types: pgtype.NewMap()}
}

// Healthy always returns true; if Postgres is down, the whole app is down.
func (p *PgFTS) Healthy() bool {
	return true
}

// Search runs a UNION ALL over tracks and open custom sync requests using
// plainto_tsquery and ts_rank, with ts_headline for brief snippets.
func (p *PgFTS) Search(ctx context.Context, q Query) ([]Result, int, error) {
	if strings.TrimSpace(q.Text) == "" {
		return nil, 0, nil
	}

	limit := q.Limit
	if limit <= 0 {
		limit = 20
	}
	offset := q.Offset
	if offset < 0 {
		offset = 0
	}

	tsQuery := "plainto_tsquery('english', $1)"
	var subQueries []string

	if q.FilterType == "" || q.FilterType == ResultTrack {
		subQueries = append(subQueries, fmt.Sprintf(`
			SELECT 'track'::text AS type, t.id::text AS id, t.title,
				t.artist AS snippet,
				''::text AS status,
				ts_rank(t.fts, %s) AS rank
			FROM tracks t
			WHERE t.fts @@ %s`, tsQuery, tsQuery))
	}

	if q.FilterType == "" || q.FilterType == ResultCustomSync {
		subQueries = append(subQueries, fmt.Sprintf(`
			SELECT 'custom_sync'::text AS type, r.id::text AS id, r.project_title AS title,
				ts_headline('english', coalesce(r.project_description, ''), %s, 'MaxFragments=1,MaxWords=30') AS snippet,
				r.status,
				ts_rank(r.fts, %s) AS rank
			FROM custom_sync_requests r
			WHERE r.fts @@ %s AND r.status = 'open'`, tsQuery, tsQuery, tsQuery))
	}

	if len(subQueries) == 0 {
		return nil, 0, nil
	}
	union := strings.Join(subQueries, " UNION ALL ")

	var total int
	if err := p.db.QueryRowContext(ctx, fmt.Sprintf("SELECT count(*) FROM (%s) sub", union), q.Text).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("pgfts count: %w", err)
	}

	rows, err := p.db.QueryContext(ctx, fmt.Sprintf(`SELECT type, id, title, snippet, status
		FROM (%s) sub
		ORDER BY rank DESC
		LIMIT %d OFFSET %d`, union, limit, offset), q.Text)
	if err != nil {
		return nil, 0, fmt.Errorf("pgfts query: %w", err)
	}
	defer rows.Close()

	var results []Result
	for rows.Next() {
		var r Result
		var typ string
		if err := rows.Scan(&typ, &r.ID, &r.Title, &r.Snippet, &r.Status); err != nil {
			return nil, 0, fmt.Errorf("pgfts scan: %w", err)
		}
		r.Type = ResultType(typ)
		results = append(results, r)
	}
	return results, total, rows.Err()
}

// LoadAllRecords returns every track and open brief for full reindexing.
func (p *PgFTS) LoadAllRecords(ctx context.Context) ([]TrackRecord, []BriefRecord, error) {
	trackRows, err := p.db.QueryContext(ctx, `
		SELECT id::text, title, artist, producer_id::text, genres, moods
		FROM tracks
	`)
	if err != nil {
		return nil, nil, fmt.Errorf("load tracks: %w", err)
	}
	defer trackRows.Close()

	tracks := make([]TrackRecord, 0)
	for trackRows.Next() {
		var t TrackRecord
		if err := trackRows.Scan(&t.ID, &t.Title, &t.Artist, &t.ProducerID,
			p.types.SQLScanner(&t.Genres), p.types.SQLScanner(&t.Moods)); err != nil {
			return nil, nil, fmt.Errorf("scan track: %w", err)
		}
		tracks = append(tracks, t)
	}
	if err := trackRows.Err(); err != nil {
		return nil, nil, fmt.Errorf("iterate tracks: %w", err)
	}

	briefRows, err := p.db.QueryContext(ctx, `
		SELECT id::text, project_title, project_description, genre, status, sync_fee::float8
		FROM custom_sync_requests
		WHERE status = 'open'
	`)
	if err != nil {
		return nil, nil, fmt.Errorf("load briefs: %w", err)
	}
	defer briefRows.Close()

	briefs := make([]BriefRecord, 0)
	for briefRows.Next() {
		var b BriefRecord
		if err := briefRows.Scan(&b.ID, &b.Title, &b.Description, &b.Genre, &b.Status, &b.SyncFee); err != nil {
			return nil, nil, fmt.Errorf("scan brief: %w", err)
		}
		briefs = append(briefs, b)
	}
	if err := briefRows.Err(); err != nil {
		return nil, nil, fmt.Errorf("iterate briefs: %w", err)
	}
	return tracks, briefs, nil
}
