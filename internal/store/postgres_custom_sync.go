package store

import (
	"context"
	"fmt"
)

const customSyncSelect = `
	SELECT r.id, r.client_id, c.display_name, r.project_title, r.project_description,
		r.sync_fee, r.end_date, r.genre, r.status,
		(SELECT COUNT(*) FROM sync_submissions s WHERE s.request_id = r.id),
		r.created_at, r.updated_at
	FROM custom_sync_requests r
	JOIN profiles c ON c.id = r.client_id
`

func scanCustomSyncRequest(row interface{ Scan(...any) error }) (CustomSyncRequest, error) {
	var r CustomSyncRequest
	err := row.Scan(
		&r.ID,
		&r.ClientID,
		&r.ClientName,
		&r.ProjectTitle,
		&r.ProjectDescription,
		&r.SyncFee,
		&r.EndDate,
		&r.Genre,
		&r.Status,
		&r.SubmissionCount,
		&r.CreatedAt,
		&r.UpdatedAt,
	)
	return r, err
}

func (s *PostgresStore) GetCustomSyncRequest(ctx context.Context, id string) (CustomSyncRequest, error) {
	return scanCustomSyncRequest(s.db.QueryRowContext(ctx, customSyncSelect+` WHERE r.id=$1`, id))
}

// ListCustomSyncRequests lists the briefs of clientID, or every open brief
// when clientID is empty.
func (s *PostgresStore) ListCustomSyncRequests(ctx context.Context, clientID string) ([]CustomSyncRequest, error) {
	query := customSyncSelect + ` WHERE r.status = 'open' ORDER BY r.end_date ASC`
	args := []any{}
	if clientID != "" {
		query = customSyncSelect + ` WHERE r.client_id = $1 ORDER BY r.created_at DESC`
		args = append(args, clientID)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list custom sync requests: %w", err)
	}
	defer rows.Close()

	items := []CustomSyncRequest{}
	for rows.Next() {
		item, err := scanCustomSyncRequest(rows)
		if err != nil {
			return nil, fmt.Errorf("scan custom sync request: %w", err)
		}
		items = append(items, item)
	}
	return items, rows.Err()
}

func (s *PostgresStore) InsertCustomSyncRequest(ctx context.Context, r CustomSyncRequest) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO custom_sync_requests (id, client_id, project_title, project_description, sync_fee, end_date, genre, status)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`, r.ID, r.ClientID, r.ProjectTitle, r.ProjectDescription, r.SyncFee, r.EndDate, r.Genre, r.Status)
	if err != nil {
		return fmt.Errorf("insert custom sync request: %w", translate(err))
	}
	return nil
}

func (s *PostgresStore) UpdateCustomSyncRequestStatus(ctx context.Context, id, status string) error {
	result, err := s.db.ExecContext(ctx, `UPDATE custom_sync_requests SET status=$2, updated_at=NOW() WHERE id=$1`, id, status)
	if err != nil {
		return fmt.Errorf("update custom sync request status: %w", translate(err))
	}
	return requireRow(result)
}

func (s *PostgresStore) ListSubmissions(ctx context.Context, requestID string) ([]SyncSubmission, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT s.id, s.request_id, s.producer_id, p.display_name, s.track_id, t.title, s.notes, s.status, s.created_at
		FROM sync_submissions s
		JOIN profiles p ON p.id = s.producer_id
		JOIN tracks t ON t.id = s.track_id
		WHERE s.request_id = $1
		ORDER BY s.created_at ASC
	`, requestID)
	if err != nil {
		return nil, fmt.Errorf("list submissions: %w", err)
	}
	defer rows.Close()

	items := []SyncSubmission{}
	for rows.Next() {
		var item SyncSubmission
		if err := rows.Scan(
			&item.ID,
			&item.RequestID,
			&item.ProducerID,
			&item.ProducerName,
			&item.TrackID,
			&item.TrackTitle,
			&item.Notes,
			&item.Status,
			&item.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan submission: %w", err)
		}
		items = append(items, item)
	}
	return items, rows.Err()
}

func (s *PostgresStore) GetSubmission(ctx context.Context, submissionID string) (SyncSubmission, error) {
	var item SyncSubmission
	err := s.db.QueryRowContext(ctx, `
		SELECT s.id, s.request_id, s.producer_id, p.display_name, s.track_id, t.title, s.notes, s.status, s.created_at
		FROM sync_submissions s
		JOIN profiles p ON p.id = s.producer_id
		JOIN tracks t ON t.id = s.track_id
		WHERE s.id = $1
	`, submissionID).Scan(
		&item.ID,
		&item.RequestID,
		&item.ProducerID,
		&item.ProducerName,
		&item.TrackID,
		&item.TrackTitle,
		&item.Notes,
		&item.Status,
		&item.CreatedAt,
	)
	if err != nil {
		return SyncSubmission{}, err
	}
	return item, nil
}

func (s *PostgresStore) InsertSubmission(ctx context.Context, item SyncSubmission) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO sync_submissions (id, request_id, producer_id, track_id, notes, status)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, item.ID, item.RequestID, item.ProducerID, item.TrackID, item.Notes, item.Status)
	if err != nil {
		return fmt.Errorf("insert submission: %w", translate(err))
	}
	return nil
}

func (s *PostgresStore) UpdateSubmissionStatus(ctx context.Context, submissionID, status string) error {
	result, err := s.db.ExecContext(ctx, `UPDATE sync_submissions SET status=$2 WHERE id=$1`, submissionID, status)
	if err != nil {
		return fmt.Errorf("update submission status: %w", translate(err))
	}
	return requireRow(result)
}
