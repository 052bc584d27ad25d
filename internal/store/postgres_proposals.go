package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
)

const proposalSelect = `
	SELECT p.id, p.track_id, t.title, p.client_id, c.display_name, c.email,
		p.producer_id, pr.display_name, pr.email, p.custom_sync_request_id,
		p.project_type, p.duration, p.sync_fee, p.payment_terms, p.is_exclusive,
		p.expiration_date, p.is_urgent, p.status, p.client_status, p.producer_status,
		p.negotiation_status, p.negotiated_amount, p.negotiated_payment_terms,
		p.negotiated_terms, p.final_amount, p.final_payment_terms,
		p.last_message_sender_id, p.last_message_at, p.payment_status,
		p.payment_reference, p.invoice_url, p.payment_due_date, p.created_at, p.updated_at
	FROM sync_proposals p
	JOIN tracks t ON t.id = p.track_id
	JOIN profiles c ON c.id = p.client_id
	JOIN profiles pr ON pr.id = p.producer_id
`

func scanProposal(row interface{ Scan(...any) error }) (Proposal, error) {
	var p Proposal
	err := row.Scan(
		&p.ID,
		&p.TrackID,
		&p.TrackTitle,
		&p.ClientID,
		&p.ClientName,
		&p.ClientEmail,
		&p.ProducerID,
		&p.ProducerName,
		&p.ProducerEmail,
		&p.CustomSyncRequestID,
		&p.ProjectType,
		&p.Duration,
		&p.SyncFee,
		&p.PaymentTerms,
		&p.IsExclusive,
		&p.ExpirationDate,
		&p.IsUrgent,
		&p.Status,
		&p.ClientStatus,
		&p.ProducerStatus,
		&p.NegotiationStatus,
		&p.NegotiatedAmount,
		&p.NegotiatedPaymentTerms,
		&p.NegotiatedTerms,
		&p.FinalAmount,
		&p.FinalPaymentTerms,
		&p.LastMessageSenderID,
		&p.LastMessageAt,
		&p.PaymentStatus,
		&p.PaymentReference,
		&p.InvoiceURL,
		&p.PaymentDueDate,
		&p.CreatedAt,
		&p.UpdatedAt,
	)
	return p, err
}

func (s *PostgresStore) GetProposal(ctx context.Context, proposalID string) (Proposal, error) {
	return scanProposal(s.db.QueryRowContext(ctx, proposalSelect+` WHERE p.id=$1`, proposalID))
}

func (s *PostgresStore) ListProposals(ctx context.Context, filter ProposalFilter) ([]Proposal, error) {
	var (
		clauses []string
		args    []any
	)
	if filter.ProducerID != "" {
		args = append(args, filter.ProducerID)
		clauses = append(clauses, fmt.Sprintf("p.producer_id = $%d", len(args)))
	}
	if filter.ClientID != "" {
		args = append(args, filter.ClientID)
		clauses = append(clauses, fmt.Sprintf("p.client_id = $%d", len(args)))
	}
	if filter.Status != "" {
		args = append(args, filter.Status)
		clauses = append(clauses, fmt.Sprintf("p.status = $%d", len(args)))
	}

	query := proposalSelect
	if len(clauses) > 0 {
		query += " WHERE " + strings.Join(clauses, " AND ")
	}
	query += " ORDER BY p.created_at DESC"

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list proposals: %w", err)
	}
	defer rows.Close()

	items := []Proposal{}
	for rows.Next() {
		item, err := scanProposal(rows)
		if err != nil {
			return nil, fmt.Errorf("scan proposal: %w", err)
		}
		items = append(items, item)
	}
	return items, rows.Err()
}

func (s *PostgresStore) CreateProposal(ctx context.Context, p Proposal) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO sync_proposals (
			id, track_id, client_id, producer_id, custom_sync_request_id, project_type, duration,
			sync_fee, payment_terms, is_exclusive, expiration_date, is_urgent, status
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
	`, p.ID, p.TrackID, p.ClientID, p.ProducerID, p.CustomSyncRequestID, p.ProjectType, p.Duration,
		p.SyncFee, p.PaymentTerms, p.IsExclusive, p.ExpirationDate, p.IsUrgent, p.Status)
	if err != nil {
		return fmt.Errorf("create proposal: %w", translate(err))
	}
	return nil
}

func (s *PostgresStore) ListNegotiations(ctx context.Context, proposalID string) ([]NegotiationMessage, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT n.id, n.proposal_id, n.sender_id, COALESCE(pr.display_name, ''), n.message,
			n.counter_offer, n.counter_payment_terms, n.counter_terms, n.is_counter, n.created_at
		FROM proposal_negotiations n
		LEFT JOIN profiles pr ON pr.id = n.sender_id
		WHERE n.proposal_id = $1
		ORDER BY n.created_at ASC, n.id ASC
	`, proposalID)
	if err != nil {
		return nil, fmt.Errorf("list negotiations: %w", err)
	}
	defer rows.Close()

	items := []NegotiationMessage{}
	for rows.Next() {
		var m NegotiationMessage
		if err := rows.Scan(
			&m.ID,
			&m.ProposalID,
			&m.SenderID,
			&m.SenderName,
			&m.Message,
			&m.CounterOffer,
			&m.CounterPaymentTerms,
			&m.CounterTerms,
			&m.IsCounter,
			&m.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan negotiation: %w", err)
		}
		items = append(items, m)
	}
	return items, rows.Err()
}

func (s *PostgresStore) InsertNegotiation(ctx context.Context, m NegotiationMessage) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO proposal_negotiations (id, proposal_id, sender_id, message, counter_offer, counter_payment_terms, counter_terms, is_counter)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`, m.ID, m.ProposalID, m.SenderID, m.Message, m.CounterOffer, m.CounterPaymentTerms, m.CounterTerms, m.IsCounter)
	if err != nil {
		return fmt.Errorf("insert negotiation: %w", translate(err))
	}
	return nil
}

// MarkNegotiating records the latest sender after a message is appended.
// A non-empty reopen role ("client" or "producer") moves that side from
// accepted back to pending.
func (s *PostgresStore) MarkNegotiating(ctx context.Context, proposalID, senderID, reopen string) error {
	result, err := s.db.ExecContext(ctx, `
		UPDATE sync_proposals
		SET negotiation_status='negotiating', last_message_sender_id=$2, last_message_at=NOW(),
			client_status = CASE WHEN $3::text = 'client' AND client_status = 'accepted' THEN 'pending' ELSE client_status END,
			producer_status = CASE WHEN $3::text = 'producer' AND producer_status = 'accepted' THEN 'pending' ELSE producer_status END,
			updated_at=NOW()
		WHERE id=$1
	`, proposalID, senderID, reopen)
	if err != nil {
		return fmt.Errorf("mark negotiating: %w", err)
	}
	return requireRow(result)
}

func (s *PostgresStore) UpdateNegotiatedTerms(ctx context.Context, proposalID string, update NegotiatedUpdate) error {
	result, err := s.db.ExecContext(ctx, `
		UPDATE sync_proposals
		SET negotiated_amount = COALESCE($2, negotiated_amount),
			negotiated_payment_terms = COALESCE($3, negotiated_payment_terms),
			negotiated_terms = COALESCE($4, negotiated_terms),
			client_status = COALESCE(NULLIF($5, ''), client_status),
			producer_status = COALESCE(NULLIF($6, ''), producer_status),
			updated_at = NOW()
		WHERE id=$1
	`, proposalID, update.Amount, update.PaymentTerms, update.Terms, update.ClientStatus, update.ProducerStatus)
	if err != nil {
		return fmt.Errorf("update negotiated terms: %w", translate(err))
	}
	return requireRow(result)
}

// SetPartyStatus sets client_status or producer_status.
func (s *PostgresStore) SetPartyStatus(ctx context.Context, proposalID, role, status string) error {
	var column string
	switch role {
	case "client":
		column = "client_status"
	case "producer":
		column = "producer_status"
	default:
		return fmt.Errorf("set party status: unknown role %q", role)
	}
	result, err := s.db.ExecContext(ctx, `UPDATE sync_proposals SET `+column+`=$2, updated_at=NOW() WHERE id=$1`, proposalID, status)
	if err != nil {
		return fmt.Errorf("set %s: %w", column, translate(err))
	}
	return requireRow(result)
}

// HandleNegotiationAcceptance calls the acceptance procedure and returns the
// resulting negotiation status.
func (s *PostgresStore) HandleNegotiationAcceptance(ctx context.Context, proposalID string, isSyncProposal bool) (string, error) {
	var status string
	err := s.db.QueryRowContext(ctx, `SELECT handle_negotiation_acceptance($1, $2)`, proposalID, isSyncProposal).Scan(&status)
	if err != nil {
		return "", fmt.Errorf("handle negotiation acceptance: %w", translate(err))
	}
	return status, nil
}

func (s *PostgresStore) HandleNegotiationRejection(ctx context.Context, proposalID string, isSyncProposal bool) (string, error) {
	var status string
	err := s.db.QueryRowContext(ctx, `SELECT handle_negotiation_rejection($1, $2)`, proposalID, isSyncProposal).Scan(&status)
	if err != nil {
		return "", fmt.Errorf("handle negotiation rejection: %w", translate(err))
	}
	return status, nil
}

func (s *PostgresStore) UpdatePayment(ctx context.Context, proposalID string, update PaymentUpdate) error {
	result, err := s.db.ExecContext(ctx, `
		UPDATE sync_proposals
		SET payment_status = $2,
			payment_reference = COALESCE(NULLIF($3, ''), payment_reference),
			invoice_url = COALESCE(NULLIF($4, ''), invoice_url),
			payment_due_date = COALESCE($5, payment_due_date),
			updated_at = NOW()
		WHERE id=$1
	`, proposalID, update.Status, update.Reference, update.InvoiceURL, update.DueDate)
	if err != nil {
		return fmt.Errorf("update payment: %w", translate(err))
	}
	return requireRow(result)
}

func requireRow(result sql.Result) error {
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}
