package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"mybeatfi/api/internal/email"
	"mybeatfi/api/internal/license"
	"mybeatfi/api/internal/negotiation"
	"mybeatfi/api/internal/rbac"
	"mybeatfi/api/internal/realtime"
	"mybeatfi/api/internal/store"
	"mybeatfi/api/internal/util"
)

type ListProposalsInput struct {
	Scope  string
	Status string
	Query  string
}

var proposalStatuses = map[string]struct{}{
	negotiation.StatusPending:         {},
	negotiation.StatusPendingProducer: {},
	negotiation.StatusAccepted:        {},
	negotiation.StatusRejected:        {},
}

// ListProposals returns the caller's proposals: received on their tracks
// (scope=producer), sent (scope=client), or every proposal for admins.
func (s *Service) ListProposals(ctx context.Context, session Session, input ListProposalsInput) ([]map[string]any, error) {
	scope := strings.TrimSpace(input.Scope)
	if scope == "" {
		switch {
		case session.isAdmin():
			scope = "all"
		case session.role().OwnsTracks():
			scope = "producer"
		default:
			scope = "client"
		}
	}

	status := strings.TrimSpace(input.Status)
	if status != "" && status != "all" {
		if _, ok := proposalStatuses[status]; !ok {
			return nil, validationError("Invalid status filter", map[string]string{"status": "is not a proposal status"})
		}
	} else {
		status = ""
	}

	filter := store.ProposalFilter{Status: status}
	switch scope {
	case "producer":
		filter.ProducerID = session.UserID
	case "client":
		filter.ClientID = session.UserID
	case "all":
		if !s.Can(session, rbac.ActionViewAll) {
			return nil, forbidden()
		}
	default:
		return nil, validationError("Invalid scope", map[string]string{"scope": "must be producer, client or all"})
	}

	proposals, err := s.store.ListProposals(ctx, filter)
	if err != nil {
		return nil, err
	}

	query := strings.ToLower(strings.TrimSpace(input.Query))
	items := make([]map[string]any, 0, len(proposals))
	for _, p := range proposals {
		if query != "" && !matchesQuery(p, query) {
			continue
		}
		items = append(items, proposalPayload(p))
	}
	return items, nil
}

func matchesQuery(p store.Proposal, query string) bool {
	for _, field := range []string{p.TrackTitle, p.ClientName, p.ProjectType} {
		if strings.Contains(strings.ToLower(field), query) {
			return true
		}
	}
	return false
}

// visibleProposal loads a proposal the caller takes part in or, for
// admins, any proposal.
func (s *Service) visibleProposal(ctx context.Context, session Session, proposalID string) (store.Proposal, negotiation.Role, error) {
	proposal, err := s.store.GetProposal(ctx, proposalID)
	if err != nil {
		return store.Proposal{}, "", err
	}
	role, ok := negotiation.RoleOf(proposal.ClientID, proposal.ProducerID, session.UserID)
	if !ok && !s.Can(session, rbac.ActionViewAll) {
		return store.Proposal{}, "", forbidden()
	}
	return proposal, role, nil
}

// GetProposal returns the proposal with its thread and what the caller can
// do next.
func (s *Service) GetProposal(ctx context.Context, session Session, proposalID string) (map[string]any, error) {
	proposal, role, err := s.visibleProposal(ctx, session, proposalID)
	if err != nil {
		return nil, err
	}
	messages, err := s.store.ListNegotiations(ctx, proposal.ID)
	if err != nil {
		return nil, err
	}
	thread := toNegotiationMessages(messages)

	payload := make([]map[string]any, 0, len(messages))
	for _, m := range messages {
		payload = append(payload, messagePayload(m))
	}

	var current any
	if counter, ok := negotiation.CurrentCounter(thread); ok {
		current = map[string]any{
			"messageId":           counter.ID,
			"senderId":            counter.SenderID,
			"counterOffer":        counter.CounterOffer,
			"counterPaymentTerms": counter.CounterPaymentTerms,
			"counterTerms":        counter.CounterTerms,
		}
	}

	awaiting := false
	var myRole any
	if role != "" {
		myRole = role
		_, awaiting = s.detector.Awaiting(thread, session.UserID, partyStatus(proposal, role))
	}
	open := role != "" && !negotiation.Closed(proposal.Status) && !expired(proposal, s.now())
	canFinalize := role == negotiation.RoleClient &&
		proposal.ClientStatus == negotiation.PartyAccepted &&
		proposal.ProducerStatus == negotiation.PartyAccepted &&
		proposal.PaymentStatus != PaymentPaid

	return map[string]any{
		"proposal":           proposalPayload(proposal),
		"messages":           payload,
		"currentCounter":     current,
		"myRole":             myRole,
		"awaitingMyResponse": awaiting,
		"canSendMessage":     open,
		"canFinalize":        canFinalize,
	}, nil
}

type CreateProposalInput struct {
	TrackID        string  `json:"trackId"`
	SyncFee        float64 `json:"syncFee"`
	PaymentTerms   string  `json:"paymentTerms"`
	ProjectType    string  `json:"projectType"`
	Duration       string  `json:"duration"`
	IsExclusive    bool    `json:"isExclusive"`
	ExpirationDate string  `json:"expirationDate"`
	IsUrgent       bool    `json:"isUrgent"`
}

func parseDate(value string) (time.Time, bool) {
	value = strings.TrimSpace(value)
	for _, layout := range []string{time.RFC3339, "2006-01-02"} {
		if parsed, err := time.Parse(layout, value); err == nil {
			return parsed, true
		}
	}
	return time.Time{}, false
}

func (s *Service) CreateProposal(ctx context.Context, session Session, input CreateProposalInput) (map[string]any, error) {
	if !s.Can(session, rbac.ActionProposeSync) {
		return nil, forbidden()
	}

	fields := map[string]string{}
	if strings.TrimSpace(input.TrackID) == "" {
		fields["trackId"] = "is required"
	}
	if input.SyncFee <= 0 {
		fields["syncFee"] = "must be greater than 0"
	}
	terms := negotiation.TermsImmediate
	if strings.TrimSpace(input.PaymentTerms) != "" {
		parsed, ok := negotiation.ParsePaymentTerms(input.PaymentTerms)
		if !ok {
			fields["paymentTerms"] = "must be one of immediate, net30, net60, net90"
		}
		terms = parsed
	}
	if strings.TrimSpace(input.ProjectType) == "" {
		fields["projectType"] = "is required"
	}
	expiration, ok := parseDate(input.ExpirationDate)
	switch {
	case !ok:
		fields["expirationDate"] = "must be a date"
	case !expiration.After(s.now()):
		fields["expirationDate"] = "must be in the future"
	}
	if len(fields) > 0 {
		return nil, validationError("Invalid proposal", fields)
	}

	track, err := s.store.GetTrack(ctx, input.TrackID)
	if err != nil {
		return nil, err
	}
	if track.ProducerID == session.UserID {
		return nil, validationError("You cannot license your own track", map[string]string{"trackId": "is your own track"})
	}

	proposal := store.Proposal{
		ID:             util.NewID(),
		TrackID:        track.ID,
		ClientID:       session.UserID,
		ProducerID:     track.ProducerID,
		ProjectType:    strings.TrimSpace(input.ProjectType),
		Duration:       strings.TrimSpace(input.Duration),
		SyncFee:        input.SyncFee,
		PaymentTerms:   string(terms),
		IsExclusive:    input.IsExclusive,
		ExpirationDate: expiration.UTC(),
		IsUrgent:       input.IsUrgent,
		Status:         negotiation.StatusPending,
	}
	if err := s.store.CreateProposal(ctx, proposal); err != nil {
		return nil, err
	}
	created, err := s.store.GetProposal(ctx, proposal.ID)
	if err != nil {
		return nil, err
	}

	s.notify(email.NoticeNewProposal, created.ProducerEmail, created.ProducerName, noticeFor(created, session.UserName))
	return proposalPayload(created), nil
}

// Agreement returns the license PDF for an accepted proposal.
func (s *Service) Agreement(ctx context.Context, session Session, proposalID string) (license.Document, error) {
	proposal, _, err := s.visibleProposal(ctx, session, proposalID)
	if err != nil {
		return license.Document{}, err
	}
	if proposal.Status != negotiation.StatusAccepted {
		return license.Document{}, conflict(CodeNotAccepted, "The agreement is available once both parties accept")
	}
	if s.licenses == nil {
		return license.Document{}, domainError(http.StatusServiceUnavailable, "AGREEMENT_UNAVAILABLE", "Agreements are not available", nil)
	}

	terms := proposalTerms(proposal)
	var expires *time.Time
	if !proposal.ExpirationDate.IsZero() {
		value := proposal.ExpirationDate
		expires = &value
	}
	doc, err := s.licenses.Agreement(ctx, license.Agreement{
		ProposalID:      proposal.ID,
		TrackTitle:      proposal.TrackTitle,
		ClientName:      proposal.ClientName,
		ProducerName:    proposal.ProducerName,
		ProjectType:     proposal.ProjectType,
		Duration:        proposal.Duration,
		Exclusive:       proposal.IsExclusive,
		Amount:          terms.Amount,
		PaymentTerms:    terms.PaymentTerms.Label(),
		AdditionalTerms: terms.AdditionalTerms,
		ExpiresAt:       expires,
		AcceptedAt:      proposal.UpdatedAt,
	})
	if errors.Is(err, license.ErrRendererUnavailable) {
		return license.Document{}, domainError(http.StatusServiceUnavailable, "AGREEMENT_UNAVAILABLE", "Agreement rendering is not available", nil)
	}
	if err != nil {
		return license.Document{}, fmt.Errorf("agreement for %s: %w", proposal.ID, err)
	}
	return doc, nil
}

// SubscribeProposal opens the realtime channel for a proposal the caller
// can see. The caller must Close the subscription.
func (s *Service) SubscribeProposal(ctx context.Context, session Session, proposalID string) (*realtime.Subscription, error) {
	proposal, _, err := s.visibleProposal(ctx, session, proposalID)
	if err != nil {
		return nil, err
	}
	if s.events == nil {
		return nil, domainError(http.StatusServiceUnavailable, "REALTIME_UNAVAILABLE", "Realtime updates are not available", nil)
	}
	return s.events.Subscribe(ctx, proposal.ID)
}

func (s *Service) ListMessages(ctx context.Context, session Session, proposalID string) ([]map[string]any, error) {
	proposal, _, err := s.visibleProposal(ctx, session, proposalID)
	if err != nil {
		return nil, err
	}
	messages, err := s.store.ListNegotiations(ctx, proposal.ID)
	if err != nil {
		return nil, err
	}
	items := make([]map[string]any, 0, len(messages))
	for _, m := range messages {
		items = append(items, messagePayload(m))
	}
	return items, nil
}
