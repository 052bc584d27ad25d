package app

import (
	"context"
	"fmt"
	"log"
	"strings"
	"time"

	"mybeatfi/api/internal/email"
	"mybeatfi/api/internal/negotiation"
	"mybeatfi/api/internal/payment"
	"mybeatfi/api/internal/realtime"
	"mybeatfi/api/internal/store"
	"mybeatfi/api/internal/util"
)

// Payment statuses recorded on a proposal.
const (
	PaymentUnpaid          = "unpaid"
	PaymentCheckoutPending = "checkout_pending"
	PaymentInvoiced        = "invoiced"
	PaymentPaid            = "paid"
)

type MessageInput struct {
	Message             string   `json:"message"`
	CounterOffer        *float64 `json:"counterOffer"`
	CounterPaymentTerms *string  `json:"counterPaymentTerms"`
	CounterTerms        *string  `json:"counterTerms"`
}

// normalize validates a message before anything touches the database.
func (in MessageInput) normalize() (store.NegotiationMessage, error) {
	msg := store.NegotiationMessage{Message: strings.TrimSpace(in.Message)}
	fields := map[string]string{}

	if in.CounterOffer != nil {
		if *in.CounterOffer <= 0 {
			fields["counterOffer"] = "must be greater than 0"
		} else {
			amount := *in.CounterOffer
			msg.CounterOffer = &amount
		}
	}
	if in.CounterPaymentTerms != nil && strings.TrimSpace(*in.CounterPaymentTerms) != "" {
		terms, ok := negotiation.ParsePaymentTerms(*in.CounterPaymentTerms)
		if !ok {
			fields["counterPaymentTerms"] = "must be one of immediate, net30, net60, net90"
		} else {
			value := string(terms)
			msg.CounterPaymentTerms = &value
		}
	}
	if in.CounterTerms != nil && strings.TrimSpace(*in.CounterTerms) != "" {
		value := strings.TrimSpace(*in.CounterTerms)
		msg.CounterTerms = &value
	}
	if len(fields) > 0 {
		return store.NegotiationMessage{}, validationError("Invalid message", fields)
	}

	msg.IsCounter = msg.CounterOffer != nil || msg.CounterPaymentTerms != nil || msg.CounterTerms != nil
	if msg.Message == "" {
		if !msg.IsCounter {
			return store.NegotiationMessage{}, validationError("Message or counter offer is required", map[string]string{"message": "is required"})
		}
		msg.Message = describeCounter(msg)
	}
	return msg, nil
}

func describeCounter(m store.NegotiationMessage) string {
	var parts []string
	if m.CounterOffer != nil {
		parts = append(parts, fmt.Sprintf("$%.2f", *m.CounterOffer))
	}
	if m.CounterPaymentTerms != nil {
		parts = append(parts, negotiation.PaymentTerms(*m.CounterPaymentTerms).Label())
	}
	if m.CounterTerms != nil {
		parts = append(parts, "revised terms")
	}
	return "Counter offer: " + strings.Join(parts, ", ")
}

// participant loads a proposal and resolves the caller's side of it.
func (s *Service) participant(ctx context.Context, session Session, proposalID string) (store.Proposal, negotiation.Role, error) {
	proposal, err := s.store.GetProposal(ctx, proposalID)
	if err != nil {
		return store.Proposal{}, "", err
	}
	role, ok := negotiation.RoleOf(proposal.ClientID, proposal.ProducerID, session.UserID)
	if !ok {
		return store.Proposal{}, "", forbidden()
	}
	return proposal, role, nil
}

func partyStatus(p store.Proposal, role negotiation.Role) string {
	if role == negotiation.RoleClient {
		return p.ClientStatus
	}
	return p.ProducerStatus
}

// counterparty returns the email and display name of the other side.
func counterparty(p store.Proposal, role negotiation.Role) (string, string) {
	if role == negotiation.RoleClient {
		return p.ProducerEmail, p.ProducerName
	}
	return p.ClientEmail, p.ClientName
}

func noticeFor(p store.Proposal, actor string) email.Message {
	terms := proposalTerms(p)
	return email.Message{
		ActorName:    actor,
		TrackTitle:   p.TrackTitle,
		ProjectType:  p.ProjectType,
		Amount:       fmt.Sprintf("$%.2f", terms.Amount),
		PaymentTerms: terms.PaymentTerms.Label(),
		ProposalID:   p.ID,
	}
}

func (s *Service) ensureOpen(p store.Proposal) error {
	if negotiation.Closed(p.Status) {
		return conflict(CodeProposalClosed, "This proposal is closed")
	}
	if expired(p, s.now()) {
		return conflict(CodeProposalExpired, "This proposal has expired")
	}
	return nil
}

// SendMessage appends one message to the thread and marks the proposal as
// negotiating. Concurrent senders are not serialized; the last one wins.
func (s *Service) SendMessage(ctx context.Context, session Session, proposalID string, input MessageInput) (map[string]any, error) {
	msg, err := input.normalize()
	if err != nil {
		return nil, err
	}

	proposal, role, err := s.participant(ctx, session, proposalID)
	if err != nil {
		return nil, err
	}
	if err := s.ensureOpen(proposal); err != nil {
		return nil, err
	}

	msg.ID = util.NewID()
	msg.ProposalID = proposal.ID
	msg.SenderID = session.UserID
	msg.SenderName = session.UserName
	msg.CreatedAt = s.now().UTC()
	if err := s.store.InsertNegotiation(ctx, msg); err != nil {
		return nil, err
	}
	reopen := ""
	if msg.IsCounter {
		reopen = string(role.Other())
	}
	if err := s.store.MarkNegotiating(ctx, proposal.ID, session.UserID, reopen); err != nil {
		log.Printf("negotiation: mark %s negotiating after message %s: %v", proposal.ID, msg.ID, err)
		return nil, err
	}

	s.publish(realtime.Event{
		Type:              realtime.EventMessage,
		ProposalID:        proposal.ID,
		ActorID:           session.UserID,
		Status:            proposal.Status,
		NegotiationStatus: negotiation.NegotiationNegotiating,
	})

	kind := email.NoticeMessage
	notice := noticeFor(proposal, session.UserName)
	notice.Summary = msg.Message
	if msg.IsCounter {
		kind = email.NoticeCounterOffer
		if msg.CounterOffer != nil {
			notice.Amount = fmt.Sprintf("$%.2f", *msg.CounterOffer)
		}
		if msg.CounterPaymentTerms != nil {
			notice.PaymentTerms = negotiation.PaymentTerms(*msg.CounterPaymentTerms).Label()
		}
	}
	to, name := counterparty(proposal, role)
	s.notify(kind, to, name, notice)

	return map[string]any{
		"message":           messagePayload(msg),
		"negotiationStatus": negotiation.NegotiationNegotiating,
	}, nil
}

// AcceptNegotiation answers the counter awaiting the caller field by field.
// Accepted fields are copied into the negotiated terms; when nothing is
// declined both sides are marked accepted and the acceptance procedure runs.
func (s *Service) AcceptNegotiation(ctx context.Context, session Session, proposalID string, decision negotiation.Decision) (map[string]any, error) {
	proposal, role, err := s.participant(ctx, session, proposalID)
	if err != nil {
		return nil, err
	}
	if err := s.ensureOpen(proposal); err != nil {
		return nil, err
	}

	messages, err := s.store.ListNegotiations(ctx, proposal.ID)
	if err != nil {
		return nil, err
	}
	counter, ok := s.detector.Awaiting(toNegotiationMessages(messages), session.UserID, partyStatus(proposal, role))
	if !ok {
		return nil, conflict(CodeNoPendingCounter, "There is no counter offer awaiting your response")
	}

	plan := negotiation.PlanAcceptance(counter, decision)
	update := store.NegotiatedUpdate{
		Amount:       plan.Amount,
		PaymentTerms: plan.PaymentTerms,
		Terms:        plan.AdditionalTerms,
	}
	if plan.Finalize {
		update.ClientStatus = negotiation.PartyAccepted
		update.ProducerStatus = negotiation.PartyAccepted
	}
	if plan.Changes() || plan.Finalize {
		if err := s.store.UpdateNegotiatedTerms(ctx, proposal.ID, update); err != nil {
			return nil, err
		}
	}

	negotiationStatus := ""
	if plan.Finalize {
		negotiationStatus, err = s.store.HandleNegotiationAcceptance(ctx, proposal.ID, proposal.IsSyncProposal())
		if err != nil {
			log.Printf("negotiation: acceptance procedure for %s after copying terms: %v", proposal.ID, err)
			return nil, err
		}
	}

	summary := store.NegotiationMessage{
		ID:         util.NewID(),
		ProposalID: proposal.ID,
		SenderID:   session.UserID,
		SenderName: session.UserName,
		Message:    plan.Summary(),
		CreatedAt:  s.now().UTC(),
	}
	if err := s.store.InsertNegotiation(ctx, summary); err != nil {
		return nil, err
	}

	updated, err := s.store.GetProposal(ctx, proposal.ID)
	if err != nil {
		return nil, err
	}
	if negotiationStatus == "" {
		negotiationStatus = updated.NegotiationStatus
	}

	s.publish(realtime.Event{
		Type:              realtime.EventAccepted,
		ProposalID:        updated.ID,
		ActorID:           session.UserID,
		Status:            updated.Status,
		NegotiationStatus: negotiationStatus,
	})
	notice := noticeFor(updated, session.UserName)
	notice.Summary = plan.Summary()
	to, name := counterparty(updated, role)
	if plan.Finalize {
		s.notify(email.NoticeAccepted, to, name, notice)
	} else {
		s.notify(email.NoticeMessage, to, name, notice)
	}

	return map[string]any{
		"proposal":  proposalPayload(updated),
		"message":   messagePayload(summary),
		"accepted":  nonNilStrings(plan.Accepted),
		"declined":  nonNilStrings(plan.Declined),
		"finalized": plan.Finalize,
	}, nil
}

// DeclineNegotiation rejects the proposal through the rejection procedure.
func (s *Service) DeclineNegotiation(ctx context.Context, session Session, proposalID string) (map[string]any, error) {
	proposal, role, err := s.participant(ctx, session, proposalID)
	if err != nil {
		return nil, err
	}
	if negotiation.Closed(proposal.Status) {
		return nil, conflict(CodeProposalClosed, "This proposal is closed")
	}

	if _, err := s.store.HandleNegotiationRejection(ctx, proposal.ID, proposal.IsSyncProposal()); err != nil {
		return nil, err
	}
	updated, err := s.store.GetProposal(ctx, proposal.ID)
	if err != nil {
		return nil, err
	}

	msg := store.NegotiationMessage{
		ID:         util.NewID(),
		ProposalID: proposal.ID,
		SenderID:   session.UserID,
		SenderName: session.UserName,
		Message:    fmt.Sprintf("%s declined the proposal.", firstNonBlank(session.UserName, "A participant")),
		CreatedAt:  s.now().UTC(),
	}
	if err := s.store.InsertNegotiation(ctx, msg); err != nil {
		return nil, err
	}

	s.publish(realtime.Event{
		Type:              realtime.EventDeclined,
		ProposalID:        updated.ID,
		ActorID:           session.UserID,
		Status:            updated.Status,
		NegotiationStatus: updated.NegotiationStatus,
	})
	to, name := counterparty(updated, role)
	s.notify(email.NoticeDeclined, to, name, noticeFor(updated, session.UserName))

	return map[string]any{
		"proposal": proposalPayload(updated),
		"message":  messagePayload(msg),
	}, nil
}

// Respond accepts or rejects the terms on the table without a counter.
func (s *Service) Respond(ctx context.Context, session Session, proposalID, action string) (map[string]any, error) {
	switch action {
	case "reject":
		return s.DeclineNegotiation(ctx, session, proposalID)
	case "accept":
	default:
		return nil, validationError("Invalid action", map[string]string{"action": "must be accept or reject"})
	}

	proposal, role, err := s.participant(ctx, session, proposalID)
	if err != nil {
		return nil, err
	}
	if err := s.ensureOpen(proposal); err != nil {
		return nil, err
	}
	messages, err := s.store.ListNegotiations(ctx, proposal.ID)
	if err != nil {
		return nil, err
	}
	if _, awaiting := s.detector.Awaiting(toNegotiationMessages(messages), session.UserID, partyStatus(proposal, role)); awaiting {
		return nil, conflict(CodeCounterPending, "Respond to the counter offer awaiting you first")
	}

	if err := s.store.SetPartyStatus(ctx, proposal.ID, string(role), negotiation.PartyAccepted); err != nil {
		return nil, err
	}
	negotiationStatus, err := s.store.HandleNegotiationAcceptance(ctx, proposal.ID, proposal.IsSyncProposal())
	if err != nil {
		log.Printf("negotiation: acceptance procedure for %s after %s accepted: %v", proposal.ID, role, err)
		return nil, err
	}
	updated, err := s.store.GetProposal(ctx, proposal.ID)
	if err != nil {
		return nil, err
	}

	s.publish(realtime.Event{
		Type:              realtime.EventStatus,
		ProposalID:        updated.ID,
		ActorID:           session.UserID,
		Status:            updated.Status,
		NegotiationStatus: negotiationStatus,
	})
	if updated.Status == negotiation.StatusAccepted {
		to, name := counterparty(updated, role)
		s.notify(email.NoticeAccepted, to, name, noticeFor(updated, session.UserName))
	}

	return map[string]any{"proposal": proposalPayload(updated)}, nil
}

// FinalizeAndPay requests payment on the agreed terms: a checkout session
// for immediate terms, an invoice for net terms.
func (s *Service) FinalizeAndPay(ctx context.Context, session Session, proposalID string) (map[string]any, error) {
	proposal, err := s.store.GetProposal(ctx, proposalID)
	if err != nil {
		return nil, err
	}
	if proposal.ClientID != session.UserID {
		return nil, forbidden()
	}
	if proposal.ClientStatus != negotiation.PartyAccepted || proposal.ProducerStatus != negotiation.PartyAccepted {
		return nil, conflict(CodeNotReadyForPayment, "Both parties must accept before payment")
	}
	if proposal.PaymentStatus == PaymentPaid {
		return nil, conflict(CodeAlreadyPaid, "This proposal is already paid")
	}
	if s.payments == nil {
		return nil, fmt.Errorf("%w: payments not configured", payment.ErrPayment)
	}

	terms := proposalTerms(proposal)
	amount := negotiation.MinorUnits(terms.Amount)
	metadata := map[string]string{
		"proposal_id": proposal.ID,
		"track_id":    proposal.TrackID,
		"track_title": proposal.TrackTitle,
		"type":        "sync_proposal",
	}

	var (
		redirect string
		kind     string
		update   store.PaymentUpdate
	)
	if terms.PaymentTerms.Invoiced() {
		result, err := s.payments.CreateInvoice(ctx, payment.InvoiceRequest{
			ProposalID:   proposal.ID,
			Amount:       amount,
			ClientUserID: proposal.ClientID,
			PaymentTerms: string(terms.PaymentTerms),
			Metadata:     metadata,
		})
		if err != nil {
			log.Printf("payment: invoice for %s: %v", proposal.ID, err)
			return nil, err
		}
		redirect, kind = result.RedirectURL(), "invoice"
		due := result.Due()
		if due == nil {
			computed := s.now().Add(terms.PaymentTerms.DueIn()).UTC()
			due = &computed
		}
		update = store.PaymentUpdate{Status: PaymentInvoiced, InvoiceURL: redirect, DueDate: due}
	} else {
		base := strings.TrimRight(s.cfg.AppURL, "/") + "/proposals/" + proposal.ID
		result, err := s.payments.CreateCheckout(ctx, payment.CheckoutRequest{
			SuccessURL: base + "?payment=success",
			CancelURL:  base + "?payment=cancelled",
			Amount:     amount,
			Metadata:   metadata,
		})
		if err != nil {
			log.Printf("payment: checkout for %s: %v", proposal.ID, err)
			return nil, err
		}
		redirect, kind = result.URL, "checkout"
		update = store.PaymentUpdate{Status: PaymentCheckoutPending, Reference: result.SessionID}
	}

	if err := s.store.UpdatePayment(ctx, proposal.ID, update); err != nil {
		log.Printf("payment: record %s %s: %v", kind, proposal.ID, err)
		return nil, err
	}

	s.publish(realtime.Event{
		Type:          realtime.EventPayment,
		ProposalID:    proposal.ID,
		ActorID:       session.UserID,
		Status:        proposal.Status,
		PaymentStatus: update.Status,
	})
	if kind == "invoice" {
		notice := noticeFor(proposal, session.UserName)
		notice.ActionURL = redirect
		s.notify(email.NoticePaymentRequested, proposal.ClientEmail, proposal.ClientName, notice)
	}

	response := map[string]any{
		"url":          redirect,
		"type":         kind,
		"amount":       terms.Amount,
		"amountMinor":  amount,
		"paymentTerms": terms.PaymentTerms,
		"status":       update.Status,
	}
	if update.DueDate != nil {
		response["dueDate"] = update.DueDate.Format(time.RFC3339)
	}
	return response, nil
}

// ConfirmPayment marks a proposal paid after the checkout success redirect.
func (s *Service) ConfirmPayment(ctx context.Context, session Session, proposalID, reference string) (map[string]any, error) {
	proposal, err := s.store.GetProposal(ctx, proposalID)
	if err != nil {
		return nil, err
	}
	if proposal.ClientID != session.UserID && !session.isAdmin() {
		return nil, forbidden()
	}
	switch proposal.PaymentStatus {
	case PaymentPaid:
		return nil, conflict(CodeAlreadyPaid, "This proposal is already paid")
	case PaymentCheckoutPending, PaymentInvoiced:
	default:
		return nil, conflict(CodeNotReadyForPayment, "No payment has been requested for this proposal")
	}

	if err := s.store.UpdatePayment(ctx, proposal.ID, store.PaymentUpdate{Status: PaymentPaid, Reference: strings.TrimSpace(reference)}); err != nil {
		return nil, err
	}
	s.publish(realtime.Event{
		Type:          realtime.EventPayment,
		ProposalID:    proposal.ID,
		ActorID:       session.UserID,
		Status:        proposal.Status,
		PaymentStatus: PaymentPaid,
	})
	return map[string]any{"ok": true, "paymentStatus": PaymentPaid}, nil
}

func nonNilStrings(values []string) []string {
	if values == nil {
		return []string{}
	}
	return values
}

func firstNonBlank(values ...string) string {
	for _, value := range values {
		if strings.TrimSpace(value) != "" {
			return value
		}
	}
	return ""
}
