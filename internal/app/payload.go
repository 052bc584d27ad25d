package app

import (
	"strings"
	"time"

	"mybeatfi/api/internal/negotiation"
	"mybeatfi/api/internal/store"
)

// Badge is the status chip shown next to a proposal.
type Badge struct {
	Label string `json:"label"`
	Tone  string `json:"tone"`
	Icon  string `json:"icon"`
}

var statusBadges = map[string]Badge{
	negotiation.StatusPending:         {Label: "Pending", Tone: "warning", Icon: "clock"},
	negotiation.StatusPendingProducer: {Label: "Awaiting producer", Tone: "warning", Icon: "hourglass"},
	negotiation.StatusAccepted:        {Label: "Accepted", Tone: "success", Icon: "check-circle"},
	negotiation.StatusRejected:        {Label: "Declined", Tone: "danger", Icon: "x-circle"},
}

var negotiationBadges = map[string]Badge{
	negotiation.NegotiationNegotiating:                {Label: "Negotiating", Tone: "info", Icon: "message-circle"},
	negotiation.NegotiationClientAcceptanceRequired:   {Label: "Client acceptance required", Tone: "info", Icon: "user-check"},
	negotiation.NegotiationProducerAcceptanceRequired: {Label: "Producer acceptance required", Tone: "info", Icon: "user-check"},
}

// badgeFor picks the chip for a proposal: open proposals show their
// negotiation progress, closed ones their final status.
func badgeFor(p store.Proposal) Badge {
	if !negotiation.Closed(p.Status) {
		if badge, ok := negotiationBadges[p.NegotiationStatus]; ok {
			return badge
		}
	}
	if badge, ok := statusBadges[p.Status]; ok {
		return badge
	}
	return Badge{Label: strings.ReplaceAll(p.Status, "_", " "), Tone: "neutral", Icon: "circle"}
}

func proposalTerms(p store.Proposal) negotiation.Terms {
	terms := negotiation.FinalTerms(p.SyncFee, p.PaymentTerms, p.NegotiatedAmount, p.NegotiatedPaymentTerms, p.FinalAmount, p.FinalPaymentTerms)
	if p.NegotiatedTerms != nil {
		terms.AdditionalTerms = *p.NegotiatedTerms
	}
	return terms
}

func proposalPayload(p store.Proposal) map[string]any {
	terms := proposalTerms(p)
	return map[string]any{
		"id":                     p.ID,
		"trackId":                p.TrackID,
		"trackTitle":             p.TrackTitle,
		"clientId":               p.ClientID,
		"clientName":             p.ClientName,
		"producerId":             p.ProducerID,
		"producerName":           p.ProducerName,
		"customSyncRequestId":    p.CustomSyncRequestID,
		"projectType":            p.ProjectType,
		"duration":               p.Duration,
		"syncFee":                p.SyncFee,
		"paymentTerms":           p.PaymentTerms,
		"isExclusive":            p.IsExclusive,
		"expirationDate":         p.ExpirationDate,
		"isUrgent":               p.IsUrgent,
		"status":                 p.Status,
		"clientStatus":           p.ClientStatus,
		"producerStatus":         p.ProducerStatus,
		"negotiationStatus":      p.NegotiationStatus,
		"negotiatedAmount":       p.NegotiatedAmount,
		"negotiatedPaymentTerms": p.NegotiatedPaymentTerms,
		"negotiatedTerms":        p.NegotiatedTerms,
		"finalAmount":            p.FinalAmount,
		"finalPaymentTerms":      p.FinalPaymentTerms,
		"currentAmount":          terms.Amount,
		"currentPaymentTerms":    terms.PaymentTerms,
		"lastMessageSenderId":    p.LastMessageSenderID,
		"lastMessageAt":          p.LastMessageAt,
		"paymentStatus":          p.PaymentStatus,
		"invoiceUrl":             p.InvoiceURL,
		"paymentDueDate":         p.PaymentDueDate,
		"badge":                  badgeFor(p),
		"createdAt":              p.CreatedAt,
		"updatedAt":              p.UpdatedAt,
	}
}

func messagePayload(m store.NegotiationMessage) map[string]any {
	return map[string]any{
		"id":                  m.ID,
		"proposalId":          m.ProposalID,
		"senderId":            m.SenderID,
		"senderName":          m.SenderName,
		"message":             m.Message,
		"counterOffer":        m.CounterOffer,
		"counterPaymentTerms": m.CounterPaymentTerms,
		"counterTerms":        m.CounterTerms,
		"isCounter":           m.IsCounter,
		"createdAt":           m.CreatedAt,
	}
}

func toNegotiationMessages(items []store.NegotiationMessage) []negotiation.Message {
	out := make([]negotiation.Message, 0, len(items))
	for _, m := range items {
		out = append(out, negotiation.Message{
			ID:                  m.ID,
			SenderID:            m.SenderID,
			Text:                m.Message,
			CounterOffer:        m.CounterOffer,
			CounterPaymentTerms: m.CounterPaymentTerms,
			CounterTerms:        m.CounterTerms,
			IsCounter:           m.IsCounter,
			CreatedAt:           m.CreatedAt,
		})
	}
	return out
}

func expired(p store.Proposal, now time.Time) bool {
	return !p.ExpirationDate.IsZero() && p.ExpirationDate.Before(now)
}
