// Package negotiation holds the rules of the proposal negotiation workflow:
// which terms are on the table, whose move it is, how an itemized acceptance
// splits into copied and declined fields, and how the two role statuses
// resolve into the proposal status.
package negotiation

import (
	"math"
	"strings"
	"time"
)

type PaymentTerms string

const (
	TermsImmediate PaymentTerms = "immediate"
	TermsNet30     PaymentTerms = "net30"
	TermsNet60     PaymentTerms = "net60"
	TermsNet90     PaymentTerms = "net90"
)

// ParsePaymentTerms accepts the enum values and the "net_30" / "NET30"
// spellings older rows carry.
func ParsePaymentTerms(value string) (PaymentTerms, bool) {
	normalized := strings.ToLower(strings.TrimSpace(value))
	normalized = strings.ReplaceAll(normalized, "_", "")
	normalized = strings.ReplaceAll(normalized, " ", "")
	switch PaymentTerms(normalized) {
	case TermsImmediate, TermsNet30, TermsNet60, TermsNet90:
		return PaymentTerms(normalized), true
	default:
		return "", false
	}
}

// Invoiced reports whether the terms are collected by invoice rather than
// an immediate checkout.
func (t PaymentTerms) Invoiced() bool {
	return t == TermsNet30 || t == TermsNet60 || t == TermsNet90
}

// DueIn is the invoice period for the terms; zero for immediate.
func (t PaymentTerms) DueIn() time.Duration {
	switch t {
	case TermsNet30:
		return 30 * 24 * time.Hour
	case TermsNet60:
		return 60 * 24 * time.Hour
	case TermsNet90:
		return 90 * 24 * time.Hour
	default:
		return 0
	}
}

func (t PaymentTerms) Label() string {
	switch t {
	case TermsImmediate:
		return "Immediate"
	case TermsNet30:
		return "Net 30"
	case TermsNet60:
		return "Net 60"
	case TermsNet90:
		return "Net 90"
	default:
		return string(t)
	}
}

type Role string

const (
	RoleClient   Role = "client"
	RoleProducer Role = "producer"
)

// Other returns the counterparty role.
func (r Role) Other() Role {
	if r == RoleClient {
		return RoleProducer
	}
	return RoleClient
}

// RoleOf resolves which side of the proposal userID is on.
func RoleOf(clientID, producerID, userID string) (Role, bool) {
	switch {
	case userID == "":
		return "", false
	case userID == clientID:
		return RoleClient, true
	case userID == producerID:
		return RoleProducer, true
	default:
		return "", false
	}
}

// Proposal statuses.
const (
	StatusPending         = "pending"
	StatusPendingProducer = "pending_producer"
	StatusAccepted        = "accepted"
	StatusRejected        = "rejected"
)

// Role statuses (client_status / producer_status).
const (
	PartyPending  = "pending"
	PartyAccepted = "accepted"
	PartyRejected = "rejected"
)

// Negotiation statuses.
const (
	NegotiationPending                    = "pending"
	NegotiationNegotiating                = "negotiating"
	NegotiationClientAcceptanceRequired   = "client_acceptance_required"
	NegotiationProducerAcceptanceRequired = "producer_acceptance_required"
	NegotiationAccepted                   = "accepted"
	NegotiationRejected                   = "rejected"
)

// Closed reports whether a proposal status no longer takes messages.
func Closed(status string) bool {
	return status == StatusAccepted || status == StatusRejected
}

// PartyTerminal reports whether a role status is final.
func PartyTerminal(status string) bool {
	return status == PartyAccepted || status == PartyRejected
}

// Resolve derives the proposal status and negotiation status from the two
// role statuses. It mirrors handle_negotiation_acceptance: the proposal is
// accepted exactly when both sides are.
func Resolve(clientStatus, producerStatus string) (status, negotiationStatus string) {
	switch {
	case clientStatus == PartyAccepted && producerStatus == PartyAccepted:
		return StatusAccepted, NegotiationAccepted
	case clientStatus != PartyAccepted:
		return "", NegotiationClientAcceptanceRequired
	default:
		return "", NegotiationProducerAcceptanceRequired
	}
}

// MinorUnits converts a currency amount to cents.
func MinorUnits(amount float64) int64 {
	return int64(math.Round(amount * 100))
}

// Terms is the agreed (or originally offered) set of terms on a proposal.
type Terms struct {
	Amount          float64
	PaymentTerms    PaymentTerms
	AdditionalTerms string
}

// FinalTerms picks the terms payment is collected on: resolved final
// values, then negotiated values, then the original offer.
func FinalTerms(fee float64, paymentTerms string, negotiatedAmount *float64, negotiatedTerms *string, finalAmount *float64, finalTerms *string) Terms {
	out := Terms{Amount: fee}
	if parsed, ok := ParsePaymentTerms(paymentTerms); ok {
		out.PaymentTerms = parsed
	} else {
		out.PaymentTerms = TermsImmediate
	}
	if negotiatedAmount != nil {
		out.Amount = *negotiatedAmount
	}
	if negotiatedTerms != nil {
		if parsed, ok := ParsePaymentTerms(*negotiatedTerms); ok {
			out.PaymentTerms = parsed
		}
	}
	if finalAmount != nil {
		out.Amount = *finalAmount
	}
	if finalTerms != nil {
		if parsed, ok := ParsePaymentTerms(*finalTerms); ok {
			out.PaymentTerms = parsed
		}
	}
	return out
}
