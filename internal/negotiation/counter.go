package negotiation

import (
	"fmt"
	"strings"
	"time"
)

// Message is one entry of a proposal's negotiation thread.
type Message struct {
	ID                  string
	SenderID            string
	Text                string
	CounterOffer        *float64
	CounterPaymentTerms *string
	CounterTerms        *string
	IsCounter           bool
	CreatedAt           time.Time
}

// CarriesCounter reports whether the message puts any term on the table.
func (m Message) CarriesCounter() bool {
	if m.CounterOffer != nil || m.CounterPaymentTerms != nil {
		return true
	}
	return m.CounterTerms != nil && strings.TrimSpace(*m.CounterTerms) != ""
}

var counterKeywords = []string{"counter", "propose", "suggest", "offer"}

// Detector decides whether the latest message in a thread is a counter the
// viewer has to answer.
type Detector struct {
	// KeywordFallback treats plain-text messages mentioning a counter
	// keyword as counters. Rows written before is_counter existed rely on it.
	KeywordFallback bool
}

func (d Detector) IsCounter(m Message) bool {
	if m.IsCounter || m.CarriesCounter() {
		return true
	}
	if !d.KeywordFallback {
		return false
	}
	lower := strings.ToLower(m.Text)
	for _, keyword := range counterKeywords {
		if strings.Contains(lower, keyword) {
			return true
		}
	}
	return false
}

// Awaiting returns the latest message when it is a counter sent by someone
// other than viewerID and the viewer's role status is still open.
// Messages are expected in chronological order.
func (d Detector) Awaiting(messages []Message, viewerID, viewerStatus string) (Message, bool) {
	if len(messages) == 0 || viewerID == "" || PartyTerminal(viewerStatus) {
		return Message{}, false
	}
	latest := messages[len(messages)-1]
	if latest.SenderID == viewerID || !d.IsCounter(latest) {
		return Message{}, false
	}
	return latest, true
}

// CurrentCounter returns the most recent message carrying a counter field.
func CurrentCounter(messages []Message) (Message, bool) {
	for i := len(messages) - 1; i >= 0; i-- {
		if messages[i].CarriesCounter() {
			return messages[i], true
		}
	}
	return Message{}, false
}

// Decision is the itemized answer to a counter.
type Decision struct {
	AcceptAmount          bool `json:"acceptAmount"`
	AcceptPaymentTerms    bool `json:"acceptPaymentTerms"`
	AcceptAdditionalTerms bool `json:"acceptAdditionalTerms"`
}

// Plan is what an itemized acceptance does to the proposal.
type Plan struct {
	Amount          *float64
	PaymentTerms    *string
	AdditionalTerms *string
	Accepted        []string
	Declined        []string
	// Finalize is set only when nothing was declined.
	Finalize bool
}

// Changes reports whether the plan copies any counter value.
func (p Plan) Changes() bool {
	return p.Amount != nil || p.PaymentTerms != nil || p.AdditionalTerms != nil
}

// Summary renders the accept/decline split appended to the thread.
func (p Plan) Summary() string {
	accepted := "none"
	if len(p.Accepted) > 0 {
		accepted = strings.Join(p.Accepted, ", ")
	}
	declined := "none"
	if len(p.Declined) > 0 {
		declined = strings.Join(p.Declined, ", ")
	}
	return fmt.Sprintf("Accepted: %s | Declined: %s", accepted, declined)
}

// PlanAcceptance splits a counter into the fields copied to negotiated_*
// and the fields declined. A field is copied only when it was both offered
// and accepted; a false flag declines the field whether or not it was offered.
func PlanAcceptance(counter Message, decision Decision) Plan {
	var plan Plan

	switch {
	case !decision.AcceptAmount:
		plan.Declined = append(plan.Declined, describeAmount(counter.CounterOffer))
	case counter.CounterOffer != nil:
		amount := *counter.CounterOffer
		plan.Amount = &amount
		plan.Accepted = append(plan.Accepted, describeAmount(counter.CounterOffer))
	}

	switch {
	case !decision.AcceptPaymentTerms:
		plan.Declined = append(plan.Declined, describePaymentTerms(counter.CounterPaymentTerms))
	case counter.CounterPaymentTerms != nil:
		terms := *counter.CounterPaymentTerms
		if parsed, ok := ParsePaymentTerms(terms); ok {
			terms = string(parsed)
		}
		plan.PaymentTerms = &terms
		plan.Accepted = append(plan.Accepted, describePaymentTerms(&terms))
	}

	switch {
	case !decision.AcceptAdditionalTerms:
		plan.Declined = append(plan.Declined, "additional terms")
	case counter.CounterTerms != nil && strings.TrimSpace(*counter.CounterTerms) != "":
		terms := strings.TrimSpace(*counter.CounterTerms)
		plan.AdditionalTerms = &terms
		plan.Accepted = append(plan.Accepted, "additional terms")
	}

	plan.Finalize = len(plan.Declined) == 0
	return plan
}

func describeAmount(amount *float64) string {
	if amount == nil {
		return "amount"
	}
	return fmt.Sprintf("amount ($%.2f)", *amount)
}

func describePaymentTerms(terms *string) string {
	if terms == nil {
		return "payment terms"
	}
	if parsed, ok := ParsePaymentTerms(*terms); ok {
		return fmt.Sprintf("payment terms (%s)", parsed.Label())
	}
	return fmt.Sprintf("payment terms (%s)", *terms)
}
