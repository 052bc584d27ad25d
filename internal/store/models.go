package store

import "time"

type Profile struct {
	ID                    string
	Email                 string
	DisplayName           string
	PasswordHash          string
	AccountType           string
	MembershipTier        string
	IsEmailVerified       bool
	VerificationToken     string
	VerificationExpiresAt *time.Time
	CreatedAt             time.Time
	UpdatedAt             time.Time
}

type Track struct {
	ID           string
	ProducerID   string
	ProducerName string
	Title        string
	Artist       string
	Genres       []string
	Moods        []string
	BPM          *int
	CreatedAt    time.Time
}

// Proposal is a sync_proposals row with its track and both parties expanded.
type Proposal struct {
	ID                     string
	TrackID                string
	TrackTitle             string
	ClientID               string
	ClientName             string
	ClientEmail            string
	ProducerID             string
	ProducerName           string
	ProducerEmail          string
	CustomSyncRequestID    *string
	ProjectType            string
	Duration               string
	SyncFee                float64
	PaymentTerms           string
	IsExclusive            bool
	ExpirationDate         time.Time
	IsUrgent               bool
	Status                 string
	ClientStatus           string
	ProducerStatus         string
	NegotiationStatus      string
	NegotiatedAmount       *float64
	NegotiatedPaymentTerms *string
	NegotiatedTerms        *string
	FinalAmount            *float64
	FinalPaymentTerms      *string
	LastMessageSenderID    *string
	LastMessageAt          *time.Time
	PaymentStatus          string
	PaymentReference       *string
	InvoiceURL             *string
	PaymentDueDate         *time.Time
	CreatedAt              time.Time
	UpdatedAt              time.Time
}

// IsSyncProposal is false for proposals created from a custom sync request.
func (p Proposal) IsSyncProposal() bool {
	return p.CustomSyncRequestID == nil
}

type NegotiationMessage struct {
	ID                  string
	ProposalID          string
	SenderID            string
	SenderName          string
	Message             string
	CounterOffer        *float64
	CounterPaymentTerms *string
	CounterTerms        *string
	IsCounter           bool
	CreatedAt           time.Time
}

// ProposalFilter scopes a proposal listing. An empty ProducerID and
// ClientID lists every proposal.
type ProposalFilter struct {
	ProducerID string
	ClientID   string
	Status     string
}

// NegotiatedUpdate carries the columns an accepted counter writes. Nil
// pointers and empty statuses leave the column unchanged.
type NegotiatedUpdate struct {
	Amount         *float64
	PaymentTerms   *string
	Terms          *string
	ClientStatus   string
	ProducerStatus string
}

type PaymentUpdate struct {
	Status     string
	Reference  string
	InvoiceURL string
	DueDate    *time.Time
}

type CustomSyncRequest struct {
	ID                 string
	ClientID           string
	ClientName         string
	ProjectTitle       string
	ProjectDescription string
	SyncFee            float64
	EndDate            time.Time
	Genre              string
	Status             string
	SubmissionCount    int
	CreatedAt          time.Time
	UpdatedAt          time.Time
}

type SyncSubmission struct {
	ID           string
	RequestID    string
	ProducerID   string
	ProducerName string
	TrackID      string
	TrackTitle   string
	Notes        string
	Status       string
	CreatedAt    time.Time
}

// TaxonomyTable names the tables behind one taxonomy entity.
type TaxonomyTable struct {
	Parent     string
	Child      string
	ForeignKey string
}

type TaxonomyItem struct {
	ID          string
	ParentID    *string
	Name        string
	DisplayName string
	CreatedAt   time.Time
	Children    []TaxonomyItem
}

type Discount struct {
	ID              string
	Name            string
	Description     string
	Code            string
	DiscountPercent float64
	AppliesTo       string
	StartDate       time.Time
	EndDate         time.Time
	IsActive        bool
	CreatedAt       time.Time
	UpdatedAt       time.Time
}
