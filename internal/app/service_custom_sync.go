package app

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	"mybeatfi/api/internal/email"
	"mybeatfi/api/internal/negotiation"
	"mybeatfi/api/internal/rbac"
	"mybeatfi/api/internal/search"
	"mybeatfi/api/internal/store"
	"mybeatfi/api/internal/util"
)

// Brief statuses.
const (
	BriefOpen       = "open"
	BriefInProgress = "in_progress"
	BriefCompleted  = "completed"
	BriefClosed     = "closed"
)

// Submission statuses.
const (
	SubmissionPending  = "pending"
	SubmissionSelected = "selected"
)

// selectedProposalTTL is how long a proposal created from a brief stays open.
const selectedProposalTTL = 30 * 24 * time.Hour

var requestValidator = validator.New()

type CreateCustomSyncInput struct {
	ProjectTitle       string  `json:"projectTitle" validate:"required,max=200"`
	ProjectDescription string  `json:"projectDescription" validate:"required,max=5000"`
	SyncFee            float64 `json:"syncFee" validate:"gt=0"`
	EndDate            string  `json:"endDate" validate:"required"`
	Genre              string  `json:"genre" validate:"max=120"`
}

var customSyncFieldNames = map[string]string{
	"ProjectTitle":       "projectTitle",
	"ProjectDescription": "projectDescription",
	"SyncFee":            "syncFee",
	"EndDate":            "endDate",
	"Genre":              "genre",
}

type SubmitTrackInput struct {
	TrackID string `json:"trackId" validate:"required"`
	Notes   string `json:"notes" validate:"max=2000"`
}

type SelectSubmissionInput struct {
	SubmissionID string `json:"submissionId" validate:"required"`
}

// validateInput runs struct tags and reports failures under the JSON names.
func validateInput(input any, names map[string]string) error {
	err := requestValidator.Struct(input)
	if err == nil {
		return nil
	}
	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return validationError("Invalid request", nil)
	}
	fields := map[string]string{}
	for _, fe := range fieldErrs {
		name := names[fe.Field()]
		if name == "" {
			name = strings.ToLower(fe.Field()[:1]) + fe.Field()[1:]
		}
		switch fe.Tag() {
		case "required":
			fields[name] = "is required"
		case "gt":
			fields[name] = "must be greater than " + fe.Param()
		case "max":
			fields[name] = "must be at most " + fe.Param() + " characters"
		default:
			fields[name] = "is invalid"
		}
	}
	return validationError("Invalid request", fields)
}

func briefPayload(r store.CustomSyncRequest) map[string]any {
	return map[string]any{
		"id":                 r.ID,
		"clientId":           r.ClientID,
		"clientName":         r.ClientName,
		"projectTitle":       r.ProjectTitle,
		"projectDescription": r.ProjectDescription,
		"syncFee":            r.SyncFee,
		"endDate":            r.EndDate,
		"genre":              r.Genre,
		"status":             r.Status,
		"submissionCount":    r.SubmissionCount,
		"createdAt":          r.CreatedAt,
		"updatedAt":          r.UpdatedAt,
	}
}

func submissionPayload(sub store.SyncSubmission) map[string]any {
	return map[string]any{
		"id":           sub.ID,
		"requestId":    sub.RequestID,
		"producerId":   sub.ProducerID,
		"producerName": sub.ProducerName,
		"trackId":      sub.TrackID,
		"trackTitle":   sub.TrackTitle,
		"notes":        sub.Notes,
		"status":       sub.Status,
		"createdAt":    sub.CreatedAt,
	}
}

func briefRecord(r store.CustomSyncRequest) search.BriefRecord {
	return search.BriefRecord{
		ID:          r.ID,
		Title:       r.ProjectTitle,
		Description: r.ProjectDescription,
		Genre:       r.Genre,
		Status:      r.Status,
		SyncFee:     r.SyncFee,
	}
}

func (s *Service) indexBrief(r store.CustomSyncRequest) {
	if s.search == nil {
		return
	}
	record := briefRecord(r)
	s.background(func() { s.search.IndexBrief(record) })
}

func (s *Service) CreateCustomSyncRequest(ctx context.Context, session Session, input CreateCustomSyncInput) (map[string]any, error) {
	if !s.Can(session, rbac.ActionPostBrief) {
		return nil, forbidden()
	}
	input.ProjectTitle = strings.TrimSpace(input.ProjectTitle)
	input.ProjectDescription = strings.TrimSpace(input.ProjectDescription)
	input.Genre = strings.TrimSpace(input.Genre)
	if err := validateInput(input, customSyncFieldNames); err != nil {
		return nil, err
	}
	endDate, ok := parseDate(input.EndDate)
	if !ok {
		return nil, validationError("Invalid request", map[string]string{"endDate": "must be a date"})
	}
	if !endDate.After(s.now()) {
		return nil, validationError("Invalid request", map[string]string{"endDate": "must be in the future"})
	}

	brief := store.CustomSyncRequest{
		ID:                 util.NewID(),
		ClientID:           session.UserID,
		ProjectTitle:       input.ProjectTitle,
		ProjectDescription: input.ProjectDescription,
		SyncFee:            input.SyncFee,
		EndDate:            endDate.UTC(),
		Genre:              input.Genre,
		Status:             BriefOpen,
	}
	if err := s.store.InsertCustomSyncRequest(ctx, brief); err != nil {
		return nil, err
	}
	created, err := s.store.GetCustomSyncRequest(ctx, brief.ID)
	if err != nil {
		return nil, err
	}
	s.indexBrief(created)
	return briefPayload(created), nil
}

// ListCustomSyncRequests returns open briefs to producers and a client's
// own briefs to clients.
func (s *Service) ListCustomSyncRequests(ctx context.Context, session Session) ([]map[string]any, error) {
	clientID := ""
	if !session.role().OwnsTracks() && !session.isAdmin() {
		clientID = session.UserID
	}
	briefs, err := s.store.ListCustomSyncRequests(ctx, clientID)
	if err != nil {
		return nil, err
	}
	items := make([]map[string]any, 0, len(briefs))
	for _, brief := range briefs {
		items = append(items, briefPayload(brief))
	}
	return items, nil
}

// GetCustomSyncRequest includes submissions only for the brief owner and
// admins.
func (s *Service) GetCustomSyncRequest(ctx context.Context, session Session, id string) (map[string]any, error) {
	brief, err := s.store.GetCustomSyncRequest(ctx, id)
	if err != nil {
		return nil, err
	}
	owner := brief.ClientID == session.UserID || s.Can(session, rbac.ActionViewAll)
	if !owner && brief.Status != BriefOpen {
		return nil, forbidden()
	}
	payload := briefPayload(brief)
	if owner {
		submissions, err := s.store.ListSubmissions(ctx, brief.ID)
		if err != nil {
			return nil, err
		}
		items := make([]map[string]any, 0, len(submissions))
		for _, sub := range submissions {
			items = append(items, submissionPayload(sub))
		}
		payload["submissions"] = items
	}
	return payload, nil
}

func (s *Service) acceptingSubmissions(brief store.CustomSyncRequest) error {
	if brief.Status != BriefOpen || s.now().After(brief.EndDate) {
		return conflict(CodeBriefClosed, "This request is no longer accepting submissions")
	}
	return nil
}

func (s *Service) SubmitTrack(ctx context.Context, session Session, requestID string, input SubmitTrackInput) (map[string]any, error) {
	if !s.Can(session, rbac.ActionSubmitTrack) {
		return nil, forbidden()
	}
	input.TrackID = strings.TrimSpace(input.TrackID)
	input.Notes = strings.TrimSpace(input.Notes)
	if err := validateInput(input, nil); err != nil {
		return nil, err
	}

	brief, err := s.store.GetCustomSyncRequest(ctx, requestID)
	if err != nil {
		return nil, err
	}
	if err := s.acceptingSubmissions(brief); err != nil {
		return nil, err
	}
	track, err := s.store.GetTrack(ctx, input.TrackID)
	if err != nil {
		return nil, err
	}
	if track.ProducerID != session.UserID {
		return nil, forbidden()
	}

	submission := store.SyncSubmission{
		ID:         util.NewID(),
		RequestID:  brief.ID,
		ProducerID: session.UserID,
		TrackID:    track.ID,
		Notes:      input.Notes,
		Status:     SubmissionPending,
	}
	if err := s.store.InsertSubmission(ctx, submission); err != nil {
		return nil, err
	}
	created, err := s.store.GetSubmission(ctx, submission.ID)
	if err != nil {
		return nil, err
	}
	return submissionPayload(created), nil
}

// SelectSubmission turns the chosen submission into a proposal the client
// has already accepted, leaving the producer to respond.
func (s *Service) SelectSubmission(ctx context.Context, session Session, requestID string, input SelectSubmissionInput) (map[string]any, error) {
	input.SubmissionID = strings.TrimSpace(input.SubmissionID)
	if err := validateInput(input, nil); err != nil {
		return nil, err
	}
	brief, err := s.store.GetCustomSyncRequest(ctx, requestID)
	if err != nil {
		return nil, err
	}
	if brief.ClientID != session.UserID {
		return nil, forbidden()
	}
	if brief.Status != BriefOpen {
		return nil, conflict(CodeBriefClosed, "A submission was already selected for this request")
	}
	submission, err := s.store.GetSubmission(ctx, input.SubmissionID)
	if err != nil {
		return nil, err
	}
	if submission.RequestID != brief.ID {
		return nil, validationError("Invalid submission", map[string]string{"submissionId": "does not belong to this request"})
	}

	if err := s.store.UpdateSubmissionStatus(ctx, submission.ID, SubmissionSelected); err != nil {
		return nil, err
	}
	if err := s.store.UpdateCustomSyncRequestStatus(ctx, brief.ID, BriefInProgress); err != nil {
		return nil, err
	}

	briefID := brief.ID
	proposal := store.Proposal{
		ID:                  util.NewID(),
		TrackID:             submission.TrackID,
		ClientID:            brief.ClientID,
		ProducerID:          submission.ProducerID,
		CustomSyncRequestID: &briefID,
		ProjectType:         brief.ProjectTitle,
		SyncFee:             brief.SyncFee,
		PaymentTerms:        string(negotiation.TermsImmediate),
		ExpirationDate:      s.now().Add(selectedProposalTTL).UTC(),
		Status:              negotiation.StatusPendingProducer,
	}
	if err := s.store.CreateProposal(ctx, proposal); err != nil {
		return nil, err
	}
	if err := s.store.SetPartyStatus(ctx, proposal.ID, string(negotiation.RoleClient), negotiation.PartyAccepted); err != nil {
		return nil, err
	}
	created, err := s.store.GetProposal(ctx, proposal.ID)
	if err != nil {
		return nil, err
	}

	brief.Status = BriefInProgress
	s.indexBrief(brief)
	s.notify(email.NoticeNewProposal, created.ProducerEmail, created.ProducerName, noticeFor(created, session.UserName))

	submission.Status = SubmissionSelected
	return map[string]any{
		"request":    briefPayload(brief),
		"submission": submissionPayload(submission),
		"proposal":   proposalPayload(created),
	}, nil
}

// Search queries tracks and open briefs.
func (s *Service) Search(ctx context.Context, session Session, text, resultType string, limit, offset int) (search.Response, error) {
	if s.search == nil {
		return search.Response{}, domainError(http.StatusServiceUnavailable, "SEARCH_UNAVAILABLE", "Search is not available", nil)
	}
	filter, ok := search.ParseResultType(resultType)
	if !ok {
		return search.Response{}, validationError("Invalid search type", map[string]string{"type": "must be track or custom_sync"})
	}
	if limit <= 0 || limit > 50 {
		limit = 20
	}
	if offset < 0 {
		offset = 0
	}
	return s.search.Search(ctx, search.Query{
		Text:       strings.TrimSpace(text),
		FilterType: filter,
		Limit:      limit,
		Offset:     offset,
	}), nil
}
