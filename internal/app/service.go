package app

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"mybeatfi/api/internal/auth"
	"mybeatfi/api/internal/authpw"
	"mybeatfi/api/internal/catalog"
	"mybeatfi/api/internal/config"
	"mybeatfi/api/internal/email"
	"mybeatfi/api/internal/license"
	"mybeatfi/api/internal/negotiation"
	"mybeatfi/api/internal/payment"
	"mybeatfi/api/internal/rbac"
	"mybeatfi/api/internal/realtime"
	"mybeatfi/api/internal/search"
	"mybeatfi/api/internal/store"
	"mybeatfi/api/internal/util"
)

// Session is the caller's identity, built per request from the bearer token
// and passed explicitly to every operation.
type Session struct {
	Token          string
	RefreshToken   string
	UserID         string
	UserName       string
	Email          string
	Role           string
	MembershipTier string
	JTI            string
	ExpiresAt      time.Time
}

func (s Session) role() rbac.Role {
	return rbac.Normalize(s.Role)
}

func (s Session) isAdmin() bool {
	return s.role() == rbac.RoleAdmin
}

type dataStore interface {
	authpw.UserStore
	GetProfile(context.Context, string) (store.Profile, error)
	SaveRefreshSession(context.Context, string, string, time.Time) error
	LookupRefreshSession(context.Context, string) (string, error)
	RevokeRefreshSession(context.Context, string) error
	RevokeAccessToken(context.Context, string, time.Time) error
	IsAccessTokenRevoked(context.Context, string) (bool, error)
	GetTrack(context.Context, string) (store.Track, error)

	GetProposal(context.Context, string) (store.Proposal, error)
	ListProposals(context.Context, store.ProposalFilter) ([]store.Proposal, error)
	CreateProposal(context.Context, store.Proposal) error
	ListNegotiations(context.Context, string) ([]store.NegotiationMessage, error)
	InsertNegotiation(context.Context, store.NegotiationMessage) error
	MarkNegotiating(context.Context, string, string, string) error
	UpdateNegotiatedTerms(context.Context, string, store.NegotiatedUpdate) error
	SetPartyStatus(context.Context, string, string, string) error
	HandleNegotiationAcceptance(context.Context, string, bool) (string, error)
	HandleNegotiationRejection(context.Context, string, bool) (string, error)
	UpdatePayment(context.Context, string, store.PaymentUpdate) error

	ListTaxonomy(context.Context, store.TaxonomyTable) ([]store.TaxonomyItem, error)
	InsertTaxonomyItem(context.Context, string, store.TaxonomyItem) (store.TaxonomyItem, error)
	InsertTaxonomyChild(context.Context, string, string, store.TaxonomyItem) (store.TaxonomyItem, error)
	UpdateTaxonomyItem(context.Context, string, string, string, string) error
	UpdateTaxonomyChild(context.Context, string, string, string, string, string, string) error
	DeleteTaxonomyItem(context.Context, string, string) error
	DeleteTaxonomyChild(context.Context, string, string, string, string) error

	ListDiscounts(context.Context) ([]store.Discount, error)
	GetDiscount(context.Context, string) (store.Discount, error)
	InsertDiscount(context.Context, store.Discount) (store.Discount, error)
	UpdateDiscount(context.Context, store.Discount) (store.Discount, error)
	DeleteDiscount(context.Context, string) error

	GetCustomSyncRequest(context.Context, string) (store.CustomSyncRequest, error)
	ListCustomSyncRequests(context.Context, string) ([]store.CustomSyncRequest, error)
	InsertCustomSyncRequest(context.Context, store.CustomSyncRequest) error
	UpdateCustomSyncRequestStatus(context.Context, string, string) error
	ListSubmissions(context.Context, string) ([]store.SyncSubmission, error)
	GetSubmission(context.Context, string) (store.SyncSubmission, error)
	InsertSubmission(context.Context, store.SyncSubmission) error
	UpdateSubmissionStatus(context.Context, string, string) error

	Ping(ctx context.Context) error
}

// refreshStore keeps refresh tokens; Redis replaces Postgres when configured.
type refreshStore interface {
	SaveRefreshSession(context.Context, string, string, time.Time) error
	LookupRefreshSession(context.Context, string) (string, error)
	RevokeRefreshSession(context.Context, string) error
}

type paymentGateway interface {
	CreateInvoice(context.Context, payment.InvoiceRequest) (payment.InvoiceResult, error)
	CreateCheckout(context.Context, payment.CheckoutRequest) (payment.CheckoutResult, error)
}

type eventHub interface {
	Publish(context.Context, realtime.Event) error
	Subscribe(context.Context, string) (*realtime.Subscription, error)
}

type mailer interface {
	IsConfigured() bool
	SendNotice(email.Notice, string, email.Message) error
	SendVerificationEmail(to, userName, token string) error
	SendPasswordResetEmail(to, userName, token string) error
}

type searcher interface {
	Search(context.Context, search.Query) search.Response
	IndexBrief(search.BriefRecord)
}

type agreementService interface {
	Agreement(context.Context, license.Agreement) (license.Document, error)
}

// Options carries the optional collaborators. Nil members disable the
// feature they back.
type Options struct {
	Sessions refreshStore
	Payments paymentGateway
	Events   eventHub
	Mailer   mailer
	Search   searcher
	Licenses agreementService
}

type Service struct {
	cfg      config.Config
	store    dataStore
	sessions refreshStore
	authpw   *authpw.Service
	payments paymentGateway
	events   eventHub
	mailer   mailer
	search   searcher
	licenses agreementService
	schema   *catalog.Schema
	detector negotiation.Detector
	profiles *profileCache
	now      func() time.Time
	async    func(func())
}

func New(cfg config.Config, dataStore dataStore, opts Options) (*Service, error) {
	schema, err := catalog.Default()
	if err != nil {
		return nil, err
	}
	sessions := opts.Sessions
	if sessions == nil {
		sessions = dataStore
	}
	return &Service{
		cfg:      cfg,
		store:    dataStore,
		sessions: sessions,
		authpw:   authpw.NewService(dataStore),
		payments: opts.Payments,
		events:   opts.Events,
		mailer:   opts.Mailer,
		search:   opts.Search,
		licenses: opts.Licenses,
		schema:   schema,
		detector: negotiation.Detector{KeywordFallback: cfg.NegotiationKeywordMatch},
		profiles: newProfileCache(cfg.ProfileCacheTTL),
		now:      time.Now,
		async:    func(fn func()) { go fn() },
	}, nil
}

func (s *Service) Ping(ctx context.Context) error {
	return s.store.Ping(ctx)
}

func (s *Service) Can(session Session, action rbac.Action) bool {
	return rbac.Can(session.role(), action)
}

func (s *Service) SMTPConfigured() bool {
	return s.mailer != nil && s.mailer.IsConfigured()
}

func (s *Service) profile(ctx context.Context, userID string) (store.Profile, error) {
	if cached, ok := s.profiles.get(userID); ok {
		return cached, nil
	}
	profile, err := s.store.GetProfile(ctx, userID)
	if err != nil {
		return store.Profile{}, err
	}
	s.profiles.put(profile)
	return profile, nil
}

func (s *Service) issueSession(ctx context.Context, profile store.Profile) (Session, error) {
	now := s.now()
	expiresAt := now.Add(s.cfg.AccessTTL)
	jti := util.NewID()

	token, err := auth.IssueToken([]byte(s.cfg.JWTSecret), auth.Claims{
		Name:           profile.DisplayName,
		AccountType:    profile.AccountType,
		MembershipTier: profile.MembershipTier,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   profile.ID,
			ID:        jti,
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
	})
	if err != nil {
		return Session{}, err
	}

	refresh := util.NewToken(32)
	if err := s.sessions.SaveRefreshSession(ctx, auth.HashToken(refresh), profile.ID, now.Add(s.cfg.RefreshTTL)); err != nil {
		return Session{}, fmt.Errorf("save refresh session: %w", err)
	}

	return Session{
		Token:          token,
		RefreshToken:   refresh,
		UserID:         profile.ID,
		UserName:       profile.DisplayName,
		Email:          profile.Email,
		Role:           profile.AccountType,
		MembershipTier: profile.MembershipTier,
		JTI:            jti,
		ExpiresAt:      expiresAt,
	}, nil
}

func (s *Service) SessionFromToken(ctx context.Context, token string) (Session, error) {
	claims, err := auth.ParseToken([]byte(s.cfg.JWTSecret), token)
	if err != nil {
		return Session{}, err
	}
	revoked, err := s.store.IsAccessTokenRevoked(ctx, claims.ID)
	if err != nil {
		return Session{}, err
	}
	if revoked {
		return Session{}, auth.ErrInvalidToken
	}

	profile, err := s.profile(ctx, claims.Subject)
	if err != nil {
		return Session{}, err
	}

	return Session{
		Token:          token,
		UserID:         profile.ID,
		UserName:       profile.DisplayName,
		Email:          profile.Email,
		Role:           profile.AccountType,
		MembershipTier: profile.MembershipTier,
		JTI:            claims.ID,
		ExpiresAt:      claims.ExpiresAt.Time,
	}, nil
}

func (s *Service) Refresh(ctx context.Context, refreshToken string) (Session, error) {
	tokenHash := auth.HashToken(refreshToken)
	userID, err := s.sessions.LookupRefreshSession(ctx, tokenHash)
	if err != nil {
		return Session{}, err
	}
	if err := s.sessions.RevokeRefreshSession(ctx, tokenHash); err != nil {
		return Session{}, err
	}
	profile, err := s.profile(ctx, userID)
	if err != nil {
		return Session{}, err
	}
	return s.issueSession(ctx, profile)
}

func (s *Service) Logout(ctx context.Context, session Session, refreshToken string) error {
	if session.JTI != "" {
		_ = s.store.RevokeAccessToken(ctx, session.JTI, session.ExpiresAt)
	}
	if refreshToken != "" {
		_ = s.sessions.RevokeRefreshSession(ctx, auth.HashToken(refreshToken))
	}
	return nil
}

// SignUp creates an unverified account and mails the verification link.
// The token is returned so development setups without SMTP can verify.
func (s *Service) SignUp(ctx context.Context, req authpw.SignUpRequest) (*authpw.SignUpResponse, error) {
	resp, err := s.authpw.SignUp(ctx, req)
	if err != nil {
		return nil, err
	}
	if s.SMTPConfigured() {
		to, name, token := req.Email, req.DisplayName, resp.VerificationToken
		s.background(func() {
			if err := s.mailer.SendVerificationEmail(to, name, token); err != nil {
				log.Printf("email: verification for %s: %v", resp.UserID, err)
			}
		})
	}
	return resp, nil
}

func (s *Service) SignIn(ctx context.Context, req authpw.SignInRequest) (Session, error) {
	resp, err := s.authpw.SignIn(ctx, req)
	if err != nil {
		return Session{}, err
	}
	if resp.RequiresVerify {
		return Session{}, domainError(http.StatusForbidden, "EMAIL_NOT_VERIFIED", "Please verify your email before signing in", nil)
	}
	s.profiles.put(resp.Profile)
	return s.issueSession(ctx, resp.Profile)
}

func (s *Service) VerifyEmail(ctx context.Context, token string) error {
	userID, err := s.authpw.VerifyEmail(ctx, token)
	if err != nil {
		return err
	}
	s.profiles.invalidate(userID)
	return nil
}

// RequestPasswordReset always succeeds for unknown emails. The token is
// returned for the development bypass.
func (s *Service) RequestPasswordReset(ctx context.Context, address string) (string, error) {
	token, profile, err := s.authpw.RequestPasswordReset(ctx, address)
	if err != nil || token == "" {
		return "", err
	}
	if s.SMTPConfigured() {
		s.background(func() {
			if err := s.mailer.SendPasswordResetEmail(profile.Email, profile.DisplayName, token); err != nil {
				log.Printf("email: password reset for %s: %v", profile.ID, err)
			}
		})
	}
	return token, nil
}

func (s *Service) ResetPassword(ctx context.Context, req authpw.ResetPasswordRequest) error {
	return s.authpw.ResetPassword(ctx, req)
}

func (s *Service) background(fn func()) {
	s.async(fn)
}

// publish sends a realtime event without blocking the caller on Redis.
func (s *Service) publish(event realtime.Event) {
	if s.events == nil {
		return
	}
	if event.At.IsZero() {
		event.At = s.now().UTC()
	}
	s.background(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := s.events.Publish(ctx, event); err != nil {
			log.Printf("realtime: %s on %s: %v", event.Type, event.ProposalID, err)
		}
	})
}

// notify emails one party about a negotiation event.
func (s *Service) notify(kind email.Notice, to, recipientName string, msg email.Message) {
	if !s.SMTPConfigured() || to == "" {
		return
	}
	msg.RecipientName = recipientName
	s.background(func() {
		if err := s.mailer.SendNotice(kind, to, msg); err != nil {
			log.Printf("email: %s for proposal %s: %v", kind, msg.ProposalID, err)
		}
	})
}
