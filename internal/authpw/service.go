// Package authpw provides email/password authentication with verification.
package authpw

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"golang.org/x/crypto/bcrypt"

	"mybeatfi/api/internal/store"
	"mybeatfi/api/internal/util"
)

var (
	ErrInvalidInput       = errors.New("invalid input")
	ErrEmailTaken         = errors.New("email already registered")
	ErrInvalidCredentials = errors.New("invalid email or password")
	ErrInvalidToken       = errors.New("invalid or expired token")
)

const (
	verificationTTL = 24 * time.Hour
	resetTTL        = time.Hour
)

// Service provides email/password authentication
type Service struct {
	store    UserStore
	validate *validator.Validate
}

// UserStore defines the storage interface for auth
type UserStore interface {
	GetProfileByEmail(ctx context.Context, email string) (store.Profile, error)
	CreateProfile(ctx context.Context, profile store.Profile) error
	VerifyProfileEmail(ctx context.Context, token string) (string, error)
	UpdatePasswordHash(ctx context.Context, userID, passwordHash string) error
	CreatePasswordReset(ctx context.Context, userID, token string, expiresAt time.Time) error
	ConsumePasswordReset(ctx context.Context, token string) (string, error)
}

func NewService(store UserStore) *Service {
	return &Service{
		store:    store,
		validate: validator.New(),
	}
}

// SignUpRequest contains sign-up parameters. Admin accounts are not
// self-service.
type SignUpRequest struct {
	Email       string `validate:"required,email"`
	Password    string `validate:"required,min=8"`
	DisplayName string `validate:"required,max=120"`
	AccountType string `validate:"required,oneof=client producer rights_holder"`
}

type SignUpResponse struct {
	UserID              string
	VerificationToken   string
	RequiresEmailVerify bool
}

// SignUp creates a new unverified profile.
func (s *Service) SignUp(ctx context.Context, req SignUpRequest) (*SignUpResponse, error) {
	req.Email = strings.ToLower(strings.TrimSpace(req.Email))
	req.DisplayName = strings.TrimSpace(req.DisplayName)
	if req.AccountType == "" {
		req.AccountType = "client"
	}
	if err := s.validate.Struct(req); err != nil {
		return nil, fmt.Errorf("%w: %s", ErrInvalidInput, describeValidation(err))
	}

	if _, err := s.store.GetProfileByEmail(ctx, req.Email); err == nil {
		return nil, ErrEmailTaken
	} else if !errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("lookup profile: %w", err)
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}

	expiresAt := time.Now().Add(verificationTTL)
	profile := store.Profile{
		ID:                    util.NewID(),
		Email:                 req.Email,
		DisplayName:           req.DisplayName,
		PasswordHash:          string(hash),
		AccountType:           req.AccountType,
		VerificationToken:     util.NewToken(32),
		VerificationExpiresAt: &expiresAt,
	}
	if err := s.store.CreateProfile(ctx, profile); err != nil {
		if errors.Is(err, store.ErrDuplicate) {
			return nil, ErrEmailTaken
		}
		return nil, fmt.Errorf("create profile: %w", err)
	}

	return &SignUpResponse{
		UserID:              profile.ID,
		VerificationToken:   profile.VerificationToken,
		RequiresEmailVerify: true,
	}, nil
}

type SignInRequest struct {
	Email    string
	Password string
}

type SignInResponse struct {
	Profile        store.Profile
	RequiresVerify bool
}

// SignIn authenticates a profile. Unverified accounts get RequiresVerify
// instead of a session.
func (s *Service) SignIn(ctx context.Context, req SignInRequest) (*SignInResponse, error) {
	if strings.TrimSpace(req.Email) == "" || req.Password == "" {
		return nil, fmt.Errorf("%w: email and password are required", ErrInvalidInput)
	}

	profile, err := s.store.GetProfileByEmail(ctx, strings.TrimSpace(req.Email))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrInvalidCredentials
	}
	if err != nil {
		return nil, fmt.Errorf("lookup profile: %w", err)
	}

	if err := bcrypt.CompareHashAndPassword([]byte(profile.PasswordHash), []byte(req.Password)); err != nil {
		return nil, ErrInvalidCredentials
	}

	return &SignInResponse{
		Profile:        profile,
		RequiresVerify: !profile.IsEmailVerified,
	}, nil
}

// VerifyEmail verifies an email address using a token and returns the profile id.
func (s *Service) VerifyEmail(ctx context.Context, token string) (string, error) {
	if strings.TrimSpace(token) == "" {
		return "", fmt.Errorf("%w: verification token required", ErrInvalidInput)
	}
	userID, err := s.store.VerifyProfileEmail(ctx, token)
	if errors.Is(err, sql.ErrNoRows) {
		return "", ErrInvalidToken
	}
	if err != nil {
		return "", fmt.Errorf("verify email: %w", err)
	}
	return userID, nil
}

// RequestPasswordReset creates a reset token. Unknown emails return an empty
// token and no error.
func (s *Service) RequestPasswordReset(ctx context.Context, email string) (string, store.Profile, error) {
	profile, err := s.store.GetProfileByEmail(ctx, strings.TrimSpace(email))
	if errors.Is(err, sql.ErrNoRows) {
		return "", store.Profile{}, nil
	}
	if err != nil {
		return "", store.Profile{}, fmt.Errorf("lookup profile: %w", err)
	}

	token := util.NewToken(32)
	if err := s.store.CreatePasswordReset(ctx, profile.ID, token, time.Now().Add(resetTTL)); err != nil {
		return "", store.Profile{}, err
	}
	return token, profile, nil
}

type ResetPasswordRequest struct {
	Token       string `validate:"required"`
	NewPassword string `validate:"required,min=8"`
}

// ResetPassword resets a password using a single-use reset token.
func (s *Service) ResetPassword(ctx context.Context, req ResetPasswordRequest) error {
	if err := s.validate.Struct(req); err != nil {
		return fmt.Errorf("%w: %s", ErrInvalidInput, describeValidation(err))
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.NewPassword), bcrypt.DefaultCost)
	if err != nil {
		return fmt.Errorf("hash password: %w", err)
	}

	userID, err := s.store.ConsumePasswordReset(ctx, req.Token)
	if errors.Is(err, sql.ErrNoRows) {
		return ErrInvalidToken
	}
	if err != nil {
		return fmt.Errorf("consume reset token: %w", err)
	}

	if err := s.store.UpdatePasswordHash(ctx, userID, string(hash)); err != nil {
		return fmt.Errorf("update password: %w", err)
	}
	return nil
}

func describeValidation(err error) string {
	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return err.Error()
	}
	parts := make([]string, 0, len(fieldErrs))
	for _, fe := range fieldErrs {
		parts = append(parts, fmt.Sprintf("%s failed %s", strings.ToLower(fe.Field()), fe.Tag()))
	}
	return strings.Join(parts, "; ")
}
