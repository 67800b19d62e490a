// Package mfa implements TOTP second factors: enrolment, confirmation and login verification.
package mfa

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/pquerna/otp"
	"github.com/pquerna/otp/totp"

	"splan/backend/internal/mfa/domain"
	"splan/backend/internal/mfa/repository"
)

var (
	// ErrNotFound is returned when the factor does not exist or belongs to another user.
	ErrNotFound = errors.New("mfa: factor not found")
	// ErrInvalidCode is returned when a confirmation code does not match.
	ErrInvalidCode = errors.New("mfa: invalid code")
	// ErrAlreadyVerified is returned when confirming a factor twice.
	ErrAlreadyVerified = errors.New("mfa: factor already verified")
)

var validateOpts = totp.ValidateOpts{
	Period:    30,
	Skew:      1,
	Digits:    otp.DigitsSix,
	Algorithm: otp.AlgorithmSHA1,
}

// Enrolment is a newly created, unconfirmed factor and the otpauth:// URL to show as a QR code.
type Enrolment struct {
	Factor *domain.Factor
	URL    string
}

// Service manages TOTP factors.
type Service struct {
	repo   repository.Repository
	issuer string
	now    func() time.Time
}

func NewService(repo repository.Repository, issuer string) *Service {
	return &Service{repo: repo, issuer: issuer, now: time.Now}
}

// Enrol creates an unverified factor for the user. It does not affect login until confirmed.
func (s *Service) Enrol(ctx context.Context, userID int64, accountName string) (*Enrolment, error) {
	key, err := totp.Generate(totp.GenerateOpts{Issuer: s.issuer, AccountName: accountName})
	if err != nil {
		return nil, fmt.Errorf("mfa: generate key: %w", err)
	}
	f := &domain.Factor{UserID: userID, Type: domain.TypeTOTP, Secret: key.Secret(), CreatedAt: s.now().UTC()}
	if err := s.repo.Create(ctx, f); err != nil {
		return nil, err
	}
	return &Enrolment{Factor: f, URL: key.URL()}, nil
}

// Confirm marks the factor verified when code is valid for it.
func (s *Service) Confirm(ctx context.Context, userID int64, id, code string) error {
	f, err := s.owned(ctx, userID, id)
	if err != nil {
		return err
	}
	if f.Verified {
		return ErrAlreadyVerified
	}
	if !s.valid(code, f.Secret) {
		return ErrInvalidCode
	}
	return s.repo.MarkVerified(ctx, id)
}

// Remove deletes one of the user's factors.
func (s *Service) Remove(ctx context.Context, userID int64, id string) error {
	removed, err := s.repo.Delete(ctx, id, userID)
	if err != nil {
		return err
	}
	if !removed {
		return ErrNotFound
	}
	return nil
}

// List returns the user's factors.
func (s *Service) List(ctx context.Context, userID int64) ([]*domain.Factor, error) {
	return s.repo.ListByUser(ctx, userID)
}

// Required reports whether login needs a code for the user.
func (s *Service) Required(ctx context.Context, userID int64) (bool, error) {
	return s.repo.HasVerified(ctx, userID)
}

// Check reports whether code is valid for any confirmed factor of the user.
func (s *Service) Check(ctx context.Context, userID int64, code string) (bool, error) {
	factors, err := s.repo.ListByUser(ctx, userID)
	if err != nil {
		return false, err
	}
	for _, f := range factors {
		if f.Verified && s.valid(code, f.Secret) {
			return true, nil
		}
	}
	return false, nil
}

func (s *Service) owned(ctx context.Context, userID int64, id string) (*domain.Factor, error) {
	f, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if f == nil || f.UserID != userID {
		return nil, ErrNotFound
	}
	return f, nil
}

func (s *Service) valid(code, secret string) bool {
	code = strings.TrimSpace(code)
	if code == "" {
		return false
	}
	ok, err := totp.ValidateCustom(code, secret, s.now().UTC(), validateOpts)
	return err == nil && ok
}
