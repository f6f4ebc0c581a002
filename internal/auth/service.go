package auth

import (
	"context"
	"errors"
	"fmt"
	"net/mail"
	"strings"
	"time"
)

const (
	maxNameLength         = 80
	maxOrganizationLength = 80
	maxEmailLength        = 254
	minPasswordLength     = 8
	// bcrypt ignores input beyond 72 bytes; longer passwords would
	// silently truncate, so reject them instead.
	maxPasswordLength = 72
)

// Service is the session manager: it orchestrates credential checks,
// token minting and refresh rotation over a UserStore and a Codec.
// All session truth lives in the store; the service itself is
// stateless per request.
type Service struct {
	store UserStore
	codec *Codec
	now   func() time.Time
}

// ServiceOption configures Service behavior.
type ServiceOption func(*Service)

// WithClock overrides the time source (useful for tests).
func WithClock(fn func() time.Time) ServiceOption {
	return func(s *Service) {
		if fn != nil {
			s.now = fn
		}
	}
}

// NewService constructs the session manager.
func NewService(store UserStore, codec *Codec, opts ...ServiceOption) (*Service, error) {
	if store == nil {
		return nil, errors.New("auth: store is required")
	}
	if codec == nil {
		return nil, errors.New("auth: codec is required")
	}
	svc := &Service{store: store, codec: codec, now: time.Now}
	for _, opt := range opts {
		opt(svc)
	}
	return svc, nil
}

// Register creates an account and starts its first session lineage.
func (s *Service) Register(ctx context.Context, name, organization, email, password string) (Profile, TokenPair, error) {
	name = strings.TrimSpace(name)
	organization = strings.TrimSpace(organization)
	email = normalizeEmail(email)

	if err := validateRegistration(name, organization, email, password); err != nil {
		return Profile{}, TokenPair{}, err
	}

	hash, err := HashPassword(password)
	if err != nil {
		return Profile{}, TokenPair{}, fmt.Errorf("hash password: %w", err)
	}
	user := &User{
		Name:         name,
		Organization: organization,
		Email:        email,
		PasswordHash: hash,
	}
	if err := s.store.Create(ctx, user); err != nil {
		return Profile{}, TokenPair{}, err
	}

	pair, err := s.startLineage(ctx, user.ID)
	if err != nil {
		return Profile{}, TokenPair{}, err
	}
	return user.Profile(), pair, nil
}

// Login verifies credentials and starts a new lineage, invalidating
// any prior session. Unknown email and wrong password are
// indistinguishable in both error and timing.
func (s *Service) Login(ctx context.Context, email, password string) (Profile, TokenPair, error) {
	email = normalizeEmail(email)
	if email == "" || password == "" {
		burnPasswordCheck(password)
		return Profile{}, TokenPair{}, ErrInvalidCredentials
	}

	user, err := s.store.FindByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			burnPasswordCheck(password)
			return Profile{}, TokenPair{}, ErrInvalidCredentials
		}
		return Profile{}, TokenPair{}, err
	}
	if err := VerifyPassword(user.PasswordHash, password); err != nil {
		return Profile{}, TokenPair{}, ErrInvalidCredentials
	}

	pair, err := s.startLineage(ctx, user.ID)
	if err != nil {
		return Profile{}, TokenPair{}, err
	}
	return user.Profile(), pair, nil
}

// Refresh rotates a still-valid refresh token. Presenting a token
// whose fingerprint no longer matches the stored verifier is treated
// as reuse: the lineage is cleared and the caller must log in again.
func (s *Service) Refresh(ctx context.Context, refreshToken string) (Profile, TokenPair, error) {
	subjectID, _, err := s.codec.VerifyRefresh(refreshToken)
	if err != nil {
		return Profile{}, TokenPair{}, ErrInvalidToken
	}

	user, err := s.store.Find(ctx, subjectID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return Profile{}, TokenPair{}, ErrInvalidToken
		}
		return Profile{}, TokenPair{}, err
	}
	if user.RefreshHash == "" {
		return Profile{}, TokenPair{}, ErrInvalidToken
	}

	presented := Fingerprint(refreshToken)
	if presented != user.RefreshHash {
		// Replay of a rotated-out token. Containment beats convenience:
		// kill the whole lineage.
		if err := s.store.ClearRefreshHash(ctx, user.ID); err != nil && !errors.Is(err, ErrNotFound) {
			return Profile{}, TokenPair{}, err
		}
		return Profile{}, TokenPair{}, ErrInvalidToken
	}

	pair, err := s.mintPair(user.ID)
	if err != nil {
		return Profile{}, TokenPair{}, err
	}
	newHash := Fingerprint(pair.RefreshToken)
	if err := s.store.RotateRefreshHash(ctx, user.ID, presented, newHash); err != nil {
		if errors.Is(err, ErrInvalidToken) || errors.Is(err, ErrNotFound) {
			// Lost a concurrent rotation race; the loser re-authenticates.
			return Profile{}, TokenPair{}, ErrInvalidToken
		}
		return Profile{}, TokenPair{}, err
	}
	return user.Profile(), pair, nil
}

// Logout ends the current lineage. Cookie clearing is the transport's
// job.
func (s *Service) Logout(ctx context.Context, subjectID string) error {
	err := s.store.ClearRefreshHash(ctx, subjectID)
	if errors.Is(err, ErrNotFound) {
		return nil
	}
	return err
}

// Profile resolves the public identity for a subject.
func (s *Service) Profile(ctx context.Context, subjectID string) (Profile, error) {
	user, err := s.store.Find(ctx, subjectID)
	if err != nil {
		return Profile{}, err
	}
	return user.Profile(), nil
}

// startLineage mints a pair and unconditionally installs its refresh
// fingerprint, invalidating any previous session.
func (s *Service) startLineage(ctx context.Context, userID string) (TokenPair, error) {
	pair, err := s.mintPair(userID)
	if err != nil {
		return TokenPair{}, err
	}
	if err := s.store.SetRefreshHash(ctx, userID, Fingerprint(pair.RefreshToken)); err != nil {
		return TokenPair{}, err
	}
	return pair, nil
}

func (s *Service) mintPair(userID string) (TokenPair, error) {
	access, accessExp, err := s.codec.MintAccess(userID)
	if err != nil {
		return TokenPair{}, err
	}
	refresh, _, refreshExp, err := s.codec.MintRefresh(userID)
	if err != nil {
		return TokenPair{}, err
	}
	return TokenPair{
		AccessToken:      access,
		RefreshToken:     refresh,
		AccessExpiresAt:  accessExp,
		RefreshExpiresAt: refreshExp,
	}, nil
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func validateRegistration(name, organization, email, password string) error {
	if name == "" || len(name) > maxNameLength {
		return fmt.Errorf("%w: name must be 1-%d characters", ErrInvalidInput, maxNameLength)
	}
	if organization == "" || len(organization) > maxOrganizationLength {
		return fmt.Errorf("%w: organization must be 1-%d characters", ErrInvalidInput, maxOrganizationLength)
	}
	if email == "" || len(email) > maxEmailLength {
		return fmt.Errorf("%w: email is required", ErrInvalidInput)
	}
	if addr, err := mail.ParseAddress(email); err != nil || addr.Address != email {
		return fmt.Errorf("%w: malformed email", ErrInvalidInput)
	}
	if len(password) < minPasswordLength || len(password) > maxPasswordLength {
		return fmt.Errorf("%w: password must be %d-%d characters", ErrInvalidInput, minPasswordLength, maxPasswordLength)
	}
	return nil
}
