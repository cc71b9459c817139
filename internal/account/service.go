// AngelaMos | 2026
// service.go

package account

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/carterperez-dev/license-gate/internal/core"
)

var (
	ErrUsernameTaken      = errors.New("username already taken")
	ErrInvalidCredentials = errors.New("invalid credentials")
)

const MinUsernameLength = 3

type Service struct {
	repo Repository
	now  func() time.Time
}

type Option func(*Service)

func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		s.now = now
	}
}

func NewService(repo Repository, opts ...Option) *Service {
	s := &Service{repo: repo, now: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Service) Repository() Repository {
	return s.repo
}

// Create registers a new account. The secret is stored only as an argon2id
// hash, and the signup itself counts as the first login.
func (s *Service) Create(
	ctx context.Context,
	username, secret string,
) (*Account, error) {
	if len(username) < MinUsernameLength {
		return nil, fmt.Errorf(
			"create account: username too short: %w",
			core.ErrInvalidInput,
		)
	}
	if secret == "" {
		return nil, fmt.Errorf(
			"create account: empty credential: %w",
			core.ErrInvalidInput,
		)
	}

	hash, err := core.HashCredential(secret)
	if err != nil {
		return nil, fmt.Errorf("hash credential: %w", err)
	}

	now := s.now().UTC()
	acc := &Account{
		ID:             uuid.New().String(),
		Username:       username,
		CredentialHash: hash,
		Role:           RoleUser,
		CreatedAt:      now,
		LastLoginAt:    now,
		TotalLogins:    1,
		Subscription:   Subscription{Status: StatusNone},
	}

	if err := s.repo.Create(ctx, acc); err != nil {
		if errors.Is(err, core.ErrDuplicateKey) {
			return nil, fmt.Errorf("create account: %w", ErrUsernameTaken)
		}
		return nil, err
	}

	return acc, nil
}

// Authenticate checks a username/secret pair without revealing whether the
// username exists.
func (s *Service) Authenticate(
	ctx context.Context,
	username, secret string,
) (*Account, error) {
	acc, err := s.repo.FindByUsername(ctx, username)
	if err != nil {
		if errors.Is(err, core.ErrNotFound) {
			//nolint:errcheck // timing attack prevention - always verify to prevent enumeration
			_, _, _ = core.VerifyCredentialTimingSafe(secret, nil)
			return nil, ErrInvalidCredentials
		}
		return nil, fmt.Errorf("get account: %w", err)
	}

	valid, newHash, err := core.VerifyCredentialTimingSafe(
		secret,
		&acc.CredentialHash,
	)
	if err != nil {
		return nil, fmt.Errorf("verify credential: %w", err)
	}

	if !valid {
		return nil, ErrInvalidCredentials
	}

	if newHash != "" {
		if err := s.repo.Update(ctx, acc.ID, Patch{
			CredentialHash: Set(newHash),
		}); err != nil {
			slog.WarnContext(ctx, "credential rehash failed",
				"account_id", acc.ID,
				"error", err,
			)
		}
	}

	return acc, nil
}

func (s *Service) RecordLogin(ctx context.Context, id string) error {
	return s.repo.RecordLogin(ctx, id, s.now().UTC())
}

func (s *Service) GetByID(ctx context.Context, id string) (*Account, error) {
	return s.repo.FindByID(ctx, id)
}

func (s *Service) GetByUsername(
	ctx context.Context,
	username string,
) (*Account, error) {
	return s.repo.FindByUsername(ctx, username)
}

// PromoteToAdmin grants the admin role; it is used to seed the first
// moderator at startup.
func (s *Service) PromoteToAdmin(ctx context.Context, username string) error {
	acc, err := s.repo.FindByUsername(ctx, username)
	if err != nil {
		return fmt.Errorf("promote %q: %w", username, err)
	}

	if acc.IsAdmin() {
		return nil
	}

	return s.repo.Update(ctx, acc.ID, Patch{Role: Set(RoleAdmin)})
}
