// AngelaMos | 2026
// service.go

package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/carterperez-dev/license-gate/internal/account"
	"github.com/carterperez-dev/license-gate/internal/hwid"
	"github.com/carterperez-dev/license-gate/internal/license"
	"github.com/carterperez-dev/license-gate/internal/middleware"
)

var (
	ErrMissingFields   = errors.New("missing required fields")
	ErrNoActiveLicense = errors.New("no active license")
)

type TokenIssuer interface {
	CreateAccessToken(claims AccessTokenClaims) (*IssuedToken, error)
}

type Service struct {
	accounts    *account.Service
	licenses    *license.Machine
	hwid        *hwid.Engine
	tokens      TokenIssuer
	revocations Revocations
	gating      bool
	logger      *slog.Logger
}

type ServiceConfig struct {
	Accounts      *account.Service
	Licenses      *license.Machine
	HWID          *hwid.Engine
	Tokens        TokenIssuer
	Revocations   Revocations
	GatingEnabled bool
	Logger        *slog.Logger
}

func NewService(cfg ServiceConfig) *Service {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		accounts:    cfg.Accounts,
		licenses:    cfg.Licenses,
		hwid:        cfg.HWID,
		tokens:      cfg.Tokens,
		revocations: cfg.Revocations,
		gating:      cfg.GatingEnabled,
		logger:      logger,
	}
}

type ClientLoginResult struct {
	Account  *account.Account
	Summary  license.Summary
	FirstUse bool
}

// ClientLogin admits a desktop client. The license is checked before the
// hardware lock so an unlicensed login never binds a device.
func (s *Service) ClientLogin(
	ctx context.Context,
	req ClientLoginRequest,
) (*ClientLoginResult, error) {
	if req.Username == "" || req.Password == "" || req.HWID == "" {
		return nil, ErrMissingFields
	}

	acc, err := s.accounts.Authenticate(ctx, req.Username, req.Password)
	if err != nil {
		return nil, err
	}

	if s.gating && !s.licenses.IsEntitled(acc) {
		s.logger.InfoContext(ctx, "client login without license",
			"account_id", acc.ID,
			"status", acc.Subscription.Status,
		)
		return nil, ErrNoActiveLicense
	}

	decision, err := s.hwid.AttemptBind(ctx, acc, req.HWID)
	if err != nil {
		return nil, fmt.Errorf("hwid check: %w", err)
	}
	if !decision.Admitted {
		s.logger.WarnContext(ctx, "client login hardware mismatch",
			"account_id", acc.ID,
		)
		return nil, decision.Reason
	}

	if err := s.accounts.RecordLogin(ctx, acc.ID); err != nil {
		return nil, fmt.Errorf("record login: %w", err)
	}

	return &ClientLoginResult{
		Account:  acc,
		Summary:  s.licenses.Summary(acc),
		FirstUse: decision.FirstUse,
	}, nil
}

func (s *Service) SignUp(
	ctx context.Context,
	req SignUpRequest,
) (*SessionResponse, error) {
	acc, err := s.accounts.Create(ctx, req.Username, req.Password)
	if err != nil {
		return nil, err
	}

	return s.session(acc)
}

func (s *Service) Login(
	ctx context.Context,
	req LoginRequest,
) (*SessionResponse, error) {
	acc, err := s.accounts.Authenticate(ctx, req.Username, req.Password)
	if err != nil {
		return nil, err
	}

	if err := s.accounts.RecordLogin(ctx, acc.ID); err != nil {
		return nil, fmt.Errorf("record login: %w", err)
	}

	refreshed, err := s.accounts.GetByID(ctx, acc.ID)
	if err != nil {
		return nil, fmt.Errorf("reload account: %w", err)
	}

	return s.session(refreshed)
}

// Logout revokes the presented access token until it would have expired.
func (s *Service) Logout(
	ctx context.Context,
	claims *middleware.AccessTokenClaims,
) error {
	if s.revocations == nil || claims == nil || claims.TokenID == "" {
		return nil
	}

	return s.revocations.Revoke(ctx, claims.TokenID, time.Until(claims.ExpiresAt))
}

func (s *Service) GetCurrentAccount(
	ctx context.Context,
	id string,
) (*account.Account, error) {
	return s.accounts.GetByID(ctx, id)
}

func (s *Service) session(acc *account.Account) (*SessionResponse, error) {
	issued, err := s.tokens.CreateAccessToken(AccessTokenClaims{
		UserID:   acc.ID,
		Username: acc.Username,
		Role:     acc.Role,
	})
	if err != nil {
		return nil, fmt.Errorf("create access token: %w", err)
	}

	return &SessionResponse{
		Account: account.ToAccountResponse(acc),
		Token: TokenResponse{
			AccessToken: issued.Token,
			TokenType:   "Bearer",
			ExpiresIn:   int(time.Until(issued.ExpiresAt).Seconds()),
			ExpiresAt:   issued.ExpiresAt,
		},
	}, nil
}
