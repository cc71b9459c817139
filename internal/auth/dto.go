// AngelaMos | 2026
// dto.go

package auth

import (
	"time"

	"github.com/carterperez-dev/license-gate/internal/account"
	"github.com/carterperez-dev/license-gate/internal/license"
)

// ClientLoginRequest is the desktop client's login. Fields are checked by
// hand so the client always gets its own response shape.
type ClientLoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
	HWID     string `json:"hwid"`
}

type ClientLoginResponse struct {
	Success      bool             `json:"success"`
	Message      string           `json:"message"`
	Username     string           `json:"username,omitempty"`
	Subscription *license.Summary `json:"subscription,omitempty"`
}

type SignUpRequest struct {
	Username string `json:"username" validate:"required,min=3,max=32,username"`
	Password string `json:"password" validate:"required,min=8,max=128"`
}

type LoginRequest struct {
	Username string `json:"username" validate:"required,max=32"`
	Password string `json:"password" validate:"required,max=128"`
}

type TokenResponse struct {
	AccessToken string    `json:"access_token"`
	TokenType   string    `json:"token_type"`
	ExpiresIn   int       `json:"expires_in"`
	ExpiresAt   time.Time `json:"expires_at"`
}

type SessionResponse struct {
	Account account.AccountResponse `json:"account"`
	Token   TokenResponse           `json:"token"`
}
