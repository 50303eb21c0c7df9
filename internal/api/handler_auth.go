package api

import (
	"time"

	"github.com/labstack/echo/v4"
	"github.com/tsanders-rh/modelctl/internal/auth"
	"github.com/tsanders-rh/modelctl/pkg/types"
)

// AuthHandler handles token endpoints
type AuthHandler struct {
	auth *auth.Auth
}

// NewAuthHandler creates a new auth handler
func NewAuthHandler(authService *auth.Auth) *AuthHandler {
	return &AuthHandler{auth: authService}
}

// IssueTokenRequest names the subject and role of a new service token
type IssueTokenRequest struct {
	Subject string `json:"subject" validate:"required,min=1,max=128"`
	Role    string `json:"role" validate:"required,role"`
}

// TokenResponse carries a signed token
type TokenResponse struct {
	Token   string `json:"token"`
	Subject string `json:"subject"`
	Role    string `json:"role"`
}

// MeResponse describes the authenticated caller
type MeResponse struct {
	Subject   string    `json:"subject"`
	Role      string    `json:"role"`
	ExpiresAt time.Time `json:"expires_at"`
}

// GetMe handles GET /api/v1/auth/me
func (h *AuthHandler) GetMe(c echo.Context) error {
	claims, err := auth.GetClaims(c)
	if err != nil {
		return err
	}

	resp := &MeResponse{Subject: claims.Subject, Role: claims.Role}
	if claims.ExpiresAt != nil {
		resp.ExpiresAt = claims.ExpiresAt.Time
	}
	return SuccessOK(c, resp)
}

// IssueToken handles POST /api/v1/auth/tokens
func (h *AuthHandler) IssueToken(c echo.Context) error {
	var req IssueTokenRequest
	if err := c.Bind(&req); err != nil {
		return ErrorBadRequest(c, "Invalid request body")
	}
	if err := c.Validate(&req); err != nil {
		return ErrorBadRequest(c, err.Error())
	}

	token, err := h.auth.IssueToken(req.Subject, types.Role(req.Role))
	if err != nil {
		return ErrorInternal(c, "Failed to issue token")
	}

	return SuccessCreated(c, &TokenResponse{Token: token, Subject: req.Subject, Role: req.Role})
}
