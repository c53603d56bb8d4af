package server

import (
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/NVMtheName/ArbionTrader-sub001/internal/domain"
)

// credentialView is the wire shape of one connection's status. It carries
// lifecycle metadata only; encrypted payloads stay in the database.
type credentialView struct {
	UserID              string     `json:"user_id"`
	Provider            string     `json:"provider"`
	Status              string     `json:"status"`
	IsActive            bool       `json:"is_active"`
	NeedsReauth         bool       `json:"needs_reauth"`
	ConsecutiveFailures int        `json:"consecutive_failures"`
	LastError           string     `json:"last_error,omitempty"`
	LastTested          *time.Time `json:"last_tested,omitempty"`
	CreatedAt           time.Time  `json:"created_at"`
	UpdatedAt           time.Time  `json:"updated_at"`
}

func (s *Server) handleListCredentials(c echo.Context) error {
	creds, err := s.admin.ListAll(c.Request().Context())
	if err != nil {
		return echo.NewHTTPError(500, "failed to list credentials")
	}

	views := make([]credentialView, 0, len(creds))
	for _, cred := range creds {
		views = append(views, credentialView{
			UserID:              cred.UserID.String(),
			Provider:            string(cred.Provider),
			Status:              string(cred.Status),
			IsActive:            cred.IsActive,
			NeedsReauth:         cred.Status == domain.StatusReauthRequired,
			ConsecutiveFailures: cred.ConsecutiveFailures,
			LastError:           cred.LastError,
			LastTested:          cred.LastTested,
			CreatedAt:           cred.CreatedAt,
			UpdatedAt:           cred.UpdatedAt,
		})
	}

	return c.JSON(200, map[string]any{"credentials": views})
}

type setActiveRequest struct {
	Active bool `json:"active"`
}

func (s *Server) handleSetActive(c echo.Context) error {
	userID, err := uuid.Parse(c.Param("user_id"))
	if err != nil {
		return echo.NewHTTPError(400, "invalid user id")
	}

	provider := domain.Provider(c.Param("provider"))
	if !provider.Valid() {
		return echo.NewHTTPError(400, "unknown provider")
	}

	var req setActiveRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(400, "invalid request body")
	}

	if err := s.admin.SetActive(c.Request().Context(), userID, provider, req.Active); err != nil {
		if errors.Is(err, domain.ErrCredentialNotFound) {
			return echo.NewHTTPError(404, "credential not found")
		}
		return echo.NewHTTPError(500, "failed to update credential")
	}

	return c.JSON(200, map[string]any{"user_id": userID.String(), "provider": string(provider), "active": req.Active})
}
