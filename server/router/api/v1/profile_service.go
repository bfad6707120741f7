package v1

import (
	"context"
	"log/slog"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/lotus-health/lotus/store"
)

// ProfileRequest is the body of POST /api/profiles.
type ProfileRequest struct {
	UserID        string   `json:"user_id"`
	Sensitivities []string `json:"sensitivities"`
}

// ProfileResponse is the user profile plus scan history statistics.
type ProfileResponse struct {
	UserID           string   `json:"user_id"`
	Sensitivities    []string `json:"sensitivities"`
	ScanHistoryCount int64    `json:"scan_history_count"`
	LastScanTs       *int64   `json:"last_scan_ts,omitempty"`
	CreatedTs        int64    `json:"created_ts"`
	UpdatedTs        int64    `json:"updated_ts"`
}

// UpsertUserProfile handles POST /api/profiles.
func (s *APIV1Service) UpsertUserProfile(c echo.Context) error {
	ctx := c.Request().Context()

	request := &ProfileRequest{}
	if err := c.Bind(request); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "malformed request body").SetInternal(err)
	}

	request.UserID = strings.TrimSpace(request.UserID)
	if request.UserID == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "user_id cannot be empty")
	}

	sensitivities := make([]string, 0, len(request.Sensitivities))
	for _, sensitivity := range request.Sensitivities {
		sensitivity = strings.TrimSpace(sensitivity)
		if sensitivity != "" {
			sensitivities = append(sensitivities, sensitivity)
		}
	}

	userProfile, err := s.Store.UpsertUserProfile(ctx, &store.UpsertUserProfile{
		UserID:        request.UserID,
		Sensitivities: sensitivities,
	})
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "failed to save profile").SetInternal(err)
	}

	return c.JSON(http.StatusCreated, s.buildProfileResponse(ctx, userProfile))
}

// GetUserProfile handles GET /api/profiles/:user_id.
func (s *APIV1Service) GetUserProfile(c echo.Context) error {
	ctx := c.Request().Context()

	userID := strings.TrimSpace(c.Param("user_id"))
	if userID == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "user_id cannot be empty")
	}

	userProfile, err := s.Store.GetUserProfile(ctx, userID)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "failed to fetch profile").SetInternal(err)
	}
	if userProfile == nil {
		return echo.NewHTTPError(http.StatusNotFound, "profile not found for user_id: "+userID)
	}

	return c.JSON(http.StatusOK, s.buildProfileResponse(ctx, userProfile))
}

// buildProfileResponse attaches scan statistics to the profile. Statistics
// failures are logged, not fatal; the profile itself is the payload.
func (s *APIV1Service) buildProfileResponse(ctx context.Context, userProfile *store.UserProfile) *ProfileResponse {
	response := &ProfileResponse{
		UserID:        userProfile.UserID,
		Sensitivities: userProfile.Sensitivities,
		CreatedTs:     userProfile.CreatedTs,
		UpdatedTs:     userProfile.UpdatedTs,
	}
	if response.Sensitivities == nil {
		response.Sensitivities = []string{}
	}

	count, err := s.Store.CountScans(ctx, &store.FindScan{UserID: &userProfile.UserID})
	if err != nil {
		slog.Warn("failed to count scans for profile", "user_id", userProfile.UserID, "error", err)
		return response
	}
	response.ScanHistoryCount = count

	if count > 0 {
		scans, err := s.Store.ListScans(ctx, &store.FindScan{UserID: &userProfile.UserID, Limit: 1})
		if err == nil && len(scans) > 0 {
			response.LastScanTs = &scans[0].CreatedTs
		}
	}

	return response
}
