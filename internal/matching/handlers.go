// internal/matching/handlers.go

package matching

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"go.uber.org/zap"

	"github.com/nexus-community/match-engine/internal/common/utils"
	"github.com/nexus-community/match-engine/internal/tenant"
)

// Handlers exposes the matching service over HTTP. Identity always comes
// from the authenticated request context, never from the URL, so a caller
// can only query their own matches.
type Handlers struct {
	service Service
	logger  *zap.Logger
}

func NewHandlers(service Service, logger *zap.Logger) *Handlers {
	return &Handlers{service: service, logger: logger}
}

// GetMatches handles GET /api/v1/matches
func (h *Handlers) GetMatches(w http.ResponseWriter, r *http.Request) {
	userID, tenantID, err := tenant.Identity(r.Context())
	if err != nil {
		utils.RespondWithError(w, http.StatusUnauthorized, "Authentication required")
		return
	}

	groups, err := h.service.GetMatchesByType(r.Context(), tenantID, userID)
	if err != nil {
		h.logger.Error("failed to get matches", zap.Int64("user_id", userID), zap.Error(err))
		utils.RespondWithError(w, http.StatusInternalServerError, "Failed to retrieve matches")
		return
	}

	utils.RespondWithJSON(w, http.StatusOK, map[string]interface{}{
		"success": true,
		"data":    groups,
	})
}

// GetHotMatches handles GET /api/v1/matches/hot?limit=N
func (h *Handlers) GetHotMatches(w http.ResponseWriter, r *http.Request) {
	userID, tenantID, err := tenant.Identity(r.Context())
	if err != nil {
		utils.RespondWithError(w, http.StatusUnauthorized, "Authentication required")
		return
	}

	matches, err := h.service.GetHotMatches(r.Context(), tenantID, userID, queryInt(r, "limit", 20))
	if err != nil {
		h.logger.Error("failed to get hot matches", zap.Int64("user_id", userID), zap.Error(err))
		utils.RespondWithError(w, http.StatusInternalServerError, "Failed to retrieve matches")
		return
	}

	utils.RespondWithJSON(w, http.StatusOK, map[string]interface{}{
		"success": true,
		"data":    matches,
	})
}

// GetMutualMatches handles GET /api/v1/matches/mutual?limit=N
func (h *Handlers) GetMutualMatches(w http.ResponseWriter, r *http.Request) {
	userID, tenantID, err := tenant.Identity(r.Context())
	if err != nil {
		utils.RespondWithError(w, http.StatusUnauthorized, "Authentication required")
		return
	}

	matches, err := h.service.GetMutualMatches(r.Context(), tenantID, userID, queryInt(r, "limit", 20))
	if err != nil {
		h.logger.Error("failed to get mutual matches", zap.Int64("user_id", userID), zap.Error(err))
		utils.RespondWithError(w, http.StatusInternalServerError, "Failed to retrieve matches")
		return
	}

	utils.RespondWithJSON(w, http.StatusOK, map[string]interface{}{
		"success": true,
		"data":    matches,
	})
}

// GetSuggestions handles GET /api/v1/matches/suggestions?limit=N&max_distance=K&min_score=S
func (h *Handlers) GetSuggestions(w http.ResponseWriter, r *http.Request) {
	userID, tenantID, err := tenant.Identity(r.Context())
	if err != nil {
		utils.RespondWithError(w, http.StatusUnauthorized, "Authentication required")
		return
	}

	opts := &SuggestionOptions{}
	if v, ok := queryFloat(r, "max_distance"); ok {
		opts.MaxDistanceKm = &v
	}
	if v, ok := queryFloat(r, "min_score"); ok {
		opts.MinScore = &v
	}

	matches, err := h.service.GetSuggestionsForUser(r.Context(), tenantID, userID, queryInt(r, "limit", 20), opts)
	if err != nil {
		h.logger.Error("failed to get suggestions", zap.Int64("user_id", userID), zap.Error(err))
		utils.RespondWithError(w, http.StatusInternalServerError, "Failed to retrieve suggestions")
		return
	}

	utils.RespondWithJSON(w, http.StatusOK, map[string]interface{}{
		"success": true,
		"data":    matches,
	})
}

// GetStats handles GET /api/v1/matches/stats
func (h *Handlers) GetStats(w http.ResponseWriter, r *http.Request) {
	userID, tenantID, err := tenant.Identity(r.Context())
	if err != nil {
		utils.RespondWithError(w, http.StatusUnauthorized, "Authentication required")
		return
	}

	stats, err := h.service.GetStats(r.Context(), tenantID, userID)
	if err != nil {
		h.logger.Error("failed to get match stats", zap.Int64("user_id", userID), zap.Error(err))
		utils.RespondWithError(w, http.StatusInternalServerError, "Failed to retrieve stats")
		return
	}

	utils.RespondWithJSON(w, http.StatusOK, map[string]interface{}{
		"success": true,
		"data":    stats,
	})
}

// RecordInteraction handles POST /api/v1/matches/interactions
func (h *Handlers) RecordInteraction(w http.ResponseWriter, r *http.Request) {
	userID, tenantID, err := tenant.Identity(r.Context())
	if err != nil {
		utils.RespondWithError(w, http.StatusUnauthorized, "Authentication required")
		return
	}

	var dto RecordInteractionDTO
	if err := json.NewDecoder(r.Body).Decode(&dto); err != nil {
		utils.RespondWithError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	if err := h.service.RecordInteraction(r.Context(), tenantID, userID, &dto); err != nil {
		if IsValidation(err) {
			utils.RespondWithError(w, http.StatusBadRequest, err.Error())
			return
		}
		h.logger.Error("failed to record interaction",
			zap.Int64("user_id", userID), zap.Int64("listing_id", dto.ListingID), zap.Error(err))
		utils.RespondWithError(w, http.StatusInternalServerError, "Failed to record interaction")
		return
	}

	utils.RespondWithJSON(w, http.StatusCreated, map[string]interface{}{
		"success": true,
		"message": "Interaction recorded",
	})
}

// GetPreferences handles GET /api/v1/matches/preferences
func (h *Handlers) GetPreferences(w http.ResponseWriter, r *http.Request) {
	userID, tenantID, err := tenant.Identity(r.Context())
	if err != nil {
		utils.RespondWithError(w, http.StatusUnauthorized, "Authentication required")
		return
	}

	utils.RespondWithJSON(w, http.StatusOK, map[string]interface{}{
		"success": true,
		"data":    h.service.GetPreferences(r.Context(), tenantID, userID),
	})
}

// UpdatePreferences handles PUT /api/v1/matches/preferences
func (h *Handlers) UpdatePreferences(w http.ResponseWriter, r *http.Request) {
	userID, tenantID, err := tenant.Identity(r.Context())
	if err != nil {
		utils.RespondWithError(w, http.StatusUnauthorized, "Authentication required")
		return
	}

	var update PreferencesUpdate
	if err := json.NewDecoder(r.Body).Decode(&update); err != nil {
		utils.RespondWithError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	prefs, err := h.service.SavePreferences(r.Context(), tenantID, userID, &update)
	if err != nil {
		if IsValidation(err) {
			utils.RespondWithError(w, http.StatusBadRequest, err.Error())
			return
		}
		if errors.Is(err, ErrStorageUnavailable) {
			utils.RespondWithError(w, http.StatusServiceUnavailable, "Preferences store unavailable")
			return
		}
		h.logger.Error("failed to save preferences", zap.Int64("user_id", userID), zap.Error(err))
		utils.RespondWithError(w, http.StatusInternalServerError, "Failed to save preferences")
		return
	}

	utils.RespondWithJSON(w, http.StatusOK, map[string]interface{}{
		"success": true,
		"data":    prefs,
	})
}

func queryInt(r *http.Request, key string, fallback int) int {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return fallback
	}
	v, err := strconv.Atoi(raw)
	if err != nil || v <= 0 {
		return fallback
	}
	return v
}

func queryFloat(r *http.Request, key string) (float64, bool) {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return 0, false
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0, false
	}
	return v, true
}
