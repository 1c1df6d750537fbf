// internal/matching/routes.go

package matching

import (
	"net/http"

	"github.com/gorilla/mux"

	"github.com/nexus-community/match-engine/internal/tenant"
)

// RegisterRoutes mounts the matching API under /api/v1/matches. Every
// route requires an authenticated identity.
func RegisterRoutes(router *mux.Router, handlers *Handlers, auth *tenant.Middleware) {
	api := router.PathPrefix("/api/v1/matches").Subrouter()
	api.Use(auth.Authenticate)

	api.HandleFunc("", handlers.GetMatches).Methods(http.MethodGet)
	api.HandleFunc("/hot", handlers.GetHotMatches).Methods(http.MethodGet)
	api.HandleFunc("/mutual", handlers.GetMutualMatches).Methods(http.MethodGet)
	api.HandleFunc("/suggestions", handlers.GetSuggestions).Methods(http.MethodGet)
	api.HandleFunc("/stats", handlers.GetStats).Methods(http.MethodGet)
	api.HandleFunc("/interactions", handlers.RecordInteraction).Methods(http.MethodPost)
	api.HandleFunc("/preferences", handlers.GetPreferences).Methods(http.MethodGet)
	api.HandleFunc("/preferences", handlers.UpdatePreferences).Methods(http.MethodPut)
}
