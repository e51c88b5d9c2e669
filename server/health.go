package server

import (
	"net/http"

	"gorm.io/gorm"
)

// HealthResponse represents the health check response.
type HealthResponse struct {
	Status   string `json:"status"`
	Database string `json:"database,omitempty"`
}

// HealthHandler reports liveness and, when configured, database reachability.
type HealthHandler struct {
	db *gorm.DB
}

// NewHealthHandler creates a health handler. db may be nil.
func NewHealthHandler(db *gorm.DB) *HealthHandler {
	return &HealthHandler{db: db}
}

func (h *HealthHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if h.db == nil {
		respondJSON(w, http.StatusOK, HealthResponse{Status: "healthy"})
		return
	}

	sqlDB, err := h.db.DB()
	if err == nil {
		err = sqlDB.PingContext(r.Context())
	}
	if err != nil {
		respondJSON(w, http.StatusServiceUnavailable, HealthResponse{Status: "unhealthy", Database: "unreachable"})
		return
	}
	respondJSON(w, http.StatusOK, HealthResponse{Status: "healthy", Database: "ok"})
}
