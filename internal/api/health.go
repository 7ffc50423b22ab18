package api

import (
	"log/slog"
	"net/http"
	"time"
)

// HealthHandler reports whether the user store answers.
type HealthHandler struct {
	userService UserService
	logger      *slog.Logger
}

// NewHealthHandler 创建 HealthHandler
func NewHealthHandler(userService UserService, logger *slog.Logger) *HealthHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &HealthHandler{userService: userService, logger: logger}
}

func (h *HealthHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	n, err := h.userService.CountUsers(r.Context())
	if err != nil {
		h.logger.Error("health check failed", "error", err)
		writeJSON(w, http.StatusServiceUnavailable, HealthResponse{
			Status:    "unhealthy",
			Timestamp: time.Now().Unix(),
		})
		return
	}

	writeJSON(w, http.StatusOK, HealthResponse{
		Status:    "healthy",
		Timestamp: time.Now().Unix(),
		Users:     n,
	})
}
