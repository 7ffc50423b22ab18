package api

import (
	"net/http"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// NewRouter 创建路由并注册所有 handler
func NewRouter(healthHandler *HealthHandler, authHandler *AuthHandler, userHandler *UserHandler, authRequired func(http.Handler) http.Handler) *mux.Router {
	r := mux.NewRouter()

	// Health check and metrics endpoints (public, no auth)
	r.Handle("/health", healthHandler).Methods(http.MethodGet)
	r.Handle("/metrics", promhttp.Handler()).Methods(http.MethodGet)

	// Public sign-in routes
	authHandler.RegisterRoutes(r)

	// Protected API routes
	apiRouter := r.PathPrefix("/api").Subrouter()
	apiRouter.Use(authRequired)
	userHandler.RegisterRoutes(apiRouter)

	return r
}
