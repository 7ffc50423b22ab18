package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"oauth-signin/internal/signin"

	"github.com/gorilla/mux"
)

// UserHandler 用户接口处理器
type UserHandler struct {
	userService UserService
	logger      *slog.Logger
}

// NewUserHandler 创建 UserHandler
func NewUserHandler(userService UserService, logger *slog.Logger) *UserHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &UserHandler{userService: userService, logger: logger}
}

// RegisterRoutes 注册路由到 mux.Router（需要登录）
func (h *UserHandler) RegisterRoutes(r *mux.Router) {
	r.HandleFunc("/me", h.me).Methods(http.MethodGet)
}

// me 返回当前登录用户及其关联身份
func (h *UserHandler) me(w http.ResponseWriter, r *http.Request) {
	userID, err := signin.GetUserIDFromContext(r.Context())
	if err != nil {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "not authenticated"})
		return
	}

	profile, err := h.userService.GetProfile(r.Context(), userID)
	if errors.Is(err, ErrUserNotFound) {
		// 会话指向已删除的用户
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "user_not_found"})
		return
	}
	if err != nil {
		h.logger.Error("failed to load profile", "user_id", userID, "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal_error"})
		return
	}

	writeJSON(w, http.StatusOK, profile)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
