package api

import (
	"context"
	"errors"
	"time"
)

// ErrUserNotFound 用户不存在
var ErrUserNotFound = errors.New("user not found")

// IdentityInfo 已关联的第三方身份 DTO（不含 token）
type IdentityInfo struct {
	Provider  string    `json:"provider"`
	Identity  string    `json:"identity"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// ProfileResponse 当前用户信息响应
type ProfileResponse struct {
	ID         string         `json:"id"`
	Name       string         `json:"name"`
	Email      string         `json:"email"`
	CreatedAt  time.Time      `json:"created_at"`
	Identities []IdentityInfo `json:"identities"`
}

// HealthResponse 健康检查响应
type HealthResponse struct {
	Status    string `json:"status"`
	Timestamp int64  `json:"timestamp"`
	Users     int    `json:"users"`
}

// UserService 用户服务接口（由 service 层实现）
type UserService interface {
	GetProfile(ctx context.Context, userID string) (*ProfileResponse, error)
	CountUsers(ctx context.Context) (int, error)
}
