package service

import (
	"context"
	"errors"

	"oauth-signin/internal/api"
	"oauth-signin/internal/biz"
)

// userService 用户服务实现
type userService struct {
	identityUsecase *biz.IdentityUsecase
}

// NewUserService 创建 UserService
func NewUserService(identityUsecase *biz.IdentityUsecase) api.UserService {
	return &userService{
		identityUsecase: identityUsecase,
	}
}

// GetProfile 获取用户信息，进行 DTO 转换
func (s *userService) GetProfile(ctx context.Context, userID string) (*api.ProfileResponse, error) {
	user, identities, err := s.identityUsecase.GetProfile(ctx, userID)
	if errors.Is(err, biz.ErrUserNotFound) {
		return nil, api.ErrUserNotFound
	}
	if err != nil {
		return nil, err
	}

	// biz -> api DTO 转换，token 不对外暴露
	resp := &api.ProfileResponse{
		ID:         user.ID,
		Name:       user.Name,
		Email:      user.Email,
		CreatedAt:  user.CreatedAt,
		Identities: make([]api.IdentityInfo, len(identities)),
	}
	for i, identity := range identities {
		resp.Identities[i] = api.IdentityInfo{
			Provider:  identity.ProviderID,
			Identity:  identity.Identity,
			CreatedAt: identity.CreatedAt,
			UpdatedAt: identity.UpdatedAt,
		}
	}
	return resp, nil
}

// CountUsers 统计用户数量
func (s *userService) CountUsers(ctx context.Context) (int, error) {
	return s.identityUsecase.CountUsers(ctx)
}
