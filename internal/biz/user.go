package biz

import (
	"context"
	"strings"
)

// UserRepo 用户与身份仓库接口
type UserRepo interface {
	// GetOrCreateByIdentity finds the identity by (provider, identity) and
	// refreshes its token, or creates a user and its first identity. Both
	// paths run as a single transaction.
	GetOrCreateByIdentity(ctx context.Context, ni *NormalizedIdentity) (*User, error)
	// GetUser returns ErrUserNotFound when id is unknown.
	GetUser(ctx context.Context, id string) (*User, error)
	// ListIdentities lists the identities owned by a user, oldest first.
	ListIdentities(ctx context.Context, userID string) ([]*Identity, error)
	// CountUsers counts all users.
	CountUsers(ctx context.Context) (int, error)
	// Close 关闭仓库连接
	Close() error
}

// IdentityUsecase reconciles provider identities with local users.
type IdentityUsecase struct {
	repo UserRepo
}

// NewIdentityUsecase 创建 IdentityUsecase
func NewIdentityUsecase(repo UserRepo) *IdentityUsecase {
	return &IdentityUsecase{repo: repo}
}

// GetOrCreateUserByIdentity returns the user linked to ni, creating the user
// and identity when this is the identity's first sign-in.
func (uc *IdentityUsecase) GetOrCreateUserByIdentity(ctx context.Context, ni *NormalizedIdentity) (*User, error) {
	if err := ni.Validate(); err != nil {
		return nil, err
	}

	normalized := *ni
	normalized.ProviderID = strings.ToLower(strings.TrimSpace(ni.ProviderID))

	user, err := uc.repo.GetOrCreateByIdentity(ctx, &normalized)
	if err != nil {
		return nil, wrapError("get or create user", err)
	}
	return user, nil
}

// GetProfile returns a user and the identities linked to it.
func (uc *IdentityUsecase) GetProfile(ctx context.Context, userID string) (*User, []*Identity, error) {
	user, err := uc.repo.GetUser(ctx, userID)
	if err != nil {
		return nil, nil, wrapError("get user", err)
	}
	identities, err := uc.repo.ListIdentities(ctx, userID)
	if err != nil {
		return nil, nil, wrapError("list identities", err)
	}
	return user, identities, nil
}

// CountUsers 统计用户数量
func (uc *IdentityUsecase) CountUsers(ctx context.Context) (int, error) {
	n, err := uc.repo.CountUsers(ctx)
	if err != nil {
		return 0, wrapError("count users", err)
	}
	return n, nil
}

// wrapError 包装错误信息
func wrapError(op string, err error) error {
	return &opError{op: op, err: err}
}

type opError struct {
	op  string
	err error
}

func (e *opError) Error() string {
	return e.op + ": " + e.err.Error()
}

func (e *opError) Unwrap() error {
	return e.err
}
