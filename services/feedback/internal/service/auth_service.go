package service

import (
	"context"
	"errors"

	"github.com/alexedwards/argon2id"

	"github.com/diagnosis/guest-feedback/pkg/apperr"
	"github.com/diagnosis/guest-feedback/pkg/auth"
	"github.com/diagnosis/guest-feedback/pkg/config"
	"github.com/diagnosis/guest-feedback/pkg/logger"
	"github.com/diagnosis/guest-feedback/services/feedback/internal/domain"
	"github.com/diagnosis/guest-feedback/services/feedback/internal/repository"
)

type AuthService interface {
	Login(ctx context.Context, req *domain.LoginRequest) (*domain.LoginResponse, error)
	GetUser(ctx context.Context, id string) (*domain.UserInfo, error)
	BootstrapAdmin(ctx context.Context) error
}

type authService struct {
	userRepo repository.UserRepository
	config   *config.Config
}

func NewAuthService(userRepo repository.UserRepository, config *config.Config) AuthService {
	return &authService{
		userRepo: userRepo,
		config:   config,
	}
}

// effectivePermissions falls back to the role defaults when the user row
// carries no explicit grants.
func effectivePermissions(u *domain.User) auth.PermissionSet {
	if len(u.Permissions) > 0 {
		return auth.PermissionSet(u.Permissions)
	}
	return auth.DefaultPermissions(u.Role)
}

func userInfo(u *domain.User) *domain.UserInfo {
	perms := effectivePermissions(u)
	if perms == nil {
		perms = auth.PermissionSet{}
	}
	return &domain.UserInfo{
		ID:          u.ID,
		Username:    u.Username,
		FullName:    u.FullName,
		Role:        u.Role,
		Permissions: perms,
	}
}

func (s *authService) Login(ctx context.Context, req *domain.LoginRequest) (*domain.LoginResponse, error) {
	// Normalize and validate
	req.Normalize()
	if err := req.Validate(); err != nil {
		return nil, err
	}

	user, err := s.userRepo.FindByUsername(ctx, req.Username)
	if err != nil {
		return nil, apperr.Internal("failed to find user", err)
	}
	if user == nil || !user.IsActive {
		return nil, apperr.Unauthorized("invalid credentials")
	}

	valid, err := argon2id.ComparePasswordAndHash(req.Password, user.PasswordHash)
	if err != nil {
		return nil, apperr.Internal("failed to verify password", err)
	}
	if !valid {
		return nil, apperr.Unauthorized("invalid credentials")
	}

	info := userInfo(user)
	accessToken, err := auth.NewAccessToken(
		user.ID,
		user.Username,
		user.Role,
		info.Permissions,
		s.config.Auth.JWTSecret,
		s.config.Auth.AccessTokenTTL,
	)
	if err != nil {
		return nil, apperr.Internal("failed to create access token", err)
	}

	return &domain.LoginResponse{
		AccessToken: accessToken,
		ExpiresIn:   int64(s.config.Auth.AccessTokenTTL.Seconds()),
		User:        info,
	}, nil
}

func (s *authService) GetUser(ctx context.Context, id string) (*domain.UserInfo, error) {
	user, err := s.userRepo.FindByID(ctx, id)
	if err != nil {
		return nil, apperr.Internal("failed to find user", err)
	}
	if user == nil {
		return nil, apperr.NotFound("user not found")
	}
	return userInfo(user), nil
}

// BootstrapAdmin creates the configured admin account when it is missing.
func (s *authService) BootstrapAdmin(ctx context.Context) error {
	cfg := s.config.Auth
	if cfg.AdminUsername == "" || cfg.AdminPassword == "" {
		return nil
	}
	req := domain.LoginRequest{Username: cfg.AdminUsername, Password: cfg.AdminPassword}
	req.Normalize()

	existing, err := s.userRepo.FindByUsername(ctx, req.Username)
	if err != nil {
		return apperr.Internal("failed to find admin", err)
	}
	if existing != nil {
		return nil
	}

	hash, err := argon2id.CreateHash(req.Password, argon2id.DefaultParams)
	if err != nil {
		return apperr.Internal("failed to hash password", err)
	}

	_, err = s.userRepo.Create(ctx, &domain.User{
		Username:     req.Username,
		FullName:     cfg.AdminFullName,
		PasswordHash: hash,
		Role:         "admin",
		IsActive:     true,
	})
	if errors.Is(err, repository.ErrDuplicate) {
		return nil
	}
	if err != nil {
		return apperr.Internal("failed to create admin", err)
	}
	logger.InfoContext(ctx, "Created admin user", "username", req.Username)
	return nil
}
