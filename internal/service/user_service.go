package service

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"promo-code-service/internal/core/auth"
	"promo-code-service/internal/core/cache"
	"promo-code-service/internal/domain"
	"promo-code-service/pkg/utils"
)

// UserService handles registration, credential checks, and token
// issuance/revocation. Revocation works through a per-user token version:
// tokens embed the version current at issue time, and logout bumps it.
type UserService struct {
	repo  domain.UserRepository
	jwt   *auth.JWTer
	cache cache.Store
	log   *zap.Logger
}

func NewUserService(repo domain.UserRepository, jwter *auth.JWTer, c cache.Store, log *zap.Logger) *UserService {
	return &UserService{repo: repo, jwt: jwter, cache: c, log: log}
}

type RegisterInput struct {
	Name     string
	Email    string
	Password string
	IsAdmin  bool
}

// Register creates the user and issues their first access token.
// A taken email comes back as a field-level validation error.
func (s *UserService) Register(ctx context.Context, in RegisterInput) (*domain.User, string, error) {
	existing, err := s.repo.FindByEmail(ctx, in.Email)
	if err != nil {
		return nil, "", err
	}
	if existing != nil {
		return nil, "", FieldErrors{"email": {"The email has already been taken."}}
	}

	u := &domain.User{
		ID:           utils.NewID(),
		Name:         in.Name,
		Email:        in.Email,
		PasswordHash: utils.HashPassword(in.Password),
		IsAdmin:      in.IsAdmin,
	}
	if err := s.repo.Create(ctx, u); err != nil {
		return nil, "", err
	}
	token, err := s.jwt.Issue(u.ID, u.IsAdmin, u.TokenVersion)
	if err != nil {
		return nil, "", err
	}
	return u, token, nil
}

// Login verifies the credentials and issues a token. Unknown email and
// wrong password are indistinguishable to the caller.
func (s *UserService) Login(ctx context.Context, email, password string) (string, error) {
	u, err := s.repo.FindByEmail(ctx, email)
	if err != nil {
		return "", err
	}
	if u == nil || !utils.CheckPassword(password, u.PasswordHash) {
		return "", ErrInvalidCredentials
	}
	return s.jwt.Issue(u.ID, u.IsAdmin, u.TokenVersion)
}

// Logout revokes every outstanding token for the user by bumping the
// stored token version and dropping its cache entry, so revocation takes
// effect on the next request.
func (s *UserService) Logout(ctx context.Context, userID string) error {
	if err := s.repo.BumpTokenVersion(ctx, userID); err != nil {
		return err
	}
	if err := s.cache.Delete(ctx, tokenVersionKey(userID)); err != nil {
		s.log.Warn("token version cache invalidate failed", zap.String("user_id", userID), zap.Error(err))
	}
	return nil
}

// TokenVersion returns the user's current token version, memoized for a
// minute. Logout invalidates the entry, so revocation is immediate.
func (s *UserService) TokenVersion(ctx context.Context, userID string) (int, error) {
	v, err := cache.GetOrLoadJSON[int](s.cache, ctx, tokenVersionKey(userID), tokenVersionTTL,
		func(ctx context.Context) (*int, error) {
			u, e := s.repo.FindByID(ctx, userID)
			if e != nil {
				return nil, e
			}
			if u == nil {
				return nil, nil
			}
			return &u.TokenVersion, nil
		})
	if err != nil {
		return 0, err
	}
	if v == nil {
		return 0, fmt.Errorf("user %s not found", userID)
	}
	return *v, nil
}

func (s *UserService) Get(ctx context.Context, id string) (*domain.User, error) {
	return s.repo.FindByID(ctx, id)
}

func (s *UserService) List(ctx context.Context) ([]domain.User, error) {
	return s.repo.List(ctx)
}
