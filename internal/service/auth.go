package service

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"campus_live/internal/config"
	"campus_live/internal/domain"
	"campus_live/internal/repository"
	apperrors "campus_live/pkg/errors"
	"campus_live/pkg/jwt"
	"campus_live/pkg/logger"
)

type AuthService interface {
	Register(ctx context.Context, tenantID uuid.UUID, email, password, displayName, role string) (*domain.User, error)
	Login(ctx context.Context, email, password string) (*TokenPair, *domain.User, error)
	RefreshToken(ctx context.Context, refreshToken string) (*TokenPair, error)
	VerifyToken(ctx context.Context, accessToken string) (*domain.Identity, error)
	Logout(ctx context.Context, refreshToken string) error
}

type TokenPair struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
}

type authService struct {
	userRepo repository.UserRepository
	cfg      config.JWTConfig
	log      logger.Logger
}

func NewAuthService(userRepo repository.UserRepository, cfg config.JWTConfig, log logger.Logger) AuthService {
	return &authService{userRepo: userRepo, cfg: cfg, log: log}
}

func (s *authService) Register(ctx context.Context, tenantID uuid.UUID, email, password, displayName, role string) (*domain.User, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" || len(password) < 8 || displayName == "" {
		return nil, apperrors.ErrBadRequest
	}

	switch role {
	case domain.RoleStudent, domain.RoleTeacher, domain.RoleAdmin:
	default:
		role = domain.RoleStudent
	}

	if existing, err := s.userRepo.GetByEmail(ctx, email); err == nil && existing != nil {
		return nil, apperrors.ErrUserAlreadyExists
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		s.log.Error("Failed to hash password", "error", err)
		return nil, apperrors.ErrInternalServer
	}

	user := &domain.User{
		ID:           uuid.New(),
		TenantID:     tenantID,
		Email:        email,
		PasswordHash: string(hash),
		DisplayName:  displayName,
		Role:         role,
		IsActive:     true,
		CreatedAt:    time.Now(),
		UpdatedAt:    time.Now(),
	}

	if err := s.userRepo.Create(ctx, user); err != nil {
		return nil, err
	}

	return user, nil
}

func (s *authService) Login(ctx context.Context, email, password string) (*TokenPair, *domain.User, error) {
	email = strings.ToLower(strings.TrimSpace(email))

	user, err := s.userRepo.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, apperrors.ErrNotFound) {
			return nil, nil, apperrors.ErrInvalidCredentials
		}
		return nil, nil, err
	}

	if !user.IsActive {
		return nil, nil, apperrors.ErrForbidden
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		return nil, nil, apperrors.ErrInvalidCredentials
	}

	pair, err := s.issueTokens(ctx, user)
	if err != nil {
		return nil, nil, err
	}

	now := time.Now()
	user.LastLoginAt = &now
	if err := s.userRepo.Update(ctx, user); err != nil {
		s.log.Warn("Failed to update last login time", "user_id", user.ID, "error", err)
	}

	return pair, user, nil
}

func (s *authService) RefreshToken(ctx context.Context, refreshToken string) (*TokenPair, error) {
	claims, err := jwt.ValidateRefreshToken(refreshToken, s.cfg.RefreshSecret)
	if err != nil {
		return nil, err
	}

	session, err := s.userRepo.GetSessionByTokenHash(ctx, hashToken(refreshToken))
	if err != nil {
		return nil, apperrors.ErrInvalidToken
	}

	userID, err := uuid.Parse(claims.Subject)
	if err != nil || session.UserID != userID {
		return nil, apperrors.ErrInvalidToken
	}

	user, err := s.userRepo.GetByID(ctx, userID)
	if err != nil {
		return nil, apperrors.ErrInvalidToken
	}
	if !user.IsActive {
		return nil, apperrors.ErrForbidden
	}

	// Ротация: старая сессия отзывается до выпуска новой пары
	if err := s.userRepo.RevokeSession(ctx, session.ID, "rotated"); err != nil {
		return nil, err
	}

	return s.issueTokens(ctx, user)
}

func (s *authService) VerifyToken(ctx context.Context, accessToken string) (*domain.Identity, error) {
	claims, err := jwt.ValidateToken(accessToken, s.cfg.AccessSecret)
	if err != nil {
		return nil, err
	}

	name := claims.Name
	if name == "" {
		name = strings.SplitN(claims.Email, "@", 2)[0]
	}

	return &domain.Identity{
		UserID:      claims.UserID,
		TenantID:    claims.TenantID,
		DisplayName: name,
		Role:        claims.Role,
	}, nil
}

func (s *authService) Logout(ctx context.Context, refreshToken string) error {
	session, err := s.userRepo.GetSessionByTokenHash(ctx, hashToken(refreshToken))
	if err != nil {
		// Уже отозвана или истекла - выход идемпотентен
		return nil
	}
	return s.userRepo.RevokeSession(ctx, session.ID, "logout")
}

func (s *authService) issueTokens(ctx context.Context, user *domain.User) (*TokenPair, error) {
	accessToken, err := jwt.GenerateAccessToken(user.ID, user.TenantID, user.Email, user.DisplayName, user.Role, s.cfg.AccessSecret, s.cfg.AccessTTL)
	if err != nil {
		s.log.Error("Failed to generate access token", "error", err)
		return nil, apperrors.ErrInternalServer
	}

	refreshToken, err := jwt.GenerateRefreshToken(user.ID, s.cfg.RefreshSecret, s.cfg.RefreshTTL)
	if err != nil {
		s.log.Error("Failed to generate refresh token", "error", err)
		return nil, apperrors.ErrInternalServer
	}

	session := &domain.UserSession{
		ID:               uuid.New(),
		UserID:           user.ID,
		RefreshTokenHash: hashToken(refreshToken),
		CreatedAt:        time.Now(),
		ExpiresAt:        time.Now().Add(s.cfg.RefreshTTL),
	}

	if err := s.userRepo.CreateSession(ctx, session); err != nil {
		return nil, err
	}

	return &TokenPair{AccessToken: accessToken, RefreshToken: refreshToken}, nil
}

// В базе хранится только хэш refresh-токена
func hashToken(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}
