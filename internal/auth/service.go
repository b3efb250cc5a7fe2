// Package auth はパスワード認証、JWTの発行・検証、リフレッシュセッション管理を提供する。
package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/hitoshi/fitclass/internal/model"
	"github.com/hitoshi/fitclass/internal/repository"
)

// LoginResult はログイン成功時に発行されるトークン一式。
type LoginResult struct {
	AccessToken        string
	RefreshToken       string
	RefreshExpiresAt   time.Time
	NeedPasswordChange bool
}

// Service は認証に関するビジネスロジックを提供する。
type Service struct {
	store  repository.Store
	tokens *TokenManager
	hasher *PasswordHasher
	now    func() time.Time
}

// NewService はServiceを生成する。
func NewService(store repository.Store, tokens *TokenManager, hasher *PasswordHasher) *Service {
	return &Service{
		store:  store,
		tokens: tokens,
		hasher: hasher,
		now:    time.Now,
	}
}

// Login はメールアドレスとパスワードを照合し、アクセストークンとリフレッシュトークンを発行する。
// ユーザー不在・無効・パスワード不一致は同じエラーを返す。
func (s *Service) Login(ctx context.Context, email, password string) (*LoginResult, error) {
	user, err := s.store.Users().FindByEmail(ctx, strings.TrimSpace(email))
	if err != nil {
		return nil, fmt.Errorf("failed to find user: %w", err)
	}
	if user == nil || !user.IsActive() {
		return nil, model.NewInvalidCredentialsError()
	}

	ok, err := s.hasher.Verify(user.PasswordHash, password)
	if err != nil {
		return nil, fmt.Errorf("failed to verify password: %w", err)
	}
	if !ok {
		return nil, model.NewInvalidCredentialsError()
	}

	now := s.now()
	session := &model.RefreshSession{
		ID:        uuid.New().String(),
		UserID:    user.ID,
		ExpiresAt: now.Add(s.tokens.RefreshTTL()),
		CreatedAt: now,
	}
	if err := s.store.Sessions().Create(ctx, session); err != nil {
		return nil, fmt.Errorf("failed to save session: %w", err)
	}

	accessToken, err := s.tokens.IssueAccessToken(user)
	if err != nil {
		return nil, err
	}
	refreshToken, err := s.tokens.IssueRefreshToken(session)
	if err != nil {
		return nil, err
	}

	slog.Info("user logged in",
		slog.String("user_id", user.ID),
		slog.String("role", string(user.Role)),
	)
	return &LoginResult{
		AccessToken:        accessToken,
		RefreshToken:       refreshToken,
		RefreshExpiresAt:   session.ExpiresAt,
		NeedPasswordChange: user.NeedPasswordChange,
	}, nil
}

// Refresh は有効なリフレッシュトークンから新しいアクセストークンを発行する。
func (s *Service) Refresh(ctx context.Context, refreshToken string) (string, error) {
	userID, sessionID, err := s.tokens.ParseRefreshToken(refreshToken)
	if err != nil {
		return "", model.NewUnauthorizedError()
	}

	session, err := s.store.Sessions().FindByID(ctx, sessionID)
	if err != nil {
		return "", fmt.Errorf("failed to find session: %w", err)
	}
	if session == nil || session.UserID != userID {
		return "", model.NewUnauthorizedError()
	}

	user, err := s.store.Users().FindByID(ctx, userID)
	if err != nil {
		return "", fmt.Errorf("failed to find user: %w", err)
	}
	if user == nil || !user.IsActive() {
		return "", model.NewUnauthorizedError()
	}

	return s.tokens.IssueAccessToken(user)
}

// Logout はリフレッシュトークンに対応するセッションを失効させる。
// トークンが空・不正な場合も成功として扱う。
func (s *Service) Logout(ctx context.Context, refreshToken string) error {
	if refreshToken == "" {
		return nil
	}
	_, sessionID, err := s.tokens.ParseRefreshToken(refreshToken)
	if err != nil {
		return nil
	}

	if err := s.store.Sessions().DeleteByID(ctx, sessionID); err != nil {
		return fmt.Errorf("failed to delete session: %w", err)
	}

	slog.Info("user logged out", slog.String("session_id", sessionID))
	return nil
}

// ChangePassword は現在のパスワードを照合して新しいパスワードに更新する。
// パスワード変更要求フラグを解除し、既存のリフレッシュセッションを全て失効させる。
func (s *Service) ChangePassword(ctx context.Context, identity model.Identity, oldPassword, newPassword string) error {
	user, err := s.store.Users().FindByID(ctx, identity.UserID)
	if err != nil {
		return fmt.Errorf("failed to find user: %w", err)
	}
	if user == nil {
		return model.NewUserNotFoundError()
	}

	ok, err := s.hasher.Verify(user.PasswordHash, oldPassword)
	if err != nil {
		return fmt.Errorf("failed to verify password: %w", err)
	}
	if !ok {
		return model.NewBadRequestError("Current password is incorrect.")
	}

	hash, err := s.hasher.Hash(newPassword)
	if err != nil {
		return err
	}

	err = s.store.WithinTx(ctx, func(ctx context.Context, tx repository.Store) error {
		if err := tx.Users().UpdatePassword(ctx, user.ID, hash, false); err != nil {
			if errors.Is(err, repository.ErrNotFound) {
				return model.NewUserNotFoundError()
			}
			return fmt.Errorf("failed to update password: %w", err)
		}
		if err := tx.Sessions().DeleteByUserID(ctx, user.ID); err != nil {
			return fmt.Errorf("failed to revoke sessions: %w", err)
		}
		return nil
	})
	if err != nil {
		return err
	}

	slog.Info("password changed", slog.String("user_id", user.ID))
	return nil
}

// Authenticate はアクセストークンを検証し、現在も有効なユーザーの認証主体を返す。
// ロールはトークンではなくユーザーレコードの最新値を用いる。
func (s *Service) Authenticate(ctx context.Context, accessToken string) (*model.Identity, error) {
	claims, err := s.tokens.ParseAccessToken(accessToken)
	if err != nil {
		return nil, model.NewUnauthorizedError()
	}

	user, err := s.store.Users().FindByID(ctx, claims.UserID)
	if err != nil {
		return nil, fmt.Errorf("failed to find user: %w", err)
	}
	if user == nil || !user.IsActive() {
		return nil, model.NewUnauthorizedError()
	}

	return &model.Identity{
		UserID: user.ID,
		Email:  user.Email,
		Role:   user.Role,
	}, nil
}
