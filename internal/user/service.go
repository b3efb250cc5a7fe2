// Package user はユーザー登録・プロフィール・管理者向けユーザー管理のドメインロジックを提供する。
package user

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
	"github.com/hitoshi/fitclass/internal/security"
)

// seedAdminName はシード管理者のプロフィール名。
const seedAdminName = "Mr Admin"

// PasswordHasher はパスワードのハッシュ化インターフェース。
type PasswordHasher interface {
	Hash(password string) (string, error)
}

// ProfileInput は登録時のプロフィール入力。
type ProfileInput struct {
	Name   string
	Age    *int
	Phone  string
	Gender model.Gender
}

// RegisterInput はユーザー登録リクエスト。
type RegisterInput struct {
	Email    string
	Password string
	Profile  ProfileInput
}

// Service はユーザー管理のサービス層。
type Service struct {
	store     repository.Store
	hasher    PasswordHasher
	sanitizer security.TextSanitizer
	now       func() time.Time
}

// NewService はServiceの新しいインスタンスを生成する。
func NewService(store repository.Store, hasher PasswordHasher, sanitizer security.TextSanitizer) *Service {
	return &Service{
		store:     store,
		hasher:    hasher,
		sanitizer: sanitizer,
		now:       time.Now,
	}
}

// RegisterTrainee は受講者アカウントを登録する。
func (s *Service) RegisterTrainee(ctx context.Context, in RegisterInput) (*model.User, error) {
	return s.createUser(ctx, in, model.RoleTrainee, false)
}

// CreateTrainer は管理者がトレーナーアカウントを作成する。
// 初回ログイン時にパスワード変更を要求する。
func (s *Service) CreateTrainer(ctx context.Context, in RegisterInput) (*model.User, error) {
	return s.createUser(ctx, in, model.RoleTrainer, true)
}

func (s *Service) createUser(ctx context.Context, in RegisterInput, role model.Role, needPasswordChange bool) (*model.User, error) {
	email := strings.ToLower(strings.TrimSpace(in.Email))

	existing, err := s.store.Users().FindByEmail(ctx, email)
	if err != nil {
		return nil, fmt.Errorf("ユーザーの検索に失敗しました: %w", err)
	}
	if existing != nil {
		return nil, model.NewEmailAlreadyExistsError(email)
	}

	hash, err := s.hasher.Hash(in.Password)
	if err != nil {
		return nil, err
	}

	now := s.now()
	userID := uuid.New().String()
	user := &model.User{
		ID:                 userID,
		Email:              email,
		PasswordHash:       hash,
		Role:               role,
		Status:             model.UserStatusActive,
		NeedPasswordChange: needPasswordChange,
		CreatedAt:          now,
		UpdatedAt:          now,
		Profile: &model.Profile{
			ID:        uuid.New().String(),
			UserID:    userID,
			Name:      s.sanitizer.Sanitize(in.Profile.Name),
			Age:       in.Profile.Age,
			Phone:     s.sanitizer.Sanitize(in.Profile.Phone),
			Gender:    in.Profile.Gender,
			CreatedAt: now,
			UpdatedAt: now,
		},
	}

	// ユーザーとプロフィールは同一トランザクションで作成する
	err = s.store.WithinTx(ctx, func(ctx context.Context, tx repository.Store) error {
		return tx.Users().Create(ctx, user)
	})
	if err != nil {
		if errors.Is(err, repository.ErrDuplicate) {
			return nil, model.NewEmailAlreadyExistsError(email)
		}
		return nil, fmt.Errorf("ユーザーの作成に失敗しました: %w", err)
	}

	slog.Info("user created",
		slog.String("user_id", user.ID),
		slog.String("role", string(role)),
	)
	return user, nil
}

// ListUsers は条件に一致するユーザーを1ページ分返す。
func (s *Service) ListUsers(ctx context.Context, filter model.UserFilter, opts model.UserListOptions) ([]*model.User, model.PageMeta, error) {
	opts = opts.Normalize()
	filter.SearchTerm = strings.TrimSpace(filter.SearchTerm)

	users, total, err := s.store.Users().List(ctx, filter, opts)
	if err != nil {
		return nil, model.PageMeta{}, fmt.Errorf("ユーザー一覧の取得に失敗しました: %w", err)
	}
	if users == nil {
		users = []*model.User{}
	}
	return users, model.PageMeta{Page: opts.Page, Limit: opts.Limit, Total: total}, nil
}

// UpdateUserStatus はユーザーのステータスを変更し、変更後のユーザーを返す。
// ACTIVE以外への変更時はリフレッシュセッションを失効させる。
func (s *Service) UpdateUserStatus(ctx context.Context, id string, status model.UserStatus) (*model.User, error) {
	if !status.Valid() {
		return nil, model.NewBadRequestError(fmt.Sprintf("Invalid status: %s", status))
	}

	var updated *model.User
	err := s.store.WithinTx(ctx, func(ctx context.Context, tx repository.Store) error {
		if err := tx.Users().UpdateStatus(ctx, id, status); err != nil {
			if errors.Is(err, repository.ErrNotFound) {
				return model.NewUserNotFoundError()
			}
			return fmt.Errorf("ステータスの更新に失敗しました: %w", err)
		}
		if status != model.UserStatusActive {
			if err := tx.Sessions().DeleteByUserID(ctx, id); err != nil {
				return fmt.Errorf("セッションの削除に失敗しました: %w", err)
			}
		}
		u, err := tx.Users().FindByID(ctx, id)
		if err != nil {
			return fmt.Errorf("ユーザーの取得に失敗しました: %w", err)
		}
		updated = u
		return nil
	})
	if err != nil {
		return nil, err
	}

	slog.Info("user status updated",
		slog.String("user_id", id),
		slog.String("status", string(status)),
	)
	return updated, nil
}

// GetMyProfile は要求者自身のユーザー情報をプロフィール付きで返す。
func (s *Service) GetMyProfile(ctx context.Context, identity model.Identity) (*model.User, error) {
	u, err := s.store.Users().FindByID(ctx, identity.UserID)
	if err != nil {
		return nil, fmt.Errorf("ユーザーの取得に失敗しました: %w", err)
	}
	if u == nil {
		return nil, model.NewUserNotFoundError()
	}
	return u, nil
}

// UpdateMyProfile は要求者自身のプロフィールを部分更新する。
// プロフィール未作成の場合は作成する。
func (s *Service) UpdateMyProfile(ctx context.Context, identity model.Identity, patch model.ProfilePatch) (*model.User, error) {
	var updated *model.User
	err := s.store.WithinTx(ctx, func(ctx context.Context, tx repository.Store) error {
		u, err := tx.Users().LockByID(ctx, identity.UserID)
		if err != nil {
			return fmt.Errorf("ユーザーの取得に失敗しました: %w", err)
		}
		if u == nil {
			return model.NewUserNotFoundError()
		}

		now := s.now()
		profile := u.Profile
		if profile == nil {
			profile = &model.Profile{
				ID:        uuid.New().String(),
				UserID:    u.ID,
				CreatedAt: now,
			}
		}
		if patch.Name != nil {
			profile.Name = s.sanitizer.Sanitize(*patch.Name)
		}
		if patch.Age != nil {
			profile.Age = patch.Age
		}
		if patch.Phone != nil {
			profile.Phone = s.sanitizer.Sanitize(*patch.Phone)
		}
		if patch.Gender != nil {
			profile.Gender = *patch.Gender
		}
		profile.UpdatedAt = now

		if err := tx.Users().UpsertProfile(ctx, profile); err != nil {
			return fmt.Errorf("プロフィールの更新に失敗しました: %w", err)
		}

		updated, err = tx.Users().FindByID(ctx, u.ID)
		if err != nil {
			return fmt.Errorf("ユーザーの取得に失敗しました: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

// SeedSuperAdmin は管理者が1人も存在しない場合にSUPER_ADMINを作成する。
// 既に管理者が存在する場合は何もせずfalseを返す。
func (s *Service) SeedSuperAdmin(ctx context.Context, email, password string) (bool, error) {
	if strings.TrimSpace(email) == "" || password == "" {
		return false, fmt.Errorf("シード管理者のメールアドレスとパスワードは必須です")
	}

	count, err := s.store.Users().CountByRoles(ctx, []model.Role{model.RoleAdmin, model.RoleSuperAdmin})
	if err != nil {
		return false, fmt.Errorf("管理者数の取得に失敗しました: %w", err)
	}
	if count > 0 {
		slog.Info("admin already exists, skipping seed")
		return false, nil
	}

	_, err = s.createUser(ctx, RegisterInput{
		Email:    email,
		Password: password,
		Profile:  ProfileInput{Name: seedAdminName},
	}, model.RoleSuperAdmin, false)
	if err != nil {
		return false, err
	}
	return true, nil
}
