// Package model はドメインモデルを定義する。
package model

import (
	"strings"
	"time"
)

// Role はユーザーの権限種別を表す。
type Role string

const (
	RoleTrainee    Role = "TRAINEE"
	RoleTrainer    Role = "TRAINER"
	RoleAdmin      Role = "ADMIN"
	RoleSuperAdmin Role = "SUPER_ADMIN"
)

// Valid は定義済みロールかどうかを返す。
func (r Role) Valid() bool {
	switch r {
	case RoleTrainee, RoleTrainer, RoleAdmin, RoleSuperAdmin:
		return true
	}
	return false
}

// IsAdmin は管理者ロール（ADMIN/SUPER_ADMIN）かどうかを返す。
func (r Role) IsAdmin() bool {
	return r == RoleAdmin || r == RoleSuperAdmin
}

// JoinRoles は "A or B" 形式でロールを連結する。
func JoinRoles(roles []Role) string {
	names := make([]string, len(roles))
	for i, r := range roles {
		names[i] = string(r)
	}
	return strings.Join(names, " or ")
}

// UserStatus はユーザーアカウントの状態を表す。
type UserStatus string

const (
	UserStatusActive  UserStatus = "ACTIVE"
	UserStatusBlocked UserStatus = "BLOCKED"
	UserStatusDeleted UserStatus = "DELETED"
)

// Valid は定義済みステータスかどうかを返す。
func (s UserStatus) Valid() bool {
	switch s {
	case UserStatusActive, UserStatusBlocked, UserStatusDeleted:
		return true
	}
	return false
}

// Gender はプロフィールの性別を表す。
type Gender string

const (
	GenderMale   Gender = "Male"
	GenderFemale Gender = "Female"
)

// User はサービス利用ユーザーを表す。
// 物理削除は行わず、StatusをDELETEDにして論理的に無効化する。
type User struct {
	ID                 string
	Email              string
	PasswordHash       string
	Role               Role
	Status             UserStatus
	NeedPasswordChange bool
	CreatedAt          time.Time
	UpdatedAt          time.Time

	// Profile は未作成の場合nil。
	Profile *Profile
}

// IsActive はACTIVE状態かどうかを返す。
func (u *User) IsActive() bool {
	return u.Status == UserStatusActive
}

// Identity は認証済みリクエストの主体を表す。
// 認証ミドルウェアがトークンから復元し、サービス層に渡す。
type Identity struct {
	UserID string
	Email  string
	Role   Role
}

// Profile はユーザーの付帯情報を表す。ユーザーと1対1。
type Profile struct {
	ID        string
	UserID    string
	Name      string
	Age       *int
	Phone     string
	Gender    Gender
	CreatedAt time.Time
	UpdatedAt time.Time
}

// ProfilePatch はプロフィールの部分更新内容を表す。nilのフィールドは変更しない。
type ProfilePatch struct {
	Name   *string
	Age    *int
	Phone  *string
	Gender *Gender
}

// RefreshSession はリフレッシュトークンに対応するサーバー側セッションを表す。
// ログアウトやパスワード変更時に削除することでトークンを失効させる。
type RefreshSession struct {
	ID        string
	UserID    string
	ExpiresAt time.Time
	CreatedAt time.Time
}
