// Package repository はデータ永続化のインターフェースを定義する。
package repository

import (
	"context"
	"database/sql"
	"time"

	"github.com/hitoshi/fitclass/internal/model"
)

// UserRepository はユーザーとプロフィールの永続化インターフェース。
type UserRepository interface {
	// FindByID は指定IDのユーザーをプロフィール付きで取得する。見つからない場合はnilを返す。
	FindByID(ctx context.Context, id string) (*model.User, error)

	// LockByID はFindByIDと同じだが、トランザクション終了まで行ロックを保持する。
	LockByID(ctx context.Context, id string) (*model.User, error)

	// FindByEmail はメールアドレスでユーザーを検索する。見つからない場合はnilを返す。
	FindByEmail(ctx context.Context, email string) (*model.User, error)

	// Create はユーザーを作成する。user.Profileが非nilの場合はプロフィールも作成する。
	// メールアドレス重複時はErrDuplicateを返す。
	Create(ctx context.Context, user *model.User) error

	// List は条件に一致するユーザーの1ページ分と総件数を返す。
	List(ctx context.Context, filter model.UserFilter, opts model.UserListOptions) ([]*model.User, int, error)

	// CountByRoles は指定ロールのいずれかに該当するユーザー数を返す。
	CountByRoles(ctx context.Context, roles []model.Role) (int, error)

	// UpdateStatus はユーザーのステータスを更新する。対象が存在しない場合はErrNotFoundを返す。
	UpdateStatus(ctx context.Context, id string, status model.UserStatus) error

	// UpdatePassword はパスワードハッシュとパスワード変更要求フラグを更新する。
	UpdatePassword(ctx context.Context, id, passwordHash string, needPasswordChange bool) error

	// UpsertProfile はプロフィールを作成または更新する。
	UpsertProfile(ctx context.Context, profile *model.Profile) error
}

// ScheduleRepository はクラス枠の永続化インターフェース。
type ScheduleRepository interface {
	// FindByID は指定IDの枠を取得する。見つからない場合はnilを返す。
	FindByID(ctx context.Context, id string) (*model.Schedule, error)

	// LockByID はFindByIDと同じだが、トランザクション終了まで行ロックを保持する。
	// 同一枠への予約を直列化するために使用する。
	LockByID(ctx context.Context, id string) (*model.Schedule, error)

	// CountByTrainerStartingBetween はトレーナーの枠のうち開始時刻が [from, to) に含まれる件数を返す。
	CountByTrainerStartingBetween(ctx context.Context, trainerID string, from, to time.Time) (int, error)

	// FindOverlapping はトレーナーの枠のうち [start, end) と重なる最初の1件を返す。
	// 存在しない場合はnilを返す。
	FindOverlapping(ctx context.Context, trainerID string, start, end time.Time) (*model.Schedule, error)

	// Create は枠を作成する。同一トレーナーの重複区間がDB制約に触れた場合はErrOverlapを返す。
	Create(ctx context.Context, schedule *model.Schedule) error

	// List は条件に一致する枠を開始時刻の昇順で1ページ分返し、総件数も返す。
	List(ctx context.Context, filter model.ScheduleFilter, page model.PageRequest) ([]*model.Schedule, int, error)

	// ListByTrainer はトレーナーの全枠を開始時刻の昇順で返す。
	ListByTrainer(ctx context.Context, trainerID string) ([]*model.Schedule, error)

	// Delete は指定IDの枠を削除する。予約はCASCADE削除される。
	// 対象が存在しない場合はErrNotFoundを返す。
	Delete(ctx context.Context, id string) error
}

// BookingRepository は予約の永続化インターフェース。
type BookingRepository interface {
	// FindByID は指定IDの予約を枠情報付きで取得する。見つからない場合はnilを返す。
	FindByID(ctx context.Context, id string) (*model.Booking, error)

	// CountBySchedule は枠の予約数を返す。
	CountBySchedule(ctx context.Context, scheduleID string) (int, error)

	// FindOverlappingForUser はユーザーの予約のうち、枠の区間が [start, end) と重なる最初の1件を返す。
	// 存在しない場合はnilを返す。
	FindOverlappingForUser(ctx context.Context, userID string, start, end time.Time) (*model.Booking, error)

	// Create は予約を作成する。(user_id, schedule_id) 重複時はErrDuplicateを返す。
	Create(ctx context.Context, booking *model.Booking) error

	// Delete は指定IDの予約を削除する。対象が存在しない場合はErrNotFoundを返す。
	Delete(ctx context.Context, id string) error

	// ListUpcomingByUser はユーザーの予約のうち枠の開始がnowより後のものを、
	// 開始時刻の昇順で枠情報付きで返す。
	ListUpcomingByUser(ctx context.Context, userID string, now time.Time) ([]*model.Booking, error)
}

// SessionRepository はリフレッシュセッションの永続化インターフェース。
type SessionRepository interface {
	// Create はセッションを作成する。
	Create(ctx context.Context, session *model.RefreshSession) error
	// FindByID は指定IDのセッションを取得する。期限切れの場合はnilを返す。
	FindByID(ctx context.Context, id string) (*model.RefreshSession, error)
	// DeleteByID は指定IDのセッションを削除する。
	DeleteByID(ctx context.Context, id string) error
	// DeleteByUserID は指定ユーザーの全セッションを削除する。
	DeleteByUserID(ctx context.Context, userID string) error
}

// Store はリポジトリ群とトランザクション境界をまとめたもの。
// サービス層はStoreを受け取り、複数の読み書きをWithinTxでまとめる。
type Store interface {
	Users() UserRepository
	Schedules() ScheduleRepository
	Bookings() BookingRepository
	Sessions() SessionRepository

	// WithinTx はfnを1つのトランザクション内で実行する。
	// fnがエラーを返した場合はロールバックする。
	// fnに渡されるStoreはトランザクションに束縛されている。
	// 既にトランザクション内のStoreで呼ばれた場合は同じトランザクションで実行する。
	WithinTx(ctx context.Context, fn func(ctx context.Context, tx Store) error) error
}

// DBTX は*sql.DBと*sql.Txの共通インターフェース。
type DBTX interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// TxBeginner はトランザクション開始用のインターフェース。
type TxBeginner interface {
	BeginTx(ctx context.Context, opts *sql.TxOptions) (*sql.Tx, error)
}
