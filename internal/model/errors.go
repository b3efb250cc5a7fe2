// Package model はドメインモデルを定義する。
package model

import (
	"errors"
	"fmt"
	"time"
)

// ErrorKind はAPIErrorの分類を表す。HTTPステータスへの対応は境界層が行う。
type ErrorKind int

const (
	KindInternal ErrorKind = iota
	KindBadRequest
	KindUnauthorized
	KindForbidden
	KindNotFound
	KindConflict
	// KindCapacityExceeded は定員・上限超過。日次スケジュール上限と枠の満席を含む。
	KindCapacityExceeded
)

// String はログ出力用の名前を返す。
func (k ErrorKind) String() string {
	switch k {
	case KindBadRequest:
		return "bad_request"
	case KindUnauthorized:
		return "unauthorized"
	case KindForbidden:
		return "forbidden"
	case KindNotFound:
		return "not_found"
	case KindConflict:
		return "conflict"
	case KindCapacityExceeded:
		return "capacity_exceeded"
	default:
		return "internal"
	}
}

// APIError は統一エラーフォーマットを表す。
// UIに表示する原因カテゴリと対処方法を含む。
type APIError struct {
	Kind     ErrorKind // 分類
	Code     string    // エラーコード
	Message  string    // エラーメッセージ
	Category string    // カテゴリ: auth, validation, schedule, booking, user, system
	Action   string    // ユーザー向け対処方法
	Details  any       // 任意の構造化詳細（日付、作成済み件数、フィールドエラーなど）
}

// Error はerrorインターフェースを実装する。
func (e *APIError) Error() string {
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// WithDetails はDetailsを設定したコピーを返す。
func (e *APIError) WithDetails(details any) *APIError {
	cp := *e
	cp.Details = details
	return &cp
}

// IsKind はerrがkindのAPIErrorかどうかを判定する。
func IsKind(err error, kind ErrorKind) bool {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.Kind == kind
	}
	return false
}

// 定義済みエラーコード
const (
	ErrCodeBadRequest          = "BAD_REQUEST"
	ErrCodeValidation          = "VALIDATION_ERROR"
	ErrCodeUnauthorized        = "UNAUTHORIZED"
	ErrCodeInvalidCredentials  = "INVALID_CREDENTIALS"
	ErrCodeForbidden           = "FORBIDDEN"
	ErrCodeConflict            = "CONFLICT"
	ErrCodeEmailAlreadyExists  = "EMAIL_ALREADY_EXISTS"
	ErrCodeUserNotFound        = "USER_NOT_FOUND"
	ErrCodeTrainerNotFound     = "TRAINER_NOT_FOUND"
	ErrCodeTraineeNotFound     = "TRAINEE_NOT_FOUND"
	ErrCodeInvalidRole         = "INVALID_ROLE"
	ErrCodeScheduleNotFound    = "SCHEDULE_NOT_FOUND"
	ErrCodeScheduleConflict    = "SCHEDULE_CONFLICT"
	ErrCodeDailyScheduleLimit  = "DAILY_SCHEDULE_LIMIT"
	ErrCodeInvalidDateRange    = "INVALID_DATE_RANGE"
	ErrCodeBookingNotFound     = "BOOKING_NOT_FOUND"
	ErrCodeSlotFull            = "SLOT_FULL"
	ErrCodeBookingTimeConflict = "BOOKING_TIME_CONFLICT"
	ErrCodeClassAlreadyStarted = "CLASS_ALREADY_STARTED"
	ErrCodeNotBookingOwner     = "NOT_BOOKING_OWNER"
)

// NewBadRequestError は汎用の入力エラーを生成する。
func NewBadRequestError(message string) *APIError {
	return &APIError{
		Kind:     KindBadRequest,
		Code:     ErrCodeBadRequest,
		Message:  message,
		Category: "validation",
		Action:   "入力内容を確認してください。",
	}
}

// NewValidationError はリクエストボディの検証エラーを生成する。
func NewValidationError(details any) *APIError {
	return &APIError{
		Kind:     KindBadRequest,
		Code:     ErrCodeValidation,
		Message:  "Validation error occurred.",
		Category: "validation",
		Action:   "入力内容を確認してください。",
		Details:  details,
	}
}

// NewUnauthorizedError は認証情報の欠落・不正を表すエラーを生成する。
func NewUnauthorizedError() *APIError {
	return &APIError{
		Kind:     KindUnauthorized,
		Code:     ErrCodeUnauthorized,
		Message:  "Unauthorized access.",
		Category: "auth",
		Action:   "ログインし直してください。",
	}
}

// NewInvalidCredentialsError はログイン失敗エラーを生成する。
// ユーザーの存在有無が推測できないよう、原因を区別しない。
func NewInvalidCredentialsError() *APIError {
	return &APIError{
		Kind:     KindUnauthorized,
		Code:     ErrCodeInvalidCredentials,
		Message:  "Invalid email or password.",
		Category: "auth",
		Action:   "メールアドレスとパスワードを確認してください。",
	}
}

// NewRoleForbiddenError はロール不一致のエラーを生成する。
func NewRoleForbiddenError(allowed []Role) *APIError {
	return &APIError{
		Kind:     KindForbidden,
		Code:     ErrCodeForbidden,
		Message:  fmt.Sprintf("You must be a %s to perform this action.", JoinRoles(allowed)),
		Category: "auth",
		Action:   "権限のあるアカウントでログインしてください。",
	}
}

// NewEmailAlreadyExistsError はメールアドレス重複エラーを生成する。
func NewEmailAlreadyExistsError(email string) *APIError {
	return &APIError{
		Kind:     KindConflict,
		Code:     ErrCodeEmailAlreadyExists,
		Message:  fmt.Sprintf("User with email %s already exists.", email),
		Category: "user",
		Action:   "別のメールアドレスを使用するか、ログインしてください。",
	}
}

// NewDuplicateKeyError はDB制約違反による重複エラーを生成する。
func NewDuplicateKeyError() *APIError {
	return &APIError{
		Kind:     KindConflict,
		Code:     ErrCodeConflict,
		Message:  "Duplicate key error.",
		Category: "system",
		Action:   "同じデータが既に登録されていないか確認してください。",
	}
}

// NewUserNotFoundError はユーザーが見つからない場合のエラーを生成する。
func NewUserNotFoundError() *APIError {
	return &APIError{
		Kind:     KindNotFound,
		Code:     ErrCodeUserNotFound,
		Message:  "User not found.",
		Category: "user",
		Action:   "ユーザーIDを確認してください。",
	}
}

// NewTrainerNotFoundError は有効なトレーナーが見つからない場合のエラーを生成する。
func NewTrainerNotFoundError(trainerID string) *APIError {
	return &APIError{
		Kind:     KindNotFound,
		Code:     ErrCodeTrainerNotFound,
		Message:  fmt.Sprintf("Active trainer not found: %s", trainerID),
		Category: "schedule",
		Action:   "トレーナーIDとアカウント状態を確認してください。",
	}
}

// NewTraineeNotFoundError は有効な受講者が見つからない場合のエラーを生成する。
func NewTraineeNotFoundError() *APIError {
	return &APIError{
		Kind:     KindNotFound,
		Code:     ErrCodeTraineeNotFound,
		Message:  "Trainee not found.",
		Category: "booking",
		Action:   "受講者アカウントでログインし直してください。",
	}
}

// NewInvalidRoleError は参照先ユーザーのロールが期待と異なる場合のエラーを生成する。
func NewInvalidRoleError(userID string, want Role) *APIError {
	return &APIError{
		Kind:     KindBadRequest,
		Code:     ErrCodeInvalidRole,
		Message:  fmt.Sprintf("User %s is not a %s.", userID, want),
		Category: "validation",
		Action:   "対象ユーザーのロールを確認してください。",
	}
}

// NewInvalidDateRangeError は開始日が終了日より後の場合のエラーを生成する。
func NewInvalidDateRangeError(startDate, endDate string) *APIError {
	return &APIError{
		Kind:     KindBadRequest,
		Code:     ErrCodeInvalidDateRange,
		Message:  fmt.Sprintf("Start date %s must not be after end date %s.", startDate, endDate),
		Category: "validation",
		Action:   "開始日と終了日を確認してください。",
	}
}

// NewDailyScheduleLimitError はトレーナーの1日あたりスケジュール上限超過エラーを生成する。
func NewDailyScheduleLimitError(date string, limit int) *APIError {
	return &APIError{
		Kind:     KindCapacityExceeded,
		Code:     ErrCodeDailyScheduleLimit,
		Message:  fmt.Sprintf("Cannot create more than %d schedules on %s", limit, date),
		Category: "schedule",
		Action:   "別の日を指定するか、既存のスケジュールを削除してください。",
		Details:  map[string]any{"date": date},
	}
}

// NewScheduleConflictError はトレーナーの既存スケジュールとの時間重複エラーを生成する。
func NewScheduleConflictError(date, startTime string) *APIError {
	return &APIError{
		Kind:     KindConflict,
		Code:     ErrCodeScheduleConflict,
		Message:  fmt.Sprintf("Schedule conflict detected on %s from %s.", date, startTime),
		Category: "schedule",
		Action:   "開始時刻または日付を変更してください。",
		Details:  map[string]any{"date": date, "start_time": startTime},
	}
}

// NewScheduleNotFoundError はスケジュールが見つからない場合のエラーを生成する。
func NewScheduleNotFoundError(scheduleID string) *APIError {
	return &APIError{
		Kind:     KindNotFound,
		Code:     ErrCodeScheduleNotFound,
		Message:  fmt.Sprintf("Schedule not found: %s", scheduleID),
		Category: "schedule",
		Action:   "スケジュールIDを確認してください。",
	}
}

// NewSlotFullError は枠の定員超過エラーを生成する。
func NewSlotFullError(capacity int) *APIError {
	return &APIError{
		Kind:     KindCapacityExceeded,
		Code:     ErrCodeSlotFull,
		Message:  fmt.Sprintf("Class schedule is full. Maximum %d trainees allowed per schedule.", capacity),
		Category: "booking",
		Action:   "別のスケジュールを選択してください。",
	}
}

// NewBookingTimeConflictError は受講者の既存予約との時間重複エラーを生成する。
func NewBookingTimeConflictError() *APIError {
	return &APIError{
		Kind:     KindConflict,
		Code:     ErrCodeBookingTimeConflict,
		Message:  "You already have a booking in this time slot.",
		Category: "booking",
		Action:   "予約一覧を確認し、重複しない時間帯を選択してください。",
	}
}

// NewBookingNotFoundError は予約が見つからない場合のエラーを生成する。
func NewBookingNotFoundError() *APIError {
	return &APIError{
		Kind:     KindNotFound,
		Code:     ErrCodeBookingNotFound,
		Message:  "Booking not found.",
		Category: "booking",
		Action:   "予約IDを確認してください。",
	}
}

// NewNotBookingOwnerError は他人の予約を操作しようとした場合のエラーを生成する。
func NewNotBookingOwnerError() *APIError {
	return &APIError{
		Kind:     KindForbidden,
		Code:     ErrCodeNotBookingOwner,
		Message:  "Unauthorized to cancel this booking.",
		Category: "booking",
		Action:   "自分の予約のみキャンセルできます。",
	}
}

// NewClassAlreadyStartedError は開始済みクラスへの操作エラーを生成する。
func NewClassAlreadyStartedError(action string, startAt time.Time) *APIError {
	return &APIError{
		Kind:     KindBadRequest,
		Code:     ErrCodeClassAlreadyStarted,
		Message:  fmt.Sprintf("Cannot %s a class that has already started.", action),
		Category: "booking",
		Action:   "開始前のクラスを選択してください。",
		Details:  map[string]any{"start_date_time": startAt.UTC().Format(time.RFC3339)},
	}
}
