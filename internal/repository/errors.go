package repository

import (
	"errors"
	"fmt"

	"github.com/lib/pq"
)

var (
	// ErrNotFound は更新・削除対象の行が存在しない場合に返す。
	ErrNotFound = errors.New("record not found")
	// ErrDuplicate は一意制約違反を表す。
	ErrDuplicate = errors.New("duplicate key")
	// ErrOverlap は排他制約（同一トレーナーの区間重複）違反を表す。
	ErrOverlap = errors.New("overlapping time range")
	// ErrForeignKey は外部キー制約違反を表す。
	ErrForeignKey = errors.New("referenced record does not exist")
)

// PostgreSQLのSQLSTATE
const (
	pqUniqueViolation      = "23505"
	pqForeignKeyViolation  = "23503"
	pqExclusionViolation   = "23P01"
	pqSerializationFailure = "40001"
	pqDeadlockDetected     = "40P01"
)

// translateError はpq.Errorをリポジトリのエラーに変換する。
// 対象外のエラーはmsgを付けてラップする。
func translateError(err error, msg string) error {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		switch pqErr.Code {
		case pqUniqueViolation:
			return fmt.Errorf("%s: %w (%s)", msg, ErrDuplicate, pqErr.Constraint)
		case pqExclusionViolation:
			return fmt.Errorf("%s: %w (%s)", msg, ErrOverlap, pqErr.Constraint)
		case pqForeignKeyViolation:
			return fmt.Errorf("%s: %w (%s)", msg, ErrForeignKey, pqErr.Constraint)
		}
	}
	return fmt.Errorf("%s: %w", msg, err)
}

// IsRetryable はトランザクションの再実行で解消しうるエラーかどうかを返す。
func IsRetryable(err error) bool {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return pqErr.Code == pqSerializationFailure || pqErr.Code == pqDeadlockDetected
	}
	return false
}
