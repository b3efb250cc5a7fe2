// Package cleanup は不要になったデータの自動削除ジョブを提供する。
// 保持期間（デフォルト90日）より前に終了したクラス枠と、
// 有効期限切れのリフレッシュセッションを定期バッチで削除する。
// 枠に紐づく予約はCASCADE削除で自動的に処理される。
package cleanup

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"
)

// Executor はSQLのExecContextを抽象化するインターフェース。
// *sql.DB や *sql.Tx を受け付けることができる。
type Executor interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

const (
	deleteExpiredSchedulesQuery = `DELETE FROM schedules WHERE end_date_time < now() - $1::interval`
	deleteExpiredSessionsQuery  = `DELETE FROM refresh_sessions WHERE expires_at < now()`
)

// CleanupJob は古いクラス枠と期限切れセッションの削除ジョブ。
// 何度実行しても結果が変わらない冪等な削除処理のみを行う。
type CleanupJob struct {
	db            Executor
	logger        *slog.Logger
	RetentionDays int // 終了済み枠の保持日数（デフォルト: 90）
}

// NewCleanupJob は新しいCleanupJobを生成する。
// デフォルトの保持日数は90日。
func NewCleanupJob(db Executor, logger *slog.Logger) *CleanupJob {
	return &CleanupJob{
		db:            db,
		logger:        logger,
		RetentionDays: 90,
	}
}

// Run は削除処理を1回実行する。
// 枠の削除に失敗してもセッションの削除は試み、両方のエラーをまとめて返す。
func (j *CleanupJob) Run(ctx context.Context) error {
	start := time.Now()

	var (
		schedules int64
		schedErr  error
	)
	if j.RetentionDays < 0 {
		// 負の保持日数では終了前の枠まで削除されるため実行しない
		schedErr = fmt.Errorf("保持日数が負の値です: %d", j.RetentionDays)
	} else {
		schedules, schedErr = j.exec(ctx, deleteExpiredSchedulesQuery, fmt.Sprintf("%d days", j.RetentionDays))
	}
	if schedErr != nil {
		j.logger.Error("終了済みクラス枠の削除に失敗しました",
			slog.String("error", schedErr.Error()),
			slog.Int("retention_days", j.RetentionDays),
		)
		schedErr = fmt.Errorf("クラス枠クリーンアップの実行に失敗: %w", schedErr)
	}

	sessions, sessErr := j.exec(ctx, deleteExpiredSessionsQuery)
	if sessErr != nil {
		j.logger.Error("期限切れセッションの削除に失敗しました",
			slog.String("error", sessErr.Error()),
		)
		sessErr = fmt.Errorf("セッションクリーンアップの実行に失敗: %w", sessErr)
	}

	if err := errors.Join(schedErr, sessErr); err != nil {
		return err
	}

	duration := time.Since(start)
	j.logger.Info("クリーンアップジョブが完了しました",
		slog.Int64("deleted_schedules", schedules),
		slog.Int64("deleted_sessions", sessions),
		slog.Int("retention_days", j.RetentionDays),
		slog.Float64("duration_ms", float64(duration.Milliseconds())),
	)

	return nil
}

func (j *CleanupJob) exec(ctx context.Context, query string, args ...any) (int64, error) {
	result, err := j.db.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, err
	}
	n, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("削除件数の取得に失敗: %w", err)
	}
	return n, nil
}

// Start は起動直後に1回実行し、その後intervalごとにRunを繰り返す。
// コンテキストがキャンセルされるまで実行を継続する。
// 個々の実行エラーはログに記録し、ループは止めない。
func (j *CleanupJob) Start(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	j.logger.Info("クリーンアップワーカーを開始しました",
		slog.Duration("interval", interval),
		slog.Int("retention_days", j.RetentionDays),
	)

	_ = j.Run(ctx)

	for {
		select {
		case <-ctx.Done():
			j.logger.Info("クリーンアップワーカーを停止しました")
			return
		case <-ticker.C:
			_ = j.Run(ctx)
		}
	}
}
