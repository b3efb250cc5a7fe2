package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/hitoshi/fitclass/internal/model"
)

// PostgresScheduleRepo はPostgreSQLを使用したクラス枠リポジトリ。
type PostgresScheduleRepo struct {
	db DBTX
}

// NewPostgresScheduleRepo はPostgresScheduleRepoを生成する。
func NewPostgresScheduleRepo(db DBTX) *PostgresScheduleRepo {
	return &PostgresScheduleRepo{db: db}
}

const scheduleColumns = `id, trainer_id, start_date_time, end_date_time, created_at, updated_at`

func scanSchedule(row rowScanner) (*model.Schedule, error) {
	s := &model.Schedule{}
	if err := row.Scan(&s.ID, &s.TrainerID, &s.StartDateTime, &s.EndDateTime, &s.CreatedAt, &s.UpdatedAt); err != nil {
		return nil, err
	}
	return s, nil
}

func (r *PostgresScheduleRepo) findOne(ctx context.Context, query string, args ...any) (*model.Schedule, error) {
	s, err := scanSchedule(r.db.QueryRowContext(ctx, query, args...))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find schedule: %w", err)
	}
	return s, nil
}

// FindByID は指定IDの枠を取得する。見つからない場合はnilを返す。
func (r *PostgresScheduleRepo) FindByID(ctx context.Context, id string) (*model.Schedule, error) {
	return r.findOne(ctx, `SELECT `+scheduleColumns+` FROM schedules WHERE id = $1`, id)
}

// LockByID は指定IDの枠を行ロック付きで取得する。
func (r *PostgresScheduleRepo) LockByID(ctx context.Context, id string) (*model.Schedule, error) {
	return r.findOne(ctx, `SELECT `+scheduleColumns+` FROM schedules WHERE id = $1 FOR UPDATE`, id)
}

// CountByTrainerStartingBetween はトレーナーの枠のうち開始時刻が [from, to) に含まれる件数を返す。
func (r *PostgresScheduleRepo) CountByTrainerStartingBetween(ctx context.Context, trainerID string, from, to time.Time) (int, error) {
	var count int
	err := r.db.QueryRowContext(ctx,
		`SELECT count(*) FROM schedules
		 WHERE trainer_id = $1 AND start_date_time >= $2 AND start_date_time < $3`,
		trainerID, from, to,
	).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count trainer schedules: %w", err)
	}
	return count, nil
}

// FindOverlapping はトレーナーの枠のうち [start, end) と重なる最初の1件を返す。
func (r *PostgresScheduleRepo) FindOverlapping(ctx context.Context, trainerID string, start, end time.Time) (*model.Schedule, error) {
	return r.findOne(ctx,
		`SELECT `+scheduleColumns+` FROM schedules
		 WHERE trainer_id = $1 AND start_date_time < $3 AND end_date_time > $2
		 ORDER BY start_date_time
		 LIMIT 1`,
		trainerID, start, end,
	)
}

// Create は枠を作成する。
func (r *PostgresScheduleRepo) Create(ctx context.Context, s *model.Schedule) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO schedules (id, trainer_id, start_date_time, end_date_time, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6)`,
		s.ID, s.TrainerID, s.StartDateTime, s.EndDateTime, s.CreatedAt, s.UpdatedAt,
	)
	if err != nil {
		return translateError(err, "failed to insert schedule")
	}
	return nil
}

// List は条件に一致する枠を開始時刻の昇順で1ページ分返し、総件数も返す。
func (r *PostgresScheduleRepo) List(ctx context.Context, filter model.ScheduleFilter, page model.PageRequest) ([]*model.Schedule, int, error) {
	page = page.Normalize(model.DefaultSchedulePageLimit)

	var conds []string
	var args []any
	if !filter.Date.IsZero() {
		from, to := model.DayBounds(filter.Date)
		args = append(args, from, to)
		conds = append(conds, fmt.Sprintf(`start_date_time >= $%d AND start_date_time < $%d`, len(args)-1, len(args)))
	}
	if filter.TrainerID != "" {
		args = append(args, filter.TrainerID)
		conds = append(conds, fmt.Sprintf(`trainer_id = $%d`, len(args)))
	}
	where := ""
	if len(conds) > 0 {
		where = " WHERE " + strings.Join(conds, " AND ")
	}

	var total int
	if err := r.db.QueryRowContext(ctx, `SELECT count(*) FROM schedules`+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("failed to count schedules: %w", err)
	}

	query := fmt.Sprintf(`SELECT %s FROM schedules%s ORDER BY start_date_time ASC, id LIMIT $%d OFFSET $%d`,
		scheduleColumns, where, len(args)+1, len(args)+2)
	args = append(args, page.Limit, page.Offset())

	schedules, err := r.queryMany(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	return schedules, total, nil
}

// ListByTrainer はトレーナーの全枠を開始時刻の昇順で返す。
func (r *PostgresScheduleRepo) ListByTrainer(ctx context.Context, trainerID string) ([]*model.Schedule, error) {
	return r.queryMany(ctx,
		`SELECT `+scheduleColumns+` FROM schedules WHERE trainer_id = $1 ORDER BY start_date_time ASC, id`,
		trainerID,
	)
}

func (r *PostgresScheduleRepo) queryMany(ctx context.Context, query string, args ...any) ([]*model.Schedule, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list schedules: %w", err)
	}
	defer rows.Close()

	var schedules []*model.Schedule
	for rows.Next() {
		s, err := scanSchedule(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan schedule: %w", err)
		}
		schedules = append(schedules, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate schedules: %w", err)
	}
	return schedules, nil
}

// Delete は指定IDの枠を削除する。予約はCASCADE削除される。
func (r *PostgresScheduleRepo) Delete(ctx context.Context, id string) error {
	result, err := r.db.ExecContext(ctx, `DELETE FROM schedules WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete schedule: %w", err)
	}
	return requireAffected(result, id)
}

// compile-time interface check
var _ ScheduleRepository = (*PostgresScheduleRepo)(nil)
