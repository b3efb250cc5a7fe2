package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/hitoshi/fitclass/internal/model"
)

// PostgresBookingRepo はPostgreSQLを使用した予約リポジトリ。
type PostgresBookingRepo struct {
	db DBTX
}

// NewPostgresBookingRepo はPostgresBookingRepoを生成する。
func NewPostgresBookingRepo(db DBTX) *PostgresBookingRepo {
	return &PostgresBookingRepo{db: db}
}

const bookingWithScheduleColumns = `
	b.id, b.user_id, b.schedule_id, b.created_at, b.updated_at,
	s.id, s.trainer_id, s.start_date_time, s.end_date_time, s.created_at, s.updated_at`

func scanBookingWithSchedule(row rowScanner) (*model.Booking, error) {
	b := &model.Booking{Schedule: &model.Schedule{}}
	s := b.Schedule
	err := row.Scan(
		&b.ID, &b.UserID, &b.ScheduleID, &b.CreatedAt, &b.UpdatedAt,
		&s.ID, &s.TrainerID, &s.StartDateTime, &s.EndDateTime, &s.CreatedAt, &s.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return b, nil
}

// FindByID は指定IDの予約を枠情報付きで取得する。見つからない場合はnilを返す。
func (r *PostgresBookingRepo) FindByID(ctx context.Context, id string) (*model.Booking, error) {
	b, err := scanBookingWithSchedule(r.db.QueryRowContext(ctx,
		`SELECT `+bookingWithScheduleColumns+`
		 FROM bookings b JOIN schedules s ON s.id = b.schedule_id
		 WHERE b.id = $1`,
		id,
	))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find booking: %w", err)
	}
	return b, nil
}

// CountBySchedule は枠の予約数を返す。
func (r *PostgresBookingRepo) CountBySchedule(ctx context.Context, scheduleID string) (int, error) {
	var count int
	err := r.db.QueryRowContext(ctx,
		`SELECT count(*) FROM bookings WHERE schedule_id = $1`,
		scheduleID,
	).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count bookings: %w", err)
	}
	return count, nil
}

// FindOverlappingForUser はユーザーの予約のうち、枠の区間が [start, end) と重なる最初の1件を返す。
func (r *PostgresBookingRepo) FindOverlappingForUser(ctx context.Context, userID string, start, end time.Time) (*model.Booking, error) {
	b, err := scanBookingWithSchedule(r.db.QueryRowContext(ctx,
		`SELECT `+bookingWithScheduleColumns+`
		 FROM bookings b JOIN schedules s ON s.id = b.schedule_id
		 WHERE b.user_id = $1 AND s.start_date_time < $3 AND s.end_date_time > $2
		 ORDER BY s.start_date_time
		 LIMIT 1`,
		userID, start, end,
	))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find overlapping booking: %w", err)
	}
	return b, nil
}

// Create は予約を作成する。
func (r *PostgresBookingRepo) Create(ctx context.Context, b *model.Booking) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO bookings (id, user_id, schedule_id, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5)`,
		b.ID, b.UserID, b.ScheduleID, b.CreatedAt, b.UpdatedAt,
	)
	if err != nil {
		return translateError(err, "failed to insert booking")
	}
	return nil
}

// Delete は指定IDの予約を削除する。
func (r *PostgresBookingRepo) Delete(ctx context.Context, id string) error {
	result, err := r.db.ExecContext(ctx, `DELETE FROM bookings WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete booking: %w", err)
	}
	return requireAffected(result, id)
}

// ListUpcomingByUser はユーザーの今後の予約を枠の開始時刻の昇順で返す。
func (r *PostgresBookingRepo) ListUpcomingByUser(ctx context.Context, userID string, now time.Time) ([]*model.Booking, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+bookingWithScheduleColumns+`
		 FROM bookings b JOIN schedules s ON s.id = b.schedule_id
		 WHERE b.user_id = $1 AND s.start_date_time > $2
		 ORDER BY s.start_date_time ASC, b.id`,
		userID, now,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list upcoming bookings: %w", err)
	}
	defer rows.Close()

	var bookings []*model.Booking
	for rows.Next() {
		b, err := scanBookingWithSchedule(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan booking: %w", err)
		}
		bookings = append(bookings, b)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate bookings: %w", err)
	}
	return bookings, nil
}

// compile-time interface check
var _ BookingRepository = (*PostgresBookingRepo)(nil)
