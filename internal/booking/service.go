// Package booking は受講者によるクラス予約のドメインロジックを提供する。
package booking

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/hitoshi/fitclass/internal/metrics"
	"github.com/hitoshi/fitclass/internal/model"
	"github.com/hitoshi/fitclass/internal/repository"
)

// Service は予約のサービス層。
// 定員・時間重複の検査と作成は1つのトランザクションで行い、枠の行ロックで直列化する。
type Service struct {
	store    repository.Store
	capacity int
	metrics  metrics.MetricsCollector
	now      func() time.Time
}

// NewService はServiceの新しいインスタンスを生成する。
// capacityは1枠あたりの最大予約数。mcがnilの場合はメトリクスを記録しない。
func NewService(store repository.Store, capacity int, mc metrics.MetricsCollector) *Service {
	if mc == nil {
		mc = metrics.Nop{}
	}
	return &Service{
		store:    store,
		capacity: capacity,
		metrics:  mc,
		now:      time.Now,
	}
}

// BookSlot は受講者の予約を作成する。
func (s *Service) BookSlot(ctx context.Context, identity model.Identity, scheduleID string) (*model.Booking, error) {
	if strings.TrimSpace(scheduleID) == "" {
		err := model.NewBadRequestError("Schedule ID is required.")
		s.recordRejection(err)
		return nil, err
	}

	var booking *model.Booking
	err := s.store.WithinTx(ctx, func(ctx context.Context, tx repository.Store) error {
		// 同一受講者の並行予約を直列化する
		trainee, err := tx.Users().LockByID(ctx, identity.UserID)
		if err != nil {
			return fmt.Errorf("受講者の取得に失敗しました: %w", err)
		}
		if trainee == nil || trainee.Role != model.RoleTrainee || !trainee.IsActive() {
			return model.NewTraineeNotFoundError()
		}

		// 同一枠への並行予約を直列化する
		sch, err := tx.Schedules().LockByID(ctx, scheduleID)
		if err != nil {
			return fmt.Errorf("スケジュールの取得に失敗しました: %w", err)
		}
		if sch == nil {
			return model.NewScheduleNotFoundError(scheduleID)
		}

		count, err := tx.Bookings().CountBySchedule(ctx, sch.ID)
		if err != nil {
			return fmt.Errorf("予約数の取得に失敗しました: %w", err)
		}
		if count >= s.capacity {
			return model.NewSlotFullError(s.capacity)
		}

		existing, err := tx.Bookings().FindOverlappingForUser(ctx, trainee.ID, sch.StartDateTime, sch.EndDateTime)
		if err != nil {
			return fmt.Errorf("重複予約の検索に失敗しました: %w", err)
		}
		if existing != nil {
			return model.NewBookingTimeConflictError()
		}

		now := s.now()
		b := &model.Booking{
			ID:         uuid.New().String(),
			UserID:     trainee.ID,
			ScheduleID: sch.ID,
			CreatedAt:  now,
			UpdatedAt:  now,
		}
		if err := tx.Bookings().Create(ctx, b); err != nil {
			if errors.Is(err, repository.ErrDuplicate) {
				return model.NewBookingTimeConflictError()
			}
			if errors.Is(err, repository.ErrForeignKey) {
				return model.NewScheduleNotFoundError(scheduleID)
			}
			return fmt.Errorf("予約の作成に失敗しました: %w", err)
		}
		b.Schedule = sch
		booking = b
		return nil
	})
	if err != nil {
		s.recordRejection(err)
		return nil, err
	}

	s.metrics.RecordBookingCreated()
	slog.Info("booking created",
		slog.String("booking_id", booking.ID),
		slog.String("user_id", booking.UserID),
		slog.String("schedule_id", booking.ScheduleID),
	)
	return booking, nil
}

// CancelBooking は受講者自身の予約を取り消し、削除前の内容を返す。
// 開始済みのクラスはキャンセルできない。
func (s *Service) CancelBooking(ctx context.Context, identity model.Identity, bookingID string) (*model.Booking, error) {
	if strings.TrimSpace(bookingID) == "" {
		return nil, model.NewBadRequestError("Booking ID is required.")
	}

	var cancelled *model.Booking
	err := s.store.WithinTx(ctx, func(ctx context.Context, tx repository.Store) error {
		b, err := tx.Bookings().FindByID(ctx, bookingID)
		if err != nil {
			return fmt.Errorf("予約の取得に失敗しました: %w", err)
		}
		if b == nil {
			return model.NewBookingNotFoundError()
		}
		if b.UserID != identity.UserID {
			return model.NewNotBookingOwnerError()
		}
		if b.Schedule == nil {
			return model.NewScheduleNotFoundError(b.ScheduleID)
		}
		if b.Schedule.HasStarted(s.now()) {
			return model.NewClassAlreadyStartedError("cancel", b.Schedule.StartDateTime)
		}

		if err := tx.Bookings().Delete(ctx, b.ID); err != nil {
			if errors.Is(err, repository.ErrNotFound) {
				return model.NewBookingNotFoundError()
			}
			return fmt.Errorf("予約の削除に失敗しました: %w", err)
		}
		cancelled = b
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.metrics.RecordBookingCancelled()
	slog.Info("booking cancelled",
		slog.String("booking_id", cancelled.ID),
		slog.String("user_id", cancelled.UserID),
		slog.String("schedule_id", cancelled.ScheduleID),
	)
	return cancelled, nil
}

// ListUpcomingBookings は受講者の未開始クラスの予約を、開始時刻の昇順で枠情報付きで返す。
func (s *Service) ListUpcomingBookings(ctx context.Context, identity model.Identity) ([]*model.Booking, error) {
	bookings, err := s.store.Bookings().ListUpcomingByUser(ctx, identity.UserID, s.now())
	if err != nil {
		return nil, fmt.Errorf("予約一覧の取得に失敗しました: %w", err)
	}
	if bookings == nil {
		bookings = []*model.Booking{}
	}
	return bookings, nil
}

func (s *Service) recordRejection(err error) {
	var apiErr *model.APIError
	if errors.As(err, &apiErr) {
		s.metrics.RecordBookingRejected(apiErr.Code)
	}
}
