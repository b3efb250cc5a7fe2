// Package schedule はクラス枠の作成・参照・削除のドメインロジックを提供する。
package schedule

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/hitoshi/fitclass/internal/config"
	"github.com/hitoshi/fitclass/internal/metrics"
	"github.com/hitoshi/fitclass/internal/model"
	"github.com/hitoshi/fitclass/internal/repository"
)

// MaxRangeDays は1回の作成リクエストで指定できる日数の上限。
const MaxRangeDays = 366

// Options はクラス枠作成のルール設定。
type Options struct {
	SlotDuration time.Duration
	DailyLimit   int
	CommitMode   string
}

// CreateInput は複数日のクラス枠作成リクエスト。
type CreateInput struct {
	TrainerID string
	StartDate string // YYYY-MM-DD
	EndDate   string // YYYY-MM-DD
	StartTime string // HH:MM (UTC)
}

// Service はクラス枠のサービス層。
type Service struct {
	store   repository.Store
	opts    Options
	metrics metrics.MetricsCollector
	now     func() time.Time
}

// NewService はServiceの新しいインスタンスを生成する。
// mcがnilの場合はメトリクスを記録しない。
func NewService(store repository.Store, opts Options, mc metrics.MetricsCollector) *Service {
	if mc == nil {
		mc = metrics.Nop{}
	}
	if opts.CommitMode == "" {
		opts.CommitMode = config.CommitAllOrNothing
	}
	return &Service{
		store:   store,
		opts:    opts,
		metrics: mc,
		now:     time.Now,
	}
}

// CreateSchedules はStartDateからEndDateまでの各日に、StartTime開始の枠を1つずつ作成する。
// 日ごとにトレーナーの1日上限と既存枠との重複を検査する。
// all_or_nothingでは1日でも失敗すれば全日ロールバックし、
// per_dayでは失敗日より前に作成した枠はコミット済みのまま残る。
func (s *Service) CreateSchedules(ctx context.Context, in CreateInput) ([]*model.Schedule, error) {
	days, offset, err := s.parseInput(in)
	if err != nil {
		s.recordRejection(err)
		return nil, err
	}

	var created []*model.Schedule
	if s.opts.CommitMode == config.CommitPerDay {
		created, err = s.createPerDay(ctx, in.TrainerID, days, offset)
	} else {
		created, err = s.createAllOrNothing(ctx, in.TrainerID, days, offset)
	}

	if len(created) > 0 {
		s.metrics.RecordSchedulesCreated(len(created))
	}
	if err != nil {
		s.recordRejection(err)
		return nil, err
	}

	slog.Info("schedules created",
		slog.String("trainer_id", in.TrainerID),
		slog.String("start_date", in.StartDate),
		slog.String("end_date", in.EndDate),
		slog.Int("count", len(created)),
	)
	return created, nil
}

// parseInput は入力を検証し、対象日（UTC 0時）の一覧と開始時刻のオフセットを返す。
func (s *Service) parseInput(in CreateInput) ([]time.Time, time.Duration, error) {
	if strings.TrimSpace(in.TrainerID) == "" {
		return nil, 0, model.NewBadRequestError("Trainer ID is required!")
	}
	start, err := model.ParseDate(in.StartDate)
	if err != nil {
		return nil, 0, model.NewBadRequestError(fmt.Sprintf("Invalid start date: %s", in.StartDate))
	}
	end, err := model.ParseDate(in.EndDate)
	if err != nil {
		return nil, 0, model.NewBadRequestError(fmt.Sprintf("Invalid end date: %s", in.EndDate))
	}
	offset, err := model.ParseClock(in.StartTime)
	if err != nil {
		return nil, 0, model.NewBadRequestError(fmt.Sprintf("Invalid start time: %s", in.StartTime))
	}
	if start.After(end) {
		return nil, 0, model.NewInvalidDateRangeError(in.StartDate, in.EndDate)
	}

	var days []time.Time
	for d := start; !d.After(end); d = d.AddDate(0, 0, 1) {
		if len(days) == MaxRangeDays {
			return nil, 0, model.NewBadRequestError(fmt.Sprintf("Date range must not exceed %d days.", MaxRangeDays))
		}
		days = append(days, d)
	}
	return days, offset, nil
}

func (s *Service) createAllOrNothing(ctx context.Context, trainerID string, days []time.Time, offset time.Duration) ([]*model.Schedule, error) {
	var created []*model.Schedule
	err := s.store.WithinTx(ctx, func(ctx context.Context, tx repository.Store) error {
		// リトライ時に前回試行分を持ち越さない
		created = created[:0]
		if err := lockTrainer(ctx, tx, trainerID); err != nil {
			return err
		}
		for _, day := range days {
			sch, err := s.createDay(ctx, tx, trainerID, day, offset)
			if err != nil {
				return err
			}
			created = append(created, sch)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return created, nil
}

func (s *Service) createPerDay(ctx context.Context, trainerID string, days []time.Time, offset time.Duration) ([]*model.Schedule, error) {
	var created []*model.Schedule
	for _, day := range days {
		var sch *model.Schedule
		err := s.store.WithinTx(ctx, func(ctx context.Context, tx repository.Store) error {
			if err := lockTrainer(ctx, tx, trainerID); err != nil {
				return err
			}
			var err error
			sch, err = s.createDay(ctx, tx, trainerID, day, offset)
			return err
		})
		if err != nil {
			return created, withCreatedCount(err, created)
		}
		created = append(created, sch)
	}
	return created, nil
}

// createDay は1日分の上限・重複検査と作成を行う。
func (s *Service) createDay(ctx context.Context, tx repository.Store, trainerID string, day time.Time, offset time.Duration) (*model.Schedule, error) {
	date := day.Format(model.DateLayout)
	from, to := model.DayBounds(day)

	count, err := tx.Schedules().CountByTrainerStartingBetween(ctx, trainerID, from, to)
	if err != nil {
		return nil, fmt.Errorf("スケジュール件数の取得に失敗しました: %w", err)
	}
	if count >= s.opts.DailyLimit {
		return nil, model.NewDailyScheduleLimitError(date, s.opts.DailyLimit)
	}

	start := from.Add(offset)
	end := start.Add(s.opts.SlotDuration)
	clock := start.Format(model.ClockLayout)

	existing, err := tx.Schedules().FindOverlapping(ctx, trainerID, start, end)
	if err != nil {
		return nil, fmt.Errorf("重複スケジュールの検索に失敗しました: %w", err)
	}
	if existing != nil {
		return nil, model.NewScheduleConflictError(date, clock)
	}

	now := s.now()
	sch := &model.Schedule{
		ID:            uuid.New().String(),
		TrainerID:     trainerID,
		StartDateTime: start,
		EndDateTime:   end,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if err := tx.Schedules().Create(ctx, sch); err != nil {
		if errors.Is(err, repository.ErrOverlap) {
			return nil, model.NewScheduleConflictError(date, clock)
		}
		return nil, fmt.Errorf("スケジュールの作成に失敗しました: %w", err)
	}
	return sch, nil
}

// lockTrainer はトレーナーの行をロックし、有効なトレーナーであることを検証する。
// 同一トレーナーへの並行作成はこのロックで直列化される。
func lockTrainer(ctx context.Context, tx repository.Store, trainerID string) error {
	trainer, err := tx.Users().LockByID(ctx, trainerID)
	if err != nil {
		return fmt.Errorf("トレーナーの取得に失敗しました: %w", err)
	}
	if trainer == nil || !trainer.IsActive() {
		return model.NewTrainerNotFoundError(trainerID)
	}
	if trainer.Role != model.RoleTrainer {
		return model.NewInvalidRoleError(trainerID, model.RoleTrainer)
	}
	return nil
}

// withCreatedCount はper_dayモードの失敗エラーに作成済み件数を付与する。
func withCreatedCount(err error, created []*model.Schedule) error {
	var apiErr *model.APIError
	if !errors.As(err, &apiErr) {
		return err
	}
	details := map[string]any{}
	if m, ok := apiErr.Details.(map[string]any); ok {
		for k, v := range m {
			details[k] = v
		}
	}
	ids := make([]string, len(created))
	for i, sch := range created {
		ids[i] = sch.ID
	}
	details["created_count"] = len(created)
	details["created_ids"] = ids
	return apiErr.WithDetails(details)
}

func (s *Service) recordRejection(err error) {
	var apiErr *model.APIError
	if errors.As(err, &apiErr) {
		s.metrics.RecordScheduleRejected(apiErr.Code)
	}
}

// ListSchedules は条件に一致する枠を開始時刻の昇順で1ページ分返す。
func (s *Service) ListSchedules(ctx context.Context, filter model.ScheduleFilter, page model.PageRequest) ([]*model.Schedule, model.PageMeta, error) {
	page = page.Normalize(model.DefaultSchedulePageLimit)

	schedules, total, err := s.store.Schedules().List(ctx, filter, page)
	if err != nil {
		return nil, model.PageMeta{}, fmt.Errorf("スケジュール一覧の取得に失敗しました: %w", err)
	}
	if schedules == nil {
		schedules = []*model.Schedule{}
	}
	return schedules, model.PageMeta{Page: page.Page, Limit: page.Limit, Total: total}, nil
}

// ListTrainerSchedules は要求者自身が担当する枠を開始時刻の昇順で返す。
func (s *Service) ListTrainerSchedules(ctx context.Context, identity model.Identity) ([]*model.Schedule, error) {
	trainer, err := s.store.Users().FindByID(ctx, identity.UserID)
	if err != nil {
		return nil, fmt.Errorf("トレーナーの取得に失敗しました: %w", err)
	}
	if trainer == nil || trainer.Role != model.RoleTrainer {
		return nil, model.NewTrainerNotFoundError(identity.UserID)
	}

	schedules, err := s.store.Schedules().ListByTrainer(ctx, trainer.ID)
	if err != nil {
		return nil, fmt.Errorf("トレーナーのスケジュール取得に失敗しました: %w", err)
	}
	if schedules == nil {
		schedules = []*model.Schedule{}
	}
	return schedules, nil
}

// GetSchedule は指定IDの枠を返す。
func (s *Service) GetSchedule(ctx context.Context, id string) (*model.Schedule, error) {
	if strings.TrimSpace(id) == "" {
		return nil, model.NewBadRequestError("Schedule ID is required.")
	}
	sch, err := s.store.Schedules().FindByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("スケジュールの取得に失敗しました: %w", err)
	}
	if sch == nil {
		return nil, model.NewScheduleNotFoundError(id)
	}
	return sch, nil
}

// DeleteSchedule は指定IDの枠を削除し、削除前の内容を返す。
// 枠に紐づく予約も削除される。
func (s *Service) DeleteSchedule(ctx context.Context, id string) (*model.Schedule, error) {
	if strings.TrimSpace(id) == "" {
		return nil, model.NewBadRequestError("Schedule ID is required.")
	}

	var deleted *model.Schedule
	err := s.store.WithinTx(ctx, func(ctx context.Context, tx repository.Store) error {
		sch, err := tx.Schedules().LockByID(ctx, id)
		if err != nil {
			return fmt.Errorf("スケジュールの取得に失敗しました: %w", err)
		}
		if sch == nil {
			return model.NewScheduleNotFoundError(id)
		}
		if err := tx.Schedules().Delete(ctx, id); err != nil {
			if errors.Is(err, repository.ErrNotFound) {
				return model.NewScheduleNotFoundError(id)
			}
			return fmt.Errorf("スケジュールの削除に失敗しました: %w", err)
		}
		deleted = sch
		return nil
	})
	if err != nil {
		return nil, err
	}

	slog.Info("schedule deleted",
		slog.String("schedule_id", deleted.ID),
		slog.String("trainer_id", deleted.TrainerID),
	)
	return deleted, nil
}
