package handler

import (
	"context"
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/hitoshi/fitclass/internal/model"
	"github.com/hitoshi/fitclass/internal/schedule"
)

// ScheduleServiceInterface はスケジュールハンドラーが必要とするサービスインターフェース。
type ScheduleServiceInterface interface {
	CreateSchedules(ctx context.Context, in schedule.CreateInput) ([]*model.Schedule, error)
	ListSchedules(ctx context.Context, filter model.ScheduleFilter, page model.PageRequest) ([]*model.Schedule, model.PageMeta, error)
	ListTrainerSchedules(ctx context.Context, identity model.Identity) ([]*model.Schedule, error)
	GetSchedule(ctx context.Context, id string) (*model.Schedule, error)
	DeleteSchedule(ctx context.Context, id string) (*model.Schedule, error)
}

// ScheduleHandler はクラス枠のHTTPハンドラー。
type ScheduleHandler struct {
	service ScheduleServiceInterface
}

// NewScheduleHandler はScheduleHandlerを生成する。
func NewScheduleHandler(service ScheduleServiceInterface) *ScheduleHandler {
	return &ScheduleHandler{
		service: service,
	}
}

// createScheduleRequest はクラス枠作成リクエストのボディ。
// 必須チェックと形式チェックはサービス層が行う。
type createScheduleRequest struct {
	TrainerID string `json:"trainerId"`
	StartDate string `json:"startDate"`
	EndDate   string `json:"endDate"`
	StartTime string `json:"startTime"`
}

// CreateSchedules は期間内の各日にクラス枠を作成する。
// POST /api/schedule
func (h *ScheduleHandler) CreateSchedules(w http.ResponseWriter, r *http.Request) {
	var req createScheduleRequest
	if err := decodeAndValidate(w, r, &req); err != nil {
		handleServiceError(w, r, err)
		return
	}

	schedules, err := h.service.CreateSchedules(r.Context(), schedule.CreateInput{
		TrainerID: req.TrainerID,
		StartDate: req.StartDate,
		EndDate:   req.EndDate,
		StartTime: req.StartTime,
	})
	if err != nil {
		handleServiceError(w, r, err)
		return
	}

	writeSuccess(w, http.StatusCreated, "Schedules created successfully!", toScheduleResponses(schedules))
}

// ListSchedules はクラス枠の一覧を開始時刻の昇順で返す。
// GET /api/schedule?date=YYYY-MM-DD&trainerId=&page=&limit=
func (h *ScheduleHandler) ListSchedules(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	filter := model.ScheduleFilter{TrainerID: q.Get("trainerId")}
	if raw := q.Get("date"); raw != "" {
		d, err := model.ParseDate(raw)
		if err != nil {
			handleServiceError(w, r, model.NewBadRequestError(fmt.Sprintf("Invalid date format: %s. Use YYYY-MM-DD.", raw)))
			return
		}
		filter.Date = d
	}

	page, err := pageRequestFromQuery(r)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}

	schedules, meta, err := h.service.ListSchedules(r.Context(), filter, page)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}

	writeSuccessWithMeta(w, "Schedules retrieved successfully!", toScheduleResponses(schedules), meta)
}

// ListMySchedules はログイン中トレーナーの担当枠を返す。
// GET /api/schedule/my
func (h *ScheduleHandler) ListMySchedules(w http.ResponseWriter, r *http.Request) {
	identity, ok := requireIdentity(w, r)
	if !ok {
		return
	}

	schedules, err := h.service.ListTrainerSchedules(r.Context(), identity)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}

	writeSuccess(w, http.StatusOK, "My schedules retrieved successfully!", toScheduleResponses(schedules))
}

// GetSchedule はクラス枠を1件返す。
// GET /api/schedule/{id}
func (h *ScheduleHandler) GetSchedule(w http.ResponseWriter, r *http.Request) {
	s, err := h.service.GetSchedule(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		handleServiceError(w, r, err)
		return
	}

	writeSuccess(w, http.StatusOK, "Schedule retrieved successfully!", toScheduleResponse(s))
}

// DeleteSchedule はクラス枠を削除する。枠に紐づく予約も削除される。
// DELETE /api/schedule/{id}
func (h *ScheduleHandler) DeleteSchedule(w http.ResponseWriter, r *http.Request) {
	s, err := h.service.DeleteSchedule(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		handleServiceError(w, r, err)
		return
	}

	writeSuccess(w, http.StatusOK, "Schedule deleted successfully!", toScheduleResponse(s))
}
