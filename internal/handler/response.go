// Package handler はHTTPハンドラーを提供する。
package handler

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/hitoshi/fitclass/internal/middleware"
	"github.com/hitoshi/fitclass/internal/model"
	"github.com/hitoshi/fitclass/internal/repository"
)

// maxRequestBodyBytes はJSONリクエストボディの上限サイズ。
const maxRequestBodyBytes = 1 << 20

// successResponse は成功レスポンスの統一フォーマット。
type successResponse struct {
	Success bool            `json:"success"`
	Message string          `json:"message"`
	Data    any             `json:"data"`
	Meta    *model.PageMeta `json:"meta,omitempty"`
}

// writeSuccess は統一フォーマットで成功レスポンスを書き込む。
func writeSuccess(w http.ResponseWriter, statusCode int, message string, data any) {
	writeJSON(w, statusCode, successResponse{Success: true, Message: message, Data: data})
}

// writeSuccessWithMeta はページ情報付きの成功レスポンスを書き込む。
func writeSuccessWithMeta(w http.ResponseWriter, message string, data any, meta model.PageMeta) {
	writeJSON(w, http.StatusOK, successResponse{Success: true, Message: message, Data: data, Meta: &meta})
}

func writeJSON(w http.ResponseWriter, statusCode int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		slog.Error("failed to encode response", slog.String("error", err.Error()))
	}
}

// handleServiceError はサービス層から返されたエラーを統一エラーレスポンスに変換する。
// 事前チェックをすり抜けたDB制約違反は409として扱う。
func handleServiceError(w http.ResponseWriter, r *http.Request, err error) {
	var apiErr *model.APIError
	if errors.As(err, &apiErr) {
		middleware.WriteAPIError(w, apiErr)
		return
	}

	switch {
	case errors.Is(err, repository.ErrDuplicate), errors.Is(err, repository.ErrOverlap):
		middleware.WriteAPIError(w, model.NewDuplicateKeyError())
		return
	case errors.Is(err, repository.ErrForeignKey):
		middleware.WriteAPIError(w, model.NewBadRequestError("Referenced record does not exist."))
		return
	}

	// APIError以外のエラーは内部サーバーエラーとして扱う
	slog.Error("internal server error",
		slog.String("method", r.Method),
		slog.String("path", r.URL.Path),
		slog.String("error", err.Error()),
	)
	middleware.WriteInternalServerError(w)
}

// requireIdentity は認証主体を取得する。取得できない場合は401を書き込みfalseを返す。
func requireIdentity(w http.ResponseWriter, r *http.Request) (model.Identity, bool) {
	identity, ok := middleware.IdentityFromContext(r.Context())
	if !ok {
		middleware.WriteAPIError(w, model.NewUnauthorizedError())
		return model.Identity{}, false
	}
	return identity, true
}

// queryInt はクエリパラメータを整数として読み取る。未指定の場合は0を返す。
func queryInt(r *http.Request, key string) (int, error) {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return 0, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return 0, model.NewBadRequestError(key + " must be an integer.")
	}
	return v, nil
}

// pageRequestFromQuery はpage/limitクエリを読み取る。
func pageRequestFromQuery(r *http.Request) (model.PageRequest, error) {
	page, err := queryInt(r, "page")
	if err != nil {
		return model.PageRequest{}, err
	}
	limit, err := queryInt(r, "limit")
	if err != nil {
		return model.PageRequest{}, err
	}
	return model.PageRequest{Page: page, Limit: limit}, nil
}

// --- レスポンスDTO ---

type profileResponse struct {
	ID     string       `json:"id"`
	Name   string       `json:"name"`
	Age    *int         `json:"age"`
	Phone  string       `json:"phone"`
	Gender model.Gender `json:"gender,omitempty"`
}

type userResponse struct {
	ID                 string           `json:"id"`
	Email              string           `json:"email"`
	Role               model.Role       `json:"role"`
	Status             model.UserStatus `json:"status"`
	NeedPasswordChange bool             `json:"needPasswordChange"`
	CreatedAt          time.Time        `json:"createdAt"`
	UpdatedAt          time.Time        `json:"updatedAt"`
	Profile            *profileResponse `json:"profile,omitempty"`
}

type scheduleResponse struct {
	ID            string    `json:"id"`
	TrainerID     string    `json:"trainerId"`
	StartDateTime time.Time `json:"startDateTime"`
	EndDateTime   time.Time `json:"endDateTime"`
	CreatedAt     time.Time `json:"createdAt"`
	UpdatedAt     time.Time `json:"updatedAt"`
}

type bookingResponse struct {
	ID         string            `json:"id"`
	UserID     string            `json:"userId"`
	ScheduleID string            `json:"scheduleId"`
	CreatedAt  time.Time         `json:"createdAt"`
	UpdatedAt  time.Time         `json:"updatedAt"`
	Schedule   *scheduleResponse `json:"schedule,omitempty"`
}

// パスワードハッシュはレスポンスに含めない。
func toUserResponse(u *model.User) userResponse {
	resp := userResponse{
		ID:                 u.ID,
		Email:              u.Email,
		Role:               u.Role,
		Status:             u.Status,
		NeedPasswordChange: u.NeedPasswordChange,
		CreatedAt:          u.CreatedAt.UTC(),
		UpdatedAt:          u.UpdatedAt.UTC(),
	}
	if u.Profile != nil {
		resp.Profile = &profileResponse{
			ID:     u.Profile.ID,
			Name:   u.Profile.Name,
			Age:    u.Profile.Age,
			Phone:  u.Profile.Phone,
			Gender: u.Profile.Gender,
		}
	}
	return resp
}

func toUserResponses(users []*model.User) []userResponse {
	resp := make([]userResponse, 0, len(users))
	for _, u := range users {
		resp = append(resp, toUserResponse(u))
	}
	return resp
}

func toScheduleResponse(s *model.Schedule) scheduleResponse {
	return scheduleResponse{
		ID:            s.ID,
		TrainerID:     s.TrainerID,
		StartDateTime: s.StartDateTime.UTC(),
		EndDateTime:   s.EndDateTime.UTC(),
		CreatedAt:     s.CreatedAt.UTC(),
		UpdatedAt:     s.UpdatedAt.UTC(),
	}
}

func toScheduleResponses(schedules []*model.Schedule) []scheduleResponse {
	resp := make([]scheduleResponse, 0, len(schedules))
	for _, s := range schedules {
		resp = append(resp, toScheduleResponse(s))
	}
	return resp
}

func toBookingResponse(b *model.Booking) bookingResponse {
	resp := bookingResponse{
		ID:         b.ID,
		UserID:     b.UserID,
		ScheduleID: b.ScheduleID,
		CreatedAt:  b.CreatedAt.UTC(),
		UpdatedAt:  b.UpdatedAt.UTC(),
	}
	if b.Schedule != nil {
		s := toScheduleResponse(b.Schedule)
		resp.Schedule = &s
	}
	return resp
}

func toBookingResponses(bookings []*model.Booking) []bookingResponse {
	resp := make([]bookingResponse, 0, len(bookings))
	for _, b := range bookings {
		resp = append(resp, toBookingResponse(b))
	}
	return resp
}
