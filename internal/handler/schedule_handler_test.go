package handler

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/hitoshi/fitclass/internal/model"
	"github.com/hitoshi/fitclass/internal/repository"
	"github.com/hitoshi/fitclass/internal/schedule"
)

func testSchedule(id string, start time.Time) *model.Schedule {
	return &model.Schedule{
		ID:            id,
		TrainerID:     "trainer-1",
		StartDateTime: start,
		EndDateTime:   start.Add(2 * time.Hour),
	}
}

// --- POST /api/schedule テスト ---

func TestScheduleHandler_CreateSchedules_Success(t *testing.T) {
	svc := &mockScheduleService{
		createSchedulesFn: func(ctx context.Context, in schedule.CreateInput) ([]*model.Schedule, error) {
			want := schedule.CreateInput{TrainerID: "trainer-1", StartDate: "2024-01-01", EndDate: "2024-01-02", StartTime: "10:00"}
			if in != want {
				t.Errorf("input = %+v, want %+v", in, want)
			}
			return []*model.Schedule{
				testSchedule("s1", time.Date(2024, 1, 1, 10, 0, 0, 0, time.UTC)),
				testSchedule("s2", time.Date(2024, 1, 2, 10, 0, 0, 0, time.UTC)),
			}, nil
		},
	}
	h := NewScheduleHandler(svc)

	body := `{"trainerId":"trainer-1","startDate":"2024-01-01","endDate":"2024-01-02","startTime":"10:00"}`
	req := httptest.NewRequest(http.MethodPost, "/api/schedule", strings.NewReader(body))
	w := httptest.NewRecorder()

	h.CreateSchedules(w, req)

	if w.Code != http.StatusCreated {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusCreated)
	}
	var data []scheduleResponse
	parseSuccess(t, w, &data)
	if len(data) != 2 {
		t.Fatalf("len(data) = %d, want 2", len(data))
	}
	if !data[0].EndDateTime.Equal(time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)) {
		t.Errorf("endDateTime = %v, want 12:00 UTC", data[0].EndDateTime)
	}
	if !strings.Contains(w.Body.String(), `"startDateTime":"2024-01-01T10:00:00Z"`) {
		t.Errorf("startDateTime should be serialized in UTC RFC3339: %s", w.Body.String())
	}
}

func TestScheduleHandler_CreateSchedules_ErrorMapping(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		wantCode int
		wantErr  string
	}{
		{"daily limit", model.NewDailyScheduleLimitError("2024-01-02", 5), http.StatusBadRequest, model.ErrCodeDailyScheduleLimit},
		{"conflict", model.NewScheduleConflictError("2024-01-02", "10:00"), http.StatusConflict, model.ErrCodeScheduleConflict},
		{"trainer not found", model.NewTrainerNotFoundError("t-x"), http.StatusNotFound, model.ErrCodeTrainerNotFound},
		{"invalid range", model.NewInvalidDateRangeError("2024-01-05", "2024-01-01"), http.StatusBadRequest, model.ErrCodeInvalidDateRange},
		{"overlap constraint", errors.Join(errors.New("insert"), repository.ErrOverlap), http.StatusConflict, model.ErrCodeConflict},
		{"unexpected", errors.New("connection reset"), http.StatusInternalServerError, "INTERNAL_ERROR"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := NewScheduleHandler(&mockScheduleService{
				createSchedulesFn: func(ctx context.Context, in schedule.CreateInput) ([]*model.Schedule, error) {
					return nil, tt.err
				},
			})

			body := `{"trainerId":"trainer-1","startDate":"2024-01-01","endDate":"2024-01-02","startTime":"10:00"}`
			w := httptest.NewRecorder()
			h.CreateSchedules(w, httptest.NewRequest(http.MethodPost, "/api/schedule", strings.NewReader(body)))

			if w.Code != tt.wantCode {
				t.Fatalf("status = %d, want %d", w.Code, tt.wantCode)
			}
			if got := parseAPIErrorResponse(t, w); got.Code != tt.wantErr {
				t.Errorf("code = %q, want %q", got.Code, tt.wantErr)
			}
		})
	}
}

func TestScheduleHandler_CreateSchedules_DailyLimitMessage(t *testing.T) {
	h := NewScheduleHandler(&mockScheduleService{
		createSchedulesFn: func(ctx context.Context, in schedule.CreateInput) ([]*model.Schedule, error) {
			return nil, model.NewDailyScheduleLimitError("2024-01-02", 5)
		},
	})

	body := `{"trainerId":"trainer-1","startDate":"2024-01-02","endDate":"2024-01-02","startTime":"10:00"}`
	w := httptest.NewRecorder()
	h.CreateSchedules(w, httptest.NewRequest(http.MethodPost, "/api/schedule", strings.NewReader(body)))

	got := parseAPIErrorResponse(t, w)
	if got.Message != "Cannot create more than 5 schedules on 2024-01-02" {
		t.Errorf("message = %q", got.Message)
	}
}

// --- GET /api/schedule テスト ---

func TestScheduleHandler_ListSchedules_ParsesFilter(t *testing.T) {
	svc := &mockScheduleService{
		listSchedulesFn: func(ctx context.Context, filter model.ScheduleFilter, page model.PageRequest) ([]*model.Schedule, model.PageMeta, error) {
			if !filter.Date.Equal(time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC)) {
				t.Errorf("date = %v, want 2024-01-02", filter.Date)
			}
			if filter.TrainerID != "trainer-1" {
				t.Errorf("trainerId = %q, want %q", filter.TrainerID, "trainer-1")
			}
			if page.Page != 1 || page.Limit != 20 {
				t.Errorf("page = %+v", page)
			}
			return []*model.Schedule{testSchedule("s1", time.Date(2024, 1, 2, 10, 0, 0, 0, time.UTC))},
				model.PageMeta{Page: 1, Limit: 20, Total: 1}, nil
		},
	}
	h := NewScheduleHandler(svc)

	req := httptest.NewRequest(http.MethodGet, "/api/schedule?date=2024-01-02&trainerId=trainer-1&page=1&limit=20", nil)
	w := httptest.NewRecorder()

	h.ListSchedules(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusOK)
	}
	var data []scheduleResponse
	envelope := parseSuccess(t, w, &data)
	if len(data) != 1 || envelope.Meta == nil || envelope.Meta.Total != 1 {
		t.Errorf("unexpected response: data=%d meta=%+v", len(data), envelope.Meta)
	}
}

func TestScheduleHandler_ListSchedules_EmptyIsArray(t *testing.T) {
	h := NewScheduleHandler(&mockScheduleService{})

	w := httptest.NewRecorder()
	h.ListSchedules(w, httptest.NewRequest(http.MethodGet, "/api/schedule", nil))

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusOK)
	}
	if !strings.Contains(w.Body.String(), `"data":[]`) {
		t.Errorf("empty list should be serialized as []: %s", w.Body.String())
	}
}

func TestScheduleHandler_ListSchedules_InvalidDate(t *testing.T) {
	for _, raw := range []string{"02-01-2024", "2024-02-30", "2024-1-2"} {
		t.Run(raw, func(t *testing.T) {
			h := NewScheduleHandler(&mockScheduleService{
				listSchedulesFn: func(ctx context.Context, filter model.ScheduleFilter, page model.PageRequest) ([]*model.Schedule, model.PageMeta, error) {
					t.Error("service should not be called for an invalid date")
					return nil, model.PageMeta{}, nil
				},
			})

			w := httptest.NewRecorder()
			h.ListSchedules(w, httptest.NewRequest(http.MethodGet, "/api/schedule?date="+raw, nil))

			if w.Code != http.StatusBadRequest {
				t.Errorf("status = %d, want %d", w.Code, http.StatusBadRequest)
			}
			want := "Invalid date format: " + raw + ". Use YYYY-MM-DD."
			if !strings.Contains(w.Body.String(), want) {
				t.Errorf("body = %s, want message %q", w.Body.String(), want)
			}
		})
	}
}

// --- GET /api/schedule/my テスト ---

func TestScheduleHandler_ListMySchedules_PassesIdentity(t *testing.T) {
	h := NewScheduleHandler(&mockScheduleService{
		listTrainerSchedulesFn: func(ctx context.Context, identity model.Identity) ([]*model.Schedule, error) {
			if identity.UserID != "trainer-1" {
				t.Errorf("userID = %q, want %q", identity.UserID, "trainer-1")
			}
			return []*model.Schedule{}, nil
		},
	})

	req := httptest.NewRequest(http.MethodGet, "/api/schedule/my", nil)
	req = withIdentity(req, model.Identity{UserID: "trainer-1", Role: model.RoleTrainer})
	w := httptest.NewRecorder()

	h.ListMySchedules(w, req)

	if w.Code != http.StatusOK {
		t.Errorf("status = %d, want %d", w.Code, http.StatusOK)
	}
}

// --- GET/DELETE /api/schedule/{id} テスト ---

func TestScheduleHandler_GetSchedule_NotFound(t *testing.T) {
	h := NewScheduleHandler(&mockScheduleService{})

	req := withChiURLParam(httptest.NewRequest(http.MethodGet, "/api/schedule/missing", nil), "id", "missing")
	w := httptest.NewRecorder()

	h.GetSchedule(w, req)

	if w.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusNotFound)
	}
	if got := parseAPIErrorResponse(t, w); got.Code != model.ErrCodeScheduleNotFound {
		t.Errorf("code = %q, want %q", got.Code, model.ErrCodeScheduleNotFound)
	}
}

func TestScheduleHandler_DeleteSchedule_ReturnsDeleted(t *testing.T) {
	h := NewScheduleHandler(&mockScheduleService{
		deleteScheduleFn: func(ctx context.Context, id string) (*model.Schedule, error) {
			return testSchedule(id, time.Date(2024, 1, 2, 10, 0, 0, 0, time.UTC)), nil
		},
	})

	req := withChiURLParam(httptest.NewRequest(http.MethodDelete, "/api/schedule/s1", nil), "id", "s1")
	w := httptest.NewRecorder()

	h.DeleteSchedule(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusOK)
	}
	var data scheduleResponse
	parseSuccess(t, w, &data)
	if data.ID != "s1" {
		t.Errorf("id = %q, want %q", data.ID, "s1")
	}
}
