package handler

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/hitoshi/fitclass/internal/model"
)

var traineeIdentity = model.Identity{UserID: "trainee-1", Email: "t@example.com", Role: model.RoleTrainee}

// --- POST /api/booking/book テスト ---

func TestBookingHandler_Book_Success(t *testing.T) {
	start := time.Date(2024, 1, 2, 10, 0, 0, 0, time.UTC)
	h := NewBookingHandler(&mockBookingService{
		bookSlotFn: func(ctx context.Context, identity model.Identity, scheduleID string) (*model.Booking, error) {
			if identity.UserID != "trainee-1" || scheduleID != "s1" {
				t.Errorf("unexpected args: %+v %q", identity, scheduleID)
			}
			return &model.Booking{
				ID:         "b1",
				UserID:     identity.UserID,
				ScheduleID: scheduleID,
				Schedule:   testSchedule(scheduleID, start),
			}, nil
		},
	})

	req := httptest.NewRequest(http.MethodPost, "/api/booking/book", strings.NewReader(`{"scheduleId":"s1"}`))
	req = withIdentity(req, traineeIdentity)
	w := httptest.NewRecorder()

	h.Book(w, req)

	if w.Code != http.StatusCreated {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusCreated)
	}
	var data bookingResponse
	envelope := parseSuccess(t, w, &data)
	if envelope.Message != "Class booked successfully!" {
		t.Errorf("message = %q", envelope.Message)
	}
	if data.ID != "b1" || data.Schedule == nil || data.Schedule.ID != "s1" {
		t.Errorf("unexpected booking: %+v", data)
	}
}

func TestBookingHandler_Book_ErrorMapping(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		wantCode int
		wantErr  string
		wantMsg  string
	}{
		{"slot full", model.NewSlotFullError(10), http.StatusBadRequest, model.ErrCodeSlotFull,
			"Class schedule is full. Maximum 10 trainees allowed per schedule."},
		{"time conflict", model.NewBookingTimeConflictError(), http.StatusConflict, model.ErrCodeBookingTimeConflict, ""},
		{"schedule not found", model.NewScheduleNotFoundError("s1"), http.StatusNotFound, model.ErrCodeScheduleNotFound, ""},
		{"trainee not found", model.NewTraineeNotFoundError(), http.StatusNotFound, model.ErrCodeTraineeNotFound, ""},
		{"empty id", model.NewBadRequestError("Schedule ID is required."), http.StatusBadRequest, model.ErrCodeBadRequest, "Schedule ID is required."},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := NewBookingHandler(&mockBookingService{
				bookSlotFn: func(ctx context.Context, identity model.Identity, scheduleID string) (*model.Booking, error) {
					return nil, tt.err
				},
			})

			req := httptest.NewRequest(http.MethodPost, "/api/booking/book", strings.NewReader(`{"scheduleId":"s1"}`))
			req = withIdentity(req, traineeIdentity)
			w := httptest.NewRecorder()

			h.Book(w, req)

			if w.Code != tt.wantCode {
				t.Fatalf("status = %d, want %d", w.Code, tt.wantCode)
			}
			got := parseAPIErrorResponse(t, w)
			if got.Code != tt.wantErr {
				t.Errorf("code = %q, want %q", got.Code, tt.wantErr)
			}
			if tt.wantMsg != "" && got.Message != tt.wantMsg {
				t.Errorf("message = %q, want %q", got.Message, tt.wantMsg)
			}
		})
	}
}

func TestBookingHandler_Book_EmptyBody_Returns400(t *testing.T) {
	h := NewBookingHandler(&mockBookingService{})

	req := httptest.NewRequest(http.MethodPost, "/api/booking/book", strings.NewReader(""))
	req = withIdentity(req, traineeIdentity)
	w := httptest.NewRecorder()

	h.Book(w, req)

	if w.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want %d", w.Code, http.StatusBadRequest)
	}
}

// --- GET /api/booking/my-bookings テスト ---

func TestBookingHandler_ListMyBookings(t *testing.T) {
	start := time.Date(2024, 1, 2, 10, 0, 0, 0, time.UTC)
	h := NewBookingHandler(&mockBookingService{
		listUpcomingBookingsFn: func(ctx context.Context, identity model.Identity) ([]*model.Booking, error) {
			return []*model.Booking{
				{ID: "b1", UserID: identity.UserID, ScheduleID: "s1", Schedule: testSchedule("s1", start)},
				{ID: "b2", UserID: identity.UserID, ScheduleID: "s2", Schedule: testSchedule("s2", start.Add(24*time.Hour))},
			}, nil
		},
	})

	req := withIdentity(httptest.NewRequest(http.MethodGet, "/api/booking/my-bookings", nil), traineeIdentity)
	w := httptest.NewRecorder()

	h.ListMyBookings(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusOK)
	}
	var data []bookingResponse
	parseSuccess(t, w, &data)
	if len(data) != 2 || data[0].ID != "b1" || data[1].ID != "b2" {
		t.Errorf("unexpected bookings: %+v", data)
	}
}

// --- DELETE /api/booking/{id} テスト ---

func TestBookingHandler_Cancel_Success(t *testing.T) {
	h := NewBookingHandler(&mockBookingService{
		cancelBookingFn: func(ctx context.Context, identity model.Identity, bookingID string) (*model.Booking, error) {
			if bookingID != "b1" {
				t.Errorf("bookingID = %q, want %q", bookingID, "b1")
			}
			return &model.Booking{ID: bookingID, UserID: identity.UserID, ScheduleID: "s1"}, nil
		},
	})

	req := httptest.NewRequest(http.MethodDelete, "/api/booking/b1", nil)
	req = withChiURLParam(withIdentity(req, traineeIdentity), "id", "b1")
	w := httptest.NewRecorder()

	h.Cancel(w, req)

	if w.Code != http.StatusOK {
		t.Errorf("status = %d, want %d", w.Code, http.StatusOK)
	}
}

func TestBookingHandler_Cancel_NotOwner_Returns403(t *testing.T) {
	h := NewBookingHandler(&mockBookingService{
		cancelBookingFn: func(ctx context.Context, identity model.Identity, bookingID string) (*model.Booking, error) {
			return nil, model.NewNotBookingOwnerError()
		},
	})

	req := httptest.NewRequest(http.MethodDelete, "/api/booking/b1", nil)
	req = withChiURLParam(withIdentity(req, traineeIdentity), "id", "b1")
	w := httptest.NewRecorder()

	h.Cancel(w, req)

	if w.Code != http.StatusForbidden {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusForbidden)
	}
	if got := parseAPIErrorResponse(t, w); got.Code != model.ErrCodeNotBookingOwner {
		t.Errorf("code = %q, want %q", got.Code, model.ErrCodeNotBookingOwner)
	}
}
