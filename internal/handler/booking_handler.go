package handler

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/hitoshi/fitclass/internal/model"
)

// BookingServiceInterface は予約ハンドラーが必要とするサービスインターフェース。
type BookingServiceInterface interface {
	BookSlot(ctx context.Context, identity model.Identity, scheduleID string) (*model.Booking, error)
	CancelBooking(ctx context.Context, identity model.Identity, bookingID string) (*model.Booking, error)
	ListUpcomingBookings(ctx context.Context, identity model.Identity) ([]*model.Booking, error)
}

// BookingHandler は予約のHTTPハンドラー。
type BookingHandler struct {
	service BookingServiceInterface
}

// NewBookingHandler はBookingHandlerを生成する。
func NewBookingHandler(service BookingServiceInterface) *BookingHandler {
	return &BookingHandler{
		service: service,
	}
}

type bookRequest struct {
	ScheduleID string `json:"scheduleId"`
}

// Book はログイン中の受講者としてクラス枠を予約する。
// POST /api/booking/book
func (h *BookingHandler) Book(w http.ResponseWriter, r *http.Request) {
	identity, ok := requireIdentity(w, r)
	if !ok {
		return
	}

	var req bookRequest
	if err := decodeAndValidate(w, r, &req); err != nil {
		handleServiceError(w, r, err)
		return
	}

	b, err := h.service.BookSlot(r.Context(), identity, req.ScheduleID)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}

	writeSuccess(w, http.StatusCreated, "Class booked successfully!", toBookingResponse(b))
}

// ListMyBookings はログイン中の受講者の今後の予約を開始時刻の昇順で返す。
// GET /api/booking/my-bookings
func (h *BookingHandler) ListMyBookings(w http.ResponseWriter, r *http.Request) {
	identity, ok := requireIdentity(w, r)
	if !ok {
		return
	}

	bookings, err := h.service.ListUpcomingBookings(r.Context(), identity)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}

	writeSuccess(w, http.StatusOK, "Upcoming bookings fetched successfully", toBookingResponses(bookings))
}

// Cancel は自分の予約をキャンセルする。開始済みのクラスはキャンセルできない。
// DELETE /api/booking/{id}
func (h *BookingHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	identity, ok := requireIdentity(w, r)
	if !ok {
		return
	}

	b, err := h.service.CancelBooking(r.Context(), identity, chi.URLParam(r, "id"))
	if err != nil {
		handleServiceError(w, r, err)
		return
	}

	writeSuccess(w, http.StatusOK, "Booking cancelled successfully!", toBookingResponse(b))
}
