package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"

	"github.com/hitoshi/fitclass/internal/auth"
	"github.com/hitoshi/fitclass/internal/middleware"
	"github.com/hitoshi/fitclass/internal/model"
	"github.com/hitoshi/fitclass/internal/schedule"
	"github.com/hitoshi/fitclass/internal/user"
)

// --- モック定義 ---

// mockAuthService はAuthServiceInterfaceのモック実装。
type mockAuthService struct {
	loginFn          func(ctx context.Context, email, password string) (*auth.LoginResult, error)
	refreshFn        func(ctx context.Context, refreshToken string) (string, error)
	logoutFn         func(ctx context.Context, refreshToken string) error
	changePasswordFn func(ctx context.Context, identity model.Identity, oldPassword, newPassword string) error
}

func (m *mockAuthService) Login(ctx context.Context, email, password string) (*auth.LoginResult, error) {
	if m.loginFn != nil {
		return m.loginFn(ctx, email, password)
	}
	return nil, model.NewInvalidCredentialsError()
}

func (m *mockAuthService) Refresh(ctx context.Context, refreshToken string) (string, error) {
	if m.refreshFn != nil {
		return m.refreshFn(ctx, refreshToken)
	}
	return "", model.NewUnauthorizedError()
}

func (m *mockAuthService) Logout(ctx context.Context, refreshToken string) error {
	if m.logoutFn != nil {
		return m.logoutFn(ctx, refreshToken)
	}
	return nil
}

func (m *mockAuthService) ChangePassword(ctx context.Context, identity model.Identity, oldPassword, newPassword string) error {
	if m.changePasswordFn != nil {
		return m.changePasswordFn(ctx, identity, oldPassword, newPassword)
	}
	return nil
}

// mockUserService はUserServiceInterfaceのモック実装。
type mockUserService struct {
	registerTraineeFn  func(ctx context.Context, in user.RegisterInput) (*model.User, error)
	createTrainerFn    func(ctx context.Context, in user.RegisterInput) (*model.User, error)
	listUsersFn        func(ctx context.Context, filter model.UserFilter, opts model.UserListOptions) ([]*model.User, model.PageMeta, error)
	updateUserStatusFn func(ctx context.Context, id string, status model.UserStatus) (*model.User, error)
	getMyProfileFn     func(ctx context.Context, identity model.Identity) (*model.User, error)
	updateMyProfileFn  func(ctx context.Context, identity model.Identity, patch model.ProfilePatch) (*model.User, error)
}

func (m *mockUserService) RegisterTrainee(ctx context.Context, in user.RegisterInput) (*model.User, error) {
	if m.registerTraineeFn != nil {
		return m.registerTraineeFn(ctx, in)
	}
	return &model.User{ID: "new-user", Email: in.Email, Role: model.RoleTrainee, Status: model.UserStatusActive}, nil
}

func (m *mockUserService) CreateTrainer(ctx context.Context, in user.RegisterInput) (*model.User, error) {
	if m.createTrainerFn != nil {
		return m.createTrainerFn(ctx, in)
	}
	return &model.User{ID: "new-trainer", Email: in.Email, Role: model.RoleTrainer, Status: model.UserStatusActive, NeedPasswordChange: true}, nil
}

func (m *mockUserService) ListUsers(ctx context.Context, filter model.UserFilter, opts model.UserListOptions) ([]*model.User, model.PageMeta, error) {
	if m.listUsersFn != nil {
		return m.listUsersFn(ctx, filter, opts)
	}
	return []*model.User{}, model.PageMeta{Page: 1, Limit: 10}, nil
}

func (m *mockUserService) UpdateUserStatus(ctx context.Context, id string, status model.UserStatus) (*model.User, error) {
	if m.updateUserStatusFn != nil {
		return m.updateUserStatusFn(ctx, id, status)
	}
	return &model.User{ID: id, Status: status}, nil
}

func (m *mockUserService) GetMyProfile(ctx context.Context, identity model.Identity) (*model.User, error) {
	if m.getMyProfileFn != nil {
		return m.getMyProfileFn(ctx, identity)
	}
	return &model.User{ID: identity.UserID, Email: identity.Email, Role: identity.Role}, nil
}

func (m *mockUserService) UpdateMyProfile(ctx context.Context, identity model.Identity, patch model.ProfilePatch) (*model.User, error) {
	if m.updateMyProfileFn != nil {
		return m.updateMyProfileFn(ctx, identity, patch)
	}
	return &model.User{ID: identity.UserID}, nil
}

// mockScheduleService はScheduleServiceInterfaceのモック実装。
type mockScheduleService struct {
	createSchedulesFn      func(ctx context.Context, in schedule.CreateInput) ([]*model.Schedule, error)
	listSchedulesFn        func(ctx context.Context, filter model.ScheduleFilter, page model.PageRequest) ([]*model.Schedule, model.PageMeta, error)
	listTrainerSchedulesFn func(ctx context.Context, identity model.Identity) ([]*model.Schedule, error)
	getScheduleFn          func(ctx context.Context, id string) (*model.Schedule, error)
	deleteScheduleFn       func(ctx context.Context, id string) (*model.Schedule, error)
}

func (m *mockScheduleService) CreateSchedules(ctx context.Context, in schedule.CreateInput) ([]*model.Schedule, error) {
	if m.createSchedulesFn != nil {
		return m.createSchedulesFn(ctx, in)
	}
	return []*model.Schedule{}, nil
}

func (m *mockScheduleService) ListSchedules(ctx context.Context, filter model.ScheduleFilter, page model.PageRequest) ([]*model.Schedule, model.PageMeta, error) {
	if m.listSchedulesFn != nil {
		return m.listSchedulesFn(ctx, filter, page)
	}
	return []*model.Schedule{}, model.PageMeta{Page: 1, Limit: 50}, nil
}

func (m *mockScheduleService) ListTrainerSchedules(ctx context.Context, identity model.Identity) ([]*model.Schedule, error) {
	if m.listTrainerSchedulesFn != nil {
		return m.listTrainerSchedulesFn(ctx, identity)
	}
	return []*model.Schedule{}, nil
}

func (m *mockScheduleService) GetSchedule(ctx context.Context, id string) (*model.Schedule, error) {
	if m.getScheduleFn != nil {
		return m.getScheduleFn(ctx, id)
	}
	return nil, model.NewScheduleNotFoundError(id)
}

func (m *mockScheduleService) DeleteSchedule(ctx context.Context, id string) (*model.Schedule, error) {
	if m.deleteScheduleFn != nil {
		return m.deleteScheduleFn(ctx, id)
	}
	return nil, model.NewScheduleNotFoundError(id)
}

// mockBookingService はBookingServiceInterfaceのモック実装。
type mockBookingService struct {
	bookSlotFn             func(ctx context.Context, identity model.Identity, scheduleID string) (*model.Booking, error)
	cancelBookingFn        func(ctx context.Context, identity model.Identity, bookingID string) (*model.Booking, error)
	listUpcomingBookingsFn func(ctx context.Context, identity model.Identity) ([]*model.Booking, error)
}

func (m *mockBookingService) BookSlot(ctx context.Context, identity model.Identity, scheduleID string) (*model.Booking, error) {
	if m.bookSlotFn != nil {
		return m.bookSlotFn(ctx, identity, scheduleID)
	}
	return &model.Booking{ID: "booking-1", UserID: identity.UserID, ScheduleID: scheduleID}, nil
}

func (m *mockBookingService) CancelBooking(ctx context.Context, identity model.Identity, bookingID string) (*model.Booking, error) {
	if m.cancelBookingFn != nil {
		return m.cancelBookingFn(ctx, identity, bookingID)
	}
	return &model.Booking{ID: bookingID, UserID: identity.UserID}, nil
}

func (m *mockBookingService) ListUpcomingBookings(ctx context.Context, identity model.Identity) ([]*model.Booking, error) {
	if m.listUpcomingBookingsFn != nil {
		return m.listUpcomingBookingsFn(ctx, identity)
	}
	return []*model.Booking{}, nil
}

// mockAuthenticator はmiddleware.Authenticatorのモック実装。
// tokensに登録されたトークンのみ受け付ける。
type mockAuthenticator struct {
	tokens map[string]model.Identity
}

func (m *mockAuthenticator) Authenticate(ctx context.Context, accessToken string) (*model.Identity, error) {
	identity, ok := m.tokens[accessToken]
	if !ok {
		return nil, model.NewUnauthorizedError()
	}
	return &identity, nil
}

// mockPinger はPingerのモック実装。
type mockPinger struct {
	err error
}

func (m *mockPinger) PingContext(ctx context.Context) error {
	return m.err
}

// --- テストヘルパー ---

// withIdentity はテスト用にリクエストコンテキストに認証主体を注入するヘルパー。
func withIdentity(r *http.Request, identity model.Identity) *http.Request {
	return r.WithContext(middleware.ContextWithIdentity(r.Context(), identity))
}

// withChiURLParam はテスト用にchiのURLパラメータを注入するヘルパー。
func withChiURLParam(r *http.Request, key, value string) *http.Request {
	rctx := chi.NewRouteContext()
	rctx.URLParams.Add(key, value)
	ctx := context.WithValue(r.Context(), chi.RouteCtxKey, rctx)
	return r.WithContext(ctx)
}

// testSuccessBody は成功レスポンスのデコード先。dataは呼び出し側で再デコードする。
type testSuccessBody struct {
	Success bool            `json:"success"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
	Meta    *model.PageMeta `json:"meta"`
}

// parseSuccess はレスポンスボディを成功フォーマットとしてパースし、dataをdstにデコードする。
func parseSuccess(t *testing.T, w *httptest.ResponseRecorder, dst any) testSuccessBody {
	t.Helper()
	var body testSuccessBody
	if err := json.NewDecoder(w.Body).Decode(&body); err != nil {
		t.Fatalf("failed to decode success response: %v", err)
	}
	if !body.Success {
		t.Errorf("success = false, want true")
	}
	if dst != nil {
		if err := json.Unmarshal(body.Data, dst); err != nil {
			t.Fatalf("failed to decode data: %v (raw: %s)", err, body.Data)
		}
	}
	return body
}

// parseAPIErrorResponse はレスポンスボディからエラーレスポンスをパースするヘルパー。
func parseAPIErrorResponse(t *testing.T, w *httptest.ResponseRecorder) middleware.ErrorResponseBody {
	t.Helper()
	var body middleware.ErrorResponseBody
	if err := json.NewDecoder(w.Body).Decode(&body); err != nil {
		t.Fatalf("failed to decode error response: %v", err)
	}
	if body.Success {
		t.Errorf("success = true, want false")
	}
	return body
}
