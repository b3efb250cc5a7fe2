package handler

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/hitoshi/fitclass/internal/metrics"
	"github.com/hitoshi/fitclass/internal/middleware"
	"github.com/hitoshi/fitclass/internal/model"
)

const (
	adminToken   = "admin-token"
	trainerToken = "trainer-token"
	traineeToken = "trainee-token"
)

// createTestRouter はテスト用の完全なルーターを構築するヘルパー。
func createTestRouter(t *testing.T, mutate func(*RouterDeps)) http.Handler {
	t.Helper()

	rl := middleware.NewRateLimiter(middleware.DefaultRateLimiterConfig())
	t.Cleanup(rl.Stop)

	reg := prometheus.NewRegistry()
	deps := &RouterDeps{
		Authenticator: &mockAuthenticator{tokens: map[string]model.Identity{
			adminToken:   {UserID: "admin-1", Role: model.RoleSuperAdmin},
			trainerToken: {UserID: "trainer-1", Role: model.RoleTrainer},
			traineeToken: {UserID: "trainee-1", Role: model.RoleTrainee},
		}},
		CORSAllowedOrigin: "http://localhost:3000",
		CSRFConfig:        middleware.CSRFConfig{},
		RateLimiter:       rl,
		DB:                &mockPinger{},
		MetricsCollector:  metrics.NewCollector(reg),
		MetricsGatherer:   reg,
		AuthService:       &mockAuthService{},
		UserService:       &mockUserService{},
		ScheduleService:   &mockScheduleService{},
		BookingService:    &mockBookingService{},
	}
	if mutate != nil {
		mutate(deps)
	}
	return NewRouter(deps)
}

func doRequest(handler http.Handler, method, path, token string, body string) *httptest.ResponseRecorder {
	var r io.Reader
	if body != "" {
		r = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, r)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)
	return w
}

// TestRouter_RoleMatrix はエンドポイントごとのロール制御を検証する。
func TestRouter_RoleMatrix(t *testing.T) {
	router := createTestRouter(t, nil)

	scheduleBody := `{"trainerId":"trainer-1","startDate":"2024-01-01","endDate":"2024-01-01","startTime":"10:00"}`
	trainerBody := `{"email":"coach@example.com","password":"secret123","profile":{"name":"Coach"}}`

	tests := []struct {
		name     string
		method   string
		path     string
		token    string
		body     string
		wantCode int
	}{
		{"schedule create by admin", http.MethodPost, "/api/schedule", adminToken, scheduleBody, http.StatusCreated},
		{"schedule create by trainer", http.MethodPost, "/api/schedule", trainerToken, scheduleBody, http.StatusForbidden},
		{"schedule create by trainee", http.MethodPost, "/api/schedule", traineeToken, scheduleBody, http.StatusForbidden},
		{"schedule create anonymous", http.MethodPost, "/api/schedule", "", scheduleBody, http.StatusUnauthorized},
		{"schedule list by trainee", http.MethodGet, "/api/schedule", traineeToken, "", http.StatusOK},
		{"my schedules by trainer", http.MethodGet, "/api/schedule/my", trainerToken, "", http.StatusOK},
		{"my schedules by trainee", http.MethodGet, "/api/schedule/my", traineeToken, "", http.StatusForbidden},
		{"schedule delete by trainer", http.MethodDelete, "/api/schedule/s1", trainerToken, "", http.StatusForbidden},
		{"book by trainee", http.MethodPost, "/api/booking/book", traineeToken, `{"scheduleId":"s1"}`, http.StatusCreated},
		{"book by trainer", http.MethodPost, "/api/booking/book", trainerToken, `{"scheduleId":"s1"}`, http.StatusForbidden},
		{"book by admin", http.MethodPost, "/api/booking/book", adminToken, `{"scheduleId":"s1"}`, http.StatusForbidden},
		{"my bookings by trainee", http.MethodGet, "/api/booking/my-bookings", traineeToken, "", http.StatusOK},
		{"cancel by trainee", http.MethodDelete, "/api/booking/b1", traineeToken, "", http.StatusOK},
		{"admin users by admin", http.MethodGet, "/api/admin/users", adminToken, "", http.StatusOK},
		{"admin users by trainee", http.MethodGet, "/api/admin/users", traineeToken, "", http.StatusForbidden},
		{"create trainer by admin", http.MethodPost, "/api/admin/trainers", adminToken, trainerBody, http.StatusCreated},
		{"me by trainer", http.MethodGet, "/api/user/me", trainerToken, "", http.StatusOK},
		{"me anonymous", http.MethodGet, "/api/user/me", "", "", http.StatusUnauthorized},
		{"me with forged token", http.MethodGet, "/api/user/me", "forged", "", http.StatusUnauthorized},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := doRequest(router, tt.method, tt.path, tt.token, tt.body)
			if w.Code != tt.wantCode {
				t.Errorf("%s %s status = %d, want %d (body: %s)", tt.method, tt.path, w.Code, tt.wantCode, w.Body.String())
			}
		})
	}
}

// TestRouter_ForbiddenMessage はロール不一致時のメッセージを検証する。
func TestRouter_ForbiddenMessage(t *testing.T) {
	router := createTestRouter(t, nil)

	w := doRequest(router, http.MethodPost, "/api/booking/book", trainerToken, `{"scheduleId":"s1"}`)

	body := parseAPIErrorResponse(t, w)
	if body.Message != "You must be a TRAINEE to perform this action." {
		t.Errorf("message = %q", body.Message)
	}
}

// TestRouter_PublicRoutes は認証不要のルートを検証する。
func TestRouter_PublicRoutes(t *testing.T) {
	router := createTestRouter(t, nil)

	register := doRequest(router, http.MethodPost, "/api/user/create", "",
		`{"email":"jane@example.com","password":"secret123","profile":{"name":"Jane"}}`)
	if register.Code != http.StatusCreated {
		t.Errorf("register status = %d, want %d", register.Code, http.StatusCreated)
	}

	// モックのLoginは既定で認証失敗を返す
	login := doRequest(router, http.MethodPost, "/api/auth/login", "",
		`{"email":"jane@example.com","password":"secret123"}`)
	if login.Code != http.StatusUnauthorized {
		t.Errorf("login status = %d, want %d", login.Code, http.StatusUnauthorized)
	}

	csrf := doRequest(router, http.MethodGet, "/api/auth/csrf-token", "", "")
	if csrf.Code != http.StatusOK {
		t.Errorf("csrf-token status = %d, want %d", csrf.Code, http.StatusOK)
	}
}

// TestRouter_LogoutRequiresCSRF はCookie認証のエンドポイントにCSRF検証が適用されることを検証する。
func TestRouter_LogoutRequiresCSRF(t *testing.T) {
	router := createTestRouter(t, nil)

	w := doRequest(router, http.MethodPost, "/api/auth/logout", "", "")
	if w.Code != http.StatusForbidden {
		t.Fatalf("logout without CSRF token: status = %d, want %d", w.Code, http.StatusForbidden)
	}

	req := httptest.NewRequest(http.MethodPost, "/api/auth/logout", nil)
	req.AddCookie(&http.Cookie{Name: "csrf_token", Value: "csrf-abc"})
	req.Header.Set("X-CSRF-Token", "csrf-abc")
	w2 := httptest.NewRecorder()
	router.ServeHTTP(w2, req)

	if w2.Code != http.StatusOK {
		t.Errorf("logout with CSRF token: status = %d, want %d", w2.Code, http.StatusOK)
	}
}

// TestRouter_Health はDB疎通結果に応じたヘルスチェック応答を検証する。
func TestRouter_Health(t *testing.T) {
	healthy := createTestRouter(t, nil)
	if w := doRequest(healthy, http.MethodGet, "/health", "", ""); w.Code != http.StatusOK {
		t.Errorf("healthy status = %d, want %d", w.Code, http.StatusOK)
	}

	unhealthy := createTestRouter(t, func(d *RouterDeps) {
		d.DB = &mockPinger{err: errors.New("connection refused")}
	})
	if w := doRequest(unhealthy, http.MethodGet, "/health", "", ""); w.Code != http.StatusServiceUnavailable {
		t.Errorf("unhealthy status = %d, want %d", w.Code, http.StatusServiceUnavailable)
	}
}

// TestRouter_MetricsEndpoint はHTTPステータスがメトリクスとして公開されることを検証する。
func TestRouter_MetricsEndpoint(t *testing.T) {
	router := createTestRouter(t, nil)

	doRequest(router, http.MethodGet, "/api/schedule", traineeToken, "")

	w := doRequest(router, http.MethodGet, "/metrics", "", "")
	if w.Code != http.StatusOK {
		t.Fatalf("metrics status = %d, want %d", w.Code, http.StatusOK)
	}
	if !strings.Contains(w.Body.String(), "fitclass_http_status_total") {
		t.Errorf("expected http request counter in metrics output")
	}
}

// TestRouter_SecurityAndCORSHeaders は共通ヘッダーが付与されることを検証する。
func TestRouter_SecurityAndCORSHeaders(t *testing.T) {
	router := createTestRouter(t, nil)

	w := doRequest(router, http.MethodGet, "/api/schedule", traineeToken, "")

	if got := w.Header().Get("Access-Control-Allow-Origin"); got != "http://localhost:3000" {
		t.Errorf("Access-Control-Allow-Origin = %q", got)
	}
	if got := w.Header().Get("X-Content-Type-Options"); got != "nosniff" {
		t.Errorf("X-Content-Type-Options = %q, want nosniff", got)
	}
}

// TestRouter_PanicIsRecovered はハンドラー内のpanicが500に変換されることを検証する。
func TestRouter_PanicIsRecovered(t *testing.T) {
	router := createTestRouter(t, func(d *RouterDeps) {
		d.ScheduleService = &mockScheduleService{
			getScheduleFn: func(ctx context.Context, id string) (*model.Schedule, error) {
				panic("unexpected nil")
			},
		}
	})

	w := doRequest(router, http.MethodGet, "/api/schedule/s1", traineeToken, "")
	if w.Code != http.StatusInternalServerError {
		t.Errorf("status = %d, want %d", w.Code, http.StatusInternalServerError)
	}
}

// TestRouter_BookingRateLimit は予約エンドポイントに専用のレート制限が適用されることを検証する。
func TestRouter_BookingRateLimit(t *testing.T) {
	router := createTestRouter(t, func(d *RouterDeps) {
		d.RateLimiter.Stop()
		rl := middleware.NewRateLimiter(middleware.RateLimiterConfigPerMinute(120, 2))
		t.Cleanup(rl.Stop)
		d.RateLimiter = rl
	})

	for i := 0; i < 2; i++ {
		if w := doRequest(router, http.MethodPost, "/api/booking/book", traineeToken, `{"scheduleId":"s1"}`); w.Code != http.StatusCreated {
			t.Fatalf("request %d: status = %d, want %d", i, w.Code, http.StatusCreated)
		}
	}
	if w := doRequest(router, http.MethodPost, "/api/booking/book", traineeToken, `{"scheduleId":"s1"}`); w.Code != http.StatusTooManyRequests {
		t.Errorf("third booking: status = %d, want %d", w.Code, http.StatusTooManyRequests)
	}

	// 一覧取得は予約用の制限を受けない
	if w := doRequest(router, http.MethodGet, "/api/booking/my-bookings", traineeToken, ""); w.Code != http.StatusOK {
		t.Errorf("my-bookings: status = %d, want %d", w.Code, http.StatusOK)
	}
}
