package handler

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/hitoshi/fitclass/internal/model"
)

func asAPIError(t *testing.T, err error) *model.APIError {
	t.Helper()
	var apiErr *model.APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("err = %v, want *model.APIError", err)
	}
	return apiErr
}

func TestDecodeAndValidate_Valid(t *testing.T) {
	r := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"email":"a@example.com","password":"secret123","profile":{"name":"A"}}`))
	var req registerRequest

	if err := decodeAndValidate(httptest.NewRecorder(), r, &req); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if req.Email != "a@example.com" || req.Profile.Name != "A" {
		t.Errorf("decoded = %+v", req)
	}
}

func TestDecodeAndValidate_EmptyBody(t *testing.T) {
	r := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(""))
	var req registerRequest

	apiErr := asAPIError(t, decodeAndValidate(httptest.NewRecorder(), r, &req))
	if apiErr.Code != model.ErrCodeBadRequest || apiErr.Message != "Request body is required." {
		t.Errorf("err = %+v", apiErr)
	}
}

func TestDecodeAndValidate_TooLarge(t *testing.T) {
	big := `{"email":"` + strings.Repeat("a", maxRequestBodyBytes) + `"}`
	r := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(big))
	var req registerRequest

	apiErr := asAPIError(t, decodeAndValidate(httptest.NewRecorder(), r, &req))
	if apiErr.Code != model.ErrCodeValidation {
		t.Errorf("code = %q, want %q", apiErr.Code, model.ErrCodeValidation)
	}
}

func TestValidateStruct_NestedFieldPath(t *testing.T) {
	req := registerRequest{Email: "a@example.com", Password: "secret123"}

	apiErr := asAPIError(t, validateStruct(&req))
	detail, ok := apiErr.Details.(fieldError)
	if !ok {
		t.Fatalf("details = %#v, want single fieldError", apiErr.Details)
	}
	if detail.Field != "profile.name" {
		t.Errorf("field = %q, want %q", detail.Field, "profile.name")
	}
	if detail.Message != "profile.name is required" {
		t.Errorf("message = %q", detail.Message)
	}
}

func TestValidateStruct_Messages(t *testing.T) {
	age := 200
	tests := []struct {
		name    string
		req     any
		wantMsg string
	}{
		{"email", &registerRequest{Email: "nope", Password: "secret123", Profile: profileRequest{Name: "A"}}, "email must be a valid email address"},
		{"min", &registerRequest{Email: "a@example.com", Password: "123", Profile: profileRequest{Name: "A"}}, "password must be at least 6"},
		{"lte", &registerRequest{Email: "a@example.com", Password: "secret123", Profile: profileRequest{Name: "A", Age: &age}}, "profile.age must be less than or equal to 150"},
		{"oneof", &updateStatusRequest{Status: "GONE"}, "status must be one of [ACTIVE BLOCKED DELETED]"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			apiErr := asAPIError(t, validateStruct(tt.req))
			detail, ok := apiErr.Details.(fieldError)
			if !ok {
				t.Fatalf("details = %#v, want single fieldError", apiErr.Details)
			}
			if detail.Message != tt.wantMsg {
				t.Errorf("message = %q, want %q", detail.Message, tt.wantMsg)
			}
		})
	}
}

func TestFieldPath(t *testing.T) {
	if got := fieldPath("registerRequest.profile.name"); got != "profile.name" {
		t.Errorf("fieldPath = %q", got)
	}
	if got := fieldPath("email"); got != "email" {
		t.Errorf("fieldPath = %q", got)
	}
}
