package handler

import (
	"context"
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/hitoshi/fitclass/internal/model"
	"github.com/hitoshi/fitclass/internal/user"
)

// UserServiceInterface はユーザーハンドラーが必要とするサービスインターフェース。
type UserServiceInterface interface {
	RegisterTrainee(ctx context.Context, in user.RegisterInput) (*model.User, error)
	CreateTrainer(ctx context.Context, in user.RegisterInput) (*model.User, error)
	ListUsers(ctx context.Context, filter model.UserFilter, opts model.UserListOptions) ([]*model.User, model.PageMeta, error)
	UpdateUserStatus(ctx context.Context, id string, status model.UserStatus) (*model.User, error)
	GetMyProfile(ctx context.Context, identity model.Identity) (*model.User, error)
	UpdateMyProfile(ctx context.Context, identity model.Identity, patch model.ProfilePatch) (*model.User, error)
}

// UserHandler はユーザー登録・プロフィール・管理者向けユーザー管理のHTTPハンドラー。
type UserHandler struct {
	service UserServiceInterface
}

// NewUserHandler はUserHandlerを生成する。
func NewUserHandler(service UserServiceInterface) *UserHandler {
	return &UserHandler{
		service: service,
	}
}

type profileRequest struct {
	Name   string `json:"name" validate:"required,max=100"`
	Age    *int   `json:"age" validate:"omitempty,gte=0,lte=150"`
	Phone  string `json:"phone" validate:"omitempty,max=20"`
	Gender string `json:"gender" validate:"omitempty,oneof=Male Female"`
}

type registerRequest struct {
	Email    string         `json:"email" validate:"required,email,max=255"`
	Password string         `json:"password" validate:"required,min=6,max=100"`
	Profile  profileRequest `json:"profile"`
}

type updateProfileRequest struct {
	Name   *string `json:"name" validate:"omitempty,min=1,max=100"`
	Age    *int    `json:"age" validate:"omitempty,gte=0,lte=150"`
	Phone  *string `json:"phone" validate:"omitempty,max=20"`
	Gender *string `json:"gender" validate:"omitempty,oneof=Male Female"`
}

type updateStatusRequest struct {
	Status string `json:"status" validate:"required,oneof=ACTIVE BLOCKED DELETED"`
}

func (req registerRequest) toInput() user.RegisterInput {
	return user.RegisterInput{
		Email:    req.Email,
		Password: req.Password,
		Profile: user.ProfileInput{
			Name:   req.Profile.Name,
			Age:    req.Profile.Age,
			Phone:  req.Profile.Phone,
			Gender: model.Gender(req.Profile.Gender),
		},
	}
}

// Register は受講者アカウントを登録する。
// POST /api/user/create
func (h *UserHandler) Register(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if err := decodeAndValidate(w, r, &req); err != nil {
		handleServiceError(w, r, err)
		return
	}

	u, err := h.service.RegisterTrainee(r.Context(), req.toInput())
	if err != nil {
		handleServiceError(w, r, err)
		return
	}

	writeSuccess(w, http.StatusCreated, "A new TRAINEE is created successfully", toUserResponse(u))
}

// CreateTrainer はトレーナーアカウントを作成する。初回ログイン時にパスワード変更が必要になる。
// POST /api/admin/trainers
func (h *UserHandler) CreateTrainer(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if err := decodeAndValidate(w, r, &req); err != nil {
		handleServiceError(w, r, err)
		return
	}

	u, err := h.service.CreateTrainer(r.Context(), req.toInput())
	if err != nil {
		handleServiceError(w, r, err)
		return
	}

	writeSuccess(w, http.StatusCreated, "Trainer created successfully", toUserResponse(u))
}

// ListUsers はユーザー一覧を返す。
// GET /api/admin/users?searchTerm=&role=&status=&email=&page=&limit=&sortBy=&sortOrder=
func (h *UserHandler) ListUsers(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	filter := model.UserFilter{
		SearchTerm: q.Get("searchTerm"),
		Role:       model.Role(q.Get("role")),
		Status:     model.UserStatus(q.Get("status")),
		Email:      q.Get("email"),
	}
	if filter.Role != "" && !filter.Role.Valid() {
		handleServiceError(w, r, model.NewBadRequestError(fmt.Sprintf("Invalid role: %s", filter.Role)))
		return
	}
	if filter.Status != "" && !filter.Status.Valid() {
		handleServiceError(w, r, model.NewBadRequestError(fmt.Sprintf("Invalid status: %s", filter.Status)))
		return
	}

	page, err := pageRequestFromQuery(r)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	opts := model.UserListOptions{
		PageRequest: page,
		SortBy:      model.UserSortField(q.Get("sortBy")),
		SortOrder:   model.SortOrder(q.Get("sortOrder")),
	}

	users, meta, err := h.service.ListUsers(r.Context(), filter, opts)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}

	writeSuccessWithMeta(w, "All users retrieved successfully!", toUserResponses(users), meta)
}

// UpdateUserStatus はユーザーのステータスを変更する。
// PATCH /api/admin/users/{id}/status
func (h *UserHandler) UpdateUserStatus(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	var req updateStatusRequest
	if err := decodeAndValidate(w, r, &req); err != nil {
		handleServiceError(w, r, err)
		return
	}

	u, err := h.service.UpdateUserStatus(r.Context(), id, model.UserStatus(req.Status))
	if err != nil {
		handleServiceError(w, r, err)
		return
	}

	writeSuccess(w, http.StatusOK, "User status updated successfully!", toUserResponse(u))
}

// GetMyProfile はログイン中ユーザーの情報をプロフィール付きで返す。
// GET /api/user/me
func (h *UserHandler) GetMyProfile(w http.ResponseWriter, r *http.Request) {
	identity, ok := requireIdentity(w, r)
	if !ok {
		return
	}

	u, err := h.service.GetMyProfile(r.Context(), identity)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}

	writeSuccess(w, http.StatusOK, "Retrieved my profile successfully!", toUserResponse(u))
}

// UpdateMyProfile はログイン中ユーザーのプロフィールを部分更新する。
// PATCH /api/user/me
func (h *UserHandler) UpdateMyProfile(w http.ResponseWriter, r *http.Request) {
	identity, ok := requireIdentity(w, r)
	if !ok {
		return
	}

	var req updateProfileRequest
	if err := decodeAndValidate(w, r, &req); err != nil {
		handleServiceError(w, r, err)
		return
	}

	patch := model.ProfilePatch{
		Name:  req.Name,
		Age:   req.Age,
		Phone: req.Phone,
	}
	if req.Gender != nil {
		g := model.Gender(*req.Gender)
		patch.Gender = &g
	}

	u, err := h.service.UpdateMyProfile(r.Context(), identity, patch)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}

	writeSuccess(w, http.StatusOK, "Updated my profile successfully!", toUserResponse(u))
}
