package handler

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/hitoshi/moamoa/internal/middleware"
	"github.com/hitoshi/moamoa/internal/model"
	"github.com/hitoshi/moamoa/internal/validation"
)

// UserHandler はプロフィールのHTTPハンドラー。
type UserHandler struct {
	service   ProfileServiceInterface
	validator *validation.Validator
}

// NewUserHandler はUserHandlerを生成する。
func NewUserHandler(service ProfileServiceInterface, v *validation.Validator) *UserHandler {
	return &UserHandler{service: service, validator: v}
}

// GetUser は友達または本人のプロフィールを返す。
// GET /api/users/{userId}
func (h *UserHandler) GetUser(w http.ResponseWriter, r *http.Request) {
	id, err := userIDParam(r)
	if err != nil {
		middleware.WriteError(w, r, err)
		return
	}

	profile, err := h.service.GetPublicProfile(r.Context(), id)
	if err != nil {
		middleware.WriteError(w, r, err)
		return
	}

	middleware.WriteSuccess(w, http.StatusOK, profile)
}

// UpdateUser は本人のプロフィールを部分更新する。
// PATCH /api/users/{userId}
func (h *UserHandler) UpdateUser(w http.ResponseWriter, r *http.Request) {
	id, err := userIDParam(r)
	if err != nil {
		middleware.WriteError(w, r, err)
		return
	}

	var req model.UpdateProfileRequest
	if err := middleware.DecodeJSON(w, r, &req); err != nil {
		middleware.WriteError(w, r, err)
		return
	}
	if err := h.validator.Struct(req); err != nil {
		middleware.WriteError(w, r, err)
		return
	}

	user, err := h.service.UpdateProfile(r.Context(), id, req)
	if err != nil {
		middleware.WriteError(w, r, err)
		return
	}

	middleware.WriteSuccess(w, http.StatusOK, user)
}

// userIDParam はパスパラメータのユーザーIDを数値で返す。
func userIDParam(r *http.Request) (int64, error) {
	id, err := strconv.ParseInt(chi.URLParam(r, "userId"), 10, 64)
	if err != nil || id <= 0 {
		return 0, model.NewBadRequestError("사용자 ID가 올바르지 않습니다", nil)
	}
	return id, nil
}
