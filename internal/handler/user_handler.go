package handler

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/hitoshi/userhub/internal/middleware"
	"github.com/hitoshi/userhub/internal/model"
	"github.com/hitoshi/userhub/internal/user"
)

// UserServiceInterface はユーザーハンドラーが必要とするサービスインターフェース。
type UserServiceInterface interface {
	List(ctx context.Context) ([]*model.User, error)
	Get(ctx context.Context, id string) (*model.User, error)
	UpdateProfile(ctx context.Context, id string, input user.UpdateInput) (*model.User, error)
	Withdraw(ctx context.Context, id string) error
}

// UserHandler はユーザーの閲覧・編集・削除のHTTPハンドラー。
type UserHandler struct {
	service UserServiceInterface
	pages   *Pages
}

// NewUserHandler はUserHandlerを生成する。
func NewUserHandler(service UserServiceInterface, pages *Pages) *UserHandler {
	return &UserHandler{
		service: service,
		pages:   pages,
	}
}

// List は登録ユーザーの一覧を表示する。認証不要。
// GET /users
func (h *UserHandler) List(w http.ResponseWriter, r *http.Request) {
	users, err := h.service.List(r.Context())
	if err != nil {
		slog.Error("failed to list users", slog.String("error", err.Error()))
		http.Error(w, "Error fetching users", http.StatusInternalServerError)
		return
	}
	h.pages.Render(w, r, http.StatusOK, "users", "Users", users)
}

// Show はユーザーの詳細を表示する。要ログイン。
// GET /users/{id}
func (h *UserHandler) Show(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	target, err := h.service.Get(r.Context(), id)
	if err != nil {
		var appErr *model.AppError
		if errors.As(err, &appErr) && appErr.Category == model.CategoryNotFound {
			http.Error(w, "user not found", http.StatusNotFound)
			return
		}
		slog.Error("failed to get user", slog.String("id", id), slog.String("error", err.Error()))
		http.Error(w, "internal server error", http.StatusInternalServerError)
		return
	}
	h.pages.Render(w, r, http.StatusOK, "show_user", target.Username, target)
}

// EditForm はプロフィール編集フォームを表示する。本人のみ。
// GET /users/{id}/edit
func (h *UserHandler) EditForm(w http.ResponseWriter, r *http.Request) {
	target, ok := h.requireOwnership(w, r)
	if !ok {
		return
	}
	h.pages.Render(w, r, http.StatusOK, "edit_user", "Edit profile", target)
}

// Update はプロフィールを更新する。本人のみ。
// PUT /users/{id}
// 更新できるのはemail・dob・phone・countryのみ。
func (h *UserHandler) Update(w http.ResponseWriter, r *http.Request) {
	target, ok := h.requireOwnership(w, r)
	if !ok {
		return
	}

	input := user.UpdateInput{
		Email:   strings.TrimSpace(r.PostFormValue("email")),
		DOB:     r.PostFormValue("dob"),
		Phone:   r.PostFormValue("phone"),
		Country: r.PostFormValue("country"),
	}

	if _, err := h.service.UpdateProfile(r.Context(), target.ID, input); err != nil {
		var appErr *model.AppError
		if errors.As(err, &appErr) && appErr.Category == model.CategoryValidation {
			h.pages.Flash(r, model.FlashError, appErr.Message)
			http.Redirect(w, r, "/users/"+target.ID+"/edit", http.StatusFound)
			return
		}
		slog.Error("failed to update user", slog.String("id", target.ID), slog.String("error", err.Error()))
		http.Error(w, "internal server error", http.StatusInternalServerError)
		return
	}

	http.Redirect(w, r, "/users/"+target.ID, http.StatusFound)
}

// Delete はユーザーを退会させる。本人のみ。
// DELETE /users/{id}
func (h *UserHandler) Delete(w http.ResponseWriter, r *http.Request) {
	target, ok := h.requireOwnership(w, r)
	if !ok {
		return
	}

	if err := h.service.Withdraw(r.Context(), target.ID); err != nil {
		slog.Error("failed to withdraw user", slog.String("id", target.ID), slog.String("error", err.Error()))
		http.Error(w, "internal server error", http.StatusInternalServerError)
		return
	}

	http.Redirect(w, r, "/users", http.StatusFound)
}

// requireOwnership は対象ユーザーを取得し、ログイン中のユーザーが本人か検証する。
// 対象が存在しなければ404、本人でなければフラッシュを添えて/registerへ戻す。
func (h *UserHandler) requireOwnership(w http.ResponseWriter, r *http.Request) (*model.User, bool) {
	id := chi.URLParam(r, "id")
	target, err := h.service.Get(r.Context(), id)
	if err != nil {
		var appErr *model.AppError
		if errors.As(err, &appErr) && appErr.Category == model.CategoryNotFound {
			http.Error(w, "Resource not found", http.StatusNotFound)
			return nil, false
		}
		slog.Error("failed to get user", slog.String("id", id), slog.String("error", err.Error()))
		http.Error(w, "internal server error", http.StatusInternalServerError)
		return nil, false
	}

	currentUserID, err := middleware.UserIDFromContext(r.Context())
	if err != nil || currentUserID != target.ID {
		h.pages.Flash(r, model.FlashError, model.NewForbiddenError().Message)
		http.Redirect(w, r, "/register", http.StatusFound)
		return nil, false
	}

	return target, true
}
