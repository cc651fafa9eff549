// Package handler はHTTPハンドラーを提供する。
package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/hitoshi/userhub/internal/middleware"
	"github.com/hitoshi/userhub/internal/model"
	"github.com/hitoshi/userhub/internal/view"
)

// FlashStore はフラッシュメッセージとリダイレクト先の読み書きインターフェース。
// repository.SessionRepositoryの部分集合として定義する。
type FlashStore interface {
	AppendFlash(ctx context.Context, id string, kind model.FlashKind, message string) error
	PopFlashes(ctx context.Context, id string) (success, errMsgs []string, err error)
	SetRedirectURL(ctx context.Context, id, url string) error
	PopRedirectURL(ctx context.Context, id string) (string, error)
}

// CurrentUserProvider はセッションから現在のユーザーを取得するインターフェース。
type CurrentUserProvider interface {
	GetCurrentUser(ctx context.Context, sessionID string) (*model.User, error)
}

// Pages はページ描画の共通処理を提供する。
// フラッシュの消費、現在ユーザーの解決、CSRFトークンの埋め込みを一手に引き受ける。
type Pages struct {
	renderer *view.Renderer
	flashes  FlashStore
	users    CurrentUserProvider
}

// NewPages はPagesを生成する。
func NewPages(renderer *view.Renderer, flashes FlashStore, users CurrentUserProvider) *Pages {
	return &Pages{
		renderer: renderer,
		flashes:  flashes,
		users:    users,
	}
}

// Render はフラッシュを消費しつつページを描画する。
func (p *Pages) Render(w http.ResponseWriter, r *http.Request, status int, page, title string, data any) {
	pd := view.PageData{
		Title:     title,
		CSRFToken: middleware.CSRFTokenFromRequest(r),
		Data:      data,
	}

	sessionID, err := middleware.SessionIDFromContext(r.Context())
	if err == nil {
		success, errMsgs, err := p.flashes.PopFlashes(r.Context(), sessionID)
		if err != nil {
			slog.Error("failed to pop flashes", slog.String("error", err.Error()))
		} else {
			pd.Success = success
			pd.Error = errMsgs
		}

		currentUser, err := p.users.GetCurrentUser(r.Context(), sessionID)
		if err != nil {
			slog.Error("failed to resolve current user", slog.String("error", err.Error()))
		} else {
			pd.CurrentUser = currentUser
		}
	}

	if err := p.renderer.Render(w, status, page, pd); err != nil {
		slog.Error("failed to render page",
			slog.String("page", page),
			slog.String("error", err.Error()),
		)
		http.Error(w, "internal server error", http.StatusInternalServerError)
	}
}

// Flash はセッションにフラッシュメッセージを追記する。
// セッションが解決できない場合はログだけ残して握りつぶす。
func (p *Pages) Flash(r *http.Request, kind model.FlashKind, message string) {
	sessionID, err := middleware.SessionIDFromContext(r.Context())
	if err != nil {
		return
	}
	if err := p.flashes.AppendFlash(r.Context(), sessionID, kind, message); err != nil {
		slog.Error("failed to append flash", slog.String("error", err.Error()))
	}
}

// Home はトップページを表示する。
// GET /
func (p *Pages) Home(w http.ResponseWriter, r *http.Request) {
	p.Render(w, r, http.StatusOK, "home", "Home", nil)
}
