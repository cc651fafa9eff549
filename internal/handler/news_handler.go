package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/hitoshi/userhub/internal/model"
	"github.com/hitoshi/userhub/internal/news"
)

// NewsServiceInterface はニュースハンドラーが必要とするクライアントインターフェース。
type NewsServiceInterface interface {
	TopHeadlines(ctx context.Context, category string) ([]news.Article, error)
}

// NewsHandler はニュース一覧のHTTPハンドラー。
type NewsHandler struct {
	service NewsServiceInterface
	pages   *Pages
}

// NewNewsHandler はNewsHandlerを生成する。
func NewNewsHandler(service NewsServiceInterface, pages *Pages) *NewsHandler {
	return &NewsHandler{
		service: service,
		pages:   pages,
	}
}

// List はトップヘッドラインを表示する。要ログイン。
// GET /news?category=xxx
// 取得に失敗した場合は詳細を伏せてトップページへ戻す。
func (h *NewsHandler) List(w http.ResponseWriter, r *http.Request) {
	category := r.URL.Query().Get("category")

	articles, err := h.service.TopHeadlines(r.Context(), category)
	if err != nil {
		slog.Warn("news fetch failed", slog.String("category", category))
		h.pages.Flash(r, model.FlashError, model.NewUpstreamError().Message)
		http.Redirect(w, r, "/", http.StatusFound)
		return
	}

	h.pages.Render(w, r, http.StatusOK, "news", "News", articles)
}
