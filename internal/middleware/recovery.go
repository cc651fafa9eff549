package middleware

import (
	"context"
	"log/slog"
	"net/http"
	"runtime/debug"

	"github.com/hitoshi/userhub/internal/model"
)

// panicFlashMessage はpanic発生時に利用者へ見せるフラッシュ。
const panicFlashMessage = "Something went wrong!"

// Flasher はフラッシュメッセージの追記に必要なインターフェース。
type Flasher interface {
	AppendFlash(ctx context.Context, id string, kind model.FlashKind, message string) error
}

// NewRecoveryMiddleware はpanic発生時にプロセスクラッシュを防ぐミドルウェアを生成する。
// セッションがあればエラーフラッシュを添えてトップページへ戻し、なければ500を返す。
func NewRecoveryMiddleware(flasher Flasher) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if rec := recover(); rec != nil {
					slog.Error("panic recovered",
						slog.Any("panic", rec),
						slog.String("method", r.Method),
						slog.String("path", r.URL.Path),
						slog.String("stack", string(debug.Stack())),
					)

					sessionID, err := SessionIDFromContext(r.Context())
					if err != nil || flasher == nil {
						http.Error(w, "internal server error", http.StatusInternalServerError)
						return
					}
					if err := flasher.AppendFlash(r.Context(), sessionID, model.FlashError, panicFlashMessage); err != nil {
						slog.Error("failed to append flash", slog.String("error", err.Error()))
					}
					http.Redirect(w, r, "/", http.StatusFound)
				}
			}()
			next.ServeHTTP(w, r)
		})
	}
}
