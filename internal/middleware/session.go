// Package middleware はHTTPミドルウェアを提供する。
package middleware

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/hitoshi/userhub/internal/model"
)

const sessionCookieName = "session_id"

// loginRequiredMessage はログインが必要なページに未ログインでアクセスした際のフラッシュ。
const loginRequiredMessage = "You must be logged in."

// contextKey はコンテキストに値を格納するための型安全なキー。
type contextKey string

var (
	// sessionIDContextKey はリクエストコンテキストにセッションIDを格納するためのキー。
	sessionIDContextKey = contextKey("session_id")

	// userIDContextKey はリクエストコンテキストにユーザーIDを格納するためのキー。
	userIDContextKey = contextKey("user_id")
)

// SessionStore はセッションミドルウェアが必要とするセッション操作。
// repository.SessionRepositoryの部分集合として定義する。
type SessionStore interface {
	FindByID(ctx context.Context, id string) (*model.Session, error)
	AppendFlash(ctx context.Context, id string, kind model.FlashKind, message string) error
	SetRedirectURL(ctx context.Context, id, url string) error
}

// SessionIssuer は匿名セッションの発行に必要なインターフェース。
type SessionIssuer interface {
	CreateAnonymousSession(ctx context.Context) (*model.Session, error)
}

// SessionConfig はセッションCookieの設定。
type SessionConfig struct {
	CookieSecure bool
	CookieDomain string
	MaxAge       int // 秒
}

// NewEnsureSessionMiddleware は全リクエストに有効なセッションを保証するミドルウェアを返す。
// Cookieのセッションが未発行・期限切れ・未検出の場合は匿名セッションを発行し直す。
// セッションIDと、ログイン済みであればユーザーIDをリクエストコンテキストに注入する。
func NewEnsureSessionMiddleware(store SessionStore, issuer SessionIssuer, config SessionConfig) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			var session *model.Session

			if cookie, err := r.Cookie(sessionCookieName); err == nil && cookie.Value != "" {
				found, err := store.FindByID(r.Context(), cookie.Value)
				if err != nil {
					slog.Error("failed to find session", slog.String("error", err.Error()))
					http.Error(w, "internal server error", http.StatusInternalServerError)
					return
				}
				session = found
			}

			if session == nil {
				created, err := issuer.CreateAnonymousSession(r.Context())
				if err != nil {
					slog.Error("failed to create session", slog.String("error", err.Error()))
					http.Error(w, "internal server error", http.StatusInternalServerError)
					return
				}
				session = created

				http.SetCookie(w, &http.Cookie{
					Name:     sessionCookieName,
					Value:    session.ID,
					Path:     "/",
					Domain:   config.CookieDomain,
					MaxAge:   config.MaxAge,
					HttpOnly: true,
					Secure:   config.CookieSecure,
					SameSite: http.SameSiteLaxMode,
				})
			}

			ctx := context.WithValue(r.Context(), sessionIDContextKey, session.ID)
			if session.UserID != "" {
				ctx = context.WithValue(ctx, userIDContextKey, session.UserID)
			}
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// NewRequireLoginMiddleware はログイン必須ページを保護するミドルウェアを返す。
// 未ログインの場合は元のURLをセッションに保存し、フラッシュを添えて/loginへリダイレクトする。
// EnsureSessionMiddlewareの後に配置する必要がある。
func NewRequireLoginMiddleware(store SessionStore) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if userID, err := UserIDFromContext(r.Context()); err == nil && userID != "" {
				next.ServeHTTP(w, r)
				return
			}

			sessionID, err := SessionIDFromContext(r.Context())
			if err == nil {
				// ログイン成功後に元のページへ戻すため、アクセス先を保存する
				if err := store.SetRedirectURL(r.Context(), sessionID, r.URL.RequestURI()); err != nil {
					slog.Error("failed to save redirect URL", slog.String("error", err.Error()))
				}
				if err := store.AppendFlash(r.Context(), sessionID, model.FlashError, loginRequiredMessage); err != nil {
					slog.Error("failed to append flash", slog.String("error", err.Error()))
				}
			}

			http.Redirect(w, r, "/login", http.StatusFound)
		})
	}
}

// SessionIDFromContext はリクエストコンテキストからセッションIDを取得する。
func SessionIDFromContext(ctx context.Context) (string, error) {
	sessionID, ok := ctx.Value(sessionIDContextKey).(string)
	if !ok || sessionID == "" {
		return "", fmt.Errorf("session ID not found in context")
	}
	return sessionID, nil
}

// UserIDFromContext はリクエストコンテキストからユーザーIDを取得する。
// ログイン済みセッションを持つリクエストでのみ有効。
func UserIDFromContext(ctx context.Context) (string, error) {
	userID, ok := ctx.Value(userIDContextKey).(string)
	if !ok || userID == "" {
		return "", fmt.Errorf("user ID not found in context")
	}
	return userID, nil
}

// ContextWithSessionID はコンテキストにセッションIDを注入する。
// テストやミドルウェア以外のコンテキスト生成で使用する。
func ContextWithSessionID(ctx context.Context, sessionID string) context.Context {
	return context.WithValue(ctx, sessionIDContextKey, sessionID)
}

// ContextWithUserID はコンテキストにユーザーIDを注入する。
func ContextWithUserID(ctx context.Context, userID string) context.Context {
	return context.WithValue(ctx, userIDContextKey, userID)
}
