package handler

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/hitoshi/userhub/internal/auth"
	"github.com/hitoshi/userhub/internal/metrics"
	"github.com/hitoshi/userhub/internal/middleware"
	"github.com/hitoshi/userhub/internal/model"
)

const (
	sessionCookieName = "session_id"
	oauthStateCookie  = "oauth_state"

	// defaultPostLoginURL はリダイレクト先が保存されていない場合のログイン後の遷移先。
	defaultPostLoginURL = "/register"
)

// AuthServiceInterface は認証ハンドラーが必要とするサービスインターフェース。
type AuthServiceInterface interface {
	Register(ctx context.Context, sessionID string, input auth.RegisterInput) (*model.User, error)
	Login(ctx context.Context, sessionID, username, password string) (*model.User, error)
	GetLoginURL(state string) string
	HandleCallback(ctx context.Context, sessionID, code string) (*model.User, error)
	Logout(ctx context.Context, sessionID string) error
	CreateAnonymousSession(ctx context.Context) (*model.Session, error)
}

// AuthHandlerConfig は認証ハンドラーの設定。
type AuthHandlerConfig struct {
	CookieDomain  string
	CookieSecure  bool
	SessionMaxAge int // セッションCookieの有効期間（秒）
}

// AuthHandler は登録・ログイン・GitHub OAuth関連のHTTPハンドラー。
type AuthHandler struct {
	service AuthServiceInterface
	pages   *Pages
	config  AuthHandlerConfig
	metrics metrics.MetricsCollector
}

// NewAuthHandler はAuthHandlerを生成する。
func NewAuthHandler(service AuthServiceInterface, pages *Pages, config AuthHandlerConfig, collector metrics.MetricsCollector) *AuthHandler {
	if collector == nil {
		collector = metrics.NoopCollector{}
	}
	return &AuthHandler{
		service: service,
		pages:   pages,
		config:  config,
		metrics: collector,
	}
}

// RegisterForm は登録フォームを表示する。
// GET /register
func (h *AuthHandler) RegisterForm(w http.ResponseWriter, r *http.Request) {
	h.pages.Render(w, r, http.StatusOK, "register", "Register", nil)
}

// Submit は登録フォームの送信を処理する。
// POST /submit
// 成功時は自動ログインし、確認ページを表示する。
func (h *AuthHandler) Submit(w http.ResponseWriter, r *http.Request) {
	sessionID, err := middleware.SessionIDFromContext(r.Context())
	if err != nil {
		http.Error(w, "internal server error", http.StatusInternalServerError)
		return
	}

	input := auth.RegisterInput{
		Username: strings.TrimSpace(r.PostFormValue("username")),
		Email:    strings.TrimSpace(r.PostFormValue("email")),
		Password: r.PostFormValue("password"),
		DOB:      r.PostFormValue("dob"),
		Phone:    r.PostFormValue("phone"),
		Country:  r.PostFormValue("country"),
	}

	registered, err := h.service.Register(r.Context(), sessionID, input)
	if err != nil {
		var appErr *model.AppError
		if errors.As(err, &appErr) {
			switch appErr.Category {
			case model.CategoryValidation, model.CategoryDuplicate:
				h.pages.Flash(r, model.FlashError, appErr.Message)
				http.Redirect(w, r, "/register", http.StatusFound)
				return
			}
		}
		slog.Error("registration failed", slog.String("error", err.Error()))
		http.Error(w, "internal server error", http.StatusInternalServerError)
		return
	}

	h.metrics.RecordUserRegistered()
	h.metrics.RecordLogin("local")
	h.pages.Flash(r, model.FlashSuccess, "Welcome to UserHub!")
	h.pages.Render(w, r, http.StatusOK, "submit", "Registration complete", map[string]string{
		"Username": registered.Username,
		"Email":    registered.Email,
	})
}

// LoginForm はログインフォームを表示する。
// GET /login
func (h *AuthHandler) LoginForm(w http.ResponseWriter, r *http.Request) {
	h.pages.Render(w, r, http.StatusOK, "login", "Login", nil)
}

// Login はユーザー名・パスワードによるログインを処理する。
// POST /login
// 成功時は保存されたリダイレクト先（なければ/register）へ遷移する。
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	sessionID, err := middleware.SessionIDFromContext(r.Context())
	if err != nil {
		http.Error(w, "internal server error", http.StatusInternalServerError)
		return
	}

	username := strings.TrimSpace(r.PostFormValue("username"))
	password := r.PostFormValue("password")

	loggedIn, err := h.service.Login(r.Context(), sessionID, username, password)
	if err != nil {
		var appErr *model.AppError
		if errors.As(err, &appErr) && appErr.Category == model.CategoryAuth {
			h.pages.Flash(r, model.FlashError, appErr.Message)
			http.Redirect(w, r, "/login", http.StatusFound)
			return
		}
		slog.Error("login failed", slog.String("error", err.Error()))
		http.Error(w, "internal server error", http.StatusInternalServerError)
		return
	}

	h.metrics.RecordLogin("local")
	h.pages.Flash(r, model.FlashSuccess, "Welcome back "+loggedIn.Username)

	redirectURL, err := h.pages.flashes.PopRedirectURL(r.Context(), sessionID)
	if err != nil {
		slog.Error("failed to pop redirect URL", slog.String("error", err.Error()))
	}
	if redirectURL == "" {
		redirectURL = defaultPostLoginURL
	}
	http.Redirect(w, r, redirectURL, http.StatusFound)
}

// Logout はセッションを破棄してトップページへ戻す。
// GET /logout
// フラッシュを次のページで表示するため、破棄後に新しい匿名セッションを発行する。
func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	sessionID, err := middleware.SessionIDFromContext(r.Context())
	if err != nil {
		http.Redirect(w, r, "/", http.StatusFound)
		return
	}

	if err := h.service.Logout(r.Context(), sessionID); err != nil {
		slog.Error("logout failed", slog.String("error", err.Error()))
	}

	anon, err := h.service.CreateAnonymousSession(r.Context())
	if err != nil {
		slog.Error("failed to create session after logout", slog.String("error", err.Error()))
		h.clearSessionCookie(w)
		http.Redirect(w, r, "/", http.StatusFound)
		return
	}

	h.setSessionCookie(w, anon.ID)
	if err := h.pages.flashes.AppendFlash(r.Context(), anon.ID, model.FlashSuccess, "Logged out successfully"); err != nil {
		slog.Error("failed to append flash", slog.String("error", err.Error()))
	}
	http.Redirect(w, r, "/", http.StatusFound)
}

// GitHubLogin はGitHub OAuthフローを開始する。
// GET /auth/github
func (h *AuthHandler) GitHubLogin(w http.ResponseWriter, r *http.Request) {
	state, err := generateState()
	if err != nil {
		slog.Error("failed to generate oauth state", slog.String("error", err.Error()))
		http.Error(w, "internal server error", http.StatusInternalServerError)
		return
	}

	// stateをCookieに保存（CSRF対策）
	http.SetCookie(w, &http.Cookie{
		Name:     oauthStateCookie,
		Value:    state,
		Path:     "/",
		MaxAge:   600, // 10分
		HttpOnly: true,
		Secure:   h.config.CookieSecure,
		SameSite: http.SameSiteLaxMode,
	})

	http.Redirect(w, r, h.service.GetLoginURL(state), http.StatusTemporaryRedirect)
}

// GitHubCallback はGitHub OAuthコールバックを処理する。
// GET /auth/github/callback?code=xxx&state=yyy
// 成功時はフラッシュを添えて/registerへ遷移する。
func (h *AuthHandler) GitHubCallback(w http.ResponseWriter, r *http.Request) {
	state := r.URL.Query().Get("state")
	stateCookie, err := r.Cookie(oauthStateCookie)
	if err != nil || stateCookie.Value == "" || stateCookie.Value != state {
		slog.Warn("oauth state mismatch", slog.String("query_state", state))
		http.Error(w, "invalid state parameter", http.StatusBadRequest)
		return
	}

	// stateクッキーを削除
	http.SetCookie(w, &http.Cookie{
		Name:     oauthStateCookie,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   h.config.CookieSecure,
		SameSite: http.SameSiteLaxMode,
	})

	code := r.URL.Query().Get("code")
	if code == "" {
		http.Error(w, "missing authorization code", http.StatusBadRequest)
		return
	}

	sessionID, err := middleware.SessionIDFromContext(r.Context())
	if err != nil {
		http.Error(w, "internal server error", http.StatusInternalServerError)
		return
	}

	loggedIn, err := h.service.HandleCallback(r.Context(), sessionID, code)
	if err != nil {
		slog.Error("oauth callback failed", slog.String("error", err.Error()))
		h.pages.Flash(r, model.FlashError, "Authentication failed. Please try again.")
		http.Redirect(w, r, "/login", http.StatusFound)
		return
	}

	h.metrics.RecordLogin("github")
	h.pages.Flash(r, model.FlashSuccess, "Logged in as "+loggedIn.Username)
	http.Redirect(w, r, defaultPostLoginURL, http.StatusFound)
}

// setSessionCookie はセッションCookieを設定する。
func (h *AuthHandler) setSessionCookie(w http.ResponseWriter, sessionID string) {
	http.SetCookie(w, &http.Cookie{
		Name:     sessionCookieName,
		Value:    sessionID,
		Path:     "/",
		Domain:   h.config.CookieDomain,
		MaxAge:   h.config.SessionMaxAge,
		HttpOnly: true,
		Secure:   h.config.CookieSecure,
		SameSite: http.SameSiteLaxMode,
	})
}

// clearSessionCookie はセッションCookieを失効させる。
func (h *AuthHandler) clearSessionCookie(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     sessionCookieName,
		Value:    "",
		Path:     "/",
		Domain:   h.config.CookieDomain,
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   h.config.CookieSecure,
		SameSite: http.SameSiteLaxMode,
	})
}

// generateState は暗号的に安全なOAuth stateを生成する。
func generateState() (string, error) {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}
