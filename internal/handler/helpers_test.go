package handler

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"

	"github.com/hitoshi/userhub/internal/middleware"
	"github.com/hitoshi/userhub/internal/model"
	"github.com/hitoshi/userhub/internal/view"
)

// --- 共通モック定義 ---

type mockFlashStore struct {
	appendFlashFn    func(ctx context.Context, id string, kind model.FlashKind, message string) error
	popFlashesFn     func(ctx context.Context, id string) ([]string, []string, error)
	setRedirectURLFn func(ctx context.Context, id, url string) error
	popRedirectURLFn func(ctx context.Context, id string) (string, error)
}

func (m *mockFlashStore) AppendFlash(ctx context.Context, id string, kind model.FlashKind, message string) error {
	if m.appendFlashFn != nil {
		return m.appendFlashFn(ctx, id, kind, message)
	}
	return nil
}

func (m *mockFlashStore) PopFlashes(ctx context.Context, id string) ([]string, []string, error) {
	if m.popFlashesFn != nil {
		return m.popFlashesFn(ctx, id)
	}
	return nil, nil, nil
}

func (m *mockFlashStore) SetRedirectURL(ctx context.Context, id, url string) error {
	if m.setRedirectURLFn != nil {
		return m.setRedirectURLFn(ctx, id, url)
	}
	return nil
}

func (m *mockFlashStore) PopRedirectURL(ctx context.Context, id string) (string, error) {
	if m.popRedirectURLFn != nil {
		return m.popRedirectURLFn(ctx, id)
	}
	return "", nil
}

var _ FlashStore = (*mockFlashStore)(nil)

type mockUserProvider struct {
	getCurrentUserFn func(ctx context.Context, sessionID string) (*model.User, error)
}

func (m *mockUserProvider) GetCurrentUser(ctx context.Context, sessionID string) (*model.User, error) {
	if m.getCurrentUserFn != nil {
		return m.getCurrentUserFn(ctx, sessionID)
	}
	return nil, nil
}

var _ CurrentUserProvider = (*mockUserProvider)(nil)

// --- テストヘルパー ---

// newTestPages はテスト用のPagesを生成するヘルパー。
func newTestPages(t *testing.T, flashes FlashStore, users CurrentUserProvider) *Pages {
	t.Helper()
	renderer, err := view.NewRenderer()
	if err != nil {
		t.Fatalf("failed to build renderer: %v", err)
	}
	if flashes == nil {
		flashes = &mockFlashStore{}
	}
	if users == nil {
		users = &mockUserProvider{}
	}
	return NewPages(renderer, flashes, users)
}

// withSessionID はテスト用にリクエストコンテキストにセッションIDを注入するヘルパー。
func withSessionID(r *http.Request, sessionID string) *http.Request {
	ctx := middleware.ContextWithSessionID(r.Context(), sessionID)
	return r.WithContext(ctx)
}

// withUserID はテスト用にリクエストコンテキストにユーザーIDを注入するヘルパー。
func withUserID(r *http.Request, userID string) *http.Request {
	ctx := middleware.ContextWithUserID(r.Context(), userID)
	return r.WithContext(ctx)
}

// withChiURLParam はテスト用にchiのURLパラメータを注入するヘルパー。
func withChiURLParam(r *http.Request, key, value string) *http.Request {
	rctx := chi.NewRouteContext()
	rctx.URLParams.Add(key, value)
	ctx := context.WithValue(r.Context(), chi.RouteCtxKey, rctx)
	return r.WithContext(ctx)
}

// containsStr は文字列sにsubstrが含まれるかチェックするヘルパー。
func containsStr(s, substr string) bool {
	for i := 0; i <= len(s)-len(substr); i++ {
		if s[i:i+len(substr)] == substr {
			return true
		}
	}
	return false
}

// flashRecorder は記録されたフラッシュメッセージを保持するmockFlashStoreを返す。
func flashRecorder(messages *[]string) *mockFlashStore {
	return &mockFlashStore{
		appendFlashFn: func(ctx context.Context, id string, kind model.FlashKind, message string) error {
			*messages = append(*messages, message)
			return nil
		},
	}
}

// assertRedirect はレスポンスが指定先への302リダイレクトであることを検証するヘルパー。
func assertRedirect(t *testing.T, w *httptest.ResponseRecorder, location string) {
	t.Helper()
	if w.Code != http.StatusFound {
		t.Errorf("status = %d, want %d", w.Code, http.StatusFound)
	}
	if got := w.Header().Get("Location"); got != location {
		t.Errorf("Location = %q, want %q", got, location)
	}
}
