package auth

import (
	"context"
	"errors"
	"testing"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/hitoshi/userhub/internal/model"
	"github.com/hitoshi/userhub/internal/repository"
)

// --- モック定義 ---

type mockUserRepo struct {
	findByIDFn       func(ctx context.Context, id string) (*model.User, error)
	findByUsernameFn func(ctx context.Context, username string) (*model.User, error)
	createFn         func(ctx context.Context, user *model.User) error
}

func (m *mockUserRepo) FindByID(ctx context.Context, id string) (*model.User, error) {
	if m.findByIDFn != nil {
		return m.findByIDFn(ctx, id)
	}
	return nil, nil
}

func (m *mockUserRepo) FindByUsername(ctx context.Context, username string) (*model.User, error) {
	if m.findByUsernameFn != nil {
		return m.findByUsernameFn(ctx, username)
	}
	return nil, nil
}

func (m *mockUserRepo) ListAll(_ context.Context) ([]*model.User, error) { return nil, nil }

func (m *mockUserRepo) Create(ctx context.Context, user *model.User) error {
	if m.createFn != nil {
		return m.createFn(ctx, user)
	}
	return nil
}

func (m *mockUserRepo) Update(_ context.Context, _ *model.User) error { return nil }
func (m *mockUserRepo) DeleteByID(_ context.Context, _ string) error  { return nil }

type mockFederatedRepo struct {
	findFn   func(ctx context.Context, provider, subject string) (*model.FederatedCredential, error)
	upsertFn func(ctx context.Context, cred *model.FederatedCredential) error
}

func (m *mockFederatedRepo) FindByProviderAndSubject(ctx context.Context, provider, subject string) (*model.FederatedCredential, error) {
	if m.findFn != nil {
		return m.findFn(ctx, provider, subject)
	}
	return nil, nil
}

func (m *mockFederatedRepo) Upsert(ctx context.Context, cred *model.FederatedCredential) error {
	if m.upsertFn != nil {
		return m.upsertFn(ctx, cred)
	}
	return nil
}

func (m *mockFederatedRepo) ListByUserID(_ context.Context, _ string) ([]*model.FederatedCredential, error) {
	return nil, nil
}

type mockSessionRepo struct {
	createFn     func(ctx context.Context, session *model.Session) error
	findByIDFn   func(ctx context.Context, id string) (*model.Session, error)
	setUserFn    func(ctx context.Context, id, userID string) error
	deleteByIDFn func(ctx context.Context, id string) error
}

func (m *mockSessionRepo) Create(ctx context.Context, session *model.Session) error {
	if m.createFn != nil {
		return m.createFn(ctx, session)
	}
	return nil
}

func (m *mockSessionRepo) FindByID(ctx context.Context, id string) (*model.Session, error) {
	if m.findByIDFn != nil {
		return m.findByIDFn(ctx, id)
	}
	return nil, nil
}

func (m *mockSessionRepo) SetUser(ctx context.Context, id, userID string) error {
	if m.setUserFn != nil {
		return m.setUserFn(ctx, id, userID)
	}
	return nil
}

func (m *mockSessionRepo) AppendFlash(_ context.Context, _ string, _ model.FlashKind, _ string) error {
	return nil
}

func (m *mockSessionRepo) PopFlashes(_ context.Context, _ string) ([]string, []string, error) {
	return nil, nil, nil
}

func (m *mockSessionRepo) SetRedirectURL(_ context.Context, _, _ string) error { return nil }

func (m *mockSessionRepo) PopRedirectURL(_ context.Context, _ string) (string, error) {
	return "", nil
}

func (m *mockSessionRepo) DeleteByID(ctx context.Context, id string) error {
	if m.deleteByIDFn != nil {
		return m.deleteByIDFn(ctx, id)
	}
	return nil
}

func (m *mockSessionRepo) DeleteByUserID(_ context.Context, _ string) error { return nil }

func (m *mockSessionRepo) DeleteExpired(_ context.Context) (int64, error) { return 0, nil }

type mockOAuthProvider struct {
	getLoginURLFn  func(state string) string
	exchangeCodeFn func(ctx context.Context, code string) (*OAuthUserInfo, error)
}

func (m *mockOAuthProvider) GetLoginURL(state string) string {
	if m.getLoginURLFn != nil {
		return m.getLoginURLFn(state)
	}
	return ""
}

func (m *mockOAuthProvider) ExchangeCode(ctx context.Context, code string) (*OAuthUserInfo, error) {
	if m.exchangeCodeFn != nil {
		return m.exchangeCodeFn(ctx, code)
	}
	return nil, nil
}

// --- compile-time interface checks ---
var _ repository.UserRepository = (*mockUserRepo)(nil)
var _ repository.FederatedCredentialRepository = (*mockFederatedRepo)(nil)
var _ repository.SessionRepository = (*mockSessionRepo)(nil)
var _ OAuthProvider = (*mockOAuthProvider)(nil)

// --- テスト ---

func TestRegister_ValidInput_CreatesUserAndBindsSession(t *testing.T) {
	ctx := context.Background()

	var createdUser *model.User
	var boundSessionID, boundUserID string

	userRepo := &mockUserRepo{
		createFn: func(ctx context.Context, user *model.User) error {
			createdUser = user
			return nil
		},
	}
	sessionRepo := &mockSessionRepo{
		setUserFn: func(ctx context.Context, id, userID string) error {
			boundSessionID = id
			boundUserID = userID
			return nil
		},
	}

	svc := NewService(nil, userRepo, nil, sessionRepo, ServiceConfig{SessionMaxAge: 86400})

	user, err := svc.Register(ctx, "session-1", RegisterInput{
		Username: "alice",
		Email:    "alice@example.com",
		Password: "secret123",
		DOB:      "1990-05-01",
		Phone:    "09012345678",
		Country:  "Japan",
	})
	if err != nil {
		t.Fatalf("Register() error = %v", err)
	}

	if createdUser == nil {
		t.Fatal("expected user to be created")
	}
	if createdUser.Username != "alice" {
		t.Errorf("username = %q, want %q", createdUser.Username, "alice")
	}
	// 平文パスワードが保存されないこと
	if createdUser.PasswordHash == "secret123" {
		t.Error("password must not be stored in plain text")
	}
	if err := bcrypt.CompareHashAndPassword([]byte(createdUser.PasswordHash), []byte("secret123")); err != nil {
		t.Errorf("stored hash does not match password: %v", err)
	}

	// セッションがログイン状態になること
	if boundSessionID != "session-1" {
		t.Errorf("bound session = %q, want %q", boundSessionID, "session-1")
	}
	if boundUserID != user.ID {
		t.Errorf("bound user = %q, want %q", boundUserID, user.ID)
	}
}

func TestRegister_InvalidInput_ReturnsValidationError(t *testing.T) {
	ctx := context.Background()
	svc := NewService(nil, nil, nil, nil, ServiceConfig{SessionMaxAge: 86400})

	tests := []struct {
		name  string
		input RegisterInput
	}{
		{"missing username", RegisterInput{Email: "a@b.com", Password: "secret123"}},
		{"missing email", RegisterInput{Username: "alice", Password: "secret123"}},
		{"malformed email", RegisterInput{Username: "alice", Email: "not-an-email", Password: "secret123"}},
		{"short password", RegisterInput{Username: "alice", Email: "a@b.com", Password: "abc"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.Register(ctx, "session-1", tt.input)
			if err == nil {
				t.Fatal("expected validation error")
			}
			if model.CategoryOf(err) != model.CategoryValidation {
				t.Errorf("category = %q, want %q", model.CategoryOf(err), model.CategoryValidation)
			}
		})
	}
}

func TestRegister_DuplicateUsername_ReturnsDuplicateError(t *testing.T) {
	ctx := context.Background()

	userRepo := &mockUserRepo{
		createFn: func(ctx context.Context, user *model.User) error {
			return model.NewDuplicateUserError(user.Username)
		},
	}
	svc := NewService(nil, userRepo, nil, nil, ServiceConfig{SessionMaxAge: 86400})

	_, err := svc.Register(ctx, "session-1", RegisterInput{
		Username: "alice",
		Email:    "alice@example.com",
		Password: "secret123",
	})
	if err == nil {
		t.Fatal("expected duplicate error")
	}
	if model.CategoryOf(err) != model.CategoryDuplicate {
		t.Errorf("category = %q, want %q", model.CategoryOf(err), model.CategoryDuplicate)
	}
}

func TestLogin_ValidCredentials_BindsSession(t *testing.T) {
	ctx := context.Background()

	hash, err := bcrypt.GenerateFromPassword([]byte("secret123"), bcrypt.DefaultCost)
	if err != nil {
		t.Fatal(err)
	}

	var boundUserID string
	userRepo := &mockUserRepo{
		findByUsernameFn: func(ctx context.Context, username string) (*model.User, error) {
			return &model.User{ID: "user-1", Username: username, PasswordHash: string(hash)}, nil
		},
	}
	sessionRepo := &mockSessionRepo{
		setUserFn: func(ctx context.Context, id, userID string) error {
			boundUserID = userID
			return nil
		},
	}
	svc := NewService(nil, userRepo, nil, sessionRepo, ServiceConfig{SessionMaxAge: 86400})

	user, err := svc.Login(ctx, "session-1", "alice", "secret123")
	if err != nil {
		t.Fatalf("Login() error = %v", err)
	}
	if user.ID != "user-1" {
		t.Errorf("user ID = %q, want %q", user.ID, "user-1")
	}
	if boundUserID != "user-1" {
		t.Errorf("bound user = %q, want %q", boundUserID, "user-1")
	}
}

// ユーザー未存在とパスワード不一致が外部から区別できないことを検証
func TestLogin_BadCredentials_IndistinguishableError(t *testing.T) {
	ctx := context.Background()

	hash, err := bcrypt.GenerateFromPassword([]byte("secret123"), bcrypt.DefaultCost)
	if err != nil {
		t.Fatal(err)
	}

	userRepo := &mockUserRepo{
		findByUsernameFn: func(ctx context.Context, username string) (*model.User, error) {
			if username == "alice" {
				return &model.User{ID: "user-1", Username: "alice", PasswordHash: string(hash)}, nil
			}
			return nil, nil
		},
	}
	svc := NewService(nil, userRepo, nil, nil, ServiceConfig{SessionMaxAge: 86400})

	_, errNoUser := svc.Login(ctx, "session-1", "nobody", "secret123")
	_, errBadPass := svc.Login(ctx, "session-1", "alice", "wrong-password")

	if errNoUser == nil || errBadPass == nil {
		t.Fatal("expected errors for both cases")
	}
	if errNoUser.Error() != errBadPass.Error() {
		t.Errorf("error messages differ: %q vs %q", errNoUser.Error(), errBadPass.Error())
	}
	if model.CategoryOf(errNoUser) != model.CategoryAuth {
		t.Errorf("category = %q, want %q", model.CategoryOf(errNoUser), model.CategoryAuth)
	}
}

func TestHandleCallback_NewUser_CreatesUserWithPlaceholders(t *testing.T) {
	ctx := context.Background()

	var createdUser *model.User
	var upsertedCred *model.FederatedCredential
	var boundUserID string

	provider := &mockOAuthProvider{
		exchangeCodeFn: func(ctx context.Context, code string) (*OAuthUserInfo, error) {
			return &OAuthUserInfo{
				Subject:  "12345",
				Username: "octocat",
				Name:     "The Octocat",
				Provider: "github",
			}, nil
		},
	}
	userRepo := &mockUserRepo{
		createFn: func(ctx context.Context, user *model.User) error {
			createdUser = user
			return nil
		},
	}
	fedRepo := &mockFederatedRepo{
		upsertFn: func(ctx context.Context, cred *model.FederatedCredential) error {
			upsertedCred = cred
			return nil
		},
	}
	sessionRepo := &mockSessionRepo{
		setUserFn: func(ctx context.Context, id, userID string) error {
			boundUserID = userID
			return nil
		},
	}

	svc := NewService(provider, userRepo, fedRepo, sessionRepo, ServiceConfig{SessionMaxAge: 86400})

	user, err := svc.HandleCallback(ctx, "session-1", "auth-code-123")
	if err != nil {
		t.Fatalf("HandleCallback() error = %v", err)
	}

	if createdUser == nil {
		t.Fatal("expected user to be created")
	}
	if createdUser.Username != "octocat" {
		t.Errorf("username = %q, want %q", createdUser.Username, "octocat")
	}
	if createdUser.Email != "default@email.com" {
		t.Errorf("email = %q, want placeholder %q", createdUser.Email, "default@email.com")
	}
	if createdUser.DOB != "2000-01-01" {
		t.Errorf("dob = %q, want placeholder %q", createdUser.DOB, "2000-01-01")
	}
	if createdUser.Country != "GitHub" {
		t.Errorf("country = %q, want placeholder %q", createdUser.Country, "GitHub")
	}

	if upsertedCred == nil {
		t.Fatal("expected federated credential to be saved")
	}
	if upsertedCred.Provider != "github" || upsertedCred.Subject != "12345" {
		t.Errorf("credential = %s/%s, want github/12345", upsertedCred.Provider, upsertedCred.Subject)
	}
	if upsertedCred.UserID != user.ID {
		t.Errorf("credential user = %q, want %q", upsertedCred.UserID, user.ID)
	}

	if boundUserID != user.ID {
		t.Errorf("bound user = %q, want %q", boundUserID, user.ID)
	}
}

func TestHandleCallback_ExistingCredential_LogsInExistingUser(t *testing.T) {
	ctx := context.Background()

	existingUserID := "existing-user-456"
	var boundUserID string

	provider := &mockOAuthProvider{
		exchangeCodeFn: func(ctx context.Context, code string) (*OAuthUserInfo, error) {
			return &OAuthUserInfo{Subject: "999", Username: "octocat", Provider: "github"}, nil
		},
	}
	userRepo := &mockUserRepo{
		findByIDFn: func(ctx context.Context, id string) (*model.User, error) {
			return &model.User{ID: existingUserID, Username: "octocat"}, nil
		},
		createFn: func(ctx context.Context, user *model.User) error {
			t.Fatal("Create must not be called for existing credential")
			return nil
		},
	}
	fedRepo := &mockFederatedRepo{
		findFn: func(ctx context.Context, provider, subject string) (*model.FederatedCredential, error) {
			return &model.FederatedCredential{ID: "cred-1", UserID: existingUserID, Provider: provider, Subject: subject}, nil
		},
	}
	sessionRepo := &mockSessionRepo{
		setUserFn: func(ctx context.Context, id, userID string) error {
			boundUserID = userID
			return nil
		},
	}

	svc := NewService(provider, userRepo, fedRepo, sessionRepo, ServiceConfig{SessionMaxAge: 86400})

	user, err := svc.HandleCallback(ctx, "session-1", "auth-code")
	if err != nil {
		t.Fatalf("HandleCallback() error = %v", err)
	}
	if user.ID != existingUserID {
		t.Errorf("user ID = %q, want %q", user.ID, existingUserID)
	}
	if boundUserID != existingUserID {
		t.Errorf("bound user = %q, want %q", boundUserID, existingUserID)
	}
}

// ローカル登録済みのユーザーが初回GitHubログインでそのままログインできることを検証
func TestHandleCallback_ExistingLocalUser_LinksAndLogsIn(t *testing.T) {
	ctx := context.Background()

	localUser := &model.User{ID: "local-user-1", Username: "alice", Email: "alice@example.com"}
	var upsertedCred *model.FederatedCredential
	var boundUserID string

	provider := &mockOAuthProvider{
		exchangeCodeFn: func(ctx context.Context, code string) (*OAuthUserInfo, error) {
			return &OAuthUserInfo{Subject: "555", Username: "alice", Provider: "github"}, nil
		},
	}
	userRepo := &mockUserRepo{
		findByUsernameFn: func(ctx context.Context, username string) (*model.User, error) {
			if username == "alice" {
				return localUser, nil
			}
			return nil, nil
		},
		createFn: func(ctx context.Context, user *model.User) error {
			t.Fatal("Create must not be called when a local user already exists")
			return nil
		},
	}
	fedRepo := &mockFederatedRepo{
		upsertFn: func(ctx context.Context, cred *model.FederatedCredential) error {
			upsertedCred = cred
			return nil
		},
	}
	sessionRepo := &mockSessionRepo{
		setUserFn: func(ctx context.Context, id, userID string) error {
			boundUserID = userID
			return nil
		},
	}

	svc := NewService(provider, userRepo, fedRepo, sessionRepo, ServiceConfig{SessionMaxAge: 86400})

	user, err := svc.HandleCallback(ctx, "session-1", "auth-code")
	if err != nil {
		t.Fatalf("HandleCallback() error = %v", err)
	}
	if user.ID != localUser.ID {
		t.Errorf("user ID = %q, want %q", user.ID, localUser.ID)
	}
	if user.Email != "alice@example.com" {
		t.Errorf("email = %q, local profile must not be overwritten", user.Email)
	}

	// 外部IDが既存アカウントに紐付くこと
	if upsertedCred == nil {
		t.Fatal("expected federated credential to be saved")
	}
	if upsertedCred.UserID != localUser.ID {
		t.Errorf("credential user = %q, want %q", upsertedCred.UserID, localUser.ID)
	}

	if boundUserID != localUser.ID {
		t.Errorf("bound user = %q, want %q", boundUserID, localUser.ID)
	}
}

// 並行コールバックで先行リクエストが作成済みの場合、ユーザー名の再検索でログインできることを検証
func TestHandleCallback_DuplicateRace_RecoversViaRelookup(t *testing.T) {
	ctx := context.Background()

	existingUserID := "raced-user-1"
	usernameLookups := 0
	var upsertedCred *model.FederatedCredential

	provider := &mockOAuthProvider{
		exchangeCodeFn: func(ctx context.Context, code string) (*OAuthUserInfo, error) {
			return &OAuthUserInfo{Subject: "777", Username: "octocat", Provider: "github"}, nil
		},
	}
	userRepo := &mockUserRepo{
		findByUsernameFn: func(ctx context.Context, username string) (*model.User, error) {
			usernameLookups++
			if usernameLookups == 1 {
				// 初回検索時点ではまだ存在しない
				return nil, nil
			}
			return &model.User{ID: existingUserID, Username: username}, nil
		},
		createFn: func(ctx context.Context, user *model.User) error {
			return model.NewDuplicateUserError(user.Username)
		},
	}
	fedRepo := &mockFederatedRepo{
		upsertFn: func(ctx context.Context, cred *model.FederatedCredential) error {
			upsertedCred = cred
			return nil
		},
	}

	svc := NewService(provider, userRepo, fedRepo, &mockSessionRepo{}, ServiceConfig{SessionMaxAge: 86400})

	user, err := svc.HandleCallback(ctx, "session-1", "auth-code")
	if err != nil {
		t.Fatalf("HandleCallback() error = %v", err)
	}
	if user.ID != existingUserID {
		t.Errorf("user ID = %q, want %q", user.ID, existingUserID)
	}
	if upsertedCred == nil || upsertedCred.UserID != existingUserID {
		t.Errorf("credential = %+v, want link to %q", upsertedCred, existingUserID)
	}
}

func TestHandleCallback_OAuthError_ReturnsError(t *testing.T) {
	ctx := context.Background()

	provider := &mockOAuthProvider{
		exchangeCodeFn: func(ctx context.Context, code string) (*OAuthUserInfo, error) {
			return nil, errors.New("oauth exchange failed")
		},
	}

	svc := NewService(provider, nil, nil, nil, ServiceConfig{SessionMaxAge: 86400})

	_, err := svc.HandleCallback(ctx, "session-1", "bad-code")
	if err == nil {
		t.Fatal("expected error from HandleCallback")
	}
}

func TestCreateAnonymousSession_HasNoUser(t *testing.T) {
	ctx := context.Background()

	var created *model.Session
	sessionRepo := &mockSessionRepo{
		createFn: func(ctx context.Context, session *model.Session) error {
			created = session
			return nil
		},
	}

	svc := NewService(nil, nil, nil, sessionRepo, ServiceConfig{SessionMaxAge: 86400})

	session, err := svc.CreateAnonymousSession(ctx)
	if err != nil {
		t.Fatalf("CreateAnonymousSession() error = %v", err)
	}
	if session.ID == "" {
		t.Error("expected non-empty session ID")
	}
	if session.UserID != "" {
		t.Errorf("UserID = %q, want empty", session.UserID)
	}
	if created == nil {
		t.Fatal("expected session to be persisted")
	}
	if created.ExpiresAt.Before(time.Now()) {
		t.Error("session should not be expired")
	}
}

func TestLogout_DeletesSession(t *testing.T) {
	ctx := context.Background()

	var deletedSessionID string
	sessionRepo := &mockSessionRepo{
		deleteByIDFn: func(ctx context.Context, id string) error {
			deletedSessionID = id
			return nil
		},
	}

	svc := NewService(nil, nil, nil, sessionRepo, ServiceConfig{SessionMaxAge: 86400})

	if err := svc.Logout(ctx, "session-to-delete"); err != nil {
		t.Fatalf("Logout() error = %v", err)
	}
	if deletedSessionID != "session-to-delete" {
		t.Errorf("deleted session ID = %q, want %q", deletedSessionID, "session-to-delete")
	}
}

func TestGetCurrentUser_AnonymousSession_ReturnsNil(t *testing.T) {
	ctx := context.Background()

	sessionRepo := &mockSessionRepo{
		findByIDFn: func(ctx context.Context, id string) (*model.Session, error) {
			return &model.Session{ID: id, UserID: "", ExpiresAt: time.Now().Add(time.Hour)}, nil
		},
	}

	svc := NewService(nil, nil, nil, sessionRepo, ServiceConfig{SessionMaxAge: 86400})

	user, err := svc.GetCurrentUser(ctx, "anon-session")
	if err != nil {
		t.Fatalf("GetCurrentUser() error = %v", err)
	}
	if user != nil {
		t.Errorf("expected nil user for anonymous session, got %+v", user)
	}
}

func TestGetCurrentUser_ValidSession_ReturnsUser(t *testing.T) {
	ctx := context.Background()

	userID := "user-id-123"
	sessionRepo := &mockSessionRepo{
		findByIDFn: func(ctx context.Context, id string) (*model.Session, error) {
			return &model.Session{ID: id, UserID: userID, ExpiresAt: time.Now().Add(time.Hour)}, nil
		},
	}
	userRepo := &mockUserRepo{
		findByIDFn: func(ctx context.Context, id string) (*model.User, error) {
			return &model.User{ID: userID, Username: "alice"}, nil
		},
	}

	svc := NewService(nil, userRepo, nil, sessionRepo, ServiceConfig{SessionMaxAge: 86400})

	user, err := svc.GetCurrentUser(ctx, "session-valid")
	if err != nil {
		t.Fatalf("GetCurrentUser() error = %v", err)
	}
	if user == nil || user.ID != userID {
		t.Fatalf("user = %+v, want ID %q", user, userID)
	}
}
