// Package auth はローカル認証、GitHub OAuth認証フロー、セッション管理を提供する。
package auth

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/hitoshi/userhub/internal/model"
	"github.com/hitoshi/userhub/internal/repository"
)

// GitHub経由で自動作成されるユーザーのプレースホルダープロフィール。
// 本人がプロフィール編集画面から上書きできる。
const (
	githubPlaceholderEmail    = "default@email.com"
	githubPlaceholderDOB      = "2000-01-01"
	githubPlaceholderPhone    = "0000000000"
	githubPlaceholderCountry  = "GitHub"
	githubPlaceholderPassword = "github_oauth_pass"
)

// OAuthUserInfo はOAuthプロバイダーから取得したユーザー情報を表す。
type OAuthUserInfo struct {
	Subject  string // プロバイダー内で安定なユーザーID
	Username string
	Name     string
	Provider string // "github" 等
}

// OAuthProvider はOAuth認証プロバイダーのインターフェース。
// 将来的に複数IdPに対応するための抽象化。
type OAuthProvider interface {
	// GetLoginURL はOAuth認証URLを生成する。
	GetLoginURL(state string) string
	// ExchangeCode は認可コードをトークンに交換し、ユーザー情報を取得する。
	ExchangeCode(ctx context.Context, code string) (*OAuthUserInfo, error)
}

// ServiceConfig は認証サービスの設定。
type ServiceConfig struct {
	SessionMaxAge int // セッション有効期間（秒）
}

// Service は認証に関するビジネスロジックを提供する。
type Service struct {
	oauth       OAuthProvider
	userRepo    repository.UserRepository
	fedRepo     repository.FederatedCredentialRepository
	sessionRepo repository.SessionRepository
	config      ServiceConfig
}

// NewService はServiceを生成する。
func NewService(
	oauth OAuthProvider,
	userRepo repository.UserRepository,
	fedRepo repository.FederatedCredentialRepository,
	sessionRepo repository.SessionRepository,
	config ServiceConfig,
) *Service {
	return &Service{
		oauth:       oauth,
		userRepo:    userRepo,
		fedRepo:     fedRepo,
		sessionRepo: sessionRepo,
		config:      config,
	}
}

// Register はローカル認証のユーザーを登録し、セッションにログイン状態を紐付ける。
// 入力不正はValidationError、ユーザー名重複はDuplicateUserErrorを返す。
func (s *Service) Register(ctx context.Context, sessionID string, input RegisterInput) (*model.User, error) {
	if err := validateRegistration(input); err != nil {
		return nil, err
	}

	hash, err := hashPassword(input.Password)
	if err != nil {
		return nil, err
	}

	now := time.Now()
	user := &model.User{
		ID:           uuid.New().String(),
		Username:     input.Username,
		Email:        input.Email,
		PasswordHash: hash,
		DOB:          input.DOB,
		Phone:        input.Phone,
		Country:      input.Country,
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	if err := s.userRepo.Create(ctx, user); err != nil {
		return nil, err
	}

	if err := s.sessionRepo.SetUser(ctx, sessionID, user.ID); err != nil {
		return nil, fmt.Errorf("failed to bind session: %w", err)
	}

	slog.Info("user registered",
		slog.String("user_id", user.ID),
		slog.String("username", user.Username),
	)
	return user, nil
}

// Login はユーザー名とパスワードで認証し、セッションにログイン状態を紐付ける。
// ユーザー未存在とパスワード不一致は区別せず、同一のAuthenticationErrorを返す。
func (s *Service) Login(ctx context.Context, sessionID, username, password string) (*model.User, error) {
	user, err := s.userRepo.FindByUsername(ctx, username)
	if err != nil {
		return nil, fmt.Errorf("failed to find user: %w", err)
	}
	if user == nil {
		return nil, model.NewAuthenticationError()
	}
	if !comparePassword(user.PasswordHash, password) {
		return nil, model.NewAuthenticationError()
	}

	if err := s.sessionRepo.SetUser(ctx, sessionID, user.ID); err != nil {
		return nil, fmt.Errorf("failed to bind session: %w", err)
	}

	slog.Info("user logged in", slog.String("user_id", user.ID))
	return user, nil
}

// GetLoginURL はOAuth認証URLを生成する。
func (s *Service) GetLoginURL(state string) string {
	return s.oauth.GetLoginURL(state)
}

// HandleCallback はOAuthコールバックを処理し、セッションにログイン状態を紐付ける。
// 初回ログインの場合はプレースホルダープロフィールでusersレコードを自動作成し、
// federated_credentialsで外部IDと紐付ける。2回目以降は紐付けから既存ユーザーを特定する。
func (s *Service) HandleCallback(ctx context.Context, sessionID, code string) (*model.User, error) {
	userInfo, err := s.oauth.ExchangeCode(ctx, code)
	if err != nil {
		return nil, fmt.Errorf("failed to exchange oauth code: %w", err)
	}

	user, err := s.resolveFederatedUser(ctx, userInfo)
	if err != nil {
		return nil, err
	}

	if err := s.sessionRepo.SetUser(ctx, sessionID, user.ID); err != nil {
		return nil, fmt.Errorf("failed to bind session: %w", err)
	}

	return user, nil
}

// resolveFederatedUser は外部IDに対応するユーザーを取得または作成する。
// 紐付けがない場合もユーザー名が一致する既存アカウントがあればそれに紐付ける。
// ローカル登録済みのユーザーがGitHubでもログインできるようにするため。
func (s *Service) resolveFederatedUser(ctx context.Context, userInfo *OAuthUserInfo) (*model.User, error) {
	cred, err := s.fedRepo.FindByProviderAndSubject(ctx, userInfo.Provider, userInfo.Subject)
	if err != nil {
		return nil, fmt.Errorf("failed to find federated credential: %w", err)
	}

	if cred != nil {
		user, err := s.userRepo.FindByID(ctx, cred.UserID)
		if err != nil {
			return nil, fmt.Errorf("failed to find user: %w", err)
		}
		if user == nil {
			return nil, fmt.Errorf("federated credential points to missing user: %s", cred.UserID)
		}
		slog.Info("existing user logged in via oauth",
			slog.String("user_id", user.ID),
			slog.String("provider", userInfo.Provider),
		)
		return user, nil
	}

	existing, err := s.userRepo.FindByUsername(ctx, userInfo.Username)
	if err != nil {
		return nil, fmt.Errorf("failed to find user: %w", err)
	}
	if existing != nil {
		return s.linkFederatedUser(ctx, existing, userInfo)
	}

	hash, err := hashPassword(githubPlaceholderPassword)
	if err != nil {
		return nil, err
	}

	now := time.Now()
	user := &model.User{
		ID:           uuid.New().String(),
		Username:     userInfo.Username,
		Email:        githubPlaceholderEmail,
		PasswordHash: hash,
		DOB:          githubPlaceholderDOB,
		Phone:        githubPlaceholderPhone,
		Country:      githubPlaceholderCountry,
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	if err := s.userRepo.Create(ctx, user); err != nil {
		var appErr *model.AppError
		if errors.As(err, &appErr) && appErr.Code == model.ErrCodeDuplicateUser {
			// 同じコールバックが並行処理され、先行リクエストが作成済みの可能性がある。
			// ユーザー名で一度だけ再検索し、見つかればそのユーザーに紐付けてログインする。
			raced, ferr := s.userRepo.FindByUsername(ctx, userInfo.Username)
			if ferr == nil && raced != nil {
				return s.linkFederatedUser(ctx, raced, userInfo)
			}
		}
		return nil, err
	}

	if err := s.fedRepo.Upsert(ctx, &model.FederatedCredential{
		ID:        uuid.New().String(),
		UserID:    user.ID,
		Provider:  userInfo.Provider,
		Subject:   userInfo.Subject,
		Name:      userInfo.Name,
		CreatedAt: now,
	}); err != nil {
		return nil, err
	}

	slog.Info("new user created via oauth",
		slog.String("user_id", user.ID),
		slog.String("username", user.Username),
		slog.String("provider", userInfo.Provider),
	)
	return user, nil
}

// linkFederatedUser は既存ユーザーに外部IDの紐付けを追加する。
func (s *Service) linkFederatedUser(ctx context.Context, user *model.User, userInfo *OAuthUserInfo) (*model.User, error) {
	if err := s.fedRepo.Upsert(ctx, &model.FederatedCredential{
		ID:        uuid.New().String(),
		UserID:    user.ID,
		Provider:  userInfo.Provider,
		Subject:   userInfo.Subject,
		Name:      userInfo.Name,
		CreatedAt: time.Now(),
	}); err != nil {
		return nil, err
	}

	slog.Info("existing user linked to oauth provider",
		slog.String("user_id", user.ID),
		slog.String("provider", userInfo.Provider),
	)
	return user, nil
}

// CreateAnonymousSession は未ログイン訪問者向けの匿名セッションを発行する。
func (s *Service) CreateAnonymousSession(ctx context.Context) (*model.Session, error) {
	return s.createSession(ctx, "")
}

// Logout はセッションを破棄する。
func (s *Service) Logout(ctx context.Context, sessionID string) error {
	if sessionID == "" {
		return fmt.Errorf("session ID is required")
	}

	if err := s.sessionRepo.DeleteByID(ctx, sessionID); err != nil {
		return fmt.Errorf("failed to delete session: %w", err)
	}

	slog.Info("user logged out", slog.String("session_id", sessionID))
	return nil
}

// GetCurrentUser はセッションから現在のユーザーを取得する。
// 匿名セッション、またはユーザーが削除済みの場合はnilを返す。
func (s *Service) GetCurrentUser(ctx context.Context, sessionID string) (*model.User, error) {
	if sessionID == "" {
		return nil, nil
	}

	session, err := s.sessionRepo.FindByID(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to find session: %w", err)
	}
	if session == nil || session.UserID == "" {
		return nil, nil
	}

	user, err := s.userRepo.FindByID(ctx, session.UserID)
	if err != nil {
		return nil, fmt.Errorf("failed to find user: %w", err)
	}
	return user, nil
}

// createSession はセッションを作成し永続化する。
func (s *Service) createSession(ctx context.Context, userID string) (*model.Session, error) {
	sessionID, err := generateSessionID()
	if err != nil {
		return nil, fmt.Errorf("failed to generate session ID: %w", err)
	}

	session := &model.Session{
		ID:        sessionID,
		UserID:    userID,
		ExpiresAt: time.Now().Add(time.Duration(s.config.SessionMaxAge) * time.Second),
		CreatedAt: time.Now(),
	}

	if err := s.sessionRepo.Create(ctx, session); err != nil {
		return nil, fmt.Errorf("failed to save session: %w", err)
	}

	return session, nil
}

// generateSessionID は暗号的に安全なセッションIDを生成する。
func generateSessionID() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}
