// Package user はユーザー管理のドメインロジックを提供する。
package user

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/hitoshi/userhub/internal/model"
	"github.com/hitoshi/userhub/internal/repository"
)

// Service はユーザー管理のサービス層。
// 一覧・取得・プロフィール更新・退会処理のビジネスロジックを提供する。
type Service struct {
	userRepo    repository.UserRepository
	sessionRepo repository.SessionRepository
}

// NewService はServiceの新しいインスタンスを生成する。
func NewService(userRepo repository.UserRepository, sessionRepo repository.SessionRepository) *Service {
	return &Service{
		userRepo:    userRepo,
		sessionRepo: sessionRepo,
	}
}

// List は全ユーザーを登録順で返す。
func (s *Service) List(ctx context.Context) ([]*model.User, error) {
	users, err := s.userRepo.ListAll(ctx)
	if err != nil {
		return nil, fmt.Errorf("ユーザー一覧の取得に失敗しました: %w", err)
	}
	return users, nil
}

// Get は指定IDのユーザーを取得する。
// 見つからない場合はUserNotFoundErrorを返す。
func (s *Service) Get(ctx context.Context, id string) (*model.User, error) {
	user, err := s.userRepo.FindByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("ユーザーの取得に失敗しました: %w", err)
	}
	if user == nil {
		return nil, model.NewUserNotFoundError(id)
	}
	return user, nil
}

// UpdateInput はプロフィール更新の入力。
type UpdateInput struct {
	Email   string
	DOB     string
	Phone   string
	Country string
}

// UpdateProfile はユーザーのプロフィール項目を更新する。
// ユーザー名とパスワードはこの操作では変更できない。
// 対象が存在しない場合はUserNotFoundErrorを返す。
func (s *Service) UpdateProfile(ctx context.Context, id string, input UpdateInput) (*model.User, error) {
	if strings.TrimSpace(input.Email) == "" {
		return nil, model.NewValidationError("email", "Email is required.")
	}
	if !strings.Contains(input.Email, "@") {
		return nil, model.NewValidationError("email", "Email is not valid.")
	}

	user, err := s.userRepo.FindByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("ユーザーの取得に失敗しました: %w", err)
	}
	if user == nil {
		return nil, model.NewUserNotFoundError(id)
	}

	user.Email = input.Email
	user.DOB = input.DOB
	user.Phone = input.Phone
	user.Country = input.Country

	if err := s.userRepo.Update(ctx, user); err != nil {
		return nil, err
	}

	slog.Info("user profile updated", slog.String("user_id", id))
	return user, nil
}

// Withdraw はユーザーの退会処理を実行する。
// 削除順序: sessions → user（federated_credentialsはCASCADE削除）
func (s *Service) Withdraw(ctx context.Context, userID string) error {
	user, err := s.userRepo.FindByID(ctx, userID)
	if err != nil {
		return fmt.Errorf("ユーザーの取得に失敗しました: %w", err)
	}
	if user == nil {
		return model.NewUserNotFoundError(userID)
	}

	slog.Info("退会処理を開始します", slog.String("user_id", userID))

	// 1. セッションを削除
	if s.sessionRepo != nil {
		if err := s.sessionRepo.DeleteByUserID(ctx, userID); err != nil {
			return fmt.Errorf("セッションの削除に失敗しました: %w", err)
		}
	}

	// 2. ユーザーを削除（federated_credentialsはCASCADE削除）
	if err := s.userRepo.DeleteByID(ctx, userID); err != nil {
		return fmt.Errorf("ユーザーの削除に失敗しました: %w", err)
	}

	slog.Info("退会処理が完了しました", slog.String("user_id", userID))

	return nil
}
