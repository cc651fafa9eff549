// Package repository はデータ永続化のインターフェースを定義する。
package repository

import (
	"context"

	"github.com/hitoshi/userhub/internal/model"
)

// UserRepository はユーザーデータの永続化インターフェース。
type UserRepository interface {
	// FindByID は指定IDのユーザーを取得する。見つからない場合はnilを返す。
	FindByID(ctx context.Context, id string) (*model.User, error)

	// FindByUsername はユーザー名でユーザーを検索する。見つからない場合はnilを返す。
	FindByUsername(ctx context.Context, username string) (*model.User, error)

	// ListAll は全ユーザーを登録順で返す。
	ListAll(ctx context.Context) ([]*model.User, error)

	// Create はユーザーを作成する。
	// ユーザー名の一意制約違反の場合はDuplicateUserError（カテゴリduplicate）を返す。
	Create(ctx context.Context, user *model.User) error

	// Update はユーザーのプロフィール項目（email, dob, phone, country）を更新する。
	// パスワードハッシュとユーザー名・IDはこの操作では変更しない。
	// 対象が存在しない場合はUserNotFoundError（カテゴリnot_found）を返す。
	Update(ctx context.Context, user *model.User) error

	// DeleteByID は指定IDのユーザーを削除する。
	// 対象が存在しない場合はUserNotFoundError（カテゴリnot_found）を返す。
	DeleteByID(ctx context.Context, id string) error
}

// SessionRepository はセッションデータの永続化インターフェース。
// フラッシュメッセージとリダイレクト先はセッション行のJSONBカラムに保持し、
// read-and-clearで一度だけ消費する。
type SessionRepository interface {
	// Create はセッションを作成する。
	Create(ctx context.Context, session *model.Session) error

	// FindByID は指定IDのセッションを取得する。期限切れ・未検出の場合はnilを返す。
	FindByID(ctx context.Context, id string) (*model.Session, error)

	// SetUser はセッションに認証済みユーザーIDを紐付ける。
	// ログアウト側はDeleteByIDでセッションごと破棄する。
	SetUser(ctx context.Context, id, userID string) error

	// AppendFlash はフラッシュメッセージを1件追記する。
	AppendFlash(ctx context.Context, id string, kind model.FlashKind, message string) error

	// PopFlashes はフラッシュメッセージを取得し、同時にクリアする。
	PopFlashes(ctx context.Context, id string) (success, errMsgs []string, err error)

	// SetRedirectURL はログイン後に戻るべきURLを記録する。
	SetRedirectURL(ctx context.Context, id, url string) error

	// PopRedirectURL はリダイレクト先URLを取得し、同時にクリアする。
	// 未設定の場合は空文字を返す。
	PopRedirectURL(ctx context.Context, id string) (string, error)

	// DeleteByID は指定IDのセッションを削除する。
	DeleteByID(ctx context.Context, id string) error

	// DeleteByUserID は指定ユーザーの全セッションを削除する。
	DeleteByUserID(ctx context.Context, userID string) error

	// DeleteExpired は期限切れセッションを削除し、削除件数を返す。
	DeleteExpired(ctx context.Context) (int64, error)
}

// FederatedCredentialRepository は外部IdP紐付け情報の永続化インターフェース。
type FederatedCredentialRepository interface {
	// FindByProviderAndSubject はproviderとsubjectで紐付けを検索する。
	// 見つからない場合はnilを返す。
	FindByProviderAndSubject(ctx context.Context, provider, subject string) (*model.FederatedCredential, error)

	// Upsert は紐付けを冪等に保存する。既存の(provider, subject)があれば何もしない。
	Upsert(ctx context.Context, cred *model.FederatedCredential) error

	// ListByUserID は指定ユーザーの紐付け一覧を返す。
	ListByUserID(ctx context.Context, userID string) ([]*model.FederatedCredential, error)
}
