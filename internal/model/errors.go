package model

import (
	"errors"
	"fmt"
)

// AppError は統一エラーフォーマットを表す。
// ハンドラーはCategoryを見てレスポンス（フォーム再描画、404、リダイレクト等）を決める。
type AppError struct {
	Code     string // エラーコード
	Message  string // ユーザー向けメッセージ
	Category string // カテゴリ: validation, auth, duplicate, not_found, forbidden, upstream, system
	Field    string // 入力エラーの対象フィールド（任意）
}

// Error はerrorインターフェースを実装する。
func (e *AppError) Error() string {
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// 定義済みエラーコード
const (
	ErrCodeInvalidInput   = "INVALID_INPUT"
	ErrCodeInvalidCreds   = "INVALID_CREDENTIALS"
	ErrCodeDuplicateUser  = "DUPLICATE_USER"
	ErrCodeUserNotFound   = "USER_NOT_FOUND"
	ErrCodeForbidden      = "FORBIDDEN"
	ErrCodeNewsFetch      = "NEWS_FETCH_FAILED"
)

// カテゴリ定数
const (
	CategoryValidation = "validation"
	CategoryAuth       = "auth"
	CategoryDuplicate  = "duplicate"
	CategoryNotFound   = "not_found"
	CategoryForbidden  = "forbidden"
	CategoryUpstream   = "upstream"
	CategorySystem     = "system"
)

// NewValidationError は入力検証エラーを生成する。
// fieldにはフォーム上の対象フィールド名を指定する。
func NewValidationError(field, message string) *AppError {
	return &AppError{
		Code:     ErrCodeInvalidInput,
		Message:  message,
		Category: CategoryValidation,
		Field:    field,
	}
}

// NewAuthenticationError は認証失敗エラーを生成する。
// ユーザー不在とパスワード不一致を区別しない固定メッセージを使う
// （ユーザー列挙攻撃への対策）。
func NewAuthenticationError() *AppError {
	return &AppError{
		Code:     ErrCodeInvalidCreds,
		Message:  "Invalid username or password.",
		Category: CategoryAuth,
	}
}

// NewDuplicateUserError はユーザー名の一意性違反エラーを生成する。
func NewDuplicateUserError(username string) *AppError {
	return &AppError{
		Code:     ErrCodeDuplicateUser,
		Message:  fmt.Sprintf("A user with the given username is already registered: %s", username),
		Category: CategoryDuplicate,
		Field:    "username",
	}
}

// NewUserNotFoundError はユーザー未検出エラーを生成する。
func NewUserNotFoundError(id string) *AppError {
	return &AppError{
		Code:     ErrCodeUserNotFound,
		Message:  fmt.Sprintf("user not found: %s", id),
		Category: CategoryNotFound,
	}
}

// NewForbiddenError は所有権チェック失敗エラーを生成する。
func NewForbiddenError() *AppError {
	return &AppError{
		Code:     ErrCodeForbidden,
		Message:  "To edit/delete you must be the one who registered.",
		Category: CategoryForbidden,
	}
}

// NewUpstreamError は外部API呼び出し失敗エラーを生成する。
// 上流の詳細はログにのみ残し、ユーザーには一般的なメッセージを返す。
func NewUpstreamError() *AppError {
	return &AppError{
		Code:     ErrCodeNewsFetch,
		Message:  "Error fetching news",
		Category: CategoryUpstream,
	}
}

// CategoryOf はエラーのAppErrorカテゴリを返す。
// AppErrorでない場合はsystemとして扱う。
func CategoryOf(err error) string {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Category
	}
	return CategorySystem
}
