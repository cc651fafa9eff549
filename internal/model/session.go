package model

import "time"

// Session はブラウザ1つ分の認証コンテキストを表す。
// IDは不透明なランダム値で、Cookie経由でクライアントが保持する。
// UserIDが空の場合は匿名セッション。参照先ユーザーが削除済みの場合も
// 匿名として扱う（弱参照）。
type Session struct {
	ID        string
	UserID    string // 空文字は匿名
	Data      SessionData
	ExpiresAt time.Time
	CreatedAt time.Time
}

// SessionData はセッションに紐付く一時状態を表す。
// フラッシュメッセージとリダイレクト先はread-and-clearで一度だけ消費される。
type SessionData struct {
	Success     []string `json:"success,omitempty"`
	Error       []string `json:"error,omitempty"`
	RedirectURL string   `json:"redirect_url,omitempty"`
}

// IsEmpty はセッションデータが空かどうかを返す。
func (d *SessionData) IsEmpty() bool {
	return len(d.Success) == 0 && len(d.Error) == 0 && d.RedirectURL == ""
}

// FlashKind はフラッシュメッセージの種別を表す。
type FlashKind string

const (
	FlashSuccess FlashKind = "success"
	FlashError   FlashKind = "error"
)
