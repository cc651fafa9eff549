// Package model はドメインモデルを定義する。
package model

import "time"

// User は登録ユーザーを表す。
// ローカル認証（ユーザー名+パスワード）とGitHub連携ログインの両方で利用される。
// PasswordHashはbcryptハッシュ（ソルト込み）であり、ビューやレスポンスには決して含めない。
type User struct {
	ID           string
	Username     string
	Email        string
	PasswordHash string
	DOB          string
	Phone        string
	Country      string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// FederatedCredential は外部IdPが発行したアイデンティティの紐付けを表す。
// provider + subject の組み合わせはユニーク。
type FederatedCredential struct {
	ID        string
	UserID    string
	Provider  string
	Subject   string
	Name      string
	CreatedAt time.Time
}
