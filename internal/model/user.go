// Package model はドメインモデルを定義する。
package model

import "time"

// ProviderCredential はパスワード認証のプロバイダー種別。
// 現在のエンドポイントで扱うのはこの種別のみ。
const ProviderCredential = "credential"

// User はドキュメントサイトの利用ユーザーを表す。
// emailは全ユーザーで一意（大文字小文字は保存されたまま比較する）。
type User struct {
	ID                  string
	Name                string
	Email               string
	EmailVerified       bool
	Image               *string
	TechnicalBackground *string
	CreatedAt           time.Time
	UpdatedAt           time.Time
}

// Account はユーザーに紐づく認証手段を表す。
// (ProviderID, AccountID) の組は一意。
// OAuth系のトークン列はスキーマ上存在するが、credentialプロバイダーでは使用しない。
type Account struct {
	ID           string
	UserID       string
	AccountID    string
	ProviderID   string
	PasswordHash *string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// Session はログインセッションを表す。
// Tokenは推測不可能な不透明トークンで、Bearerとしてクライアントに渡す。
type Session struct {
	ID        string
	UserID    string
	Token     string
	ExpiresAt time.Time
	IPAddress string
	UserAgent string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// IsActiveAt は指定時刻にセッションが有効かどうかを返す。
// 有効期限が指定時刻より厳密に後の場合のみ有効。
func (s *Session) IsActiveAt(t time.Time) bool {
	return s.ExpiresAt.After(t)
}

// ClientMetadata はセッション発行時に記録するクライアント情報。
type ClientMetadata struct {
	IPAddress string
	UserAgent string
}

// UserCredential はメールアドレス検索で得られるユーザーとパスワードハッシュの組。
type UserCredential struct {
	User         *User
	PasswordHash string
}

// AuthResult はサインアップ・サインイン・セッション取得の結果。
type AuthResult struct {
	User    *User
	Session *Session
}
