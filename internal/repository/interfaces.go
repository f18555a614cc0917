// Package repository はデータ永続化のインターフェースを定義する。
package repository

import (
	"context"
	"database/sql"
	"time"

	"github.com/hitoshi/docauth/internal/model"
)

// DefaultQueryTimeout はストア呼び出し1回あたりのデフォルトのタイムアウト。
const DefaultQueryTimeout = 5 * time.Second

// UserRepository はユーザーデータの永続化インターフェース。
type UserRepository interface {
	// Create はユーザーを作成する。emailが重複する場合はErrDuplicateEmailを返す。
	Create(ctx context.Context, user *model.User) error

	// CreateWithCredential はユーザーとcredentialアカウントを同一トランザクションで作成する。
	// どちらかの挿入に失敗した場合はロールバックし、どちらの行も残さない。
	CreateWithCredential(ctx context.Context, user *model.User, account *model.Account) error

	// FindByID は指定IDのユーザーを取得する。見つからない場合はErrNotFoundを返す。
	FindByID(ctx context.Context, id string) (*model.User, error)

	// FindCredentialByEmail はemailに一致するユーザーとcredentialアカウントのパスワードハッシュを取得する。
	// ユーザーまたはcredentialアカウントが存在しない場合はErrNotFoundを返す。
	FindCredentialByEmail(ctx context.Context, email string) (*model.UserCredential, error)
}

// AccountRepository は認証手段（アカウント）の永続化インターフェース。
type AccountRepository interface {
	// CreateCredential はcredentialプロバイダーのアカウントを作成する。
	// (provider_id, account_id) が重複する場合はErrDuplicateAccountを返す。
	CreateCredential(ctx context.Context, account *model.Account) error
}

// SessionRepository はセッションデータの永続化インターフェース。
type SessionRepository interface {
	// Create はセッションを作成する。
	Create(ctx context.Context, session *model.Session) error

	// FindActiveByToken はトークンに一致する有効なセッションとユーザーを取得する。
	// expires_at > now() をクエリ時に判定し、期限切れ・未登録の場合はErrNotFoundを返す。
	FindActiveByToken(ctx context.Context, token string) (*model.Session, *model.User, error)

	// DeleteByToken はトークンに一致するセッションを削除する。
	// 該当がなくてもエラーにしない。
	DeleteByToken(ctx context.Context, token string) error

	// DeleteExpired は有効期限がbefore以前のセッションを削除し、削除件数を返す。
	DeleteExpired(ctx context.Context, before time.Time) (int64, error)
}

// DBTX は*sql.DBと*sql.Txの共通部分。
// 同じ挿入処理をトランザクション内外で使い回すために使用する。
type DBTX interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// withTimeout はストア呼び出し用のタイムアウト付きコンテキストを返す。
// dが0以下の場合はDefaultQueryTimeoutを使用する。
func withTimeout(ctx context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	if d <= 0 {
		d = DefaultQueryTimeout
	}
	return context.WithTimeout(ctx, d)
}
