package repository

import (
	"context"
	"database/sql"
	"time"

	"github.com/hitoshi/docauth/internal/model"
)

// PostgresAccountRepo はPostgreSQLを使用したアカウントリポジトリ。
type PostgresAccountRepo struct {
	db      *sql.DB
	timeout time.Duration
}

// NewPostgresAccountRepo はPostgresAccountRepoを生成する。
func NewPostgresAccountRepo(db *sql.DB, timeout time.Duration) *PostgresAccountRepo {
	return &PostgresAccountRepo{db: db, timeout: timeout}
}

// CreateCredential はcredentialプロバイダーのアカウントを作成する。
// ProviderIDが未設定の場合はcredentialを補う。
func (r *PostgresAccountRepo) CreateCredential(ctx context.Context, account *model.Account) error {
	ctx, cancel := withTimeout(ctx, r.timeout)
	defer cancel()

	return insertAccount(ctx, r.db, account)
}

// insertAccount はaccountテーブルに1行挿入する。
func insertAccount(ctx context.Context, q DBTX, account *model.Account) error {
	if account.ProviderID == "" {
		account.ProviderID = model.ProviderCredential
	}

	_, err := q.ExecContext(ctx,
		`INSERT INTO account (id, user_id, account_id, provider_id, password, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		account.ID, account.UserID, account.AccountID, account.ProviderID, account.PasswordHash,
		account.CreatedAt, account.UpdatedAt,
	)
	return classifyError("failed to insert account", err)
}

// compile-time interface check
var _ AccountRepository = (*PostgresAccountRepo)(nil)
