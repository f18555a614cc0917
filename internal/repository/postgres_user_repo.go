package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/hitoshi/docauth/internal/model"
)

// PostgresUserRepo はPostgreSQLを使用したユーザーリポジトリ。
type PostgresUserRepo struct {
	db      *sql.DB
	timeout time.Duration
}

// NewPostgresUserRepo はPostgresUserRepoを生成する。
// timeoutは1回のストア呼び出しに許容する時間で、0以下ならDefaultQueryTimeoutを使う。
func NewPostgresUserRepo(db *sql.DB, timeout time.Duration) *PostgresUserRepo {
	return &PostgresUserRepo{db: db, timeout: timeout}
}

// Create はユーザーを作成する。emailが重複する場合はErrDuplicateEmailを返す。
func (r *PostgresUserRepo) Create(ctx context.Context, user *model.User) error {
	ctx, cancel := withTimeout(ctx, r.timeout)
	defer cancel()

	return insertUser(ctx, r.db, user)
}

// CreateWithCredential はユーザーとcredentialアカウントを同一トランザクションで作成する。
func (r *PostgresUserRepo) CreateWithCredential(ctx context.Context, user *model.User, account *model.Account) error {
	ctx, cancel := withTimeout(ctx, r.timeout)
	defer cancel()

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return classifyError("failed to begin transaction", err)
	}
	defer tx.Rollback()

	if err := insertUser(ctx, tx, user); err != nil {
		return err
	}

	if err := insertAccount(ctx, tx, account); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return classifyError("failed to commit transaction", err)
	}

	return nil
}

// FindByID は指定IDのユーザーを取得する。見つからない場合はErrNotFoundを返す。
func (r *PostgresUserRepo) FindByID(ctx context.Context, id string) (*model.User, error) {
	ctx, cancel := withTimeout(ctx, r.timeout)
	defer cancel()

	user := &model.User{}
	err := r.db.QueryRowContext(ctx,
		`SELECT id, name, email, email_verified, image, technical_background, created_at, updated_at
		 FROM "user"
		 WHERE id = $1`,
		id,
	).Scan(userScanDest(user)...)

	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, classifyError("failed to find user by ID", err)
	}

	return user, nil
}

// FindCredentialByEmail はemailに一致するユーザーとcredentialアカウントのパスワードハッシュを取得する。
func (r *PostgresUserRepo) FindCredentialByEmail(ctx context.Context, email string) (*model.UserCredential, error) {
	ctx, cancel := withTimeout(ctx, r.timeout)
	defer cancel()

	user := &model.User{}
	var passwordHash sql.NullString
	dest := append(userScanDest(user), &passwordHash)

	err := r.db.QueryRowContext(ctx,
		`SELECT u.id, u.name, u.email, u.email_verified, u.image, u.technical_background, u.created_at, u.updated_at,
		        a.password
		 FROM "user" u
		 JOIN account a ON a.user_id = u.id
		 WHERE u.email = $1 AND a.provider_id = $2`,
		email, model.ProviderCredential,
	).Scan(dest...)

	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, classifyError("failed to find credential by email", err)
	}

	return &model.UserCredential{
		User:         user,
		PasswordHash: passwordHash.String,
	}, nil
}

// insertUser はusersテーブルに1行挿入する。*sql.DBと*sql.Txのどちらでも使用できる。
func insertUser(ctx context.Context, q DBTX, user *model.User) error {
	_, err := q.ExecContext(ctx,
		`INSERT INTO "user" (id, name, email, email_verified, image, technical_background, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		user.ID, user.Name, user.Email, user.EmailVerified, user.Image, user.TechnicalBackground,
		user.CreatedAt, user.UpdatedAt,
	)
	return classifyError("failed to insert user", err)
}

// userScanDest はusersテーブルのSELECT列に対応するScan先を返す。
func userScanDest(user *model.User) []any {
	return []any{
		&user.ID, &user.Name, &user.Email, &user.EmailVerified,
		&user.Image, &user.TechnicalBackground, &user.CreatedAt, &user.UpdatedAt,
	}
}

// compile-time interface check
var _ UserRepository = (*PostgresUserRepo)(nil)
