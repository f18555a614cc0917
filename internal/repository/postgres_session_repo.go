package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/hitoshi/docauth/internal/model"
)

// PostgresSessionRepo はPostgreSQLを使用したセッションリポジトリ。
type PostgresSessionRepo struct {
	db      *sql.DB
	timeout time.Duration
}

// NewPostgresSessionRepo はPostgresSessionRepoを生成する。
func NewPostgresSessionRepo(db *sql.DB, timeout time.Duration) *PostgresSessionRepo {
	return &PostgresSessionRepo{db: db, timeout: timeout}
}

// Create はセッションを作成する。
func (r *PostgresSessionRepo) Create(ctx context.Context, session *model.Session) error {
	ctx, cancel := withTimeout(ctx, r.timeout)
	defer cancel()

	_, err := r.db.ExecContext(ctx,
		`INSERT INTO session (id, user_id, token, expires_at, ip_address, user_agent, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		session.ID, session.UserID, session.Token, session.ExpiresAt,
		nullString(session.IPAddress), nullString(session.UserAgent),
		session.CreatedAt, session.UpdatedAt,
	)
	return classifyError("failed to create session", err)
}

// FindActiveByToken はトークンに一致する有効なセッションとユーザーを取得する。
// 期限切れの行が残っていても返さない。
func (r *PostgresSessionRepo) FindActiveByToken(ctx context.Context, token string) (*model.Session, *model.User, error) {
	ctx, cancel := withTimeout(ctx, r.timeout)
	defer cancel()

	session := &model.Session{}
	user := &model.User{}
	var ipAddress, userAgent sql.NullString

	dest := []any{
		&session.ID, &session.UserID, &session.Token, &session.ExpiresAt,
		&ipAddress, &userAgent, &session.CreatedAt, &session.UpdatedAt,
	}
	dest = append(dest, userScanDest(user)...)

	err := r.db.QueryRowContext(ctx,
		`SELECT s.id, s.user_id, s.token, s.expires_at, s.ip_address, s.user_agent, s.created_at, s.updated_at,
		        u.id, u.name, u.email, u.email_verified, u.image, u.technical_background, u.created_at, u.updated_at
		 FROM session s
		 JOIN "user" u ON u.id = s.user_id
		 WHERE s.token = $1 AND s.expires_at > now()`,
		token,
	).Scan(dest...)

	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil, ErrNotFound
	}
	if err != nil {
		return nil, nil, classifyError("failed to find session", err)
	}

	session.IPAddress = ipAddress.String
	session.UserAgent = userAgent.String
	return session, user, nil
}

// DeleteByToken はトークンに一致するセッションを削除する。
func (r *PostgresSessionRepo) DeleteByToken(ctx context.Context, token string) error {
	ctx, cancel := withTimeout(ctx, r.timeout)
	defer cancel()

	_, err := r.db.ExecContext(ctx,
		`DELETE FROM session WHERE token = $1`,
		token,
	)
	return classifyError("failed to delete session", err)
}

// DeleteExpired は有効期限がbefore以前のセッションを削除し、削除件数を返す。
func (r *PostgresSessionRepo) DeleteExpired(ctx context.Context, before time.Time) (int64, error) {
	ctx, cancel := withTimeout(ctx, r.timeout)
	defer cancel()

	result, err := r.db.ExecContext(ctx,
		`DELETE FROM session WHERE expires_at <= $1`,
		before,
	)
	if err != nil {
		return 0, classifyError("failed to delete expired sessions", err)
	}

	deleted, err := result.RowsAffected()
	if err != nil {
		return 0, classifyError("failed to get rows affected", err)
	}
	return deleted, nil
}

// nullString は空文字列をNULLとして保存するための変換を行う。
func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

// compile-time interface check
var _ SessionRepository = (*PostgresSessionRepo)(nil)
