package auth

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/hitoshi/docauth/internal/model"
	"github.com/hitoshi/docauth/internal/repository"
)

// DefaultSessionMaxAge はセッションのデフォルトの有効期間（7日）。
const DefaultSessionMaxAge = 7 * 24 * time.Hour

// tokenBytes はセッショントークンの乱数バイト数。
const tokenBytes = 32

// maxIssueAttempts はトークン衝突時に発行を再試行する上限回数。
const maxIssueAttempts = 3

// ErrInvalidOrExpiredSession はトークンが空・未登録・期限切れ・失効済みの場合のエラー。
// 理由は区別しない。
var ErrInvalidOrExpiredSession = errors.New("invalid or expired session")

// SessionManager は不透明トークンによるセッションの発行・検証・失効を行う。
type SessionManager struct {
	repo     repository.SessionRepository
	maxAge   time.Duration
	clock    func() time.Time
	newToken func() (string, error)
}

// SessionOption はSessionManagerの設定を変更する。
type SessionOption func(*SessionManager)

// WithClock は現在時刻の取得関数を差し替える。
func WithClock(clock func() time.Time) SessionOption {
	return func(m *SessionManager) {
		m.clock = clock
	}
}

// WithTokenGenerator はトークン生成関数を差し替える。
func WithTokenGenerator(gen func() (string, error)) SessionOption {
	return func(m *SessionManager) {
		m.newToken = gen
	}
}

// NewSessionManager はSessionManagerを生成する。
// maxAgeが0以下の場合はDefaultSessionMaxAgeを使用する。
func NewSessionManager(repo repository.SessionRepository, maxAge time.Duration, opts ...SessionOption) *SessionManager {
	if maxAge <= 0 {
		maxAge = DefaultSessionMaxAge
	}
	m := &SessionManager{
		repo:     repo,
		maxAge:   maxAge,
		clock:    time.Now,
		newToken: generateToken,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// MaxAge はセッションの有効期間を返す。
func (m *SessionManager) MaxAge() time.Duration {
	return m.maxAge
}

// Issue は新しいセッションを発行し永続化する。
// 既存のセッションには触れない。
func (m *SessionManager) Issue(ctx context.Context, userID string, meta model.ClientMetadata) (*model.Session, error) {
	var lastErr error
	for attempt := 0; attempt < maxIssueAttempts; attempt++ {
		token, err := m.newToken()
		if err != nil {
			return nil, fmt.Errorf("failed to generate session token: %w", err)
		}

		now := m.clock()
		session := &model.Session{
			ID:        uuid.New().String(),
			UserID:    userID,
			Token:     token,
			ExpiresAt: now.Add(m.maxAge),
			IPAddress: meta.IPAddress,
			UserAgent: meta.UserAgent,
			CreatedAt: now,
			UpdatedAt: now,
		}

		err = m.repo.Create(ctx, session)
		if err == nil {
			return session, nil
		}
		if !errors.Is(err, repository.ErrDuplicateToken) {
			return nil, fmt.Errorf("failed to save session: %w", err)
		}
		lastErr = err
	}
	return nil, fmt.Errorf("failed to save session after %d attempts: %w", maxIssueAttempts, lastErr)
}

// Validate はトークンに対応する有効なセッションとユーザーを返す。
// 空・未登録・期限切れのトークンはErrInvalidOrExpiredSessionを返す。
func (m *SessionManager) Validate(ctx context.Context, token string) (*model.User, *model.Session, error) {
	if token == "" {
		return nil, nil, ErrInvalidOrExpiredSession
	}

	session, user, err := m.repo.FindActiveByToken(ctx, token)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, nil, ErrInvalidOrExpiredSession
	}
	if err != nil {
		return nil, nil, fmt.Errorf("failed to find session: %w", err)
	}

	// DBとアプリケーションの時計のずれで期限切れを見逃さないよう、こちらでも判定する
	if !session.IsActiveAt(m.clock()) {
		return nil, nil, ErrInvalidOrExpiredSession
	}

	return user, session, nil
}

// Revoke はトークンに対応するセッションを失効させる。
// 空トークンや未登録トークンでもエラーにしない。
func (m *SessionManager) Revoke(ctx context.Context, token string) error {
	if token == "" {
		return nil
	}
	if err := m.repo.DeleteByToken(ctx, token); err != nil {
		return fmt.Errorf("failed to delete session: %w", err)
	}
	return nil
}

// generateToken は暗号的に安全なセッショントークンを生成する。
func generateToken() (string, error) {
	b := make([]byte, tokenBytes)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}
