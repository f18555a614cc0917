// Package auth はパスワード認証、セッション管理を提供する。
package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/hitoshi/docauth/internal/metrics"
	"github.com/hitoshi/docauth/internal/model"
	"github.com/hitoshi/docauth/internal/repository"
)

// 認証操作名。メトリクスのラベルとログに使用する。
const (
	OpSignup     = "signup"
	OpSignin     = "signin"
	OpSignout    = "signout"
	OpGetSession = "get_session"
)

// fallbackTimingHash はダミーハッシュを生成できなかった場合に照合に使うbcryptハッシュ（cost 10）。
const fallbackTimingHash = "$2a$10$N9qo8uLOickgx2ZMRZoMyeIjZAgcfl7p92ldGxad68LJZdL17lhWy"

// SignupInput はサインアップの入力を表す。
type SignupInput struct {
	Name                string
	Email               string
	Password            string
	TechnicalBackground string
}

// Service は認証に関するビジネスロジックを提供する。
// 下位層のエラーを*model.APIErrorに変換するのはこの層のみ。
type Service struct {
	userRepo repository.UserRepository
	hasher   PasswordHasher
	sessions *SessionManager
	metrics  metrics.MetricsCollector
	clock    func() time.Time

	dummyHashOnce sync.Once
	dummyHash     string
}

// NewService はServiceを生成する。collectorがnilの場合はメトリクスを記録しない。
func NewService(
	userRepo repository.UserRepository,
	hasher PasswordHasher,
	sessions *SessionManager,
	collector metrics.MetricsCollector,
) *Service {
	if collector == nil {
		collector = metrics.Nop{}
	}
	return &Service{
		userRepo: userRepo,
		hasher:   hasher,
		sessions: sessions,
		metrics:  collector,
		clock:    time.Now,
	}
}

// Signup はユーザーとcredentialアカウントを作成し、セッションを発行する。
// ユーザーとアカウントは同一トランザクションで作成される。
func (s *Service) Signup(ctx context.Context, in SignupInput, meta model.ClientMetadata) (*model.AuthResult, error) {
	name := strings.TrimSpace(in.Name)
	email := strings.TrimSpace(in.Email)
	background := strings.TrimSpace(in.TechnicalBackground)

	var missing []string
	if name == "" {
		missing = append(missing, "name")
	}
	if email == "" {
		missing = append(missing, "email")
	}
	if strings.TrimSpace(in.Password) == "" {
		missing = append(missing, "password")
	}
	if background == "" {
		missing = append(missing, "technicalBackground")
	}
	if len(missing) > 0 {
		s.metrics.RecordAuthOutcome(OpSignup, metrics.ResultFailure)
		return nil, model.NewMissingFieldError(missing...)
	}

	hash, err := s.hasher.Hash(in.Password)
	if errors.Is(err, ErrPasswordTooLong) {
		s.metrics.RecordAuthOutcome(OpSignup, metrics.ResultFailure)
		return nil, model.NewPasswordTooLongError()
	}
	if err != nil {
		return nil, s.internalError(OpSignup, err)
	}

	now := s.clock()
	user := &model.User{
		ID:                  uuid.New().String(),
		Name:                name,
		Email:               email,
		TechnicalBackground: &background,
		CreatedAt:           now,
		UpdatedAt:           now,
	}
	account := &model.Account{
		ID:           uuid.New().String(),
		UserID:       user.ID,
		AccountID:    email,
		ProviderID:   model.ProviderCredential,
		PasswordHash: &hash,
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	err = s.userRepo.CreateWithCredential(ctx, user, account)
	if errors.Is(err, repository.ErrDuplicateEmail) || errors.Is(err, repository.ErrDuplicateAccount) {
		s.metrics.RecordAuthOutcome(OpSignup, metrics.ResultFailure)
		return nil, model.NewEmailAlreadyExistsError()
	}
	if err != nil {
		return nil, s.internalError(OpSignup, fmt.Errorf("failed to create user and account: %w", err))
	}

	session, err := s.sessions.Issue(ctx, user.ID, meta)
	if err != nil {
		return nil, s.internalError(OpSignup, err)
	}

	s.metrics.RecordAuthOutcome(OpSignup, metrics.ResultSuccess)
	slog.Info("user signed up",
		slog.String("user_id", user.ID),
		slog.String("session_id", session.ID),
	)

	return &model.AuthResult{User: user, Session: session}, nil
}

// Signin はメールアドレスとパスワードを照合し、新しいセッションを発行する。
// メールアドレス未登録とパスワード不一致は同一のエラーを返す。
func (s *Service) Signin(ctx context.Context, email, password string, meta model.ClientMetadata) (*model.AuthResult, error) {
	email = strings.TrimSpace(email)

	var missing []string
	if email == "" {
		missing = append(missing, "email")
	}
	if strings.TrimSpace(password) == "" {
		missing = append(missing, "password")
	}
	if len(missing) > 0 {
		s.metrics.RecordAuthOutcome(OpSignin, metrics.ResultFailure)
		return nil, model.NewMissingFieldError(missing...)
	}

	cred, err := s.userRepo.FindCredentialByEmail(ctx, email)
	if errors.Is(err, repository.ErrNotFound) {
		// 未登録の場合も照合を1回行い、応答時間を揃える
		s.hasher.Verify(password, s.timingHash())
		s.metrics.RecordAuthOutcome(OpSignin, metrics.ResultFailure)
		return nil, model.NewInvalidCredentialsError()
	}
	if err != nil {
		return nil, s.internalError(OpSignin, fmt.Errorf("failed to find credential: %w", err))
	}

	if !s.hasher.Verify(password, cred.PasswordHash) {
		s.metrics.RecordAuthOutcome(OpSignin, metrics.ResultFailure)
		return nil, model.NewInvalidCredentialsError()
	}

	session, err := s.sessions.Issue(ctx, cred.User.ID, meta)
	if err != nil {
		return nil, s.internalError(OpSignin, err)
	}

	s.metrics.RecordAuthOutcome(OpSignin, metrics.ResultSuccess)
	slog.Info("user signed in",
		slog.String("user_id", cred.User.ID),
		slog.String("session_id", session.ID),
	)

	return &model.AuthResult{User: cred.User, Session: session}, nil
}

// Signout はトークンに対応するセッションを失効させる。
// トークンが空・未登録の場合や、ストア障害の場合も成功として扱う。
func (s *Service) Signout(ctx context.Context, token string) error {
	if err := s.sessions.Revoke(ctx, token); err != nil {
		s.metrics.RecordAuthOutcome(OpSignout, metrics.ResultError)
		slog.Warn("failed to revoke session",
			slog.String("error", err.Error()),
		)
		return nil
	}

	s.metrics.RecordAuthOutcome(OpSignout, metrics.ResultSuccess)
	if token != "" {
		slog.Info("session revoked")
	}
	return nil
}

// GetSession はトークンに対応するユーザーとセッションを返す。
func (s *Service) GetSession(ctx context.Context, token string) (*model.AuthResult, error) {
	user, session, err := s.sessions.Validate(ctx, token)
	if errors.Is(err, ErrInvalidOrExpiredSession) {
		s.metrics.RecordAuthOutcome(OpGetSession, metrics.ResultFailure)
		return nil, model.NewUnauthorizedError()
	}
	if err != nil {
		return nil, s.internalError(OpGetSession, err)
	}

	s.metrics.RecordAuthOutcome(OpGetSession, metrics.ResultSuccess)
	return &model.AuthResult{User: user, Session: session}, nil
}

// internalError はストア障害などの想定外のエラーを記録し、STORE_UNAVAILABLEに変換する。
func (s *Service) internalError(op string, err error) *model.APIError {
	s.metrics.RecordAuthOutcome(op, metrics.ResultError)
	slog.Error("auth operation failed",
		slog.String("operation", op),
		slog.Bool("store_unavailable", errors.Is(err, repository.ErrStoreUnavailable)),
		slog.String("error", err.Error()),
	)
	return model.NewStoreUnavailableError(err)
}

// timingHash は未登録メールアドレスの照合に使うハッシュを返す。
func (s *Service) timingHash() string {
	s.dummyHashOnce.Do(func() {
		hash, err := s.hasher.Hash(uuid.New().String())
		if err != nil {
			slog.Warn("failed to generate timing hash, using fallback",
				slog.String("error", err.Error()),
			)
			hash = fallbackTimingHash
		}
		s.dummyHash = hash
	})
	return s.dummyHash
}
