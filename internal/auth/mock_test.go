package auth

import (
	"context"
	"sync"
	"testing"
	"time"

	"go.uber.org/goleak"

	"github.com/hitoshi/docauth/internal/metrics"
	"github.com/hitoshi/docauth/internal/model"
	"github.com/hitoshi/docauth/internal/repository"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

// --- モック定義 ---

type mockUserRepo struct {
	createFn                func(ctx context.Context, user *model.User) error
	createWithCredentialFn  func(ctx context.Context, user *model.User, account *model.Account) error
	findByIDFn              func(ctx context.Context, id string) (*model.User, error)
	findCredentialByEmailFn func(ctx context.Context, email string) (*model.UserCredential, error)
}

func (m *mockUserRepo) Create(ctx context.Context, user *model.User) error {
	if m.createFn != nil {
		return m.createFn(ctx, user)
	}
	return nil
}

func (m *mockUserRepo) CreateWithCredential(ctx context.Context, user *model.User, account *model.Account) error {
	if m.createWithCredentialFn != nil {
		return m.createWithCredentialFn(ctx, user, account)
	}
	return nil
}

func (m *mockUserRepo) FindByID(ctx context.Context, id string) (*model.User, error) {
	if m.findByIDFn != nil {
		return m.findByIDFn(ctx, id)
	}
	return nil, repository.ErrNotFound
}

func (m *mockUserRepo) FindCredentialByEmail(ctx context.Context, email string) (*model.UserCredential, error) {
	if m.findCredentialByEmailFn != nil {
		return m.findCredentialByEmailFn(ctx, email)
	}
	return nil, repository.ErrNotFound
}

type mockSessionRepo struct {
	createFn            func(ctx context.Context, session *model.Session) error
	findActiveByTokenFn func(ctx context.Context, token string) (*model.Session, *model.User, error)
	deleteByTokenFn     func(ctx context.Context, token string) error
	deleteExpiredFn     func(ctx context.Context, before time.Time) (int64, error)
}

func (m *mockSessionRepo) Create(ctx context.Context, session *model.Session) error {
	if m.createFn != nil {
		return m.createFn(ctx, session)
	}
	return nil
}

func (m *mockSessionRepo) FindActiveByToken(ctx context.Context, token string) (*model.Session, *model.User, error) {
	if m.findActiveByTokenFn != nil {
		return m.findActiveByTokenFn(ctx, token)
	}
	return nil, nil, repository.ErrNotFound
}

func (m *mockSessionRepo) DeleteByToken(ctx context.Context, token string) error {
	if m.deleteByTokenFn != nil {
		return m.deleteByTokenFn(ctx, token)
	}
	return nil
}

func (m *mockSessionRepo) DeleteExpired(ctx context.Context, before time.Time) (int64, error) {
	if m.deleteExpiredFn != nil {
		return m.deleteExpiredFn(ctx, before)
	}
	return 0, nil
}

// fakeHasher は"hashed:"接頭辞を付けるだけの高速なハッシュ実装。
type fakeHasher struct {
	hashErr error

	mu       sync.Mutex
	verified []string
}

func (h *fakeHasher) Hash(plaintext string) (string, error) {
	if h.hashErr != nil {
		return "", h.hashErr
	}
	if len(plaintext) > maxPasswordBytes {
		return "", ErrPasswordTooLong
	}
	return "hashed:" + plaintext, nil
}

func (h *fakeHasher) Verify(plaintext, hash string) bool {
	h.mu.Lock()
	h.verified = append(h.verified, hash)
	h.mu.Unlock()
	return hash != "" && hash == "hashed:"+plaintext
}

// recordingMetrics は記録された認証結果を保持する。
type recordingMetrics struct {
	mu       sync.Mutex
	outcomes []string
}

func (r *recordingMetrics) RecordAuthOutcome(operation, result string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.outcomes = append(r.outcomes, operation+"/"+result)
}

func (r *recordingMetrics) RecordHTTPStatus(int)               {}
func (r *recordingMetrics) RecordRequestLatency(time.Duration) {}

func (r *recordingMetrics) last() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.outcomes) == 0 {
		return ""
	}
	return r.outcomes[len(r.outcomes)-1]
}

// --- compile-time interface checks ---
var _ repository.UserRepository = (*mockUserRepo)(nil)
var _ repository.SessionRepository = (*mockSessionRepo)(nil)
var _ PasswordHasher = (*fakeHasher)(nil)
var _ metrics.MetricsCollector = (*recordingMetrics)(nil)
