package repository

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"fmt"
	"net"

	"github.com/jackc/pgerrcode"
	"github.com/lib/pq"
)

// ストア層のエラー種別。呼び出し側はerrors.Isで判定する。
var (
	ErrNotFound         = errors.New("record not found")
	ErrDuplicateEmail   = errors.New("duplicate email")
	ErrDuplicateAccount = errors.New("duplicate account")
	ErrDuplicateToken   = errors.New("duplicate session token")
	ErrStoreUnavailable = errors.New("store unavailable")
)

// マイグレーションで定義した一意制約名。
const (
	constraintUserEmail       = "user_email_key"
	constraintAccountProvider = "account_provider_account_key"
	constraintSessionToken    = "session_token_key"
)

// classifyError はドライバのエラーをストア層のエラー種別に分類する。
// 元のエラーはチェーンに残すため、errors.Isで種別と原因の両方を判定できる。
func classifyError(op string, err error) error {
	if err == nil {
		return nil
	}

	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		code := string(pqErr.Code)
		switch {
		case code == pgerrcode.UniqueViolation:
			return fmt.Errorf("%s: %w: %w", op, duplicateKind(pqErr), err)
		case pgerrcode.IsConnectionException(code),
			pgerrcode.IsInsufficientResources(code),
			pgerrcode.IsOperatorIntervention(code):
			return fmt.Errorf("%s: %w: %w", op, ErrStoreUnavailable, err)
		}
		return fmt.Errorf("%s: %w", op, err)
	}

	if isUnavailable(err) {
		return fmt.Errorf("%s: %w: %w", op, ErrStoreUnavailable, err)
	}

	return fmt.Errorf("%s: %w", op, err)
}

// duplicateKind は一意制約名から重複の種別を判定する。
// 制約名が不明な場合はテーブル名で判定する。
func duplicateKind(pqErr *pq.Error) error {
	switch pqErr.Constraint {
	case constraintUserEmail:
		return ErrDuplicateEmail
	case constraintAccountProvider:
		return ErrDuplicateAccount
	case constraintSessionToken:
		return ErrDuplicateToken
	}

	switch pqErr.Table {
	case "user":
		return ErrDuplicateEmail
	case "session":
		return ErrDuplicateToken
	default:
		return ErrDuplicateAccount
	}
}

// isUnavailable は接続断・タイムアウトなどインフラ起因のエラーかどうかを返す。
func isUnavailable(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) ||
		errors.Is(err, context.Canceled) ||
		errors.Is(err, driver.ErrBadConn) ||
		errors.Is(err, sql.ErrConnDone) {
		return true
	}

	var netErr net.Error
	return errors.As(err, &netErr)
}
