package repository

import (
	"context"
	"database/sql/driver"
	"errors"
	"fmt"
	"net"
	"testing"

	"github.com/lib/pq"
)

func TestClassifyError_Nil_ReturnsNil(t *testing.T) {
	if err := classifyError("op", nil); err != nil {
		t.Errorf("classifyError(nil) = %v, want nil", err)
	}
}

func TestClassifyError_UniqueViolation(t *testing.T) {
	tests := []struct {
		name       string
		constraint string
		table      string
		want       error
	}{
		{name: "user email", constraint: "user_email_key", table: "user", want: ErrDuplicateEmail},
		{name: "account provider", constraint: "account_provider_account_key", table: "account", want: ErrDuplicateAccount},
		{name: "session token", constraint: "session_token_key", table: "session", want: ErrDuplicateToken},
		{name: "unknown constraint on user", constraint: "legacy_email_idx", table: "user", want: ErrDuplicateEmail},
		{name: "unknown constraint on account", constraint: "account_provider_id_account_id_key", table: "account", want: ErrDuplicateAccount},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			pqErr := &pq.Error{Code: "23505", Constraint: tt.constraint, Table: tt.table}

			err := classifyError("failed to insert", pqErr)

			if !errors.Is(err, tt.want) {
				t.Errorf("classifyError() = %v, want errors.Is(%v)", err, tt.want)
			}
			// 元のドライバエラーもチェーンに残ること
			var got *pq.Error
			if !errors.As(err, &got) {
				t.Error("expected *pq.Error to remain in the error chain")
			}
			if errors.Is(err, ErrStoreUnavailable) {
				t.Error("unique violation should not be classified as store unavailable")
			}
		})
	}
}

func TestClassifyError_ConnectionException_IsUnavailable(t *testing.T) {
	for _, code := range []pq.ErrorCode{"08006", "53300", "57P01"} {
		t.Run(string(code), func(t *testing.T) {
			err := classifyError("op", &pq.Error{Code: code})
			if !errors.Is(err, ErrStoreUnavailable) {
				t.Errorf("code %s: expected ErrStoreUnavailable, got %v", code, err)
			}
		})
	}
}

func TestClassifyError_InfrastructureErrors_AreUnavailable(t *testing.T) {
	tests := []struct {
		name string
		err  error
	}{
		{"deadline", context.DeadlineExceeded},
		{"wrapped deadline", fmt.Errorf("query: %w", context.DeadlineExceeded)},
		{"canceled", context.Canceled},
		{"bad conn", driver.ErrBadConn},
		{"net error", &net.OpError{Op: "dial", Net: "tcp", Err: errors.New("connection refused")}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := classifyError("op", tt.err); !errors.Is(err, ErrStoreUnavailable) {
				t.Errorf("expected ErrStoreUnavailable, got %v", err)
			}
		})
	}
}

func TestClassifyError_OtherErrors_AreWrappedOnly(t *testing.T) {
	base := errors.New("syntax error")
	err := classifyError("op", base)

	if !errors.Is(err, base) {
		t.Errorf("expected original error in chain, got %v", err)
	}
	for _, kind := range []error{ErrStoreUnavailable, ErrDuplicateEmail, ErrDuplicateAccount, ErrNotFound} {
		if errors.Is(err, kind) {
			t.Errorf("unexpected classification %v", kind)
		}
	}
}

func TestClassifyError_UndefinedTable_IsNotDuplicate(t *testing.T) {
	err := classifyError("op", &pq.Error{Code: "42P01"})
	if errors.Is(err, ErrDuplicateEmail) || errors.Is(err, ErrStoreUnavailable) {
		t.Errorf("unexpected classification: %v", err)
	}
}
