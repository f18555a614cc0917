// Package model はドメインモデルを定義する。
package model

import (
	"fmt"
	"strings"
)

// APIError は認証APIの統一エラーフォーマットを表す。
// Codeはクライアントが分岐に使う安定した値、Titleは短い見出し、Messageは利用者向けの説明。
// Errは内部原因でログにのみ出力し、レスポンスには含めない。
type APIError struct {
	Code    string
	Title   string
	Message string
	Err     error
}

// Error はerrorインターフェースを実装する。
func (e *APIError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap は内部原因を返す。
func (e *APIError) Unwrap() error {
	return e.Err
}

// 定義済みエラーコード
const (
	ErrCodeMissingField       = "MISSING_FIELD"
	ErrCodeInvalidBody        = "INVALID_BODY"
	ErrCodePasswordTooLong    = "PASSWORD_TOO_LONG"
	ErrCodeEmailAlreadyExists = "EMAIL_ALREADY_EXISTS"
	ErrCodeInvalidCredentials = "INVALID_CREDENTIALS"
	ErrCodeUnauthorized       = "UNAUTHORIZED"
	ErrCodeStoreUnavailable   = "STORE_UNAVAILABLE"
)

// NewMissingFieldError は必須項目の欠落エラーを生成する。
// fieldsには欠落した項目名をリクエストボディのキー名で渡す。
func NewMissingFieldError(fields ...string) *APIError {
	msg := "Required fields are missing"
	if len(fields) > 0 {
		msg = fmt.Sprintf("%s: %s", msg, strings.Join(fields, ", "))
	}
	return &APIError{
		Code:    ErrCodeMissingField,
		Title:   "Missing required fields",
		Message: msg,
	}
}

// NewInvalidBodyError はリクエストボディが解析できない場合のエラーを生成する。
func NewInvalidBodyError() *APIError {
	return &APIError{
		Code:    ErrCodeInvalidBody,
		Title:   "Invalid request body",
		Message: "Request body must be a JSON object",
	}
}

// NewPasswordTooLongError はパスワードがハッシュ可能な長さを超えている場合のエラーを生成する。
func NewPasswordTooLongError() *APIError {
	return &APIError{
		Code:    ErrCodePasswordTooLong,
		Title:   "Password too long",
		Message: "Password must be at most 72 bytes",
	}
}

// NewEmailAlreadyExistsError はメールアドレス重複エラーを生成する。
func NewEmailAlreadyExistsError() *APIError {
	return &APIError{
		Code:    ErrCodeEmailAlreadyExists,
		Title:   "Email already exists",
		Message: "A user with this email already exists",
	}
}

// NewInvalidCredentialsError は認証失敗エラーを生成する。
// メールアドレス未登録とパスワード不一致で同一の内容を返し、アカウントの存在を漏らさない。
func NewInvalidCredentialsError() *APIError {
	return &APIError{
		Code:    ErrCodeInvalidCredentials,
		Title:   "Invalid credentials",
		Message: "Email or password is incorrect",
	}
}

// NewUnauthorizedError はセッションが無い・無効・期限切れの場合のエラーを生成する。
// 失敗理由は区別しない。
func NewUnauthorizedError() *APIError {
	return &APIError{
		Code:    ErrCodeUnauthorized,
		Title:   "Unauthorized",
		Message: "Invalid or expired token",
	}
}

// NewStoreUnavailableError はストア障害や想定外の失敗を表すエラーを生成する。
// errは内部原因として保持するが、メッセージには含めない。
func NewStoreUnavailableError(err error) *APIError {
	return &APIError{
		Code:    ErrCodeStoreUnavailable,
		Title:   "Service unavailable",
		Message: "An internal error occurred. Please try again later.",
		Err:     err,
	}
}
