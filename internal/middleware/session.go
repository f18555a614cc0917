// Package middleware はHTTPミドルウェアを提供する。
package middleware

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/hitoshi/docauth/internal/model"
)

// contextKey はコンテキストに値を格納するための型安全なキー。
type contextKey string

// authContextKey はリクエストコンテキストに認証結果を格納するためのキー。
var authContextKey = contextKey("auth")

// SessionValidator はBearerトークンの検証に必要なインターフェース。
// auth.Serviceが満たす。
type SessionValidator interface {
	GetSession(ctx context.Context, token string) (*model.AuthResult, error)
}

// NewSessionMiddleware はAuthorizationヘッダーのBearerトークンを検証し、
// 認証済みユーザーとセッションをリクエストコンテキストに注入するミドルウェアを返す。
// トークンが無い・無効・期限切れの場合は401 UNAUTHORIZEDを返す。
func NewSessionMiddleware(validator SessionValidator) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := BearerToken(r)
			if token == "" {
				WriteAPIError(w, model.NewUnauthorizedError())
				return
			}

			result, err := validator.GetSession(r.Context(), token)
			if err != nil {
				var apiErr *model.APIError
				if !errors.As(err, &apiErr) {
					apiErr = model.NewStoreUnavailableError(err)
				}
				WriteAPIError(w, apiErr)
				return
			}

			setRequestUserID(r.Context(), result.User.ID)
			ctx := ContextWithAuth(r.Context(), result)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// BearerToken はAuthorizationヘッダーからBearerトークンを取り出す。
// スキーム名の大文字小文字は区別しない。該当しない場合は空文字列を返す。
func BearerToken(r *http.Request) string {
	header := strings.TrimSpace(r.Header.Get("Authorization"))
	scheme, token, ok := strings.Cut(header, " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return ""
	}
	return strings.TrimSpace(token)
}

// AuthFromContext はリクエストコンテキストから認証結果を取得する。
// セッションミドルウェアを通過したリクエストでのみ有効。
func AuthFromContext(ctx context.Context) (*model.AuthResult, error) {
	result, ok := ctx.Value(authContextKey).(*model.AuthResult)
	if !ok || result == nil || result.User == nil || result.Session == nil {
		return nil, fmt.Errorf("auth result not found in context")
	}
	return result, nil
}

// ContextWithAuth はコンテキストに認証結果を注入する。
// テストやミドルウェア以外のコンテキスト生成で使用する。
func ContextWithAuth(ctx context.Context, result *model.AuthResult) context.Context {
	return context.WithValue(ctx, authContextKey, result)
}
