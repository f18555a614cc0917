// Package handler はHTTPハンドラーを提供する。
package handler

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/hitoshi/docauth/internal/auth"
	"github.com/hitoshi/docauth/internal/middleware"
	"github.com/hitoshi/docauth/internal/model"
)

// maxBodyBytes はリクエストボディの上限サイズ。
const maxBodyBytes = 1 << 20

// AuthServiceInterface は認証ハンドラーが必要とするサービスインターフェース。
type AuthServiceInterface interface {
	Signup(ctx context.Context, in auth.SignupInput, meta model.ClientMetadata) (*model.AuthResult, error)
	Signin(ctx context.Context, email, password string, meta model.ClientMetadata) (*model.AuthResult, error)
	Signout(ctx context.Context, token string) error
	GetSession(ctx context.Context, token string) (*model.AuthResult, error)
}

// AuthHandler は認証APIのHTTPハンドラー。
type AuthHandler struct {
	service AuthServiceInterface
}

// NewAuthHandler はAuthHandlerを生成する。
func NewAuthHandler(service AuthServiceInterface) *AuthHandler {
	return &AuthHandler{service: service}
}

// signupRequest はサインアップリクエストのボディ。
type signupRequest struct {
	Name                string `json:"name"`
	Email               string `json:"email"`
	Password            string `json:"password"`
	TechnicalBackground string `json:"technicalBackground"`
}

// signinRequest はサインインリクエストのボディ。
type signinRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// signoutRequest はサインアウトリクエストのボディ。省略可能。
type signoutRequest struct {
	Token string `json:"token"`
}

// userResponse はユーザー情報のAPIレスポンス。パスワードハッシュは含めない。
type userResponse struct {
	ID                  string  `json:"id"`
	Name                string  `json:"name"`
	Email               string  `json:"email"`
	EmailVerified       bool    `json:"emailVerified"`
	Image               *string `json:"image,omitempty"`
	TechnicalBackground *string `json:"technicalBackground"`
}

// sessionResponse はセッション情報のAPIレスポンス。
type sessionResponse struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expiresAt"`
}

// authResponse はサインアップ・サインイン・セッション取得のレスポンス。
type authResponse struct {
	Success bool            `json:"success"`
	Message string          `json:"message,omitempty"`
	User    userResponse    `json:"user"`
	Session sessionResponse `json:"session"`
}

// messageResponse はメッセージのみのレスポンス。
type messageResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

// SignupCustom はtechnicalBackground付きのユーザー登録を処理する。
// POST /api/auth/signup-custom
func (h *AuthHandler) SignupCustom(w http.ResponseWriter, r *http.Request) {
	var req signupRequest
	if !decodeJSONBody(w, r, &req) {
		return
	}

	result, err := h.service.Signup(r.Context(), auth.SignupInput{
		Name:                req.Name,
		Email:               req.Email,
		Password:            req.Password,
		TechnicalBackground: req.TechnicalBackground,
	}, clientMetadata(r))
	if err != nil {
		handleServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, toAuthResponse(result, "User created successfully"))
}

// Signin はメールアドレスとパスワードによるサインインを処理する。
// POST /api/auth/signin
func (h *AuthHandler) Signin(w http.ResponseWriter, r *http.Request) {
	var req signinRequest
	if !decodeJSONBody(w, r, &req) {
		return
	}

	result, err := h.service.Signin(r.Context(), req.Email, req.Password, clientMetadata(r))
	if err != nil {
		handleServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, toAuthResponse(result, "Signed in successfully"))
}

// Signout はセッションを失効させる。
// トークンはボディのtokenまたはAuthorizationヘッダーから取得し、どちらも無くても成功を返す。
// POST /api/auth/signout
func (h *AuthHandler) Signout(w http.ResponseWriter, r *http.Request) {
	var req signoutRequest
	if !decodeJSONBody(w, r, &req) {
		return
	}

	token := req.Token
	if token == "" {
		token = middleware.BearerToken(r)
	}

	if err := h.service.Signout(r.Context(), token); err != nil {
		handleServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, messageResponse{
		Success: true,
		Message: "Signed out successfully",
	})
}

// Session は現在のセッションとユーザー情報を返す。
// セッションミドルウェアの内側で使用する。
// GET /api/auth/session
func (h *AuthHandler) Session(w http.ResponseWriter, r *http.Request) {
	result, err := middleware.AuthFromContext(r.Context())
	if err != nil {
		middleware.WriteAPIError(w, model.NewUnauthorizedError())
		return
	}

	writeJSON(w, http.StatusOK, toAuthResponse(result, ""))
}

// Health はヘルスチェックに応答する。
// GET /health
func Health(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status":  "ok",
		"message": "Auth server is running",
	})
}

// --- ヘルパー関数 ---

// toAuthResponse はmodel.AuthResultからAPIレスポンスに変換する。
func toAuthResponse(result *model.AuthResult, message string) authResponse {
	return authResponse{
		Success: true,
		Message: message,
		User: userResponse{
			ID:                  result.User.ID,
			Name:                result.User.Name,
			Email:               result.User.Email,
			EmailVerified:       result.User.EmailVerified,
			Image:               result.User.Image,
			TechnicalBackground: result.User.TechnicalBackground,
		},
		Session: sessionResponse{
			Token:     result.Session.Token,
			ExpiresAt: result.Session.ExpiresAt.UTC(),
		},
	}
}

// clientMetadata はセッションに記録するクライアント情報をリクエストから取り出す。
// RemoteAddrはchiのRealIPミドルウェアで書き換え済みであることを前提とする。
func clientMetadata(r *http.Request) model.ClientMetadata {
	ip := r.RemoteAddr
	if host, _, err := net.SplitHostPort(ip); err == nil {
		ip = host
	}
	return model.ClientMetadata{
		IPAddress: ip,
		UserAgent: r.UserAgent(),
	}
}

// decodeJSONBody はリクエストボディをJSONとして解析する。
// 空ボディは空オブジェクトとして扱う。解析に失敗した場合はINVALID_BODYを書き込みfalseを返す。
func decodeJSONBody(w http.ResponseWriter, r *http.Request, dst any) bool {
	if r.Body == nil {
		return true
	}
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)

	err := json.NewDecoder(r.Body).Decode(dst)
	if err == nil || errors.Is(err, io.EOF) {
		return true
	}

	slog.Debug("failed to decode request body", slog.String("error", err.Error()))
	middleware.WriteAPIError(w, model.NewInvalidBodyError())
	return false
}

// writeJSON はJSONレスポンスを書き込む。
func writeJSON(w http.ResponseWriter, statusCode int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("failed to encode response", slog.String("error", err.Error()))
	}
}

// handleServiceError はサービス層から返されたエラーを適切なHTTPステータスコードに変換する。
func handleServiceError(w http.ResponseWriter, err error) {
	var apiErr *model.APIError
	if errors.As(err, &apiErr) {
		middleware.WriteAPIError(w, apiErr)
		return
	}

	// APIError以外のエラーは内部サーバーエラーとして扱う
	slog.Error("internal server error", slog.String("error", err.Error()))
	middleware.WriteInternalServerError(w)
}
