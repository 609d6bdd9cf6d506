package model

import "fmt"

// APIError は統一エラーフォーマットを表す。
// UIに表示する原因カテゴリと対処方法を含む。
type APIError struct {
	Code     string // エラーコード
	Message  string // エラーメッセージ
	Category string // カテゴリ: auth, validation, token, system
	Action   string // ユーザー向け対処方法
}

// Error はerrorインターフェースを実装する。
func (e *APIError) Error() string {
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// 定義済みエラーコード
const (
	ErrCodeInvalidCategory = "INVALID_CATEGORY"
	ErrCodeInvalidMinutes  = "INVALID_MINUTES"
	ErrCodeProfileNotFound = "PROFILE_NOT_FOUND"
	ErrCodeTokenSigning    = "TOKEN_SIGNING_FAILED"
	ErrCodeUnauthorized    = "UNAUTHORIZED"
)

// NewInvalidCategoryError は未知のカテゴリ名に対するエラーを生成する。
func NewInvalidCategoryError(category string) *APIError {
	return &APIError{
		Code:     ErrCodeInvalidCategory,
		Message:  fmt.Sprintf("無効なカテゴリです: %s", category),
		Category: "validation",
		Action:   "カテゴリには academic または entertainment を指定してください。",
	}
}

// NewInvalidMinutesError は不正な加算量に対するエラーを生成する。
func NewInvalidMinutesError(minutes int64) *APIError {
	return &APIError{
		Code:     ErrCodeInvalidMinutes,
		Message:  fmt.Sprintf("無効な加算量です: %d分", minutes),
		Category: "validation",
		Action:   "加算量には1以上の整数（分）を指定してください。",
	}
}

// NewProfileNotFoundError はプロフィール未作成エラーを生成する。
func NewProfileNotFoundError(uid string) *APIError {
	return &APIError{
		Code:     ErrCodeProfileNotFound,
		Message:  fmt.Sprintf("プロフィールが見つかりません: %s", uid),
		Category: "auth",
		Action:   "サインインし直してください。",
	}
}

// NewTokenSigningError はトークン署名失敗エラーを生成する。
// 鍵素材は含めない。
func NewTokenSigningError() *APIError {
	return &APIError{
		Code:     ErrCodeTokenSigning,
		Message:  "カスタムトークンの発行に失敗しました。",
		Category: "token",
		Action:   "しばらく待ってから再度お試しください。",
	}
}

// NewUnauthorizedError は未認証エラーを生成する。
func NewUnauthorizedError() *APIError {
	return &APIError{
		Code:     ErrCodeUnauthorized,
		Message:  "認証されていません。",
		Category: "auth",
		Action:   "サインインしてください。",
	}
}
