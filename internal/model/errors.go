// Package model はドメインモデルを定義する。
package model

import "fmt"

// APIError は統一エラーフォーマットを表す。
// UIに表示する原因カテゴリと対処方法を含む。
type APIError struct {
	Code     string // エラーコード
	Message  string // エラーメッセージ
	Category string // カテゴリ: auth, validation, entitlement, payment, system
	Action   string // ユーザー向け対処方法
}

// Error はerrorインターフェースを実装する。
func (e *APIError) Error() string {
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// 定義済みエラーコード
const (
	ErrCodeUnauthorized       = "UNAUTHORIZED"
	ErrCodeUserNotFound       = "USER_NOT_FOUND"
	ErrCodeProgramNotFound    = "PROGRAM_NOT_FOUND"
	ErrCodeViewLimitReached   = "VIEW_LIMIT_REACHED"
	ErrCodeStoreUnavailable   = "STORE_UNAVAILABLE"
	ErrCodeAlreadyPremium     = "ALREADY_PREMIUM"
	ErrCodeCheckoutFailed     = "CHECKOUT_FAILED"
	ErrCodeInvalidSignature   = "INVALID_SIGNATURE"
	ErrCodeWebhookProcessing  = "WEBHOOK_PROCESSING_FAILED"
)

// NewUnauthorizedError は未認証エラーを生成する。
func NewUnauthorizedError() *APIError {
	return &APIError{
		Code:     ErrCodeUnauthorized,
		Message:  "認証が必要です。",
		Category: "auth",
		Action:   "ログインしてください。",
	}
}

// NewUserNotFoundError はユーザーが見つからない場合のエラーを生成する。
func NewUserNotFoundError() *APIError {
	return &APIError{
		Code:     ErrCodeUserNotFound,
		Message:  "ユーザーが見つかりません。",
		Category: "auth",
		Action:   "ログインし直してください。",
	}
}

// NewProgramNotFoundError はプログラムが見つからない場合のエラーを生成する。
func NewProgramNotFoundError(programID string) *APIError {
	return &APIError{
		Code:     ErrCodeProgramNotFound,
		Message:  fmt.Sprintf("指定されたプログラムが見つかりません: %s", programID),
		Category: "validation",
		Action:   "プログラムIDを確認してください。",
	}
}

// NewViewLimitReachedError は無料プランの閲覧上限到達エラーを生成する。
// 現在の閲覧数と上限を含めて返し、アップグレード案内の表示に使用する。
func NewViewLimitReachedError(viewed, max int) *APIError {
	return &APIError{
		Code:     ErrCodeViewLimitReached,
		Message:  fmt.Sprintf("無料プランの閲覧上限（%d/%d件）に達しています。", viewed, max),
		Category: "entitlement",
		Action:   "すべてのプログラムを閲覧するにはプレミアムプランへアップグレードしてください。",
	}
}

// NewStoreUnavailableError はデータストア障害時のエラーを生成する。
// 無料プランユーザーの閲覧判定ではフェイルクローズドとして扱われる。
func NewStoreUnavailableError() *APIError {
	return &APIError{
		Code:     ErrCodeStoreUnavailable,
		Message:  "データストアに接続できません。",
		Category: "system",
		Action:   "しばらく待ってから再度お試しください。",
	}
}

// NewAlreadyPremiumError はプレミアムユーザーによる重複購入エラーを生成する。
func NewAlreadyPremiumError() *APIError {
	return &APIError{
		Code:     ErrCodeAlreadyPremium,
		Message:  "すでにプレミアムプランをご利用中です。",
		Category: "payment",
		Action:   "追加の購入は不要です。",
	}
}

// NewCheckoutFailedError はチェックアウトセッション作成失敗エラーを生成する。
func NewCheckoutFailedError() *APIError {
	return &APIError{
		Code:     ErrCodeCheckoutFailed,
		Message:  "決済セッションの作成に失敗しました。",
		Category: "payment",
		Action:   "しばらく待ってから再度お試しください。",
	}
}
