// Package model はドメインモデルを定義する。
package model

import "time"

// TransactionStatus は決済トランザクションの状態を表す。
type TransactionStatus string

const (
	// TransactionPending は決済処理中。
	TransactionPending TransactionStatus = "pending"
	// TransactionCompleted は決済完了。
	TransactionCompleted TransactionStatus = "completed"
	// TransactionFailed は決済失敗。
	TransactionFailed TransactionStatus = "failed"
)

// PaymentTransaction は決済試行の監査ログを表す。
// Webhookイベント1件につき1レコードを追記する。追記専用で更新・削除はしない。
// (stripe_session_id, status)の組はDB制約で一意であり、
// 同一イベントの再配送による二重追記を防ぐ。
type PaymentTransaction struct {
	ID              string
	UserID          string
	StripeSessionID string
	Amount          int64 // 最小通貨単位（セント）
	Currency        string
	Status          TransactionStatus
	CreatedAt       time.Time
}
