// Package model はドメインモデルを定義する。
package model

import "time"

// Plan はユーザーの契約プランを表す。
// freeからpremiumへの一方向にのみ遷移する（自動的にfreeへ戻ることはない）。
type Plan string

const (
	// PlanFree は無料プラン。プログラム詳細の閲覧数に上限がある。
	PlanFree Plan = "free"
	// PlanPremium は有料プラン。閲覧数は無制限。
	PlanPremium Plan = "premium"
)

// PaymentStatus はユーザーの決済状態を表す。
type PaymentStatus string

const (
	// PaymentStatusPending は決済未完了（初期状態）。
	PaymentStatusPending PaymentStatus = "pending"
	// PaymentStatusPaid は決済完了。plan=premiumと対になる。
	PaymentStatusPaid PaymentStatus = "paid"
	// PaymentStatusFailed は決済失敗。planは変更されない。
	PaymentStatusFailed PaymentStatus = "failed"
)

// User はサービス利用ユーザーを表す。
// 外部IdPのIdentityと1対1で対応するローカルレコード。
type User struct {
	ID               string
	Email            string
	Name             string
	Plan             Plan
	ProgramsViewed   int
	PaymentStatus    PaymentStatus
	StripeCustomerID string // 未作成の場合は空文字列
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

// Identity は外部IdPとの紐付け情報を表す。
// 将来的に複数のIdP（Google, GitHub等）に対応可能な構造。
type Identity struct {
	ID             string
	UserID         string
	Provider       string
	ProviderUserID string
	CreatedAt      time.Time
}

// Session はユーザーのログインセッションを表す。
type Session struct {
	ID        string
	UserID    string
	ExpiresAt time.Time
	CreatedAt time.Time
}
