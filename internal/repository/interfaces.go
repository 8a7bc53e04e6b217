// Package repository はデータ永続化のインターフェースを定義する。
package repository

import (
	"context"
	"errors"

	"github.com/hitoshi/studymap/internal/model"
)

// ErrViewLimitReached は無料プランの閲覧上限到達を示すセンチネルエラー。
// RecordViewIfNewの条件付きカウンタ更新が0行だった場合に返される。
var ErrViewLimitReached = errors.New("view limit reached")

// UserRepository はユーザーデータの永続化インターフェース。
type UserRepository interface {
	// FindByID は指定IDのユーザーを取得する。見つからない場合はnilを返す。
	FindByID(ctx context.Context, id string) (*model.User, error)

	// CreateWithIdentity はユーザーとidentityを同一トランザクションで作成する。
	CreateWithIdentity(ctx context.Context, user *model.User, identity *model.Identity) error

	// SetStripeCustomerID はユーザーのStripe顧客参照を保存する。
	SetStripeCustomerID(ctx context.Context, userID, customerID string) error

	// FindByStripeCustomerID はStripe顧客参照でユーザーを検索する。見つからない場合はnilを返す。
	FindByStripeCustomerID(ctx context.Context, customerID string) (*model.User, error)
}

// IdentityRepository は外部IdP紐付け情報の永続化インターフェース。
type IdentityRepository interface {
	// FindByProviderAndProviderUserID はproviderとprovider_user_idでidentityを検索する。
	// 見つからない場合はnilを返す。
	FindByProviderAndProviderUserID(ctx context.Context, provider, providerUserID string) (*model.Identity, error)
}

// SessionRepository はセッションデータの永続化インターフェース。
type SessionRepository interface {
	// Create はセッションを作成する。
	Create(ctx context.Context, session *model.Session) error
	// FindByID は指定IDのセッションを取得する。期限切れの場合はnilを返す。
	FindByID(ctx context.Context, id string) (*model.Session, error)
	// DeleteByID は指定IDのセッションを削除する。
	DeleteByID(ctx context.Context, id string) error
	// DeleteByUserID は指定ユーザーの全セッションを削除する。
	DeleteByUserID(ctx context.Context, userID string) error
}

// ProgramRepository はプログラムカタログの永続化インターフェース。
type ProgramRepository interface {
	// FindByID は指定IDのプログラムを取得する。見つからない場合はnilを返す。
	FindByID(ctx context.Context, id string) (*model.Program, error)

	// List は全プログラムをschool, name順で返す。
	List(ctx context.Context) ([]*model.Program, error)

	// Upsert はプログラムをIDで冪等にUPSERTする。カタログ同期から使用する。
	Upsert(ctx context.Context, program *model.Program) error
}

// ViewLedger は閲覧記録と閲覧カウンタの永続化インターフェース。
// 一意性と原子性が本システムで唯一正しさが問われる箇所のため、
// 存在確認・INSERT・カウンタ更新を1メソッドに閉じ込める。
type ViewLedger interface {
	// RecordViewIfNew は(user, program)の閲覧を冪等に記録する。
	//
	// 既に閲覧済みの場合はcreated=falseと現在のカウンタ値を返す（カウンタは変化しない）。
	// 未閲覧の場合はViewレコードのINSERTとカウンタのインクリメントを
	// 同一トランザクションで行い、created=trueと更新後のカウンタ値を返す。
	//
	// maxViews > 0 の場合、カウンタ更新は "programs_viewed < maxViews" を条件とする
	// 原子的な条件付きUPDATEで行い、条件を満たさなければINSERTごとロールバックして
	// ErrViewLimitReachedを返す。maxViews <= 0 は無条件（プレミアムの記録用）。
	//
	// 同一(user, program)の並行呼び出しに対してはDBのUNIQUE制約により
	// 正確に1回だけcreated=trueが観測される。
	RecordViewIfNew(ctx context.Context, userID, programID string, maxViews int) (created bool, newCount int, err error)
}

// PaymentRepository は決済状態と監査ログの永続化インターフェース。
type PaymentRepository interface {
	// MarkPremium はユーザーをplan=premium, payment_status=paidに更新し、
	// completedトランザクションレコードを同一トランザクションで追記する。
	// (stripe_session_id, 'completed')が既に存在する場合（Webhook再配送）は
	// 何もせず正常終了する。
	MarkPremium(ctx context.Context, userID string, tx *model.PaymentTransaction) error

	// MarkPaymentFailed はpayment_status=failedに更新し、failedトランザクション
	// レコードを追記する。planは変更しない。plan=premiumの行のpayment_statusは
	// 変更されない（premium⇒paidの不変条件維持）。
	MarkPaymentFailed(ctx context.Context, userID string, tx *model.PaymentTransaction) error

	// ListByUserID はユーザーの決済トランザクション履歴を新しい順で返す。
	ListByUserID(ctx context.Context, userID string) ([]*model.PaymentTransaction, error)
}
