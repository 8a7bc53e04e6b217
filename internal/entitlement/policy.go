// Package entitlement は閲覧権限の判定と閲覧記録を提供する。
package entitlement

// FailurePolicy はストア障害時の判定方針。
//
// プランごとに固定であり設定では変更できない。無料ユーザーは閲覧カウントを
// 検証できない限り許可してはならず、プレミアムユーザーは記録の失敗で
// 購入済みの権利を失ってはならない。
type FailurePolicy string

const (
	// FailOpenForPremium はプレミアムユーザーに適用される。記録に失敗しても閲覧を許可する。
	FailOpenForPremium FailurePolicy = "fail_open_for_premium"
	// FailClosedForFree は無料ユーザーに適用される。カウンタを更新できなければ閲覧を拒否する。
	FailClosedForFree FailurePolicy = "fail_closed_for_free"
)

// DenialReason は閲覧拒否の理由。
type DenialReason string

const (
	// ReasonLimitReached は無料プランの閲覧上限到達。
	ReasonLimitReached DenialReason = "LimitReached"
	// ReasonStoreUnavailable はカウンタストアの障害（無料ユーザーのみ）。
	ReasonStoreUnavailable DenialReason = "StoreUnavailable"
)

// Decision は閲覧リクエストに対する判定結果。
type Decision struct {
	Allowed bool
	Reason  DenialReason // Allowed=falseの場合のみ設定される
	Policy  FailurePolicy

	// NewView はこの判定で新規の閲覧記録が作成されたかどうか。
	NewView bool
	// ViewsUsed は判定後の閲覧カウンタ値。
	ViewsUsed int
	// ViewLimit は適用された上限。プレミアムは0（無制限）。
	ViewLimit int
}
