package billing

import (
	"encoding/json"
	"errors"
	"fmt"

	stripe "github.com/stripe/stripe-go/v79"
	"github.com/stripe/stripe-go/v79/webhook"
)

// ErrInvalidSignature はWebhook署名検証の失敗を示すセンチネルエラー。
// 署名が検証できないペイロードは一切の状態変更を行わない。
var ErrInvalidSignature = errors.New("invalid webhook signature")

// WebhookEvent は検証済みWebhookイベントの閉じた型集合。
// CheckoutCompleted, PaymentFailed, Unhandledのいずれかとなる。
type WebhookEvent interface {
	isWebhookEvent()
}

// CheckoutCompleted はcheckout.session.completedイベント。
type CheckoutCompleted struct {
	EventID   string
	SessionID string
	UserID    string // セッションのmetadata user_id。欠落時は空
	Amount    int64  // 最小通貨単位
	Currency  string
}

// PaymentFailed はpayment_intent.payment_failedイベント。
// ユーザーとの紐付けはCheckout Sessionの逆引きが必要なため含まない。
type PaymentFailed struct {
	EventID         string
	PaymentIntentID string
	Amount          int64
	Currency        string
}

// Unhandled は処理対象外のイベント種別。
type Unhandled struct {
	EventID string
	Type    string
}

func (CheckoutCompleted) isWebhookEvent() {}
func (PaymentFailed) isWebhookEvent()     {}
func (Unhandled) isWebhookEvent()         {}

// ParseWebhookEvent はWebhookペイロードの署名を検証し、型付きイベントに変換する。
// 署名検証に失敗した場合はErrInvalidSignatureを返す。
func ParseWebhookEvent(payload []byte, sigHeader, secret string) (WebhookEvent, error) {
	event, err := webhook.ConstructEvent(payload, sigHeader, secret)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrInvalidSignature, err)
	}

	switch event.Type {
	case "checkout.session.completed":
		var sess stripe.CheckoutSession
		if err := json.Unmarshal(event.Data.Raw, &sess); err != nil {
			return nil, fmt.Errorf("failed to parse checkout session payload: %w", err)
		}
		return CheckoutCompleted{
			EventID:   event.ID,
			SessionID: sess.ID,
			UserID:    sess.Metadata["user_id"],
			Amount:    sess.AmountTotal,
			Currency:  string(sess.Currency),
		}, nil

	case "payment_intent.payment_failed":
		var intent stripe.PaymentIntent
		if err := json.Unmarshal(event.Data.Raw, &intent); err != nil {
			return nil, fmt.Errorf("failed to parse payment intent payload: %w", err)
		}
		return PaymentFailed{
			EventID:         event.ID,
			PaymentIntentID: intent.ID,
			Amount:          intent.Amount,
			Currency:        string(intent.Currency),
		}, nil

	default:
		return Unhandled{
			EventID: event.ID,
			Type:    string(event.Type),
		}, nil
	}
}
