package billing

import (
	"context"
	"fmt"

	stripe "github.com/stripe/stripe-go/v79"
	"github.com/stripe/stripe-go/v79/client"
	"github.com/hitoshi/studymap/internal/model"
)

// premiumProductName はCheckout画面に表示する商品名。
const premiumProductName = "Study Map Premium"

// CheckoutParams はCheckout Session作成のパラメータ。
type CheckoutParams struct {
	CustomerID string
	UserID     string // metadataとしてセッションに埋め込まれ、Webhookで逆引きに使う
	AmountCents int64
	Currency    string
	SuccessURL  string
	CancelURL   string
}

// CheckoutSession は作成されたCheckout Sessionの参照。
type CheckoutSession struct {
	ID  string
	URL string // Stripeのホスト型決済ページURL
}

// SessionInfo はPayment Intentから逆引きしたCheckout Sessionの情報。
type SessionInfo struct {
	SessionID string
	UserID    string
	Amount    int64
	Currency  string
}

// PaymentProvider は決済プロバイダーのインターフェース。
// テストではモック実装に差し替える。
type PaymentProvider interface {
	// EnsureCustomer はユーザーに対応する決済顧客を作成しIDを返す。
	EnsureCustomer(ctx context.Context, user *model.User) (string, error)
	// CreateCheckoutSession はホスト型決済セッションを作成する。
	CreateCheckoutSession(ctx context.Context, p CheckoutParams) (*CheckoutSession, error)
	// FindSessionByPaymentIntent はPayment IntentからCheckout Sessionを逆引きする。
	// 見つからない場合はnilを返す。
	FindSessionByPaymentIntent(ctx context.Context, paymentIntentID string) (*SessionInfo, error)
}

// StripeProvider はStripe APIによるPaymentProviderの実装。
type StripeProvider struct {
	api *client.API
}

// NewStripeProvider はStripeProviderを生成する。
func NewStripeProvider(secretKey string) *StripeProvider {
	api := &client.API{}
	api.Init(secretKey, nil)
	return &StripeProvider{api: api}
}

// EnsureCustomer はStripe顧客を作成する。
func (p *StripeProvider) EnsureCustomer(ctx context.Context, user *model.User) (string, error) {
	params := &stripe.CustomerParams{
		Email: stripe.String(user.Email),
		Name:  stripe.String(user.Name),
	}
	params.Context = ctx
	params.AddMetadata("user_id", user.ID)

	cust, err := p.api.Customers.New(params)
	if err != nil {
		return "", fmt.Errorf("failed to create stripe customer: %w", err)
	}
	return cust.ID, nil
}

// CreateCheckoutSession は一回払いのCheckout Sessionを作成する。
func (p *StripeProvider) CreateCheckoutSession(ctx context.Context, cp CheckoutParams) (*CheckoutSession, error) {
	params := &stripe.CheckoutSessionParams{
		Mode:       stripe.String(string(stripe.CheckoutSessionModePayment)),
		Customer:   stripe.String(cp.CustomerID),
		SuccessURL: stripe.String(cp.SuccessURL),
		CancelURL:  stripe.String(cp.CancelURL),
		LineItems: []*stripe.CheckoutSessionLineItemParams{
			{
				PriceData: &stripe.CheckoutSessionLineItemPriceDataParams{
					Currency:   stripe.String(cp.Currency),
					UnitAmount: stripe.Int64(cp.AmountCents),
					ProductData: &stripe.CheckoutSessionLineItemPriceDataProductDataParams{
						Name: stripe.String(premiumProductName),
					},
				},
				Quantity: stripe.Int64(1),
			},
		},
	}
	params.Context = ctx
	params.AddMetadata("user_id", cp.UserID)

	sess, err := p.api.CheckoutSessions.New(params)
	if err != nil {
		return nil, fmt.Errorf("failed to create checkout session: %w", err)
	}

	return &CheckoutSession{
		ID:  sess.ID,
		URL: sess.URL,
	}, nil
}

// FindSessionByPaymentIntent はPayment IntentでCheckout Sessionを検索する。
func (p *StripeProvider) FindSessionByPaymentIntent(ctx context.Context, paymentIntentID string) (*SessionInfo, error) {
	params := &stripe.CheckoutSessionListParams{
		PaymentIntent: stripe.String(paymentIntentID),
	}
	params.Context = ctx

	iter := p.api.CheckoutSessions.List(params)
	for iter.Next() {
		sess := iter.CheckoutSession()
		return &SessionInfo{
			SessionID: sess.ID,
			UserID:    sess.Metadata["user_id"],
			Amount:    sess.AmountTotal,
			Currency:  string(sess.Currency),
		}, nil
	}
	if err := iter.Err(); err != nil {
		return nil, fmt.Errorf("failed to list checkout sessions: %w", err)
	}

	return nil, nil
}

// compile-time interface check
var _ PaymentProvider = (*StripeProvider)(nil)
