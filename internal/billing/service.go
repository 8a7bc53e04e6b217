// Package billing はCheckoutフローとWebhookによる決済照合を提供する。
package billing

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/hitoshi/studymap/internal/model"
	"github.com/hitoshi/studymap/internal/repository"
)

// ServiceConfig は課金サービスの設定。
type ServiceConfig struct {
	PremiumPriceCents int64  // プレミアムの価格（最小通貨単位）
	PremiumCurrency   string // ISO通貨コード（小文字）
	SuccessURL        string
	CancelURL         string
	WebhookSecret     string
}

// Service は課金に関するビジネスロジックを提供する。
type Service struct {
	provider    PaymentProvider
	userRepo    repository.UserRepository
	paymentRepo repository.PaymentRepository
	config      ServiceConfig
}

// NewService はServiceを生成する。
func NewService(
	provider PaymentProvider,
	userRepo repository.UserRepository,
	paymentRepo repository.PaymentRepository,
	config ServiceConfig,
) *Service {
	return &Service{
		provider:    provider,
		userRepo:    userRepo,
		paymentRepo: paymentRepo,
		config:      config,
	}
}

// StartCheckout はプレミアムへのアップグレード用Checkout Sessionを作成する。
// 既にプレミアムのユーザーにはALREADY_PREMIUMエラーを返す。
// 初回はStripe顧客を作成しユーザーに紐付けてから再利用する。
func (s *Service) StartCheckout(ctx context.Context, user *model.User) (*CheckoutSession, error) {
	if user.Plan == model.PlanPremium {
		return nil, model.NewAlreadyPremiumError()
	}

	customerID := user.StripeCustomerID
	if customerID == "" {
		id, err := s.provider.EnsureCustomer(ctx, user)
		if err != nil {
			slog.Error("failed to create stripe customer",
				slog.String("user_id", user.ID),
				slog.String("error", err.Error()),
			)
			return nil, model.NewCheckoutFailedError()
		}
		if err := s.userRepo.SetStripeCustomerID(ctx, user.ID, id); err != nil {
			return nil, fmt.Errorf("failed to save stripe customer ID: %w", err)
		}
		customerID = id
	}

	sess, err := s.provider.CreateCheckoutSession(ctx, CheckoutParams{
		CustomerID:  customerID,
		UserID:      user.ID,
		AmountCents: s.config.PremiumPriceCents,
		Currency:    s.config.PremiumCurrency,
		SuccessURL:  s.config.SuccessURL,
		CancelURL:   s.config.CancelURL,
	})
	if err != nil {
		slog.Error("failed to create checkout session",
			slog.String("user_id", user.ID),
			slog.String("error", err.Error()),
		)
		return nil, model.NewCheckoutFailedError()
	}

	slog.Info("checkout session created",
		slog.String("user_id", user.ID),
		slog.String("session_id", sess.ID),
	)
	return sess, nil
}

// ParseWebhook はWebhookペイロードの署名を検証しイベントに変換する。
func (s *Service) ParseWebhook(payload []byte, sigHeader string) (WebhookEvent, error) {
	return ParseWebhookEvent(payload, sigHeader, s.config.WebhookSecret)
}

// HandleEvent は検証済みWebhookイベントを処理する。
//
// nilを返した場合イベントはACK（200）され、エラーを返した場合は
// 500で応答しStripeの再配送による再試行に委ねる。
// 再配送による重複は監査ログのUNIQUE(stripe_session_id, status)と
// プラン更新の冪等性により安全に吸収される。
func (s *Service) HandleEvent(ctx context.Context, event WebhookEvent) error {
	switch ev := event.(type) {
	case CheckoutCompleted:
		return s.handleCheckoutCompleted(ctx, ev)
	case PaymentFailed:
		return s.handlePaymentFailed(ctx, ev)
	case Unhandled:
		slog.Debug("ignoring webhook event",
			slog.String("event_id", ev.EventID),
			slog.String("type", ev.Type),
		)
		return nil
	default:
		return fmt.Errorf("unknown webhook event type %T", event)
	}
}

// handleCheckoutCompleted は決済完了イベントでユーザーをプレミアムに昇格する。
func (s *Service) handleCheckoutCompleted(ctx context.Context, ev CheckoutCompleted) error {
	if ev.UserID == "" {
		// metadata欠落は再配送しても解消しないためACKし、運用調査に委ねる
		slog.Error("checkout completed without user metadata",
			slog.String("event_id", ev.EventID),
			slog.String("session_id", ev.SessionID),
		)
		return nil
	}

	txn := &model.PaymentTransaction{
		UserID:          ev.UserID,
		StripeSessionID: ev.SessionID,
		Amount:          ev.Amount,
		Currency:        ev.Currency,
		Status:          model.TransactionCompleted,
		CreatedAt:       time.Now().UTC(),
	}

	if err := s.paymentRepo.MarkPremium(ctx, ev.UserID, txn); err != nil {
		return fmt.Errorf("failed to mark user premium: %w", err)
	}

	slog.Info("user upgraded to premium",
		slog.String("user_id", ev.UserID),
		slog.String("session_id", ev.SessionID),
		slog.Int64("amount", ev.Amount),
		slog.String("currency", ev.Currency),
	)
	return nil
}

// handlePaymentFailed は決済失敗イベントを記録する。planは変更しない。
func (s *Service) handlePaymentFailed(ctx context.Context, ev PaymentFailed) error {
	info, err := s.provider.FindSessionByPaymentIntent(ctx, ev.PaymentIntentID)
	if err != nil {
		return fmt.Errorf("failed to resolve session for payment intent: %w", err)
	}
	if info == nil || info.UserID == "" {
		// 紐付け不能なイベントは再配送しても解消しないためACKする
		slog.Error("payment failed event could not be linked to a user",
			slog.String("event_id", ev.EventID),
			slog.String("payment_intent_id", ev.PaymentIntentID),
		)
		return nil
	}

	txn := &model.PaymentTransaction{
		UserID:          info.UserID,
		StripeSessionID: info.SessionID,
		Amount:          ev.Amount,
		Currency:        ev.Currency,
		Status:          model.TransactionFailed,
		CreatedAt:       time.Now().UTC(),
	}

	if err := s.paymentRepo.MarkPaymentFailed(ctx, info.UserID, txn); err != nil {
		return fmt.Errorf("failed to record payment failure: %w", err)
	}

	slog.Warn("payment failed",
		slog.String("user_id", info.UserID),
		slog.String("payment_intent_id", ev.PaymentIntentID),
	)
	return nil
}

// History はユーザーの決済トランザクション履歴を新しい順で返す。
func (s *Service) History(ctx context.Context, userID string) ([]*model.PaymentTransaction, error) {
	txns, err := s.paymentRepo.ListByUserID(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list payment transactions: %w", err)
	}
	return txns, nil
}
