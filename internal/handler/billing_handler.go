package handler

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/hitoshi/studymap/internal/billing"
	"github.com/hitoshi/studymap/internal/metrics"
	"github.com/hitoshi/studymap/internal/middleware"
	"github.com/hitoshi/studymap/internal/model"
)

// maxWebhookBodySize はWebhookペイロードの最大サイズ。
// Stripeの推奨値に合わせる。
const maxWebhookBodySize = 65536

// BillingServiceInterface は課金ハンドラーが必要とするサービスインターフェース。
type BillingServiceInterface interface {
	StartCheckout(ctx context.Context, user *model.User) (*billing.CheckoutSession, error)
	ParseWebhook(payload []byte, sigHeader string) (billing.WebhookEvent, error)
	HandleEvent(ctx context.Context, event billing.WebhookEvent) error
	History(ctx context.Context, userID string) ([]*model.PaymentTransaction, error)
}

// BillingHandler はCheckoutとWebhookのHTTPハンドラー。
type BillingHandler struct {
	service   BillingServiceInterface
	users     UserFinder
	collector metrics.MetricsCollector
}

// NewBillingHandler はBillingHandlerを生成する。
func NewBillingHandler(service BillingServiceInterface, users UserFinder, collector metrics.MetricsCollector) *BillingHandler {
	return &BillingHandler{
		service:   service,
		users:     users,
		collector: collector,
	}
}

// checkoutResponse はCheckout Session作成のAPIレスポンス。
type checkoutResponse struct {
	SessionID string `json:"session_id"`
	URL       string `json:"url"`
}

// transactionResponse は決済履歴1件のAPIレスポンス。
type transactionResponse struct {
	ID              string `json:"id"`
	StripeSessionID string `json:"stripe_session_id"`
	Amount          int64  `json:"amount"`
	Currency        string `json:"currency"`
	Status          string `json:"status"`
	CreatedAt       string `json:"created_at"`
}

// StartCheckout はプレミアムアップグレード用のCheckout Sessionを作成する。
// POST /api/billing/checkout
func (h *BillingHandler) StartCheckout(w http.ResponseWriter, r *http.Request) {
	userID, err := middleware.UserIDFromContext(r.Context())
	if err != nil {
		writeUnauthorized(w)
		return
	}

	user, err := h.users.FindByID(r.Context(), userID)
	if err != nil {
		handleServiceError(w, err)
		return
	}
	if user == nil {
		writeAPIErrorResponse(w, http.StatusNotFound, model.NewUserNotFoundError())
		return
	}

	sess, err := h.service.StartCheckout(r.Context(), user)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	if h.collector != nil {
		h.collector.RecordCheckoutSession()
	}

	writeJSON(w, http.StatusOK, checkoutResponse{
		SessionID: sess.ID,
		URL:       sess.URL,
	})
}

// History はユーザーの決済履歴を返す。
// GET /api/billing/history
func (h *BillingHandler) History(w http.ResponseWriter, r *http.Request) {
	userID, err := middleware.UserIDFromContext(r.Context())
	if err != nil {
		writeUnauthorized(w)
		return
	}

	txns, err := h.service.History(r.Context(), userID)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	resp := make([]transactionResponse, 0, len(txns))
	for _, txn := range txns {
		resp = append(resp, transactionResponse{
			ID:              txn.ID,
			StripeSessionID: txn.StripeSessionID,
			Amount:          txn.Amount,
			Currency:        txn.Currency,
			Status:          string(txn.Status),
			CreatedAt:       txn.CreatedAt.Format(time.RFC3339),
		})
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"transactions": resp,
	})
}

// Webhook はStripeからのWebhookを処理する。
// POST /webhooks/stripe
//
// 署名検証に失敗したペイロードは400で拒否し、一切の状態変更を行わない。
// 処理中の一時的な失敗は500で応答し、Stripeの再配送に委ねる。
func (h *BillingHandler) Webhook(w http.ResponseWriter, r *http.Request) {
	payload, err := io.ReadAll(io.LimitReader(r.Body, maxWebhookBodySize))
	if err != nil {
		slog.Error("failed to read webhook payload", slog.String("error", err.Error()))
		writeAPIErrorResponse(w, http.StatusBadRequest, &model.APIError{
			Code:     model.ErrCodeInvalidSignature,
			Message:  "Webhookペイロードの読み取りに失敗しました。",
			Category: "billing",
			Action:   "リクエストを確認してください。",
		})
		return
	}

	event, err := h.service.ParseWebhook(payload, r.Header.Get("Stripe-Signature"))
	if err != nil {
		if errors.Is(err, billing.ErrInvalidSignature) {
			slog.Warn("webhook signature verification failed",
				slog.String("error", err.Error()),
			)
			if h.collector != nil {
				h.collector.RecordWebhookEvent("unknown", "rejected")
			}
			writeAPIErrorResponse(w, http.StatusBadRequest, &model.APIError{
				Code:     model.ErrCodeInvalidSignature,
				Message:  "Webhook署名の検証に失敗しました。",
				Category: "billing",
				Action:   "Webhookシークレットの設定を確認してください。",
			})
			return
		}
		handleServiceError(w, err)
		return
	}

	eventType := webhookEventType(event)

	if err := h.service.HandleEvent(r.Context(), event); err != nil {
		slog.Error("webhook event processing failed",
			slog.String("type", eventType),
			slog.String("error", err.Error()),
		)
		if h.collector != nil {
			h.collector.RecordWebhookEvent(eventType, "failed")
		}
		writeAPIErrorResponse(w, http.StatusInternalServerError, &model.APIError{
			Code:     model.ErrCodeWebhookProcessing,
			Message:  "Webhookイベントの処理に失敗しました。",
			Category: "billing",
			Action:   "イベントは自動的に再配送されます。",
		})
		return
	}

	if h.collector != nil {
		h.collector.RecordWebhookEvent(eventType, "processed")
		if completed, ok := event.(billing.CheckoutCompleted); ok && completed.UserID != "" {
			h.collector.RecordUpgrade()
		}
	}

	writeJSON(w, http.StatusOK, map[string]bool{"received": true})
}

// webhookEventType はメトリクスラベル用のイベント種別を返す。
func webhookEventType(event billing.WebhookEvent) string {
	switch ev := event.(type) {
	case billing.CheckoutCompleted:
		return "checkout.session.completed"
	case billing.PaymentFailed:
		return "payment_intent.payment_failed"
	case billing.Unhandled:
		return ev.Type
	default:
		return "unknown"
	}
}
