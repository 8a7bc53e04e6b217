package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/hitoshi/studymap/internal/billing"
	"github.com/hitoshi/studymap/internal/middleware"
	"github.com/hitoshi/studymap/internal/model"
)

// --- モック定義 ---

type mockBillingService struct {
	startCheckoutFn func(ctx context.Context, user *model.User) (*billing.CheckoutSession, error)
	parseWebhookFn  func(payload []byte, sigHeader string) (billing.WebhookEvent, error)
	handleEventFn   func(ctx context.Context, event billing.WebhookEvent) error
	historyFn       func(ctx context.Context, userID string) ([]*model.PaymentTransaction, error)
}

func (m *mockBillingService) StartCheckout(ctx context.Context, user *model.User) (*billing.CheckoutSession, error) {
	if m.startCheckoutFn != nil {
		return m.startCheckoutFn(ctx, user)
	}
	return &billing.CheckoutSession{ID: "cs_test", URL: "https://checkout.stripe.com/pay/cs_test"}, nil
}

func (m *mockBillingService) ParseWebhook(payload []byte, sigHeader string) (billing.WebhookEvent, error) {
	if m.parseWebhookFn != nil {
		return m.parseWebhookFn(payload, sigHeader)
	}
	return billing.Unhandled{Type: "unknown"}, nil
}

func (m *mockBillingService) HandleEvent(ctx context.Context, event billing.WebhookEvent) error {
	if m.handleEventFn != nil {
		return m.handleEventFn(ctx, event)
	}
	return nil
}

func (m *mockBillingService) History(ctx context.Context, userID string) ([]*model.PaymentTransaction, error) {
	if m.historyFn != nil {
		return m.historyFn(ctx, userID)
	}
	return nil, nil
}

var _ BillingServiceInterface = (*mockBillingService)(nil)

func billingHandlerWith(svc *mockBillingService, users UserFinder) *BillingHandler {
	if users == nil {
		users = &mockUserFinder{
			findByIDFn: func(ctx context.Context, id string) (*model.User, error) {
				return testUser(model.PlanFree, 5), nil
			},
		}
	}
	return NewBillingHandler(svc, users, nil)
}

func authedRequest(method, target string, body string) *http.Request {
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
	} else {
		req = httptest.NewRequest(method, target, nil)
	}
	return req.WithContext(middleware.ContextWithUserID(req.Context(), "user-1"))
}

// --- Checkout ---

func TestBillingHandler_StartCheckout_ReturnsSessionURL(t *testing.T) {
	var checkoutUser *model.User
	svc := &mockBillingService{
		startCheckoutFn: func(ctx context.Context, user *model.User) (*billing.CheckoutSession, error) {
			checkoutUser = user
			return &billing.CheckoutSession{
				ID:  "cs_test_123",
				URL: "https://checkout.stripe.com/pay/cs_test_123",
			}, nil
		},
	}
	h := billingHandlerWith(svc, nil)

	w := httptest.NewRecorder()
	h.StartCheckout(w, authedRequest(http.MethodPost, "/api/billing/checkout", ""))

	resp := w.Result()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want %d", resp.StatusCode, http.StatusOK)
	}

	var body checkoutResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if body.SessionID != "cs_test_123" {
		t.Errorf("session_id = %q, want %q", body.SessionID, "cs_test_123")
	}
	if body.URL != "https://checkout.stripe.com/pay/cs_test_123" {
		t.Errorf("url = %q", body.URL)
	}
	if checkoutUser == nil || checkoutUser.ID != "user-1" {
		t.Error("StartCheckout should receive the session user")
	}
}

func TestBillingHandler_StartCheckout_AlreadyPremium_Returns409(t *testing.T) {
	svc := &mockBillingService{
		startCheckoutFn: func(ctx context.Context, user *model.User) (*billing.CheckoutSession, error) {
			return nil, model.NewAlreadyPremiumError()
		},
	}
	h := billingHandlerWith(svc, nil)

	w := httptest.NewRecorder()
	h.StartCheckout(w, authedRequest(http.MethodPost, "/api/billing/checkout", ""))

	resp := w.Result()
	if resp.StatusCode != http.StatusConflict {
		t.Errorf("status = %d, want %d", resp.StatusCode, http.StatusConflict)
	}

	var body apiErrorResponse
	if err := json.NewDecoder(w.Body).Decode(&body); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if body.Code != model.ErrCodeAlreadyPremium {
		t.Errorf("error code = %q, want %q", body.Code, model.ErrCodeAlreadyPremium)
	}
}

func TestBillingHandler_StartCheckout_ProviderError_Returns502(t *testing.T) {
	svc := &mockBillingService{
		startCheckoutFn: func(ctx context.Context, user *model.User) (*billing.CheckoutSession, error) {
			return nil, model.NewCheckoutFailedError()
		},
	}
	h := billingHandlerWith(svc, nil)

	w := httptest.NewRecorder()
	h.StartCheckout(w, authedRequest(http.MethodPost, "/api/billing/checkout", ""))

	resp := w.Result()
	if resp.StatusCode != http.StatusBadGateway {
		t.Errorf("status = %d, want %d", resp.StatusCode, http.StatusBadGateway)
	}
}

func TestBillingHandler_StartCheckout_NoSession_Returns401(t *testing.T) {
	h := billingHandlerWith(&mockBillingService{}, nil)

	req := httptest.NewRequest(http.MethodPost, "/api/billing/checkout", nil)
	w := httptest.NewRecorder()
	h.StartCheckout(w, req)

	resp := w.Result()
	if resp.StatusCode != http.StatusUnauthorized {
		t.Errorf("status = %d, want %d", resp.StatusCode, http.StatusUnauthorized)
	}
}

// --- History ---

func TestBillingHandler_History_ReturnsTransactions(t *testing.T) {
	created := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	svc := &mockBillingService{
		historyFn: func(ctx context.Context, userID string) ([]*model.PaymentTransaction, error) {
			if userID != "user-1" {
				t.Errorf("userID = %q, want %q", userID, "user-1")
			}
			return []*model.PaymentTransaction{
				{
					ID:              "txn-1",
					UserID:          "user-1",
					StripeSessionID: "cs_test_123",
					Amount:          2000,
					Currency:        "eur",
					Status:          model.TransactionCompleted,
					CreatedAt:       created,
				},
			}, nil
		},
	}
	h := billingHandlerWith(svc, nil)

	w := httptest.NewRecorder()
	h.History(w, authedRequest(http.MethodGet, "/api/billing/history", ""))

	resp := w.Result()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want %d", resp.StatusCode, http.StatusOK)
	}

	var body struct {
		Transactions []transactionResponse `json:"transactions"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if len(body.Transactions) != 1 {
		t.Fatalf("transactions count = %d, want 1", len(body.Transactions))
	}
	txn := body.Transactions[0]
	if txn.Amount != 2000 || txn.Currency != "eur" {
		t.Errorf("amount/currency = %d/%s, want 2000/eur", txn.Amount, txn.Currency)
	}
	if txn.Status != "completed" {
		t.Errorf("status = %q, want %q", txn.Status, "completed")
	}
	if txn.CreatedAt != "2025-06-01T12:00:00Z" {
		t.Errorf("created_at = %q", txn.CreatedAt)
	}
}

func TestBillingHandler_History_Empty_ReturnsEmptyList(t *testing.T) {
	h := billingHandlerWith(&mockBillingService{}, nil)

	w := httptest.NewRecorder()
	h.History(w, authedRequest(http.MethodGet, "/api/billing/history", ""))

	var body struct {
		Transactions []transactionResponse `json:"transactions"`
	}
	if err := json.NewDecoder(w.Body).Decode(&body); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if body.Transactions == nil {
		t.Error("transactions should be an empty array, not null")
	}
}

// --- Webhook ---

func TestBillingHandler_Webhook_ValidEvent_ReturnsReceived(t *testing.T) {
	handled := false
	svc := &mockBillingService{
		parseWebhookFn: func(payload []byte, sigHeader string) (billing.WebhookEvent, error) {
			if sigHeader != "t=123,v1=abc" {
				t.Errorf("sigHeader = %q", sigHeader)
			}
			return billing.CheckoutCompleted{
				EventID:   "evt_1",
				SessionID: "cs_test_123",
				UserID:    "user-1",
				Amount:    2000,
				Currency:  "eur",
			}, nil
		},
		handleEventFn: func(ctx context.Context, event billing.WebhookEvent) error {
			handled = true
			return nil
		},
	}
	h := billingHandlerWith(svc, nil)

	req := httptest.NewRequest(http.MethodPost, "/webhooks/stripe", strings.NewReader(`{"id":"evt_1"}`))
	req.Header.Set("Stripe-Signature", "t=123,v1=abc")
	w := httptest.NewRecorder()

	h.Webhook(w, req)

	resp := w.Result()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want %d", resp.StatusCode, http.StatusOK)
	}
	if !handled {
		t.Error("HandleEvent should have been called")
	}

	var body map[string]bool
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if !body["received"] {
		t.Error("received = false, want true")
	}
}

func TestBillingHandler_Webhook_InvalidSignature_Returns400(t *testing.T) {
	svc := &mockBillingService{
		parseWebhookFn: func(payload []byte, sigHeader string) (billing.WebhookEvent, error) {
			return nil, billing.ErrInvalidSignature
		},
		handleEventFn: func(ctx context.Context, event billing.WebhookEvent) error {
			t.Fatal("HandleEvent should not be called for invalid signature")
			return nil
		},
	}
	h := billingHandlerWith(svc, nil)

	req := httptest.NewRequest(http.MethodPost, "/webhooks/stripe", strings.NewReader(`{}`))
	req.Header.Set("Stripe-Signature", "t=123,v1=bogus")
	w := httptest.NewRecorder()

	h.Webhook(w, req)

	resp := w.Result()
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("status = %d, want %d", resp.StatusCode, http.StatusBadRequest)
	}

	var body apiErrorResponse
	if err := json.NewDecoder(w.Body).Decode(&body); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if body.Code != model.ErrCodeInvalidSignature {
		t.Errorf("error code = %q, want %q", body.Code, model.ErrCodeInvalidSignature)
	}
}

func TestBillingHandler_Webhook_ProcessingError_Returns500(t *testing.T) {
	svc := &mockBillingService{
		parseWebhookFn: func(payload []byte, sigHeader string) (billing.WebhookEvent, error) {
			return billing.CheckoutCompleted{EventID: "evt_1", UserID: "user-1"}, nil
		},
		handleEventFn: func(ctx context.Context, event billing.WebhookEvent) error {
			return errors.New("db down")
		},
	}
	h := billingHandlerWith(svc, nil)

	req := httptest.NewRequest(http.MethodPost, "/webhooks/stripe", strings.NewReader(`{}`))
	req.Header.Set("Stripe-Signature", "t=123,v1=abc")
	w := httptest.NewRecorder()

	h.Webhook(w, req)

	// 500を返してStripeの再配送に委ねること
	resp := w.Result()
	if resp.StatusCode != http.StatusInternalServerError {
		t.Errorf("status = %d, want %d", resp.StatusCode, http.StatusInternalServerError)
	}

	var body apiErrorResponse
	if err := json.NewDecoder(w.Body).Decode(&body); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if body.Code != model.ErrCodeWebhookProcessing {
		t.Errorf("error code = %q, want %q", body.Code, model.ErrCodeWebhookProcessing)
	}
}

func TestBillingHandler_Webhook_UnhandledEvent_StillAcked(t *testing.T) {
	svc := &mockBillingService{
		parseWebhookFn: func(payload []byte, sigHeader string) (billing.WebhookEvent, error) {
			return billing.Unhandled{EventID: "evt_x", Type: "invoice.created"}, nil
		},
	}
	h := billingHandlerWith(svc, nil)

	req := httptest.NewRequest(http.MethodPost, "/webhooks/stripe", strings.NewReader(`{}`))
	req.Header.Set("Stripe-Signature", "t=123,v1=abc")
	w := httptest.NewRecorder()

	h.Webhook(w, req)

	resp := w.Result()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("status = %d, want %d", resp.StatusCode, http.StatusOK)
	}
}
