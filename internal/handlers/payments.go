package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/orchidmarket/api/internal/platform/auth"
	"github.com/orchidmarket/api/internal/platform/httpx"
	"github.com/orchidmarket/api/internal/services"
)

const (
	maxPaymentBodySize = 16 * 1024

	defaultConfirmLimit  = 30
	defaultConfirmWindow = time.Minute
)

type confirmPaymentRequest struct {
	OrderID          string `json:"order_id"`
	OrderNumber      string `json:"order_number"`
	GatewayPaymentID string `json:"gateway_payment_id"`
	GatewayOrderID   string `json:"gateway_order_id"`
	Signature        string `json:"signature"`
	Amount           int64  `json:"amount"`
}

// PaymentHandlers exposes the gateway confirmation endpoint and the payment
// sub-ledger reads.
type PaymentHandlers struct {
	authn    *auth.Authenticator
	payments services.PaymentService
	limiter  rateLimiter
}

// PaymentHandlersOption customises PaymentHandlers construction.
type PaymentHandlersOption func(*PaymentHandlers)

// WithConfirmRateLimit throttles confirmations per user.
func WithConfirmRateLimit(limit int, window time.Duration) PaymentHandlersOption {
	return func(h *PaymentHandlers) {
		h.limiter = newWindowRateLimiter(limit, window, nil)
	}
}

// NewPaymentHandlers constructs a new PaymentHandlers instance.
func NewPaymentHandlers(authn *auth.Authenticator, payments services.PaymentService, opts ...PaymentHandlersOption) *PaymentHandlers {
	h := &PaymentHandlers{
		authn:    authn,
		payments: payments,
		limiter:  newWindowRateLimiter(defaultConfirmLimit, defaultConfirmWindow, nil),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(h)
		}
	}
	return h
}

// Routes registers the /payments endpoints.
func (h *PaymentHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	r.With(requireAuth(h.authn)).Post("/", h.confirmPayment)
}

// OrderRoutes registers the order-scoped payment reads under /orders.
func (h *PaymentHandlers) OrderRoutes(r chi.Router) {
	if r == nil {
		return
	}
	r.With(requireAuth(h.authn, auth.RoleStaff, auth.RoleAdmin)).Get("/{orderID}/payments", h.listOrderPayments)
}

func (h *PaymentHandlers) confirmPayment(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.payments == nil {
		httpx.WriteError(ctx, w, httpx.NewError("payment_service_unavailable", "payment service unavailable", http.StatusServiceUnavailable))
		return
	}

	actor, ok := actorFromContext(ctx)
	if !ok {
		httpx.WriteError(ctx, w, httpx.NewError("unauthenticated", "authentication required", http.StatusUnauthorized))
		return
	}

	if h.limiter != nil && !h.limiter.Allow(actor.UserID) {
		httpx.WriteError(ctx, w, httpx.NewError("rate_limited", "too many payment confirmations, retry later", http.StatusTooManyRequests))
		return
	}

	var req confirmPaymentRequest
	body, err := readLimitedBody(r, maxPaymentBodySize)
	if err != nil {
		writeBodyError(ctx, w, err)
		return
	}
	if err := json.Unmarshal(body, &req); err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "invalid JSON body", http.StatusBadRequest))
		return
	}

	orderRef := strings.TrimSpace(req.OrderID)
	if orderRef == "" {
		orderRef = strings.TrimSpace(req.OrderNumber)
	}

	result, err := h.payments.Confirm(ctx, services.ConfirmPaymentCommand{
		OrderRef:         orderRef,
		GatewayPaymentID: strings.TrimSpace(req.GatewayPaymentID),
		GatewayOrderID:   strings.TrimSpace(req.GatewayOrderID),
		Signature:        strings.TrimSpace(req.Signature),
		Amount:           req.Amount,
		Actor:            actor,
	})
	if err != nil {
		writePaymentError(ctx, w, err)
		return
	}

	response := confirmPaymentResponse{
		Order:           buildOrderPayload(result.Order),
		PaymentRecorded: result.PaymentRecorded,
		Duplicate:       result.DuplicateConfirmation,
		SignatureValid:  result.SignatureValid,
		AmountMismatch:  result.AmountMismatch,
	}
	if result.Err != nil {
		response.Warning = "payment accepted but some updates failed and will be reconciled"
	}

	writeJSONResponse(w, http.StatusOK, response)
}

func (h *PaymentHandlers) listOrderPayments(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.payments == nil {
		httpx.WriteError(ctx, w, httpx.NewError("payment_service_unavailable", "payment service unavailable", http.StatusServiceUnavailable))
		return
	}

	actor, ok := actorFromContext(ctx)
	if !ok {
		httpx.WriteError(ctx, w, httpx.NewError("unauthenticated", "authentication required", http.StatusUnauthorized))
		return
	}

	orderID := strings.TrimSpace(chi.URLParam(r, "orderID"))
	if orderID == "" {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "order id is required", http.StatusBadRequest))
		return
	}

	records, err := h.payments.ListByOrder(ctx, orderID, actor)
	if err != nil {
		writePaymentError(ctx, w, err)
		return
	}

	items := make([]paymentRecordPayload, 0, len(records))
	for _, record := range records {
		items = append(items, buildPaymentRecordPayload(record))
	}
	writeJSONResponse(w, http.StatusOK, paymentListResponse{Payments: items})
}

type confirmPaymentResponse struct {
	Order           orderPayload `json:"order"`
	PaymentRecorded bool         `json:"payment_recorded"`
	Duplicate       bool         `json:"duplicate,omitempty"`
	SignatureValid  *bool        `json:"signature_valid,omitempty"`
	AmountMismatch  bool         `json:"amount_mismatch,omitempty"`
	Warning         string       `json:"warning,omitempty"`
}

type paymentListResponse struct {
	Payments []paymentRecordPayload `json:"payments"`
}

type paymentRecordPayload struct {
	OrderID          string `json:"order_id"`
	GatewayPaymentID string `json:"gateway_payment_id"`
	GatewayOrderID   string `json:"gateway_order_id,omitempty"`
	Amount           int64  `json:"amount"`
	SignatureValid   *bool  `json:"signature_valid,omitempty"`
	RecordedAt       string `json:"recorded_at"`
}

func buildPaymentRecordPayload(record services.PaymentRecord) paymentRecordPayload {
	return paymentRecordPayload{
		OrderID:          strings.TrimSpace(record.OrderID),
		GatewayPaymentID: strings.TrimSpace(record.GatewayPaymentID),
		GatewayOrderID:   strings.TrimSpace(record.GatewayOrderID),
		Amount:           record.Amount,
		SignatureValid:   record.SignatureValid,
		RecordedAt:       formatTime(record.RecordedAt),
	}
}

func writePaymentError(ctx context.Context, w http.ResponseWriter, err error) {
	if err == nil {
		return
	}
	switch {
	case errors.Is(err, services.ErrPaymentInvalidInput):
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
	case errors.Is(err, services.ErrPaymentForbidden):
		httpx.WriteError(ctx, w, httpx.NewError("forbidden", "not allowed to access payments for this order", http.StatusForbidden))
	case errors.Is(err, services.ErrPaymentOrderNotFound):
		httpx.WriteError(ctx, w, httpx.NewError("order_not_found", "order not found", http.StatusNotFound))
	default:
		httpx.WriteError(ctx, w, httpx.NewError("payment_error", "failed to process payment request", http.StatusInternalServerError))
	}
}
