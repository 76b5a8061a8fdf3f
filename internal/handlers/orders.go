package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/orchidmarket/api/internal/platform/auth"
	"github.com/orchidmarket/api/internal/platform/httpx"
	"github.com/orchidmarket/api/internal/services"
)

const (
	maxOrderBodySize       = 64 * 1024
	maxOrderCancelBodySize = 4 * 1024
	maxOrderStatusBodySize = 4 * 1024
)

type createOrderRequest struct {
	Items           []createOrderItemRequest `json:"items"`
	ShippingAddress addressPayload           `json:"shipping_address"`
	BillingAddress  addressPayload           `json:"billing_address"`
	PaymentMethod   string                   `json:"payment_method"`
	Currency        string                   `json:"currency"`
}

type createOrderItemRequest struct {
	ProductRef string `json:"product_ref"`
	VariantRef string `json:"variant_ref,omitempty"`
	Quantity   int    `json:"quantity"`
}

type cancelOrderRequest struct {
	Reason string `json:"reason"`
}

type setOrderStatusRequest struct {
	Status        string `json:"status"`
	PaymentStatus string `json:"payment_status,omitempty"`
}

// OrderHandlers exposes the order lifecycle endpoints.
type OrderHandlers struct {
	authn  *auth.Authenticator
	orders services.OrderService
}

// NewOrderHandlers constructs a new OrderHandlers instance.
func NewOrderHandlers(authn *auth.Authenticator, orders services.OrderService) *OrderHandlers {
	return &OrderHandlers{
		authn:  authn,
		orders: orders,
	}
}

// Routes registers the /orders endpoints. Staff-only routes carry the staff
// role requirement in their middleware chain.
func (h *OrderHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	requireUser := requireAuth(h.authn)
	requireStaff := requireAuth(h.authn, auth.RoleStaff, auth.RoleAdmin)

	r.With(requireUser).Post("/", h.createOrder)
	r.With(requireUser).Get("/", h.listOrders)
	r.With(requireUser).Get("/{orderID}", h.getOrder)
	r.With(requireUser).Patch("/{orderID}/cancel", h.cancelOrder)
	r.With(requireStaff).Patch("/{orderID}/status", h.setOrderStatus)
	r.With(requireStaff).Put("/by-number/{orderNumber}/status", h.setOrderStatusByNumber)
}

func requireAuth(authn *auth.Authenticator, roles ...string) func(http.Handler) http.Handler {
	if authn == nil {
		return func(next http.Handler) http.Handler { return next }
	}
	return authn.RequireFirebaseAuth(roles...)
}

func (h *OrderHandlers) createOrder(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.orders == nil {
		httpx.WriteError(ctx, w, httpx.NewError("order_service_unavailable", "order service unavailable", http.StatusServiceUnavailable))
		return
	}

	actor, ok := actorFromContext(ctx)
	if !ok {
		httpx.WriteError(ctx, w, httpx.NewError("unauthenticated", "authentication required", http.StatusUnauthorized))
		return
	}

	var req createOrderRequest
	body, err := readLimitedBody(r, maxOrderBodySize)
	if err != nil {
		writeBodyError(ctx, w, err)
		return
	}
	if err := json.Unmarshal(body, &req); err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "invalid JSON body", http.StatusBadRequest))
		return
	}

	items := make([]services.CreateOrderItemInput, 0, len(req.Items))
	for _, item := range req.Items {
		items = append(items, services.CreateOrderItemInput{
			ProductRef: strings.TrimSpace(item.ProductRef),
			VariantRef: strings.TrimSpace(item.VariantRef),
			Quantity:   item.Quantity,
		})
	}

	order, err := h.orders.Create(ctx, services.CreateOrderCommand{
		Actor:           actor,
		Items:           items,
		ShippingAddress: req.ShippingAddress.toAddress(),
		BillingAddress:  req.BillingAddress.toAddress(),
		PaymentMethod:   strings.TrimSpace(req.PaymentMethod),
		Currency:        strings.TrimSpace(req.Currency),
	})
	if err != nil {
		writeOrderError(ctx, w, err)
		return
	}

	writeJSONResponse(w, http.StatusCreated, orderResponse{Order: buildOrderPayload(order)})
}

func (h *OrderHandlers) listOrders(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.orders == nil {
		httpx.WriteError(ctx, w, httpx.NewError("order_service_unavailable", "order service unavailable", http.StatusServiceUnavailable))
		return
	}

	actor, ok := actorFromContext(ctx)
	if !ok {
		httpx.WriteError(ctx, w, httpx.NewError("unauthenticated", "authentication required", http.StatusUnauthorized))
		return
	}

	query := r.URL.Query()
	page, err := parsePositiveInt(query.Get("page"), 1)
	if err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "page must be a positive integer", http.StatusBadRequest))
		return
	}
	limit, err := parsePositiveInt(query.Get("limit"), 0)
	if err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "limit must be a positive integer", http.StatusBadRequest))
		return
	}

	result, err := h.orders.List(ctx, services.OrderListFilter{
		Actor:  actor,
		Page:   page,
		Limit:  limit,
		Search: strings.TrimSpace(query.Get("search")),
	})
	if err != nil {
		writeOrderError(ctx, w, err)
		return
	}

	orders := make([]orderPayload, 0, len(result.Items))
	for _, order := range result.Items {
		orders = append(orders, buildOrderPayload(order))
	}

	writeJSONResponse(w, http.StatusOK, orderListResponse{
		Page:   result.Page,
		Limit:  result.Limit,
		Total:  result.Total,
		Orders: orders,
	})
}

func (h *OrderHandlers) getOrder(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.orders == nil {
		httpx.WriteError(ctx, w, httpx.NewError("order_service_unavailable", "order service unavailable", http.StatusServiceUnavailable))
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

	order, err := h.orders.Get(ctx, orderID, actor)
	if err != nil {
		writeOrderError(ctx, w, err)
		return
	}

	writeJSONResponse(w, http.StatusOK, orderResponse{Order: buildOrderPayload(order)})
}

func (h *OrderHandlers) cancelOrder(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.orders == nil {
		httpx.WriteError(ctx, w, httpx.NewError("order_service_unavailable", "order service unavailable", http.StatusServiceUnavailable))
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

	var req cancelOrderRequest
	body, err := readLimitedBody(r, maxOrderCancelBodySize)
	if err != nil && !errors.Is(err, errEmptyBody) {
		writeBodyError(ctx, w, err)
		return
	}
	if len(body) > 0 {
		if err := json.Unmarshal(body, &req); err != nil {
			httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "invalid JSON body", http.StatusBadRequest))
			return
		}
	}

	order, err := h.orders.Cancel(ctx, services.CancelOrderCommand{
		OrderID: orderID,
		Actor:   actor,
		Reason:  strings.TrimSpace(req.Reason),
	})
	if err != nil {
		writeOrderError(ctx, w, err)
		return
	}

	writeJSONResponse(w, http.StatusOK, orderResponse{Order: buildOrderPayload(order)})
}

func (h *OrderHandlers) setOrderStatus(w http.ResponseWriter, r *http.Request) {
	h.updateStatus(w, r, strings.TrimSpace(chi.URLParam(r, "orderID")))
}

func (h *OrderHandlers) setOrderStatusByNumber(w http.ResponseWriter, r *http.Request) {
	h.updateStatus(w, r, strings.TrimSpace(chi.URLParam(r, "orderNumber")))
}

func (h *OrderHandlers) updateStatus(w http.ResponseWriter, r *http.Request, orderRef string) {
	ctx := r.Context()
	if h.orders == nil {
		httpx.WriteError(ctx, w, httpx.NewError("order_service_unavailable", "order service unavailable", http.StatusServiceUnavailable))
		return
	}

	actor, ok := actorFromContext(ctx)
	if !ok {
		httpx.WriteError(ctx, w, httpx.NewError("unauthenticated", "authentication required", http.StatusUnauthorized))
		return
	}

	if orderRef == "" {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "order reference is required", http.StatusBadRequest))
		return
	}

	var req setOrderStatusRequest
	body, err := readLimitedBody(r, maxOrderStatusBodySize)
	if err != nil {
		writeBodyError(ctx, w, err)
		return
	}
	if err := json.Unmarshal(body, &req); err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "invalid JSON body", http.StatusBadRequest))
		return
	}

	order, err := h.orders.SetStatus(ctx, services.SetOrderStatusCommand{
		OrderRef:      orderRef,
		Status:        strings.TrimSpace(req.Status),
		PaymentStatus: strings.TrimSpace(req.PaymentStatus),
		Actor:         actor,
	})
	if err != nil {
		writeOrderError(ctx, w, err)
		return
	}

	writeJSONResponse(w, http.StatusOK, orderResponse{Order: buildOrderPayload(order)})
}

type orderListResponse struct {
	Page   int            `json:"page"`
	Limit  int            `json:"limit"`
	Total  int            `json:"total"`
	Orders []orderPayload `json:"orders"`
}

type orderResponse struct {
	Order orderPayload `json:"order"`
}

type orderPayload struct {
	ID              string             `json:"id"`
	OrderNumber     string             `json:"order_number"`
	UserID          string             `json:"user_id"`
	Items           []orderItemPayload `json:"items"`
	Subtotal        int64              `json:"subtotal"`
	TaxAmount       int64              `json:"tax_amount"`
	ShippingCost    int64              `json:"shipping_cost"`
	TotalAmount     int64              `json:"total_amount"`
	Currency        string             `json:"currency"`
	Status          string             `json:"status"`
	PaymentStatus   string             `json:"payment_status"`
	PaymentMethod   string             `json:"payment_method,omitempty"`
	ShippingAddress *addressPayload    `json:"shipping_address,omitempty"`
	BillingAddress  *addressPayload    `json:"billing_address,omitempty"`
	QRPayload       string             `json:"qr_payload,omitempty"`
	CreatedAt       string             `json:"created_at"`
	UpdatedAt       string             `json:"updated_at,omitempty"`
	PaidAt          string             `json:"paid_at,omitempty"`
	CancelledAt     string             `json:"cancelled_at,omitempty"`
}

type orderItemPayload struct {
	ProductRef string `json:"product_ref"`
	VariantRef string `json:"variant_ref,omitempty"`
	Name       string `json:"name"`
	ImageURL   string `json:"image_url,omitempty"`
	Quantity   int    `json:"quantity"`
	UnitPrice  int64  `json:"unit_price"`
	LineTotal  int64  `json:"line_total"`
}

func buildOrderPayload(order services.Order) orderPayload {
	payload := orderPayload{
		ID:            strings.TrimSpace(order.ID),
		OrderNumber:   strings.TrimSpace(order.OrderNumber),
		UserID:        strings.TrimSpace(order.UserID),
		Items:         make([]orderItemPayload, 0, len(order.Items)),
		Subtotal:      order.Subtotal,
		TaxAmount:     order.TaxAmount,
		ShippingCost:  order.ShippingCost,
		TotalAmount:   order.TotalAmount,
		Currency:      strings.ToUpper(strings.TrimSpace(order.Currency)),
		Status:        string(order.Status),
		PaymentStatus: string(order.PaymentStatus),
		PaymentMethod: strings.TrimSpace(order.PaymentMethod),
		QRPayload:     services.QRPayload(order),
		CreatedAt:     formatTime(order.CreatedAt),
		UpdatedAt:     formatTime(order.UpdatedAt),
		PaidAt:        formatTime(pointerTime(order.PaidAt)),
		CancelledAt:   formatTime(pointerTime(order.CancelledAt)),
	}

	for _, item := range order.Items {
		payload.Items = append(payload.Items, orderItemPayload{
			ProductRef: strings.TrimSpace(item.ProductRef),
			VariantRef: strings.TrimSpace(item.VariantRef),
			Name:       strings.TrimSpace(item.Name),
			ImageURL:   strings.TrimSpace(item.ImageURL),
			Quantity:   item.Quantity,
			UnitPrice:  item.UnitPrice,
			LineTotal:  item.LineTotal(),
		})
	}

	if shipping := buildAddressPayload(order.ShippingAddress); !shipping.isEmpty() {
		payload.ShippingAddress = &shipping
	}
	if billing := buildAddressPayload(order.BillingAddress); !billing.isEmpty() {
		payload.BillingAddress = &billing
	}

	return payload
}

func writeOrderError(ctx context.Context, w http.ResponseWriter, err error) {
	if err == nil {
		return
	}
	switch {
	case errors.Is(err, services.ErrOrderInvalidItem):
		httpx.WriteError(ctx, w, httpx.NewError("invalid_item", err.Error(), http.StatusBadRequest))
	case errors.Is(err, services.ErrOrderInvalidInput):
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
	case errors.Is(err, services.ErrOrderInvalidStatus):
		httpx.WriteError(ctx, w, httpx.NewError("invalid_status", err.Error(), http.StatusBadRequest))
	case errors.Is(err, services.ErrOrderForbidden):
		httpx.WriteError(ctx, w, httpx.NewError("forbidden", "not allowed to access this order", http.StatusForbidden))
	case errors.Is(err, services.ErrOrderNotFound):
		httpx.WriteError(ctx, w, httpx.NewError("order_not_found", "order not found", http.StatusNotFound))
	case errors.Is(err, services.ErrOrderConflict):
		httpx.WriteError(ctx, w, httpx.NewError("order_conflict", err.Error(), http.StatusConflict))
	case errors.Is(err, services.ErrOrderInvalidState):
		httpx.WriteError(ctx, w, httpx.NewError("order_invalid_state", err.Error(), http.StatusConflict))
	default:
		httpx.WriteError(ctx, w, httpx.NewError("order_error", "failed to process order request", http.StatusInternalServerError))
	}
}

func writeBodyError(ctx context.Context, w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, errBodyTooLarge):
		httpx.WriteError(ctx, w, httpx.NewError("payload_too_large", "request body exceeds allowed size", http.StatusRequestEntityTooLarge))
	case errors.Is(err, errEmptyBody):
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "request body is required", http.StatusBadRequest))
	default:
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
	}
}

func parsePositiveInt(raw string, fallback int) (int, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return fallback, nil
	}
	value, err := strconv.Atoi(raw)
	if err != nil || value < 1 {
		return 0, errors.New("not a positive integer")
	}
	return value, nil
}
