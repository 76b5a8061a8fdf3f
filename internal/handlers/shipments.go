package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/orchidmarket/api/internal/platform/auth"
	"github.com/orchidmarket/api/internal/platform/httpx"
	"github.com/orchidmarket/api/internal/services"
)

const maxShipmentBodySize = 8 * 1024

type createShipmentRequest struct {
	Carrier     string `json:"carrier"`
	TrackingRef string `json:"tracking_ref"`
}

type updateShipmentRequest struct {
	Status      string `json:"status"`
	TrackingRef string `json:"tracking_ref"`
}

// ShipmentHandlers exposes the staff fulfilment endpoints under /orders.
type ShipmentHandlers struct {
	authn     *auth.Authenticator
	shipments services.ShipmentService
}

// NewShipmentHandlers constructs a new ShipmentHandlers instance.
func NewShipmentHandlers(authn *auth.Authenticator, shipments services.ShipmentService) *ShipmentHandlers {
	return &ShipmentHandlers{
		authn:     authn,
		shipments: shipments,
	}
}

// OrderRoutes registers the order-scoped shipment endpoints.
func (h *ShipmentHandlers) OrderRoutes(r chi.Router) {
	if r == nil {
		return
	}
	requireUser := requireAuth(h.authn)
	requireStaff := requireAuth(h.authn, auth.RoleStaff, auth.RoleAdmin)

	r.With(requireUser).Get("/{orderID}/shipments", h.listShipments)
	r.With(requireStaff).Post("/{orderID}/shipments", h.createShipment)
	r.With(requireStaff).Patch("/{orderID}/shipments/{shipmentID}", h.updateShipment)
}

func (h *ShipmentHandlers) createShipment(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.shipments == nil {
		httpx.WriteError(ctx, w, httpx.NewError("shipment_service_unavailable", "shipment service unavailable", http.StatusServiceUnavailable))
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

	var req createShipmentRequest
	body, err := readLimitedBody(r, maxShipmentBodySize)
	if err != nil {
		writeBodyError(ctx, w, err)
		return
	}
	if err := json.Unmarshal(body, &req); err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "invalid JSON body", http.StatusBadRequest))
		return
	}

	shipment, err := h.shipments.Create(ctx, services.CreateShipmentCommand{
		OrderID:     orderID,
		Carrier:     strings.TrimSpace(req.Carrier),
		TrackingRef: strings.TrimSpace(req.TrackingRef),
		Actor:       actor,
	})
	if err != nil {
		writeShipmentError(ctx, w, err)
		return
	}

	writeJSONResponse(w, http.StatusCreated, shipmentResponse{Shipment: buildShipmentPayload(shipment)})
}

func (h *ShipmentHandlers) updateShipment(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.shipments == nil {
		httpx.WriteError(ctx, w, httpx.NewError("shipment_service_unavailable", "shipment service unavailable", http.StatusServiceUnavailable))
		return
	}

	actor, ok := actorFromContext(ctx)
	if !ok {
		httpx.WriteError(ctx, w, httpx.NewError("unauthenticated", "authentication required", http.StatusUnauthorized))
		return
	}

	shipmentID := strings.TrimSpace(chi.URLParam(r, "shipmentID"))
	if shipmentID == "" {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "shipment id is required", http.StatusBadRequest))
		return
	}

	var req updateShipmentRequest
	body, err := readLimitedBody(r, maxShipmentBodySize)
	if err != nil {
		writeBodyError(ctx, w, err)
		return
	}
	if err := json.Unmarshal(body, &req); err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "invalid JSON body", http.StatusBadRequest))
		return
	}

	shipment, err := h.shipments.Update(ctx, services.UpdateShipmentCommand{
		ShipmentID:  shipmentID,
		Status:      strings.TrimSpace(req.Status),
		TrackingRef: strings.TrimSpace(req.TrackingRef),
		Actor:       actor,
	})
	if err != nil {
		writeShipmentError(ctx, w, err)
		return
	}

	writeJSONResponse(w, http.StatusOK, shipmentResponse{Shipment: buildShipmentPayload(shipment)})
}

func (h *ShipmentHandlers) listShipments(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.shipments == nil {
		httpx.WriteError(ctx, w, httpx.NewError("shipment_service_unavailable", "shipment service unavailable", http.StatusServiceUnavailable))
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

	shipments, err := h.shipments.ListByOrder(ctx, orderID, actor)
	if err != nil {
		writeShipmentError(ctx, w, err)
		return
	}

	items := make([]shipmentPayload, 0, len(shipments))
	for _, shipment := range shipments {
		items = append(items, buildShipmentPayload(shipment))
	}
	writeJSONResponse(w, http.StatusOK, shipmentListResponse{Shipments: items})
}

type shipmentResponse struct {
	Shipment shipmentPayload `json:"shipment"`
}

type shipmentListResponse struct {
	Shipments []shipmentPayload `json:"shipments"`
}

type shipmentPayload struct {
	ID          string `json:"id"`
	OrderID     string `json:"order_id"`
	Carrier     string `json:"carrier"`
	TrackingRef string `json:"tracking_ref,omitempty"`
	Status      string `json:"status"`
	CreatedAt   string `json:"created_at"`
	UpdatedAt   string `json:"updated_at,omitempty"`
}

func buildShipmentPayload(shipment services.Shipment) shipmentPayload {
	return shipmentPayload{
		ID:          strings.TrimSpace(shipment.ID),
		OrderID:     strings.TrimSpace(shipment.OrderID),
		Carrier:     strings.TrimSpace(shipment.Carrier),
		TrackingRef: strings.TrimSpace(shipment.TrackingRef),
		Status:      string(shipment.Status),
		CreatedAt:   formatTime(shipment.CreatedAt),
		UpdatedAt:   formatTime(shipment.UpdatedAt),
	}
}

func writeShipmentError(ctx context.Context, w http.ResponseWriter, err error) {
	if err == nil {
		return
	}
	switch {
	case errors.Is(err, services.ErrShipmentInvalidInput):
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
	case errors.Is(err, services.ErrShipmentForbidden):
		httpx.WriteError(ctx, w, httpx.NewError("forbidden", "not allowed to manage shipments", http.StatusForbidden))
	case errors.Is(err, services.ErrShipmentNotFound):
		httpx.WriteError(ctx, w, httpx.NewError("shipment_not_found", "shipment or order not found", http.StatusNotFound))
	default:
		httpx.WriteError(ctx, w, httpx.NewError("shipment_error", "failed to process shipment request", http.StatusInternalServerError))
	}
}
