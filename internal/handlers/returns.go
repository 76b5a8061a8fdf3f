package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	domain "github.com/orchidmarket/api/internal/domain"
	"github.com/orchidmarket/api/internal/platform/auth"
	"github.com/orchidmarket/api/internal/platform/httpx"
	"github.com/orchidmarket/api/internal/services"
)

const maxReturnBodySize = 8 * 1024

type requestReturnRequest struct {
	Reason string `json:"reason"`
}

// ReturnHandlers exposes the return sub-ledger endpoints.
type ReturnHandlers struct {
	authn   *auth.Authenticator
	returns services.ReturnService
}

// NewReturnHandlers constructs a new ReturnHandlers instance.
func NewReturnHandlers(authn *auth.Authenticator, returns services.ReturnService) *ReturnHandlers {
	return &ReturnHandlers{
		authn:   authn,
		returns: returns,
	}
}

// OrderRoutes registers the order-scoped return endpoints under /orders.
func (h *ReturnHandlers) OrderRoutes(r chi.Router) {
	if r == nil {
		return
	}
	requireUser := requireAuth(h.authn)

	r.With(requireUser).Post("/{orderID}/returns", h.requestReturn)
	r.With(requireUser).Get("/{orderID}/returns", h.listReturns)
}

// Routes registers the staff transition endpoints under /returns.
func (h *ReturnHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	requireStaff := requireAuth(h.authn, auth.RoleStaff, auth.RoleAdmin)

	r.With(requireStaff).Patch("/{returnID}/approve", h.transition(domain.ReturnStatusApproved))
	r.With(requireStaff).Patch("/{returnID}/reject", h.transition(domain.ReturnStatusRejected))
	r.With(requireStaff).Patch("/{returnID}/receive", h.transition(domain.ReturnStatusReceived))
}

func (h *ReturnHandlers) requestReturn(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.returns == nil {
		httpx.WriteError(ctx, w, httpx.NewError("return_service_unavailable", "return service unavailable", http.StatusServiceUnavailable))
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

	var req requestReturnRequest
	body, err := readLimitedBody(r, maxReturnBodySize)
	if err != nil {
		writeBodyError(ctx, w, err)
		return
	}
	if err := json.Unmarshal(body, &req); err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "invalid JSON body", http.StatusBadRequest))
		return
	}

	ret, err := h.returns.Request(ctx, services.RequestReturnCommand{
		OrderID: orderID,
		Actor:   actor,
		Reason:  strings.TrimSpace(req.Reason),
	})
	if err != nil {
		writeReturnError(ctx, w, err)
		return
	}

	writeJSONResponse(w, http.StatusCreated, returnResponse{Return: buildReturnPayload(ret)})
}

func (h *ReturnHandlers) listReturns(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.returns == nil {
		httpx.WriteError(ctx, w, httpx.NewError("return_service_unavailable", "return service unavailable", http.StatusServiceUnavailable))
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

	returns, err := h.returns.ListByOrder(ctx, orderID, actor)
	if err != nil {
		writeReturnError(ctx, w, err)
		return
	}

	items := make([]returnPayload, 0, len(returns))
	for _, ret := range returns {
		items = append(items, buildReturnPayload(ret))
	}
	writeJSONResponse(w, http.StatusOK, returnListResponse{Returns: items})
}

func (h *ReturnHandlers) transition(target domain.ReturnStatus) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		if h.returns == nil {
			httpx.WriteError(ctx, w, httpx.NewError("return_service_unavailable", "return service unavailable", http.StatusServiceUnavailable))
			return
		}

		actor, ok := actorFromContext(ctx)
		if !ok {
			httpx.WriteError(ctx, w, httpx.NewError("unauthenticated", "authentication required", http.StatusUnauthorized))
			return
		}

		returnID := strings.TrimSpace(chi.URLParam(r, "returnID"))
		if returnID == "" {
			httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "return id is required", http.StatusBadRequest))
			return
		}

		ret, err := h.returns.Transition(ctx, services.TransitionReturnCommand{
			ReturnID: returnID,
			Target:   target,
			Actor:    actor,
		})
		if err != nil {
			writeReturnError(ctx, w, err)
			return
		}

		writeJSONResponse(w, http.StatusOK, returnResponse{Return: buildReturnPayload(ret)})
	}
}

type returnResponse struct {
	Return returnPayload `json:"return"`
}

type returnListResponse struct {
	Returns []returnPayload `json:"returns"`
}

type returnPayload struct {
	ID        string `json:"id"`
	OrderID   string `json:"order_id"`
	UserID    string `json:"user_id"`
	Reason    string `json:"reason"`
	Status    string `json:"status"`
	CreatedAt string `json:"created_at"`
	UpdatedAt string `json:"updated_at,omitempty"`
}

func buildReturnPayload(ret services.Return) returnPayload {
	return returnPayload{
		ID:        strings.TrimSpace(ret.ID),
		OrderID:   strings.TrimSpace(ret.OrderID),
		UserID:    strings.TrimSpace(ret.UserID),
		Reason:    strings.TrimSpace(ret.Reason),
		Status:    string(ret.Status),
		CreatedAt: formatTime(ret.CreatedAt),
		UpdatedAt: formatTime(ret.UpdatedAt),
	}
}

func writeReturnError(ctx context.Context, w http.ResponseWriter, err error) {
	if err == nil {
		return
	}
	switch {
	case errors.Is(err, services.ErrReturnInvalidInput):
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
	case errors.Is(err, services.ErrReturnForbidden):
		httpx.WriteError(ctx, w, httpx.NewError("forbidden", "not allowed to access returns for this order", http.StatusForbidden))
	case errors.Is(err, services.ErrReturnNotFound):
		httpx.WriteError(ctx, w, httpx.NewError("return_not_found", "return or order not found", http.StatusNotFound))
	case errors.Is(err, services.ErrReturnInvalidState):
		httpx.WriteError(ctx, w, httpx.NewError("return_invalid_state", err.Error(), http.StatusConflict))
	default:
		httpx.WriteError(ctx, w, httpx.NewError("return_error", "failed to process return request", http.StatusInternalServerError))
	}
}
