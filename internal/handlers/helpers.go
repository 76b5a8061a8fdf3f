package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/orchidmarket/api/internal/platform/auth"
	"github.com/orchidmarket/api/internal/services"
)

const defaultBodyLimit = 64 * 1024

var (
	errEmptyBody    = errors.New("request body is empty")
	errBodyTooLarge = errors.New("request body too large")
)

func readLimitedBody(r *http.Request, limit int64) ([]byte, error) {
	if r == nil || r.Body == nil {
		return nil, errEmptyBody
	}
	if limit <= 0 {
		limit = defaultBodyLimit
	}
	reader := io.LimitReader(r.Body, limit+1)
	data, err := io.ReadAll(reader)
	if err != nil {
		return nil, err
	}
	if len(strings.TrimSpace(string(data))) == 0 {
		return nil, errEmptyBody
	}
	if int64(len(data)) > limit {
		return nil, errBodyTooLarge
	}
	return data, nil
}

func writeJSONResponse(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339Nano)
}

func pointerTime(t *time.Time) time.Time {
	if t == nil {
		return time.Time{}
	}
	return *t
}

// actorFromContext derives the service-layer actor from the authenticated
// identity. Staff covers both the staff and admin roles.
func actorFromContext(ctx context.Context) (services.Actor, bool) {
	identity, ok := auth.IdentityFromContext(ctx)
	if !ok || identity == nil || strings.TrimSpace(identity.UID) == "" {
		return services.Actor{}, false
	}
	return services.Actor{
		UserID: strings.TrimSpace(identity.UID),
		Email:  strings.TrimSpace(identity.Email),
		Staff:  identity.IsStaff(),
	}, true
}

type addressPayload struct {
	Name       string `json:"name,omitempty"`
	Line1      string `json:"line1,omitempty"`
	Line2      string `json:"line2,omitempty"`
	City       string `json:"city,omitempty"`
	State      string `json:"state,omitempty"`
	PostalCode string `json:"postal_code,omitempty"`
	Country    string `json:"country,omitempty"`
	Phone      string `json:"phone,omitempty"`
}

func buildAddressPayload(addr services.Address) addressPayload {
	return addressPayload{
		Name:       strings.TrimSpace(addr.Name),
		Line1:      strings.TrimSpace(addr.Line1),
		Line2:      strings.TrimSpace(addr.Line2),
		City:       strings.TrimSpace(addr.City),
		State:      strings.TrimSpace(addr.State),
		PostalCode: strings.TrimSpace(addr.PostalCode),
		Country:    strings.TrimSpace(addr.Country),
		Phone:      strings.TrimSpace(addr.Phone),
	}
}

func (p addressPayload) toAddress() services.Address {
	return services.Address{
		Name:       strings.TrimSpace(p.Name),
		Line1:      strings.TrimSpace(p.Line1),
		Line2:      strings.TrimSpace(p.Line2),
		City:       strings.TrimSpace(p.City),
		State:      strings.TrimSpace(p.State),
		PostalCode: strings.TrimSpace(p.PostalCode),
		Country:    strings.TrimSpace(p.Country),
		Phone:      strings.TrimSpace(p.Phone),
	}
}

func (p addressPayload) isEmpty() bool {
	return p == addressPayload{}
}
