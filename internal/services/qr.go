package services

import domain "github.com/orchidmarket/api/internal/domain"

// IsQRCodeEligible is the single source of truth for whether an order may
// carry a pickup QR code. Eligibility is exactly the paid state: earlier
// states have nothing to redeem yet and later states already consumed it.
func IsQRCodeEligible(order domain.Order) bool {
	return order.Status == domain.OrderStatusPaid
}

// QRPayload returns the content encoded into the QR image for an eligible
// order: the raw order id, no envelope. Scanners resolve it with a plain
// order lookup. Returns "" for ineligible orders.
func QRPayload(order domain.Order) string {
	if !IsQRCodeEligible(order) {
		return ""
	}
	return order.ID
}
