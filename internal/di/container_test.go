package di

import (
	"reflect"
	"testing"

	domain "github.com/orchidmarket/api/internal/domain"
	"github.com/orchidmarket/api/internal/platform/config"
)

func TestTransitionPolicyFromConfigOverridesCancellation(t *testing.T) {
	policy := transitionPolicyFromConfig(config.OrdersConfig{
		OwnerCancellableStatuses: []string{" Pending ", "paid"},
		StaffCancellableStatuses: []string{"pending", "paid", "shipped"},
	})

	wantOwner := []domain.OrderStatus{domain.OrderStatusPending, domain.OrderStatusPaid}
	if !reflect.DeepEqual(policy.OwnerCancellable, wantOwner) {
		t.Fatalf("owner cancellable = %v, want %v", policy.OwnerCancellable, wantOwner)
	}
	wantStaff := []domain.OrderStatus{domain.OrderStatusPending, domain.OrderStatusPaid, domain.OrderStatusShipped}
	if !reflect.DeepEqual(policy.StaffCancellable, wantStaff) {
		t.Fatalf("staff cancellable = %v, want %v", policy.StaffCancellable, wantStaff)
	}
}

func TestTransitionPolicyFromConfigSkipsUnknownStatuses(t *testing.T) {
	policy := transitionPolicyFromConfig(config.OrdersConfig{
		OwnerCancellableStatuses: []string{"teleported", ""},
		StaffCancellableStatuses: []string{"paid", "refunded"},
	})

	// Nothing valid survives the owner list, so the default stays in force.
	wantOwner := []domain.OrderStatus{domain.OrderStatusPending}
	if !reflect.DeepEqual(policy.OwnerCancellable, wantOwner) {
		t.Fatalf("owner cancellable = %v, want default %v", policy.OwnerCancellable, wantOwner)
	}
	wantStaff := []domain.OrderStatus{domain.OrderStatusPaid}
	if !reflect.DeepEqual(policy.StaffCancellable, wantStaff) {
		t.Fatalf("staff cancellable = %v, want %v", policy.StaffCancellable, wantStaff)
	}
}

func TestTransitionPolicyFromConfigKeepsDefaultTransitions(t *testing.T) {
	policy := transitionPolicyFromConfig(config.OrdersConfig{})

	if !policy.Allows(domain.OrderStatusPending, domain.OrderStatusPaid) {
		t.Fatalf("pending to paid must stay allowed")
	}
	if policy.Allows(domain.OrderStatusCancelled, domain.OrderStatusPending) {
		t.Fatalf("cancelled must stay terminal")
	}
}
