package domain

import "testing"

func TestCanTransitionAdmin(t *testing.T) {
	cases := []struct {
		from, to OrderStatus
		want     bool
	}{
		{OrderStatusPending, OrderStatusProcessing, true},
		{OrderStatusProcessing, OrderStatusShipped, true},
		{OrderStatusShipped, OrderStatusDelivered, true},
		{OrderStatusShipped, OrderStatusOutForDelivery, true},
		{OrderStatusOutForDelivery, OrderStatusDelivered, true},
		{OrderStatusPending, OrderStatusShipped, false},
		{OrderStatusProcessing, OrderStatusPending, false},
		{OrderStatusShipped, OrderStatusProcessing, false},
		{OrderStatusPending, OrderStatusCancelled, true},
		{OrderStatusProcessing, OrderStatusCancelled, true},
		{OrderStatusShipped, OrderStatusCancelled, true},
		{OrderStatusOutForDelivery, OrderStatusCancelled, true},
		{OrderStatusDelivered, OrderStatusCancelled, false},
		{OrderStatusCancelled, OrderStatusPending, false},
		{OrderStatusPending, OrderStatusPending, false},
	}
	for _, tc := range cases {
		if got := CanTransition(StatusActorAdmin, tc.from, tc.to); got != tc.want {
			t.Fatalf("admin %s -> %s: expected %v, got %v", tc.from, tc.to, tc.want, got)
		}
	}
}

func TestCanTransitionWebhookStaysBeforeShipping(t *testing.T) {
	allowed := map[[2]OrderStatus]bool{
		{OrderStatusPending, OrderStatusProcessing}: true,
		{OrderStatusProcessing, OrderStatusPending}: true,
		{OrderStatusPending, OrderStatusCancelled}:  true,
	}
	all := []OrderStatus{
		OrderStatusPending, OrderStatusProcessing, OrderStatusShipped,
		OrderStatusOutForDelivery, OrderStatusDelivered, OrderStatusCancelled,
	}
	for _, from := range all {
		for _, to := range all {
			want := allowed[[2]OrderStatus{from, to}]
			if got := CanTransition(StatusActorPaymentWebhook, from, to); got != want {
				t.Fatalf("webhook %s -> %s: expected %v, got %v", from, to, want, got)
			}
		}
	}
}

func TestCanTransitionUnknownActor(t *testing.T) {
	if CanTransition(StatusActorCheckout, OrderStatusPending, OrderStatusProcessing) {
		t.Fatalf("checkout actor must not drive transitions")
	}
}

func TestValidOrderStatus(t *testing.T) {
	if !ValidOrderStatus(OrderStatusOutForDelivery) {
		t.Fatalf("expected out_for_delivery to be valid")
	}
	if ValidOrderStatus("refunded") {
		t.Fatalf("expected unknown status to be invalid")
	}
}
