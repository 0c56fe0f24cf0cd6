package domain

import "slices"

var adminTransitions = map[OrderStatus][]OrderStatus{
	OrderStatusPending:        {OrderStatusProcessing, OrderStatusCancelled},
	OrderStatusProcessing:     {OrderStatusShipped, OrderStatusCancelled},
	OrderStatusShipped:        {OrderStatusOutForDelivery, OrderStatusDelivered, OrderStatusCancelled},
	OrderStatusOutForDelivery: {OrderStatusDelivered, OrderStatusCancelled},
}

// Payment callbacks never reach shipped or delivered.
var webhookTransitions = map[OrderStatus][]OrderStatus{
	OrderStatusPending:    {OrderStatusProcessing, OrderStatusCancelled},
	OrderStatusProcessing: {OrderStatusPending},
}

// ValidOrderStatus reports whether status is a known order status.
func ValidOrderStatus(status OrderStatus) bool {
	switch status {
	case OrderStatusPending, OrderStatusProcessing, OrderStatusShipped,
		OrderStatusOutForDelivery, OrderStatusDelivered, OrderStatusCancelled:
		return true
	default:
		return false
	}
}

// CanTransition reports whether actor may move an order from current to target.
// Terminal statuses never move, not even to themselves.
func CanTransition(actor StatusActor, current, target OrderStatus) bool {
	if current.Terminal() {
		return false
	}
	var table map[OrderStatus][]OrderStatus
	switch actor {
	case StatusActorAdmin:
		table = adminTransitions
	case StatusActorPaymentWebhook:
		table = webhookTransitions
	default:
		return false
	}
	return slices.Contains(table[current], target)
}
