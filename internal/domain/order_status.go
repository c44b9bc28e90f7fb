package domain

import "slices"

// OrderStatus is the lifecycle state of an order.
type OrderStatus string

const (
	OrderStatusPendingPayment OrderStatus = "pending_payment"
	OrderStatusConfirmed      OrderStatus = "confirmed"
	OrderStatusPreparing      OrderStatus = "preparing"
	OrderStatusReady          OrderStatus = "ready"
	OrderStatusOutForDelivery OrderStatus = "out_for_delivery"
	OrderStatusDelivered      OrderStatus = "delivered"
	OrderStatusCancelled      OrderStatus = "cancelled"
)

var orderStatusLabels = map[OrderStatus]string{
	OrderStatusPendingPayment: "Aguardando Pagamento",
	OrderStatusConfirmed:      "Pedido Confirmado",
	OrderStatusPreparing:      "Em Preparação",
	OrderStatusReady:          "Pronto para Retirada",
	OrderStatusOutForDelivery: "Saiu para Entrega",
	OrderStatusDelivered:      "Entregue",
	OrderStatusCancelled:      "Cancelado",
}

var orderStatusTransitions = map[OrderStatus][]OrderStatus{
	OrderStatusPendingPayment: {OrderStatusConfirmed, OrderStatusCancelled},
	OrderStatusConfirmed:      {OrderStatusPreparing, OrderStatusCancelled},
	OrderStatusPreparing:      {OrderStatusReady, OrderStatusCancelled},
	OrderStatusReady:          {OrderStatusOutForDelivery, OrderStatusDelivered, OrderStatusCancelled},
	OrderStatusOutForDelivery: {OrderStatusDelivered},
	OrderStatusDelivered:      {},
	OrderStatusCancelled:      {},
}

// Valid reports whether the status is a known lifecycle state.
func (s OrderStatus) Valid() bool {
	_, ok := orderStatusTransitions[s]
	return ok
}

// Terminal reports whether no transition leaves the status.
func (s OrderStatus) Terminal() bool {
	return s == OrderStatusDelivered || s == OrderStatusCancelled
}

// Label is the customer-facing pt-BR label.
func (s OrderStatus) Label() string {
	if label, ok := orderStatusLabels[s]; ok {
		return label
	}
	return string(s)
}

// CanTransition reports whether target is a legal next state from current for an
// order with the given delivery mode. Pickup orders never go out for delivery.
func CanTransition(current, target OrderStatus, mode DeliveryMode) bool {
	if target == OrderStatusOutForDelivery && mode == DeliveryModePickup {
		return false
	}
	next, ok := orderStatusTransitions[current]
	if !ok {
		return false
	}
	return slices.Contains(next, target)
}

// AllowedTransitions lists the legal next states for the order, in table order.
func AllowedTransitions(order Order) []OrderStatus {
	next := orderStatusTransitions[order.Status]
	allowed := make([]OrderStatus, 0, len(next))
	for _, status := range next {
		if CanTransition(order.Status, status, order.DeliveryMode) {
			allowed = append(allowed, status)
		}
	}
	return allowed
}
