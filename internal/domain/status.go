package domain

import "time"

// OrderStatus is the lifecycle status of an order.
//
//	initial -> accepted -> completed | cancelled | expired
//	initial -> rejected
//
// Once an order reaches a closed status it is never reopened.
type OrderStatus string

const (
	OrderStatusInitial   OrderStatus = "initial"
	OrderStatusAccepted  OrderStatus = "accepted"
	OrderStatusCompleted OrderStatus = "completed"
	OrderStatusCancelled OrderStatus = "cancelled"
	OrderStatusExpired   OrderStatus = "expired"
	OrderStatusRejected  OrderStatus = "rejected"
)

// Open reports whether the status is initial or accepted.
func (s OrderStatus) Open() bool {
	return s == OrderStatusInitial || s == OrderStatusAccepted
}

// Closed reports whether the status is an end state.
func (s OrderStatus) Closed() bool {
	switch s {
	case OrderStatusCompleted, OrderStatusCancelled, OrderStatusExpired, OrderStatusRejected:
		return true
	}
	return false
}

// Aborted reports whether the order ended without completing: cancelled,
// expired or rejected.
func (s OrderStatus) Aborted() bool {
	return s == OrderStatusCancelled || s == OrderStatusExpired || s == OrderStatusRejected
}

// OrderState is an immutable view of where an order is in its lifecycle.
// A zero OpenedAt or ClosedAt means the transition has not happened yet.
type OrderState struct {
	Order    Order
	Status   OrderStatus
	OpenedAt time.Time
	ClosedAt time.Time
}

// NewOrderState returns the initial state for order.
func NewOrderState(order Order) OrderState {
	return OrderState{Order: order, Status: OrderStatusInitial}
}

// Copy returns the state after moving to status at time t. Accepting an
// initial order stamps OpenedAt; closing an open order stamps ClosedAt (and
// OpenedAt when it was never set). Every other request returns s unchanged.
func (s OrderState) Copy(t time.Time, status OrderStatus) OrderState {
	switch {
	case status == OrderStatusAccepted && s.Status == OrderStatusInitial:
		return OrderState{Order: s.Order, Status: status, OpenedAt: t}
	case status.Closed() && s.Status.Open():
		opened := s.OpenedAt
		if opened.IsZero() {
			opened = t
		}
		return OrderState{Order: s.Order, Status: status, OpenedAt: opened, ClosedAt: t}
	default:
		return s
	}
}

// ID returns the underlying order id.
func (s OrderState) ID() int64 { return s.Order.ID }

// Asset returns the underlying order asset.
func (s OrderState) Asset() Asset { return s.Order.Asset }

// Open reports whether the order can still be processed.
func (s OrderState) Open() bool { return s.Status.Open() }

// Closed reports whether the order has reached an end state.
func (s OrderState) Closed() bool { return s.Status.Closed() }
