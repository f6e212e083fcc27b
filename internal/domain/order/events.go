package order

import "time"

// PlacedEvent is emitted once an order is persisted, whatever the checkout outcome.
type PlacedEvent struct {
	OrderID    string    `json:"order_id"`
	CustomerID string    `json:"customer_id"`
	Recipient  string    `json:"recipient"`
	Order      *Order    `json:"order"`
	OccurredAt time.Time `json:"occurred_at"`
}

func (PlacedEvent) EventName() string      { return "order.placed" }
func (e PlacedEvent) PartitionKey() string { return e.OrderID }

func NewPlacedEvent(o *Order, now time.Time) PlacedEvent {
	return PlacedEvent{
		OrderID:    o.ID,
		CustomerID: o.CustomerID,
		Recipient:  o.Address.Email,
		Order:      o.Clone(),
		OccurredAt: now.UTC(),
	}
}

// PaidEvent is emitted when a Processing order becomes Paid.
type PaidEvent struct {
	OrderID    string    `json:"order_id"`
	CustomerID string    `json:"customer_id"`
	OccurredAt time.Time `json:"occurred_at"`
}

func (PaidEvent) EventName() string      { return "order.paid" }
func (e PaidEvent) PartitionKey() string { return e.OrderID }

func NewPaidEvent(o *Order, now time.Time) PaidEvent {
	return PaidEvent{OrderID: o.ID, CustomerID: o.CustomerID, OccurredAt: now.UTC()}
}

// CancelledEvent is emitted when a failed payment removes a Processing order.
type CancelledEvent struct {
	OrderID    string    `json:"order_id"`
	CustomerID string    `json:"customer_id"`
	OccurredAt time.Time `json:"occurred_at"`
}

func (CancelledEvent) EventName() string      { return "order.cancelled" }
func (e CancelledEvent) PartitionKey() string { return e.OrderID }

func NewCancelledEvent(o *Order, now time.Time) CancelledEvent {
	return CancelledEvent{OrderID: o.ID, CustomerID: o.CustomerID, OccurredAt: now.UTC()}
}
