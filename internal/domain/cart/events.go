package cart

import "time"

// ClearFailedEvent asks the cart worker to retry removing an order's lines from
// the cart after the order was placed. Lines holds the quantities the order took.
type ClearFailedEvent struct {
	OrderID    string      `json:"order_id"`
	CustomerID string      `json:"customer_id"`
	Lines      map[Key]int `json:"lines"`
	Reason     string      `json:"reason"`
	Attempt    int         `json:"attempt"`
	OccurredAt time.Time   `json:"occurred_at"`
}

func (ClearFailedEvent) EventName() string      { return "cart.clear_failed" }
func (e ClearFailedEvent) PartitionKey() string { return e.CustomerID }
