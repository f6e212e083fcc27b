package order

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

var (
	ErrNotFound               = errors.New("order: not found")
	ErrConflict               = errors.New("order: already exists")
	ErrEmptyOrder             = errors.New("order: at least one line item is required")
	ErrInvalidLineItem        = errors.New("order: invalid line item")
	ErrInvalidDeliveryFee     = errors.New("order: delivery fee must be zero or greater")
	ErrInvalidStateTransition = errors.New("order: invalid state transition")
	ErrMissingCustomer        = errors.New("order: customer id is required")
)

type Status string

const (
	StatusProcessing Status = "processing"
	StatusPaid       Status = "paid"
	StatusCancelled  Status = "cancelled"
)

// LineItem is a priced snapshot of one cart entry taken at placement.
type LineItem struct {
	Key                string            `json:"key"`
	ProductID          string            `json:"product_id"`
	DisplayName        string            `json:"name"`
	Options            []string          `json:"options,omitempty"`
	RequiredSelections map[string]string `json:"required_selections,omitempty"`
	Quantity           int               `json:"quantity"`
	UnitPrice          decimal.Decimal   `json:"unit_price"`
}

func (li LineItem) Subtotal() decimal.Decimal {
	return li.UnitPrice.Mul(decimal.NewFromInt(int64(li.Quantity)))
}

// CheckoutName renders "Name (opt1, opt2) [group: choice, ...]" with groups sorted.
func (li LineItem) CheckoutName() string {
	var b strings.Builder
	b.WriteString(li.DisplayName)
	if len(li.Options) > 0 {
		b.WriteString(" (")
		b.WriteString(strings.Join(li.Options, ", "))
		b.WriteString(")")
	}
	if len(li.RequiredSelections) > 0 {
		groups := make([]string, 0, len(li.RequiredSelections))
		for g := range li.RequiredSelections {
			groups = append(groups, g)
		}
		sort.Strings(groups)
		parts := make([]string, 0, len(groups))
		for _, g := range groups {
			parts = append(parts, g+": "+li.RequiredSelections[g])
		}
		b.WriteString(" [")
		b.WriteString(strings.Join(parts, ", "))
		b.WriteString("]")
	}
	return b.String()
}

func (li LineItem) validate() error {
	if li.ProductID == "" {
		return fmt.Errorf("%w: product id is required", ErrInvalidLineItem)
	}
	if li.Quantity < 1 {
		return fmt.Errorf("%w: quantity must be at least one for %s", ErrInvalidLineItem, li.Key)
	}
	if li.UnitPrice.IsNegative() {
		return fmt.Errorf("%w: negative unit price for %s", ErrInvalidLineItem, li.Key)
	}
	return nil
}

func (li LineItem) clone() LineItem {
	li.Options = append([]string(nil), li.Options...)
	if li.RequiredSelections != nil {
		sel := make(map[string]string, len(li.RequiredSelections))
		for k, v := range li.RequiredSelections {
			sel[k] = v
		}
		li.RequiredSelections = sel
	}
	return li
}

type Address struct {
	FirstName   string `json:"first_name"`
	LastName    string `json:"last_name"`
	Email       string `json:"email"`
	Street      string `json:"street"`
	HouseNumber string `json:"house_number"`
	Zipcode     string `json:"zipcode"`
	City        string `json:"city"`
	State       string `json:"state"`
	Phone       string `json:"phone"`
	Note        string `json:"note,omitempty"`
}

type Order struct {
	ID               string          `json:"id"`
	CustomerID       string          `json:"customer_id"`
	IdempotencyKey   string          `json:"idempotency_key,omitempty"`
	Items            []LineItem      `json:"items"`
	DeliveryFee      decimal.Decimal `json:"delivery_fee"`
	Amount           decimal.Decimal `json:"amount"`
	Address          Address         `json:"address"`
	Status           Status          `json:"status"`
	PaymentConfirmed bool            `json:"payment_confirmed"`
	CreatedAt        time.Time       `json:"created_at"`
	UpdatedAt        time.Time       `json:"updated_at"`
}

// New validates the line items and fee and returns an order in Processing whose
// Amount is the sum of line subtotals plus the delivery fee.
func New(id, customerID string, items []LineItem, deliveryFee decimal.Decimal, address Address, now time.Time) (*Order, error) {
	if customerID == "" {
		return nil, ErrMissingCustomer
	}
	if len(items) == 0 {
		return nil, ErrEmptyOrder
	}
	if deliveryFee.IsNegative() {
		return nil, ErrInvalidDeliveryFee
	}

	amount := deliveryFee
	snapshot := make([]LineItem, 0, len(items))
	for _, li := range items {
		if err := li.validate(); err != nil {
			return nil, err
		}
		amount = amount.Add(li.Subtotal())
		snapshot = append(snapshot, li.clone())
	}

	now = now.UTC()
	return &Order{
		ID:          id,
		CustomerID:  customerID,
		Items:       snapshot,
		DeliveryFee: deliveryFee,
		Amount:      amount,
		Address:     address,
		Status:      StatusProcessing,
		CreatedAt:   now,
		UpdatedAt:   now,
	}, nil
}

// ItemsTotal is the sum of line subtotals, excluding the delivery fee.
func (o *Order) ItemsTotal() decimal.Decimal {
	total := decimal.Zero
	for _, li := range o.Items {
		total = total.Add(li.Subtotal())
	}
	return total
}

func (o *Order) Clone() *Order {
	if o == nil {
		return nil
	}
	cp := *o
	cp.Items = make([]LineItem, len(o.Items))
	for i, li := range o.Items {
		cp.Items[i] = li.clone()
	}
	return &cp
}

func (o *Order) touch(now time.Time) {
	o.UpdatedAt = now.UTC()
}
