package domain

import (
	"fmt"
	"strings"
	"time"
)

// OrderState is the commercetools order state slot. Values are open-ended.
type OrderState string

const (
	OrderStateOpen      OrderState = "Open"
	OrderStateConfirmed OrderState = "Confirmed"
	OrderStateComplete  OrderState = "Complete"
	OrderStateCancelled OrderState = "Cancelled"
)

// StateKey references a business-unit-configured workflow state. The valid
// set and its transitions live in the store, not in code.
type StateKey string

func (k StateKey) String() string { return string(k) }

// IsZero reports an unset state slot.
func (k StateKey) IsZero() bool { return strings.TrimSpace(string(k)) == "" }

// State is a stored workflow state definition.
type State struct {
	ID          string     `json:"id"`
	ProjectID   string     `json:"-"`
	Key         StateKey   `json:"key"`
	Type        string     `json:"type"`
	Initial     bool       `json:"initial"`
	Transitions []StateKey `json:"transitions,omitempty"`
}

// Allows reports whether the definition permits moving to next. An empty
// transition list means any target is allowed.
func (s State) Allows(next StateKey) bool {
	if len(s.Transitions) == 0 {
		return true
	}
	for _, t := range s.Transitions {
		if t == next {
			return true
		}
	}
	return false
}

type ReturnItem struct {
	ID            string `json:"id"`
	LineItemID    string `json:"lineItemId"`
	Quantity      int    `json:"quantity"`
	Comment       string `json:"comment,omitempty"`
	ShipmentState string `json:"shipmentState"`
}

type ReturnInfo struct {
	ReturnTrackingID string       `json:"returnTrackingId"`
	ReturnDate       time.Time    `json:"returnDate"`
	Items            []ReturnItem `json:"items"`
}

// Order is the immutable snapshot of a cart at confirmation time.
type Order struct {
	ID                    string        `json:"id"`
	ProjectID             string        `json:"-"`
	Version               int           `json:"version"`
	OrderNumber           string        `json:"orderNumber"`
	PurchaseOrderNumber   string        `json:"purchaseOrderNumber,omitempty"`
	CartID                string        `json:"cartId"`
	CustomerID            *string       `json:"customerId,omitempty"`
	CustomerEmail         string        `json:"customerEmail,omitempty"`
	BusinessUnitKey       string        `json:"businessUnitKey,omitempty"`
	StoreKey              string        `json:"storeKey,omitempty"`
	Currency              string        `json:"currency"`
	Country               string        `json:"country,omitempty"`
	Locale                string        `json:"locale,omitempty"`
	OrderState            OrderState    `json:"orderState"`
	State                 StateKey      `json:"state,omitempty"`
	Origin                Origin        `json:"origin"`
	InventoryMode         InventoryMode `json:"inventoryMode"`
	IsPreBuy              bool          `json:"isPreBuy"`
	LineItems             []LineItem    `json:"lineItems"`
	ItemShippingAddresses []Address     `json:"itemShippingAddresses"`
	ShippingAddress       *Address      `json:"shippingAddress,omitempty"`
	BillingAddress        *Address      `json:"billingAddress,omitempty"`
	ReturnInfo            []ReturnInfo  `json:"returnInfo"`
	Custom                CustomFields  `json:"custom,omitempty"`
	TotalCents            int64         `json:"totalCents"`
	CreatedAt             time.Time     `json:"createdAt"`
	LastModifiedAt        time.Time     `json:"lastModifiedAt"`
}

// LineItem finds an order line by id.
func (o Order) LineItem(id string) (LineItem, bool) {
	for _, l := range o.LineItems {
		if l.ID == id {
			return l, true
		}
	}
	return LineItem{}, false
}

// ReturnedQuantity sums quantities already returned for a line item.
func (o Order) ReturnedQuantity(lineItemID string) int {
	total := 0
	for _, info := range o.ReturnInfo {
		for _, item := range info.Items {
			if item.LineItemID == lineItemID {
				total += item.Quantity
			}
		}
	}
	return total
}

// NewOrderNumber derives a human legible order number from t. Numbers sort
// lexically in chronological order: date and minute, then the microsecond
// offset within that minute.
func NewOrderNumber(t time.Time) string {
	t = t.UTC()
	micros := t.Second()*1_000_000 + t.Nanosecond()/1_000
	return fmt.Sprintf("%s-%08d", t.Format("20060102-1504"), micros)
}
