package models

// OrderLineItem is a read-only line of the order being split.
// Quantity and UnitPrice are the values at the time of sale; the engine never mutates them.
// All money amounts in this package are in minor currency units (centavos).
type OrderLineItem struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Quantity  int64  `json:"quantity"`
	UnitPrice int64  `json:"unit_price"`
	Notes     string `json:"notes,omitempty"`
}

// OrderSnapshot is an immutable view of the order being paid.
// It is created once per session by the order client; seeing upstream changes
// requires a fresh fetch.
type OrderSnapshot struct {
	OrderID    string          `json:"order_id"`
	TableLabel string          `json:"table_label"`
	LineItems  []OrderLineItem `json:"line_items"`
}

// GrandTotal is always derived from the line items, never stored independently.
func (o *OrderSnapshot) GrandTotal() int64 {
	var total int64
	for _, item := range o.LineItems {
		total += item.Quantity * item.UnitPrice
	}
	return total
}

// LineItem returns the line item with the given id, if present.
func (o *OrderSnapshot) LineItem(id string) (OrderLineItem, bool) {
	for _, item := range o.LineItems {
		if item.ID == id {
			return item, true
		}
	}
	return OrderLineItem{}, false
}
