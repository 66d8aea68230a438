package model

import (
	"bytes"
	"encoding/json"
	"strings"

	"github.com/shopspring/decimal"
)

// --- Order Structures (as sent by the upstream order service) ---

// Order is a single restaurant order to be rendered on a receipt. Money
// fields are trusted from upstream: nothing here recomputes Total.
type Order struct {
	ID              string          `json:"id"`
	CustomerName    string          `json:"customerName,omitempty"`
	CustomerPhone   string          `json:"customerPhone,omitempty"`
	Items           []Item          `json:"items"`
	Subtotal        decimal.Decimal `json:"subtotal"`
	DeliveryFee     decimal.Decimal `json:"deliveryFee"`
	Total           decimal.Decimal `json:"total"`
	PaymentMethod   string          `json:"paymentMethod,omitempty"`
	DeliveryAddress string          `json:"deliveryAddress,omitempty"`
	ChangeFor       decimal.Decimal `json:"changeFor"`
}

type Item struct {
	Quantity int             `json:"quantity"`
	Name     string          `json:"name"`
	Price    decimal.Decimal `json:"price"`
	Notes    string          `json:"notes,omitempty"`
	Extras   []string        `json:"extras,omitempty"`
}

// UnmarshalJSON decodes an order leniently. The id may be a string or a
// number; money fields that are missing or not numeric become zero and a
// missing item list becomes empty.
func (o *Order) UnmarshalJSON(data []byte) error {
	var raw struct {
		ID              json.RawMessage `json:"id"`
		CustomerName    json.RawMessage `json:"customerName"`
		CustomerPhone   json.RawMessage `json:"customerPhone"`
		Items           json.RawMessage `json:"items"`
		Subtotal        json.RawMessage `json:"subtotal"`
		DeliveryFee     json.RawMessage `json:"deliveryFee"`
		Total           json.RawMessage `json:"total"`
		PaymentMethod   json.RawMessage `json:"paymentMethod"`
		DeliveryAddress json.RawMessage `json:"deliveryAddress"`
		ChangeFor       json.RawMessage `json:"changeFor"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	*o = Order{
		ID:              lenientString(raw.ID),
		CustomerName:    lenientString(raw.CustomerName),
		CustomerPhone:   lenientString(raw.CustomerPhone),
		Subtotal:        lenientDecimal(raw.Subtotal),
		DeliveryFee:     lenientDecimal(raw.DeliveryFee),
		Total:           lenientDecimal(raw.Total),
		PaymentMethod:   lenientString(raw.PaymentMethod),
		DeliveryAddress: lenientString(raw.DeliveryAddress),
		ChangeFor:       lenientDecimal(raw.ChangeFor),
	}

	var items []json.RawMessage
	if len(raw.Items) > 0 && json.Unmarshal(raw.Items, &items) == nil {
		for _, rawItem := range items {
			var item Item
			if err := json.Unmarshal(rawItem, &item); err != nil {
				continue
			}
			o.Items = append(o.Items, item)
		}
	}
	o.Normalize()
	return nil
}

// UnmarshalJSON decodes a line item with the same leniency as Order.
func (i *Item) UnmarshalJSON(data []byte) error {
	var raw struct {
		Quantity json.RawMessage   `json:"quantity"`
		Name     json.RawMessage   `json:"name"`
		Price    json.RawMessage   `json:"price"`
		Notes    json.RawMessage   `json:"notes"`
		Extras   []json.RawMessage `json:"extras"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	*i = Item{
		Name:  lenientString(raw.Name),
		Price: lenientDecimal(raw.Price),
		Notes: lenientString(raw.Notes),
	}
	i.Quantity = int(lenientDecimal(raw.Quantity).IntPart())
	if i.Quantity < 1 {
		i.Quantity = 1
	}
	for _, extra := range raw.Extras {
		// Extras arrive either as plain strings or as {"name": ...} objects.
		var named struct {
			Name string `json:"name"`
		}
		if s := lenientString(extra); s != "" {
			i.Extras = append(i.Extras, s)
		} else if json.Unmarshal(extra, &named) == nil && named.Name != "" {
			i.Extras = append(i.Extras, named.Name)
		}
	}
	return nil
}

// Normalize fills the defaults the renderer relies on. It never touches
// values that are already set.
func (o *Order) Normalize() {
	o.ID = strings.TrimSpace(o.ID)
	if o.Items == nil {
		o.Items = []Item{}
	}
}

func lenientString(raw json.RawMessage) string {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return strings.TrimSpace(s)
	}
	var n json.Number
	if err := json.Unmarshal(raw, &n); err == nil {
		return n.String()
	}
	return ""
}

func lenientDecimal(raw json.RawMessage) decimal.Decimal {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 {
		return decimal.Zero
	}
	var d decimal.Decimal
	if err := d.UnmarshalJSON(raw); err != nil {
		return decimal.Zero
	}
	return d
}
