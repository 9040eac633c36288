package domain

type Cart struct {
	ID         int64      `json:"id,omitempty"`
	Items      []CartItem `json:"items"`
	Total      Money      `json:"total"`
	TotalItems int        `json:"total_items"`
}

type CartItem struct {
	ID        int64   `json:"id,omitempty"`
	Product   Product `json:"product"`
	Quantity  int     `json:"quantity"`
	LineTotal Money   `json:"line_total"`
}

// ItemCount is the number of units across all lines.
func (c *Cart) ItemCount() int {
	if c == nil {
		return 0
	}
	n := 0
	for _, item := range c.Items {
		n += item.Quantity
	}
	return n
}

// Subtotal sums the server computed line totals for display.
func (c *Cart) Subtotal() Money {
	if c == nil {
		return 0
	}
	var cents int64
	for _, item := range c.Items {
		cents += item.LineTotal.Cents()
	}
	return Money(float64(cents) / 100)
}

// Item returns the line for the given product, if present.
func (c *Cart) Item(productID int64) (CartItem, bool) {
	if c == nil {
		return CartItem{}, false
	}
	for _, item := range c.Items {
		if item.Product.ID == productID {
			return item, true
		}
	}
	return CartItem{}, false
}

// Clone returns a deep copy safe to hand out of a manager.
func (c *Cart) Clone() *Cart {
	if c == nil {
		return nil
	}
	out := *c
	out.Items = append([]CartItem(nil), c.Items...)
	for i := range out.Items {
		out.Items[i].Product.Categories = append([]Category(nil), c.Items[i].Product.Categories...)
	}
	return &out
}
