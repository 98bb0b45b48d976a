// Package cart holds the contents of a shopping cart: product ids with
// quantities, kept in the order they were first added.
package cart

import (
	"encoding/json"
	"fmt"
)

// Line is one product in the cart
type Line struct {
	ProductID int64 `json:"product_id"`
	Qty       int   `json:"qty"`
}

// Contents is an ordered list of cart lines. The zero value is an empty cart.
type Contents struct {
	lines []Line
}

// FromLines builds contents from stored lines. Non-positive quantities and
// repeated product ids are dropped.
func FromLines(lines []Line) Contents {
	var c Contents
	for _, l := range lines {
		if l.Qty <= 0 || c.index(l.ProductID) >= 0 {
			continue
		}
		c.lines = append(c.lines, l)
	}
	return c
}

// Lines returns a copy of the lines in insertion order
func (c Contents) Lines() []Line {
	out := make([]Line, len(c.lines))
	copy(out, c.lines)
	return out
}

// Len returns the number of distinct products
func (c Contents) Len() int {
	return len(c.lines)
}

// Units returns the sum of all quantities
func (c Contents) Units() int {
	total := 0
	for _, l := range c.lines {
		total += l.Qty
	}
	return total
}

// Qty returns the quantity held for productID
func (c Contents) Qty(productID int64) int {
	if i := c.index(productID); i >= 0 {
		return c.lines[i].Qty
	}
	return 0
}

// Add increases the quantity of productID by qty. The resulting quantity is
// never lower than 1.
func (c Contents) Add(productID int64, qty int) Contents {
	out := c.clone()
	if i := out.index(productID); i >= 0 {
		out.lines[i].Qty = max(1, out.lines[i].Qty+qty)
		return out
	}
	out.lines = append(out.lines, Line{ProductID: productID, Qty: max(1, qty)})
	return out
}

// SetQuantity sets the quantity of productID. qty <= 0 removes the product.
func (c Contents) SetQuantity(productID int64, qty int) Contents {
	out := c.clone()
	i := out.index(productID)
	switch {
	case qty <= 0 && i >= 0:
		out.lines = append(out.lines[:i], out.lines[i+1:]...)
	case qty <= 0:
	case i >= 0:
		out.lines[i].Qty = qty
	default:
		out.lines = append(out.lines, Line{ProductID: productID, Qty: qty})
	}
	return out
}

// Clear returns an empty cart
func (c Contents) Clear() Contents {
	return Contents{}
}

// MarshalJSON encodes the lines as a JSON array
func (c Contents) MarshalJSON() ([]byte, error) {
	if c.lines == nil {
		return []byte("[]"), nil
	}
	return json.Marshal(c.lines)
}

// UnmarshalJSON decodes a JSON array of lines
func (c *Contents) UnmarshalJSON(data []byte) error {
	var lines []Line
	if err := json.Unmarshal(data, &lines); err != nil {
		return fmt.Errorf("failed to decode cart: %w", err)
	}
	*c = FromLines(lines)
	return nil
}

func (c Contents) index(productID int64) int {
	for i, l := range c.lines {
		if l.ProductID == productID {
			return i
		}
	}
	return -1
}

func (c Contents) clone() Contents {
	return Contents{lines: c.Lines()}
}
