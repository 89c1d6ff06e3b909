package domain

import "sort"

type CartLine struct {
	ItemID   string `json:"itemId"`
	Quantity int    `json:"quantity"`
}

// Cart is a member's staging area. Lines hold at most one entry per item.
type Cart struct {
	MemberID string     `json:"memberId"`
	Lines    []CartLine `json:"items"`
}

func NewCart(memberID string) Cart {
	return Cart{MemberID: memberID, Lines: []CartLine{}}
}

func (c Cart) IsEmpty() bool {
	return len(c.Lines) == 0
}

// QuantityOf returns the quantity of itemID in the cart and whether a line exists.
func (c Cart) QuantityOf(itemID string) (int, bool) {
	for _, l := range c.Lines {
		if l.ItemID == itemID {
			return l.Quantity, true
		}
	}
	return 0, false
}

// Add merges qty into an existing line or appends a new one.
func (c *Cart) Add(itemID string, qty int) {
	for i := range c.Lines {
		if c.Lines[i].ItemID == itemID {
			c.Lines[i].Quantity += qty
			return
		}
	}
	c.Lines = append(c.Lines, CartLine{ItemID: itemID, Quantity: qty})
}

// Set replaces the quantity of an existing line. It returns false when the
// item is not in the cart.
func (c *Cart) Set(itemID string, qty int) bool {
	for i := range c.Lines {
		if c.Lines[i].ItemID == itemID {
			c.Lines[i].Quantity = qty
			return true
		}
	}
	return false
}

func (c *Cart) Remove(itemID string) bool {
	for i := range c.Lines {
		if c.Lines[i].ItemID == itemID {
			c.Lines = append(c.Lines[:i], c.Lines[i+1:]...)
			return true
		}
	}
	return false
}

func (c *Cart) Clear() {
	c.Lines = []CartLine{}
}

// SortedLines returns a copy of the lines ordered by item ID, the order in
// which checkout locks and decrements items.
func (c Cart) SortedLines() []CartLine {
	lines := make([]CartLine, len(c.Lines))
	copy(lines, c.Lines)
	sort.Slice(lines, func(i, j int) bool { return lines[i].ItemID < lines[j].ItemID })
	return lines
}
