// Package cart holds the per-session shopping cart aggregate.
//
// A Cart keeps at most one line per menu item, in the order items were
// first added. Prices are snapshotted when an item is added, so later menu
// edits never change what the customer is about to pay.
package cart

import (
	"sync"

	"cardapio/internal/models"

	"github.com/shopspring/decimal"
)

// Line is one menu item in the cart with its snapshot name and price.
type Line struct {
	ItemID    int64           `json:"menu_item_id"`
	Name      string          `json:"name"`
	UnitPrice decimal.Decimal `json:"unit_price"`
	Quantity  int             `json:"quantity"`
}

// Subtotal returns UnitPrice * Quantity.
func (l Line) Subtotal() decimal.Decimal {
	return l.UnitPrice.Mul(decimal.NewFromInt(int64(l.Quantity)))
}

// Snapshot is a consistent copy of the cart contents.
type Snapshot struct {
	Lines []Line          `json:"lines"`
	Total decimal.Decimal `json:"total"`
}

// Observer is notified after every mutation that changed the cart.
type Observer func(Snapshot)

// Cart is safe for concurrent use; every mutation goes through one mutex,
// so a read that follows a mutation always observes it.
type Cart struct {
	mu        sync.Mutex
	lines     []Line
	index     map[int64]int
	observers map[int]Observer
	nextObs   int
}

// New returns an empty cart.
func New() *Cart {
	return &Cart{
		index:     make(map[int64]int),
		observers: make(map[int]Observer),
	}
}

// Add puts quantity units of item into the cart. If a line for the item
// already exists its quantity is incremented and the original snapshot is
// kept. Quantities below one are treated as one.
func (c *Cart) Add(item models.MenuItem, quantity int) {
	if quantity < 1 {
		quantity = 1
	}

	c.mu.Lock()
	if i, ok := c.index[item.ID]; ok {
		c.lines[i].Quantity += quantity
	} else {
		c.index[item.ID] = len(c.lines)
		c.lines = append(c.lines, Line{
			ItemID:    item.ID,
			Name:      item.Name,
			UnitPrice: item.Price,
			Quantity:  quantity,
		})
	}
	snap, observers := c.snapshotLocked(), c.observersLocked()
	c.mu.Unlock()

	notify(observers, snap)
}

// Remove deletes the line for itemID. Removing an absent item is a no-op.
// It reports whether a line was removed.
func (c *Cart) Remove(itemID int64) bool {
	c.mu.Lock()
	i, ok := c.index[itemID]
	if !ok {
		c.mu.Unlock()
		return false
	}
	c.lines = append(c.lines[:i], c.lines[i+1:]...)
	delete(c.index, itemID)
	for j := i; j < len(c.lines); j++ {
		c.index[c.lines[j].ItemID] = j
	}
	snap, observers := c.snapshotLocked(), c.observersLocked()
	c.mu.Unlock()

	notify(observers, snap)
	return true
}

// Clear empties the cart. Clearing an empty cart does nothing.
func (c *Cart) Clear() {
	c.mu.Lock()
	if len(c.lines) == 0 {
		c.mu.Unlock()
		return
	}
	c.lines = nil
	c.index = make(map[int64]int)
	snap, observers := c.snapshotLocked(), c.observersLocked()
	c.mu.Unlock()

	notify(observers, snap)
}

// Subtract takes the given lines out of the cart: each line with the same
// item loses the given quantity and is dropped when nothing is left. Lines
// are matched by item, not by when they were added, so units added to a line
// that stayed in the cart are kept, while a line removed and added again in
// the meantime pays for the subtracted units first.
func (c *Cart) Subtract(lines []Line) {
	c.mu.Lock()
	changed := false
	for _, l := range lines {
		i, ok := c.index[l.ItemID]
		if !ok {
			continue
		}
		c.lines[i].Quantity -= l.Quantity
		changed = true
	}
	if !changed {
		c.mu.Unlock()
		return
	}
	kept := c.lines[:0]
	c.index = make(map[int64]int, len(c.lines))
	for _, l := range c.lines {
		if l.Quantity > 0 {
			c.index[l.ItemID] = len(kept)
			kept = append(kept, l)
		}
	}
	c.lines = kept
	snap, observers := c.snapshotLocked(), c.observersLocked()
	c.mu.Unlock()

	notify(observers, snap)
}

// Total returns the sum of all line subtotals rounded to two decimal places.
func (c *Cart) Total() decimal.Decimal {
	c.mu.Lock()
	defer c.mu.Unlock()

	return totalOf(c.lines)
}

// Lines returns a copy of the lines in insertion order.
func (c *Cart) Lines() []Line {
	c.mu.Lock()
	defer c.mu.Unlock()

	return append([]Line(nil), c.lines...)
}

// Len returns the number of lines.
func (c *Cart) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	return len(c.lines)
}

// Snapshot returns the lines and total read under a single lock.
func (c *Cart) Snapshot() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.snapshotLocked()
}

// Subscribe registers fn to be called synchronously after each change.
// The returned function removes the subscription.
func (c *Cart) Subscribe(fn Observer) func() {
	c.mu.Lock()
	id := c.nextObs
	c.nextObs++
	c.observers[id] = fn
	c.mu.Unlock()

	return func() {
		c.mu.Lock()
		delete(c.observers, id)
		c.mu.Unlock()
	}
}

func (c *Cart) snapshotLocked() Snapshot {
	return Snapshot{
		Lines: append([]Line(nil), c.lines...),
		Total: totalOf(c.lines),
	}
}

func (c *Cart) observersLocked() []Observer {
	if len(c.observers) == 0 {
		return nil
	}
	out := make([]Observer, 0, len(c.observers))
	for _, o := range c.observers {
		out = append(out, o)
	}
	return out
}

func notify(observers []Observer, snap Snapshot) {
	for _, o := range observers {
		o(snap)
	}
}

func totalOf(lines []Line) decimal.Decimal {
	sum := decimal.Zero
	for _, l := range lines {
		sum = sum.Add(l.Subtotal())
	}
	return sum.Round(2)
}
