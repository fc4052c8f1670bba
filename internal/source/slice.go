package source

// Slice is a finite in-memory source.
type Slice struct {
	name  string
	items []Datum
}

// NewSlice wraps items, which must already be in timestamp order.
func NewSlice(name string, items ...Datum) *Slice {
	return &Slice{name: name, items: items}
}

func (s *Slice) Name() string { return s.name }

// Len returns the number of items in the slice.
func (s *Slice) Len() int { return len(s.items) }

// Cursor returns a cursor positioned before the first item.
func (s *Slice) Cursor() (Cursor, error) {
	return &sliceCursor{items: s.items, pos: -1}, nil
}

type sliceCursor struct {
	items []Datum
	pos   int
}

func (c *sliceCursor) Next() (bool, error) {
	if c.pos+1 >= len(c.items) {
		c.pos = len(c.items)
		return false, nil
	}
	c.pos++
	return true, nil
}

func (c *sliceCursor) Current() Datum {
	if c.pos < 0 || c.pos >= len(c.items) {
		return nil
	}
	return c.items[c.pos]
}
