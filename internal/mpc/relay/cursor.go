package relay

import "strconv"

// Cursor is the last sequence id seen in a room. The zero value means nothing was seen yet.
type Cursor struct {
	last uint64
	set  bool
}

// NewCursor returns a cursor positioned after sequence id last.
func NewCursor(last uint64) Cursor {
	return Cursor{last: last, set: true}
}

func (c Cursor) Last() (uint64, bool) {
	return c.last, c.set
}

// Next is the sequence id the stream must deliver next.
func (c Cursor) Next() uint64 {
	if !c.set {
		return 0
	}
	return c.last + 1
}

// Header is the Last-Event-ID value for a resumed subscription, empty when unset.
func (c Cursor) Header() string {
	if !c.set {
		return ""
	}
	return strconv.FormatUint(c.last, 10)
}

func (c Cursor) String() string {
	if !c.set {
		return "none"
	}
	return strconv.FormatUint(c.last, 10)
}

func (c *Cursor) advance(seq uint64) {
	c.last = seq
	c.set = true
}

// before returns the cursor positioned just ahead of seq.
func (c Cursor) before(seq uint64) Cursor {
	if seq == 0 {
		return Cursor{}
	}
	return NewCursor(seq - 1)
}
