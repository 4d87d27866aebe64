// Package tail holds the state machine deciding how the log viewer
// fetches: following the newest window or browsing a fixed offset.
package tail

import "time"

// Mode is the viewer's fetch mode.
type Mode int

const (
	// ModeTail follows the latest window and refreshes periodically.
	ModeTail Mode = iota
	// ModePaged browses an explicit offset; no periodic refresh.
	ModePaged
)

// FetchRequest describes the next fetch the owner should issue.
type FetchRequest struct {
	Limit  int
	Offset int
	Tail   bool
}

// Controller tracks tail/paged mode, auto-scroll, and pagination
// bookkeeping. It is not safe for concurrent use; a single viewer owns it.
type Controller struct {
	mode       Mode
	autoScroll bool
	offset     int
	limit      int
	hasMore    bool
	totalSize  int64
	interval   time.Duration
}

// New creates a controller in tail mode with auto-scroll engaged.
func New(limit int, interval time.Duration) *Controller {
	if limit <= 0 {
		limit = 100
	}
	if interval <= 0 {
		interval = 2 * time.Second
	}
	return &Controller{
		mode:       ModeTail,
		autoScroll: true,
		limit:      limit,
		interval:   interval,
	}
}

func (c *Controller) Mode() Mode              { return c.mode }
func (c *Controller) AutoScroll() bool        { return c.autoScroll }
func (c *Controller) Offset() int             { return c.offset }
func (c *Controller) Limit() int              { return c.limit }
func (c *Controller) HasMore() bool           { return c.hasMore }
func (c *Controller) TotalSize() int64        { return c.totalSize }
func (c *Controller) Interval() time.Duration { return c.interval }

// ToggleMode flips between tail and paged mode and returns the fetch the
// owner must issue on entry. Entering paged mode starts at offset 0;
// entering tail mode requests the newest window.
func (c *Controller) ToggleMode() FetchRequest {
	if c.mode == ModeTail {
		c.mode = ModePaged
		c.offset = 0
		return FetchRequest{Limit: c.limit, Offset: 0}
	}
	c.mode = ModeTail
	c.offset = 0
	return FetchRequest{Limit: c.limit, Tail: true}
}

// ToggleAutoScroll flips the auto-scroll flag. The flag only has an effect
// while in tail mode but survives mode switches.
func (c *Controller) ToggleAutoScroll() {
	c.autoScroll = !c.autoScroll
}

// Tick returns the periodic refresh fetch, or ok=false when no refresh is
// due because the viewer is in paged mode.
func (c *Controller) Tick() (FetchRequest, bool) {
	if c.mode != ModeTail {
		return FetchRequest{}, false
	}
	return FetchRequest{Limit: c.limit, Tail: true}, true
}

// NextPage advances one page. It returns ok=false in tail mode or when the
// last result reported no further lines.
func (c *Controller) NextPage() (FetchRequest, bool) {
	if c.mode != ModePaged || !c.hasMore {
		return FetchRequest{}, false
	}
	c.offset += c.limit
	return FetchRequest{Limit: c.limit, Offset: c.offset}, true
}

// PrevPage steps one page back, clamping the offset at zero.
func (c *Controller) PrevPage() (FetchRequest, bool) {
	if c.mode != ModePaged {
		return FetchRequest{}, false
	}
	c.offset -= c.limit
	if c.offset < 0 {
		c.offset = 0
	}
	return FetchRequest{Limit: c.limit, Offset: c.offset}, true
}

// ApplyResult records the bookkeeping from a completed fetch. Tail results
// do not advance the offset; the window is a full replacement.
func (c *Controller) ApplyResult(totalSize int64, hasMore bool) {
	c.totalSize = totalSize
	c.hasMore = hasMore
}

// ShouldScroll reports whether a successful fetch should scroll the viewer
// to the bottom.
func (c *Controller) ShouldScroll() bool {
	return c.mode == ModeTail && c.autoScroll
}
