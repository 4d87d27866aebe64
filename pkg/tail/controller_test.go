package tail

import (
	"testing"
	"time"
)

func TestInitialState(t *testing.T) {
	c := New(100, 2*time.Second)
	if c.Mode() != ModeTail {
		t.Error("expected initial tail mode")
	}
	if !c.AutoScroll() {
		t.Error("expected auto-scroll on by default")
	}
	if !c.ShouldScroll() {
		t.Error("expected scroll in initial state")
	}
}

func TestToggleModeFetches(t *testing.T) {
	c := New(100, 2*time.Second)

	req := c.ToggleMode() // TAIL -> PAGED
	if c.Mode() != ModePaged {
		t.Fatal("expected paged mode")
	}
	if req.Tail || req.Offset != 0 || req.Limit != 100 {
		t.Errorf("paged entry fetch: %+v", req)
	}

	req = c.ToggleMode() // PAGED -> TAIL
	if c.Mode() != ModeTail {
		t.Fatal("expected tail mode")
	}
	if !req.Tail {
		t.Errorf("tail entry fetch: %+v", req)
	}
}

func TestTickOnlyInTailMode(t *testing.T) {
	c := New(50, time.Second)

	req, ok := c.Tick()
	if !ok || !req.Tail || req.Limit != 50 {
		t.Errorf("tail tick: ok=%v req=%+v", ok, req)
	}

	c.ToggleMode()
	if _, ok := c.Tick(); ok {
		t.Error("paged mode must not refresh periodically")
	}
}

func TestPaginationBounds(t *testing.T) {
	c := New(100, time.Second)
	c.ToggleMode() // into paged

	// Backward from the first page clamps at zero.
	for i := 0; i < 3; i++ {
		req, ok := c.PrevPage()
		if !ok {
			t.Fatal("prev page should be issuable in paged mode")
		}
		if req.Offset < 0 || c.Offset() < 0 {
			t.Fatalf("offset went negative: %d", req.Offset)
		}
	}
	if c.Offset() != 0 {
		t.Errorf("offset: got %d, want 0", c.Offset())
	}

	// Forward navigation is disabled until a result reports more lines.
	if _, ok := c.NextPage(); ok {
		t.Error("next page allowed with hasMore=false")
	}

	c.ApplyResult(4096, true)
	req, ok := c.NextPage()
	if !ok || req.Offset != 100 {
		t.Errorf("next page: ok=%v req=%+v", ok, req)
	}

	c.ApplyResult(4096, false)
	if _, ok := c.NextPage(); ok {
		t.Error("next page allowed past the end")
	}
}

func TestPagedNavigationDisabledInTail(t *testing.T) {
	c := New(100, time.Second)
	c.ApplyResult(1024, true)
	if _, ok := c.NextPage(); ok {
		t.Error("next page allowed in tail mode")
	}
	if _, ok := c.PrevPage(); ok {
		t.Error("prev page allowed in tail mode")
	}
}

func TestAutoScrollIndependentOfMode(t *testing.T) {
	c := New(100, time.Second)

	c.ToggleAutoScroll()
	if c.AutoScroll() {
		t.Error("auto-scroll should be off")
	}
	if c.ShouldScroll() {
		t.Error("should not scroll with auto-scroll off")
	}

	c.ToggleAutoScroll()
	c.ToggleMode() // paged
	if c.ShouldScroll() {
		t.Error("should not scroll in paged mode even with auto-scroll on")
	}

	c.ToggleMode() // back to tail; flag survived
	if !c.ShouldScroll() {
		t.Error("auto-scroll flag should survive mode switches")
	}
}

func TestApplyResultBookkeeping(t *testing.T) {
	c := New(100, time.Second)
	c.ApplyResult(2048, true)
	if c.TotalSize() != 2048 || !c.HasMore() {
		t.Errorf("bookkeeping: size=%d hasMore=%v", c.TotalSize(), c.HasMore())
	}
}

func TestDefaults(t *testing.T) {
	c := New(0, 0)
	if c.Limit() != 100 {
		t.Errorf("limit default: got %d", c.Limit())
	}
	if c.Interval() != 2*time.Second {
		t.Errorf("interval default: got %v", c.Interval())
	}
}
