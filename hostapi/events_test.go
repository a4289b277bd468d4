package hostapi

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wippyai/wasm-hostbridge/event"
)

func (h *harness) listen(v event.Variant, sel, name string, cb uint32) {
	h.t.Helper()
	sp, sn := h.put(sel)
	np, nn := h.put(name)
	h.b.AddListener(h.mem, v, sp, sn, np, nn, cb)
}

func (h *harness) dispatch(e event.Event) int {
	h.t.Helper()
	n, err := h.events.Dispatch(context.Background(), e)
	require.NoError(h.t, err)
	return n
}

func TestAddListener_Dispatch(t *testing.T) {
	h := newHarness(t)

	h.listen(event.VariantGeneric, "#canvas", "click", 5)
	h.listen(event.VariantGeneric, "window", "click", 6)
	assert.Equal(t, 2, h.events.Len())

	assert.Equal(t, 2, h.dispatch(event.Event{Target: "#canvas", Name: "click"}), "bubbles to window")
	assert.Equal(t, []uint32{5, 6}, h.inv.got())
	assert.Equal(t, 1, h.dispatch(event.Event{Name: "click"}))
}

func TestAddListener_Mouse(t *testing.T) {
	h := newHarness(t)

	h.listen(event.VariantMouse, "#canvas", "mousedown", 9)
	h.dispatch(event.Event{Target: "#canvas", Name: "mousedown", X: 3, Y: 4, Button: 1})

	require.Len(t, h.inv.mouse, 1)
	assert.Equal(t, 3.0, h.inv.mouse[0].X)
	assert.Equal(t, int32(1), h.inv.mouse[0].Button)
}

func TestAddListener_Duplicate(t *testing.T) {
	h := newHarness(t)

	h.listen(event.VariantGeneric, "#canvas", "click", 5)
	h.listen(event.VariantGeneric, "window", "keydown", 5)
	assert.True(t, h.warned("event_addListener failed"))
	assert.Equal(t, 1, h.events.Len(), "first binding stays")
}

func TestAddListener_Unresolved(t *testing.T) {
	h := newHarness(t)

	h.listen(event.VariantPointer, "#nope", "pointerdown", 5)
	assert.True(t, h.warned("event_addListenerPointer failed"))
	assert.Zero(t, h.events.Len())
}

func TestRemoveListener(t *testing.T) {
	h := newHarness(t)
	h.listen(event.VariantGeneric, "#canvas", "click", 5)

	sp, sn := h.put("#canvas")
	np, nn := h.put("click")
	h.b.RemoveListener(h.mem, sp, sn, np, nn, 5)
	assert.Zero(t, h.dispatch(event.Event{Target: "#canvas", Name: "click"}))

	h.b.RemoveListener(h.mem, sp, sn, np, nn, 5)
	assert.True(t, h.warned("event_removeListener failed"))
}

func TestAddListenerJs(t *testing.T) {
	h := newHarness(t)
	_, err := h.local.Eval("globalThis.hits = 0; function onClick() { hits++ }")
	require.NoError(t, err)

	sp, sn := h.put("document")
	np, nn := h.put("click")
	fp, fn := h.put("onClick")
	h.b.AddListenerJs(h.mem, sp, sn, np, nn, fp, fn)
	h.b.AddListenerJs(h.mem, sp, sn, np, nn, fp, fn)
	assert.True(t, h.warned("event_addListenerJs failed"))

	assert.Equal(t, 1, h.dispatch(event.Event{Target: "#canvas", Name: "click"}))
	v, err := h.local.Eval("hits")
	require.NoError(t, err)
	assert.Equal(t, "1", v)

	h.b.RemoveListenerJs(h.mem, sp, sn, np, nn, fp, fn)
	assert.Zero(t, h.dispatch(event.Event{Target: "#canvas", Name: "click"}))
}

func TestEventCounts(t *testing.T) {
	h := newHarness(t)
	h.dispatch(event.Event{Name: "resize"})
	h.dispatch(event.Event{Name: "resize"})

	ptr, n := h.put("resize")
	assert.Equal(t, uint32(2), h.b.EventCounts(h.mem, ptr, n))
	ptr, n = h.put("scroll")
	assert.Zero(t, h.b.EventCounts(h.mem, ptr, n))
}
