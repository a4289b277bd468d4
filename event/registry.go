package event

import (
	"context"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/net/html"

	"github.com/wippyai/wasm-hostbridge/errors"
)

// Variant selects what a binding passes to the guest when it fires.
type Variant uint8

const (
	VariantGeneric Variant = iota // callback handle only
	VariantMouse                  // handle + MouseRecord
	VariantPointer                // handle + PointerRecord
)

func (v Variant) String() string {
	switch v {
	case VariantMouse:
		return "mouse"
	case VariantPointer:
		return "pointer"
	default:
		return "generic"
	}
}

// Invoker calls back into the guest.
type Invoker interface {
	Callback(ctx context.Context, cb uint32) error
	Mouse(ctx context.Context, cb uint32, r MouseRecord) error
	Pointer(ctx context.Context, cb uint32, r PointerRecord) error
}

// FuncCaller calls a named function in the local script context.
type FuncCaller interface {
	CallGlobal(name string) error
}

type binding struct {
	node    *html.Node
	target  string
	name    string
	fn      string // named local function, for script listeners
	cb      uint32
	variant Variant
}

const suppressWindow = 64

// Registry binds guest callback handles and named script functions to
// event sources.
type Registry struct {
	doc      *Document
	invoker  Invoker
	funcs    FuncCaller
	log      *zap.Logger
	byHandle map[uint32]*binding
	counts   map[string]uint64
	bindings []*binding
	// Inputs whose pointer events were handled; their compatibility mouse
	// events are not delivered.
	suppressed [suppressWindow]uint64
	next       int
	mu         sync.Mutex
}

// Options configures a Registry.
type Options struct {
	Logger   *zap.Logger
	Document *Document
	Invoker  Invoker
	Funcs    FuncCaller
}

// NewRegistry creates an empty registry.
func NewRegistry(opts Options) *Registry {
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.Document == nil {
		opts.Document = DefaultDocument()
	}
	return &Registry{
		doc:      opts.Document,
		invoker:  opts.Invoker,
		funcs:    opts.Funcs,
		log:      opts.Logger.Named("events"),
		byHandle: make(map[uint32]*binding),
		counts:   make(map[string]uint64),
	}
}

// SetInvoker sets the guest the registry calls into.
func (r *Registry) SetInvoker(inv Invoker) {
	r.mu.Lock()
	r.invoker = inv
	r.mu.Unlock()
}

// Register binds cb to (selector, name). A handle can be bound once; a
// second registration fails with KindDuplicate and leaves the first in
// place. An unresolvable selector fails with KindSourceUnresolved.
func (r *Registry) Register(selector, name string, cb uint32, v Variant) error {
	t, err := r.doc.Resolve(selector)
	if err != nil {
		r.log.Warn("listener source not found", zap.String("selector", selector), zap.String("event", name))
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.byHandle[cb]; exists {
		r.log.Warn("callback already registered", zap.Uint32("callback", cb), zap.String("event", name))
		return errors.Duplicate(errors.PhaseEvent, "callback", cb)
	}
	b := &binding{node: t.node, target: t.Selector, name: name, cb: cb, variant: v}
	r.byHandle[cb] = b
	r.bindings = append(r.bindings, b)
	r.log.Debug("listener added",
		zap.Uint32("callback", cb),
		zap.String("selector", t.Selector),
		zap.String("event", name),
		zap.Stringer("variant", v))
	return nil
}

// Unregister removes the binding of cb on (selector, name). Unknown
// bindings fail with KindNotFound and change nothing.
func (r *Registry) Unregister(selector, name string, cb uint32) error {
	t, err := r.doc.Resolve(selector)
	if err != nil {
		r.log.Warn("listener source not found", zap.String("selector", selector), zap.String("event", name))
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	b, ok := r.byHandle[cb]
	if !ok || b.node != t.node || b.name != name {
		r.log.Warn("no such listener", zap.Uint32("callback", cb), zap.String("selector", selector), zap.String("event", name))
		return errors.NotFound(errors.PhaseEvent, "callback", cb)
	}
	delete(r.byHandle, cb)
	r.removeLocked(b)
	return nil
}

// RegisterFunc binds the local script function fn to (selector, name).
func (r *Registry) RegisterFunc(selector, name, fn string) error {
	t, err := r.doc.Resolve(selector)
	if err != nil {
		r.log.Warn("listener source not found", zap.String("selector", selector), zap.String("event", name))
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.findFuncLocked(t.node, name, fn) != nil {
		return errors.New(errors.PhaseEvent, errors.KindDuplicate).
			Detail("function %q already listens for %s on %s", fn, name, t.Selector).
			Build()
	}
	r.bindings = append(r.bindings, &binding{node: t.node, target: t.Selector, name: name, fn: fn})
	return nil
}

// UnregisterFunc removes a binding made by RegisterFunc.
func (r *Registry) UnregisterFunc(selector, name, fn string) error {
	t, err := r.doc.Resolve(selector)
	if err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	b := r.findFuncLocked(t.node, name, fn)
	if b == nil {
		r.log.Warn("no such listener", zap.String("function", fn), zap.String("selector", selector), zap.String("event", name))
		return errors.NotFoundName(errors.PhaseEvent, "listener", fn)
	}
	r.removeLocked(b)
	return nil
}

// Dispatch delivers e to every binding on its target or an ancestor, in
// registration order, and returns how many fired. Bindings are called
// without the registry lock held, so callbacks may register listeners.
func (r *Registry) Dispatch(ctx context.Context, e Event) (int, error) {
	t, err := r.doc.Resolve(e.Target)
	if err != nil {
		return 0, err
	}
	path := r.doc.path(t)
	kind := KindOf(e.Name)
	isPointer := kind == KindPointerDown || kind == KindPointerUp || kind == KindPointerMove

	r.mu.Lock()
	r.counts[e.Name]++
	suppressed := compatMouse(kind) && r.isSuppressedLocked(e.InputID)
	var matched []*binding
	if !suppressed {
		for _, b := range r.bindings {
			if b.name == e.Name && onPath(path, b.node) {
				matched = append(matched, b)
			}
		}
	}
	inv, funcs := r.invoker, r.funcs
	r.mu.Unlock()

	if suppressed {
		r.log.Debug("mouse event suppressed by pointer handler", zap.String("event", e.Name), zap.Uint64("input", e.InputID))
		return 0, nil
	}

	fired := 0
	for _, b := range matched {
		var err error
		switch {
		case b.fn != "":
			if funcs == nil {
				continue
			}
			err = funcs.CallGlobal(b.fn)
		case inv == nil:
			continue
		case b.variant == VariantPointer:
			if e.PointerType == "mouse" {
				continue
			}
			if isPointer {
				r.suppress(e.InputID)
			}
			err = inv.Pointer(ctx, b.cb, e.pointer())
		case b.variant == VariantMouse:
			err = inv.Mouse(ctx, b.cb, e.mouse())
		default:
			err = inv.Callback(ctx, b.cb)
		}
		if err != nil {
			r.log.Warn("listener failed",
				zap.Uint32("callback", b.cb),
				zap.String("function", b.fn),
				zap.String("event", e.Name),
				zap.Error(err))
			continue
		}
		fired++
	}
	return fired, nil
}

// Counts returns how many events named name were dispatched.
func (r *Registry) Counts(name string) uint64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.counts[name]
}

// Len returns the number of bindings.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.bindings)
}

// Clear removes every binding.
func (r *Registry) Clear() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.bindings = nil
	r.byHandle = make(map[uint32]*binding)
}

func (r *Registry) findFuncLocked(node *html.Node, name, fn string) *binding {
	for _, b := range r.bindings {
		if b.fn == fn && b.node == node && b.name == name {
			return b
		}
	}
	return nil
}

func (r *Registry) removeLocked(target *binding) {
	for i, b := range r.bindings {
		if b == target {
			r.bindings = append(r.bindings[:i], r.bindings[i+1:]...)
			return
		}
	}
}

func (r *Registry) suppress(input uint64) {
	if input == 0 {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.isSuppressedLocked(input) {
		return
	}
	r.suppressed[r.next] = input
	r.next = (r.next + 1) % suppressWindow
}

func (r *Registry) isSuppressedLocked(input uint64) bool {
	if input == 0 {
		return false
	}
	for _, id := range r.suppressed {
		if id == input {
			return true
		}
	}
	return false
}

func onPath(path []*html.Node, n *html.Node) bool {
	for _, p := range path {
		if p == n {
			return true
		}
	}
	return false
}
