package event

// Kind is the numeric event code passed to the guest in mouse and pointer
// records.
type Kind int32

const (
	KindUnknown     Kind = 0
	KindClick       Kind = 1
	KindKeyDown     Kind = 2
	KindKeyUp       Kind = 3
	KindMouseDown   Kind = 4
	KindMouseUp     Kind = 5
	KindMouseMove   Kind = 6
	KindPointerDown Kind = 7
	KindPointerUp   Kind = 8
	KindPointerMove Kind = 9
	KindResize      Kind = 11
)

var kindByName = map[string]Kind{
	"click":       KindClick,
	"keydown":     KindKeyDown,
	"keyup":       KindKeyUp,
	"mousedown":   KindMouseDown,
	"mouseup":     KindMouseUp,
	"mousemove":   KindMouseMove,
	"pointerdown": KindPointerDown,
	"pointerup":   KindPointerUp,
	"pointermove": KindPointerMove,
	"resize":      KindResize,
}

// KindOf maps an event name to its code.
func KindOf(name string) Kind {
	return kindByName[name]
}

// compatMouse reports whether a mouse event is one a handled pointer event
// suppresses for the same input.
func compatMouse(k Kind) bool {
	return k == KindMouseDown || k == KindMouseUp || k == KindMouseMove
}
