package event

// Event is a host event to dispatch. Target is a selector as accepted by
// Document.Resolve; empty means "window".
type Event struct {
	Target      string
	Name        string
	PointerType string // "mouse", "pen" or "touch"
	Timestamp   float64
	X, Y        float64
	Pressure    float64
	InputID     uint64 // physical input; 0 disables mouse suppression
	Button      int32
	Buttons     int32
	PointerID   int32
	TiltX       int32
	TiltY       int32
	Twist       int32
}

// MouseRecord is the fixed layout passed to wasm_callback_mouse.
type MouseRecord struct {
	Timestamp float64
	X, Y      float64
	Button    int32
	Buttons   int32
	Kind      Kind
}

// PointerRecord is the fixed layout passed to wasm_callback_pointer.
type PointerRecord struct {
	Timestamp float64
	X, Y      float64
	Pressure  float64
	PointerID int32
	TiltX     int32
	TiltY     int32
	Twist     int32
	Kind      Kind
}

func (e Event) mouse() MouseRecord {
	return MouseRecord{
		Button:    e.Button,
		Buttons:   e.Buttons,
		X:         e.X,
		Y:         e.Y,
		Kind:      KindOf(e.Name),
		Timestamp: e.Timestamp,
	}
}

func (e Event) pointer() PointerRecord {
	return PointerRecord{
		PointerID: e.PointerID,
		X:         e.X,
		Y:         e.Y,
		Pressure:  e.Pressure,
		TiltX:     e.TiltX,
		TiltY:     e.TiltY,
		Twist:     e.Twist,
		Kind:      KindOf(e.Name),
		Timestamp: e.Timestamp,
	}
}
