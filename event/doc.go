// Package event binds guest callback handles to host event sources and
// fires them.
//
// Sources are named by selector: "window", "document", or a CSS selector
// resolved against an HTML document (goquery). A binding fires for events
// dispatched to its element or any descendant. Each callback handle can be
// bound once; the guest receives either the bare handle or a fixed-layout
// mouse or pointer record.
//
// Pointer bindings ignore pointerType "mouse". When a pointer binding
// handles a pen or touch event, the mousedown, mouseup and mousemove
// events that follow for the same physical input are not delivered, so a
// guest listening for both never sees one touch twice.
package event
