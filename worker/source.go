package worker

import "strings"

// SourceKind says how a Source carries its script.
type SourceKind uint8

const (
	SourceInline   SourceKind = iota // Text is the script body
	SourceExternal                   // Ref names a script to load
)

func (k SourceKind) String() string {
	if k == SourceExternal {
		return "external"
	}
	return "inline"
}

// Source is a worker script: either inline text or a reference resolved by
// a Loader.
type Source struct {
	Text string
	Ref  string
	Kind SourceKind
}

// Inline wraps script text.
func Inline(text string) Source {
	return Source{Kind: SourceInline, Text: text}
}

// External wraps a script reference (relative path, file: or http(s) URL).
func External(ref string) Source {
	return Source{Kind: SourceExternal, Ref: ref}
}

// ParseSource classifies an untyped worker_spawn payload. Text that starts
// with "function" or assigns self.onmessage is inline; anything else is a
// reference. Only the guest boundary uses this; Go callers pass a Source.
func ParseSource(payload string) Source {
	trimmed := strings.TrimSpace(payload)
	if strings.HasPrefix(trimmed, "function") || strings.Contains(trimmed, "self.onmessage") {
		return Inline(payload)
	}
	return External(trimmed)
}

// Name is a short label for logs and compiled script names.
func (s Source) Name() string {
	if s.Kind == SourceExternal {
		return s.Ref
	}
	return "inline"
}
