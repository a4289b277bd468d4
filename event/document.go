package event

import (
	"io"
	"os"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/andybalholm/cascadia"
	"golang.org/x/net/html"

	"github.com/wippyai/wasm-hostbridge/errors"
)

// DefaultHTML is the document used when none is configured.
const DefaultHTML = `<!DOCTYPE html><html><head></head><body><canvas id="canvas"></canvas></body></html>`

// Target is a resolved event source.
type Target struct {
	node     *html.Node // nil for window
	Selector string
}

// IsWindow reports whether the target is the window.
func (t Target) IsWindow() bool { return t.node == nil }

// Document resolves selectors to event sources. "window" and "document"
// are always present; anything else is a CSS selector matched against the
// loaded HTML, first match wins.
type Document struct {
	doc *goquery.Document
}

// NewDocument parses HTML from r.
func NewDocument(r io.Reader) (*Document, error) {
	doc, err := goquery.NewDocumentFromReader(r)
	if err != nil {
		return nil, errors.Load("parse event document", err)
	}
	return &Document{doc: doc}, nil
}

// DefaultDocument returns a document with a body and a #canvas element.
func DefaultDocument() *Document {
	d, err := NewDocument(strings.NewReader(DefaultHTML))
	if err != nil {
		panic(err)
	}
	return d
}

// LoadDocument reads an HTML file, or returns DefaultDocument for "".
func LoadDocument(path string) (*Document, error) {
	if path == "" {
		return DefaultDocument(), nil
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Load("open event document", err)
	}
	defer f.Close()
	return NewDocument(f)
}

// Resolve locates an event source.
func (d *Document) Resolve(selector string) (Target, error) {
	switch selector {
	case "", "window":
		return Target{Selector: "window"}, nil
	case "document":
		return Target{Selector: "document", node: d.doc.Nodes[0]}, nil
	}
	sel, err := cascadia.Compile(selector)
	if err != nil {
		return Target{}, errors.SourceUnresolved(selector, err)
	}
	match := d.doc.FindMatcher(sel).First()
	if match.Length() == 0 {
		return Target{}, errors.SourceUnresolved(selector, nil)
	}
	return Target{Selector: selector, node: match.Get(0)}, nil
}

// path returns the propagation path of t: the target, its ancestors, the
// document, then the window.
func (d *Document) path(t Target) []*html.Node {
	var out []*html.Node
	for n := t.node; n != nil; n = n.Parent {
		out = append(out, n)
	}
	return append(out, nil)
}
