// Package page renders the diagnostic page for a captured exception into
// an HTML document tree.
package page

import (
	"fmt"
	"io"
	"strings"

	"github.com/profclems/tracepage/highlight"
	"github.com/profclems/tracepage/page/templates"
	"github.com/profclems/tracepage/trace"
	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

const (
	// DefaultEndpoint is the path that re-enables the debugging hook
	DefaultEndpoint = "/__wdb/on"

	// Language is the language of the debugged programs, used for every
	// snippet regardless of what renders the page.
	Language = "python"
)

// Element ids the layout must provide
const (
	TitleID     = "title"
	ActivateID  = "activate"
	ContainerID = "wdb"
)

// Classes of the rendered trace regions
const (
	TraceClass    = "trace_500"
	FrameClass    = "traceline"
	LocationClass = "flno"
	FunctionClass = "fun"
	CodeClass     = "cm"
)

// Renderer paints payloads into copies of a layout
type Renderer struct {
	highlighter highlight.Highlighter
	endpoint    string
	layout      string
	inlineCSS   bool
}

// Option configures a Renderer
type Option func(*Renderer)

// WithHighlighter replaces the default chroma highlighter
func WithHighlighter(h highlight.Highlighter) Option {
	return func(r *Renderer) { r.highlighter = h }
}

// WithEndpoint sets the activation endpoint the control calls
func WithEndpoint(endpoint string) Option {
	return func(r *Renderer) { r.endpoint = endpoint }
}

// WithLayout uses raw HTML as the page layout
func WithLayout(layout string) Option {
	return func(r *Renderer) { r.layout = layout }
}

// WithInlineStyles embeds the stylesheet instead of linking it, for pages
// written to disk.
func WithInlineStyles() Option {
	return func(r *Renderer) { r.inlineCSS = true }
}

// NewRenderer creates a renderer using the default layout and highlighter
func NewRenderer(opts ...Option) *Renderer {
	r := &Renderer{
		endpoint: DefaultEndpoint,
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.highlighter == nil {
		r.highlighter = highlight.NewChroma()
	}
	if r.layout == "" {
		r.layout, _ = templates.Layout(templates.DefaultLayout)
	}
	return r
}

// Document parses a fresh copy of the layout and paints p into it.
func (r *Renderer) Document(p trace.Payload) (*html.Node, error) {
	doc, err := html.Parse(strings.NewReader(r.layout))
	if err != nil {
		return nil, fmt.Errorf("failed to parse layout: %w", err)
	}
	if r.inlineCSS {
		inlineStyles(doc)
	}
	r.Paint(doc, p)
	return doc, nil
}

// Write renders p as a complete HTML document.
func (r *Renderer) Write(w io.Writer, p trace.Payload) error {
	doc, err := r.Document(p)
	if err != nil {
		return err
	}
	if err := html.Render(w, doc); err != nil {
		return fmt.Errorf("failed to write page: %w", err)
	}
	return nil
}

// Paint is the single render pass: header, activation control, then the
// trace when there is one. It never fails; a layout missing one of the
// expected regions just skips that part.
func (r *Renderer) Paint(doc *html.Node, p trace.Payload) {
	r.paintHeader(doc, p)
	r.wireActivation(doc)
	if p.HasTrace() {
		r.paintTrace(doc, p.Trace)
	}
}

func (r *Renderer) paintHeader(doc *html.Node, p trace.Payload) {
	title := ElementByID(doc, TitleID)
	if title == nil {
		return
	}
	setText(title, p.Title)
	small := newElement(atom.Small, "")
	small.AppendChild(newText(p.Subtitle))
	title.AppendChild(small)
}

func (r *Renderer) wireActivation(doc *html.Node) {
	control := ElementByID(doc, ActivateID)
	if control == nil {
		return
	}
	setAttr(control, "data-endpoint", r.endpoint)

	body := elementByAtom(doc, atom.Body)
	if body == nil {
		return
	}
	script := newElement(atom.Script, "")
	script.AppendChild(newText(templates.ActivateJS))
	body.AppendChild(script)
}

func (r *Renderer) paintTrace(doc *html.Node, frames []trace.Frame) {
	parent := ElementByID(doc, ContainerID)
	if parent == nil {
		parent = elementByAtom(doc, atom.Body)
	}
	if parent == nil {
		return
	}

	article := newElement(atom.Article, TraceClass)
	parent.AppendChild(article)

	for _, f := range frames {
		block := newElement(atom.Div, FrameClass)

		loc := newElement(atom.Div, LocationClass)
		loc.AppendChild(newText(f.Location()))
		block.AppendChild(loc)

		fun := newElement(atom.Div, FunctionClass)
		fun.AppendChild(newText(f.Function))
		block.AppendChild(fun)

		code := newElement(atom.Code, CodeClass)
		block.AppendChild(code)
		article.AppendChild(block)

		r.highlighter.Highlight(f.Snippet(), Language, code)
	}
}

func inlineStyles(doc *html.Node) {
	link := ElementByID(doc, "theme")
	if link == nil || link.Parent == nil {
		return
	}
	style := newElement(atom.Style, "")
	style.AppendChild(newText(templates.Stylesheet()))
	link.Parent.InsertBefore(style, link)
	link.Parent.RemoveChild(link)
}
