// Package highlight writes syntax-colored markup for a source snippet into a
// DOM node.
package highlight

import (
	"strings"
	"sync"

	"github.com/alecthomas/chroma/v2"
	"github.com/alecthomas/chroma/v2/lexers"
	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// Highlighter writes highlighted content for source into target. It owns
// its failures: a highlighter never leaves target half built.
type Highlighter interface {
	Highlight(source, language string, target *html.Node)
}

// Plain writes the source as a single text node.
type Plain struct{}

func (Plain) Highlight(source, _ string, target *html.Node) {
	target.AppendChild(&html.Node{Type: html.TextNode, Data: source})
}

// Chroma tokenises with chroma lexers and emits CodeMirror-style
// "cm-<kind>" spans so existing stylesheets keep working.
type Chroma struct {
	mu      sync.Mutex
	lexers  map[string]chroma.Lexer
	missing map[string]bool
}

func NewChroma() *Chroma {
	return &Chroma{
		lexers:  make(map[string]chroma.Lexer),
		missing: make(map[string]bool),
	}
}

func (c *Chroma) lexer(language string) chroma.Lexer {
	c.mu.Lock()
	defer c.mu.Unlock()

	if l, ok := c.lexers[language]; ok {
		return l
	}
	if c.missing[language] {
		return nil
	}
	l := lexers.Get(language)
	if l == nil {
		c.missing[language] = true
		return nil
	}
	l = chroma.Coalesce(l)
	c.lexers[language] = l
	return l
}

func (c *Chroma) Highlight(source, language string, target *html.Node) {
	l := c.lexer(language)
	if l == nil {
		Plain{}.Highlight(source, language, target)
		return
	}

	it, err := l.Tokenise(nil, source)
	if err != nil {
		Plain{}.Highlight(source, language, target)
		return
	}

	tokens := it.Tokens()
	// Lexers configured with EnsureNL append a newline the snippet never had.
	if n := len(tokens); n > 0 && !strings.HasSuffix(source, "\n") {
		last := &tokens[n-1]
		last.Value = strings.TrimSuffix(last.Value, "\n")
		if last.Value == "" {
			tokens = tokens[:n-1]
		}
	}

	for _, tok := range tokens {
		class := ClassFor(tok.Type)
		text := &html.Node{Type: html.TextNode, Data: tok.Value}
		if class == "" {
			target.AppendChild(text)
			continue
		}
		span := &html.Node{
			Type:     html.ElementNode,
			Data:     "span",
			DataAtom: atom.Span,
			Attr:     []html.Attribute{{Key: "class", Val: class}},
		}
		span.AppendChild(text)
		target.AppendChild(span)
	}
}

// ClassFor maps a chroma token type to the CodeMirror class name used by
// the page stylesheet, or "" for unstyled text.
func ClassFor(t chroma.TokenType) string {
	switch {
	case t == chroma.NameBuiltin || t == chroma.NameBuiltinPseudo:
		return "cm-builtin"
	case t == chroma.NameFunction || t == chroma.NameClass:
		return "cm-def"
	case t == chroma.NameDecorator:
		return "cm-meta"
	case t.Category() == chroma.Keyword:
		return "cm-keyword"
	case t.Category() == chroma.Comment:
		return "cm-comment"
	case t.SubCategory() == chroma.LiteralString:
		return "cm-string"
	case t.SubCategory() == chroma.LiteralNumber:
		return "cm-number"
	case t.Category() == chroma.Operator:
		return "cm-operator"
	case t.Category() == chroma.Name:
		return "cm-variable"
	}
	return ""
}

// Call is one recorded Highlight invocation.
type Call struct {
	Source   string
	Language string
	Target   *html.Node
}

// Recorder records calls and forwards them to Next when set.
type Recorder struct {
	Next  Highlighter
	Calls []Call
}

func (r *Recorder) Highlight(source, language string, target *html.Node) {
	r.Calls = append(r.Calls, Call{Source: source, Language: language, Target: target})
	if r.Next != nil {
		r.Next.Highlight(source, language, target)
	}
}
