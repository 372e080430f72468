package highlight

import (
	"strings"
	"testing"

	"github.com/alecthomas/chroma/v2"
	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

func newTarget() *html.Node {
	return &html.Node{Type: html.ElementNode, Data: "code", DataAtom: atom.Code}
}

func textOf(n *html.Node) string {
	var b strings.Builder
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.TextNode {
			b.WriteString(n.Data)
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(n)
	return b.String()
}

func spansWithClass(n *html.Node, class string) []string {
	var out []string
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if c.Type != html.ElementNode {
			continue
		}
		for _, a := range c.Attr {
			if a.Key == "class" && a.Val == class {
				out = append(out, textOf(c))
			}
		}
	}
	return out
}

func TestPlain(t *testing.T) {
	target := newTarget()
	Plain{}.Highlight("<b>x</b>", "python", target)

	if target.FirstChild == nil || target.FirstChild.Type != html.TextNode {
		t.Fatal("expected a single text node")
	}
	if got := textOf(target); got != "<b>x</b>" {
		t.Errorf("text = %q", got)
	}
}

func TestChroma_PreservesText(t *testing.T) {
	h := NewChroma()
	sources := []string{
		"x = 1/0",
		"return d['user']",
		" ",
		"def f(a, b):  # comment",
	}

	for _, src := range sources {
		t.Run(src, func(t *testing.T) {
			target := newTarget()
			h.Highlight(src, "python", target)
			if got := textOf(target); got != src {
				t.Errorf("text = %q, want %q", got, src)
			}
		})
	}
}

func TestChroma_Classes(t *testing.T) {
	target := newTarget()
	NewChroma().Highlight("return 42", "python", target)

	if got := spansWithClass(target, "cm-keyword"); len(got) != 1 || got[0] != "return" {
		t.Errorf("keyword spans = %v", got)
	}
	if got := spansWithClass(target, "cm-number"); len(got) != 1 || got[0] != "42" {
		t.Errorf("number spans = %v", got)
	}
}

func TestChroma_EscapesMarkup(t *testing.T) {
	target := newTarget()
	NewChroma().Highlight(`s = "<script>alert(1)</script>"`, "python", target)

	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode && n.DataAtom == atom.Script {
			t.Error("highlighter produced a script element")
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(target)
}

func TestChroma_UnknownLanguageFallsBack(t *testing.T) {
	target := newTarget()
	NewChroma().Highlight("x = 1", "no-such-language", target)

	if target.FirstChild == nil || target.FirstChild != target.LastChild {
		t.Fatal("expected exactly one child")
	}
	if target.FirstChild.Type != html.TextNode || target.FirstChild.Data != "x = 1" {
		t.Errorf("fallback child = %+v", target.FirstChild)
	}
}

func TestClassFor(t *testing.T) {
	tests := []struct {
		tok  chroma.TokenType
		want string
	}{
		{chroma.Keyword, "cm-keyword"},
		{chroma.KeywordConstant, "cm-keyword"},
		{chroma.NameBuiltin, "cm-builtin"},
		{chroma.NameFunction, "cm-def"},
		{chroma.NameDecorator, "cm-meta"},
		{chroma.Name, "cm-variable"},
		{chroma.LiteralStringDouble, "cm-string"},
		{chroma.LiteralNumberInteger, "cm-number"},
		{chroma.CommentSingle, "cm-comment"},
		{chroma.Operator, "cm-operator"},
		{chroma.Punctuation, ""},
		{chroma.Text, ""},
	}
	for _, tt := range tests {
		if got := ClassFor(tt.tok); got != tt.want {
			t.Errorf("ClassFor(%v) = %q, want %q", tt.tok, got, tt.want)
		}
	}
}

func TestRecorder(t *testing.T) {
	rec := &Recorder{Next: Plain{}}
	target := newTarget()
	rec.Highlight("pass", "python", target)

	if len(rec.Calls) != 1 {
		t.Fatalf("calls = %d, want 1", len(rec.Calls))
	}
	if rec.Calls[0].Target != target || rec.Calls[0].Language != "python" {
		t.Errorf("call = %+v", rec.Calls[0])
	}
	if textOf(target) != "pass" {
		t.Error("recorder did not forward to Next")
	}
}
