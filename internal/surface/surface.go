// Package surface models a rendered portal page as an immutable, queryable
// DOM snapshot.
//
// The browser layer captures the document once (outerHTML) and everything
// downstream — detection strategies, content extraction — runs against the
// parsed snapshot. Strategies therefore never touch a live browser, which
// keeps them testable against literal HTML fixtures.
package surface

import (
	"bytes"
	"fmt"
	"net/url"
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// Snapshot is a parsed capture of a rendered page.
type Snapshot struct {
	// URL the capture was taken from. Used to resolve relative hrefs.
	URL string

	doc *html.Node
}

// Parse builds a Snapshot from raw HTML. pageURL may be empty when the
// capture has no meaningful address (synthetic fixtures).
func Parse(rawHTML, pageURL string) (*Snapshot, error) {
	doc, err := html.Parse(strings.NewReader(rawHTML))
	if err != nil {
		return nil, fmt.Errorf("surface: parse: %w", err)
	}
	return &Snapshot{URL: pageURL, doc: doc}, nil
}

// Root returns the document root as a Node.
func (s *Snapshot) Root() Node {
	return Node{n: s.doc}
}

// Title returns the document <title> text, trimmed.
func (s *Snapshot) Title() string {
	var title string
	var f func(*html.Node)
	f = func(n *html.Node) {
		if n.Type == html.ElementNode && n.DataAtom == atom.Title {
			if n.FirstChild != nil {
				title = strings.TrimSpace(n.FirstChild.Data)
			}
			return
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			f(c)
		}
	}
	f(s.doc)
	return title
}

// HTML re-serialises the whole document.
func (s *Snapshot) HTML() string {
	return Node{n: s.doc}.OuterHTML()
}

// ByID returns the first element with the given id, or a zero Node.
func (s *Snapshot) ByID(id string) Node {
	return s.Root().ByID(id)
}

// ByClass returns all elements carrying the given class token.
func (s *Snapshot) ByClass(name string) []Node {
	return s.Root().ByClass(name)
}

// Select returns all elements matching a simple CSS-ish selector.
// See parseSimpleSelector for the supported grammar.
func (s *Snapshot) Select(selector string) []Node {
	return s.Root().Select(selector)
}

// First returns the first element matched by any of the selectors, tried in
// order, or a zero Node when none match.
func (s *Snapshot) First(selectors ...string) Node {
	return s.Root().First(selectors...)
}

// Links returns every anchor with a non-empty href, in document order.
func (s *Snapshot) Links() []Link {
	return s.Root().Links()
}

// ByTextContains returns elements one of whose direct text nodes contains
// substr. See Node.ByTextContains.
func (s *Snapshot) ByTextContains(substr string) []Node {
	return s.Root().ByTextContains(substr)
}

// Resolve makes href absolute against the snapshot URL. Unparseable input
// is returned unchanged; identity derivation and navigation both prefer a
// best-effort string over an error here.
func (s *Snapshot) Resolve(href string) string {
	if href == "" || s.URL == "" {
		return href
	}
	base, err := url.Parse(s.URL)
	if err != nil {
		return href
	}
	ref, err := url.Parse(href)
	if err != nil {
		return href
	}
	return base.ResolveReference(ref).String()
}

// Link is an anchor found on a snapshot.
type Link struct {
	Href string
	Text string
}

// Node wraps a single element of a snapshot. The zero Node is "not found";
// test with Exists.
type Node struct {
	n *html.Node
}

// Exists reports whether the node refers to an actual element.
func (n Node) Exists() bool { return n.n != nil }

// Tag returns the element name, or "" for the zero Node.
func (n Node) Tag() string {
	if n.n == nil || n.n.Type != html.ElementNode {
		return ""
	}
	return n.n.Data
}

// Attr returns the value of an attribute, or "".
func (n Node) Attr(key string) string {
	if n.n == nil {
		return ""
	}
	return getAttr(n.n, key)
}

// HasClass reports whether the element carries the class token.
func (n Node) HasClass(name string) bool {
	if n.n == nil {
		return false
	}
	for _, c := range strings.Fields(getAttr(n.n, "class")) {
		if c == name {
			return true
		}
	}
	return false
}

// ByID returns the first descendant with the given id, or a zero Node.
func (n Node) ByID(id string) Node {
	if n.n == nil {
		return Node{}
	}
	matches := matchSimple(n.n, "#"+id)
	if len(matches) == 0 {
		return Node{}
	}
	return Node{n: matches[0]}
}

// ByClass returns all descendants carrying the given class token.
func (n Node) ByClass(name string) []Node {
	if n.n == nil {
		return nil
	}
	return wrapAll(matchSimple(n.n, "."+name))
}

// ByTag returns all descendant elements with the given tag name.
func (n Node) ByTag(tag string) []Node {
	if n.n == nil {
		return nil
	}
	return wrapAll(matchSimple(n.n, tag))
}

// Select returns all descendants matching a simple CSS-ish selector.
func (n Node) Select(selector string) []Node {
	if n.n == nil {
		return nil
	}
	return wrapAll(querySelectorAll(n.n, selector))
}

// First returns the first descendant matched by any selector, in order.
func (n Node) First(selectors ...string) Node {
	if n.n == nil {
		return Node{}
	}
	for _, sel := range selectors {
		if matches := querySelectorAll(n.n, sel); len(matches) > 0 {
			return Node{n: matches[0]}
		}
	}
	return Node{}
}

// Links returns every descendant anchor with a non-empty href.
func (n Node) Links() []Link {
	if n.n == nil {
		return nil
	}
	var links []Link
	var walk func(*html.Node)
	walk = func(h *html.Node) {
		if h.Type == html.ElementNode && h.DataAtom == atom.A {
			if href := getAttr(h, "href"); href != "" {
				links = append(links, Link{Href: href, Text: CleanText(Node{n: h}.Text())})
			}
		}
		for c := h.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(n.n)
	return links
}

// Parent returns the parent element, or a zero Node at the document root.
func (n Node) Parent() Node {
	if n.n == nil || n.n.Parent == nil {
		return Node{}
	}
	return Node{n: n.n.Parent}
}

// HasAncestorClass reports whether any ancestor element carries the class
// token. Used to skip nodes a broader strategy already covered through
// their container.
func (n Node) HasAncestorClass(name string) bool {
	if n.n == nil {
		return false
	}
	for p := n.n.Parent; p != nil; p = p.Parent {
		if p.Type == html.ElementNode && (Node{n: p}).HasClass(name) {
			return true
		}
	}
	return false
}

// ByTextContains returns elements one of whose direct text nodes contains
// substr. Descendant text does not count, so the match lands on the label
// element itself rather than every ancestor.
func (n Node) ByTextContains(substr string) []Node {
	if n.n == nil || substr == "" {
		return nil
	}
	var results []Node
	var walk func(*html.Node)
	walk = func(h *html.Node) {
		if h.Type == html.ElementNode {
			switch h.DataAtom {
			case atom.Script, atom.Style, atom.Noscript:
				return
			}
			for c := h.FirstChild; c != nil; c = c.NextSibling {
				if c.Type == html.TextNode && strings.Contains(c.Data, substr) {
					results = append(results, Node{n: h})
					break
				}
			}
		}
		for c := h.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(n.n)
	return results
}

// InnerHTML serialises the element's children.
func (n Node) InnerHTML() string {
	if n.n == nil {
		return ""
	}
	var buf bytes.Buffer
	for c := n.n.FirstChild; c != nil; c = c.NextSibling {
		html.Render(&buf, c)
	}
	return buf.String()
}

// OuterHTML serialises the element subtree.
func (n Node) OuterHTML() string {
	if n.n == nil {
		return ""
	}
	var buf bytes.Buffer
	html.Render(&buf, n.n)
	return buf.String()
}

func wrapAll(nodes []*html.Node) []Node {
	if len(nodes) == 0 {
		return nil
	}
	out := make([]Node, len(nodes))
	for i, h := range nodes {
		out[i] = Node{n: h}
	}
	return out
}
