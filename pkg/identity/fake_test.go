package identity

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/PuerkitoBio/goquery"
	"github.com/andybalholm/cascadia"
	"golang.org/x/net/html"

	"github.com/nextlevelbuilder/pagelens/pkg/cssselect"
)

// htmlPage stands in for a browser page. Every element gets a handle when
// the page loads; handles survive detaching and die on reload.
type htmlPage struct {
	doc     *goquery.Document
	handles map[Handle]*html.Node
	byNode  map[*html.Node]Handle
	next    Handle

	openErr error
	docErr  error
	opened  int
	closed  int
}

func newHTMLPage(t *testing.T, src string) *htmlPage {
	t.Helper()
	p := &htmlPage{next: 100}
	p.load(t, src)
	return p
}

func (p *htmlPage) load(t *testing.T, src string) {
	t.Helper()
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(src))
	if err != nil {
		t.Fatalf("parse html: %v", err)
	}
	p.doc = doc
	p.handles = make(map[Handle]*html.Node)
	p.byNode = make(map[*html.Node]Handle)
	doc.Find("*").Each(func(_ int, s *goquery.Selection) {
		n := s.Get(0)
		p.next++
		p.handles[p.next] = n
		p.byNode[n] = p.next
	})
}

// handle returns the handle of the single element matching sel.
func (p *htmlPage) handle(t *testing.T, sel string) Handle {
	t.Helper()
	s := p.doc.Find(sel)
	if s.Length() != 1 {
		t.Fatalf("%q matches %d elements, want 1", sel, s.Length())
	}
	return p.byNode[s.Get(0)]
}

// detach removes the element behind h from the document but keeps it
// known, the way a script holding a reference would.
func (p *htmlPage) detach(t *testing.T, h Handle) {
	t.Helper()
	n := p.handles[h]
	if n == nil || n.Parent == nil {
		t.Fatalf("handle %d is not attached", h)
	}
	n.Parent.RemoveChild(n)
}

func (p *htmlPage) Open(context.Context) (Channel, error) {
	if p.openErr != nil {
		return nil, p.openErr
	}
	p.opened++
	return &htmlChannel{page: p, refs: make(map[NodeRef]*html.Node)}, nil
}

type htmlChannel struct {
	page   *htmlPage
	refs   map[NodeRef]*html.Node
	closed bool
}

func (c *htmlChannel) ref(n *html.Node) NodeRef {
	r := NodeRef(len(c.refs) + 1)
	c.refs[r] = n
	return r
}

func (c *htmlChannel) Document(context.Context) (NodeRef, error) {
	if c.page.docErr != nil {
		return 0, c.page.docErr
	}
	return c.ref(c.page.doc.Get(0)), nil
}

func (c *htmlChannel) QuerySelector(_ context.Context, root NodeRef, sel string) (NodeRef, error) {
	n, ok := c.refs[root]
	if !ok {
		return 0, errors.New("unknown node ref")
	}
	s, err := cascadia.Compile(sel)
	if err != nil {
		return 0, err
	}
	m := s.MatchFirst(n)
	if m == nil {
		return 0, nil
	}
	return c.ref(m), nil
}

func (c *htmlChannel) HandleOf(_ context.Context, ref NodeRef) (Handle, error) {
	n, ok := c.refs[ref]
	if !ok {
		return 0, errors.New("unknown node ref")
	}
	h, ok := c.page.byNode[n]
	if !ok {
		return 0, errors.New("node has no handle")
	}
	return h, nil
}

func (c *htmlChannel) Synthesize(_ context.Context, h Handle) (string, error) {
	n, ok := c.page.handles[h]
	if !ok {
		return "", errors.New("no node with given id found")
	}
	return cssselect.Synthesize(htmlElement{n}), nil
}

func (c *htmlChannel) Known(_ context.Context, h Handle) (bool, error) {
	_, ok := c.page.handles[h]
	return ok, nil
}

func (c *htmlChannel) Close() error {
	if c.closed {
		return errors.New("channel closed twice")
	}
	c.closed = true
	c.page.closed++
	return nil
}

// htmlElement exposes an *html.Node to the synthesis ladder.
type htmlElement struct{ n *html.Node }

func (e htmlElement) TagName() string { return e.n.Data }

func (e htmlElement) Attribute(name string) string {
	for _, a := range e.n.Attr {
		if a.Key == name {
			return a.Val
		}
	}
	return ""
}

func (e htmlElement) ParentElement() cssselect.Element {
	if p := e.n.Parent; p != nil && p.Type == html.ElementNode {
		return htmlElement{p}
	}
	return nil
}

func (e htmlElement) SiblingPosition() (pos, count int) {
	if e.n.Parent == nil {
		return 1, 1
	}
	for c := e.n.Parent.FirstChild; c != nil; c = c.NextSibling {
		if c.Type != html.ElementNode || c.Data != e.n.Data {
			continue
		}
		count++
		if c == e.n {
			pos = count
		}
	}
	return pos, count
}
