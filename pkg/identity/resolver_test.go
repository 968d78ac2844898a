package identity

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/nextlevelbuilder/pagelens/pkg/dom"
)

const formPage = `<html><body>
<div class="container">
  <button id="btn1">Go</button>
  <input name="input1">
  <a id="link1" href="/next">Next</a>
</div>
</body></html>`

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestResolveIdentities(t *testing.T) {
	tests := []struct {
		name      string
		selectors dom.SelectorMap
		want      []int
	}{
		{
			name:      "all resolve",
			selectors: dom.SelectorMap{1: "#btn1", 2: `input[name="input1"]`, 3: "#link1"},
			want:      []int{1, 2, 3},
		},
		{
			name:      "dangling selector is omitted",
			selectors: dom.SelectorMap{1: "#btn1", 2: "#nonexistent"},
			want:      []int{1},
		},
		{
			name:      "unparsable selector is omitted",
			selectors: dom.SelectorMap{4: "div >> [", 7: "#link1"},
			want:      []int{7},
		},
		{
			name:      "empty map",
			selectors: dom.SelectorMap{},
			want:      []int{},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := newHTMLPage(t, formPage)
			r := New(p, WithLogger(quietLogger()))

			got, err := r.ResolveIdentities(context.Background(), tt.selectors)
			if err != nil {
				t.Fatalf("ResolveIdentities() error = %v", err)
			}
			if diff := cmp.Diff(tt.want, got.Indices()); diff != "" {
				t.Errorf("indices mismatch (-want +got):\n%s", diff)
			}
			if len(got) > len(tt.selectors) {
				t.Errorf("resolved %d of %d selectors", len(got), len(tt.selectors))
			}
			for idx, h := range got {
				if _, ok := tt.selectors[idx]; !ok {
					t.Errorf("index %d was not in the input", idx)
				}
				if !r.IsIdentityValid(context.Background(), h) {
					t.Errorf("handle %d for index %d is not valid", h, idx)
				}
				if want := p.handle(t, tt.selectors[idx]); h != want {
					t.Errorf("index %d resolved to %d, want %d", idx, h, want)
				}
			}
			if p.opened != p.closed {
				t.Errorf("opened %d channels, closed %d", p.opened, p.closed)
			}
		})
	}
}

func TestResolveIdentitiesLogsGaps(t *testing.T) {
	p := newHTMLPage(t, formPage)
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))

	got, err := New(p, WithLogger(logger)).ResolveIdentities(context.Background(), dom.SelectorMap{5: "#nonexistent"})
	if err != nil {
		t.Fatalf("ResolveIdentities() error = %v", err)
	}
	if len(got) != 0 {
		t.Errorf("got %v, want empty", got)
	}
	out := buf.String()
	for _, want := range []string{"index=5", "selector=#nonexistent", "no matching element"} {
		if !strings.Contains(out, want) {
			t.Errorf("log %q missing %q", out, want)
		}
	}
}

func TestResolveIdentitiesChannelFailures(t *testing.T) {
	boom := errors.New("boom")
	tests := []struct {
		name       string
		openErr    error
		docErr     error
		wantClosed int
	}{
		{"open fails", boom, nil, 0},
		{"document fails", nil, boom, 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := newHTMLPage(t, formPage)
			p.openErr, p.docErr = tt.openErr, tt.docErr

			_, err := New(p, WithLogger(quietLogger())).ResolveIdentities(context.Background(), dom.SelectorMap{1: "#btn1"})
			if !errors.Is(err, boom) {
				t.Fatalf("error = %v, want wrapping %v", err, boom)
			}
			if p.closed != tt.wantClosed {
				t.Errorf("closed %d channels, want %d", p.closed, tt.wantClosed)
			}
		})
	}
}

func TestResolveIdentitiesStopsOnCancel(t *testing.T) {
	p := newHTMLPage(t, formPage)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	got, err := New(p, WithLogger(quietLogger())).ResolveIdentities(ctx, dom.SelectorMap{1: "#btn1", 2: "#link1"})
	if err != nil {
		t.Fatalf("ResolveIdentities() error = %v", err)
	}
	if len(got) != 0 {
		t.Errorf("got %v, want nothing resolved after cancel", got)
	}
	if p.closed != 1 {
		t.Errorf("closed %d channels, want 1", p.closed)
	}
}

func TestSelectorFromIdentity(t *testing.T) {
	tests := []struct {
		name string
		html string
		sel  string
		want string
	}{
		{"id wins over test id", `<div><span id="a" data-testid="b">x</span></div>`, "span", "#a"},
		{"test id", `<div><span data-testid="row:1">x</span></div>`, "span", `[data-testid="row\:1"]`},
		{"named control", `<form><select name="country"></select></form>`, "select", `select[name="country"]`},
		{"structural", `<main><p>one</p><p>two</p></main>`, "p:nth-of-type(2)", "body > main > p:nth-of-type(2)"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := newHTMLPage(t, tt.html)
			r := New(p, WithLogger(quietLogger()))
			h := p.handle(t, tt.sel)

			got, err := r.SelectorFromIdentity(context.Background(), h)
			if err != nil {
				t.Fatalf("SelectorFromIdentity() error = %v", err)
			}
			if got != tt.want {
				t.Errorf("selector = %q, want %q", got, tt.want)
			}
			again, err := r.SelectorFromIdentity(context.Background(), h)
			if err != nil || again != got {
				t.Errorf("second call = %q, %v; want %q", again, err, got)
			}
		})
	}
}

func TestSelectorFromIdentityUnknownHandle(t *testing.T) {
	p := newHTMLPage(t, formPage)
	r := New(p, WithLogger(quietLogger()))

	_, err := r.SelectorFromIdentity(context.Background(), 424242)
	if !errors.Is(err, ErrSynthesisFailed) {
		t.Fatalf("error = %v, want ErrSynthesisFailed", err)
	}
	if p.opened != 1 || p.closed != 1 {
		t.Errorf("opened %d, closed %d channels, want 1 and 1", p.opened, p.closed)
	}
}

func TestSiblingButtonsResolveByPosition(t *testing.T) {
	p := newHTMLPage(t, `<div><button>Edit</button><button>Edit</button></div>`)
	r := New(p, WithLogger(quietLogger()))
	ctx := context.Background()

	buttons := p.doc.Find("button")
	selectors := dom.SelectorMap{}
	for i := range buttons.Nodes {
		h := p.byNode[buttons.Get(i)]
		sel, err := r.SelectorFromIdentity(ctx, h)
		if err != nil {
			t.Fatalf("SelectorFromIdentity(%d) error = %v", h, err)
		}
		if !strings.Contains(sel, "button") || !strings.Contains(sel, ":nth-of-type(") {
			t.Errorf("selector %q lacks tag or nth-of-type", sel)
		}
		selectors[i+1] = sel
	}

	got, err := r.ResolveIdentities(ctx, selectors)
	if err != nil {
		t.Fatalf("ResolveIdentities() error = %v", err)
	}
	want := IdentityMap{
		1: p.byNode[buttons.Get(0)],
		2: p.byNode[buttons.Get(1)],
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("identities mismatch (-want +got):\n%s", diff)
	}
}

func TestDetachedElementKeepsIdentity(t *testing.T) {
	p := newHTMLPage(t, formPage)
	r := New(p, WithLogger(quietLogger()))
	ctx := context.Background()

	ids, err := r.ResolveIdentities(ctx, dom.SelectorMap{1: "#btn1"})
	if err != nil {
		t.Fatalf("ResolveIdentities() error = %v", err)
	}
	h := ids[1]
	before, err := r.SelectorFromIdentity(ctx, h)
	if err != nil {
		t.Fatalf("SelectorFromIdentity() error = %v", err)
	}

	p.detach(t, h)

	if !r.IsIdentityValid(ctx, h) {
		t.Error("detached handle reported invalid")
	}
	after, err := r.SelectorFromIdentity(ctx, h)
	if err != nil {
		t.Fatalf("SelectorFromIdentity() after detach error = %v", err)
	}
	if after != before {
		t.Errorf("selector after detach = %q, want %q", after, before)
	}
	again, err := r.ResolveIdentities(ctx, dom.SelectorMap{1: after})
	if err != nil {
		t.Fatalf("ResolveIdentities() after detach error = %v", err)
	}
	if len(again) != 0 {
		t.Errorf("live lookup of detached element = %v, want no match", again)
	}
}

func TestIsIdentityValid(t *testing.T) {
	p := newHTMLPage(t, formPage)
	r := New(p, WithLogger(quietLogger()))
	ctx := context.Background()
	h := p.handle(t, "#link1")

	if !r.IsIdentityValid(ctx, h) {
		t.Error("fresh handle reported invalid")
	}
	if r.IsIdentityValid(ctx, 0) {
		t.Error("zero handle reported valid")
	}

	p.load(t, formPage)
	if r.IsIdentityValid(ctx, h) {
		t.Error("handle from before reload reported valid")
	}

	p.openErr = errors.New("page gone")
	if r.IsIdentityValid(ctx, p.handle(t, "#link1")) {
		t.Error("validity check without a channel reported valid")
	}
	if p.opened != p.closed {
		t.Errorf("opened %d channels, closed %d", p.opened, p.closed)
	}
}

func TestEscapedTestIDRoundTrips(t *testing.T) {
	values := []string{`step:1`, `say "hi"`, `a'b`, `x[0].y`, `50%`}
	for _, v := range values {
		t.Run(v, func(t *testing.T) {
			p := newHTMLPage(t, `<div><span>decoy</span></div>`)
			target := p.doc.Find("span")
			target.SetAttr("data-testid", v)
			h := p.byNode[target.Get(0)]
			r := New(p, WithLogger(quietLogger()))
			ctx := context.Background()

			sel, err := r.SelectorFromIdentity(ctx, h)
			if err != nil {
				t.Fatalf("SelectorFromIdentity() error = %v", err)
			}
			if !strings.HasPrefix(sel, "[data-testid=") {
				t.Fatalf("selector %q does not use the test id", sel)
			}
			got, err := r.ResolveIdentities(ctx, dom.SelectorMap{1: sel})
			if err != nil {
				t.Fatalf("ResolveIdentities() error = %v", err)
			}
			if got[1] != h {
				t.Errorf("selector %q resolved to %d, want %d", sel, got[1], h)
			}
		})
	}
}
