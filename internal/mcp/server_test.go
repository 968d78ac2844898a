package mcp

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"testing"

	mcpclient "github.com/mark3labs/mcp-go/client"
	mcpgo "github.com/mark3labs/mcp-go/mcp"

	"github.com/nextlevelbuilder/pagelens/pkg/browser"
	"github.com/nextlevelbuilder/pagelens/pkg/dom"
	"github.com/nextlevelbuilder/pagelens/pkg/identity"
)

type fakeBrowser struct {
	navigated string
	lastOpts  browser.SnapshotOptions
	typed     string
	live      map[identity.Handle]string
}

func (b *fakeBrowser) ListTabs(context.Context) ([]browser.TabInfo, error) {
	return []browser.TabInfo{{TargetID: "T1", URL: "https://example.test/", Title: "Example"}}, nil
}

func (b *fakeBrowser) Navigate(_ context.Context, _ string, url string) error {
	b.navigated = url
	return nil
}

func (b *fakeBrowser) Snapshot(_ context.Context, _ string, opts browser.SnapshotOptions) (*browser.SnapshotResult, error) {
	b.lastOpts = opts
	return &browser.SnapshotResult{
		Tree:       "[0]<input placeholder=Email />\n[1]<button>Sign in</button>",
		Selectors:  dom.SelectorMap{0: "#email", 1: "#signin"},
		Identities: identity.IdentityMap{0: 11, 1: 12},
		TargetID:   "T1",
		URL:        "https://example.test/login",
		Title:      "Login",
		Stats:      browser.SnapshotStats{Entries: 2, Identities: 2},
	}, nil
}

func (b *fakeBrowser) act(index int) (*browser.ActResult, error) {
	if index > 1 {
		return nil, fmt.Errorf("%w: %d", browser.ErrUnknownIndex, index)
	}
	return &browser.ActResult{OK: true, TargetID: "T1", Index: index}, nil
}

func (b *fakeBrowser) Click(_ context.Context, _ string, index int, _ browser.ClickOpts) (*browser.ActResult, error) {
	return b.act(index)
}

func (b *fakeBrowser) Type(_ context.Context, _ string, index int, text string, _ browser.TypeOpts) (*browser.ActResult, error) {
	b.typed = text
	return b.act(index)
}

func (b *fakeBrowser) Hover(_ context.Context, _ string, index int) (*browser.ActResult, error) {
	return b.act(index)
}

func (b *fakeBrowser) Lookup(_ context.Context, _ string, index int) (identity.Handle, error) {
	h, ok := identity.IdentityMap{0: 11, 1: 12}[index]
	if !ok {
		return 0, fmt.Errorf("%w: %d", browser.ErrUnknownIndex, index)
	}
	return h, nil
}

func (b *fakeBrowser) Resolver(string) (*identity.Resolver, error) {
	return identity.New(identity.OpenerFunc(func(context.Context) (identity.Channel, error) {
		return &liveChannel{live: b.live}, nil
	}), identity.WithLogger(quiet())), nil
}

// liveChannel answers synthesis and validity from a fixed handle table.
type liveChannel struct {
	live map[identity.Handle]string
}

func (c *liveChannel) Document(context.Context) (identity.NodeRef, error) { return 1, nil }
func (c *liveChannel) QuerySelector(context.Context, identity.NodeRef, string) (identity.NodeRef, error) {
	return 0, nil
}
func (c *liveChannel) HandleOf(_ context.Context, ref identity.NodeRef) (identity.Handle, error) {
	return identity.Handle(ref), nil
}
func (c *liveChannel) Synthesize(_ context.Context, h identity.Handle) (string, error) {
	if s, ok := c.live[h]; ok {
		return s, nil
	}
	return "", fmt.Errorf("no node with given id found")
}
func (c *liveChannel) Known(_ context.Context, h identity.Handle) (bool, error) {
	_, ok := c.live[h]
	return ok, nil
}
func (c *liveChannel) Close() error { return nil }

func quiet() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// startClient runs an in-process MCP session against s.
func startClient(t *testing.T, s *Server) *mcpclient.Client {
	t.Helper()
	c, err := mcpclient.NewInProcessClient(s.MCPServer())
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { c.Close() })
	ctx := context.Background()
	if err := c.Start(ctx); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	initReq := mcpgo.InitializeRequest{}
	initReq.Params.ProtocolVersion = mcpgo.LATEST_PROTOCOL_VERSION
	initReq.Params.ClientInfo = mcpgo.Implementation{Name: "test", Version: "1.0.0"}
	if _, err := c.Initialize(ctx, initReq); err != nil {
		t.Fatalf("Initialize() error = %v", err)
	}
	return c
}

func callTool(t *testing.T, c *mcpclient.Client, name string, args map[string]any) (string, bool) {
	t.Helper()
	req := mcpgo.CallToolRequest{}
	req.Params.Name = name
	req.Params.Arguments = args
	res, err := c.CallTool(context.Background(), req)
	if err != nil {
		t.Fatalf("CallTool(%s) error = %v", name, err)
	}
	return extractTextContent(res), res.IsError
}

// extractTextContent concatenates all text content from a CallToolResult.
func extractTextContent(result *mcpgo.CallToolResult) string {
	if result == nil {
		return ""
	}
	var parts []string
	for _, c := range result.Content {
		if tc, ok := mcpgo.AsTextContent(c); ok {
			parts = append(parts, tc.Text)
		}
	}
	return strings.Join(parts, "\n")
}

func TestToolsListed(t *testing.T) {
	c := startClient(t, NewServer(&fakeBrowser{}, WithLogger(quiet())))
	res, err := c.ListTools(context.Background(), mcpgo.ListToolsRequest{})
	if err != nil {
		t.Fatal(err)
	}
	got := map[string]bool{}
	for _, tool := range res.Tools {
		got[tool.Name] = true
	}
	for _, name := range []string{
		"browser_tabs", "browser_navigate", "browser_snapshot", "browser_click",
		"browser_type", "browser_hover", "identity_selector", "identity_valid",
	} {
		if !got[name] {
			t.Errorf("tool %s not registered", name)
		}
	}
}

func TestSnapshotTool(t *testing.T) {
	b := &fakeBrowser{}
	defaults := browser.DefaultSnapshotOptions()
	defaults.Extract.MaxTextLength = 40
	c := startClient(t, NewServer(b, WithLogger(quiet()), WithSnapshotDefaults(func() browser.SnapshotOptions { return defaults })))

	text, isErr := callTool(t, c, "browser_snapshot", map[string]any{"includeStructure": true, "maxChars": 200})
	if isErr {
		t.Fatalf("snapshot returned error: %s", text)
	}
	for _, want := range []string{"# Login (https://example.test/login)", "2 indexed elements", "# handles: 0=11 1=12", "[1]<button>Sign in</button>"} {
		if !strings.Contains(text, want) {
			t.Errorf("snapshot text missing %q:\n%s", want, text)
		}
	}
	if !b.lastOpts.Extract.IncludeStructure || b.lastOpts.MaxChars != 200 || b.lastOpts.Extract.MaxTextLength != 40 {
		t.Errorf("options = %+v", b.lastOpts)
	}
}

func TestActTools(t *testing.T) {
	b := &fakeBrowser{}
	c := startClient(t, NewServer(b, WithLogger(quiet())))

	tests := []struct {
		name    string
		tool    string
		args    map[string]any
		want    string
		wantErr bool
	}{
		{"click by number", "browser_click", map[string]any{"index": 1}, "clicked [1]", false},
		{"click by ref", "browser_click", map[string]any{"index": "@1"}, "clicked [1]", false},
		{"type", "browser_type", map[string]any{"index": "0", "text": "a@b.c"}, "typed into [0]", false},
		{"hover", "browser_hover", map[string]any{"index": "[0]"}, "hovered [0]", false},
		{"stale index", "browser_click", map[string]any{"index": 9}, "browser_snapshot", true},
		{"missing index", "browser_click", map[string]any{}, "index", true},
		{"type without text", "browser_type", map[string]any{"index": 0}, "text", true},
		{"navigate", "browser_navigate", map[string]any{"url": "https://example.test/next"}, "navigated", false},
		{"navigate without url", "browser_navigate", map[string]any{}, "url", true},
		{"tabs", "browser_tabs", nil, "T1", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			text, isErr := callTool(t, c, tt.tool, tt.args)
			if isErr != tt.wantErr {
				t.Errorf("isError = %v, want %v (%s)", isErr, tt.wantErr, text)
			}
			if !strings.Contains(text, tt.want) {
				t.Errorf("text = %q, want it to contain %q", text, tt.want)
			}
		})
	}
	if b.typed != "a@b.c" || b.navigated != "https://example.test/next" {
		t.Errorf("browser saw typed=%q navigated=%q", b.typed, b.navigated)
	}
}

func TestIdentityTools(t *testing.T) {
	b := &fakeBrowser{live: map[identity.Handle]string{12: "#signin"}}
	c := startClient(t, NewServer(b, WithLogger(quiet())))

	if text, isErr := callTool(t, c, "identity_selector", map[string]any{"handle": 12}); isErr || text != "#signin" {
		t.Errorf("selector = %q (error %v)", text, isErr)
	}
	if text, isErr := callTool(t, c, "identity_selector", map[string]any{"handle": 99}); !isErr || !strings.Contains(text, "synthesis failed") {
		t.Errorf("selector for stale handle = %q (error %v)", text, isErr)
	}
	if text, _ := callTool(t, c, "identity_valid", map[string]any{"handle": 12}); text != "true" {
		t.Errorf("valid(12) = %q", text)
	}
	if text, _ := callTool(t, c, "identity_valid", map[string]any{"handle": 99}); text != "false" {
		t.Errorf("valid(99) = %q", text)
	}
}

func TestIdentityToolsByIndex(t *testing.T) {
	b := &fakeBrowser{live: map[identity.Handle]string{11: "#email", 12: "#signin"}}
	c := startClient(t, NewServer(b, WithLogger(quiet())))

	tests := []struct {
		name    string
		tool    string
		args    map[string]any
		want    string
		wantErr bool
	}{
		{"selector by index", "identity_selector", map[string]any{"index": "1"}, "#signin", false},
		{"selector by numeric index", "identity_selector", map[string]any{"index": 0}, "#email", false},
		{"valid by index", "identity_valid", map[string]any{"index": "@1"}, "true", false},
		{"handle wins over index", "identity_selector", map[string]any{"handle": 11, "index": "1"}, "#email", false},
		{"unknown index", "identity_valid", map[string]any{"index": "7"}, "unknown", true},
		{"neither given", "identity_selector", map[string]any{}, "handle or index", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			text, isErr := callTool(t, c, tt.tool, tt.args)
			if isErr != tt.wantErr || !strings.Contains(text, tt.want) {
				t.Errorf("%s(%v) = %q (error %v), want %q (error %v)", tt.tool, tt.args, text, isErr, tt.want, tt.wantErr)
			}
		})
	}
}
