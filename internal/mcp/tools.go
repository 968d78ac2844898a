package mcp

import (
	"context"
	"errors"
	"fmt"
	"strings"

	mcpgo "github.com/mark3labs/mcp-go/mcp"

	"github.com/nextlevelbuilder/pagelens/pkg/browser"
	"github.com/nextlevelbuilder/pagelens/pkg/identity"
)

func (s *Server) registerTools() {
	targetParam := mcpgo.WithString("targetId", mcpgo.Description("Tab target id. Defaults to the first tab."))
	indexParam := mcpgo.WithString("index", mcpgo.Required(), mcpgo.Description(`Element index from the latest snapshot, e.g. "3" or "@3".`))
	handleParam := mcpgo.WithNumber("handle", mcpgo.Description(`Backend node handle from the "# handles:" line of a snapshot.`))
	handleIndexParam := mcpgo.WithString("index", mcpgo.Description("Snapshot index whose recorded handle to use when no handle is given."))

	s.mcp.AddTool(mcpgo.NewTool("browser_tabs",
		mcpgo.WithDescription("List open browser tabs."),
		mcpgo.WithReadOnlyHintAnnotation(true),
	), s.handleTabs)

	s.mcp.AddTool(mcpgo.NewTool("browser_navigate",
		mcpgo.WithDescription("Navigate a tab to a URL. Indices from earlier snapshots stop working."),
		mcpgo.WithString("url", mcpgo.Required(), mcpgo.Description("Absolute URL to load.")),
		targetParam,
	), s.handleNavigate)

	s.mcp.AddTool(mcpgo.NewTool("browser_snapshot",
		mcpgo.WithDescription("Capture the visible interactive elements of a tab as indexed text."),
		targetParam,
		mcpgo.WithBoolean("includeStructure", mcpgo.Description("Also emit non-interactive container lines.")),
		mcpgo.WithBoolean("compact", mcpgo.Description("Drop structure lines with no indexed element below them.")),
		mcpgo.WithNumber("maxChars", mcpgo.Description("Truncate the tree to this many characters. 0 disables truncation.")),
		mcpgo.WithReadOnlyHintAnnotation(true),
	), s.handleSnapshot)

	s.mcp.AddTool(mcpgo.NewTool("browser_click",
		mcpgo.WithDescription("Click the element with the given snapshot index."),
		indexParam,
		targetParam,
		mcpgo.WithBoolean("doubleClick", mcpgo.Description("Double click instead of a single click.")),
		mcpgo.WithString("button", mcpgo.Enum("left", "right", "middle"), mcpgo.Description("Mouse button.")),
	), s.handleClick)

	s.mcp.AddTool(mcpgo.NewTool("browser_type",
		mcpgo.WithDescription("Type text into the element with the given snapshot index."),
		indexParam,
		mcpgo.WithString("text", mcpgo.Required(), mcpgo.Description("Text to type.")),
		targetParam,
		mcpgo.WithBoolean("submit", mcpgo.Description("Press Enter after typing.")),
		mcpgo.WithBoolean("clear", mcpgo.Description("Clear the field first.")),
	), s.handleType)

	s.mcp.AddTool(mcpgo.NewTool("browser_hover",
		mcpgo.WithDescription("Move the mouse over the element with the given snapshot index."),
		indexParam,
		targetParam,
	), s.handleHover)

	s.mcp.AddTool(mcpgo.NewTool("identity_selector",
		mcpgo.WithDescription("Synthesize a CSS selector for the element behind a handle."),
		handleParam,
		handleIndexParam,
		targetParam,
		mcpgo.WithReadOnlyHintAnnotation(true),
	), s.handleSelector)

	s.mcp.AddTool(mcpgo.NewTool("identity_valid",
		mcpgo.WithDescription("Report whether the page still knows a handle."),
		handleParam,
		handleIndexParam,
		targetParam,
		mcpgo.WithReadOnlyHintAnnotation(true),
	), s.handleValid)
}

func (s *Server) handleTabs(ctx context.Context, _ mcpgo.CallToolRequest) (*mcpgo.CallToolResult, error) {
	tabs, err := s.browser.ListTabs(ctx)
	if err != nil {
		return toolError(err), nil
	}
	if len(tabs) == 0 {
		return mcpgo.NewToolResultText("no tabs open"), nil
	}
	var sb strings.Builder
	for _, t := range tabs {
		fmt.Fprintf(&sb, "%s  %s  %s\n", t.TargetID, t.URL, t.Title)
	}
	return mcpgo.NewToolResultText(strings.TrimRight(sb.String(), "\n")), nil
}

func (s *Server) handleNavigate(ctx context.Context, req mcpgo.CallToolRequest) (*mcpgo.CallToolResult, error) {
	url, err := req.RequireString("url")
	if err != nil {
		return toolError(err), nil
	}
	if err := s.browser.Navigate(ctx, req.GetString("targetId", ""), url); err != nil {
		return toolError(err), nil
	}
	return mcpgo.NewToolResultText("navigated to " + url), nil
}

func (s *Server) handleSnapshot(ctx context.Context, req mcpgo.CallToolRequest) (*mcpgo.CallToolResult, error) {
	opts := s.defaults()
	opts.Extract.IncludeStructure = req.GetBool("includeStructure", opts.Extract.IncludeStructure)
	opts.Compact = req.GetBool("compact", opts.Compact)
	opts.MaxChars = req.GetInt("maxChars", opts.MaxChars)

	res, err := s.browser.Snapshot(ctx, req.GetString("targetId", ""), opts)
	if err != nil {
		return toolError(err), nil
	}
	s.logger.Debug("mcp snapshot", "target", res.TargetID, "entries", res.Stats.Entries)
	return mcpgo.NewToolResultText(formatSnapshot(res)), nil
}

// formatSnapshot renders the header lines, the index to handle pairs and
// the tree.
func formatSnapshot(res *browser.SnapshotResult) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "# %s (%s)\n", res.Title, res.URL)
	fmt.Fprintf(&sb, "# tab %s, %d indexed elements, %d resolved\n", res.TargetID, res.Stats.Entries, res.Stats.Identities)
	if len(res.Identities) > 0 {
		sb.WriteString("# handles:")
		for _, i := range res.Identities.Indices() {
			fmt.Fprintf(&sb, " %d=%d", i, res.Identities[i])
		}
		sb.WriteString("\n")
	}
	if res.Tree == "" {
		sb.WriteString("(no interactive elements)")
	} else {
		sb.WriteString(res.Tree)
	}
	return sb.String()
}

// indexArg reads "index" given as a number or as any form ParseIndex takes.
func indexArg(req mcpgo.CallToolRequest) (int, error) {
	switch v := req.GetArguments()["index"].(type) {
	case int:
		if v < 0 {
			return 0, fmt.Errorf("invalid index %d", v)
		}
		return v, nil
	case float64:
		if v < 0 || v != float64(int(v)) {
			return 0, fmt.Errorf("invalid index %v", v)
		}
		return int(v), nil
	case string:
		return browser.ParseIndex(v)
	case nil:
		return 0, errors.New("required argument \"index\" not found")
	default:
		return 0, fmt.Errorf("index must be a number or string, got %T", v)
	}
}

func (s *Server) handleClick(ctx context.Context, req mcpgo.CallToolRequest) (*mcpgo.CallToolResult, error) {
	index, err := indexArg(req)
	if err != nil {
		return toolError(err), nil
	}
	res, err := s.browser.Click(ctx, req.GetString("targetId", ""), index, browser.ClickOpts{
		DoubleClick: req.GetBool("doubleClick", false),
		Button:      req.GetString("button", "left"),
	})
	return actResult("clicked", res, err), nil
}

func (s *Server) handleType(ctx context.Context, req mcpgo.CallToolRequest) (*mcpgo.CallToolResult, error) {
	index, err := indexArg(req)
	if err != nil {
		return toolError(err), nil
	}
	text, err := req.RequireString("text")
	if err != nil {
		return toolError(err), nil
	}
	res, err := s.browser.Type(ctx, req.GetString("targetId", ""), index, text, browser.TypeOpts{
		Submit: req.GetBool("submit", false),
		Clear:  req.GetBool("clear", false),
	})
	return actResult("typed into", res, err), nil
}

func (s *Server) handleHover(ctx context.Context, req mcpgo.CallToolRequest) (*mcpgo.CallToolResult, error) {
	index, err := indexArg(req)
	if err != nil {
		return toolError(err), nil
	}
	res, err := s.browser.Hover(ctx, req.GetString("targetId", ""), index)
	return actResult("hovered", res, err), nil
}

func actResult(verb string, res *browser.ActResult, err error) *mcpgo.CallToolResult {
	if err != nil {
		if errors.Is(err, browser.ErrUnknownIndex) {
			return mcpgo.NewToolResultError(err.Error() + "; call browser_snapshot for fresh indices")
		}
		return toolError(err)
	}
	msg := fmt.Sprintf("%s [%d]", verb, res.Index)
	if res.URL != "" {
		msg += " on " + res.URL
	}
	return mcpgo.NewToolResultText(msg)
}

// resolver returns a resolver for the requested tab and the handle named
// by "handle", or recorded for "index" by the last snapshot.
func (s *Server) resolver(ctx context.Context, req mcpgo.CallToolRequest) (*identity.Resolver, identity.Handle, error) {
	targetID := req.GetString("targetId", "")
	var h identity.Handle
	args := req.GetArguments()
	switch {
	case args["handle"] != nil:
		v, err := req.RequireInt("handle")
		if err != nil {
			return nil, 0, err
		}
		h = identity.Handle(v)
	case args["index"] != nil:
		index, err := indexArg(req)
		if err != nil {
			return nil, 0, err
		}
		if h, err = s.browser.Lookup(ctx, targetID, index); err != nil {
			return nil, 0, err
		}
	default:
		return nil, 0, errors.New("either handle or index is required")
	}
	r, err := s.browser.Resolver(targetID)
	if err != nil {
		return nil, 0, err
	}
	return r, h, nil
}

func (s *Server) handleSelector(ctx context.Context, req mcpgo.CallToolRequest) (*mcpgo.CallToolResult, error) {
	r, h, err := s.resolver(ctx, req)
	if err != nil {
		return toolError(err), nil
	}
	sel, err := r.SelectorFromIdentity(ctx, h)
	if err != nil {
		return toolError(err), nil
	}
	return mcpgo.NewToolResultText(sel), nil
}

func (s *Server) handleValid(ctx context.Context, req mcpgo.CallToolRequest) (*mcpgo.CallToolResult, error) {
	r, h, err := s.resolver(ctx, req)
	if err != nil {
		return toolError(err), nil
	}
	return mcpgo.NewToolResultText(fmt.Sprintf("%t", r.IsIdentityValid(ctx, h))), nil
}
