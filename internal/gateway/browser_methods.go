package gateway

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/nextlevelbuilder/pagelens/pkg/browser"
	"github.com/nextlevelbuilder/pagelens/pkg/dom"
	"github.com/nextlevelbuilder/pagelens/pkg/identity"
	"github.com/nextlevelbuilder/pagelens/pkg/protocol"
)

// BrowserMethods handles tabs.*, page.* and identity.*.
type BrowserMethods struct {
	server *Server
}

func registerBrowserMethods(r *MethodRouter, s *Server) {
	m := &BrowserMethods{server: s}
	r.Register(protocol.MethodTabsList, m.handleTabsList)
	r.Register(protocol.MethodTabsOpen, m.handleTabsOpen)
	r.Register(protocol.MethodTabsClose, m.handleTabsClose)
	r.Register(protocol.MethodPageNavigate, m.handleNavigate)
	r.Register(protocol.MethodPageSnapshot, m.handleSnapshot)
	r.Register(protocol.MethodPageClick, m.handleClick)
	r.Register(protocol.MethodPageType, m.handleType)
	r.Register(protocol.MethodPageHover, m.handleHover)
	r.Register(protocol.MethodIdentityResolve, m.handleResolve)
	r.Register(protocol.MethodIdentitySelector, m.handleSelector)
	r.Register(protocol.MethodIdentityValid, m.handleValid)
}

// indexParam accepts 3 as well as "3", "[3]", "@3" and "index=3".
type indexParam struct {
	set   bool
	value int
}

func (p *indexParam) UnmarshalJSON(data []byte) error {
	var n int
	if err := json.Unmarshal(data, &n); err == nil {
		p.set, p.value = true, n
		return nil
	}
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return errors.New("index must be a number or string")
	}
	n, err := browser.ParseIndex(s)
	if err != nil {
		return err
	}
	p.set, p.value = true, n
	return nil
}

func (m *BrowserMethods) handleTabsList(ctx context.Context, client *Client, req *protocol.RequestFrame) {
	tabs, err := m.server.browser.ListTabs(ctx)
	if err != nil {
		client.sendFailure(req.ID, req.Method, err)
		return
	}
	client.SendResponse(protocol.NewOKResponse(req.ID, map[string]any{"tabs": tabs}))
}

func (m *BrowserMethods) handleTabsOpen(ctx context.Context, client *Client, req *protocol.RequestFrame) {
	var params struct {
		URL string `json:"url"`
	}
	if err := decodeParams(req, &params); err != nil {
		client.sendError(req.ID, protocol.ErrInvalidRequest, err.Error())
		return
	}
	if params.URL == "" {
		params.URL = "about:blank"
	}
	tab, err := m.server.browser.OpenTab(ctx, params.URL)
	if err != nil {
		client.sendFailure(req.ID, req.Method, err)
		return
	}
	client.SendResponse(protocol.NewOKResponse(req.ID, tab))
}

func (m *BrowserMethods) handleTabsClose(ctx context.Context, client *Client, req *protocol.RequestFrame) {
	var params struct {
		TargetID string `json:"targetId"`
	}
	if err := decodeParams(req, &params); err != nil {
		client.sendError(req.ID, protocol.ErrInvalidRequest, err.Error())
		return
	}
	if params.TargetID == "" {
		client.sendError(req.ID, protocol.ErrInvalidRequest, "targetId is required")
		return
	}
	if err := m.server.browser.CloseTab(ctx, params.TargetID); err != nil {
		client.sendFailure(req.ID, req.Method, err)
		return
	}
	client.SendResponse(protocol.NewOKResponse(req.ID, map[string]any{"ok": true}))
}

func (m *BrowserMethods) handleNavigate(ctx context.Context, client *Client, req *protocol.RequestFrame) {
	var params struct {
		TargetID string `json:"targetId"`
		URL      string `json:"url"`
	}
	if err := decodeParams(req, &params); err != nil {
		client.sendError(req.ID, protocol.ErrInvalidRequest, err.Error())
		return
	}
	if params.URL == "" {
		client.sendError(req.ID, protocol.ErrInvalidRequest, "url is required")
		return
	}
	if err := m.server.browser.Navigate(ctx, params.TargetID, params.URL); err != nil {
		client.sendFailure(req.ID, req.Method, err)
		return
	}
	client.SendResponse(protocol.NewOKResponse(req.ID, map[string]any{"ok": true, "url": params.URL}))
}

func (m *BrowserMethods) handleSnapshot(ctx context.Context, client *Client, req *protocol.RequestFrame) {
	var params struct {
		TargetID         string `json:"targetId"`
		Compact          *bool  `json:"compact"`
		MaxChars         *int   `json:"maxChars"`
		IncludeStructure *bool  `json:"includeStructure"`
		IncludeCompounds *bool  `json:"includeCompounds"`
		MaxTextLength    *int   `json:"maxTextLength"`
	}
	if err := decodeParams(req, &params); err != nil {
		client.sendError(req.ID, protocol.ErrInvalidRequest, err.Error())
		return
	}

	opts := m.server.snapshotOptions()
	if params.Compact != nil {
		opts.Compact = *params.Compact
	}
	if params.MaxChars != nil {
		opts.MaxChars = *params.MaxChars
	}
	if params.IncludeStructure != nil {
		opts.Extract.IncludeStructure = *params.IncludeStructure
	}
	if params.IncludeCompounds != nil {
		opts.Extract.IncludeCompounds = *params.IncludeCompounds
	}
	if params.MaxTextLength != nil {
		if *params.MaxTextLength < 0 {
			client.sendError(req.ID, protocol.ErrInvalidRequest, "maxTextLength must not be negative")
			return
		}
		opts.Extract.MaxTextLength = *params.MaxTextLength
	}

	res, err := m.server.browser.Snapshot(ctx, params.TargetID, opts)
	if err != nil {
		client.sendFailure(req.ID, req.Method, err)
		return
	}
	client.SendResponse(protocol.NewOKResponse(req.ID, res))
	client.SendEvent(*protocol.NewEvent(protocol.EventSnapshotCompleted, map[string]any{
		"targetId":     res.TargetID,
		"extractionId": res.ExtractionID,
		"entries":      res.Stats.Entries,
		"identities":   res.Stats.Identities,
	}))
}

type actParams struct {
	TargetID string     `json:"targetId"`
	Index    indexParam `json:"index"`
}

func (m *BrowserMethods) decodeAct(client *Client, req *protocol.RequestFrame, params any, act *actParams) bool {
	if err := decodeParams(req, params); err != nil {
		client.sendError(req.ID, protocol.ErrInvalidRequest, err.Error())
		return false
	}
	if !act.Index.set {
		client.sendError(req.ID, protocol.ErrInvalidRequest, "index is required")
		return false
	}
	return true
}

func (m *BrowserMethods) handleClick(ctx context.Context, client *Client, req *protocol.RequestFrame) {
	var params struct {
		actParams
		DoubleClick bool   `json:"doubleClick"`
		Button      string `json:"button"`
	}
	if !m.decodeAct(client, req, &params, &params.actParams) {
		return
	}
	res, err := m.server.browser.Click(ctx, params.TargetID, params.Index.value, browser.ClickOpts{
		DoubleClick: params.DoubleClick,
		Button:      params.Button,
	})
	m.reply(client, req, res, err)
}

func (m *BrowserMethods) handleType(ctx context.Context, client *Client, req *protocol.RequestFrame) {
	var params struct {
		actParams
		Text   string `json:"text"`
		Submit bool   `json:"submit"`
		Clear  bool   `json:"clear"`
	}
	if !m.decodeAct(client, req, &params, &params.actParams) {
		return
	}
	res, err := m.server.browser.Type(ctx, params.TargetID, params.Index.value, params.Text, browser.TypeOpts{
		Submit: params.Submit,
		Clear:  params.Clear,
	})
	m.reply(client, req, res, err)
}

func (m *BrowserMethods) handleHover(ctx context.Context, client *Client, req *protocol.RequestFrame) {
	var params actParams
	if !m.decodeAct(client, req, &params, &params) {
		return
	}
	res, err := m.server.browser.Hover(ctx, params.TargetID, params.Index.value)
	m.reply(client, req, res, err)
}

func (m *BrowserMethods) reply(client *Client, req *protocol.RequestFrame, res *browser.ActResult, err error) {
	if err != nil {
		client.sendFailure(req.ID, req.Method, err)
		return
	}
	client.SendResponse(protocol.NewOKResponse(req.ID, res))
}

func (m *BrowserMethods) handleResolve(ctx context.Context, client *Client, req *protocol.RequestFrame) {
	var params struct {
		TargetID  string          `json:"targetId"`
		Selectors dom.SelectorMap `json:"selectors"`
	}
	if err := decodeParams(req, &params); err != nil {
		client.sendError(req.ID, protocol.ErrInvalidRequest, err.Error())
		return
	}
	r, err := m.server.browser.Resolver(params.TargetID)
	if err != nil {
		client.sendFailure(req.ID, req.Method, err)
		return
	}
	ids, err := r.ResolveIdentities(ctx, params.Selectors)
	if err != nil {
		client.sendFailure(req.ID, req.Method, err)
		return
	}
	client.SendResponse(protocol.NewOKResponse(req.ID, map[string]any{
		"identities": ids,
		"requested":  len(params.Selectors),
		"resolved":   len(ids),
	}))
}

type handleParams struct {
	TargetID string           `json:"targetId"`
	Handle   *identity.Handle `json:"handle"`
}

func (m *BrowserMethods) decodeHandle(client *Client, req *protocol.RequestFrame) (*identity.Resolver, identity.Handle, bool) {
	var params handleParams
	if err := decodeParams(req, &params); err != nil {
		client.sendError(req.ID, protocol.ErrInvalidRequest, err.Error())
		return nil, 0, false
	}
	if params.Handle == nil {
		client.sendError(req.ID, protocol.ErrInvalidRequest, "handle is required")
		return nil, 0, false
	}
	r, err := m.server.browser.Resolver(params.TargetID)
	if err != nil {
		client.sendFailure(req.ID, req.Method, err)
		return nil, 0, false
	}
	return r, *params.Handle, true
}

func (m *BrowserMethods) handleSelector(ctx context.Context, client *Client, req *protocol.RequestFrame) {
	r, h, ok := m.decodeHandle(client, req)
	if !ok {
		return
	}
	sel, err := r.SelectorFromIdentity(ctx, h)
	if err != nil {
		client.sendFailure(req.ID, req.Method, err)
		return
	}
	client.SendResponse(protocol.NewOKResponse(req.ID, map[string]any{
		"handle":   h,
		"selector": sel,
	}))
}

func (m *BrowserMethods) handleValid(ctx context.Context, client *Client, req *protocol.RequestFrame) {
	r, h, ok := m.decodeHandle(client, req)
	if !ok {
		return
	}
	client.SendResponse(protocol.NewOKResponse(req.ID, map[string]any{
		"handle": h,
		"valid":  r.IsIdentityValid(ctx, h),
	}))
}
