package browser

import (
	"context"
	"errors"
	"fmt"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/input"
	"github.com/go-rod/rod/lib/proto"

	"github.com/nextlevelbuilder/pagelens/pkg/identity"
)

// Click clicks the element recorded for index by the last snapshot.
func (m *Manager) Click(ctx context.Context, targetID string, index int, opts ClickOpts) (*ActResult, error) {
	page, el, err := m.resolveIndex(ctx, targetID, index)
	if err != nil {
		return nil, err
	}

	button := proto.InputMouseButtonLeft
	switch opts.Button {
	case "right":
		button = proto.InputMouseButtonRight
	case "middle":
		button = proto.InputMouseButtonMiddle
	}

	clickCount := 1
	if opts.DoubleClick {
		clickCount = 2
	}

	if err := el.Click(button, clickCount); err != nil {
		return nil, fmt.Errorf("click index %d: %w", index, err)
	}
	return m.actResult(page, index), nil
}

// Type types text into the element recorded for index.
func (m *Manager) Type(ctx context.Context, targetID string, index int, text string, opts TypeOpts) (*ActResult, error) {
	page, el, err := m.resolveIndex(ctx, targetID, index)
	if err != nil {
		return nil, err
	}

	if err := el.Focus(); err != nil {
		return nil, fmt.Errorf("focus index %d: %w", index, err)
	}
	if opts.Clear {
		if err := el.SelectAllText(); err != nil {
			return nil, fmt.Errorf("select text at index %d: %w", index, err)
		}
	}
	if err := el.Input(text); err != nil {
		return nil, fmt.Errorf("type into index %d: %w", index, err)
	}
	if opts.Submit {
		if err := page.Keyboard.Press(input.Enter); err != nil {
			return nil, fmt.Errorf("submit: %w", err)
		}
	}
	return m.actResult(page, index), nil
}

// Hover hovers over the element recorded for index.
func (m *Manager) Hover(ctx context.Context, targetID string, index int) (*ActResult, error) {
	page, el, err := m.resolveIndex(ctx, targetID, index)
	if err != nil {
		return nil, err
	}
	if err := el.Hover(); err != nil {
		return nil, fmt.Errorf("hover index %d: %w", index, err)
	}
	return m.actResult(page, index), nil
}

// Lookup returns the recorded handle for index on a tab.
func (m *Manager) Lookup(ctx context.Context, targetID string, index int) (identity.Handle, error) {
	page, err := m.page(targetID)
	if err != nil {
		return 0, err
	}
	return m.lookup(ctx, string(page.TargetID), index)
}

// SelectorFor synthesizes a fresh selector for the element recorded for
// index. The selector reflects the element's current place in the page.
func (m *Manager) SelectorFor(ctx context.Context, targetID string, index int) (string, error) {
	h, err := m.Lookup(ctx, targetID, index)
	if err != nil {
		return "", err
	}
	r, err := m.Resolver(targetID)
	if err != nil {
		return "", err
	}
	return r.SelectorFromIdentity(ctx, h)
}

func (m *Manager) lookup(ctx context.Context, targetID string, index int) (identity.Handle, error) {
	rec, err := m.records.Load(ctx, targetID)
	if errors.Is(err, ErrNoRecord) {
		return 0, fmt.Errorf("%w %d: take a snapshot first", ErrUnknownIndex, index)
	}
	if err != nil {
		return 0, fmt.Errorf("load identity record: %w", err)
	}
	h, ok := rec.Handle(index)
	if !ok {
		return 0, fmt.Errorf("%w %d in extraction %s", ErrUnknownIndex, index, rec.ExtractionID)
	}
	return h, nil
}

// resolveIndex turns an index into a live element through its recorded
// handle.
func (m *Manager) resolveIndex(ctx context.Context, targetID string, index int) (*rod.Page, *rod.Element, error) {
	page, err := m.page(targetID)
	if err != nil {
		return nil, nil, err
	}
	p := page.Context(ctx)

	h, err := m.lookup(ctx, string(page.TargetID), index)
	if err != nil {
		return nil, nil, err
	}

	resolved, err := proto.DOMResolveNode{BackendNodeID: proto.DOMBackendNodeID(h)}.Call(p)
	if err != nil {
		return nil, nil, fmt.Errorf("resolve DOM node for index %d (backendNodeID=%d): %w", index, h, err)
	}

	el, err := p.ElementFromObject(resolved.Object)
	if err != nil {
		return nil, nil, fmt.Errorf("get element from object for index %d: %w", index, err)
	}
	return p, el, nil
}

func (m *Manager) actResult(page *rod.Page, index int) *ActResult {
	res := &ActResult{OK: true, TargetID: string(page.TargetID), Index: index}
	if info, err := page.Info(); err == nil && info != nil {
		res.URL = info.URL
	}
	return res
}
