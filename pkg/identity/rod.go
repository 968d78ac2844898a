package identity

import (
	"context"
	"errors"
	"fmt"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/cdp"
	"github.com/go-rod/rod/lib/proto"

	"github.com/nextlevelbuilder/pagelens/pkg/cssselect"
)

// NewPageOpener returns an Opener whose channels are dedicated CDP
// sessions attached to page's target. Node ids handed out by one session
// are never seen by another, so each operation works on its own view.
func NewPageOpener(page *rod.Page) Opener {
	return OpenerFunc(func(ctx context.Context) (Channel, error) {
		b := page.Browser()
		res, err := proto.TargetAttachToTarget{TargetID: page.TargetID, Flatten: true}.Call(b.Context(ctx))
		if err != nil {
			return nil, fmt.Errorf("attach to target %s: %w", page.TargetID, err)
		}
		return &rodChannel{
			browser: b,
			client:  &sessionClient{ctx: ctx, browser: b, sessionID: res.SessionID},
		}, nil
	})
}

// sessionClient sends CDP commands on one flattened session.
type sessionClient struct {
	ctx       context.Context
	browser   *rod.Browser
	sessionID proto.TargetSessionID
}

func (c *sessionClient) Call(ctx context.Context, _, method string, params interface{}) ([]byte, error) {
	return c.browser.Call(ctx, string(c.sessionID), method, params)
}

func (c *sessionClient) GetContext() context.Context          { return c.ctx }
func (c *sessionClient) GetSessionID() proto.TargetSessionID { return c.sessionID }

// withContext returns a client bound to ctx on the same session.
func (c *sessionClient) withContext(ctx context.Context) *sessionClient {
	cp := *c
	cp.ctx = ctx
	return &cp
}

type rodChannel struct {
	browser *rod.Browser
	client  *sessionClient
}

func (r *rodChannel) Document(ctx context.Context) (NodeRef, error) {
	depth := 0
	res, err := proto.DOMGetDocument{Depth: &depth}.Call(r.client.withContext(ctx))
	if err != nil {
		return 0, err
	}
	if res.Root == nil {
		return 0, errors.New("empty document")
	}
	return NodeRef(res.Root.NodeID), nil
}

func (r *rodChannel) QuerySelector(ctx context.Context, root NodeRef, sel string) (NodeRef, error) {
	res, err := proto.DOMQuerySelector{NodeID: proto.DOMNodeID(root), Selector: sel}.Call(r.client.withContext(ctx))
	if err != nil {
		return 0, err
	}
	return NodeRef(res.NodeID), nil
}

func (r *rodChannel) HandleOf(ctx context.Context, ref NodeRef) (Handle, error) {
	res, err := proto.DOMDescribeNode{NodeID: proto.DOMNodeID(ref)}.Call(r.client.withContext(ctx))
	if err != nil {
		return 0, err
	}
	if res.Node == nil || res.Node.BackendNodeID == 0 {
		return 0, fmt.Errorf("node %d has no backend id", ref)
	}
	return Handle(res.Node.BackendNodeID), nil
}

// Synthesize runs the synthesis ladder in the page against the element
// behind h.
func (r *rodChannel) Synthesize(ctx context.Context, h Handle) (string, error) {
	c := r.client.withContext(ctx)
	node, err := proto.DOMResolveNode{BackendNodeID: proto.DOMBackendNodeID(h)}.Call(c)
	if err != nil {
		return "", fmt.Errorf("resolve node: %w", err)
	}
	if node.Object == nil || node.Object.ObjectID == "" {
		return "", errors.New("resolve node: no remote object")
	}
	defer func() {
		_ = proto.RuntimeReleaseObject{ObjectID: node.Object.ObjectID}.Call(c)
	}()

	res, err := proto.RuntimeCallFunctionOn{
		FunctionDeclaration: cssselect.SynthesisJS,
		ObjectID:            node.Object.ObjectID,
		ReturnByValue:       true,
	}.Call(c)
	if err != nil {
		return "", fmt.Errorf("call synthesis: %w", err)
	}
	if res.ExceptionDetails != nil {
		return "", fmt.Errorf("call synthesis: %s", res.ExceptionDetails.Text)
	}
	if res.Result == nil {
		return "", errors.New("call synthesis: no result")
	}
	return res.Result.Value.Str(), nil
}

func (r *rodChannel) Known(ctx context.Context, h Handle) (bool, error) {
	res, err := proto.DOMDescribeNode{BackendNodeID: proto.DOMBackendNodeID(h)}.Call(r.client.withContext(ctx))
	if err != nil {
		// CDP answers unknown ids with a protocol error rather than an empty node.
		var cdpErr *cdp.Error
		if errors.As(err, &cdpErr) {
			return false, nil
		}
		return false, err
	}
	return res.Node != nil, nil
}

func (r *rodChannel) Close() error {
	err := proto.TargetDetachFromTarget{SessionID: r.client.sessionID}.Call(r.browser)
	if err != nil {
		return fmt.Errorf("detach session %s: %w", r.client.sessionID, err)
	}
	return nil
}
