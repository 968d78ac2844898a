package identity

import "context"

// NodeRef is a channel-scoped node reference. Zero means no node.
type NodeRef int64

// Channel is a short-lived inspection connection bound to one page.
// Node references are valid only on the channel that produced them;
// handles are valid for the whole page session.
type Channel interface {
	// Document returns the document root.
	Document(ctx context.Context) (NodeRef, error)
	// QuerySelector returns the first match of sel under root, or 0.
	QuerySelector(ctx context.Context, root NodeRef, sel string) (NodeRef, error)
	// HandleOf returns the session-wide handle of a node.
	HandleOf(ctx context.Context, ref NodeRef) (Handle, error)
	// Synthesize runs selector synthesis in the page against the element
	// behind h.
	Synthesize(ctx context.Context, h Handle) (string, error)
	// Known reports whether the page still knows h, attached or not.
	Known(ctx context.Context, h Handle) (bool, error)
	Close() error
}

// Opener opens inspection channels to one page.
type Opener interface {
	Open(ctx context.Context) (Channel, error)
}

// OpenerFunc adapts a function to Opener.
type OpenerFunc func(ctx context.Context) (Channel, error)

func (f OpenerFunc) Open(ctx context.Context) (Channel, error) { return f(ctx) }
