package identity

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/nextlevelbuilder/pagelens/pkg/dom"
)

// ErrSynthesisFailed is returned when a handle cannot be turned into a
// selector, typically because the page no longer knows it.
var ErrSynthesisFailed = errors.New("selector synthesis failed")

// Resolver runs identity operations against one page. Every operation
// opens its own channel and closes it before returning.
type Resolver struct {
	opener Opener
	logger *slog.Logger
}

// Option configures a Resolver.
type Option func(*Resolver)

// WithLogger sets the logger used for per-entry diagnostics.
func WithLogger(l *slog.Logger) Option {
	return func(r *Resolver) { r.logger = l }
}

func New(opener Opener, opts ...Option) *Resolver {
	r := &Resolver{
		opener: opener,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

func (r *Resolver) open(ctx context.Context) (Channel, error) {
	ch, err := r.opener.Open(ctx)
	if err != nil {
		return nil, fmt.Errorf("open inspection channel: %w", err)
	}
	return ch, nil
}

func (r *Resolver) release(ch Channel) {
	if err := ch.Close(); err != nil {
		r.logger.Warn("identity: close channel failed", "error", err)
	}
}

// ResolveIdentities resolves each selector to a handle, in ascending
// index order. Selectors that fail to parse, match nothing or cannot be
// described are left out of the result. The only errors are failing to
// open the channel or to fetch the document.
func (r *Resolver) ResolveIdentities(ctx context.Context, selectors dom.SelectorMap) (IdentityMap, error) {
	out := make(IdentityMap, len(selectors))
	if len(selectors) == 0 {
		return out, nil
	}

	ch, err := r.open(ctx)
	if err != nil {
		return nil, err
	}
	defer r.release(ch)

	root, err := ch.Document(ctx)
	if err != nil {
		return nil, fmt.Errorf("get document: %w", err)
	}

	for _, idx := range selectors.Indices() {
		if ctx.Err() != nil {
			r.logger.Debug("identity: resolution interrupted", "index", idx, "error", ctx.Err())
			break
		}
		sel := selectors[idx]
		h, err := resolveOne(ctx, ch, root, sel)
		if err != nil {
			r.logger.Debug("identity: selector not resolved", "index", idx, "selector", sel, "error", err)
			continue
		}
		out[idx] = h
	}
	return out, nil
}

var errNoMatch = errors.New("no matching element")

func resolveOne(ctx context.Context, ch Channel, root NodeRef, sel string) (Handle, error) {
	ref, err := ch.QuerySelector(ctx, root, sel)
	if err != nil {
		return 0, fmt.Errorf("query selector: %w", err)
	}
	if ref == 0 {
		return 0, errNoMatch
	}
	h, err := ch.HandleOf(ctx, ref)
	if err != nil {
		return 0, fmt.Errorf("describe node: %w", err)
	}
	return h, nil
}

// SelectorFromIdentity synthesizes a fresh selector for the element
// behind h. It works on detached elements too; the result then simply
// matches nothing in the live document.
func (r *Resolver) SelectorFromIdentity(ctx context.Context, h Handle) (string, error) {
	ch, err := r.open(ctx)
	if err != nil {
		return "", err
	}
	defer r.release(ch)

	sel, err := ch.Synthesize(ctx, h)
	if err != nil {
		return "", fmt.Errorf("%w: handle %d: %v", ErrSynthesisFailed, h, err)
	}
	if sel == "" {
		return "", fmt.Errorf("%w: handle %d: empty selector", ErrSynthesisFailed, h)
	}
	return sel, nil
}

// IsIdentityValid reports whether the page still knows h. Any failure,
// including failing to open a channel, reads as false.
func (r *Resolver) IsIdentityValid(ctx context.Context, h Handle) bool {
	ch, err := r.open(ctx)
	if err != nil {
		r.logger.Debug("identity: validity check skipped", "handle", h, "error", err)
		return false
	}
	defer r.release(ch)

	ok, err := ch.Known(ctx, h)
	if err != nil {
		r.logger.Debug("identity: validity check failed", "handle", h, "error", err)
		return false
	}
	return ok
}
