package gateway

import (
	"context"
	"errors"

	"github.com/nextlevelbuilder/pagelens/pkg/browser"
	"github.com/nextlevelbuilder/pagelens/pkg/dom"
	"github.com/nextlevelbuilder/pagelens/pkg/identity"
	"github.com/nextlevelbuilder/pagelens/pkg/protocol"
)

// errorCode maps a browser-layer error to a protocol error code.
func errorCode(err error) string {
	switch {
	case errors.Is(err, browser.ErrNotRunning),
		errors.Is(err, dom.ErrEmptySnapshot),
		errors.Is(err, context.DeadlineExceeded):
		return protocol.ErrUnavailable
	case errors.Is(err, browser.ErrUnknownIndex),
		errors.Is(err, browser.ErrTabNotFound),
		errors.Is(err, browser.ErrNoRecord),
		errors.Is(err, identity.ErrSynthesisFailed):
		return protocol.ErrNotFound
	default:
		return protocol.ErrInternal
	}
}

func (c *Client) sendFailure(reqID, method string, err error) {
	code := errorCode(err)
	if code == protocol.ErrInternal {
		c.server.logger.Error("method failed", "method", method, "client", c.id, "error", err)
	} else {
		c.server.logger.Debug("method failed", "method", method, "client", c.id, "code", code, "error", err)
	}
	c.sendError(reqID, code, err.Error())
}
