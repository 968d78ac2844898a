package gateway

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"

	"github.com/nextlevelbuilder/pagelens/pkg/protocol"
)

// MethodHandler processes a single RPC method request.
type MethodHandler func(ctx context.Context, client *Client, req *protocol.RequestFrame)

// MethodRouter maps method names to handlers.
type MethodRouter struct {
	handlers map[string]MethodHandler
	server   *Server
}

func NewMethodRouter(server *Server) *MethodRouter {
	r := &MethodRouter{
		handlers: make(map[string]MethodHandler),
		server:   server,
	}
	r.registerDefaults()
	registerBrowserMethods(r, server)
	registerConfigMethods(r, server)
	return r
}

// Register adds a method handler.
func (r *MethodRouter) Register(method string, handler MethodHandler) {
	r.handlers[method] = handler
}

// Handle dispatches a request to its handler under a per-request timeout.
func (r *MethodRouter) Handle(ctx context.Context, client *Client, req *protocol.RequestFrame) {
	handler, ok := r.handlers[req.Method]
	if !ok {
		r.server.logger.Warn("unknown method", "method", req.Method, "client", client.id)
		client.sendError(req.ID, protocol.ErrInvalidRequest, "unknown method: "+req.Method)
		return
	}

	if req.Method != protocol.MethodConnect {
		if ok, wait := r.server.limiter.Allow(client.remoteKey); !ok {
			r.server.logger.Warn("security.rate_limited", "key", client.remoteKey, "method", req.Method)
			client.SendResponse(protocol.NewRetryableError(req.ID, protocol.ErrResourceExhausted, "rate limit exceeded", wait))
			return
		}
	}

	ctx, cancel := context.WithTimeout(ctx, requestTimeout)
	defer cancel()

	r.server.logger.Debug("handling method", "method", req.Method, "client", client.id, "req_id", req.ID)
	handler(ctx, client, req)
}

func (r *MethodRouter) registerDefaults() {
	r.Register(protocol.MethodConnect, r.handleConnect)
	r.Register(protocol.MethodHealth, r.handleHealth)
	r.Register(protocol.MethodStatus, r.handleStatus)
}

func (r *MethodRouter) handleConnect(_ context.Context, client *Client, req *protocol.RequestFrame) {
	var params struct {
		Token string `json:"token"`
		Name  string `json:"name"`
	}
	if err := decodeParams(req, &params); err != nil {
		client.sendError(req.ID, protocol.ErrInvalidRequest, err.Error())
		return
	}

	want := r.server.cfg.Gateway.Token
	if want != "" && subtle.ConstantTimeCompare([]byte(params.Token), []byte(want)) != 1 {
		r.server.logger.Warn("security.connect_rejected", "client", client.id, "remote", client.remoteKey)
		client.sendError(req.ID, protocol.ErrUnauthorized, "invalid gateway token")
		return
	}

	client.name = params.Name
	client.authenticated.Store(true)
	client.SendResponse(protocol.NewOKResponse(req.ID, map[string]any{
		"protocol": protocol.ProtocolVersion,
		"clientId": client.id,
		"server": map[string]any{
			"name": "pagelens",
		},
	}))
}

func (r *MethodRouter) handleHealth(_ context.Context, client *Client, req *protocol.RequestFrame) {
	client.SendResponse(protocol.NewOKResponse(req.ID, map[string]any{
		"status": "ok",
	}))
}

func (r *MethodRouter) handleStatus(_ context.Context, client *Client, req *protocol.RequestFrame) {
	client.SendResponse(protocol.NewOKResponse(req.ID, map[string]any{
		"browser": r.server.browser.Status(),
		"clients": r.server.ClientCount(),
	}))
}

// decodeParams unmarshals request params into v. Absent params leave v
// untouched.
func decodeParams(req *protocol.RequestFrame, v any) error {
	if len(req.Params) == 0 {
		return nil
	}
	if err := json.Unmarshal(req.Params, v); err != nil {
		return errors.New("invalid params: " + err.Error())
	}
	return nil
}
