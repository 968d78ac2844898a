package gateway

import (
	"context"
	"encoding/json"
	"reflect"

	"github.com/titanous/json5"

	"github.com/nextlevelbuilder/pagelens/internal/config"
	"github.com/nextlevelbuilder/pagelens/pkg/protocol"
)

// ConfigMethods handles config.get and config.apply.
type ConfigMethods struct {
	server *Server
}

func registerConfigMethods(r *MethodRouter, s *Server) {
	m := &ConfigMethods{server: s}
	r.Register(protocol.MethodConfigGet, m.handleGet)
	r.Register(protocol.MethodConfigApply, m.handleApply)
}

func (m *ConfigMethods) handleGet(_ context.Context, client *Client, req *protocol.RequestFrame) {
	cfg := m.server.cfg
	client.SendResponse(protocol.NewOKResponse(req.ID, map[string]any{
		"config": cfg.MaskedCopy(),
		"hash":   cfg.Hash(),
		"path":   m.server.cfgPath,
	}))
}

// handleApply merges a JSON5 patch into the live config. Extraction
// settings take effect immediately; the other sections are persisted and
// apply on restart.
func (m *ConfigMethods) handleApply(_ context.Context, client *Client, req *protocol.RequestFrame) {
	var params struct {
		Raw      string `json:"raw"`
		BaseHash string `json:"baseHash"`
	}
	if err := decodeParams(req, &params); err != nil {
		client.sendError(req.ID, protocol.ErrInvalidRequest, err.Error())
		return
	}
	if params.Raw == "" {
		client.sendError(req.ID, protocol.ErrInvalidRequest, "raw patch is required")
		return
	}

	current := m.server.cfg
	if params.BaseHash != "" && params.BaseHash != current.Hash() {
		client.sendError(req.ID, protocol.ErrInvalidRequest, "config has changed (hash mismatch)")
		return
	}

	// Deep copy through JSON so the patch cannot alias live maps.
	snapshot := config.Default()
	snapshot.ReplaceFrom(current)
	currentJSON, err := json.Marshal(snapshot)
	if err != nil {
		client.sendError(req.ID, protocol.ErrInternal, "failed to serialize current config")
		return
	}
	merged := config.Default()
	if err := json.Unmarshal(currentJSON, merged); err != nil {
		client.sendError(req.ID, protocol.ErrInternal, "failed to clone config")
		return
	}
	if err := json5.Unmarshal([]byte(params.Raw), merged); err != nil {
		client.sendError(req.ID, protocol.ErrInvalidRequest, "invalid patch: "+err.Error())
		return
	}
	merged.Store.KeyPrefix = config.NormalizeKeyPrefix(merged.Store.KeyPrefix)
	if err := merged.Validate(); err != nil {
		client.sendError(req.ID, protocol.ErrInvalidRequest, "invalid config: "+err.Error())
		return
	}

	if m.server.cfgPath != "" {
		if err := config.Save(m.server.cfgPath, merged); err != nil {
			client.sendError(req.ID, protocol.ErrInternal, "failed to save config: "+err.Error())
			return
		}
	}

	restart := merged.Browser != snapshot.Browser ||
		merged.Gateway != snapshot.Gateway ||
		merged.Store != snapshot.Store ||
		!reflect.DeepEqual(merged.Telemetry, snapshot.Telemetry)

	m.server.ApplyConfig(merged)
	m.server.logger.Info("config applied", "client", client.id, "restart", restart)

	client.SendResponse(protocol.NewOKResponse(req.ID, map[string]any{
		"ok":      true,
		"path":    m.server.cfgPath,
		"config":  current.MaskedCopy(),
		"hash":    current.Hash(),
		"restart": restart,
	}))
}
