package cmd

import (
	"encoding/json"
	"fmt"
	"net/url"
	"strconv"
	"time"

	"github.com/gorilla/websocket"
	"github.com/spf13/cobra"

	"github.com/nextlevelbuilder/pagelens/internal/config"
	"github.com/nextlevelbuilder/pagelens/pkg/protocol"
)

func statusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Query a running gateway",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			resp, err := gatewayRPC(cfg, protocol.MethodStatus, nil)
			if err != nil {
				return err
			}
			if !resp.OK {
				return fmt.Errorf("%s: %s", resp.Error.Code, resp.Error.Message)
			}
			data, _ := json.MarshalIndent(resp.Payload, "", "  ")
			fmt.Fprintln(cmd.OutOrStdout(), string(data))
			return nil
		},
	}
}

func gatewayURL(cfg *config.Config) string {
	host := cfg.Gateway.Host
	if host == "0.0.0.0" || host == "" {
		host = "127.0.0.1"
	}
	u := url.URL{Scheme: "ws", Host: host + ":" + strconv.Itoa(cfg.Gateway.Port), Path: "/ws"}
	return u.String()
}

// gatewayRPC connects, performs the handshake and makes one call.
func gatewayRPC(cfg *config.Config, method string, params json.RawMessage) (*protocol.ResponseFrame, error) {
	u := gatewayURL(cfg)
	dialer := websocket.Dialer{HandshakeTimeout: 5 * time.Second}
	conn, _, err := dialer.Dial(u, nil)
	if err != nil {
		return nil, fmt.Errorf("connect to gateway at %s: %w", u, err)
	}
	defer conn.Close()

	connectParams, _ := json.Marshal(map[string]any{
		"token": cfg.Gateway.Token,
		"name":  "pagelens-cli",
	})
	if err := conn.WriteJSON(protocol.RequestFrame{
		Type:   protocol.FrameTypeRequest,
		ID:     "cli-connect",
		Method: protocol.MethodConnect,
		Params: connectParams,
	}); err != nil {
		return nil, fmt.Errorf("send connect: %w", err)
	}

	conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	var connectResp protocol.ResponseFrame
	if err := conn.ReadJSON(&connectResp); err != nil {
		return nil, fmt.Errorf("read connect response: %w", err)
	}
	if !connectResp.OK {
		msg := "unknown error"
		if connectResp.Error != nil {
			msg = connectResp.Error.Message
		}
		return nil, fmt.Errorf("connect failed: %s", msg)
	}

	if err := conn.WriteJSON(protocol.RequestFrame{
		Type:   protocol.FrameTypeRequest,
		ID:     "cli-rpc",
		Method: method,
		Params: params,
	}); err != nil {
		return nil, fmt.Errorf("send RPC: %w", err)
	}

	conn.SetReadDeadline(time.Now().Add(10 * time.Second))
	for {
		_, msg, err := conn.ReadMessage()
		if err != nil {
			return nil, fmt.Errorf("read response: %w", err)
		}
		if frameType, _ := protocol.ParseFrameType(msg); frameType == protocol.FrameTypeEvent {
			continue
		}
		var resp protocol.ResponseFrame
		if err := json.Unmarshal(msg, &resp); err != nil {
			return nil, fmt.Errorf("parse response: %w", err)
		}
		if resp.ID == "cli-rpc" {
			return &resp, nil
		}
	}
}
