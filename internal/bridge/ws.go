package bridge

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/xiaot623/gogo/agentgate/internal/config"
	"github.com/xiaot623/gogo/agentgate/internal/domain"
)

// WSServer handles WebSocket connections from chat clients.
type WSServer struct {
	cfg      *config.BridgeConfig
	hub      *Hub
	relay    ActionRelay
	upgrader websocket.Upgrader
	logger   *zap.Logger
}

// NewWSServer creates a new WebSocket server.
func NewWSServer(cfg *config.BridgeConfig, h *Hub, relay ActionRelay, logger *zap.Logger) *WSServer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &WSServer{
		cfg:   cfg,
		hub:   h,
		relay: relay,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
		},
		logger: logger.With(zap.String("component", "ws")),
	}
}

// HandleWebSocket handles WebSocket upgrade and connection lifecycle.
// GET /ws
func (s *WSServer) HandleWebSocket(c echo.Context) error {
	ws, err := s.upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		s.logger.Warn("failed to upgrade websocket", zap.Error(err))
		return err
	}

	conn := s.hub.NewConnection(ws)
	s.hub.Register(conn)

	ws.SetReadLimit(s.cfg.MaxMessageSize)

	go s.writePump(conn)
	go s.readPump(conn)

	return nil
}

// readPump reads messages from the WebSocket connection.
func (s *WSServer) readPump(conn *Connection) {
	defer func() {
		s.hub.Unregister(conn)
		conn.Close()
	}()

	conn.SetReadDeadline(time.Now().Add(s.cfg.ReadTimeout))
	conn.Conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(s.cfg.ReadTimeout))
		return nil
	})

	for {
		_, message, err := conn.Conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				s.logger.Warn("websocket read error", zap.String("conn_id", conn.ID), zap.Error(err))
			}
			break
		}

		s.handleMessage(conn, message)
	}
}

// writePump writes messages to the WebSocket connection.
func (s *WSServer) writePump(conn *Connection) {
	ticker := time.NewTicker(s.cfg.PingInterval)
	defer func() {
		ticker.Stop()
		conn.Close()
	}()

	for {
		select {
		case message, ok := <-conn.Send:
			conn.SetWriteDeadline(time.Now().Add(s.cfg.WriteTimeout))
			if !ok {
				// Hub closed the channel
				conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			if err := conn.WriteMessage(websocket.TextMessage, message); err != nil {
				s.logger.Debug("failed to write message", zap.String("conn_id", conn.ID), zap.Error(err))
				return
			}

		case <-ticker.C:
			conn.SetWriteDeadline(time.Now().Add(s.cfg.WriteTimeout))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// handleMessage dispatches incoming messages to appropriate handlers.
func (s *WSServer) handleMessage(conn *Connection, data []byte) {
	var base BaseMessage
	if err := json.Unmarshal(data, &base); err != nil {
		s.sendError(conn, "", ErrorCodeInvalidMessage, "invalid JSON message")
		return
	}

	switch base.Type {
	case TypeSubscribe:
		s.handleSubscribe(conn, data)
	case TypeAction:
		s.handleAction(conn, data)
	default:
		s.sendError(conn, base.RequestID, ErrorCodeInvalidMessage, "unknown message type: "+base.Type)
	}
}

func (s *WSServer) handleSubscribe(conn *Connection, data []byte) {
	var msg SubscribeMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		s.sendError(conn, "", ErrorCodeInvalidMessage, "invalid subscribe message")
		return
	}

	if s.cfg.APIKey != "" && msg.APIKey != s.cfg.APIKey {
		s.sendError(conn, msg.RequestID, ErrorCodeUnauthorized, "invalid api_key")
		return
	}

	channels := make([]string, 0, len(msg.Channels))
	for _, ch := range msg.Channels {
		if ch = strings.TrimSpace(ch); ch != "" {
			channels = append(channels, ch)
		}
	}
	if len(channels) == 0 {
		channels = append(channels, s.cfg.DefaultChannel)
	}
	s.hub.Subscribe(conn, channels...)

	s.hub.SendJSONToConnection(conn, SubscribedMessage{
		BaseMessage: BaseMessage{Type: TypeSubscribed, Ts: time.Now().UnixMilli(), RequestID: msg.RequestID},
		Channels:    channels,
	})
	s.logger.Info("connection subscribed", zap.String("conn_id", conn.ID), zap.Strings("channels", channels))
}

// handleAction relays a button press to agentgate and answers the pressing
// connection only.
func (s *WSServer) handleAction(conn *Connection, data []byte) {
	var msg ActionMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		s.sendError(conn, "", ErrorCodeInvalidMessage, "invalid action message")
		return
	}

	if !s.hub.Subscribed(conn) {
		s.sendError(conn, msg.RequestID, ErrorCodeSubscribeFirst, "must subscribe first")
		return
	}
	if msg.MessageRef == "" || msg.AgentID == "" {
		s.sendError(conn, msg.RequestID, ErrorCodeInvalidMessage, "message_ref and agent_id are required")
		return
	}

	req := domain.ChannelActionRequest{MessageRef: msg.MessageRef, AgentID: msg.AgentID, Action: msg.Action}

	// Don't block the read loop on agentgate.
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		res, err := s.relay.HandleChannelAction(ctx, req)
		if err != nil {
			code := ErrorCodeUpstreamFailure
			if isGuardFailure(err) {
				code = ErrorCodeActionRejected
			}
			s.logger.Info("channel action failed",
				zap.String("message_ref", msg.MessageRef), zap.String("action", string(msg.Action)), zap.Error(err))
			s.sendError(conn, msg.RequestID, code, err.Error())
			return
		}

		s.hub.SendJSONToConnection(conn, ActionResultMessage{
			BaseMessage: BaseMessage{Type: TypeActionResult, Ts: time.Now().UnixMilli(), RequestID: msg.RequestID},
			MessageRef:  msg.MessageRef,
			Result:      res,
		})
	}()
}

// isGuardFailure reports whether err is a typed rejection from agentgate
// rather than a transport or internal failure.
func isGuardFailure(err error) bool {
	if domain.KindOf(err) != domain.KindInternal {
		return true
	}
	return domain.KindFromMessage(err.Error()) != domain.KindInternal
}

// sendError sends an error message to a connection.
func (s *WSServer) sendError(conn *Connection, requestID, code, message string) {
	s.hub.SendJSONToConnection(conn, ErrorMessage{
		BaseMessage: BaseMessage{Type: TypeError, Ts: time.Now().UnixMilli(), RequestID: requestID},
		Code:        code,
		Message:     message,
	})
}
