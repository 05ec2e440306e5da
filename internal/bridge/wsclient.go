package bridge

import (
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/xiaot623/gogo/agentgate/internal/domain"
)

// Client is a WebSocket client of the bridge, used by `agentgate watch`.
type Client struct {
	conn *websocket.Conn
	mu   sync.Mutex
	seq  int
}

// Dial connects to the bridge WebSocket endpoint at addr.
func Dial(addr string) (*Client, error) {
	conn, _, err := websocket.DefaultDialer.Dial(addr, nil)
	if err != nil {
		return nil, fmt.Errorf("dial: %w", err)
	}
	return &Client{conn: conn}, nil
}

// Close closes the connection.
func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	_ = c.conn.WriteMessage(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	return c.conn.Close()
}

// Subscribe subscribes to channels and waits for the acknowledgement. It
// returns the channels the bridge actually bound.
func (c *Client) Subscribe(apiKey string, channels ...string) ([]string, error) {
	msg := SubscribeMessage{
		BaseMessage: BaseMessage{Type: TypeSubscribe, Ts: time.Now().UnixMilli()},
		Channels:    channels,
		APIKey:      apiKey,
	}
	if err := c.write(msg); err != nil {
		return nil, fmt.Errorf("write subscribe: %w", err)
	}

	_, data, err := c.conn.ReadMessage()
	if err != nil {
		return nil, fmt.Errorf("read subscribed: %w", err)
	}

	var base BaseMessage
	if err := json.Unmarshal(data, &base); err != nil {
		return nil, fmt.Errorf("unmarshal subscribed: %w", err)
	}
	switch base.Type {
	case TypeSubscribed:
		var ack SubscribedMessage
		if err := json.Unmarshal(data, &ack); err != nil {
			return nil, fmt.Errorf("unmarshal subscribed: %w", err)
		}
		return ack.Channels, nil
	case TypeError:
		var errMsg ErrorMessage
		_ = json.Unmarshal(data, &errMsg)
		return nil, fmt.Errorf("subscribe failed: %s - %s", errMsg.Code, errMsg.Message)
	default:
		return nil, fmt.Errorf("expected subscribed, got: %s", base.Type)
	}
}

// Act presses a button on a posted message. The result arrives through
// ReadEvent with the returned request ID.
func (c *Client) Act(messageRef, agentID string, action domain.ChannelAction) (string, error) {
	c.mu.Lock()
	c.seq++
	requestID := fmt.Sprintf("req_%d", c.seq)
	c.mu.Unlock()

	return requestID, c.write(ActionMessage{
		BaseMessage: BaseMessage{Type: TypeAction, Ts: time.Now().UnixMilli(), RequestID: requestID},
		MessageRef:  messageRef,
		AgentID:     agentID,
		Action:      action,
	})
}

// Event is one server message. Exactly one of the typed fields is set,
// matching Type.
type Event struct {
	Type    string
	Message *AgentMessageEvent
	Result  *ActionResultMessage
	Error   *ErrorMessage
	Raw     json.RawMessage
}

// ErrClosed is returned by ReadEvent after a normal close.
var ErrClosed = errors.New("connection closed")

// ReadEvent blocks for the next server message.
func (c *Client) ReadEvent() (*Event, error) {
	_, data, err := c.conn.ReadMessage()
	if err != nil {
		if websocket.IsCloseError(err, websocket.CloseNormalClosure) {
			return nil, ErrClosed
		}
		return nil, err
	}

	var base BaseMessage
	if err := json.Unmarshal(data, &base); err != nil {
		return nil, fmt.Errorf("unmarshal event: %w", err)
	}

	ev := &Event{Type: base.Type, Raw: data}
	switch base.Type {
	case TypeAgentMessage:
		ev.Message = &AgentMessageEvent{}
		err = json.Unmarshal(data, ev.Message)
	case TypeActionResult:
		ev.Result = &ActionResultMessage{}
		err = json.Unmarshal(data, ev.Result)
	case TypeError:
		ev.Error = &ErrorMessage{}
		err = json.Unmarshal(data, ev.Error)
	}
	if err != nil {
		return nil, fmt.Errorf("unmarshal %s: %w", base.Type, err)
	}
	return ev, nil
}

// SetReadDeadline bounds the next ReadEvent.
func (c *Client) SetReadDeadline(t time.Time) error {
	return c.conn.SetReadDeadline(t)
}

func (c *Client) write(v interface{}) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn.WriteJSON(v)
}
