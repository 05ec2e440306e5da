package notify

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/slack-go/slack"
	"go.uber.org/zap"

	"github.com/xiaot623/gogo/agentgate/internal/domain"
)

// SlackOptions configures SlackNotifier.
type SlackOptions struct {
	BotToken       string
	SigningSecret  string
	APIBase        string
	DefaultChannel string
	HTTPClient     *http.Client
}

// SlackNotifier posts Block Kit messages with accept/decline or approve/reject
// buttons. Message references have the form "<channel>:<ts>".
type SlackNotifier struct {
	api            *slack.Client
	signingSecret  string
	defaultChannel string
	logger         *zap.Logger
}

func NewSlackNotifier(opts SlackOptions, logger *zap.Logger) (*SlackNotifier, error) {
	token := strings.TrimSpace(opts.BotToken)
	if token == "" {
		return nil, errors.New("missing slack bot token")
	}
	base := strings.TrimSpace(opts.APIBase)
	if base == "" {
		base = "https://slack.com/api"
	}
	base = strings.TrimRight(base, "/") + "/"
	client := opts.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SlackNotifier{
		api:            slack.New(token, slack.OptionHTTPClient(client), slack.OptionAPIURL(base)),
		signingSecret:  strings.TrimSpace(opts.SigningSecret),
		defaultChannel: strings.TrimSpace(opts.DefaultChannel),
		logger:         logger.With(zap.String("component", "slack_notifier")),
	}, nil
}

// PostAgentMessage implements Notifier.
func (n *SlackNotifier) PostAgentMessage(ctx context.Context, msg domain.AgentMessage) (string, error) {
	channelID := strings.TrimSpace(msg.ChannelRef)
	if channelID == "" {
		channelID = n.defaultChannel
	}
	if channelID == "" {
		return "", errors.New("no slack channel for message")
	}

	blocks := []slack.Block{
		slack.NewSectionBlock(slack.NewTextBlockObject(slack.MarkdownType, msg.Content, false, false), nil, nil),
	}
	if actions := n.actionBlock(msg); actions != nil {
		blocks = append(blocks, actions)
	}

	ch, ts, err := n.api.PostMessageContext(ctx, channelID,
		slack.MsgOptionText(msg.Content, false),
		slack.MsgOptionBlocks(blocks...),
	)
	if err != nil {
		n.logger.Warn("slack post failed", zap.String("channel", channelID), zap.Error(err))
		return "", fmt.Errorf("slack post message: %w", err)
	}
	return ch + ":" + ts, nil
}

func (n *SlackNotifier) actionBlock(msg domain.AgentMessage) *slack.ActionBlock {
	var first, second domain.ChannelAction
	switch msg.MessageType {
	case domain.MessageTypeHandoff:
		first, second = domain.ChannelActionAccept, domain.ChannelActionDecline
	case domain.MessageTypeApprovalRequest:
		first, second = domain.ChannelActionApprove, domain.ChannelActionReject
	default:
		return nil
	}
	blockID := string(msg.MessageType)
	if id, ok := msg.Context["handoff_id"].(string); ok && id != "" {
		blockID = id
	} else if id, ok := msg.Context["approval_id"].(string); ok && id != "" {
		blockID = id
	}
	return slack.NewActionBlock(blockID,
		button(first, msg.ToAgentID).WithStyle(slack.StylePrimary),
		button(second, msg.ToAgentID).WithStyle(slack.StyleDanger),
	)
}

func button(action domain.ChannelAction, agentID string) *slack.ButtonBlockElement {
	label := strings.ToUpper(string(action[:1])) + string(action[1:])
	return slack.NewButtonBlockElement(string(action), string(action)+"|"+agentID,
		slack.NewTextBlockObject(slack.PlainTextType, label, false, false))
}

// ParseInteraction verifies and decodes a Slack block_actions callback into a
// channel action. For approve/reject presses the acting Slack user is the responder;
// for accept/decline it is the agent encoded in the button value.
func (n *SlackNotifier) ParseInteraction(r *http.Request) (domain.ChannelActionRequest, error) {
	return ParseSlackInteraction(r, n.signingSecret)
}

// ParseSlackInteraction is ParseInteraction with an explicit signing secret.
// An empty secret skips signature verification.
func ParseSlackInteraction(r *http.Request, signingSecret string) (domain.ChannelActionRequest, error) {
	var out domain.ChannelActionRequest
	body, err := io.ReadAll(r.Body)
	if err != nil {
		return out, fmt.Errorf("read body: %w", err)
	}
	if signingSecret != "" {
		sv, err := slack.NewSecretsVerifier(r.Header, signingSecret)
		if err != nil {
			return out, &domain.ValidationError{Field: "signature", Message: err.Error()}
		}
		if _, err := sv.Write(body); err != nil {
			return out, err
		}
		if err := sv.Ensure(); err != nil {
			return out, &domain.ValidationError{Field: "signature", Message: err.Error()}
		}
	}
	r.Body = io.NopCloser(bytes.NewReader(body))

	cb, err := slack.InteractionCallbackParse(r)
	if err != nil {
		return out, &domain.ValidationError{Field: "payload", Message: "invalid interaction payload"}
	}
	if len(cb.ActionCallback.BlockActions) == 0 {
		return out, &domain.ValidationError{Field: "actions", Message: "no block action in payload"}
	}
	act := cb.ActionCallback.BlockActions[0]

	action, agentID, _ := strings.Cut(strings.TrimSpace(act.Value), "|")
	if action == "" {
		action = strings.TrimSpace(act.ActionID)
	}
	switch domain.ChannelAction(action) {
	case domain.ChannelActionApprove, domain.ChannelActionReject:
		agentID = cb.User.ID
	case domain.ChannelActionAccept, domain.ChannelActionDecline:
	default:
		return out, &domain.ValidationError{Field: "action", Message: fmt.Sprintf("unsupported action %q", action)}
	}

	channelID := strings.TrimSpace(cb.Channel.ID)
	if channelID == "" {
		channelID = strings.TrimSpace(cb.Container.ChannelID)
	}
	ts := strings.TrimSpace(cb.Container.MessageTs)
	if ts == "" {
		ts = strings.TrimSpace(cb.Message.Timestamp)
	}
	if channelID == "" || ts == "" {
		return out, &domain.ValidationError{Field: "message", Message: "interaction does not reference a message"}
	}

	out.MessageRef = channelID + ":" + ts
	out.AgentID = agentID
	out.Action = domain.ChannelAction(action)
	return out, nil
}
