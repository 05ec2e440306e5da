package cli

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os/signal"
	"strings"
	"sync"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/xiaot623/gogo/agentgate/internal/bridge"
	"github.com/xiaot623/gogo/agentgate/internal/domain"
)

type watchOptions struct {
	addr     string
	apiKey   string
	channels []string
	agentID  string
}

func newWatchCmd() *cobra.Command {
	var opts watchOptions
	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Follow bridge channels and answer handoffs and approvals from the terminal",
		Long: "watch subscribes to bridge channels and prints every handoff and approval\n" +
			"posted there. Answer with one command per line:\n\n" +
			"  accept|decline|approve|reject <message_ref>\n" +
			"  /quit",
		RunE: func(cmd *cobra.Command, args []string) error {
			if opts.agentID == "" {
				return &domain.ValidationError{Field: "--as", Message: "is required"}
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return runWatch(ctx, opts, cmd.InOrStdin(), cmd.OutOrStdout())
		},
	}

	cmd.Flags().StringVar(&opts.addr, "addr", "ws://localhost:8090/ws", "bridge WebSocket address")
	cmd.Flags().StringVar(&opts.apiKey, "api-key", "", "bridge API key")
	cmd.Flags().StringSliceVar(&opts.channels, "channel", nil, "channel to follow (repeatable; default: the bridge's default channel)")
	cmd.Flags().StringVar(&opts.agentID, "as", "", "identity recorded on your decisions")
	return cmd
}

func runWatch(ctx context.Context, opts watchOptions, in io.Reader, out io.Writer) error {
	client, err := bridge.Dial(opts.addr)
	if err != nil {
		return err
	}
	defer client.Close()

	channels, err := client.Subscribe(opts.apiKey, opts.channels...)
	if err != nil {
		return err
	}

	var mu sync.Mutex
	printf := func(format string, a ...interface{}) {
		mu.Lock()
		defer mu.Unlock()
		fmt.Fprintf(out, format, a...)
	}
	printf("following %s as %s\n", strings.Join(channels, ", "), opts.agentID)

	readErr := make(chan error, 1)
	go func() {
		for {
			ev, err := client.ReadEvent()
			if err != nil {
				readErr <- err
				return
			}
			printf("%s", formatEvent(ev))
		}
	}()

	lines := make(chan string)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(in)
		for scanner.Scan() {
			lines <- scanner.Text()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case err := <-readErr:
			if errors.Is(err, bridge.ErrClosed) {
				return nil
			}
			return err
		case line, ok := <-lines:
			if !ok {
				return nil
			}
			line = strings.TrimSpace(line)
			if line == "" {
				continue
			}
			if line == "/quit" {
				return nil
			}
			action, ref, err := parseWatchCommand(line)
			if err != nil {
				printf("%v\n", err)
				continue
			}
			if _, err := client.Act(ref, opts.agentID, action); err != nil {
				return err
			}
		}
	}
}

// parseWatchCommand parses "<action> <message_ref>".
func parseWatchCommand(line string) (domain.ChannelAction, string, error) {
	fields := strings.Fields(line)
	if len(fields) != 2 {
		return "", "", fmt.Errorf("usage: accept|decline|approve|reject <message_ref>")
	}
	action := domain.ChannelAction(strings.ToLower(fields[0]))
	switch action {
	case domain.ChannelActionAccept, domain.ChannelActionDecline, domain.ChannelActionApprove, domain.ChannelActionReject:
		return action, fields[1], nil
	}
	return "", "", fmt.Errorf("unknown action %q", fields[0])
}

func formatEvent(ev *bridge.Event) string {
	switch {
	case ev.Message != nil:
		m := ev.Message
		actions := make([]string, 0, len(m.Actions))
		for _, a := range m.Actions {
			actions = append(actions, string(a))
		}
		return fmt.Sprintf("\n[%s] %s in #%s\n%s\n> %s %s\n",
			m.Message.MessageType, m.MessageRef, m.Channel, m.Message.Content,
			strings.Join(actions, "|"), m.MessageRef)
	case ev.Result != nil && ev.Result.Result != nil:
		r := ev.Result.Result
		switch {
		case r.Approval != nil:
			return fmt.Sprintf("approval %s %s\n", r.Approval.ID, r.Approval.Status)
		case r.Handoff != nil:
			return fmt.Sprintf("handoff %s %s\n", r.Handoff.ID, r.Handoff.Status)
		}
		return fmt.Sprintf("%s done\n", ev.Result.MessageRef)
	case ev.Error != nil:
		return fmt.Sprintf("error %s: %s\n", ev.Error.Code, ev.Error.Message)
	}
	return fmt.Sprintf("[%s] %s\n", ev.Type, ev.Raw)
}
