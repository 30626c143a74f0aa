package commands

import (
	"context"
	"io"
	"strings"
	"time"

	gosocks "github.com/gosocks/gosocks-go"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
)

var (
	sendEvent   string
	sendTimeout time.Duration
)

// sendCmd represents the send command
var sendCmd = &cobra.Command{
	Use:   "send <channel> [data]",
	Short: "Publish a message on a private channel",
	Long: `send joins a private channel, publishes one message on it and leaves.

The data is sent as given; when omitted it is read from standard input.
Only channels whose name starts with "private-" accept messages.`,
	Args: cobra.RangeArgs(1, 2),
	RunE: func(cmd *cobra.Command, args []string) error {
		channel := args[0]

		var data string
		if len(args) > 1 {
			data = args[1]
		} else {
			buf, err := io.ReadAll(cmd.InOrStdin())
			if err != nil {
				return errors.Wrap(err, "Read message from stdin")
			}
			data = strings.TrimSpace(string(buf))
		}

		cfg, err := loadClientConfig()
		if err != nil {
			return err
		}

		ctx, cancel := context.WithTimeout(context.Background(), sendTimeout)
		defer cancel()

		return send(ctx, cfg, channel, sendEvent, data)
	},
}

func init() {
	RootCmd.AddCommand(sendCmd)
	sendCmd.Flags().StringVarP(&sendEvent, "event", "e", "", "event name (default \"send_message\")")
	sendCmd.Flags().DurationVarP(&sendTimeout, "timeout", "t", 10*time.Second, "give up after this long")
}

// send publishes data on a private channel over a short-lived session.
func send(ctx context.Context, cfg clientConfig, channel, event, data string) error {
	if !strings.HasPrefix(channel, gosocks.PrivatePrefix) {
		return &gosocks.PolicyError{Channel: channel}
	}

	session := gosocks.New(cfg.options()...)
	session.Subscribe(channel)

	if err := session.Init(ctx, cfg.AuthKey); err != nil {
		return errors.Wrap(err, "Connect to gosocks server")
	}
	defer session.Disconnect(true)

	if err := session.Connect(ctx); err != nil {
		return errors.Wrapf(err, "Join %s", channel)
	}

	var opts []gosocks.SendOption
	if event != "" {
		opts = append(opts, gosocks.WithEvent(event))
	}
	if err := session.SendToChannel(ctx, channel, data, opts...); err != nil {
		return errors.Wrapf(err, "Publish on %s", channel)
	}

	log.WithField("channel", channel).Info("Message sent")
	return nil
}
