package commands

import (
	"context"
	"encoding/json"
	"io"
	"os"
	"os/signal"
	"syscall"

	gosocks "github.com/gosocks/gosocks-go"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// listenCmd represents the listen command
var listenCmd = &cobra.Command{
	Use:   "listen [channel...]",
	Short: "Join channels and print their events",
	Long: `listen joins the given channels and prints every event published
on them as one JSON object per line, until interrupted.

If no channels are given, the "channels" list from the config file is used.
Channels whose name starts with "private-" are joined as private channels
and also report members joining and leaving.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		channels := args
		if len(channels) == 0 {
			channels = viper.GetStringSlice("channels")
		}
		if len(channels) == 0 {
			return errors.New("No channels given")
		}

		cfg, err := loadClientConfig()
		if err != nil {
			return err
		}

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		return listen(ctx, cmd.OutOrStdout(), cfg, channels)
	},
}

func init() {
	RootCmd.AddCommand(listenCmd)
}

// printedEvent is one line of listen output.
type printedEvent struct {
	Channel string          `json:"channel"`
	Action  string          `json:"action"`
	Event   string          `json:"event"`
	Sender  string          `json:"sender,omitempty"`
	Data    json.RawMessage `json:"data,omitempty"`
}

func newPrintedEvent(env *gosocks.Envelope) printedEvent {
	ev := printedEvent{
		Channel: env.Channel,
		Action:  string(env.Action),
		Event:   env.Event,
		Sender:  env.SenderID(),
	}
	if env.Data != "" {
		if json.Valid([]byte(env.Data)) {
			ev.Data = json.RawMessage(env.Data)
		} else {
			ev.Data, _ = json.Marshal(env.Data)
		}
	}
	return ev
}

// listen joins channels and prints their events to out until ctx is done or
// the connection ends for good.
func listen(ctx context.Context, out io.Writer, cfg clientConfig, channels []string) error {
	enc := json.NewEncoder(out)
	printEvent := func(env *gosocks.Envelope) {
		if err := enc.Encode(newPrintedEvent(env)); err != nil {
			log.WithError(err).Error("Write event")
		}
	}

	closed := make(chan error, 1)
	session := gosocks.New(cfg.options(
		gosocks.WithOnClose(func(code gosocks.StatusCode, reason string) {
			log.WithFields(logrus.Fields{"code": code, "reason": reason}).Info("Connection closed")
			if cfg.Reconnect && code != gosocks.StatusNormalClosure {
				return
			}
			var err error
			if code != gosocks.StatusNormalClosure {
				err = &gosocks.CloseError{Code: code, Reason: reason}
			}
			select {
			case closed <- err:
			default:
			}
		}),
	)...)

	for _, name := range channels {
		session.Subscribe(name,
			gosocks.OnEvent(printEvent),
			gosocks.OnMemberAdded(printEvent),
			gosocks.OnMemberRemoved(printEvent),
			gosocks.OnJoined(func(env *gosocks.Envelope) {
				log.WithField("channel", env.Channel).Info("Joined")
			}),
		)
	}

	if err := session.Init(ctx, cfg.AuthKey); err != nil {
		return errors.Wrap(err, "Connect to gosocks server")
	}
	defer session.Disconnect(true)

	if err := session.Connect(ctx); err != nil {
		return errors.Wrap(err, "Join channels")
	}
	log.WithField("channels", channels).Info("Listening")

	select {
	case <-ctx.Done():
		return nil
	case err := <-closed:
		return errors.Wrap(err, "Connection closed by server")
	}
}
