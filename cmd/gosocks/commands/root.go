package commands

import (
	"fmt"
	"os"
	"path"
	"strings"

	gosocks "github.com/gosocks/gosocks-go"
	"github.com/howeyc/gopass"
	homedir "github.com/mitchellh/go-homedir"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var (
	log       = logrus.New()
	cfgDir    string
	debug     bool
	promptKey bool
)

// RootCmd represents the base command when called without any subcommands
var RootCmd = &cobra.Command{
	Use:   "gosocks",
	Short: "gosocks pub/sub client",
	Long: `gosocks connects to a gosocks server and joins channels.

Use listen to print the events published on channels, and send
to publish a message on a private channel.`,
	SilenceErrors:     true,
	SilenceUsage:      true,
	DisableAutoGenTag: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		log.Out = os.Stderr
		log.Formatter = new(logrus.TextFormatter)
		if debug {
			log.SetLevel(logrus.DebugLevel)
		}
	},
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	if err := RootCmd.Execute(); err != nil {
		log.Error(err)
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig)

	flags := RootCmd.PersistentFlags()
	flags.StringVar(&cfgDir, "config", "", "config directory (default is $HOME/.config/gosocks)")
	flags.BoolVar(&debug, "debug", false, "log protocol traffic")
	flags.BoolVarP(&promptKey, "prompt-key", "p", false, "prompt for the auth key")

	flags.String("auth-key", "", "auth key (or GOSOCKS_AUTH_KEY)")
	viper.BindPFlag("auth_key", flags.Lookup("auth-key"))
	flags.String("host", gosocks.DefaultHost, "server host[:port]")
	viper.BindPFlag("host", flags.Lookup("host"))
	flags.Bool("tls", true, "connect over wss://")
	viper.BindPFlag("tls", flags.Lookup("tls"))
	flags.String("url", "", "full endpoint URL, overrides --host and --tls")
	viper.BindPFlag("url", flags.Lookup("url"))
	flags.Bool("reconnect", false, "redial after the connection drops")
	viper.BindPFlag("reconnect", flags.Lookup("reconnect"))
}

// initConfig reads in config file and ENV variables if set.
func initConfig() {
	if cfgDir == "" {
		// Find home directory.
		home, err := homedir.Dir()
		if err != nil {
			fmt.Fprintln(os.Stderr, err)
			os.Exit(1)
		}

		// Search for config in $HOME/.config/gosocks
		cfgDir = path.Join(home, ".config", "gosocks")
	}

	if err := setupViper(cfgDir); err != nil {
		fmt.Fprintf(os.Stderr, "Error loading config file: %s\n", err)
		os.Exit(1)
	}
}

// setupViper points viper at dir and the GOSOCKS_ environment. A missing
// config file is not an error.
func setupViper(dir string) error {
	viper.AddConfigPath(dir)
	viper.SetConfigName("gosocks")
	viper.SetEnvPrefix("gosocks")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()

	viper.SetDefault("host", gosocks.DefaultHost)
	viper.SetDefault("tls", true)

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return err
		}
	}
	return nil
}

// clientConfig is the resolved connection configuration.
type clientConfig struct {
	AuthKey   string
	Host      string
	TLS       bool
	URL       string
	Reconnect bool
}

func loadClientConfig() (clientConfig, error) {
	cfg := clientConfig{
		AuthKey:   viper.GetString("auth_key"),
		Host:      viper.GetString("host"),
		TLS:       viper.GetBool("tls"),
		URL:       viper.GetString("url"),
		Reconnect: viper.GetBool("reconnect"),
	}

	if promptKey {
		fmt.Fprint(os.Stderr, "Auth key: ")
		key, err := gopass.GetPasswd()
		if err != nil {
			return cfg, errors.Wrap(err, "Read auth key")
		}
		cfg.AuthKey = string(key)
	}

	if cfg.AuthKey == "" {
		return cfg, errors.New("An auth key is required (--auth-key, GOSOCKS_AUTH_KEY or --prompt-key)")
	}
	return cfg, nil
}

// options turns the configuration into session options. Later options in
// extra override earlier ones.
func (c clientConfig) options(extra ...gosocks.Option) []gosocks.Option {
	opts := []gosocks.Option{
		gosocks.WithHost(c.Host),
		gosocks.WithTLS(c.TLS),
		gosocks.WithLogger(newSlogLogger(log)),
		gosocks.WithOnError(func(err error) {
			log.WithError(err).Warn("Connection error")
		}),
	}
	if c.URL != "" {
		opts = append(opts, gosocks.WithURL(c.URL))
	}
	if c.Reconnect {
		opts = append(opts, gosocks.WithReconnect(gosocks.DefaultBackoff()))
	}
	return append(opts, extra...)
}
