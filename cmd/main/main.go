package main

import (
	"fmt"
	"os"
	"strings"

	"ig-streamer/src/config"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var rootCmd = &cobra.Command{
	Use:   "ig-streamer",
	Short: "Streams IG prices, candles, markets, balances and deals",
	Long: `ig-streamer keeps a Lightstreamer session to the IG push server, multiplexes
the configured subscriptions over it and forwards the typed events to NATS and
a sqlite journal. Credentials can be supplied through IGSTREAM_* variables.`,
	SilenceUsage: true,
}

func init() {
	flags := rootCmd.PersistentFlags()
	flags.StringP("config", "c", "config/default.yaml", "path to config file (YAML or TOML)")
	flags.String("log-level", "", "override the configured log level")
	flags.String("endpoint", "", "override the streaming endpoint")
	flags.String("account-id", "", "override the streaming account id")
	flags.String("cst", "", "CST token of the REST session")
	flags.String("security-token", "", "X-SECURITY-TOKEN of the REST session")

	for _, name := range []string{"config", "log-level", "endpoint", "account-id", "cst", "security-token"} {
		viper.BindPFlag(name, flags.Lookup(name))
	}
	viper.SetEnvPrefix("IGSTREAM")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()

	rootCmd.AddCommand(runCmd, watchCmd)
}

// loadConfig reads the config file, then applies flag and environment
// overrides before validating.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(viper.GetString("config"))
	if err != nil {
		return nil, err
	}

	if v := viper.GetString("log-level"); v != "" {
		cfg.LogLevel = v
	}
	if v := viper.GetString("endpoint"); v != "" {
		cfg.Streaming.Endpoint = v
	}
	if v := viper.GetString("account-id"); v != "" {
		cfg.Streaming.AccountID = v
	}
	if v := viper.GetString("cst"); v != "" {
		cfg.Streaming.CST = v
	}
	if v := viper.GetString("security-token"); v != "" {
		cfg.Streaming.SecurityToken = v
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}
	return cfg, nil
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
