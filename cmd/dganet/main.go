// Command dganet trains, evaluates and exports a character level
// classifier which flags algorithmically generated domain names.
package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/naimnv/dganet/logger"
	"github.com/naimnv/dganet/nnet"
	"github.com/naimnv/dganet/num"
)

var rootCmd = &cobra.Command{
	Use:           "dganet",
	Short:         "Detect algorithmically generated domain names",
	SilenceUsage:  true,
	SilenceErrors: true,
	Long: `dganet classifies domain names as benign or generated by a domain
generation algorithm, using a recurrent network over the raw characters.

Models are trained from a labelled CSV domain list and saved as binary
checkpoints, which the eval, predict and export commands consume.`,
}

// persistent flags
var (
	confPath  string
	overrides []string
	logLevel  string
	logFormat string
)

func init() {
	pf := rootCmd.PersistentFlags()
	pf.StringVarP(&confPath, "config", "c", "", "JSON or YAML settings file")
	pf.StringArrayVar(&overrides, "set", nil, "settings override as name=value, repeatable")
	pf.StringVar(&logLevel, "log-level", "info", "log level: debug, info, warn or error")
	pf.StringVar(&logFormat, "log-format", "console", "log format: console or json")
}

func newLogger() (logger.Logger, error) {
	return logger.New(logger.Options{Level: logLevel, Format: logFormat})
}

// loadConfig resolves the settings for this invocation: defaults, then
// the --config file, then any --set overrides in order.
func loadConfig() (nnet.Config, error) {
	conf := nnet.DefaultConfig()
	var err error
	if confPath != "" {
		if conf, err = nnet.LoadConfig(confPath); err != nil {
			return conf, err
		}
	}
	for _, kv := range overrides {
		key, val, ok := strings.Cut(kv, "=")
		if !ok {
			return conf, fmt.Errorf("malformed override %q, want name=value", kv)
		}
		if conf, err = conf.SetString(key, val); err != nil {
			return conf, err
		}
	}
	return conf, nil
}

func selectDevice(conf nnet.Config, log logger.Logger) (num.Device, error) {
	dev, err := num.Select(conf.Device)
	if err != nil {
		return dev, err
	}
	log.Debug().Str("device", dev.String()).Msg("selected compute device")
	return dev, nil
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "dganet:", err)
		os.Exit(1)
	}
}
