// Command visitsync - log home visits offline and synchronize them with the visit server
package main

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/alwitt/visitsync"
	"github.com/alwitt/visitsync/config"
	"github.com/apex/log"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var (
	configFile string
	appViper   = viper.New()
	appConfig  config.Config
	logCloser  io.Closer
)

var rootCmd = &cobra.Command{
	Use:   "visitsync",
	Short: "Offline-first home visit logging",
	Long: `Record home visits into an encrypted local store, and synchronize them with the
visit server whenever it is reachable.

Configuration is read from defaults, then the optional config file, then VISITSYNC_*
environment variables (e.g. VISITSYNC_REMOTE_BASEURL), then command line flags.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(appViper, configFile)
		if err != nil {
			return err
		}
		appConfig = cfg

		closer, err := setupLogging(cfg.Log)
		if err != nil {
			return err
		}
		logCloser = closer
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if logCloser != nil {
			_ = logCloser.Close()
		}
	},
}

// openEngine open the engine described by the loaded configuration
func openEngine(ctx context.Context) (visitsync.Engine, error) {
	engine, err := visitsync.NewEngineFromConfig(ctx, appConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to open visit store [%w]", err)
	}
	return engine, nil
}

// closeEngine release the engine, logging any failure
func closeEngine(ctx context.Context, engine visitsync.Engine) {
	if err := engine.Close(ctx); err != nil {
		log.WithError(err).Error("Failed to close visit store")
	}
}

func init() {
	flags := rootCmd.PersistentFlags()
	flags.StringVarP(&configFile, "config", "c", "", "config file (YAML, TOML, or JSON)")
	flags.String("db", "", "local database file")
	flags.String("server", "", "visit server API base URL")
	flags.String("log-level", "", "log level: debug, info, warn, error")
	flags.Bool("log-json", false, "log in JSON")

	for key, flag := range map[string]string{
		"db.file":        "db",
		"remote.baseURL": "server",
		"log.level":      "log-level",
		"log.json":       "log-json",
	} {
		if err := appViper.BindPFlag(key, flags.Lookup(flag)); err != nil {
			panic(err)
		}
	}
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
