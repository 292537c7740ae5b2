package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/alwitt/visitsync/config"
	"github.com/alwitt/visitsync/syncer"
	"github.com/apex/log"
	"github.com/fsnotify/fsnotify"
	"github.com/spf13/cobra"
)

// shutdownTimeout max wait for background sync work on exit
const shutdownTimeout = time.Second * 30

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Keep visits synchronized in the foreground",
	Long: `Monitor the visit server and synchronize automatically:
  1. Probe the server every sync.probeInterval
  2. Sync sync.settleDelay after the server becomes reachable
  3. Sync every sync.refreshInterval while reachable, if set

Changing log.level in the config file takes effect immediately.
Press Ctrl+C to stop.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		engine, err := openEngine(ctx)
		if err != nil {
			return err
		}
		defer func() {
			closeCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()
			closeEngine(closeCtx, engine)
		}()

		if appViper.ConfigFileUsed() != "" {
			appViper.OnConfigChange(func(event fsnotify.Event) {
				if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) {
					return
				}
				cfg, err := config.Decode(appViper)
				if err != nil {
					log.WithError(err).WithField("file", event.Name).Warn("Ignoring invalid config change")
					return
				}
				applyLogLevel(cfg.Log.Level)
			})
			appViper.WatchConfig()
		}

		updates, unsubscribe := engine.Subscribe()
		defer unsubscribe()

		if err := engine.Start(ctx); err != nil {
			return err
		}
		fmt.Printf("Watching %s, press Ctrl+C to stop\n", appConfig.Remote.BaseURL)

		reportStatusChanges(ctx, updates)
		fmt.Println("Stopping")
		return nil
	},
}

// reportStatusChanges print connectivity changes and finished runs until ctx ends
func reportStatusChanges(ctx context.Context, updates <-chan syncer.Status) {
	var previous syncer.Status
	for {
		select {
		case <-ctx.Done():
			return
		case status, ok := <-updates:
			if !ok {
				return
			}
			if status.IsOnline != previous.IsOnline {
				if status.IsOnline {
					fmt.Println(passStyle.Render("●") + " server reachable")
				} else {
					fmt.Println(failStyle.Render("●") + " server unreachable")
				}
			}
			if status.LastRun != nil &&
				(previous.LastRun == nil || !status.LastRun.FinishedAt.Equal(previous.LastRun.FinishedAt)) {
				fmt.Println(renderRun(*status.LastRun))
			}
			previous = status
		}
	}
}

func init() {
	rootCmd.AddCommand(watchCmd)
}
