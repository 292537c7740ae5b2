package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/alwitt/visitsync/models"
	"github.com/alwitt/visitsync/syncer"
	"github.com/spf13/cobra"
)

var listFormat string
var listUnsynced bool

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List recorded visits",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		engine, err := openEngine(ctx)
		if err != nil {
			return err
		}
		defer closeEngine(ctx, engine)

		listed, err := engine.ListVisits(ctx)
		if err != nil {
			return err
		}
		visits := listed.Visits
		if listUnsynced {
			visits = []models.Visit{}
			for _, entry := range listed.Visits {
				if entry.IsDirty() {
					visits = append(visits, entry)
				}
			}
		}

		if listed.Unreadable > 0 {
			fmt.Fprintf(
				os.Stderr, "%s %d stored visits could not be read\n",
				warnStyle.Render("⚠"), listed.Unreadable,
			)
		}

		if listFormat == formatTable {
			return renderVisitTable(os.Stdout, visits)
		}
		return writeStructured(os.Stdout, listFormat, visits)
	},
}

var syncFull bool

var syncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Upload unsynced visits, then download server changes",
	Long: `Run one sync: upload every unsynced visit, then download the server changes since
the last sync. With --full the local collection is refreshed from the complete server
collection; visits with unsynced local changes are kept.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		engine, err := openEngine(ctx)
		if err != nil {
			return err
		}
		defer closeEngine(ctx, engine)

		if !engine.CheckConnectivity(ctx) {
			return fmt.Errorf("visit server %s is not reachable", appConfig.Remote.BaseURL)
		}

		trigger := engine.TriggerSync
		if syncFull {
			trigger = engine.TriggerFullSync
		}
		report, err := trigger(ctx)
		if errors.Is(err, syncer.ErrSyncInProgress) {
			fmt.Println("A sync is already running")
			return nil
		}
		fmt.Println(renderRun(report))
		return err
	},
}

var historyLimit int
var historyFormat string

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Show recent sync runs",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		engine, err := openEngine(ctx)
		if err != nil {
			return err
		}
		defer closeEngine(ctx, engine)

		runs, err := engine.SyncHistory(ctx, historyLimit)
		if err != nil {
			return err
		}
		if historyFormat != formatTable {
			return writeStructured(os.Stdout, historyFormat, runs)
		}
		if len(runs) == 0 {
			fmt.Println("No sync runs recorded")
			return nil
		}
		for _, run := range runs {
			fmt.Println(renderRun(run))
		}
		return nil
	},
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show connectivity and pending uploads",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		engine, err := openEngine(ctx)
		if err != nil {
			return err
		}
		defer closeEngine(ctx, engine)

		engine.CheckConnectivity(ctx)

		listed, err := engine.ListVisits(ctx)
		if err != nil {
			return err
		}
		unsynced := 0
		for _, entry := range listed.Visits {
			if entry.IsDirty() {
				unsynced++
			}
		}

		status := engine.Status()
		if status.LastRun == nil {
			runs, err := engine.SyncHistory(ctx, 1)
			if err != nil {
				return err
			}
			if len(runs) > 0 {
				status.LastRun = &runs[0]
			}
		}

		fmt.Println(renderStatus(status, len(listed.Visits), unsynced, listed.Unreadable))
		return nil
	},
}

func init() {
	listCmd.Flags().StringVarP(&listFormat, "output", "o", formatTable, "output format: table, yaml, json")
	listCmd.Flags().BoolVar(&listUnsynced, "unsynced", false, "only list visits not yet uploaded")
	syncCmd.Flags().BoolVar(&syncFull, "full", false, "refresh from the complete server collection")
	historyCmd.Flags().IntVarP(&historyLimit, "limit", "n", 20, "max runs to show; 0 for all")
	historyCmd.Flags().StringVarP(&historyFormat, "output", "o", formatTable, "output format: table, yaml, json")

	rootCmd.AddCommand(listCmd)
	rootCmd.AddCommand(syncCmd)
	rootCmd.AddCommand(historyCmd)
	rootCmd.AddCommand(statusCmd)
}
