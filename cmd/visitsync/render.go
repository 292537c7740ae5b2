package main

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/alwitt/visitsync/models"
	"github.com/alwitt/visitsync/syncer"
	"github.com/charmbracelet/lipgloss"
	"gopkg.in/yaml.v3"
)

var (
	passStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("10")).Bold(true)
	warnStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("11")).Bold(true)
	failStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("9")).Bold(true)
	labelStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))
	panelStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("12")).
			Padding(0, 1)
)

// output formats of listing commands
const (
	formatTable = "table"
	formatYAML  = "yaml"
	formatJSON  = "json"
)

// writeStructured write a value as YAML or JSON
func writeStructured(w io.Writer, format string, value interface{}) error {
	switch format {
	case formatYAML:
		encoder := yaml.NewEncoder(w)
		encoder.SetIndent(2)
		if err := encoder.Encode(value); err != nil {
			return fmt.Errorf("failed to render YAML [%w]", err)
		}
		return encoder.Close()
	case formatJSON:
		encoder := json.NewEncoder(w)
		encoder.SetIndent("", "  ")
		if err := encoder.Encode(value); err != nil {
			return fmt.Errorf("failed to render JSON [%w]", err)
		}
		return nil
	default:
		return fmt.Errorf("unsupported output format '%s'", format)
	}
}

// renderVisitTable write visits as an aligned table
func renderVisitTable(w io.Writer, visits []models.Visit) error {
	table := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(table, "ID\tSYNCED\tPATIENT\tSTART\tEND\tSERVICE")
	for _, entry := range visits {
		synced := "yes"
		if entry.IsDirty() {
			synced = "no"
		}
		fmt.Fprintf(
			table, "%s\t%s\t%s\t%s\t%s\t%s\n",
			entry.ID, synced, entry.PatientName, entry.StartedAt, entry.EndedAt, entry.ServiceType,
		)
	}
	return table.Flush()
}

// describeRun one line summary of a sync run
func describeRun(report models.SyncRunReport) string {
	summary := fmt.Sprintf(
		"%s uploaded=%d inserted=%d updated=%d skipped=%d deleted=%d",
		report.Strategy,
		report.Uploaded,
		report.Inserted,
		report.Updated,
		report.Skipped,
		report.Deleted,
	)
	if report.Error != "" {
		summary += " error=" + report.Error
	}
	return summary
}

// renderRun styled sync run outcome
func renderRun(report models.SyncRunReport) string {
	marker := passStyle.Render("✓")
	if report.Error != "" {
		marker = failStyle.Render("✗")
	}
	return fmt.Sprintf(
		"%s %s %s",
		marker,
		labelStyle.Render(report.StartedAt.Local().Format(time.DateTime)),
		describeRun(report),
	)
}

// renderStatus the status panel
func renderStatus(status syncer.Status, total int, unsynced int, unreadable int) string {
	connectivity := failStyle.Render("offline")
	if status.IsOnline {
		connectivity = passStyle.Render("online")
	}

	pending := passStyle.Render("0")
	if unsynced > 0 {
		pending = warnStyle.Render(fmt.Sprintf("%d", unsynced))
	}

	lines := []string{
		labelStyle.Render("server    ") + connectivity,
		labelStyle.Render("visits    ") + fmt.Sprintf("%d", total),
		labelStyle.Render("unsynced  ") + pending,
	}
	if unreadable > 0 {
		lines = append(lines, labelStyle.Render("unreadable ")+failStyle.Render(fmt.Sprintf("%d", unreadable)))
	}
	if status.LastRun != nil {
		lines = append(lines, labelStyle.Render("last sync ")+renderRun(*status.LastRun))
	} else {
		lines = append(lines, labelStyle.Render("last sync ")+"never")
	}
	return panelStyle.Render(strings.Join(lines, "\n"))
}
