package main

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"shuttle/internal/control"
	"shuttle/internal/status"
)

func newStatusCommand(ctx *commandContext) *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show the daemon's upload progress and workers",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withClient(cmd, func(client *control.Client) error {
				snap, err := client.State(cmd.Context())
				if err != nil {
					return err
				}
				if asJSON {
					payload, err := status.EncodeSnapshot(snap)
					if err != nil {
						return err
					}
					fmt.Fprintln(cmd.OutOrStdout(), string(payload))
					return nil
				}
				renderStatus(cmd, ctx, snap)
				return nil
			})
		},
	}

	cmd.Flags().BoolVar(&asJSON, "json", false, "Emit the raw snapshot JSON")
	return cmd
}

func renderStatus(cmd *cobra.Command, ctx *commandContext, snap status.Snapshot) {
	out := cmd.OutOrStdout()
	colorize := shouldColorize(out)

	title := "Collection"
	if cfg, err := ctx.ensureConfig(); err == nil && cfg.Collection.Name != "" {
		title = cases.Title(language.Und).String(cfg.Collection.Name)
	}
	for _, line := range renderSectionHeader(title, colorize) {
		fmt.Fprintln(out, line)
	}

	uploadingState := "paused"
	if snap.Engine.Uploading {
		uploadingState = "running"
	}
	backlog := "jobs remaining"
	if snap.Engine.BacklogExhausted {
		backlog = "backlog exhausted"
	}

	fmt.Fprintln(out, renderTable(
		[]string{"Metric", "Value"},
		[][]string{
			{"Uploading", uploadingState},
			{"Distribution", backlog},
			{"Assets total", strconv.Itoa(snap.Assets.Total)},
			{"Uploaded", strconv.Itoa(snap.Assets.Uploaded)},
			{"Remaining", strconv.Itoa(snap.Assets.Remaining)},
			{"This session", strconv.Itoa(snap.Assets.SessionUploads)},
			{"Failed attempts", strconv.Itoa(snap.Assets.FailedAttempts)},
			{"Workers", fmt.Sprintf("%d / %d", len(snap.Workers), snap.Engine.MaxWorkers)},
			{"Queue depth", strconv.Itoa(snap.Engine.QueueDepth)},
			{"Observers", strconv.Itoa(snap.ActiveObservers)},
			{"Avg upload", formatMillis(snap.Timings.AvgUpload.MeanMS())},
			{"Avg setup", formatMillis(snap.Timings.AvgSetup.MeanMS())},
		},
		[]columnAlignment{alignLeft, alignRight},
	))

	if len(snap.Workers) == 0 {
		fmt.Fprintln(out, "No workers running.")
		return
	}

	rows := make([][]string, 0, len(snap.Workers))
	for _, w := range snap.Workers {
		rows = append(rows, []string{
			strconv.Itoa(w.ID),
			w.State,
			strconv.Itoa(w.Uploads),
			formatMillis(w.SetupMS),
		})
	}
	fmt.Fprintln(out, renderTable(
		[]string{"Worker", "State", "Uploads", "Setup"},
		rows,
		[]columnAlignment{alignRight, alignLeft, alignRight, alignRight},
	))
}

func formatMillis(ms int64) string {
	if ms <= 0 {
		return "-"
	}
	if ms < 1000 {
		return fmt.Sprintf("%dms", ms)
	}
	return fmt.Sprintf("%.1fs", float64(ms)/1000)
}

func renderSectionHeader(title string, colorize bool) []string {
	line := fmt.Sprintf("== %s ==", strings.TrimSpace(title))
	rule := strings.Repeat("-", len(line))
	if colorize {
		line = ansiBlue + line + ansiReset
		rule = ansiBlue + rule + ansiReset
	}
	return []string{line, rule}
}

const (
	ansiReset = "\x1b[0m"
	ansiBlue  = "\x1b[34m"
)
