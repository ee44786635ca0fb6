package main

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"shuttle/internal/control"
)

func newUploadingCommand(ctx *commandContext) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "uploading",
		Short: "Pause or resume uploading",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "start",
		Short: "Open the upload gate",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withClient(cmd, func(client *control.Client) error {
				if err := client.StartUploading(cmd.Context()); err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), "Uploading started.")
				return nil
			})
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "stop",
		Short: "Close the upload gate; in-flight uploads finish",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withClient(cmd, func(client *control.Client) error {
				if err := client.StopUploading(cmd.Context()); err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), "Uploading paused.")
				return nil
			})
		},
	})

	return cmd
}

func newWorkersCommand(ctx *commandContext) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "workers",
		Short: "Resize the worker pool",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "add [count]",
		Short: "Add workers, up to the configured ceiling",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			count, err := parseCount(args)
			if err != nil {
				return err
			}
			return ctx.withClient(cmd, func(client *control.Client) error {
				added, detail, err := client.AddWorkers(cmd.Context(), count)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Added %d worker(s).\n", added)
				if detail != "" {
					fmt.Fprintln(cmd.OutOrStdout(), detail)
				}
				return nil
			})
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "remove [count]",
		Short: "Retire workers, newest first",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			count, err := parseCount(args)
			if err != nil {
				return err
			}
			return ctx.withClient(cmd, func(client *control.Client) error {
				removed, _, err := client.RemoveWorkers(cmd.Context(), count)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Stopped %d worker(s).\n", removed)
				return nil
			})
		},
	})

	return cmd
}

func newStopCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "stop",
		Short: "Shut down the daemon",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withClient(cmd, func(client *control.Client) error {
				if err := client.StopServer(cmd.Context()); err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), "Daemon is shutting down.")
				return nil
			})
		},
	}
}

func parseCount(args []string) (int, error) {
	if len(args) == 0 {
		return 1, nil
	}
	count, err := strconv.Atoi(args[0])
	if err != nil || count < 1 {
		return 0, fmt.Errorf("invalid count %q", args[0])
	}
	return count, nil
}
