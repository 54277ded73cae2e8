package cli

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"
)

// NewPoolCmd builds the "pool" command group: status, suspend, resume.
func NewPoolCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "pool",
		Short: "Inspect and control pools",
	}

	cmd.AddCommand(
		newPoolStatusCmd(clientFn, outputFn),
		newPoolSuspendCmd(clientFn, outputFn),
		newPoolResumeCmd(clientFn, outputFn),
	)

	return cmd
}

func newPoolStatusCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	return &cobra.Command{
		Use:   "status <pool>",
		Short: "Show a pool's queue depth and worker counts",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client := clientFn()
			out := outputFn()

			status, err := client.StatusOf(args[0])
			if err != nil {
				return err
			}

			out.Print(
				[]string{"QUEUE_DEPTH", "SUSPENDED", "OUTSTANDING", "WORKERS_TOTAL", "WORKERS_BUSY"},
				[][]string{{
					strconv.Itoa(status.QueueDepth),
					strconv.FormatBool(status.QueueSuspended),
					strconv.Itoa(status.Outstanding),
					strconv.Itoa(status.WorkersTotal),
					strconv.Itoa(status.WorkersBusy),
				}},
				status,
			)
			return nil
		},
	}
}

func newPoolSuspendCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	return &cobra.Command{
		Use:   "suspend <pool>",
		Short: "Suspend a pool's queue producers",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := clientFn().Suspend(args[0]); err != nil {
				return err
			}
			outputFn().Success(fmt.Sprintf("Pool suspended: %s", args[0]))
			return nil
		},
	}
}

func newPoolResumeCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	return &cobra.Command{
		Use:   "resume <pool>",
		Short: "Resume a pool's queue producers",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := clientFn().Resume(args[0]); err != nil {
				return err
			}
			outputFn().Success(fmt.Sprintf("Pool resumed: %s", args[0]))
			return nil
		},
	}
}
