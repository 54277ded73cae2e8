package cli

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

// NewJobCmd builds the "job" command group: submit and yield.
func NewJobCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "job",
		Short: "Submit and inspect jobs",
	}

	cmd.AddCommand(
		newJobSubmitCmd(clientFn, outputFn),
		newJobYieldCmd(clientFn, outputFn),
	)

	return cmd
}

func newJobSubmitCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	var method string
	var argsJSON string
	var owner string

	cmd := &cobra.Command{
		Use:   "submit <pool>",
		Short: "Submit a job to a pool",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, cmdArgs []string) error {
			client := clientFn()
			out := outputFn()

			task := TaskRequest{Method: method}
			if argsJSON != "" {
				if err := json.Unmarshal([]byte(argsJSON), &task.Args); err != nil {
					return fmt.Errorf("invalid --args JSON: %w", err)
				}
			}

			job, err := client.SubmitJob(cmdArgs[0], task, owner)
			if err != nil {
				return err
			}

			out.Success(fmt.Sprintf("Job submitted: %s", job.ID))
			requestID := ""
			if job.From != nil {
				requestID = job.From.RequestID
				out.Success(fmt.Sprintf("Request ID (for yield): %s", requestID))
			}
			out.Print(
				[]string{"ID", "POOL", "METHOD", "REQUEST_ID", "ENQUEUED"},
				[][]string{{job.ID, job.Pool, job.Task.Method, requestID, job.EnqueuedAt.Format(time.RFC3339)}},
				job,
			)
			return nil
		},
	}

	cmd.Flags().StringVar(&method, "method", "", "task method name (required)")
	cmd.Flags().StringVar(&argsJSON, "args", "", "task arguments as a JSON array")
	cmd.Flags().StringVar(&owner, "owner", "", "reply owner; when set, the job is submitted with a reply address")
	cmd.MarkFlagRequired("method")

	return cmd
}

func newJobYieldCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	var owner, requestID string
	var timeoutMS int64

	cmd := &cobra.Command{
		Use:   "yield <pool>",
		Short: "Wait for a submitted job's result",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, cmdArgs []string) error {
			client := clientFn()
			out := outputFn()

			resp, err := client.YieldJob(cmdArgs[0], owner, requestID, time.Duration(timeoutMS)*time.Millisecond)
			if err != nil {
				return err
			}

			if !resp.Ready {
				out.Success("not ready")
				return nil
			}

			out.Print(
				[]string{"READY", "VALUE", "ERR"},
				[][]string{{"true", fmt.Sprint(resp.Result.Value), resp.Result.Err}},
				resp,
			)
			return nil
		},
	}

	cmd.Flags().StringVar(&owner, "owner", "", "reply owner the job was submitted with (required)")
	cmd.Flags().StringVar(&requestID, "request-id", "", "request ID returned at submission (required)")
	cmd.Flags().Int64Var(&timeoutMS, "timeout-ms", 5000, "how long to wait for the result")
	cmd.MarkFlagRequired("owner")
	cmd.MarkFlagRequired("request-id")

	return cmd
}
