package main

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/opsinsight/reportcore/pkg/jobs"
)

func newRunCmd(opts *globalOptions) *cobra.Command {
	var jobID int64
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run one analysis job in the foreground and print its result",
		Long: `run executes the workflow for a single job regardless of its status and
prints the finalized result as JSON. The job record is left unchanged.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := setup(cmd, opts)
			if err != nil {
				return err
			}
			defer a.close()

			ctx := cmd.Context()
			job, err := jobs.NewJobStore(a.db).Get(ctx, jobID)
			if err != nil {
				return fmt.Errorf("failed to get job: %w", err)
			}
			if job == nil {
				return fmt.Errorf("job %d not found", jobID)
			}
			wj, err := job.WorkflowJob()
			if err != nil {
				return fmt.Errorf("job %d has an invalid payload: %w", jobID, err)
			}
			wf, err := a.workflow(ctx)
			if err != nil {
				return err
			}

			res, err := wf.Run(ctx, wj)
			if err != nil {
				return fmt.Errorf("job %d failed (%s): %w", jobID, jobs.ErrorCode(err), err)
			}
			body, err := json.MarshalIndent(res, "", "  ")
			if err != nil {
				return err
			}
			_, err = fmt.Fprintln(a.out, string(body))
			return err
		},
	}
	cmd.Flags().Int64Var(&jobID, "job-id", 0, "Job to run")
	_ = cmd.MarkFlagRequired("job-id")
	return cmd
}
