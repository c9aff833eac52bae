package main

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/opsinsight/reportcore/pkg/analyzer"
	"github.com/opsinsight/reportcore/pkg/jobs"
)

func newJobsCmd(opts *globalOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "jobs",
		Short: "Inspect and cancel analysis jobs",
	}
	cmd.AddCommand(newJobsListCmd(opts), newJobsGetCmd(opts), newJobsCancelCmd(opts))
	return cmd
}

func newJobsListCmd(opts *globalOptions) *cobra.Command {
	var (
		taskKind  string
		status    string
		pageSize  int
		pageToken string
	)
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List jobs, newest first",
		RunE: func(cmd *cobra.Command, _ []string) error {
			var filter jobs.JobListFilter
			if taskKind != "" {
				kind, err := analyzer.ParseTaskKind(taskKind)
				if err != nil {
					return err
				}
				filter.TaskKind = string(kind)
			}
			if status != "" {
				st, err := jobs.ParseStatus(status)
				if err != nil {
					return err
				}
				filter.Status = &st
			}

			a, err := setup(cmd, opts)
			if err != nil {
				return err
			}
			defer a.close()

			records, next, total, err := jobs.NewJobStore(a.db).List(cmd.Context(), filter, pageSize, pageToken)
			if err != nil {
				return err
			}
			items := make([]jobs.JobResponse, len(records))
			for i := range records {
				items[i] = jobs.ToResponse(&records[i])
			}

			if a.format != "table" {
				return printOutput(a.out, a.format, map[string]any{
					"jobs":          items,
					"nextPageToken": next,
					"size":          len(items),
					"totalSize":     total,
				})
			}
			rows := make([][]string, len(items))
			for i, j := range items {
				rows[i] = []string{
					strconv.FormatInt(j.ID, 10),
					j.TaskKind,
					j.Status,
					strconv.FormatInt(j.SpiderTaskID, 10),
					j.CreatedAt,
					truncate(j.ErrorMessage, 40),
				}
			}
			if err := printTable(a.out, []string{"id", "kind", "status", "spider task", "created", "error"}, rows); err != nil {
				return err
			}
			if next != "" {
				fmt.Fprintf(a.out, "\nMore results: --page-token %s\n", next)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&taskKind, "task-kind", "", "Filter by task kind code or slug")
	cmd.Flags().StringVar(&status, "status", "", "Filter by status name or code")
	cmd.Flags().IntVar(&pageSize, "page-size", 20, "Jobs per page (max 100)")
	cmd.Flags().StringVar(&pageToken, "page-token", "", "Token from a previous page")
	return cmd
}

func newJobsGetCmd(opts *globalOptions) *cobra.Command {
	var showResult bool
	cmd := &cobra.Command{
		Use:   "get JOB_ID",
		Short: "Show one job",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := strconv.ParseInt(args[0], 10, 64)
			if err != nil {
				return fmt.Errorf("invalid job id %q", args[0])
			}

			a, err := setup(cmd, opts)
			if err != nil {
				return err
			}
			defer a.close()

			job, err := jobs.NewJobStore(a.db).Get(cmd.Context(), id)
			if err != nil {
				return err
			}
			if job == nil {
				return fmt.Errorf("job %d not found", id)
			}

			if showResult {
				if len(job.Result) == 0 {
					return fmt.Errorf("job %d has no result (status %s)", id, job.Status)
				}
				_, err := fmt.Fprintln(a.out, string(job.Result))
				return err
			}

			resp := jobs.ToResponse(job)
			if a.format != "table" {
				return printOutput(a.out, a.format, resp)
			}
			return printTable(a.out, []string{"field", "value"}, [][]string{
				{"id", strconv.FormatInt(resp.ID, 10)},
				{"kind", resp.TaskKind},
				{"status", resp.Status},
				{"spider task", strconv.FormatInt(resp.SpiderTaskID, 10)},
				{"created by", strconv.FormatInt(resp.CreatedBy, 10)},
				{"created", resp.CreatedAt},
				{"started", resp.StartedAt},
				{"finished", resp.FinishedAt},
				{"duration ms", strconv.FormatInt(resp.DurationMs, 10)},
				{"error code", resp.ErrorCode},
				{"error", resp.ErrorMessage},
				{"has result", strconv.FormatBool(resp.HasResult)},
			})
		},
	}
	cmd.Flags().BoolVar(&showResult, "result", false, "Print the stored result JSON instead")
	return cmd
}

func newJobsCancelCmd(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "cancel JOB_ID",
		Short: "Cancel a pending or ready job",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := strconv.ParseInt(args[0], 10, 64)
			if err != nil {
				return fmt.Errorf("invalid job id %q", args[0])
			}

			a, err := setup(cmd, opts)
			if err != nil {
				return err
			}
			defer a.close()

			if err := jobs.NewJobStore(a.db).Cancel(cmd.Context(), id); err != nil {
				return err
			}
			_, err = fmt.Fprintf(a.out, "job %d canceled\n", id)
			return err
		},
	}
}
