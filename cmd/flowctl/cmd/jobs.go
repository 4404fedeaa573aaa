package cmd

import (
	"encoding/json"
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"flowplane/pkg/api"
)

var jobsCmd = &cobra.Command{
	Use:   "jobs",
	Short: "Inspect and replay failing jobs",
	Long:  `Inspect jobs that failed on their last execution and force re-executions with optional parameter overrides.`,
}

var jobsFailingCmd = &cobra.Command{
	Use:   "failing",
	Short: "List jobs whose last execution failed",
	Run: func(cmd *cobra.Command, args []string) {
		client := NewFlowClient(viper.GetString("url"), viper.GetString("token"))

		limit, _ := cmd.Flags().GetInt("limit")
		offset, _ := cmd.Flags().GetInt("offset")

		jobs, err := client.ListFailingJobs(limit, offset)
		if err != nil {
			cmd.Printf("Error fetching failing jobs: %s\n", err)
			os.Exit(1)
		}

		if len(jobs) == 0 {
			if offset > 0 {
				cmd.Println("No more failing jobs found.")
			} else {
				cmd.Println("No failing jobs found.")
			}
			return
		}

		// Print table
		w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 3, ' ', 0)
		fmt.Fprintln(w, "JOB ID\tNAME\tFAILURES\tLAST EXECUTED\tLAST ERROR")
		for _, j := range jobs {
			// Truncate long error messages for the table view
			errMsg := j.LastMessage
			if len(errMsg) > 50 {
				errMsg = errMsg[:47] + "..."
			}

			fmt.Fprintf(w, "%s\t%s\t%d\t%s\t%s\n",
				j.JobID,
				j.Name,
				j.NumberOfFailures,
				j.LastExecutedAt.Format(time.RFC3339),
				errMsg,
			)
		}
		w.Flush()
	},
}

var jobsReplayCmd = &cobra.Command{
	Use:   "replay [job_id]",
	Short: "Force a re-execution of a failing job",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		jobID := args[0]
		client := NewFlowClient(viper.GetString("url"), viper.GetString("token"))

		overrides, _ := cmd.Flags().GetString("overrides")
		req := api.ReplayJobRequest{}
		if overrides != "" {
			if !json.Valid([]byte(overrides)) {
				cmd.Println("Error: --overrides must be a valid JSON object")
				os.Exit(1)
			}
			req.ParameterOverrides = json.RawMessage(overrides)
		}

		resp, err := client.ReplayJob(jobID, req)
		if err != nil {
			cmd.Printf("Error replaying job: %s\n", err)
			os.Exit(1)
		}

		if resp.Success {
			cmd.Printf("Job %s replayed successfully.\n", jobID)
			return
		}
		cmd.Printf("Job %s replay failed: %s\n", jobID, resp.Error)
		os.Exit(1)
	},
}

func init() {
	rootCmd.AddCommand(jobsCmd)
	jobsCmd.AddCommand(jobsFailingCmd)
	jobsCmd.AddCommand(jobsReplayCmd)

	jobsFailingCmd.Flags().IntP("limit", "l", 20, "Number of jobs to list")
	jobsFailingCmd.Flags().IntP("offset", "o", 0, "Offset for pagination")

	jobsReplayCmd.Flags().String("overrides", "", "JSON object merged over the stored job parameters")
}
