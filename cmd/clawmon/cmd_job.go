package main

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/user/clawmon/internal/scheduler"
	"github.com/user/clawmon/internal/state"
)

func init() {
	rootCmd.AddCommand(jobCmd)
	jobCmd.AddCommand(jobAddCmd, jobListCmd, jobRemoveCmd, jobEnableCmd, jobDisableCmd)

	jobAddCmd.Flags().String("name", "", "job name (required)")
	jobAddCmd.Flags().String("kind", string(state.JobIdleSweep), "job kind: idle_sweep or reset")
	jobAddCmd.Flags().String("schedule", "", "cron schedule expression (required)")
	jobAddCmd.Flags().String("idle-after", "", "inactivity threshold for idle_sweep (default 5m)")
	_ = jobAddCmd.MarkFlagRequired("name")
	_ = jobAddCmd.MarkFlagRequired("schedule")
}

func jobStore() *state.JobStore {
	return state.NewJobStore(loadConfig().JobsPath())
}

var jobCmd = &cobra.Command{
	Use:   "job",
	Short: "Manage scheduled maintenance jobs",
	Long:  "Jobs run inside a serving daemon. Restart it with 'clawmon restart' after changes.",
}

var jobAddCmd = &cobra.Command{
	Use:   "add",
	Short: "Add a new job",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		name, _ := cmd.Flags().GetString("name")
		kind, _ := cmd.Flags().GetString("kind")
		schedule, _ := cmd.Flags().GetString("schedule")
		idleAfter, _ := cmd.Flags().GetString("idle-after")

		if err := scheduler.ValidateSchedule(schedule); err != nil {
			return fmt.Errorf("invalid schedule %q: %w", schedule, err)
		}

		job := &state.Job{
			Name:      name,
			Kind:      state.JobKind(kind),
			Schedule:  schedule,
			IdleAfter: idleAfter,
			Enabled:   true,
		}
		if err := jobStore().Add(job); err != nil {
			return fmt.Errorf("add job: %w", err)
		}
		fmt.Fprintf(os.Stdout, "Job %q added.\n", name)
		return nil
	},
}

var jobListCmd = &cobra.Command{
	Use:   "list",
	Short: "List all jobs",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		jobs, err := jobStore().List()
		if err != nil {
			return fmt.Errorf("list jobs: %w", err)
		}

		if len(jobs) == 0 {
			fmt.Println("No jobs configured.")
			return nil
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "NAME\tKIND\tSCHEDULE\tIDLE AFTER\tENABLED")
		for _, j := range jobs {
			idle := "-"
			if j.Kind == state.JobIdleSweep {
				if d, err := j.IdleThreshold(); err == nil {
					idle = d.String()
				}
			}
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%v\n", j.Name, j.Kind, j.Schedule, idle, j.Enabled)
		}
		return w.Flush()
	},
}

var jobRemoveCmd = &cobra.Command{
	Use:   "remove <name>",
	Short: "Remove a job",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := jobStore().Remove(args[0]); err != nil {
			return fmt.Errorf("remove job: %w", err)
		}
		fmt.Fprintf(os.Stdout, "Job %q removed.\n", args[0])
		return nil
	},
}

var jobEnableCmd = &cobra.Command{
	Use:   "enable <name>",
	Short: "Enable a job",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := jobStore().SetEnabled(args[0], true); err != nil {
			return fmt.Errorf("enable job: %w", err)
		}
		fmt.Fprintf(os.Stdout, "Job %q enabled.\n", args[0])
		return nil
	},
}

var jobDisableCmd = &cobra.Command{
	Use:   "disable <name>",
	Short: "Disable a job",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := jobStore().SetEnabled(args[0], false); err != nil {
			return fmt.Errorf("disable job: %w", err)
		}
		fmt.Fprintf(os.Stdout, "Job %q disabled.\n", args[0])
		return nil
	},
}
