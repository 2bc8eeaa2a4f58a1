// Command netravenctl is the operator CLI for the §6 control surface:
// register/deregister, enable/disable, run-now, cancel-run, and
// list-schedules, each implemented as a thin HTTP call against a
// running netraven-worker's control API.
package main

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/netraven/engine/internal/controlapi"
)

const (
	cliName    = "netravenctl"
	cliVersion = "0.1.0"
)

var controlAddr string

func main() {
	rootCmd := &cobra.Command{
		Use:     cliName,
		Short:   "Operate a NetRaven worker's job schedule",
		Long:    "netravenctl drives a running netraven-worker's scheduler: register and deregister jobs, pause and resume them, trigger out-of-schedule runs, cancel in-flight runs, and list the live schedule.",
		Version: cliVersion,
	}
	rootCmd.PersistentFlags().StringVar(&controlAddr, "addr", "http://localhost:8090", "netraven-worker control API address")

	rootCmd.AddCommand(
		newRegisterCmd(),
		newDeregisterCmd(),
		newEnableCmd(),
		newDisableCmd(),
		newRunNowCmd(),
		newCancelRunCmd(),
		newListSchedulesCmd(),
	)

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func client() *controlapi.Client {
	return controlapi.NewClient(controlAddr)
}

func newRegisterCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "register <job-id>",
		Short: "Move a job into the live schedule",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := client().Register(args[0]); err != nil {
				return err
			}
			fmt.Printf("job %s registered\n", args[0])
			return nil
		},
	}
}

func newDeregisterCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "deregister <job-id>",
		Short: "Remove a job from the live schedule",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := client().Deregister(args[0]); err != nil {
				return err
			}
			fmt.Printf("job %s deregistered\n", args[0])
			return nil
		},
	}
}

func newEnableCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "enable <job-id>",
		Short: "Resume a paused job",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := client().Enable(args[0]); err != nil {
				return err
			}
			fmt.Printf("job %s enabled\n", args[0])
			return nil
		},
	}
}

func newDisableCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "disable <job-id>",
		Short: "Pause an active job",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := client().Disable(args[0]); err != nil {
				return err
			}
			fmt.Printf("job %s disabled\n", args[0])
			return nil
		},
	}
}

func newRunNowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "run-now <job-id>",
		Short: "Trigger an immediate out-of-schedule run",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			jobRunID, err := client().RunNow(args[0])
			if err != nil {
				return err
			}
			fmt.Printf("job run started: %s\n", jobRunID)
			return nil
		},
	}
}

func newCancelRunCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "cancel-run <job-run-id>",
		Short: "Cancel an in-flight job run",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := client().CancelRun(args[0]); err != nil {
				return err
			}
			fmt.Printf("job run %s cancelled\n", args[0])
			return nil
		},
	}
}

func newListSchedulesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list-schedules",
		Short: "List every registered job's next fire time and state",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			schedules, err := client().ListSchedules()
			if err != nil {
				return err
			}
			w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "JOB ID\tNEXT FIRE\tSTATE")
			for _, s := range schedules {
				fmt.Fprintf(w, "%s\t%s\t%s\n", s.JobID, s.NextFire.Format("2006-01-02T15:04:05Z07:00"), s.State)
			}
			return w.Flush()
		},
	}
}
