// Command landseg runs demographic reconciliation jobs described by a YAML
// job file.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err.Error())
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:           "landseg",
		Short:         "Reconcile seed populations with control totals and segment factors",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	cmd.AddCommand(runCmd())
	cmd.AddCommand(chunksCmd())
	cmd.AddCommand(checkpointsCmd())
	return cmd
}

func runCmd() *cobra.Command {
	var fresh bool

	cmd := &cobra.Command{
		Use:   "run [job.yaml]",
		Short: "Run chunk, rake and resolve, resuming from checkpoints",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			job, err := LoadJob(args[0])
			if err != nil {
				return err
			}
			return runJob(cmd.Context(), job, fresh, cmd.OutOrStdout())
		},
	}

	cmd.Flags().BoolVar(&fresh, "fresh", false, "ignore the committed run state and start over")
	return cmd
}

func chunksCmd() *cobra.Command {
	var (
		districtLevel string
		size          int
	)

	cmd := &cobra.Command{
		Use:   "chunks [lookup.csv]",
		Short: "Print the zone to chunk assignment of a geography lookup",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runChunks(args[0], districtLevel, size, cmd.OutOrStdout())
		},
	}

	cmd.Flags().StringVar(&districtLevel, "district-level", "district", "hierarchy level chunks are built from")
	cmd.Flags().IntVar(&size, "size", 0, "zones per synthetic district (0 derives it)")
	return cmd
}

func checkpointsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "checkpoints [job.yaml]",
		Short: "List persisted stages and the committed run state",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			job, err := LoadJob(args[0])
			if err != nil {
				return err
			}
			return runCheckpoints(cmd.Context(), job, cmd.OutOrStdout())
		},
	}
}
