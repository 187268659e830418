package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/vango-dev/reactor/pkg/workload"
)

func benchCmd(a *app) *cobra.Command {
	var (
		profileName string
		workloads   []string
		iterations  int
		jsonOutput  string
		save        bool
		list        bool
	)

	cmd := &cobra.Command{
		Use:   "bench",
		Short: "Measure the runtime under synthetic workloads",
		Long: `Measure the runtime under synthetic workloads.

Each workload runs on a fresh runtime configured from reactor.json:

  fanout   one ref read by many effects
  chain    a ref feeding a chain of computeds
  watch    many watchers on one ref, batched writes
  array    push/shift on an array with a computed sum

Examples:
  reactor bench
  reactor bench --profile=stress --workload=chain
  reactor bench --json=- --save`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if list {
				for _, p := range workload.Profiles() {
					a.info("%-9s %d rounds, fanout %d, chain %d, watchers %d, list %d, batch %d",
						p.Name, p.Iterations, p.Fanout, p.ChainDepth, p.Watchers, p.ListSize, p.Batch)
				}
				return nil
			}

			profile, err := workload.LookupProfile(profileName)
			if err != nil {
				return err
			}
			if iterations > 0 {
				profile.Iterations = iterations
			}

			results, err := a.runner().Bench(cmd.Context(), profile, workloads...)
			if err != nil {
				return err
			}

			report := workload.NewReport(workload.KindBench)
			report.Profile = &profile
			report.Bench = results

			if jsonOutput != "-" {
				report.WriteSummary(a.out)
				fmt.Fprintln(a.out)
			}
			if jsonOutput != "" {
				if err := a.writeJSON(jsonOutput, report); err != nil {
					return err
				}
			}
			if save {
				return a.save(cmd.Context(), report)
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&profileName, "profile", "p", "fast", "Bench profile: fast, standard or stress")
	cmd.Flags().StringSliceVarP(&workloads, "workload", "w", nil, "Workloads to run (default: all)")
	cmd.Flags().IntVarP(&iterations, "iterations", "n", 0, "Override the profile's round count")
	cmd.Flags().StringVar(&jsonOutput, "json", "", `Write the JSON report to a file ("-" for stdout)`)
	cmd.Flags().BoolVar(&save, "save", false, "Store the report in the configured directory or S3 bucket")
	cmd.Flags().BoolVar(&list, "list", false, "List the built-in profiles")

	return cmd
}
