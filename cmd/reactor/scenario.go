package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/vango-dev/reactor/internal/errors"
	"github.com/vango-dev/reactor/pkg/workload"
)

func scenarioCmd(a *app) *cobra.Command {
	var (
		trace      bool
		jsonOutput string
		save       bool
	)

	cmd := &cobra.Command{
		Use:   "scenario <file>...",
		Short: "Run YAML scenarios",
		Long: `Run YAML scenarios and check their expectations.

Each scenario runs on a fresh runtime. The command fails when any
expectation does not hold.

Examples:
  reactor scenario testdata/counter.yaml
  reactor scenario --trace scenarios/*.yaml
  reactor scenario --save scenarios/*.yaml`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			runner := a.runner()
			report := workload.NewReport(workload.KindScenario)

			for _, path := range args {
				sc, err := workload.LoadScenario(path)
				if err != nil {
					return err
				}
				res, err := runner.Run(cmd.Context(), sc)
				if err != nil {
					return err
				}
				report.Scenarios = append(report.Scenarios, res)

				if trace {
					fmt.Fprintf(a.out, "--- %s\n%s", res.Name, res.TraceText())
				}
				if res.Passed() {
					a.success("%s", res.Name)
				} else {
					a.errorMsg("%s", res.Name)
					for _, f := range res.Failures {
						a.info("%s", f)
					}
				}
			}

			if jsonOutput != "" {
				if err := a.writeJSON(jsonOutput, report); err != nil {
					return err
				}
			}
			if save {
				if err := a.save(cmd.Context(), report); err != nil {
					return err
				}
			}

			failed := 0
			for _, res := range report.Scenarios {
				if !res.Passed() {
					failed++
				}
			}
			if failed > 0 {
				return errors.New(errors.CodeAssertionFailed).
					WithDetail(fmt.Sprintf("%d of %d scenarios failed", failed, len(report.Scenarios)))
			}
			return nil
		},
	}

	cmd.Flags().BoolVarP(&trace, "trace", "t", false, "Print each scenario's trace")
	cmd.Flags().StringVar(&jsonOutput, "json", "", `Write the JSON report to a file ("-" for stdout)`)
	cmd.Flags().BoolVar(&save, "save", false, "Store the report in the configured directory or S3 bucket")

	return cmd
}
