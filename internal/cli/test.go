package cli

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/roach88/promote/internal/harness"
)

// NewTestCommand creates the test command.
func NewTestCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "test <dir>",
		Short: "Run reconciliation scenarios",
		Long: `Run every YAML scenario in a directory against a fresh in-memory store.

Each scenario declares a workspace tree, a revision history and a flow of
operations with expected results. Exits 1 when any scenario fails.`,
		Example: `  promote test ./scenarios
  promote test ./scenarios --format json`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			f := rootOpts.formatter(cmd)
			f.VerboseLog("running scenarios in %s", args[0])

			suite, err := harness.RunDir(cmd.Context(), args[0])
			if err != nil {
				return f.Fail("cannot run scenarios", badArgument("%v", err))
			}
			if !suite.Pass() {
				if outErr := f.Error(ErrCodeScenarioFailed,
					fmt.Sprintf("%d of %d scenarios failed", suite.Failed, len(suite.Scenarios)), suite); outErr != nil {
					return outErr
				}
				if f.Format != "json" {
					printSuite(f.Writer, suite)
				}
				return NewExitError(ExitFailure, "scenarios failed")
			}
			return f.Success(suite, func(w io.Writer) {
				printSuite(w, suite)
			})
		},
	}
}

func printSuite(w io.Writer, suite *harness.SuiteResult) {
	for _, sc := range suite.Scenarios {
		name := sc.Name
		if name == "" {
			name = sc.File
		}
		if sc.Pass {
			fmt.Fprintf(w, "PASS  %s\n", name)
			continue
		}
		fmt.Fprintf(w, "FAIL  %s\n", name)
		for _, e := range sc.Errors {
			fmt.Fprintf(w, "      %s\n", e)
		}
	}
	fmt.Fprintf(w, "\n%d passed, %d failed\n", suite.Passed, suite.Failed)
}
