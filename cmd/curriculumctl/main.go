// Command curriculumctl checks curriculum directories and converts question
// bank spreadsheets into the YAML format the server loads.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "curriculumctl",
		Short:         "Manage AI literacy curriculum content",
		SilenceUsage:  true,
	}
	root.AddCommand(newValidateCmd(), newTopicsCmd(), newImportQuestionsCmd())
	return root
}

func printf(cmd *cobra.Command, format string, args ...any) {
	fmt.Fprintf(cmd.OutOrStdout(), format, args...)
}
