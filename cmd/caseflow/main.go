package main

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/caseflow/caseflow/internal/cli"
)

func main() {
	command := NewCaseflowCommand()
	if err := command.Execute(); err != nil {
		os.Exit(1)
	}
}

func NewCaseflowCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "caseflow [flags] [options]",
		Short: "caseflow controls the case intake service.",
		Run: func(cmd *cobra.Command, args []string) {
			_ = cmd.Help()
			os.Exit(1)
		},
	}
	cmd.AddCommand(cli.NewCmdSubmit())
	cmd.AddCommand(cli.NewCmdStatus())
	cmd.AddCommand(cli.NewCmdWatch())

	return cmd
}
