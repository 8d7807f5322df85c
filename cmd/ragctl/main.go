package main

import (
	"os"

	"github.com/spf13/cobra"
)

func main() {
	root := &cobra.Command{
		Use:           "ragctl",
		Short:         "Operate the knowledge base QA service",
		SilenceUsage: true,
	}

	root.AddCommand(evaluateCMD(), tokenCMD(), inspectIndexCMD())
	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}
