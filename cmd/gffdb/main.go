package main

import (
	"os"

	"github.com/gffdb/gffdb/cmd"
)

func main() {
	rootCmd := cmd.NewRootCommand()

	rootCmd.AddCommand(cmd.NewMigrateCommand())
	rootCmd.AddCommand(cmd.NewLoadCommand())
	rootCmd.AddCommand(cmd.NewQueryCommand())
	rootCmd.AddCommand(cmd.NewTypesCommand())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
