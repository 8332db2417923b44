package main

import (
	"os"

	"github.com/roach88/stoats/internal/cli"
)

func main() {
	cmd := cli.NewRootCommand()
	if err := cmd.Execute(); err != nil {
		format, _ := cmd.PersistentFlags().GetString("format")
		f := &cli.OutputFormatter{Format: format, Writer: os.Stderr}
		_ = f.Report(err)
		os.Exit(cli.GetExitCode(err))
	}
}
