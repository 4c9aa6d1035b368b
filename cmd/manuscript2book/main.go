package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

func main() {
	var opts rootOptions

	root := &cobra.Command{
		Use:           "manuscript2book",
		Short:         "Turn a raw manuscript into a structured, illustrated book",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&opts.configFile, "config", "", "config file (default ./manuscript2book.yaml)")
	root.PersistentFlags().StringVar(&opts.logLevel, "log-level", "", "override log level: debug|info|warn|error")
	root.PersistentFlags().StringVar(&opts.logFormat, "log-format", "", "override log format: text|json")

	root.AddCommand(buildCmd(&opts), serveCmd(&opts), watchCmd(&opts))

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
