package main

import (
	"github.com/spf13/cobra"
)

var (
	logLevel   string
	configFile string
)

func main() {
	root := &cobra.Command{
		Use:   "chatfeed",
		Short: "Chat feed server and tools",
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			initLogger(logLevel)
		},
	}
	root.PersistentFlags().StringVar(&logLevel, "log-level", "info", "log level (trace, debug, info, warn, error)")
	root.PersistentFlags().StringVar(&configFile, "config", "", "path to YAML config file")

	root.AddCommand(newServeCommand())
	root.AddCommand(newChatCommand())
	root.AddCommand(newTokensCommand())

	cobra.CheckErr(root.Execute())
}
