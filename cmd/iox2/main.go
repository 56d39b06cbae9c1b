package main

import (
	"os"

	"github.com/spf13/cobra"
	clientcmd "github.com/youndong/iceoryx2/internal/cmd/client"
	logpkg "github.com/youndong/iceoryx2/pkg/log"
)

func main() {
	// Respect IOX2_LOG_LEVEL for CLI output
	level := os.Getenv("IOX2_LOG_LEVEL")
	parsed, err := logpkg.ParseLevel(level)
	if err != nil || level == "" {
		parsed = logpkg.InfoLevel
	}
	logger := logpkg.NewLogger(
		logpkg.WithLevel(parsed),
		logpkg.WithFormatter(&logpkg.TextFormatter{}),
		logpkg.WithOutput(logpkg.NewConsoleOutput()),
	)

	// Route standard library logs through our logger
	logpkg.RedirectStdLog(logger)

	rootCmd := &cobra.Command{
		Use:   "iox2",
		Short: "iceoryx2 zero-copy pub/sub CLI",
		Long:  "iox2 publishes to and subscribes from zero-copy shared memory services, and manages their segments.",
	}

	rootCmd.AddCommand(clientcmd.NewPublishCommand(logger))
	rootCmd.AddCommand(clientcmd.NewSubscribeCommand(logger))
	rootCmd.AddCommand(clientcmd.NewServicesCommand())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
