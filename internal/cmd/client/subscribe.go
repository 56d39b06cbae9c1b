package client

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	iceoryx2 "github.com/youndong/iceoryx2"
	"github.com/youndong/iceoryx2/pkg/log"
)

// NewSubscribeCommand constructs the `subscribe` command.
func NewSubscribeCommand(logger log.Logger) *cobra.Command {
	subCmd := &cobra.Command{
		Use:   "subscribe",
		Short: "Print messages arriving on a service",
		Long:  "Subscribe attaches to a service and prints every message until interrupted or --limit is reached.",
		RunE: func(cmd *cobra.Command, _ []string) error {
			service, _ := cmd.Flags().GetString("service")
			limit, _ := cmd.Flags().GetInt("limit")

			ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer cancel()

			node, _, err := newNode(cmd, logger)
			if err != nil {
				return err
			}
			defer node.Close()

			sub, err := node.Subscriber(service)
			if err != nil {
				return err
			}
			defer sub.Close()

			stream, err := sub.Messages(ctx)
			if err != nil {
				return err
			}
			defer stream.Stop()

			printed := 0
			for {
				m, err := stream.Next(ctx)
				if err != nil {
					if errors.Is(err, context.Canceled) || errors.Is(err, iceoryx2.ErrStreamClosed) {
						return nil
					}
					return err
				}
				fmt.Printf("[%s] %s: %s\n", m.Timestamp.Format(time.RFC3339Nano), m.Sender, m.Content)
				printed++
				if limit > 0 && printed >= limit {
					return nil
				}
			}
		},
	}

	nodeFlags(subCmd)
	subCmd.Flags().Int("limit", 0, "Stop after printing this many messages (0 = run until interrupted)")
	return subCmd
}
