package client

import (
	"bufio"
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

// NewPublishCommand constructs the `publish` command.
func NewPublishCommand(logger log.Logger) *cobra.Command {
	pubCmd := &cobra.Command{
		Use:   "publish",
		Short: "Publish messages to a service",
		Long:  "Publish sends --message (or numbered messages with --count, or stdin lines) to every subscriber of a service.",
		RunE: func(cmd *cobra.Command, _ []string) error {
			service, _ := cmd.Flags().GetString("service")
			message, _ := cmd.Flags().GetString("message")
			sender, _ := cmd.Flags().GetString("sender")
			count, _ := cmd.Flags().GetInt("count")
			intervalMs, _ := cmd.Flags().GetInt("interval-ms")

			ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer cancel()

			node, _, err := newNode(cmd, logger)
			if err != nil {
				return err
			}
			defer node.Close()

			pub, err := node.Publisher(service)
			if err != nil {
				return err
			}
			defer pub.Close()

			if sender == "" {
				sender = node.Name()
			}
			interval := time.Duration(intervalMs) * time.Millisecond

			switch {
			case count > 0:
				for i := 1; i <= count; i++ {
					body := message
					if body == "" {
						body = fmt.Sprintf("message %d", i)
					}
					if err := sendRetrying(ctx, pub, iceoryx2.NewMessage(body, sender)); err != nil {
						return err
					}
					if interval > 0 && i < count {
						select {
						case <-time.After(interval):
						case <-ctx.Done():
							return nil
						}
					}
				}
			case message != "":
				if err := sendRetrying(ctx, pub, iceoryx2.NewMessage(message, sender)); err != nil {
					return err
				}
			default:
				// One message per stdin line.
				sc := bufio.NewScanner(os.Stdin)
				for sc.Scan() {
					if ctx.Err() != nil {
						return nil
					}
					if err := sendRetrying(ctx, pub, iceoryx2.NewMessage(sc.Text(), sender)); err != nil {
						return err
					}
				}
				if err := sc.Err(); err != nil {
					return fmt.Errorf("read stdin: %w", err)
				}
			}

			st := pub.Stats()
			fmt.Printf("sent %d, failed %d\n", st.Sent, st.Failed)
			return nil
		},
	}

	nodeFlags(pubCmd)
	pubCmd.Flags().String("message", "", "Message content (empty with --count sends numbered messages)")
	pubCmd.Flags().String("sender", "", "Sender name carried in the message header (default node name)")
	pubCmd.Flags().Int("count", 0, "Number of messages to send")
	pubCmd.Flags().Int("interval-ms", 0, "Delay between messages in ms")
	return pubCmd
}

// sendRetrying retries loan failures (pool exhausted) with a short backoff
// until ctx is cancelled; any other failure is final.
func sendRetrying(ctx context.Context, pub *iceoryx2.Publisher, m iceoryx2.Message) error {
	for {
		err := pub.Send(m)
		if err == nil {
			return nil
		}
		if !isRetryable(err) {
			return err
		}
		select {
		case <-time.After(5 * time.Millisecond):
		case <-ctx.Done():
			return nil
		}
	}
}

func isRetryable(err error) bool {
	return errors.Is(err, iceoryx2.ErrLoanFailed)
}
