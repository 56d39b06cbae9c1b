package client

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	iceoryx2 "github.com/youndong/iceoryx2"
	"github.com/youndong/iceoryx2/internal/config"
	"github.com/youndong/iceoryx2/pkg/log"
)

// nodeFlags registers the flags shared by publish and subscribe.
func nodeFlags(cmd *cobra.Command) {
	cmd.Flags().String("service", "", "Service name (required)")
	cmd.Flags().String("config", os.Getenv("IOX2_CONFIG"), "Path to a YAML config file")
	cmd.Flags().Bool("ipc", false, "Use the IPC service type (shared memory) instead of Local")
	cmd.Flags().String("node", "", "Node name (default iox2-<pid>)")
	_ = cmd.MarkFlagRequired("service")
}

// newNode builds a node from the command's flags and config.
func newNode(cmd *cobra.Command, logger log.Logger) (*iceoryx2.Node, *config.Config, error) {
	cfgPath, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return nil, nil, err
	}

	name, _ := cmd.Flags().GetString("node")
	if name == "" {
		name = fmt.Sprintf("iox2-%d", os.Getpid())
	}

	stype := iceoryx2.ServiceTypeLocal
	if ipc, _ := cmd.Flags().GetBool("ipc"); ipc {
		stype = iceoryx2.ServiceTypeIPC
	}

	node, err := iceoryx2.NewNode(name,
		iceoryx2.WithServiceType(stype),
		iceoryx2.WithLogger(logger),
		iceoryx2.WithShmDir(cfg.ShmDir),
		iceoryx2.WithPoolCapacity(cfg.PoolCapacity),
		iceoryx2.WithWaitTimeout(cfg.WaitTimeout()),
		iceoryx2.WithStreamBuffer(cfg.StreamBuffer),
	)
	if err != nil {
		return nil, nil, err
	}
	return node, cfg, nil
}
