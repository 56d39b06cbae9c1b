package client

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/youndong/iceoryx2/internal/config"
	"github.com/youndong/iceoryx2/internal/transport/shm"
)

// NewServicesCommand constructs the `services` command group.
func NewServicesCommand() *cobra.Command {
	servicesCmd := &cobra.Command{Use: "services", Short: "Inspect and clean shared memory services"}
	servicesCmd.AddCommand(newServicesListCommand(), newServicesCleanCommand())
	return servicesCmd
}

func newServicesListCommand() *cobra.Command {
	listCmd := &cobra.Command{
		Use:   "list",
		Short: "List channel segments in the shared memory directory",
		RunE: func(cmd *cobra.Command, _ []string) error {
			dir, err := shmDir(cmd)
			if err != nil {
				return err
			}
			infos, err := shm.List(dir)
			if err != nil {
				return err
			}
			if len(infos) == 0 {
				fmt.Printf("no services under %s\n", dir)
				return nil
			}
			fmt.Printf("%-32s %-20s %8s %6s\n", "SERVICE", "PAYLOAD", "SIZE", "POOL")
			for _, info := range infos {
				fmt.Printf("%-32s %-20s %8d %6d\n", info.Name, info.PayloadType, info.PayloadSize, info.PoolCapacity)
			}
			return nil
		},
	}
	listCmd.Flags().String("config", os.Getenv("IOX2_CONFIG"), "Path to a YAML config file")
	return listCmd
}

func newServicesCleanCommand() *cobra.Command {
	cleanCmd := &cobra.Command{
		Use:   "clean",
		Short: "Remove a service's segment file",
		Long:  "Clean removes the segment a crashed process left behind. Endpoints still attached elsewhere keep their mappings; the next open recreates the service.",
		RunE: func(cmd *cobra.Command, _ []string) error {
			service, _ := cmd.Flags().GetString("service")
			all, _ := cmd.Flags().GetBool("all")
			if service == "" && !all {
				return fmt.Errorf("need --service or --all")
			}
			dir, err := shmDir(cmd)
			if err != nil {
				return err
			}

			if service != "" {
				if err := shm.Remove(dir, service); err != nil {
					return err
				}
				fmt.Printf("removed %s\n", service)
				return nil
			}

			infos, err := shm.List(dir)
			if err != nil {
				return err
			}
			for _, info := range infos {
				if err := shm.Remove(dir, info.Name); err != nil {
					return err
				}
				fmt.Printf("removed %s\n", info.Name)
			}
			return nil
		},
	}
	cleanCmd.Flags().String("config", os.Getenv("IOX2_CONFIG"), "Path to a YAML config file")
	cleanCmd.Flags().String("service", "", "Service to remove")
	cleanCmd.Flags().Bool("all", false, "Remove every segment in the directory")
	return cleanCmd
}

func shmDir(cmd *cobra.Command) (string, error) {
	cfgPath, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return "", err
	}
	return cfg.ShmDir, nil
}
