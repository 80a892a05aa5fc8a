package main

import (
	"github.com/danmuck/syndesi/internal/node"
	"github.com/spf13/cobra"
)

type deviceFlags struct {
	listen  string
	serial  string
	kind    string
	admin   string
	capture string
}

func newDeviceCmd(root *rootFlags) *cobra.Command {
	flags := &deviceFlags{}
	cmd := &cobra.Command{
		Use:   "device",
		Short: "Serve as a device node",
		Long: `Run a device node: answer commands (discover, registers, SPI, I2C) and
echo raw payloads over TCP and, optionally, a serial line.`,
		Example: `  sdctl device --listen :2608 --admin 127.0.0.1:9260
  sdctl device --config device.toml --serial /dev/ttyS0 --kind rs485`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadNodeConfig(root, "device")
			if err != nil {
				return err
			}
			fl := cmd.Flags()
			if fl.Changed("listen") {
				cfg.Node.Listen = flags.listen
			}
			if fl.Changed("serial") {
				cfg.Serial.Device = flags.serial
			}
			if fl.Changed("kind") {
				cfg.Serial.Kind = flags.kind
			}
			if fl.Changed("admin") {
				cfg.Admin.Addr = flags.admin
			}
			if fl.Changed("capture") {
				cfg.Capture.Path = flags.capture
			}
			svc, err := node.NewService(cfg)
			if err != nil {
				return err
			}
			return svc.Run()
		},
	}
	cmd.Flags().StringVar(&flags.listen, "listen", "", "TCP listen address (default :<network.port>)")
	cmd.Flags().StringVar(&flags.serial, "serial", "", "Serial device path")
	cmd.Flags().StringVar(&flags.kind, "kind", "uart", "Serial line kind (uart|rs485)")
	cmd.Flags().StringVar(&flags.admin, "admin", "", "Admin HTTP listen address")
	cmd.Flags().StringVar(&flags.capture, "capture", "", "Write every frame to this pcap file")
	return cmd
}
