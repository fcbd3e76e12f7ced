package config

import "github.com/spf13/cobra"

// BindFlags wires the config fields that make sense to override per-run.
// Everything else is edited through the settings API or the JSON file.
func (c *Config) BindFlags(cmd *cobra.Command) {
	flags := cmd.Flags()

	flags.StringVar(&c.ConfigPath, "config", c.ConfigPath, "Path to the JSON config file")
	flags.StringVar(&c.Backend.URL, "backend-url", c.Backend.URL, "WebSocket URL of the capture backend")
	flags.BoolVar(&c.Backend.AutoConnect, "auto-connect", c.Backend.AutoConnect, "Try the capture backend at startup instead of waiting for the UI")
	flags.IntVar(&c.Capture.MaxPackets, "max-packets", c.Capture.MaxPackets, "Number of packets retained for the dashboard")
	flags.IntVar(&c.WebServer.Port, "port", c.WebServer.Port, "Dashboard HTTP port (0 disables the server)")
	flags.StringVar(&c.Alerts.NatsURL, "nats-url", c.Alerts.NatsURL, "NATS server for anomaly alerts (empty disables export)")
}
