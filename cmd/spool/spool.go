// Package spoolcmder
package spoolcmder

import (
	"github.com/spf13/cobra"

	configcmder "github.com/vivek100/spool/cmd/spool/config"
	decodecmder "github.com/vivek100/spool/cmd/spool/decode"
	servecmder "github.com/vivek100/spool/cmd/spool/serve"
	versioncmder "github.com/vivek100/spool/cmd/version"
)

const spoolLongDesc string = `Spool is a transparent capture relay for LLM streaming responses.

Run the relay using:
  spool serve          Run the capture relay
  spool decode         Decode an SSE stream into JSON records
  spool config         Manage persistent configuration`

const spoolShortDesc string = "Spool - LLM stream capture"

func NewSpoolCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "spool",
		Short: spoolShortDesc,
		Long:  spoolLongDesc,
	}

	// Global flags
	cmd.PersistentFlags().BoolP("debug", "d", false, "Enable debug logging")
	cmd.PersistentFlags().String("config-dir", "", "Override path to .spool/ config directory")

	// Add subcommands
	cmd.AddCommand(servecmder.NewServeCmd())
	cmd.AddCommand(decodecmder.NewDecodeCmd())
	cmd.AddCommand(configcmder.NewConfigCmd())
	cmd.AddCommand(versioncmder.NewVersionCmd())

	return cmd
}
