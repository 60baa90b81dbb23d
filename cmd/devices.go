package cmd

import (
	"os"

	"github.com/spf13/cobra"
	"github.com/srun-soft/websniffer/internal/ethernet"
)

var devicesCmd = &cobra.Command{
	Use:   "devices",
	Short: "List capture devices",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return ethernet.All(os.Stdout)
	},
}
