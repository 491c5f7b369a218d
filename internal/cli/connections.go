package cli

import (
	"github.com/spf13/cobra"

	"github.com/rcliao/polymath/internal/model"
)

func init() {
	cmd := &cobra.Command{
		Use:   "connections <resource-id>",
		Short: "List cached connections for a resource",
		Args:  cobra.ExactArgs(1),
		Run:   runConnections,
	}

	RootCmd.AddCommand(cmd)
}

func runConnections(cmd *cobra.Command, args []string) {
	s, err := openStore()
	if err != nil {
		exitErr("open store", err)
	}
	defer s.Close()

	edges, err := s.ConnectionsFor(cmd.Context(), args[0])
	if err != nil {
		exitErr("connections", err)
	}
	if edges == nil {
		edges = []model.CachedResource{}
	}
	printJSON(edges)
}
