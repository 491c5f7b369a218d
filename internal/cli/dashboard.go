package cli

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/rcliao/polymath/internal/store"
)

func init() {
	cmd := &cobra.Command{
		Use:   "dashboard [name]",
		Short: "Show the last synced dashboard snapshot",
		Args:  cobra.MaximumNArgs(1),
		Run:   runDashboard,
	}

	RootCmd.AddCommand(cmd)
}

func runDashboard(cmd *cobra.Command, args []string) {
	name := "overview"
	if len(args) == 1 {
		name = args[0]
	}

	s, err := openStore()
	if err != nil {
		exitErr("open store", err)
	}
	defer s.Close()

	snap, err := s.GetSnapshot(cmd.Context(), name)
	if errors.Is(err, store.ErrNotFound) {
		exitErr("dashboard", fmt.Errorf("no snapshot named %q; run sync first", name))
	}
	if err != nil {
		exitErr("dashboard", err)
	}
	printJSON(snap)
}
