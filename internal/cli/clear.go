package cli

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/rcliao/polymath/internal/model"
)

func init() {
	cmd := &cobra.Command{
		Use:   "clear [article-id]",
		Short: "Remove offline content and images",
		Long:  "Remove the offline copy of one article, or of every article not synced within --older-than.",
		Args:  cobra.MaximumNArgs(1),
		Run:   runClear,
	}

	cmd.Flags().Duration("older-than", 0, "Clear every article last synced before this age (e.g. 720h)")

	RootCmd.AddCommand(cmd)
}

func runClear(cmd *cobra.Command, args []string) {
	olderThan, _ := cmd.Flags().GetDuration("older-than")
	if len(args) == 0 && olderThan <= 0 {
		exitErr("clear", fmt.Errorf("pass an article id or --older-than"))
	}

	ctx := cmd.Context()
	offline = true
	a := newApp(ctx)
	defer a.close()
	mgr := a.cacheManager()

	var cleared []string
	if len(args) == 1 {
		if err := mgr.Clear(ctx, model.KindArticle, args[0]); err != nil {
			exitErr("clear", err)
		}
		cleared = append(cleared, args[0])
	} else {
		ids, err := mgr.EvictStale(ctx, model.KindArticle, time.Now().Add(-olderThan))
		if err != nil {
			exitErr("clear", err)
		}
		cleared = ids
	}

	if outputFormat() == "json" {
		printJSON(map[string]any{"ok": true, "cleared": cleared})
		return
	}
	fmt.Printf("cleared %d article(s)\n", len(cleared))
}
