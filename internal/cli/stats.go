package cli

import (
	"fmt"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/rcliao/polymath/internal/model"
	"github.com/rcliao/polymath/internal/store"
)

func init() {
	cmd := &cobra.Command{
		Use:     "status",
		Aliases: []string{"stats"},
		Short:   "Show cache statistics and last sync times",
		Run:     runStatus,
	}

	RootCmd.AddCommand(cmd)
}

type statusReport struct {
	*store.Stats
	LastSynced map[string]time.Time `json:"last_synced"`
}

func runStatus(cmd *cobra.Command, args []string) {
	s, err := openStore()
	if err != nil {
		exitErr("open store", err)
	}
	defer s.Close()

	stats, err := s.Stats(cmd.Context())
	if err != nil {
		exitErr("stats", err)
	}
	report := statusReport{Stats: stats, LastSynced: map[string]time.Time{}}
	for kind := range model.ValidKinds {
		t, err := s.SyncTime(cmd.Context(), string(kind))
		if err != nil {
			exitErr("sync time", err)
		}
		report.LastSynced[string(kind)] = t
	}

	if outputFormat() == "json" {
		printJSON(report)
		return
	}

	rows := make([][]string, 0, len(stats.Kinds))
	for _, k := range stats.Kinds {
		rows = append(rows, []string{
			k.Kind, strconv.Itoa(k.Count), strconv.Itoa(k.Offline), strconv.Itoa(k.FullyCached),
			formatAge(report.LastSynced[k.Kind]),
		})
	}
	fmt.Println(renderTable(
		[]string{"Kind", "Cached", "Offline", "Fully cached", "Last sync"},
		rows,
		[]columnAlignment{alignLeft, alignRight, alignRight, alignRight, alignLeft},
	))
	fmt.Printf("db %s (schema v%d, %s)\n", stats.DBPath, stats.SchemaVersion, humanBytes(stats.DBSizeBytes))
	fmt.Printf("media %d files, %s\n", stats.MediaCount, humanBytes(stats.MediaBytes))
	fmt.Printf("pending captures %d\n", stats.PendingCaptures)
}

func humanBytes(n int64) string {
	const unit = 1024
	if n < unit {
		return fmt.Sprintf("%d B", n)
	}
	div, exp := int64(unit), 0
	for m := n / unit; m >= unit; m /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %ciB", float64(n)/float64(div), "KMGTPE"[exp])
}
