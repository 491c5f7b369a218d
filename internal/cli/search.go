package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/rcliao/polymath/internal/store"
)

func init() {
	cmd := &cobra.Command{
		Use:   "search [query]",
		Short: "Search cached resources by keyword",
		Long:  "Search cached payloads for matching text. Works offline.",
		Args:  cobra.MinimumNArgs(1),
		Run:   runSearch,
	}

	cmd.Flags().StringP("kind", "k", "", "Filter by kind")
	cmd.Flags().Bool("offline-only", false, "Only resources readable offline")
	cmd.Flags().IntP("limit", "l", 20, "Max results")

	RootCmd.AddCommand(cmd)
}

func runSearch(cmd *cobra.Command, args []string) {
	kind, _ := cmd.Flags().GetString("kind")
	offlineOnly, _ := cmd.Flags().GetBool("offline-only")
	limit, _ := cmd.Flags().GetInt("limit")
	query := strings.Join(args, " ")

	params := store.SearchParams{Query: query, OfflineOnly: offlineOnly, Limit: limit}
	if kind != "" {
		params.Kind = parseKind(kind)
	}

	s, err := openStore()
	if err != nil {
		exitErr("open store", err)
	}
	defer s.Close()

	results, err := s.Search(cmd.Context(), params)
	if err != nil {
		exitErr("search", err)
	}

	if outputFormat() == "json" {
		if len(results) == 0 {
			fmt.Println("[]")
			return
		}
		printJSON(results)
		return
	}
	rows := make([][]string, 0, len(results))
	for _, r := range results {
		rows = append(rows, []string{string(r.Kind), r.ID, truncate(r.Title(), 60), offlineLabel(r)})
	}
	fmt.Println(renderTable([]string{"Kind", "ID", "Title", "Offline"}, rows, nil))
}
