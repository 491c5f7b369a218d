package cli

import (
	"encoding/json"
	"os"

	"github.com/spf13/cobra"

	"github.com/rcliao/polymath/internal/model"
)

func init() {
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Dump cached resources as JSON",
		Long:  "Dump cached resources as a JSON array, the format read by import.",
		Run:   runExport,
	}

	cmd.Flags().StringP("kind", "k", "", "Only this kind")
	cmd.Flags().Bool("offline-only", false, "Only resources readable offline")
	cmd.Flags().StringP("output", "o", "", "Write to a file instead of stdout")

	RootCmd.AddCommand(cmd)
}

func runExport(cmd *cobra.Command, args []string) {
	kindStr, _ := cmd.Flags().GetString("kind")
	offlineOnly, _ := cmd.Flags().GetBool("offline-only")
	output, _ := cmd.Flags().GetString("output")

	var kind model.Kind
	if kindStr != "" {
		kind = parseKind(kindStr)
	}

	s, err := openStore()
	if err != nil {
		exitErr("open store", err)
	}
	defer s.Close()

	all, err := s.ExportAll(cmd.Context(), kind)
	if err != nil {
		exitErr("export", err)
	}
	resources := make([]model.CachedResource, 0, len(all))
	for _, r := range all {
		if offlineOnly && !r.OfflineAvailable {
			continue
		}
		resources = append(resources, r)
	}

	out := os.Stdout
	if output != "" {
		f, err := os.Create(output)
		if err != nil {
			exitErr("create output", err)
		}
		defer f.Close()
		out = f
	}
	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	if err := enc.Encode(resources); err != nil {
		exitErr("write export", err)
	}
}
