package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/rcliao/polymath/internal/merge"
	"github.com/rcliao/polymath/internal/model"
	"github.com/rcliao/polymath/internal/store"
)

func init() {
	cmd := &cobra.Command{
		Use:   "import [file]",
		Short: "Load cached resources from an export",
		Long:  "Load cached resources from a JSON export (file or stdin). With --merge, imported payloads are merged over cached copies instead of replacing them.",
		Args:  cobra.MaximumNArgs(1),
		Run:   runImport,
	}

	cmd.Flags().Bool("merge", false, "Merge over cached payloads, keeping cached fields the import leaves empty")

	RootCmd.AddCommand(cmd)
}

func runImport(cmd *cobra.Command, args []string) {
	mergeMode, _ := cmd.Flags().GetBool("merge")

	var src io.Reader = os.Stdin
	if len(args) == 1 {
		f, err := os.Open(args[0])
		if err != nil {
			exitErr("open import", err)
		}
		defer f.Close()
		src = f
	}

	var incoming []model.CachedResource
	if err := json.NewDecoder(src).Decode(&incoming); err != nil {
		exitErr("parse export", err)
	}

	s, err := openStore()
	if err != nil {
		exitErr("open store", err)
	}
	defer s.Close()

	ctx := cmd.Context()
	accepted := make([]model.CachedResource, 0, len(incoming))
	skipped := 0
	for _, r := range incoming {
		if r.ID == "" || !model.ValidKinds[r.Kind] {
			skipped++
			continue
		}
		if mergeMode {
			cached, err := s.GetResource(ctx, r.Kind, r.ID)
			switch {
			case err == nil:
				payload, err := merge.Payloads(cached.Payload, r.Payload)
				if err != nil {
					exitErr("merge "+r.ID, err)
				}
				r.Payload = payload
			case !errors.Is(err, store.ErrNotFound):
				exitErr("read cache", err)
			}
		}
		accepted = append(accepted, r)
	}

	imported, err := s.Import(ctx, accepted)
	if err != nil {
		exitErr("import", err)
	}

	if outputFormat() == "json" {
		printJSON(map[string]any{"ok": true, "imported": imported, "skipped": skipped})
		return
	}
	fmt.Printf("imported %d resource(s), skipped %d\n", imported, skipped)
}
