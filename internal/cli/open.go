package cli

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/rcliao/polymath/internal/model"
	"github.com/rcliao/polymath/internal/reader"
)

func init() {
	cmd := &cobra.Command{
		Use:   "open <id>",
		Short: "Open a resource from cache, revalidating in the background",
		Args:  cobra.ExactArgs(1),
		Run:   runOpen,
	}

	cmd.Flags().StringP("kind", "k", string(model.KindArticle), "Resource kind: article, project, memory, list, connection")
	cmd.Flags().Bool("wait", true, "Wait for background revalidation and print the fresh copy")

	RootCmd.AddCommand(cmd)
}

func parseKind(s string) model.Kind {
	k := model.Kind(s)
	if !model.ValidKinds[k] {
		exitErr("kind", fmt.Errorf("unknown kind %q", s))
	}
	return k
}

func runOpen(cmd *cobra.Command, args []string) {
	kindStr, _ := cmd.Flags().GetString("kind")
	wait, _ := cmd.Flags().GetBool("wait")
	kind := parseKind(kindStr)

	a := newApp(cmd.Context())
	defer a.close()

	var fetcher reader.Fetcher
	if a.api != nil {
		fetcher = a.api
	}
	r := reader.New(a.store, fetcher, a.online, a.logger)

	var fresh *model.CachedResource
	opened, err := r.Open(cmd.Context(), kind, args[0], func(res model.CachedResource) {
		fresh = &res
	})
	if errors.Is(err, reader.ErrUnavailableOffline) {
		exitErr("open", fmt.Errorf("%s is not cached and the api is unreachable", args[0]))
	}
	if err != nil {
		exitErr("open", err)
	}
	if wait {
		r.Wait()
	}

	result := opened.Resource
	if fresh != nil {
		result = *fresh
	}
	if outputFormat() == "json" {
		printJSON(map[string]any{
			"source":   opened.Source,
			"updated":  fresh != nil,
			"resource": result,
		})
		return
	}
	fmt.Printf("%s  [%s, %s]\n", result.Title(), opened.Source, offlineLabel(result))
	if content := result.Content(); content != "" {
		fmt.Println()
		fmt.Println(content)
	}
}

func offlineLabel(r model.CachedResource) string {
	switch {
	case r.FullyCached:
		return "fully cached"
	case r.OfflineAvailable:
		return "text only"
	default:
		return "metadata only"
	}
}
