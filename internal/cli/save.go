package cli

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/rcliao/polymath/internal/merge"
	"github.com/rcliao/polymath/internal/model"
	"github.com/rcliao/polymath/internal/store"
)

func init() {
	cmd := &cobra.Command{
		Use:   "save <article-id>",
		Short: "Download an article and its images for offline reading",
		Args:  cobra.ExactArgs(1),
		Run:   runSave,
	}

	RootCmd.AddCommand(cmd)
}

func runSave(cmd *cobra.Command, args []string) {
	ctx := cmd.Context()
	id := args[0]

	a := newApp(ctx)
	defer a.close()
	a.requireAPI()
	if !a.online.Online() {
		exitErr("save", errors.New("remote api is unreachable"))
	}

	detail, err := a.api.Article(ctx, id)
	if err != nil {
		exitErr("fetch article", err)
	}

	rec := model.CachedResource{ID: id, Kind: model.KindArticle}
	cached, err := a.store.GetResource(ctx, model.KindArticle, id)
	switch {
	case err == nil:
		rec = *cached
	case !errors.Is(err, store.ErrNotFound):
		exitErr("read cache", err)
	}
	rec.Payload, err = merge.Payloads(rec.Payload, detail.Article)
	if err != nil {
		exitErr("merge article", err)
	}
	if status := model.PayloadString(rec.Payload, "status"); status != "" {
		rec.Status = status
	}

	res, err := a.cacheManager().Download(ctx, rec)
	if err != nil {
		exitErr("save", err)
	}

	if outputFormat() == "json" {
		printJSON(res)
		return
	}
	switch {
	case !res.ContentCached:
		fmt.Printf("%s has no content yet; metadata saved\n", id)
	case res.FullyCached:
		fmt.Printf("%s saved with %d images (%d downloaded)\n", id, res.MediaRefs, res.Fetched)
	default:
		fmt.Printf("%s text saved; %d of %d images failed\n", id, len(res.Failed), res.MediaRefs)
		for _, u := range res.Failed {
			fmt.Printf("  %s\n", u)
		}
	}
}
