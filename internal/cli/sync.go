package cli

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/rcliao/polymath/internal/broadcast"
	"github.com/rcliao/polymath/internal/connectivity"
	"github.com/rcliao/polymath/internal/contentcache"
	"github.com/rcliao/polymath/internal/model"
	"github.com/rcliao/polymath/internal/syncer"
)

func init() {
	cmd := &cobra.Command{
		Use:   "sync",
		Short: "Run one sync pass against the remote API",
		Run:   runSync,
	}

	RootCmd.AddCommand(cmd)
}

func (a *app) cacheManager() *contentcache.Manager {
	var fetcher contentcache.Fetcher
	if a.api != nil {
		fetcher = a.api
	}
	return contentcache.New(a.store, fetcher, contentcache.Options{
		Events:      a.bus,
		Logger:      a.logger,
		Concurrency: a.cfg.Sync.MediaConcurrency,
	})
}

func (a *app) orchestrator(visible connectivity.Visibility) *syncer.Orchestrator {
	return syncer.New(a.store, a.api, a.cacheManager(), syncer.Options{
		Online:     a.online,
		Visible:    visible,
		Events:     a.bus,
		Captures:   a.captureQueue(),
		Dashboards: a.cfg.Sync.Dashboards,
		Logger:     a.logger,
	})
}

func runSync(cmd *cobra.Command, args []string) {
	a := newApp(cmd.Context())
	defer a.close()
	a.requireAPI()

	events, unsubscribe := a.bus.Subscribe(64)
	report := a.orchestrator(nil).Sync(cmd.Context())
	unsubscribe()

	if report.Skipped == "" {
		a.evictStale(cmd.Context())
		a.notifyPeers(cmd.Context(), events)
	}

	if outputFormat() == "json" {
		printJSON(report)
		return
	}
	if report.Skipped != "" {
		fmt.Printf("sync skipped: %s\n", report.Skipped)
		return
	}
	rows := make([][]string, 0, len(report.Steps))
	for _, st := range report.Steps {
		status := "ok"
		if st.Error != "" {
			status = st.Error
		}
		rows = append(rows, []string{
			st.Name, strconv.Itoa(st.Fetched), strconv.Itoa(st.Pruned),
			strconv.Itoa(st.Cached), strconv.Itoa(st.Partial), status,
		})
	}
	fmt.Println(renderTable(
		[]string{"Step", "Fetched", "Pruned", "Cached", "Partial", "Status"},
		rows,
		[]columnAlignment{alignLeft, alignRight, alignRight, alignRight, alignRight, alignLeft},
	))
	fmt.Printf("run %s finished in %s\n", report.RunID, report.Duration.Round(time.Millisecond))
}

// evictStale clears offline articles not refreshed within sync.evict_after_days.
func (a *app) evictStale(ctx context.Context) {
	age := a.cfg.EvictAfter()
	if age <= 0 {
		return
	}
	if _, err := a.cacheManager().EvictStale(ctx, model.KindArticle, time.Now().Add(-age)); err != nil {
		a.logger.Warn("evict stale content", "error", err)
	}
}

// notifyPeers forwards the events this command published to every configured
// broadcast peer. Delivery is best effort.
func (a *app) notifyPeers(ctx context.Context, events <-chan broadcast.Event) {
	var pending []broadcast.Event
	for ev := range events {
		pending = append(pending, ev)
	}
	if len(pending) == 0 {
		return
	}
	for _, peer := range a.cfg.Broadcast.Peers {
		dialCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
		relay, err := broadcast.Dial(dialCtx, peer, a.bus, a.logger)
		if err != nil {
			cancel()
			a.logger.Debug("broadcast peer unreachable", "peer", peer, "error", err)
			continue
		}
		for _, ev := range pending {
			if err := relay.Send(dialCtx, ev); err != nil {
				a.logger.Debug("broadcast send failed", "peer", peer, "error", err)
				break
			}
		}
		relay.Close()
		cancel()
	}
}
