package cli

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/rcliao/polymath/internal/broadcast"
	"github.com/rcliao/polymath/internal/connectivity"
)

func init() {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Keep the cache fresh: periodic sync plus the broadcast hub",
		Long:  "Runs periodic sync, probes connectivity, serves the broadcast hub when broadcast.listen is set and relays events to configured peers. Send SIGUSR1 to pause periodic sync and SIGUSR2 to resume.",
		Run:   runServe,
	}

	cmd.Flags().Duration("interval", 0, "Override sync.interval_seconds")

	RootCmd.AddCommand(cmd)
}

func runServe(cmd *cobra.Command, args []string) {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a := newApp(ctx)
	defer a.close()
	a.requireAPI()

	interval := a.cfg.SyncInterval()
	if override, _ := cmd.Flags().GetDuration("interval"); override > 0 {
		interval = override
	}

	if !offline {
		go a.prober().Run(ctx)
	}

	if a.cfg.Broadcast.Listen != "" {
		hub := broadcast.NewHub(a.bus, a.logger)
		if err := hub.Start(a.cfg.Broadcast.Listen); err != nil {
			exitErr("start broadcast hub", err)
		}
		defer hub.Stop()
	}
	for _, peer := range a.cfg.Broadcast.Peers {
		go a.relayPeer(ctx, peer)
	}
	go a.logPeerEvents(ctx)

	visible := connectivity.NewFlag(true)
	go watchVisibility(ctx, visible, a)

	orch := a.orchestrator(visible)
	orch.Sync(ctx)
	a.evictStale(ctx)
	if a.cfg.Sync.Periodic {
		orch.Start(ctx, interval)
		defer orch.Stop()
	}

	<-ctx.Done()
	a.logger.Info("shutting down")
}

// relayPeer keeps a relay to peer connected, redialing with backoff.
func (a *app) relayPeer(ctx context.Context, peer string) {
	backoff := time.Second
	for ctx.Err() == nil {
		relay, err := broadcast.Dial(ctx, peer, a.bus, a.logger)
		if err != nil {
			a.logger.Debug("broadcast peer unreachable", "peer", peer, "error", err)
		} else {
			backoff = time.Second
			relay.Run(ctx)
		}
		select {
		case <-ctx.Done():
			return
		case <-time.After(backoff):
		}
		if backoff < time.Minute {
			backoff *= 2
		}
	}
}

// logPeerEvents reports sync passes completed by other processes.
func (a *app) logPeerEvents(ctx context.Context) {
	events, unsubscribe := a.bus.Subscribe(16)
	defer unsubscribe()
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-events:
			if !ok {
				return
			}
			if ev.Origin != a.bus.Origin() && ev.Type == broadcast.EventSyncComplete {
				a.logger.Info("peer finished a sync", "origin", ev.Origin, "run", ev.RunID)
			}
		}
	}
}

func watchVisibility(ctx context.Context, visible *connectivity.Flag, a *app) {
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGUSR1, syscall.SIGUSR2)
	defer signal.Stop(sigs)
	for {
		select {
		case <-ctx.Done():
			return
		case sig := <-sigs:
			if visible.Set(sig == syscall.SIGUSR2) {
				a.logger.Info("periodic sync visibility changed", "visible", visible.Visible())
			}
		}
	}
}
