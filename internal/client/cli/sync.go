package cli

import (
	"context"
	"os/signal"
	"syscall"
	"time"

	"github.com/dmitrijs2005/medsync/internal/client/client"
	"github.com/dmitrijs2005/medsync/internal/client/metrics"
	"github.com/dmitrijs2005/medsync/internal/client/services"
	"github.com/dmitrijs2005/medsync/internal/client/status"
	"github.com/dmitrijs2005/medsync/internal/client/store"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

func (a *App) synchronizer(s *store.Store, r client.Remote, opts ...services.SyncOption) *services.Synchronizer {
	base := []services.SyncOption{
		services.WithRetryPolicy(a.cfg.RetryPolicy()),
		services.WithWorkers(a.cfg.Workers),
		services.WithSyncLogger(a.logger),
	}
	return services.NewSynchronizer(s, r, append(base, opts...)...)
}

func (a *App) syncCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "sync",
		Short: "Run one sync pass: replay the queue, then pull server changes",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			return a.withStore(ctx, func(s *store.Store) error {
				r, err := a.dial(ctx, s)
				if err != nil {
					return err
				}
				defer r.Close()

				rep, err := a.synchronizer(s, r).SyncOnce(ctx)
				a.printf("applied %d, conflicts %d, retried %d, dead %d, rejected %d, pulled %d\n",
					rep.Applied, rep.Conflicts, rep.Retried, rep.DeadLettered, rep.Rejected, rep.Pulled)
				return err
			})
		},
	}
}

func (a *App) daemonCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "daemon",
		Short: "Sync in the background and serve status, conflicts and metrics",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)
			defer stop()

			return a.withStore(ctx, func(s *store.Store) error {
				r, err := a.dial(ctx, s)
				if err != nil {
					return err
				}
				defer r.Close()
				return a.runDaemon(ctx, s, r)
			})
		},
	}
}

// runDaemon blocks until ctx is done or a component fails.
func (a *App) runDaemon(ctx context.Context, s *store.Store, r client.Remote) error {
	m := metrics.New()

	var syncer *services.Synchronizer
	statusSvc := services.NewStatusService(s, func() bool { return syncer.Online() })
	conflictSvc := services.NewConflictService(s, nil, a.logger)

	opts := []services.SyncOption{services.WithObserver(m)}
	var srv *status.Server
	if a.cfg.StatusAddr != "" {
		srv = status.NewServer(a.cfg.StatusAddr, statusSvc, conflictSvc, m, a.logger)
		opts = append(opts, services.WithObserver(srv))
	}
	syncer = a.synchronizer(s, r, opts...)

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return syncer.Run(ctx, a.cfg.SyncInterval, a.cfg.OnlineCheckInterval)
	})
	if srv != nil {
		g.Go(func() error { return srv.Run(ctx) })
	}
	return g.Wait()
}

func (a *App) statusCommand() *cobra.Command {
	var offline bool
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show pending changes, conflicts, last sync time and connectivity",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			return a.withStore(ctx, func(s *store.Store) error {
				online := false
				if !offline {
					online = a.ping(ctx, s)
				}
				snap, err := services.NewStatusService(s, func() bool { return online }).Snapshot(ctx)
				if err != nil {
					return err
				}
				return a.printJSON(snap)
			})
		},
	}
	cmd.Flags().BoolVar(&offline, "offline", false, "do not contact the server")
	return cmd
}

func (a *App) ping(ctx context.Context, s *store.Store) bool {
	r, err := a.dial(ctx, s)
	if err != nil {
		return false
	}
	defer r.Close()
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	return r.Ping(ctx) == nil
}
