package cli

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/dmitrijs2005/medsync/internal/client/client"
	"github.com/dmitrijs2005/medsync/internal/client/config"
	"github.com/dmitrijs2005/medsync/internal/client/store"
	"github.com/dmitrijs2005/medsync/internal/logging"
	"github.com/spf13/cobra"
)

// Deps are the seams commands reach the outside world through.
type Deps struct {
	OpenStore func(ctx context.Context, cfg *config.Config, l logging.Logger) (*store.Store, error)
	Dial      func(ctx context.Context, cfg *config.Config, deviceID string) (client.Remote, error)
	Logger    func(cfg *config.Config) logging.Logger
}

func DefaultDeps() Deps {
	return Deps{
		OpenStore: func(ctx context.Context, cfg *config.Config, l logging.Logger) (*store.Store, error) {
			return store.Open(ctx, cfg.DatabasePath, store.WithLogger(l))
		},
		Dial: func(_ context.Context, cfg *config.Config, deviceID string) (client.Remote, error) {
			return client.NewGRPCClient(cfg.ServerEndpointAddr, client.Credentials{DeviceID: deviceID, Secret: cfg.DeviceSecret})
		},
		Logger: func(cfg *config.Config) logging.Logger {
			return logging.New(cfg.LogOptions())
		},
	}
}

// App carries state shared by the commands of one invocation.
type App struct {
	deps   Deps
	cfg    *config.Config
	logger logging.Logger
	out    io.Writer
	errOut io.Writer
	in     *bufio.Reader
}

// NewRootCommand builds the medsync command tree.
func NewRootCommand(deps Deps) *cobra.Command {
	a := &App{deps: deps}

	root := &cobra.Command{
		Use:           "medsync",
		Short:         "Offline-first hospital records client",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(cmd.Flags())
			if err != nil {
				return err
			}
			a.cfg = cfg
			a.logger = a.deps.Logger(cfg)
			a.out = cmd.OutOrStdout()
			a.errOut = cmd.ErrOrStderr()
			a.in = bufio.NewReader(cmd.InOrStdin())
			return nil
		},
	}
	config.RegisterFlags(root.PersistentFlags())

	root.AddCommand(
		a.patientCommand(),
		a.entityCommand(),
		a.referenceCommand(),
		a.queueCommand(),
		a.conflictsCommand(),
		a.syncCommand(),
		a.daemonCommand(),
		a.statusCommand(),
		a.backupCommand(),
	)
	return root
}

// withStore opens the local database for the duration of fn.
func (a *App) withStore(ctx context.Context, fn func(s *store.Store) error) error {
	s, err := a.deps.OpenStore(ctx, a.cfg, a.logger)
	if err != nil {
		return err
	}
	defer func() {
		if err := s.Close(); err != nil {
			a.logger.Warn(ctx, "close store", "error", err)
		}
	}()
	return fn(s)
}

// dial connects to the server as this device.
func (a *App) dial(ctx context.Context, s *store.Store) (client.Remote, error) {
	deviceID := a.cfg.DeviceID
	if deviceID == "" {
		id, err := s.DeviceID(ctx)
		if err != nil {
			return nil, err
		}
		deviceID = id
	}
	return a.deps.Dial(ctx, a.cfg, deviceID)
}

const timeLayout = time.RFC3339

func (a *App) printJSON(v any) error {
	enc := json.NewEncoder(a.out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func (a *App) printf(format string, args ...any) {
	fmt.Fprintf(a.out, format, args...)
}
