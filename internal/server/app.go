// Package server assembles the authority: storage, services and the gRPC
// endpoint, and runs them until a shutdown signal arrives.
package server

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/dmitrijs2005/medsync/internal/logging"
	"github.com/dmitrijs2005/medsync/internal/server/config"
	"github.com/dmitrijs2005/medsync/internal/server/repositories/repomanager"
	"github.com/dmitrijs2005/medsync/internal/server/services"

	gs "github.com/dmitrijs2005/medsync/internal/server/grpc"
)

type App struct {
	config    *config.Config
	logger    logging.Logger
	repos     repomanager.RepositoryManager
	authority *services.AuthorityService
}

// openRepositories is a seam so tests avoid a real PostgreSQL.
var openRepositories = func(ctx context.Context, dsn string) (repomanager.RepositoryManager, error) {
	if dsn == "" {
		return repomanager.NewMemoryRepositoryManager(), nil
	}
	return repomanager.NewPostgresRepositoryManager(ctx, dsn)
}

func NewApp(ctx context.Context, c *config.Config, logger logging.Logger) (*App, error) {
	if logger == nil {
		logger = logging.New(c.LogOptions())
	}

	repos, err := openRepositories(ctx, c.DatabaseDSN)
	if err != nil {
		return nil, fmt.Errorf("db init error: %w", err)
	}
	if c.DatabaseDSN == "" {
		logger.Warn(ctx, "no database configured, records are kept in memory")
	}

	var presigner services.Presigner
	s3p, err := services.NewS3Presigner(ctx, c)
	if err != nil {
		_ = repos.Close()
		return nil, fmt.Errorf("object storage init error: %w", err)
	}
	if s3p != nil {
		presigner = s3p
	}

	authority := services.NewAuthorityService(repos, c, presigner, logger)
	if c.ReferenceFile != "" {
		if err := authority.SeedReference(ctx, c.ReferenceFile); err != nil {
			_ = repos.Close()
			return nil, err
		}
	}

	return &App{config: c, logger: logger, repos: repos, authority: authority}, nil
}

func (app *App) initSignalHandler(cancelFunc context.CancelFunc) {
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)

	go func() {
		<-sigs
		cancelFunc()
	}()
}

// Run serves until ctx is done or a termination signal arrives.
func (app *App) Run(ctx context.Context) error {
	ctx, cancelFunc := context.WithCancel(ctx)
	defer cancelFunc()

	app.logger.Info(ctx, "Starting app...")
	app.initSignalHandler(cancelFunc)

	var (
		wg     sync.WaitGroup
		runErr error
	)

	wg.Add(1)
	go func() {
		defer wg.Done()
		s := gs.NewGRPCServer(app.config.EndpointAddrGRPC, app.logger, app.authority, app.config.SecretKey)
		if err := s.Run(ctx); err != nil {
			app.logger.Error(ctx, err.Error())
			runErr = err
			cancelFunc()
		}
	}()

	wg.Wait()

	if err := app.repos.Close(); err != nil {
		app.logger.Error(ctx, "failed to close database", "error", err)
	}
	app.logger.Info(ctx, "App stopped")
	return runErr
}
