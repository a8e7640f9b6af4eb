package app

import (
	"context"
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"golang.org/x/sync/errgroup"

	s3blob "github.com/outcomelab/marketd/internal/blob/s3"
	"github.com/outcomelab/marketd/internal/custody"
	"github.com/outcomelab/marketd/internal/domain"
	"github.com/outcomelab/marketd/internal/fixedpoint"
	"github.com/outcomelab/marketd/internal/registry"
	"github.com/outcomelab/marketd/internal/server"
	"github.com/outcomelab/marketd/internal/server/handler"
	"github.com/outcomelab/marketd/internal/server/ws"
	"github.com/outcomelab/marketd/internal/service"
)

const shutdownTimeout = 15 * time.Second

// ServeMode runs the full daemon: Postgres-backed stores, Redis price cache
// and event bus, S3 archival, rate limiting, and the WebSocket hub.
func (a *App) ServeMode(ctx context.Context, deps *Dependencies) error {
	return a.run(ctx, deps)
}

// LiteMode runs the daemon entirely in memory: no Postgres, Redis, or S3.
// Events go to the log, archival endpoints report unavailable, and trading
// endpoints are not rate limited. Intended for local development and demos.
func (a *App) LiteMode(ctx context.Context, deps *Dependencies) error {
	return a.run(ctx, deps)
}

func (a *App) run(ctx context.Context, deps *Dependencies) error {
	creationFee, err := fixedpoint.Parse(a.cfg.Registry.CreationFee)
	if err != nil {
		return fmt.Errorf("app: creation fee: %w", err)
	}
	initialLiquidity, err := fixedpoint.Parse(a.cfg.Registry.InitialLiquidity)
	if err != nil {
		return fmt.Errorf("app: initial liquidity: %w", err)
	}

	bank := custody.NewBank()

	reg, err := registry.New(
		registry.Config{
			Owner:            common.HexToAddress(a.cfg.Registry.Owner),
			CreationFee:      creationFee,
			InitialLiquidity: initialLiquidity,
		},
		bank,
		deps.RegistryStore,
		deps.AuditStore,
		deps.Events,
		a.logger,
	)
	if err != nil {
		return fmt.Errorf("app: registry: %w", err)
	}

	marketSvc := service.NewMarketService(reg, deps.TradeStore, deps.PriceCache, a.logger)

	var archiver domain.Archiver
	if deps.BlobWriter != nil {
		archiver = s3blob.NewArchiver(deps.BlobWriter, deps.TradeStore, marketSvc, deps.AuditStore, a.logger)
	}

	handlers := server.Handlers{
		Health:    handler.NewHealthHandler(a.cfg.Mode, a.logger),
		Markets:   handler.NewMarketHandler(marketSvc, a.logger),
		Trades:    handler.NewTradeHandler(marketSvc, a.logger),
		Lifecycle: handler.NewLifecycleHandler(marketSvc, archiver, deps.BlobReader, a.logger),
		Admin:     handler.NewAdminHandler(reg, deps.AuditStore, a.logger),
		Custody:   handler.NewCustodyHandler(bank, a.logger),
	}

	var hub *ws.Hub
	if deps.SignalBus != nil {
		handlers.Events = handler.NewEventsHandler(deps.SignalBus, service.EventStream, a.logger)
		hub = ws.NewHub(deps.SignalBus, service.EventChannel, a.logger)
	}

	srv := server.NewServer(server.Config{
		Port:        a.cfg.Server.Port,
		CORSOrigins: a.cfg.Server.CORSOrigins,
		AdminToken:  a.cfg.Auth.AdminToken,
		RateLimiter: deps.RateLimiter,
	}, handlers, hub, a.logger)

	g, ctx := errgroup.WithContext(ctx)

	if hub != nil {
		g.Go(func() error {
			return hub.Run(ctx)
		})
	}

	g.Go(srv.Start)

	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	return g.Wait()
}
