// Package di wires the application together: configuration, database,
// upstream clients, services, background jobs and HTTP handlers. Every
// dependency is passed explicitly so tests can assemble partial graphs.
package di

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/rs/zerolog"

	"github.com/asturkmani/superfinance-mcp/internal/cachedata"
	"github.com/asturkmani/superfinance-mcp/internal/clients/perplexity"
	"github.com/asturkmani/superfinance-mcp/internal/clients/snaptrade"
	"github.com/asturkmani/superfinance-mcp/internal/clients/yahoo"
	"github.com/asturkmani/superfinance-mcp/internal/config"
	"github.com/asturkmani/superfinance-mcp/internal/database"
	"github.com/asturkmani/superfinance-mcp/internal/modules/classification"
	"github.com/asturkmani/superfinance-mcp/internal/modules/holdings"
	"github.com/asturkmani/superfinance-mcp/internal/modules/manualportfolio"
	"github.com/asturkmani/superfinance-mcp/internal/modules/marketdata"
	"github.com/asturkmani/superfinance-mcp/internal/scheduler"
	"github.com/asturkmani/superfinance-mcp/internal/server"
)

// Container holds every wired component.
type Container struct {
	Config *config.Config
	Log    zerolog.Logger

	CacheDB   *database.DB
	CacheRepo *cachedata.Repository

	Yahoo      *yahoo.Client
	SnapTrade  *snaptrade.Client
	Perplexity *perplexity.Client

	MarketData     *marketdata.Service
	Classification *classification.Service
	Brokerage      *holdings.CachedBrokerage
	Portfolios     *manualportfolio.Service
	Holdings       *holdings.Service

	Scheduler *scheduler.Scheduler
	Server    *server.Server
}

// labelerAdapter bridges the classification service into the holdings
// engine's labeling interface. Classification failures degrade to the
// fallback label rather than blocking the consolidation pass.
type labelerAdapter struct {
	service *classification.Service
}

func (a labelerAdapter) Label(ctx context.Context, symbol, description string) (string, string) {
	result, err := a.service.Classify(ctx, symbol, description)
	if err != nil || result == nil {
		return symbol, "Other"
	}
	return result.Name, result.Category
}

// New builds the full application graph from configuration.
func New(cfg *config.Config, log zerolog.Logger) (*Container, error) {
	c := &Container{Config: cfg, Log: log}

	cacheDB, err := database.New(database.Config{
		Path:    filepath.Join(cfg.DataDir, "cache.db"),
		Profile: database.ProfileCache,
		Name:    "cache",
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open cache database: %w", err)
	}
	c.CacheDB = cacheDB

	c.CacheRepo = cachedata.NewRepository(cacheDB.Conn())
	if err := c.CacheRepo.InitSchema(); err != nil {
		cacheDB.Close()
		return nil, fmt.Errorf("failed to initialize cache schema: %w", err)
	}

	// Upstream clients
	c.Yahoo = yahoo.NewClient(cfg.YahooBaseURL, log)
	c.SnapTrade = snaptrade.NewClient(cfg.SnapTradeClientID, cfg.SnapTradeConsumer, log)
	c.Perplexity = perplexity.NewClient(cfg.PerplexityAPIKey, cfg.PerplexityModel, log)

	// Services
	c.MarketData = marketdata.NewService(c.Yahoo, c.CacheRepo, cfg.PriceTTL, cfg.FxTTL, log)
	c.Classification = classification.NewService(c.Perplexity, c.CacheRepo, log)

	c.Brokerage = holdings.NewCachedBrokerage(c.SnapTrade, c.CacheRepo, cfg.AccountsTTL, cfg.HoldingsTTL, log)

	portfolioStore := manualportfolio.NewFileStore(cfg.PortfolioFile, log)
	c.Portfolios = manualportfolio.NewService(portfolioStore, c.MarketData, c.MarketData, log)

	c.Holdings = holdings.NewService(holdings.Config{
		Broker:                  c.Brokerage,
		Manual:                  c.Portfolios,
		Prices:                  c.MarketData,
		Rates:                   c.MarketData,
		Labeler:                 labelerAdapter{service: c.Classification},
		DefaultUserID:           cfg.SnapTradeUserID,
		DefaultUserSecret:       cfg.SnapTradeUserSecret,
		DiscrepancyThresholdPct: cfg.DiscrepancyThresholdPct,
	}, log)

	// Background jobs
	c.Scheduler = scheduler.New(log)
	if err := c.registerJobs(); err != nil {
		cacheDB.Close()
		return nil, err
	}

	// HTTP surface
	c.Server = server.New(server.Config{
		Host:           cfg.Host,
		Port:           cfg.Port,
		Log:            log,
		DevMode:        cfg.DevMode,
		MarketData:     marketdata.NewHandler(c.MarketData, log),
		Holdings:       holdings.NewHandler(c.Holdings, log),
		Portfolios:     manualportfolio.NewHandler(c.Portfolios, log),
		Classification: classification.NewHandler(c.Classification, log),
		System:         server.NewSystemHandlers(c.CacheDB, c.CacheRepo, c.Scheduler, log),
		Tools: server.NewToolHandlers(server.ToolConfig{
			MarketData:     c.MarketData,
			Holdings:       c.Holdings,
			Portfolios:     c.Portfolios,
			Classification: c.Classification,
			CacheRepo:      c.CacheRepo,
			Scheduler:      c.Scheduler,
		}, log),
	})

	return c, nil
}

func (c *Container) registerJobs() error {
	cfg := c.Config

	every := func(d time.Duration) string {
		return fmt.Sprintf("@every %ds", int(d.Seconds()))
	}

	jobs := []struct {
		schedule string
		job      scheduler.Job
		enabled  bool
	}{
		{
			schedule: every(cfg.PriceRefreshInterval),
			job:      marketdata.NewRefreshPricesJob(c.MarketData, c.CacheRepo, c.Log),
			enabled:  true,
		},
		{
			schedule: every(cfg.FxRefreshInterval),
			job:      marketdata.NewRefreshFxJob(c.MarketData, c.CacheRepo, c.Log),
			enabled:  true,
		},
		{
			// Background holdings sync needs default credentials
			schedule: every(cfg.HoldingsRefreshInterval),
			job:      holdings.NewRefreshHoldingsJob(c.Brokerage, c.CacheRepo, cfg.SnapTradeUserID, cfg.SnapTradeUserSecret, c.Log),
			enabled:  cfg.HasSnapTrade() && cfg.SnapTradeUserID != "",
		},
		{
			schedule: "0 0 3 * * *",
			job:      cachedata.NewCleanupJob(c.CacheRepo, c.Log),
			enabled:  true,
		},
	}

	for _, j := range jobs {
		if !j.enabled {
			continue
		}
		if err := c.Scheduler.AddJob(j.schedule, j.job); err != nil {
			return fmt.Errorf("failed to register job %s: %w", j.job.Name(), err)
		}
	}
	return nil
}

// Close releases held resources.
func (c *Container) Close() {
	if c.CacheDB != nil {
		if err := c.CacheDB.Close(); err != nil {
			c.Log.Warn().Err(err).Msg("Failed to close cache database")
		}
	}
}
