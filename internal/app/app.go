package app

import (
	"context"
	"errors"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"pulp-price-forecast/internal/alerting"
	"pulp-price-forecast/internal/config"
	"pulp-price-forecast/internal/fetcher"
	"pulp-price-forecast/internal/scheduler"
	"pulp-price-forecast/internal/service"
	"pulp-price-forecast/internal/storage"
)

// App aggregates configuration and shared dependencies for the CLI commands.
type App struct {
	Config *config.Config
	Logger zerolog.Logger
}

// NewApp constructs a new application handle.
func NewApp(cfg *config.Config, logger zerolog.Logger) *App {
	return &App{Config: cfg, Logger: logger.With().Str("component", "app").Logger()}
}

func (a *App) newFetcher() fetcher.ContractFetcher {
	return fetcher.NewContracts(fetcher.ContractOptions{
		BaseURL:   a.Config.Fetcher.BaseURL,
		Timeout:   a.Config.Fetcher.RequestTimeout,
		UserAgent: a.Config.Fetcher.UserAgent,
	}, a.Logger)
}

func (a *App) newNotifier() alerting.Notifier {
	if a.Config.Alerting.Telegram.Enabled {
		cfg := a.Config.Alerting.Telegram
		return alerting.NewTelegramNotifier(cfg.BotToken, cfg.ChatID, cfg.APIBase, 10*time.Second, a.Logger)
	}
	return nil
}

func (a *App) openStore(ctx context.Context) (*storage.Store, func(), error) {
	if a.Config.Database.DSN == "" {
		return nil, nil, errors.New("database.dsn is required")
	}

	pool, err := storage.NewPool(ctx, a.Config.Database)
	if err != nil {
		return nil, nil, err
	}

	store := storage.NewStore(pool)
	closer := func() {
		store.Close()
	}
	return store, closer, nil
}

// Run executes the long-running daily pipeline.
func (a *App) Run(ctx context.Context) error {
	ctx, cancel := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	store, closeStore, err := a.openStore(ctx)
	if err != nil {
		return err
	}
	defer closeStore()

	sched := scheduler.New(scheduler.Options{
		Name:         "daily_pipeline",
		Interval:     a.Config.Scheduler.Interval,
		AlignToStart: a.Config.Scheduler.AlignToBucket,
		StartupDelay: a.Config.Scheduler.StartupDelay,
	}, scheduler.NewMemoryHistory(), a.Logger)

	svc := service.New(a.Config, sched, a.newFetcher(), store, a.newNotifier(), a.Logger)

	a.Logger.Info().Msg("starting forecast pipeline")
	err = svc.Run(ctx)
	if err != nil && !errors.Is(err, context.Canceled) {
		a.Logger.Error().Err(err).Msg("pipeline terminated with error")
		return err
	}

	a.Logger.Info().Msg("forecast pipeline stopped")
	return nil
}

// RunOnce executes a single pipeline pass for all products and exits.
func (a *App) RunOnce(ctx context.Context) error {
	store, closeStore, err := a.openStore(ctx)
	if err != nil {
		return err
	}
	defer closeStore()

	svc := service.New(a.Config, nil, a.newFetcher(), store, a.newNotifier(), a.Logger)
	return svc.ProcessBucket(ctx, time.Now().UTC().Truncate(24*time.Hour))
}

// ExportOptions hold parameters for exporting curves and forecasts.
type ExportOptions struct {
	Product   string
	Snapshot  *time.Time
	CSVPath   string
	PNGPath   string
	MaxPoints int
}

// ShowOptions configure the show command.
type ShowOptions struct {
	Product string
	Limit   int
}

// BacktestOptions configure the historical curve evaluation.
type BacktestOptions struct {
	Product     string
	From        time.Time
	To          time.Time
	Horizons    []int
	TuneWeights bool
}

// SimulateOptions drive one offline pipeline pass from canned quotes.
type SimulateOptions struct {
	Product     string
	SpotPrice   float64
	Quotes      []SimulatedQuote
	HorizonDays int
}

// SimulatedQuote is one contract quote supplied on the command line.
type SimulatedQuote struct {
	Period     string
	AnchorDate time.Time
	Price      float64
}
