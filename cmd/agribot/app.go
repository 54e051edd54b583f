package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	"agribot/internal/bus"
	"agribot/internal/channel"
	"agribot/internal/config"
	"agribot/internal/domain"
	"agribot/internal/fetch"
	"agribot/internal/handlers"
	"agribot/internal/knowledge"
	"agribot/internal/llm"
	"agribot/internal/memory"
	"agribot/internal/metrics"
	"agribot/internal/orchestrator"
	"agribot/internal/router"
	"agribot/internal/scrape"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

// app holds the wired request path shared by chat, serve and ask.
type app struct {
	cfg       *config.Config
	bus       *bus.InMemoryBus
	pipeline  *orchestrator.Pipeline
	store     *memory.SQLiteStore // nil when memory is disabled
	collector *metrics.Collector
}

// buildApp wires config into a running pipeline. Channels are started
// separately by the caller.
func buildApp(cfg *config.Config) (*app, error) {
	// Defaults carry unexpanded ~ paths when no config file exists.
	cfg.General.Workspace = config.ExpandPath(cfg.General.Workspace)
	cfg.Memory.DBPath = config.ExpandPath(cfg.Memory.DBPath)

	if err := os.MkdirAll(cfg.General.Workspace, 0o755); err != nil {
		return nil, fmt.Errorf("workspace: %w", err)
	}

	collector := metrics.NewCollector()
	appMetrics := metrics.NewApp(collector)

	completer, err := llm.Build(cfg.LLM, logger)
	if err != nil {
		return nil, fmt.Errorf("completer: %w", err)
	}
	completer = llm.NewInstrumented(completer, appMetrics.LLMRequestsTotal, appMetrics.LLMLatency)

	var store *memory.SQLiteStore
	if cfg.Memory.Enabled {
		store, err = memory.NewSQLiteStore(cfg.Memory.DBPath, logger)
		if err != nil {
			return nil, fmt.Errorf("memory store: %w", err)
		}
	}

	registry := orchestrator.NewRegistry(logger)
	if err := registerHandlers(cfg, registry, completer, appMetrics); err != nil {
		if store != nil {
			store.Close()
		}
		return nil, err
	}

	descriptors := registry.Descriptors()
	requestRouter := router.New(completer, descriptors, logger)
	coordinator := orchestrator.NewCoordinator(registry,
		time.Duration(cfg.General.HandlerTimeoutSeconds)*time.Second, logger)
	synthesizer := orchestrator.NewSynthesizer(completer, descriptors, logger)

	var memStore domain.MemoryStore
	if store != nil {
		memStore = store
	}
	pipeline := orchestrator.NewPipeline(orchestrator.PipelineConfig{
		Router:        requestRouter,
		Coordinator:   coordinator,
		Synthesizer:   synthesizer,
		Memory:        memStore,
		Metrics:       appMetrics,
		MaxConcurrent: cfg.General.MaxConcurrentRequests,
		HistoryLimit:  historyLimit(cfg.Memory.MaxHistoryPerConversation),
		Logger:        logger,
	})

	return &app{
		cfg:       cfg,
		bus:       bus.New(100, logger),
		pipeline:  pipeline,
		store:     store,
		collector: collector,
	}, nil
}

// registerHandlers builds every enabled capability handler.
func registerHandlers(cfg *config.Config, registry *orchestrator.Registry, completer domain.Completer, appMetrics *metrics.App) error {
	hc := cfg.Handlers

	if hc.Weather.Enabled {
		registry.Register(handlers.NewWeatherHandler(handlers.WeatherHandlerConfig{
			APIBase:   hc.Weather.APIBase,
			APIKey:    hc.Weather.APIKey,
			Timeout:   time.Duration(hc.Weather.TimeoutSeconds) * time.Second,
			Completer: completer,
			Logger:    logger,
		}))
	}

	if hc.Market.Enabled {
		ranges, err := knowledge.LoadPriceRanges(hc.Market.KnowledgeFile, logger)
		if err != nil {
			return fmt.Errorf("price ranges: %w", err)
		}
		var scraper handlers.PortalScraper
		if hc.Market.BrowserFallback {
			scraper = scrape.NewPortal(scrape.PortalConfig{
				ProfileDir: hc.Market.BrowserProfileDir,
				Logger:     logger,
			})
		}
		registry.Register(handlers.NewMarketHandler(handlers.MarketHandlerConfig{
			TableURL:    hc.Market.TableURL,
			PortalURL:   hc.Market.PortalURL,
			CacheTTL:    time.Duration(hc.Market.CacheTTLMinutes) * time.Minute,
			TierTimeout: time.Duration(hc.Market.TierTimeoutSeconds) * time.Second,
			NearbyLimit: hc.Market.NearbyLimit,
			Scraper:     scraper,
			Completer:   completer,
			Ranges:      ranges,
			OnAttempt:   tierObserver(appMetrics),
			Logger:      logger,
		}))
	}

	if hc.Finance.Enabled {
		schemes, err := knowledge.LoadSchemes(hc.Finance.SchemesFile, logger)
		if err != nil {
			return fmt.Errorf("scheme catalog: %w", err)
		}
		registry.Register(handlers.NewFinanceHandler(handlers.FinanceHandlerConfig{
			Retriever: schemes,
			Completer: completer,
			TopK:      hc.Finance.SearchTopK,
			Logger:    logger,
		}))
	}

	if hc.Pest.Enabled {
		var classifier domain.Classifier
		if hc.Pest.ClassifierURL != "" {
			classifier = handlers.NewHTTPClassifier(hc.Pest.ClassifierURL,
				time.Duration(hc.Pest.TimeoutSeconds)*time.Second)
		}
		registry.Register(handlers.NewPestHandler(handlers.PestHandlerConfig{
			Classifier: classifier,
			Completer:  completer,
			Logger:     logger,
		}))
	}

	if hc.General.Enabled {
		registry.Register(handlers.NewGeneralHandler(completer, logger))
	}

	if registry.Len() == 0 {
		return fmt.Errorf("no handlers enabled")
	}
	return nil
}

// historyLimit bounds the exchanges offered to synthesis; the stored history
// cap can be far larger than what a prompt should carry.
func historyLimit(maxStored int) int {
	const promptCap = 3
	if maxStored > 0 && maxStored < promptCap {
		return maxStored
	}
	return promptCap
}

func tierObserver(m *metrics.App) func(fetch.Attempt) {
	return func(a fetch.Attempt) {
		if a.Outcome == "cache" {
			m.CacheHits.Inc()
			return
		}
		m.TierAttempts.Inc()
	}
}

func (a *app) close() {
	a.bus.Close()
	if a.store != nil {
		if err := a.store.Close(); err != nil {
			logger.Warn("memory store close", "err", err)
		}
	}
}

// dispatch consumes inbound requests until the context ends or the bus
// closes. Each request is handled on its own goroutine; the pipeline's
// semaphore bounds actual concurrency.
func (a *app) dispatch(ctx context.Context) error {
	inbound := a.bus.Subscribe()
	for {
		select {
		case <-ctx.Done():
			return nil
		case req, ok := <-inbound:
			if !ok {
				return nil
			}
			go a.handleOne(ctx, req)
		}
	}
}

func (a *app) handleOne(ctx context.Context, req domain.InboundRequest) {
	if req.Location == "" {
		req.Location = a.cfg.General.DefaultLocation
	}
	if req.Language == "" {
		req.Language = a.cfg.General.DefaultLanguage
	}

	answer, err := a.pipeline.Handle(ctx, req)
	if err != nil {
		if ctx.Err() != nil {
			return
		}
		logger.Warn("request rejected", "channel", req.Channel, "err", err)
		a.bus.SendOutbound(domain.OutboundAnswer{
			Channel: req.Channel,
			ChatID:  req.ChatID,
			Text:    "Please send a question I can work with, for example \"tomato price in Pune\" or a photo of a diseased plant.",
		})
		return
	}

	a.bus.SendOutbound(domain.OutboundAnswer{
		Channel: req.Channel,
		ChatID:  req.ChatID,
		Text:    answer.Text,
		Quality: answer.Quality,
	})
}

// pruneLoop removes exchanges older than the retention window once a day.
func (a *app) pruneLoop(ctx context.Context) error {
	if a.store == nil || a.cfg.Memory.RetentionDays <= 0 {
		return nil
	}
	retention := time.Duration(a.cfg.Memory.RetentionDays) * 24 * time.Hour

	ticker := time.NewTicker(24 * time.Hour)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			n, err := a.store.Prune(ctx, retention)
			if err != nil {
				logger.Warn("memory prune failed", "err", err)
				continue
			}
			if n > 0 {
				logger.Info("memory pruned", "exchanges", n)
			}
		}
	}
}

// metricsServer serves the Prometheus text endpoint until ctx ends.
func (a *app) metricsServer(ctx context.Context) error {
	if !a.cfg.Metrics.Enabled {
		return nil
	}
	mux := http.NewServeMux()
	mux.HandleFunc("/metrics", a.collector.Handler())

	addr := net.JoinHostPort(a.cfg.Metrics.Host, strconv.Itoa(a.cfg.Metrics.Port))
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("metrics endpoint listening", "addr", addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
		return nil
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("metrics server: %w", err)
	}
}

func runChat(cmd *cobra.Command, args []string) error {
	cfg := loadConfigOrDefaults()
	configureLogger(cfg)

	ctx, stop := signalContext()
	defer stop()

	a, err := buildApp(cfg)
	if err != nil {
		return err
	}
	defer a.close()

	go a.dispatch(ctx)
	go a.pruneLoop(ctx)

	cli := channel.NewCLI(channel.CLIConfig{
		Logger:   logger,
		Location: cfg.General.DefaultLocation,
		Language: cfg.General.DefaultLanguage,
	})
	return cli.Start(ctx, a.bus)
}

func runServe(cmd *cobra.Command, args []string) error {
	cfgPath := resolveConfigPath()
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	configureLogger(cfg)

	ctx, stop := signalContext()
	defer stop()

	a, err := buildApp(cfg)
	if err != nil {
		return err
	}
	defer a.close()

	group, gctx := errgroup.WithContext(ctx)
	group.Go(func() error { return a.dispatch(gctx) })
	group.Go(func() error { return a.pruneLoop(gctx) })
	group.Go(func() error { return a.metricsServer(gctx) })

	started := 0
	if cfg.Channels.Telegram.Enabled && cfg.Channels.Telegram.Token != "" {
		tg := channel.NewTelegram(channel.TelegramConfig{
			Token:     cfg.Channels.Telegram.Token,
			AllowFrom: cfg.Channels.Telegram.AllowFrom,
			ParseMode: cfg.Channels.Telegram.ParseMode,
			Logger:    logger,
		})
		group.Go(func() error { return tg.Start(gctx, a.bus) })
		started++
		logger.Info("telegram channel enabled")
	}
	if cfg.Channels.CLI.Enabled {
		cli := channel.NewCLI(channel.CLIConfig{
			Logger:   logger,
			Location: cfg.General.DefaultLocation,
			Language: cfg.General.DefaultLanguage,
		})
		group.Go(func() error { return cli.Start(gctx, a.bus) })
		started++
	}
	if started == 0 {
		return fmt.Errorf("no channels enabled; enable channels.telegram or channels.cli")
	}

	logger.Info("agribot started", "version", version, "channels", started)
	return group.Wait()
}

func runAsk(cmd *cobra.Command, args []string, location, crop, lang string) error {
	cfg := loadConfigOrDefaults()
	configureLogger(cfg)

	ctx, stop := signalContext()
	defer stop()

	a, err := buildApp(cfg)
	if err != nil {
		return err
	}
	defer a.close()

	question := strings.Join(args, " ")
	if location == "" {
		location = cfg.General.DefaultLocation
	}
	if lang == "" {
		lang = cfg.General.DefaultLanguage
	}

	answer, err := a.pipeline.Handle(ctx, domain.InboundRequest{
		Channel:  "cli",
		ChatID:   "oneshot",
		SenderID: "user",
		Text:     question,
		Modality: domain.ModalityText,
		Language: lang,
		Location: location,
		Crop:     crop,
	})
	if err != nil {
		return err
	}

	fmt.Println(answer.Text)
	return nil
}
