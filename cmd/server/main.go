package main

import (
	"context"
	"encoding/json"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"topolens/internal/adapter"
	"topolens/internal/cache"
	"topolens/internal/config"
	"topolens/internal/domain"
	"topolens/internal/handler"
	"topolens/internal/hub"
	"topolens/internal/merge"
	"topolens/internal/metrics"
	"topolens/internal/orchestrator"
	"topolens/internal/repository/sqlite"
	"topolens/internal/service"
	"topolens/internal/session"
)

func main() {
	addr := flag.String("addr", "", "HTTP listen address (overrides config)")
	configPath := flag.String("config", "", "config file path (overrides search path)")
	dbPath := flag.String("db", "", "SQLite snapshot path (overrides config)")
	hintsPath := flag.String("hints", "", "JSON file of scraped position hints")
	flag.Parse()

	log.SetFlags(log.LstdFlags | log.Lshortfile)
	log.Println("Starting topolens server...")

	var (
		cfg  *config.Config
		from string
		err  error
	)
	if *configPath != "" {
		cfg, from, err = config.LoadFromPath(*configPath)
	} else {
		cfg, from, err = config.Load()
	}
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	if from != "" {
		log.Printf("Config loaded from %s", from)
	} else {
		log.Println("No config file found, using defaults")
	}
	if *addr != "" {
		cfg.Listen = *addr
	}
	if *dbPath != "" {
		cfg.Database.Path = *dbPath
	}

	repo, err := sqlite.New(cfg.Database.Path)
	if err != nil {
		log.Fatalf("Failed to open database: %v", err)
	}
	defer repo.Close()
	log.Printf("Database opened: %s", cfg.Database.Path)

	m := metrics.New()

	sessions := session.NewManager(session.Config{
		BaseURL:      cfg.ControlPlane.BaseURL,
		LoginPath:    cfg.ControlPlane.LoginPath,
		Username:     cfg.ControlPlane.Username,
		Password:     cfg.ControlPlane.Password,
		StaticToken:  cfg.ControlPlane.StaticToken,
		CookieName:   cfg.ControlPlane.CookieName,
		SessionTTL:   cfg.ControlPlane.SessionTTL(),
		SafetyMargin: time.Duration(cfg.ControlPlane.SafetyMarginSeconds) * time.Second,
		Timeout:      time.Duration(cfg.ControlPlane.TimeoutSeconds) * time.Second,
		VerifyTLS:    cfg.ControlPlane.VerifyTLSEnabled(),
	})
	sessions.SetMetrics(m)

	adapters := buildAdapters(cfg, sessions)
	if len(adapters) == 0 {
		log.Println("Warning: no discovery sources configured, every fetch will fail")
	}
	for _, a := range adapters {
		log.Printf("Source enabled: %s", a.Name())
	}

	var hintSource adapter.HintSource
	if *hintsPath != "" {
		hintSource = fileHints(*hintsPath)
		log.Printf("Scraped position hints: %s", *hintsPath)
	}

	orch := orchestrator.New(adapters, hintSource, cfg.Adapters.Timeout(), m)
	engine := merge.NewEngine(cfg.PriorityMap(), cfg.Cache.StaleGraceCycles)

	builder := func(ctx context.Context, scope string, prior *domain.Topology) (*domain.Topology, error) {
		start := time.Now()
		res, err := orch.FetchAll(ctx, scope)
		if err != nil {
			m.FetchCyclesTotal.WithLabelValues("failed").Inc()
			return nil, err
		}
		topo := engine.Merge(merge.Input{
			Scope:        scope,
			Observations: res.Observations,
			Hints:        res.Hints,
			Availability: res.Availability,
			Prior:        prior,
		})
		m.FetchDuration.Observe(time.Since(start).Seconds())
		return topo, nil
	}

	topoCache := cache.New(builder, repo, cfg.Cache.TTL(), m)

	eventBus := service.NewEventBus()
	svc := service.NewTopologyService(topoCache, sessions, eventBus, m)

	hubCtx, hubCancel := context.WithCancel(context.Background())
	defer hubCancel()
	sseHub := hub.New()
	go sseHub.Run(hubCtx)

	eventChan := make(chan service.Event, 100)
	eventBus.Subscribe(eventChan)
	go func() {
		for ev := range eventChan {
			sseHub.Broadcast(string(ev.Type), ev.Payload)
		}
	}()

	apiHandler := handler.NewTopologyHandler(svc)

	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/topology", apiHandler.GetTopology)
	mux.HandleFunc("GET /api/session/health", apiHandler.GetSessionHealth)
	mux.Handle("GET /events", sseHub)
	mux.Handle("GET /metrics", m.Handler())

	finalHandler := handler.Chain(mux,
		handler.Recover,
		handler.CORS,
		handler.Logger,
	)

	server := &http.Server{
		Addr:         cfg.Listen,
		Handler:      finalHandler,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	go func() {
		log.Printf("Server listening on %s", cfg.Listen)
		if err := server.ListenAndServe(); err != http.ErrServerClosed {
			log.Fatalf("Server error: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("Shutting down server...")
	hubCancel()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		log.Printf("Server shutdown error: %v", err)
	}
	sessions.Logout(ctx)

	log.Println("Server stopped")
}

// buildAdapters assembles the enabled discovery sources. The monitor
// and switch-config adapters share the authenticated session client;
// SNMP and the secondary vendor authenticate on their own.
func buildAdapters(cfg *config.Config, sessions *session.Manager) []adapter.Adapter {
	var adapters []adapter.Adapter

	opts := func(src domain.Source) adapter.Options {
		return adapter.Options{
			RateLimit:  cfg.SourceRateLimit(src),
			MaxRetries: uint64(cfg.Adapters.MaxRetries),
		}
	}

	if cfg.ControlPlane.BaseURL != "" {
		if cfg.SourceEnabled(domain.SourceMonitor) {
			adapters = append(adapters, adapter.NewMonitorAdapter(
				cfg.ControlPlane.BaseURL, sessions, opts(domain.SourceMonitor)))
		}
		if cfg.SourceEnabled(domain.SourceSwitchConfig) {
			adapters = append(adapters, adapter.NewSwitchConfigAdapter(
				cfg.ControlPlane.BaseURL, sessions, opts(domain.SourceSwitchConfig)))
		}
	}

	if cfg.SourceEnabled(domain.SourceSNMP) && len(cfg.SNMP.Targets) > 0 {
		targets := make([]adapter.SNMPTarget, 0, len(cfg.SNMP.Targets))
		for _, t := range cfg.SNMP.Targets {
			targets = append(targets, adapter.SNMPTarget{
				Name:      t.Name,
				Host:      t.Host,
				Port:      t.Port,
				Community: t.Community,
			})
		}
		adapters = append(adapters, adapter.NewSNMPAdapter(
			targets,
			time.Duration(cfg.SNMP.TimeoutSeconds)*time.Second,
			opts(domain.SourceSNMP)))
	}

	if cfg.Secondary.Enabled && cfg.Secondary.BaseURL != "" &&
		cfg.SourceEnabled(domain.SourceSecondaryVendor) {
		adapters = append(adapters, adapter.NewSecondaryVendorAdapter(
			cfg.Secondary.BaseURL,
			cfg.Secondary.APIKey,
			cfg.Adapters.Timeout(),
			opts(domain.SourceSecondaryVendor)))
	}

	return adapters
}

// fileHints reads scraper output from a JSON file on every cycle, so
// the scraper can keep dropping fresh snapshots next to the server.
func fileHints(path string) adapter.HintSource {
	return adapter.HintFunc(func(ctx context.Context, scope string) ([]adapter.Hint, error) {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, err
		}
		var byScope map[string][]adapter.Hint
		if err := json.Unmarshal(data, &byScope); err != nil {
			return nil, err
		}
		return byScope[scope], nil
	})
}
