package main

import (
	"net/http"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"

	"github.com/nexusmods/modlink/internal/auth/discord"
	"github.com/nexusmods/modlink/internal/auth/nexus"
	"github.com/nexusmods/modlink/internal/auth/pending"
	"github.com/nexusmods/modlink/internal/auth/token"
	"github.com/nexusmods/modlink/internal/commands"
	"github.com/nexusmods/modlink/internal/config"
	"github.com/nexusmods/modlink/internal/db"
	"github.com/nexusmods/modlink/internal/linking"
	"github.com/nexusmods/modlink/internal/logging"
	"github.com/nexusmods/modlink/internal/nexusapi"
	"github.com/nexusmods/modlink/internal/refresh"
	"github.com/nexusmods/modlink/internal/rolemeta"
	"github.com/nexusmods/modlink/internal/stats"
	"github.com/nexusmods/modlink/internal/version"
	"github.com/nexusmods/modlink/internal/web"
)

// app is the explicit application context: every component is constructed
// once here and handed to whoever needs it. No hidden singletons.
type app struct {
	cfg      *config.Config
	log      zerolog.Logger
	store    db.Store
	pending  *pending.Store
	stats    *stats.Cache
	server   *web.Server
	registry *commands.Registry
}

func main() {
	// Missing .env is fine; real deployments use the process environment.
	_ = godotenv.Load()

	cfgPath := os.Getenv("MODLINK_CONFIG")
	if cfgPath == "" {
		cfgPath = "config.yaml"
	}
	cfg, err := config.Load(cfgPath)
	if err != nil {
		bootLog := logging.New("info", true)
		bootLog.Fatal().Err(err).Msg("configuration error")
	}

	log := logging.New(cfg.LogLevel, os.Getenv("MODLINK_PRETTY_LOGS") != "")
	log.Info().
		Str("version", version.Version).
		Str("commit", version.Commit).
		Msg("starting modlink")

	a, err := build(cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("startup failed")
	}

	// Opportunistic sweeps keep the TTL stores from accumulating dead
	// entries during quiet periods.
	go func() {
		ticker := time.NewTicker(time.Minute)
		defer ticker.Stop()
		for range ticker.C {
			a.pending.Sweep()
			a.stats.Sweep()
		}
	}()

	log.Info().Str("addr", cfg.Addr()).Str("public_url", cfg.Server.PublicURL).Msg("auth site listening")
	if err := http.ListenAndServe(cfg.Addr(), a.server.Router()); err != nil {
		log.Fatal().Err(err).Msg("server failed")
	}
}

func build(cfg *config.Config, log zerolog.Logger) (*app, error) {
	gdb, err := db.Open(cfg.Database.Path)
	if err != nil {
		return nil, err
	}
	store := db.NewStore(gdb)

	discordClient := discord.New(cfg.Discord.ClientID, cfg.Discord.ClientSecret, cfg.Server.PublicURL, log)
	nexusClient := nexus.New(cfg.Nexus.ClientID, cfg.Nexus.ClientSecret, cfg.Server.PublicURL, log)
	apiClient := nexusapi.New(log)

	tokens := token.NewManager(log)
	pendingStore := pending.NewStore()
	statsCache := stats.NewCache()

	synchronizer := rolemeta.NewSynchronizer(discordClient, nexusClient, tokens, store, log)
	orchestrator := linking.NewOrchestrator(discordClient, nexusClient, pendingStore, store, synchronizer, log)
	engine := refresh.NewEngine(store, tokens, nexusClient, apiClient, statsCache, synchronizer, log)

	registry, err := commands.NewRegistry(
		&commands.LinkCommand{Store: store, PublicURL: cfg.Server.PublicURL},
		&commands.RefreshCommand{Engine: engine},
		&commands.UnlinkCommand{Store: store, Meta: synchronizer, Log: log},
	)
	if err != nil {
		return nil, err
	}

	dispatcher := commands.NewDispatcher(map[commands.EventKind]commands.Handler{
		commands.EventInteraction: commands.InteractionHandler(registry),
	}, log)

	signer := web.NewCookieSigner(cfg.Server.CookieSecret)
	server := web.NewServer(signer, orchestrator, store, synchronizer, tokens, discordClient, dispatcher, log)

	return &app{
		cfg:      cfg,
		log:      log,
		store:    store,
		pending:  pendingStore,
		stats:    statsCache,
		server:   server,
		registry: registry,
	}, nil
}
