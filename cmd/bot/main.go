package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"community-bot/internal/common/config"
	"community-bot/internal/common/i18n"
	"community-bot/internal/common/logger"
	"community-bot/internal/common/middleware"
	giveawayDiscord "community-bot/internal/features/giveaway/delivery/discord"
	"community-bot/internal/features/giveaway/models"
	"community-bot/internal/features/giveaway/repository/gormrepo"
	giveawayRedis "community-bot/internal/features/giveaway/repository/redis"
	"community-bot/internal/features/giveaway/service"
	"community-bot/internal/features/giveaway/wizard"
	healthHTTP "community-bot/internal/features/health/delivery/http"
	oauthHTTP "community-bot/internal/features/oauth/delivery/http"
	"community-bot/internal/features/settings"
	"community-bot/internal/platform/db"
	"community-bot/internal/platform/discord"
	"community-bot/internal/platform/discordoauth"
	"community-bot/internal/platform/redis"
	"community-bot/internal/workers"
)

const serviceName = "community-bot"

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}
	logger.Init(serviceName, cfg.Debug, cfg.LogJSON)

	if err := run(cfg); err != nil {
		logger.Fatal().Err(err).Msg("Bot stopped")
	}
	logger.Info().Msg("Bot exited")
}

func run(cfg *config.Config) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	loc, err := cfg.Location()
	if err != nil {
		return err
	}

	gdb, err := db.Open(db.Options{Driver: cfg.Database.Driver, DSN: cfg.Database.DSN, Debug: cfg.Debug})
	if err != nil {
		return err
	}
	defer db.Close(gdb)
	if err := db.Migrate(gdb, append(models.All(), &settings.Setting{})...); err != nil {
		return err
	}
	logger.Info().Str("driver", cfg.Database.Driver).Msg("Database ready")

	store, err := settings.Open(ctx, gdb)
	if err != nil {
		return err
	}
	defer store.Close()

	tr, err := i18n.New(cfg.Giveaway.DefaultLocale)
	if err != nil {
		return err
	}

	checks := []healthHTTP.Check{{Name: "database", Ping: func(ctx context.Context) error { return db.HealthCheck(ctx, gdb) }}}

	var (
		queue   workers.DueQueue     = workers.NewChannelQueue(64)
		pending service.PendingStore = service.NewMemoryPendingStore()
	)
	if cfg.Redis.Enabled {
		rdb, err := redis.Open(ctx, cfg.RedisAddr(), cfg.Redis.Password, cfg.Redis.DB)
		if err != nil {
			return err
		}
		defer rdb.Close()
		queue = workers.NewRedisStreamQueue(rdb)
		pending = giveawayRedis.NewPendingStore(rdb)
		checks = append(checks, healthHTTP.Check{Name: "redis", Ping: rdb.HealthCheck})
		logger.Info().Str("addr", cfg.RedisAddr()).Msg("Redis connected")
	}

	session, err := discordgo.New("Bot " + cfg.Discord.Token)
	if err != nil {
		return fmt.Errorf("create discord session: %w", err)
	}
	session.Identify.Intents = discordgo.IntentsGuilds | discordgo.IntentsGuildMembers
	client := discord.NewClient(session, cfg.Discord.EditRate, cfg.Discord.EditBurst)

	var (
		accounts     service.LinkedAccounts = service.Unlinked{}
		linker       *service.LinkedAccountService
		authorizeURL string
	)
	if cfg.OAuthEnabled() {
		oauth := discordoauth.New(cfg.Discord.ClientID, cfg.Discord.ClientSecret, cfg.Discord.RedirectURI)
		linker = service.NewLinkedAccountService(gormrepo.NewLinkedUserRepository(gdb), oauth)
		accounts = linker
		authorizeURL = oauth.AuthCodeURL("giveaway")
	} else {
		logger.Warn().Msg("DISCORD_CLIENT_ID or DISCORD_CLIENT_SECRET missing, account linking disabled")
	}

	svc := service.New(service.Dependencies{
		Repo:       gormrepo.NewGiveawayRepository(gdb),
		Messenger:  client,
		Roles:      client,
		Accounts:   accounts,
		Settings:   store,
		Translator: tr,
		Pending:    pending,
		Queue:      queue,
		Wizards:    wizard.NewEngine(wizard.NewStore(), loc),
		Config: service.Config{
			DefaultLocale:     cfg.Giveaway.DefaultLocale,
			ThrottleMin:       cfg.Giveaway.ThrottleMin,
			ThrottleMax:       cfg.Giveaway.ThrottleMax,
			PendingTTL:        cfg.Giveaway.PendingTTL,
			WizardIdleTimeout: cfg.Giveaway.WizardIdleTimeout,
			ResolveRetryDelay: cfg.Giveaway.ResolveRetryDelay,
			LinkedPlatform:    cfg.Giveaway.LinkedPlatform,
		},
	})

	router := giveawayDiscord.NewRouter(giveawayDiscord.RouterConfig{
		Service:      svc,
		Settings:     store,
		Translator:   tr,
		Responder:    giveawayDiscord.SessionResponder{Session: session},
		AuthorizeURL: authorizeURL,
	})
	session.AddHandler(router.OnInteraction)
	session.AddHandler(func(s *discordgo.Session, r *discordgo.Ready) {
		appID := cfg.Discord.AppID
		if appID == "" {
			appID = r.User.ID
		}
		logger.Info().Str("user", r.User.Username).Int("guilds", len(r.Guilds)).Msg("Connected to Discord")
		if err := giveawayDiscord.RegisterCommands(ctx, s, appID, cfg.Discord.GuildID, tr); err != nil {
			logger.Error().Err(err).Msg("Failed to register slash commands")
		}
	})

	if err := session.Open(); err != nil {
		return fmt.Errorf("open discord gateway: %w", err)
	}
	defer session.Close()

	if err := svc.Start(ctx); err != nil {
		return fmt.Errorf("start giveaway service: %w", err)
	}
	defer svc.Stop()

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      newHTTPHandler(cfg, svc, linker, tr, checks),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
	go func() {
		logger.Info().Int("port", cfg.Server.Port).Msg("Starting HTTP server")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error().Err(err).Msg("HTTP server failed")
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info().Msg("Shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("Server forced to shutdown")
	}
	if err := store.Flush(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("Failed to flush settings")
	}
	return nil
}

func newHTTPHandler(cfg *config.Config, svc *service.Service, linker *service.LinkedAccountService, tr *i18n.Translator, checks []healthHTTP.Check) http.Handler {
	if !cfg.Debug {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.Use(middleware.RequestID())
	r.Use(middleware.ErrorHandler())
	r.Use(middleware.Logger("/live", "/metrics"))

	corsConfig := cors.DefaultConfig()
	corsConfig.AllowOrigins = []string{cfg.Server.Origin}
	corsConfig.AllowMethods = []string{"GET", "OPTIONS"}
	r.Use(cors.New(corsConfig))

	healthHTTP.NewHealthHandler(serviceName, checks...).RegisterRoutes(r)
	if linker != nil {
		oauthHTTP.NewOAuthHandler(linker, svc, tr, cfg.Giveaway.DefaultLocale).RegisterRoutes(r)
	}
	return r
}
