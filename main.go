package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/example/rewatch/internal/config"
	"github.com/example/rewatch/internal/excel"
	"github.com/example/rewatch/internal/notify"
	"github.com/example/rewatch/internal/registry"
	"github.com/example/rewatch/internal/scheduler"
	"github.com/example/rewatch/internal/syncagent"
	"github.com/example/rewatch/internal/videostore"
	"github.com/example/rewatch/pkg/models"
)

const appVersion = "1.0.0"

func main() {
	importPath := flag.String("import", "", "import videos from an .xlsx or .csv file and exit")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil {
		level = zerolog.InfoLevel
	}
	log := zerolog.New(os.Stdout).Level(level).With().Timestamp().Logger()

	// Создаем контекст с отменой
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	store, err := videostore.Open(cfg.DataDir, log)
	if store == nil {
		log.Fatal().Err(err).Msg("failed to open video store")
	}
	if store.Degraded() {
		// Деградированный режим: данные живут в плоском JSON
		log.Warn().Err(err).Msg("durable storage unavailable, running on the legacy fallback")
	}
	defer store.Close()

	if *importPath != "" {
		runImport(*importPath, store, log)
		return
	}

	telegram, err := notify.NewTelegramChannel(cfg.TelegramToken, cfg.TelegramChatID)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to create telegram channel")
	}

	// Фоновый агент: показывает уведомления, когда страниц нет
	agent := syncagent.New(
		&agentDisplay{telegram: telegram, log: log},
		nil,
		filepath.Join(cfg.DataDir, "cache"),
		appVersion,
		log,
	)
	go agent.Run(ctx)

	// Subscription registry: store, dispatcher, HTTP API
	regStore, err := registry.Connect(cfg.DatabaseURL, cfg.DataDir)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to subscription registry database")
	}
	defer regStore.Close()

	sender := &registry.CompositeSender{
		Web: &registry.WebPushSender{
			Subscriber:      cfg.VAPIDSubject,
			VAPIDPublicKey:  cfg.VAPIDPublicKey,
			VAPIDPrivateKey: cfg.VAPIDPrivateKey,
		},
		Telegram: telegram,
	}
	dispatcher := registry.NewDispatcher(regStore, sender, log)
	server := registry.NewServer(regStore, dispatcher, cfg.VAPIDPublicKey, log)

	httpServer := &http.Server{
		Addr:    cfg.ListenAddr,
		Handler: server.Routes(),
	}
	go func() {
		log.Info().Str("addr", cfg.ListenAddr).Msg("registry API listening")
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error().Err(err).Msg("registry API failed")
			cancel()
		}
	}()

	// Notification gateway: the single local decision point
	baseURL := cfg.RegistryBaseURL
	if baseURL == "" {
		baseURL = "http://localhost" + cfg.ListenAddr
	}
	channels := []notify.Channel{
		&notify.AgentChannel{Post: func(title, body string) error {
			return agent.Send(syncagent.PushReceived{
				Payload: []byte(fmt.Sprintf(`{"title":%q,"body":%q}`, title, body)),
			})
		}},
		telegram,
		&notify.LogChannel{Log: log},
	}
	gateway := notify.NewGateway(store, channels, registry.NewClient(baseURL), log)
	defer gateway.Close()
	gateway.SetTimezone(cfg.Timezone)
	if telegram.Available() {
		gateway.SetTelegramTarget(cfg.TelegramChatID)
	}

	if s := gateway.Settings(); s.Time != cfg.NotificationTime {
		s.Time = cfg.NotificationTime
		if err := gateway.SaveSettings(s); err != nil {
			log.Warn().Err(err).Msg("failed to apply configured notification time")
		}
	}
	// Headless-режим: разрешение спрашивать не у кого, выдаем при первом
	// запуске и запоминаем
	if gateway.Permission() == notify.PermissionDefault {
		gateway.RequestPermission(true)
	}
	gateway.ScheduleNext()

	// Каждое изменение коллекции уходит агенту свежим снапшотом
	store.OnChange(func(videos []models.Video) {
		_ = agent.Send(syncagent.CacheVideos{Videos: videos})
	})
	_ = agent.Send(syncagent.CacheVideos{Videos: store.Snapshot()})

	sched := scheduler.New(gateway, dispatcher, agent, log)
	sched.Start()
	defer sched.Stop()

	log.Info().Str("version", appVersion).Msg("rewatch started")

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	select {
	case sig := <-sigChan:
		log.Info().Str("signal", sig.String()).Msg("shutting down")
	case <-ctx.Done():
	}
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Warn().Err(err).Msg("registry API shutdown failed")
	}

	log.Info().Msg("rewatch stopped")
}

// agentDisplay is how the headless agent surfaces notifications: telegram
// when configured, the log otherwise
type agentDisplay struct {
	telegram *notify.TelegramChannel
	log      zerolog.Logger
}

func (d *agentDisplay) Display(title, body string) error {
	if d.telegram.Available() {
		return d.telegram.Deliver(notify.Notification{Title: title, Body: body})
	}
	d.log.Info().Str("title", title).Str("body", body).Msg("reminder")
	return nil
}

func runImport(path string, store *videostore.Store, log zerolog.Logger) {
	cfg := excel.DefaultImportConfig()
	cfg.FilePath = path

	result, err := excel.ImportVideos(cfg, store)
	if err != nil {
		log.Fatal().Err(err).Msg("import failed")
	}

	log.Info().
		Int("processed", result.TotalProcessed).
		Int("created", result.Created).
		Int("skipped", result.Skipped).
		Int("errors", len(result.Errors)).
		Msg("import finished")
	for _, e := range result.Errors {
		log.Warn().Msg(e)
	}
}
