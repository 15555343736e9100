package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"guildstats/internal/config"
	"guildstats/internal/database"
	"guildstats/internal/discord"
	"guildstats/internal/jobs"
	"guildstats/internal/render"
	"guildstats/internal/service"
	"guildstats/internal/voice"
	"guildstats/pkg/logger"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	if err := logger.Initialize(cfg.LogLevel); err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer logger.Sync()

	if err := run(cfg); err != nil {
		logger.Logger().Fatal("Bot stopped with error", zap.Error(err))
	}
}

func run(cfg *config.Config) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM, os.Interrupt)
	defer stop()

	// Initialize database
	db, err := database.New(ctx, cfg.DatabaseDSN, logger.Named("database"))
	if err != nil {
		return err
	}
	defer db.Close()

	// Create repository
	repository := database.NewRepository(db)

	session, err := discord.NewSession(cfg.DiscordToken)
	if err != nil {
		return err
	}

	renderer, err := render.New()
	if err != nil {
		return err
	}

	notifier := discord.NewTaskLogNotifier(session, cfg.Channels.TaskLogChannelID, logger.Named("notifier"))
	accounting := service.NewAccounting(repository, logger.Named("accounting"),
		service.WithStrict(cfg.Stats.Strict),
		service.WithLocation(cfg.Stats.Location))
	tasks := service.NewTasks(repository, notifier, cfg.Tasks.DefaultDays, nil, logger.Named("tasks"))
	tracker := voice.NewTracker(accounting, cfg.Voice.AFKChannelID, cfg.Voice.FlushInterval, nil, logger.Named("voice"))

	bot := discord.New(session, cfg, discord.Deps{
		Accounting:   accounting,
		Stats:        service.NewStats(repository, cfg.Stats.Location, nil),
		Tasks:        tasks,
		Applications: service.NewApplications(repository, cfg.Applications.Cooldown, cfg.Applications.StepTimeout, nil, logger.Named("applications")),
		Tracker:      tracker,
		Renderer:     renderer,
	}, logger.Named("discord"))

	// Start bot
	if err := bot.Start(ctx); err != nil {
		return err
	}
	defer bot.Stop()

	runner := jobs.NewRunner(logger.Named("jobs"),
		jobs.VoiceFlush(tracker, cfg.Voice.FlushInterval),
		jobs.VoiceReconcile(bot, cfg.Voice.FlushInterval),
		jobs.TaskSweep(tasks, cfg.Tasks.SweepInterval),
	)
	if err := runner.Run(ctx); err != nil {
		return err
	}

	logger.Logger().Info("Shutting down bot...")
	// Credit what open sessions have accumulated before the connection closes.
	tracker.FlushAll(context.WithoutCancel(ctx))
	return nil
}
