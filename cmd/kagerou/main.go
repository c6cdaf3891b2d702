// cmd/kagerou/main.go
package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/bwmarrin/discordgo"
)

var (
	cfg      *Config
	registry *SubjectRegistry
)

func main() {
	fmt.Println("Kagerou v" + VERSION + " starting up...")

	LoadEnv()
	cfg = LoadConfig()

	if err := InitLogger(cfg.LogPath, cfg.LogLevel); err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer Log().Close()

	if err := cfg.Validate(); err != nil {
		HandleError("Invalid configuration", err, "startup", ErrorSeverityFatal)
	}

	// Root context cancelled on shutdown signal; everything blocking hangs
	// off it.
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Seen-state store. Corrupt state is loud but not fatal.
	store, err := OpenMarkerStore(cfg.StateBackend, cfg.StatePath)
	if err != nil {
		if !errors.Is(err, ErrStateCorrupt) {
			HandleError("Failed to open marker store", err, "startup", ErrorSeverityFatal)
		}
		Log().Warn("marker state was corrupt and has been reset: %v", err)
	}
	defer store.Close()

	// Subject registry with file watching.
	registry, err = LoadSubjectRegistry(cfg.SubjectsPath)
	if err != nil {
		HandleError("Failed to load subjects", err, "startup", ErrorSeverityFatal)
	}

	// Upstream sources.
	source, err := BuildSources(cfg)
	if err != nil {
		HandleError("Failed to build sources", err, "startup", ErrorSeverityFatal)
	}

	// Discord connection.
	dg, err := discordgo.New("Bot " + cfg.BotToken)
	if err != nil {
		HandleError("Failed to create Discord session", err, "startup", ErrorSeverityFatal)
	}
	dg.Identify.Intents = discordgo.IntentsGuilds | discordgo.IntentsGuildMessages

	dg.AddHandler(func(s *discordgo.Session, r *discordgo.Ready) {
		Log().Info("Logged in as %s#%s", r.User.Username, r.User.Discriminator)
	})
	dg.AddHandler(handleInteraction)

	if err := dg.Open(); err != nil {
		HandleError("Failed to connect to Discord", err, "startup", ErrorSeverityFatal)
	}
	defer dg.Close()

	if err := RegisterCommands(dg, cfg.AppID, cfg.GuildID); err != nil {
		HandleError("Failed to register commands", err, "discord", ErrorSeverityMedium)
	}

	sink := newDiscordSink(dg, cfg.SendRatePerSecond, cfg.SendBurst)

	// Scheduler plus the status server whose hub receives tick events.
	sched := NewScheduler(ctx, source, sink, store, nil)
	statusServer := NewStatusServer(cfg.StatusPort, sched, registry)
	sched.events = statusServer.Hub()

	registry.SetChangeHandler(sched.Sync)
	sched.Sync(registry.List())

	stopWatch := make(chan struct{})
	if err := registry.Watch(stopWatch); err != nil {
		HandleError("Subjects auto-reload not available", err, "config", ErrorSeverityLow)
	}

	statusServer.Start()
	sched.Start()

	Log().Info("Kagerou is running with %d subject(s). Press CTRL-C to exit.", len(registry.List()))

	sc := make(chan os.Signal, 1)
	signal.Notify(sc, syscall.SIGINT, syscall.SIGTERM, os.Interrupt)
	<-sc

	Log().Info("Shutting down...")
	close(stopWatch)
	cancel()

	// Let in-flight ticks finish their persist step or abort before it; a
	// marker is never written for a partially delivered batch.
	sched.Stop()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := statusServer.Shutdown(shutdownCtx); err != nil {
		Log().Warn("status server shutdown: %v", err)
	}
}
