// Copyright 2026 The Veil Authors
// SPDX-License-Identifier: Apache-2.0

// veil-bot is the anonymizing relay service. It maintains a Matrix
// /sync loop, relays trigger messages under pseudonymous handles,
// executes bot commands, and exposes a local admin socket for
// operational tooling (veil-admin).
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	flag "github.com/spf13/pflag"

	"github.com/veil-im/veil/directory"
	"github.com/veil-im/veil/lib/clock"
	"github.com/veil-im/veil/lib/config"
	"github.com/veil-im/veil/lib/ref"
	"github.com/veil-im/veil/lib/service"
	"github.com/veil-im/veil/lib/version"
	"github.com/veil-im/veil/messaging"
	"github.com/veil-im/veil/relay"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	var (
		configPath  string
		showVersion bool
	)
	flag.StringVar(&configPath, "config", "", "path to config file (default: $VEIL_CONFIG)")
	flag.BoolVar(&showVersion, "version", false, "print version information and exit")
	flag.Parse()

	if showVersion {
		fmt.Println("veil-bot " + version.Info())
		return nil
	}

	cfg, err := loadConfig(configPath)
	if err != nil {
		return err
	}

	logger := slog.New(slog.NewJSONHandler(os.Stderr, nil))
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := cfg.EnsurePaths(); err != nil {
		return err
	}

	_, session, err := service.LoadSession(cfg.Paths.Session, cfg.Homeserver.URL, logger)
	if err != nil {
		return fmt.Errorf("loading session: %w", err)
	}
	defer session.Close()

	userID, err := service.ValidateSession(ctx, session)
	if err != nil {
		return err
	}
	logger.Info("matrix session valid", "user_id", userID)

	if cfg.Relay.Space != "" {
		spaceID, err := joinSpace(ctx, session, cfg.Relay.Space)
		if err != nil {
			return fmt.Errorf("joining community space %s: %w", cfg.Relay.Space, err)
		}
		logger.Info("community space joined", "room_id", spaceID)
	}

	clk := clock.Real()

	store, err := directory.Open(directory.Config{
		Path:   cfg.Paths.Database,
		Clock:  clk,
		Logger: logger,
	})
	if err != nil {
		return fmt.Errorf("opening directory store: %w", err)
	}
	defer store.Close()

	permissions := relay.NewPermissionResolver(store, session)
	permissions.AdminLevel = cfg.Relay.AdminLevel
	permissions.ModeratorLevel = cfg.Relay.ModeratorLevel

	notifier := relay.NewNotifier(session, logger)

	engine := relay.NewEngine(session, store, permissions, notifier, logger)
	engine.Trigger = cfg.Relay.Trigger
	engine.CommandPrefix = cfg.Relay.CommandPrefix

	router := relay.NewRouter(session, store, permissions, clk)
	router.Prefix = cfg.Relay.CommandPrefix
	router.Trigger = cfg.Relay.Trigger

	bot := &botService{
		session:   session,
		store:     store,
		engine:    engine,
		router:    router,
		notifier:  notifier,
		clock:     clk,
		logger:    logger,
		startedAt: clk.Now(),
	}

	// Only m.room.message reaches the handler: relay triggers and
	// commands are the bot's entire input surface.
	filter := (&messaging.SyncFilter{
		TimelineTypes: []string{messaging.EventTypeMessage.String()},
		TimelineLimit: 50,
	}).InlineFilter()

	// The initial snapshot is historical: accept pending invites from
	// it, but never relay its timeline events.
	sinceToken, initial, err := service.InitialSync(ctx, session, filter)
	if err != nil {
		return err
	}
	service.AcceptInvites(ctx, session, initial.Rooms.Invite, logger)

	socketServer := service.NewSocketServer(cfg.Paths.AdminSocket, logger)
	bot.registerActions(socketServer)

	socketDone := make(chan error, 1)
	go func() {
		socketDone <- socketServer.Serve(ctx)
	}()

	go service.RunSyncLoop(ctx, session, service.SyncConfig{
		Filter: filter,
	}, sinceToken, bot.handleSync, clk, logger)

	logger.Info("veil bot running",
		"user_id", userID,
		"socket", cfg.Paths.AdminSocket,
	)

	<-ctx.Done()
	logger.Info("shutting down")

	if err := <-socketDone; err != nil {
		logger.Error("socket server error", "error", err)
	}
	return nil
}

func loadConfig(path string) (*config.Config, error) {
	var (
		cfg *config.Config
		err error
	)
	if path != "" {
		cfg, err = config.LoadFile(path)
	} else {
		cfg, err = config.Load()
	}
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// joinSpace joins the configured community space, resolving an alias
// ("#veil:server") to a room ID first when needed.
func joinSpace(ctx context.Context, session *messaging.DirectSession, space string) (ref.RoomID, error) {
	if strings.HasPrefix(space, "#") {
		alias, err := ref.ParseRoomAlias(space)
		if err != nil {
			return ref.RoomID{}, err
		}
		roomID, err := session.ResolveAlias(ctx, alias)
		if err != nil {
			return ref.RoomID{}, err
		}
		return session.JoinRoom(ctx, roomID)
	}

	roomID, err := ref.ParseRoomID(space)
	if err != nil {
		return ref.RoomID{}, err
	}
	return session.JoinRoom(ctx, roomID)
}
