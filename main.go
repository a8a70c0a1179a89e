package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"webvnc/internal/capture"
	"webvnc/internal/config"
	"webvnc/internal/events"
	"webvnc/internal/input/robot"
	"webvnc/internal/logger"
	"webvnc/internal/server"
	"webvnc/internal/users"
)

func main() {
	root := &cobra.Command{
		Use:          "webvnc",
		Short:        "Remote desktop over WebSocket",
		Long:         "Streams the local screens to browsers and relays the controller's mouse and keyboard back.",
		SilenceUsage: true,
	}
	root.AddCommand(serveCmd(), hashCmd())

	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

func serveCmd() *cobra.Command {
	var configPath string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the remote desktop server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return serve(cmd.Context(), configPath)
		},
	}
	cmd.Flags().StringVarP(&configPath, "config", "c", config.DefaultPath, "path to the YAML config file")
	return cmd
}

func hashCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "hash <password>",
		Short: "Print the password hash a client sends on login",
		Args:  cobra.ExactArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintln(cmd.OutOrStdout(), users.HashPassword(args[0]))
		},
	}
}

func serve(parent context.Context, configPath string) error {
	if _, err := os.Stat(configPath); errors.Is(err, os.ErrNotExist) && configPath == config.DefaultPath {
		configPath = ""
	}
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	logCloser, err := logger.Init(cfg.Logging.Level, cfg.Logging.File)
	if err != nil {
		return fmt.Errorf("failed to open log file: %w", err)
	}
	defer logCloser.Close()

	if os.Getenv("DISPLAY") == "" {
		// X11 capture and input need a display.
		os.Setenv("DISPLAY", ":0")
	}

	sinks := []events.Sink{events.LogSink()}
	if cfg.Events.File != "" {
		sink, closer, err := events.OpenFileSink(cfg.Events.File)
		if err != nil {
			return fmt.Errorf("failed to open event log: %w", err)
		}
		defer closer.Close()
		sinks = append(sinks, sink)
	}
	emitter := events.NewEmitter(0, sinks...)
	defer emitter.Close()

	store := users.NewStore()
	for _, u := range cfg.Users {
		if _, err := store.Add(u.Name, u.Password, u.Control); err != nil {
			return fmt.Errorf("user %q: %w", u.Name, err)
		}
	}

	ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer stop()

	srv, err := server.Start(ctx, cfg, server.Options{
		Backend: capture.NewScreenBackend(capture.Options{
			Format:   cfg.Capture.Format,
			Quality:  cfg.Capture.Quality,
			MaxWidth: cfg.Capture.MaxWidth,
		}),
		Injector: robot.New(),
		Emitter:  emitter,
		Users:    store,
	})
	if err != nil {
		return err
	}

	var watcher io.Closer
	if configPath != "" {
		w, err := config.Watch(configPath, 0, func(next *config.Config) {
			srv.SyncUsers(next.Users)
		})
		if err != nil {
			logger.Warn("config hot reload disabled", "err", err)
		} else {
			watcher = w
		}
	}

	webErr := make(chan error, 1)
	web := cfg.Server.HTTPListen != ""
	if web {
		go func() { webErr <- server.NewWeb(cfg.Server).Run(ctx) }()
	}

	runErr := make(chan error, 1)
	go func() { runErr <- srv.Run(ctx) }()

	select {
	case err = <-runErr:
		stop()
		if web {
			if werr := <-webErr; werr != nil {
				logger.Warn("web server shutdown", "err", werr)
			}
		}
	case werr := <-webErr:
		stop()
		err = <-runErr
		if werr != nil {
			err = fmt.Errorf("web server: %w", werr)
		}
	}
	logger.Info("shutting down")
	if watcher != nil {
		watcher.Close()
	}
	return err
}
