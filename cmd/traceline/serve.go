package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/mdp/qrterminal/v3"

	"github.com/traceline/traceline/internal/config"
	"github.com/traceline/traceline/internal/logging"
	"github.com/traceline/traceline/internal/server"
	"github.com/traceline/traceline/internal/server/store"
)

func runServe(args []string) error {
	fs := flag.NewFlagSet("serve", flag.ExitOnError)
	cfgPath := fs.String("config", "", "config file path")
	addr := fs.String("addr", "", "listen address")
	dataDir := fs.String("data-dir", "", "data directory")
	agentCmd := fs.String("agent", "", "agent CLI binary")
	mode := fs.String("mode", "", "agent mode: stream or print")
	commandsDir := fs.String("commands-dir", "", "slash-command prompt files directory")
	workDir := fs.String("workdir", "", "working directory for agent processes")
	noQR := fs.Bool("no-qr", false, "skip the access QR code")
	logLevel := fs.String("log-level", "", "log level (debug, info, warn, error)")
	showVersion := fs.Bool("version", false, "print version and exit")
	_ = fs.Parse(args)

	if *showVersion {
		fmt.Println(version)
		return nil
	}

	cfg, err := config.Load(*cfgPath)
	if err != nil {
		return err
	}
	if *addr != "" {
		cfg.Server.Addr = *addr
	}
	if *dataDir != "" {
		cfg.Server.DataDir = *dataDir
	}
	if *agentCmd != "" {
		cfg.Server.AgentCommand = *agentCmd
	}
	if *mode != "" {
		cfg.Server.Mode = *mode
	}
	if *commandsDir != "" {
		cfg.Server.CommandsDir = *commandsDir
	}
	if *noQR {
		cfg.Server.ShowQR = false
	}
	if *logLevel != "" {
		cfg.Log.Level = *logLevel
	}
	if err := applyLogLevel(cfg.Log.Level); err != nil {
		return err
	}
	if err := cfg.ValidateServer(); err != nil {
		return err
	}

	logging.PrintBanner("serve", version, cfg.Server.Addr)

	st, err := store.Open(cfg.DBPath())
	if err != nil {
		return err
	}
	defer func() { _ = st.Close() }()

	workingDir := *workDir
	if workingDir == "" {
		workingDir, _ = os.Getwd()
	}

	srv := server.New(server.Options{
		Mode:         cfg.Server.Mode,
		AgentCommand: cfg.Server.AgentCommand,
		CommandsDir:  cfg.Server.CommandsDir,
		WorkingDir:   workingDir,
	}, st)

	wsURL := accessURL(cfg.Server.Addr)
	slog.Info("listening", "addr", cfg.Server.Addr, "ws", wsURL, "mode", cfg.Server.Mode)
	if cfg.Server.ShowQR {
		fmt.Fprintf(os.Stderr, "\nScan to connect:\n")
		qrterminal.GenerateWithConfig(wsURL, qrterminal.Config{
			Level:      qrterminal.L,
			Writer:     os.Stderr,
			HalfBlocks: true,
			QuietZone:  1,
		})
	}

	httpSrv := &http.Server{
		Addr:              cfg.Server.Addr,
		Handler:           srv.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		if err := httpSrv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	slog.Info("shutting down")
	srv.Shutdown()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return httpSrv.Shutdown(shutdownCtx)
}

// accessURL renders the WebSocket URL clients should dial for a listen
// address like ":8137", "0.0.0.0:8137" or "[::]:8137".
func accessURL(addr string) string {
	host, port, err := net.SplitHostPort(addr)
	if err != nil {
		return fmt.Sprintf("ws://%s/ws", addr)
	}
	switch host {
	case "", "0.0.0.0", "::":
		host = "localhost"
	}
	if strings.Contains(host, ":") {
		host = "[" + host + "]"
	}
	return fmt.Sprintf("ws://%s:%s/ws", host, port)
}
