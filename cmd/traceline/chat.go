package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/traceline/traceline/internal/client"
	"github.com/traceline/traceline/internal/config"
	"github.com/traceline/traceline/internal/demo"
	"github.com/traceline/traceline/internal/logging"
	"github.com/traceline/traceline/internal/session"
	"github.com/traceline/traceline/internal/snapshot"
	"github.com/traceline/traceline/internal/ui"
)

func runChat(args []string) error {
	fs := flag.NewFlagSet("chat", flag.ExitOnError)
	cfgPath := fs.String("config", "", "config file path")
	url := fs.String("url", "", "backend WebSocket URL")
	transcriptOut := fs.String("transcript-out", "", "write a transcript snapshot to this path on exit")
	noDemo := fs.Bool("no-demo", false, "fail instead of falling back to the demo responder")
	noReconnect := fs.Bool("no-reconnect", false, "exit instead of reconnecting after a drop")
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
	if *url != "" {
		cfg.Chat.URL = *url
	}
	if *transcriptOut != "" {
		cfg.Chat.TranscriptOut = *transcriptOut
	}
	if *noDemo {
		cfg.Chat.DemoFallback = false
	}
	if *noReconnect {
		cfg.Chat.Reconnect = false
	}
	if *logLevel != "" {
		cfg.Log.Level = *logLevel
	}
	if err := applyLogLevel(cfg.Log.Level); err != nil {
		return err
	}
	if err := cfg.ValidateChat(); err != nil {
		return err
	}

	logging.PrintBanner("chat", version, cfg.Chat.URL)

	cl := client.New(client.Options{
		URL:          cfg.Chat.URL,
		PingInterval: cfg.Chat.PingInterval,
		PongTimeout:  cfg.Chat.PongTimeout,
		Reconnect:    cfg.Chat.Reconnect,
		DemoFallback: cfg.Chat.DemoFallback,
	})
	cl.SetDemoTransport(func() client.Transport { return demo.NewResponder() })

	ctrl := session.New(cl)
	p := tea.NewProgram(ui.New(ctrl))
	ctrl.OnChange = func(v session.View) { p.Send(ui.ViewMsg(v)) }

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	runErrCh := make(chan error, 1)
	go func() {
		if err := cl.Run(ctx, ctrl); err != nil && ctx.Err() == nil {
			runErrCh <- err
			p.Quit()
		}
	}()

	_, uiErr := p.Run()
	cancel()

	if out := cfg.Chat.TranscriptOut; out != "" {
		if entries := ctrl.View().Transcript; len(entries) > 0 {
			if err := snapshot.Write(out, entries); err != nil {
				slog.Error("write transcript snapshot", "path", out, "error", err)
			} else {
				slog.Info("transcript saved", "path", out)
			}
		}
	}

	select {
	case err := <-runErrCh:
		return err
	case <-time.After(100 * time.Millisecond):
	}
	return uiErr
}
