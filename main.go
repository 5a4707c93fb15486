// strand - a terminal chat client for the OpenAI Responses API.
//
// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"sync"
	"syscall"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"golang.org/x/term"

	"github.com/jeranaias/strand/internal/annotate"
	"github.com/jeranaias/strand/internal/config"
	"github.com/jeranaias/strand/internal/ephemeral"
	"github.com/jeranaias/strand/internal/server"
	"github.com/jeranaias/strand/internal/storage"
	"github.com/jeranaias/strand/internal/store"
	"github.com/jeranaias/strand/internal/tools"
	"github.com/jeranaias/strand/internal/turn"
	"github.com/jeranaias/strand/internal/ui/chat"
)

// Version information (set at build time)
var (
	Version   = "0.1.0"
	GitCommit = "unknown"
	BuildDate = "unknown"
)

// Global program reference so the turn processor's notify hook can post
// messages from its own goroutine.
var (
	programMu  sync.Mutex
	programRef *tea.Program
)

func setProgram(p *tea.Program) {
	programMu.Lock()
	programRef = p
	programMu.Unlock()
}

func sendToProgram(msg tea.Msg) {
	programMu.Lock()
	p := programRef
	programMu.Unlock()
	if p != nil {
		p.Send(msg)
	}
}

// Live config pointer shared by the turn processor's tool options, the
// proxy, and the watcher callback. Updates swap the pointer; a published
// snapshot is never mutated, so readers holding an old pointer stay
// consistent through a reload.
var (
	configMu  sync.Mutex
	configRef *config.Config
)

func setActiveConfig(c *config.Config) {
	configMu.Lock()
	configRef = c
	configMu.Unlock()
}

func activeConfig() *config.Config {
	configMu.Lock()
	defer configMu.Unlock()
	return configRef
}

func main() {
	var (
		serveOnly   = flag.Bool("serve", false, "run the local proxy only, no TUI")
		addr        = flag.String("addr", "", "proxy listen address (overrides config)")
		configPath  = flag.String("config", "", "config file path")
		showVersion = flag.Bool("version", false, "print version and exit")
	)
	flag.Parse()

	if *showVersion {
		fmt.Printf("strand %s (%s, %s)\n", Version, GitCommit, BuildDate)
		return
	}

	cfg, err := loadConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "strand: %v\n", err)
		os.Exit(1)
	}
	if *addr != "" {
		cfg.Server.Addr = *addr
	}

	srv := server.New(cfg)
	if path, err := cfg.CacheDBPath(); err == nil {
		if fc, err := storage.OpenFileCache(path); err == nil {
			srv = srv.WithFileCache(fc)
			defer fc.Close()
		} else {
			log.Printf("MAIN | file cache disabled: %v", err)
		}
	} else {
		log.Printf("MAIN | file cache disabled: %v", err)
	}

	if *serveOnly {
		runServer(srv)
		return
	}

	if !term.IsTerminal(int(os.Stdin.Fd())) {
		fmt.Fprintln(os.Stderr, "strand: interactive mode needs a terminal (use --serve for a headless proxy)")
		os.Exit(1)
	}

	runTUI(cfg, srv, *configPath)
}

// loadConfig loads the config from an explicit path or the default
// locations. A missing default file is not an error; defaults apply.
func loadConfig(path string) (*config.Config, error) {
	if path != "" {
		return config.LoadFromPath(path)
	}
	return config.Load()
}

// runServer runs the proxy in the foreground until SIGINT/SIGTERM.
func runServer(srv *server.Server) {
	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Start()
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		if err != nil && err != http.ErrServerClosed {
			fmt.Fprintf(os.Stderr, "strand: %v\n", err)
			os.Exit(1)
		}
	case <-sigCh:
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(ctx); err != nil {
			log.Printf("MAIN | shutdown: %v", err)
		}
	}
}

// runTUI starts the proxy in-process and runs the chat screen on top.
func runTUI(cfg *config.Config, srv *server.Server, configPath string) {
	// The TUI owns the terminal; logs go to a file.
	closeLog := redirectLogging()
	defer closeLog()

	go func() {
		if err := srv.Start(); err != nil && err != http.ErrServerClosed {
			log.Printf("MAIN | proxy stopped: %v", err)
			sendToProgram(chat.ErrorMsg{Err: err})
		}
	}()

	baseURL := "http://" + cfg.Server.Addr
	setActiveConfig(cfg)

	st := store.New(cfg.Greeting)
	registry := tools.NewBuiltinRegistry(baseURL)
	overlay := annotate.NewOverlay()
	ephClient := ephemeral.NewClient(baseURL, turn.NewStreamClient(30*time.Second))

	convStore, err := storage.NewConversationStore()
	if err != nil {
		log.Printf("MAIN | snapshots disabled: %v", err)
		convStore = nil
	}

	processor := turn.New(st, registry, turn.Config{
		BaseURL: baseURL,
		Client:  turn.NewStreamClient(30 * time.Second),
		ToolOptions: func() tools.Options {
			return activeConfig().ToolOptions()
		},
		Notify: func() {
			sendToProgram(chat.TranscriptChangedMsg{})
		},
	})

	model := chat.New(chat.Deps{
		Store:         st,
		Processor:     processor,
		Overlay:       overlay,
		Ephemeral:     ephClient,
		Conversations: convStore,
		Config:        cfg,
		Version:       Version,
		ApplyConfig: func(c *config.Config) {
			setActiveConfig(c)
			srv.UpdateConfig(c)
		},
	})

	program := tea.NewProgram(model, tea.WithAltScreen(), tea.WithMouseCellMotion())
	setProgram(program)

	if watcher := startConfigWatcher(srv, configPath); watcher != nil {
		defer watcher.Close()
	}

	_, runErr := program.Run()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.Printf("MAIN | shutdown: %v", err)
	}

	if runErr != nil {
		fmt.Fprintf(os.Stderr, "strand: %v\n", runErr)
		os.Exit(1)
	}
}

// startConfigWatcher live-reloads the config file, updating the proxy
// and the UI. Returns nil when watching is unavailable; the app still
// works, just without live reload.
func startConfigWatcher(srv *server.Server, configPath string) *config.Watcher {
	path := configPath
	if path == "" {
		p, err := config.ConfigPathTOML()
		if err != nil {
			log.Printf("MAIN | config watch disabled: %v", err)
			return nil
		}
		path = p
	}

	watcher, err := config.NewWatcher(path, func(fresh *config.Config) {
		// Swap the shared pointer. Handlers mid-request keep reading the
		// snapshot they started with.
		setActiveConfig(fresh)
		srv.UpdateConfig(fresh)
		sendToProgram(chat.ConfigReloadedMsg{Cfg: fresh})
	})
	if err != nil {
		log.Printf("MAIN | config watch disabled: %v", err)
		return nil
	}
	if err := watcher.Watch(); err != nil {
		log.Printf("MAIN | config watch disabled: %v", err)
		watcher.Close()
		return nil
	}
	return watcher
}

// redirectLogging sends the standard logger to ~/.strand/strand.log for
// the duration of the TUI session.
func redirectLogging() func() {
	dir, err := config.ConfigDir()
	if err != nil || config.EnsureConfigDir() != nil {
		log.SetOutput(os.Stderr)
		return func() {}
	}
	f, err := os.OpenFile(filepath.Join(dir, "strand.log"),
		os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0600)
	if err != nil {
		log.SetOutput(os.Stderr)
		return func() {}
	}
	log.SetOutput(f)
	return func() {
		log.SetOutput(os.Stderr)
		f.Close()
	}
}
