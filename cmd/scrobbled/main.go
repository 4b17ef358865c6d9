package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/gofrs/flock"

	"scrobbled/internal/app"
	"scrobbled/internal/config"
	"scrobbled/internal/history"
	"scrobbled/internal/logging"
	"scrobbled/internal/mpd"
	"scrobbled/internal/scrobble"
	"scrobbled/internal/scrobble/audioscrobbler"
	"scrobbled/internal/scrobble/filesink"
	"scrobbled/internal/tags"
)

var version = "0.1.0"

func main() {
	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, `scrobbled - reports completed listens from MPD to scrobbling services

Usage: scrobbled [options]

Options:
  -config string
        Path to config file (default: ~/.config/scrobbled/config.toml)
  -version
        Print version and exit

Send SIGUSR1 to force an immediate delivery attempt of queued scrobbles.

`)
	}

	cfgPath := flag.String("config", "", "")
	showVersion := flag.Bool("version", false, "")
	flag.Parse()

	if *showVersion {
		fmt.Println("scrobbled", version)
		return
	}

	cfg, cfgFile, err := config.Load(*cfgPath)
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	logger, logCloser, err := logging.Setup(cfg.Log, cfg.Verbosity())
	if err != nil {
		log.Fatalf("init logging: %v", err)
	}
	if logCloser != nil {
		defer logCloser.Close()
	}
	logger.Info("starting scrobbled",
		slog.String("version", version), slog.String("config", cfgFile))

	stateDir, err := logging.StateDir()
	if err != nil {
		logger.Error("resolve state dir", slog.Any("err", err))
		os.Exit(1)
	}
	if err := os.MkdirAll(stateDir, 0o755); err != nil {
		logger.Error("create state dir", slog.Any("err", err))
		os.Exit(1)
	}

	lock := flock.New(filepath.Join(stateDir, "scrobbled.lock"))
	locked, err := lock.TryLock()
	if err != nil {
		logger.Error("acquire instance lock", slog.Any("err", err))
		os.Exit(1)
	}
	if !locked {
		logger.Error("another instance is already running")
		os.Exit(1)
	}
	defer lock.Unlock()

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	var recorder scrobble.Recorder
	if !cfg.History.Disabled {
		store, err := history.Open(cfg.History.Path)
		if err != nil {
			logger.Error("open history archive", slog.Any("err", err))
		} else {
			recorder = store
			defer store.Close()
		}
	}

	client := httpClient(cfg.Proxy, logger)

	manager := scrobble.NewManager(logger)
	for _, entry := range cfg.Scrobblers {
		if entry.File != "" {
			manager.Register(filesink.New(entry.Name, entry.File, entry.Journal,
				entry.QueueLimit, recorder, logger))
			continue
		}
		manager.Register(audioscrobbler.New(audioscrobbler.Config{
			Name:          entry.Name,
			URL:           entry.URL,
			Username:      entry.Username,
			Password:      entry.Password,
			JournalPath:   entry.Journal,
			QueueLimit:    entry.QueueLimit,
			BatchSize:     entry.BatchSize,
			BackoffBase:   time.Duration(entry.BackoffBase) * time.Second,
			BackoffMax:    time.Duration(entry.BackoffMax) * time.Second,
			ClientVersion: version,
		}, client, recorder, logger))
	}
	manager.Start(ctx)

	player := mpd.New(mpd.Config{
		Host:         cfg.MPD.Host,
		Port:         cfg.MPD.Port,
		Password:     cfg.MPD.Password,
		PollInterval: cfg.MPD.Interval(),
		Logger:       logger,
	})
	snapshots := make(chan mpd.Snapshot, 16)
	go player.Run(ctx, snapshots)

	enricher := tags.New(cfg.MusicDirectory, logger)
	instance := app.New(manager, enricher, cfg.JournalSaveInterval(), logger)
	instance.Run(ctx, snapshots)

	if pending := manager.PendingCount(); pending > 0 {
		logger.Info("scrobbles left for next run", slog.Int("pending", pending))
	}
}

// httpClient builds the shared client for network backends, honoring a
// configured proxy over the environment's.
func httpClient(proxy string, logger *slog.Logger) *http.Client {
	transport := &http.Transport{Proxy: http.ProxyFromEnvironment}
	if proxy != "" {
		if u, err := url.Parse(proxy); err == nil {
			transport.Proxy = http.ProxyURL(u)
		} else {
			logger.Warn("invalid proxy url", slog.String("proxy", proxy), slog.Any("err", err))
		}
	}
	return &http.Client{Timeout: 30 * time.Second, Transport: transport}
}
