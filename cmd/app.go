package main

import (
	"context"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/roomcast/roomcast/hub"
	httpServer "github.com/roomcast/roomcast/server/http"
	websocketServer "github.com/roomcast/roomcast/server/websocket"
	"github.com/roomcast/roomcast/service"
	"github.com/roomcast/roomcast/storage/file"
	store "github.com/roomcast/roomcast/storage/memory"
	"github.com/rs/zerolog"
	"github.com/spf13/pflag"
)

type config struct {
	WSListenAddr  string        `env:"WS_LISTEN_ADDR" envDefault:"127.0.0.1:3012"`
	APIListenAddr string        `env:"API_LISTEN_ADDR" envDefault:":8080"`
	HistoryFile   string        `env:"HISTORY_FILE" envDefault:"message_log"`
	SaveInterval  time.Duration `env:"SAVE_INTERVAL" envDefault:"500ms"`
	PingInterval  time.Duration `env:"PING_INTERVAL" envDefault:"10s"`
	BacklogSize   int           `env:"BACKLOG_SIZE" envDefault:"100"`
	LogLevel      string        `env:"LOG_LEVEL" envDefault:"debug"`
}

func main() {
	logger := zerolog.New(os.Stdout).With().Timestamp().Logger()

	var cfg config
	if err := env.Parse(&cfg); err != nil {
		logger.Fatal().Err(err).Msg("failed to parse environment")
	}

	fs := pflag.NewFlagSet("main", pflag.ContinueOnError)
	fs.StringVarP(&cfg.WSListenAddr, "ws-listen-addr", "w", cfg.WSListenAddr, "chat websocket listen address")
	fs.StringVarP(&cfg.APIListenAddr, "api-listen-addr", "a", cfg.APIListenAddr, "status api listen address")
	fs.StringVarP(&cfg.HistoryFile, "history-file", "f", cfg.HistoryFile, "history snapshot file")
	fs.DurationVar(&cfg.SaveInterval, "save-interval", cfg.SaveInterval, "history snapshot period")
	fs.DurationVar(&cfg.PingInterval, "ping-interval", cfg.PingInterval, "liveness probe period")
	fs.IntVar(&cfg.BacklogSize, "backlog-size", cfg.BacklogSize, "history entries replayed on connect")
	fs.StringVarP(&cfg.LogLevel, "log-level", "l", cfg.LogLevel, "log level")
	if err := fs.Parse(os.Args[1:]); err != nil {
		logger.Fatal().Err(err).Msg("failed to parse command line arguments")
	}

	lvl, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to parse loglevel")
	}
	logger = logger.Level(lvl)

	roomState := store.NewMemStore()
	persister := file.NewPersister(file.Config{
		Logger:   &logger,
		Source:   roomState,
		Path:     cfg.HistoryFile,
		Interval: cfg.SaveInterval,
	})
	roomState.SeedHistory(persister.Load())

	roomHub := hub.New(&logger)
	engine := service.NewEngine(service.Config{
		Logger:  &logger,
		State:   roomState,
		Hub:     roomHub,
		Backlog: cfg.BacklogSize,
	})
	wsSrv := websocketServer.NewServer(websocketServer.Config{
		Logger:       &logger,
		Engine:       engine,
		ListenAddr:   cfg.WSListenAddr,
		PingInterval: cfg.PingInterval,
	})
	apiSrv := httpServer.NewServer(httpServer.Config{
		Logger:     &logger,
		Stats:      roomState,
		Hub:        roomHub,
		ListenAddr: cfg.APIListenAddr,
	})

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	var (
		wg   = &sync.WaitGroup{}
		errc = make(chan error, 2)
	)
	wg.Add(3)
	go wsSrv.Run(ctx, wg, errc)
	go apiSrv.Run(ctx, wg, errc)
	go persister.Run(ctx, wg)

	select {
	case err = <-errc:
		logger.Error().Err(err).Msg("unexpected server error, shutting down")
	case <-ctx.Done():
		logger.Warn().Msg("interrupted")
	}
	cancel()
	wg.Wait()
}
