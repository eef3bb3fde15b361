package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/google/uuid"

	"github.com/VeltarosLabs/mythcoin/internal/api"
	"github.com/VeltarosLabs/mythcoin/internal/config"
	"github.com/VeltarosLabs/mythcoin/internal/consensus"
	"github.com/VeltarosLabs/mythcoin/internal/ledger"
	"github.com/VeltarosLabs/mythcoin/internal/logging"
	"github.com/VeltarosLabs/mythcoin/internal/replication"
	"github.com/VeltarosLabs/mythcoin/pkg/version"
)

func main() {
	parsed, err := config.ParseNodeFlags(os.Args[1:])
	if err != nil {
		os.Exit(exitWithError(err))
	}
	cfg := parsed.Config

	log := logging.New(logging.Config{
		Level:  cfg.Log.Level,
		Format: cfg.Log.Format,
	})

	nodeAddress := strings.ReplaceAll(uuid.NewString(), "-", "")

	led := ledger.New(
		consensus.NewPoW(cfg.PoW.Difficulty),
		ledger.WithLogger(log),
		ledger.WithFetchConcurrency(cfg.Peers.FetchConcurrency),
		ledger.WithReward(ledger.Reward{
			Sender:   nodeAddress,
			Receiver: cfg.Mining.RewardTo,
			Amount:   cfg.Mining.Reward,
		}),
	)

	for _, p := range cfg.Peers.Bootstrap {
		addr, err := led.AddBootstrapNode(p)
		if err != nil {
			log.Warn("ignoring bootstrap peer", "peer", p, "err", err)
			continue
		}
		log.Info("bootstrap peer registered", "peer", addr)
	}

	fetcher := replication.NewHTTPFetcher(cfg.Peers.FetchTimeout, uint64(cfg.Peers.FetchRetries))

	srv := &http.Server{
		Addr: cfg.API.ListenAddr,
		Handler: api.NewServer(led, fetcher, log, api.Config{
			NodeAddress:    nodeAddress,
			AllowedOrigins: cfg.API.AllowedOrigins,
			APIKey:         cfg.API.APIKey,
			RateLimit:      cfg.API.RateLimit,
			RateBurst:      cfg.API.RateBurst,
		}).Handler(),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       cfg.API.ReadTimeout,
		WriteTimeout:      cfg.API.WriteTimeout,
		IdleTimeout:       cfg.API.IdleTimeout,
	}

	go func() {
		log.Info("api listening",
			"addr", cfg.API.ListenAddr,
			"node", nodeAddress,
			"difficulty", cfg.PoW.Difficulty,
			"version", version.Get().String(),
		)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("api server error", "err", err)
			os.Exit(1)
		}
	}()

	waitForShutdown(log)

	ctx, cancel := context.WithTimeout(context.Background(), 8*time.Second)
	defer cancel()
	_ = srv.Shutdown(ctx)
	log.Info("shutdown complete", "height", led.Len())
}

func waitForShutdown(log *slog.Logger) {
	ch := make(chan os.Signal, 2)
	signal.Notify(ch, syscall.SIGINT, syscall.SIGTERM)
	s := <-ch
	log.Info("shutdown signal received", "signal", s.String())
}

func exitWithError(err error) int {
	_, _ = os.Stderr.WriteString("mythcoin-node error: " + err.Error() + "\n")
	return 1
}
