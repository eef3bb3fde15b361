package config

import (
	"errors"
	"flag"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/VeltarosLabs/mythcoin/internal/consensus"
)

type Config struct {
	API    APIConfig
	Log    LogConfig
	PoW    PoWConfig
	Mining MiningConfig
	Peers  PeersConfig
}

type APIConfig struct {
	ListenAddr   string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration

	AllowedOrigins []string
	APIKey         string // optional; guards mutating endpoints when set

	// token bucket for /mine_block and /replace_chain, per client IP
	RateLimit float64 // tokens/sec
	RateBurst float64
}

type LogConfig struct {
	Level  string // debug|info|warn|error
	Format string // json|text|pretty
}

type PoWConfig struct {
	Difficulty int // leading hex zeros
}

type MiningConfig struct {
	Reward   float64 // 0 disables the reward transaction
	RewardTo string
}

type PeersConfig struct {
	Bootstrap        []string
	FetchTimeout     time.Duration
	FetchRetries     int
	FetchConcurrency int
}

func Default() Config {
	return Config{
		API: APIConfig{
			ListenAddr:     "0.0.0.0:5000",
			ReadTimeout:    10 * time.Second,
			WriteTimeout:   2 * time.Minute, // mining responds only once a proof is found
			IdleTimeout:    60 * time.Second,
			AllowedOrigins: []string{},
			RateLimit:      1,
			RateBurst:      5,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "json",
		},
		PoW: PoWConfig{
			Difficulty: consensus.DefaultDifficulty,
		},
		Mining: MiningConfig{
			Reward:   0,
			RewardTo: "miner",
		},
		Peers: PeersConfig{
			Bootstrap:        []string{},
			FetchTimeout:     10 * time.Second,
			FetchRetries:     2,
			FetchConcurrency: 8,
		},
	}
}

type Parsed struct {
	Config Config
}

func ParseNodeFlags(args []string) (Parsed, error) {
	cfg := Default()

	fs := flag.NewFlagSet("mythcoin-node", flag.ContinueOnError)
	fs.SetOutput(os.Stdout)

	var (
		apiListen   = fs.String("api.listen", envOr("MYTHCOIN_API_LISTEN", cfg.API.ListenAddr), "HTTP API listen address (ip:port)")
		apiOrigins  = fs.String("api.origins", envOr("MYTHCOIN_API_ORIGINS", ""), "Comma-separated CORS origins allowed to call the API")
		apiKey      = fs.String("api.key", envOr("MYTHCOIN_API_KEY", ""), "Optional API key required on mutating endpoints (X-API-Key)")
		apiRate     = fs.Float64("api.rate", envOrFloat("MYTHCOIN_API_RATE", cfg.API.RateLimit), "Mining/replace requests per second per client")
		apiBurst    = fs.Float64("api.burst", envOrFloat("MYTHCOIN_API_BURST", cfg.API.RateBurst), "Mining/replace request burst per client")
		apiWriteTTL = fs.Duration("api.writeTimeout", envOrDuration("MYTHCOIN_API_WRITE_TIMEOUT", cfg.API.WriteTimeout), "HTTP write timeout")

		logLevel  = fs.String("log.level", envOr("MYTHCOIN_LOG_LEVEL", cfg.Log.Level), "Log level: debug|info|warn|error")
		logFormat = fs.String("log.format", envOr("MYTHCOIN_LOG_FORMAT", cfg.Log.Format), "Log format: json|text|pretty")

		difficulty = fs.Int("pow.difficulty", envOrInt("MYTHCOIN_POW_DIFFICULTY", cfg.PoW.Difficulty), "Leading hex zeros a proof digest needs")

		reward   = fs.Float64("mine.reward", envOrFloat("MYTHCOIN_MINE_REWARD", cfg.Mining.Reward), "Amount credited in each mined block (0 disables)")
		rewardTo = fs.String("mine.rewardTo", envOr("MYTHCOIN_MINE_REWARD_TO", cfg.Mining.RewardTo), "Receiver of the mining reward")

		bootstrap    = fs.String("peers.bootstrap", envOr("MYTHCOIN_PEERS_BOOTSTRAP", ""), "Comma-separated peer addresses (host:port or URL) registered at startup")
		fetchTimeout = fs.Duration("peers.fetchTimeout", envOrDuration("MYTHCOIN_PEERS_FETCH_TIMEOUT", cfg.Peers.FetchTimeout), "Per-request timeout when fetching a peer chain")
		fetchRetries = fs.Int("peers.fetchRetries", envOrInt("MYTHCOIN_PEERS_FETCH_RETRIES", cfg.Peers.FetchRetries), "Retries per peer chain fetch")
		fetchConc    = fs.Int("peers.fetchConcurrency", envOrInt("MYTHCOIN_PEERS_FETCH_CONCURRENCY", cfg.Peers.FetchConcurrency), "Peer chains fetched in parallel")
	)

	if err := fs.Parse(args); err != nil {
		return Parsed{}, err
	}

	cfg.API.ListenAddr = strings.TrimSpace(*apiListen)
	cfg.API.APIKey = strings.TrimSpace(*apiKey)
	cfg.API.RateLimit = *apiRate
	cfg.API.RateBurst = *apiBurst
	cfg.API.WriteTimeout = *apiWriteTTL
	if o := strings.TrimSpace(*apiOrigins); o != "" {
		cfg.API.AllowedOrigins = splitCSV(o)
	}

	cfg.Log.Level = strings.TrimSpace(*logLevel)
	cfg.Log.Format = strings.TrimSpace(*logFormat)

	cfg.PoW.Difficulty = *difficulty

	cfg.Mining.Reward = *reward
	cfg.Mining.RewardTo = strings.TrimSpace(*rewardTo)

	if b := strings.TrimSpace(*bootstrap); b != "" {
		cfg.Peers.Bootstrap = splitCSV(b)
	}
	cfg.Peers.FetchTimeout = *fetchTimeout
	cfg.Peers.FetchRetries = *fetchRetries
	cfg.Peers.FetchConcurrency = *fetchConc

	if err := validate(cfg); err != nil {
		return Parsed{}, err
	}

	return Parsed{Config: cfg}, nil
}

func validate(cfg Config) error {
	if cfg.API.ListenAddr == "" {
		return errors.New("api.listen must not be empty")
	}
	if cfg.API.RateLimit <= 0 || cfg.API.RateBurst < 1 {
		return fmt.Errorf("api.rate must be > 0 and api.burst >= 1 (got %v, %v)", cfg.API.RateLimit, cfg.API.RateBurst)
	}
	if cfg.API.WriteTimeout <= 0 {
		return errors.New("api.writeTimeout must be > 0")
	}

	switch strings.ToLower(cfg.Log.Level) {
	case "debug", "info", "warn", "warning", "error":
	default:
		return fmt.Errorf("invalid log.level: %q", cfg.Log.Level)
	}

	switch strings.ToLower(cfg.Log.Format) {
	case "json", "text", "pretty":
	default:
		return fmt.Errorf("invalid log.format: %q", cfg.Log.Format)
	}

	if cfg.PoW.Difficulty < 1 || cfg.PoW.Difficulty > consensus.MaxDifficulty {
		return fmt.Errorf("pow.difficulty out of range [1,%d]: %d", consensus.MaxDifficulty, cfg.PoW.Difficulty)
	}

	if cfg.Mining.Reward < 0 {
		return fmt.Errorf("mine.reward must be >= 0: %v", cfg.Mining.Reward)
	}
	if cfg.Mining.Reward > 0 && cfg.Mining.RewardTo == "" {
		return errors.New("mine.rewardTo must not be empty when mine.reward > 0")
	}

	if cfg.Peers.FetchTimeout <= 0 {
		return errors.New("peers.fetchTimeout must be > 0")
	}
	if cfg.Peers.FetchRetries < 0 || cfg.Peers.FetchRetries > 10 {
		return fmt.Errorf("peers.fetchRetries out of range: %d", cfg.Peers.FetchRetries)
	}
	if cfg.Peers.FetchConcurrency <= 0 || cfg.Peers.FetchConcurrency > 256 {
		return fmt.Errorf("peers.fetchConcurrency out of range: %d", cfg.Peers.FetchConcurrency)
	}
	return nil
}

func envOr(key, def string) string {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	return v
}

func envOrInt(key string, def int) int {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}

func envOrFloat(key string, def float64) float64 {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return def
	}
	return f
}

func envOrDuration(key string, def time.Duration) time.Duration {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return def
	}
	return d
}

func splitCSV(s string) []string {
	raw := strings.Split(s, ",")
	out := make([]string, 0, len(raw))
	for _, r := range raw {
		t := strings.TrimSpace(r)
		if t != "" {
			out = append(out, t)
		}
	}
	return out
}
