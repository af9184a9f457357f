package main

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/warp/casebook/casebook"
	"github.com/warp/casebook/config"
	"github.com/warp/casebook/logging"
	"github.com/warp/casebook/store/memory"
	redisstore "github.com/warp/casebook/store/redis"
	"github.com/warp/casebook/store/sqlite"
)

// Exit codes.
const (
	exitUsage = 1
	exitStore = 2
)

var (
	cfg        config.Config
	configPath string
	log        zerolog.Logger

	// Flag values. Only flags set on the command line override the file
	// and environment.
	flagStore     string
	flagDB        string
	flagLogFormat string
	flagLogLevel  string
)

var rootCmd = &cobra.Command{
	Use:   "casebook",
	Short: "Family services case book: authorizations, visits and unit balances",
	Long: `casebook serves the case-management API and offers maintenance commands
for the authorization balance engine.

Configuration is read from defaults, then --config, then CASEBOOK_*
environment variables, then flags.`,
	SilenceUsage:      true,
	PersistentPreRunE: loadConfig,
}

func init() {
	d := config.Default()

	pf := rootCmd.PersistentFlags()
	pf.StringVar(&configPath, "config", "", "YAML config file")
	pf.StringVar(&flagStore, "store", d.Store, "Document store: memory, sqlite or redis")
	pf.StringVar(&flagDB, "db", d.SQLitePath, `SQLite database path (":memory:" for in-memory)`)
	pf.StringVar(&flagLogFormat, "log-format", d.LogFormat, "Log format: text or json")
	pf.StringVar(&flagLogLevel, "log-level", d.LogLevel, "Log level: debug, info, warn or error")
}

func loadConfig(cmd *cobra.Command, _ []string) error {
	cfg = config.Default()
	if configPath != "" {
		if err := cfg.LoadFromFile(configPath); err != nil {
			return err
		}
	}
	if err := cfg.LoadFromEnv(config.EnvPrefix); err != nil {
		return err
	}

	flags := cmd.Flags()
	if flags.Changed("store") {
		cfg.Store = flagStore
	}
	if flags.Changed("db") {
		cfg.SQLitePath = flagDB
	}
	if flags.Changed("log-format") {
		cfg.LogFormat = flagLogFormat
	}
	if flags.Changed("log-level") {
		cfg.LogLevel = flagLogLevel
	}
	if flags.Lookup("port") != nil && flags.Changed("port") {
		cfg.Port = flagPort
	}

	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	log = logging.Setup(cfg.LogFormat, cfg.LogLevel)
	return nil
}

// openStore opens the configured document store. The returned close func is
// never nil.
func openStore(ctx context.Context) (casebook.DocumentStore, func() error, error) {
	switch cfg.Store {
	case config.StoreMemory:
		log.Warn().Msg("using in-memory store; data is lost on exit")
		return memory.New(), func() error { return nil }, nil

	case config.StoreSQLite:
		s, err := sqlite.New(cfg.SQLitePath)
		if err != nil {
			return nil, nil, fmt.Errorf("open sqlite %s: %w", cfg.SQLitePath, err)
		}
		return s, s.Close, nil

	case config.StoreRedis:
		client := redisstore.NewClient(redisstore.Config{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		s := redisstore.New(client, cfg.Redis.Prefix, log)
		if err := s.Ping(ctx); err != nil {
			s.Close()
			return nil, nil, fmt.Errorf("connect redis %s: %w", cfg.Redis.Addr, err)
		}
		return s, s.Close, nil
	}
	return nil, nil, fmt.Errorf("unknown store %q", cfg.Store)
}

func newService(docs casebook.DocumentStore) *casebook.Service {
	return casebook.NewService(docs,
		casebook.WithLogger(log),
		casebook.WithRunningLowWeeks(cfg.RunningLowWeeks),
	)
}
